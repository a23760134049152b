// Package ovsdb bridges OVSDB JSON and engine relations.
//
// ParseTableUpdates turns an OVSDB <table-updates> object into engine
// updates for the input relations named prefix+table. DumpDeltaTables and
// DumpOutputTable render the net change of the conventional
// <module>::DeltaPlus_T, DeltaMinus_T, Update_T and Out_T relations as a
// comma-separated list of OVSDB operations.
//
// A column named "_uuid" carries the row UUID. OVSDB sets become Array
// values and maps become Tuples of (key, value) pairs.
package ovsdb
