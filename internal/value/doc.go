// Package value provides the generic record representation shared by every
// relation, arrangement and rule in ddflow.
//
// This package imports nothing internal. A Value is one of Bool, Int,
// String, Tuple or Array; there are no floats and no null.
//
// Key design constraints:
//   - Values are immutable once constructed; Tuple and Array share backing
//     storage freely between relations and arrangements
//   - Equality, ordering and hashing are structural
//   - Strings entering through constructors and decoders are NFC-normalized
package value
