// Package graphspec turns declarative program descriptions into resolved
// dataflow graphs.
//
// A description lists relations, arrangements, rules and facts. Stage rows
// are positional tuples: an operand "$n" refers to column n of the current
// row and any other scalar is a literal. Descriptions are read from CUE
// (LoadCUE) or YAML (LoadYAML) and resolved by Compile.
package graphspec
