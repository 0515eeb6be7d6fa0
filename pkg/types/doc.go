// Package types defines the schema, entity, relation and query types shared
// by the graph context core, the Storage and Tx interfaces that storage
// backends implement, and the error taxonomy every layer reports with.
//
// Property values are a tagged variant (Value) rather than bare interface
// values so that schema validation, storage encoding and query evaluation all
// agree on the same small set of shapes.
package types
