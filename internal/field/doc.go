// Package field holds the typed field model shared by mapping, processors,
// queries and backends.
//
// A field type is a primitive (text, string, integer, decimal, date,
// duration, boolean, uri), the fulltext "tokens" type, or list<T> of any of
// these. Values are a tagged union (Null, Scalar, TokenList, List) so a
// field's shape is always carried by the value itself.
package field
