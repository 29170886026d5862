// Package dedup merges documents that describe the same entity.
//
// Documents of one collection are grouped by a natural key. In each group
// the most recently active document survives; empty survivor fields are
// filled from the others, references held by dependent collections are
// pointed at the survivor, and only then are the other documents deleted.
package dedup
