// Package expiry removes chunks whose retention window has elapsed.
//
// Reconciliation stamps every surviving chunk with a fresh expiry, so
// anything a sweep finds expired belongs to content no recent snapshot
// contained. Deletion is row-first: the metadata row disappears in a
// transaction, then the vector is tombstoned, so concurrent selections
// never resolve a vector id to a missing row.
package expiry
