package ingest

import "fmt"

// FetchError means the archive could not be retrieved: transport failure,
// non-2xx response or an unreadable body.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means one archive member held XML that could not be parsed
// into a book record.
type ParseError struct {
	Member string
	Err    error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Member, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// ReconcileError means one record could not be merged into the database.
// The record itself is logged separately for post-mortem.
type ReconcileError struct {
	BookID int
	Err    error
}

func (e *ReconcileError) Error() string { return fmt.Sprintf("reconcile book %d: %v", e.BookID, e.Err) }
func (e *ReconcileError) Unwrap() error { return e.Err }
