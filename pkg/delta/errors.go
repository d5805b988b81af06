package delta

import "errors"

var (
	// ErrMalformedOp is returned when an op has no recognizable kind or a non-positive length
	ErrMalformedOp = errors.New("malformed op")
	// ErrNotDocument is returned when an operation requires a delta made only of inserts
	ErrNotDocument = errors.New("delta is not a document")
	// ErrEmptySeparator is returned by EachLineSep for an empty line separator
	ErrEmptySeparator = errors.New("empty line separator")
)
