package frame

import "errors"

var (
	// ErrColumnNotFound is returned when a named column does not exist.
	ErrColumnNotFound = errors.New("column not found")

	// ErrLengthMismatch is returned when columns, index or series lengths disagree.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrDuplicateColumn is returned when two columns share a name.
	ErrDuplicateColumn = errors.New("duplicate column")

	// ErrKindMismatch is returned when a column is accessed as the wrong kind.
	ErrKindMismatch = errors.New("column kind mismatch")

	// ErrNoIndex is returned when an index-dependent operation runs on an unindexed frame.
	ErrNoIndex = errors.New("frame has no index")
)
