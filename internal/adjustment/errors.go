package adjustment

import "errors"

var (
	// ErrInvalidMode is returned for an adjustment mode other than price or volume.
	ErrInvalidMode = errors.New("invalid adjustment mode")

	// ErrInvalidOption is returned for an unknown alignment or missing-date policy.
	ErrInvalidOption = errors.New("invalid option")

	// ErrMisaligned is returned by positional alignment when a security's
	// record count differs from the panel's date count.
	ErrMisaligned = errors.New("security records do not align with panel dates")

	// ErrMissingDate is returned by date alignment under MissingError.
	ErrMissingDate = errors.New("security has no record for panel date")

	// ErrDuplicateDate is returned by date alignment when a security has two records for one date.
	ErrDuplicateDate = errors.New("duplicate date for security")

	// ErrUnparsableDate is returned when a string date column holds a value that is not a date.
	ErrUnparsableDate = errors.New("unparsable date")
)
