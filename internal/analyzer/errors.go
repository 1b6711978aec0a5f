package analyzer

import "errors"

var (
	// ErrParseError is returned when the experiment database cannot be read.
	ErrParseError = errors.New("failed to parse experiment database")

	// ErrEmptyData is returned when the experiment database has no data.
	ErrEmptyData = errors.New("experiment database is empty")

	// ErrMissingInput is returned when a request names no input.
	ErrMissingInput = errors.New("analysis request has no input")
)
