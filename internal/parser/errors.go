package parser

import "errors"

var (
	// ErrInvalidFormat wraps decoder failures.
	ErrInvalidFormat = errors.New("invalid input format")

	// ErrEmptyInput means the reader held no document.
	ErrEmptyInput = errors.New("empty input")

	// ErrMissingSection names a required section the document lacks.
	ErrMissingSection = errors.New("missing section")
)
