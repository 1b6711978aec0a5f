// Package parser defines how profiling databases are decoded into the
// format-neutral experiment model.
package parser

import (
	"context"
	"io"

	"github.com/hpc-analysis/pkg/model"
)

// Parser decodes one profiling database format.
type Parser interface {
	// Parse decodes a whole database. Empty input yields ErrEmptyInput and
	// an absent required section ErrMissingSection.
	Parse(ctx context.Context, reader io.Reader) (*model.Experiment, error)

	// SupportedFormats lists the format names the parser accepts.
	SupportedFormats() []string

	Name() string
}
