// Package errors defines common error types for the application.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error codes for the application.
const (
	CodeUnknown                = "UNKNOWN_ERROR"
	CodeDatabaseError          = "DATABASE_ERROR"
	CodeUploadError            = "UPLOAD_ERROR"
	CodeDownloadError          = "DOWNLOAD_ERROR"
	CodeStorageError           = "STORAGE_ERROR"
	CodeAnalysisError          = "ANALYSIS_ERROR"
	CodeEmptyFile              = "EMPTY_FILE"
	CodeParseError             = "PARSE_ERROR"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeNotFound               = "NOT_FOUND"
	CodeConfigError            = "CONFIG_ERROR"
	CodeMalformedInput         = "MALFORMED_INPUT"
	CodeFormulaEvaluation      = "FORMULA_EVALUATION"
	CodeAggregationConsistency = "AGGREGATION_CONSISTENCY"
	CodeUnsupportedQuery       = "UNSUPPORTED_QUERY"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances.
var (
	ErrDatabaseError          = New(CodeDatabaseError, "database error")
	ErrUploadError            = New(CodeUploadError, "upload error")
	ErrDownloadError          = New(CodeDownloadError, "download error")
	ErrAnalysisError          = New(CodeAnalysisError, "analysis error")
	ErrEmptyFile              = New(CodeEmptyFile, "empty file")
	ErrParseError             = New(CodeParseError, "parse error")
	ErrInvalidInput           = New(CodeInvalidInput, "invalid input")
	ErrNotFound               = New(CodeNotFound, "resource not found")
	ErrConfigError            = New(CodeConfigError, "configuration error")
	ErrMalformedInput         = New(CodeMalformedInput, "malformed profile database")
	ErrFormulaEvaluation      = New(CodeFormulaEvaluation, "metric formula evaluation failed")
	ErrAggregationConsistency = New(CodeAggregationConsistency, "inconsistent metric aggregation")
	ErrUnsupportedQuery       = New(CodeUnsupportedQuery, "query not implemented")
)

// MalformedInputError reports an element of the profile database that cannot
// be turned into a call tree. Attrs holds the element's raw attributes.
type MalformedInputError struct {
	Reason string
	Tag    string
	Attrs  map[string]string
}

// Error implements the error interface.
func (e *MalformedInputError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("[%s] %s", CodeMalformedInput, e.Reason)
	}
	return fmt.Sprintf("[%s] %s: <%s %s>", CodeMalformedInput, e.Reason, e.Tag, formatAttrs(e.Attrs))
}

// Unwrap returns ErrMalformedInput.
func (e *MalformedInputError) Unwrap() error {
	return ErrMalformedInput
}

// FormulaEvaluationError reports a finalize formula that could not be
// evaluated for one node.
type FormulaEvaluationError struct {
	Formula string
	Metric  string
	Row     map[string]float64
	Err     error
}

// Error implements the error interface.
func (e *FormulaEvaluationError) Error() string {
	return fmt.Sprintf("[%s] error while evaluating %q to compute %q in row %s: %v",
		CodeFormulaEvaluation, e.Formula, e.Metric, formatRow(e.Row), e.Err)
}

// Unwrap returns both the sentinel and the underlying cause.
func (e *FormulaEvaluationError) Unwrap() []error {
	return []error{ErrFormulaEvaluation, e.Err}
}

// AggregationConsistencyError reports a node for which no ancestor with a
// large enough value exists.
type AggregationConsistencyError struct {
	Metric   string
	CallPath []int64
	Value    float64
}

// Error implements the error interface.
func (e *AggregationConsistencyError) Error() string {
	return fmt.Sprintf("[%s] no ancestor of %v has %q >= %g",
		CodeAggregationConsistency, e.CallPath, e.Metric, e.Value)
}

// Unwrap returns ErrAggregationConsistency.
func (e *AggregationConsistencyError) Unwrap() error {
	return ErrAggregationConsistency
}

// UnsupportedQueryError is returned for query forms that are not implemented.
type UnsupportedQueryError struct {
	Operation string
}

// Error implements the error interface.
func (e *UnsupportedQueryError) Error() string {
	return fmt.Sprintf("[%s] %s not supported", CodeUnsupportedQuery, e.Operation)
}

// Unwrap returns ErrUnsupportedQuery.
func (e *UnsupportedQueryError) Unwrap() error {
	return ErrUnsupportedQuery
}

// IsMalformedInput checks if the error is a malformed input error.
func IsMalformedInput(err error) bool {
	return errors.Is(err, ErrMalformedInput)
}

// IsFormulaEvaluation checks if the error is a formula evaluation error.
func IsFormulaEvaluation(err error) bool {
	return errors.Is(err, ErrFormulaEvaluation)
}

// IsAggregationConsistency checks if the error is an aggregation consistency error.
func IsAggregationConsistency(err error) bool {
	return errors.Is(err, ErrAggregationConsistency)
}

// IsUnsupportedQuery checks if the error is an unsupported query error.
func IsUnsupportedQuery(err error) bool {
	return errors.Is(err, ErrUnsupportedQuery)
}

// IsDatabaseError checks if the error is a database error.
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabaseError)
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	switch {
	case err == nil:
		return CodeUnknown
	case IsMalformedInput(err):
		return CodeMalformedInput
	case IsFormulaEvaluation(err):
		return CodeFormulaEvaluation
	case IsAggregationConsistency(err):
		return CodeAggregationConsistency
	case IsUnsupportedQuery(err):
		return CodeUnsupportedQuery
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func formatAttrs(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, attrs[k]))
	}
	return strings.Join(parts, " ")
}

func formatRow(row map[string]float64) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%q: %g", k, row[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
