// Package formula compiles and evaluates HPCToolkit metric formulas.
//
// Formulas reference other metrics of the same node with `$<id>`. A formula
// is parsed once per metric into an expression tree and then evaluated for
// every node against that node's local measurements.
package formula

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hpc-analysis/internal/symbols"
	apperrors "github.com/hpc-analysis/pkg/errors"
)

// MissingPolicy controls how a reference to an unmeasured metric evaluates.
type MissingPolicy int

const (
	// MissingAsZero substitutes zero for unmeasured metrics.
	MissingAsZero MissingPolicy = iota
	// MissingIsError fails the evaluation.
	MissingIsError
)

// String returns the configuration name of the policy.
func (p MissingPolicy) String() string {
	switch p {
	case MissingIsError:
		return "error"
	default:
		return "zero"
	}
}

// ParseMissingPolicy parses "zero" or "error".
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zero":
		return MissingAsZero, nil
	case "error":
		return MissingIsError, nil
	default:
		return MissingAsZero, fmt.Errorf("unknown missing metric policy %q", s)
	}
}

// Formula is the compiled finalize formula of one metric.
type Formula struct {
	// Metric is the name of the metric the formula computes.
	Metric string
	// Text is the formula as written in the database.
	Text string

	expr Expr
	refs []string
}

// Compile parses text into a formula computing metric. Metric ids are
// resolved through resolve.
func Compile(metric, text string, resolve Resolver) (*Formula, error) {
	expr, refs, err := parse(text, resolve)
	if err != nil {
		return nil, &apperrors.MalformedInputError{
			Reason: fmt.Sprintf("invalid formula for %q: %v", metric, err),
			Tag:    "MetricFormula",
			Attrs:  map[string]string{"t": "finalize", "frm": text},
		}
	}
	return &Formula{Metric: metric, Text: text, expr: expr, refs: refs}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(metric, text string, resolve Resolver) *Formula {
	f, err := Compile(metric, text, resolve)
	if err != nil {
		panic(err)
	}
	return f
}

// References returns the metric names the formula reads, in order of
// appearance.
func (f *Formula) References() []string {
	return f.refs
}

// String renders the compiled expression with metric names.
func (f *Formula) String() string {
	return f.expr.String()
}

// Eval evaluates the formula against a node's local measurements.
func (f *Formula) Eval(local map[string]float64, policy MissingPolicy) (float64, error) {
	v, err := f.expr.Eval(rowEnv{row: local, policy: policy})
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = fmt.Errorf("%w: result is %g", ErrDomain, v)
	}
	if err != nil {
		return 0, &apperrors.FormulaEvaluationError{
			Formula: f.Text,
			Metric:  f.Metric,
			Row:     local,
			Err:     err,
		}
	}
	return v, nil
}

type rowEnv struct {
	row    map[string]float64
	policy MissingPolicy
}

func (e rowEnv) Value(name string) (float64, error) {
	v, ok := e.row[name]
	if ok {
		return v, nil
	}
	if e.policy == MissingIsError {
		return 0, fmt.Errorf("%w: %q", ErrMissingMetric, name)
	}
	return 0, nil
}

// Set holds the compiled formulas of a metric table keyed by metric name.
type Set map[string]*Formula

// Evaluate returns the evaluated form of a node's local measurements: every
// measured metric that has a formula is replaced by the formula's value,
// computed from the raw local measurements. Metrics without a formula keep
// their raw value.
func (s Set) Evaluate(local map[string]float64, policy MissingPolicy) (map[string]float64, error) {
	names := make([]string, 0, len(local))
	for name := range local {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make(map[string]float64, len(local))
	for _, name := range names {
		raw := local[name]
		f, ok := s[name]
		if !ok {
			result[name] = raw
			continue
		}
		v, err := f.Eval(local, policy)
		if err != nil {
			return nil, err
		}
		result[name] = v
	}
	return result, nil
}

// NewSet compiles the finalize formula of every derived metric in tables.
func NewSet(tables *symbols.Tables) (Set, error) {
	set := make(Set)
	for _, m := range tables.Metrics() {
		if !m.Derived() {
			continue
		}
		f, err := Compile(m.Name, m.Formula, tables.MetricName)
		if err != nil {
			return nil, err
		}
		set[m.Name] = f
	}
	return set, nil
}
