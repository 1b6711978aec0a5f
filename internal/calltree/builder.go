package calltree

import (
	"fmt"
	"strconv"

	"github.com/hpc-analysis/internal/formula"
	"github.com/hpc-analysis/internal/symbols"
	apperrors "github.com/hpc-analysis/pkg/errors"
	"github.com/hpc-analysis/pkg/model"
	"github.com/hpc-analysis/pkg/utils"
)

// DefaultBaseMetric is the metric ratios and the hot path are computed on
// unless configured otherwise.
const DefaultBaseMetric = "CPUTIME (usec):Mean (I)"

// DefaultHotPathThreshold is the ratio of total below which the hot path
// stops descending.
const DefaultHotPathThreshold = 0.05

// rootFixupMetrics are the time metrics whose exclusive root value is
// replaced by the inclusive one.
var rootFixupMetrics = []string{
	"CPUTIME (usec):Sum",
	"CPUTIME (usec):Mean",
	"CPUTIME (usec):Min",
	"CPUTIME (usec):Max",
	"CPUTIME (usec):StdDev",
}

// Options configures tree construction.
type Options struct {
	// MaxDepth stops the descent below nodes at this depth. Nil means
	// unlimited.
	MaxDepth *int

	// ElideCallsites splices callsite children into the enclosing node
	// instead of materializing callsites as rows.
	ElideCallsites bool

	// RatioBaseMetrics are the metrics ratio columns are computed for.
	RatioBaseMetrics []string

	// HotPathThreshold is the minimum ratio of total of a hot path step.
	HotPathThreshold float64

	// HotPathBaseMetric is the metric the hot path is ranked by.
	HotPathBaseMetric string

	// MissingPolicy decides how formulas treat unmeasured metrics.
	MissingPolicy formula.MissingPolicy

	Logger utils.Logger
}

// DefaultOptions returns the default construction options.
func DefaultOptions() *Options {
	return &Options{
		ElideCallsites:    true,
		RatioBaseMetrics:  []string{DefaultBaseMetric},
		HotPathThreshold:  DefaultHotPathThreshold,
		HotPathBaseMetric: DefaultBaseMetric,
		MissingPolicy:     formula.MissingAsZero,
	}
}

// Depth returns a MaxDepth value.
func Depth(d int) *int {
	return &d
}

// Builder turns a parsed experiment into a Table.
type Builder struct {
	opts   *Options
	logger utils.Logger
}

// NewBuilder creates a builder. A nil opts uses DefaultOptions.
func NewBuilder(opts *Options) *Builder {
	if opts == nil {
		opts = DefaultOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Builder{opts: opts, logger: logger}
}

// walkState is the location accumulated from the root down to an element.
type walkState struct {
	callPath []int64
	labels   []string
	location Location
	depth    int
}

func (s walkState) extend(id int64, label string) walkState {
	next := s
	next.callPath = append(append(make([]int64, 0, len(s.callPath)+1), s.callPath...), id)
	next.labels = append(append(make([]string, 0, len(s.labels)+1), s.labels...), label)
	next.depth = s.depth + 1
	return next
}

// build holds the state of one Build call.
type build struct {
	opts     *Options
	tables   *symbols.Tables
	formulas formula.Set
	table    *Table
}

// Build constructs the call tree of exp and applies the root fix-up.
// Ratios are not computed; see RatioCalculator.
func (b *Builder) Build(exp *model.Experiment) (*Table, error) {
	if exp == nil || exp.Data == nil {
		return nil, &apperrors.MalformedInputError{Reason: "missing measurement record"}
	}

	tables, err := symbols.New(exp)
	if err != nil {
		return nil, err
	}
	formulas, err := formula.NewSet(tables)
	if err != nil {
		return nil, err
	}

	b.logger.Info("Building call tree for profile %s", exp.Name)
	b.logger.Debug("Metrics: %v", tables.MetricNames())
	for _, name := range tables.MetricNames() {
		if f, ok := formulas[name]; ok {
			b.logger.Debug("Formula %q: %s", name, f.String())
		}
	}
	b.logger.Debug("Procedures: %d, modules: %d, files: %d",
		tables.Procedures.Len(), tables.Modules.Len(), tables.Files.Len())

	bld := &build{
		opts:     b.opts,
		tables:   tables,
		formulas: formulas,
		table:    newTable(exp.Name, tables.MetricNames()),
	}

	if err := bld.walk(exp.Data, walkState{}, NodeRoot, RootID, true); err != nil {
		return nil, err
	}
	bld.fixRoot()

	b.logger.Debug("Call tree has %d nodes", bld.table.Len())
	return bld.table, nil
}

func (b *build) walk(e *model.Element, state walkState, nodeType NodeType, id int64, materialize bool) error {
	local := make(map[string]float64)
	var children []*model.Element
	for _, c := range e.Children {
		if c.Tag != model.TagMetricValue {
			children = append(children, c)
			continue
		}
		name, value, err := b.measurement(c)
		if err != nil {
			return err
		}
		local[name] = value
	}

	if materialize {
		metrics, err := b.formulas.Evaluate(local, b.opts.MissingPolicy)
		if err != nil {
			return err
		}
		node := &Node{
			ID:       id,
			CallPath: state.callPath,
			Labels:   state.labels,
			Depth:    state.depth,
			Type:     nodeType,
			Location: state.location,
			Metrics:  metrics,
			Raw:      local,
		}
		if err := b.table.add(node); err != nil {
			return malformed("duplicate node id", e)
		}
	}

	if b.opts.MaxDepth != nil && state.depth >= *b.opts.MaxDepth {
		return nil
	}

	for _, c := range children {
		if err := b.child(c, state); err != nil {
			return err
		}
	}
	return nil
}

func (b *build) child(e *model.Element, state walkState) error {
	switch e.Tag {
	case model.TagProcedureFrame:
		id, err := b.intAttr(e, "i")
		if err != nil {
			return err
		}
		procID, err := b.intAttr(e, "n")
		if err != nil {
			return err
		}
		proc, err := b.tables.Procedures.Lookup(int(procID))
		if err != nil {
			return malformed("unknown procedure id", e)
		}
		next := state.extend(id, fmt.Sprintf("%s.%d", proc, id))
		next.location.Procedure = proc
		next.location.HasProcedure = true
		if err := b.locate(e, &next.location); err != nil {
			return err
		}
		return b.walk(e, next, NodeProcedureFrame, id, true)

	case model.TagCallsite:
		id, err := b.intAttr(e, "i")
		if err != nil {
			return err
		}
		if b.opts.ElideCallsites {
			return b.walk(e, state, NodeCallsite, id, false)
		}
		scope, err := b.strAttr(e, "s")
		if err != nil {
			return err
		}
		next := state.extend(id, fmt.Sprintf("<callsite %s.%d>", scope, id))
		if err := b.locate(e, &next.location); err != nil {
			return err
		}
		return b.walk(e, next, NodeCallsite, id, true)

	case model.TagStatement:
		id, err := b.intAttr(e, "i")
		if err != nil {
			return err
		}
		scope, err := b.strAttr(e, "s")
		if err != nil {
			return err
		}
		next := state.extend(id, fmt.Sprintf("<statement %s>", scope))
		if err := b.locate(e, &next.location); err != nil {
			return err
		}
		return b.walk(e, next, NodeStatement, id, true)

	case model.TagLoop:
		id, err := b.intAttr(e, "i")
		if err != nil {
			return err
		}
		scope, err := b.strAttr(e, "s")
		if err != nil {
			return err
		}
		next := state.extend(id, fmt.Sprintf("<loop %s.%d>", scope, id))
		if err := b.locate(e, &next.location); err != nil {
			return err
		}
		return b.walk(e, next, NodeLoop, id, true)

	default:
		return malformed("unsupported element "+strconv.Quote(e.Tag), e)
	}
}

// measurement resolves one M element.
func (b *build) measurement(e *model.Element) (string, float64, error) {
	id, err := b.intAttr(e, "n")
	if err != nil {
		return "", 0, err
	}
	name, err := b.tables.MetricName(int(id))
	if err != nil {
		return "", 0, malformed("unknown metric id", e)
	}
	raw, err := b.strAttr(e, "v")
	if err != nil {
		return "", 0, err
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", 0, malformed("invalid metric value", e)
	}
	return name, value, nil
}

// locate overrides loc with the location attributes carried by e.
func (b *build) locate(e *model.Element, loc *Location) error {
	if raw, ok := e.Attr("lm"); ok {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return malformed("invalid load module id", e)
		}
		if loc.Module, err = b.tables.Modules.Lookup(id); err != nil {
			return malformed("unknown load module id", e)
		}
		loc.HasModule = true
	}
	if raw, ok := e.Attr("f"); ok {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return malformed("invalid file id", e)
		}
		if loc.File, err = b.tables.Files.Lookup(id); err != nil {
			return malformed("unknown file id", e)
		}
		loc.HasFile = true
	}
	if raw, ok := e.Attr("l"); ok {
		line, err := strconv.Atoi(raw)
		if err != nil {
			return malformed("invalid line number", e)
		}
		loc.Line = line
		loc.HasLine = true
	}
	return nil
}

func (b *build) strAttr(e *model.Element, name string) (string, error) {
	v, ok := e.Attr(name)
	if !ok {
		return "", malformed("missing attribute "+strconv.Quote(name), e)
	}
	return v, nil
}

func (b *build) intAttr(e *model.Element, name string) (int64, error) {
	raw, err := b.strAttr(e, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, malformed("invalid attribute "+strconv.Quote(name), e)
	}
	return v, nil
}

// fixRoot copies the root's inclusive time metrics over their exclusive
// counterparts.
func (b *build) fixRoot() {
	root := b.table.Root()
	if root == nil {
		return
	}
	for _, prefix := range rootFixupMetrics {
		inclusive := prefix + " (I)"
		exclusive := prefix + " (E)"
		v, ok := root.Metrics[inclusive]
		if !ok {
			continue
		}
		if _, known := b.tables.MetricByName(exclusive); !known {
			continue
		}
		root.Metrics[exclusive] = v
	}
}

func malformed(reason string, e *model.Element) error {
	attrs := make(map[string]string, len(e.Attrs))
	for k, v := range e.Attrs {
		attrs[k] = v
	}
	return &apperrors.MalformedInputError{Reason: reason, Tag: e.Tag, Attrs: attrs}
}

// New builds the call tree of exp and computes its ratio columns.
func New(exp *model.Experiment, opts *Options) (*Table, error) {
	builder := NewBuilder(opts)
	table, err := builder.Build(exp)
	if err != nil {
		return nil, err
	}
	calc := NewRatioCalculator(builder.opts.RatioBaseMetrics...).WithLogger(builder.logger)
	if err := calc.Compute(table); err != nil {
		return nil, err
	}
	return table, nil
}
