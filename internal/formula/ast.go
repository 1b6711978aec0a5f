package formula

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Expr is a compiled formula expression.
type Expr interface {
	// Eval computes the expression against env.
	Eval(env Env) (float64, error)
	// String renders the expression with metric names in place of ids.
	String() string
}

// Env resolves metric names to the current node's values.
type Env interface {
	Value(name string) (float64, error)
}

var (
	// ErrMissingMetric is returned when a referenced metric has no value
	// and the missing policy forbids substituting zero.
	ErrMissingMetric = errors.New("referenced metric not measured")

	// ErrDomain is returned for arithmetic outside a function's domain.
	ErrDomain = errors.New("math domain error")
)

type number struct {
	value float64
}

func (n *number) Eval(Env) (float64, error) {
	return n.value, nil
}

func (n *number) String() string {
	return strconv.FormatFloat(n.value, 'g', -1, 64)
}

// metricRef is a `$<id>` reference resolved to the metric name.
type metricRef struct {
	id   int
	name string
}

func (m *metricRef) Eval(env Env) (float64, error) {
	return env.Value(m.name)
}

func (m *metricRef) String() string {
	return fmt.Sprintf("{%s}", m.name)
}

type unary struct {
	op      string
	operand Expr
}

func (u *unary) Eval(env Env) (float64, error) {
	v, err := u.operand.Eval(env)
	if err != nil {
		return 0, err
	}
	if u.op == "-" {
		return -v, nil
	}
	return v, nil
}

func (u *unary) String() string {
	return u.op + u.operand.String()
}

type binary struct {
	op          string
	left, right Expr
}

func (b *binary) Eval(env Env) (float64, error) {
	l, err := b.left.Eval(env)
	if err != nil {
		return 0, err
	}
	r, err := b.right.Eval(env)
	if err != nil {
		return 0, err
	}

	switch b.op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return 0, fmt.Errorf("%w: division by zero", ErrDomain)
		}
		return l / r, nil
	case "^":
		return power(l, r)
	default:
		return 0, fmt.Errorf("unknown operator %q", b.op)
	}
}

func (b *binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.left.String(), b.op, b.right.String())
}

type call struct {
	name string
	fn   function
	args []Expr
}

func (c *call) Eval(env Env) (float64, error) {
	values := make([]float64, len(c.args))
	for i, a := range c.args {
		v, err := a.Eval(env)
		if err != nil {
			return 0, err
		}
		values[i] = v
	}
	return c.fn.apply(values)
}

func (c *call) String() string {
	parts := make([]string, len(c.args))
	for i, a := range c.args {
		parts[i] = a.String()
	}
	return c.name + "(" + strings.Join(parts, ", ") + ")"
}

// function is a built-in math function. maxArgs < 0 means variadic.
type function struct {
	minArgs, maxArgs int
	apply            func(args []float64) (float64, error)
}

var functions = map[string]function{
	"sqrt": {1, 1, func(a []float64) (float64, error) {
		if a[0] < 0 {
			return 0, fmt.Errorf("%w: sqrt of negative value %g", ErrDomain, a[0])
		}
		return math.Sqrt(a[0]), nil
	}},
	"pow": {2, 2, func(a []float64) (float64, error) {
		return power(a[0], a[1])
	}},
	"abs": {1, 1, func(a []float64) (float64, error) {
		return math.Abs(a[0]), nil
	}},
	"exp": {1, 1, func(a []float64) (float64, error) {
		return math.Exp(a[0]), nil
	}},
	"log": {1, 1, func(a []float64) (float64, error) {
		if a[0] <= 0 {
			return 0, fmt.Errorf("%w: log of non-positive value %g", ErrDomain, a[0])
		}
		return math.Log(a[0]), nil
	}},
	"min": {1, -1, func(a []float64) (float64, error) {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m, nil
	}},
	"max": {1, -1, func(a []float64) (float64, error) {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m, nil
	}},
	"sum": {1, -1, func(a []float64) (float64, error) {
		var s float64
		for _, v := range a {
			s += v
		}
		return s, nil
	}},
}

func power(base, exp float64) (float64, error) {
	if base < 0 && exp != math.Trunc(exp) {
		return 0, fmt.Errorf("%w: fractional power %g of negative value %g", ErrDomain, exp, base)
	}
	if base == 0 && exp < 0 {
		return 0, fmt.Errorf("%w: negative power %g of zero", ErrDomain, exp)
	}
	return math.Pow(base, exp), nil
}
