package calltree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/hpc-analysis/pkg/errors"
)

type patternKind int

const (
	matchID patternKind = iota
	matchName
	matchPattern
)

// PathPattern matches one element of a call path.
type PathPattern struct {
	kind patternKind
	id   int64
	name string
	re   *regexp.Regexp
}

// ID matches the node id of a call path element.
func ID(id int64) PathPattern {
	return PathPattern{kind: matchID, id: id}
}

// Name matches the label of a call path element exactly.
func Name(label string) PathPattern {
	return PathPattern{kind: matchName, name: label}
}

// Pattern matches labels against a regular expression that must match the
// whole label.
func Pattern(expr string) (PathPattern, error) {
	re, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return PathPattern{}, fmt.Errorf("invalid path pattern %q: %w", expr, err)
	}
	return PathPattern{kind: matchPattern, name: expr, re: re}, nil
}

// MustPattern is like Pattern but panics on error.
func MustPattern(expr string) PathPattern {
	p, err := Pattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePathPattern parses the text form used by the command line and the
// APIs: "#<id>" is an id, "~<regexp>" a pattern and anything else a label.
func ParsePathPattern(s string) (PathPattern, error) {
	switch {
	case strings.HasPrefix(s, "#"):
		id, err := strconv.ParseInt(s[1:], 10, 64)
		if err != nil {
			return PathPattern{}, fmt.Errorf("invalid node id %q", s)
		}
		return ID(id), nil
	case strings.HasPrefix(s, "~"):
		return Pattern(s[1:])
	default:
		return Name(s), nil
	}
}

// ParsePathPatterns parses a list of patterns.
func ParsePathPatterns(items []string) ([]PathPattern, error) {
	patterns := make([]PathPattern, 0, len(items))
	for _, item := range items {
		p, err := ParsePathPattern(item)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// Match reports whether the call path element (id, label) matches.
func (p PathPattern) Match(id int64, label string) bool {
	switch p.kind {
	case matchID:
		return p.id == id
	case matchName:
		return p.name == label
	default:
		return p.re.MatchString(label)
	}
}

// String returns the text form of the pattern.
func (p PathPattern) String() string {
	switch p.kind {
	case matchID:
		return "#" + strconv.FormatInt(p.id, 10)
	case matchName:
		return p.name
	default:
		return "~" + p.name
	}
}

// PathQuery selects nodes by their call path.
type PathQuery struct {
	// Prefix must match the first elements of the call path.
	Prefix []PathPattern
	// Suffix must match the last elements of the call path.
	Suffix []PathPattern
	// Fragments would match anywhere in the call path. Non-empty fragments
	// are rejected.
	Fragments [][]PathPattern
}

// FilterByPath keeps the nodes whose call path starts with Prefix and ends
// with Suffix.
func (t *Table) FilterByPath(q PathQuery) (*Table, error) {
	for _, fragment := range q.Fragments {
		if len(fragment) > 0 {
			return nil, &apperrors.UnsupportedQueryError{Operation: "filtering by arbitrary path fragment"}
		}
	}
	return t.where(func(n *Node) bool {
		return matchPrefix(n, q.Prefix) && matchSuffix(n, q.Suffix)
	}), nil
}

func matchPrefix(n *Node, prefix []PathPattern) bool {
	if len(n.CallPath) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if !p.Match(n.CallPath[i], n.Labels[i]) {
			return false
		}
	}
	return true
}

func matchSuffix(n *Node, suffix []PathPattern) bool {
	if len(n.CallPath) < len(suffix) {
		return false
	}
	offset := len(n.CallPath) - len(suffix)
	for i, p := range suffix {
		if !p.Match(n.CallPath[offset+i], n.Labels[offset+i]) {
			return false
		}
	}
	return true
}

// FilterByDepth keeps the nodes whose depth lies in [min, max]. A nil bound
// is open.
func (t *Table) FilterByDepth(min, max *int) *Table {
	return t.where(func(n *Node) bool {
		if min != nil && n.Depth < *min {
			return false
		}
		if max != nil && n.Depth > *max {
			return false
		}
		return true
	})
}

// AtDepth keeps the nodes at exactly depth d.
func (t *Table) AtDepth(d int) *Table {
	return t.FilterByDepth(&d, &d)
}

// Subtree keeps the node with the given call path and its descendants.
func (t *Table) Subtree(path []int64) *Table {
	return t.where(func(n *Node) bool {
		return hasPrefix(n.CallPath, path)
	})
}
