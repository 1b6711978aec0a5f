package testutil

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

// FloatTolerance is the default tolerance for comparing derived metrics.
const FloatTolerance = 1e-9

// AssertMetricsNear checks that every expected metric is present in actual
// and within FloatTolerance of its expected value. Extra metrics in actual
// are ignored.
func AssertMetricsNear(t *testing.T, expected, actual map[string]float64) bool {
	t.Helper()

	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)

	ok := true
	for _, name := range names {
		got, present := actual[name]
		if !assert.True(t, present, "metric %q missing", name) {
			ok = false
			continue
		}
		ok = assert.InDelta(t, expected[name], got, FloatTolerance, "metric %q", name) && ok
	}
	return ok
}
