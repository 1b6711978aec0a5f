package calltree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-analysis/internal/testutil"
	apperrors "github.com/hpc-analysis/pkg/errors"
)

func TestRatios_ThreeLevelTree(t *testing.T) {
	exp := testutil.NewExperiment(meanMetric(), map[int]float64{0: 100},
		testutil.PF(1, 10, map[int]float64{0: 60},
			testutil.PF(2, 11, map[int]float64{0: 40})))

	table, err := New(exp, nil)
	require.NoError(t, err)

	a, _ := table.Lookup(1)
	b, _ := table.Lookup(2)
	assert.InDelta(t, 0.6, a.Ratios[testutil.MeanI].OfTotal, testutil.FloatTolerance)
	assert.InDelta(t, 0.4, b.Ratios[testutil.MeanI].OfTotal, testutil.FloatTolerance)
	assert.InDelta(t, 40.0/60.0, b.Ratios[testutil.MeanI].OfParent, testutil.FloatTolerance)
}

func TestRatios_Fixture(t *testing.T) {
	table := loadTable(t, nil)
	root := table.Root()

	want := map[int64]Ratio{
		RootID: {OfTotal: 1, OfParent: 1},
		2:      {OfTotal: 0.6, OfParent: 0.6},
		4:      {OfTotal: 0.4, OfParent: 40.0 / 60.0},
		5:      {OfTotal: 0.2, OfParent: 0.5},
		6:      {OfTotal: 0.2, OfParent: 1},
		7:      {OfTotal: 0.1, OfParent: 10.0 / 60.0},
		8:      {OfTotal: 0.02, OfParent: 0.02},
	}

	for id, ratio := range want {
		n, ok := table.Lookup(id)
		require.True(t, ok)
		got := n.Ratios[testutil.MeanI]
		assert.InDelta(t, ratio.OfTotal, got.OfTotal, testutil.FloatTolerance, "node %d", id)
		assert.InDelta(t, ratio.OfParent, got.OfParent, testutil.FloatTolerance, "node %d", id)
	}

	// ratio of total is value / root value for every node.
	for _, n := range table.Nodes() {
		expected := n.Metrics[testutil.MeanI] / root.Metrics[testutil.MeanI]
		assert.InDelta(t, expected, n.Ratios[testutil.MeanI].OfTotal, testutil.FloatTolerance)
	}
	assert.Equal(t, 1.0, root.Ratios[testutil.MeanI].OfTotal)

	v, ok := root.Column(RatioColumn(testutil.MeanI, RatioOfTotal))
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}

// The parent climb skips ancestors whose value is smaller than the node's.
// This masks inconsistent input instead of reporting it and is kept as a
// known leniency.
func TestRatios_ClimbsPastSmallerAncestors(t *testing.T) {
	exp := testutil.NewExperiment(meanMetric(), map[int]float64{0: 100},
		testutil.PF(1, 10, map[int]float64{0: 30},
			testutil.PF(2, 11, map[int]float64{0: 50}),
			testutil.PF(3, 12, map[int]float64{0: 20})))

	table, err := New(exp, nil)
	require.NoError(t, err)

	b, _ := table.Lookup(2)
	assert.InDelta(t, 0.5, b.Ratios[testutil.MeanI].OfParent, testutil.FloatTolerance)

	// The memoized value of the smaller ancestor still serves siblings it
	// is large enough for.
	c, _ := table.Lookup(3)
	assert.InDelta(t, 20.0/30.0, c.Ratios[testutil.MeanI].OfParent, testutil.FloatTolerance)
}

func TestRatios_NoQualifyingAncestor(t *testing.T) {
	exp := testutil.NewExperiment(meanMetric(), map[int]float64{0: 10},
		testutil.PF(1, 10, map[int]float64{0: 5},
			testutil.PF(2, 11, map[int]float64{0: 20})))

	_, err := New(exp, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsAggregationConsistency(err))

	var aggErr *apperrors.AggregationConsistencyError
	require.True(t, errors.As(err, &aggErr))
	assert.Equal(t, testutil.MeanI, aggErr.Metric)
	assert.Equal(t, []int64{1, 2}, aggErr.CallPath)
	assert.Equal(t, 20.0, aggErr.Value)
}

func TestRatios_RootWithoutBaseMetric(t *testing.T) {
	exp := testutil.NewExperiment(meanMetric(), nil,
		testutil.PF(1, 10, map[int]float64{0: 5}))

	_, err := New(exp, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsAggregationConsistency(err))
}

func TestRatios_ZeroTotals(t *testing.T) {
	exp := testutil.NewExperiment(meanMetric(), map[int]float64{0: 0},
		testutil.PF(1, 10, map[int]float64{0: 0}))

	table, err := New(exp, nil)
	require.NoError(t, err)

	n, _ := table.Lookup(1)
	assert.Equal(t, Ratio{OfTotal: 0, OfParent: 0}, n.Ratios[testutil.MeanI])
	assert.Equal(t, Ratio{OfTotal: 1, OfParent: 1}, table.Root().Ratios[testutil.MeanI])
}

func TestRatios_NodesWithoutMetric(t *testing.T) {
	exp := testutil.NewExperiment(meanMetric(), map[int]float64{0: 10},
		testutil.PF(1, 10, nil,
			testutil.PF(2, 11, map[int]float64{0: 4})))

	table, err := New(exp, nil)
	require.NoError(t, err)

	a, _ := table.Lookup(1)
	assert.NotContains(t, a.Ratios, testutil.MeanI)

	b, _ := table.Lookup(2)
	assert.InDelta(t, 0.4, b.Ratios[testutil.MeanI].OfParent, testutil.FloatTolerance)
}

func TestRatios_MultipleBases(t *testing.T) {
	table, err := NewBuilder(nil).Build(loadExperiment(t))
	require.NoError(t, err)

	require.NoError(t, NewRatioCalculator(testutil.MeanI, testutil.SumI).Compute(table))
	assert.Equal(t, []string{testutil.MeanI, testutil.SumI}, table.RatioBases())

	main, _ := table.Lookup(2)
	assert.InDelta(t, 0.6, main.Ratios[testutil.SumI].OfTotal, testutil.FloatTolerance)

	columns := table.Columns()
	assert.Equal(t, testutil.SumI, columns[0])
	assert.Equal(t, RatioColumn(testutil.SumI, RatioOfTotal), columns[1])
	assert.Equal(t, RatioColumn(testutil.SumI, RatioOfParent), columns[2])
}

func TestParseRatioColumn(t *testing.T) {
	base, kind, ok := ParseRatioColumn("CPUTIME (usec):Mean (I) ratio of parent")
	require.True(t, ok)
	assert.Equal(t, "CPUTIME (usec):Mean (I)", base)
	assert.Equal(t, RatioOfParent, kind)

	_, _, ok = ParseRatioColumn("CPUTIME (usec):Mean (I)")
	assert.False(t, ok)
}
