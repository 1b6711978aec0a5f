package calltree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hpc-analysis/pkg/errors"
)

func TestFilterByPath(t *testing.T) {
	table := loadTable(t, nil)

	tests := []struct {
		name  string
		query PathQuery
		want  []int64
	}{
		{
			name:  "empty query keeps everything",
			query: PathQuery{},
			want:  []int64{RootID, 2, 4, 5, 6, 7, 8},
		},
		{
			name:  "prefix by label",
			query: PathQuery{Prefix: []PathPattern{Name("main.2")}},
			want:  []int64{2, 4, 5, 6, 7},
		},
		{
			name:  "prefix by ids",
			query: PathQuery{Prefix: []PathPattern{ID(2), ID(4)}},
			want:  []int64{4, 5, 6},
		},
		{
			name:  "suffix by pattern",
			query: PathQuery{Suffix: []PathPattern{MustPattern(`<statement \d+>`)}},
			want:  []int64{6, 7},
		},
		{
			name:  "pattern must match whole label",
			query: PathQuery{Prefix: []PathPattern{MustPattern(`main`)}},
			want:  []int64{},
		},
		{
			name: "prefix and suffix",
			query: PathQuery{
				Prefix: []PathPattern{MustPattern(`main\.\d+`)},
				Suffix: []PathPattern{MustPattern(`<loop .*>`), MustPattern(`<statement .*>`)},
			},
			want: []int64{6},
		},
		{
			name:  "longer prefix than any path",
			query: PathQuery{Prefix: []PathPattern{ID(2), ID(4), ID(5), ID(6), ID(99)}},
			want:  []int64{},
		},
		{
			name:  "empty fragments are ignored",
			query: PathQuery{Fragments: [][]PathPattern{{}}},
			want:  []int64{RootID, 2, 4, 5, 6, 7, 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filtered, err := table.FilterByPath(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(filtered))
		})
	}
}

func TestFilterByPath_FragmentsUnsupported(t *testing.T) {
	table := loadTable(t, nil)

	_, err := table.FilterByPath(PathQuery{Fragments: [][]PathPattern{{Name("x")}}})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnsupportedQuery(err))
	assert.Equal(t, apperrors.CodeUnsupportedQuery, apperrors.GetErrorCode(err))
}

func TestFilterByDepth(t *testing.T) {
	table := loadTable(t, nil)

	assert.Equal(t, []int64{RootID, 2, 8}, ids(table.FilterByDepth(nil, Depth(1))))
	assert.Equal(t, []int64{5, 6}, ids(table.FilterByDepth(Depth(3), nil)))
	assert.Equal(t, []int64{4, 7}, ids(table.FilterByDepth(Depth(2), Depth(2))))
	assert.Equal(t, []int64{4, 7}, ids(table.AtDepth(2)))
	assert.Equal(t, table.Len(), table.FilterByDepth(nil, nil).Len())
	assert.Equal(t, 0, table.FilterByDepth(Depth(3), Depth(2)).Len())
}

func TestFilters_Commute(t *testing.T) {
	table := loadTable(t, nil)
	query := PathQuery{Prefix: []PathPattern{Name("main.2")}}

	for depth := 0; depth <= 4; depth++ {
		byPath, err := table.FilterByPath(query)
		require.NoError(t, err)
		pathThenDepth := byPath.AtDepth(depth)

		depthThenPath, err := table.AtDepth(depth).FilterByPath(query)
		require.NoError(t, err)

		assert.Equal(t, ids(pathThenDepth), ids(depthThenPath), "depth %d", depth)
	}
}

func TestFilters_DoNotMutateSource(t *testing.T) {
	table := loadTable(t, nil)
	before := ids(table)

	filtered := table.AtDepth(1)
	_, ok := filtered.Lookup(4)
	assert.False(t, ok)
	_, ok = filtered.ByPath([]int64{2, 4})
	assert.False(t, ok)

	n, ok := filtered.Lookup(2)
	require.True(t, ok)
	orig, _ := table.Lookup(2)
	assert.Same(t, orig, n)

	assert.Equal(t, before, ids(table))
	assert.Equal(t, table.Columns(), filtered.Columns())
	assert.NotNil(t, filtered.Root())
}

func TestSubtree(t *testing.T) {
	table := loadTable(t, nil)

	assert.Equal(t, []int64{4, 5, 6}, ids(table.Subtree([]int64{2, 4})))
	assert.Equal(t, table.Len(), table.Subtree(nil).Len())
}

func TestParsePathPattern(t *testing.T) {
	p, err := ParsePathPattern("#42")
	require.NoError(t, err)
	assert.True(t, p.Match(42, "anything"))
	assert.Equal(t, "#42", p.String())

	p, err = ParsePathPattern("~main\\..*")
	require.NoError(t, err)
	assert.True(t, p.Match(1, "main.2"))
	assert.False(t, p.Match(1, "xmain.2"))

	p, err = ParsePathPattern("main.2")
	require.NoError(t, err)
	assert.True(t, p.Match(7, "main.2"))
	assert.False(t, p.Match(7, "main.3"))

	_, err = ParsePathPattern("#abc")
	assert.Error(t, err)

	_, err = ParsePathPattern("~(")
	assert.Error(t, err)

	patterns, err := ParsePathPatterns([]string{"#2", "~hy_.*"})
	require.NoError(t, err)
	assert.Len(t, patterns, 2)
}
