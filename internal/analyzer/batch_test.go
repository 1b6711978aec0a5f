package analyzer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-analysis/internal/testutil"
	apperrors "github.com/hpc-analysis/pkg/errors"
)

func TestAnalyzeAll(t *testing.T) {
	path := testutil.GetTestDataPath(t, testutil.ExperimentFixture)
	reqs := []*AnalysisRequest{
		{RunUUID: "a", Input: path},
		{RunUUID: "b", Input: path},
		{RunUUID: "c", Input: path},
	}

	results, err := AnalyzeAll(context.Background(), NewHPCToolkitAnalyzer(nil), reqs, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Same(t, reqs[i], r.Request)
		assert.Equal(t, reqs[i].RunUUID, r.Response.RunUUID)
		assert.Equal(t, 7, r.Response.Table.Len())
	}
}

func TestAnalyzeAll_PartialFailure(t *testing.T) {
	path := testutil.GetTestDataPath(t, testutil.ExperimentFixture)
	missing := filepath.Join(t.TempDir(), "missing.xml")
	reqs := []*AnalysisRequest{
		{Input: path},
		{Input: missing},
	}

	results, err := AnalyzeAll(context.Background(), NewHPCToolkitAnalyzer(nil), reqs, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), missing)
	assert.True(t, apperrors.IsNotFound(err))

	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Response)
	assert.Error(t, results[1].Err)
}
