package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-analysis/internal/analyzer"
	"github.com/hpc-analysis/internal/calltree"
	"github.com/hpc-analysis/internal/testutil"
	"github.com/hpc-analysis/pkg/config"
	apperrors "github.com/hpc-analysis/pkg/errors"
)

func setupRepositories(t *testing.T) *Repositories {
	t.Helper()
	repos, err := Open(&config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "db", "runs.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

func analyzeFixture(t *testing.T, runUUID string) *analyzer.AnalysisResponse {
	t.Helper()
	resp, err := analyzer.NewHPCToolkitAnalyzer(nil).AnalyzeFromReader(context.Background(),
		&analyzer.AnalysisRequest{RunUUID: runUUID, Input: "experiment.xml"},
		testutil.LoadFixtureReader(t, testutil.ExperimentFixture))
	require.NoError(t, err)
	return resp
}

func saveFixture(t *testing.T, repo RunRepository, runUUID string) {
	t.Helper()
	run, rows, err := NewRecord(analyzeFixture(t, runUUID))
	require.NoError(t, err)
	require.NoError(t, repo.SaveRun(context.Background(), run, rows))
}

func TestNewRecord(t *testing.T) {
	resp := analyzeFixture(t, "run-1")

	run, rows, err := NewRecord(resp)
	require.NoError(t, err)

	assert.Equal(t, "run-1", run.RunUUID)
	assert.Equal(t, "sedov", run.Name)
	assert.Equal(t, "experiment.xml", run.Input)
	assert.Equal(t, 7, run.Nodes)
	assert.InDelta(t, 100, run.Total, testutil.FloatTolerance)

	hot, err := run.HotPathLabels()
	require.NoError(t, err)
	assert.Equal(t, []string{"<root>", "main.2", "hy_ppm_sweep.4", "<loop 22.5>", "<statement 23>"}, hot)

	require.Len(t, rows, 7)
	assert.Equal(t, calltree.RootID, rows[0].NodeID)
	assert.JSONEq(t, "[]", string(rows[0].CallPath))

	solve := rows[2]
	assert.Equal(t, int64(4), solve.NodeID)
	assert.Equal(t, 2, solve.Position)
	assert.Equal(t, "procedure-frame", solve.Type)
	assert.Equal(t, "hy_ppm_sweep", solve.Procedure)

	values, err := solve.ColumnValues()
	require.NoError(t, err)
	assert.InDelta(t, 40, values[testutil.MeanI], testutil.FloatTolerance)
	assert.InDelta(t, 40.0/60.0, values[calltree.RatioColumn(testutil.MeanI, calltree.RatioOfParent)], testutil.FloatTolerance)
}

func TestGormRunRepository_SaveAndGet(t *testing.T) {
	repos := setupRepositories(t)
	ctx := context.Background()

	saveFixture(t, repos.Run, "run-1")

	run, err := repos.Run.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "sedov", run.Name)
	assert.NotZero(t, run.ID)
	assert.False(t, run.CreatedAt.IsZero())

	columns, err := run.ColumnNames()
	require.NoError(t, err)
	assert.Contains(t, columns, testutil.MeanI)

	rows, err := repos.Run.GetRows(ctx, "run-1", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 7)
	for i, row := range rows {
		assert.Equal(t, i, row.Position)
	}
	assert.Equal(t, "main.2 > hy_ppm_sweep.4 > <loop 22.5>", rows[3].Path)
}

func TestGormRunRepository_SaveReplaces(t *testing.T) {
	repos := setupRepositories(t)
	ctx := context.Background()

	saveFixture(t, repos.Run, "run-1")
	saveFixture(t, repos.Run, "run-1")

	runs, err := repos.Run.ListRuns(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	rows, err := repos.Run.GetRows(ctx, "run-1", nil, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 7)
}

func TestGormRunRepository_SaveRequiresUUID(t *testing.T) {
	repos := setupRepositories(t)

	err := repos.Run.SaveRun(context.Background(), &ProfileRun{}, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
}

func TestGormRunRepository_GetRowsByDepth(t *testing.T) {
	repos := setupRepositories(t)
	ctx := context.Background()
	saveFixture(t, repos.Run, "run-1")

	rows, err := repos.Run.GetRows(ctx, "run-1", calltree.Depth(1), calltree.Depth(1))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].NodeID)
	assert.Equal(t, int64(8), rows[1].NodeID)

	rows, err = repos.Run.GetRows(ctx, "run-1", calltree.Depth(3), nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = repos.Run.GetRows(ctx, "missing", nil, nil)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGormRunRepository_ListRuns(t *testing.T) {
	repos := setupRepositories(t)
	ctx := context.Background()

	runs, err := repos.Run.ListRuns(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	saveFixture(t, repos.Run, "run-1")
	saveFixture(t, repos.Run, "run-2")
	saveFixture(t, repos.Run, "run-3")

	runs, err = repos.Run.ListRuns(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].RunUUID)

	runs, err = repos.Run.ListRuns(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunUUID)
}

func TestGormRunRepository_DeleteRun(t *testing.T) {
	repos := setupRepositories(t)
	ctx := context.Background()
	saveFixture(t, repos.Run, "run-1")

	require.NoError(t, repos.Run.DeleteRun(ctx, "run-1"))

	_, err := repos.Run.GetRun(ctx, "run-1")
	assert.True(t, apperrors.IsNotFound(err))

	var count int64
	require.NoError(t, repos.GormDB().Model(&ProfileRow{}).Count(&count).Error)
	assert.Zero(t, count)

	err = repos.Run.DeleteRun(ctx, "run-1")
	assert.True(t, apperrors.IsNotFound(err))
}
