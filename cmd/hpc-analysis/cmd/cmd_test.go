package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-analysis/internal/testutil"
	"github.com/hpc-analysis/pkg/compression"
)

// execute runs the root command with args after resetting every flag, so
// values from a previous test do not leak in.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// writeConfig points the database at a temporary sqlite file and quiets
// the logger.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := "database:\n  type: sqlite\n  path: " + filepath.Join(dir, "runs.db") +
		"\nstorage:\n  type: local\n  local_path: " + filepath.Join(dir, "storage") +
		"\nlog:\n  level: error\n"
	return testutil.WriteFile(t, dir, "config.yaml", []byte(content))
}

func fixture(t *testing.T) string {
	return testutil.GetTestDataPath(t, testutil.ExperimentFixture)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version", "--config", writeConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "version dev")
	assert.Contains(t, out, "OS/Arch:")
}

func TestQuery(t *testing.T) {
	cfgPath := writeConfig(t)

	t.Run("max depth", func(t *testing.T) {
		out, err := execute(t, "query", fixture(t), "--config", cfgPath, "--max-depth", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "main.2")
		assert.Contains(t, out, "__libc_init.8")
		assert.NotContains(t, out, "hy_ppm_sweep.4")
		assert.Contains(t, out, "ratio of total")
	})

	t.Run("path patterns", func(t *testing.T) {
		out, err := execute(t, "query", fixture(t), "--config", cfgPath,
			"--prefix", "#2", "--suffix", "~^<statement", "--view", "basic_e")
		require.NoError(t, err)
		assert.Contains(t, out, "<statement 23>")
		assert.Contains(t, out, "<statement 8>")
		assert.NotContains(t, out, "__libc_init.8")
		assert.Contains(t, out, testutil.MeanE)
	})

	t.Run("explicit columns", func(t *testing.T) {
		out, err := execute(t, "query", fixture(t), "--config", cfgPath,
			"--min-depth", "3", "--columns", testutil.Count)
		require.NoError(t, err)
		assert.Contains(t, out, "<loop 22.5>")
		assert.NotContains(t, out, "main.2")
	})

	t.Run("no match", func(t *testing.T) {
		out, err := execute(t, "query", fixture(t), "--config", cfgPath, "--min-depth", "9")
		require.NoError(t, err)
		assert.Contains(t, out, "no nodes match")
	})

	t.Run("unknown view", func(t *testing.T) {
		_, err := execute(t, "query", fixture(t), "--config", cfgPath, "--view", "wide")
		assert.Error(t, err)
	})
}

func TestHotPath(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := execute(t, "hotpath", fixture(t), "--config", cfgPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[4], "<statement 23>")

	out, err = execute(t, "hotpath", fixture(t), "--config", cfgPath, "--threshold", "0.3")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)

	out, err = execute(t, "hotpath", fixture(t), "--config", cfgPath, "--start", "2,4")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "hy_ppm_sweep.4")

	_, err = execute(t, "hotpath", fixture(t), "--config", cfgPath, "--threshold", "1.5")
	assert.Error(t, err)

	out, err = execute(t, "hotpath", fixture(t), "--config", cfgPath, "--max-depth", "0")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "<root>")
}

func TestHotPath_ZeroThresholdOverridesConfig(t *testing.T) {
	cfgPath := writeConfig(t)
	content, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	content = append(content, "analysis:\n  hot_path_threshold: 0.3\n"...)
	require.NoError(t, os.WriteFile(cfgPath, content, 0644))

	out, err := execute(t, "hotpath", fixture(t), "--config", cfgPath)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)

	out, err = execute(t, "hotpath", fixture(t), "--config", cfgPath, "--threshold", "0")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 5)
}

func TestExport(t *testing.T) {
	cfgPath := writeConfig(t)
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "sedov.csv")
	_, err := execute(t, "export", fixture(t), "--config", cfgPath, "-o", csvPath)
	require.NoError(t, err)
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "id,depth,type,call_path"))

	gzPath := filepath.Join(dir, "sedov.json.gz")
	_, err = execute(t, "export", fixture(t), "--config", cfgPath, "-o", gzPath, "--level", "best", "--upload", "tables/sedov.json.gz")
	require.NoError(t, err)
	data, err = os.ReadFile(gzPath)
	require.NoError(t, err)
	assert.Equal(t, compression.TypeGzip, compression.DetectType(data))
	assert.FileExists(t, filepath.Join(filepath.Dir(cfgPath), "storage", "tables", "sedov.json.gz"))

	_, err = execute(t, "export", fixture(t), "--config", cfgPath, "-o", filepath.Join(dir, "sedov.txt"))
	assert.Error(t, err)

	_, err = execute(t, "export", fixture(t), "--config", cfgPath, "-o", csvPath, "--level", "max")
	assert.Error(t, err)
}

func TestAnalyzeSaveAndRuns(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := execute(t, "analyze", fixture(t), "--config", cfgPath, "--save", "--json")
	require.NoError(t, err)

	var summaries []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "sedov", summaries[0]["profile"])
	assert.EqualValues(t, 7, summaries[0]["nodes"])
	runUUID, ok := summaries[0]["run_uuid"].(string)
	require.True(t, ok)

	out, err = execute(t, "runs", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, runUUID)
	assert.Contains(t, out, "sedov")

	out, err = execute(t, "runs", "show", runUUID, "--config", cfgPath, "--max-depth", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "3 of 7 nodes")
	assert.Contains(t, out, "main.2")
	assert.NotContains(t, out, "hy_ppm_sweep.4")

	out, err = execute(t, "runs", "delete", runUUID, "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted "+runUUID)

	_, err = execute(t, "runs", "show", runUUID, "--config", cfgPath)
	assert.Error(t, err)

	out, err = execute(t, "runs", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "no stored runs")
}

func TestAnalyzeView(t *testing.T) {
	cfgPath := writeConfig(t)
	outPath := filepath.Join(t.TempDir(), "sedov.yaml")

	out, err := execute(t, "analyze", fixture(t), "--config", cfgPath, "--view", "basic_i", "--max-depth", "2", "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, testutil.StdDevI)
	assert.Contains(t, out, "<statement 8>")
	assert.NotContains(t, out, "<loop 22.5>")
	assert.FileExists(t, outPath)
}

func TestAnalyzeErrors(t *testing.T) {
	cfgPath := writeConfig(t)

	_, err := execute(t, "analyze", fixture(t), fixture(t), "--config", cfgPath, "-o", "out.json")
	assert.Error(t, err)

	_, err = execute(t, "analyze", filepath.Join(t.TempDir(), "missing.xml"), "--config", cfgPath)
	assert.Error(t, err)

	_, err = execute(t, "analyze", fixture(t), "--config", cfgPath, "--start", "main")
	assert.Error(t, err)
}

func TestParseCallPath(t *testing.T) {
	path, err := parseCallPath([]string{"2,#4", " 5 "})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 5}, path)

	path, err = parseCallPath(nil)
	require.NoError(t, err)
	assert.Nil(t, path)

	_, err = parseCallPath([]string{"2,x"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    compression.Level
		wantErr bool
	}{
		{"", compression.LevelDefault, false},
		{"fastest", compression.LevelFastest, false},
		{"BEST", compression.LevelBest, false},
		{"9", compression.LevelBest, false},
		{"max", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, ":8080", displayAddr(":8080"))
	assert.Equal(t, ":9090", displayAddr("0.0.0.0:9090"))
	assert.Equal(t, ":80", displayAddr("80"))

	assert.Equal(t, "<loop 22.5>", lastLabel("main.2 > hy_ppm_sweep.4 > <loop 22.5>"))
	assert.Equal(t, "<root>", lastLabel("<root>"))
}
