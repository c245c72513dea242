package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/strata/pkg/json"
)

// strata runs the CLI quietly and returns its stdout and stderr.
func strata(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--log-level", "error"}, args...)
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func mustStrata(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := strata(t, args...)
	require.NoError(t, err, stderr)
	return out
}

// sample writes the generated table with 100 rows in groups of 40.
func sample(t *testing.T, extra ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.rgf")
	args := append([]string{"gen", path, "--rows", "100", "--row-group-size", "40"}, extra...)
	out := mustStrata(t, args...)
	assert.Equal(t, "wrote 100 rows in 3 row groups to "+path+"\n", out)
	return path
}

const exampleFilter = "id > 20 and amount < 900 and flag = true and label endswith '0'"

var names = "--names=id,amount,flag,label,half,scaled"

func TestCount(t *testing.T) {
	path := sample(t, "--compression", "zstd")
	assert.Equal(t, "100\n", mustStrata(t, "count", path))
	assert.Equal(t, "2\n", mustStrata(t, "count", path, names, "-f", exampleFilter))
	assert.Equal(t, "2\n", mustStrata(t, "count", path, "-f", `#0 > 20 and #1 < 900 and #2 = true and #3 endswith "0"`))
	assert.Equal(t, "15\n", mustStrata(t, "count", path, "-f", "c1 is null"))
}

func TestCatJSONLines(t *testing.T) {
	path := sample(t)
	out := mustStrata(t, "cat", path, names, "-f", exampleFilter)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"id":30,"amount":300,"flag":true,"label":"cx 30","half":15,"scaled":45}`, lines[0])

	var row map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &row))
	assert.Equal(t, float64(60), row["id"])
	assert.Equal(t, "cx 60", row["label"])
}

func TestCatJSONArray(t *testing.T) {
	path := sample(t, "--compression", "lz4hc")
	out := mustStrata(t, "cat", path, "-o", "json")
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 100)
	assert.Nil(t, rows[0]["c1"])
	assert.Equal(t, float64(99), rows[99]["c0"])

	out = mustStrata(t, "cat", path, "-o", "json", "-f", "false")
	assert.Equal(t, "[]\n", out)
}

func TestHeadText(t *testing.T) {
	path := sample(t)
	out := mustStrata(t, "head", path, names, "-n", "3", "-o", "text")
	assert.Equal(t, "id\tamount\tflag\tlabel\thalf\tscaled\n"+
		"0\tNULL\ttrue\tcx 0\t0\t0\n"+
		"1\t10\tfalse\tcx 1\t0.5\t1.5\n"+
		"2\t20\tfalse\tcx 2\t1\t3\n", out)

	out = mustStrata(t, "head", path, "-n", "1", "-f", "c3 = 'CX 41' nocase")
	assert.Equal(t, `{"c0":41,"c1":410,"c2":false,"c3":"cx 41","c4":20.5,"c5":61.5}`+"\n", out)
}

func TestDump(t *testing.T) {
	path := sample(t, "--compression", "none")
	out := mustStrata(t, "dump", path)

	var info fileInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, uint64(100), info.Rows)
	require.Len(t, info.Columns, 6)
	assert.Equal(t, "none", info.Columns[0].Compression)
	assert.Equal(t, "i32", info.Columns[0].Type)
	require.Len(t, info.RowGroups, 3)
	for i, want := range []uint64{40, 40, 20} {
		assert.Equal(t, want, info.RowGroups[i].Rows)
		assert.Len(t, info.RowGroups[i].Chunks, 12)
	}
	first := info.RowGroups[0].Chunks[0]
	assert.Equal(t, "c0", first.Column)
	assert.Equal(t, "values", first.Part)
	assert.Equal(t, float64(0), first.Min)
	assert.Equal(t, float64(39), first.Max)
	assert.Equal(t, "nulls", info.RowGroups[0].Chunks[1].Part)
}

func TestAnalyze(t *testing.T) {
	path := sample(t)
	out := mustStrata(t, "analyze", path, "-o", "json", "-f", "c0 > 50")

	var res analysis
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "gt(#0, 50)", res.Filter)
	assert.Equal(t, uint64(49), res.Matched)
	assert.Equal(t, 1, res.Pruned)
	require.Len(t, res.Groups, 3)
	assert.Equal(t, "none", res.Groups[0].Verdict)
	assert.Equal(t, "unknown", res.Groups[1].Verdict)
	assert.Equal(t, "all", res.Groups[2].Verdict)
	assert.Equal(t, uint64(20), res.Groups[2].Matched)

	out = mustStrata(t, "analyze", path, "-f", "c0 > 50")
	assert.Contains(t, out, "VERDICT")
	assert.Contains(t, out, "1 pruned")
}

func TestExportArrow(t *testing.T) {
	path := sample(t)
	dst := filepath.Join(t.TempDir(), "sample.arrow")
	out := mustStrata(t, "export", path, dst, names)
	assert.Equal(t, "exported 100 rows to "+dst+"\n", out)

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "amount", r.Schema().Field(1).Name)
	assert.Equal(t, 3, r.NumRecords())
	var rows int64
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		require.NoError(t, err)
		rows += rec.NumRows()
	}
	assert.Equal(t, int64(100), rows)

	_, _, err = strata(t, "export", path, dst, "--format", "parquet")
	assert.Error(t, err)
}

func TestConfigSources(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "strata.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("writer:\n  compression: lz4hc\n  row_group_size: 10\n"), 0o600))

	out := mustStrata(t, "--config", cfgPath, "config")
	assert.Contains(t, out, "compression: lz4hc")
	assert.Contains(t, out, "row_group_size: 10")
	assert.Contains(t, out, "level: error")

	// Environment overrides the file.
	t.Setenv("STRATA_WRITER_COMPRESSION", "none")
	path := filepath.Join(t.TempDir(), "env.rgf")
	mustStrata(t, "--config", cfgPath, "gen", path, "--rows", "25")
	out = mustStrata(t, "dump", path)
	var info fileInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "none", info.Columns[3].Compression)
	assert.Len(t, info.RowGroups, 3)

	// Flags override the environment.
	mustStrata(t, "gen", path, "--rows", "25", "--compression", "zstd")
	out = mustStrata(t, "dump", path)
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "zstd", info.Columns[3].Compression)
	assert.Len(t, info.RowGroups, 1)
}

func TestStatsAndTracing(t *testing.T) {
	path := sample(t)
	_, stderr, err := strata(t, "--stats", "--trace", "count", path, "-f", "c0 > 50")
	require.NoError(t, err)
	assert.Contains(t, stderr, "row groups:")
	assert.Contains(t, stderr, "resources:")
	assert.Contains(t, stderr, "strata.count")
	assert.Contains(t, stderr, "rgfile.open")
}

func TestErrors(t *testing.T) {
	path := sample(t)
	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"count", filepath.Join(t.TempDir(), "missing.rgf")}},
		{"bad filter", []string{"cat", path, "-f", "c0 >"}},
		{"unknown column", []string{"count", path, "-f", "c9 = 1"}},
		{"names mismatch", []string{"cat", path, "--names", "a,b"}},
		{"bad format", []string{"cat", path, "-o", "xml"}},
		{"bad head limit", []string{"head", path, "-n", "0"}},
		{"bad compression", []string{"gen", filepath.Join(t.TempDir(), "x.rgf"), "--compression", "brotli"}},
		{"bad config", []string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "version"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := strata(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestExitCode(t *testing.T) {
	path := sample(t)
	garbage := filepath.Join(t.TempDir(), "garbage.rgf")
	require.NoError(t, os.WriteFile(garbage, bytes.Repeat([]byte{0xAB}, 100), 0o600))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"bad filter", []string{"cat", path, "-f", "c0 >"}, 2},
		{"bad head limit", []string{"head", path, "-n", "0"}, 2},
		{"bad config", []string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "version"}, 2},
		{"corrupt file", []string{"count", garbage}, 3},
		{"missing file", []string{"count", filepath.Join(t.TempDir(), "missing.rgf")}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := strata(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.want, exitCode(err))
		})
	}
}

func TestVersion(t *testing.T) {
	out := mustStrata(t, "version")
	assert.True(t, strings.HasPrefix(out, "Strata v"+version))
	assert.Contains(t, out, "Vectorized kernels:")
}
