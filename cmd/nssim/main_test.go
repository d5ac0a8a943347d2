package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/nstraffic/internal/engine"
	"github.com/cxd309/nstraffic/internal/report"
)

const runConfig = `simulation:
  road_size: 40
  num_fast_cars: 6
  num_slow_cars: 4
  ticks: 15
  seed: 5
logging:
  level: info
`

const sweepConfig = `name: test
base:
  road_size: 30
  ticks: 5
  seed: 2
densities: [0.2]
fast_ratios: [0.5]
max_speeds:
  - {slow: 3, fast: 5}
broken_cars: [false, true]
repetitions: 2
workers: 2
`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "", "version", "--json")
	require.NoError(t, err)

	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, version, v["version"])
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("stdout closed") }

func TestVersionReportsWriteError(t *testing.T) {
	for _, args := range [][]string{{"version", "--json"}, {"version"}} {
		root := newRootCmd()
		root.SetArgs(args)
		root.SetOut(failingWriter{})
		root.SetErr(&bytes.Buffer{})
		assert.Error(t, root.Execute(), "%v", args)
	}
}

func TestRunFromFile(t *testing.T) {
	path := writeFile(t, "ring.yaml", runConfig)

	out, err := execute(t, "", "run", path, "--json")
	require.NoError(t, err)

	var simLog engine.SimulationLog
	require.NoError(t, json.Unmarshal([]byte(out), &simLog))
	assert.Equal(t, "ring", simLog.SimulationID)
	assert.Equal(t, 15, simLog.Result.Ticks)
	assert.Len(t, simLog.Cars, 10)
}

func TestRunFromStdinWithOverrides(t *testing.T) {
	out, err := execute(t, runConfig, "run", "--ticks", "3", "--seed", "9")
	require.NoError(t, err)
	assert.Contains(t, out, "Simulation stdin")
	assert.Contains(t, out, "3 ticks, seed 9")
}

func TestRunRaw(t *testing.T) {
	input := `{"simulation_id":"raw","params":{"road_size":20,"num_fast_cars":2,"num_slow_cars":2,"ticks":4}}`
	out, err := execute(t, input, "run", "--raw")
	require.NoError(t, err)

	var simLog engine.SimulationLog
	require.NoError(t, json.Unmarshal([]byte(out), &simLog))
	assert.Equal(t, "raw", simLog.SimulationID)
	assert.Equal(t, 4, simLog.Result.Ticks)
}

func TestRunInvalidConfig(t *testing.T) {
	_, err := execute(t, "simulation:\n  road_size: 2\n  num_fast_cars: 10\n", "run")
	assert.Error(t, err)
}

func TestSweepWritesCSVAndDatabase(t *testing.T) {
	path := writeFile(t, "sweep.yaml", sweepConfig)
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out.csv")
	dbPath := filepath.Join(dir, "results.db")

	out, err := execute(t, "", "sweep", path, "--csv", csvPath, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Sweep 1")

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, report.Header, rows[0])

	store, err := report.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()
	sums, err := store.Summaries(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, 2, sums[0].Runs)
}

func TestSweepJSON(t *testing.T) {
	path := writeFile(t, "sweep.yaml", sweepConfig)
	out, err := execute(t, "", "sweep", path, "--json", "--repetitions", "1")
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	assert.Len(t, records, 2)
}

func TestTracePrintsEveryTick(t *testing.T) {
	path := writeFile(t, "ring.yaml", runConfig)
	jsonl := filepath.Join(t.TempDir(), "ticks.jsonl")

	out, err := execute(t, "", "trace", path, "--ticks", "3", "--jsonl", jsonl)
	require.NoError(t, err)

	var rows []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "|") {
			rows = append(rows, line)
		}
	}
	require.Len(t, rows, 8, "initial state plus three ticks, two lanes each")
	for _, row := range rows {
		assert.Len(t, row, 42)
	}

	data, err := os.ReadFile(jsonl)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 3)
}
