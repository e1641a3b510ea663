package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chambridge/sensor-data-exporter/internal/db/testutils"
	"github.com/chambridge/sensor-data-exporter/internal/fetch"
	"github.com/chambridge/sensor-data-exporter/internal/processor"
	"github.com/chambridge/sensor-data-exporter/internal/table"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCredentials(t *testing.T) string {
	t.Helper()
	creds := testutils.SetupTestDB(t)
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	content := fmt.Sprintf("db_username: %s\ndb_password: %s\nhost: %s\nport: %d\ndb: %q\n",
		creds.Username, creds.Password, creds.Host, creds.Port, creds.Database)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun(t *testing.T) {
	credsPath := writeCredentials(t)

	tests := []struct {
		name      string
		args      []string
		wantCode  int
		wantFiles int
	}{
		{
			name:      "all formats",
			args:      []string{"-projects", "siteA,siteB", "-nodes", "N1,N3", "-start", "2024-01-01", "-stop", "2024-01-02"},
			wantCode:  exitOK,
			wantFiles: 3,
		},
		{
			name:      "single format",
			args:      []string{"-projects", "siteA", "-nodes", "N1", "-start", "2024-01-01", "-stop", "2024-01-02", "-formats", "csv"},
			wantCode:  exitOK,
			wantFiles: 1,
		},
		{
			name:      "continue past a failing project",
			args:      []string{"-projects", "siteA,siteMissing", "-nodes", "N1", "-start", "2024-01-01", "-stop", "2024-01-02", "-policy", "continue", "-formats", "csv"},
			wantCode:  exitPartial,
			wantFiles: 1,
		},
		{
			name:     "fail fast on a failing project",
			args:     []string{"-projects", "siteA,siteMissing", "-nodes", "N1", "-start", "2024-01-01", "-stop", "2024-01-02"},
			wantCode: exitFailed,
		},
		{
			name:     "missing nodes",
			args:     []string{"-projects", "siteA", "-start", "2024-01-01", "-stop", "2024-01-02"},
			wantCode: exitFailed,
		},
		{
			name:     "unknown format",
			args:     []string{"-projects", "siteA", "-nodes", "N1", "-start", "2024-01-01", "-stop", "2024-01-02", "-formats", "parquet"},
			wantCode: exitFailed,
		},
		{
			name:     "unknown flag",
			args:     []string{"-bogus"},
			wantCode: exitFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			outDir := filepath.Join(t.TempDir(), "out")
			args := append([]string{"-driver", "duckdb", "-credentials", credsPath, "-out", outDir}, tt.args...)

			// Act
			code := run(args)

			// Assert
			assert.Equal(t, tt.wantCode, code)
			entries, _ := os.ReadDir(outDir)
			assert.Len(t, entries, tt.wantFiles)
		})
	}
}

func TestRun_MissingCredentials(t *testing.T) {
	code := run([]string{
		"-driver", "duckdb",
		"-credentials", filepath.Join(t.TempDir(), "absent.yaml"),
		"-projects", "siteA", "-nodes", "N1", "-start", "2024-01-01", "-stop", "2024-01-02",
	})

	assert.Equal(t, exitFailed, code)
}

func TestBuildSpec(t *testing.T) {
	specPath := filepath.Join(t.TempDir(), "query.yaml")
	require.NoError(t, os.WriteFile(specPath, []byte(`projects: [siteB, siteA]
node_ids: [N1]
time_start: "2024-01-01"
time_stop: "2024-01-02 00:00:00"
`), 0o600))

	t.Run("from file", func(t *testing.T) {
		spec, err := buildSpec(specPath, "", "", "", "")

		require.NoError(t, err)
		assert.Equal(t, []string{"siteA", "siteB"}, spec.Projects)
		assert.Equal(t, []string{"N1"}, spec.NodeIDs)
		assert.Equal(t, testutils.WindowStart, spec.Start)
		assert.Equal(t, testutils.WindowStop, spec.Stop)
	})

	t.Run("flags override file", func(t *testing.T) {
		spec, err := buildSpec(specPath, "siteC", "N2, N3", "2024-01-01T06:00:00Z", "")

		require.NoError(t, err)
		assert.Equal(t, []string{"siteC"}, spec.Projects)
		assert.Equal(t, []string{"N2", "N3"}, spec.NodeIDs)
		assert.Equal(t, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC), spec.Start)
		assert.Equal(t, testutils.WindowStop, spec.Stop)
	})

	t.Run("bad time", func(t *testing.T) {
		_, err := buildSpec("", "siteA", "N1", "soon", "2024-01-02")

		assert.ErrorContains(t, err, "-start")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := buildSpec(filepath.Join(t.TempDir(), "nope.yaml"), "", "", "", "")

		assert.Error(t, err)
	})
}

func TestPrintReport(t *testing.T) {
	// Arrange
	data := table.New(table.ColumnTime, table.ColumnValue, table.ColumnDisplayName)
	for i := 0; i < 4; i++ {
		require.NoError(t, data.AddRow(testutils.WindowStart.Add(time.Duration(i)*time.Hour), float64(i), "N1"))
	}
	report := &processor.Report{
		RunID: uuid.New(),
		Result: &fetch.Result{
			Table: data,
			Timings: []fetch.ProjectTiming{
				{Project: "siteA", Elapsed: 12 * time.Millisecond, Rows: 4},
				{Project: "siteMissing", Elapsed: time.Millisecond, Err: fmt.Errorf("no such table")},
			},
		},
		Missing: []string{"N2"},
		Paths:   []string{"out/Data_20240101T000000000000.csv"},
	}
	var buf bytes.Buffer

	// Act
	err := printReport(&buf, report, 2)

	// Assert
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, report.RunID.String())
	assert.Regexp(t, `siteA\s+4 rows in 12ms`, out)
	assert.Contains(t, out, "siteMissing")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "... 4 rows x 3 columns")
	assert.Contains(t, out, "Missing nodes: N2")
	assert.Contains(t, out, "Wrote out/Data_20240101T000000000000.csv")
}
