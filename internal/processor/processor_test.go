package processor

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chambridge/sensor-data-exporter/internal/db"
	"github.com/chambridge/sensor-data-exporter/internal/db/testutils"
	"github.com/chambridge/sensor-data-exporter/internal/export"
	"github.com/chambridge/sensor-data-exporter/internal/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var runTime = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func setupProcessor(t *testing.T, opts fetch.Options) (*Processor, string) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	conn, err := db.Open(context.Background(), db.DuckDB, testutils.SetupTestDB(t))
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	outDir := filepath.Join(t.TempDir(), "out")
	p := New(fetch.NewFetcher(db.NewRepository(conn), opts, logger), export.NewExporter(outDir, logger), logger)
	p.now = func() time.Time { return runTime }
	return p, outDir
}

func countCSVRows(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return len(records) - 1
}

func TestRunNodeFound(t *testing.T) {
	// Arrange
	p, outDir := setupProcessor(t, fetch.Options{})
	spec := fetch.Spec{
		Projects: []string{"siteA", "siteB"},
		NodeIDs:  []string{"N1"},
		Start:    testutils.WindowStart,
		Stop:     testutils.WindowStop,
	}

	// Act
	report, err := p.Run(context.Background(), spec, export.AllFormats)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 3, report.Result.Table.Len())
	assert.Empty(t, report.Missing)
	require.Len(t, report.Paths, 3)
	for _, path := range report.Paths {
		assert.Equal(t, outDir, filepath.Dir(path))
		assert.Contains(t, filepath.Base(path), "Data_20240601T093000000000.")
	}
	assert.Equal(t, 3, countCSVRows(t, report.Paths[0]))

	f, err := os.Open(report.Paths[2])
	require.NoError(t, err)
	defer f.Close()
	loaded, err := export.ReadPickle(f)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Len())
}

func TestRunNodeMissingEverywhere(t *testing.T) {
	p, _ := setupProcessor(t, fetch.Options{})
	spec := fetch.Spec{
		Projects: []string{"siteA", "siteB"},
		NodeIDs:  []string{"N2"},
		Start:    testutils.WindowStart,
		Stop:     testutils.WindowStop,
	}

	report, err := p.Run(context.Background(), spec, export.AllFormats)

	require.NoError(t, err, "an empty result still exports")
	assert.Equal(t, []string{"N2"}, report.Missing)
	assert.Equal(t, 0, report.Result.Table.Len())
	require.Len(t, report.Paths, 3)
	assert.Equal(t, 0, countCSVRows(t, report.Paths[0]))
}

func TestRunFailFastAbortsBeforeExport(t *testing.T) {
	p, outDir := setupProcessor(t, fetch.Options{Policy: fetch.FailFast})
	spec := fetch.Spec{
		Projects: []string{"siteA", "siteMissing"},
		NodeIDs:  []string{"N1"},
		Start:    testutils.WindowStart,
		Stop:     testutils.WindowStop,
	}

	report, err := p.Run(context.Background(), spec, export.AllFormats)

	assert.Nil(t, report)
	var qe *fetch.QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "siteMissing", qe.Project)
	assert.NoDirExists(t, outDir, "nothing is written when the run aborts")
}

func TestRunContinueReportsPartial(t *testing.T) {
	p, _ := setupProcessor(t, fetch.Options{Policy: fetch.Continue})
	spec := fetch.Spec{
		Projects: []string{"siteA", "siteMissing"},
		NodeIDs:  []string{"N1", "N3"},
		Start:    testutils.WindowStart,
		Stop:     testutils.WindowStop,
	}

	report, err := p.Run(context.Background(), spec, []export.Format{export.CSV})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartial)
	var qe *fetch.QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "siteMissing", qe.Project)
	require.NotNil(t, report)
	assert.Equal(t, []string{"siteA"}, report.Result.Succeeded)
	assert.Equal(t, 4, report.Result.Table.Len())
	assert.Empty(t, report.Missing)
	require.Len(t, report.Paths, 1)
	assert.Equal(t, 4, countCSVRows(t, report.Paths[0]))
}

func TestRunConnectionError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	conn, err := db.Open(context.Background(), db.DuckDB, testutils.SetupTestDB(t))
	require.NoError(t, err)
	conn.Close()
	p := New(fetch.NewFetcher(db.NewRepository(conn), fetch.Options{}, logger), export.NewExporter(t.TempDir(), logger), logger)

	report, err := p.Run(context.Background(), fetch.Spec{
		Projects: []string{"siteA"},
		NodeIDs:  []string{"N1"},
		Start:    testutils.WindowStart,
		Stop:     testutils.WindowStop,
	}, export.AllFormats)

	assert.Nil(t, report)
	var connErr *db.ConnectionError
	assert.True(t, errors.As(err, &connErr), "expected ConnectionError, got %v", err)
}
