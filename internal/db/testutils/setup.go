package testutils

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/chambridge/sensor-data-exporter/internal/credentials"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/stretchr/testify/require"
)

// Query window used by the seeded data. Rows exist exactly on both bounds.
var (
	WindowStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	WindowStop  = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
)

const dataColumns = `"time" TIMESTAMP, "value" DOUBLE, node_id VARCHAR, measure VARCHAR, display_name VARCHAR`

// SetupTestDB creates a DuckDB file with three project schemas and returns
// credentials pointing at it:
//
//	siteA: 3 rows for N1 inside the window, N1 rows on both bounds and before it, 1 row for N3
//	siteB: 1 row for N3 inside the window, none for N1
//	siteC: like siteA's layout plus a "quality" column, 1 row for N1
func SetupTestDB(t *testing.T) credentials.Credentials {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensors.duckdb")

	db, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	defer db.Close()

	statements := []string{
		`CREATE SCHEMA siteA`,
		`CREATE SCHEMA siteB`,
		`CREATE SCHEMA siteC`,
		`CREATE TABLE siteA.data (` + dataColumns + `)`,
		`CREATE TABLE siteB.data (` + dataColumns + `)`,
		`CREATE TABLE siteC.data (` + dataColumns + `, quality VARCHAR)`,
		`INSERT INTO siteA.data VALUES
			(TIMESTAMP '2023-12-31 23:00:00', 0.5, 'dev-1', 'humidity_sht31', 'N1'),
			(TIMESTAMP '2024-01-01 00:00:00', 1.0, 'dev-1', 'humidity_sht31', 'N1'),
			(TIMESTAMP '2024-01-01 06:00:00', 41.25, 'dev-1', 'humidity_sht31', 'N1'),
			(TIMESTAMP '2024-01-01 12:00:00', 42.5, 'dev-1', 'humidity_sht31', 'N1'),
			(TIMESTAMP '2024-01-01 18:00:00', 43.75, 'dev-1', 'humidity_sht31', 'N1'),
			(TIMESTAMP '2024-01-02 00:00:00', 2.0, 'dev-1', 'humidity_sht31', 'N1'),
			(TIMESTAMP '2024-01-01 10:00:00', 19.5, 'dev-3', 'temperature_sht31', 'N3')`,
		`INSERT INTO siteB.data VALUES
			(TIMESTAMP '2024-01-01 08:00:00', 20.5, 'dev-3b', 'temperature_sht31', 'N3')`,
		`INSERT INTO siteC.data VALUES
			(TIMESTAMP '2024-01-01 09:00:00', 7.125, 'dev-9', 'soil_moisture', 'N1', 'good')`,
	}
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}

	return credentials.Credentials{
		Username: "test",
		Password: "test",
		Host:     "localhost",
		Port:     1,
		Database: path,
	}
}
