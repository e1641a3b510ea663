package db

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"net"
	"strconv"
	"strings"

	"github.com/chambridge/sensor-data-exporter/internal/credentials"
	"github.com/chambridge/sensor-data-exporter/internal/table"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marcboeker/go-duckdb"
	_ "github.com/microsoft/go-mssqldb"
)

// Conn is a reusable handle to the database holding the project schemas.
type Conn interface {
	Driver() Driver
	// Ping verifies the database is reachable. Failures are *ConnectionError.
	Ping(ctx context.Context) error
	// Query runs a read-only statement and returns every row it produced.
	Query(ctx context.Context, query string, args ...any) (*table.Table, error)
	Close()
}

// ConnectionError reports that the database could not be reached.
type ConnectionError struct {
	Driver Driver
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s database %s failed: %v", e.Driver, e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Open builds a connection handle for driver from creds. No connection is
// established until the handle is first used.
func Open(ctx context.Context, driver Driver, creds credentials.Credentials) (Conn, error) {
	target := describeTarget(driver, creds)
	switch driver {
	case Postgres:
		config, err := pgxpool.ParseConfig(driver.ConnString(creds))
		if err != nil {
			return nil, &ConnectionError{Driver: driver, Target: target, Err: err}
		}
		pool, err := pgxpool.NewWithConfig(ctx, config)
		if err != nil {
			return nil, &ConnectionError{Driver: driver, Target: target, Err: err}
		}
		return &pgConn{pool: pool, target: target}, nil
	case SQLServer, DuckDB:
		db, err := sql.Open(string(driver), driver.ConnString(creds))
		if err != nil {
			return nil, &ConnectionError{Driver: driver, Target: target, Err: err}
		}
		return &sqlConn{db: db, driver: driver, target: target}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func describeTarget(driver Driver, creds credentials.Credentials) string {
	if driver == DuckDB {
		if creds.Database == "" {
			return ":memory:"
		}
		return creds.Database
	}
	return net.JoinHostPort(creds.Host, strconv.Itoa(creds.Port)) + "/" + creds.Database
}

type pgConn struct {
	pool   *pgxpool.Pool
	target string
}

func (c *pgConn) Driver() Driver { return Postgres }

func (c *pgConn) Ping(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return &ConnectionError{Driver: Postgres, Target: c.target, Err: err}
	}
	return nil
}

func (c *pgConn) Query(ctx context.Context, query string, args ...any) (*table.Table, error) {
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}
	result := table.New(columns...)

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		for i, v := range values {
			values[i] = normalize(v)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return result, nil
}

func (c *pgConn) Close() { c.pool.Close() }

type sqlConn struct {
	db     *sql.DB
	driver Driver
	target string
}

func (c *sqlConn) Driver() Driver { return c.driver }

func (c *sqlConn) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return &ConnectionError{Driver: c.driver, Target: c.target, Err: err}
	}
	return nil
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) (*table.Table, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}
	result := table.New(columns...)

	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			values[i] = normalizeTyped(v, types[i].DatabaseTypeName())
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return result, nil
}

func (c *sqlConn) Close() { c.db.Close() }

// normalize converts driver-specific values to plain Go types so every
// exporter sees the same value kinds whatever the driver.
func normalize(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case duckdb.Decimal:
		return x.Float64()
	case [16]byte:
		return uuid.UUID(x).String()
	case uuid.UUID:
		return x.String()
	case *big.Int:
		if x == nil {
			return nil
		}
		return x.String()
	case float32:
		return float64(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case []byte:
		return string(x)
	default:
		return v
	}
}

// normalizeTyped handles drivers that return exact numerics as text.
func normalizeTyped(v any, dbType string) any {
	if b, ok := v.([]byte); ok {
		switch strings.ToUpper(dbType) {
		case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
			if f, err := strconv.ParseFloat(string(b), 64); err == nil {
				return f
			}
		case "UNIQUEIDENTIFIER":
			if len(b) == 16 {
				return mssqlUUID(b)
			}
		}
	}
	return normalize(v)
}

// mssqlUUID decodes SQL Server's mixed-endian uniqueidentifier layout.
func mssqlUUID(b []byte) string {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:])
	return u.String()
}
