package db

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/chambridge/sensor-data-exporter/internal/credentials"
)

// Driver selects the database client used to reach the project schemas.
type Driver string

const (
	Postgres  Driver = "postgres"
	SQLServer Driver = "sqlserver"
	DuckDB    Driver = "duckdb"
)

// Drivers lists the supported drivers.
var Drivers = []Driver{Postgres, SQLServer, DuckDB}

func ParseDriver(s string) (Driver, error) {
	switch d := Driver(strings.ToLower(strings.TrimSpace(s))); d {
	case Postgres, SQLServer, DuckDB:
		return d, nil
	case "postgresql", "pgx":
		return Postgres, nil
	case "mssql":
		return SQLServer, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", s)
	}
}

// Placeholder returns the bind parameter marker for the n-th (1-based) argument.
func (d Driver) Placeholder(n int) string {
	switch d {
	case SQLServer:
		return "@p" + strconv.Itoa(n)
	case DuckDB:
		return "?"
	default:
		return "$" + strconv.Itoa(n)
	}
}

// QuoteIdentifier quotes a schema or column name for the driver's SQL
// dialect, preserving its case.
func (d Driver) QuoteIdentifier(name string) string {
	if d == SQLServer {
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ConnString builds the connection string for creds. For postgres and
// sqlserver this is <scheme>://<username>:<password>@<host>:<port>/...;
// duckdb takes the database field as a file path, empty meaning in-memory.
func (d Driver) ConnString(creds credentials.Credentials) string {
	if d == DuckDB {
		return creds.Database
	}
	u := url.URL{
		Scheme: string(d),
		User:   url.UserPassword(creds.Username, creds.Password),
		Host:   net.JoinHostPort(creds.Host, strconv.Itoa(creds.Port)),
	}
	if d == SQLServer {
		u.RawQuery = url.Values{"database": {creds.Database}}.Encode()
	} else {
		u.Path = "/" + creds.Database
	}
	return u.String()
}
