package db

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chambridge/sensor-data-exporter/internal/table"
)

// DataTable is the table holding sensor readings inside each project schema.
const DataTable = "data"

var projectPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateProject checks that project is safe to interpolate into SQL text as
// a schema identifier.
func ValidateProject(project string) error {
	if !projectPattern.MatchString(project) {
		return fmt.Errorf("invalid project name %q: must match %s", project, projectPattern)
	}
	return nil
}

// Query is a statement and its bind arguments.
type Query struct {
	SQL  string
	Args []any
}

// BuildQuery selects every column of <project>.data for rows whose display
// name is one of nodeIDs and whose time lies strictly between start and stop.
// The project is quoted into the statement after validation so mixed-case
// schema names keep their case; all other values are bound.
func BuildQuery(driver Driver, project string, nodeIDs []string, start, stop time.Time) (Query, error) {
	if err := ValidateProject(project); err != nil {
		return Query{}, err
	}
	if len(nodeIDs) == 0 {
		return Query{}, errors.New("at least one node id is required")
	}

	args := make([]any, 0, len(nodeIDs)+2)
	markers := make([]string, len(nodeIDs))
	for i, id := range nodeIDs {
		args = append(args, id)
		markers[i] = driver.Placeholder(len(args))
	}
	args = append(args, start)
	startMarker := driver.Placeholder(len(args))
	args = append(args, stop)
	stopMarker := driver.Placeholder(len(args))

	timeCol := driver.QuoteIdentifier(table.ColumnTime)
	sql := fmt.Sprintf(
		"SELECT * FROM %s.%s WHERE %s IN (%s) AND %s > %s AND %s < %s",
		driver.QuoteIdentifier(project), DataTable,
		driver.QuoteIdentifier(table.ColumnDisplayName), strings.Join(markers, ", "),
		timeCol, startMarker,
		timeCol, stopMarker,
	)
	return Query{SQL: sql, Args: args}, nil
}
