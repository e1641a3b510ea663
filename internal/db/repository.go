package db

import (
	"context"
	"fmt"
	"time"

	"github.com/chambridge/sensor-data-exporter/internal/table"
)

type Repository struct {
	conn Conn
}

func NewRepository(conn Conn) *Repository {
	return &Repository{conn: conn}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx)
}

// QueryProjectData returns the rows of <project>.data for nodeIDs in the open
// interval (start, stop). Columns are whatever the table defines.
func (r *Repository) QueryProjectData(ctx context.Context, project string, nodeIDs []string, start, stop time.Time) (*table.Table, error) {
	q, err := BuildQuery(r.conn.Driver(), project, nodeIDs, start, stop)
	if err != nil {
		return nil, err
	}
	result, err := r.conn.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s.%s: %w", project, DataTable, err)
	}
	return result, nil
}
