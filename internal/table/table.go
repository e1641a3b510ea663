package table

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// Well-known columns of a project's data table. Other columns are passed through untouched.
const (
	ColumnTime        = "time"
	ColumnValue       = "value"
	ColumnNodeID      = "node_id"
	ColumnMeasure     = "measure"
	ColumnDisplayName = "display_name"
)

// Table is an ordered set of rows sharing one column list. A nil cell is a SQL NULL.
type Table struct {
	Columns []string
	Rows    [][]any
}

func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// AddRow appends a row. The row must have one value per column.
func (t *Table) AddRow(values ...any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, values)
	return nil
}

// Append adds every row of other after the rows of t. Columns of other that t
// lacks are added to the end of t's column list and filled with nil for rows
// already present; columns t has but other lacks are nil in other's rows.
func (t *Table) Append(other *Table) {
	if other == nil {
		return
	}
	mapping := make([]int, len(other.Columns))
	added := 0
	for i, c := range other.Columns {
		idx := t.ColumnIndex(c)
		if idx < 0 {
			t.Columns = append(t.Columns, c)
			idx = len(t.Columns) - 1
			added++
		}
		mapping[i] = idx
	}
	if added > 0 {
		for i, row := range t.Rows {
			t.Rows[i] = append(row, make([]any, added)...)
		}
	}
	for _, src := range other.Rows {
		row := make([]any, len(t.Columns))
		for i, v := range src {
			row[mapping[i]] = v
		}
		t.Rows = append(t.Rows, row)
	}
}

// Deduplicate drops rows identical in every column to an earlier row and
// returns how many were removed. Order of the remaining rows is kept.
func (t *Table) Deduplicate() int {
	seen := make(map[string]struct{}, len(t.Rows))
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		key := rowKey(row)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	removed := len(t.Rows) - len(kept)
	t.Rows = kept
	return removed
}

func rowKey(row []any) string {
	var b strings.Builder
	for _, v := range row {
		// type prefix keeps "1" and 1 apart
		fmt.Fprintf(&b, "%T=%s\x1f", v, FormatValue(v))
	}
	return b.String()
}

// Records returns the rows as column-keyed maps.
func (t *Table) Records() []map[string]any {
	records := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			rec[c] = row[i]
		}
		records = append(records, rec)
	}
	return records
}

// Preview writes the column header and the first n rows as aligned text.
func (t *Table) Preview(w io.Writer, n int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Columns, "\t"))
	for i, row := range t.Rows {
		if i >= n {
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = FormatValue(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(t.Rows) > n {
		_, err := fmt.Fprintf(w, "... %d rows x %d columns\n", len(t.Rows), len(t.Columns))
		return err
	}
	return nil
}

// FormatValue renders a cell as text: nil is empty, floats keep full
// precision and timestamps use RFC 3339 with nanoseconds.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
