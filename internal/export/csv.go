package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/chambridge/sensor-data-exporter/internal/table"
)

// WriteCSV writes the header row then every row of t, nulls as empty fields.
func WriteCSV(w io.Writer, t *table.Table) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			record[i] = table.FormatValue(v)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}
