package export

import (
	"fmt"
	"io"
	"time"

	"github.com/chambridge/sensor-data-exporter/internal/table"
	"github.com/xuri/excelize/v2"
)

const (
	xlsxSheet = "Sheet1"
	// built-in number format "m/d/yy h:mm"
	xlsxDateTimeFormat = 22
)

func writeXLSX(w io.Writer, t *table.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(xlsxSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet writer: %w", err)
	}
	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: xlsxDateTimeFormat})
	if err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}

	header := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	values := make([]interface{}, len(t.Columns))
	for i, row := range t.Rows {
		for j, v := range row {
			values[j] = xlsxValue(v, dateStyle)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	return f.Write(w)
}

func xlsxValue(v any, dateStyle int) interface{} {
	switch x := v.(type) {
	case nil, string, bool, float64, int64:
		return x
	case time.Time:
		return excelize.Cell{StyleID: dateStyle, Value: x}
	default:
		return table.FormatValue(x)
	}
}
