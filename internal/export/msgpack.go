package export

import (
	"fmt"
	"io"

	"github.com/chambridge/sensor-data-exporter/internal/table"
	"github.com/vmihailenco/msgpack/v5"
)

// document is the msgpack layout: the column list and the rows in column order.
type document struct {
	Columns []string `msgpack:"columns"`
	Rows    [][]any  `msgpack:"rows"`
}

func writeMsgpack(w io.Writer, t *table.Table) error {
	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(document{Columns: t.Columns, Rows: t.Rows}); err != nil {
		return fmt.Errorf("failed to encode msgpack: %w", err)
	}
	return nil
}

// ReadMsgpack loads a table written by the msgpack exporter. Integers decode
// as int64, floats as float64 and timestamps as time.Time.
func ReadMsgpack(r io.Reader) (*table.Table, error) {
	dec := msgpack.NewDecoder(r)
	dec.UseLooseInterfaceDecoding(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode msgpack: %w", err)
	}
	return &table.Table{Columns: doc.Columns, Rows: doc.Rows}, nil
}
