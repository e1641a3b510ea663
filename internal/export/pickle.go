package export

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/chambridge/sensor-data-exporter/internal/table"
	ogorek "github.com/kisielk/og-rek"
)

// The pickle holds dict([(column, [values...]), ...]) so that Python keeps the
// column order and pandas.DataFrame(pandas.read_pickle(path)) rebuilds the
// table. Timestamps are datetime.datetime values in UTC.
var (
	dictClass     = ogorek.Class{Module: "builtins", Name: "dict"}
	datetimeClass = ogorek.Class{Module: "datetime", Name: "datetime"}
)

const pickleProtocol = 2

func writePickle(w io.Writer, t *table.Table) error {
	pairs := make([]interface{}, len(t.Columns))
	for c, name := range t.Columns {
		values := make([]interface{}, len(t.Rows))
		for r, row := range t.Rows {
			values[r] = toPickleValue(row[c])
		}
		pairs[c] = ogorek.Tuple{name, values}
	}

	enc := ogorek.NewEncoderWithConfig(w, &ogorek.EncoderConfig{Protocol: pickleProtocol})
	if err := enc.Encode(ogorek.Call{Callable: dictClass, Args: ogorek.Tuple{pairs}}); err != nil {
		return fmt.Errorf("failed to encode pickle: %w", err)
	}
	return nil
}

func toPickleValue(v any) interface{} {
	switch x := v.(type) {
	case nil, string, bool, float64, int64:
		return x
	case int:
		return int64(x)
	case time.Time:
		x = x.UTC()
		return ogorek.Call{Callable: datetimeClass, Args: ogorek.Tuple{
			int64(x.Year()), int64(x.Month()), int64(x.Day()),
			int64(x.Hour()), int64(x.Minute()), int64(x.Second()),
			int64(x.Nanosecond() / 1000),
		}}
	default:
		return table.FormatValue(x)
	}
}

// ReadPickle loads a table written by the pickle exporter. Integers decode as
// int64, floats as float64 and datetimes as UTC time.Time with microsecond
// precision.
func ReadPickle(r io.Reader) (*table.Table, error) {
	obj, err := ogorek.NewDecoder(r).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode pickle: %w", err)
	}

	call, ok := obj.(ogorek.Call)
	if !ok || call.Callable != dictClass || len(call.Args) != 1 {
		return nil, fmt.Errorf("unexpected pickle payload %T", obj)
	}
	pairs, ok := call.Args[0].([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected pickle column list %T", call.Args[0])
	}

	t := table.New()
	var columns [][]interface{}
	for _, p := range pairs {
		pair, ok := p.(ogorek.Tuple)
		if !ok || len(pair) != 2 {
			return nil, errors.New("malformed pickle column entry")
		}
		name, ok := pair[0].(string)
		if !ok {
			return nil, fmt.Errorf("pickle column name is %T, want string", pair[0])
		}
		values, ok := pair[1].([]interface{})
		if !ok {
			return nil, fmt.Errorf("pickle column %s holds %T, want list", name, pair[1])
		}
		if len(columns) > 0 && len(values) != len(columns[0]) {
			return nil, fmt.Errorf("pickle column %s has %d values, want %d", name, len(values), len(columns[0]))
		}
		t.Columns = append(t.Columns, name)
		columns = append(columns, values)
	}

	if len(columns) == 0 {
		return t, nil
	}
	t.Rows = make([][]any, len(columns[0]))
	for r := range t.Rows {
		row := make([]any, len(columns))
		for c := range columns {
			v, err := fromPickleValue(columns[c][r])
			if err != nil {
				return nil, fmt.Errorf("pickle column %s row %d: %w", t.Columns[c], r, err)
			}
			row[c] = v
		}
		t.Rows[r] = row
	}
	return t, nil
}

func fromPickleValue(v interface{}) (any, error) {
	switch x := v.(type) {
	case ogorek.None:
		return nil, nil
	case *big.Int:
		return x.Int64(), nil
	case ogorek.Call:
		if x.Callable != datetimeClass || len(x.Args) != 7 {
			return nil, fmt.Errorf("unsupported pickle call %s.%s", x.Callable.Module, x.Callable.Name)
		}
		parts := make([]int, len(x.Args))
		for i, a := range x.Args {
			n, ok := a.(int64)
			if !ok {
				return nil, fmt.Errorf("datetime field %d is %T, want int", i, a)
			}
			parts[i] = int(n)
		}
		return time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], parts[6]*1000, time.UTC), nil
	default:
		return x, nil
	}
}
