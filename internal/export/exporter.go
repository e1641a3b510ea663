package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chambridge/sensor-data-exporter/internal/table"
	"go.uber.org/zap"
)

type Format string

const (
	CSV     Format = "csv"
	XLSX    Format = "xlsx"
	Pickle  Format = "pickle"
	Msgpack Format = "msgpack"
)

// AllFormats is the default export set.
var AllFormats = []Format{CSV, XLSX, Pickle}

// Extension is the file extension written for f, without the dot.
func (f Format) Extension() string {
	if f == Pickle {
		return "pkl"
	}
	return string(f)
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return CSV, nil
	case "xlsx", "excel":
		return XLSX, nil
	case "pickle", "pkl":
		return Pickle, nil
	case "msgpack", "mpk":
		return Msgpack, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ParseFormats parses names, dropping repeats while keeping first-seen order.
func ParseFormats(names []string) ([]Format, error) {
	var formats []Format
	seen := make(map[Format]struct{})
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		f, err := ParseFormat(name)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		formats = append(formats, f)
	}
	if len(formats) == 0 {
		return nil, errors.New("no export format selected")
	}
	return formats, nil
}

// ExportError reports that one format could not be written.
type ExportError struct {
	Format Format
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export to %s (%s) failed: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// FileStem is the name shared by every file of one export: Data_ followed by
// the UTC timestamp with separators removed, e.g. Data_20240101T120000123456.
func FileStem(ts time.Time) string {
	return "Data_" + strings.ReplaceAll(ts.UTC().Format("20060102T150405.000000"), ".", "")
}

type writerFunc func(w io.Writer, t *table.Table) error

var writers = map[Format]writerFunc{
	CSV:     WriteCSV,
	XLSX:    writeXLSX,
	Pickle:  writePickle,
	Msgpack: writeMsgpack,
}

type Exporter struct {
	dir    string
	logger *zap.Logger
}

func NewExporter(dir string, logger *zap.Logger) *Exporter {
	return &Exporter{dir: dir, logger: logger}
}

func (e *Exporter) Dir() string { return e.dir }

// Export writes t once per format into the output directory, creating it if
// needed. A failing format does not stop the others: the paths written are
// returned together with the joined *ExportError values.
func (e *Exporter) Export(t *table.Table, formats []Format, ts time.Time) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", e.dir, err)
	}

	stem := FileStem(ts)
	var (
		paths []string
		errs  []error
	)
	for _, f := range formats {
		path := filepath.Join(e.dir, stem+"."+f.Extension())
		if err := e.writeFile(path, f, t); err != nil {
			e.logger.Error("Export failed", zap.String("format", string(f)), zap.String("path", path), zap.Error(err))
			errs = append(errs, &ExportError{Format: f, Path: path, Err: err})
			continue
		}
		e.logger.Info("Exported data", zap.String("format", string(f)), zap.String("path", path), zap.Int("rows", t.Len()))
		paths = append(paths, path)
	}
	return paths, errors.Join(errs...)
}

func (e *Exporter) writeFile(path string, f Format, t *table.Table) (err error) {
	write, ok := writers[f]
	if !ok {
		return fmt.Errorf("unsupported export format %q", f)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	return write(file, t)
}
