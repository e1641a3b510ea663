package processor

import (
	"context"
	"errors"
	"time"

	"github.com/chambridge/sensor-data-exporter/internal/export"
	"github.com/chambridge/sensor-data-exporter/internal/fetch"
	"github.com/chambridge/sensor-data-exporter/internal/table"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrPartial is joined into the error of a run that produced output but
// lost some projects or export formats along the way.
var ErrPartial = errors.New("run completed with failures")

// Report describes one fetch-and-export run.
type Report struct {
	RunID     uuid.UUID
	StartedAt time.Time
	Result    *fetch.Result
	Missing   []string
	Paths     []string
}

// Processor runs the fetch, coverage check and export steps in order.
type Processor struct {
	fetcher  *fetch.Fetcher
	exporter *export.Exporter
	logger   *zap.Logger
	now      func() time.Time
}

func New(fetcher *fetch.Fetcher, exporter *export.Exporter, logger *zap.Logger) *Processor {
	return &Processor{fetcher: fetcher, exporter: exporter, logger: logger, now: time.Now}
}

// Run fetches spec, reports missing nodes and exports the merged table in
// every format. Connection and fail-fast query errors abort the run with a
// nil report. Failed projects (continue policy) and failed formats still
// yield a report, with an error that wraps ErrPartial.
func (p *Processor) Run(ctx context.Context, spec fetch.Spec, formats []export.Format) (*Report, error) {
	report := &Report{RunID: uuid.New(), StartedAt: p.now()}
	logger := p.logger.With(zap.String("run_id", report.RunID.String()))
	spec = spec.Normalize()

	logger.Info("Starting export run",
		zap.Strings("projects", spec.Projects),
		zap.Strings("node_ids", spec.NodeIDs),
		zap.Time("time_start", spec.Start),
		zap.Time("time_stop", spec.Stop),
	)

	result, err := p.fetcher.FetchAll(ctx, spec)
	if err != nil {
		logger.Error("Fetch failed", zap.Error(err))
		return nil, err
	}
	report.Result = result

	report.Missing = table.FindMissing(spec.NodeIDs, result.Table)
	if len(report.Missing) > 0 {
		logger.Warn("Requested nodes not found", zap.Strings("missing", report.Missing))
	} else {
		logger.Info("All requested nodes found")
	}

	var errs []error
	for _, qe := range result.Failed {
		errs = append(errs, qe)
	}

	paths, err := p.exporter.Export(result.Table, formats, report.StartedAt)
	report.Paths = paths
	if err != nil {
		if len(paths) == 0 {
			logger.Error("Export failed", zap.Error(err))
			return report, err
		}
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return report, errors.Join(append([]error{ErrPartial}, errs...)...)
	}
	logger.Info("Export run finished", zap.Int("rows", result.Table.Len()), zap.Strings("files", paths))
	return report, nil
}
