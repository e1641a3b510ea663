package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chambridge/sensor-data-exporter/internal/table"
	"go.uber.org/zap"
)

// FailurePolicy decides what happens when one project's query fails.
type FailurePolicy string

const (
	// FailFast aborts the run on the first failing project.
	FailFast FailurePolicy = "fail-fast"
	// Continue records the failure and carries on with the remaining projects.
	Continue FailurePolicy = "continue"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FailFast, Continue:
		return p, nil
	case "":
		return FailFast, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want %q or %q)", s, FailFast, Continue)
	}
}

// QueryError reports a failed query for one project.
type QueryError struct {
	Project string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query for project %s failed: %v", e.Project, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Source runs the per-project query. *db.Repository satisfies it.
type Source interface {
	Ping(ctx context.Context) error
	QueryProjectData(ctx context.Context, project string, nodeIDs []string, start, stop time.Time) (*table.Table, error)
}

type Options struct {
	Policy FailurePolicy
	// QueryTimeout bounds each project's query. Zero means no limit.
	QueryTimeout time.Duration
	// Concurrency is how many project queries may run at once. Values below 1 mean 1.
	Concurrency int
	// Deduplicate drops rows repeated across or within projects after merging.
	Deduplicate bool
}

// ProjectTiming is the outcome of one project's query.
type ProjectTiming struct {
	Project string        `json:"project"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Rows    int           `json:"rows"`
	Err     error         `json:"-"`
}

type Result struct {
	Table     *table.Table
	Timings   []ProjectTiming
	Succeeded []string
	Failed    []*QueryError
	// Duplicates is the number of rows dropped by de-duplication.
	Duplicates int
}

type Fetcher struct {
	source Source
	opts   Options
	logger *zap.Logger
}

func NewFetcher(source Source, opts Options, logger *zap.Logger) *Fetcher {
	if opts.Policy == "" {
		opts.Policy = FailFast
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Fetcher{source: source, opts: opts, logger: logger}
}

// FetchAll queries every project of spec and merges the rows in sorted
// project order. The database is pinged first; an unreachable database is
// returned as-is before any query runs. Under FailFast the first *QueryError
// is returned; under Continue failures are listed in Result.Failed.
func (f *Fetcher) FetchAll(ctx context.Context, spec Spec) (*Result, error) {
	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Start.After(spec.Stop) {
		f.logger.Warn("Query window is empty: time_start is after time_stop",
			zap.Time("time_start", spec.Start), zap.Time("time_stop", spec.Stop))
	}

	if err := f.source.Ping(ctx); err != nil {
		return nil, err
	}

	timings, err := f.queryProjects(ctx, spec)
	if err != nil {
		return nil, err
	}

	result := &Result{Table: table.New(), Timings: make([]ProjectTiming, 0, len(timings))}
	for _, pt := range timings {
		result.Timings = append(result.Timings, pt.ProjectTiming)
		if pt.Err != nil {
			result.Failed = append(result.Failed, &QueryError{Project: pt.Project, Err: pt.Err})
			continue
		}
		result.Succeeded = append(result.Succeeded, pt.Project)
		result.Table.Append(pt.table)
	}
	if f.opts.Deduplicate {
		result.Duplicates = result.Table.Deduplicate()
		if result.Duplicates > 0 {
			f.logger.Info("Dropped duplicate rows", zap.Int("duplicates", result.Duplicates))
		}
	}

	f.logger.Info("Fetched project data",
		zap.Int("rows", result.Table.Len()),
		zap.Strings("succeeded", result.Succeeded),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

type projectResult struct {
	ProjectTiming
	table *table.Table
}

// queryProjects returns one entry per project in spec order.
func (f *Fetcher) queryProjects(ctx context.Context, spec Spec) ([]projectResult, error) {
	results := make([]projectResult, len(spec.Projects))

	if f.opts.Concurrency == 1 {
		for i, project := range spec.Projects {
			results[i] = f.queryProject(ctx, project, spec)
			if results[i].Err != nil && f.opts.Policy == FailFast {
				return nil, &QueryError{Project: project, Err: results[i].Err}
			}
		}
		return results, nil
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     sync.WaitGroup
		once   sync.Once
		failed bool
		sem    = make(chan struct{}, f.opts.Concurrency)
	)
	for i, project := range spec.Projects {
		wg.Add(1)
		go func(i int, project string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = projectResult{ProjectTiming: ProjectTiming{Project: project, Err: ctx.Err()}}
				return
			}
			defer func() { <-sem }()

			results[i] = f.queryProject(ctx, project, spec)
			if results[i].Err != nil && f.opts.Policy == FailFast {
				once.Do(func() {
					failed = true
					cancel()
				})
			}
		}(i, project)
	}
	wg.Wait()

	if failed {
		return nil, firstFailure(parent, results)
	}
	return results, nil
}

// firstFailure returns the failure of the lowest-ordered project, skipping
// queries that were only cancelled because another project had failed.
func firstFailure(parent context.Context, results []projectResult) error {
	var cancelled *QueryError
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		if errors.Is(r.Err, context.Canceled) && parent.Err() == nil {
			if cancelled == nil {
				cancelled = &QueryError{Project: r.Project, Err: r.Err}
			}
			continue
		}
		return &QueryError{Project: r.Project, Err: r.Err}
	}
	return cancelled
}

func (f *Fetcher) queryProject(ctx context.Context, project string, spec Spec) projectResult {
	if f.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.QueryTimeout)
		defer cancel()
	}

	started := time.Now()
	data, err := f.source.QueryProjectData(ctx, project, spec.NodeIDs, spec.Start, spec.Stop)
	elapsed := time.Since(started)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", f.opts.QueryTimeout, err)
		}
		f.logger.Error("Project query failed",
			zap.String("project", project), zap.Duration("elapsed", elapsed), zap.Error(err))
		return projectResult{ProjectTiming: ProjectTiming{Project: project, Elapsed: elapsed, Err: err}}
	}

	f.logger.Info("Project query finished",
		zap.String("project", project), zap.Duration("elapsed", elapsed), zap.Int("rows", data.Len()))
	return projectResult{
		ProjectTiming: ProjectTiming{Project: project, Elapsed: elapsed, Rows: data.Len()},
		table:         data,
	}
}
