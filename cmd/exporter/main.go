package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/chambridge/sensor-data-exporter/internal/config"
	"github.com/chambridge/sensor-data-exporter/internal/credentials"
	"github.com/chambridge/sensor-data-exporter/internal/db"
	"github.com/chambridge/sensor-data-exporter/internal/export"
	"github.com/chambridge/sensor-data-exporter/internal/fetch"
	"github.com/chambridge/sensor-data-exporter/internal/processor"
	"go.uber.org/zap"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitPartial = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return exitFailed
	}

	fs := flag.NewFlagSet("exporter", flag.ContinueOnError)
	specPath := fs.String("spec", "", "YAML query file (projects, node_ids, time_start, time_stop)")
	projects := fs.String("projects", "", "Comma-separated project names, overrides the query file")
	nodes := fs.String("nodes", "", "Comma-separated node display names, overrides the query file")
	start := fs.String("start", "", "Exclusive window start (YYYY-MM-DD, YYYY-MM-DD HH:MM:SS or RFC 3339)")
	stop := fs.String("stop", "", "Exclusive window stop")
	formats := fs.String("formats", strings.Join(cfg.ExportFormats, ","), "Comma-separated export formats (csv, xlsx, pickle, msgpack)")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Output directory, created if missing")
	fs.StringVar(&cfg.CredentialsPath, "credentials", cfg.CredentialsPath, "Credentials file")
	fs.StringVar(&cfg.Driver, "driver", cfg.Driver, "Database driver (postgres, sqlserver, duckdb)")
	fs.StringVar(&cfg.FailurePolicy, "policy", cfg.FailurePolicy, "Failure policy (fail-fast, continue)")
	fs.BoolVar(&cfg.Deduplicate, "dedupe", cfg.Deduplicate, "Drop duplicate rows after merging")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Project queries run at once")
	fs.DurationVar(&cfg.QueryTimeout, "timeout", cfg.QueryTimeout, "Per-project query timeout, 0 for none")
	if err := fs.Parse(args); err != nil {
		return exitFailed
	}
	cfg.ExportFormats = splitList(*formats)

	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid config: %v", err)
		return exitFailed
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		return exitFailed
	}
	defer logger.Sync()

	spec, err := buildSpec(*specPath, *projects, *nodes, *start, *stop)
	if err != nil {
		logger.Error("Invalid query spec", zap.Error(err))
		return exitFailed
	}
	exportFormats, _ := export.ParseFormats(cfg.ExportFormats)

	creds, err := credentials.Load(cfg.CredentialsPath, logger)
	if err != nil {
		return exitFailed
	}
	driver, _ := db.ParseDriver(cfg.Driver)
	ctx := context.Background()
	conn, err := db.Open(ctx, driver, creds)
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return exitFailed
	}
	defer conn.Close()

	fetcher := fetch.NewFetcher(db.NewRepository(conn), cfg.FetchOptions(), logger)
	proc := processor.New(fetcher, export.NewExporter(cfg.OutputDir, logger), logger)

	report, err := proc.Run(ctx, spec, exportFormats)
	if report != nil {
		if perr := printReport(os.Stdout, report, cfg.PreviewRows); perr != nil {
			logger.Warn("Failed to print report", zap.Error(perr))
		}
	}
	switch {
	case err == nil:
		return exitOK
	case report != nil && errors.Is(err, processor.ErrPartial):
		fmt.Fprintf(os.Stderr, "Run finished with failures: %v\n", err)
		return exitPartial
	default:
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return exitFailed
	}
}

// buildSpec loads the query file, if any, and lets non-empty flags override it.
func buildSpec(path, projects, nodes, start, stop string) (fetch.Spec, error) {
	var spec fetch.Spec
	if path != "" {
		loaded, err := fetch.LoadSpec(path)
		if err != nil {
			return spec, err
		}
		spec = loaded
	}
	if projects != "" {
		spec.Projects = splitList(projects)
	}
	if nodes != "" {
		spec.NodeIDs = splitList(nodes)
	}
	var err error
	if start != "" {
		if spec.Start, err = fetch.ParseTime(start); err != nil {
			return spec, fmt.Errorf("invalid -start: %w", err)
		}
	}
	if stop != "" {
		if spec.Stop, err = fetch.ParseTime(stop); err != nil {
			return spec, fmt.Errorf("invalid -stop: %w", err)
		}
	}

	spec = spec.Normalize()
	return spec, spec.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
