package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/chambridge/sensor-data-exporter/internal/db"
	"github.com/chambridge/sensor-data-exporter/internal/export"
	"github.com/chambridge/sensor-data-exporter/internal/fetch"
	"github.com/chambridge/sensor-data-exporter/internal/processor"
	"github.com/chambridge/sensor-data-exporter/internal/table"
	"github.com/gin-gonic/gin"
)

type RecordsQueryParams struct {
	Projects []string `form:"project"`
	NodeIDs  []string `form:"node"`
	Start    string   `form:"start"`
	Stop     string   `form:"stop"`
}

type ExportRequest struct {
	Projects  []string `json:"projects"`
	NodeIDs   []string `json:"node_ids"`
	TimeStart string   `json:"time_start"`
	TimeStop  string   `json:"time_stop"`
	Formats   []string `json:"formats"`
}

type projectTiming struct {
	Project   string  `json:"project"`
	ElapsedMS float64 `json:"elapsed_ms"`
	Rows      int     `json:"rows"`
	Error     string  `json:"error,omitempty"`
}

// QueryRecordsHandler handles the /api/data/v1/records endpoint, returning
// the merged rows of every requested project as JSON, or CSV when asked.
func QueryRecordsHandler(fetcher *fetch.Fetcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params RecordsQueryParams
		if err := c.ShouldBindQuery(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
			return
		}

		spec, err := buildSpec(params.Projects, params.NodeIDs, params.Start, params.Stop)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := fetcher.FetchAll(c.Request.Context(), spec)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		missing := table.FindMissing(spec.NodeIDs, result.Table)

		// Check Accept header
		if c.GetHeader("Accept") == "text/csv" {
			var buf bytes.Buffer
			if err := export.WriteCSV(&buf, result.Table); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write CSV: " + err.Error()})
				return
			}
			c.Header("Content-Type", "text/csv")
			c.Header("Content-Disposition", "attachment;filename="+export.FileStem(time.Now())+".csv")
			c.String(http.StatusOK, buf.String())
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"metadata": gin.H{
				"rows":    result.Table.Len(),
				"columns": result.Table.Columns,
				"missing": missing,
				"timings": timings(result),
				"failed":  failedProjects(result),
			},
			"data": result.Table.Records(),
		})
	}
}

// ExportHandler handles the /api/data/v1/exports endpoint, running a full
// fetch-and-export into the server's output directory.
func ExportHandler(proc *processor.Processor, defaultFormats []export.Format) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ExportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		spec, err := buildSpec(req.Projects, req.NodeIDs, req.TimeStart, req.TimeStop)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		formats := defaultFormats
		if len(req.Formats) > 0 {
			if formats, err = export.ParseFormats(req.Formats); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		report, err := proc.Run(c.Request.Context(), spec, formats)
		if report == nil || (err != nil && !errors.Is(err, processor.ErrPartial)) {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}

		status := http.StatusOK
		body := gin.H{
			"run_id":  report.RunID.String(),
			"rows":    report.Result.Table.Len(),
			"missing": report.Missing,
			"files":   report.Paths,
			"timings": timings(report.Result),
			"failed":  failedProjects(report.Result),
		}
		if err != nil {
			status = http.StatusMultiStatus
			body["error"] = err.Error()
		}
		c.JSON(status, body)
	}
}

// HealthHandler reports whether the database answers a ping.
func HealthHandler(repo *db.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := repo.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func buildSpec(projects, nodeIDs []string, start, stop string) (fetch.Spec, error) {
	spec := fetch.Spec{Projects: splitList(projects), NodeIDs: splitList(nodeIDs)}
	if start == "" || stop == "" {
		return spec, errors.New("start and stop times are required")
	}
	var err error
	if spec.Start, err = fetch.ParseTime(start); err != nil {
		return spec, err
	}
	if spec.Stop, err = fetch.ParseTime(stop); err != nil {
		return spec, err
	}
	spec = spec.Normalize()
	return spec, spec.Validate()
}

// splitList accepts both repeated values and comma-separated lists.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}

func statusFor(err error) int {
	var connErr *db.ConnectionError
	var queryErr *fetch.QueryError
	switch {
	case errors.As(err, &connErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &queryErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func timings(result *fetch.Result) []projectTiming {
	out := make([]projectTiming, 0, len(result.Timings))
	for _, t := range result.Timings {
		pt := projectTiming{
			Project:   t.Project,
			ElapsedMS: float64(t.Elapsed.Microseconds()) / 1000,
			Rows:      t.Rows,
		}
		if t.Err != nil {
			pt.Error = t.Err.Error()
		}
		out = append(out, pt)
	}
	return out
}

func failedProjects(result *fetch.Result) []string {
	out := make([]string, 0, len(result.Failed))
	for _, qe := range result.Failed {
		out = append(out, qe.Project)
	}
	return out
}
