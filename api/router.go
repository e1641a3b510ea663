package api

import (
	"github.com/chambridge/sensor-data-exporter/api/handlers"
	"github.com/chambridge/sensor-data-exporter/internal/config"
	"github.com/chambridge/sensor-data-exporter/internal/db"
	"github.com/chambridge/sensor-data-exporter/internal/export"
	"github.com/chambridge/sensor-data-exporter/internal/fetch"
	"github.com/chambridge/sensor-data-exporter/internal/processor"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func SetupRouter(conn db.Conn, cfg *config.Config, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))

	repo := db.NewRepository(conn)
	fetcher := fetch.NewFetcher(repo, cfg.FetchOptions(), logger)
	exporter := export.NewExporter(cfg.OutputDir, logger)
	proc := processor.New(fetcher, exporter, logger)

	formats, err := export.ParseFormats(cfg.ExportFormats)
	if err != nil {
		formats = export.AllFormats
	}

	api := r.Group("/api")
	{
		api.GET("/data/v1/records", handlers.QueryRecordsHandler(fetcher))
		api.POST("/data/v1/exports", handlers.ExportHandler(proc, formats))
	}
	r.GET("/healthz", handlers.HealthHandler(repo))

	return r
}
