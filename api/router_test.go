package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chambridge/sensor-data-exporter/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSetupRouter(t *testing.T) {
	// Arrange
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		ServerAddress: ":8080",
		OutputDir:     t.TempDir(),
		ExportFormats: []string{"csv"},
		Concurrency:   1,
	}

	// Act
	router := SetupRouter(nil, cfg, zaptest.NewLogger(t)) // connection is not used in routing

	// Assert
	require.NotNil(t, router, "Router should not be nil")
	routes := router.Routes()

	expectedRoutes := []struct {
		method string
		path   string
	}{
		{method: "GET", path: "/api/data/v1/records"},
		{method: "POST", path: "/api/data/v1/exports"},
		{method: "GET", path: "/healthz"},
	}

	for _, expected := range expectedRoutes {
		found := false
		for _, route := range routes {
			if route.Method == expected.method && route.Path == expected.path {
				found = true
				assert.NotNil(t, route.HandlerFunc, "Handler for %s %s should be set", expected.method, expected.path)
				break
			}
		}
		assert.True(t, found, "Route %s %s should be registered", expected.method, expected.path)
	}

	assert.Equal(t, len(expectedRoutes), len(routes), "Router should have exactly %d routes", len(expectedRoutes))
}

func TestSetupRouter_UnknownRoute(t *testing.T) {
	// Arrange
	gin.SetMode(gin.TestMode)
	router := SetupRouter(nil, &config.Config{}, zaptest.NewLogger(t))
	req := httptest.NewRequest(http.MethodGet, "/api/metrics/v1/nodes", nil)
	w := httptest.NewRecorder()

	// Act
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusNotFound, w.Code)
}
