package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ditto-display/ditto/internal/app"
	"github.com/ditto-display/ditto/internal/mocks"
	"github.com/ditto-display/ditto/internal/ports"
)

func TestStatusHandler_Status(t *testing.T) {
	s := newTestStore(t, "a", "b")

	registry := mocks.NewMockHealthRegistry(t)
	registry.EXPECT().CheckAll(mock.Anything).Return(&ports.HealthResult{Status: ports.HealthStatusDegraded})

	conns := app.NewConnectionLog(10)
	conns.Add(app.Connection{Client: "frame", Method: http.MethodGet, Path: "/next", QuoteID: "a"})

	started := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	now := started

	service := app.NewStatusService(app.StatusServiceConfig{
		Quotes:      s,
		Health:      registry,
		Connections: conns,
		Info: app.StatusInfo{
			Name:         "ditto",
			Version:      "1.0.0",
			Environment:  "test",
			DatabasePath: "/data/ditto.db",
		},
		Logger: discardLogger(),
		Now:    func() time.Time { return now },
	})

	now = started.Add(90 * time.Minute)

	router := gin.New()
	NewStatusHandler(service).RegisterStatusRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp app.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ditto", resp.App.Name)
	assert.Equal(t, "1h30m0s", resp.App.Uptime)
	assert.Equal(t, "/data/ditto.db", resp.Database.Path)
	assert.Equal(t, 2, resp.Database.QuoteCount)
	assert.Equal(t, ports.HealthStatusDegraded, resp.Health)
	assert.Nil(t, resp.LastSync)
	require.Len(t, resp.RecentConnections, 1)
	assert.Equal(t, "frame", resp.RecentConnections[0].Client)
}
