package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ditto-display/ditto/internal/adapters/http/handlers"
	"github.com/ditto-display/ditto/internal/adapters/http/middleware"
	"github.com/ditto-display/ditto/internal/platform/telemetry"
)

// DefaultRequestTimeout bounds a request when RouterConfig.Timeout is unset.
const DefaultRequestTimeout = 30 * time.Second

// RouterConfig contains configuration for setting up the router.
type RouterConfig struct {
	Logger *slog.Logger

	// ServiceName labels spans and HTTP metrics.
	ServiceName string

	Health  *handlers.HealthHandler
	Images  *handlers.ImageHandler
	Clients *handlers.ClientHandler
	Status  *handlers.StatusHandler

	// Timeout bounds every request except the probes. Zero uses
	// DefaultRequestTimeout, negative disables it.
	Timeout time.Duration

	// OnPanic is called with every recovered panic.
	OnPanic func(recovered any)
}

// SetupRouter configures all routes and middleware on the Gin engine.
// Middleware runs in this order:
//  1. Recovery
//  2. request logger seeding
//  3. Request ID and Correlation ID
//  4. OpenTelemetry tracing and HTTP metrics
//  5. Logging (skips probes and /health)
//  6. Timeout (skips probes)
//
// Routes:
//   - /-/ probes, build info and metrics
//   - GET /health
//   - GET /current, /next, /previous, /random
//   - POST /clients, GET /clients, PATCH /clients/:id
//   - GET / server status
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}

	engine.Use(
		middleware.Recovery(cfg.OnPanic),
		middleware.WithLogger(cfg.Logger),
		middleware.RequestID(),
		middleware.CorrelationID(),
	)
	engine.Use(telemetry.Middleware(cfg.ServiceName)...)
	engine.Use(
		middleware.Logging("/health"),
		middleware.Timeout(timeout, "/-/"),
	)

	if cfg.Health != nil {
		cfg.Health.RegisterHealthRoutesOnEngine(engine)
	}

	if cfg.Images != nil {
		cfg.Images.RegisterImageRoutes(engine)
	}

	if cfg.Clients != nil {
		cfg.Clients.RegisterClientRoutes(engine)
	}

	if cfg.Status != nil {
		cfg.Status.RegisterStatusRoutes(engine)
	}
}
