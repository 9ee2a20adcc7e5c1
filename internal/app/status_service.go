package app

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/ports"
)

// Status is the server summary served on the index page.
type Status struct {
	System            SystemStatus       `json:"system"`
	App               AppStatus          `json:"app"`
	Database          DatabaseStatus     `json:"database"`
	Health            ports.HealthStatus `json:"health"`
	Config            any                `json:"config,omitempty"`
	LastSync          *SyncStatus        `json:"last_sync,omitempty"`
	RecentConnections []Connection       `json:"recent_connections"`
}

// SystemStatus describes the host.
type SystemStatus struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	GoVersion string `json:"go_version"`
	Hostname  string `json:"hostname"`
	CPUs      int    `json:"cpus"`
}

// AppStatus describes the running build.
type AppStatus struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Environment string    `json:"environment"`
	StartedAt   time.Time `json:"started_at"`
	Uptime      string    `json:"uptime"`
	UptimeSecs  float64   `json:"uptime_seconds"`
}

// DatabaseStatus holds catalog counts and where they are stored.
type DatabaseStatus struct {
	Path string `json:"path"`
	domain.Stats
}

// SyncReporter exposes the last catalog sync.
type SyncReporter interface {
	Last() *SyncStatus
}

// StatusService assembles Status.
type StatusService struct {
	quotes      ports.QuoteRepository
	health      ports.HealthRegistry
	sync        SyncReporter
	connections *ConnectionLog
	info        StatusInfo
	started     time.Time
	logger      *slog.Logger
	now         func() time.Time
}

// StatusInfo is the static part of Status.
type StatusInfo struct {
	Name         string
	Version      string
	Environment  string
	DatabasePath string

	// Config is reported verbatim. Keep secrets out of it.
	Config any
}

// StatusServiceConfig contains the dependencies of a StatusService.
type StatusServiceConfig struct {
	Quotes      ports.QuoteRepository
	Health      ports.HealthRegistry
	Sync        SyncReporter
	Connections *ConnectionLog
	Info        StatusInfo
	Logger      *slog.Logger
	Now         func() time.Time
}

// NewStatusService creates a StatusService. Uptime counts from now.
func NewStatusService(cfg StatusServiceConfig) *StatusService {
	if cfg.Quotes == nil {
		panic("app: status service requires quotes")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &StatusService{
		quotes:      cfg.Quotes,
		health:      cfg.Health,
		sync:        cfg.Sync,
		connections: cfg.Connections,
		info:        cfg.Info,
		started:     cfg.Now(),
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
}

// Status reports the host, build, catalog and recent traffic.
func (s *StatusService) Status(ctx context.Context) (*Status, error) {
	stats, health, err := Parallel2(ctx,
		func(ctx context.Context) (domain.Stats, error) {
			return s.quotes.Stats(ctx)
		},
		func(ctx context.Context) (ports.HealthStatus, error) {
			if s.health == nil {
				return ports.HealthStatusHealthy, nil
			}

			return s.health.CheckAll(ctx).Status, nil
		},
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to collect status", slog.Any("error", err))
		return nil, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	uptime := s.now().Sub(s.started)

	status := &Status{
		System: SystemStatus{
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			GoVersion: runtime.Version(),
			Hostname:  hostname,
			CPUs:      runtime.NumCPU(),
		},
		App: AppStatus{
			Name:        s.info.Name,
			Version:     s.info.Version,
			Environment: s.info.Environment,
			StartedAt:   s.started.UTC(),
			Uptime:      uptime.Truncate(time.Second).String(),
			UptimeSecs:  uptime.Seconds(),
		},
		Database: DatabaseStatus{
			Path:  s.info.DatabasePath,
			Stats: stats,
		},
		Health:            health,
		Config:            s.info.Config,
		RecentConnections: []Connection{},
	}

	if s.sync != nil {
		status.LastSync = s.sync.Last()
	}

	if s.connections != nil {
		status.RecentConnections = s.connections.Recent()
	}

	return status, nil
}
