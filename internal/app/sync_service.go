package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/platform/telemetry"
	"github.com/ditto-display/ditto/internal/ports"
)

// ErrSyncInProgress is returned when a sync is requested while one runs.
var ErrSyncInProgress = domain.NewConflictError("sync", "a catalog sync is already running")

// SyncStatus describes the most recent sync attempt.
type SyncStatus struct {
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
	Result    *domain.SyncResult `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// SyncService replaces the local catalog with the upstream one. It is the
// only writer of quotes.
type SyncService struct {
	catalog  ports.CatalogSource
	quotes   ports.QuoteRepository
	cache    ports.RenderCache
	sourceID string
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time

	running sync.Mutex

	mu   sync.RWMutex
	last *SyncStatus
}

// SyncServiceConfig contains the dependencies of a SyncService.
type SyncServiceConfig struct {
	Catalog ports.CatalogSource
	Quotes  ports.QuoteRepository

	// Cache has the cards of removed or edited quotes evicted. Optional.
	Cache ports.RenderCache

	SourceID string
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewSyncService creates a SyncService.
func NewSyncService(cfg SyncServiceConfig) *SyncService {
	if cfg.Catalog == nil || cfg.Quotes == nil {
		panic("app: sync service requires catalog and quotes")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &SyncService{
		catalog:  cfg.Catalog,
		quotes:   cfg.Quotes,
		cache:    cfg.Cache,
		sourceID: cfg.SourceID,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// Run reads the whole upstream catalog and applies it in one transaction.
// Nothing is written unless the full catalog was read.
func (s *SyncService) Run(ctx context.Context) (_ domain.SyncResult, err error) {
	if !s.running.TryLock() {
		return domain.SyncResult{}, ErrSyncInProgress
	}
	defer s.running.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "catalog.sync", attribute.String("ditto.source", s.sourceID))
	defer func() { telemetry.EndSpan(span, err) }()

	started := s.now()
	start := time.Now()

	result, err := Run(ctx, s.logger, s.operation(), s.sourceID)

	elapsed := time.Since(start)
	s.record(started, elapsed, result, err)

	if err != nil {
		s.metrics.ObserveSync(syncOutcome(err), elapsed)
		s.logger.ErrorContext(ctx, "catalog sync failed",
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err),
		)

		return domain.SyncResult{}, err
	}

	s.metrics.ObserveSync(telemetry.SyncSucceeded, elapsed)

	if stats, err := s.quotes.Stats(ctx); err == nil {
		s.metrics.SetCatalog(stats.QuoteCount, stats.ClientCount)
	}

	s.logger.InfoContext(ctx, "catalog synced",
		slog.Int("synced", result.Synced),
		slog.Int("skipped", result.Skipped),
		slog.Int("deleted", result.Deleted),
		slog.Int("appended", result.Appended),
		slog.Duration("elapsed", elapsed),
	)

	return result, nil
}

func (s *SyncService) operation() Operation[string, *ports.CatalogSnapshot, domain.SyncResult] {
	return Operation[string, *ports.CatalogSnapshot, domain.SyncResult]{
		Name: "catalog_sync",
		Validate: func(_ context.Context, sourceID string) error {
			if sourceID == "" {
				return domain.NewValidationError("database_id", "is required")
			}

			return nil
		},
		Fetch: func(ctx context.Context, sourceID string) (*ports.CatalogSnapshot, error) {
			return s.catalog.FetchAllActiveItems(ctx, sourceID)
		},
		Verify: func(_ context.Context, _ string, snap *ports.CatalogSnapshot) error {
			return verifySnapshot(snap)
		},
		Apply: func(ctx context.Context, _ string, snap *ports.CatalogSnapshot) (domain.SyncResult, error) {
			var before []domain.Quote

			if s.cache != nil {
				var err error
				if before, err = s.quotes.ListQuotes(ctx); err != nil {
					return domain.SyncResult{}, err
				}
			}

			result, err := s.quotes.ApplyCatalog(ctx, snap.Items)
			if err != nil {
				return domain.SyncResult{}, err
			}

			result.Skipped = snap.Skipped

			s.evict(ctx, domain.StaleQuotes(before, snap.Items))

			return result, nil
		},
	}
}

// evict drops cached cards that no longer match the catalog. Failures
// leave a stale card behind and are only logged.
func (s *SyncService) evict(ctx context.Context, ids []string) {
	if s.cache == nil || len(ids) == 0 {
		return
	}

	evicted := 0

	for _, id := range ids {
		if err := s.cache.Evict(id); err != nil {
			s.logger.WarnContext(ctx, "failed to evict cached card",
				slog.String("quote_id", id),
				slog.Any("error", err),
			)

			continue
		}

		evicted++
	}

	s.logger.DebugContext(ctx, "evicted stale cards", slog.Int("count", evicted))
}

// verifySnapshot rejects catalogs with missing or repeated ids, which
// would otherwise corrupt every deck.
func verifySnapshot(snap *ports.CatalogSnapshot) error {
	if snap == nil {
		return domain.NewUnavailableError("catalog", "empty response")
	}

	seen := make(map[string]struct{}, len(snap.Items))

	for i, q := range snap.Items {
		if q.ID == "" {
			return domain.NewValidationErrorWithValue("id", "is empty", i)
		}

		if _, dup := seen[q.ID]; dup {
			return domain.NewValidationErrorWithValue("id", "is duplicated", q.ID)
		}

		seen[q.ID] = struct{}{}
	}

	return nil
}

func syncOutcome(err error) string {
	if domain.IsRateLimited(err) {
		return telemetry.SyncRateLimited
	}

	return telemetry.SyncFailed
}

func (s *SyncService) record(started time.Time, elapsed time.Duration, result domain.SyncResult, err error) {
	status := &SyncStatus{StartedAt: started.UTC(), Duration: elapsed}

	if err != nil {
		status.Error = err.Error()
	} else {
		status.Result = &result
	}

	s.mu.Lock()
	s.last = status
	s.mu.Unlock()
}

// Last returns the most recent sync attempt, or nil before the first.
func (s *SyncService) Last() *SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return nil
	}

	last := *s.last

	return &last
}

// Syncer runs one catalog sync.
type Syncer interface {
	Run(ctx context.Context) (domain.SyncResult, error)
}

// DefaultRetryPause is the wait after a failed scheduled sync.
const DefaultRetryPause = 60 * time.Second

// Scheduler runs a Syncer once a day at a fixed local time.
type Scheduler struct {
	syncer     Syncer
	hour       int
	minute     int
	onStartup  bool
	retryPause time.Duration
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
	after      func(time.Duration) <-chan time.Time
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Syncer Syncer

	// Hour and Minute are the local time of day to sync at.
	Hour   int
	Minute int

	// OnStartup runs a sync as soon as Start is called.
	OnStartup bool

	RetryPause time.Duration

	// Timeout bounds one sync. Zero means no bound.
	Timeout time.Duration

	Logger *slog.Logger
	Now    func() time.Time
	After  func(time.Duration) <-chan time.Time
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Syncer == nil {
		return nil, errors.New("scheduler: syncer is required")
	}

	if cfg.Hour < 0 || cfg.Hour > 23 || cfg.Minute < 0 || cfg.Minute > 59 {
		return nil, fmt.Errorf("scheduler: invalid time of day %02d:%02d", cfg.Hour, cfg.Minute)
	}

	if cfg.RetryPause <= 0 {
		cfg.RetryPause = DefaultRetryPause
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.After == nil {
		cfg.After = time.After
	}

	return &Scheduler{
		syncer:     cfg.Syncer,
		hour:       cfg.Hour,
		minute:     cfg.Minute,
		onStartup:  cfg.OnStartup,
		retryPause: cfg.RetryPause,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
		now:        cfg.Now,
		after:      cfg.After,
	}, nil
}

// Start blocks, syncing on schedule until ctx is done. Failed syncs are
// logged and never stop the loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s.onStartup {
		if !s.runOnce(ctx) && !s.wait(ctx, s.retryPause) {
			return
		}
	}

	for {
		next := NextRun(s.now(), s.hour, s.minute)

		s.logger.InfoContext(ctx, "next catalog sync scheduled", slog.Time("at", next))

		if !s.wait(ctx, next.Sub(s.now())) {
			return
		}

		if !s.runOnce(ctx) && !s.wait(ctx, s.retryPause) {
			return
		}
	}
}

// runOnce reports whether the sync succeeded.
func (s *Scheduler) runOnce(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if _, err := s.syncer.Run(ctx); err != nil {
		s.logger.WarnContext(ctx, "scheduled sync failed",
			slog.Duration("retry_in", s.retryPause),
			slog.Any("error", err),
		)

		return false
	}

	return true
}

// wait reports false when ctx ended first.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.after(max(d, 0)):
		return true
	}
}

// NextRun returns the first hour:minute strictly after now, in now's
// location.
func NextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}

	return next
}
