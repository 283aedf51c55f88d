/*
scheduler.go - Automated auto-attribution scheduler

PURPOSE:
  Periodically runs the greedy auto-attribution pass for every household
  and records each run for audit and UI display.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - One pass visits every household; each household is an independent run
  - Passes never overlap: an in-process mutex guards a single instance,
    and when a redis client is configured a distributed lock (SET NX PX)
    guards several instances sharing a database
  - A pass whose lock is held elsewhere is skipped, not queued
  - Manual runs (RunHousehold) take the same locks and fail with
    generic.ErrConflict instead of overlapping a pass

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)
  - Redis: optional *redis.Client for the job lock
  - LockTTL: lock expiry, so a crashed holder cannot block forever

USAGE:
  scheduler := handler.Scheduler // created by NewHandler
  scheduler.Redis = redisClient // optional
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: AutoAttribute endpoint (manual run)
  - payments/matcher.go: AutoAttribute
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/warp/household-payments/generic"
	"github.com/warp/household-payments/payments"
)

// lockKey is the redis key guarding a pass across instances.
const lockKey = "household-payments:auto-attribute"

// releaseScript deletes the lock only if this instance still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// HouseholdLister enumerates the households a pass visits.
type HouseholdLister interface {
	ListHouseholds(ctx context.Context) ([]payments.Household, error)
}

// RunStore is what the scheduler needs from storage.
type RunStore interface {
	HouseholdLister
	payments.RunLog
}

// AttributionScheduler handles automated auto-attribution.
type AttributionScheduler struct {
	Engine        *payments.Engine
	Store         RunStore
	Logger        *slog.Logger
	Redis         *redis.Client
	CheckInterval time.Duration
	LockTTL       time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex // guards Start/Stop
	running sync.Mutex // held for the duration of a pass or manual run

	stateMu sync.Mutex // guards started, lastRun
	started bool
	lastRun time.Time
}

// errRunInProgress is returned by RunHousehold while a pass holds the lock.
var errRunInProgress = fmt.Errorf("%w: auto-attribution already running", generic.ErrConflict)

// NewAttributionScheduler creates a new scheduler.
func NewAttributionScheduler(engine *payments.Engine, store RunStore, logger *slog.Logger) *AttributionScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttributionScheduler{
		Engine:        engine,
		Store:         store,
		Logger:        logger.With("component", "scheduler"),
		CheckInterval: 1 * time.Hour,
		LockTTL:       10 * time.Minute,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *AttributionScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return
	}
	if !s.Enabled || s.CheckInterval <= 0 {
		s.Logger.Info("scheduler disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	s.stateMu.Lock()
	s.started = true
	s.lastRun = time.Time{}
	s.stateMu.Unlock()

	go s.run(s.stop)

	s.Logger.Info("scheduler started", "interval", s.CheckInterval, "distributed_lock", s.Redis != nil)
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (s *AttributionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.stop = make(chan struct{})

		s.stateMu.Lock()
		s.started = false
		s.stateMu.Unlock()
		s.Logger.Info("scheduler stopped")
	}
}

func (s *AttributionScheduler) run(stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow performs one pass over all households and returns the runs it
// recorded. It returns nil without running when another pass holds the lock.
func (s *AttributionScheduler) RunNow(ctx context.Context) []payments.AttributionRun {
	release, err := s.lock(ctx)
	if err != nil {
		s.Logger.InfoContext(ctx, "skipping pass", "reason", err)
		return nil
	}
	defer release()

	households, err := s.Store.ListHouseholds(ctx)
	if err != nil {
		s.Logger.ErrorContext(ctx, "listing households failed", "error", err)
		return nil
	}

	runs := make([]payments.AttributionRun, 0, len(households))
	total := 0
	for _, hh := range households {
		if ctx.Err() != nil {
			break
		}
		run := runAttribution(ctx, s.Engine, s.Store, s.Logger, hh.ID, generic.SystemMember)
		runs = append(runs, run.AttributionRun)
		total += run.Attributed
	}
	s.stateMu.Lock()
	s.lastRun = time.Now()
	s.stateMu.Unlock()

	if total > 0 {
		s.Logger.InfoContext(ctx, "pass completed", "households", len(runs), "attributed", total)
	}
	return runs
}

// RunHousehold runs auto-attribution for one household on behalf of actor.
// It fails with generic.ErrConflict while a pass or another manual run holds
// the lock.
func (s *AttributionScheduler) RunHousehold(ctx context.Context, householdID generic.HouseholdID, actor generic.MemberID) (payments.AttributionRun, error) {
	release, err := s.lock(ctx)
	if err != nil {
		return payments.AttributionRun{}, err
	}
	defer release()

	res := runAttribution(ctx, s.Engine, s.Store, s.Logger, householdID, actor)
	return res.AttributionRun, res.err
}

// lock takes the in-process lock, then the distributed lock when redis is
// configured. Both are released by the returned func.
func (s *AttributionScheduler) lock(ctx context.Context) (func(), error) {
	if !s.running.TryLock() {
		return nil, errRunInProgress
	}
	releaseRemote, err := s.acquire(ctx)
	if err != nil {
		s.running.Unlock()
		return nil, err
	}
	return func() {
		releaseRemote()
		s.running.Unlock()
	}, nil
}

// acquire takes the distributed lock when redis is configured.
func (s *AttributionScheduler) acquire(ctx context.Context) (func(), error) {
	if s.Redis == nil {
		return func() {}, nil
	}
	token := uuid.NewString()
	ok, err := s.Redis.SetNX(ctx, lockKey, token, s.LockTTL).Result()
	if err != nil {
		s.Logger.ErrorContext(ctx, "acquiring job lock failed", "error", err)
		return nil, fmt.Errorf("%w: job lock unavailable: %v", generic.ErrConflict, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: job lock held by another instance", generic.ErrConflict)
	}
	return func() {
		// Release even when ctx is already cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, s.Redis, []string{lockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			s.Logger.WarnContext(rctx, "releasing job lock failed", "error", err)
		}
	}, nil
}

// NextRunTime returns when the next scheduled pass will occur. ok is false
// when the scheduler is not running.
func (s *AttributionScheduler) NextRunTime() (next time.Time, ok bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if !s.started {
		return time.Time{}, false
	}
	if s.lastRun.IsZero() {
		return time.Now(), true
	}
	return s.lastRun.Add(s.CheckInterval), true
}

// =============================================================================
// SINGLE RUN
// =============================================================================

type attributionResult struct {
	payments.AttributionRun
	err error
}

// runAttribution runs AutoAttribute for one household and records the run.
// A failing run log is logged only.
func runAttribution(ctx context.Context, engine *payments.Engine, runs payments.RunLog, logger *slog.Logger, householdID generic.HouseholdID, actor generic.MemberID) attributionResult {
	res := attributionResult{AttributionRun: payments.AttributionRun{
		ID:          uuid.NewString(),
		HouseholdID: householdID,
		StartedAt:   engine.Now().UTC(),
	}}

	res.Attributed, res.err = engine.AutoAttribute(ctx, householdID, actor)
	res.FinishedAt = engine.Now().UTC()
	if res.err != nil {
		res.Error = res.err.Error()
		logger.ErrorContext(ctx, "auto-attribution failed",
			"household_id", householdID,
			"attributed", res.Attributed,
			"error", res.err)
	}

	// Unknown households have nothing to record against.
	if generic.IsNotFound(res.err) {
		return res
	}
	if err := runs.SaveAttributionRun(ctx, res.AttributionRun); err != nil {
		logger.WarnContext(ctx, "recording run failed", "household_id", householdID, "error", err)
	}
	return res
}
