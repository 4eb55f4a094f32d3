package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/user/prober-service/internal/candidate"
	"github.com/user/prober-service/internal/entity"
	"github.com/user/prober-service/internal/proxy"
	"github.com/user/prober-service/internal/repository"
	"github.com/user/prober-service/pkg/metrics"
)

var (
	ErrAlreadyRunning = errors.New("engine is already running")
	ErrNotRunning     = errors.New("engine is not running")
	ErrNotPaused      = errors.New("engine is not paused")
	ErrNoWorkers      = errors.New("worker count must be positive")
	ErrNoCandidates   = errors.New("candidate set is empty")
	ErrNilProber      = errors.New("prober is required")
	ErrStoreLocked    = errors.New("result store is in use by another engine")
)

const releaseTimeout = 5 * time.Second

// Notifier receives the push events of a run. Implementations must not block.
type Notifier interface {
	Log(entity.LogEvent)
	Stats(entity.StatsEvent)
	Proxies([]entity.ProxyEvent)
	Result(entity.Record)
	Status(entity.EngineState)
}

type nopNotifier struct{}

func (nopNotifier) Log(entity.LogEvent)         {}
func (nopNotifier) Stats(entity.StatsEvent)     {}
func (nopNotifier) Proxies([]entity.ProxyEvent) {}
func (nopNotifier) Result(entity.Record)        {}
func (nopNotifier) Status(entity.EngineState)   {}

// EngineConfig tunes a run.
type EngineConfig struct {
	ProbeTimeout     time.Duration
	DispatchInterval time.Duration
	StatsInterval    time.Duration
	RunLockTTL       time.Duration
	// RequireProxy stops the run when no egress path is usable instead of probing directly.
	RequireProxy bool
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 15 * time.Second
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = time.Second
	}
	if c.RunLockTTL <= 0 {
		c.RunLockTTL = time.Minute
	}
	if c.DispatchInterval < 0 {
		c.DispatchInterval = 0
	}
	return c
}

// Engine runs a bounded pool of workers over a finite candidate queue.
// One Engine owns all mutable run state; Start may be called again once it is Idle.
type Engine struct {
	pool     *proxy.Pool
	store    repository.RecordRepository
	lock     repository.RunLock
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cfg      EngineConfig
	tracker  *RateTracker
	now      func() time.Time

	mu        sync.Mutex
	gate      *sync.Cond
	phase     entity.Phase
	starting  bool
	runID     string
	total     int
	startedAt time.Time
	current   string
	cancel    context.CancelFunc
	done      chan struct{}
}

type EngineOption func(*Engine)

// WithRunLock makes Start take lock before any worker is spawned.
func WithRunLock(lock repository.RunLock) EngineOption {
	return func(e *Engine) { e.lock = lock }
}

func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an idle engine.
func NewEngine(pool *proxy.Pool, store repository.RecordRepository, logger *zap.Logger, cfg EngineConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		pool:     pool,
		store:    store,
		notifier: nopNotifier{},
		logger:   logger.With(zap.String("component", "engine")),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		phase:    entity.PhaseIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New(prometheus.NewRegistry())
	}
	if e.pool == nil {
		e.pool = proxy.NewPool(nil)
	}
	e.tracker = NewRateTracker(e.now)
	e.gate = sync.NewCond(&e.mu)
	return e
}

// Start launches workerCount workers over candidates. It fails with ErrAlreadyRunning
// unless the engine is Idle, and rejects bad configuration before spawning anything.
func (e *Engine) Start(ctx context.Context, candidates []string, workerCount int, prober repository.Prober) error {
	if err := e.reserve(workerCount, len(candidates), prober); err != nil {
		return err
	}

	runID := uuid.NewString()
	if e.lock != nil {
		ok, err := e.lock.Acquire(ctx, runID, e.cfg.RunLockTTL)
		if err != nil || !ok {
			e.mu.Lock()
			e.starting = false
			e.mu.Unlock()
			if err != nil {
				return fmt.Errorf("acquire run lock: %w", err)
			}
			return ErrStoreLocked
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.starting = false

	queue := make(chan string, len(candidates))
	for _, c := range candidates {
		queue <- c
	}
	close(queue)

	runCtx, cancel := context.WithCancel(context.Background())
	e.tracker.Reset()
	e.runID = runID
	e.total = len(candidates)
	e.startedAt = e.now()
	e.current = ""
	e.cancel = cancel
	e.done = make(chan struct{})
	e.setPhase(entity.PhaseRunning)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(runCtx, queue, prober)
		}()
	}
	go e.report(runCtx, runID)
	go func() {
		wg.Wait()
		e.finish(runID)
	}()

	e.logger.Info("run started",
		zap.String("run_id", runID),
		zap.Int("candidates", len(candidates)),
		zap.Int("workers", workerCount),
	)
	e.emitLog(entity.LevelSuccess, fmt.Sprintf("Starting run of %d candidates with %d workers", len(candidates), workerCount))
	e.notifier.Status(e.stateLocked())
	return nil
}

// reserve validates a start request and claims the Idle engine for it.
// The claim keeps a concurrent Start out while the run lock is acquired.
func (e *Engine) reserve(workerCount, candidateCount int, prober repository.Prober) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != entity.PhaseIdle || e.starting {
		return ErrAlreadyRunning
	}
	if workerCount <= 0 {
		return ErrNoWorkers
	}
	if candidateCount == 0 {
		return ErrNoCandidates
	}
	if prober == nil {
		return ErrNilProber
	}
	e.starting = true
	return nil
}

// Pause stops workers from taking new candidates. In-flight probes complete.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != entity.PhaseRunning {
		return ErrNotRunning
	}
	e.setPhase(entity.PhasePaused)
	e.logger.Info("run paused", zap.String("run_id", e.runID))
	e.emitLog(entity.LevelInfo, "Run paused")
	e.notifier.Status(e.stateLocked())
	return nil
}

// Resume releases workers blocked by Pause.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != entity.PhasePaused {
		return ErrNotPaused
	}
	e.setPhase(entity.PhaseRunning)
	e.gate.Broadcast()
	e.logger.Info("run resumed", zap.String("run_id", e.runID))
	e.emitLog(entity.LevelInfo, "Run resumed")
	e.notifier.Status(e.stateLocked())
	return nil
}

// Stop requests cancellation. It is idempotent and returns immediately;
// use Wait to block until the engine is Idle again.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == entity.PhaseIdle || e.phase == entity.PhaseStopping {
		return
	}
	e.setPhase(entity.PhaseStopping)
	e.cancel()
	e.gate.Broadcast()
	e.logger.Info("run stopping", zap.String("run_id", e.runID))
	e.emitLog(entity.LevelWarning, "Stop requested, waiting for in-flight probes")
	e.notifier.Status(e.stateLocked())
}

// Wait blocks until the current run, if any, has returned to Idle.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a copy of the engine state. It is valid in every phase.
func (e *Engine) Status() entity.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Proxies returns the egress path statistics as push events.
func (e *Engine) Proxies() []entity.ProxyEvent {
	snap := e.pool.Snapshot()
	out := make([]entity.ProxyEvent, len(snap))
	for i, p := range snap {
		out[i] = entity.ProxyEvent{
			Address:      p.Address,
			Health:       p.Health,
			RequestCount: p.RequestCount,
			SuccessRate:  p.SuccessRate(),
		}
	}
	return out
}

func (e *Engine) worker(ctx context.Context, queue <-chan string, prober repository.Prober) {
	limiter := rate.NewLimiter(rate.Every(e.cfg.DispatchInterval), 1)
	for {
		if !e.waitWhilePaused() {
			return
		}
		id, ok := <-queue
		if !ok {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		// Pause may have landed while pacing.
		if !e.waitWhilePaused() {
			return
		}
		e.setCurrent(id)
		if stop := e.probe(ctx, id, prober); stop {
			e.Stop()
			return
		}
	}
}

// waitWhilePaused blocks on the pause gate and reports whether the worker may continue.
func (e *Engine) waitWhilePaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.phase == entity.PhasePaused {
		e.gate.Wait()
	}
	return e.phase == entity.PhaseRunning
}

// probe handles one candidate. It returns true when the run must stop.
func (e *Engine) probe(ctx context.Context, id string, prober repository.Prober) bool {
	egress := ""
	if path, ok := e.pool.Acquire(); ok {
		egress = path.Address
	} else if e.cfg.RequireProxy {
		e.logger.Error("no usable egress path, stopping run", zap.String("candidate", id))
		e.emitLog(entity.LevelError, "No usable egress path left, stopping run")
		return true
	}

	// Stop must not abort in-flight calls; they finish or hit the timeout.
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ProbeTimeout)
	started := time.Now()
	result, err := prober.Probe(probeCtx, id, egress)
	elapsed := time.Since(started)
	cancel()
	e.metrics.ProbeDuration.Observe(elapsed.Seconds())

	if err == nil && result == nil {
		err = &repository.ProbeError{Kind: repository.ErrTransport, Candidate: id, Egress: egress, Err: errors.New("prober returned no result")}
	}
	if err != nil {
		if egress != "" {
			e.pool.ReportFailure(egress)
		}
		e.tracker.Record(EventError)
		outcome := errorOutcome(err)
		e.metrics.ProbesTotal.WithLabelValues(outcome).Inc()
		e.logger.Debug("probe failed",
			zap.String("candidate", id),
			zap.String("egress", egress),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return false
	}

	if egress != "" {
		e.pool.ReportSuccess(egress, elapsed)
	}
	e.tracker.Record(EventChecked)
	if !result.Exists {
		e.metrics.ProbesTotal.WithLabelValues("absent").Inc()
		return false
	}
	e.tracker.Record(EventFound)
	e.metrics.ProbesTotal.WithLabelValues("found").Inc()

	record := toRecord(id, result, e.now())
	storeCtx, storeCancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ProbeTimeout)
	defer storeCancel()
	if err := e.store.Upsert(storeCtx, record); err != nil {
		e.metrics.StoreErrors.Inc()
		e.logger.Error("failed to store record", zap.String("candidate", id), zap.Error(err))
		e.emitLog(entity.LevelError, fmt.Sprintf("Error saving @%s: %v", id, err))
		return false
	}
	e.metrics.RecordsUpserted.WithLabelValues(string(record.Classification)).Inc()
	e.logger.Info("candidate found",
		zap.String("candidate", id),
		zap.String("classification", string(record.Classification)),
	)
	e.emitLog(entity.LevelSuccess, "Found: @"+id)
	e.notifier.Result(*record)
	return false
}

// report pushes stats and proxy health until the run context ends.
func (e *Engine) report(ctx context.Context, runID string) {
	ticker := time.NewTicker(e.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.publishProgress()
			if e.lock != nil {
				refreshCtx, cancel := context.WithTimeout(ctx, releaseTimeout)
				err := e.lock.Refresh(refreshCtx, runID, e.cfg.RunLockTTL)
				cancel()
				if errors.Is(err, repository.ErrLockLost) {
					e.logger.Error("run lock taken by another owner, stopping run", zap.String("run_id", runID))
					e.emitLog(entity.LevelError, "Run lock lost, stopping run")
					e.Stop()
					return
				}
				if err != nil {
					e.logger.Warn("failed to refresh run lock", zap.String("run_id", runID), zap.Error(err))
				}
			}
		}
	}
}

func (e *Engine) finish(runID string) {
	e.mu.Lock()
	if e.phase != entity.PhaseStopping {
		e.setPhase(entity.PhaseStopping)
		e.notifier.Status(e.stateLocked())
	}
	e.cancel()
	e.setPhase(entity.PhaseIdle)
	e.current = ""
	done := e.done
	state := e.stateLocked()
	e.mu.Unlock()

	if e.lock != nil {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		if err := e.lock.Release(ctx, runID); err != nil {
			e.logger.Warn("failed to release run lock", zap.String("run_id", runID), zap.Error(err))
		}
		cancel()
	}

	e.publishProgress()
	e.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.Int64("checked", state.TotalChecked),
		zap.Int64("found", state.TotalFound),
		zap.Int64("errors", state.ErrorCount),
	)
	e.emitLog(entity.LevelSuccess, fmt.Sprintf("Run complete: %d checked, %d found, %d errors",
		state.TotalChecked, state.TotalFound, state.ErrorCount))
	e.notifier.Status(state)
	close(done)
}

func (e *Engine) publishProgress() {
	state := e.Status()
	e.notifier.Stats(entity.StatsEvent{
		Checked:          state.TotalChecked,
		Found:            state.TotalFound,
		Errors:           state.ErrorCount,
		Rate:             state.Rate,
		Progress:         state.Progress,
		CurrentCandidate: state.CurrentCandidate,
	})
	e.notifier.Proxies(e.Proxies())
	for health, n := range e.pool.Counts() {
		e.metrics.Proxies.WithLabelValues(string(health)).Set(float64(n))
	}
}

func (e *Engine) setCurrent(id string) {
	e.mu.Lock()
	e.current = id
	e.mu.Unlock()
}

// setPhase must be called with e.mu held.
func (e *Engine) setPhase(p entity.Phase) {
	e.phase = p
	e.metrics.EnginePhase.Set(p.Ordinal())
}

// stateLocked must be called with e.mu held.
func (e *Engine) stateLocked() entity.EngineState {
	snap := e.tracker.Snapshot()
	state := entity.EngineState{
		RunID:            e.runID,
		Phase:            e.phase,
		TotalCandidates:  e.total,
		TotalChecked:     snap.TotalChecked,
		TotalFound:       snap.TotalFound,
		ErrorCount:       snap.TotalErrors,
		Rate:             snap.CheckedPerMinute,
		StartedAt:        e.startedAt,
		CurrentCandidate: e.current,
	}
	if e.total > 0 {
		state.Progress = float64(snap.TotalChecked+snap.TotalErrors) / float64(e.total) * 100
	}
	return state
}

func (e *Engine) emitLog(level, message string) {
	e.notifier.Log(entity.LogEvent{Timestamp: e.now(), Level: level, Message: message})
}

func errorOutcome(err error) string {
	switch {
	case errors.Is(err, repository.ErrProbeTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, repository.ErrProxyFailure):
		return "proxy"
	case errors.Is(err, repository.ErrUpstreamStatus):
		return "status"
	default:
		return "transport"
	}
}

func toRecord(id string, result *entity.ProbeResult, now time.Time) *entity.Record {
	identifier := candidate.Normalize(id)
	name := result.DisplayName
	if name == "" {
		name = identifier
	}
	classification, err := entity.ParseClassification(string(result.Classification))
	if err != nil {
		classification = entity.ClassificationUnknown
	}
	attrs := make(map[string]string, len(result.Attributes))
	for k, v := range result.Attributes {
		attrs[k] = v
	}
	return &entity.Record{
		Identifier:     identifier,
		DisplayName:    name,
		Classification: classification,
		Attributes:     attrs,
		FirstSeenAt:    now,
		LastSeenAt:     now,
	}
}
