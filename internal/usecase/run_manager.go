package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/prober-service/internal/candidate"
	"github.com/user/prober-service/internal/entity"
	"github.com/user/prober-service/internal/repository"
)

// ErrQueueUnsupported is returned by Enqueue when no candidate queue is configured.
var ErrQueueUnsupported = errors.New("candidate queue is not configured")

// StartRequest selects the candidates and concurrency of a run.
type StartRequest struct {
	WorkerCount   int
	MaxCandidates int
	// Candidates, when set, replaces the configured source.
	Candidates []string
}

// RunManager is the control surface over a single Engine.
type RunManager interface {
	Start(ctx context.Context, req StartRequest) (entity.EngineState, error)
	Pause() error
	Resume() error
	Stop()
	Status() entity.EngineState
	Records(ctx context.Context, filter entity.RecordFilter) ([]entity.Record, error)
	Export(ctx context.Context) ([]entity.Record, error)
	Proxies() []entity.ProxyEvent
	Enqueue(ctx context.Context, candidates []string) (int, error)
}

type runManager struct {
	engine         *Engine
	store          repository.RecordRepository
	source         candidate.Source
	queue          repository.QueueRepository
	prober         repository.Prober
	defaultWorkers int
	logger         *zap.Logger
}

// NewRunManager wires an engine to its candidate source and prober. queue may be nil.
func NewRunManager(
	engine *Engine,
	store repository.RecordRepository,
	source candidate.Source,
	queue repository.QueueRepository,
	prober repository.Prober,
	defaultWorkers int,
	logger *zap.Logger,
) RunManager {
	return &runManager{
		engine:         engine,
		store:          store,
		source:         source,
		queue:          queue,
		prober:         prober,
		defaultWorkers: defaultWorkers,
		logger:         logger.With(zap.String("component", "run_manager")),
	}
}

func (m *runManager) Start(ctx context.Context, req StartRequest) (entity.EngineState, error) {
	workers := req.WorkerCount
	if workers <= 0 {
		workers = m.defaultWorkers
	}

	var (
		ids     []string
		drained bool
	)
	if len(req.Candidates) > 0 {
		ids = candidate.Dedupe(req.Candidates)
		if req.MaxCandidates > 0 && len(ids) > req.MaxCandidates {
			ids = ids[:req.MaxCandidates]
		}
	} else if m.source != nil {
		if m.engine.Status().Phase != entity.PhaseIdle {
			// Draining a queue source is destructive; refuse before touching it.
			return m.engine.Status(), ErrAlreadyRunning
		}
		var err error
		ids, err = m.source.Candidates(ctx, req.MaxCandidates)
		if err != nil {
			m.requeue(ctx, ids)
			return entity.EngineState{}, fmt.Errorf("load candidates: %w", err)
		}
		drained = true
	}

	if err := m.engine.Start(ctx, ids, workers, m.prober); err != nil {
		if drained {
			m.requeue(ctx, ids)
		}
		return m.engine.Status(), err
	}
	m.logger.Info("run requested", zap.Int("candidates", len(ids)), zap.Int("workers", workers))
	return m.engine.Status(), nil
}

// requeue hands candidates popped from a queue-backed source back to it.
// Other sources are re-readable and need nothing.
func (m *runManager) requeue(ctx context.Context, ids []string) {
	q, ok := m.source.(repository.QueueRepository)
	if !ok || len(ids) == 0 {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := q.Push(pushCtx, ids...); err != nil {
		m.logger.Error("failed to requeue candidates", zap.Int("candidates", len(ids)), zap.Error(err))
		return
	}
	m.logger.Warn("run refused, candidates requeued", zap.Int("candidates", len(ids)))
}

func (m *runManager) Pause() error { return m.engine.Pause() }

func (m *runManager) Resume() error { return m.engine.Resume() }

func (m *runManager) Stop() { m.engine.Stop() }

func (m *runManager) Status() entity.EngineState { return m.engine.Status() }

func (m *runManager) Records(ctx context.Context, filter entity.RecordFilter) ([]entity.Record, error) {
	records, err := m.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

func (m *runManager) Export(ctx context.Context) ([]entity.Record, error) {
	records, err := m.store.ExportAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("export records: %w", err)
	}
	if records == nil {
		records = []entity.Record{}
	}
	return records, nil
}

func (m *runManager) Proxies() []entity.ProxyEvent { return m.engine.Proxies() }

// Enqueue pushes normalized candidates onto the queue and returns how many were accepted.
func (m *runManager) Enqueue(ctx context.Context, candidates []string) (int, error) {
	if m.queue == nil {
		return 0, ErrQueueUnsupported
	}
	ids := candidate.Dedupe(candidates)
	if len(ids) == 0 {
		return 0, nil
	}
	if err := m.queue.Push(ctx, ids...); err != nil {
		return 0, fmt.Errorf("enqueue candidates: %w", err)
	}
	return len(ids), nil
}
