package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/user/prober-service/internal/adapter/memory"
	"github.com/user/prober-service/internal/entity"
	"github.com/user/prober-service/internal/proxy"
	"github.com/user/prober-service/internal/repository"
	"github.com/user/prober-service/pkg/metrics"
)

type recordingNotifier struct {
	mu      sync.Mutex
	logs    []entity.LogEvent
	results []entity.Record
	phases  []entity.Phase
	stats   int
}

func (n *recordingNotifier) Log(ev entity.LogEvent) {
	n.mu.Lock()
	n.logs = append(n.logs, ev)
	n.mu.Unlock()
}

func (n *recordingNotifier) Stats(entity.StatsEvent) {
	n.mu.Lock()
	n.stats++
	n.mu.Unlock()
}

func (n *recordingNotifier) Proxies([]entity.ProxyEvent) {}

func (n *recordingNotifier) Result(r entity.Record) {
	n.mu.Lock()
	n.results = append(n.results, r)
	n.mu.Unlock()
}

func (n *recordingNotifier) Status(s entity.EngineState) {
	n.mu.Lock()
	n.phases = append(n.phases, s.Phase)
	n.mu.Unlock()
}

func (n *recordingNotifier) logsAt(level string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, l := range n.logs {
		if l.Level == level {
			count++
		}
	}
	return count
}

type failingStore struct{}

func (failingStore) Upsert(context.Context, *entity.Record) error {
	return errors.New("disk full")
}

func (failingStore) List(context.Context, entity.RecordFilter) ([]entity.Record, error) {
	return []entity.Record{}, nil
}

func (failingStore) ExportAll(context.Context) ([]entity.Record, error) {
	return []entity.Record{}, nil
}

type fakeLock struct {
	mu         sync.Mutex
	grant      bool
	holder     string
	released   bool
	refreshErr error
}

func (l *fakeLock) Acquire(_ context.Context, owner string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.grant {
		return false, nil
	}
	l.holder = owner
	return true, nil
}

func (l *fakeLock) Refresh(context.Context, string, time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refreshErr
}

// slowLock holds Acquire until proceed is closed.
type slowLock struct {
	entered chan struct{}
	proceed chan struct{}
}

func (l *slowLock) Acquire(ctx context.Context, _ string, _ time.Duration) (bool, error) {
	close(l.entered)
	select {
	case <-l.proceed:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (l *slowLock) Refresh(context.Context, string, time.Duration) error { return nil }

func (l *slowLock) Release(context.Context, string) error { return nil }

func (l *fakeLock) Release(_ context.Context, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if owner == l.holder {
		l.released = true
	}
	return nil
}

// blockingProber signals each started probe and holds it until release is closed.
type blockingProber struct {
	started chan string
	release chan struct{}
}

func newBlockingProber() *blockingProber {
	return &blockingProber{started: make(chan string, 64), release: make(chan struct{})}
}

func (p *blockingProber) Probe(ctx context.Context, candidate, _ string) (*entity.ProbeResult, error) {
	select {
	case p.started <- candidate:
	default:
	}
	select {
	case <-p.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &entity.ProbeResult{Candidate: candidate}, nil
}

func newTestEngine(t *testing.T, pool *proxy.Pool, store repository.RecordRepository, cfg EngineConfig, opts ...EngineOption) *Engine {
	t.Helper()
	if cfg.StatsInterval == 0 {
		cfg.StatsInterval = 10 * time.Millisecond
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	opts = append([]EngineOption{WithMetrics(metrics.New(prometheus.NewRegistry()))}, opts...)
	return NewEngine(pool, store, zaptest.NewLogger(t), cfg, opts...)
}

func waitIdle(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("engine did not return to idle: %v", err)
	}
	if got := e.Status().Phase; got != entity.PhaseIdle {
		t.Fatalf("phase after Wait = %s, want idle", got)
	}
}

func waitStarted(t *testing.T, p *blockingProber) string {
	t.Helper()
	select {
	case c := <-p.started:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no probe started")
		return ""
	}
}

func TestEngineEndToEnd(t *testing.T) {
	pool := proxy.NewPool([]string{"p1:8080", "p2:8080", "p3:8080"})
	store := memory.NewRecordRepository()
	notifier := &recordingNotifier{}
	e := newTestEngine(t, pool, store, EngineConfig{}, WithNotifier(notifier))

	prober := repository.ProberFunc(func(_ context.Context, candidate, egress string) (*entity.ProbeResult, error) {
		if egress == "" {
			t.Errorf("probe of %s went direct with healthy proxies available", candidate)
		}
		switch candidate {
		case "alice":
			return &entity.ProbeResult{Candidate: candidate, Exists: true, DisplayName: "Alice", Classification: entity.ClassificationFree}, nil
		case "bob":
			return &entity.ProbeResult{Candidate: candidate, Exists: true, Classification: entity.ClassificationPaid,
				Attributes: map[string]string{"title": "Bob"}}, nil
		default:
			return &entity.ProbeResult{Candidate: candidate}, nil
		}
	})

	if err := e.Start(context.Background(), []string{"alice", "bob", "carol"}, 2, prober); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, e)

	st := e.Status()
	if st.TotalChecked != 3 || st.TotalFound != 2 || st.ErrorCount != 0 {
		t.Fatalf("status = %+v, want checked=3 found=2 errors=0", st)
	}
	if st.Progress != 100 {
		t.Fatalf("Progress = %v, want 100", st.Progress)
	}

	records, err := store.ExportAll(context.Background())
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	byID := map[string]entity.Record{}
	for _, r := range records {
		byID[r.Identifier] = r
	}
	if byID["alice"].Classification != entity.ClassificationFree || byID["alice"].DisplayName != "Alice" {
		t.Fatalf("alice = %+v", byID["alice"])
	}
	if byID["bob"].Classification != entity.ClassificationPaid || byID["bob"].DisplayName != "bob" {
		t.Fatalf("bob = %+v", byID["bob"])
	}

	var requests uint64
	for _, p := range pool.Snapshot() {
		requests += p.RequestCount
		if p.Health != entity.HealthHealthy && p.RequestCount > 0 {
			t.Fatalf("proxy %s health = %s after successes", p.Address, p.Health)
		}
	}
	if requests != 3 {
		t.Fatalf("proxy requests = %d, want 3", requests)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.results) != 2 {
		t.Fatalf("result events = %d, want 2", len(notifier.results))
	}
	if last := notifier.phases[len(notifier.phases)-1]; last != entity.PhaseIdle {
		t.Fatalf("last status event phase = %s, want idle", last)
	}
}

func TestEngineRestartsAfterCompletion(t *testing.T) {
	e := newTestEngine(t, nil, memory.NewRecordRepository(), EngineConfig{})
	prober := repository.ProberFunc(func(_ context.Context, c, _ string) (*entity.ProbeResult, error) {
		return &entity.ProbeResult{Candidate: c}, nil
	})

	for run := 0; run < 2; run++ {
		if err := e.Start(context.Background(), []string{"x", "y"}, 1, prober); err != nil {
			t.Fatalf("run %d Start: %v", run, err)
		}
		waitIdle(t, e)
		if got := e.Status().TotalChecked; got != 2 {
			t.Fatalf("run %d TotalChecked = %d, want 2", run, got)
		}
	}
}

func TestEngineRejectsBadConfiguration(t *testing.T) {
	e := newTestEngine(t, nil, memory.NewRecordRepository(), EngineConfig{})
	prober := repository.ProberFunc(func(context.Context, string, string) (*entity.ProbeResult, error) {
		return &entity.ProbeResult{}, nil
	})

	cases := map[string]struct {
		candidates []string
		workers    int
		prober     repository.Prober
		want       error
	}{
		"zero workers":     {[]string{"a"}, 0, prober, ErrNoWorkers},
		"negative workers": {[]string{"a"}, -1, prober, ErrNoWorkers},
		"no candidates":    {nil, 1, prober, ErrNoCandidates},
		"nil prober":       {[]string{"a"}, 1, nil, ErrNilProber},
	}
	for name, tc := range cases {
		err := e.Start(context.Background(), tc.candidates, tc.workers, tc.prober)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: Start error = %v, want %v", name, err, tc.want)
		}
		if got := e.Status().Phase; got != entity.PhaseIdle {
			t.Fatalf("%s: phase = %s, want idle", name, got)
		}
	}
}

func TestEngineStateMachine(t *testing.T) {
	e := newTestEngine(t, nil, memory.NewRecordRepository(), EngineConfig{})

	if err := e.Pause(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Pause while idle = %v, want ErrNotRunning", err)
	}
	if err := e.Resume(); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("Resume while idle = %v, want ErrNotPaused", err)
	}
	e.Stop()

	prober := newBlockingProber()
	if err := e.Start(context.Background(), []string{"a", "b", "c"}, 1, prober); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, prober)

	if err := e.Start(context.Background(), []string{"z"}, 1, prober); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start = %v, want ErrAlreadyRunning", err)
	}
	if err := e.Resume(); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("Resume while running = %v, want ErrNotPaused", err)
	}
	if err := e.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := e.Pause(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("second Pause = %v, want ErrNotRunning", err)
	}
	if err := e.Start(context.Background(), []string{"z"}, 1, prober); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Start while paused = %v, want ErrAlreadyRunning", err)
	}
	if err := e.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := e.Status().Phase; got != entity.PhaseRunning {
		t.Fatalf("phase after Resume = %s, want running", got)
	}

	e.Stop()
	if got := e.Status().Phase; got != entity.PhaseStopping {
		t.Fatalf("phase after Stop = %s, want stopping", got)
	}
	e.Stop()
	if err := e.Pause(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Pause while stopping = %v, want ErrNotRunning", err)
	}
	close(prober.release)
	waitIdle(t, e)
}

func TestEnginePauseHoldsWorkersAndStopDrains(t *testing.T) {
	e := newTestEngine(t, nil, memory.NewRecordRepository(), EngineConfig{})
	prober := newBlockingProber()

	if err := e.Start(context.Background(), []string{"a", "b", "c", "d"}, 1, prober); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, prober)
	if err := e.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	close(prober.release)

	time.Sleep(100 * time.Millisecond)
	st := e.Status()
	if st.Phase != entity.PhasePaused {
		t.Fatalf("phase = %s, want paused", st.Phase)
	}
	if st.TotalChecked != 1 {
		t.Fatalf("TotalChecked while paused = %d, want only the in-flight probe", st.TotalChecked)
	}

	e.Stop()
	waitIdle(t, e)
	if got := e.Status().TotalChecked; got != 1 {
		t.Fatalf("TotalChecked after stop = %d, want 1", got)
	}
}

func TestEngineStoreErrorDoesNotStopRun(t *testing.T) {
	notifier := &recordingNotifier{}
	e := newTestEngine(t, nil, failingStore{}, EngineConfig{}, WithNotifier(notifier))
	prober := repository.ProberFunc(func(_ context.Context, c, _ string) (*entity.ProbeResult, error) {
		return &entity.ProbeResult{Candidate: c, Exists: true, Classification: entity.ClassificationFree}, nil
	})

	if err := e.Start(context.Background(), []string{"a", "b", "c"}, 2, prober); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, e)

	st := e.Status()
	if st.TotalChecked != 3 || st.TotalFound != 3 {
		t.Fatalf("status = %+v, want checked=3 found=3", st)
	}
	if got := notifier.logsAt(entity.LevelError); got != 3 {
		t.Fatalf("ERROR logs = %d, want 3", got)
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.results) != 0 {
		t.Fatalf("result events = %d, want 0", len(notifier.results))
	}
}

func TestEngineProbesDirectWithoutProxies(t *testing.T) {
	e := newTestEngine(t, proxy.NewPool(nil), memory.NewRecordRepository(), EngineConfig{})
	var mu sync.Mutex
	var egresses []string
	prober := repository.ProberFunc(func(_ context.Context, c, egress string) (*entity.ProbeResult, error) {
		mu.Lock()
		egresses = append(egresses, egress)
		mu.Unlock()
		return &entity.ProbeResult{Candidate: c}, nil
	})

	if err := e.Start(context.Background(), []string{"a", "b"}, 1, prober); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, e)

	mu.Lock()
	defer mu.Unlock()
	if len(egresses) != 2 || egresses[0] != "" || egresses[1] != "" {
		t.Fatalf("egresses = %q, want two direct probes", egresses)
	}
}

func TestEngineRequireProxyStopsRun(t *testing.T) {
	notifier := &recordingNotifier{}
	e := newTestEngine(t, proxy.NewPool(nil), memory.NewRecordRepository(),
		EngineConfig{RequireProxy: true}, WithNotifier(notifier))
	prober := repository.ProberFunc(func(context.Context, string, string) (*entity.ProbeResult, error) {
		t.Error("prober called without an egress path")
		return &entity.ProbeResult{}, nil
	})

	if err := e.Start(context.Background(), []string{"a", "b", "c"}, 2, prober); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, e)

	if got := e.Status().TotalChecked; got != 0 {
		t.Fatalf("TotalChecked = %d, want 0", got)
	}
	if notifier.logsAt(entity.LevelError) == 0 {
		t.Fatal("no ERROR log for missing egress path")
	}
}

func TestEngineMarksFailingProxyDownAndFallsBack(t *testing.T) {
	pool := proxy.NewPool([]string{"bad:3128"})
	e := newTestEngine(t, pool, memory.NewRecordRepository(), EngineConfig{})
	prober := repository.ProberFunc(func(_ context.Context, c, egress string) (*entity.ProbeResult, error) {
		if egress != "" {
			return nil, &repository.ProbeError{Kind: repository.ErrProxyFailure, Candidate: c, Egress: egress, Err: errors.New("connection refused")}
		}
		return &entity.ProbeResult{Candidate: c}, nil
	})

	candidates := make([]string, 15)
	for i := range candidates {
		candidates[i] = string(rune('a' + i))
	}
	if err := e.Start(context.Background(), candidates, 1, prober); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, e)

	st := e.Status()
	if st.ErrorCount != 11 || st.TotalChecked != 4 {
		t.Fatalf("status = %+v, want errors=11 checked=4", st)
	}
	if got := pool.Snapshot()[0].Health; got != entity.HealthDown {
		t.Fatalf("proxy health = %s, want down", got)
	}
}

func TestEngineRunLock(t *testing.T) {
	prober := repository.ProberFunc(func(_ context.Context, c, _ string) (*entity.ProbeResult, error) {
		return &entity.ProbeResult{Candidate: c}, nil
	})

	denied := newTestEngine(t, nil, memory.NewRecordRepository(), EngineConfig{}, WithRunLock(&fakeLock{}))
	if err := denied.Start(context.Background(), []string{"a"}, 1, prober); !errors.Is(err, ErrStoreLocked) {
		t.Fatalf("Start with held lock = %v, want ErrStoreLocked", err)
	}
	if got := denied.Status().Phase; got != entity.PhaseIdle {
		t.Fatalf("phase = %s, want idle", got)
	}

	lock := &fakeLock{grant: true}
	e := newTestEngine(t, nil, memory.NewRecordRepository(), EngineConfig{}, WithRunLock(lock))
	if err := e.Start(context.Background(), []string{"a"}, 1, prober); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, e)

	lock.mu.Lock()
	defer lock.mu.Unlock()
	if !lock.released {
		t.Fatal("run lock not released at idle")
	}
	if lock.holder != e.Status().RunID {
		t.Fatalf("lock holder = %q, want run id %q", lock.holder, e.Status().RunID)
	}
}

func TestToRecordDefaults(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	attrs := map[string]string{"k": "v"}
	rec := toRecord(" @alice ", &entity.ProbeResult{Exists: true, Classification: "bogus", Attributes: attrs}, now)

	if rec.Identifier != "alice" || rec.DisplayName != "alice" {
		t.Fatalf("identity = (%q, %q), want (alice, alice)", rec.Identifier, rec.DisplayName)
	}
	if rec.Classification != entity.ClassificationUnknown {
		t.Fatalf("Classification = %s, want unknown", rec.Classification)
	}
	if !rec.FirstSeenAt.Equal(now) || !rec.LastSeenAt.Equal(now) {
		t.Fatalf("timestamps = (%v, %v), want both %v", rec.FirstSeenAt, rec.LastSeenAt, now)
	}
	attrs["k"] = "changed"
	if rec.Attributes["k"] != "v" {
		t.Fatal("record attributes alias the probe result map")
	}

	mixed := toRecord("bob", &entity.ProbeResult{Exists: true, Classification: " Paid "}, now)
	if mixed.Classification != entity.ClassificationPaid {
		t.Fatalf("Classification = %q, want paid", mixed.Classification)
	}
}

func TestEngineStoresCanonicalClassification(t *testing.T) {
	store := memory.NewRecordRepository()
	e := newTestEngine(t, nil, store, EngineConfig{})
	prober := repository.ProberFunc(func(_ context.Context, c, _ string) (*entity.ProbeResult, error) {
		return &entity.ProbeResult{Candidate: c, Exists: true, Classification: "Paid"}, nil
	})
	if err := e.Start(context.Background(), []string{"bob"}, 1, prober); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, e)

	paid := entity.ClassificationPaid
	rows, err := store.List(context.Background(), entity.RecordFilter{Classification: &paid})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 1 || rows[0].Classification != entity.ClassificationPaid {
		t.Fatalf("List(paid) = %+v, want bob stored as paid", rows)
	}
}

func TestEnginePauseDuringPacingHoldsNextCandidate(t *testing.T) {
	e := newTestEngine(t, nil, memory.NewRecordRepository(), EngineConfig{DispatchInterval: 150 * time.Millisecond})
	probed := make(chan string, 4)
	prober := repository.ProberFunc(func(_ context.Context, c, _ string) (*entity.ProbeResult, error) {
		probed <- c
		return &entity.ProbeResult{Candidate: c}, nil
	})
	if err := e.Start(context.Background(), []string{"a", "b"}, 1, prober); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := <-probed; got != "a" {
		t.Fatalf("first probe = %s, want a", got)
	}
	if err := e.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	select {
	case c := <-probed:
		t.Fatalf("probe of %s dispatched while paused", c)
	case <-time.After(400 * time.Millisecond):
	}

	if err := e.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	select {
	case c := <-probed:
		if c != "b" {
			t.Fatalf("probe after resume = %s, want b", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not resume")
	}
	waitIdle(t, e)
}

func TestEngineStatusNotBlockedByLockAcquire(t *testing.T) {
	lock := &slowLock{entered: make(chan struct{}), proceed: make(chan struct{})}
	e := newTestEngine(t, nil, memory.NewRecordRepository(), EngineConfig{}, WithRunLock(lock))
	prober := repository.ProberFunc(func(_ context.Context, c, _ string) (*entity.ProbeResult, error) {
		return &entity.ProbeResult{Candidate: c}, nil
	})

	started := make(chan error, 1)
	go func() { started <- e.Start(context.Background(), []string{"a"}, 1, prober) }()
	<-lock.entered

	statusDone := make(chan entity.Phase, 1)
	go func() { statusDone <- e.Status().Phase }()
	select {
	case phase := <-statusDone:
		if phase != entity.PhaseIdle {
			t.Fatalf("phase during acquire = %s, want idle", phase)
		}
	case <-time.After(time.Second):
		t.Fatal("Status blocked while the run lock was being acquired")
	}
	if err := e.Start(context.Background(), []string{"b"}, 1, prober); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("concurrent Start = %v, want ErrAlreadyRunning", err)
	}

	close(lock.proceed)
	if err := <-started; err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, e)
}

func TestEngineStopsWhenRunLockLost(t *testing.T) {
	lock := &fakeLock{grant: true}
	notifier := &recordingNotifier{}
	e := newTestEngine(t, nil, memory.NewRecordRepository(), EngineConfig{}, WithRunLock(lock), WithNotifier(notifier))
	blocker := newBlockingProber()
	if err := e.Start(context.Background(), []string{"a", "b", "c"}, 1, blocker); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, blocker)
	lock.mu.Lock()
	lock.refreshErr = repository.ErrLockLost
	lock.mu.Unlock()

	deadline := time.Now().Add(5 * time.Second)
	for e.Status().Phase != entity.PhaseStopping {
		if time.Now().After(deadline) {
			t.Fatalf("phase = %s, want stopping after lost lock", e.Status().Phase)
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(blocker.release)
	waitIdle(t, e)
	if got := e.Status().TotalChecked; got != 1 {
		t.Fatalf("TotalChecked = %d, want only the in-flight probe", got)
	}
	if notifier.logsAt(entity.LevelError) == 0 {
		t.Fatal("no error log pushed for the lost lock")
	}
}

func TestErrorOutcome(t *testing.T) {
	cases := map[string]error{
		"timeout":   &repository.ProbeError{Kind: repository.ErrProbeTimeout, Err: errors.New("x")},
		"proxy":     &repository.ProbeError{Kind: repository.ErrProxyFailure, Err: errors.New("x")},
		"status":    &repository.ProbeError{Kind: repository.ErrUpstreamStatus, Err: errors.New("x")},
		"transport": errors.New("reset by peer"),
	}
	for want, err := range cases {
		if got := errorOutcome(err); got != want {
			t.Fatalf("errorOutcome(%v) = %s, want %s", err, got, want)
		}
	}
	if got := errorOutcome(context.DeadlineExceeded); got != "timeout" {
		t.Fatalf("errorOutcome(DeadlineExceeded) = %s, want timeout", got)
	}
}
