// Package procmgr is the Process Manager (spec.md §4.2): the sole
// owner of subprocess spawning for the judge. It enforces a
// process-wide concurrency bound, queues excess requests FIFO, and
// guarantees two-phase termination (graceful SIGTERM, then SIGKILL
// after a grace period) on timeout or shutdown.
//
// Grounded on pkg/prefetch/executor.go's bounded-concurrency pool
// (semaphore + sync.WaitGroup + results channel) and
// pkg/prefetch/rules.go's subprocess invocation style, generalized
// from a fixed rule set to an arbitrary queued Execute call.
package procmgr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("gansauditor/procmgr")

// Errors returned by Execute.
var (
	ErrQueueTimeout = errors.New("procmgr: queue wait timed out")
	ErrShutdown     = errors.New("procmgr: manager is shutting down")
)

// Config configures a Manager (spec.md §4.2).
type Config struct {
	MaxConcurrent       int
	DefaultTimeout      time.Duration
	CleanupGrace        time.Duration
	QueueTimeout        time.Duration
	HealthCheckInterval time.Duration
}

// DefaultConfig returns the spec's suggested defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:       3,
		DefaultTimeout:      30 * time.Second,
		CleanupGrace:        5 * time.Second,
		QueueTimeout:        60 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Request describes one subprocess invocation.
type Request struct {
	Executable string
	Args       []string
	Dir        string
	Env        []string
	Stdin      []byte
	Timeout    time.Duration
}

// Result is the outcome of one Execute call.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	TimedOut bool
	Pid      int
}

// Manager is the bounded, FIFO-queued subprocess pool.
//
// State machine per tracked process: Queued -> Starting -> Running ->
// (Exited | TimingOut -> Killing -> Killed). Exited and Killed are
// terminal and release the slot; Execute's return corresponds to that
// transition.
type Manager struct {
	cfg     Config
	logger  *zap.Logger
	metrics *PromMetrics

	mu      sync.Mutex
	active  int
	closed  bool
	waiters []chan struct{}     // FIFO admission queue
	running map[int]*exec.Cmd // live subprocess handles, keyed by an internal call id
	nextID  int

	metricsMu sync.Mutex
	total     int
	successes int
	failures  int
	durations []time.Duration // rolling window, last 100
	lastExec  time.Time
}

// New creates a Manager. A nil logger falls back to zap.NewNop().
func New(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Manager{cfg: cfg, logger: logger, running: make(map[int]*exec.Cmd)}
}

// SetMetrics attaches Prometheus metrics; optional, mirrors
// pkg/prefetch.Executor.SetMetrics.
func (m *Manager) SetMetrics(pm *PromMetrics) {
	m.metrics = pm
}

// admit blocks until a concurrency slot is available, the queue wait
// exceeds QueueTimeout, the manager is shut down, or ctx is canceled.
// The waiters slice is strict FIFO: callers are served in arrival order.
func (m *Manager) admit(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrShutdown
	}
	if m.active < m.cfg.MaxConcurrent {
		m.active++
		m.mu.Unlock()
		return nil
	}
	ticket := make(chan struct{})
	m.waiters = append(m.waiters, ticket)
	m.mu.Unlock()

	queueTimeout := m.cfg.QueueTimeout
	if queueTimeout <= 0 {
		queueTimeout = 60 * time.Second
	}
	timer := time.NewTimer(queueTimeout)
	defer timer.Stop()

	select {
	case <-ticket:
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			m.release()
			return ErrShutdown
		}
		m.mu.Unlock()
		return nil
	case <-timer.C:
		m.removeWaiter(ticket)
		return ErrQueueTimeout
	case <-ctx.Done():
		m.removeWaiter(ticket)
		return ctx.Err()
	}
}

func (m *Manager) removeWaiter(ticket chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.waiters {
		if w == ticket {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}

// release returns a slot to the pool and wakes the next FIFO waiter,
// if any. Must be called exactly once per successful admit.
func (m *Manager) release() {
	m.mu.Lock()
	if len(m.waiters) > 0 {
		next := m.waiters[0]
		m.waiters = m.waiters[1:]
		m.mu.Unlock()
		close(next)
		return
	}
	m.active--
	m.mu.Unlock()
}

// Execute runs one subprocess call under the concurrency bound,
// queueing FIFO if the pool is saturated (spec.md §4.2 "Admission &
// queueing"). Standard input is written once and closed; stdout/stderr
// accumulate until exit. On deadline expiry the subprocess receives
// two-phase termination: SIGTERM, then (after CleanupGrace) SIGKILL.
func (m *Manager) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := m.admit(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	spanCtx, span := tracer.Start(callCtx, "procmgr.execute_call")
	span.SetAttributes(attribute.String("executable", req.Executable))
	defer span.End()

	cmd := exec.Command(req.Executable, req.Args...)
	cmd.Dir = req.Dir
	cmd.Env = req.Env
	if len(req.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(req.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		m.record(time.Since(start), false)
		return nil, fmt.Errorf("procmgr: failed to start %s: %w", req.Executable, err)
	}

	pid := cmd.Process.Pid
	id := m.track(cmd)
	defer m.untrack(id)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timedOut bool
	select {
	case err := <-done:
		duration := time.Since(start)
		exitCode := exitCodeOf(err)
		success := err == nil
		m.record(duration, success)
		span.SetAttributes(attribute.Bool("timed_out", false), attribute.Int("exit_code", exitCode))
		return &Result{
			Stdout: stdout.Bytes(), Stderr: stderr.Bytes(),
			ExitCode: exitCode, Duration: duration, TimedOut: false, Pid: pid,
		}, nil

	case <-spanCtx.Done():
		timedOut = true
		m.terminate(cmd, done)
		duration := time.Since(start)
		m.record(duration, false)
		span.SetAttributes(attribute.Bool("timed_out", true))
		return &Result{
			Stdout: stdout.Bytes(), Stderr: stderr.Bytes(),
			ExitCode: -1, Duration: duration, TimedOut: timedOut, Pid: pid,
		}, nil
	}
}

// terminate performs two-phase termination: SIGTERM, then SIGKILL
// after CleanupGrace if the process has not exited (spec.md §4.2).
// Force-kill is always attempted if graceful termination does not
// complete in time.
func (m *Manager) terminate(cmd *exec.Cmd, done <-chan error) {
	grace := m.cfg.CleanupGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}

	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		return
	case <-timer.C:
		if cmd.Process != nil {
			m.logger.Warn("process did not exit after grace period, force-killing",
				zap.Int("pid", cmd.Process.Pid))
			_ = cmd.Process.Kill()
		}
		<-done
	}
}

// track registers a started subprocess so Shutdown can find and
// terminate it, and returns the id to untrack it by.
func (m *Manager) track(cmd *exec.Cmd) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.running[id] = cmd
	return id
}

func (m *Manager) untrack(id int) {
	m.mu.Lock()
	delete(m.running, id)
	m.mu.Unlock()
}

func (m *Manager) record(d time.Duration, success bool) {
	m.metricsMu.Lock()
	m.total++
	if success {
		m.successes++
	} else {
		m.failures++
	}
	m.durations = append(m.durations, d)
	if len(m.durations) > 100 {
		m.durations = m.durations[len(m.durations)-100:]
	}
	m.lastExec = time.Now()
	m.metricsMu.Unlock()

	if m.metrics != nil {
		outcome := "success"
		if !success {
			outcome = "failure"
		}
		m.metrics.RecordCall(outcome, d.Seconds())
	}
}

// Health is the Process Manager's health predicate and rolling metrics
// snapshot (spec.md §4.2).
type Health struct {
	Total        int
	Successes    int
	Failures     int
	AvgDuration  time.Duration
	LastExecution time.Time
	Healthy      bool
}

// Health reports the rolling health predicate: success rate >= 0.80
// OR total < 5.
func (m *Manager) Health() Health {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()

	h := Health{
		Total:         m.total,
		Successes:     m.successes,
		Failures:      m.failures,
		LastExecution: m.lastExec,
	}

	if len(m.durations) > 0 {
		var sum time.Duration
		for _, d := range m.durations {
			sum += d
		}
		h.AvgDuration = sum / time.Duration(len(m.durations))
	}

	if m.total < 5 {
		h.Healthy = true
	} else {
		h.Healthy = float64(m.successes)/float64(m.total) >= 0.80
	}
	return h
}

// Shutdown marks the manager closed (new and queued calls rejected
// with ErrShutdown), initiates two-phase termination for every active
// process concurrently, and waits for ctx or for all active slots to
// drain (spec.md §4.2/§5). SIGTERM is sent to every tracked process at
// once; any still running after CleanupGrace are SIGKILLed.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}

	var wg sync.WaitGroup
	for _, cmd := range m.snapshotRunning() {
		if cmd.Process == nil {
			continue
		}
		wg.Add(1)
		go func(cmd *exec.Cmd) {
			defer wg.Done()
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}(cmd)
	}
	wg.Wait()

	grace := m.cfg.CleanupGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	graceTimer := time.NewTimer(grace)
	defer graceTimer.Stop()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

drain:
	for {
		m.mu.Lock()
		active := m.active
		m.mu.Unlock()
		if active == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-graceTimer.C:
			break drain
		case <-ticker.C:
		}
	}

	for _, cmd := range m.snapshotRunning() {
		if cmd.Process == nil {
			continue
		}
		m.logger.Warn("process still running after shutdown grace period, force-killing",
			zap.Int("pid", cmd.Process.Pid))
		_ = cmd.Process.Kill()
	}

	for {
		m.mu.Lock()
		active := m.active
		m.mu.Unlock()
		if active == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) snapshotRunning() []*exec.Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmds := make([]*exec.Cmd, 0, len(m.running))
	for _, cmd := range m.running {
		cmds = append(cmds, cmd)
	}
	return cmds
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
