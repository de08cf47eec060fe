package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nvik/alphafeed/internal/provider"
)

// ErrRetriesExhausted is the terminal rejection for a job whose transient
// failures exceeded the retry budget. The last upstream error is wrapped.
var ErrRetriesExhausted = errors.New("scheduler: retry budget exhausted")

// ErrNotStarted is returned for jobs enqueued before Start.
var ErrNotStarted = errors.New("scheduler: not started")

const (
	minuteWindow = time.Minute
	secondWindow = time.Second
)

// Fetcher performs one upstream request. The provider client is the production
// implementation.
type Fetcher interface {
	Fetch(ctx context.Context, req provider.Request) ([]byte, error)
}

// Config holds Scheduler configuration.
type Config struct {
	PerMinute     int           // per-minute request ceiling
	PerSecond     int           // per-second ceiling; 0 disables the sub-window
	BatchCap      int           // max jobs dispatched per cycle
	MaxRetries    int           // transient failures allowed per job
	RetryDelay    time.Duration // fixed wait before re-inserting a failed job
	MinSleep      time.Duration // floor when waiting for window capacity
	PruneInterval time.Duration // window prune cadence
	MaxPriority   int           // lowest-urgency tier; also the default priority
}

// DefaultConfig returns the provider's documented limits.
func DefaultConfig() Config {
	return Config{
		PerMinute:     600,
		PerSecond:     20,
		BatchCap:      20,
		MaxRetries:    10,
		RetryDelay:    50 * time.Millisecond,
		MinSleep:      10 * time.Millisecond,
		PruneInterval: 50 * time.Millisecond,
		MaxPriority:   10,
	}
}

// Stats is a point-in-time snapshot of scheduler state.
type Stats struct {
	QueueSize            int         `json:"queueSize"`
	CurrentRate          int         `json:"currentRate"`
	AvailableSlots       int         `json:"availableSlots"`
	RequestsInLastMinute int         `json:"requestsInLastMinute"`
	RequestsInLastSecond int         `json:"requestsInLastSecond"`
	QueueByPriority      map[int]int `json:"queueByPriority"`
}

type outcome struct {
	body []byte
	err  error
}

// Future resolves with a job's upstream response or terminal error.
type Future struct {
	done chan outcome
}

// Wait blocks until the job resolves or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) ([]byte, error) {
	select {
	case out := <-f.done:
		return out.body, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// job is owned exclusively by the scheduler from enqueue until it resolves.
type job struct {
	id       uuid.UUID
	req      provider.Request
	priority int
	seq      uint64
	retries  int
	done     chan outcome
}

func (j *job) resolve(out outcome) {
	j.done <- out
}

// Scheduler arbitrates all upstream calls behind sliding-window rate ceilings.
// One instance is constructed at process start and shared by reference; there
// is no package-level state.
type Scheduler struct {
	cfg     Config
	fetcher Fetcher
	logger  *slog.Logger

	mu          sync.Mutex
	queue       []*job
	seq         uint64
	dispatching bool

	window *rateWindow

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler. Call Start before enqueuing.
func New(cfg Config, fetcher Fetcher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		window:  newRateWindow(minuteWindow),
	}
}

// Start begins the background window pruning and accepts jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.pruneLoop()

	s.logger.Info("scheduler started",
		"per_minute", s.cfg.PerMinute,
		"per_second", s.cfg.PerSecond,
		"batch_cap", s.cfg.BatchCap,
	)
	return nil
}

// Stop shuts down. Jobs still queued reject with the cancellation error.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue admits a job at the given priority (clamped to [0, MaxPriority],
// lower value served first) and returns its Future.
func (s *Scheduler) Enqueue(req provider.Request, priority int) *Future {
	f := &Future{done: make(chan outcome, 1)}

	if priority < 0 {
		priority = 0
	}
	if priority > s.cfg.MaxPriority {
		priority = s.cfg.MaxPriority
	}

	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		f.done <- outcome{err: ErrNotStarted}
		return f
	}

	s.seq++
	j := &job{
		id:       uuid.New(),
		req:      req,
		priority: priority,
		seq:      s.seq,
		done:     f.done,
	}

	// FIFO within a tier: a new arrival goes behind existing equal-priority jobs.
	idx := len(s.queue)
	for i, q := range s.queue {
		if q.priority > j.priority {
			idx = i
			break
		}
	}
	s.queue = append(s.queue, nil)
	copy(s.queue[idx+1:], s.queue[idx:])
	s.queue[idx] = j

	s.kickLocked()
	s.mu.Unlock()

	return f
}

// Do is the blocking form of Enqueue.
func (s *Scheduler) Do(ctx context.Context, req provider.Request, priority int) ([]byte, error) {
	return s.Enqueue(req, priority).Wait(ctx)
}

// Stats returns a point-in-time snapshot. Read-only, no side effects.
func (s *Scheduler) Stats() Stats {
	now := time.Now()

	s.mu.Lock()
	byPriority := make(map[int]int, len(s.queue))
	for _, j := range s.queue {
		byPriority[j.priority]++
	}
	queueSize := len(s.queue)
	s.mu.Unlock()

	inMinute := s.window.countSince(now, minuteWindow)
	return Stats{
		QueueSize:            queueSize,
		CurrentRate:          inMinute,
		AvailableSlots:       s.availableSlots(now),
		RequestsInLastMinute: inMinute,
		RequestsInLastSecond: s.window.countSince(now, secondWindow),
		QueueByPriority:      byPriority,
	}
}

// kickLocked starts the dispatch loop unless one is already running. The
// caller holds s.mu. Mutual exclusion here is what guarantees a single active
// dispatcher.
func (s *Scheduler) kickLocked() {
	if s.dispatching || len(s.queue) == 0 {
		return
	}
	s.dispatching = true
	s.wg.Add(1)
	go s.dispatchLoop()
}

// dispatchLoop drains the queue while respecting the rate windows. It exits
// when the queue is empty; the next Enqueue restarts it.
func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()

	for {
		if s.ctx.Err() != nil {
			s.drainOnShutdown()
			return
		}

		s.mu.Lock()
		if len(s.queue) == 0 {
			s.dispatching = false
			s.mu.Unlock()
			return
		}

		now := time.Now()
		available := s.availableSlots(now)
		if available == 0 {
			s.mu.Unlock()
			if !s.sleep(s.capacityWait(now)) {
				continue // shutdown; loop once more to drain
			}
			continue
		}

		n := min(available, min(s.cfg.BatchCap, len(s.queue)))
		batch := make([]*job, n)
		copy(batch, s.queue[:n])
		s.queue = append(s.queue[:0], s.queue[n:]...)
		s.mu.Unlock()

		s.dispatchBatch(batch)
	}
}

// dispatchBatch runs a batch concurrently, staggering starts evenly across
// the per-second budget so the burst itself cannot breach the sub-window.
func (s *Scheduler) dispatchBatch(batch []*job) {
	var stagger time.Duration
	if s.cfg.PerSecond > 0 {
		stagger = secondWindow / time.Duration(s.cfg.PerSecond)
	}

	var wg sync.WaitGroup
	for i, j := range batch {
		wg.Add(1)
		go func(delay time.Duration, j *job) {
			defer wg.Done()
			if delay > 0 && !s.sleep(delay) {
				j.resolve(outcome{err: s.ctx.Err()})
				return
			}
			s.execute(j)
		}(time.Duration(i)*stagger, j)
	}
	wg.Wait()
}

// execute performs one upstream attempt and routes the outcome.
func (s *Scheduler) execute(j *job) {
	body, err := s.fetcher.Fetch(s.ctx, j.req)

	switch {
	case err == nil:
		s.window.record(time.Now())
		j.resolve(outcome{body: body})

	case errors.Is(err, provider.ErrThrottled):
		// Soft limit: the attempt does not count against the window and does
		// not consume the retry budget.
		s.logger.Debug("job throttled, retrying",
			"job_id", j.id,
			"function", j.req.Function(),
		)
		if !s.sleep(s.cfg.RetryDelay) {
			j.resolve(outcome{err: s.ctx.Err()})
			return
		}
		s.reinsertFront(j)

	default:
		j.retries++
		if j.retries > s.cfg.MaxRetries {
			s.logger.Warn("job exhausted retries",
				"job_id", j.id,
				"function", j.req.Function(),
				"retries", j.retries-1,
				"error", err,
			)
			j.resolve(outcome{err: fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, j.retries, err)})
			return
		}
		s.logger.Debug("job failed, retrying",
			"job_id", j.id,
			"retry", j.retries,
			"error", err,
		)
		if !s.sleep(s.cfg.RetryDelay) {
			j.resolve(outcome{err: s.ctx.Err()})
			return
		}
		s.reinsertFront(j)
	}
}

// reinsertFront puts a retried job at the front of its own priority tier:
// ahead of same-tier arrivals, behind every more-urgent tier.
func (s *Scheduler) reinsertFront(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := len(s.queue)
	for i, q := range s.queue {
		if q.priority >= j.priority {
			idx = i
			break
		}
	}
	s.queue = append(s.queue, nil)
	copy(s.queue[idx+1:], s.queue[idx:])
	s.queue[idx] = j

	s.kickLocked()
}

// availableSlots computes dispatch capacity across the enforced windows.
func (s *Scheduler) availableSlots(now time.Time) int {
	slots := s.cfg.PerMinute - s.window.countSince(now, minuteWindow)
	if s.cfg.PerSecond > 0 {
		if sec := s.cfg.PerSecond - s.window.countSince(now, secondWindow); sec < slots {
			slots = sec
		}
	}
	if slots < 0 {
		slots = 0
	}
	return slots
}

// capacityWait returns how long to sleep until a binding window frees a slot.
func (s *Scheduler) capacityWait(now time.Time) time.Duration {
	wait := s.cfg.MinSleep

	if s.window.countSince(now, minuteWindow) >= s.cfg.PerMinute {
		if oldest, ok := s.window.oldestSince(now, minuteWindow); ok {
			if d := oldest.Add(minuteWindow).Sub(now); d > wait {
				wait = d
			}
		}
	}
	if s.cfg.PerSecond > 0 && s.window.countSince(now, secondWindow) >= s.cfg.PerSecond {
		if oldest, ok := s.window.oldestSince(now, secondWindow); ok {
			if d := oldest.Add(secondWindow).Sub(now); d > wait {
				wait = d
			}
		}
	}
	return wait
}

// sleep waits for d or shutdown; it reports false on shutdown.
func (s *Scheduler) sleep(d time.Duration) bool {
	select {
	case <-s.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// drainOnShutdown rejects everything still queued with the cancel error.
func (s *Scheduler) drainOnShutdown() {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.dispatching = false
	s.mu.Unlock()

	for _, j := range queue {
		j.resolve(outcome{err: s.ctx.Err()})
	}
}

// pruneLoop periodically drops window entries older than the longest lookback.
func (s *Scheduler) pruneLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.window.prune(time.Now())
		}
	}
}
