package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrPassInProgress is returned by TriggerNow while another pass is running.
var ErrPassInProgress = errors.New("reconciliation pass already in progress")

type PassRunner interface {
	RunPass(ctx context.Context) (RunSummary, error)
}

// Scheduler drives the engine on a fixed cadence and exposes a manual
// trigger with the same semantics. At most one pass runs at a time; a
// scheduled tick that fires mid-pass is dropped, not queued.
type Scheduler struct {
	engine   PassRunner
	interval time.Duration

	triggerCh chan struct{}
	running   atomic.Bool

	startedAtUnixNano   int64
	lastRunUnixNano     atomic.Int64
	lastTriggerUnixNano atomic.Int64
	runsCompleted       atomic.Int64
	ticksDropped        atomic.Int64
	totalUpdated        atomic.Int64
	totalFailed         atomic.Int64

	mu          sync.Mutex
	lastSummary *RunSummary
	lastError   string
}

func NewScheduler(engine PassRunner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		engine:            engine,
		interval:          interval,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

// Trigger requests an immediate pass (best-effort, non-blocking).
func (s *Scheduler) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// TriggerNow runs a pass synchronously and returns its summary; the admin
// "run reconciliation now" surface maps to this.
func (s *Scheduler) TriggerNow(ctx context.Context) (RunSummary, error) {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	if !s.running.CompareAndSwap(false, true) {
		return RunSummary{}, ErrPassInProgress
	}
	defer s.running.Store(false)
	return s.runPass(ctx)
}

func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.ticksDropped.Add(1)
		return
	}
	defer s.running.Store(false)
	_, _ = s.runPass(ctx)
}

func (s *Scheduler) runPass(ctx context.Context) (RunSummary, error) {
	s.lastRunUnixNano.Store(time.Now().UTC().UnixNano())

	summary, err := s.engine.RunPass(ctx)
	if err != nil {
		slog.Error("reconciliation pass aborted", "error", err.Error())
		s.mu.Lock()
		s.lastError = err.Error()
		s.mu.Unlock()
		return summary, err
	}

	s.runsCompleted.Add(1)
	s.totalUpdated.Add(int64(summary.Updated))
	s.totalFailed.Add(int64(summary.Failed))

	s.mu.Lock()
	s.lastSummary = &summary
	s.lastError = ""
	s.mu.Unlock()

	slog.Info("reconciliation pass finished",
		"attempted", summary.Attempted,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"failed", summary.Failed)
	return summary, nil
}

type Stats struct {
	StartedAt     time.Time   `json:"startedAt"`
	LastRunAt     *time.Time  `json:"lastRunAt,omitempty"`
	LastTriggerAt *time.Time  `json:"lastTriggerAt,omitempty"`
	RunsCompleted int64       `json:"runsCompleted"`
	TicksDropped  int64       `json:"ticksDropped"`
	TotalUpdated  int64       `json:"totalUpdated"`
	TotalFailed   int64       `json:"totalFailed"`
	Running       bool        `json:"running"`
	LastError     string      `json:"lastError,omitempty"`
	LastSummary   *RunSummary `json:"lastSummary,omitempty"`
}

func (s *Scheduler) Stats() Stats {
	st := Stats{
		StartedAt:     time.Unix(0, s.startedAtUnixNano).UTC(),
		RunsCompleted: s.runsCompleted.Load(),
		TicksDropped:  s.ticksDropped.Load(),
		TotalUpdated:  s.totalUpdated.Load(),
		TotalFailed:   s.totalFailed.Load(),
		Running:       s.running.Load(),
	}
	if n := s.lastRunUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastRunAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.mu.Lock()
	st.LastError = s.lastError
	st.LastSummary = s.lastSummary
	s.mu.Unlock()
	return st
}
