// Package monitor runs price-watch cycles on a schedule.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/agisilaos/farewatch/internal/model"
	"github.com/agisilaos/farewatch/internal/offers"
	"github.com/agisilaos/farewatch/internal/planner"
	"github.com/agisilaos/farewatch/internal/provider"
	"github.com/agisilaos/farewatch/internal/state"
	"github.com/google/uuid"
)

type State string

const (
	StateIdle       State = "IDLE"
	StateRunning    State = "RUNNING_CYCLE"
	StateSleeping   State = "SLEEPING"
	StateTerminated State = "TERMINATED"
)

type Mode int

const (
	ModeOnce Mode = iota
	ModeContinuous
)

func (m Mode) String() string {
	if m == ModeContinuous {
		return "continuous"
	}
	return "once"
}

// Planner produces the date pairs searched in one cycle.
type Planner interface {
	Plan(params model.SearchParameters) ([]model.DatePair, error)
}

// History is the append side of the price log.
type History interface {
	Append(ctx context.Context, obs model.PriceObservation) error
}

// Notifier delivers alerts; errors are logged and never stop the monitor.
type Notifier interface {
	Dispatch(ctx context.Context, alert model.Alert) error
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

type Config struct {
	Params      model.SearchParameters
	Interval    time.Duration
	Mode        Mode
	Concurrency int
	Adults      int
}

type Deps struct {
	Planner      Planner
	Searcher     provider.Searcher
	Evaluator    offers.Evaluator
	History      History
	Deals        state.Store
	Notifier     Notifier
	Logger       *slog.Logger
	Now          func() time.Time
	NewID        func() string
	Wait         WaitFunc
	OnTransition func(from, to State)
	OnCycle      func(CycleReport)
}

type Scheduler struct {
	cfg  Config
	deps Deps

	mu    sync.Mutex
	state State
}

func New(cfg Config, deps Deps) (*Scheduler, error) {
	if deps.Searcher == nil {
		return nil, fmt.Errorf("%w: no search provider", model.ErrConfiguration)
	}
	if deps.History == nil || deps.Deals == nil {
		return nil, fmt.Errorf("%w: history and deal state stores are required", model.ErrConfiguration)
	}
	if cfg.Mode == ModeContinuous && cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive in continuous mode", model.ErrConfiguration)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Adults <= 0 {
		cfg.Adults = 1
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Planner == nil {
		deps.Planner = planner.New(deps.Now)
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Wait == nil {
		deps.Wait = sleep
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{cfg: cfg, deps: deps, state: StateIdle}, nil
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	s.deps.Logger.Debug("monitor state", "state", string(to), "from", string(from))
	if s.deps.OnTransition != nil {
		s.deps.OnTransition(from, to)
	}
}

// Run drives the state machine until single-shot completion, a fatal error,
// or cancellation of ctx. Cancellation is a clean stop and returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.cfg.Params.Validate(); err != nil {
		s.transition(StateTerminated)
		return err
	}
	for {
		s.transition(StateRunning)
		report, err := s.RunCycle(ctx)
		if err != nil {
			s.transition(StateTerminated)
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
		if s.deps.OnCycle != nil {
			s.deps.OnCycle(report)
		}
		if s.cfg.Mode == ModeOnce {
			s.transition(StateTerminated)
			return nil
		}
		s.transition(StateSleeping)
		next := s.deps.Now().Add(s.cfg.Interval)
		s.deps.Logger.Info("sleeping until next cycle", "cycle", report.CycleID, "next", next.Format(time.RFC3339))
		if err := s.deps.Wait(ctx, s.cfg.Interval); err != nil {
			s.transition(StateTerminated)
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
