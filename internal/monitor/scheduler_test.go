package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agisilaos/farewatch/internal/history"
	"github.com/agisilaos/farewatch/internal/model"
	"github.com/agisilaos/farewatch/internal/offers"
	"github.com/agisilaos/farewatch/internal/provider"
	"github.com/agisilaos/farewatch/internal/state"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 2, 19, 8, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return now }

func day(s string) time.Time {
	d, err := model.Date(s)
	if err != nil {
		panic(err)
	}
	return d
}

type mockSearcher struct{ mock.Mock }

func (m *mockSearcher) Name() string { return "mock" }

func (m *mockSearcher) Search(ctx context.Context, req provider.Request) ([]model.Offer, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).([]model.Offer)
	return out, args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Dispatch(ctx context.Context, alert model.Alert) error {
	return m.Called(ctx, alert).Error(0)
}

func params(rangeDays int) model.SearchParameters {
	return model.SearchParameters{
		Origin:      "YUL",
		Destination: "LIM",
		Depart:      day("2026-03-05"),
		Return:      day("2026-03-19"),
		Flexible:    rangeDays > 0,
		RangeDays:   rangeDays,
		MaxStops:    1,
		Currency:    "CAD",
		Threshold:   model.Decimal("800"),
	}
}

func offer(id, price string, stops int) []model.Offer {
	return []model.Offer{{ID: id, Price: decimal.RequireFromString(price), Currency: "CAD", Stops: stops, DeepLink: "https://flights.example/" + id}}
}

func sequentialIDs() func() string {
	var n int64
	return func() string { return fmt.Sprintf("id-%d", atomic.AddInt64(&n, 1)) }
}

type fixture struct {
	searcher *mockSearcher
	notifier *mockNotifier
	history  *history.Store
	deals    *state.MemoryStore
}

func newFixture() *fixture {
	return &fixture{
		searcher: &mockSearcher{},
		notifier: &mockNotifier{},
		history:  history.NewMemory(),
		deals:    state.NewMemoryStore(),
	}
}

func (f *fixture) scheduler(t *testing.T, cfg Config, mutate ...func(*Deps)) *Scheduler {
	t.Helper()
	deps := Deps{
		Searcher: f.searcher,
		History:  f.history,
		Deals:    f.deals,
		Notifier: f.notifier,
		Now:      fixedNow,
		NewID:    sequentialIDs(),
	}
	for _, m := range mutate {
		m(&deps)
	}
	s, err := New(cfg, deps)
	require.NoError(t, err)
	return s
}

func TestCycleWithZeroSuccessfulPairsRecordsEmptyObservation(t *testing.T) {
	f := newFixture()
	f.searcher.On("Search", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("%w: 503", provider.ErrTransient))

	s := f.scheduler(t, Config{Params: params(1), Mode: ModeOnce})
	require.NoError(t, s.Run(context.Background()))

	all := f.history.All()
	require.Len(t, all, 1)
	obs := all[0]
	assert.False(t, obs.HasPrice())
	assert.Equal(t, model.OutcomeNoOffers, obs.Outcome)
	assert.Equal(t, 3, obs.PairsTotal)
	assert.Equal(t, 3, obs.PairsFailed)
	f.searcher.AssertNumberOfCalls(t, "Search", 3)
	f.notifier.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	assert.Equal(t, StateTerminated, s.State())
}

func TestThresholdScenarioAcrossCycles(t *testing.T) {
	f := newFixture()
	f.searcher.On("Search", mock.Anything, mock.Anything).Return(offer("a", "750", 0), nil).Twice()
	f.searcher.On("Search", mock.Anything, mock.Anything).Return(offer("b", "700", 1), nil).Once()
	f.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(nil)

	s := f.scheduler(t, Config{Params: params(0), Mode: ModeOnce})
	var verdicts []model.Verdict
	for i := 0; i < 3; i++ {
		report, err := s.RunCycle(context.Background())
		require.NoError(t, err)
		verdicts = append(verdicts, report.Decision.Verdict)
	}
	assert.Equal(t, []model.Verdict{model.VerdictNotify, model.VerdictSuppress, model.VerdictNotify}, verdicts)

	f.notifier.AssertNumberOfCalls(t, "Dispatch", 2)
	last := f.notifier.Calls[1].Arguments.Get(1).(model.Alert)
	assert.Equal(t, "YUL-LIM-CAD", last.Route)
	assert.Equal(t, "https://flights.example/b", last.URL)
	assert.True(t, last.Decision.Improvement.Equal(decimal.NewFromInt(50)))

	st, err := f.deals.Load(context.Background(), "YUL-LIM-CAD")
	require.NoError(t, err)
	assert.Equal(t, "700", st.BestPriceSeen.String())
	assert.Equal(t, "700", st.LastNotifiedPrice.String())
	assert.Equal(t, 3, f.history.Len())
}

func TestPartialFailureUsesRemainingPairs(t *testing.T) {
	f := newFixture()
	onDay := func(d string) any {
		return mock.MatchedBy(func(r provider.Request) bool { return r.Dates.Depart.Equal(day(d)) })
	}
	f.searcher.On("Search", mock.Anything, onDay("2026-03-04")).Return(nil, errors.New("timeout"))
	f.searcher.On("Search", mock.Anything, onDay("2026-03-05")).Return(offer("direct", "900", 0), nil)
	f.searcher.On("Search", mock.Anything, onDay("2026-03-06")).Return(offer("twostops", "610", 2), nil)
	f.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(nil)

	s := f.scheduler(t, Config{Params: params(1), Mode: ModeOnce, Concurrency: 3})
	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.True(t, errors.Is(report.Failures[0].Err, provider.ErrSearchFailure))
	assert.Equal(t, day("2026-03-04"), report.Failures[0].Dates.Depart)

	obs := report.Observation
	require.True(t, obs.HasPrice())
	assert.Equal(t, "900", obs.MinPrice.String(), "two-stop offer exceeds the ceiling")
	assert.Equal(t, 1, obs.PairsFailed)
	assert.Equal(t, 2, obs.OffersSeen)
	assert.Equal(t, model.VerdictSuppress, report.Decision.Verdict, "900 is above the 800 threshold")
	f.notifier.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

type failingHistory struct{}

func (failingHistory) Append(context.Context, model.PriceObservation) error {
	return fmt.Errorf("%w: append: disk full", history.ErrStorage)
}

func TestStorageFailureTerminates(t *testing.T) {
	f := newFixture()
	f.searcher.On("Search", mock.Anything, mock.Anything).Return(offer("a", "700", 0), nil)

	s := f.scheduler(t, Config{Params: params(0), Mode: ModeContinuous, Interval: time.Hour}, func(d *Deps) {
		d.History = failingHistory{}
		d.Wait = func(context.Context, time.Duration) error {
			t.Fatal("must not sleep after a fatal error")
			return nil
		}
	})
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, history.ErrStorage))
	assert.Equal(t, StateTerminated, s.State())
	f.notifier.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)

	st, _ := f.deals.Load(context.Background(), "YUL-LIM-CAD")
	assert.Nil(t, st.BestPriceSeen, "state is not saved when the observation was not recorded")
}

func TestContinuousModeSleepsBetweenCycles(t *testing.T) {
	f := newFixture()
	f.searcher.On("Search", mock.Anything, mock.Anything).Return(offer("a", "900", 0), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var waits []time.Duration
	var transitions []State
	s := f.scheduler(t, Config{Params: params(0), Mode: ModeContinuous, Interval: 24 * time.Hour}, func(d *Deps) {
		d.Wait = func(ctx context.Context, dur time.Duration) error {
			waits = append(waits, dur)
			if len(waits) == 3 {
				cancel()
				return ctx.Err()
			}
			return nil
		}
		d.OnTransition = func(_, to State) { transitions = append(transitions, to) }
	})

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, []time.Duration{24 * time.Hour, 24 * time.Hour, 24 * time.Hour}, waits)
	assert.Equal(t, []State{
		StateRunning, StateSleeping,
		StateRunning, StateSleeping,
		StateRunning, StateSleeping,
		StateTerminated,
	}, transitions)
	assert.Equal(t, 3, f.history.Len())
}

func TestOnCycleReceivesEveryReport(t *testing.T) {
	f := newFixture()
	f.searcher.On("Search", mock.Anything, mock.Anything).Return(offer("a", "900", 0), nil)

	var reports []CycleReport
	s := f.scheduler(t, Config{Params: params(0), Mode: ModeOnce}, func(d *Deps) {
		d.OnCycle = func(r CycleReport) { reports = append(reports, r) }
	})
	require.NoError(t, s.Run(context.Background()))
	require.Len(t, reports, 1)
	assert.Equal(t, "900", reports[0].Observation.MinPrice.String())
	assert.Equal(t, model.VerdictSuppress, reports[0].Decision.Verdict)
}

func TestInterruptBeforeCycleRecordsNothing(t *testing.T) {
	f := newFixture()
	f.searcher.On("Search", mock.Anything, mock.Anything).Return(offer("a", "700", 0), nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := f.scheduler(t, Config{Params: params(1), Mode: ModeOnce})
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 0, f.history.Len())
	assert.Equal(t, StateTerminated, s.State())
}

func TestInvalidParametersNeverSearch(t *testing.T) {
	f := newFixture()
	p := params(0)
	p.Destination = "yul"
	s := f.scheduler(t, Config{Params: p, Mode: ModeOnce})
	err := s.Run(context.Background())
	assert.True(t, errors.Is(err, model.ErrConfiguration))
	f.searcher.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
	assert.Equal(t, 0, f.history.Len())
}

func TestNewRejectsContinuousWithoutInterval(t *testing.T) {
	f := newFixture()
	_, err := New(Config{Params: params(0), Mode: ModeContinuous}, Deps{Searcher: f.searcher, History: f.history, Deals: f.deals})
	assert.True(t, errors.Is(err, model.ErrConfiguration))
}

func TestNotificationFailureStillAdvancesState(t *testing.T) {
	f := newFixture()
	f.searcher.On("Search", mock.Anything, mock.Anything).Return(offer("a", "750", 0), nil)
	f.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	s := f.scheduler(t, Config{Params: params(0), Mode: ModeOnce})
	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Error(t, report.NotifyErr)
	require.NotNil(t, report.Alert)

	st, _ := f.deals.Load(context.Background(), "YUL-LIM-CAD")
	require.NotNil(t, st.LastNotifiedPrice)
	assert.Equal(t, "750", st.LastNotifiedPrice.String())
}

type slowSearcher struct {
	inFlight, peak, calls int32
}

func (s *slowSearcher) Name() string { return "slow" }

func (s *slowSearcher) Search(_ context.Context, req provider.Request) ([]model.Offer, error) {
	atomic.AddInt32(&s.calls, 1)
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	price := decimal.NewFromInt(int64(1000 - req.Dates.Depart.Day()))
	return []model.Offer{{ID: req.Dates.Key(), Price: price, Currency: "CAD", Dates: req.Dates}}, nil
}

func TestSearchConcurrencyIsBoundedAndOrderIndependent(t *testing.T) {
	var best []string
	for _, limit := range []int{1, 2, 4} {
		f := newFixture()
		f.notifier.On("Dispatch", mock.Anything, mock.Anything).Return(nil)
		searcher := &slowSearcher{}
		s := f.scheduler(t, Config{Params: params(3), Mode: ModeOnce, Concurrency: limit}, func(d *Deps) {
			d.Searcher = searcher
			d.Evaluator = offers.Evaluator{Policy: offers.PolicyReject}
		})
		report, err := s.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int32(7), atomic.LoadInt32(&searcher.calls))
		assert.LessOrEqual(t, atomic.LoadInt32(&searcher.peak), int32(limit))
		best = append(best, report.Observation.Offer.ID)
	}
	assert.Equal(t, []string{"2026-03-08/2026-03-22", "2026-03-08/2026-03-22", "2026-03-08/2026-03-22"}, best)
}
