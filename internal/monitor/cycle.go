package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agisilaos/farewatch/internal/deal"
	"github.com/agisilaos/farewatch/internal/history"
	"github.com/agisilaos/farewatch/internal/model"
	"github.com/agisilaos/farewatch/internal/provider"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type PairFailure struct {
	Dates model.DatePair
	Err   error
}

// CycleReport is everything one cycle decided.
type CycleReport struct {
	CycleID     string
	Pairs       []model.DatePair
	Failures    []PairFailure
	Observation model.PriceObservation
	Decision    model.Decision
	DealState   model.DealState
	Alert       *model.Alert
	NotifyErr   error
	DropPercent decimal.Decimal
}

type pairResult struct {
	offers []model.Offer
	err    error
}

// RunCycle performs one full cycle: plan, search, evaluate, record, decide,
// notify. Per-pair search failures are skipped; planning, history and deal
// state failures are returned.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	params := s.cfg.Params
	route := params.RouteKey()
	report := CycleReport{CycleID: s.deps.NewID()}
	log := s.deps.Logger.With("cycle", report.CycleID, "route", route)

	pairs, err := s.deps.Planner.Plan(params)
	if err != nil {
		return report, err
	}
	report.Pairs = pairs

	results := s.searchAll(ctx, pairs)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	var batch []model.Offer
	for i, r := range results {
		if r.err != nil {
			report.Failures = append(report.Failures, PairFailure{Dates: pairs[i], Err: r.err})
			log.Warn("pair search failed", "provider", s.deps.Searcher.Name(),
				"depart", pairs[i].Depart.Format(model.DateLayout), "return", returnLabel(pairs[i]), "err", r.err)
			continue
		}
		batch = append(batch, r.offers...)
	}

	eval := s.deps.Evaluator.Evaluate(batch, params.MaxStops, params.Currency)
	now := s.deps.Now()
	obs := model.PriceObservation{
		ID:          s.deps.NewID(),
		CycleID:     report.CycleID,
		ObservedAt:  now.UTC(),
		Params:      params,
		Outcome:     eval.Outcome,
		MinPrice:    eval.MinPrice(),
		Currency:    params.Currency,
		Offer:       eval.Best,
		OffersSeen:  eval.OffersSeen,
		PairsTotal:  len(pairs),
		PairsFailed: len(report.Failures),
	}
	report.Observation = obs

	prev, err := s.deps.Deals.Load(ctx, route)
	if err != nil {
		return report, fmt.Errorf("%w: load deal state: %v", history.ErrStorage, err)
	}
	decision, next := deal.Evaluate(obs, prev, params.Threshold, now)
	report.Decision = decision
	report.DealState = next

	if err := s.deps.History.Append(ctx, obs); err != nil {
		return report, err
	}
	if err := s.deps.Deals.Save(ctx, route, next); err != nil {
		return report, fmt.Errorf("%w: save deal state: %v", history.ErrStorage, err)
	}

	if obs.MinPrice != nil {
		report.DropPercent = deal.DropPercent(decision.PreviousBest, *obs.MinPrice)
	}
	s.logSummary(log, report)

	if decision.Verdict == model.VerdictNotify && s.deps.Notifier != nil {
		alert := s.alertFor(route, obs, decision, now)
		report.Alert = &alert
		// delivery in flight finishes even if the operator interrupts
		if err := s.deps.Notifier.Dispatch(context.WithoutCancel(ctx), alert); err != nil {
			report.NotifyErr = err
			log.Warn("notification failed", "err", err)
		}
	}
	return report, nil
}

func (s *Scheduler) searchAll(ctx context.Context, pairs []model.DatePair) []pairResult {
	results := make([]pairResult, len(pairs))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, pair := range pairs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = pairResult{err: err}
				return nil
			}
			offers, err := s.deps.Searcher.Search(ctx, s.request(pair))
			if err != nil {
				err = fmt.Errorf("%w: %s: %w", provider.ErrSearchFailure, pair.Key(), err)
			}
			results[i] = pairResult{offers: offers, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Scheduler) request(pair model.DatePair) provider.Request {
	p := s.cfg.Params
	return provider.Request{
		Origin:      p.Origin,
		Destination: p.Destination,
		Dates:       pair,
		Currency:    p.Currency,
		Adults:      s.cfg.Adults,
		MaxStops:    p.MaxStops,
	}
}

func (s *Scheduler) alertFor(route string, obs model.PriceObservation, decision model.Decision, now time.Time) model.Alert {
	alert := model.Alert{
		Route:       route,
		TriggeredAt: now.UTC(),
		Reason:      decision.Reason,
		Observation: obs,
		Decision:    decision,
	}
	if obs.Offer != nil {
		alert.URL = obs.Offer.DeepLink
		if alert.URL == "" {
			alert.URL = provider.GoogleFlightsURL(s.request(obs.Offer.Dates))
		}
	}
	return alert
}

func (s *Scheduler) logSummary(log *slog.Logger, r CycleReport) {
	obs := r.Observation
	attrs := []any{
		"pairs", len(r.Pairs),
		"failed", len(r.Failures),
		"offers", obs.OffersSeen,
		"outcome", string(obs.Outcome),
		"verdict", string(r.Decision.Verdict),
	}
	if obs.MinPrice != nil {
		attrs = append(attrs, "price", obs.MinPrice.StringFixed(2), "currency", obs.Currency)
		if o := obs.Offer; o != nil {
			attrs = append(attrs, "depart", o.Dates.Depart.Format(model.DateLayout), "return", returnLabel(o.Dates))
		}
		if r.Decision.PreviousBest != nil {
			attrs = append(attrs, "previous_best", r.Decision.PreviousBest.StringFixed(2), "drop_pct", r.DropPercent.String())
		}
	}
	if len(r.Failures) > 0 && len(r.Failures) == len(r.Pairs) {
		log.Warn("cycle finished with every search failing", attrs...)
		return
	}
	log.Info("cycle finished", attrs...)
}

func returnLabel(p model.DatePair) string {
	if p.OneWay() {
		return "one-way"
	}
	return p.Return.Format(model.DateLayout)
}

