package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agisilaos/farewatch/internal/api"
	"github.com/agisilaos/farewatch/internal/model"
	"github.com/agisilaos/farewatch/internal/monitor"
	"github.com/agisilaos/farewatch/internal/provider"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type watchOptions struct {
	Once        bool
	FailOnEmpty bool
}

// watchBindings maps config keys onto the watch flags that override them.
var watchBindings = map[string]string{
	"origin":             "origin",
	"destination":        "destination",
	"depart":             "depart",
	"return":             "return",
	"one_way":            "one-way",
	"threshold":          "threshold",
	"interval":           "interval",
	"flexible":           "flexible",
	"range":              "range",
	"max_stops":          "max-stops",
	"currency":           "currency",
	"provider":           "provider",
	"search_concurrency": "concurrency",
	"http.addr":          "listen",
}

func (a App) newWatchCommand(g *globalFlags) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the price monitor (continuous by default)",
		Args:  usageArgs(0, "watch [--once] [--interval 24h] [--listen :8080] [flags]"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.setup(cmd, g, watchBindings)
			if err != nil {
				return err
			}
			return a.runWatch(cmd.Context(), rt, opts)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.Once, "once", false, "Run a single cycle and exit")
	f.BoolVar(&opts.FailOnEmpty, "fail-on-empty", false, "Exit 5 when a single cycle finds no qualifying price")
	f.String("origin", "", "Origin airport code")
	f.String("destination", "", "Destination airport code")
	f.String("depart", "", "Nominal departure date YYYY-MM-DD")
	f.String("return", "", "Nominal return date YYYY-MM-DD")
	f.Bool("one-way", false, "Search one-way trips")
	f.String("threshold", "", "Alert when the price is at or below this amount")
	f.Duration("interval", 0, "Time between cycles in continuous mode")
	f.Bool("flexible", false, "Search +/- range days around the nominal dates")
	f.Int("range", 0, "Flexibility radius in days")
	f.Int("max-stops", 0, "Maximum stops per offer (-1 for unbounded)")
	f.String("currency", "", "ISO currency code")
	f.String("provider", "", "Search provider: serpapi|amadeus|google-url|fixture")
	f.Int("concurrency", 0, "Concurrent date-pair searches")
	f.String("listen", "", "Serve the read-only status API on this address")
	return cmd
}

func (a App) runWatch(parent context.Context, rt *runtime, opts *watchOptions) error {
	params, err := rt.cfg.Params()
	if err != nil {
		return classify(err)
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := a.openServices(ctx, rt)
	if err != nil {
		return classify(err)
	}
	defer svc.Close()

	mode := monitor.ModeContinuous
	if opts.Once {
		mode = monitor.ModeOnce
	}
	var last *monitor.CycleReport
	sched, err := monitor.New(monitor.Config{
		Params:      params,
		Interval:    rt.cfg.Interval,
		Mode:        mode,
		Concurrency: rt.cfg.SearchConcurrency,
		Adults:      rt.cfg.Adults,
	}, monitor.Deps{
		Searcher:  svc.searcher,
		Evaluator: svc.evaluator,
		History:   svc.history,
		Deals:     svc.deals,
		Notifier:  svc.dispatcher,
		Logger:    rt.logger,
		Now:       a.Now,
		OnTransition: func(from, to monitor.State) {
			rt.logger.Debug("monitor state", "from", string(from), "state", string(to))
		},
		OnCycle: func(r monitor.CycleReport) {
			last = &r
			a.printCycle(rt.g, r)
		},
	})
	if err != nil {
		return classify(err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, gctx := errgroup.WithContext(runCtx)
	if addr := strings.TrimSpace(rt.cfg.HTTP.Addr); addr != "" {
		handler := api.NewHandler(svc.history, svc.deals, params.RouteKey(), func() string { return string(sched.State()) })
		router := api.NewRouter(handler, rt.logger)
		group.Go(func() error {
			return api.Serve(gctx, addr, router, rt.logger)
		})
	}
	group.Go(func() error {
		defer cancel()
		return sched.Run(gctx)
	})
	if err := group.Wait(); err != nil {
		return classify(err)
	}

	if !opts.Once || last == nil {
		return nil
	}
	return onceOutcome(*last, opts.FailOnEmpty)
}

// onceOutcome turns a single-shot report into the process exit status.
func onceOutcome(r monitor.CycleReport, failOnEmpty bool) error {
	if n := len(r.Pairs); n > 0 && len(r.Failures) == n {
		cause := r.Failures[0].Err
		for _, f := range r.Failures {
			if !errors.Is(f.Err, provider.ErrAuthRequired) {
				return newExitError(ExitProviderFailure, "all provider requests failed (%d/%d): %v", len(r.Failures), n, cause)
			}
		}
		return wrapExitError(ExitAuthRequired, cause)
	}
	if failOnEmpty && !r.Observation.HasPrice() {
		return newExitError(ExitNoMatches, "no qualifying offers for %s (%s)", r.Observation.Params.RouteKey(), r.Observation.Outcome)
	}
	return nil
}

type cycleView struct {
	CycleID     string          `json:"cycle_id"`
	Route       string          `json:"route"`
	ObservedAt  time.Time       `json:"observed_at"`
	Pairs       int             `json:"pairs"`
	FailedPairs int             `json:"failed_pairs"`
	Outcome     model.Outcome   `json:"outcome"`
	MinPrice    string          `json:"min_price,omitempty"`
	Currency    string          `json:"currency"`
	Offer       *model.Offer    `json:"offer,omitempty"`
	Verdict     model.Verdict   `json:"verdict"`
	Reason      string          `json:"reason"`
	DropPercent string          `json:"drop_percent,omitempty"`
	AlertSent   bool            `json:"alert_sent"`
	NotifyError string          `json:"notify_error,omitempty"`
	DealState   model.DealState `json:"deal_state"`
}

func newCycleView(r monitor.CycleReport) cycleView {
	v := cycleView{
		CycleID:     r.CycleID,
		Route:       r.Observation.Params.RouteKey(),
		ObservedAt:  r.Observation.ObservedAt,
		Pairs:       len(r.Pairs),
		FailedPairs: len(r.Failures),
		Outcome:     r.Observation.Outcome,
		Currency:    r.Observation.Currency,
		Offer:       r.Observation.Offer,
		Verdict:     r.Decision.Verdict,
		Reason:      r.Decision.Reason,
		AlertSent:   r.Alert != nil && r.NotifyErr == nil,
		DealState:   r.DealState,
	}
	if r.Observation.MinPrice != nil {
		v.MinPrice = r.Observation.MinPrice.StringFixed(2)
	}
	if r.DropPercent.IsPositive() {
		v.DropPercent = r.DropPercent.String()
	}
	if r.NotifyErr != nil {
		v.NotifyError = r.NotifyErr.Error()
	}
	return v
}

func (a App) printCycle(g *globalFlags, r monitor.CycleReport) {
	if g.JSON {
		_ = writeJSONLine(a.Out, newCycleView(r))
		return
	}
	if g.Quiet {
		return
	}
	writeCycleLine(a.Out, newCycleView(r))
}

func writeCycleLine(w io.Writer, v cycleView) {
	price := "none"
	if v.MinPrice != "" {
		price = v.MinPrice + " " + v.Currency
	}
	pairs := []string{
		"route", v.Route,
		"pairs", fmt.Sprintf("%d/%d", v.Pairs-v.FailedPairs, v.Pairs),
		"min", price,
		"verdict", string(v.Verdict),
	}
	if v.DropPercent != "" {
		pairs = append(pairs, "drop", v.DropPercent+"%")
	}
	if v.Offer != nil {
		pairs = append(pairs, "dates", v.Offer.Dates.Key())
	}
	pairs = append(pairs, "reason", v.Reason)
	writePlainKV(w, pairs...)
}
