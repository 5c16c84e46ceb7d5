package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/agisilaos/farewatch/internal/history"
	"github.com/agisilaos/farewatch/internal/intent"
	"github.com/agisilaos/farewatch/internal/llm"
	"github.com/agisilaos/farewatch/internal/model"
	"github.com/agisilaos/farewatch/internal/monitor"
	"github.com/agisilaos/farewatch/internal/offers"
	"github.com/agisilaos/farewatch/internal/provider"
	"github.com/agisilaos/farewatch/internal/state"
	"github.com/spf13/cobra"
)

var askBindings = map[string]string{
	"provider":     "provider",
	"llm.provider": "llm-provider",
	"llm.model":    "llm-model",
}

func (a App) newAskCommand(g *globalFlags) *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "ask [query...]",
		Short: "Search once from a free-text request (English or French)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" && !interactive {
				return newExitError(ExitInvalidUsage, "usage: farewatch ask <query> | farewatch ask --interactive")
			}
			rt, err := a.setup(cmd, g, askBindings)
			if err != nil {
				return err
			}
			s, err := a.newAskSession(cmd.Context(), rt)
			if err != nil {
				return classify(err)
			}
			defer s.Close()
			if interactive {
				return s.repl(cmd.Context(), a.In)
			}
			return classify(s.ask(cmd.Context(), query))
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Read queries line by line until quit")
	cmd.Flags().String("provider", "", "Search provider: serpapi|amadeus|google-url|fixture")
	cmd.Flags().String("llm-provider", "", "Language model: "+strings.Join(llm.Providers(), "|"))
	cmd.Flags().String("llm-model", "", "Language model name")
	return cmd
}

// askSession runs one single-shot cycle per query. History is shared with
// the monitor; deal state lives only as long as the session.
type askSession struct {
	app       App
	rt        *runtime
	searcher  provider.Searcher
	evaluator offers.Evaluator
	history   *history.Store
	deals     state.Store
	client    llm.Client
	extractor *intent.Extractor
}

func (a App) newAskSession(ctx context.Context, rt *runtime) (*askSession, error) {
	searcher, err := newSearcher(rt.cfg)
	if err != nil {
		return nil, err
	}
	evaluator, err := newEvaluator(rt.cfg)
	if err != nil {
		return nil, err
	}
	hist, err := openHistory(ctx, rt.cfg, rt.stateDir)
	if err != nil {
		return nil, err
	}
	s := &askSession{app: a, rt: rt, searcher: searcher, evaluator: evaluator, history: hist, deals: state.NewMemoryStore()}
	if err := s.rebuildExtractor(); err != nil {
		_ = hist.Close()
		return nil, err
	}
	return s, nil
}

func (s *askSession) rebuildExtractor() error {
	client, err := newLLMClient(s.rt.cfg.LLM, s.rt.logger)
	if err != nil {
		return err
	}
	s.closeClient()
	s.client = client
	s.extractor = intent.ForClient(client, s.rt.logger, s.app.Now)
	return nil
}

func (s *askSession) closeClient() {
	if c, ok := s.client.(io.Closer); ok {
		_ = c.Close()
	}
	s.client = nil
}

func (s *askSession) Close() error {
	s.closeClient()
	return s.history.Close()
}

type askView struct {
	Query     string                 `json:"query"`
	Language  string                 `json:"language"`
	Source    string                 `json:"source"`
	Params    model.SearchParameters `json:"params"`
	Defaulted []string               `json:"defaulted"`
	Cycle     *cycleView             `json:"cycle,omitempty"`
}

func (s *askSession) ask(ctx context.Context, query string) error {
	res := s.extractor.Extract(ctx, query)
	s.rt.logger.Debug("query understood", "source", res.Source, "route", res.Params.RouteKey(), "defaulted", strings.Join(res.Defaulted, ","))

	var last *monitor.CycleReport
	sched, err := monitor.New(monitor.Config{
		Params:      res.Params,
		Mode:        monitor.ModeOnce,
		Concurrency: s.rt.cfg.SearchConcurrency,
		Adults:      s.rt.cfg.Adults,
	}, monitor.Deps{
		Searcher:  s.searcher,
		Evaluator: s.evaluator,
		History:   s.history,
		Deals:     s.deals,
		Logger:    s.rt.logger,
		Now:       s.app.Now,
		OnCycle:   func(r monitor.CycleReport) { last = &r },
	})
	if err != nil {
		return err
	}
	if err := sched.Run(ctx); err != nil {
		return err
	}

	view := askView{Query: query, Language: res.Language, Source: res.Source, Params: res.Params, Defaulted: res.Defaulted}
	if last != nil {
		cv := newCycleView(*last)
		view.Cycle = &cv
	}
	if s.rt.g.JSON {
		return writeJSONLine(s.app.Out, view)
	}
	for _, line := range summarize(view) {
		fmt.Fprintln(s.app.Out, line)
	}
	return nil
}

func (s *askSession) repl(ctx context.Context, in io.Reader) error {
	out := s.app.Out
	sc := bufio.NewScanner(in)
	prompt := func() {
		if !s.rt.g.JSON {
			fmt.Fprint(out, "> ")
		}
	}
	prompt()
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch strings.ToLower(cmd) {
		case "":
		case "quit", "exit", "q", "quitter":
			return nil
		case "model", "provider", "key":
			if arg == "" {
				fmt.Fprintf(out, "usage: %s <value>\n", strings.ToLower(cmd))
				break
			}
			if err := s.configure(strings.ToLower(cmd), arg); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		default:
			if err := s.ask(ctx, line); err != nil {
				if errors.Is(err, history.ErrStorage) {
					return err
				}
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
		prompt()
	}
	return sc.Err()
}

func (s *askSession) configure(setting, value string) error {
	cfg := &s.rt.cfg.LLM
	prev := *cfg
	switch setting {
	case "model":
		cfg.Model = value
	case "provider":
		cfg.Provider = strings.ToLower(value)
	case "key":
		cfg.APIKey = value
	}
	if err := s.rebuildExtractor(); err != nil {
		*cfg = prev
		return err
	}
	name := "keyword only"
	if s.client != nil {
		name = s.client.Name()
	}
	fmt.Fprintf(s.app.Out, "extraction: %s\n", name)
	return nil
}

type phrases struct {
	detected, defaulted, best, none, link, depart, ret, oneWay, stops, anyStops, direct, stopCount string
}

var summaryPhrases = map[string]phrases{
	"en": {
		detected: "Detected", defaulted: "Defaulted", best: "Best price",
		none: "No qualifying offers found.", link: "Google Flights",
		depart: "depart", ret: "return", oneWay: "one way",
		stops: "max stops", anyStops: "any stops", direct: "direct", stopCount: "%d stop(s)",
	},
	"fr": {
		detected: "Détecté", defaulted: "Valeurs par défaut", best: "Meilleur prix",
		none: "Aucune offre correspondante trouvée.", link: "Google Flights",
		depart: "départ", ret: "retour", oneWay: "aller simple",
		stops: "escales max", anyStops: "escales illimitées", direct: "direct", stopCount: "%d escale(s)",
	},
}

// summarize renders the result in the language the query was written in.
func summarize(v askView) []string {
	ph, ok := summaryPhrases[v.Language]
	if !ok {
		ph = summaryPhrases["en"]
	}
	sep := ": "
	if v.Language == "fr" {
		sep = " : "
	}
	p := v.Params
	parts := []string{
		fmt.Sprintf("%s -> %s", p.Origin, p.Destination),
		ph.depart + " " + p.Depart.Format(model.DateLayout),
	}
	if p.OneWay || p.Return.IsZero() {
		parts = append(parts, ph.oneWay)
	} else {
		parts = append(parts, ph.ret+" "+p.Return.Format(model.DateLayout))
	}
	if p.MaxStops == model.UnboundedStops {
		parts = append(parts, ph.anyStops)
	} else {
		parts = append(parts, fmt.Sprintf("%s %d", ph.stops, p.MaxStops))
	}
	parts = append(parts, p.Currency)
	lines := []string{fmt.Sprintf("%s%s%s (%s)", ph.detected, sep, strings.Join(parts, ", "), v.Source)}
	if len(v.Defaulted) > 0 {
		lines = append(lines, ph.defaulted+sep+strings.Join(v.Defaulted, ", "))
	}
	if v.Cycle == nil || v.Cycle.MinPrice == "" {
		return append(lines, ph.none)
	}
	best := fmt.Sprintf("%s%s%s %s", ph.best, sep, v.Cycle.MinPrice, v.Cycle.Currency)
	if o := v.Cycle.Offer; o != nil {
		detail := []string{o.Dates.Key()}
		if len(o.Carriers) > 0 {
			detail = append(detail, strings.Join(o.Carriers, ", "))
		}
		if o.Direct() {
			detail = append(detail, ph.direct)
		} else {
			detail = append(detail, fmt.Sprintf(ph.stopCount, o.Stops))
		}
		best += " (" + strings.Join(detail, "; ") + ")"
		lines = append(lines, best)
		if o.DeepLink != "" {
			lines = append(lines, ph.link+sep+o.DeepLink)
		}
		return lines
	}
	return append(lines, best)
}
