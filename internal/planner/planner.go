// Package planner expands a nominal travel window into the ordered set of
// date pairs a monitor cycle searches.
package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agisilaos/farewatch/internal/model"
)

const (
	// WindowWeekly90 targets one departure per week from a week out to three months out.
	WindowWeekly90 = "weekly90"

	DefaultStayDays      = 14
	DefaultMaxCrossPairs = 25
)

// Window is a named default travel window relative to today.
type Window struct {
	Name     string
	FirstDay int
	LastDay  int
	StepDays int
	StayDays int
}

var windows = map[string]Window{
	WindowWeekly90: {Name: WindowWeekly90, FirstDay: 7, LastDay: 89, StepDays: 7, StayDays: DefaultStayDays},
}

// LookupWindow returns the named window. An empty name selects the default.
func LookupWindow(name string) (Window, bool) {
	if strings.TrimSpace(name) == "" {
		name = WindowWeekly90
	}
	w, ok := windows[strings.ToLower(strings.TrimSpace(name))]
	return w, ok
}

func (w Window) bounds(today time.Time) (time.Time, time.Time) {
	return today.AddDate(0, 0, w.FirstDay), today.AddDate(0, 0, w.LastDay)
}

func (w Window) targets(today time.Time) []time.Time {
	out := make([]time.Time, 0, (w.LastDay-w.FirstDay)/w.StepDays+1)
	for d := w.FirstDay; d <= w.LastDay; d += w.StepDays {
		out = append(out, today.AddDate(0, 0, d))
	}
	return out
}

type Planner struct {
	Now           func() time.Time
	MaxCrossPairs int
}

func New(now func() time.Time) Planner {
	return Planner{Now: now, MaxCrossPairs: DefaultMaxCrossPairs}
}

type candidate struct {
	pair   model.DatePair
	dist   int
	spread int
}

// Plan returns the deduplicated date pairs for params, closest to the nominal
// dates first. It performs no I/O.
func (p Planner) Plan(params model.SearchParameters) ([]model.DatePair, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	today := model.Day(now())
	radius := params.EffectiveRange()
	if radius < 0 || radius > model.MaxRangeDays {
		return nil, fmt.Errorf("%w: range must be between 0 and %d days, got %d", model.ErrConfiguration, model.MaxRangeDays, radius)
	}

	window, ok := LookupWindow(params.Window)
	if !ok {
		return nil, fmt.Errorf("%w: unknown date window %q", model.ErrConfiguration, params.Window)
	}

	nominals, err := nominalPairs(params, window, today)
	if err != nil {
		return nil, err
	}

	maxCross := p.MaxCrossPairs
	if maxCross <= 0 {
		maxCross = DefaultMaxCrossPairs
	}

	var cands []candidate
	for _, nominal := range nominals {
		if params.FlexReturn && !nominal.OneWay() && radius > 0 {
			cands = append(cands, crossExpand(nominal, radius, maxCross)...)
			continue
		}
		cands = append(cands, shiftExpand(nominal, radius)...)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if a.spread != b.spread {
			return a.spread < b.spread
		}
		if !a.pair.Depart.Equal(b.pair.Depart) {
			return a.pair.Depart.Before(b.pair.Depart)
		}
		return a.pair.Return.Before(b.pair.Return)
	})

	lo, hi := window.bounds(today)
	seen := make(map[string]struct{}, len(cands))
	out := make([]model.DatePair, 0, len(cands))
	for _, c := range cands {
		if c.pair.Depart.Before(today) {
			continue
		}
		if params.RestrictWindow && (c.pair.Depart.Before(lo) || c.pair.Depart.After(hi)) {
			continue
		}
		key := c.pair.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c.pair)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no searchable dates remain for %s (all before %s or outside window %s)",
			model.ErrConfiguration, describe(nominals), today.Format(model.DateLayout), window.Name)
	}
	return out, nil
}

func nominalPairs(params model.SearchParameters, window Window, today time.Time) ([]model.DatePair, error) {
	if !params.Depart.IsZero() {
		pair := model.DatePair{Depart: model.Day(params.Depart)}
		if !params.OneWay && !params.Return.IsZero() {
			pair.Return = model.Day(params.Return)
			if !pair.Return.After(pair.Depart) {
				return nil, fmt.Errorf("%w: return %s must be after depart %s",
					model.ErrConfiguration, pair.Return.Format(model.DateLayout), pair.Depart.Format(model.DateLayout))
			}
		}
		return []model.DatePair{pair}, nil
	}
	targets := window.targets(today)
	out := make([]model.DatePair, 0, len(targets))
	for _, t := range targets {
		pair := model.DatePair{Depart: t}
		if !params.OneWay {
			pair.Return = t.AddDate(0, 0, window.StayDays)
		}
		out = append(out, pair)
	}
	return out, nil
}

// shiftExpand moves the whole trip by -radius..radius days, keeping its length.
func shiftExpand(nominal model.DatePair, radius int) []candidate {
	out := make([]candidate, 0, 2*radius+1)
	for i := -radius; i <= radius; i++ {
		pair := model.DatePair{Depart: nominal.Depart.AddDate(0, 0, i)}
		if !nominal.OneWay() {
			pair.Return = nominal.Return.AddDate(0, 0, i)
		}
		out = append(out, candidate{pair: pair, dist: abs(i)})
	}
	return out
}

// crossExpand flexes departure and return independently. The closest
// maxPairs combinations survive.
func crossExpand(nominal model.DatePair, radius, maxPairs int) []candidate {
	out := make([]candidate, 0, (2*radius+1)*(2*radius+1))
	for i := -radius; i <= radius; i++ {
		for j := -radius; j <= radius; j++ {
			pair := model.DatePair{
				Depart: nominal.Depart.AddDate(0, 0, i),
				Return: nominal.Return.AddDate(0, 0, j),
			}
			if !pair.Return.After(pair.Depart) {
				continue
			}
			out = append(out, candidate{pair: pair, dist: max(abs(i), abs(j)), spread: abs(i) + abs(j)})
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].dist != out[b].dist {
			return out[a].dist < out[b].dist
		}
		return out[a].spread < out[b].spread
	})
	if len(out) > maxPairs {
		out = out[:maxPairs]
	}
	return out
}

func describe(pairs []model.DatePair) string {
	if len(pairs) == 1 {
		return pairs[0].Key()
	}
	return fmt.Sprintf("%d window targets", len(pairs))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
