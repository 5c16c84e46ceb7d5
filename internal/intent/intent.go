// Package intent turns free text into fully populated search parameters.
package intent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/agisilaos/farewatch/internal/llm"
	"github.com/agisilaos/farewatch/internal/model"
	"github.com/shopspring/decimal"
)

// ErrExtraction marks a strategy that could not interpret the query. The
// Extractor absorbs it by falling back.
var ErrExtraction = errors.New("extraction failed")

// Field names reported in Result.Defaulted.
const (
	FieldOrigin      = "origin"
	FieldDestination = "destination"
	FieldDepart      = "depart"
	FieldReturn      = "return"
	FieldMaxStops    = "max_stops"
	FieldCurrency    = "currency"
	FieldFlexible    = "flexible"
	FieldRange       = "range"
)

type Defaults struct {
	Origin           string
	Destination      string
	Currency         string
	MaxStops         int
	Flexible         bool
	RangeDays        int
	DepartOffsetDays int
	StayDays         int
}

// NominalDefaults are the values used when a query leaves a field open.
func NominalDefaults() Defaults {
	return Defaults{
		Origin:           "YUL",
		Destination:      "LIM",
		Currency:         "CAD",
		MaxStops:         3,
		Flexible:         true,
		RangeDays:        3,
		DepartOffsetDays: 90,
		StayDays:         14,
	}
}

type Result struct {
	Params    model.SearchParameters
	Defaulted []string
	Source    string
	Language  string
}

// WasDefaulted reports whether field was filled from defaults.
func (r Result) WasDefaulted(field string) bool {
	for _, f := range r.Defaulted {
		if f == field {
			return true
		}
	}
	return false
}

// Strategy is one way of reading a query. Implementations return an error
// wrapping ErrExtraction when they cannot produce a draft.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, query string) (Draft, error)
}

// Draft holds what a strategy understood; zero values mean unresolved.
type Draft struct {
	Origin      string
	Destination string
	Depart      time.Time
	Return      time.Time
	OneWay      bool
	MaxStops    *int
	Budget      *decimal.Decimal
	Currency    string
	Flexible    *bool
	RangeDays   *int
}

// Extractor runs strategies in order and always yields a complete result.
type Extractor struct {
	Strategies []Strategy
	Defaults   Defaults
	Now        func() time.Time
	Logger     *slog.Logger
}

func NewExtractor(logger *slog.Logger, now func() time.Time, strategies ...Strategy) *Extractor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if now == nil {
		now = time.Now
	}
	return &Extractor{Strategies: strategies, Defaults: NominalDefaults(), Now: now, Logger: logger}
}

func (e *Extractor) Extract(ctx context.Context, query string) Result {
	lang := DetectLanguage(query)
	for _, s := range e.Strategies {
		d, err := s.Extract(ctx, query)
		if err != nil {
			e.Logger.Warn("extraction strategy failed, falling back", "strategy", s.Name(), "err", err)
			continue
		}
		r := e.complete(d)
		r.Source = s.Name()
		r.Language = lang
		return r
	}
	r := e.complete(Draft{})
	r.Source = "defaults"
	r.Language = lang
	return r
}

func (e *Extractor) complete(d Draft) Result {
	def := e.Defaults
	today := model.Day(e.Now())
	var defaulted []string
	p := model.SearchParameters{
		Origin:      strings.ToUpper(d.Origin),
		Destination: strings.ToUpper(d.Destination),
		Depart:      d.Depart,
		Return:      d.Return,
		OneWay:      d.OneWay,
		Currency:    strings.ToUpper(d.Currency),
		Threshold:   d.Budget,
	}

	if p.Origin == "" {
		p.Origin = def.Origin
		if strings.EqualFold(p.Origin, p.Destination) {
			p.Origin = def.Destination
		}
		defaulted = append(defaulted, FieldOrigin)
	}
	if p.Destination == "" {
		p.Destination = def.Destination
		if strings.EqualFold(p.Destination, p.Origin) {
			p.Destination = def.Origin
		}
		defaulted = append(defaulted, FieldDestination)
	}
	if p.Depart.IsZero() || p.Depart.Before(today) {
		p.Depart = today.AddDate(0, 0, def.DepartOffsetDays)
		defaulted = append(defaulted, FieldDepart)
	}
	switch {
	case p.OneWay:
		p.Return = time.Time{}
	case p.Return.IsZero() || !p.Return.After(p.Depart):
		p.Return = p.Depart.AddDate(0, 0, def.StayDays)
		defaulted = append(defaulted, FieldReturn)
	}
	if d.MaxStops != nil && *d.MaxStops >= 0 {
		p.MaxStops = *d.MaxStops
	} else {
		p.MaxStops = def.MaxStops
		defaulted = append(defaulted, FieldMaxStops)
	}
	if len(p.Currency) != 3 {
		p.Currency = def.Currency
		defaulted = append(defaulted, FieldCurrency)
	}
	if d.Flexible != nil {
		p.Flexible = *d.Flexible
	} else {
		p.Flexible = def.Flexible
		defaulted = append(defaulted, FieldFlexible)
	}
	if d.RangeDays != nil && *d.RangeDays >= 0 && *d.RangeDays <= model.MaxRangeDays {
		p.RangeDays = *d.RangeDays
	} else {
		p.RangeDays = def.RangeDays
		defaulted = append(defaulted, FieldRange)
	}
	if p.Threshold != nil && !p.Threshold.IsPositive() {
		p.Threshold = nil
	}
	return Result{Params: p, Defaulted: defaulted}
}

var frenchMarkers = map[string]bool{
	"de": true, "à": true, "vol": true, "vols": true, "pour": true, "escale": true, "escales": true,
	"aller": true, "retour": true, "je": true, "veux": true, "cherche": true, "en": true, "le": true,
	"la": true, "moins": true, "prix": true, "billet": true, "depuis": true, "vers": true,
	"janvier": true, "février": true, "fevrier": true, "mars": true, "avril": true, "mai": true,
	"juin": true, "juillet": true, "août": true, "aout": true, "septembre": true, "octobre": true,
	"novembre": true, "décembre": true, "decembre": true,
}

var englishMarkers = map[string]bool{
	"from": true, "to": true, "flight": true, "flights": true, "stop": true, "stops": true,
	"one": true, "way": true, "the": true, "in": true, "under": true, "i": true, "want": true,
	"find": true, "cheap": true, "return": true, "and": true, "for": true,
}

// DetectLanguage returns "fr" when French markers dominate, otherwise "en".
func DetectLanguage(query string) string {
	fr, en := 0, 0
	for _, w := range strings.FieldsFunc(strings.ToLower(query), isSeparator) {
		if frenchMarkers[w] {
			fr++
		}
		if englishMarkers[w] {
			en++
		}
	}
	if fr > en {
		return "fr"
	}
	return "en"
}

func isSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', ',', '.', ';', ':', '!', '?', '(', ')', '"', '\'':
		return true
	}
	return false
}

// ForClient selects strategies by availability: the language model first
// when one is configured, the keyword pipeline always.
func ForClient(client llm.Client, logger *slog.Logger, now func() time.Time) *Extractor {
	keyword := NewKeywordStrategy(now)
	if client == nil {
		return NewExtractor(logger, now, keyword)
	}
	return NewExtractor(logger, now, NewLLMStrategy(client, now), keyword)
}
