package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date wire format used by providers, history and config.
const DateLayout = "2006-01-02"

// UnboundedStops disables the stop-count ceiling.
const UnboundedStops = -1

// MaxRangeDays bounds the flexibility radius; each extra day adds searches to
// every cycle.
const MaxRangeDays = 30

// ErrConfiguration marks invalid monitor parameters. It is fatal: no cycle runs.
var ErrConfiguration = errors.New("configuration error")

type SearchParameters struct {
	Origin         string           `json:"origin" yaml:"origin"`
	Destination    string           `json:"destination" yaml:"destination"`
	Depart         time.Time        `json:"depart,omitzero" yaml:"depart,omitempty"`
	Return         time.Time        `json:"return,omitzero" yaml:"return,omitempty"`
	OneWay         bool             `json:"one_way" yaml:"one_way"`
	Window         string           `json:"window,omitempty" yaml:"window,omitempty"`
	RestrictWindow bool             `json:"restrict_window,omitempty" yaml:"restrict_window,omitempty"`
	Flexible       bool             `json:"flexible" yaml:"flexible"`
	RangeDays      int              `json:"range" yaml:"range"`
	FlexReturn     bool             `json:"flex_return,omitempty" yaml:"flex_return,omitempty"`
	MaxStops       int              `json:"max_stops" yaml:"max_stops"`
	Currency       string           `json:"currency" yaml:"currency"`
	Threshold      *decimal.Decimal `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// EffectiveRange is the flexibility radius actually applied by the planner.
func (p SearchParameters) EffectiveRange() int {
	if !p.Flexible {
		return 0
	}
	return p.RangeDays
}

// RouteKey identifies the route a DealState belongs to.
func (p SearchParameters) RouteKey() string {
	return fmt.Sprintf("%s-%s-%s", strings.ToUpper(p.Origin), strings.ToUpper(p.Destination), strings.ToUpper(p.Currency))
}

func (p SearchParameters) Validate() error {
	origin := strings.TrimSpace(p.Origin)
	dest := strings.TrimSpace(p.Destination)
	switch {
	case origin == "" || dest == "":
		return fmt.Errorf("%w: origin and destination are required", ErrConfiguration)
	case strings.EqualFold(origin, dest):
		return fmt.Errorf("%w: origin and destination must differ (both %s)", ErrConfiguration, strings.ToUpper(origin))
	case p.RangeDays < 0 || p.RangeDays > MaxRangeDays:
		return fmt.Errorf("%w: range must be between 0 and %d days, got %d", ErrConfiguration, MaxRangeDays, p.RangeDays)
	case p.MaxStops < UnboundedStops:
		return fmt.Errorf("%w: max stops must be >= 0 or unbounded, got %d", ErrConfiguration, p.MaxStops)
	case len(strings.TrimSpace(p.Currency)) != 3:
		return fmt.Errorf("%w: currency must be a 3-letter ISO code, got %q", ErrConfiguration, p.Currency)
	case p.Threshold != nil && !p.Threshold.IsPositive():
		return fmt.Errorf("%w: threshold must be positive, got %s", ErrConfiguration, p.Threshold.String())
	case !p.Depart.IsZero() && !p.Return.IsZero() && !p.Return.After(p.Depart):
		return fmt.Errorf("%w: return %s must be after depart %s", ErrConfiguration, p.Return.Format(DateLayout), p.Depart.Format(DateLayout))
	}
	return nil
}

type DatePair struct {
	Depart time.Time `json:"depart"`
	Return time.Time `json:"return,omitzero"`
}

func (d DatePair) OneWay() bool {
	return d.Return.IsZero()
}

func (d DatePair) Key() string {
	if d.OneWay() {
		return d.Depart.Format(DateLayout)
	}
	return d.Depart.Format(DateLayout) + "/" + d.Return.Format(DateLayout)
}

func (d DatePair) String() string {
	return d.Key()
}

type Offer struct {
	ID          string          `json:"id"`
	Provider    string          `json:"provider"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Stops       int             `json:"stops"`
	Segments    int             `json:"segments"`
	Carriers    []string        `json:"carriers"`
	DepartAt    time.Time       `json:"depart_at,omitzero"`
	ArriveAt    time.Time       `json:"arrive_at,omitzero"`
	ReturnAt    time.Time       `json:"return_at,omitzero"`
	Dates       DatePair        `json:"dates"`
	DeepLink    string          `json:"deep_link,omitempty"`
	RawSnapshot []byte          `json:"raw_snapshot,omitempty"`
}

func (o Offer) Direct() bool {
	return o.Stops == 0
}

// Outcome distinguishes an upstream empty result from a filter outcome.
type Outcome string

const (
	OutcomeFound        Outcome = "found"
	OutcomeNoOffers     Outcome = "no_offers"
	OutcomeNoQualifying Outcome = "no_qualifying"
)

type PriceObservation struct {
	ID          string           `json:"id"`
	CycleID     string           `json:"cycle_id"`
	ObservedAt  time.Time        `json:"observed_at"`
	Params      SearchParameters `json:"params"`
	Outcome     Outcome          `json:"outcome"`
	MinPrice    *decimal.Decimal `json:"min_price,omitempty"`
	Currency    string           `json:"currency"`
	Offer       *Offer           `json:"offer,omitempty"`
	OffersSeen  int              `json:"offers_seen"`
	PairsTotal  int              `json:"pairs_total"`
	PairsFailed int              `json:"pairs_failed"`
}

// HasPrice reports whether a qualifying price was observed.
func (o PriceObservation) HasPrice() bool {
	return o.MinPrice != nil
}

type DealState struct {
	BestPriceSeen     *decimal.Decimal `json:"best_price_seen,omitempty"`
	LastNotifiedPrice *decimal.Decimal `json:"last_notified_price,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at,omitzero"`
}

type Verdict string

const (
	VerdictNotify   Verdict = "NOTIFY"
	VerdictSuppress Verdict = "SUPPRESS"
)

type Decision struct {
	Verdict      Verdict          `json:"verdict"`
	Reason       string           `json:"reason"`
	Threshold    *decimal.Decimal `json:"threshold,omitempty"`
	PreviousBest *decimal.Decimal `json:"previous_best,omitempty"`
	Improvement  decimal.Decimal  `json:"improvement"`
}

// Alert is what notification collaborators deliver.
type Alert struct {
	Route       string           `json:"route"`
	TriggeredAt time.Time        `json:"triggered_at"`
	Reason      string           `json:"reason"`
	Observation PriceObservation `json:"observation"`
	Decision    Decision         `json:"decision"`
	URL         string           `json:"google_flights_url,omitempty"`
}

// Decimal is a small helper for literal prices in config and tests.
func Decimal(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

// Date parses a YYYY-MM-DD calendar date at UTC midnight.
func Date(v string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(v), time.UTC)
}

// Day returns the calendar date of t (in t's location) at UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
