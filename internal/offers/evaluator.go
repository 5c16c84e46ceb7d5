// Package offers reduces a batch of provider offers to the cheapest one that
// satisfies the stop ceiling and currency policy.
package offers

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agisilaos/farewatch/internal/model"
	"github.com/shopspring/decimal"
)

// CurrencyPolicy decides what happens to an offer priced in another currency.
type CurrencyPolicy string

const (
	PolicyReject  CurrencyPolicy = "reject"
	PolicyConvert CurrencyPolicy = "convert"
)

var ErrUnknownRate = errors.New("no conversion rate")

func ParsePolicy(v string) (CurrencyPolicy, error) {
	switch CurrencyPolicy(strings.ToLower(strings.TrimSpace(v))) {
	case "", PolicyReject:
		return PolicyReject, nil
	case PolicyConvert:
		return PolicyConvert, nil
	default:
		return "", fmt.Errorf("%w: unknown currency policy %q (want reject|convert)", model.ErrConfiguration, v)
	}
}

// Converter converts an amount between ISO currencies.
type Converter interface {
	Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// StaticRates converts through a fixed table of rates into a single base
// currency: amount_in_base = amount * rates[from].
type StaticRates struct {
	Base  string
	Rates map[string]decimal.Decimal
}

func (r StaticRates) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return amount, nil
	}
	toBase := func(code string) (decimal.Decimal, error) {
		if code == strings.ToUpper(r.Base) {
			return decimal.NewFromInt(1), nil
		}
		rate, ok := r.Rates[code]
		if !ok || !rate.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownRate, code)
		}
		return rate, nil
	}
	fromRate, err := toBase(from)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := toBase(to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(fromRate).Div(toRate).Round(2), nil
}

type Evaluator struct {
	Policy    CurrencyPolicy
	Converter Converter
}

type Result struct {
	Outcome    model.Outcome
	Best       *model.Offer
	OffersSeen int
	Qualifying int
	Rejected   map[string]int
}

// MinPrice returns the qualifying minimum, or nil when nothing qualified.
func (r Result) MinPrice() *decimal.Decimal {
	if r.Best == nil {
		return nil
	}
	p := r.Best.Price
	return &p
}

// Evaluate drops offers without a positive price, then filters by maxStops
// (model.UnboundedStops disables the ceiling) and currency. Ties on price go to fewer stops, then the earliest
// departure; offer ID settles anything left so arrival order never matters.
func (e Evaluator) Evaluate(batch []model.Offer, maxStops int, currency string) Result {
	res := Result{OffersSeen: len(batch), Rejected: map[string]int{}}
	if len(batch) == 0 {
		res.Outcome = model.OutcomeNoOffers
		return res
	}
	currency = strings.ToUpper(currency)
	qualifying := make([]model.Offer, 0, len(batch))
	for _, o := range batch {
		// a reply without a usable price decodes to zero
		if !o.Price.IsPositive() {
			res.Rejected["price"]++
			continue
		}
		if maxStops != model.UnboundedStops && o.Stops > maxStops {
			res.Rejected["stops"]++
			continue
		}
		if !strings.EqualFold(o.Currency, currency) {
			converted, ok := e.convert(o, currency)
			if !ok {
				res.Rejected["currency"]++
				continue
			}
			o = converted
		}
		qualifying = append(qualifying, o)
	}
	res.Qualifying = len(qualifying)
	if len(qualifying) == 0 {
		res.Outcome = model.OutcomeNoQualifying
		return res
	}
	sort.SliceStable(qualifying, func(i, j int) bool { return less(qualifying[i], qualifying[j]) })
	best := qualifying[0]
	res.Best = &best
	res.Outcome = model.OutcomeFound
	return res
}

func (e Evaluator) convert(o model.Offer, currency string) (model.Offer, bool) {
	if e.Policy != PolicyConvert || e.Converter == nil {
		return o, false
	}
	price, err := e.Converter.Convert(o.Price, o.Currency, currency)
	if err != nil {
		return o, false
	}
	o.Price = price
	o.Currency = currency
	return o, true
}

func less(a, b model.Offer) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	if a.Stops != b.Stops {
		return a.Stops < b.Stops
	}
	if !a.DepartAt.Equal(b.DepartAt) {
		switch {
		case a.DepartAt.IsZero():
			return false
		case b.DepartAt.IsZero():
			return true
		}
		return a.DepartAt.Before(b.DepartAt)
	}
	return a.ID < b.ID
}
