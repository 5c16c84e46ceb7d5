package provider

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/agisilaos/farewatch/internal/model"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FixtureProvider serves canned offers from a YAML file, keyed by date pair.
// Entries without a depart date apply to every pair. Used for offline runs.
type FixtureProvider struct {
	Path string

	once sync.Once
	doc  fixtureDoc
	err  error
}

type fixtureDoc struct {
	Offers   []fixtureOffer `yaml:"offers"`
	Failures []string       `yaml:"failures"`
}

type fixtureOffer struct {
	ID       string   `yaml:"id"`
	Depart   string   `yaml:"depart"`
	Return   string   `yaml:"return"`
	Price    string   `yaml:"price"`
	Currency string   `yaml:"currency"`
	Stops    int      `yaml:"stops"`
	Carriers []string `yaml:"carriers"`
}

func (p *FixtureProvider) Name() string { return "fixture" }

func (p *FixtureProvider) Search(ctx context.Context, req Request) ([]model.Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.once.Do(p.load)
	if p.err != nil {
		return nil, p.err
	}
	key := req.Dates.Key()
	for _, f := range p.doc.Failures {
		if f == key || f == req.Dates.Depart.Format(model.DateLayout) {
			return nil, fmt.Errorf("%w: fixture failure for %s", ErrTransient, key)
		}
	}

	out := []model.Offer{}
	for i, f := range p.doc.Offers {
		if !f.matches(req.Dates) {
			continue
		}
		price, err := decimal.NewFromString(strings.TrimSpace(f.Price))
		if err != nil {
			return nil, fmt.Errorf("fixture offer %d: price %q: %w", i, f.Price, err)
		}
		id := f.ID
		if id == "" {
			id = fmt.Sprintf("fixture-%d", i)
		}
		stops := f.Stops
		out = append(out, model.Offer{
			ID:       id + "@" + key,
			Provider: "fixture",
			Price:    price,
			Currency: firstOr(strings.ToUpper(f.Currency), req.Currency),
			Stops:    stops,
			Segments: stops + 1,
			Carriers: append([]string(nil), f.Carriers...),
			Dates:    req.Dates,
			DeepLink: GoogleFlightsURL(req),
		})
	}
	return out, nil
}

func (p *FixtureProvider) load() {
	raw, err := os.ReadFile(p.Path)
	if err != nil {
		p.err = fmt.Errorf("read fixture: %w", err)
		return
	}
	if err := yaml.Unmarshal(raw, &p.doc); err != nil {
		p.err = fmt.Errorf("parse fixture %s: %w", p.Path, err)
	}
}

func (f fixtureOffer) matches(d model.DatePair) bool {
	if f.Depart == "" {
		return true
	}
	if f.Depart != d.Depart.Format(model.DateLayout) {
		return false
	}
	if f.Return == "" {
		return true
	}
	return !d.OneWay() && f.Return == d.Return.Format(model.DateLayout)
}
