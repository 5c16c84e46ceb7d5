package provider

import (
	"context"
	"net/url"
	"strconv"

	"github.com/agisilaos/farewatch/internal/model"
)

// LinkOnlyProvider returns no offers; it exists so a monitor without provider
// credentials can still be dry-run and emit booking links.
type LinkOnlyProvider struct{}

func (LinkOnlyProvider) Name() string { return "google-url" }

func (LinkOnlyProvider) Search(_ context.Context, _ Request) ([]model.Offer, error) {
	return []model.Offer{}, nil
}

// GoogleFlightsURL builds a browsable search link for one date pair.
func GoogleFlightsURL(req Request) string {
	values := url.Values{}
	values.Set("f", req.Origin)
	values.Set("t", req.Destination)
	values.Set("d", req.Dates.Depart.Format(model.DateLayout))
	if !req.Dates.OneWay() {
		values.Set("r", req.Dates.Return.Format(model.DateLayout))
	}
	if req.MaxStops == 0 {
		values.Set("sc", "1")
	}
	if req.Adults > 0 {
		values.Set("ad", strconv.Itoa(req.Adults))
	}
	if req.Currency != "" {
		values.Set("curr", req.Currency)
	}
	return "https://www.google.com/travel/flights?" + values.Encode()
}
