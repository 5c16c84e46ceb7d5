package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agisilaos/farewatch/internal/model"
	"github.com/shopspring/decimal"
)

type SerpAPIProvider struct {
	APIKey  string
	Client  *http.Client
	Timeout time.Duration
	Retries int
	Backoff time.Duration
	BaseURL string
}

type serpResponse struct {
	BestFlights  []serpFlight `json:"best_flights"`
	OtherFlights []serpFlight `json:"other_flights"`
	SearchMeta   struct {
		GoogleFlightsURL string `json:"google_flights_url"`
	} `json:"search_metadata"`
}

type serpFlight struct {
	Price        decimal.Decimal `json:"price"`
	BookingToken string          `json:"booking_token"`
	Flights      []struct {
		Airline      string `json:"airline"`
		FlightNumber string `json:"flight_number"`
		Departure    struct {
			Airport string `json:"id"`
			Time    string `json:"time"`
		} `json:"departure_airport"`
		Arrival struct {
			Airport string `json:"id"`
			Time    string `json:"time"`
		} `json:"arrival_airport"`
		Duration int `json:"duration"`
	} `json:"flights"`
	Layovers []any `json:"layovers"`
}

const serpTimeLayout = "2006-01-02 15:04"

func (p SerpAPIProvider) Name() string { return "serpapi" }

func (p SerpAPIProvider) Search(ctx context.Context, req Request) ([]model.Offer, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("%w: serpapi key missing: set FAREWATCH_SERPAPI_API_KEY or serpapi.api_key", ErrAuthRequired)
	}

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: p.resolvedTimeout()}
	}
	endpoint := buildSerpURL(p.baseURL(), req, p.APIKey)

	var payload serpResponse
	policy := retryPolicy{Retries: p.Retries, Backoff: p.Backoff}
	if err := fetchJSONWithRetry(ctx, client, endpoint, "serpapi", policy, &payload); err != nil {
		return nil, err
	}

	link := payload.SearchMeta.GoogleFlightsURL
	if link == "" {
		link = GoogleFlightsURL(req)
	}
	all := append(payload.BestFlights, payload.OtherFlights...)
	offers := make([]model.Offer, 0, len(all))
	for i, item := range all {
		o := mapSerpFlight(req, item, i)
		o.DeepLink = link
		offers = append(offers, o)
	}
	return offers, nil
}

func (p SerpAPIProvider) resolvedTimeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return 20 * time.Second
}

func (p SerpAPIProvider) baseURL() string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	return "https://serpapi.com"
}

func buildSerpURL(baseURL string, req Request, apiKey string) string {
	v := url.Values{}
	v.Set("engine", "google_flights")
	v.Set("api_key", apiKey)
	v.Set("departure_id", req.Origin)
	v.Set("arrival_id", req.Destination)
	v.Set("outbound_date", req.Dates.Depart.Format(model.DateLayout))
	if req.Dates.OneWay() {
		v.Set("type", "2")
	} else {
		v.Set("type", "1")
		v.Set("return_date", req.Dates.Return.Format(model.DateLayout))
	}
	v.Set("adults", strconv.Itoa(maxInt(req.Adults, 1)))
	// serpapi stops: 1 nonstop, 2 one stop or fewer, 3 two stops or fewer
	if req.MaxStops >= 0 && req.MaxStops <= 2 {
		v.Set("stops", strconv.Itoa(req.MaxStops+1))
	}
	if req.Currency != "" {
		v.Set("currency", req.Currency)
	}
	return strings.TrimRight(baseURL, "/") + "/search.json?" + v.Encode()
}

func mapSerpFlight(req Request, raw serpFlight, index int) model.Offer {
	o := model.Offer{
		ID:       fmt.Sprintf("serpapi-%s-%d", req.Dates.Key(), index),
		Provider: "serpapi",
		Price:    raw.Price,
		Currency: firstOr(req.Currency, "USD"),
		Stops:    len(raw.Layovers),
		Segments: len(raw.Flights),
		Dates:    req.Dates,
	}
	if raw.BookingToken != "" {
		o.ID = "serpapi-" + raw.BookingToken
	}
	for _, leg := range raw.Flights {
		o.Carriers = appendCarrier(o.Carriers, leg.Airline)
	}
	if len(raw.Flights) > 0 {
		o.DepartAt = parseLocal(serpTimeLayout, raw.Flights[0].Departure.Time)
		o.ArriveAt = parseLocal(serpTimeLayout, raw.Flights[len(raw.Flights)-1].Arrival.Time)
	}
	return o
}

func parseLocal(layout, v string) time.Time {
	t, err := time.ParseInLocation(layout, strings.TrimSpace(v), time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
