package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agisilaos/farewatch/internal/model"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	amadeusDefaultBaseURL = "https://test.api.amadeus.com"
	amadeusTimeLayout     = "2006-01-02T15:04:05"
	amadeusMaxResults     = 10
)

// AmadeusProvider searches the Amadeus flight-offers API. The access token is
// obtained with the client-credentials grant and refreshed on expiry.
type AmadeusProvider struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	Client       *http.Client
	Timeout      time.Duration
	Retries      int
	Backoff      time.Duration

	mu sync.Mutex
	ts oauth2.TokenSource
}

type amadeusResponse struct {
	Data []amadeusOffer `json:"data"`
}

type amadeusOffer struct {
	ID    string `json:"id"`
	Price struct {
		Currency string          `json:"currency"`
		Total    decimal.Decimal `json:"total"`
	} `json:"price"`
	Itineraries []struct {
		Duration string `json:"duration"`
		Segments []struct {
			CarrierCode string `json:"carrierCode"`
			Number      string `json:"number"`
			Departure   struct {
				IATACode string `json:"iataCode"`
				At       string `json:"at"`
			} `json:"departure"`
			Arrival struct {
				IATACode string `json:"iataCode"`
				At       string `json:"at"`
			} `json:"arrival"`
		} `json:"segments"`
	} `json:"itineraries"`
}

func (p *AmadeusProvider) Name() string { return "amadeus" }

func (p *AmadeusProvider) Search(ctx context.Context, req Request) ([]model.Offer, error) {
	if p.ClientID == "" || p.ClientSecret == "" {
		return nil, fmt.Errorf("%w: amadeus credentials missing: set amadeus.client_id and amadeus.client_secret", ErrAuthRequired)
	}
	base := p.baseClient()
	ts := p.tokenSource(base)
	if _, err := ts.Token(); err != nil {
		return nil, classifyTokenError(err)
	}
	client := &http.Client{
		Timeout:   base.Timeout,
		Transport: &oauth2.Transport{Source: ts, Base: base.Transport},
	}

	var payload amadeusResponse
	policy := retryPolicy{Retries: p.Retries, Backoff: p.Backoff}
	if err := fetchJSONWithRetry(ctx, client, buildAmadeusURL(p.baseURL(), req), "amadeus", policy, &payload); err != nil {
		return nil, err
	}

	link := GoogleFlightsURL(req)
	offers := make([]model.Offer, 0, len(payload.Data))
	for _, raw := range payload.Data {
		o := mapAmadeusOffer(req, raw)
		o.DeepLink = link
		offers = append(offers, o)
	}
	return offers, nil
}

func (p *AmadeusProvider) baseClient() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (p *AmadeusProvider) baseURL() string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	return amadeusDefaultBaseURL
}

func (p *AmadeusProvider) tokenSource(base *http.Client) oauth2.TokenSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ts != nil {
		return p.ts
	}
	cfg := clientcredentials.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		TokenURL:     p.baseURL() + "/v1/security/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	// the token source outlives any single search, so it must not capture a request context
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	p.ts = cfg.TokenSource(tokenCtx)
	return p.ts
}

func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		switch code := re.Response.StatusCode; {
		case code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: amadeus token: %v", ErrRateLimited, err)
		case code >= 500:
			return fmt.Errorf("%w: amadeus token: %v", ErrTransient, err)
		default:
			return fmt.Errorf("%w: amadeus token: %v", ErrAuthRequired, err)
		}
	}
	return fmt.Errorf("%w: amadeus token: %v", ErrTransient, err)
}

func buildAmadeusURL(baseURL string, req Request) string {
	v := url.Values{}
	v.Set("originLocationCode", req.Origin)
	v.Set("destinationLocationCode", req.Destination)
	v.Set("departureDate", req.Dates.Depart.Format(model.DateLayout))
	if !req.Dates.OneWay() {
		v.Set("returnDate", req.Dates.Return.Format(model.DateLayout))
	}
	v.Set("adults", strconv.Itoa(maxInt(req.Adults, 1)))
	if req.Currency != "" {
		v.Set("currencyCode", req.Currency)
	}
	if req.MaxStops == 0 {
		v.Set("nonStop", "true")
	}
	v.Set("max", strconv.Itoa(amadeusMaxResults))
	return baseURL + "/v2/shopping/flight-offers?" + v.Encode()
}

func mapAmadeusOffer(req Request, raw amadeusOffer) model.Offer {
	o := model.Offer{
		ID:       "amadeus-" + req.Dates.Key() + "-" + raw.ID,
		Provider: "amadeus",
		Price:    raw.Price.Total,
		Currency: firstOr(raw.Price.Currency, req.Currency),
		Dates:    req.Dates,
	}
	for i, it := range raw.Itineraries {
		o.Segments += len(it.Segments)
		if stops := len(it.Segments) - 1; stops > o.Stops {
			o.Stops = stops
		}
		for _, seg := range it.Segments {
			o.Carriers = appendCarrier(o.Carriers, seg.CarrierCode)
		}
		if len(it.Segments) == 0 {
			continue
		}
		switch i {
		case 0:
			o.DepartAt = parseLocal(amadeusTimeLayout, it.Segments[0].Departure.At)
			o.ArriveAt = parseLocal(amadeusTimeLayout, it.Segments[len(it.Segments)-1].Arrival.At)
		case 1:
			o.ReturnAt = parseLocal(amadeusTimeLayout, it.Segments[0].Departure.At)
		}
	}
	return o
}
