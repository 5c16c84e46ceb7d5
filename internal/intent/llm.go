package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agisilaos/farewatch/internal/llm"
	"github.com/agisilaos/farewatch/internal/model"
	"github.com/shopspring/decimal"
)

const extractionPrompt = `You extract flight search parameters from a traveller's request.
Reply with exactly one JSON object and nothing else, using these keys:
  "origin":         IATA airport code of the departure city, or null
  "destination":    IATA airport code of the arrival city, or null
  "departure_date": YYYY-MM-DD, or "YYYY-MM-DD to YYYY-MM-DD" for a range, or null
  "return_date":    same format as departure_date, or null
  "trip_type":      "round-trip" or "one-way"
  "max_stops":      integer, or null
  "budget":         number (maximum acceptable price), or null
  "currency":       ISO 4217 code, or null
  "flexible":       true if the traveller accepts nearby dates, or null
  "range":          number of days of flexibility, or null
Today is %s. Resolve relative dates against today. Use null for anything not stated.`

// LLMStrategy asks a language model for a structured reading of the query.
// One call is made; any failure is reported as ErrExtraction.
type LLMStrategy struct {
	Client  llm.Client
	Catalog *Catalog
	Now     func() time.Time
	Timeout time.Duration
}

func NewLLMStrategy(client llm.Client, now func() time.Time) *LLMStrategy {
	if now == nil {
		now = time.Now
	}
	return &LLMStrategy{Client: client, Catalog: DefaultCatalog(), Now: now, Timeout: 45 * time.Second}
}

func (s *LLMStrategy) Name() string { return "llm:" + s.Client.Name() }

type llmReply struct {
	Origin        *string     `json:"origin"`
	Destination   *string     `json:"destination"`
	DepartureDate *string     `json:"departure_date"`
	ReturnDate    *string     `json:"return_date"`
	TripType      *string     `json:"trip_type"`
	MaxStops      json.Number `json:"max_stops"`
	Budget        json.Number `json:"budget"`
	Currency      *string     `json:"currency"`
	Flexible      *bool       `json:"flexible"`
	Range         json.Number `json:"range"`
}

func (s *LLMStrategy) Extract(ctx context.Context, query string) (Draft, error) {
	today := model.Day(s.Now())
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	system := fmt.Sprintf(extractionPrompt, today.Format(model.DateLayout))
	text, err := s.Client.Complete(ctx, system, query)
	if err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	reply, err := decodeReply(text)
	if err != nil {
		return Draft{}, err
	}
	return s.toDraft(reply, today), nil
}

// decodeReply takes the text between the first '{' and the last '}'.
func decodeReply(text string) (llmReply, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return llmReply{}, fmt.Errorf("%w: no JSON object in model reply", ErrExtraction)
	}
	dec := json.NewDecoder(strings.NewReader(text[start : end+1]))
	dec.UseNumber()
	var r llmReply
	if err := dec.Decode(&r); err != nil {
		return llmReply{}, fmt.Errorf("%w: decode model reply: %v", ErrExtraction, err)
	}
	return r, nil
}

func (s *LLMStrategy) toDraft(r llmReply, today time.Time) Draft {
	var d Draft
	d.Origin = s.place(r.Origin)
	d.Destination = s.place(r.Destination)
	if d.Origin == d.Destination {
		d.Destination = ""
	}
	if r.DepartureDate != nil {
		start, _, isRange := SplitRange(*r.DepartureDate)
		if t, err := ParseDate(start, today); err == nil {
			d.Depart = t
		}
		if isRange {
			d.Flexible = boolPtr(true)
		}
	}
	if r.ReturnDate != nil {
		start, end, isRange := SplitRange(*r.ReturnDate)
		if isRange {
			start = end
			d.Flexible = boolPtr(true)
		}
		if t, err := ParseDate(start, today); err == nil {
			d.Return = t
		}
	}
	if r.TripType != nil {
		tt := strings.ToLower(*r.TripType)
		d.OneWay = strings.Contains(tt, "one") || strings.Contains(tt, "simple")
	}
	if n, ok := intOf(r.MaxStops); ok {
		d.MaxStops = &n
	}
	if r.Budget != "" {
		if v, err := decimal.NewFromString(r.Budget.String()); err == nil && v.IsPositive() {
			d.Budget = &v
		}
	}
	if r.Currency != nil && len(strings.TrimSpace(*r.Currency)) == 3 {
		d.Currency = strings.ToUpper(strings.TrimSpace(*r.Currency))
	}
	if r.Flexible != nil {
		d.Flexible = r.Flexible
	}
	if n, ok := intOf(r.Range); ok {
		d.RangeDays = &n
	}
	return d
}

func (s *LLMStrategy) place(v *string) string {
	if v == nil {
		return ""
	}
	code, ok := s.Catalog.Lookup(*v)
	if ok {
		return code
	}
	raw := strings.ToUpper(strings.TrimSpace(*v))
	if len(raw) == 3 && isLetters(raw) {
		return raw
	}
	return ""
}

func intOf(n json.Number) (int, bool) {
	if n == "" {
		return 0, false
	}
	if i, err := strconv.Atoi(n.String()); err == nil {
		return i, true
	}
	if f, err := n.Float64(); err == nil {
		return int(f), true
	}
	return 0, false
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func boolPtr(b bool) *bool { return &b }
