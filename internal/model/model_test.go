package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchParametersJSONTags(t *testing.T) {
	p := SearchParameters{Origin: "YUL", Destination: "LIM", MaxStops: 1, Currency: "CAD", RangeDays: 3, Flexible: true}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	s := string(b)
	assert.NotContains(t, s, `"Origin"`)
	assert.Contains(t, s, `"origin":"YUL"`)
	assert.Contains(t, s, `"max_stops":1`)
	assert.NotContains(t, s, `"depart"`, "zero dates are omitted")
}

func TestSearchParametersValidate(t *testing.T) {
	base := SearchParameters{Origin: "YUL", Destination: "LIM", Currency: "CAD", MaxStops: 2}
	require.NoError(t, base.Validate())

	cases := map[string]func(p *SearchParameters){
		"same airport":     func(p *SearchParameters) { p.Destination = "yul" },
		"missing origin":   func(p *SearchParameters) { p.Origin = "" },
		"negative range":   func(p *SearchParameters) { p.RangeDays = -1 },
		"range too wide":   func(p *SearchParameters) { p.RangeDays = MaxRangeDays + 1 },
		"bad currency":     func(p *SearchParameters) { p.Currency = "DOLLARS" },
		"zero threshold":   func(p *SearchParameters) { p.Threshold = Decimal("0") },
		"stops below -1":   func(p *SearchParameters) { p.MaxStops = -2 },
		"return <= depart": func(p *SearchParameters) { p.Depart = time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC); p.Return = p.Depart },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := base
			mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))
		})
	}
}

func TestEffectiveRangeIgnoresRangeWhenNotFlexible(t *testing.T) {
	p := SearchParameters{RangeDays: 3}
	assert.Equal(t, 0, p.EffectiveRange())
	p.Flexible = true
	assert.Equal(t, 3, p.EffectiveRange())
}

func TestDatePairKey(t *testing.T) {
	d := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-06-10", DatePair{Depart: d}.Key())
	assert.Equal(t, "2026-06-10/2026-06-24", DatePair{Depart: d, Return: d.AddDate(0, 0, 14)}.Key())
}

func TestDayKeepsLocalCalendarDate(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	got := Day(time.Date(2026, 3, 1, 22, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got)
}
