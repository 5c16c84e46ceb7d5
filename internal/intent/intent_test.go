package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agisilaos/farewatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 2, 19, 14, 30, 0, 0, time.UTC)

func fixedNow() time.Time { return today }

func day(s string) time.Time {
	d, err := model.Date(s)
	if err != nil {
		panic(err)
	}
	return d
}

func keywordOnly() *Extractor {
	return ForClient(nil, nil, fixedNow)
}

func TestKeywordExtraction(t *testing.T) {
	cases := []struct {
		name      string
		query     string
		origin    string
		dest      string
		depart    string
		ret       string
		oneWay    bool
		maxStops  int
		threshold string
		currency  string
		lang      string
	}{
		{
			name:  "english month and budget",
			query: "Find me a flight from Montreal to Lima in March, 1 stop, under 800$",
			origin: "YUL", dest: "LIM", depart: "2026-03-15", ret: "2026-03-29",
			maxStops: 1, threshold: "800", currency: "CAD", lang: "en",
		},
		{
			name:  "french with two months",
			query: "Je cherche un vol de Montréal à Cusco en juin et retour en juillet, 0 escale, 900 €",
			origin: "YUL", dest: "CUZ", depart: "2026-06-15", ret: "2026-07-25",
			maxStops: 0, threshold: "900", currency: "EUR", lang: "fr",
		},
		{
			name:  "one way with iso date",
			query: "one-way flight from Toronto to Bogota on 2026-04-10",
			origin: "YYZ", dest: "BOG", depart: "2026-04-10", oneWay: true,
			maxStops: 3, currency: "CAD", lang: "en",
		},
		{
			name:  "fuzzy city and explicit days",
			query: "from montral to la paz march 5 to march 30, nonstop",
			origin: "YUL", dest: "LPB", depart: "2026-03-05", ret: "2026-03-30",
			maxStops: 0, currency: "CAD", lang: "en",
		},
		{
			name:  "aller simple",
			query: "aller simple de Lima à Mexico en mai",
			origin: "LIM", dest: "MEX", depart: "2026-05-15", oneWay: true,
			maxStops: 3, currency: "CAD", lang: "fr",
		},
		{
			name:  "max stops is not a budget",
			query: "flight from Montreal to Lima in March, max 2 stops",
			origin: "YUL", dest: "LIM", depart: "2026-03-15", ret: "2026-03-29",
			maxStops: 2, threshold: "", currency: "CAD", lang: "en",
		},
		{
			name:  "maximum escale is not a budget",
			query: "vol de Montréal à Lima en mars, maximum 1 escale",
			origin: "YUL", dest: "LIM", depart: "2026-03-15", ret: "2026-03-29",
			maxStops: 1, threshold: "", currency: "CAD", lang: "fr",
		},
		{
			name:  "max amount without currency is a budget",
			query: "flight from Montreal to Lima in March, max 700",
			origin: "YUL", dest: "LIM", depart: "2026-03-15", ret: "2026-03-29",
			maxStops: 3, threshold: "700", currency: "CAD", lang: "en",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := keywordOnly().Extract(context.Background(), tc.query)
			p := r.Params
			require.NoError(t, p.Validate())
			assert.Equal(t, "keyword", r.Source)
			assert.Equal(t, tc.origin, p.Origin)
			assert.Equal(t, tc.dest, p.Destination)
			assert.Equal(t, day(tc.depart), p.Depart)
			if tc.ret == "" {
				assert.True(t, p.Return.IsZero())
			} else {
				assert.Equal(t, day(tc.ret), p.Return)
			}
			assert.Equal(t, tc.oneWay, p.OneWay)
			assert.Equal(t, tc.maxStops, p.MaxStops)
			assert.Equal(t, tc.currency, p.Currency)
			if tc.threshold == "" {
				assert.Nil(t, p.Threshold)
			} else {
				require.NotNil(t, p.Threshold)
				assert.True(t, p.Threshold.Equal(*model.Decimal(tc.threshold)))
			}
			assert.Equal(t, tc.lang, r.Language)
		})
	}
}

func TestEmptyQueryIsFullyDefaulted(t *testing.T) {
	r := keywordOnly().Extract(context.Background(), "")
	p := r.Params
	require.NoError(t, p.Validate())
	assert.Equal(t, "YUL", p.Origin)
	assert.Equal(t, "LIM", p.Destination)
	assert.Equal(t, day("2026-05-20"), p.Depart)
	assert.Equal(t, day("2026-06-03"), p.Return)
	assert.Equal(t, 3, p.MaxStops)
	assert.True(t, p.Flexible)
	assert.Equal(t, 3, p.RangeDays)
	assert.Equal(t, "CAD", p.Currency)
	for _, f := range []string{FieldOrigin, FieldDestination, FieldDepart, FieldReturn, FieldMaxStops, FieldCurrency, FieldFlexible, FieldRange} {
		assert.True(t, r.WasDefaulted(f), f)
	}
}

func TestDefaultOriginNeverEqualsDestination(t *testing.T) {
	r := keywordOnly().Extract(context.Background(), "cheap flight to montreal")
	assert.Equal(t, "YUL", r.Params.Destination)
	assert.Equal(t, "LIM", r.Params.Origin)
	require.NoError(t, r.Params.Validate())
}

func TestExactDatesDisableFlexibility(t *testing.T) {
	r := keywordOnly().Extract(context.Background(), "from YUL to LIM 2026-03-05 2026-03-19 exact dates")
	assert.False(t, r.Params.Flexible)
	assert.False(t, r.WasDefaulted(FieldFlexible))

	r = keywordOnly().Extract(context.Background(), "from YUL to LIM in april plus or minus 5 days")
	assert.True(t, r.Params.Flexible)
	assert.Equal(t, 5, r.Params.RangeDays)
}

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(context.Context, string, string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func TestLLMStrategyParsesSurroundedJSON(t *testing.T) {
	client := &fakeLLM{reply: `Sure! Here it is:
{"origin":"Montreal","destination":"LIM","departure_date":"2026-04-01 to 2026-04-05",
 "return_date":"April 20, 2026","trip_type":"round-trip","max_stops":1,"budget":750.5,
 "currency":"cad","flexible":null,"range":null}
Have a nice trip.`}
	r := ForClient(client, nil, fixedNow).Extract(context.Background(), "whatever")
	p := r.Params
	assert.Equal(t, "llm:fake", r.Source)
	assert.Equal(t, "YUL", p.Origin)
	assert.Equal(t, "LIM", p.Destination)
	assert.Equal(t, day("2026-04-01"), p.Depart)
	assert.Equal(t, day("2026-04-20"), p.Return)
	assert.True(t, p.Flexible)
	assert.False(t, r.WasDefaulted(FieldFlexible))
	assert.True(t, r.WasDefaulted(FieldRange))
	assert.Equal(t, 1, p.MaxStops)
	assert.Equal(t, "750.5", p.Threshold.String())
	assert.Equal(t, "CAD", p.Currency)
	assert.Equal(t, 1, client.calls)
}

func TestOversizedRangeFallsBackToDefault(t *testing.T) {
	client := &fakeLLM{reply: `{"origin":"YUL","destination":"LIM","departure_date":"2026-04-01",
 "return_date":"2026-04-15","max_stops":1,"flexible":true,"range":400000}`}
	r := ForClient(client, nil, fixedNow).Extract(context.Background(), "whatever")
	require.Equal(t, "llm:fake", r.Source)
	assert.Equal(t, 3, r.Params.RangeDays)
	assert.True(t, r.WasDefaulted(FieldRange))
	require.NoError(t, r.Params.Validate())

	client.reply = `{"origin":"YUL","destination":"LIM","flexible":true,"range":30}`
	r = ForClient(client, nil, fixedNow).Extract(context.Background(), "whatever")
	assert.Equal(t, model.MaxRangeDays, r.Params.RangeDays)
	assert.False(t, r.WasDefaulted(FieldRange))
}

func TestLLMFailureFallsBackToKeywords(t *testing.T) {
	for name, client := range map[string]*fakeLLM{
		"error":     {err: errors.New("timeout")},
		"no json":   {reply: "I cannot help with that"},
		"malformed": {reply: `{"origin": "YUL",`},
		"bad types": {reply: `{"max_stops": "several"}`},
	} {
		t.Run(name, func(t *testing.T) {
			r := ForClient(client, nil, fixedNow).Extract(context.Background(), "from toronto to lima in march")
			assert.Equal(t, "keyword", r.Source)
			assert.Equal(t, "YYZ", r.Params.Origin)
			assert.Equal(t, day("2026-03-15"), r.Params.Depart)
			require.NoError(t, r.Params.Validate())
			assert.Equal(t, 1, client.calls, "one attempt only")
		})
	}
}

func TestLLMStrategyReportsExtractionError(t *testing.T) {
	s := NewLLMStrategy(&fakeLLM{reply: "nothing"}, fixedNow)
	_, err := s.Extract(context.Background(), "q")
	assert.True(t, errors.Is(err, ErrExtraction))
}

func TestAllStrategiesFailingStillYieldsParams(t *testing.T) {
	e := NewExtractor(nil, fixedNow, NewLLMStrategy(&fakeLLM{err: errors.New("down")}, fixedNow))
	r := e.Extract(context.Background(), "anything")
	assert.Equal(t, "defaults", r.Source)
	require.NoError(t, r.Params.Validate())
}

func TestParseDate(t *testing.T) {
	cases := map[string]string{
		"2026-03-05":     "2026-03-05",
		"05/03/2026":     "2026-03-05",
		"March 5, 2026":  "2026-03-05",
		"5 March 2026":   "2026-03-05",
		"Mar 5, 2026":    "2026-03-05",
		"5 Mar 2026":     "2026-03-05",
		"5 mars 2027":    "2027-03-05",
		"le 12 février":  "2027-02-12",
		"early january":  "2027-01-15",
		"20 août":        "2026-08-20",
	}
	for in, want := range cases {
		got, err := ParseDate(in, model.Day(today))
		require.NoError(t, err, in)
		assert.Equal(t, day(want), got, in)
	}
	_, err := ParseDate("someday", model.Day(today))
	assert.Error(t, err)
}

func TestSplitRange(t *testing.T) {
	a, b, ok := SplitRange("2026-04-01 to 2026-04-05")
	assert.True(t, ok)
	assert.Equal(t, "2026-04-01", a)
	assert.Equal(t, "2026-04-05", b)
	_, _, ok = SplitRange("2026-04-01")
	assert.False(t, ok)
}

func TestCatalogLookup(t *testing.T) {
	c := DefaultCatalog()
	for in, want := range map[string]string{
		"lim": "LIM", "Montréal": "YUL", "bogotá": "BOG", "new york": "JFK", "vancuver": "YVR",
	} {
		got, ok := c.Lookup(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := c.Lookup("atlantis")
	assert.False(t, ok)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "fr", DetectLanguage("un vol pour Lima en mars"))
	assert.Equal(t, "en", DetectLanguage("a flight to Lima in March"))
}
