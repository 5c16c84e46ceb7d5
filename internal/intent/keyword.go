package intent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agisilaos/farewatch/internal/model"
	"github.com/shopspring/decimal"
)

var (
	originMarkers      = map[string]bool{"from": true, "de": true, "depuis": true, "du": true, "d": true}
	destinationMarkers = map[string]bool{"to": true, "a": true, "vers": true, "pour": true, "au": true}

	isoDatePattern = regexp.MustCompile(`\b(20\d\d-\d{2}-\d{2}|\d{1,2}/\d{1,2}/20\d\d)\b`)
	pricePattern   = regexp.MustCompile(`(\d+(?:[.,]\d{1,2})?)\s*(\$|€|usd|cad|eur|euros?|dollars?)|(\$|€)\s*(\d+(?:[.,]\d{1,2})?)`)
	ceilingPattern = regexp.MustCompile(`\b(?:under|below|max|maximum|moins de|max de|budget(?: de)?)\s+(\d+(?:[.,]\d{1,2})?)\b`)
	stopsPattern   = regexp.MustCompile(`\b(\d)\s*(?:stops?|escales?)\b`)
	nonstopPattern = regexp.MustCompile(`\b(?:non-?stop|direct|sans escale)\b`)
	oneWayPattern  = regexp.MustCompile(`\b(?:one[ -]way|aller[ -]simple)\b`)
	exactPattern   = regexp.MustCompile(`\b(?:exact dates?|fixed dates?|dates? fixes?|dates? exactes?)\b`)
	rangePattern   = regexp.MustCompile(`(?:\+/-|±|\bplus or minus|\bplus ou moins)\s*(\d{1,2})\s*(?:days?|jours?)\b`)

	countUnits = map[string]bool{
		"stop": true, "stops": true, "escale": true, "escales": true, "days": true, "jours": true,
		"adult": true, "adults": true, "adulte": true, "adultes": true, "weeks": true, "semaines": true,
	}
)

// KeywordStrategy reads a query with pattern matching only. It never fails.
type KeywordStrategy struct {
	Catalog *Catalog
	Now     func() time.Time
}

func NewKeywordStrategy(now func() time.Time) *KeywordStrategy {
	if now == nil {
		now = time.Now
	}
	return &KeywordStrategy{Catalog: DefaultCatalog(), Now: now}
}

func (k *KeywordStrategy) Name() string { return "keyword" }

func (k *KeywordStrategy) Extract(_ context.Context, query string) (Draft, error) {
	today := model.Day(k.Now())
	folded := fold(query)
	words := strings.FieldsFunc(folded, isSeparator)
	var d Draft

	d.Origin, d.Destination = k.places(words)
	d.Depart, d.Return = k.dates(folded, words, today)
	d.OneWay = oneWayPattern.MatchString(folded)

	if nonstopPattern.MatchString(folded) {
		zero := 0
		d.MaxStops = &zero
	}
	if m := stopsPattern.FindAllStringSubmatch(folded, -1); m != nil {
		n, _ := strconv.Atoi(m[len(m)-1][1])
		d.MaxStops = &n
	}

	d.Budget, d.Currency = budget(folded)

	if exactPattern.MatchString(folded) {
		f := false
		d.Flexible = &f
	}
	if m := rangePattern.FindStringSubmatch(folded); m != nil {
		n, _ := strconv.Atoi(m[1])
		t := true
		d.Flexible = &t
		d.RangeDays = &n
	}
	return d, nil
}

func (k *KeywordStrategy) places(words []string) (string, string) {
	var origin, destination string
	for i := 0; i < len(words)-1; i++ {
		w := words[i]
		if !originMarkers[w] && !destinationMarkers[w] {
			continue
		}
		code, n, ok := k.Catalog.matchAt(words, i+1)
		if !ok {
			continue
		}
		if originMarkers[w] && origin == "" {
			origin = code
		} else if destinationMarkers[w] && destination == "" {
			destination = code
		}
		i += n
	}
	if origin == destination {
		destination = ""
	}
	return origin, destination
}

// dates picks explicit dates first, then month names: the first month sets
// departure on the 15th and the second sets return on the 25th unless a day
// number sits next to the month.
func (k *KeywordStrategy) dates(folded string, words []string, today time.Time) (time.Time, time.Time) {
	var found []time.Time
	for _, m := range isoDatePattern.FindAllString(folded, -1) {
		if t, err := ParseDate(m, today); err == nil {
			found = append(found, t)
		}
	}
	if len(found) == 0 {
		defaultDays := []int{15, 25}
		for i, w := range words {
			month, ok := months[w]
			if !ok || len(found) == 2 || isAmbiguousMonth(w, words, i) {
				continue
			}
			day := adjacentDay(words, i)
			if day == 0 {
				day = defaultDays[len(found)]
			}
			from := today
			if len(found) == 1 {
				from = found[0]
			}
			t, err := nextOccurrence(from, month, day)
			if err != nil {
				continue
			}
			found = append(found, t)
		}
	}
	var depart, ret time.Time
	if len(found) > 0 {
		depart = found[0]
	}
	if len(found) > 1 && found[1].After(depart) {
		ret = found[1]
	}
	return depart, ret
}

// "may" and "mar" double as ordinary words; they count as months only next
// to a day number or after "in"/"en".
func isAmbiguousMonth(w string, words []string, i int) bool {
	if w != "may" && w != "mar" {
		return false
	}
	if adjacentDay(words, i) != 0 {
		return false
	}
	return i == 0 || (words[i-1] != "in" && words[i-1] != "en" && words[i-1] != "early" && words[i-1] != "late")
}

func adjacentDay(words []string, i int) int {
	for _, j := range []int{i - 1, i + 1} {
		if j < 0 || j >= len(words) {
			continue
		}
		w := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(words[j], "st"), "th"), "er")
		if j+1 < len(words) && j+1 != i && countUnits[words[j+1]] {
			continue
		}
		if n, err := strconv.Atoi(w); err == nil && n >= 1 && n <= 31 {
			return n
		}
	}
	return 0
}

func budget(folded string) (*decimal.Decimal, string) {
	var amount, tag string
	if m := pricePattern.FindStringSubmatch(folded); m != nil {
		if m[1] != "" {
			amount, tag = m[1], m[2]
		} else {
			amount, tag = m[4], m[3]
		}
	} else {
		amount = ceiling(folded)
	}
	if amount == "" {
		return nil, ""
	}
	v, err := decimal.NewFromString(strings.ReplaceAll(amount, ",", "."))
	if err != nil || !v.IsPositive() {
		return nil, ""
	}
	return &v, currencyTag(tag)
}

// ceiling returns the first "under N" style amount that is not a count of
// something else, as in "max 2 stops".
func ceiling(folded string) string {
	for _, loc := range ceilingPattern.FindAllStringSubmatchIndex(folded, -1) {
		rest := strings.FieldsFunc(folded[loc[1]:], isSeparator)
		if len(rest) > 0 && countUnits[rest[0]] {
			continue
		}
		return folded[loc[2]:loc[3]]
	}
	return ""
}

func currencyTag(tag string) string {
	switch tag {
	case "€", "eur", "euro", "euros":
		return "EUR"
	case "usd":
		return "USD"
	case "cad":
		return "CAD"
	default:
		// a bare "$" or "dollars" keeps the monitor currency
		return ""
	}
}

func (k *KeywordStrategy) String() string {
	return fmt.Sprintf("keyword(%d airports)", len(k.Catalog.airports))
}
