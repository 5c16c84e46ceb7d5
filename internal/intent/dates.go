package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"January 2, 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// months maps folded English and French month names and abbreviations.
var months = map[string]time.Month{
	"january": time.January, "jan": time.January, "janvier": time.January, "janv": time.January,
	"february": time.February, "feb": time.February, "fevrier": time.February, "fev": time.February,
	"march": time.March, "mar": time.March, "mars": time.March,
	"april": time.April, "apr": time.April, "avril": time.April, "avr": time.April,
	"may": time.May, "mai": time.May,
	"june": time.June, "jun": time.June, "juin": time.June,
	"july": time.July, "jul": time.July, "juillet": time.July, "juil": time.July,
	"august": time.August, "aug": time.August, "aout": time.August,
	"september": time.September, "sep": time.September, "sept": time.September, "septembre": time.September,
	"october": time.October, "oct": time.October, "octobre": time.October,
	"november": time.November, "nov": time.November, "novembre": time.November,
	"december": time.December, "dec": time.December, "decembre": time.December,
}

var (
	yearPattern = regexp.MustCompile(`\b20\d\d\b`)
	dayPattern  = regexp.MustCompile(`\b(\d{1,2})\b`)
)

// ParseDate accepts the supported layouts, then falls back to picking a
// month name, a day and a year out of the text. Without a year the next
// occurrence after today is used.
func ParseDate(s string, today time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}

	folded := fold(s)
	var month time.Month
	for _, w := range strings.FieldsFunc(folded, isSeparator) {
		if m, ok := months[w]; ok {
			month = m
			break
		}
	}
	if month == 0 {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	withoutYear := yearPattern.ReplaceAllString(folded, " ")
	day := 15
	if m := dayPattern.FindStringSubmatch(withoutYear); m != nil {
		if d, err := strconv.Atoi(m[1]); err == nil && d >= 1 && d <= 31 {
			day = d
		}
	}
	if y := yearPattern.FindString(folded); y != "" {
		year, _ := strconv.Atoi(y)
		return monthDay(year, month, day)
	}
	return nextOccurrence(today, month, day)
}

// SplitRange splits "A to B" (or "A au B", "A - B") into both ends.
func SplitRange(s string) (string, string, bool) {
	for _, sep := range []string{" to ", " au ", " - ", " – "} {
		if a, b, ok := strings.Cut(s, sep); ok {
			return strings.TrimSpace(a), strings.TrimSpace(b), true
		}
	}
	return s, "", false
}

func monthDay(year int, month time.Month, day int) (time.Time, error) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Month() != month {
		return time.Time{}, fmt.Errorf("invalid day %d for %s", day, month)
	}
	return t, nil
}

func nextOccurrence(today time.Time, month time.Month, day int) (time.Time, error) {
	t, err := monthDay(today.Year(), month, day)
	if err != nil {
		return t, err
	}
	if t.Before(today) {
		return monthDay(today.Year()+1, month, day)
	}
	return t, nil
}
