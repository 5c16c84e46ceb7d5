package intent

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed airports.yaml
var airportsYAML []byte

type Airport struct {
	Code  string   `yaml:"code"`
	Names []string `yaml:"names"`
}

// Catalog resolves city names and IATA codes to airport codes.
type Catalog struct {
	airports []Airport
	byName   map[string]string
	byCode   map[string]bool
	names    []string
	maxWords int
}

func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(airportsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded airport catalog: %v", err))
	}
	return c
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var doc struct {
		Airports []Airport `yaml:"airports"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	c := &Catalog{byName: map[string]string{}, byCode: map[string]bool{}, airports: doc.Airports}
	for _, a := range doc.Airports {
		code := strings.ToUpper(strings.TrimSpace(a.Code))
		if len(code) != 3 {
			return nil, fmt.Errorf("airport %q: code must have 3 letters", a.Code)
		}
		c.byCode[code] = true
		for _, n := range a.Names {
			n = fold(n)
			c.byName[n] = code
			c.names = append(c.names, n)
			if w := len(strings.Fields(n)); w > c.maxWords {
				c.maxWords = w
			}
		}
	}
	sort.Strings(c.names)
	return c, nil
}

// Lookup resolves a single phrase: an IATA code, an exact city name, or a
// city name within a small edit distance.
func (c *Catalog) Lookup(phrase string) (string, bool) {
	raw := strings.TrimSpace(phrase)
	if up := strings.ToUpper(raw); len(up) == 3 && c.byCode[up] {
		return up, true
	}
	name := fold(raw)
	if code, ok := c.byName[name]; ok {
		return code, true
	}
	limit := fuzzLimit(name)
	if limit == 0 {
		return "", false
	}
	best, bestDist := "", limit+1
	for _, n := range c.names {
		if d := levenshtein(name, n); d < bestDist {
			best, bestDist = n, d
		}
	}
	if best == "" {
		return "", false
	}
	return c.byName[best], true
}

// matchAt tries the longest city phrase starting at words[i].
func (c *Catalog) matchAt(words []string, i int) (string, int, bool) {
	for n := c.maxWords; n >= 1; n-- {
		if i+n > len(words) {
			continue
		}
		phrase := strings.Join(words[i:i+n], " ")
		if n == 1 && len(phrase) == 3 && c.byCode[strings.ToUpper(phrase)] {
			return strings.ToUpper(phrase), 1, true
		}
		if code, ok := c.byName[phrase]; ok {
			return code, n, true
		}
	}
	if code, ok := c.Lookup(words[i]); ok && fuzzLimit(words[i]) > 0 {
		return code, 1, true
	}
	return "", 0, false
}

func fuzzLimit(s string) int {
	switch n := len([]rune(s)); {
	case n >= 6:
		return 2
	case n >= 4:
		return 1
	default:
		return 0
	}
}

var accentFolder = strings.NewReplacer(
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"à", "a", "â", "a", "ä", "a", "á", "a", "ã", "a",
	"î", "i", "ï", "i", "í", "i",
	"ô", "o", "ö", "o", "ó", "o", "õ", "o",
	"û", "u", "ù", "u", "ü", "u", "ú", "u",
	"ç", "c", "ñ", "n",
)

func fold(s string) string {
	return accentFolder.Replace(strings.ToLower(strings.TrimSpace(s)))
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
