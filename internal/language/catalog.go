// Package language holds the fixed catalog of translatable languages and a
// statistical identifier used to sanity-check engine output.
//
// The catalog is an immutable list of short codes. Display names are English
// and come from golang.org/x/text/language/display, so the list never needs a
// hand-maintained name table. Entries are sorted by name using the English
// collation order.
package language

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/tbourn/go-translingo-backend/internal/domain"
)

// Codes lists every language an engine may be asked to translate between.
var Codes = []string{
	"af", "ar", "be", "bg", "bn", "ca", "cs", "cy", "da", "de",
	"el", "en", "eo", "es", "et", "fa", "fi", "fr", "ga", "gl",
	"gu", "he", "hi", "hr", "ht", "hu", "id", "is", "it", "ja",
	"ka", "kn", "ko", "lt", "lv", "mk", "mr", "ms", "mt", "nl",
	"no", "pl", "pt", "ro", "ru", "sk", "sl", "sq", "sv", "sw",
	"ta", "te", "th", "tl", "tr", "uk", "ur", "vi", "zh",
}

// Catalog is a name-sorted, read-only view over Codes.
type Catalog struct {
	langs  []domain.Language
	byCode map[string]domain.Language
}

// NewCatalog builds the catalog for the given codes. Codes that x/text cannot
// parse are skipped.
func NewCatalog(codes []string) *Catalog {
	namer := display.English.Languages()
	c := &Catalog{byCode: make(map[string]domain.Language, len(codes))}
	for _, code := range codes {
		tag, err := language.Parse(code)
		if err != nil {
			continue
		}
		name := namer.Name(tag)
		if name == "" {
			name = code
		}
		l := domain.Language{Code: code, Name: name}
		c.langs = append(c.langs, l)
		c.byCode[code] = l
	}

	col := collate.New(language.English, collate.IgnoreCase)
	sort.SliceStable(c.langs, func(i, j int) bool {
		return col.CompareString(c.langs[i].Name, c.langs[j].Name) < 0
	})
	return c
}

var defaultCatalog = NewCatalog(Codes)

// Default returns the process-wide catalog over Codes.
func Default() *Catalog { return defaultCatalog }

// All returns a copy of every catalog entry, sorted by name.
func (c *Catalog) All() []domain.Language {
	out := make([]domain.Language, len(c.langs))
	copy(out, c.langs)
	return out
}

// Len reports the number of entries.
func (c *Catalog) Len() int { return len(c.langs) }

// Resolve maps a code to its Language. Unknown or blank codes report false.
func (c *Catalog) Resolve(code string) (domain.Language, bool) {
	l, ok := c.byCode[strings.ToLower(strings.TrimSpace(code))]
	return l, ok
}

// Filter returns the entries whose name or code contains query, ignoring
// case. A blank query returns everything.
func (c *Catalog) Filter(query string) []domain.Language {
	q := strings.TrimSpace(query)
	if q == "" {
		return c.All()
	}
	fold := cases.Fold()
	q = fold.String(q)

	var out []domain.Language
	for _, l := range c.langs {
		if strings.Contains(fold.String(l.Name), q) || strings.Contains(fold.String(l.Code), q) {
			out = append(out, l)
		}
	}
	return out
}
