package language

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// Undetermined is returned by Identify when no language could be chosen.
const Undetermined = "und"

// Identifier reports the most likely catalog language of a text. Only the
// catalog languages lingua has models for take part in detection.
//
// The underlying detector is built on first use; building it is cheap but
// the first detection loads the n-gram models.
type Identifier struct {
	codes []string

	once     sync.Once
	detector lingua.LanguageDetector
	toCode   map[lingua.Language]string
}

// NewIdentifier returns an identifier restricted to the given catalog.
func NewIdentifier(c *Catalog) *Identifier {
	codes := make([]string, 0, c.Len())
	for _, l := range c.All() {
		codes = append(codes, l.Code)
	}
	return &Identifier{codes: codes}
}

func (i *Identifier) init() {
	want := make(map[string]bool, len(i.codes))
	for _, c := range i.codes {
		want[c] = true
	}

	i.toCode = make(map[lingua.Language]string)
	var langs []lingua.Language
	for _, l := range lingua.AllLanguages() {
		code := strings.ToLower(l.IsoCode639_1().String())
		if want[code] {
			langs = append(langs, l)
			i.toCode[l] = code
		}
	}
	if len(langs) < 2 {
		return
	}
	i.detector = lingua.NewLanguageDetectorBuilder().
		FromLanguages(langs...).
		WithLowAccuracyMode().
		Build()
}

// Supported reports how many catalog languages take part in detection.
func (i *Identifier) Supported() int {
	i.once.Do(i.init)
	return len(i.toCode)
}

// Identify returns the ISO 639-1 code of the most likely language of text,
// or Undetermined.
func (i *Identifier) Identify(text string) string {
	if strings.TrimSpace(text) == "" {
		return Undetermined
	}
	i.once.Do(i.init)
	if i.detector == nil {
		return Undetermined
	}
	l, ok := i.detector.DetectLanguageOf(text)
	if !ok {
		return Undetermined
	}
	if code, ok := i.toCode[l]; ok {
		return code
	}
	return Undetermined
}
