package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StubConfig configures the stub engine.
type StubConfig struct {
	// Latency simulates translation processing time.
	Latency time.Duration
	// ModelDelay simulates the one-time download of a language model.
	ModelDelay time.Duration
	// Dictionary maps [targetLang][sourceText] to a translation. Entries
	// missing from it translate to "[tgt] text".
	Dictionary map[string]map[string]string
}

// DefaultDictionary holds a handful of canned phrases for demos and tests.
func DefaultDictionary() map[string]map[string]string {
	return map[string]map[string]string{
		"es": {
			"hello":       "hola",
			"Hello world": "Hola mundo",
			"Thank you":   "Gracias",
			"Good night":  "Buenas noches",
		},
		"fr": {
			"hello":       "bonjour",
			"Hello world": "Bonjour le monde",
			"Thank you":   "Merci",
			"Good night":  "Bonne nuit",
		},
		"de": {
			"hello":       "hallo",
			"Hello world": "Hallo Welt",
			"Thank you":   "Danke",
			"Good night":  "Gute Nacht",
		},
	}
}

// Stub is a deterministic, dependency-free engine. It behaves like an
// on-device engine: the first EnsureModel touching a language pays
// ModelDelay, later ones return at once.
type Stub struct {
	cfg StubConfig

	mu         sync.Mutex
	downloaded map[string]bool
}

// NewStub creates a stub engine. A nil Dictionary selects DefaultDictionary.
func NewStub(cfg StubConfig) *Stub {
	if cfg.Dictionary == nil {
		cfg.Dictionary = DefaultDictionary()
	}
	return &Stub{cfg: cfg, downloaded: make(map[string]bool)}
}

// Name implements Engine.
func (s *Stub) Name() string { return "stub" }

// EnsureModel implements Engine.
func (s *Stub) EnsureModel(ctx context.Context, src, tgt string) error {
	if src == "" || tgt == "" {
		return fmt.Errorf("%w: %q -> %q", ErrUnsupportedPair, src, tgt)
	}
	s.mu.Lock()
	missing := !s.downloaded[src] || !s.downloaded[tgt]
	s.mu.Unlock()
	if !missing {
		return nil
	}

	if err := sleepCtx(ctx, s.cfg.ModelDelay); err != nil {
		return err
	}

	s.mu.Lock()
	s.downloaded[src] = true
	s.downloaded[tgt] = true
	s.mu.Unlock()
	return nil
}

// Translate implements Engine.
func (s *Stub) Translate(ctx context.Context, text, src, tgt string) (string, error) {
	if src == "" || tgt == "" {
		return "", fmt.Errorf("%w: %q -> %q", ErrUnsupportedPair, src, tgt)
	}
	if err := sleepCtx(ctx, s.cfg.Latency); err != nil {
		return "", err
	}
	if src == tgt {
		return text, nil
	}
	if dict, ok := s.cfg.Dictionary[tgt]; ok {
		if out, ok := dict[text]; ok {
			return out, nil
		}
	}
	return "[" + tgt + "] " + text, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
