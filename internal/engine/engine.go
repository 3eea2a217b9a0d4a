// Package engine defines the translation engine contract and its backends.
//
// An Engine turns text from one language code into another. Before the first
// translation of a pair the caller asks the engine to make the pair's model
// available (EnsureModel); on-device engines download there, cloud engines
// only validate the codes. Manager wraps any Engine with a per-pair
// translator cache, shared model downloads, timeouts, metrics, and tracing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tbourn/go-translingo-backend/internal/config"
)

// Engine is the contract every translation backend fulfils.
type Engine interface {
	Name() string
	EnsureModel(ctx context.Context, src, tgt string) error
	Translate(ctx context.Context, text, src, tgt string) (string, error)
}

var (
	// ErrUnsupportedPair is returned when a backend cannot translate between
	// the given codes.
	ErrUnsupportedPair = errors.New("unsupported language pair")

	// ErrUnknownEngine is returned by New for an unrecognised engine name.
	ErrUnknownEngine = errors.New("unknown engine")
)

// New builds the backend named by cfg.Name. The returned engine may also
// implement io.Closer; Manager.Close takes care of that.
func New(ctx context.Context, cfg config.EngineConfig) (Engine, error) {
	switch strings.ToLower(cfg.Name) {
	case "", "stub":
		return NewStub(StubConfig{Latency: cfg.StubLatency, ModelDelay: cfg.StubModel}), nil
	case "google":
		g, err := NewGoogle(ctx, cfg.Credentials)
		if err != nil {
			return nil, fmt.Errorf("google engine: %w", err)
		}
		return g, nil
	case "mymemory":
		return NewMyMemory(MyMemoryConfig{Email: cfg.Email, Timeout: cfg.Timeout}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Name)
	}
}

func closeEngine(e Engine) error {
	if c, ok := e.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func pairKey(src, tgt string) string { return src + "|" + tgt }
