package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// ModelState is the download state of a single language model.
type ModelState string

const (
	ModelNotDownloaded ModelState = "not_downloaded"
	ModelDownloading   ModelState = "downloading"
	ModelDownloaded    ModelState = "downloaded"
)

// PairTranslator translates within one fixed language pair.
type PairTranslator interface {
	EnsureModel(ctx context.Context) error
	Translate(ctx context.Context, text string) (string, error)
}

// Translator is the cached handle for one (src, tgt) pair.
type Translator struct {
	Src, Tgt string
	m        *Manager
}

// EnsureModel makes the pair's model available.
func (t *Translator) EnsureModel(ctx context.Context) error {
	return t.m.EnsureModel(ctx, t.Src, t.Tgt)
}

// Translate translates text within the pair.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	return t.m.Translate(ctx, text, t.Src, t.Tgt)
}

// Manager wraps an Engine. It is safe for concurrent use and itself
// satisfies Engine.
//
// Concurrent EnsureModel calls for the same pair share one download; a
// caller that gives up (ctx canceled) does not abort the download for the
// others. Every engine call runs under Timeout.
type Manager struct {
	eng     Engine
	timeout time.Duration

	group singleflight.Group

	mu          sync.Mutex
	translators map[string]*Translator
	models      map[string]ModelState
}

// NewManager wraps eng. A non-positive timeout disables the per-call limit.
func NewManager(eng Engine, timeout time.Duration) *Manager {
	return &Manager{
		eng:         eng,
		timeout:     timeout,
		translators: make(map[string]*Translator),
		models:      make(map[string]ModelState),
	}
}

// Name reports the wrapped engine's name.
func (m *Manager) Name() string { return m.eng.Name() }

// Translator returns the cached translator for the pair, creating it on
// first use.
func (m *Manager) Translator(src, tgt string) PairTranslator {
	key := pairKey(src, tgt)
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.translators[key]; ok {
		return t
	}
	t := &Translator{Src: src, Tgt: tgt, m: m}
	m.translators[key] = t
	return t
}

// EnsureModel implements Engine.
func (m *Manager) EnsureModel(ctx context.Context, src, tgt string) error {
	if m.state(src) == ModelDownloaded && m.state(tgt) == ModelDownloaded {
		return nil
	}

	ctx, span := otel.Tracer("engine/Manager").Start(ctx, "EnsureModel",
		trace.WithAttributes(
			attribute.String("engine", m.eng.Name()),
			attribute.String("lang.src", src),
			attribute.String("lang.tgt", tgt),
		),
	)
	defer span.End()

	ch := m.group.DoChan(pairKey(src, tgt), func() (any, error) {
		return nil, m.download(context.WithoutCancel(ctx), src, tgt)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.SetAttributes(attribute.Bool("shared", res.Shared))
		return res.Err
	case <-ctx.Done():
		span.SetStatus(codes.Error, "canceled")
		return ctx.Err()
	}
}

func (m *Manager) download(ctx context.Context, src, tgt string) error {
	prevSrc, prevTgt := m.state(src), m.state(tgt)
	m.setState(src, ModelDownloading, prevSrc)
	m.setState(tgt, ModelDownloading, prevTgt)

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err := m.eng.EnsureModel(ctx, src, tgt)
	modelDownloadsTotal.WithLabelValues(outcome(err)).Inc()

	if err != nil {
		m.restoreState(src, prevSrc)
		m.restoreState(tgt, prevTgt)
		log.Warn().Err(err).
			Str("engine", m.eng.Name()).
			Str("src", src).Str("tgt", tgt).
			Msg("model download failed")
		return err
	}
	m.mu.Lock()
	m.models[src] = ModelDownloaded
	m.models[tgt] = ModelDownloaded
	m.mu.Unlock()
	log.Debug().
		Str("engine", m.eng.Name()).
		Str("src", src).Str("tgt", tgt).
		Dur("took", time.Since(start)).
		Msg("model ready")
	return nil
}

// Translate implements Engine.
func (m *Manager) Translate(ctx context.Context, text, src, tgt string) (string, error) {
	ctx, span := otel.Tracer("engine/Manager").Start(ctx, "Translate",
		trace.WithAttributes(
			attribute.String("engine", m.eng.Name()),
			attribute.String("lang.src", src),
			attribute.String("lang.tgt", tgt),
			attribute.Int("text.len", len(text)),
		),
	)
	defer span.End()

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	out, err := m.eng.Translate(ctx, text, src, tgt)
	translationDuration.WithLabelValues(m.eng.Name()).Observe(time.Since(start).Seconds())
	translationsTotal.WithLabelValues(m.eng.Name(), outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return out, nil
}

// ModelState reports the download state of one language.
func (m *Manager) ModelState(code string) ModelState { return m.state(code) }

// Close releases the wrapped engine when it holds resources.
func (m *Manager) Close() error { return closeEngine(m.eng) }

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

func (m *Manager) state(code string) ModelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.models[code]; ok {
		return s
	}
	return ModelNotDownloaded
}

// setState moves code to s unless it is already downloaded.
func (m *Manager) setState(code string, s, prev ModelState) {
	if prev == ModelDownloaded {
		return
	}
	m.mu.Lock()
	m.models[code] = s
	m.mu.Unlock()
}

func (m *Manager) restoreState(code string, prev ModelState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev == ModelNotDownloaded {
		delete(m.models, code)
		return
	}
	m.models[code] = prev
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
