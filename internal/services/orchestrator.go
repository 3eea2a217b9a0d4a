// Package services – Orchestrator
//
// This file implements the translation Orchestrator: one per session, it
// derives the current DisplayState from the typed text and the language pair
// stored in the preference store.
//
// Pipeline:
//  1. Text changes restart a debounce timer; only the value still current
//     when it fires propagates.
//  2. A change of either language slot re-derives the state at once and
//     supersedes any engine call made for the old pair.
//  3. With both languages set and non-empty text, the engine is asked to
//     ensure the pair's model and then to translate, off the loop.
//  4. Every relevant change emits a DisplayState; with a slot unset the
//     emitted state is the zero state.
//  5. A successful, non-blank translation arms a settling timer measured
//     from the last text change; when it fires the record is saved.
//
// Concurrency: all mutable pipeline state is owned by a single loop
// goroutine. Callers talk to it through channels. Engine calls carry a
// generation number and results from a superseded generation are dropped.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-translingo-backend/internal/domain"
	"github.com/tbourn/go-translingo-backend/internal/engine"
	"github.com/tbourn/go-translingo-backend/internal/prefs"
)

// Default pipeline timing.
const (
	DefaultDebounce  = 700 * time.Millisecond
	DefaultSaveDelay = 1300 * time.Millisecond
)

// failedMessage is the user-visible text of a failed translation.
const failedMessage = "translation failed"

// TranslationEngine hands out per-pair translators; engine.Manager caches
// them.
type TranslationEngine interface {
	Translator(src, tgt string) engine.PairTranslator
}

// PreferenceStore provides the language pair and its change stream.
type PreferenceStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Watch() (<-chan prefs.Change, func())
}

// HistoryWriter persists settled translations.
type HistoryWriter interface {
	Save(ctx context.Context, rec *domain.HistoryRecord) error
}

// LanguageResolver maps stored codes to catalog languages.
type LanguageResolver interface {
	Resolve(code string) (domain.Language, bool)
}

// DisplayState is what a client renders for a session. The zero value
// (apart from Version) is emitted while either language is unset.
type DisplayState struct {
	OriginalText   string           `json:"original_text"`
	TranslatedText string           `json:"translated_text"`
	Source         *domain.Language `json:"source"`
	Target         *domain.Language `json:"target"`
	Loading        bool             `json:"loading"`
	Failed         bool             `json:"failed"`
	Error          string           `json:"error,omitempty"`
	Version        uint64           `json:"version"`
}

// OrchestratorDeps are the collaborators of an Orchestrator.
type OrchestratorDeps struct {
	Engine  TranslationEngine
	Prefs   PreferenceStore
	History HistoryWriter
	Catalog LanguageResolver
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// OrchestratorOptions tunes timing. Zero values select the defaults.
type OrchestratorOptions struct {
	Debounce  time.Duration
	SaveDelay time.Duration
	// Now stamps the calendar day of saved records.
	Now func() time.Time
}

type cmdKind int

const (
	cmdText cmdKind = iota
	cmdAttach
	cmdDetach
)

type command struct {
	kind cmdKind
	text string
	ack  chan struct{}
}

type engineResult struct {
	gen      uint64
	text     string
	out      string
	stage    string
	err      error
	src, tgt string
}

// Orchestrator runs the translation pipeline of one session.
type Orchestrator struct {
	deps   OrchestratorDeps
	opts   OrchestratorOptions
	log    zerolog.Logger
	events *EventQueue

	cmds    chan command
	results chan engineResult

	startOnce sync.Once
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup

	mu      sync.Mutex
	state   DisplayState
	version uint64
	subs    map[int]chan DisplayState
	nextSub int

	// Owned by the loop goroutine.
	active     bool
	force      bool
	text       string
	debounced  string
	translated string
	loading    bool
	failed     bool
	errMsg     string
	src, tgt   *domain.Language
	translator engine.PairTranslator
	lastInput  time.Time
	gen        uint64
	inflight   context.CancelFunc
	debounceT  *time.Timer
	debounceC  <-chan time.Time
	saveT      *time.Timer
	saveC      <-chan time.Time
	candidate  *domain.HistoryRecord
}

// NewOrchestrator builds a detached orchestrator. Call Start before use.
func NewOrchestrator(deps OrchestratorDeps, opts OrchestratorOptions) *Orchestrator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.SaveDelay <= 0 {
		opts.SaveDelay = DefaultSaveDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	lg := log.Logger
	if deps.Logger != nil {
		lg = *deps.Logger
	}
	return &Orchestrator{
		deps:    deps,
		opts:    opts,
		log:     lg,
		events:  NewEventQueue(),
		cmds:    make(chan command),
		results: make(chan engineResult),
		done:    make(chan struct{}),
		subs:    make(map[int]chan DisplayState),
	}
}

// Start launches the loop. The orchestrator lives until Close or until ctx
// is canceled, so ctx should outlive any single request.
func (o *Orchestrator) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		o.ctx, o.cancel = context.WithCancel(ctx)
		go o.run()
	})
}

// Attach makes the orchestrator active: it re-reads the pair, queues a
// SelectLanguage event per unset slot, and processes the current text as if
// just typed.
func (o *Orchestrator) Attach() error { return o.send(command{kind: cmdAttach}) }

// Detach makes the orchestrator inert. In-flight work is abandoned and no
// timers stay armed.
func (o *Orchestrator) Detach() error { return o.send(command{kind: cmdDetach}) }

// SetText records new input. While detached the text is only remembered.
func (o *Orchestrator) SetText(text string) error {
	return o.send(command{kind: cmdText, text: text})
}

// State returns the last emitted DisplayState.
func (o *Orchestrator) State() DisplayState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Events returns the session's one-shot event queue.
func (o *Orchestrator) Events() *EventQueue { return o.events }

// Subscribe returns a conflating stream of display states. The current
// state is delivered first. A slow reader only ever sees the newest state.
// The returned func unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan DisplayState, func()) {
	ch := make(chan DisplayState, 1)

	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	select {
	case <-o.done:
		close(ch)
		o.mu.Unlock()
		return ch, func() {}
	default:
	}
	o.subs[id] = ch
	ch <- o.state
	o.mu.Unlock()

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
}

// Done is closed once the loop has exited.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Close stops the loop, cancels in-flight work, waits for background
// goroutines, and closes every subscription.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		// Never started: nothing runs, just mark done.
		o.startOnce.Do(func() { close(o.done) })
		if o.cancel != nil {
			o.cancel()
		}
		<-o.done
		o.wg.Wait()

		o.mu.Lock()
		for id, ch := range o.subs {
			delete(o.subs, id)
			close(ch)
		}
		o.mu.Unlock()
	})
}

func (o *Orchestrator) send(c command) error {
	c.ack = make(chan struct{})
	select {
	case o.cmds <- c:
	case <-o.done:
		return ErrSessionClosed
	}
	select {
	case <-c.ack:
		return nil
	case <-o.done:
		return ErrSessionClosed
	}
}

func (o *Orchestrator) run() {
	defer close(o.done)

	changes, unwatch := o.deps.Prefs.Watch()
	defer unwatch()

	for {
		select {
		case <-o.ctx.Done():
			o.stopDebounce()
			o.cancelSave()
			o.supersede()
			return

		case c := <-o.cmds:
			o.handle(c)
			close(c.ack)

		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			drainChanges(changes)
			o.onPrefsChanged()

		case <-o.debounceC:
			o.debounceC = nil
			o.onDebounced()

		case r := <-o.results:
			o.onResult(r)

		case <-o.saveC:
			o.saveC = nil
			o.onSettled()
		}
	}
}

func drainChanges(ch <-chan prefs.Change) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (o *Orchestrator) handle(c command) {
	switch c.kind {
	case cmdText:
		o.text = c.text
		o.lastInput = time.Now()
		if !o.active {
			return
		}
		o.cancelSave()
		o.resetDebounce()

	case cmdAttach:
		if o.active {
			return
		}
		o.active = true
		src, tgt, err := o.resolvePair()
		if err != nil {
			o.log.Error().Err(err).Msg("read language pair")
		} else {
			if !sameLang(src, o.src) || !sameLang(tgt, o.tgt) {
				o.translated, o.failed, o.errMsg = "", false, ""
			}
			o.setPair(src, tgt)
		}

		if o.src == nil {
			o.events.Push(SelectLanguage(SlotSource))
		}
		if o.tgt == nil {
			o.events.Push(SelectLanguage(SlotTarget))
		}

		o.force = true
		o.lastInput = time.Now()
		o.resetDebounce()
		o.publish()
		o.log.Debug().Msg("session attached")

	case cmdDetach:
		if !o.active {
			return
		}
		o.active = false
		o.stopDebounce()
		o.cancelSave()
		wasLoading := o.loading
		o.supersede()
		o.loading = false
		if wasLoading {
			o.publish()
		}
		o.log.Debug().Msg("session detached")
	}
}

func (o *Orchestrator) onPrefsChanged() {
	if !o.active {
		// Attach re-reads the pair.
		return
	}
	src, tgt, err := o.resolvePair()
	if err != nil {
		o.log.Error().Err(err).Msg("read language pair")
		return
	}
	if sameLang(src, o.src) && sameLang(tgt, o.tgt) {
		return
	}
	o.setPair(src, tgt)
	o.onPairChanged()
}

func (o *Orchestrator) onPairChanged() {
	o.supersede()
	o.cancelSave()
	o.translated, o.loading, o.failed, o.errMsg = "", false, false, ""

	if o.src == nil || o.tgt == nil || o.debounced == "" {
		o.publish()
		return
	}
	o.startEngine(o.debounced)
}

// setPair records the pair and resolves its translator.
func (o *Orchestrator) setPair(src, tgt *domain.Language) {
	o.src, o.tgt = src, tgt
	o.translator = nil
	if src != nil && tgt != nil {
		o.translator = o.deps.Engine.Translator(src.Code, tgt.Code)
	}
}

func (o *Orchestrator) onDebounced() {
	text := o.text
	if !o.force && text == o.debounced && !o.failed {
		// Typing cancelled the pending save; the shown translation is
		// still the candidate.
		o.rearmSave()
		return
	}
	o.force = false
	o.debounced = text
	o.supersede()
	o.loading = false

	if o.src == nil || o.tgt == nil {
		o.publish()
		return
	}
	if text == "" {
		o.translated, o.failed, o.errMsg = "", false, ""
		o.publish()
		return
	}
	o.startEngine(text)
}

func (o *Orchestrator) startEngine(text string) {
	o.gen++
	gen := o.gen
	ctx, cancel := context.WithCancel(o.ctx)
	o.inflight = cancel
	src, tgt := o.src.Code, o.tgt.Code
	tr := o.translator

	o.loading, o.failed, o.errMsg = true, false, ""
	o.publish()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()

		r := engineResult{gen: gen, text: text, src: src, tgt: tgt}
		if err := tr.EnsureModel(ctx); err != nil {
			r.err, r.stage = err, "ensure_model"
		} else if out, err := tr.Translate(ctx, text); err != nil {
			r.err, r.stage = err, "translate"
		} else {
			r.out = out
		}

		select {
		case o.results <- r:
		case <-o.ctx.Done():
		}
	}()
}

func (o *Orchestrator) onResult(r engineResult) {
	if r.gen != o.gen || !o.active {
		return
	}
	o.inflight = nil
	o.loading = false

	if r.err != nil {
		if errors.Is(r.err, context.Canceled) && o.ctx.Err() != nil {
			return
		}
		o.failed, o.errMsg = true, failedMessage
		pipelineFailures.WithLabelValues(r.stage).Inc()
		o.log.Warn().Err(r.err).
			Str("stage", r.stage).
			Str("src", r.src).Str("tgt", r.tgt).
			Msg("translation failed")
		o.publish()
		return
	}

	o.translated, o.failed, o.errMsg = r.out, false, ""
	o.publish()

	if r.out == "" || strings.TrimSpace(r.text) == "" {
		return
	}
	o.armSave(domain.NewHistoryRecord(r.src, r.tgt, r.text, r.out, o.opts.Now()))
}

func (o *Orchestrator) armSave(rec *domain.HistoryRecord) {
	o.cancelSave()
	delay := o.opts.SaveDelay - time.Since(o.lastInput)
	if delay < 0 {
		delay = 0
	}
	o.candidate = rec
	o.saveT = time.NewTimer(delay)
	o.saveC = o.saveT.C
}

func (o *Orchestrator) rearmSave() {
	if o.loading || o.translated == "" || o.src == nil || o.tgt == nil {
		return
	}
	if strings.TrimSpace(o.debounced) == "" {
		return
	}
	o.armSave(domain.NewHistoryRecord(o.src.Code, o.tgt.Code, o.debounced, o.translated, o.opts.Now()))
}

func (o *Orchestrator) onSettled() {
	rec := o.candidate
	o.candidate = nil
	if rec == nil || !o.active || strings.TrimSpace(rec.OriginalText) == "" {
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		err := o.deps.History.Save(o.ctx, rec)
		switch {
		case err == nil:
			historySaves.WithLabelValues("ok").Inc()
			o.log.Debug().Int64("history_id", rec.ID).Msg("history saved")
		case errors.Is(err, ErrBlankText), errors.Is(err, ErrUndetermined):
			historySaves.WithLabelValues("skipped").Inc()
			o.log.Debug().Err(err).Int64("history_id", rec.ID).Msg("history save skipped")
		case errors.Is(err, context.Canceled):
		default:
			historySaves.WithLabelValues("error").Inc()
			o.log.Error().Err(err).Int64("history_id", rec.ID).Msg("history save failed")
		}
	}()
}

func (o *Orchestrator) resolvePair() (src, tgt *domain.Language, err error) {
	if src, err = o.resolveSlot(prefs.KeySourceLanguage); err != nil {
		return nil, nil, err
	}
	if tgt, err = o.resolveSlot(prefs.KeyTargetLanguage); err != nil {
		return nil, nil, err
	}
	return src, tgt, nil
}

func (o *Orchestrator) resolveSlot(key string) (*domain.Language, error) {
	code, ok, err := o.deps.Prefs.Get(o.ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	l, ok := o.deps.Catalog.Resolve(code)
	if !ok {
		return nil, nil
	}
	return &l, nil
}

// supersede invalidates the in-flight engine call, if any.
func (o *Orchestrator) supersede() {
	o.gen++
	if o.inflight != nil {
		o.inflight()
		o.inflight = nil
	}
}

func (o *Orchestrator) resetDebounce() {
	o.stopDebounce()
	o.debounceT = time.NewTimer(o.opts.Debounce)
	o.debounceC = o.debounceT.C
}

func (o *Orchestrator) stopDebounce() {
	if o.debounceT != nil {
		o.debounceT.Stop()
		o.debounceT = nil
	}
	o.debounceC = nil
}

func (o *Orchestrator) cancelSave() {
	if o.saveT != nil {
		o.saveT.Stop()
		o.saveT = nil
	}
	o.saveC = nil
	o.candidate = nil
}

func (o *Orchestrator) publish() {
	var s DisplayState
	if o.src != nil && o.tgt != nil {
		src, tgt := *o.src, *o.tgt
		s = DisplayState{
			OriginalText:   o.debounced,
			TranslatedText: o.translated,
			Source:         &src,
			Target:         &tgt,
			Loading:        o.loading,
			Failed:         o.failed,
			Error:          o.errMsg,
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.version++
	s.Version = o.version
	o.state = s
	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func sameLang(a, b *domain.Language) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Code == b.Code
}
