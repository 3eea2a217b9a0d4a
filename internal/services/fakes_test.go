package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-translingo-backend/internal/domain"
	"github.com/tbourn/go-translingo-backend/internal/engine"
	"github.com/tbourn/go-translingo-backend/internal/prefs"
	"github.com/tbourn/go-translingo-backend/internal/repo"
)

// ----- Fake preference store -----

type fakePrefs struct {
	mu       sync.Mutex
	values   map[string]string
	watchers []chan prefs.Change
	getErr   error
}

func newFakePrefs(kv ...string) *fakePrefs {
	p := &fakePrefs{values: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		p.values[kv[i]] = kv[i+1]
	}
	return p
}

func (p *fakePrefs) Get(_ context.Context, key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return "", false, p.getErr
	}
	v, ok := p.values[key]
	return v, ok, nil
}

func (p *fakePrefs) Set(_ context.Context, key, value string) error {
	p.mu.Lock()
	p.values[key] = value
	ws := append([]chan prefs.Change(nil), p.watchers...)
	p.mu.Unlock()
	for _, w := range ws {
		w <- prefs.Change{Key: key, Value: value, Present: true}
	}
	return nil
}

func (p *fakePrefs) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.values, key)
	ws := append([]chan prefs.Change(nil), p.watchers...)
	p.mu.Unlock()
	for _, w := range ws {
		w <- prefs.Change{Key: key}
	}
	return nil
}

func (p *fakePrefs) Watch() (<-chan prefs.Change, func()) {
	ch := make(chan prefs.Change, 64)
	p.mu.Lock()
	p.watchers = append(p.watchers, ch)
	p.mu.Unlock()
	return ch, func() {}
}

func (p *fakePrefs) value(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[key]
	return v, ok
}

// ----- Fake engine -----

type engineCall struct {
	Text, Src, Tgt string
}

type fakeEngine struct {
	mu    sync.Mutex
	calls []engineCall

	// hold, when set for a target code, blocks Translate for that target
	// until the channel is closed. The held call ignores cancellation so
	// tests can observe stale results arriving late.
	hold map[string]chan struct{}

	ensureErr    error
	translateErr error

	resolved []string
}

// fakePair binds fakeEngine to one pair, like engine.Translator.
type fakePair struct {
	e        *fakeEngine
	src, tgt string
}

func (p fakePair) EnsureModel(ctx context.Context) error {
	return p.e.EnsureModel(ctx, p.src, p.tgt)
}

func (p fakePair) Translate(ctx context.Context, text string) (string, error) {
	return p.e.Translate(ctx, text, p.src, p.tgt)
}

func (e *fakeEngine) Translator(src, tgt string) engine.PairTranslator {
	e.mu.Lock()
	e.resolved = append(e.resolved, src+"|"+tgt)
	e.mu.Unlock()
	return fakePair{e: e, src: src, tgt: tgt}
}

func (e *fakeEngine) Resolved() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.resolved...)
}

func (e *fakeEngine) EnsureModel(ctx context.Context, src, tgt string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensureErr
}

func (e *fakeEngine) Translate(ctx context.Context, text, src, tgt string) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, engineCall{text, src, tgt})
	hold := e.hold[tgt]
	err := e.translateErr
	e.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if err != nil {
		return "", err
	}
	return "[" + tgt + "] " + text, nil
}

func (e *fakeEngine) Calls() []engineCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engineCall(nil), e.calls...)
}

func (e *fakeEngine) setErrors(ensure, translate error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureErr, e.translateErr = ensure, translate
}

// ----- Fake history writer -----

type fakeHistory struct {
	mu    sync.Mutex
	saved []domain.HistoryRecord
	err   error
}

func (h *fakeHistory) Save(_ context.Context, rec *domain.HistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.saved = append(h.saved, *rec)
	return nil
}

func (h *fakeHistory) Saved() []domain.HistoryRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.HistoryRecord(nil), h.saved...)
}

// ----- Real repo shim over SQLite -----

type repoShim struct{}

func (repoShim) UpsertHistory(ctx context.Context, db *gorm.DB, rec *domain.HistoryRecord) error {
	return repo.UpsertHistory(ctx, db, rec)
}
func (repoShim) GetHistory(ctx context.Context, db *gorm.DB, id int64) (*domain.HistoryRecord, error) {
	return repo.GetHistory(ctx, db, id)
}
func (repoShim) ListHistory(ctx context.Context, db *gorm.DB) ([]domain.HistoryRecord, error) {
	return repo.ListHistory(ctx, db)
}
func (repoShim) CountHistory(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountHistory(ctx, db)
}
func (repoShim) ListHistoryPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.HistoryRecord, error) {
	return repo.ListHistoryPage(ctx, db, offset, limit)
}
func (repoShim) ListFavorites(ctx context.Context, db *gorm.DB) ([]domain.HistoryRecord, error) {
	return repo.ListFavorites(ctx, db)
}
func (repoShim) ToggleFavorite(ctx context.Context, db *gorm.DB, id int64) error {
	return repo.ToggleFavorite(ctx, db, id)
}
func (repoShim) DeleteHistory(ctx context.Context, db *gorm.DB, rec domain.HistoryRecord) error {
	return repo.DeleteHistory(ctx, db, rec)
}
func (repoShim) HistoryStats(ctx context.Context, db *gorm.DB, favoritesOnly bool) (int64, *time.Time, error) {
	return repo.HistoryStats(ctx, db, favoritesOnly)
}

func newHistoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("history_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.HistoryRecord{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
