package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-translingo-backend/internal/domain"
	"github.com/tbourn/go-translingo-backend/internal/engine"
	"github.com/tbourn/go-translingo-backend/internal/http/middleware"
	"github.com/tbourn/go-translingo-backend/internal/language"
	"github.com/tbourn/go-translingo-backend/internal/prefs"
	"github.com/tbourn/go-translingo-backend/internal/repo"
	"github.com/tbourn/go-translingo-backend/internal/services"
)

// ---------- test DB + repo shims ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "handlers.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.HistoryRecord{}, &domain.Preference{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// testHistoryRepo implements services.HistoryRepo over the repo package
// (like router.go).
type testHistoryRepo struct{}

func (testHistoryRepo) UpsertHistory(ctx context.Context, db *gorm.DB, rec *domain.HistoryRecord) error {
	return repo.UpsertHistory(ctx, db, rec)
}

func (testHistoryRepo) GetHistory(ctx context.Context, db *gorm.DB, id int64) (*domain.HistoryRecord, error) {
	return repo.GetHistory(ctx, db, id)
}

func (testHistoryRepo) ListHistory(ctx context.Context, db *gorm.DB) ([]domain.HistoryRecord, error) {
	return repo.ListHistory(ctx, db)
}

func (testHistoryRepo) CountHistory(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountHistory(ctx, db)
}

func (testHistoryRepo) ListHistoryPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.HistoryRecord, error) {
	return repo.ListHistoryPage(ctx, db, offset, limit)
}

func (testHistoryRepo) ListFavorites(ctx context.Context, db *gorm.DB) ([]domain.HistoryRecord, error) {
	return repo.ListFavorites(ctx, db)
}

func (testHistoryRepo) ToggleFavorite(ctx context.Context, db *gorm.DB, id int64) error {
	return repo.ToggleFavorite(ctx, db, id)
}

func (testHistoryRepo) DeleteHistory(ctx context.Context, db *gorm.DB, rec domain.HistoryRecord) error {
	return repo.DeleteHistory(ctx, db, rec)
}

func (testHistoryRepo) HistoryStats(ctx context.Context, db *gorm.DB, favoritesOnly bool) (int64, *time.Time, error) {
	return repo.HistoryStats(ctx, db, favoritesOnly)
}

type testIdemStore struct{ db *gorm.DB }

func (s testIdemStore) Get(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
}

func (s testIdemStore) Create(ctx context.Context, userID, scope, key, resourceID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resourceID, status, time.Hour)
	return err
}

// ---------- environment ----------

type testEnv struct {
	db       *gorm.DB
	prefs    *prefs.Store
	history  *services.HistoryService
	sessions *services.SessionManager
	router   *gin.Engine
}

var testToday = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	store := prefs.New(db)
	catalog := language.Default()
	mgr := engine.NewManager(engine.NewStub(engine.StubConfig{Dictionary: engine.DefaultDictionary()}), time.Second)

	hist := services.NewHistoryService(db, testHistoryRepo{})
	hist.Now = func() time.Time { return testToday }

	langs := &services.LanguageService{Prefs: store, Catalog: catalog, Models: mgr}
	sessions := services.NewSessionManager(
		services.OrchestratorDeps{Engine: mgr, Prefs: store, History: hist, Catalog: catalog},
		services.OrchestratorOptions{
			Debounce:  20 * time.Millisecond,
			SaveDelay: 40 * time.Millisecond,
			Now:       func() time.Time { return testToday },
		},
		50*time.Millisecond,
	)
	t.Cleanup(sessions.Close)

	h := New(langs, sessions, hist,
		WithIdempotency(testIdemStore{db: db}),
		WithClock(func() time.Time { return testToday }),
	)

	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	api := r.Group("/api/v1")
	{
		api.GET("/languages", h.ListLanguages)
		api.GET("/languages/selection", h.GetSelection)
		api.PUT("/languages/:slot", h.SelectLanguage)
		api.POST("/languages/swap", h.SwapLanguages)

		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions/:id", h.GetSession)
		api.DELETE("/sessions/:id", h.DeleteSession)
		api.POST("/sessions/:id/attach", h.AttachSession)
		api.POST("/sessions/:id/detach", h.DetachSession)
		api.PUT("/sessions/:id/text", h.SetText)
		api.PUT("/sessions/:id/languages/:slot", h.SelectSessionLanguage)
		api.GET("/sessions/:id/events", h.DrainEvents)
		api.GET("/sessions/:id/stream", h.StreamSession)

		api.GET("/history", h.ListHistory)
		api.GET("/history/stream", h.StreamHistory)
		api.GET("/favorites", h.ListFavorites)
		api.GET("/favorites/stream", h.StreamFavorites)
		api.POST("/history/:id/favorite", h.ToggleFavorite)
		api.DELETE("/history/:id", h.DeleteHistory)
	}

	return &testEnv{db: db, prefs: store, history: hist, sessions: sessions, router: r}
}

// do performs a request; body is JSON-encoded when non-nil.
func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
