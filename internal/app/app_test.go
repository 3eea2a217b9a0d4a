package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tbourn/go-translingo-backend/internal/config"
	"github.com/tbourn/go-translingo-backend/internal/domain"
	"github.com/tbourn/go-translingo-backend/internal/engine"
	"github.com/tbourn/go-translingo-backend/internal/repo"
	"github.com/tbourn/go-translingo-backend/internal/services"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		DBPath: filepath.Join(t.TempDir(), "app.db"),
		Engine: config.EngineConfig{Name: "stub", Timeout: time.Second},
		Session: config.SessionConfig{
			Debounce:  10 * time.Millisecond,
			SaveDelay: 20 * time.Millisecond,
			Grace:     20 * time.Millisecond,
		},
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(context.Background(), testConfig(t), Options{SilentSQL: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_WiresServices(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	if a.Engine.Name() != "stub" {
		t.Fatalf("engine = %q; want stub", a.Engine.Name())
	}
	if a.Catalog.Len() == 0 {
		t.Fatalf("empty catalog")
	}

	if _, err := a.Languages.Select(ctx, services.SlotSource, "en", nil); err != nil {
		t.Fatalf("select source: %v", err)
	}
	sel, err := a.Languages.Select(ctx, services.SlotTarget, "fr", nil)
	if err != nil {
		t.Fatalf("select target: %v", err)
	}
	if sel.Source == nil || sel.Source.Code != "en" || sel.Target == nil || sel.Target.Code != "fr" {
		t.Fatalf("selection = %+v", sel)
	}

	rec := domain.NewHistoryRecord("en", "fr", "hello", "bonjour", time.Now())
	if err := a.History.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	all, err := a.History.List(ctx)
	if err != nil || len(all) != 1 || all[0].ID != rec.ID {
		t.Fatalf("list = %+v, %v", all, err)
	}

	s, err := a.Sessions.Create(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := a.Sessions.Get(s.ID); err != nil {
		t.Fatalf("get session: %v", err)
	}
}

func TestNew_UnknownEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.Name = "babelfish"
	_, err := New(context.Background(), cfg, Options{SilentSQL: true})
	if !errors.Is(err, engine.ErrUnknownEngine) {
		t.Fatalf("err = %v; want ErrUnknownEngine", err)
	}
}

func TestClose_DisposesSessions(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), Options{SilentSQL: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Sessions.Create(context.Background()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := a.Sessions.Len(); n != 0 {
		t.Fatalf("sessions after close = %d", n)
	}
}

func TestPurgeIdempotency_RemovesExpired(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := repo.CreateIdempotency(ctx, a.DB, "u1", "/sessions", "old", "s-1", 201, -time.Minute); err != nil {
		t.Fatalf("seed expired: %v", err)
	}
	if _, err := repo.CreateIdempotency(ctx, a.DB, "u1", "/sessions", "fresh", "s-2", 201, time.Hour); err != nil {
		t.Fatalf("seed fresh: %v", err)
	}

	go a.PurgeIdempotency(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for {
		var n int64
		if err := a.DB.Model(&domain.Idempotency{}).Count(&n).Error; err != nil {
			t.Fatalf("count: %v", err)
		}
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("rows = %d; want 1 after purge", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	var left domain.Idempotency
	if err := a.DB.First(&left).Error; err != nil || left.Key != "fresh" {
		t.Fatalf("remaining = %+v, %v", left, err)
	}
}
