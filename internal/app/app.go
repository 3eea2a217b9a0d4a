// Package app assembles the translation service from configuration: the
// history database, the translation engine, the preference store and the
// application services shared by the HTTP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-translingo-backend/internal/config"
	"github.com/tbourn/go-translingo-backend/internal/domain"
	"github.com/tbourn/go-translingo-backend/internal/engine"
	"github.com/tbourn/go-translingo-backend/internal/language"
	"github.com/tbourn/go-translingo-backend/internal/prefs"
	"github.com/tbourn/go-translingo-backend/internal/repo"
	"github.com/tbourn/go-translingo-backend/internal/services"
)

// historyRepoShim adapts the repository free functions to the
// services.HistoryRepo interface expected by the HistoryService.
type historyRepoShim struct{}

// UpsertHistory proxies repo.UpsertHistory.
func (historyRepoShim) UpsertHistory(ctx context.Context, db *gorm.DB, rec *domain.HistoryRecord) error {
	return repo.UpsertHistory(ctx, db, rec)
}

// GetHistory proxies repo.GetHistory.
func (historyRepoShim) GetHistory(ctx context.Context, db *gorm.DB, id int64) (*domain.HistoryRecord, error) {
	return repo.GetHistory(ctx, db, id)
}

// ListHistory proxies repo.ListHistory.
func (historyRepoShim) ListHistory(ctx context.Context, db *gorm.DB) ([]domain.HistoryRecord, error) {
	return repo.ListHistory(ctx, db)
}

// CountHistory proxies repo.CountHistory (pagination support).
func (historyRepoShim) CountHistory(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountHistory(ctx, db)
}

// ListHistoryPage proxies repo.ListHistoryPage (pagination support).
func (historyRepoShim) ListHistoryPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.HistoryRecord, error) {
	return repo.ListHistoryPage(ctx, db, offset, limit)
}

// ListFavorites proxies repo.ListFavorites.
func (historyRepoShim) ListFavorites(ctx context.Context, db *gorm.DB) ([]domain.HistoryRecord, error) {
	return repo.ListFavorites(ctx, db)
}

// ToggleFavorite proxies repo.ToggleFavorite.
func (historyRepoShim) ToggleFavorite(ctx context.Context, db *gorm.DB, id int64) error {
	return repo.ToggleFavorite(ctx, db, id)
}

// DeleteHistory proxies repo.DeleteHistory.
func (historyRepoShim) DeleteHistory(ctx context.Context, db *gorm.DB, rec domain.HistoryRecord) error {
	return repo.DeleteHistory(ctx, db, rec)
}

// HistoryStats proxies repo.HistoryStats (ETag support).
func (historyRepoShim) HistoryStats(ctx context.Context, db *gorm.DB, favoritesOnly bool) (int64, *time.Time, error) {
	return repo.HistoryStats(ctx, db, favoritesOnly)
}

// App holds the wired services. Build it with New and release it with Close.
type App struct {
	Config config.Config
	DB     *gorm.DB

	Catalog    *language.Catalog
	Identifier *language.Identifier
	Engine     *engine.Manager
	Prefs      *prefs.Store

	History   *services.HistoryService
	Languages *services.LanguageService
	Sessions  *services.SessionManager
}

// Options tunes New.
type Options struct {
	// SilentSQL disables GORM's SQL logger, for CLI output.
	SilentSQL bool
}

// New opens and migrates the database, builds the configured engine, and
// wires the services.
func New(ctx context.Context, cfg config.Config, opts ...Options) (*App, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	db, err := repo.OpenSQLite(cfg.DBPath, repo.Options{Silent: o.SilentSQL})
	if err != nil {
		return nil, fmt.Errorf("open db %q: %w", cfg.DBPath, err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	eng, err := engine.New(ctx, cfg.Engine)
	if err != nil {
		closeDB(db)
		return nil, err
	}
	mgr := engine.NewManager(eng, cfg.Engine.Timeout)

	catalog := language.Default()
	ident := language.NewIdentifier(catalog)
	store := prefs.New(db)

	hist := services.NewHistoryService(db, historyRepoShim{})
	hist.Identifier = ident
	hist.Validate = cfg.ValidateTranslations

	a := &App{
		Config:     cfg,
		DB:         db,
		Catalog:    catalog,
		Identifier: ident,
		Engine:     mgr,
		Prefs:      store,
		History:    hist,
		Languages:  &services.LanguageService{Prefs: store, Catalog: catalog, Models: mgr},
		Sessions: services.NewSessionManager(
			services.OrchestratorDeps{Engine: mgr, Prefs: store, History: hist, Catalog: catalog},
			services.OrchestratorOptions{Debounce: cfg.Session.Debounce, SaveDelay: cfg.Session.SaveDelay},
			cfg.Session.Grace,
		),
	}

	log.Info().
		Str("db", cfg.DBPath).
		Str("engine", mgr.Name()).
		Int("languages", catalog.Len()).
		Msg("app ready")
	return a, nil
}

// Close disposes every session and releases the engine and the database.
func (a *App) Close() error {
	a.Sessions.Close()
	err := a.Engine.Close()
	if sqlDB, dbErr := a.DB.DB(); dbErr == nil {
		err = errors.Join(err, sqlDB.Close())
	}
	return err
}

// PurgeIdempotency deletes expired idempotency records every interval until
// ctx is done.
func (a *App) PurgeIdempotency(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, a.DB, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired idempotency keys removed")
			}
		}
	}
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
