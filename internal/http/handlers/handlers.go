// Package handlers exposes the translation service over HTTP.
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses (including
// conditional and replayed responses).
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-translingo-backend/internal/domain"
	"github.com/tbourn/go-translingo-backend/internal/services"
	"github.com/tbourn/go-translingo-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// LanguageService lists languages and edits the persisted pair.
type LanguageService interface {
	Languages(ctx context.Context, query string) []services.LanguageOption
	Selection(ctx context.Context) (services.Selection, error)
	Select(ctx context.Context, slot services.Slot, code string, q *services.EventQueue) (services.Selection, error)
	Swap(ctx context.Context) (services.Selection, error)
}

// SessionService owns translation sessions.
type SessionService interface {
	Create(ctx context.Context) (*services.Session, error)
	Get(id string) (*services.Session, error)
	Attach(ctx context.Context, id string) (*services.Session, error)
	Detach(ctx context.Context, id string) error
	Dispose(id string) error
}

// HistoryService reads and edits saved translations.
type HistoryService interface {
	ListPage(ctx context.Context, page, pageSize int) ([]domain.HistoryRecord, int64, error)
	Favorites(ctx context.Context, query string) ([]domain.HistoryRecord, error)
	ToggleFavorite(ctx context.Context, id int64) (*domain.HistoryRecord, error)
	DeleteByID(ctx context.Context, id int64) error
	// Stats feeds weak ETags: row count and latest update time.
	Stats(ctx context.Context, favoritesOnly bool) (int64, *time.Time, error)
	// Watch ticks after every write; the func unsubscribes.
	Watch() (<-chan struct{}, func())
}

// IdempotencyStore remembers which resource an Idempotency-Key produced.
type IdempotencyStore interface {
	Get(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error)
	Create(ctx context.Context, userID, scope, key, resourceID string, status int) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints.
type Handlers struct {
	langs    LanguageService
	sessions SessionService
	history  HistoryService
	idem     IdempotencyStore

	// now stamps history group headers. Defaults to time.Now.
	now func() time.Time
}

// Option customizes Handlers.
type Option func(*Handlers)

// WithIdempotency enables Idempotency-Key replays on session creation.
func WithIdempotency(s IdempotencyStore) Option {
	return func(h *Handlers) { h.idem = s }
}

// WithClock overrides the clock used to label history groups.
func WithClock(now func() time.Time) Option {
	return func(h *Handlers) { h.now = now }
}

// New constructs Handlers bound to the given services.
func New(langs LanguageService, sessions SessionService, history HistoryService, opts ...Option) *Handlers {
	h := &Handlers{langs: langs, sessions: sessions, history: history, now: time.Now}
	for _, o := range opts {
		o(h)
	}
	return h
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize),
	)
}
