// Package services – HistoryService
//
// This file implements HistoryService, which owns persisted translations:
// saving settled translations (upsert by deterministic id), the all-records
// and favorites views, favorite toggling, deletion by value, and grouping of
// records under calendar-day headers for display.
//
// Views are reactive through Watch: every successful write ticks each
// watcher so clients can re-query.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/tbourn/go-translingo-backend/internal/domain"
	"github.com/tbourn/go-translingo-backend/internal/language"
	"github.com/tbourn/go-translingo-backend/internal/utils"
)

// HistoryRepo defines the repository contract required by HistoryService.
type HistoryRepo interface {
	UpsertHistory(ctx context.Context, db *gorm.DB, rec *domain.HistoryRecord) error
	GetHistory(ctx context.Context, db *gorm.DB, id int64) (*domain.HistoryRecord, error)
	ListHistory(ctx context.Context, db *gorm.DB) ([]domain.HistoryRecord, error)
	CountHistory(ctx context.Context, db *gorm.DB) (int64, error)
	ListHistoryPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.HistoryRecord, error)
	ListFavorites(ctx context.Context, db *gorm.DB) ([]domain.HistoryRecord, error)
	ToggleFavorite(ctx context.Context, db *gorm.DB, id int64) error
	DeleteHistory(ctx context.Context, db *gorm.DB, rec domain.HistoryRecord) error
	HistoryStats(ctx context.Context, db *gorm.DB, favoritesOnly bool) (int64, *time.Time, error)
}

// LanguageIdentifier guesses the language of a text ("und" when unsure).
type LanguageIdentifier interface {
	Identify(text string) string
}

// HistoryGroup is a run of records sharing a calendar day.
type HistoryGroup struct {
	Header  string                 `json:"header" example:"Today"`
	Date    string                 `json:"date" example:"2024-03-05"`
	Records []domain.HistoryRecord `json:"records"`
}

// HistoryService manages translation history.
type HistoryService struct {
	DB   *gorm.DB
	Repo HistoryRepo

	// Identifier, when set together with Validate, rejects records whose
	// translated text has no identifiable language.
	Identifier LanguageIdentifier
	Validate   bool

	// Now stamps records saved without a Date. Defaults to time.Now.
	Now func() time.Time

	mu       sync.Mutex
	watchers map[int]chan struct{}
	nextID   int
}

// NewHistoryService constructs a HistoryService.
func NewHistoryService(db *gorm.DB, r HistoryRepo) *HistoryService {
	return &HistoryService{DB: db, Repo: r, Now: time.Now}
}

func (s *HistoryService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Save validates and upserts rec. The id is derived when zero and Date is
// stamped when empty.
func (s *HistoryService) Save(ctx context.Context, rec *domain.HistoryRecord) error {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "Save",
		trace.WithAttributes(
			attribute.String("lang.src", rec.SourceLanguageCode),
			attribute.String("lang.tgt", rec.TargetLanguageCode),
		),
	)
	defer span.End()

	if strings.TrimSpace(rec.OriginalText) == "" {
		return ErrBlankText
	}
	if s.Validate && s.Identifier != nil && s.Identifier.Identify(rec.TranslatedText) == language.Undetermined {
		return ErrUndetermined
	}
	if rec.ID == 0 {
		rec.ID = domain.HistoryID(rec.SourceLanguageCode, rec.TargetLanguageCode, rec.OriginalText, rec.TranslatedText)
	}
	if rec.Date == "" {
		rec.Date = s.now().Format(domain.DateLayout)
	}
	span.SetAttributes(attribute.Int64("history.id", rec.ID))

	if err := s.Repo.UpsertHistory(ctx, s.DB, rec); err != nil {
		return err
	}
	s.notify()
	return nil
}

// List returns every record, newest date first.
func (s *HistoryService) List(ctx context.Context) ([]domain.HistoryRecord, error) {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "List")
	defer span.End()

	return s.Repo.ListHistory(ctx, s.DB)
}

// ListPage returns one page of records and the total count.
func (s *HistoryService) ListPage(ctx context.Context, page, pageSize int) ([]domain.HistoryRecord, int64, error) {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	page, pageSize = utils.ClampPage(page, pageSize)

	total, err := s.Repo.CountHistory(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.HistoryRecord{}, 0, nil
	}
	items, err := s.Repo.ListHistoryPage(ctx, s.DB, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// Favorites returns favorite records, newest date first. A non-blank query
// keeps only records whose original or translated text contains it,
// ignoring case.
func (s *HistoryService) Favorites(ctx context.Context, query string) ([]domain.HistoryRecord, error) {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "Favorites",
		trace.WithAttributes(attribute.String("query", query)),
	)
	defer span.End()

	favs, err := s.Repo.ListFavorites(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return favs, nil
	}

	fold := cases.Fold()
	q = fold.String(q)
	out := favs[:0]
	for _, r := range favs {
		if strings.Contains(fold.String(r.OriginalText), q) || strings.Contains(fold.String(r.TranslatedText), q) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ToggleFavorite flips the favorite flag of id and returns the updated
// record.
func (s *HistoryService) ToggleFavorite(ctx context.Context, id int64) (*domain.HistoryRecord, error) {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "ToggleFavorite",
		trace.WithAttributes(attribute.Int64("history.id", id)),
	)
	defer span.End()

	if err := s.Repo.ToggleFavorite(ctx, s.DB, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHistoryNotFound
		}
		return nil, err
	}
	s.notify()

	rec, err := s.Repo.GetHistory(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrHistoryNotFound
	}
	return rec, err
}

// Delete removes the record matching rec on every column.
func (s *HistoryService) Delete(ctx context.Context, rec domain.HistoryRecord) error {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.Int64("history.id", rec.ID)),
	)
	defer span.End()

	if err := s.Repo.DeleteHistory(ctx, s.DB, rec); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrHistoryNotFound
		}
		return err
	}
	s.notify()
	return nil
}

// DeleteByID loads the record and deletes it by value.
func (s *HistoryService) DeleteByID(ctx context.Context, id int64) error {
	rec, err := s.Repo.GetHistory(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrHistoryNotFound
	}
	if err != nil {
		return err
	}
	return s.Delete(ctx, *rec)
}

// Stats returns the record count and latest update time, for ETags.
func (s *HistoryService) Stats(ctx context.Context, favoritesOnly bool) (int64, *time.Time, error) {
	return s.Repo.HistoryStats(ctx, s.DB, favoritesOnly)
}

// Watch returns a channel that ticks after every successful write. Ticks
// coalesce while the reader is busy. The func unsubscribes.
func (s *HistoryService) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	if s.watchers == nil {
		s.watchers = make(map[int]chan struct{})
	}
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(c)
		}
	}
}

func (s *HistoryService) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// GroupHistory buckets records by Date, keeping the order in which each day
// first appears. Headers read "Today", "Yesterday", or "January 2, 2006";
// a date that does not parse is used verbatim.
func GroupHistory(records []domain.HistoryRecord, today time.Time) []HistoryGroup {
	var groups []HistoryGroup
	index := make(map[string]int)
	for _, r := range records {
		i, ok := index[r.Date]
		if !ok {
			i = len(groups)
			index[r.Date] = i
			groups = append(groups, HistoryGroup{Header: dateHeader(r.Date, today), Date: r.Date})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	return groups
}

func dateHeader(date string, today time.Time) string {
	d, err := time.ParseInLocation(domain.DateLayout, date, today.Location())
	if err != nil {
		return date
	}
	y, m, dd := today.Date()
	midnight := time.Date(y, m, dd, 0, 0, 0, 0, today.Location())
	switch {
	case d.Equal(midnight):
		return "Today"
	case d.AddDate(0, 0, 1).Equal(midnight):
		return "Yesterday"
	default:
		return d.Format("January 2, 2006")
	}
}
