// Package services – LanguageService
//
// This file implements the language selection flow: listing catalog
// languages (filtered, with their model download state), reading the current
// pair, selecting a language for one slot, and swapping the slots.
//
// Selecting a language that already occupies the other slot swaps the two
// slots instead of leaving both equal. Both writes are issued; they target
// independent keys so their order does not matter.
package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-translingo-backend/internal/domain"
	"github.com/tbourn/go-translingo-backend/internal/engine"
	"github.com/tbourn/go-translingo-backend/internal/prefs"
)

// PreferenceWriter is the read/write side of the preference store.
type PreferenceWriter interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// LanguageCatalog lists and resolves catalog languages.
type LanguageCatalog interface {
	LanguageResolver
	Filter(query string) []domain.Language
}

// ModelStates reports per-language model download state.
type ModelStates interface {
	ModelState(code string) engine.ModelState
}

// LanguageOption is a catalog entry with its model download state.
type LanguageOption struct {
	domain.Language
	ModelState engine.ModelState `json:"model_state" example:"downloaded"`
}

// Selection is the current language pair; either side may be nil.
type Selection struct {
	Source *domain.Language `json:"source"`
	Target *domain.Language `json:"target"`
}

// LanguageService implements the language selection flow.
type LanguageService struct {
	Prefs   PreferenceWriter
	Catalog LanguageCatalog
	// Models is optional; without it every language reports not_downloaded.
	Models ModelStates
}

func slotKey(s Slot) string {
	if s == SlotSource {
		return prefs.KeySourceLanguage
	}
	return prefs.KeyTargetLanguage
}

// Languages lists catalog languages matching query by name or code,
// ignoring case.
func (s *LanguageService) Languages(ctx context.Context, query string) []LanguageOption {
	_, span := otel.Tracer("services/LanguageService").Start(ctx, "Languages",
		trace.WithAttributes(attribute.String("query", query)),
	)
	defer span.End()

	langs := s.Catalog.Filter(query)
	out := make([]LanguageOption, 0, len(langs))
	for _, l := range langs {
		st := engine.ModelNotDownloaded
		if s.Models != nil {
			st = s.Models.ModelState(l.Code)
		}
		out = append(out, LanguageOption{Language: l, ModelState: st})
	}
	return out
}

// Selection returns the current pair. Stored codes that no longer resolve
// read as unset.
func (s *LanguageService) Selection(ctx context.Context) (Selection, error) {
	src, err := s.lookup(ctx, SlotSource)
	if err != nil {
		return Selection{}, err
	}
	tgt, err := s.lookup(ctx, SlotTarget)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Source: src, Target: tgt}, nil
}

func (s *LanguageService) lookup(ctx context.Context, slot Slot) (*domain.Language, error) {
	code, ok, err := s.Prefs.Get(ctx, slotKey(slot))
	if err != nil || !ok {
		return nil, err
	}
	l, ok := s.Catalog.Resolve(code)
	if !ok {
		return nil, nil
	}
	return &l, nil
}

// Select stores code in slot. When code already occupies the other slot the
// slots swap: the other slot takes this slot's previous code, or is cleared
// when this slot was unset. On success a SelectionComplete event is pushed
// to q when q is non-nil.
func (s *LanguageService) Select(ctx context.Context, slot Slot, code string, q *EventQueue) (Selection, error) {
	ctx, span := otel.Tracer("services/LanguageService").Start(ctx, "Select",
		trace.WithAttributes(
			attribute.String("slot", string(slot)),
			attribute.String("code", code),
		),
	)
	defer span.End()

	if _, err := ParseSlot(string(slot)); err != nil {
		return Selection{}, err
	}
	l, ok := s.Catalog.Resolve(code)
	if !ok {
		return Selection{}, ErrUnknownLanguage
	}

	cur, err := s.lookup(ctx, slot)
	if err != nil {
		return Selection{}, err
	}
	other, err := s.lookup(ctx, slot.Other())
	if err != nil {
		return Selection{}, err
	}

	if other != nil && other.Code == l.Code {
		span.SetAttributes(attribute.Bool("swapped", true))
		if err := s.write(ctx, slot.Other(), cur); err != nil {
			return Selection{}, err
		}
	}
	if err := s.Prefs.Set(ctx, slotKey(slot), l.Code); err != nil {
		return Selection{}, err
	}

	if q != nil {
		q.Push(SelectionComplete())
	}
	return s.Selection(ctx)
}

// Swap exchanges source and target.
func (s *LanguageService) Swap(ctx context.Context) (Selection, error) {
	ctx, span := otel.Tracer("services/LanguageService").Start(ctx, "Swap")
	defer span.End()

	sel, err := s.Selection(ctx)
	if err != nil {
		return Selection{}, err
	}
	if err := s.write(ctx, SlotSource, sel.Target); err != nil {
		return Selection{}, err
	}
	if err := s.write(ctx, SlotTarget, sel.Source); err != nil {
		return Selection{}, err
	}
	return Selection{Source: sel.Target, Target: sel.Source}, nil
}

// write stores l in slot, or clears the slot when l is nil.
func (s *LanguageService) write(ctx context.Context, slot Slot, l *domain.Language) error {
	if l == nil {
		return s.Prefs.Delete(ctx, slotKey(slot))
	}
	return s.Prefs.Set(ctx, slotKey(slot), l.Code)
}
