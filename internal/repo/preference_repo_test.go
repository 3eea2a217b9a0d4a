package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-translingo-backend/internal/domain"
)

func TestPreferences_SetGetOverwriteDelete(t *testing.T) {
	db := newRepoDB(t, &domain.Preference{})
	ctx := context.Background()

	if _, err := GetPreference(ctx, db, "source_language_code"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("absent key: want ErrNotFound, got %v", err)
	}

	if err := SetPreference(ctx, db, "source_language_code", "en"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := SetPreference(ctx, db, "source_language_code", "fr"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	p, err := GetPreference(ctx, db, "source_language_code")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Value != "fr" {
		t.Fatalf("value = %q, want fr", p.Value)
	}

	var n int64
	db.Model(&domain.Preference{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected single row after overwrite, got %d", n)
	}

	if err := DeletePreference(ctx, db, "source_language_code"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := DeletePreference(ctx, db, "source_language_code"); err != nil {
		t.Fatalf("deleting an absent key should be a no-op, got %v", err)
	}
	if _, err := GetPreference(ctx, db, "source_language_code"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete: want ErrNotFound, got %v", err)
	}
}
