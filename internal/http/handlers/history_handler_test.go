package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-translingo-backend/internal/domain"
)

func seedHistory(t *testing.T, env *testEnv) (today, yesterday *domain.HistoryRecord) {
	t.Helper()
	ctx := context.Background()
	today = domain.NewHistoryRecord("en", "es", "hello", "hola", testToday)
	yesterday = domain.NewHistoryRecord("en", "fr", "hello", "bonjour", testToday.AddDate(0, 0, -1))
	old := domain.NewHistoryRecord("en", "de", "Thank you", "Danke", time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC))
	for _, r := range []*domain.HistoryRecord{today, yesterday, old} {
		if err := env.history.Save(ctx, r); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return today, yesterday
}

func TestListHistory_GroupedAndETag(t *testing.T) {
	env := newEnv(t)
	seedHistory(t, env)

	w := env.do(t, http.MethodGet, "/api/v1/history", nil)
	wantStatus(t, w, http.StatusOK)
	resp := decode[ListHistoryResponse](t, w)

	headers := make([]string, 0, len(resp.Groups))
	for _, g := range resp.Groups {
		headers = append(headers, g.Header)
	}
	want := []string{"Today", "Yesterday", "January 2, 2024"}
	if fmt.Sprint(headers) != fmt.Sprint(want) {
		t.Fatalf("headers=%v want %v", headers, want)
	}
	if resp.Pagination.Total != 3 || resp.Pagination.HasNext {
		t.Fatalf("unexpected pagination: %+v", resp.Pagination)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	w = env.do(t, http.MethodGet, "/api/v1/history", nil, "If-None-Match", etag)
	wantStatus(t, w, http.StatusNotModified)

	// A new save changes the tag.
	if err := env.history.Save(context.Background(), domain.NewHistoryRecord("en", "es", "Thank you", "Gracias", testToday)); err != nil {
		t.Fatalf("save: %v", err)
	}
	w = env.do(t, http.MethodGet, "/api/v1/history", nil, "If-None-Match", etag)
	wantStatus(t, w, http.StatusOK)
}

func TestListHistory_Paging(t *testing.T) {
	env := newEnv(t)
	seedHistory(t, env)

	w := env.do(t, http.MethodGet, "/api/v1/history?page=2&page_size=2", nil)
	wantStatus(t, w, http.StatusOK)
	resp := decode[ListHistoryResponse](t, w)
	if len(resp.Groups) != 1 || resp.Groups[0].Header != "January 2, 2024" {
		t.Fatalf("unexpected page 2: %+v", resp.Groups)
	}
	if resp.Pagination.TotalPages != 2 || resp.Pagination.HasNext {
		t.Fatalf("unexpected pagination: %+v", resp.Pagination)
	}
}

func TestFavorites_ToggleSearchDelete(t *testing.T) {
	env := newEnv(t)
	today, yesterday := seedHistory(t, env)

	w := env.do(t, http.MethodGet, "/api/v1/favorites", nil)
	wantStatus(t, w, http.StatusOK)
	if favs := decode[ListFavoritesResponse](t, w).Favorites; len(favs) != 0 {
		t.Fatalf("expected no favorites, got %+v", favs)
	}

	for _, r := range []*domain.HistoryRecord{today, yesterday} {
		w = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/history/%d/favorite", r.ID), nil)
		wantStatus(t, w, http.StatusOK)
		if rec := decode[domain.HistoryRecord](t, w); !rec.IsFavorite {
			t.Fatalf("expected favorite after toggle: %+v", rec)
		}
	}

	w = env.do(t, http.MethodGet, "/api/v1/favorites?q=BONJ", nil)
	wantStatus(t, w, http.StatusOK)
	favs := decode[ListFavoritesResponse](t, w).Favorites
	if len(favs) != 1 || favs[0].ID != yesterday.ID {
		t.Fatalf("unexpected search result: %+v", favs)
	}

	wantStatus(t, env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/history/%d", yesterday.ID), nil), http.StatusNoContent)
	wantStatus(t, env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/history/%d", yesterday.ID), nil), http.StatusNotFound)

	w = env.do(t, http.MethodGet, "/api/v1/favorites", nil)
	if favs := decode[ListFavoritesResponse](t, w).Favorites; len(favs) != 1 || favs[0].ID != today.ID {
		t.Fatalf("unexpected favorites after delete: %+v", favs)
	}
}

func TestHistory_BadAndUnknownIDs(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/history/abc/favorite", nil)
	wantStatus(t, w, http.StatusBadRequest)

	w = env.do(t, http.MethodPost, "/api/v1/history/42/favorite", nil)
	wantStatus(t, w, http.StatusNotFound)
	if got := decode[ErrorResponse](t, w); got.Code != ErrCodeNotFound {
		t.Fatalf("code=%q", got.Code)
	}
}

// sseData reads "data:" payloads from an event stream, one per call.
func sseData(t *testing.T, sc *bufio.Scanner) []byte {
	t.Helper()
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "data:") {
			return []byte(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return nil
}

func openStream(t *testing.T, env *testEnv, path string) *bufio.Scanner {
	t.Helper()
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream %s: status %d", path, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content-type=%q", ct)
	}
	return bufio.NewScanner(resp.Body)
}

func TestStreamHistory_ResendsAfterWrites(t *testing.T) {
	env := newEnv(t)
	today, _ := seedHistory(t, env)

	sc := openStream(t, env, "/api/v1/history/stream?page_size=10")
	var first ListHistoryResponse
	if err := json.Unmarshal(sseData(t, sc), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Pagination.Total != 3 || len(first.Groups) != 3 || first.Groups[0].Header != "Today" {
		t.Fatalf("initial view = %+v", first)
	}

	if err := env.history.DeleteByID(context.Background(), today.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var next ListHistoryResponse
	if err := json.Unmarshal(sseData(t, sc), &next); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if next.Pagination.Total != 2 || next.Groups[0].Header != "Yesterday" {
		t.Fatalf("view after delete = %+v", next)
	}
}

func TestStreamFavorites_FollowsToggles(t *testing.T) {
	env := newEnv(t)
	today, yesterday := seedHistory(t, env)
	ctx := context.Background()

	sc := openStream(t, env, "/api/v1/favorites/stream?q=HOLA")
	var first ListFavoritesResponse
	if err := json.Unmarshal(sseData(t, sc), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(first.Favorites) != 0 {
		t.Fatalf("no favorites yet, got %+v", first.Favorites)
	}

	// Outside the filter: the view is re-sent but stays empty.
	if _, err := env.history.ToggleFavorite(ctx, yesterday.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	var second ListFavoritesResponse
	if err := json.Unmarshal(sseData(t, sc), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(second.Favorites) != 0 {
		t.Fatalf("filter should exclude bonjour, got %+v", second.Favorites)
	}

	if _, err := env.history.ToggleFavorite(ctx, today.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	var third ListFavoritesResponse
	if err := json.Unmarshal(sseData(t, sc), &third); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(third.Favorites) != 1 || third.Favorites[0].ID != today.ID {
		t.Fatalf("favorites = %+v", third.Favorites)
	}
}
