package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-translingo-backend/internal/domain"
	"github.com/tbourn/go-translingo-backend/internal/prefs"
	"github.com/tbourn/go-translingo-backend/internal/services"
)

func createSession(t *testing.T, env *testEnv) SessionResponse {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/v1/sessions", nil)
	wantStatus(t, w, http.StatusCreated)
	return decode[SessionResponse](t, w)
}

func TestSession_TranslateAndSave(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	_ = env.prefs.Set(ctx, prefs.KeySourceLanguage, "en")
	_ = env.prefs.Set(ctx, prefs.KeyTargetLanguage, "es")

	s := createSession(t, env)
	base := "/api/v1/sessions/" + s.ID

	wantStatus(t, env.do(t, http.MethodPost, base+"/attach", nil), http.StatusOK)
	wantStatus(t, env.do(t, http.MethodPut, base+"/text", SetTextRequest{Text: "hello"}), http.StatusAccepted)

	waitFor(t, "translation", func() bool {
		w := env.do(t, http.MethodGet, base, nil)
		return decode[SessionResponse](t, w).State.TranslatedText == "hola"
	})
	waitFor(t, "history save", func() bool {
		recs, _ := env.history.List(ctx)
		return len(recs) == 1
	})

	recs, _ := env.history.List(ctx)
	if recs[0].ID != domain.HistoryID("en", "es", "hello", "hola") {
		t.Fatalf("unexpected record: %+v", recs[0])
	}
}

func TestSession_AttachBootstrapsEvents(t *testing.T) {
	env := newEnv(t)
	s := createSession(t, env)
	base := "/api/v1/sessions/" + s.ID

	wantStatus(t, env.do(t, http.MethodPost, base+"/attach", nil), http.StatusOK)

	w := env.do(t, http.MethodGet, base+"/events?wait=1s", nil)
	wantStatus(t, w, http.StatusOK)
	got := decode[EventsResponse](t, w).Events
	want := []services.Event{
		services.SelectLanguage(services.SlotSource),
		services.SelectLanguage(services.SlotTarget),
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("events=%+v want %+v", got, want)
	}

	// Events are delivered once.
	w = env.do(t, http.MethodGet, base+"/events", nil)
	if evs := decode[EventsResponse](t, w).Events; len(evs) != 0 {
		t.Fatalf("expected drained queue, got %+v", evs)
	}

	// Selecting within the session reports completion.
	wantStatus(t, env.do(t, http.MethodPut, base+"/languages/source", SelectLanguageRequest{Code: "fr"}), http.StatusOK)
	w = env.do(t, http.MethodGet, base+"/events", nil)
	evs := decode[EventsResponse](t, w).Events
	if len(evs) != 1 || evs[0].Kind != services.EventSelectionComplete {
		t.Fatalf("expected selection_complete, got %+v", evs)
	}
}

func TestSession_EventsBadWait(t *testing.T) {
	env := newEnv(t)
	s := createSession(t, env)
	w := env.do(t, http.MethodGet, "/api/v1/sessions/"+s.ID+"/events?wait=soon", nil)
	wantStatus(t, w, http.StatusBadRequest)
}

func TestSession_IdempotentCreate(t *testing.T) {
	env := newEnv(t)

	w1 := env.do(t, http.MethodPost, "/api/v1/sessions", nil, "Idempotency-Key", "k-1")
	wantStatus(t, w1, http.StatusCreated)
	first := decode[SessionResponse](t, w1)

	w2 := env.do(t, http.MethodPost, "/api/v1/sessions", nil, "Idempotency-Key", "k-1")
	wantStatus(t, w2, http.StatusOK)
	if w2.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected replay header")
	}
	if again := decode[SessionResponse](t, w2); again.ID != first.ID {
		t.Fatalf("replay returned %s, want %s", again.ID, first.ID)
	}

	w3 := env.do(t, http.MethodPost, "/api/v1/sessions", nil, "Idempotency-Key", "k-2")
	wantStatus(t, w3, http.StatusCreated)
	if other := decode[SessionResponse](t, w3); other.ID == first.ID {
		t.Fatalf("distinct keys must create distinct sessions")
	}
	if env.sessions.Len() != 2 {
		t.Fatalf("sessions=%d want 2", env.sessions.Len())
	}
}

func TestSession_DetachThenDisposeAfterGrace(t *testing.T) {
	env := newEnv(t)
	s := createSession(t, env)
	base := "/api/v1/sessions/" + s.ID

	wantStatus(t, env.do(t, http.MethodPost, base+"/attach", nil), http.StatusOK)
	wantStatus(t, env.do(t, http.MethodPost, base+"/detach", nil), http.StatusNoContent)

	waitFor(t, "disposal", func() bool {
		return env.do(t, http.MethodGet, base, nil).Code == http.StatusNotFound
	})
	wantStatus(t, env.do(t, http.MethodPost, base+"/attach", nil), http.StatusNotFound)
}

func TestSession_DeleteAndUnknown(t *testing.T) {
	env := newEnv(t)
	s := createSession(t, env)
	base := "/api/v1/sessions/" + s.ID

	wantStatus(t, env.do(t, http.MethodDelete, base, nil), http.StatusNoContent)
	wantStatus(t, env.do(t, http.MethodDelete, base, nil), http.StatusNotFound)

	for _, path := range []string{base, base + "/events", base + "/stream"} {
		w := env.do(t, http.MethodGet, path, nil)
		wantStatus(t, w, http.StatusNotFound)
		if got := decode[ErrorResponse](t, w); got.Code != ErrCodeNotFound {
			t.Fatalf("%s: code=%q", path, got.Code)
		}
	}
	wantStatus(t, env.do(t, http.MethodPut, base+"/text", SetTextRequest{Text: "x"}), http.StatusNotFound)
}

func TestSession_StreamDeliversStates(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	_ = env.prefs.Set(ctx, prefs.KeySourceLanguage, "en")
	_ = env.prefs.Set(ctx, prefs.KeyTargetLanguage, "de")

	s := createSession(t, env)
	base := "/api/v1/sessions/" + s.ID
	wantStatus(t, env.do(t, http.MethodPost, base+"/attach", nil), http.StatusOK)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(reqCtx, http.MethodGet, srv.URL+base+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content-type=%q", ct)
	}

	wantStatus(t, env.do(t, http.MethodPut, base+"/text", SetTextRequest{Text: "hello"}), http.StatusAccepted)

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var st services.DisplayState
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &st); err != nil {
			t.Fatalf("decode state %q: %v", line, err)
		}
		if st.TranslatedText == "hallo" {
			return
		}
	}
	t.Fatalf("stream ended before the translation arrived: %v", sc.Err())
}
