package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		seen = RequestIDFrom(c)
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name    string
		inbound string
		reuse   bool
	}{
		{"missing", "", false},
		{"well formed", "abc-123.x:y_z", true},
		{"bad characters", "abc 123<script>", false},
		{"too long", strings.Repeat("a", maxRequestID+1), false},
		{"max length", strings.Repeat("a", maxRequestID), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.inbound != "" {
				req.Header.Set(HeaderRequestID, tc.inbound)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			echoed := w.Header().Get(HeaderRequestID)
			if echoed != seen {
				t.Fatalf("header %q != context %q", echoed, seen)
			}
			if tc.reuse {
				if echoed != tc.inbound {
					t.Fatalf("id = %q; want inbound reused", echoed)
				}
				return
			}
			if _, err := uuid.Parse(echoed); err != nil {
				t.Fatalf("id = %q; want a fresh uuid", echoed)
			}
		})
	}
}

func TestRequestIDFrom_FallsBackToResponseHeader(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := RequestIDFrom(c); got != "" {
		t.Fatalf("empty context = %q", got)
	}
	c.Header(HeaderRequestID, "from-header")
	if got := RequestIDFrom(c); got != "from-header" {
		t.Fatalf("fallback = %q", got)
	}
	c.Set(keyRequestID, "from-context")
	if got := RequestIDFrom(c); got != "from-context" {
		t.Fatalf("context = %q", got)
	}
}

func TestUserID(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := UserID(c); got != anonymousUser {
		t.Fatalf("no request = %q", got)
	}
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set(HeaderUserID, "hdr")
	if got := UserID(c); got != "hdr" {
		t.Fatalf("header = %q", got)
	}
	c.Set(keyUserID, 42)
	if got := UserID(c); got != "hdr" {
		t.Fatalf("non-string context value = %q", got)
	}
	c.Set(keyUserID, "ctx")
	if got := UserID(c); got != "ctx" {
		t.Fatalf("context = %q", got)
	}
}

func TestLoggerFrom(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if LoggerFrom(c) != &log.Logger {
		t.Fatal("expected global logger when none attached")
	}
	lg := log.With().Str("k", "v").Logger()
	c.Set(keyLogger, &lg)
	if LoggerFrom(c) != &lg {
		t.Fatal("attached logger not returned")
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 0, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel…"},
		{"", 3, ""},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q; want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
