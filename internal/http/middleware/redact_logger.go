package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const redacted = "[REDACTED]"

// RedactOptions adds to the built-in masking of Authorization, Cookie and
// Set-Cookie.
type RedactOptions struct {
	MaskHeaders []string // masked whole, case-insensitive
	MaskQuery   []string // query parameters whose values are masked
}

// UUIDs go first: the phone pattern would otherwise eat their digit runs.
var piiPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

func scrubPII(s string) string {
	for _, p := range piiPatterns {
		s = p.re.ReplaceAllString(s, p.repl)
	}
	return s
}

type redactor struct {
	headers map[string]struct{}
	query   map[string]struct{}
}

func newRedactor(opts RedactOptions) redactor {
	r := redactor{
		headers: map[string]struct{}{"authorization": {}, "cookie": {}, "set-cookie": {}},
		query:   make(map[string]struct{}, len(opts.MaskQuery)),
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.headers[h] = struct{}{}
		}
	}
	for _, q := range opts.MaskQuery {
		if q = strings.TrimSpace(q); q != "" {
			r.query[q] = struct{}{}
		}
	}
	return r
}

func (r redactor) headerDict(h map[string][]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, vv := range h {
		if _, ok := r.headers[strings.ToLower(k)]; ok {
			d.Str(k, redacted)
			continue
		}
		d.Str(k, scrubPII(strings.Join(vv, ", ")))
	}
	return d
}

func (r redactor) rawQuery(raw string) string {
	return truncate(scrubPII(maskQueryParams(raw, r.query)), maxQueryLogLength)
}

// RedactingLogger writes one access line per request with PII scrubbed from
// the query and headers. Bodies are never logged since they hold the text
// being translated. It also attaches the request-scoped logger LoggerFrom
// returns, tagged with the request id and, on session routes, the session id.
// 4xx lines log at warn and 5xx at error.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	red := newRedactor(opts)

	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		lctx := log.Logger.With().Str("request_id", RequestIDFrom(c))
		if id := c.Param("id"); id != "" && strings.Contains(route, "/sessions/:id") {
			lctx = lctx.Str("session_id", id)
		}
		lg := lctx.Logger()
		c.Set(keyLogger, &lg)

		query := red.rawQuery(c.Request.URL.RawQuery)
		headers := red.headerDict(c.Request.Header)

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = lg.Error()
		case status >= 400:
			ev = lg.Warn()
		default:
			ev = lg.Info()
		}
		ev.Str("method", c.Request.Method).
			Str("path", route).
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Dict("headers", headers).
			Msg("http_request")
	}
}

// maskQueryParams replaces the values of the named parameters. Queries that
// fail to parse, or name none of them, come back unchanged.
func maskQueryParams(raw string, names map[string]struct{}) string {
	if raw == "" || len(names) == 0 {
		return raw
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	hit := false
	for k, vv := range vals {
		if _, ok := names[k]; !ok {
			continue
		}
		hit = true
		for i := range vv {
			vv[i] = redacted
		}
	}
	if !hit {
		return raw
	}
	return vals.Encode()
}
