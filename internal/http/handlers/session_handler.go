// Session HTTP handlers.
//
// This file exposes translation sessions:
//   - POST   /sessions                          (create; Idempotency-Key aware)
//   - GET    /sessions/{id}                     (display state)
//   - DELETE /sessions/{id}                     (dispose)
//   - POST   /sessions/{id}/attach              (attach and bootstrap)
//   - POST   /sessions/{id}/detach              (detach with grace)
//   - PUT    /sessions/{id}/text                (input text)
//   - PUT    /sessions/{id}/languages/{slot}    (select within the session)
//   - GET    /sessions/{id}/events              (drain one-shot events)
//   - GET    /sessions/{id}/stream              (SSE display states)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous create with
// the same key produced a session that is still alive, the handler returns it
// with `Idempotency-Replayed: true` instead of creating another one.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-translingo-backend/internal/http/middleware"
	"github.com/tbourn/go-translingo-backend/internal/services"
)

// maxEventWait caps the long-poll window of GET /sessions/{id}/events.
const maxEventWait = 30 * time.Second

// SessionResponse describes a session and its current display state.
type SessionResponse struct {
	ID        string                `json:"id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	CreatedAt time.Time             `json:"created_at"`
	State     services.DisplayState `json:"state"`
}

// SetTextRequest is the JSON payload for updating the input text.
type SetTextRequest struct {
	// Text may be empty; an empty text clears the translation.
	Text string `json:"text" example:"hello"`
}

// EventsResponse carries drained one-shot events, oldest first.
type EventsResponse struct {
	Events []services.Event `json:"events"`
}

func sessionResponse(s *services.Session) SessionResponse {
	return SessionResponse{ID: s.ID, CreatedAt: s.CreatedAt, State: s.Orchestrator.State()}
}

// CreateSession godoc
// @ID          createSession
// @Summary     Create a translation session
// @Description Creates a detached session. Supports idempotency via the Idempotency-Key header (same key → same live session).
// @Tags        Sessions
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
//
// @Success     201  {object}  handlers.SessionResponse
// @Success     200  {object}  handlers.SessionResponse  "Replayed"
// @Header      200  {string}  Idempotency-Replayed  "true when served from a previous request"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)
	scope := middleware.IdempotencyScope(c)

	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.idem != nil {
		if rec, err := h.idem.Get(ctx, uid, scope, idemKey, time.Now().UTC()); err == nil && rec != nil {
			if prev, err := h.sessions.Get(rec.ResourceID); err == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, sessionResponse(prev))
				return
			}
		}
	}

	s, err := h.sessions.Create(ctx)
	if err != nil {
		failErr(c, err, ErrCodeCreateFailed)
		return
	}

	// Best effort: a lost race leaves the first session as the replay target.
	if idemKey != "" && h.idem != nil {
		_ = h.idem.Create(ctx, uid, scope, idemKey, s.ID, http.StatusCreated)
	}

	ok(c, http.StatusCreated, sessionResponse(s))
}

// GetSession godoc
// @ID          getSession
// @Summary     Get a session
// @Description Returns the session's current display state.
// @Tags        Sessions
// @Produce     json
//
// @Param       id  path  string  true  "Session ID"  format(uuid)
//
// @Success     200  {object}  handlers.SessionResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, sessionResponse(s))
}

// DeleteSession godoc
// @ID          deleteSession
// @Summary     Dispose a session
// @Description Tears the session down immediately, cancelling in-flight work.
// @Tags        Sessions
//
// @Param       id  path  string  true  "Session ID"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id} [delete]
func (h *Handlers) DeleteSession(c *gin.Context) {
	if err := h.sessions.Dispose(c.Param("id")); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// AttachSession godoc
// @ID          attachSession
// @Summary     Attach to a session
// @Description Activates the session: re-reads the language pair, queues SelectLanguage events for unset slots, and cancels a pending disposal.
// @Tags        Sessions
// @Produce     json
//
// @Param       id  path  string  true  "Session ID"  format(uuid)
//
// @Success     200  {object}  handlers.SessionResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     410  {object}  handlers.ErrorResponse  "Session closed"
// @Router      /sessions/{id}/attach [post]
func (h *Handlers) AttachSession(c *gin.Context) {
	s, err := h.sessions.Attach(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, sessionResponse(s))
}

// DetachSession godoc
// @ID          detachSession
// @Summary     Detach from a session
// @Description Makes the session inert and schedules its disposal after the grace window.
// @Tags        Sessions
//
// @Param       id  path  string  true  "Session ID"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id}/detach [post]
func (h *Handlers) DetachSession(c *gin.Context) {
	if err := h.sessions.Detach(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// SetText godoc
// @ID          setSessionText
// @Summary     Update input text
// @Description Feeds the session's input text. Translation starts after the debounce window.
// @Tags        Sessions
// @Accept      json
//
// @Param       id    path  string  true  "Session ID"  format(uuid)
// @Param       body  body  handlers.SetTextRequest  true  "Input text"
//
// @Success     202  {string}  string  "Accepted"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     410  {object}  handlers.ErrorResponse  "Session closed"
// @Router      /sessions/{id}/text [put]
func (h *Handlers) SetText(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	var req SetTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := s.Orchestrator.SetText(req.Text); err != nil {
		failErr(c, err, ErrCodeUpdateFailed)
		return
	}
	c.Status(http.StatusAccepted)
}

// SelectSessionLanguage godoc
// @ID          selectSessionLanguage
// @Summary     Select a language within a session
// @Description Same as PUT /languages/{slot}, and queues a SelectionComplete event on the session.
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Session ID"  format(uuid)
// @Param       slot  path  string  true  "source or target"  Enums(source, target)
// @Param       body  body  handlers.SelectLanguageRequest  true  "Language code"
//
// @Success     200  {object}  services.Selection
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id}/languages/{slot} [put]
func (h *Handlers) SelectSessionLanguage(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	h.selectLanguage(c, s.Orchestrator.Events())
}

// DrainEvents godoc
// @ID          drainSessionEvents
// @Summary     Drain one-shot events
// @Description Returns and forgets pending events. With wait, blocks up to that long (max 30s) for the first event.
// @Tags        Sessions
// @Produce     json
//
// @Param       id    path   string  true   "Session ID"  format(uuid)
// @Param       wait  query  string  false  "Long-poll duration"  example(5s)
//
// @Success     200  {object}  handlers.EventsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id}/events [get]
func (h *Handlers) DrainEvents(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}

	if w := c.Query("wait"); w != "" {
		d, err := time.ParseDuration(w)
		if err != nil || d < 0 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "wait must be a duration")
			return
		}
		if d > maxEventWait {
			d = maxEventWait
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		err = s.Orchestrator.Events().Wait(ctx)
		cancel()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			// Client went away.
			return
		}
	}

	events := s.Orchestrator.Events().Drain()
	if events == nil {
		events = []services.Event{}
	}
	ok(c, http.StatusOK, EventsResponse{Events: events})
}

// StreamSession godoc
// @ID          streamSession
// @Summary     Stream display states
// @Description Server-sent events; each "state" event carries the latest DisplayState. Intermediate states may be skipped.
// @Tags        Sessions
// @Produce     text/event-stream
//
// @Param       id  path  string  true  "Session ID"  format(uuid)
//
// @Success     200  {object}  services.DisplayState
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id}/stream [get]
func (h *Handlers) StreamSession(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}

	states, stop := s.Orchestrator.Subscribe()
	defer stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case st, open := <-states:
			if !open {
				return false
			}
			c.SSEvent("state", st)
			return true
		case <-done:
			return false
		}
	})
}
