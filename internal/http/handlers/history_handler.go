// History HTTP handlers.
//
// This file exposes saved translations:
//   - GET    /history                 (grouped by day, paginated, ETag support)
//   - GET    /favorites               (favorites, optional text filter)
//   - POST   /history/{id}/favorite   (toggle favorite)
//   - DELETE /history/{id}           (delete)
//   - GET    /history/stream          (SSE, re-sent after every write)
//   - GET    /favorites/stream        (SSE, re-sent after every write)
package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-translingo-backend/internal/domain"
	"github.com/tbourn/go-translingo-backend/internal/http/middleware"
	"github.com/tbourn/go-translingo-backend/internal/services"
)

// ListHistoryResponse wraps a page of history grouped by calendar day.
type ListHistoryResponse struct {
	Groups     []services.HistoryGroup `json:"groups"`
	Pagination Pagination              `json:"pagination"`
}

// ListFavoritesResponse wraps the favorite records, newest day first.
type ListFavoritesResponse struct {
	Favorites []domain.HistoryRecord `json:"favorites"`
}

// historyID parses the {id} path parameter.
func historyID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "history id must be an integer")
		return 0, false
	}
	return id, true
}

// etag sets a weak ETag derived from the table stats and reports whether the
// client's If-None-Match already matches (the caller then stops).
func (h *Handlers) etag(c *gin.Context, name string, favoritesOnly bool, extra string) bool {
	count, maxTS, err := h.history.Stats(c.Request.Context(), favoritesOnly)
	if err != nil {
		return false
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	tag := fmt.Sprintf(`W/"%s:%s:%d:%d"`, name, extra, count, ts)
	c.Header("ETag", tag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == tag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// ListHistory godoc
// @ID          listHistory
// @Summary     List history (grouped, paginated)
// @Description Returns a page of saved translations, newest day first, grouped under "Today", "Yesterday" or a long date. Supports weak ETag via If-None-Match and may return 304.
// @Tags        History
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"history:1:50:3:0\")
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object}  handlers.ListHistoryResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /history [get]
func (h *Handlers) ListHistory(c *gin.Context) {
	page, pageSize := clampPagination(c)

	// Group headers depend on the current day, so it is part of the tag.
	today := h.now()
	extra := fmt.Sprintf("%d:%d:%s", page, pageSize, today.Format(domain.DateLayout))
	if h.etag(c, "history", false, extra) {
		return
	}

	resp, err := h.historyPage(c.Request.Context(), page, pageSize, today)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, resp)
}

func (h *Handlers) historyPage(ctx context.Context, page, pageSize int, today time.Time) (ListHistoryResponse, error) {
	items, total, err := h.history.ListPage(ctx, page, pageSize)
	if err != nil {
		return ListHistoryResponse{}, err
	}
	groups := services.GroupHistory(items, today)
	if groups == nil {
		groups = []services.HistoryGroup{}
	}
	return ListHistoryResponse{
		Groups:     groups,
		Pagination: newPagination(page, pageSize, total),
	}, nil
}

// ListFavorites godoc
// @ID          listFavorites
// @Summary     List favorites
// @Description Returns favorite records. q filters by original or translated text, ignoring case.
// @Tags        History
// @Produce     json
//
// @Param       q  query  string  false "Text filter"  example(hola)
//
// @Success     200  {object}  handlers.ListFavoritesResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /favorites [get]
func (h *Handlers) ListFavorites(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if h.etag(c, "favorites", true, q) {
		return
	}
	resp, err := h.favorites(c.Request.Context(), q)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, resp)
}

func (h *Handlers) favorites(ctx context.Context, q string) (ListFavoritesResponse, error) {
	items, err := h.history.Favorites(ctx, q)
	if err != nil {
		return ListFavoritesResponse{}, err
	}
	if items == nil {
		items = []domain.HistoryRecord{}
	}
	return ListFavoritesResponse{Favorites: items}, nil
}

// StreamHistory godoc
// @ID          streamHistory
// @Summary     Stream history
// @Description Server-sent events; a "history" event carries the requested page, first on connect and again after every save, toggle or delete. Bursts of writes may collapse into one event.
// @Tags        History
// @Produce     text/event-stream
//
// @Param       page       query  int  false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false "Items per page"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object}  handlers.ListHistoryResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /history/stream [get]
func (h *Handlers) StreamHistory(c *gin.Context) {
	page, pageSize := clampPagination(c)
	h.streamView(c, "history", func(ctx context.Context) (any, error) {
		return h.historyPage(ctx, page, pageSize, h.now())
	})
}

// StreamFavorites godoc
// @ID          streamFavorites
// @Summary     Stream favorites
// @Description Server-sent events; a "favorites" event carries the filtered favorites, first on connect and again after every history write.
// @Tags        History
// @Produce     text/event-stream
//
// @Param       q  query  string  false "Text filter"  example(hola)
//
// @Success     200  {object}  handlers.ListFavoritesResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /favorites/stream [get]
func (h *Handlers) StreamFavorites(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	h.streamView(c, "favorites", func(ctx context.Context) (any, error) {
		return h.favorites(ctx, q)
	})
}

// streamView sends view once, then re-queries and sends it after every
// history write until the client leaves.
func (h *Handlers) streamView(c *gin.Context, event string, view func(context.Context) (any, error)) {
	ctx := c.Request.Context()

	// Subscribe before the first query so no write falls in between.
	ticks, stop := h.history.Watch()
	defer stop()

	next, err := view(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Stream(func(w io.Writer) bool {
		if next != nil {
			c.SSEvent(event, next)
			next = nil
			return true
		}
		select {
		case _, open := <-ticks:
			if !open {
				return false
			}
			v, err := view(ctx)
			if err != nil {
				if ctx.Err() == nil {
					middleware.LoggerFrom(c).Warn().Err(err).Str("event", event).Msg("history stream query failed")
				}
				return false
			}
			c.SSEvent(event, v)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// ToggleFavorite godoc
// @ID          toggleFavorite
// @Summary     Toggle favorite
// @Description Flips the favorite flag of a history record and returns the record.
// @Tags        History
// @Produce     json
//
// @Param       id  path  int  true  "History ID"
//
// @Success     200  {object}  domain.HistoryRecord
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Record not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /history/{id}/favorite [post]
func (h *Handlers) ToggleFavorite(c *gin.Context) {
	id, valid := historyID(c)
	if !valid {
		return
	}
	rec, err := h.history.ToggleFavorite(c.Request.Context(), id)
	if err != nil {
		failErr(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, rec)
}

// DeleteHistory godoc
// @ID          deleteHistory
// @Summary     Delete a history record
// @Tags        History
//
// @Param       id  path  int  true  "History ID"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Record not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /history/{id} [delete]
func (h *Handlers) DeleteHistory(c *gin.Context) {
	id, valid := historyID(c)
	if !valid {
		return
	}
	if err := h.history.DeleteByID(c.Request.Context(), id); err != nil {
		failErr(c, err, ErrCodeUpdateFailed)
		return
	}
	noContent(c)
}
