// Language HTTP handlers.
//
// This file exposes the language catalog and the persisted pair:
//   - GET  /languages            (catalog, filtered, with model state)
//   - GET  /languages/selection  (current pair)
//   - PUT  /languages/{slot}     (select; swaps when needed)
//   - POST /languages/swap       (swap slots)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-translingo-backend/internal/services"
)

// SelectLanguageRequest is the JSON payload for selecting a language.
type SelectLanguageRequest struct {
	// Code is a catalog language code.
	Code string `json:"code" binding:"required" example:"es"`
}

// ListLanguagesResponse wraps the filtered catalog.
type ListLanguagesResponse struct {
	Languages []services.LanguageOption `json:"languages"`
}

// ListLanguages godoc
// @ID          listLanguages
// @Summary     List languages
// @Description Returns catalog languages whose name or code contains q (case-insensitive), with their model download state.
// @Tags        Languages
// @Produce     json
//
// @Param       q  query  string  false "Name or code filter"  example(span)
//
// @Success     200  {object}  handlers.ListLanguagesResponse
// @Router      /languages [get]
func (h *Handlers) ListLanguages(c *gin.Context) {
	langs := h.langs.Languages(c.Request.Context(), strings.TrimSpace(c.Query("q")))
	ok(c, http.StatusOK, ListLanguagesResponse{Languages: langs})
}

// GetSelection godoc
// @ID          getSelection
// @Summary     Current language pair
// @Description Returns the persisted source and target languages; unset slots are null.
// @Tags        Languages
// @Produce     json
//
// @Success     200  {object}  services.Selection
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /languages/selection [get]
func (h *Handlers) GetSelection(c *gin.Context) {
	sel, err := h.langs.Selection(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, sel)
}

// SelectLanguage godoc
// @ID          selectLanguage
// @Summary     Select a language
// @Description Stores code in the slot. Selecting the language held by the other slot swaps the slots.
// @Tags        Languages
// @Accept      json
// @Produce     json
//
// @Param       slot  path  string  true  "source or target"  Enums(source, target)
// @Param       body  body  handlers.SelectLanguageRequest  true  "Language code"
//
// @Success     200  {object}  services.Selection
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /languages/{slot} [put]
func (h *Handlers) SelectLanguage(c *gin.Context) {
	h.selectLanguage(c, nil)
}

// selectLanguage is shared by the global and per-session routes; q receives
// the SelectionComplete event when non-nil.
func (h *Handlers) selectLanguage(c *gin.Context, q *services.EventQueue) {
	slot, err := services.ParseSlot(c.Param("slot"))
	if err != nil {
		failErr(c, err, ErrCodeBadRequest)
		return
	}
	var req SelectLanguageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code required")
		return
	}

	sel, err := h.langs.Select(c.Request.Context(), slot, req.Code, q)
	if err != nil {
		failErr(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, sel)
}

// SwapLanguages godoc
// @ID          swapLanguages
// @Summary     Swap languages
// @Description Exchanges the source and target languages.
// @Tags        Languages
// @Produce     json
//
// @Success     200  {object}  services.Selection
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /languages/swap [post]
func (h *Handlers) SwapLanguages(c *gin.Context) {
	sel, err := h.langs.Swap(c.Request.Context())
	if err != nil {
		failErr(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, sel)
}
