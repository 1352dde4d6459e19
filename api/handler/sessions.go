package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/readtrack/models"
	"github.com/use-agent/readtrack/session"
)

// Sessions serves the beacon endpoints of a session manager.
type Sessions struct {
	Manager *session.Manager
}

// Open handles POST /api/v1/sessions.
func (h *Sessions) Open(c *gin.Context) {
	var req models.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err)
		return
	}

	s, err := h.Manager.Open(session.Options{
		URL:            req.URL,
		HTML:           req.HTML,
		ViewportHeight: req.ViewportHeight,
		Reading:        req.Reading,
		ProductPage:    req.ProductPage,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse(s.Report(), false))
}

// Get handles GET /api/v1/sessions/:id.
func (h *Sessions) Get(c *gin.Context) {
	s, err := h.Manager.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(s.Report(), false))
}

// Scroll handles POST /api/v1/sessions/:id/scroll.
func (h *Sessions) Scroll(c *gin.Context) {
	var req models.ScrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err)
		return
	}
	if err := h.Manager.Scroll(c.Param("id"), *req.ScrollTop, req.ViewportHeight); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Interaction handles POST /api/v1/sessions/:id/interaction.
func (h *Sessions) Interaction(c *gin.Context) {
	var req models.InteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err)
		return
	}
	err := h.Manager.Interact(c.Param("id"), session.Interaction{
		Kind:      req.Kind,
		Href:      req.Href,
		FormTitle: req.FormTitle,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Close handles DELETE /api/v1/sessions/:id and returns the final report.
func (h *Sessions) Close(c *gin.Context) {
	report, err := h.Manager.Close(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(report, true))
}

func sessionResponse(r *session.Report, closed bool) models.SessionResponse {
	return models.SessionResponse{
		Success:      true,
		ID:           r.ID,
		Scrolls:      r.Scrolls,
		Interactions: r.Interactions,
		Region:       &r.Region,
		State:        &r.State,
		Events:       r.Events,
		Closed:       closed,
	}
}
