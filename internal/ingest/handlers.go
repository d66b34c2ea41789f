package ingest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mkells/vigil/internal/session"
	"github.com/mkells/vigil/internal/validation"
)

// DefaultEventLimit bounds the recent-events admin read.
const DefaultEventLimit = 100

// Handler exposes the administrative session operations over HTTP. All of
// them are direct pass-throughs to the pipeline and session store;
// administrative reads never lazily create sessions.
type Handler struct {
	pipeline *Pipeline
}

// NewHandler creates an admin handler around the pipeline.
func NewHandler(p *Pipeline) *Handler {
	return &Handler{pipeline: p}
}

// RegisterRoutes sets up the session admin endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sessions", h.StartSession)
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:id", h.GetSession)
	r.GET("/sessions/:id/events", h.GetSessionEvents)
	r.POST("/sessions/:id/end", h.EndSession)
	r.POST("/sessions/:id/flag", h.FlagSession)
	r.POST("/sessions/:id/unflag", h.UnflagSession)
}

// StartSession handles POST /v1/sessions.
func (h *Handler) StartSession(c *gin.Context) {
	// Every field is optional; an empty or absent body starts an
	// anonymous session with a generated id.
	var req struct {
		SessionID   string `json:"sessionId"`
		DisplayName string `json:"displayName"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Request body must be a JSON object",
			})
			return
		}
	}

	if req.SessionID != "" && !validation.IsValidSessionID(req.SessionID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_session_id",
			"message": "session id must be 1-64 characters of letters, digits, '_' or '-'",
		})
		return
	}
	req.DisplayName = validation.SanitizeString(req.DisplayName, 200)

	snap, err := h.pipeline.StartSession(c.Request.Context(), req.SessionID, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionExists):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "session_exists",
				"message": "A session with this id is already active",
			})
		case errors.Is(err, session.ErrSessionEnded):
			c.JSON(http.StatusGone, gin.H{
				"error":   "session_ended",
				"message": "This session id has ended and cannot be reused",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to start session",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": snap})
}

// ListSessions handles GET /v1/sessions.
func (h *Handler) ListSessions(c *gin.Context) {
	active := h.pipeline.Store().ListActive()
	c.JSON(http.StatusOK, gin.H{
		"sessions": active,
		"total":    len(active),
	})
}

// GetSession handles GET /v1/sessions/:id. Never creates.
func (h *Handler) GetSession(c *gin.Context) {
	snap, err := h.pipeline.Store().Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "session_not_found",
			"message": "No session with this id",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": snap})
}

// GetSessionEvents handles GET /v1/sessions/:id/events?limit=N. Live
// sessions serve from the in-memory timeline; sessions the store no longer
// holds fall back to the archive audit trail.
func (h *Handler) GetSessionEvents(c *gin.Context) {
	limit := DefaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	snap, err := h.pipeline.Store().Get(c.Param("id"))
	if err != nil {
		archived, aerr := h.pipeline.ArchivedEvents(c.Request.Context(), c.Param("id"), limit)
		if aerr != nil || len(archived) == 0 {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "session_not_found",
				"message": "No session with this id",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"events":   archived,
			"total":    len(archived),
			"archived": true,
		})
		return
	}

	events := snap.RecentEvents(limit)
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  len(snap.Events),
	})
}

// EndSession handles POST /v1/sessions/:id/end.
func (h *Handler) EndSession(c *gin.Context) {
	snap, err := h.pipeline.EndSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.notFoundOrEnded(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "session_ended",
		"session": snap.Summarize(),
	})
}

// FlagSession handles POST /v1/sessions/:id/flag.
func (h *Handler) FlagSession(c *gin.Context) {
	snap, err := h.pipeline.FlagSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.notFoundOrEnded(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "session_flagged",
		"session": snap.Summarize(),
	})
}

// UnflagSession handles POST /v1/sessions/:id/unflag.
func (h *Handler) UnflagSession(c *gin.Context) {
	snap, err := h.pipeline.UnflagSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.notFoundOrEnded(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "session_unflagged",
		"session": snap.Summarize(),
	})
}

func (h *Handler) notFoundOrEnded(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "session_not_found",
			"message": "No session with this id",
		})
	case errors.Is(err, session.ErrSessionEnded):
		c.JSON(http.StatusGone, gin.H{
			"error":   "session_ended",
			"message": "This session has already ended",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Operation failed",
		})
	}
}
