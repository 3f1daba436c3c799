package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"health-companion/services/chat-gateway/internal/domain/thread"
	"health-companion/services/chat-gateway/internal/interfaces/httpserver/dto"
	"health-companion/services/chat-gateway/internal/utils/platformerrors"
)

// ThreadHandler exposes HTTP entrypoints for thread metadata.
type ThreadHandler struct {
	service thread.Service
	log     zerolog.Logger
}

// NewThreadHandler constructs the handler.
func NewThreadHandler(service thread.Service, log zerolog.Logger) *ThreadHandler {
	return &ThreadHandler{
		service: service,
		log:     log.With().Str("handler", "thread").Logger(),
	}
}

// List handles GET /api/threads
// @Summary List the caller's threads
// @Tags Threads
// @Produce json
// @Param include_archived query bool false "Include archived threads"
// @Success 200 {object} dto.ThreadListResponse
// @Router /api/threads [get]
func (h *ThreadHandler) List(c *gin.Context) {
	includeArchived := c.Query("include_archived") == "true"

	threads, err := h.service.List(c.Request.Context(), userIDFrom(c), includeArchived)
	if err != nil {
		h.log.Error().Err(err).Msg("list threads failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch threads"})
		return
	}

	c.JSON(http.StatusOK, dto.ThreadListFromDomain(threads))
}

// Create handles POST /api/threads
// @Summary Create a thread explicitly
// @Tags Threads
// @Accept json
// @Produce json
// @Param request body dto.CreateThreadRequest true "Create request"
// @Success 201 {object} map[string]dto.ThreadPayload
// @Failure 409 {object} map[string]string
// @Router /api/threads [post]
func (h *ThreadHandler) Create(c *gin.Context) {
	var req dto.CreateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.service.Create(c.Request.Context(), userIDFrom(c), thread.CreateParams{
		ConversationID: req.ConversationID,
		Title:          req.Title,
	})
	if err != nil {
		if errors.Is(err, thread.ErrInvalidConversationID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Conversation ID must be alphanumeric with hyphens, max 128 characters",
				"code":  "INVALID_CONVERSATION_ID",
			})
			return
		}
		if errors.Is(err, thread.ErrConversationExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Thread with this conversation ID already exists",
				"code":  "DUPLICATE_CONVERSATION_ID",
			})
			return
		}
		h.log.Error().Err(err).Msg("create thread failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create thread"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"thread": dto.ThreadFromDomain(created)})
}

// Get handles GET /api/threads/:id
// @Summary Get a thread by ID
// @Tags Threads
// @Produce json
// @Param id path string true "Thread ID"
// @Success 200 {object} map[string]dto.ThreadPayload
// @Failure 404 {object} map[string]string
// @Router /api/threads/{id} [get]
func (h *ThreadHandler) Get(c *gin.Context) {
	found, err := h.service.Get(c.Request.Context(), userIDFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "fetch thread")
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread": dto.ThreadFromDomain(found)})
}

// Update handles PATCH /api/threads/:id
// @Summary Update thread metadata
// @Tags Threads
// @Accept json
// @Produce json
// @Param id path string true "Thread ID"
// @Param request body dto.UpdateThreadRequest true "Update request"
// @Success 200 {object} map[string]dto.ThreadPayload
// @Failure 404 {object} map[string]string
// @Router /api/threads/{id} [patch]
func (h *ThreadHandler) Update(c *gin.Context) {
	var req dto.UpdateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.service.Update(c.Request.Context(), userIDFrom(c), c.Param("id"), thread.UpdateParams{
		Title:              req.Title,
		LastMessagePreview: req.LastMessagePreview,
		Archived:           req.Archived,
	})
	if err != nil {
		h.writeError(c, err, "update thread")
		return
	}

	c.JSON(http.StatusOK, gin.H{"thread": dto.ThreadFromDomain(updated)})
}

// Archive handles POST /api/threads/:id/archive
// @Summary Archive a thread
// @Tags Threads
// @Produce json
// @Param id path string true "Thread ID"
// @Success 200 {object} map[string]dto.ThreadPayload
// @Failure 404 {object} map[string]string
// @Router /api/threads/{id}/archive [post]
func (h *ThreadHandler) Archive(c *gin.Context) {
	archived, err := h.service.Archive(c.Request.Context(), userIDFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "archive thread")
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread": dto.ThreadFromDomain(archived)})
}

// Delete handles DELETE /api/threads/:id
// @Summary Delete a thread
// @Tags Threads
// @Produce json
// @Param id path string true "Thread ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/threads/{id} [delete]
func (h *ThreadHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), userIDFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err, "delete thread")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *ThreadHandler) writeError(c *gin.Context, err error, operation string) {
	if errors.Is(err, thread.ErrThreadNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}
	h.log.Error().Err(err).Str("operation", operation).Msg("thread operation failed")
	c.JSON(platformerrors.HTTPStatus(err), gin.H{"error": "failed to " + operation})
}
