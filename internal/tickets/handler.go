package tickets

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enrollio/backend/internal/models"
	"github.com/enrollio/backend/pkg/response"
)

// Handler exposes ticket lookup and void endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a tickets handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// Scan handles GET /tickets/scan/:token: resolves a scanned QR token to a
// ticket of either kind and reports whether it is still valid.
func (h *Handler) Scan(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		response.BadRequest(c, "missing token")
		return
	}
	ctx := c.Request.Context()

	t, err := h.repo.FindByQRToken(ctx, token)
	if err == nil {
		response.OK(c, gin.H{
			"kind":   "course",
			"ticket": t,
			"valid":  t.Status == models.TicketStatusActive,
		})
		return
	}
	if !errors.Is(err, ErrNotFound) {
		h.logger.Error("scan lookup", zap.Error(err))
		response.Internal(c, "failed to resolve ticket")
		return
	}

	et, err := h.repo.FindEventByQRToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "ticket not found")
			return
		}
		h.logger.Error("scan lookup", zap.Error(err))
		response.Internal(c, "failed to resolve ticket")
		return
	}
	response.OK(c, gin.H{
		"kind":   "event",
		"ticket": et,
		"valid":  et.Status == models.TicketStatusActive,
	})
}

// Void handles POST /tickets/:id/void (operator action).
func (h *Handler) Void(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid ticket id")
		return
	}
	ctx := c.Request.Context()
	err = h.repo.VoidCourseTicket(ctx, id)
	if errors.Is(err, ErrNotFound) {
		err = h.repo.VoidEventTicket(ctx, id)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "ticket not found")
			return
		}
		h.logger.Error("void ticket", zap.Error(err), zap.String("ticket_id", id.String()))
		response.Internal(c, "failed to void ticket")
		return
	}
	response.OK(c, gin.H{"voided": true})
}
