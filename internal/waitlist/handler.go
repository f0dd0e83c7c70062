package waitlist

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enrollio/backend/internal/models"
	"github.com/enrollio/backend/pkg/response"
)

// Handler exposes the waitlist API.
type Handler struct {
	manager *Manager
	logger  *zap.Logger
}

// NewHandler creates a waitlist handler.
func NewHandler(manager *Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, logger: logger}
}

type joinRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	ItemKind string `json:"item_kind" binding:"required"`
	ItemID   string `json:"item_id" binding:"required"`
	HolderID string `json:"holder_id" binding:"required"`
}

// Join handles POST /waitlist.
func (h *Handler) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		response.BadRequest(c, "invalid tenant_id")
		return
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		response.BadRequest(c, "invalid item_id")
		return
	}
	holderID, err := uuid.Parse(req.HolderID)
	if err != nil {
		response.BadRequest(c, "invalid holder_id")
		return
	}
	if req.ItemKind != models.ItemKindCourseTrack && req.ItemKind != models.ItemKindEvent {
		response.BadRequest(c, "invalid item_kind")
		return
	}

	item := models.ItemRef{TenantID: tenantID, Kind: req.ItemKind, ItemID: itemID}
	entry, err := h.manager.Join(c.Request.Context(), item, holderID)
	if err != nil {
		if errors.Is(err, ErrAlreadyQueued) {
			response.Conflict(c, "holder already on waitlist")
			return
		}
		h.logger.Error("waitlist join", zap.Error(err))
		response.Internal(c, "failed to join waitlist")
		return
	}
	response.Created(c, entry)
}

// Accept handles POST /waitlist/:id/accept and returns the new order id.
func (h *Handler) Accept(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid entry id")
		return
	}
	orderID, err := h.manager.AcceptOffer(c.Request.Context(), entryID)
	if err != nil {
		switch {
		case errors.Is(err, ErrEntryNotFound):
			response.NotFound(c, "waitlist entry not found")
		case errors.Is(err, ErrOfferExpired):
			response.Conflict(c, "offer expired")
		case errors.Is(err, ErrNotOffered):
			response.Conflict(c, "no outstanding offer for this entry")
		default:
			h.logger.Error("accept offer", zap.Error(err), zap.String("entry_id", entryID.String()))
			response.Internal(c, "failed to accept offer")
		}
		return
	}
	response.OK(c, gin.H{"order_id": orderID})
}

// Decline handles POST /waitlist/:id/decline.
func (h *Handler) Decline(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid entry id")
		return
	}
	if err := h.manager.DeclineOffer(c.Request.Context(), entryID); err != nil {
		switch {
		case errors.Is(err, ErrEntryNotFound):
			response.NotFound(c, "waitlist entry not found")
		case errors.Is(err, ErrNotOffered):
			response.Conflict(c, "no outstanding offer for this entry")
		default:
			h.logger.Error("decline offer", zap.Error(err), zap.String("entry_id", entryID.String()))
			response.Internal(c, "failed to decline offer")
		}
		return
	}
	response.OK(c, gin.H{"entry_id": entryID, "status": models.WaitlistStatusDeclined})
}
