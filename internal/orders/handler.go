package orders

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enrollio/backend/internal/models"
	"github.com/enrollio/backend/pkg/response"
)

// Handler exposes the order API.
type Handler struct {
	repo    *Repository
	service *Service
	logger  *zap.Logger
}

// NewHandler creates an orders handler.
func NewHandler(repo *Repository, service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, service: service, logger: logger}
}

type lineItemRequest struct {
	Description        string `json:"description" binding:"required"`
	UnitPriceCents     int64  `json:"unit_price_cents" binding:"required"`
	Quantity           int    `json:"quantity" binding:"required,min=1"`
	DiscountCents      int64  `json:"discount_cents"`
	VATRateBasisPoints int64  `json:"vat_rate_basis_points"`
}

type registrationRequest struct {
	HolderID string `json:"holder_id" binding:"required"`
	ItemID   string `json:"item_id" binding:"required"`
	Quantity int    `json:"quantity"`
}

type createOrderRequest struct {
	TenantID      string                `json:"tenant_id" binding:"required"`
	PurchaserID   string                `json:"purchaser_id" binding:"required"`
	Kind          string                `json:"kind" binding:"required"`
	Currency      string                `json:"currency" binding:"required"`
	LineItems     []lineItemRequest     `json:"line_items" binding:"required,min=1"`
	Registrations []registrationRequest `json:"registrations" binding:"required,min=1"`
}

// Create handles POST /orders: a DRAFT order with line items and children.
func (h *Handler) Create(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		response.BadRequest(c, "invalid tenant_id")
		return
	}
	purchaserID, err := uuid.Parse(req.PurchaserID)
	if err != nil {
		response.BadRequest(c, "invalid purchaser_id")
		return
	}
	if req.Kind != models.OrderKindCoursePeriod && req.Kind != models.OrderKindEvent {
		response.BadRequest(c, "kind must be COURSE_PERIOD or EVENT")
		return
	}

	o := &models.Order{
		TenantID:    tenantID,
		PurchaserID: purchaserID,
		Kind:        req.Kind,
		Currency:    req.Currency,
	}
	items := make([]models.OrderLineItem, 0, len(req.LineItems))
	for _, it := range req.LineItems {
		items = append(items, models.OrderLineItem{
			Description:        it.Description,
			UnitPriceCents:     it.UnitPriceCents,
			Quantity:           it.Quantity,
			DiscountCents:      it.DiscountCents,
			VATRateBasisPoints: it.VATRateBasisPoints,
		})
	}

	ctx := c.Request.Context()
	if err := h.repo.CreateDraft(ctx, o, items); err != nil {
		h.logger.Error("create order", zap.Error(err))
		response.Internal(c, "failed to create order")
		return
	}

	for _, rr := range req.Registrations {
		holderID, err := uuid.Parse(rr.HolderID)
		if err != nil {
			response.BadRequest(c, "invalid holder_id")
			return
		}
		itemID, err := uuid.Parse(rr.ItemID)
		if err != nil {
			response.BadRequest(c, "invalid item_id")
			return
		}
		switch req.Kind {
		case models.OrderKindCoursePeriod:
			reg := &models.Registration{OrderID: o.ID, HolderID: holderID, TrackID: itemID}
			if err := h.repo.CreateRegistration(ctx, reg); err != nil {
				h.logger.Error("create registration", zap.Error(err), zap.String("order_id", o.ID.String()))
				response.Internal(c, "failed to create registration")
				return
			}
		case models.OrderKindEvent:
			qty := rr.Quantity
			if qty < 1 {
				qty = 1
			}
			reg := &models.EventRegistration{OrderID: o.ID, HolderID: holderID, EventID: itemID, Quantity: qty}
			if err := h.repo.CreateEventRegistration(ctx, reg); err != nil {
				h.logger.Error("create event registration", zap.Error(err), zap.String("order_id", o.ID.String()))
				response.Internal(c, "failed to create registration")
				return
			}
		}
	}
	response.Created(c, o)
}

type submitRequest struct {
	SessionRef string `json:"session_ref"`
}

// Submit handles POST /orders/:id/submit.
func (h *Handler) Submit(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	o, err := h.service.Submit(c.Request.Context(), orderID, req.SessionRef)
	if err != nil {
		h.respondTransitionError(c, orderID, err, "submit order")
		return
	}
	response.OK(c, o)
}

// Cancel handles POST /orders/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}
	o, err := h.service.Cancel(c.Request.Context(), orderID)
	if err != nil {
		h.respondTransitionError(c, orderID, err, "cancel order")
		return
	}
	response.OK(c, o)
}

// Refund handles POST /orders/:id/refund (operator action).
func (h *Handler) Refund(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}
	o, err := h.service.Refund(c.Request.Context(), orderID)
	if err != nil {
		h.respondTransitionError(c, orderID, err, "refund order")
		return
	}
	response.OK(c, o)
}

// Get handles GET /orders/:id including children and line items.
func (h *Handler) Get(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}
	ctx := c.Request.Context()
	o, err := h.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "order not found")
			return
		}
		h.logger.Error("get order", zap.Error(err))
		response.Internal(c, "failed to load order")
		return
	}
	items, err := h.repo.ListLineItems(ctx, orderID)
	if err != nil {
		h.logger.Error("list line items", zap.Error(err))
		response.Internal(c, "failed to load order")
		return
	}

	body := gin.H{"order": o, "line_items": items}
	switch o.Kind {
	case models.OrderKindCoursePeriod:
		regs, err := h.repo.ListRegistrations(ctx, orderID)
		if err != nil {
			h.logger.Error("list registrations", zap.Error(err))
			response.Internal(c, "failed to load order")
			return
		}
		body["registrations"] = regs
	case models.OrderKindEvent:
		regs, err := h.repo.ListEventRegistrations(ctx, orderID)
		if err != nil {
			h.logger.Error("list event registrations", zap.Error(err))
			response.Internal(c, "failed to load order")
			return
		}
		body["registrations"] = regs
	}
	response.OK(c, body)
}

func (h *Handler) respondTransitionError(c *gin.Context, orderID uuid.UUID, err error, op string) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "order not found")
	case errors.Is(err, ErrInvalidTransition):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error(op, zap.Error(err), zap.String("order_id", orderID.String()))
		response.Internal(c, "failed to "+op)
	}
}
