package slot

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/slot-booking/internal/handler"
	"github.com/jwalitptl/slot-booking/internal/middleware"
	"github.com/jwalitptl/slot-booking/internal/model"
	"github.com/jwalitptl/slot-booking/internal/service/admin"
	"github.com/jwalitptl/slot-booking/internal/service/booking"
	apperrors "github.com/jwalitptl/slot-booking/pkg/errors"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// Reader is the read side of the slot store.
type Reader interface {
	Get(ctx context.Context, id string) (*model.Slot, error)
	List(ctx context.Context, filter model.SlotFilter) ([]*model.Slot, error)
}

// LinkBuilder renders the WhatsApp handoff URL for a confirmation.
type LinkBuilder interface {
	WhatsAppLink(conf model.Confirmation) string
}

type Handler struct {
	slots   Reader
	admin   *admin.Service
	booking *booking.Service
	links   LinkBuilder
}

func NewHandler(slots Reader, adminSvc *admin.Service, bookingSvc *booking.Service, links LinkBuilder) *Handler {
	return &Handler{
		slots:   slots,
		admin:   adminSvc,
		booking: bookingSvc,
		links:   links,
	}
}

// RegisterRoutes mounts the public routes on public and the admin routes on
// admin, which the caller has already put behind authentication. Reads on
// public only show patron data when an identifying middleware has attached
// admin claims. claim holds
// extra middleware for the claim route, typically the rate limiter.
func (h *Handler) RegisterRoutes(public, admin *gin.RouterGroup, claim ...gin.HandlerFunc) {
	slots := public.Group("/slots")
	{
		slots.GET("", h.ListSlots)
		slots.GET("/:id", h.GetSlot)
		slots.POST("/:id/claim", append(claim, h.ClaimSlot)...)
	}

	managed := admin.Group("/slots")
	{
		managed.POST("", h.CreateSlots)
		managed.POST("/recurring", h.CreateRecurring)
		managed.POST("/clear", h.ClearSlots)
		managed.POST("/cleanup", h.Cleanup)
		managed.DELETE("/:id", h.DeleteSlot)
	}
}

type claimResponse struct {
	ReferenceID string      `json:"reference_id"`
	Slot        *model.Slot `json:"slot"`
	WhatsAppURL string      `json:"whatsapp_url"`
	Replayed    bool        `json:"replayed,omitempty"`
}

type batchResponse struct {
	Slots []*model.Slot `json:"slots"`
	Count int           `json:"count"`
}

// ListSlots returns a bare JSON array, empty rather than null.
func (h *Handler) ListSlots(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		handler.Error(c, err)
		return
	}

	slots, err := h.slots.List(c.Request.Context(), filter)
	if err != nil {
		handler.Error(c, err)
		return
	}
	if slots == nil {
		slots = []*model.Slot{}
	}
	if !isAdmin(c) {
		for i, s := range slots {
			slots[i] = s.Public()
		}
	}
	c.JSON(http.StatusOK, slots)
}

// isAdmin reports whether an earlier middleware identified the admin.
func isAdmin(c *gin.Context) bool {
	_, ok := middleware.AdminClaims(c)
	return ok
}

func parseFilter(c *gin.Context) (model.SlotFilter, error) {
	var filter model.SlotFilter

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		filter.Status = model.SlotStatus(strings.ToLower(status))
		if !filter.Status.Valid() {
			return filter, apperrors.Validationf("unknown status %q", status)
		}
	}

	var err error
	if filter.From, err = parseTime(c.Query("from"), "from"); err != nil {
		return filter, err
	}
	if filter.To, err = parseTime(c.Query("to"), "to"); err != nil {
		return filter, err
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return filter, apperrors.Validation("from must be before to")
	}
	return filter, nil
}

func parseTime(value, name string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, apperrors.Validationf("%s must be an RFC3339 timestamp", name)
	}
	return t.UTC(), nil
}

func (h *Handler) GetSlot(c *gin.Context) {
	slot, err := h.slots.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.Error(c, err)
		return
	}
	if !isAdmin(c) {
		slot = slot.Public()
	}
	c.JSON(http.StatusOK, slot)
}

func (h *Handler) ClaimSlot(c *gin.Context) {
	var patron model.Patron
	if err := c.ShouldBindJSON(&patron); err != nil {
		handler.Error(c, handler.BindError(err))
		return
	}

	conf, err := h.booking.AttemptClaim(c.Request.Context(), c.Param("id"), patron, c.GetHeader(HeaderIdempotencyKey))
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, claimResponse{
		ReferenceID: conf.ReferenceID,
		Slot:        conf.Slot,
		WhatsAppURL: h.links.WhatsAppLink(*conf),
		Replayed:    conf.Replayed,
	})
}

// CreateSlots accepts either {start, end} or {slots: [...]}.
func (h *Handler) CreateSlots(c *gin.Context) {
	var req model.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, handler.BindError(err))
		return
	}

	if req.Slots != nil {
		if req.Start != nil || req.End != nil {
			handler.Error(c, apperrors.Validation("send either start/end or slots, not both"))
			return
		}
		slots, err := h.admin.CreateBatch(c.Request.Context(), req.Slots)
		if err != nil {
			handler.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, batchResponse{Slots: slots, Count: len(slots)})
		return
	}

	if req.Start == nil {
		handler.Error(c, apperrors.Validation("start is required"))
		return
	}
	slot, err := h.admin.CreateSingle(c.Request.Context(), *req.Start, req.End)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, slot)
}

func (h *Handler) CreateRecurring(c *gin.Context) {
	var req model.RecurringSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, handler.BindError(err))
		return
	}

	slots, err := h.admin.CreateRecurring(c.Request.Context(), req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, batchResponse{Slots: slots, Count: len(slots)})
}

func (h *Handler) DeleteSlot(c *gin.Context) {
	if err := h.admin.DeleteSlot(c.Request.Context(), c.Param("id")); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) ClearSlots(c *gin.Context) {
	var req model.ClearSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, handler.BindError(err))
		return
	}
	c.JSON(http.StatusOK, h.admin.ClearVisibleRange(c.Request.Context(), req.IDs))
}

func (h *Handler) Cleanup(c *gin.Context) {
	removed, err := h.admin.PurgePast(c.Request.Context())
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
