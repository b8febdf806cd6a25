package webhook

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stayspace/hooks/internal/middleware"
	"github.com/stayspace/hooks/internal/models"
	"github.com/stayspace/hooks/internal/pkg/response"
)

type CreateWebhookDTO struct {
	URL          string   `json:"url"          binding:"required,url"`
	EventFilters []string `json:"eventFilters" binding:"required,min=1"`
	Description  string   `json:"description"`
}

type UpdateWebhookDTO struct {
	URL          *string  `json:"url"`
	EventFilters []string `json:"eventFilters"`
	Description  *string  `json:"description"`
	IsActive     *bool    `json:"isActive"`
}

type webhookResponse struct {
	ID                  string    `json:"id"`
	URL                 string    `json:"url"`
	Secret              string    `json:"secret,omitempty"`
	EventFilters        []string  `json:"eventFilters"`
	Description         string    `json:"description"`
	IsActive            bool      `json:"isActive"`
	DisabledReason      *string   `json:"disabledReason"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	CreatedBy           string    `json:"createdBy,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// toResponse converts a model without exposing the secret. The secret is only
// attached explicitly in the create handler, the one place it may appear.
func toResponse(w *models.WebhookModel) webhookResponse {
	filters := w.EventFilters
	if filters == nil {
		filters = []string{}
	}
	return webhookResponse{
		ID:                  w.ID,
		URL:                 w.URL,
		EventFilters:        filters,
		Description:         w.Description,
		IsActive:            w.IsActive,
		DisabledReason:      w.DisabledReason,
		ConsecutiveFailures: w.ConsecutiveFailures,
		CreatedBy:           w.CreatedBy,
		CreatedAt:           w.CreatedAt,
		UpdatedAt:           w.UpdatedAt,
	}
}

// Handler exposes the admin HTTP API for webhook management.
type Handler struct {
	registry *Registry
	ledger   *Ledger
	sender   *Sender
}

func NewHandler(registry *Registry, ledger *Ledger, sender *Sender) *Handler {
	return &Handler{registry: registry, ledger: ledger, sender: sender}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, extra ...gin.HandlerFunc) {
	g := rg.Group("/webhooks", authMW)
	for _, mw := range extra {
		g.Use(mw)
	}

	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/events", h.listEventTypes)
	g.GET("/:id", h.getByID)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/test", h.test)
	g.GET("/:id/deliveries", h.listDeliveries)
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.registry.List()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]webhookResponse, len(items))
	for i := range items {
		out[i] = toResponse(&items[i])
	}
	response.OK(c, out)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateWebhookDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	w, err := h.registry.Create(CreateWebhookInput{
		URL:          dto.URL,
		EventFilters: dto.EventFilters,
		Description:  dto.Description,
		CreatedBy:    middleware.CurrentUserID(c),
	})
	if err != nil {
		if err == errEmptyEventFilters {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}

	out := toResponse(w)
	out.Secret = w.Secret
	response.Created(c, out)
}

func (h *Handler) getByID(c *gin.Context) {
	w, err := h.registry.GetByID(c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if w == nil {
		response.NotFound(c)
		return
	}
	stats, err := h.ledger.GetStats(w.ID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{
		"webhook": toResponse(w),
		"stats":   stats,
	})
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateWebhookDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	w, err := h.registry.Update(c.Param("id"), UpdateWebhookInput{
		URL:          dto.URL,
		EventFilters: dto.EventFilters,
		Description:  dto.Description,
		IsActive:     dto.IsActive,
	})
	if err != nil {
		if err == errEmptyEventFilters {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	if w == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(w))
}

func (h *Handler) delete(c *gin.Context) {
	found, err := h.registry.SoftDelete(c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if !found {
		response.NotFound(c)
		return
	}
	response.NoContent(c)
}

// test synthesizes a reservation.created delivery and runs it through the
// sender synchronously so admins can verify an endpoint end to end.
func (h *Handler) test(c *gin.Context) {
	w, err := h.registry.GetByID(c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if w == nil {
		response.NotFound(c)
		return
	}

	data, _ := json.Marshal(gin.H{
		"test":        true,
		"reservation": fakeReservation(),
	})
	payload, err := buildPayload(EventReservationCreated, time.Now(), data)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	delivery, err := h.ledger.Create(CreateDeliveryInput{
		WebhookID: w.ID,
		EventType: string(EventReservationCreated),
		Payload:   payload,
	})
	if err != nil {
		response.InternalError(c, err)
		return
	}

	outcome := h.sender.Deliver(c.Request.Context(), w, delivery)
	response.OK(c, gin.H{
		"deliveryId":   delivery.ID,
		"status":       outcome.Status,
		"responseCode": outcome.ResponseCode,
	})
}

func (h *Handler) listDeliveries(c *gin.Context) {
	w, err := h.registry.GetByID(c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if w == nil {
		response.NotFound(c)
		return
	}
	items, err := h.ledger.GetForWebhook(w.ID, defaultHistoryLimit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, items)
}

func (h *Handler) listEventTypes(c *gin.Context) {
	response.OK(c, AllEventTypes())
}

func fakeReservation() gin.H {
	now := time.Now().UTC()
	return gin.H{
		"id":        "res_test_0000",
		"guestName": "Test Guest",
		"roomType":  "double",
		"checkIn":   now.Format("2006-01-02"),
		"checkOut":  now.AddDate(0, 0, 2).Format("2006-01-02"),
		"status":    "created",
	}
}
