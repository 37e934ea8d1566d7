package handler

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/helpdesk-micro/tracker-service/internal/dispatch"
	"github.com/helpdesk-micro/tracker-service/internal/errs"
	"github.com/helpdesk-micro/tracker-service/internal/kafka"
	"github.com/helpdesk-micro/tracker-service/internal/logger"
	"github.com/helpdesk-micro/tracker-service/internal/model"
	"github.com/helpdesk-micro/tracker-service/internal/service"
)

const exportPageSize = 500

type TicketHandler struct {
	svc        *service.TicketService
	dispatcher *dispatch.Dispatcher
	events     *kafka.Producer
	log        *logger.Logger
}

func NewTicketHandler(svc *service.TicketService, dispatcher *dispatch.Dispatcher, events *kafka.Producer, log *logger.Logger) *TicketHandler {
	return &TicketHandler{svc: svc, dispatcher: dispatcher, events: events, log: log.With("component", "handler")}
}

type createTicketRequest struct {
	Subject  string  `json:"subject" binding:"required,max=200"`
	Body     string  `json:"body" binding:"required"`
	Category *string `json:"category" binding:"omitempty,oneof=Billing Technical Account Other"`
}

func (h *TicketHandler) Create(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	ticket := &model.Ticket{
		Subject:  req.Subject,
		Body:     req.Body,
		Status:   model.TicketStatusNew,
		Category: req.Category,
	}
	if err := h.svc.Create(c.Request.Context(), ticket); err != nil {
		h.log.Error("create ticket", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create ticket"})
		return
	}
	h.events.ProduceTicketEventAsync(kafka.EventTicketCreated, kafka.TicketPayload(ticket))
	h.dispatcher.Single(ticket.ID)
	c.JSON(http.StatusCreated, ticket)
}

func (h *TicketHandler) Get(c *gin.Context) {
	t, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load ticket"})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) List(c *gin.Context) {
	filter := service.ListFilter{
		Query:    c.Query("q"),
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Page:     queryInt(c, "page", 1),
		PerPage:  queryInt(c, "per_page", 10),
	}
	items, total, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		h.log.Error("list tickets", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
		return
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 10
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	lastPage := int((total + int64(perPage) - 1) / int64(perPage))
	if lastPage < 1 {
		lastPage = 1
	}
	var from, to interface{}
	if len(items) > 0 {
		offset := (page - 1) * perPage
		from = offset + 1
		to = offset + len(items)
	}
	c.JSON(http.StatusOK, gin.H{
		"data": items,
		"meta": gin.H{
			"current_page": page,
			"last_page":    lastPage,
			"per_page":     perPage,
			"total":        total,
			"from":         from,
			"to":           to,
		},
	})
}

// optionalString distinguishes an absent JSON field from an explicit null,
// which matters for category: null clears both category and the override
// marker.
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

type updateTicketRequest struct {
	Status   *string        `json:"status"`
	Category optionalString `json:"category"`
	Note     optionalString `json:"note"`
}

func (h *TicketHandler) Update(c *gin.Context) {
	var req updateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	fields := service.UpdateFields{
		CategoryProvided: req.Category.Set,
		Category:         req.Category.Value,
		NoteProvided:     req.Note.Set,
		Note:             req.Note.Value,
	}
	if req.Status != nil {
		st := model.TicketStatus(*req.Status)
		fields.Status = &st
	}
	if fields.Status == nil && !fields.CategoryProvided && !fields.NoteProvided {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no changes"})
		return
	}

	t, err := h.svc.Update(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrTicketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		case errors.Is(err, errs.ErrInvalidStatus), errors.Is(err, errs.ErrInvalidCategory):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			h.log.Error("update ticket", "ticket_id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update ticket"})
		}
		return
	}
	h.events.ProduceTicketEventAsync(kafka.EventTicketUpdated, kafka.TicketPayload(t))
	c.JSON(http.StatusOK, t)
}

// Classify accepts a ticket for asynchronous classification. The caller only
// gets an acknowledgement; the outcome lands on the ticket record later.
func (h *TicketHandler) Classify(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.svc.GetByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load ticket"})
		return
	}
	if !h.dispatcher.Single(id) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "classification queue is full"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true, "ticket": id})
}

func (h *TicketHandler) Export(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="tickets.csv"`)

	w := csv.NewWriter(c.Writer)
	header := []string{"id", "subject", "body", "status", "category", "note",
		"explanation", "confidence", "manual_category_at", "classified_at", "created_at", "updated_at"}
	if err := w.Write(header); err != nil {
		return
	}

	for offset := 0; ; offset += exportPageSize {
		items, err := h.svc.Page(c.Request.Context(), offset, exportPageSize)
		if err != nil {
			h.log.Error("export tickets", "offset", offset, "error", err)
			return
		}
		for i := range items {
			if err := w.Write(csvRow(&items[i])); err != nil {
				return
			}
		}
		w.Flush()
		if len(items) < exportPageSize {
			break
		}
	}
}

func csvRow(t *model.Ticket) []string {
	str := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	conf := ""
	if t.Confidence != nil {
		conf = strconv.FormatFloat(*t.Confidence, 'f', 2, 64)
	}
	manualAt := ""
	if t.ManualCategoryAt != nil {
		manualAt = t.ManualCategoryAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	classifiedAt := ""
	if t.ClassifiedAt != nil {
		classifiedAt = t.ClassifiedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return []string{
		t.ID, t.Subject, t.Body, string(t.Status), str(t.Category), str(t.Note),
		str(t.Explanation), conf, manualAt, classifiedAt,
		t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		t.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func (h *TicketHandler) Stats(c *gin.Context) {
	byStatus, byCategory, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.log.Error("stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": byStatus, "category": byCategory})
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}
