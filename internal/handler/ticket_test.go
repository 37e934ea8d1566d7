package handler

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/helpdesk-micro/tracker-service/internal/dispatch"
	"github.com/helpdesk-micro/tracker-service/internal/kafka"
	"github.com/helpdesk-micro/tracker-service/internal/logger"
	"github.com/helpdesk-micro/tracker-service/internal/model"
	"github.com/helpdesk-micro/tracker-service/internal/queue"
	"github.com/helpdesk-micro/tracker-service/internal/router"
	"github.com/helpdesk-micro/tracker-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	svc      *service.TicketService
	enqueued *queue.Queue
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Ticket{}))

	log := logger.NewNop()
	svc := service.NewTicketService(db)
	// Workers are not started: enqueued jobs just sit in the buffer, which is
	// enough to assert the acknowledgement path.
	q := queue.New(64, func(context.Context, string) {}, log)
	d := dispatch.New(svc, q, log)
	events := kafka.NewProducer(nil, "", log)

	h := NewTicketHandler(svc, d, events, log)
	return &testEnv{svc: svc, enqueued: q, handler: router.New(h)}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestCreateTicket(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/tickets", `{"subject":"App crashes on submit","body":"stack trace attached"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var got model.Ticket
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got.ID, 26)
	assert.Equal(t, model.TicketStatusNew, got.Status)
	assert.Nil(t, got.Category)
}

func TestCreateTicketValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/tickets", `{"body":"no subject"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/tickets", `{"subject":"s","body":"b","category":"Nonsense"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	long := strings.Repeat("x", 201)
	w = env.do(t, http.MethodPost, "/api/tickets", `{"subject":"`+long+`","body":"b"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTicket(t *testing.T) {
	env := newTestEnv(t)
	ticket := &model.Ticket{Subject: "s", Body: "b"}
	require.NoError(t, env.svc.Create(context.Background(), ticket))

	w := env.do(t, http.MethodGet, "/api/tickets/"+ticket.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/tickets/01ZZZZZZZZZZZZZZZZZZZZZZZZ", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTicketsMeta(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		require.NoError(t, env.svc.Create(ctx, &model.Ticket{Subject: fmt.Sprintf("t-%d", i), Body: "b"}))
	}

	w := env.do(t, http.MethodGet, "/api/tickets?per_page=5&page=2", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []model.Ticket `json:"data"`
		Meta struct {
			CurrentPage int   `json:"current_page"`
			LastPage    int   `json:"last_page"`
			PerPage     int   `json:"per_page"`
			Total       int64 `json:"total"`
			From        *int  `json:"from"`
			To          *int  `json:"to"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 5)
	assert.Equal(t, 2, resp.Meta.CurrentPage)
	assert.Equal(t, 3, resp.Meta.LastPage)
	assert.EqualValues(t, 12, resp.Meta.Total)
	require.NotNil(t, resp.Meta.From)
	assert.Equal(t, 6, *resp.Meta.From)
	require.NotNil(t, resp.Meta.To)
	assert.Equal(t, 10, *resp.Meta.To)
}

func TestUpdateTicketOverrideMarker(t *testing.T) {
	env := newTestEnv(t)
	ticket := &model.Ticket{Subject: "s", Body: "b"}
	require.NoError(t, env.svc.Create(context.Background(), ticket))

	w := env.do(t, http.MethodPatch, "/api/tickets/"+ticket.ID, `{"category":"Technical","status":"open"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var got model.Ticket
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.NotNil(t, got.Category)
	assert.Equal(t, "Technical", *got.Category)
	assert.Equal(t, model.TicketStatusOpen, got.Status)
	assert.NotNil(t, got.ManualCategoryAt)

	// Explicit null clears category and the marker.
	w = env.do(t, http.MethodPatch, "/api/tickets/"+ticket.ID, `{"category":null}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Nil(t, got.Category)
	assert.Nil(t, got.ManualCategoryAt)
}

func TestUpdateTicketErrors(t *testing.T) {
	env := newTestEnv(t)
	ticket := &model.Ticket{Subject: "s", Body: "b"}
	require.NoError(t, env.svc.Create(context.Background(), ticket))

	w := env.do(t, http.MethodPatch, "/api/tickets/"+ticket.ID, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/api/tickets/"+ticket.ID, `{"status":"archived"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodPatch, "/api/tickets/01ZZZZZZZZZZZZZZZZZZZZZZZZ", `{"status":"open"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClassifyAccepted(t *testing.T) {
	env := newTestEnv(t)
	ticket := &model.Ticket{Subject: "s", Body: "b"}
	require.NoError(t, env.svc.Create(context.Background(), ticket))

	w := env.do(t, http.MethodPost, "/api/tickets/"+ticket.ID+"/classify", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"queued":true,"ticket":%q}`, ticket.ID), w.Body.String())

	w = env.do(t, http.MethodPost, "/api/tickets/01ZZZZZZZZZZZZZZZZZZZZZZZZ/classify", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conf := 0.91
	expl := "mentions refund"
	billing := model.CategoryBilling
	require.NoError(t, env.svc.Create(ctx, &model.Ticket{
		Subject: "Refund request", Body: "b", Category: &billing,
		Explanation: &expl, Confidence: &conf,
	}))
	require.NoError(t, env.svc.Create(ctx, &model.Ticket{Subject: "Other ticket", Body: "b"}))

	w := env.do(t, http.MethodGet, "/api/tickets/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")

	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus two tickets")
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "confidence", rows[0][7])

	var refund []string
	for _, row := range rows[1:] {
		if row[1] == "Refund request" {
			refund = row
		}
	}
	require.NotNil(t, refund)
	assert.Equal(t, "Billing", refund[4])
	assert.Equal(t, "0.91", refund[7])
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.svc.Create(ctx, &model.Ticket{Subject: "a", Body: "b"}))
	require.NoError(t, env.svc.Create(ctx, &model.Ticket{Subject: "c", Body: "d", Status: model.TicketStatusClosed}))

	w := env.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status   map[string]int64 `json:"status"`
		Category map[string]int64 `json:"category"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp.Status["new"])
	assert.EqualValues(t, 1, resp.Status["closed"])
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/ready", "").Code)
}
