package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Mino1214/juncom-server/internal/cache"
	"github.com/Mino1214/juncom-server/internal/domain"
	"github.com/Mino1214/juncom-server/internal/event"
	"github.com/Mino1214/juncom-server/internal/queue"
	"github.com/Mino1214/juncom-server/internal/repository"
	"github.com/Mino1214/juncom-server/internal/service"
	"github.com/Mino1214/juncom-server/pkg/database"
	apperrors "github.com/Mino1214/juncom-server/pkg/errors"
	"github.com/Mino1214/juncom-server/pkg/httputil"
	pkgkafka "github.com/Mino1214/juncom-server/pkg/kafka"
)

// --- Mock OrderRepository ---

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

// --- Mock Queue ---

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Enqueue(ctx context.Context, kind string, payload any, opts ...queue.Option) (string, error) {
	args := m.Called(ctx, kind, payload)
	return args.String(0), args.Error(1)
}

func (m *mockQueue) GetJob(ctx context.Context, id string) (*queue.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queue.Job), args.Error(1)
}

// --- Test Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEventProducer() *event.Producer {
	logger := testLogger()
	// Kafka publishes fail silently in tests (no real broker).
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	return event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)
}

func testRedisClient(t *testing.T) *goredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

type orderHandlerFixture struct {
	router http.Handler
	pool   pgxmock.PgxPoolIface
	orders *mockOrderRepository
	queue  *mockQueue
}

func newOrderHandlerFixture(t *testing.T) *orderHandlerFixture {
	t.Helper()
	pool, err := database.NewMockPool()
	require.NoError(t, err)

	orders := new(mockOrderRepository)
	q := new(mockQueue)
	stockCache := cache.NewStockCache(testRedisClient(t), 5*time.Second)

	svc := service.NewOrderService(pool, orders, q, stockCache, testEventProducer(), testLogger(), 60*time.Second)
	handler := NewOrderHandler(svc, testLogger())

	r := chi.NewRouter()
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Post("/", handler.CreateOrder)
		r.Get("/", handler.ListOrders)
		r.Get("/{id}", handler.GetOrder)
	})
	r.Get("/api/jobs/{id}", handler.GetJob)

	return &orderHandlerFixture{router: r, pool: pool, orders: orders, queue: q}
}

// decodeResponse reads the response body into the httputil.Response struct.
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	return resp
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func putJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// sampleOrder returns a realistic order for use in test expectations.
func sampleOrder() *domain.Order {
	now := time.Now().UTC()
	return &domain.Order{
		ID:          "ORD-1700000000000-a1b2c3d4",
		EmployeeID:  "E12345",
		UserName:    "Kim Minsoo",
		UserEmail:   "minsoo.kim@example.com",
		UserPhone:   "010-1234-5678",
		ProductID:   "prod-001",
		ProductName: "Mechanical Keyboard",
		Amount:      49000,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
	}
}

func validCreateOrderRequest() CreateOrderRequest {
	return CreateOrderRequest{
		EmployeeID: "E12345",
		UserName:   "Kim Minsoo",
		UserEmail:  "minsoo.kim@example.com",
		UserPhone:  "010-1234-5678",
		ProductID:  "prod-001",
	}
}

// ============================================================================
// POST /api/orders - CreateOrder
// ============================================================================

func TestCreateOrder_Accepted(t *testing.T) {
	f := newOrderHandlerFixture(t)

	f.queue.On("Enqueue", mock.Anything, queue.KindCreateOrder, mock.MatchedBy(func(in service.CreateOrderInput) bool {
		return in.ProductID == "prod-001" && in.EmployeeID == "E12345"
	})).Return("3f0a7e9c-1a34-4a4e-9e4f-2b1d3c5e7a90", nil)

	rec := postJSON(t, f.router, "/api/orders", validCreateOrderRequest())

	assert.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "3f0a7e9c-1a34-4a4e-9e4f-2b1d3c5e7a90", data["job_id"])
	assert.Equal(t, "queued", data["status"])

	f.queue.AssertExpectations(t)
}

func TestCreateOrder_GuestDefault(t *testing.T) {
	f := newOrderHandlerFixture(t)

	f.queue.On("Enqueue", mock.Anything, queue.KindCreateOrder, mock.MatchedBy(func(in service.CreateOrderInput) bool {
		return in.EmployeeID == domain.GuestEmployeeID
	})).Return("job-001", nil)

	req := validCreateOrderRequest()
	req.EmployeeID = ""
	rec := postJSON(t, f.router, "/api/orders", req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	f.queue.AssertExpectations(t)
}

func TestCreateOrder_InvalidJSON(t *testing.T) {
	f := newOrderHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader([]byte(`{invalid json`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "invalid request body")
}

func TestCreateOrder_MissingProductID(t *testing.T) {
	f := newOrderHandlerFixture(t)

	req := validCreateOrderRequest()
	req.ProductID = ""
	rec := postJSON(t, f.router, "/api/orders", req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.NotNil(t, resp.Error.Fields)

	f.queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrder_InvalidEmail(t *testing.T) {
	f := newOrderHandlerFixture(t)

	req := validCreateOrderRequest()
	req.UserEmail = "not-an-email"
	rec := postJSON(t, f.router, "/api/orders", req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestCreateOrder_QueueError(t *testing.T) {
	f := newOrderHandlerFixture(t)

	f.queue.On("Enqueue", mock.Anything, queue.KindCreateOrder, mock.Anything).
		Return("", assert.AnError)

	rec := postJSON(t, f.router, "/api/orders", validCreateOrderRequest())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)

	f.queue.AssertExpectations(t)
}

func TestCreateOrder_RejectsXML(t *testing.T) {
	f := newOrderHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader([]byte(`<xml/>`)))
	req.Header.Set("Content-Type", "application/xml")
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// ============================================================================
// GET /api/orders and GET /api/orders/{id}
// ============================================================================

func TestGetOrder_Success(t *testing.T) {
	f := newOrderHandlerFixture(t)

	order := sampleOrder()
	f.orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+order.ID, nil)
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, order.ID, data["id"])
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, float64(49000), data["amount"])

	f.orders.AssertExpectations(t)
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newOrderHandlerFixture(t)

	orderID := "ORD-1700000000000-deadbeef"
	f.orders.On("GetByID", mock.Anything, orderID).
		Return(nil, apperrors.NotFound("order", orderID))

	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+orderID, nil)
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)

	f.orders.AssertExpectations(t)
}

func TestListOrders_Success(t *testing.T) {
	f := newOrderHandlerFixture(t)

	expectedFilter := repository.OrderFilter{Page: 1, PerPage: 20}
	f.orders.On("List", mock.Anything, expectedFilter).
		Return([]domain.Order{*sampleOrder()}, 1, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var paginatedResp struct {
		Data       []map[string]interface{} `json:"data"`
		TotalCount int                      `json:"total_count"`
		Page       int                      `json:"page"`
		PerPage    int                      `json:"per_page"`
		HasNext    bool                     `json:"has_next"`
	}
	err := json.NewDecoder(rec.Body).Decode(&paginatedResp)
	require.NoError(t, err)
	assert.Equal(t, 1, paginatedResp.TotalCount)
	assert.Len(t, paginatedResp.Data, 1)
	assert.False(t, paginatedResp.HasNext)

	f.orders.AssertExpectations(t)
}

func TestListOrders_FilterByEmployeeAndStatus(t *testing.T) {
	f := newOrderHandlerFixture(t)

	employeeID := "E12345"
	status := "paid"
	expectedFilter := repository.OrderFilter{
		Page:       1,
		PerPage:    20,
		EmployeeID: &employeeID,
		Status:     &status,
	}
	f.orders.On("List", mock.Anything, expectedFilter).
		Return([]domain.Order{}, 0, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/orders?employee_id=E12345&status=paid", nil)
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	f.orders.AssertExpectations(t)
}

func TestListOrders_InvalidPage(t *testing.T) {
	f := newOrderHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/orders?page=abc", nil)
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "page")
}

func TestListOrders_UnknownStatusRejected(t *testing.T) {
	f := newOrderHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/orders?status=shipped", nil)
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "status")
	f.orders.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestListOrders_PerPageTooLarge(t *testing.T) {
	f := newOrderHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/orders?per_page=101", nil)
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
}

// ============================================================================
// GET /api/jobs/{id} - GetJob
// ============================================================================

func TestGetJob_Success(t *testing.T) {
	f := newOrderHandlerFixture(t)

	jobID := "3f0a7e9c-1a34-4a4e-9e4f-2b1d3c5e7a90"
	job := &queue.Job{
		ID:          jobID,
		Kind:        queue.KindCreateOrder,
		Status:      queue.JobStatusDone,
		Attempts:    1,
		MaxAttempts: 5,
		Result:      json.RawMessage(`{"order_id":"ORD-1700000000000-a1b2c3d4","status":"pending"}`),
	}
	f.queue.On("GetJob", mock.Anything, jobID).Return(job, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID, nil)
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, jobID, data["id"])
	assert.Equal(t, "done", data["status"])

	result, ok := data["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ORD-1700000000000-a1b2c3d4", result["order_id"])

	f.queue.AssertExpectations(t)
}

func TestGetJob_InvalidUUID(t *testing.T) {
	f := newOrderHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-uuid", nil)
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "invalid UUID")
}

func TestGetJob_NotFound(t *testing.T) {
	f := newOrderHandlerFixture(t)

	jobID := "3f0a7e9c-1a34-4a4e-9e4f-2b1d3c5e7a91"
	f.queue.On("GetJob", mock.Anything, jobID).
		Return(nil, apperrors.NotFound("job", jobID))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID, nil)
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)

	f.queue.AssertExpectations(t)
}
