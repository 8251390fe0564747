package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Mino1214/juncom-server/internal/cache"
	"github.com/Mino1214/juncom-server/internal/domain"
	"github.com/Mino1214/juncom-server/internal/gateway"
	"github.com/Mino1214/juncom-server/internal/service"
	"github.com/Mino1214/juncom-server/pkg/database"
)

type mockPaymentCanceler struct {
	mock.Mock
}

func (m *mockPaymentCanceler) GetResult(ctx context.Context, tid string) (*gateway.PaymentResult, error) {
	args := m.Called(ctx, tid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PaymentResult), args.Error(1)
}

func (m *mockPaymentCanceler) Cancel(ctx context.Context, tid, reason string, amount int64) (*gateway.PaymentResult, error) {
	args := m.Called(ctx, tid, reason, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PaymentResult), args.Error(1)
}

type paymentHandlerFixture struct {
	router  http.Handler
	pool    pgxmock.PgxPoolIface
	orders  *mockOrderRepository
	gateway *mockPaymentCanceler
}

func newPaymentHandlerFixture(t *testing.T) *paymentHandlerFixture {
	t.Helper()
	pool, err := database.NewMockPool()
	require.NoError(t, err)

	orders := new(mockOrderRepository)
	q := new(mockQueue)
	gw := new(mockPaymentCanceler)
	stockCache := cache.NewStockCache(testRedisClient(t), 5*time.Second)

	svc := service.NewOrderService(pool, orders, q, stockCache, testEventProducer(), testLogger(), 60*time.Second)
	payments := service.NewPaymentService(svc, gw, testLogger())
	handler := NewPaymentHandler(svc, payments, testLogger())

	r := chi.NewRouter()
	r.Post("/api/payment/webhook", handler.Webhook)
	r.With(ContentTypeJSON).Post("/api/payment/cancel", handler.Cancel)

	return &paymentHandlerFixture{router: r, pool: pool, orders: orders, gateway: gw}
}

func postWebhook(router http.Handler, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func expectWebhookOrderLock(pool pgxmock.PgxPoolIface, orderID, status, productID string, amount int64) {
	pool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	pool.ExpectQuery("SELECT status, product_id, amount").
		WithArgs(orderID).
		WillReturnRows(pgxmock.NewRows([]string{"status", "product_id", "amount"}).
			AddRow(status, productID, amount))
}

func TestWebhook_RegistrationProbe(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	rec := postWebhook(f.router, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestWebhook_EmptyObjectProbe(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	rec := postWebhook(f.router, []byte(`{}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestWebhook_PaidNotification(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	expectWebhookOrderLock(f.pool, "ORD-1700000000000-a1b2c3d4", domain.OrderStatusPending, "prod-001", 49000)
	f.pool.ExpectExec("UPDATE orders").
		WithArgs(domain.OrderStatusPaid, "TID-9000", "ORD-1700000000000-a1b2c3d4").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.pool.ExpectCommit()

	body := []byte(`{
		"resultCode": "0000",
		"resultMsg": "success",
		"tid": "TID-9000",
		"orderId": "ORD-1700000000000-a1b2c3d4",
		"amount": 49000,
		"status": "paid",
		"payMethod": "card"
	}`)
	rec := postWebhook(f.router, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestWebhook_CancelledNotificationRestoresStock(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	expectWebhookOrderLock(f.pool, "ORD-1700000000000-a1b2c3d4", domain.OrderStatusPending, "prod-001", 49000)
	f.pool.ExpectExec("UPDATE orders").
		WithArgs(domain.OrderStatusCanceled, service.CancelReasonGateway, "ORD-1700000000000-a1b2c3d4").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.pool.ExpectExec("UPDATE products").
		WithArgs("prod-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.pool.ExpectCommit()

	body := []byte(`{
		"tid": "TID-9000",
		"orderId": "ORD-1700000000000-a1b2c3d4",
		"amount": 49000,
		"status": "cancelled"
	}`)
	rec := postWebhook(f.router, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestWebhook_UnknownStatusIsIgnored(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	body := []byte(`{
		"tid": "TID-9000",
		"orderId": "ORD-1700000000000-a1b2c3d4",
		"status": "vbank_ready"
	}`)
	rec := postWebhook(f.router, body)

	// No reconciliation for statuses we do not handle, still 200 OK.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestWebhook_MalformedBodyStillOK(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	rec := postWebhook(f.router, []byte(`{not json`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestWebhook_ReconcileFailureStillOK(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	f.pool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted}).
		WillReturnError(assert.AnError)

	body := []byte(`{
		"resultCode": "0000",
		"tid": "TID-9000",
		"orderId": "ORD-1700000000000-a1b2c3d4",
		"amount": 49000
	}`)
	rec := postWebhook(f.router, body)

	// The gateway must always see 200 OK; the failure is only logged.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func paidSampleOrder() *domain.Order {
	order := sampleOrder()
	order.Status = domain.OrderStatusPaid
	order.GatewayTID = "TID-9000"
	return order
}

func TestCancelPayment_Success(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	paid := paidSampleOrder()
	canceled := paidSampleOrder()
	canceled.Status = domain.OrderStatusCanceled

	f.orders.On("GetByID", mock.Anything, paid.ID).Return(paid, nil).Once()
	f.gateway.On("GetResult", mock.Anything, "TID-9000").
		Return(&gateway.PaymentResult{TID: "TID-9000", OrderID: paid.ID, Status: "paid", Amount: 49000}, nil)
	f.gateway.On("Cancel", mock.Anything, "TID-9000", "defective unit", int64(49000)).
		Return(&gateway.PaymentResult{TID: "TID-9000", OrderID: paid.ID, Status: "cancelled", Amount: 49000}, nil)

	expectWebhookOrderLock(f.pool, paid.ID, domain.OrderStatusPaid, "prod-001", 49000)
	f.pool.ExpectExec("UPDATE orders").
		WithArgs(domain.OrderStatusCanceled, service.CancelReasonGateway, paid.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.pool.ExpectExec("UPDATE products").
		WithArgs("prod-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.pool.ExpectCommit()

	f.orders.On("GetByID", mock.Anything, paid.ID).Return(canceled, nil).Once()

	rec := postJSON(t, f.router, "/api/payment/cancel", CancelPaymentRequest{
		OrderID: paid.ID,
		Reason:  "defective unit",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, domain.OrderStatusCanceled, data["status"])
	f.gateway.AssertExpectations(t)
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestCancelPayment_PendingOrderRejected(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	pending := sampleOrder()
	f.orders.On("GetByID", mock.Anything, pending.ID).Return(pending, nil)

	rec := postJSON(t, f.router, "/api/payment/cancel", CancelPaymentRequest{OrderID: pending.ID})

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "INVALID_TRANSITION", resp.Error.Code)
	f.gateway.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelPayment_GatewayRefusal(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	paid := paidSampleOrder()
	f.orders.On("GetByID", mock.Anything, paid.ID).Return(paid, nil)
	f.gateway.On("GetResult", mock.Anything, "TID-9000").Return(nil, assert.AnError)
	f.gateway.On("Cancel", mock.Anything, "TID-9000", service.CancelReasonRequested, int64(49000)).
		Return(nil, assert.AnError)

	rec := postJSON(t, f.router, "/api/payment/cancel", CancelPaymentRequest{OrderID: paid.ID})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "PAYMENT_FAILED", resp.Error.Code)
	assert.NoError(t, f.pool.ExpectationsWereMet())
}

func TestCancelPayment_MissingOrderID(t *testing.T) {
	f := newPaymentHandlerFixture(t)

	rec := postJSON(t, f.router, "/api/payment/cancel", CancelPaymentRequest{Reason: "oops"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	f.orders.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}
