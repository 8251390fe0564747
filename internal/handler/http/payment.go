package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/Mino1214/juncom-server/internal/service"
	"github.com/Mino1214/juncom-server/pkg/httputil"
	"github.com/Mino1214/juncom-server/pkg/validator"
)

// PaymentHandler handles payment gateway webhook notifications and
// merchant-side cancellations.
type PaymentHandler struct {
	orders   *service.OrderService
	payments *service.PaymentService
	logger   *slog.Logger
}

// NewPaymentHandler creates a new payment HTTP handler.
func NewPaymentHandler(orders *service.OrderService, payments *service.PaymentService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		orders:   orders,
		payments: payments,
		logger:   logger,
	}
}

// WebhookRequest mirrors the notification body the gateway sends. Field names
// follow the gateway's camelCase wire format.
type WebhookRequest struct {
	ResultCode string `json:"resultCode"`
	ResultMsg  string `json:"resultMsg"`
	TID        string `json:"tid"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
	Status     string `json:"status"`
	PayMethod  string `json:"payMethod"`
}

// resultCodeOK is the gateway's success code.
const resultCodeOK = "0000"

// Webhook handles POST /api/payment/webhook. The gateway retries any
// non-200 response and expects the literal body "OK", so this endpoint
// answers 200 "OK" unconditionally; reconciliation failures are logged and
// settled by the gateway's retry or the next notification.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	defer h.writeOK(w)

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read webhook body", slog.String("error", err.Error()))
		return
	}

	// The gateway probes the endpoint with an empty body when the webhook
	// URL is registered.
	if len(body) == 0 {
		h.logger.InfoContext(r.Context(), "webhook registration probe received")
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.ErrorContext(r.Context(), "decode webhook body",
			slog.String("error", err.Error()),
		)
		return
	}
	if req == (WebhookRequest{}) {
		h.logger.InfoContext(r.Context(), "webhook registration probe received")
		return
	}

	h.logger.InfoContext(r.Context(), "payment webhook received",
		slog.String("order_id", req.OrderID),
		slog.String("tid", req.TID),
		slog.String("status", req.Status),
		slog.String("result_code", req.ResultCode),
		slog.Int64("amount", req.Amount),
	)

	outcome, ok := mapOutcome(req)
	if !ok {
		h.logger.WarnContext(r.Context(), "unhandled webhook status",
			slog.String("order_id", req.OrderID),
			slog.String("status", req.Status),
			slog.String("result_code", req.ResultCode),
		)
		return
	}

	err = h.orders.ReconcilePayment(r.Context(), service.PaymentNotification{
		OrderID: req.OrderID,
		Outcome: outcome,
		TID:     req.TID,
		Amount:  req.Amount,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "reconcile payment",
			slog.String("order_id", req.OrderID),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
	}
}

// CancelPaymentRequest is the JSON request body for refunding a paid order.
type CancelPaymentRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	Reason  string `json:"reason"`
}

// Cancel handles POST /api/payment/cancel. The gateway voids the transaction
// before the order is marked canceled locally.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CancelPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	order, err := h.payments.CancelPayment(r.Context(), req.OrderID, req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// mapOutcome translates gateway result fields into a reconciliation outcome.
func mapOutcome(req WebhookRequest) (string, bool) {
	switch {
	case req.ResultCode == resultCodeOK || req.Status == service.OutcomePaid:
		return service.OutcomePaid, true
	case req.Status == service.OutcomeCancelled:
		return service.OutcomeCancelled, true
	case req.Status == service.OutcomeRefunded:
		return service.OutcomeRefunded, true
	default:
		return "", false
	}
}

func (h *PaymentHandler) writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
