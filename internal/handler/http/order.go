package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Mino1214/juncom-server/internal/domain"
	"github.com/Mino1214/juncom-server/internal/repository"
	"github.com/Mino1214/juncom-server/internal/service"
	"github.com/Mino1214/juncom-server/pkg/httputil"
	"github.com/Mino1214/juncom-server/pkg/validator"
)

// OrderHandler handles HTTP requests for order and job endpoints.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request/Response DTOs ---

// CreateOrderRequest is the JSON request body for placing an order.
type CreateOrderRequest struct {
	EmployeeID string `json:"employee_id"`
	UserName   string `json:"user_name" validate:"required"`
	UserEmail  string `json:"user_email" validate:"omitempty,email"`
	UserPhone  string `json:"user_phone"`
	ProductID  string `json:"product_id" validate:"required"`
}

// EnqueueOrderResponse is returned from POST /api/orders. The client polls
// GET /api/jobs/{id} to learn the final order.
type EnqueueOrderResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// --- Handlers ---

// CreateOrder handles POST /api/orders. Order creation is asynchronous: the
// request is enqueued and a job id is returned with 202 Accepted.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CreateOrderRequest
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

	jobID, err := h.service.EnqueueOrder(r.Context(), service.CreateOrderInput{
		EmployeeID: req.EmployeeID,
		UserName:   req.UserName,
		UserEmail:  req.UserEmail,
		UserPhone:  req.UserPhone,
		ProductID:  req.ProductID,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{
		Data: EnqueueOrderResponse{JobID: jobID, Status: "queued"},
	})
}

// ListOrders handles GET /api/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter := repository.OrderFilter{
		Page:    1,
		PerPage: 20,
	}

	if v := r.URL.Query().Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "page must be a valid positive integer"},
			})
			return
		}
		filter.Page = page
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		perPage, err := strconv.Atoi(v)
		if err != nil || perPage < 1 || perPage > 100 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "per_page must be a valid integer between 1 and 100"},
			})
			return
		}
		filter.PerPage = perPage
	}
	if v := r.URL.Query().Get("employee_id"); v != "" {
		filter.EmployeeID = &v
	}
	if v := r.URL.Query().Get("status"); v != "" {
		if !domain.IsValidStatus(v) {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{
					Code:    "INVALID_PARAMETER",
					Message: "status must be one of " + strings.Join(domain.ValidStatuses(), ", "),
				},
			})
			return
		}
		filter.Status = &v
	}

	orders, total, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(orders, total, filter.Page, filter.PerPage))
}

// GetOrder handles GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	// Order ids carry the ORD- prefix, not a UUID.
	id := chi.URLParam(r, "id")

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// GetJob handles GET /api/jobs/{id}. Clients poll this after a 202 from
// CreateOrder; a done job's result holds the order id.
func (h *OrderHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	job, err := h.service.GetJob(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: job})
}
