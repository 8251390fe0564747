package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Order status constants.
const (
	OrderStatusPending  = "pending"
	OrderStatusPaid     = "paid"
	OrderStatusCanceled = "canceled"
)

// GuestEmployeeID is the sentinel used when an order is placed without an
// authenticated employee identity.
const GuestEmployeeID = "GUEST"

// Order represents a single-product purchase by an employee.
type Order struct {
	ID           string     `json:"id"`
	EmployeeID   string     `json:"employee_id"`
	UserName     string     `json:"user_name"`
	UserEmail    string     `json:"user_email"`
	UserPhone    string     `json:"user_phone,omitempty"`
	ProductID    string     `json:"product_id"`
	ProductName  string     `json:"product_name"`
	Amount       int64      `json:"amount"`
	Status       string     `json:"status"`
	GatewayTID   string     `json:"gateway_tid,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	CanceledAt   *time.Time `json:"canceled_at,omitempty"`
}

// NewOrderID generates an order identifier of the form ORD-<unixms>-<suffix>.
func NewOrderID(now time.Time) string {
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
}

// ValidStatuses returns all valid order statuses.
func ValidStatuses() []string {
	return []string{OrderStatusPending, OrderStatusPaid, OrderStatusCanceled}
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions
// (except the single paid to canceled refund edge).
func IsTerminal(status string) bool {
	return status == OrderStatusPaid || status == OrderStatusCanceled
}

// AllowedTransitions defines which status transitions are valid. The paid to
// canceled edge covers gateway-reported refunds; canceled is fully terminal.
func AllowedTransitions() map[string][]string {
	return map[string][]string{
		OrderStatusPending:  {OrderStatusPaid, OrderStatusCanceled},
		OrderStatusPaid:     {OrderStatusCanceled},
		OrderStatusCanceled: {},
	}
}

// CanTransitionTo checks if the order can transition to the target status.
func (o *Order) CanTransitionTo(target string) bool {
	allowed, ok := AllowedTransitions()[o.Status]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// Buyer identifies who placed an order. EmployeeID is optional; orders placed
// without one carry the GuestEmployeeID sentinel.
type Buyer struct {
	EmployeeID string `json:"employee_id,omitempty"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
}

// EffectiveEmployeeID returns the buyer's employee id, or the guest sentinel
// when none was supplied.
func (b Buyer) EffectiveEmployeeID() string {
	if b.EmployeeID == "" {
		return GuestEmployeeID
	}
	return b.EmployeeID
}
