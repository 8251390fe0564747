package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Mino1214/juncom-server/pkg/logger"
)

// RequestLogger returns middleware that builds a request-scoped logger enriched
// with correlation_id and employee_id, then stores it in context via
// logger.NewContext. Downstream handlers retrieve it with
// logger.FromContext(ctx).
//
// This middleware should be mounted AFTER RequestLogging (which sets
// correlation_id).
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Pick up employee_id from the X-Employee-ID header when the
			// caller forwards an authenticated identity.
			employeeID := logger.EmployeeIDFromContext(ctx)
			if employeeID == "" {
				employeeID = r.Header.Get("X-Employee-ID")
			}
			if employeeID != "" {
				ctx = logger.WithEmployeeID(ctx, employeeID)
			}

			// Build enriched logger with all available context fields
			// (correlation_id, employee_id).
			enriched := logger.WithContext(ctx, base)

			// Store the enriched logger in context for downstream handlers.
			ctx = logger.NewContext(ctx, enriched)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
