package http

import (
	"log/slog"
	"net/http"

	"github.com/Mino1214/juncom-server/internal/gateway"
	"github.com/Mino1214/juncom-server/pkg/httputil"
	"github.com/Mino1214/juncom-server/pkg/pagination"
)

// AddressHandler proxies postal address search to the public address API.
type AddressHandler struct {
	client *gateway.AddressClient
	logger *slog.Logger
}

// NewAddressHandler creates a new address HTTP handler.
func NewAddressHandler(client *gateway.AddressClient, logger *slog.Logger) *AddressHandler {
	return &AddressHandler{
		client: client,
		logger: logger,
	}
}

// Search handles GET /api/address/search?keyword=
func (h *AddressHandler) Search(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")
	if keyword == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "keyword is required"},
		})
		return
	}

	// Out-of-range page values fall back to the defaults.
	params := pagination.FromRequest(r)

	addresses, total, err := h.client.Search(r.Context(), keyword, params.Page, params.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(addresses, total, params.Page, params.PerPage))
}
