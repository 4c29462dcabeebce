package catalog

import (
	"encoding/json"
	"net/http"

	"github.com/medrx/telehealth-platform/pkg/logging"
)

// Handler serves the public service listing.
type Handler struct {
	catalog *Catalog
	logger  *logging.Logger
}

// NewHandler creates a catalog handler.
func NewHandler(c *Catalog, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{catalog: c, logger: logger}
}

// ListServicesResponse is the response for GET /api/services.
type ListServicesResponse struct {
	Services []Service `json:"services"`
	Count    int       `json:"count"`
}

// ListServices handles GET /api/services.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services := h.catalog.List()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListServicesResponse{
		Services: services,
		Count:    len(services),
	})
}
