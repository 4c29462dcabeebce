package catalog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListServices(t *testing.T) {
	h := NewHandler(Default(), nil)

	rec := httptest.NewRecorder()
	h.ListServices(rec, httptest.NewRequest(http.MethodGet, "/api/services", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ListServicesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, len(resp.Services), resp.Count)
	assert.NotEmpty(t, resp.Services)

	ids := make(map[string]bool, resp.Count)
	for _, svc := range resp.Services {
		ids[svc.ID] = true
		assert.NotEmpty(t, svc.Title, "service %s needs a display name", svc.ID)
		if svc.Kind == KindOneOff {
			assert.Greater(t, svc.PriceCents, int64(0), "one-off service %s needs a price", svc.ID)
		}
	}
	assert.True(t, ids["hair-loss"], "default catalog should list the hair loss consult")
}
