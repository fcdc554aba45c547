package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/innerpath/coachd/internal/retrieval"
)

func TestRouterComposition(t *testing.T) {
	_, c := mockUpstream(t, func(w http.ResponseWriter, r *http.Request) {})
	store := newSessionTestStore(t)
	vectors := retrieval.NewSQLiteStore(store.DB())
	h := NewRouter(c, nil, nil, store, vectors, "secret")

	// Public health route.
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("health: status = %d", rr.Code)
	}

	// Session broker without a configured broker.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"user_id":"u1"}`)))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("sessions: status = %d", rr.Code)
	}

	// Admin routes sit behind the bearer token.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/analytics", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("admin without token: status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/analytics", nil)
	req.Header.Set("Authorization", "Bearer secret")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("admin with token: status = %d", rr.Code)
	}
}
