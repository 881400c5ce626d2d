package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostel-billing/internal/audit"
	"hostel-billing/internal/auth"
	property "hostel-billing/internal/property/domain"
	propertyhttp "hostel-billing/internal/property/interfaces/http"
)

type hostelStore struct {
	mu      sync.Mutex
	hostels map[string]property.Hostel
}

func (s *hostelStore) Get(_ context.Context, id string) (*property.Hostel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hostels[id]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (s *hostelStore) Save(_ context.Context, hostel *property.Hostel) error {
	if err := hostel.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hostels[hostel.ID] = *hostel
	return nil
}

func serve(router *mux.Router, landlordID, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), landlordID, auth.RoleLandlord, "alice"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHostelHandlerScopesToLandlord(t *testing.T) {
	store := &hostelStore{hostels: map[string]property.Hostel{
		"hostel-x": {ID: "hostel-x", LandlordID: "landlord-2", Name: "Other"},
	}}
	auditLog := &audit.MemoryLogger{}
	handler, err := propertyhttp.NewHostelHandler(store, auditLog)
	require.NoError(t, err)
	router := mux.NewRouter()
	handler.Register(router)

	rec := serve(router, "landlord-1", http.MethodPost, "/api/v1/hostels", `{"id":"hostel-1","name":"Sunrise","address":"1 Main St"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "landlord-1", created["landlordId"])
	require.Len(t, auditLog.Entries(), 1)
	assert.Equal(t, "hostel.save", auditLog.Entries()[0].Action)

	rec = serve(router, "landlord-1", http.MethodPost, "/api/v1/hostels", `{"id":"hostel-x","name":"Takeover"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(router, "landlord-1", http.MethodPost, "/api/v1/hostels", `{"address":"no name"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, "landlord-1", http.MethodGet, "/api/v1/hostels/hostel-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, "landlord-1", http.MethodGet, "/api/v1/hostels/hostel-x", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
