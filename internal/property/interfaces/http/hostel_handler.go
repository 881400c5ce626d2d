package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"hostel-billing/internal/audit"
	"hostel-billing/internal/auth"
	property "hostel-billing/internal/property/domain"
)

// HostelHandler registers and reads hostels of the calling landlord.
type HostelHandler struct {
	repo     property.HostelRepository
	audit    audit.Logger
	validate *validator.Validate
}

type saveHostelRequest struct {
	ID      string `json:"id" validate:"omitempty,max=64"`
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address" validate:"max=500"`
}

type hostelResponse struct {
	ID         string    `json:"id"`
	LandlordID string    `json:"landlordId"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewHostelHandler constructs a handler.
func NewHostelHandler(repo property.HostelRepository, auditLogger audit.Logger) (*HostelHandler, error) {
	if repo == nil {
		return nil, errors.New("hostel handler: nil repo")
	}
	return &HostelHandler{repo: repo, audit: auditLogger, validate: validator.New()}, nil
}

// Register mounts POST /api/v1/hostels and GET /api/v1/hostels/{id}.
func (h *HostelHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/v1/hostels", h.save).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/hostels/{id}", h.get).Methods(http.MethodGet)
}

func (h *HostelHandler) save(w http.ResponseWriter, r *http.Request) {
	landlordID := auth.LandlordIDFromContext(r.Context())
	if landlordID == "" {
		http.Error(w, "landlord required", http.StatusForbidden)
		return
	}
	defer r.Body.Close()
	var req saveHostelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = "hostel-" + uuid.NewString()
	}
	existing, err := h.repo.Get(r.Context(), req.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil && existing.LandlordID != landlordID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	hostel := &property.Hostel{ID: req.ID, LandlordID: landlordID, Name: req.Name, Address: req.Address}
	if err := h.repo.Save(r.Context(), hostel); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	saved, err := h.repo.Get(r.Context(), hostel.ID)
	if err != nil || saved == nil {
		saved = hostel
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toHostelResponse(saved))

	if h.audit != nil {
		meta, _ := json.Marshal(map[string]any{"name": hostel.Name})
		_ = h.audit.Log(r.Context(), audit.Entry{
			LandlordID:   landlordID,
			Actor:        auth.SubjectFromContext(r.Context()),
			Role:         string(auth.RoleFromContext(r.Context())),
			Action:       "hostel.save",
			ResourceType: "hostel",
			ResourceID:   hostel.ID,
			HostelID:     hostel.ID,
			Metadata:     meta,
			IP:           audit.ClientIP(r),
			UserAgent:    r.UserAgent(),
		})
	}
}

func (h *HostelHandler) get(w http.ResponseWriter, r *http.Request) {
	hostel, err := h.repo.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	landlordID := auth.LandlordIDFromContext(r.Context())
	if hostel == nil || (landlordID != "" && hostel.LandlordID != landlordID) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toHostelResponse(hostel))
}

func toHostelResponse(h *property.Hostel) hostelResponse {
	return hostelResponse{
		ID:         h.ID,
		LandlordID: h.LandlordID,
		Name:       h.Name,
		Address:    h.Address,
		CreatedAt:  h.CreatedAt,
		UpdatedAt:  h.UpdatedAt,
	}
}
