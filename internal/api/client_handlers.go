// Package api provides HTTP handlers for the Laneboard API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/laneboard/internal/lane"
	"github.com/onnwee/laneboard/internal/middleware"
	"github.com/onnwee/laneboard/internal/validate"
)

// CreateClientRequest represents the request body for creating a client record.
type CreateClientRequest struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// UpdateClientRequest represents the request body for moving or reordering a
// client record. Both fields are optional; omitting both is a valid no-op.
type UpdateClientRequest struct {
	Status   *string `json:"status,omitempty"`
	Priority *int    `json:"priority,omitempty"`
}

// ClientListResponse wraps a board snapshot ordered by (status, priority).
type ClientListResponse struct {
	Clients []lane.Client `json:"clients"`
}

// ClientHandlers holds dependencies for client HTTP handlers.
type ClientHandlers struct {
	repo lane.ClientRepository
}

// NewClientHandlers creates a new ClientHandlers instance.
func NewClientHandlers(repo lane.ClientRepository) *ClientHandlers {
	return &ClientHandlers{repo: repo}
}

// clientIDFromPath extracts the numeric ID from /clients/{id}.
func clientIDFromPath(path string) (int64, error) {
	raw := strings.TrimPrefix(path, "/clients/")
	if raw == "" || strings.Contains(raw, "/") {
		return 0, errors.New("client ID is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("client ID must be a positive integer")
	}
	return id, nil
}

// writeLaneError maps domain errors to HTTP error responses.
func writeLaneError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, lane.ErrNotFound):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Client not found")
	case errors.Is(err, lane.ErrInvalidStatus):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidStatus)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidStatus, err.Error())
	case errors.Is(err, lane.ErrInvalidPriority):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidPriority)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidPriority, err.Error())
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to apply operation")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListClients handles GET /clients - returns the board snapshot, optionally
// filtered to one lane via ?status=.
func (h *ClientHandlers) ListClients(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := lane.ParseStatus(raw)
		if err != nil {
			writeLaneError(w, r, err)
			return
		}
		clients, err := h.repo.ListByStatus(r.Context(), status)
		if err != nil {
			writeLaneError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ClientListResponse{Clients: clients})
		return
	}

	clients, err := h.repo.List(r.Context())
	if err != nil {
		writeLaneError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ClientListResponse{Clients: clients})
}

// CreateClient handles POST /clients - creates a record at the end of its lane.
func (h *ClientHandlers) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidInput)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid JSON in request body")
		return
	}

	name, err := validate.ClientName(req.Name)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidInput)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidInput, "invalid name: "+err.Error())
		return
	}

	// New records default to the backlog lane
	status := lane.StatusBacklog
	if req.Status != "" {
		var err error
		status, err = lane.ParseStatus(req.Status)
		if err != nil {
			writeLaneError(w, r, err)
			return
		}
	}

	created, err := h.repo.Create(r.Context(), name, status)
	if err != nil {
		writeLaneError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// GetClient handles GET /clients/{id}.
func (h *ClientHandlers) GetClient(w http.ResponseWriter, r *http.Request) {
	id, err := clientIDFromPath(r.URL.Path)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidInput)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidInput, err.Error())
		return
	}

	client, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeLaneError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, client)
}

// UpdateClient handles PATCH /clients/{id} - moves a record between lanes
// and/or reorders it within a lane. Both fields may be combined in one call;
// omitting both is accepted and changes nothing. Returns the post-update
// board snapshot.
func (h *ClientHandlers) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id, err := clientIDFromPath(r.URL.Path)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidInput)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidInput, err.Error())
		return
	}

	var req UpdateClientRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		// Covers malformed JSON, unknown fields, and non-integer priority
		// values alike
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidInput)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid JSON in request body")
		return
	}

	move := lane.Move{TargetID: id, NewPriority: req.Priority}
	if req.Status != nil {
		status, err := lane.ParseStatus(*req.Status)
		if err != nil {
			writeLaneError(w, r, err)
			return
		}
		move.NewStatus = &status
	}

	snapshot, err := h.repo.ApplyMove(r.Context(), move)
	if err != nil {
		writeLaneError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ClientListResponse{Clients: snapshot})
}

// DeleteClient handles DELETE /clients/{id} - removes the record and compacts
// its lane.
func (h *ClientHandlers) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id, err := clientIDFromPath(r.URL.Path)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidInput)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeLaneError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Routes registers client endpoints on the given mux. Method dispatch is done
// here so handlers stay focused on one verb each.
func (h *ClientHandlers) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/clients", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListClients(w, r)
		case http.MethodPost:
			h.CreateClient(w, r)
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		}
	})
	mux.HandleFunc("/clients/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetClient(w, r)
		case http.MethodPatch:
			h.UpdateClient(w, r)
		case http.MethodDelete:
			h.DeleteClient(w, r)
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		}
	})
}
