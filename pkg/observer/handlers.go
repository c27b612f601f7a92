// Copyright 2025 Certen Protocol
//
// Observer Read API HTTP Handlers
// Public, unauthenticated endpoints per §4.12.

package observer

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/archon72/conclave/pkg/eventstore"
)

// Handlers provides HTTP handlers for the observer read API.
type Handlers struct {
	Reader       *Reader
	ProofService *ProofService
	Subs         SubscriptionStore
	logger       *log.Logger
}

func NewHandlers(reader *Reader, proofs *ProofService, subs SubscriptionStore, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[ObserverAPI] ", log.LstdFlags)
	}
	return &Handlers{Reader: reader, ProofService: proofs, Subs: subs, logger: logger}
}

// HandleStreamEvents handles GET /api/v1/observer/events?from=N&limit=N
func (h *Handlers) HandleStreamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	from := int64(h.parseIntParam(r, "from", 1))
	limit := h.parseIntParam(r, "limit", defaultPageSize)

	page, err := h.Reader.StreamForward(r.Context(), from, limit)
	if err != nil {
		h.logger.Printf("error streaming events: %v", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to stream events")
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

// HandleGetHead handles GET /api/v1/observer/head
func (h *Handlers) HandleGetHead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	head, err := h.Reader.Head()
	if err != nil {
		h.logger.Printf("error getting head: %v", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retrieve head")
		return
	}
	h.writeJSON(w, http.StatusOK, head)
}

// HandleGetProof handles GET /api/v1/observer/proofs/{sequence}
func (h *Handlers) HandleGetProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/observer/proofs/")
	seq, err := strconv.ParseInt(strings.TrimSuffix(path, "/"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_SEQUENCE", "Sequence must be an integer")
		return
	}

	proof, err := h.ProofService.GetProof(r.Context(), seq)
	if err != nil {
		if _, ok := err.(ErrNotYetAnchored); ok {
			h.writeError(w, http.StatusNotFound, "NOT_YET_ANCHORED", err.Error())
			return
		}
		h.logger.Printf("error getting proof: %v", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retrieve proof")
		return
	}
	h.writeJSON(w, http.StatusOK, proof)
}

// HandleReconcileGap handles POST /api/v1/observer/reconcile?observer_head=N
func (h *Handlers) HandleReconcileGap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	observerHead := int64(h.parseIntParam(r, "observer_head", 0))
	report, err := h.Reader.ReconcileGap(r.Context(), observerHead, "observer-api")
	if err != nil {
		h.logger.Printf("error reconciling gap: %v", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to reconcile gap")
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

type subscribeRequest struct {
	URL        string                 `json:"url"`
	EventTypes []eventstore.EventType `json:"event_types"`
}

// HandleSubscribe handles POST /api/v1/observer/subscriptions
func (h *Handlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid subscription format")
		return
	}
	if req.URL == "" {
		h.writeError(w, http.StatusBadRequest, "INVALID_URL", "url is required")
		return
	}

	sub := WebhookSubscription{
		ID:         uuid.NewString(),
		URL:        req.URL,
		EventTypes: req.EventTypes,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.Subs.Register(r.Context(), sub); err != nil {
		h.logger.Printf("error registering subscription: %v", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to register subscription")
		return
	}
	h.writeJSON(w, http.StatusCreated, sub)
}

// HandleUnsubscribe handles DELETE /api/v1/observer/subscriptions/{id}
func (h *Handlers) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only DELETE is allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/observer/subscriptions/")
	id := strings.TrimSuffix(path, "/")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "INVALID_ID", "Subscription id is required")
		return
	}

	if err := h.Subs.Unregister(r.Context(), id); err != nil {
		h.logger.Printf("error unregistering subscription: %v", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to remove subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) parseIntParam(r *http.Request, name string, defaultVal int) int {
	valStr := r.URL.Query().Get(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("error encoding response: %v", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
