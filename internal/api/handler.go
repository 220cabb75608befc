// Package api exposes the sync core to the UI layer over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/retailpoint/possync/internal/logging"
	"github.com/retailpoint/possync/internal/models"
	"github.com/retailpoint/possync/internal/service"
)

// Handler registers the sync core's HTTP surface.
type Handler struct {
	svc *service.OfflineSyncService
}

// NewHandler creates a Handler.
func NewHandler(svc *service.OfflineSyncService) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the handler's routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/sync", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Post("/run", h.runSync)
		r.Get("/dead-letters", h.deadLetters)
	})

	r.Post("/sales", h.recordSale)
	r.Get("/products/cached", h.cachedProducts)

	r.Route("/queue", func(r chi.Router) {
		r.Post("/operations", h.enqueueOperation)
		r.Delete("/", h.clearQueues)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// status returns the derived SyncStatus snapshot for UI polling.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// runSync is the manual "sync now" action. Returns 202 whether or not a
// drain actually started; an in-progress drain absorbs the trigger.
func (h *Handler) runSync(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SyncOfflineData(r.Context()); err != nil {
		respondError(w, http.StatusBadGateway, err)
		return
	}
	respondJSON(w, http.StatusAccepted, h.svc.Status(r.Context()))
}

func (h *Handler) deadLetters(w http.ResponseWriter, r *http.Request) {
	letters, err := h.svc.DeadLetters(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if letters == nil {
		letters = []*models.DeadLetter{}
	}
	respondJSON(w, http.StatusOK, letters)
}

// recordSale is the POS checkout endpoint: remote when online, queued when
// offline.
func (h *Handler) recordSale(w http.ResponseWriter, r *http.Request) {
	var sale models.PendingSale
	if err := json.NewDecoder(r.Body).Decode(&sale); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if len(sale.Items) == 0 {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "sale has no items"})
		return
	}

	id, queued, err := h.svc.RecordSale(r.Context(), &sale)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":     id,
		"queued": queued,
	})
}

func (h *Handler) enqueueOperation(w http.ResponseWriter, r *http.Request) {
	var op models.PendingOperation
	if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if op.Type == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "operation type is required"})
		return
	}

	if err := h.svc.AddOperationToOfflineQueue(r.Context(), &op); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": op.ID})
}

func (h *Handler) cachedProducts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.CachedProducts(r.Context()))
}

func (h *Handler) clearQueues(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearAllQueues(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn("failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
