// Package remoteserver is the server side of the remote document store:
// a single /apply endpoint dispatching to per-collection appliers, plus
// device presence tracking.
package remoteserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/rollcall-app/rollcall/internal/models"
)

type applyFunc func(ctx context.Context, op models.Operation, payload json.RawMessage) error

// timeNow is swapped in tests.
var timeNow = time.Now

// Server routes mutations to collection appliers. The applier map is
// resolved once at construction; unknown collections fall through to the
// generic document applier.
type Server struct {
	documents *DocumentRepository
	presence  *PresenceRepository
	log       *logrus.Logger
	appliers  map[string]applyFunc
}

// NewServer builds the server and its applier map.
func NewServer(documents *DocumentRepository, presence *PresenceRepository, log *logrus.Logger) *Server {
	s := &Server{
		documents: documents,
		presence:  presence,
		log:       log,
	}
	s.appliers = map[string]applyFunc{
		models.CollectionRecords: documents.ApplyAttendance,
	}
	return s
}

// Router returns the HTTP surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Post("/apply", s.handleApply)
	r.Get("/presence/{deviceID}", s.handlePresence)
	return r
}

type applyRequest struct {
	Collection string          `json:"collection"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	op, err := models.ParseOperation(req.Operation)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Collection == "" || len(req.Payload) == 0 {
		http.Error(w, "collection and payload are required", http.StatusBadRequest)
		return
	}

	apply, ok := s.appliers[req.Collection]
	if !ok {
		apply = func(ctx context.Context, op models.Operation, payload json.RawMessage) error {
			return s.documents.ApplyDocument(ctx, req.Collection, op, payload)
		}
	}
	if err := apply(r.Context(), op, req.Payload); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"collection": req.Collection,
			"operation":  req.Operation,
		}).Error("failed to apply mutation")
		http.Error(w, "failed to apply mutation", http.StatusInternalServerError)
		return
	}

	// Presence is best-effort: a Redis hiccup never fails the apply.
	if deviceID := r.Header.Get("X-Device-ID"); deviceID != "" {
		if err := s.presence.Touch(r.Context(), deviceID, timeNow()); err != nil {
			s.log.WithError(err).WithField("device", deviceID).Warn("failed to record device presence")
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	presence, err := s.presence.Get(r.Context(), deviceID)
	if err == ErrPresenceNotFound {
		http.Error(w, "device not seen recently", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("device", deviceID).Error("failed to look up presence")
		http.Error(w, "failed to look up presence", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(presence)
}
