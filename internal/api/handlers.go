// Package api is the local HTTP surface the UI talks to. Every write lands
// in the local store and the sync queue; nothing here waits on the network.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/rollcall-app/rollcall/internal/attendance"
	"github.com/rollcall-app/rollcall/internal/connectivity"
	"github.com/rollcall-app/rollcall/internal/models"
	"github.com/rollcall-app/rollcall/internal/qrtoken"
	"github.com/rollcall-app/rollcall/internal/queue"
	"github.com/rollcall-app/rollcall/internal/store"
	"github.com/rollcall-app/rollcall/internal/syncer"
)

// Handlers bundles the components the local API fronts.
type Handlers struct {
	store     *store.Store
	queue     *queue.Queue
	engine    *syncer.Engine
	monitor   *connectivity.Monitor
	manager   *attendance.SessionManager
	validator *attendance.Validator
	secret    []byte
	log       *logrus.Logger
}

// NewHandlers wires the API.
func NewHandlers(st *store.Store, q *queue.Queue, engine *syncer.Engine, monitor *connectivity.Monitor, manager *attendance.SessionManager, validator *attendance.Validator, secret []byte, log *logrus.Logger) *Handlers {
	return &Handlers{
		store:     st,
		queue:     q,
		engine:    engine,
		monitor:   monitor,
		manager:   manager,
		validator: validator,
		secret:    secret,
		log:       log,
	}
}

// Router returns the local HTTP surface.
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/mutations", h.handleMutation)
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/active", h.handleActiveSession)
	r.Post("/sessions/{sessionID}/close", h.handleCloseSession)
	r.Post("/checkins", h.handleCheckIn)
	r.Get("/sync/status", h.handleSyncStatus)
	return r
}

type mutationRequest struct {
	Collection string          `json:"collection"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
}

// handleMutation is the generic UI write path: persist locally, enqueue,
// nudge the engine.
func (h *Handlers) handleMutation(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	op, err := models.ParseOperation(req.Operation)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var fields struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Payload, &fields); err != nil || fields.ID == "" {
		respondError(w, http.StatusBadRequest, "payload must carry an id")
		return
	}

	if op == models.OpDelete {
		if err := h.store.Delete(r.Context(), req.Collection, fields.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			h.fail(w, err, "failed to delete record")
			return
		}
	} else {
		rec, err := h.buildRecord(req.Collection, fields.ID, req.Payload)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.store.Put(r.Context(), req.Collection, rec); err != nil {
			h.fail(w, err, "failed to persist record")
			return
		}
	}

	item, err := h.queue.Enqueue(r.Context(), req.Collection, op, req.Payload)
	if err != nil {
		h.fail(w, err, "failed to enqueue mutation")
		return
	}
	go h.engine.DrainIfOnline(context.Background())

	respondJSON(w, http.StatusAccepted, item)
}

// buildRecord lifts the table's indexed fields out of the payload into the
// store envelope.
func (h *Handlers) buildRecord(collection, id string, payload json.RawMessage) (*models.Record, error) {
	columns, err := store.IndexColumns(collection)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.New("payload must be a JSON object")
	}
	fields := make(map[string]string, len(columns))
	for _, col := range columns {
		if v, ok := raw[col]; ok {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				fields[col] = s
			}
		}
	}
	return &models.Record{ID: id, Fields: fields, Payload: payload}, nil
}

type createSessionRequest struct {
	EventName       string `json:"event_name"`
	EventType       string `json:"event_type"`
	DurationMinutes int    `json:"duration_minutes"`
	CreatedBy       string `json:"created_by"`
}

type sessionResponse struct {
	Session *models.AttendanceSession `json:"session"`
	Token   string                    `json:"token"`
}

func (h *Handlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventName == "" || req.DurationMinutes <= 0 {
		respondError(w, http.StatusBadRequest, "event_name and a positive duration_minutes are required")
		return
	}

	session, err := h.manager.Create(r.Context(), req.EventName, req.EventType, time.Duration(req.DurationMinutes)*time.Minute, req.CreatedBy)
	if err != nil {
		h.fail(w, err, "failed to create session")
		return
	}
	h.respondSession(w, http.StatusCreated, session)
}

func (h *Handlers) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.GetActive(r.Context())
	if err != nil {
		h.fail(w, err, "failed to look up active session")
		return
	}
	if session == nil {
		respondError(w, http.StatusNotFound, "no active session")
		return
	}
	h.respondSession(w, http.StatusOK, session)
}

func (h *Handlers) respondSession(w http.ResponseWriter, status int, session *models.AttendanceSession) {
	token, err := qrtoken.Encode(qrtoken.Payload{
		SessionID: session.ID,
		EventType: session.EventType,
		EventName: session.EventName,
		Word:      session.WordOfDay,
		ExpiresAt: session.ExpiresAt,
	}, h.secret)
	if err != nil {
		h.fail(w, err, "failed to encode session token")
		return
	}
	respondJSON(w, status, sessionResponse{Session: session, Token: token})
}

func (h *Handlers) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.manager.Close(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		h.fail(w, err, "failed to close session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkInRequest struct {
	Token   string              `json:"token"`
	UserID  string              `json:"user_id"`
	Method  string              `json:"method"`
	Visitor *models.VisitorInfo `json:"visitor,omitempty"`
}

func (h *Handlers) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.validator.CheckIn(r.Context(), attendance.CheckInRequest{
		Token:   req.Token,
		UserID:  req.UserID,
		Method:  models.CheckInMethod(req.Method),
		Visitor: req.Visitor,
	})
	if err != nil {
		var verr *attendance.ValidationError
		if errors.As(err, &verr) {
			status := http.StatusUnprocessableEntity
			if verr == attendance.ErrDuplicate {
				status = http.StatusConflict
			}
			respondError(w, status, verr.Reason)
			return
		}
		h.fail(w, err, "failed to check in")
		return
	}
	respondJSON(w, http.StatusCreated, record)
}

type syncStatusResponse struct {
	Online     bool       `json:"online"`
	Pending    int        `json:"pending"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

func (h *Handlers) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.Len(r.Context())
	if err != nil {
		h.fail(w, err, "failed to count pending mutations")
		return
	}
	resp := syncStatusResponse{
		Online:  h.monitor.IsOnline(),
		Pending: pending,
	}
	if last := h.engine.LastSyncAt(); !last.IsZero() {
		resp.LastSyncAt = &last
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) fail(w http.ResponseWriter, err error, msg string) {
	h.log.WithError(err).Error(msg)
	respondError(w, http.StatusInternalServerError, msg)
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
