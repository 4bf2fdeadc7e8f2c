package attendance

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rollcall-app/rollcall/internal/clock"
	"github.com/rollcall-app/rollcall/internal/models"
	"github.com/rollcall-app/rollcall/internal/qrtoken"
	"github.com/rollcall-app/rollcall/internal/queue"
	"github.com/rollcall-app/rollcall/internal/store"
	"github.com/rollcall-app/rollcall/internal/wordofday"
)

// Validator checks scanned tokens against session state and commits
// attendance records. Validation failures are synchronous and never retried.
type Validator struct {
	store   *store.Store
	queue   *queue.Queue
	manager *SessionManager
	trigger DrainTrigger
	clock   clock.Clock
	secret  []byte
	log     *logrus.Logger
}

// NewValidator wires the validator. manager handles lazy session expiry;
// trigger may be nil when no engine is attached.
func NewValidator(st *store.Store, q *queue.Queue, manager *SessionManager, trigger DrainTrigger, clk clock.Clock, secret []byte, log *logrus.Logger) *Validator {
	return &Validator{
		store:   st,
		queue:   q,
		manager: manager,
		trigger: trigger,
		clock:   clk,
		secret:  secret,
		log:     log,
	}
}

// Validate decodes a scanned token and checks it against today's word and
// its own expiry. Session state is checked at check-in time, not here; a
// token is self-contained so this works with no session synced locally.
func (v *Validator) Validate(token string) (*qrtoken.Payload, error) {
	payload, err := qrtoken.Decode(token, v.secret)
	if err != nil {
		return nil, ErrMalformed
	}
	now := v.clock.Now()
	if payload.Word != wordofday.ForDate(now) {
		return nil, ErrStaleToken
	}
	if !now.Before(payload.ExpiresAt) {
		return nil, ErrExpired
	}
	return payload, nil
}

// CanCheckIn reports whether userID may check into the session given the
// records already committed for it. Visitors receive generated ids, so
// distinct visitors never collide here.
func (v *Validator) CanCheckIn(userID, sessionID string, existing []*models.AttendanceRecord) bool {
	for _, rec := range existing {
		if rec.SessionID == sessionID && rec.UserID == userID {
			return false
		}
	}
	return true
}

// CheckInRequest carries one scan.
type CheckInRequest struct {
	Token   string
	UserID  string
	Method  models.CheckInMethod
	Visitor *models.VisitorInfo
}

// CheckIn validates the token, suppresses duplicates, and commits the
// attendance record plus the session's incremented counter through the
// local-store → sync-queue pipeline. The counter is an eventually-consistent
// derived value, not a real-time one.
func (v *Validator) CheckIn(ctx context.Context, req CheckInRequest) (*models.AttendanceRecord, error) {
	payload, err := v.Validate(req.Token)
	if err != nil {
		return nil, err
	}

	// Session state check with lazy expiry. A session the device has not
	// synced yet is fine: the token itself carries the validity window.
	session, err := v.manager.Get(ctx, payload.SessionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		session = nil
	case err != nil:
		return nil, err
	case !session.IsActive:
		return nil, ErrSessionClosed
	case !v.clock.Now().Before(session.ExpiresAt):
		if eerr := v.manager.expire(ctx, session); eerr != nil {
			v.log.WithError(eerr).WithField("session", session.ID).Warn("failed to lazily expire session")
		}
		return nil, ErrExpired
	}

	userID := req.UserID
	isVisitor := req.Visitor != nil
	if isVisitor && userID == "" {
		userID = "visitor-" + uuid.New().String()
	}

	existing, err := v.recordsForSession(ctx, payload.SessionID)
	if err != nil {
		return nil, err
	}
	if !v.CanCheckIn(userID, payload.SessionID, existing) {
		return nil, ErrDuplicate
	}

	method := req.Method
	if method == "" {
		method = models.MethodQR
	}
	record := &models.AttendanceRecord{
		ID:          uuid.New().String(),
		UserID:      userID,
		SessionID:   payload.SessionID,
		CheckInTime: v.clock.Now(),
		Method:      method,
		IsVisitor:   isVisitor,
		VisitorInfo: req.Visitor,
	}
	rec, err := record.ToRecord()
	if err != nil {
		return nil, err
	}
	if err := writeThrough(ctx, v.store, v.queue, v.trigger, models.CollectionRecords, rec, models.OpCreate); err != nil {
		return nil, err
	}

	if session != nil {
		session.AttendanceCount++
		if err := v.manager.save(ctx, session, models.OpUpdate); err != nil {
			v.log.WithError(err).WithField("session", session.ID).Warn("failed to update attendance count")
		}
	}

	v.log.WithFields(logrus.Fields{
		"session": payload.SessionID,
		"user":    userID,
		"method":  method,
		"visitor": isVisitor,
	}).Info("check-in committed")
	return record, nil
}

func (v *Validator) recordsForSession(ctx context.Context, sessionID string) ([]*models.AttendanceRecord, error) {
	recs, err := v.store.GetByIndex(ctx, models.CollectionRecords, models.FieldSessionID, sessionID)
	if err != nil {
		return nil, err
	}
	records := make([]*models.AttendanceRecord, 0, len(recs))
	for _, rec := range recs {
		record, err := models.AttendanceFromRecord(rec)
		if err != nil {
			v.log.WithError(err).WithField("record", rec.ID).Warn("skipping unreadable attendance record")
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
