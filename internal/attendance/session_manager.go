package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rollcall-app/rollcall/internal/clock"
	"github.com/rollcall-app/rollcall/internal/models"
	"github.com/rollcall-app/rollcall/internal/queue"
	"github.com/rollcall-app/rollcall/internal/store"
	"github.com/rollcall-app/rollcall/internal/wordofday"
)

// SessionManager creates and looks up time-boxed check-in sessions. All
// writes go through the local-store → sync-queue pipeline, so session
// management behaves identically online and offline.
type SessionManager struct {
	store   *store.Store
	queue   *queue.Queue
	trigger DrainTrigger
	clock   clock.Clock
	log     *logrus.Logger
}

// NewSessionManager wires the manager to its store and queue. trigger may be
// nil when no engine is attached.
func NewSessionManager(st *store.Store, q *queue.Queue, trigger DrainTrigger, clk clock.Clock, log *logrus.Logger) *SessionManager {
	return &SessionManager{
		store:   st,
		queue:   q,
		trigger: trigger,
		clock:   clk,
		log:     log,
	}
}

// Create opens a new session bound to today's word, expiring after duration.
func (m *SessionManager) Create(ctx context.Context, eventName, eventType string, duration time.Duration, createdBy string) (*models.AttendanceSession, error) {
	now := m.clock.Now()
	session := &models.AttendanceSession{
		ID:        uuid.New().String(),
		EventName: eventName,
		EventType: eventType,
		WordOfDay: wordofday.ForDate(now),
		CreatedBy: createdBy,
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
		IsActive:  true,
	}
	if err := m.save(ctx, session, models.OpCreate); err != nil {
		return nil, err
	}
	m.log.WithFields(logrus.Fields{
		"session":    session.ID,
		"event":      eventName,
		"expires_at": session.ExpiresAt,
	}).Info("created attendance session")
	return session, nil
}

// Get returns a session by id.
func (m *SessionManager) Get(ctx context.Context, id string) (*models.AttendanceSession, error) {
	rec, err := m.store.Get(ctx, models.CollectionSessions, id)
	if err != nil {
		return nil, err
	}
	return models.SessionFromRecord(rec)
}

// GetActive returns the usable session with the latest expiry, or nil when
// none qualifies. Active-but-expired sessions encountered here are lazily
// deactivated.
func (m *SessionManager) GetActive(ctx context.Context) (*models.AttendanceSession, error) {
	recs, err := m.store.GetByIndex(ctx, models.CollectionSessions, models.FieldStatus, models.SessionActive)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	var best *models.AttendanceSession
	for _, rec := range recs {
		session, err := models.SessionFromRecord(rec)
		if err != nil {
			m.log.WithError(err).WithField("record", rec.ID).Warn("skipping unreadable session record")
			continue
		}
		if !session.IsActive {
			continue
		}
		if !now.Before(session.ExpiresAt) {
			if err := m.expire(ctx, session); err != nil {
				m.log.WithError(err).WithField("session", session.ID).Warn("failed to lazily expire session")
			}
			continue
		}
		if best == nil || session.ExpiresAt.After(best.ExpiresAt) {
			best = session
		}
	}
	return best, nil
}

// Close deactivates a session. Idempotent: closing a closed session changes
// nothing and enqueues nothing.
func (m *SessionManager) Close(ctx context.Context, sessionID string) error {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("session %s: %w", sessionID, err)
		}
		return err
	}
	if !session.IsActive {
		return nil
	}
	session.IsActive = false
	if err := m.save(ctx, session, models.OpUpdate); err != nil {
		return err
	}
	m.log.WithField("session", session.ID).Info("closed attendance session")
	return nil
}

// expire flips an active session whose window has passed. Terminal state: a
// closed session is never re-activated.
func (m *SessionManager) expire(ctx context.Context, session *models.AttendanceSession) error {
	session.IsActive = false
	return m.save(ctx, session, models.OpUpdate)
}

func (m *SessionManager) save(ctx context.Context, session *models.AttendanceSession, op models.Operation) error {
	rec, err := session.ToRecord()
	if err != nil {
		return err
	}
	return writeThrough(ctx, m.store, m.queue, m.trigger, models.CollectionSessions, rec, op)
}
