package attendance

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-app/rollcall/internal/clock"
	"github.com/rollcall-app/rollcall/internal/models"
	"github.com/rollcall-app/rollcall/internal/qrtoken"
	"github.com/rollcall-app/rollcall/internal/queue"
	"github.com/rollcall-app/rollcall/internal/store"
	"github.com/rollcall-app/rollcall/internal/wordofday"
)

var testSecret = []byte("test-secret")

type fixture struct {
	store     *store.Store
	queue     *queue.Queue
	clock     *clock.Fixed
	manager   *SessionManager
	validator *Validator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFixed(time.Date(2026, 8, 25, 10, 0, 0, 0, time.Local))
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), clk)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	q := queue.New(st.DB(), clk)
	manager := NewSessionManager(st, q, nil, clk, log)
	validator := NewValidator(st, q, manager, nil, clk, testSecret, log)
	return &fixture{store: st, queue: q, clock: clk, manager: manager, validator: validator}
}

func (f *fixture) queuedFor(t *testing.T, collection string) []*models.QueueItem {
	t.Helper()
	items, err := f.queue.Pending(context.Background())
	require.NoError(t, err)
	var out []*models.QueueItem
	for _, item := range items {
		if item.Collection == collection {
			out = append(out, item)
		}
	}
	return out
}

func (f *fixture) token(t *testing.T, session *models.AttendanceSession) string {
	t.Helper()
	token, err := qrtoken.Encode(qrtoken.Payload{
		SessionID: session.ID,
		EventType: session.EventType,
		EventName: session.EventName,
		Word:      session.WordOfDay,
		ExpiresAt: session.ExpiresAt,
	}, testSecret)
	require.NoError(t, err)
	return token
}

func TestSessionManager_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Create(ctx, "Sunday Service", "service", 3*time.Hour, "organizer-1")
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, wordofday.ForDate(f.clock.Now()), session.WordOfDay)
	assert.Equal(t, f.clock.Now().Add(3*time.Hour), session.ExpiresAt)
	assert.True(t, session.IsActive)
	assert.Zero(t, session.AttendanceCount)

	// Persisted locally and queued for the remote.
	stored, err := f.manager.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, stored.ID)

	queued := f.queuedFor(t, models.CollectionSessions)
	require.Len(t, queued, 1)
	assert.Equal(t, models.OpCreate, queued[0].Operation)
}

func TestSessionManager_GetActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active, err := f.manager.GetActive(ctx)
	require.NoError(t, err)
	assert.Nil(t, active, "no session yet")

	short, err := f.manager.Create(ctx, "Morning", "service", time.Hour, "organizer-1")
	require.NoError(t, err)
	long, err := f.manager.Create(ctx, "All Day", "event", 8*time.Hour, "organizer-1")
	require.NoError(t, err)

	active, err = f.manager.GetActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, long.ID, active.ID, "latest expiry wins")
	assert.NotEqual(t, short.ID, active.ID)
}

func TestSessionManager_GetActive_LazyExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Create(ctx, "Morning", "service", time.Hour, "organizer-1")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)

	active, err := f.manager.GetActive(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	// The expired session was deactivated, not deleted.
	stored, err := f.manager.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestSessionManager_Close_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Create(ctx, "Morning", "service", time.Hour, "organizer-1")
	require.NoError(t, err)

	require.NoError(t, f.manager.Close(ctx, session.ID))
	queuedAfterFirst := len(f.queuedFor(t, models.CollectionSessions))

	require.NoError(t, f.manager.Close(ctx, session.ID))
	assert.Len(t, f.queuedFor(t, models.CollectionSessions), queuedAfterFirst,
		"closing a closed session must not enqueue anything")

	stored, err := f.manager.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestSessionManager_Close_Unknown(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.manager.Close(context.Background(), "missing"), store.ErrNotFound)
}

func TestValidator_ValidityWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 180-minute session created at T0.
	session, err := f.manager.Create(ctx, "Sunday Service", "service", 180*time.Minute, "organizer-1")
	require.NoError(t, err)
	token := f.token(t, session)

	// T0+10min: the scan succeeds.
	f.clock.Advance(10 * time.Minute)
	record, err := f.validator.CheckIn(ctx, CheckInRequest{Token: token, UserID: "member-1"})
	require.NoError(t, err)
	assert.Equal(t, "member-1", record.UserID)
	assert.Equal(t, models.MethodQR, record.Method)

	// T0+181min: the identical payload is expired.
	f.clock.Advance(171 * time.Minute)
	_, err = f.validator.CheckIn(ctx, CheckInRequest{Token: token, UserID: "member-2"})
	assert.ErrorIs(t, err, ErrExpired)
}

func TestValidator_StaleWord(t *testing.T) {
	f := newFixture(t)

	// A token generated yesterday carries yesterday's word.
	yesterday := f.clock.Now().AddDate(0, 0, -1)
	token, err := qrtoken.Encode(qrtoken.Payload{
		SessionID: "session-1",
		Word:      wordofday.ForDate(yesterday),
		ExpiresAt: f.clock.Now().Add(time.Hour),
	}, testSecret)
	require.NoError(t, err)

	_, verr := f.validator.Validate(token)
	assert.ErrorIs(t, verr, ErrStaleToken)
}

func TestValidator_Malformed(t *testing.T) {
	f := newFixture(t)

	_, err := f.validator.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestValidator_DuplicateCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Create(ctx, "Sunday Service", "service", 3*time.Hour, "organizer-1")
	require.NoError(t, err)
	token := f.token(t, session)

	_, err = f.validator.CheckIn(ctx, CheckInRequest{Token: token, UserID: "member-1"})
	require.NoError(t, err)

	_, err = f.validator.CheckIn(ctx, CheckInRequest{Token: token, UserID: "member-1"})
	assert.ErrorIs(t, err, ErrDuplicate)

	recs, err := f.store.GetByIndex(ctx, models.CollectionRecords, models.FieldSessionID, session.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "exactly one record per (user, session)")
}

func TestValidator_VisitorsAreExempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Create(ctx, "Open House", "event", 3*time.Hour, "organizer-1")
	require.NoError(t, err)
	token := f.token(t, session)

	a, err := f.validator.CheckIn(ctx, CheckInRequest{Token: token, Visitor: &models.VisitorInfo{Name: "Visitor A"}})
	require.NoError(t, err)
	b, err := f.validator.CheckIn(ctx, CheckInRequest{Token: token, Visitor: &models.VisitorInfo{Name: "Visitor B"}})
	require.NoError(t, err)

	assert.NotEqual(t, a.UserID, b.UserID, "visitors get distinct generated ids")
	assert.True(t, a.IsVisitor)
	assert.True(t, b.IsVisitor)

	recs, err := f.store.GetByIndex(ctx, models.CollectionRecords, models.FieldSessionID, session.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 2, "both visitor records commit")
}

func TestValidator_ClosedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Create(ctx, "Morning", "service", 3*time.Hour, "organizer-1")
	require.NoError(t, err)
	token := f.token(t, session)
	require.NoError(t, f.manager.Close(ctx, session.ID))

	_, err = f.validator.CheckIn(ctx, CheckInRequest{Token: token, UserID: "member-1"})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestValidator_UnsyncedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The session lives on another device and has not synced here yet; the
	// token alone carries enough to accept the check-in.
	token, err := qrtoken.Encode(qrtoken.Payload{
		SessionID: "remote-session",
		Word:      wordofday.ForDate(f.clock.Now()),
		ExpiresAt: f.clock.Now().Add(time.Hour),
	}, testSecret)
	require.NoError(t, err)

	record, err := f.validator.CheckIn(ctx, CheckInRequest{Token: token, UserID: "member-1", Method: models.MethodOffline})
	require.NoError(t, err)
	assert.Equal(t, "remote-session", record.SessionID)
	assert.Equal(t, models.MethodOffline, record.Method)
}

func TestValidator_CheckInUpdatesCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Create(ctx, "Sunday Service", "service", 3*time.Hour, "organizer-1")
	require.NoError(t, err)
	token := f.token(t, session)

	_, err = f.validator.CheckIn(ctx, CheckInRequest{Token: token, UserID: "member-1"})
	require.NoError(t, err)

	stored, err := f.manager.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AttendanceCount)

	// The record create and the counter update both ride the queue.
	assert.Len(t, f.queuedFor(t, models.CollectionRecords), 1)
	assert.Len(t, f.queuedFor(t, models.CollectionSessions), 2, "session create plus counter update")
}

func TestCanCheckIn(t *testing.T) {
	f := newFixture(t)

	existing := []*models.AttendanceRecord{
		{UserID: "member-1", SessionID: "s1"},
		{UserID: "visitor-abc", SessionID: "s1", IsVisitor: true},
	}

	assert.False(t, f.validator.CanCheckIn("member-1", "s1", existing))
	assert.True(t, f.validator.CanCheckIn("member-2", "s1", existing))
	assert.True(t, f.validator.CanCheckIn("visitor-xyz", "s1", existing))
}
