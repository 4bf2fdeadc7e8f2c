package attendance

// ValidationError is a check-in rejection. Validation failures are never
// retried; the reason goes straight back to the caller.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Detail
}

var (
	// ErrMalformed: the scanned string failed to decode or is missing fields.
	ErrMalformed = &ValidationError{Reason: "MALFORMED", Detail: "unreadable check-in code"}
	// ErrStaleToken: the code carries a word from a different day.
	ErrStaleToken = &ValidationError{Reason: "STALE_TOKEN", Detail: "code was generated on a different day"}
	// ErrExpired: the session window has passed.
	ErrExpired = &ValidationError{Reason: "EXPIRED", Detail: "session has expired"}
	// ErrSessionClosed: the organizer closed the session before it expired.
	ErrSessionClosed = &ValidationError{Reason: "SESSION_CLOSED", Detail: "session was closed by the organizer"}
	// ErrDuplicate: the member already checked into this session.
	ErrDuplicate = &ValidationError{Reason: "DUPLICATE", Detail: "already checked in to this session"}
)
