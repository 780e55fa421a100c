package models

// Session is a named processing window within a business day.
type Session string

const (
	SessionMorning Session = "morning"
	SessionClose   Session = "close"
)

// Valid reports whether the session is one of the supported windows.
func (s Session) Valid() bool {
	return s == SessionMorning || s == SessionClose
}

// AllSessions lists the sessions that make up a complete business day,
// in processing order.
func AllSessions() []Session {
	return []Session{SessionMorning, SessionClose}
}
