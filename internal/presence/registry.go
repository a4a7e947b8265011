// Package presence tracks which users currently hold a live session.
//
// A Registry has no internal locking. It belongs to exactly one goroutine
// (the websocket hub loop), which performs every read and write.
package presence

// Entry pairs a user with the session that announced them.
type Entry struct {
	UserID    string `json:"userId"`
	SessionID string `json:"socketId"`
}

// Registry is an ordered list of entries, at most one per user.
type Registry struct {
	entries []Entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends (userID, sessionID) unless userID is already present.
// The existing entry keeps its session; re-announcing from another session
// does not take it over. Reports whether an entry was added.
func (r *Registry) Register(userID, sessionID string) bool {
	if _, ok := r.Lookup(userID); ok {
		return false
	}
	r.entries = append(r.entries, Entry{UserID: userID, SessionID: sessionID})
	return true
}

// Deregister removes every entry owned by sessionID and returns how many
// were removed.
func (r *Registry) Deregister(sessionID string) int {
	kept := r.entries[:0]
	removed := 0
	for _, e := range r.entries {
		if e.SessionID == sessionID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// clear the tail so dropped entries do not linger in the backing array
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = Entry{}
	}
	r.entries = kept
	return removed
}

// Lookup returns the session registered for userID.
func (r *Registry) Lookup(userID string) (string, bool) {
	for _, e := range r.entries {
		if e.UserID == userID {
			return e.SessionID, true
		}
	}
	return "", false
}

// Snapshot returns a copy of the entries in registration order. It is never
// nil so it encodes as an empty JSON array.
func (r *Registry) Snapshot() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Registry) Len() int {
	return len(r.entries)
}
