package presence

import (
	"sync"

	"whiteboard-backend/internal/model"
)

// Entry describes one connected session inside one board room. Entries
// live exactly as long as the connection's membership and are never
// persisted; after a restart the registry starts empty and refills as
// clients reconnect. It is a disposable cache of who is around, never an
// authorization source.
type Entry struct {
	SessionID string     `json:"socketId"`
	UserID    int64      `json:"id"`
	Nickname  string     `json:"nickname"`
	Color     string     `json:"color"`
	Role      model.Role `json:"role"`
}

// Registry is the process-local presence map: board → session → entry.
type Registry struct {
	mu     sync.RWMutex
	boards map[int64]map[string]Entry
}

// NewRegistry Registry 생성
func NewRegistry() *Registry {
	return &Registry{
		boards: make(map[int64]map[string]Entry),
	}
}

// Join registers a session in a board's room.
func (r *Registry) Join(boardID int64, entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.boards[boardID]
	if !ok {
		room = make(map[string]Entry)
		r.boards[boardID] = room
	}
	room[entry.SessionID] = entry
}

// Leave removes a session from a board's room. An emptied room bucket is
// deleted to keep the map bounded. Returns the removed entry, if any.
func (r *Registry) Leave(boardID int64, sessionID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.boards[boardID]
	if !ok {
		return Entry{}, false
	}
	entry, ok := room[sessionID]
	if !ok {
		return Entry{}, false
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(r.boards, boardID)
	}
	return entry, true
}

// MembersOf returns a snapshot of the sessions currently in a board's room.
func (r *Registry) MembersOf(boardID int64) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.boards[boardID]
	members := make([]Entry, 0, len(room))
	for _, entry := range room {
		members = append(members, entry)
	}
	return members
}

// IsEmpty reports whether a board currently has no presence bucket.
func (r *Registry) IsEmpty(boardID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.boards[boardID]) == 0
}
