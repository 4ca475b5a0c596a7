package store

import "sync"

// boardLocks hands out one mutex per board so that all mutations on a
// board are serialized while different boards proceed in parallel.
type boardLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newBoardLocks() *boardLocks {
	return &boardLocks{locks: make(map[int64]*sync.Mutex)}
}

func (l *boardLocks) get(boardID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.locks[boardID]; ok {
		return m
	}
	m := &sync.Mutex{}
	l.locks[boardID] = m
	return m
}

// forget drops a board's mutex, e.g. after the board itself is deleted.
func (l *boardLocks) forget(boardID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, boardID)
}
