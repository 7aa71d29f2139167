package websocket

import "sync"

// Directory is the live presence index: identity id to connection handle.
// At most one handle per identity; a new registration supersedes the old
// one. Entries are weak references routed through the hub's connection
// table, never object pointers, and do not survive a restart.
type Directory struct {
	mu       sync.RWMutex
	byUser   map[string]string
	byHandle map[string]string
}

func NewDirectory() *Directory {
	return &Directory{
		byUser:   make(map[string]string),
		byHandle: make(map[string]string),
	}
}

// Register points userID at handle and returns the handle it displaced,
// if any.
func (d *Directory) Register(userID, handle string) (prev string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev = d.byUser[userID]
	if prev != "" {
		delete(d.byHandle, prev)
	}
	d.byUser[userID] = handle
	d.byHandle[handle] = userID
	return prev
}

// Lookup returns the live handle for an identity.
func (d *Directory) Lookup(userID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.byUser[userID]
	return h, ok
}

// RemoveHandle clears whatever identity currently points at handle.
// Idempotent; a handle superseded by a newer registration is already gone
// and removing it must not touch the newer entry.
func (d *Directory) RemoveHandle(handle string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	userID, ok := d.byHandle[handle]
	if !ok {
		return
	}
	delete(d.byHandle, handle)
	if d.byUser[userID] == handle {
		delete(d.byUser, userID)
	}
}

// Online reports whether the identity has a live handle.
func (d *Directory) Online(userID string) bool {
	_, ok := d.Lookup(userID)
	return ok
}

// Count returns the number of live entries.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byUser)
}
