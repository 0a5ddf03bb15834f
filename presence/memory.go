// Package presence tracks which users currently hold a realtime connection.
// One active connection per user: a later join for the same user replaces the earlier one.
package presence

import (
	"context"
	"pet-chat/contract"
	"sync"
)

var _ contract.IPresenceRegistry = (*MemoryRegistry)(nil)

// MemoryRegistry lives for the process lifetime and is never persisted.
// byConnection is the auxiliary index that makes Leave a map lookup.
type MemoryRegistry struct {
	mu           sync.RWMutex
	byUser       map[string]string // user -> connection
	byConnection map[string]string // connection -> user
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byUser:       make(map[string]string),
		byConnection: make(map[string]string),
	}
}

// Join maps userID to connectionID.
// The connection previously mapped to userID is orphaned: its own Leave frees nobody.
// A connection that re-joins under another user stops representing the first one.
func (r *MemoryRegistry) Join(_ context.Context, userID, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.byUser[userID]; ok && previous != connectionID {
		delete(r.byConnection, previous)
	}
	if previousUser, ok := r.byConnection[connectionID]; ok && previousUser != userID {
		if r.byUser[previousUser] == connectionID {
			delete(r.byUser, previousUser)
		}
	}
	r.byUser[userID] = connectionID
	r.byConnection[connectionID] = userID
	return nil
}

func (r *MemoryRegistry) Leave(_ context.Context, connectionID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConnection[connectionID]
	if !ok {
		return "", false, nil
	}
	delete(r.byConnection, connectionID)
	if r.byUser[userID] == connectionID {
		delete(r.byUser, userID)
	}
	return userID, true, nil
}

// Refresh has nothing to extend: entries die with the process.
func (r *MemoryRegistry) Refresh(context.Context, string) error {
	return nil
}

func (r *MemoryRegistry) IsOnline(_ context.Context, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok, nil
}
