package runtime

import (
	"pet-chat/contract"
	"pet-chat/domain"
	"sync"
)

var _ contract.IRegistry = (*Registry)(nil)

type Set map[string]struct{}

// Registry keeps the realtime topology of the process:
// every open connection with its sink, and the rooms each connection listens on.
type Registry struct {
	mu              sync.RWMutex
	sessions        map[string]contract.EventSink // connection -> sink
	roomMembers     map[domain.RoomID]Set         // room -> connections
	connectionRooms map[string]map[domain.RoomID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:        make(map[string]contract.EventSink),
		roomMembers:     make(map[domain.RoomID]Set),
		connectionRooms: make(map[string]map[domain.RoomID]struct{}),
	}
}

// Register makes a connection reachable by broadcasts. It listens on no room yet.
func (r *Registry) Register(connectionID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connectionID] = sink
}

// Subscribe adds a registered connection to a room, creating the room on the fly.
// Unknown connections are ignored: they closed before their join was handled.
func (r *Registry) Subscribe(connectionID string, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connectionID]; !ok {
		return
	}
	if _, ok := r.roomMembers[roomID]; !ok {
		r.roomMembers[roomID] = make(Set)
	}
	r.roomMembers[roomID][connectionID] = struct{}{}

	if _, ok := r.connectionRooms[connectionID]; !ok {
		r.connectionRooms[connectionID] = make(map[domain.RoomID]struct{})
	}
	r.connectionRooms[connectionID][roomID] = struct{}{}
}

// Unregister drops the connection and every room membership it held.
// Rooms left empty are removed so the maps do not grow with churn.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, connectionID)
	for roomID := range r.connectionRooms[connectionID] {
		members := r.roomMembers[roomID]
		delete(members, connectionID)
		if len(members) == 0 {
			delete(r.roomMembers, roomID)
		}
	}
	delete(r.connectionRooms, connectionID)
}

// GetSinksForRoom returns the sinks of the connections listening on the room, nil if none.
func (r *Registry) GetSinksForRoom(roomID domain.RoomID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[roomID]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(members))
	for connectionID := range members {
		if sink, exists := r.sessions[connectionID]; exists {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// GetSinksExcept returns every registered sink but the one of connectionID.
func (r *Registry) GetSinksExcept(connectionID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]contract.EventSink, 0, len(r.sessions))
	for id, sink := range r.sessions {
		if id != connectionID {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}
