package runtime

import (
	"context"
	"pet-chat/contract"
	"pet-chat/domain"
	"pet-chat/domain/event"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type Sink struct {
	id string
}

func (s Sink) Consume(_ context.Context, _ event.Outbound) error {
	return nil
}

func TestRegistry_Subscribe_One_Room_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connectionID := uuid.NewString()
	roomID := domain.RoomForUser("alice")
	sink := Sink{id: connectionID}

	// Given no connection is registered
	req.Empty(registry.sessions)
	req.Empty(registry.roomMembers)

	// When a connection registers and subscribes a room
	registry.Register(connectionID, sink)
	registry.Subscribe(connectionID, roomID)

	// Then
	req.Len(registry.sessions, 1)
	req.Len(registry.roomMembers, 1)
	req.Contains(registry.roomMembers[roomID], connectionID)
	req.Equal([]contract.EventSink{sink}, registry.GetSinksForRoom(roomID))
}

func TestRegistry_Subscribe_Unregistered_Connection_Is_Ignored(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Subscribe("gone", domain.RoomForUser("alice"))

	req.Empty(registry.roomMembers)
	req.Nil(registry.GetSinksForRoom(domain.RoomForUser("alice")))
}

func TestRegistry_Unregister_Leaves_Every_Room(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice, bob := Sink{id: "c-alice"}, Sink{id: "c-bob"}
	registry.Register(alice.id, alice)
	registry.Register(bob.id, bob)

	// Given alice listens on her room and a conversation room shared with bob
	registry.Subscribe(alice.id, domain.RoomForUser("alice"))
	registry.Subscribe(alice.id, domain.RoomForConversation("c1"))
	registry.Subscribe(bob.id, domain.RoomForConversation("c1"))

	// When alice's connection closes
	registry.Unregister(alice.id)

	// Then her personal room is gone and the shared room only holds bob
	req.Nil(registry.GetSinksForRoom(domain.RoomForUser("alice")))
	req.Equal([]contract.EventSink{bob}, registry.GetSinksForRoom(domain.RoomForConversation("c1")))
	req.NotContains(registry.connectionRooms, alice.id)
	req.Len(registry.sessions, 1)
}

func TestRegistry_GetSinksExcept(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	for _, id := range []string{"x", "y", "z"} {
		registry.Register(id, Sink{id: id})
	}

	others := registry.GetSinksExcept("y")
	req.Len(others, 2)
	req.ElementsMatch([]contract.EventSink{Sink{id: "x"}, Sink{id: "z"}}, others)
}

