package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoom_AddressingSchemesNeverCollide(t *testing.T) {
	req := require.New(t)

	// Given the same identifier used as a user id and a conversation id
	id := "65f0c0ffee"

	// Then both schemes produce distinct rooms
	req.NotEqual(RoomForUser(id), RoomForConversation(id))
	req.Equal(RoomForUser(id), RoomForUser(id))
	req.Equal(RoomID("chat:"+id), RoomForConversation(id))
}
