package domain

// RoomID names a broadcast group on the realtime channel.
// Two addressing schemes coexist: personal rooms (one per user) used by
// send, typing and presence events, and conversation rooms used by read receipts.
type RoomID string

const (
	userRoomPrefix         = "user:"
	conversationRoomPrefix = "chat:"
)

// RoomForUser is the personal room a connection joins when it announces its user id.
func RoomForUser(userID string) RoomID {
	return RoomID(userRoomPrefix + userID)
}

// RoomForConversation is the room read receipts of a conversation are emitted into.
func RoomForConversation(conversationID string) RoomID {
	return RoomID(conversationRoomPrefix + conversationID)
}
