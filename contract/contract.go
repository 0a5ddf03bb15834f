//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"pet-chat/domain"
	"pet-chat/domain/event"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used in supervision logs.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives server events for one connection.
// Consume must not block: a sink that cannot accept an event drops it.
type EventSink interface {
	Consume(ctx context.Context, e event.Outbound) error
}

// IRegistry tracks which connections listen on which rooms.
type IRegistry interface {
	Register(connectionID string, sink EventSink)
	Unregister(connectionID string)
	Subscribe(connectionID string, roomID domain.RoomID)
	GetSinksForRoom(roomID domain.RoomID) []EventSink
	GetSinksExcept(connectionID string) []EventSink
}

// IDispatcher hands inbound events to the workers, preserving per connection order.
type IDispatcher interface {
	Dispatch(ctx context.Context, in event.Inbound)
}

// IEventHandler applies one inbound event.
type IEventHandler interface {
	Handle(ctx context.Context, in event.Inbound)
}

// IPresenceRegistry maps a user to its single active connection.
type IPresenceRegistry interface {
	Join(ctx context.Context, userID, connectionID string) error
	// Leave returns the user freed by the connection, freed is false for a stale connection.
	Leave(ctx context.Context, connectionID string) (userID string, freed bool, err error)
	// Refresh keeps the entry of a live connection from expiring.
	Refresh(ctx context.Context, connectionID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type IConversationRepository interface {
	GetOrCreate(ctx context.Context, participantA, participantB string) (domain.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error)
	Get(ctx context.Context, conversationID string) (domain.Conversation, error)
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)
}

type IMessageRepository interface {
	Append(ctx context.Context, conversationID, senderID, text string) (domain.Message, error)
	ListForConversation(ctx context.Context, conversationID string) ([]domain.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string) (int, error)
	UnreadCounts(ctx context.Context, readerID string) (domain.UnreadCounts, error)
}

// IUserDirectory resolves display profiles. Unknown ids are simply absent from the result.
type IUserDirectory interface {
	Profiles(ctx context.Context, userIDs ...string) (map[string]domain.Participant, error)
}

// ICensor rewrites forbidden words of a message body.
type ICensor interface {
	Censor(text string) (string, []string)
}

// IChatService is the REST facing use cases.
type IChatService interface {
	OpenConversation(ctx context.Context, callerID, senderID, receiverID string) (domain.Conversation, error)
	Conversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	SendMessage(ctx context.Context, conversationID, senderID, text string) (domain.Message, error)
	Messages(ctx context.Context, conversationID, userID string) ([]domain.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string) (int, error)
	UnreadCounts(ctx context.Context, readerID string) (domain.UnreadCounts, error)
	IsOnline(ctx context.Context, userID string) (bool, error)
}
