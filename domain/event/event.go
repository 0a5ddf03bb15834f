// Package event defines the realtime protocol spoken over the websocket.
// Every inbound event has an explicit payload schema, so a malformed frame is
// rejected by a structural check before any handler runs.
package event

import (
	"encoding/json"
	"fmt"

	"pet-chat/domain"
	"pet-chat/errors"

	"github.com/go-playground/validator/v10"
)

type Name string

// Client to server.
const (
	Join        Name = "join"
	SendMessage Name = "sendMessage"
	Typing      Name = "typing"
	StopTyping  Name = "stopTyping"
	MessageRead Name = "messageRead"
	// Disconnect and Heartbeat are never sent by a client. The gateway raises
	// Disconnect when a connection closes and Heartbeat on every pong.
	Disconnect Name = "disconnect"
	Heartbeat  Name = "heartbeat"
)

// Server to client.
const (
	ReceiveMessage Name = "receiveMessage"
	ChatCreated    Name = "chatCreated"
	UserOnline     Name = "userOnline"
	UserOffline    Name = "userOffline"
)

// Envelope is the JSON frame exchanged in both directions.
type Envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinPayload is carried as a bare JSON string on the wire.
type JoinPayload struct {
	UserID string `validate:"required"`
}

// SendMessagePayload relays a message the client already persisted through REST.
// Message is kept verbatim, only its chatId is read.
type SendMessagePayload struct {
	ReceiverID string          `json:"receiverId" validate:"required"`
	Message    json.RawMessage `json:"message" validate:"required"`
	ChatID     string          `json:"-"`
}

// messageRef is the part of a relayed message the gateway needs.
type messageRef struct {
	ChatID string `json:"chatId" validate:"required"`
}

// TypingPayload is shared by typing and stopTyping.
type TypingPayload struct {
	ReceiverID string `json:"receiverId" validate:"required"`
}

type ReadReceipt struct {
	ChatID   string `json:"chatId" validate:"required"`
	ReaderID string `json:"readerId" validate:"required"`
}

// TypingNotice tags a typing indicator with the sender connection, not the user.
type TypingNotice struct {
	From string `json:"from"`
}

// Inbound is a decoded client event bound to the connection it arrived on.
// Payload holds one of the *Payload types above, or nil for Disconnect and Heartbeat.
type Inbound struct {
	ConnectionID string
	Name         Name
	Payload      any
}

// Outbound is a server event ready to be written to a connection.
type Outbound struct {
	Name Name
	Data any
}

// MarshalJSON renders the outbound event as an Envelope.
func (o Outbound) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(o.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: o.Name, Data: data})
}

var validate = validator.New()

// Decode parses a raw frame into an Inbound event.
// Any failure wraps errors.ErrMalformedEvent.
func Decode(connectionID string, frame []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", errors.ErrMalformedEvent, err)
	}
	payload, err := decodePayload(env)
	if err != nil {
		return Inbound{}, fmt.Errorf("%w: %s: %v", errors.ErrMalformedEvent, env.Event, err)
	}
	return Inbound{ConnectionID: connectionID, Name: env.Event, Payload: payload}, nil
}

func decodePayload(env Envelope) (any, error) {
	switch env.Event {
	case Join:
		var userID string
		if err := json.Unmarshal(env.Data, &userID); err != nil {
			return nil, err
		}
		if domain.BlankText(userID) {
			return nil, fmt.Errorf("blank user id")
		}
		p := JoinPayload{UserID: userID}
		return p, validate.Struct(p)
	case SendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		if err := validate.Struct(p); err != nil {
			return nil, err
		}
		var ref messageRef
		if err := json.Unmarshal(p.Message, &ref); err != nil {
			return nil, fmt.Errorf("message: %w", err)
		}
		if err := validate.Struct(ref); err != nil {
			return nil, err
		}
		p.ChatID = ref.ChatID
		return p, nil
	case Typing, StopTyping:
		var p TypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, validate.Struct(p)
	case MessageRead:
		var p ReadReceipt
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, validate.Struct(p)
	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
}
