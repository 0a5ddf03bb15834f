// Package gateway is the realtime side of the chat: websocket connections,
// user and conversation rooms, presence notifications.
// Delivery is best effort and at most once, the REST write path stays the source of truth.
package gateway

import (
	"context"
	"log/slog"
	"pet-chat/contract"
	"pet-chat/domain"
	"pet-chat/domain/event"
)

var _ contract.IEventHandler = (*Gateway)(nil)

// Gateway applies inbound events. It holds no global state: presence and room
// membership are injected so either can move to a shared store.
type Gateway struct {
	presence contract.IPresenceRegistry
	rooms    contract.IRegistry
	log      *slog.Logger
}

func NewGateway(presence contract.IPresenceRegistry, rooms contract.IRegistry, log *slog.Logger) *Gateway {
	return &Gateway{presence: presence, rooms: rooms, log: log}
}

// Connect makes a new connection reachable by broadcasts.
func (g *Gateway) Connect(connectionID string, sink contract.EventSink) {
	g.rooms.Register(connectionID, sink)
	g.log.Debug("Connection opened", "conn", connectionID)
}

func (g *Gateway) Handle(ctx context.Context, in event.Inbound) {
	var handled bool
	switch in.Name {
	case event.Join:
		p, ok := in.Payload.(event.JoinPayload)
		if handled = ok; ok {
			g.join(ctx, in.ConnectionID, p)
		}
	case event.SendMessage:
		p, ok := in.Payload.(event.SendMessagePayload)
		if handled = ok; ok {
			g.relayMessage(ctx, p)
		}
	case event.Typing, event.StopTyping:
		p, ok := in.Payload.(event.TypingPayload)
		if handled = ok; ok {
			notice := event.Outbound{Name: in.Name, Data: event.TypingNotice{From: in.ConnectionID}}
			g.emit(ctx, g.rooms.GetSinksForRoom(domain.RoomForUser(p.ReceiverID)), notice)
		}
	case event.MessageRead:
		p, ok := in.Payload.(event.ReadReceipt)
		if handled = ok; ok {
			// Nothing subscribes connections to conversation rooms yet.
			receipt := event.Outbound{Name: event.MessageRead, Data: p}
			g.emit(ctx, g.rooms.GetSinksForRoom(domain.RoomForConversation(p.ChatID)), receipt)
		}
	case event.Heartbeat:
		handled = true
		if err := g.presence.Refresh(ctx, in.ConnectionID); err != nil {
			g.log.Warn("Presence refresh failed", "conn", in.ConnectionID, "error", err)
		}
	case event.Disconnect:
		handled = true
		g.disconnect(ctx, in.ConnectionID)
	}
	if !handled {
		g.log.Debug("Event dropped", "conn", in.ConnectionID, "event", in.Name)
	}
}

func (g *Gateway) join(ctx context.Context, connectionID string, p event.JoinPayload) {
	if err := g.presence.Join(ctx, p.UserID, connectionID); err != nil {
		// The room still works without presence, only isOnline is wrong.
		g.log.Warn("Presence join failed", "conn", connectionID, "user", p.UserID, "error", err)
	}
	g.rooms.Subscribe(connectionID, domain.RoomForUser(p.UserID))
	g.emit(ctx, g.rooms.GetSinksExcept(connectionID), event.Outbound{Name: event.UserOnline, Data: p.UserID})
	g.log.Debug("User joined", "conn", connectionID, "user", p.UserID)
}

// relayMessage notifies the recipient of a message already persisted through REST.
// The message goes out byte for byte as the sender wrote it.
// chatCreated lets a recipient without an open chat window learn about the conversation.
func (g *Gateway) relayMessage(ctx context.Context, p event.SendMessagePayload) {
	sinks := g.rooms.GetSinksForRoom(domain.RoomForUser(p.ReceiverID))
	g.emit(ctx, sinks,
		event.Outbound{Name: event.ReceiveMessage, Data: p.Message},
		event.Outbound{Name: event.ChatCreated, Data: p.ChatID},
	)
}

func (g *Gateway) disconnect(ctx context.Context, connectionID string) {
	g.rooms.Unregister(connectionID)
	userID, freed, err := g.presence.Leave(ctx, connectionID)
	if err != nil {
		g.log.Warn("Presence leave failed", "conn", connectionID, "error", err)
		return
	}
	g.log.Debug("Connection closed", "conn", connectionID, "user", userID)
	if freed {
		g.emit(ctx, g.rooms.GetSinksExcept(connectionID), event.Outbound{Name: event.UserOffline, Data: userID})
	}
}

// emit writes the events to every sink, in order. Failures are dropped.
func (g *Gateway) emit(ctx context.Context, sinks []contract.EventSink, events ...event.Outbound) {
	for _, sink := range sinks {
		for _, e := range events {
			if err := sink.Consume(ctx, e); err != nil {
				g.log.Debug("Event not delivered", "event", e.Name, "error", err)
			}
		}
	}
}
