// Package domain contains core concepts of the chat system.
// This file defines Message records and related rules.
package domain

import (
	"strings"
	"time"
)

// Message is one entry of a conversation log.
// IsRead only moves from false to true and only for the non author participant.
type Message struct {
	ID        string    `json:"_id" bson:"_id"`
	ChatID    string    `json:"chatId" bson:"chatId" validate:"required"`
	SenderID  string    `json:"senderId" bson:"senderId"`
	Text      string    `json:"text" bson:"text"`
	IsRead    bool      `json:"isRead" bson:"isRead"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// UnreadCounts maps a conversation id to its number of unread messages.
// Conversations without unread messages are absent.
type UnreadCounts map[string]int

// BlankText reports whether a message body carries no visible content.
func BlankText(text string) bool {
	return strings.TrimSpace(text) == ""
}
