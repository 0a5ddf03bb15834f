// Package domain contains core concepts of the chat system.
// This file defines Participant profiles and Conversation pairing rules.
package domain

import (
	"sort"
	"strings"
	"time"
)

// Participant is the display profile of a conversation member.
// Profiles belong to the account service, chat only reads them.
type Participant struct {
	ID    string `json:"_id" bson:"_id"`
	Name  string `json:"name,omitempty" bson:"name"`
	Email string `json:"email,omitempty" bson:"email"`
}

// Conversation pairs exactly two users.
type Conversation struct {
	ID           string        `json:"_id"`
	Members      []string      `json:"-"`
	Participants []Participant `json:"members"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// pairSeparator joins the two ids of a pair, stores build their keys with it too.
const pairSeparator = "|"

// ValidUserID reports whether id can take part in a conversation.
// An id holding the separator would make two different pairs share a key.
func ValidUserID(id string) bool {
	return id != "" && !strings.Contains(id, pairSeparator)
}

// PairKey identifies the unordered pair {a, b}: PairKey(a, b) == PairKey(b, a).
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, pairSeparator)
}

// HasMember reports whether userID takes part in the conversation.
func (c Conversation) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Peer returns the other member of the conversation, or "" if userID is not a member.
func (c Conversation) Peer(userID string) string {
	if !c.HasMember(userID) {
		return ""
	}
	for _, m := range c.Members {
		if m != userID {
			return m
		}
	}
	return ""
}
