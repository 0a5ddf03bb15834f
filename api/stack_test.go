package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"pet-chat/auth"
	"pet-chat/domain"
	"pet-chat/moderation"
	"pet-chat/presence"
	"pet-chat/repositories"
	"pet-chat/services"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newStack(t *testing.T) (alice, bob, mallory client) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	users := repositories.NewUserRepository(db)
	require.NoError(t, users.SaveProfile(t.Context(), domain.Participant{ID: "alice", Name: "Alice", Email: "alice@pets.example"}))

	censor, err := moderation.NewModerator([]string{"scammer"}, '*', log)
	require.NoError(t, err)
	service := services.NewChatService(
		repositories.NewConversationRepository(db, log),
		repositories.NewMessageRepository(db, log),
		users,
		presence.NewMemoryRegistry(),
		log,
		services.WithCensor(censor),
	)

	authenticator := auth.NewAuthenticator(secret)
	router := NewRouter(NewHandler(service, log), authenticator, nil, []string{"https://pets.example"}, log)
	as := func(userID string) client {
		token, err := authenticator.GenerateToken(userID, "buyer", time.Hour)
		require.NoError(t, err)
		return client{t: t, router: router, token: token}
	}
	return as("alice"), as("bob"), as("mallory")
}

func decode[T any](t *testing.T, raw []byte) T {
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestStack_Conversation_Lifecycle(t *testing.T) {
	req := require.New(t)
	alice, bob, mallory := newStack(t)

	// Given alice opens a conversation with bob
	w := alice.do(http.MethodPost, "/api/chats", gin.H{"senderId": "alice", "receiverId": "bob"})
	req.Equal(http.StatusOK, w.Code)
	chat := decode[map[string]any](t, w.Body.Bytes())
	chatID := chat["_id"].(string)
	req.NotEmpty(chatID)
	req.Len(chat["members"], 2)

	// When bob opens it from his side, he gets the same conversation
	w = bob.do(http.MethodPost, "/api/chats", gin.H{"senderId": "bob", "receiverId": "alice"})
	req.Equal(http.StatusOK, w.Code)
	req.Equal(chatID, decode[map[string]any](t, w.Body.Bytes())["_id"])

	// And alice writes twice, once rudely
	w = alice.do(http.MethodPost, "/api/messages", gin.H{"chatId": chatID, "text": "Hello, is the kitten still available?"})
	req.Equal(http.StatusCreated, w.Code)
	w = alice.do(http.MethodPost, "/api/messages", gin.H{"chatId": chatID, "text": "answer me scammer"})
	req.Equal(http.StatusCreated, w.Code)
	req.Equal("answer me *******", decode[domain.Message](t, w.Body.Bytes()).Text)

	// Then bob has two unread messages, alice none
	w = bob.do(http.MethodGet, "/api/messages/unread/count", nil)
	req.JSONEq(`{"`+chatID+`":2}`, w.Body.String())
	w = alice.do(http.MethodGet, "/api/messages/unread/count", nil)
	req.JSONEq(`{}`, w.Body.String())

	// And a stranger can neither read nor write
	req.Equal(http.StatusForbidden, mallory.do(http.MethodGet, "/api/messages/"+chatID, nil).Code)
	req.Equal(http.StatusForbidden, mallory.do(http.MethodPost, "/api/messages", gin.H{"chatId": chatID, "text": "hi"}).Code)
	req.Equal(http.StatusForbidden, mallory.do(http.MethodPatch, "/api/messages/read/"+chatID, nil).Code)

	// When bob reads the conversation
	w = bob.do(http.MethodPatch, "/api/messages/read/"+chatID, nil)
	req.JSONEq(`{"updatedCount":2}`, w.Body.String())
	w = bob.do(http.MethodPatch, "/api/messages/read/"+chatID, nil)
	req.JSONEq(`{"updatedCount":0}`, w.Body.String())

	// Then the history is in write order and read
	w = bob.do(http.MethodGet, "/api/messages/"+chatID, nil)
	req.Equal(http.StatusOK, w.Code)
	messages := decode[[]domain.Message](t, w.Body.Bytes())
	req.Len(messages, 2)
	req.Equal("Hello, is the kitten still available?", messages[0].Text)
	req.True(messages[0].IsRead)
	req.True(messages[1].IsRead)

	// And the conversation list carries the stored profile
	w = bob.do(http.MethodGet, "/api/chats", nil)
	req.Equal(http.StatusOK, w.Code)
	conversations := decode[[]map[string]any](t, w.Body.Bytes())
	req.Len(conversations, 1)
	req.Contains(w.Body.String(), `"name":"Alice"`)
}

func TestStack_Unknown_Chat_And_Presence(t *testing.T) {
	req := require.New(t)
	alice, _, _ := newStack(t)

	req.Equal(http.StatusNotFound, alice.do(http.MethodGet, "/api/messages/ghost", nil).Code)
	req.Equal(http.StatusBadRequest, alice.do(http.MethodPost, "/api/chats", gin.H{"senderId": "alice", "receiverId": "alice"}).Code)

	w := alice.do(http.MethodGet, "/api/users/bob/presence", nil)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"userId":"bob","online":false}`, w.Body.String())
}
