package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"pet-chat/auth"
	"pet-chat/domain"
	"pet-chat/errors"
	"pet-chat/mocks"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const secret = "api-test-secret"

type client struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func newClient(t *testing.T, service *mocks.MockIChatService, userID string) client {
	gin.SetMode(gin.TestMode)
	authenticator := auth.NewAuthenticator(secret)
	token, err := authenticator.GenerateToken(userID, "buyer", time.Hour)
	require.NoError(t, err)
	router := NewRouter(NewHandler(service, slog.Default()), authenticator, nil, nil, slog.Default())
	return client{t: t, router: router, token: token}
}

func (c client) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, r)
	return w
}

func TestHandler_Health_Needs_No_Token(t *testing.T) {
	req := require.New(t)
	c := newClient(t, mocks.NewMockIChatService(gomock.NewController(t)), "alice")
	c.token = ""

	w := c.do(http.MethodGet, "/health", nil)

	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"status":"ok"}`, w.Body.String())
}

func TestHandler_Rejects_Missing_Token(t *testing.T) {
	req := require.New(t)
	service := mocks.NewMockIChatService(gomock.NewController(t))
	service.EXPECT().Conversations(gomock.Any(), gomock.Any()).Times(0)
	c := newClient(t, service, "alice")
	c.token = ""

	w := c.do(http.MethodGet, "/api/chats", nil)

	req.Equal(http.StatusUnauthorized, w.Code)
}

func TestHandler_OpenConversation(t *testing.T) {
	t.Run("should answer the conversation with its members", func(t *testing.T) {
		req := require.New(t)
		service := mocks.NewMockIChatService(gomock.NewController(t))
		at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		service.EXPECT().OpenConversation(gomock.Any(), "alice", "alice", "bob").Return(domain.Conversation{
			ID:           "c1",
			Members:      []string{"alice", "bob"},
			Participants: []domain.Participant{{ID: "alice", Name: "Alice"}, {ID: "bob"}},
			CreatedAt:    at,
			UpdatedAt:    at,
		}, nil)
		c := newClient(t, service, "alice")

		w := c.do(http.MethodPost, "/api/chats", gin.H{"senderId": "alice", "receiverId": "bob"})

		req.Equal(http.StatusOK, w.Code)
		req.JSONEq(`{
			"_id": "c1",
			"members": [{"_id": "alice", "name": "Alice"}, {"_id": "bob"}],
			"createdAt": "2026-03-01T10:00:00Z",
			"updatedAt": "2026-03-01T10:00:00Z"
		}`, w.Body.String())
	})

	t.Run("should refuse a body without receiver", func(t *testing.T) {
		req := require.New(t)
		service := mocks.NewMockIChatService(gomock.NewController(t))
		service.EXPECT().OpenConversation(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		c := newClient(t, service, "alice")

		w := c.do(http.MethodPost, "/api/chats", gin.H{"senderId": "alice"})

		req.Equal(http.StatusBadRequest, w.Code)
	})

	t.Run("should map forbidden", func(t *testing.T) {
		req := require.New(t)
		service := mocks.NewMockIChatService(gomock.NewController(t))
		service.EXPECT().OpenConversation(gomock.Any(), "mallory", "alice", "bob").Return(domain.Conversation{}, errors.ErrForbidden)
		c := newClient(t, service, "mallory")

		w := c.do(http.MethodPost, "/api/chats", gin.H{"senderId": "alice", "receiverId": "bob"})

		req.Equal(http.StatusForbidden, w.Code)
	})
}

func TestHandler_SendMessage(t *testing.T) {
	t.Run("should create the message as the caller", func(t *testing.T) {
		req := require.New(t)
		service := mocks.NewMockIChatService(gomock.NewController(t))
		service.EXPECT().SendMessage(gomock.Any(), "c1", "alice", "Still available?").
			Return(domain.Message{ID: "m1", ChatID: "c1", SenderID: "alice", Text: "Still available?"}, nil)
		c := newClient(t, service, "alice")

		w := c.do(http.MethodPost, "/api/messages", gin.H{"chatId": "c1", "text": "Still available?"})

		req.Equal(http.StatusCreated, w.Code)
		var msg domain.Message
		req.NoError(json.Unmarshal(w.Body.Bytes(), &msg))
		req.Equal("m1", msg.ID)
		req.Equal("alice", msg.SenderID)
		req.False(msg.IsRead)
	})

	t.Run("should hide store failures", func(t *testing.T) {
		req := require.New(t)
		service := mocks.NewMockIChatService(gomock.NewController(t))
		service.EXPECT().SendMessage(gomock.Any(), "c1", "alice", "hi").Return(domain.Message{}, errors.ErrStoreFailure)
		c := newClient(t, service, "alice")

		w := c.do(http.MethodPost, "/api/messages", gin.H{"chatId": "c1", "text": "hi"})

		req.Equal(http.StatusInternalServerError, w.Code)
		req.JSONEq(`{"message":"Server error"}`, w.Body.String())
	})

	t.Run("should map an unknown chat", func(t *testing.T) {
		req := require.New(t)
		service := mocks.NewMockIChatService(gomock.NewController(t))
		service.EXPECT().SendMessage(gomock.Any(), "ghost", "alice", "hi").Return(domain.Message{}, errors.ErrNotFound)
		c := newClient(t, service, "alice")

		w := c.do(http.MethodPost, "/api/messages", gin.H{"chatId": "ghost", "text": "hi"})

		req.Equal(http.StatusNotFound, w.Code)
	})
}

func TestHandler_Read_Routes(t *testing.T) {
	req := require.New(t)
	service := mocks.NewMockIChatService(gomock.NewController(t))
	c := newClient(t, service, "bob")

	service.EXPECT().Messages(gomock.Any(), "c1", "bob").Return([]domain.Message{{ID: "m1"}, {ID: "m2"}}, nil)
	w := c.do(http.MethodGet, "/api/messages/c1", nil)
	req.Equal(http.StatusOK, w.Code)
	var messages []domain.Message
	req.NoError(json.Unmarshal(w.Body.Bytes(), &messages))
	req.Len(messages, 2)

	service.EXPECT().MarkRead(gomock.Any(), "c1", "bob").Return(2, nil)
	w = c.do(http.MethodPatch, "/api/messages/read/c1", nil)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"updatedCount":2}`, w.Body.String())

	// The static route wins over /messages/:chatId
	service.EXPECT().UnreadCounts(gomock.Any(), "bob").Return(domain.UnreadCounts{"c1": 1}, nil)
	w = c.do(http.MethodGet, "/api/messages/unread/count", nil)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"c1":1}`, w.Body.String())

	service.EXPECT().IsOnline(gomock.Any(), "alice").Return(true, nil)
	w = c.do(http.MethodGet, "/api/users/alice/presence", nil)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"userId":"alice","online":true}`, w.Body.String())
}
