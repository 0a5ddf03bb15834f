package services

import (
	"context"
	"log/slog"
	"pet-chat/domain"
	"pet-chat/errors"
	"pet-chat/mocks"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	conversations *mocks.MockIConversationRepository
	messages      *mocks.MockIMessageRepository
	users         *mocks.MockIUserDirectory
	presence      *mocks.MockIPresenceRegistry
	censor        *mocks.MockICensor
	service       *ChatService
}

func newFixture(t *testing.T, withCensor bool) fixture {
	ctrl := gomock.NewController(t)
	f := fixture{
		conversations: mocks.NewMockIConversationRepository(ctrl),
		messages:      mocks.NewMockIMessageRepository(ctrl),
		users:         mocks.NewMockIUserDirectory(ctrl),
		presence:      mocks.NewMockIPresenceRegistry(ctrl),
		censor:        mocks.NewMockICensor(ctrl),
	}
	var opts []ChatServiceOption
	if withCensor {
		opts = append(opts, WithCensor(f.censor))
	}
	f.service = NewChatService(f.conversations, f.messages, f.users, f.presence, slog.Default(), opts...)
	return f
}

func TestChatService_OpenConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("should create the conversation and resolve the profiles", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, false)
		conv := domain.Conversation{
			ID:           "c1",
			Members:      []string{"alice", "bob"},
			Participants: []domain.Participant{{ID: "alice"}, {ID: "bob"}},
		}

		f.conversations.EXPECT().GetOrCreate(ctx, "alice", "bob").Return(conv, nil)
		f.users.EXPECT().Profiles(ctx, "alice", "bob").Return(map[string]domain.Participant{
			"alice": {Name: "Alice", Email: "alice@pets.example"},
		}, nil)

		got, err := f.service.OpenConversation(ctx, "alice", "alice", "bob")

		req.NoError(err)
		req.Equal("c1", got.ID)
		req.Equal([]domain.Participant{
			{ID: "alice", Name: "Alice", Email: "alice@pets.example"},
			{ID: "bob"},
		}, got.Participants)
	})

	t.Run("should reject a conversation with oneself", func(t *testing.T) {
		f := newFixture(t, false)
		f.conversations.EXPECT().GetOrCreate(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := f.service.OpenConversation(ctx, "alice", "alice", "alice")

		require.ErrorIs(t, err, errors.ErrValidation)
	})

	t.Run("should reject a receiver id holding the key separator", func(t *testing.T) {
		f := newFixture(t, false)
		f.conversations.EXPECT().GetOrCreate(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := f.service.OpenConversation(ctx, "mallory", "mallory", "bob|x")

		require.ErrorIs(t, err, errors.ErrValidation)
	})

	t.Run("should forbid opening a conversation for others", func(t *testing.T) {
		f := newFixture(t, false)
		f.conversations.EXPECT().GetOrCreate(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := f.service.OpenConversation(ctx, "mallory", "alice", "bob")

		require.ErrorIs(t, err, errors.ErrForbidden)
	})

	t.Run("should keep bare ids when the directory fails", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, false)
		conv := domain.Conversation{
			ID:           "c1",
			Members:      []string{"alice", "bob"},
			Participants: []domain.Participant{{ID: "alice"}, {ID: "bob"}},
		}
		f.conversations.EXPECT().GetOrCreate(ctx, "bob", "alice").Return(conv, nil)
		f.users.EXPECT().Profiles(ctx, "alice", "bob").Return(nil, errors.ErrStoreFailure)

		got, err := f.service.OpenConversation(ctx, "alice", "bob", "alice")

		req.NoError(err)
		req.Equal(conv.Participants, got.Participants)
	})
}

func TestChatService_Conversations(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, false)

	// Given two conversations sharing alice
	f.conversations.EXPECT().ListForUser(ctx, "alice").Return([]domain.Conversation{
		{ID: "c1", Members: []string{"alice", "bob"}},
		{ID: "c2", Members: []string{"carol", "alice"}},
	}, nil)
	// Then the directory is asked once for every distinct member
	f.users.EXPECT().Profiles(ctx, "alice", "bob", "carol").Return(map[string]domain.Participant{
		"carol": {Name: "Carol"},
	}, nil)

	conversations, err := f.service.Conversations(ctx, "alice")

	req.NoError(err)
	req.Len(conversations, 2)
	req.Equal(domain.Participant{ID: "carol", Name: "Carol"}, conversations[1].Participants[0])
}

func TestChatService_SendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("should append when the sender is a member", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, false)
		expected := domain.Message{ID: "m1", ChatID: "c1", SenderID: "alice", Text: "Is the puppy still available?"}

		f.conversations.EXPECT().IsMember(ctx, "c1", "alice").Return(true, nil)
		f.messages.EXPECT().Append(ctx, "c1", "alice", "Is the puppy still available?").Return(expected, nil)

		msg, err := f.service.SendMessage(ctx, "c1", "alice", "Is the puppy still available?")

		req.NoError(err)
		req.Equal(expected, msg)
	})

	t.Run("should forbid an outsider", func(t *testing.T) {
		f := newFixture(t, false)
		f.conversations.EXPECT().IsMember(ctx, "c1", "mallory").Return(false, nil)
		f.messages.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := f.service.SendMessage(ctx, "c1", "mallory", "hello")

		require.ErrorIs(t, err, errors.ErrForbidden)
	})

	t.Run("should reject blank text before touching the store", func(t *testing.T) {
		f := newFixture(t, false)
		f.conversations.EXPECT().IsMember(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := f.service.SendMessage(ctx, "c1", "alice", "   ")

		require.ErrorIs(t, err, errors.ErrValidation)
	})

	t.Run("should propagate an unknown conversation", func(t *testing.T) {
		f := newFixture(t, false)
		f.conversations.EXPECT().IsMember(ctx, "ghost", "alice").Return(false, errors.ErrNotFound)

		_, err := f.service.SendMessage(ctx, "ghost", "alice", "hello")

		require.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("should store the censored text", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, true)

		f.conversations.EXPECT().IsMember(ctx, "c1", "alice").Return(true, nil)
		f.censor.EXPECT().Censor("you scammer").Return("you *******", []string{"scammer"})
		f.messages.EXPECT().Append(ctx, "c1", "alice", "you *******").
			Return(domain.Message{Text: "you *******"}, nil)

		msg, err := f.service.SendMessage(ctx, "c1", "alice", "you scammer")

		req.NoError(err)
		req.Equal("you *******", msg.Text)
	})
}

func TestChatService_Membership_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("messages of a member", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, false)
		f.conversations.EXPECT().IsMember(ctx, "c1", "bob").Return(true, nil)
		f.messages.EXPECT().ListForConversation(ctx, "c1").Return([]domain.Message{{ID: "m1"}}, nil)

		messages, err := f.service.Messages(ctx, "c1", "bob")

		req.NoError(err)
		req.Len(messages, 1)
	})

	t.Run("messages of an outsider", func(t *testing.T) {
		f := newFixture(t, false)
		f.conversations.EXPECT().IsMember(ctx, "c1", "mallory").Return(false, nil)

		_, err := f.service.Messages(ctx, "c1", "mallory")

		require.ErrorIs(t, err, errors.ErrForbidden)
	})

	t.Run("mark read of a member", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, false)
		f.conversations.EXPECT().IsMember(ctx, "c1", "bob").Return(true, nil)
		f.messages.EXPECT().MarkRead(ctx, "c1", "bob").Return(3, nil)

		updated, err := f.service.MarkRead(ctx, "c1", "bob")

		req.NoError(err)
		req.Equal(3, updated)
	})

	t.Run("mark read of an outsider", func(t *testing.T) {
		f := newFixture(t, false)
		f.conversations.EXPECT().IsMember(ctx, "c1", "mallory").Return(false, nil)
		f.messages.EXPECT().MarkRead(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := f.service.MarkRead(ctx, "c1", "mallory")

		require.ErrorIs(t, err, errors.ErrForbidden)
	})
}

func TestChatService_UnreadCounts_And_Presence(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, false)

	f.messages.EXPECT().UnreadCounts(ctx, "bob").Return(domain.UnreadCounts{"c1": 2}, nil)
	f.presence.EXPECT().IsOnline(ctx, "alice").Return(true, nil)

	counts, err := f.service.UnreadCounts(ctx, "bob")
	req.NoError(err)
	req.Equal(domain.UnreadCounts{"c1": 2}, counts)

	online, err := f.service.IsOnline(ctx, "alice")
	req.NoError(err)
	req.True(online)

	_, err = f.service.IsOnline(ctx, "")
	req.ErrorIs(err, errors.ErrValidation)
}
