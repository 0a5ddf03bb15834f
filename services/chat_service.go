package services

import (
	"context"
	"fmt"
	"log/slog"
	"pet-chat/contract"
	"pet-chat/domain"
	"pet-chat/errors"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var _ contract.IChatService = (*ChatService)(nil)

type openConversationRequest struct {
	CallerID   string `validate:"required"`
	SenderID   string `validate:"required,userid"`
	ReceiverID string `validate:"required,userid,nefield=SenderID"`
}

type sendMessageRequest struct {
	ConversationID string `validate:"required"`
	SenderID       string `validate:"required"`
	Text           string `validate:"required"`
}

type ChatService struct {
	conversations contract.IConversationRepository
	messages      contract.IMessageRepository
	users         contract.IUserDirectory
	presence      contract.IPresenceRegistry
	censor        contract.ICensor
	validate      *validator.Validate
	log           *slog.Logger
}

type ChatServiceOption func(*ChatService)

// WithCensor rewrites message bodies before they are stored.
func WithCensor(censor contract.ICensor) ChatServiceOption {
	return func(s *ChatService) {
		s.censor = censor
	}
}

func NewChatService(
	conversations contract.IConversationRepository,
	messages contract.IMessageRepository,
	users contract.IUserDirectory,
	presence contract.IPresenceRegistry,
	log *slog.Logger,
	opts ...ChatServiceOption,
) *ChatService {
	s := &ChatService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		presence:      presence,
		validate:      newValidator(),
		log:           log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
		return domain.ValidUserID(fl.Field().String())
	})
	return v
}

// OpenConversation returns the conversation between sender and receiver, creating it on first contact.
// The caller must be one of the two participants.
func (s *ChatService) OpenConversation(ctx context.Context, callerID, senderID, receiverID string) (domain.Conversation, error) {
	request := openConversationRequest{CallerID: callerID, SenderID: senderID, ReceiverID: receiverID}
	if err := s.validate.Struct(request); err != nil {
		return domain.Conversation{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	if callerID != senderID && callerID != receiverID {
		return domain.Conversation{}, fmt.Errorf("%w: %s is not a participant", errors.ErrForbidden, callerID)
	}
	conv, err := s.conversations.GetOrCreate(ctx, senderID, receiverID)
	if err != nil {
		return domain.Conversation{}, err
	}
	resolved := s.resolve(ctx, []domain.Conversation{conv})
	return resolved[0], nil
}

func (s *ChatService) Conversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", errors.ErrValidation)
	}
	conversations, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, conversations), nil
}

func (s *ChatService) SendMessage(ctx context.Context, conversationID, senderID, text string) (domain.Message, error) {
	request := sendMessageRequest{ConversationID: conversationID, SenderID: senderID, Text: text}
	if err := s.validate.Struct(request); err != nil || domain.BlankText(text) {
		return domain.Message{}, fmt.Errorf("%w: conversation, sender and text are required", errors.ErrValidation)
	}
	if err := s.requireMember(ctx, conversationID, senderID); err != nil {
		return domain.Message{}, err
	}
	if s.censor != nil {
		text = s.sanitize(conversationID, senderID, text)
	}
	return s.messages.Append(ctx, conversationID, senderID, text)
}

func (s *ChatService) Messages(ctx context.Context, conversationID, userID string) ([]domain.Message, error) {
	if err := s.requireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.messages.ListForConversation(ctx, conversationID)
}

func (s *ChatService) MarkRead(ctx context.Context, conversationID, readerID string) (int, error) {
	if err := s.requireMember(ctx, conversationID, readerID); err != nil {
		return 0, err
	}
	return s.messages.MarkRead(ctx, conversationID, readerID)
}

func (s *ChatService) UnreadCounts(ctx context.Context, readerID string) (domain.UnreadCounts, error) {
	return s.messages.UnreadCounts(ctx, readerID)
}

func (s *ChatService) IsOnline(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("%w: user is required", errors.ErrValidation)
	}
	return s.presence.IsOnline(ctx, userID)
}

func (s *ChatService) requireMember(ctx context.Context, conversationID, userID string) error {
	if conversationID == "" || userID == "" {
		return fmt.Errorf("%w: conversation and user are required", errors.ErrValidation)
	}
	member, err := s.conversations.IsMember(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("%w: %s is not a member of %s", errors.ErrForbidden, userID, conversationID)
	}
	return nil
}

func (s *ChatService) sanitize(conversationID, senderID, text string) string {
	sanitized, words := s.censor.Censor(text)
	if len(words) > 0 {
		info := whatlanggo.Detect(text)
		s.log.Info("Message censored",
			"conversation", conversationID,
			"sender", senderID,
			"lang", info.Lang.Iso6391(),
			"words", words)
	}
	return sanitized
}

// resolve fills the participant profiles of each conversation with one directory lookup.
// A directory failure keeps the bare ids.
func (s *ChatService) resolve(ctx context.Context, conversations []domain.Conversation) []domain.Conversation {
	ids := lo.Uniq(lo.FlatMap(conversations, func(c domain.Conversation, _ int) []string {
		return c.Members
	}))
	if len(ids) == 0 {
		return conversations
	}
	profiles, err := s.users.Profiles(ctx, ids...)
	if err != nil {
		s.log.Warn("Unable to resolve participants", "error", err)
		return conversations
	}
	return lo.Map(conversations, func(c domain.Conversation, _ int) domain.Conversation {
		c.Participants = lo.Map(c.Members, func(id string, _ int) domain.Participant {
			if p, ok := profiles[id]; ok {
				p.ID = id
				return p
			}
			return domain.Participant{ID: id}
		})
		return c
	})
}
