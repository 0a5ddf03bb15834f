package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"pet-chat/contract"
	"pet-chat/domain"
	"pet-chat/errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var _ contract.IConversationRepository = (*ConversationRepository)(nil)

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) *ConversationRepository {
	return &ConversationRepository{db: db, log: log}
}

type diskConversation struct {
	ID        string   `json:"id"`
	Members   []string `json:"members"`
	CreatedAt int64    `json:"createdAt"`
}

// GetOrCreate returns the conversation of the unordered pair {a, b}, creating it on first contact.
// The pair key is read and written in the same transaction: two concurrent first contacts
// conflict at commit, the loser is replayed and finds the winner's conversation.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, participantA, participantB string) (domain.Conversation, error) {
	if !domain.ValidUserID(participantA) || !domain.ValidUserID(participantB) || participantA == participantB {
		return domain.Conversation{}, fmt.Errorf("%w: a conversation needs two distinct participants", errors.ErrValidation)
	}
	pair := pairKey(domain.PairKey(participantA, participantB))

	var conv diskConversation
	var created bool
	err := update(ctx, r.db, func(txn *badger.Txn) error {
		created = false
		item, err := txn.Get(pair)
		switch {
		case err == nil:
			var id string
			if err := item.Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			return readJSON(txn, conversationKey(id), &conv)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		conv = diskConversation{
			ID:        uuid.NewString(),
			Members:   []string{participantA, participantB},
			CreatedAt: time.Now().UTC().UnixNano(),
		}
		if err := writeJSON(txn, conversationKey(conv.ID), conv); err != nil {
			return err
		}
		if err := txn.Set(pair, []byte(conv.ID)); err != nil {
			return err
		}
		for _, member := range conv.Members {
			if err := txn.Set(memberKey(member, conv.ID), nil); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return domain.Conversation{}, storeErr(err)
	}
	if created {
		r.log.Debug("Conversation created", "id", conv.ID, "members", conv.Members)
	}
	return conv.toDomain(), nil
}

// ListForUser scans the member index of the user, oldest conversation first.
func (r *ConversationRepository) ListForUser(_ context.Context, userID string) ([]domain.Conversation, error) {
	conversations := make([]domain.Conversation, 0)
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := memberScanPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := string(it.Item().Key()[len(prefix):])
			var conv diskConversation
			if err := readJSON(txn, conversationKey(id), &conv); err != nil {
				return fmt.Errorf("conversation %s listed for %s: %w", id, userID, err)
			}
			conversations = append(conversations, conv.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	slices.SortFunc(conversations, func(a, b domain.Conversation) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return conversations, nil
}

func (r *ConversationRepository) Get(_ context.Context, conversationID string) (domain.Conversation, error) {
	var conv diskConversation
	err := r.db.View(func(txn *badger.Txn) error {
		return readJSON(txn, conversationKey(conversationID), &conv)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, fmt.Errorf("%w: conversation %s", errors.ErrNotFound, conversationID)
	}
	if err != nil {
		return domain.Conversation{}, storeErr(err)
	}
	return conv.toDomain(), nil
}

// IsMember returns ErrNotFound when the conversation itself does not exist.
func (r *ConversationRepository) IsMember(_ context.Context, conversationID, userID string) (bool, error) {
	var member bool
	err := r.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(conversationKey(conversationID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: conversation %s", errors.ErrNotFound, conversationID)
			}
			return err
		}
		_, err := txn.Get(memberKey(userID, conversationID))
		switch {
		case err == nil:
			member = true
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return nil
	})
	return member, storeErr(err)
}

func (c diskConversation) toDomain() domain.Conversation {
	at := time.Unix(0, c.CreatedAt).UTC()
	participants := make([]domain.Participant, 0, len(c.Members))
	for _, m := range c.Members {
		participants = append(participants, domain.Participant{ID: m})
	}
	return domain.Conversation{
		ID:           c.ID,
		Members:      slices.Clone(c.Members),
		Participants: participants,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}
