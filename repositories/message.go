package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"pet-chat/contract"
	"pet-chat/domain"
	"pet-chat/errors"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var _ contract.IMessageRepository = (*MessageRepository)(nil)

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

type diskMessage struct {
	ID        string `json:"id"`
	ChatID    string `json:"chatId"`
	SenderID  string `json:"senderId"`
	Text      string `json:"text"`
	IsRead    bool   `json:"isRead"`
	CreatedAt int64  `json:"createdAt"`
}

// unreadRef is the value of an unread index entry.
// Key points to the message so read marking never scans the log itself.
type unreadRef struct {
	ChatID   string `json:"chatId"`
	SenderID string `json:"senderId"`
	Key      string `json:"key"`
}

// Append persists a message at the end of the conversation log.
// The key is "msg:{conversation}|{timestamp_padded}|{uuid}":
//  1. 19-digit zero padding keeps lexicographic order equal to time order.
//  2. The timestamp is bumped past the last one of the conversation when the
//     clock did not move, so the order returned by ListForConversation is write order.
func (m *MessageRepository) Append(ctx context.Context, conversationID, senderID, text string) (domain.Message, error) {
	if domain.BlankText(text) {
		return domain.Message{}, fmt.Errorf("%w: message text is empty", errors.ErrValidation)
	}
	if conversationID == "" || senderID == "" {
		return domain.Message{}, fmt.Errorf("%w: conversation and sender are required", errors.ErrValidation)
	}

	var msg diskMessage
	err := update(ctx, m.db, func(txn *badger.Txn) error {
		if err := conversationExists(txn, conversationID); err != nil {
			return err
		}
		at := time.Now().UTC().UnixNano()
		last, found, err := lastMessageAt(txn, conversationID)
		if err != nil {
			return err
		}
		if found && last >= at {
			at = last + 1
		}

		msg = diskMessage{
			ID:        uuid.NewString(),
			ChatID:    conversationID,
			SenderID:  senderID,
			Text:      text,
			CreatedAt: at,
		}
		key := messageKey(conversationID, at, msg.ID)
		if err := writeJSON(txn, key, msg); err != nil {
			return err
		}
		return writeJSON(txn, unreadKey(conversationID, msg.ID), unreadRef{
			ChatID:   conversationID,
			SenderID: senderID,
			Key:      string(key),
		})
	})
	if err != nil {
		return domain.Message{}, storeErr(err)
	}
	return msg.toDomain(), nil
}

// ListForConversation returns the whole history, oldest first.
func (m *MessageRepository) ListForConversation(_ context.Context, conversationID string) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	err := m.db.View(func(txn *badger.Txn) error {
		if err := conversationExists(txn, conversationID); err != nil {
			return err
		}
		prefix := messageScanPrefix(conversationID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg diskMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			messages = append(messages, msg.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return messages, nil
}

// MarkRead flips every unread message of the conversation not authored by the reader.
// Only the unread index of the conversation is scanned. A second call returns 0.
// A backlog larger than one badger transaction is committed in several chunks:
// each message and its index entry always land in the same chunk, so a retry
// after a failed chunk only sees what is still unread.
func (m *MessageRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int, error) {
	if readerID == "" {
		return 0, fmt.Errorf("%w: reader is required", errors.ErrValidation)
	}
	var updated int
	for attempt := 1; ; attempt++ {
		n, err := m.markRead(ctx, conversationID, readerID)
		updated += n
		if err == nil {
			break
		}
		if !errors.Is(err, badger.ErrConflict) || attempt == maxConflictRetries {
			return 0, storeErr(err)
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Duration(attempt) * conflictBackoff):
		}
	}
	if updated > 0 {
		m.log.Debug("Messages marked as read", "conversation", conversationID, "reader", readerID, "count", updated)
	}
	return updated, nil
}

// markRead returns the number of messages flipped by the chunks it committed,
// even when a later chunk fails.
func (m *MessageRepository) markRead(ctx context.Context, conversationID, readerID string) (int, error) {
	var pending map[string]unreadRef
	err := m.db.View(func(txn *badger.Txn) error {
		if err := conversationExists(txn, conversationID); err != nil {
			return err
		}
		var err error
		pending, err = unreadFrom(txn, unreadScanPrefix(conversationID), readerID)
		return err
	})
	if err != nil || len(pending) == 0 {
		return 0, err
	}

	committed, inChunk := 0, 0
	txn := m.db.NewTransaction(true)
	defer func() { txn.Discard() }()
	for indexKey, ref := range pending {
		if err := ctx.Err(); err != nil {
			return committed, err
		}
		flipped, err := flipRead(txn, indexKey, ref)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return committed, err
			}
			committed += inChunk
			inChunk = 0
			txn = m.db.NewTransaction(true)
			flipped, err = flipRead(txn, indexKey, ref)
		}
		if err != nil {
			return committed, err
		}
		if flipped {
			inChunk++
		}
	}
	if err := txn.Commit(); err != nil {
		return committed, err
	}
	return committed + inChunk, nil
}

// flipRead marks one message as read and drops its index entry.
// An entry already gone was read by a concurrent call and is skipped.
func flipRead(txn *badger.Txn, indexKey string, ref unreadRef) (bool, error) {
	if _, err := txn.Get([]byte(indexKey)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	var msg diskMessage
	if err := readJSON(txn, []byte(ref.Key), &msg); err != nil {
		return false, fmt.Errorf("unread entry %s: %w", indexKey, err)
	}
	msg.IsRead = true
	if err := writeJSON(txn, []byte(ref.Key), msg); err != nil {
		return false, err
	}
	if err := txn.Delete([]byte(indexKey)); err != nil {
		return false, err
	}
	return true, nil
}

// UnreadCounts walks the unread index once and groups by conversation.
// Only messages not authored by the reader, in conversations the reader belongs to, are counted.
// Conversations without unread messages are absent from the result.
func (m *MessageRepository) UnreadCounts(_ context.Context, readerID string) (domain.UnreadCounts, error) {
	if readerID == "" {
		return nil, fmt.Errorf("%w: reader is required", errors.ErrValidation)
	}
	counts := make(domain.UnreadCounts)
	err := m.db.View(func(txn *badger.Txn) error {
		pending, err := unreadFrom(txn, []byte(unreadPrefix), readerID)
		if err != nil {
			return err
		}
		membership := make(map[string]bool)
		for _, ref := range pending {
			member, seen := membership[ref.ChatID]
			if !seen {
				_, err := txn.Get(memberKey(readerID, ref.ChatID))
				if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
				member = err == nil
				membership[ref.ChatID] = member
			}
			if member {
				counts[ref.ChatID]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return counts, nil
}

// unreadFrom collects the unread entries under prefix whose sender is not the reader,
// keyed by index key.
func unreadFrom(txn *badger.Txn, prefix []byte, readerID string) (map[string]unreadRef, error) {
	pending := make(map[string]unreadRef)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var ref unreadRef
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ref)
		}); err != nil {
			return nil, err
		}
		if ref.SenderID == readerID {
			continue
		}
		pending[string(item.KeyCopy(nil))] = ref
	}
	return pending, nil
}

// lastMessageAt reads the timestamp of the newest message of the conversation.
func lastMessageAt(txn *badger.Txn, conversationID string) (int64, bool, error) {
	prefix := messageScanPrefix(conversationID)
	options := badger.DefaultIteratorOptions
	options.Reverse = true
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	defer it.Close()

	// 0xff sorts after every digit, the reverse seek lands on the newest key.
	it.Seek(append(append([]byte{}, prefix...), 0xff))
	if !it.ValidForPrefix(prefix) {
		return 0, false, nil
	}
	rest := string(it.Item().Key()[len(prefix):])
	stamp, _, ok := strings.Cut(rest, sep)
	if !ok {
		return 0, false, fmt.Errorf("malformed message key %q", it.Item().Key())
	}
	at, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return at, true, nil
}

func conversationExists(txn *badger.Txn, conversationID string) error {
	_, err := txn.Get(conversationKey(conversationID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: conversation %s", errors.ErrNotFound, conversationID)
	}
	return err
}

func (d diskMessage) toDomain() domain.Message {
	return domain.Message{
		ID:        d.ID,
		ChatID:    d.ChatID,
		SenderID:  d.SenderID,
		Text:      d.Text,
		IsRead:    d.IsRead,
		CreatedAt: time.Unix(0, d.CreatedAt).UTC(),
	}
}
