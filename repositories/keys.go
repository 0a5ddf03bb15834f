package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"pet-chat/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key layout
//
//	conv:{conversationID}                      -> diskConversation
//	pair:{low}|{high}                          -> conversationID (one per unordered pair)
//	member:{userID}|{conversationID}           -> empty, lists the conversations of a user
//	msg:{conversationID}|{unixnano%019d}|{id}  -> diskMessage, lexicographic order is write order
//	unread:{conversationID}|{messageID}        -> unreadRef, removed once the message is read
//	user:{userID}                              -> domain.Participant
const (
	conversationPrefix = "conv:"
	pairPrefix         = "pair:"
	memberPrefix       = "member:"
	messagePrefix      = "msg:"
	unreadPrefix       = "unread:"
	userPrefix         = "user:"
	sep                = "|"
)

const (
	maxConflictRetries = 5
	conflictBackoff    = 10 * time.Millisecond
)

func conversationKey(conversationID string) []byte {
	return []byte(conversationPrefix + conversationID)
}

func pairKey(pair string) []byte {
	return []byte(pairPrefix + pair)
}

func memberKey(userID, conversationID string) []byte {
	return []byte(memberPrefix + userID + sep + conversationID)
}

func memberScanPrefix(userID string) []byte {
	return []byte(memberPrefix + userID + sep)
}

func messageKey(conversationID string, at int64, messageID string) []byte {
	return []byte(fmt.Sprintf("%s%s%s%019d%s%s", messagePrefix, conversationID, sep, at, sep, messageID))
}

func messageScanPrefix(conversationID string) []byte {
	return []byte(messagePrefix + conversationID + sep)
}

func unreadKey(conversationID, messageID string) []byte {
	return []byte(unreadPrefix + conversationID + sep + messageID)
}

func unreadScanPrefix(conversationID string) []byte {
	return []byte(unreadPrefix + conversationID + sep)
}

func userKey(userID string) []byte {
	return []byte(userPrefix + userID)
}

func readJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func writeJSON(txn *badger.Txn, key []byte, v any) error {
	bytes, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, bytes)
}

// update runs fn in a read-write transaction and replays it when badger reports
// a conflict with a concurrent transaction. fn must reset any state it captures.
func update(ctx context.Context, db *badger.DB, fn func(txn *badger.Txn) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt == maxConflictRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * conflictBackoff):
		}
	}
}

// storeErr keeps caller facing sentinels and turns anything else into ErrStoreFailure.
func storeErr(err error) error {
	switch {
	case err == nil,
		errors.Is(err, errors.ErrNotFound),
		errors.Is(err, errors.ErrValidation),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", errors.ErrStoreFailure, err)
	}
}
