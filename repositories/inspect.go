package repositories

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// InspectRow is one decoded entry of the store, for offline debugging.
type InspectRow struct {
	Key          string
	Kind         string
	Conversation string
	Timestamp    string
	Detail       string
	// Read is nil for entries without a read state.
	Read *bool
}

// Inspect decodes every entry whose key starts with prefix. An empty prefix walks the whole store.
// Values that cannot be decoded are reported with their size.
func Inspect(db *badger.DB, prefix string) ([]InspectRow, error) {
	var rows []InspectRow
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			if err := item.Value(func(val []byte) error {
				rows = append(rows, inspectRow(key, val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return rows, err
}

func inspectRow(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Kind:      "RAW",
		Timestamp: "--:--:--",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
	kind, rest, _ := strings.Cut(key, ":")

	switch kind + ":" {
	case conversationPrefix:
		var conv diskConversation
		if json.Unmarshal(val, &conv) != nil {
			return row
		}
		row.Kind = "CONV"
		row.Conversation = conv.ID
		row.Timestamp = clock(conv.CreatedAt)
		row.Detail = strings.Join(conv.Members, " <-> ")
	case pairPrefix:
		row.Kind = "PAIR"
		row.Conversation = string(val)
		row.Detail = rest
	case memberPrefix:
		user, conv, _ := strings.Cut(rest, sep)
		row.Kind = "MEMBER"
		row.Conversation = conv
		row.Detail = user
	case messagePrefix:
		var msg diskMessage
		if json.Unmarshal(val, &msg) != nil {
			return row
		}
		row.Kind = "MSG"
		row.Conversation = msg.ChatID
		row.Timestamp = clock(msg.CreatedAt)
		row.Detail = msg.SenderID + ": " + msg.Text
		read := msg.IsRead
		row.Read = &read
	case unreadPrefix:
		var ref unreadRef
		if json.Unmarshal(val, &ref) != nil {
			return row
		}
		row.Kind = "UNREAD"
		row.Conversation = ref.ChatID
		row.Detail = "from " + ref.SenderID
	case userPrefix:
		row.Kind = "USER"
		row.Detail = string(val)
	}
	return row
}

func clock(unixNano int64) string {
	return time.Unix(0, unixNano).UTC().Format("15:04:05")
}
