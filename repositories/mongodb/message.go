package mongodb

import (
	"context"
	"log/slog"
	"pet-chat/contract"
	"pet-chat/domain"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ contract.IMessageRepository = (*MessageRepository)(nil)

type messageDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	ChatID    primitive.ObjectID `bson:"chatId"`
	SenderID  any                `bson:"senderId"`
	Text      string             `bson:"text"`
	IsRead    bool               `bson:"isRead"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type unreadGroup struct {
	ChatID primitive.ObjectID `bson:"_id"`
	Count  int                `bson:"count"`
}

type MessageRepository struct {
	db      *mongo.Database
	log     *slog.Logger
	timeout time.Duration
}

func NewMessageRepository(db *mongo.Database, log *slog.Logger, timeout time.Duration) *MessageRepository {
	return &MessageRepository{db: db, log: log, timeout: timeout}
}

// Append inserts the message after checking its conversation exists.
// Ties on the millisecond createdAt are broken by the ObjectID, which grows within a process.
func (m *MessageRepository) Append(ctx context.Context, conversationID, senderID, text string) (domain.Message, error) {
	if domain.BlankText(text) {
		return domain.Message{}, validationErr("message text is empty")
	}
	if senderID == "" {
		return domain.Message{}, validationErr("sender is required")
	}
	chatID, err := objectID(conversationID, "conversation")
	if err != nil {
		return domain.Message{}, err
	}
	ctx, cancel := ensureTimeout(ctx, m.timeout)
	defer cancel()

	if _, err := findChat(ctx, m.db, chatID); err != nil {
		return domain.Message{}, storeErr(err)
	}
	doc := messageDocument{
		ID:        primitive.NewObjectID(),
		ChatID:    chatID,
		SenderID:  userRef(senderID),
		Text:      text,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := m.db.Collection(messagesCollection).InsertOne(ctx, doc); err != nil {
		return domain.Message{}, storeErr(err)
	}
	return doc.toDomain(), nil
}

func (m *MessageRepository) ListForConversation(ctx context.Context, conversationID string) ([]domain.Message, error) {
	chatID, err := objectID(conversationID, "conversation")
	if err != nil {
		return nil, err
	}
	ctx, cancel := ensureTimeout(ctx, m.timeout)
	defer cancel()

	if _, err := findChat(ctx, m.db, chatID); err != nil {
		return nil, storeErr(err)
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.db.Collection(messagesCollection).Find(ctx, bson.M{"chatId": chatID}, opts)
	if err != nil {
		return nil, storeErr(err)
	}
	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeErr(err)
	}
	messages := make([]domain.Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, doc.toDomain())
	}
	return messages, nil
}

// MarkRead is one updateMany restricted to unread messages of the peer.
func (m *MessageRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int, error) {
	if readerID == "" {
		return 0, validationErr("reader is required")
	}
	chatID, err := objectID(conversationID, "conversation")
	if err != nil {
		return 0, err
	}
	ctx, cancel := ensureTimeout(ctx, m.timeout)
	defer cancel()

	if _, err := findChat(ctx, m.db, chatID); err != nil {
		return 0, storeErr(err)
	}
	filter := bson.M{
		"chatId":   chatID,
		"senderId": bson.M{"$nin": userRefs(readerID)},
		"isRead":   false,
	}
	res, err := m.db.Collection(messagesCollection).UpdateMany(ctx, filter, bson.M{"$set": bson.M{"isRead": true}})
	if err != nil {
		return 0, storeErr(err)
	}
	return int(res.ModifiedCount), nil
}

// UnreadCounts runs a single $match/$group pass over the unread messages of the
// reader's conversations. Conversations without unread messages are absent.
func (m *MessageRepository) UnreadCounts(ctx context.Context, readerID string) (domain.UnreadCounts, error) {
	if readerID == "" {
		return nil, validationErr("reader is required")
	}
	ctx, cancel := ensureTimeout(ctx, m.timeout)
	defer cancel()

	chatIDs, err := m.chatsOf(ctx, readerID)
	if err != nil {
		return nil, storeErr(err)
	}
	counts := make(domain.UnreadCounts)
	if len(chatIDs) == 0 {
		return counts, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"chatId":   bson.M{"$in": chatIDs},
			"isRead":   false,
			"senderId": bson.M{"$nin": userRefs(readerID)},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$chatId",
			"count": bson.M{"$sum": 1},
		}}},
	}
	cursor, err := m.db.Collection(messagesCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, storeErr(err)
	}
	var groups []unreadGroup
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, storeErr(err)
	}
	for _, g := range groups {
		if g.Count > 0 {
			counts[g.ChatID.Hex()] = g.Count
		}
	}
	return counts, nil
}

func (m *MessageRepository) chatsOf(ctx context.Context, userID string) ([]primitive.ObjectID, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := m.db.Collection(chatsCollection).Find(ctx, bson.M{"members": bson.M{"$in": userRefs(userID)}}, opts)
	if err != nil {
		return nil, err
	}
	var docs []chatDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (d messageDocument) toDomain() domain.Message {
	return domain.Message{
		ID:        d.ID.Hex(),
		ChatID:    d.ChatID.Hex(),
		SenderID:  idString(d.SenderID),
		Text:      d.Text,
		IsRead:    d.IsRead,
		CreatedAt: d.CreatedAt.UTC(),
	}
}
