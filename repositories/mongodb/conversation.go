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

var _ contract.IConversationRepository = (*ConversationRepository)(nil)

type chatDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Members   []any              `bson:"members"`
	PairKey   string             `bson:"pairKey"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type ConversationRepository struct {
	db      *mongo.Database
	log     *slog.Logger
	timeout time.Duration
}

func NewConversationRepository(db *mongo.Database, log *slog.Logger, timeout time.Duration) *ConversationRepository {
	return &ConversationRepository{db: db, log: log, timeout: timeout}
}

// GetOrCreate is a single atomic upsert keyed by the unordered pair.
// When two upserts race, the unique index rejects one of them and it reads the winner.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, participantA, participantB string) (domain.Conversation, error) {
	if !domain.ValidUserID(participantA) || !domain.ValidUserID(participantB) || participantA == participantB {
		return domain.Conversation{}, validationErr("a conversation needs two distinct participants")
	}
	ctx, cancel := ensureTimeout(ctx, r.timeout)
	defer cancel()

	key := domain.PairKey(participantA, participantB)
	now := time.Now().UTC()
	// A chat written before pairKey existed is found by its two members.
	filter := bson.M{"$or": bson.A{
		bson.M{"pairKey": key},
		bson.M{
			"pairKey": bson.M{"$exists": false},
			"members": bson.M{
				"$size": 2,
				"$all":  bson.A{
					bson.M{"$elemMatch": bson.M{"$in": userRefs(participantA)}},
					bson.M{"$elemMatch": bson.M{"$in": userRefs(participantB)}},
				},
			},
		},
	}}
	update := bson.M{"$setOnInsert": bson.M{
		"members":   bson.A{userRef(participantA), userRef(participantB)},
		"pairKey":   key,
		"createdAt": now,
		"updatedAt": now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	chats := r.db.Collection(chatsCollection)
	var doc chatDocument
	err := chats.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		r.log.Debug("Concurrent first contact, reading existing conversation", "pair", key)
		err = chats.FindOne(ctx, filter).Decode(&doc)
	}
	if err != nil {
		return domain.Conversation{}, storeErr(err)
	}
	return doc.toDomain(), nil
}

func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.db.Collection(chatsCollection).Find(ctx, bson.M{"members": bson.M{"$in": userRefs(userID)}}, opts)
	if err != nil {
		return nil, storeErr(err)
	}
	var docs []chatDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeErr(err)
	}
	conversations := make([]domain.Conversation, 0, len(docs))
	for _, doc := range docs {
		conversations = append(conversations, doc.toDomain())
	}
	return conversations, nil
}

func (r *ConversationRepository) Get(ctx context.Context, conversationID string) (domain.Conversation, error) {
	oid, err := objectID(conversationID, "conversation")
	if err != nil {
		return domain.Conversation{}, err
	}
	ctx, cancel := ensureTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := findChat(ctx, r.db, oid)
	if err != nil {
		return domain.Conversation{}, storeErr(err)
	}
	return doc.toDomain(), nil
}

func (r *ConversationRepository) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	conv, err := r.Get(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return conv.HasMember(userID), nil
}

func (d chatDocument) toDomain() domain.Conversation {
	members := make([]string, 0, len(d.Members))
	participants := make([]domain.Participant, 0, len(d.Members))
	for _, m := range d.Members {
		id := idString(m)
		members = append(members, id)
		participants = append(participants, domain.Participant{ID: id})
	}
	return domain.Conversation{
		ID:           d.ID.Hex(),
		Members:      members,
		Participants: participants,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}
