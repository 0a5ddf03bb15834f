// Package mongodb stores conversations and messages in MongoDB, using the
// collection layout of the marketplace's existing chat data (chats, messages, users).
// User ids that are ObjectID hex strings are stored as ObjectIDs, the way marketplace
// accounts reference each other. Other ids are stored as plain strings.
package mongodb

import (
	"context"
	"fmt"
	"pet-chat/errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	chatsCollection    = "chats"
	messagesCollection = "messages"
	usersCollection    = "users"
)

const DefaultTimeout = 5 * time.Second

// Connect opens a client and checks the deployment answers before returning.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := ensureTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, client.Database(database), nil
}

// EnsureIndexes creates the indexes the stores rely on. The unique pairKey index
// is what keeps a single conversation per pair under concurrent first contacts.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(chatsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		// Chats created before pairKey existed do not carry one and stay out of the unique index.
		{Keys: bson.D{{Key: "pairKey", Value: 1}}, Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"pairKey": bson.M{"$exists": true}})},
		{Keys: bson.D{{Key: "members", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("chats indexes: %w", err)
	}
	_, err = db.Collection(messagesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "isRead", Value: 1}, {Key: "senderId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("messages indexes: %w", err)
	}
	return nil
}

func ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline || timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func objectID(id, what string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: malformed %s id %q", errors.ErrValidation, what, id)
	}
	return oid, nil
}

// findChat loads a chat document, ErrNotFound when it does not exist.
func findChat(ctx context.Context, db *mongo.Database, oid primitive.ObjectID) (chatDocument, error) {
	var doc chatDocument
	err := db.Collection(chatsCollection).FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return chatDocument{}, fmt.Errorf("%w: conversation %s", errors.ErrNotFound, oid.Hex())
	}
	return doc, err
}

func storeErr(err error) error {
	switch {
	case err == nil,
		errors.Is(err, errors.ErrNotFound),
		errors.Is(err, errors.ErrValidation),
		errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", errors.ErrStoreFailure, err)
	}
}

// userRef is the stored form of a user id.
func userRef(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

// userRefs lists every stored form a user id may have, for $in and $nin.
// Hex ids written as strings by an older writer still match.
func userRefs(id string) bson.A {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.A{oid, id}
	}
	return bson.A{id}
}

func idString(raw any) string {
	if oid, ok := raw.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(raw)
}

func validationErr(reason string) error {
	return fmt.Errorf("%w: %s", errors.ErrValidation, reason)
}
