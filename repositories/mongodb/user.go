package mongodb

import (
	"context"
	"pet-chat/contract"
	"pet-chat/domain"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ contract.IUserDirectory = (*UserRepository)(nil)

// userDocument reads the account collection. Accounts created by the marketplace
// carry ObjectID keys, accounts imported from elsewhere may carry string keys.
type userDocument struct {
	ID    any    `bson:"_id"`
	Name  string `bson:"name"`
	Email string `bson:"email"`
}

type UserRepository struct {
	db      *mongo.Database
	timeout time.Duration
}

func NewUserRepository(db *mongo.Database, timeout time.Duration) *UserRepository {
	return &UserRepository{db: db, timeout: timeout}
}

func (u *UserRepository) Profiles(ctx context.Context, userIDs ...string) (map[string]domain.Participant, error) {
	profiles := make(map[string]domain.Participant, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}
	ctx, cancel := ensureTimeout(ctx, u.timeout)
	defer cancel()

	keys := lo.Map(lo.Uniq(userIDs), func(id string, _ int) any {
		return userRef(id)
	})
	opts := options.Find().SetProjection(bson.M{"name": 1, "email": 1})
	cursor, err := u.db.Collection(usersCollection).Find(ctx, bson.M{"_id": bson.M{"$in": keys}}, opts)
	if err != nil {
		return nil, storeErr(err)
	}
	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeErr(err)
	}
	for _, doc := range docs {
		id := idString(doc.ID)
		profiles[id] = domain.Participant{ID: id, Name: doc.Name, Email: doc.Email}
	}
	return profiles, nil
}
