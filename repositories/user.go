package repositories

import (
	"context"
	"fmt"
	"pet-chat/contract"
	"pet-chat/domain"
	"pet-chat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

var _ contract.IUserDirectory = (*UserRepository)(nil)

// UserRepository is the read side of the account profiles chat displays next to a conversation.
// Profiles are written by the account service, SaveProfile exists for that collaborator and tests.
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (u *UserRepository) SaveProfile(ctx context.Context, profile domain.Participant) error {
	if profile.ID == "" {
		return fmt.Errorf("%w: profile id is required", errors.ErrValidation)
	}
	return storeErr(update(ctx, u.db, func(txn *badger.Txn) error {
		return writeJSON(txn, userKey(profile.ID), profile)
	}))
}

// Profiles resolves the known ids. Unknown ids are absent from the result.
func (u *UserRepository) Profiles(_ context.Context, userIDs ...string) (map[string]domain.Participant, error) {
	profiles := make(map[string]domain.Participant, len(userIDs))
	err := u.db.View(func(txn *badger.Txn) error {
		for _, id := range lo.Uniq(userIDs) {
			var profile domain.Participant
			err := readJSON(txn, userKey(id), &profile)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			profiles[id] = profile
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return profiles, nil
}
