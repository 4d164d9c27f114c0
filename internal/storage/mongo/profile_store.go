package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type profileDocument struct {
	UserID  string `bson:"user_id"`
	Email   string `bson:"email"`
	Name    string `bson:"name"`
	Address string `bson:"address"`
}

// ProfileStore читает профили пользователей из коллекции profiles.
type ProfileStore struct {
	collection *mongo.Collection
}

// NewProfileStore создаёт хранилище профилей.
func NewProfileStore(db *mongo.Database) *ProfileStore {
	return &ProfileStore{collection: db.Collection(profilesCollection)}
}

// CreateIndexes создаёт уникальный индекс по user_id.
func (s *ProfileStore) CreateIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create profile indexes: %w", err)
	}
	return nil
}

// Get возвращает профиль или domain.ErrProfileNotFound.
func (s *ProfileStore) Get(ctx context.Context, userID string) (domain.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc profileDocument
	if err := s.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Profile{}, domain.ErrProfileNotFound
		}
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return domain.Profile{UserID: doc.UserID, Email: doc.Email, Name: doc.Name, Address: doc.Address}, nil
}

// Put добавляет или заменяет профиль.
func (s *ProfileStore) Put(ctx context.Context, profile domain.Profile) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc := profileDocument{UserID: profile.UserID, Email: profile.Email, Name: profile.Name, Address: profile.Address}
	_, err := s.collection.UpdateOne(ctx, bson.M{"user_id": profile.UserID}, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

var _ domain.ProfileStore = (*ProfileStore)(nil)
