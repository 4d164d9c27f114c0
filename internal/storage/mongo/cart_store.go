package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartItemDocument struct {
	ProductID string `bson:"product_id"`
	Quantity  int    `bson:"quantity"`
}

type cartDocument struct {
	OwnerID   string             `bson:"owner_id"`
	Items     []cartItemDocument `bson:"items"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func (d cartDocument) toDomain() domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return domain.Cart{OwnerID: d.OwnerID, Items: items, UpdatedAt: d.UpdatedAt}
}

// CartStore хранит корзину каждого пользователя отдельным документом.
type CartStore struct {
	collection *mongo.Collection
}

// NewCartStore создаёт хранилище корзин поверх коллекции carts.
func NewCartStore(db *mongo.Database) *CartStore {
	return &CartStore{collection: db.Collection(cartsCollection)}
}

// CreateIndexes создаёт уникальный индекс по владельцу корзины.
func (s *CartStore) CreateIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "owner_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create cart indexes: %w", err)
	}
	return nil
}

// Get возвращает корзину; отсутствующий документ означает пустую корзину.
func (s *CartStore) Get(ctx context.Context, ownerID string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc cartDocument
	err := s.collection.FindOne(ctx, bson.M{"owner_id": ownerID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Cart{OwnerID: ownerID}, nil
		}
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}
	return doc.toDomain(), nil
}

// Put заменяет позиции корзины владельца, создавая документ при необходимости.
func (s *CartStore) Put(ctx context.Context, cart domain.Cart) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemDocument{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"items": items, "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	_, err := s.collection.UpdateOne(ctx, bson.M{"owner_id": cart.OwnerID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}
	return nil
}

// Clear опустошает корзину, оставляя сам документ на месте.
func (s *CartStore) Clear(ctx context.Context, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"items": bson.A{}, "updated_at": time.Now().UTC()}}
	if _, err := s.collection.UpdateOne(ctx, bson.M{"owner_id": ownerID}, update); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

var _ domain.CartStore = (*CartStore)(nil)
