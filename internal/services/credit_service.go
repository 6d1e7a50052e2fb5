package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Roland735/rentbot/internal/db"
)

// ICreditService is the credit ledger. Balances never go negative.
type ICreditService interface {
	// Adjust applies delta atomically and reports whether it was applied.
	// A debit that would underflow is not applied.
	Adjust(ctx context.Context, phone string, delta int) (bool, error)
	Debit(ctx context.Context, phone string, amount int) error
	Grant(ctx context.Context, phone string, amount int) error
	// SetBalance overwrites the balance of one user, or of every user when phone is empty.
	SetBalance(ctx context.Context, phone string, credits int) (int64, error)
}

type creditService struct {
	db *mongo.Database
}

func NewCreditService(db *mongo.Database) ICreditService {
	return &creditService{db: db}
}

func (s *creditService) Adjust(ctx context.Context, phone string, delta int) (bool, error) {
	filter := bson.M{"phone": phone}
	if delta < 0 {
		filter["credits"] = bson.M{"$gte": -delta}
	}
	update := bson.M{
		"$inc": bson.M{"credits": delta},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := s.db.Collection(db.UsersCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to adjust credits for %s by %d: %w", phone, delta, err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *creditService) Debit(ctx context.Context, phone string, amount int) error {
	ok, err := s.Adjust(ctx, phone, -amount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientCredits
	}
	return nil
}

func (s *creditService) Grant(ctx context.Context, phone string, amount int) error {
	ok, err := s.Adjust(ctx, phone, amount)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("grant of %d credits to %s: %w", amount, phone, mongo.ErrNoDocuments)
	}
	return nil
}

func (s *creditService) SetBalance(ctx context.Context, phone string, credits int) (int64, error) {
	if credits < 0 {
		return 0, fmt.Errorf("credits must not be negative, got %d", credits)
	}
	filter := bson.M{}
	if phone != "" {
		filter["phone"] = phone
	}
	update := bson.M{"$set": bson.M{"credits": credits, "updated_at": time.Now().UTC()}}
	res, err := s.db.Collection(db.UsersCollection).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to set credits: %w", err)
	}
	return res.MatchedCount, nil
}
