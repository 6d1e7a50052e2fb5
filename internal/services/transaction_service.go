package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Roland735/rentbot/internal/db"
	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/utils"
)

// Reference prefixes by transaction type.
const (
	ReferencePrefixCredits = "CRD"
	ReferencePrefixPublish = "PUB"
)

// ITransactionService records payments and settles them exactly once.
type ITransactionService interface {
	// Create assigns a fresh unique reference and inserts tx as pending.
	Create(ctx context.Context, tx *models.Transaction) error
	FindByReference(ctx context.Context, reference string) (*models.Transaction, error)
	SetProviderRef(ctx context.Context, reference, pollURL, paynowReference string) error
	// MarkSuccess and MarkFailed only move a pending transaction; they report whether they did.
	MarkSuccess(ctx context.Context, reference, paynowReference, pollURL string) (bool, error)
	MarkFailed(ctx context.Context, reference, providerStatus string) (bool, error)
}

type transactionService struct {
	db *mongo.Database
}

func NewTransactionService(db *mongo.Database) ITransactionService {
	return &transactionService{db: db}
}

func referencePrefix(t models.TransactionType) string {
	if t == models.TransactionListingPublish {
		return ReferencePrefixPublish
	}
	return ReferencePrefixCredits
}

func (s *transactionService) Create(ctx context.Context, tx *models.Transaction) error {
	collection := s.db.Collection(db.TransactionsCollection)
	now := time.Now().UTC()
	tx.Status = models.TransactionPending
	tx.CreatedAt = now
	tx.UpdatedAt = now

	operation := func() error {
		tx.Reference = referencePrefix(tx.Type) + "-" + utils.NewSixID().String()
		_, err := collection.InsertOne(ctx, tx)
		return err
	}
	if err := db.Try(operation); err != nil {
		return fmt.Errorf("failed to insert transaction for %s (last reference %s): %w", tx.Phone, tx.Reference, err)
	}
	return nil
}

func (s *transactionService) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.Collection(db.TransactionsCollection).FindOne(ctx, bson.M{"reference": reference}).Decode(&tx)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding transaction %s: %w", reference, err)
	}
	return &tx, nil
}

func (s *transactionService) SetProviderRef(ctx context.Context, reference, pollURL, paynowReference string) error {
	set := bson.M{"provider_ref": pollURL, "updated_at": time.Now().UTC()}
	if paynowReference != "" {
		set["paynow_reference"] = paynowReference
	}
	if _, err := s.db.Collection(db.TransactionsCollection).UpdateOne(ctx, bson.M{"reference": reference}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("failed to store provider reference for %s: %w", reference, err)
	}
	return nil
}

func (s *transactionService) settle(ctx context.Context, reference string, set bson.M) (bool, error) {
	set["updated_at"] = time.Now().UTC()
	res, err := s.db.Collection(db.TransactionsCollection).UpdateOne(ctx,
		bson.M{"reference": reference, "status": models.TransactionPending},
		bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to settle transaction %s: %w", reference, err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *transactionService) MarkSuccess(ctx context.Context, reference, paynowReference, pollURL string) (bool, error) {
	set := bson.M{"status": models.TransactionSuccess, "provider_status": "paid"}
	if paynowReference != "" {
		set["paynow_reference"] = paynowReference
	}
	if pollURL != "" {
		set["provider_ref"] = pollURL
	}
	return s.settle(ctx, reference, set)
}

func (s *transactionService) MarkFailed(ctx context.Context, reference, providerStatus string) (bool, error) {
	return s.settle(ctx, reference, bson.M{
		"status":          models.TransactionFailed,
		"provider_status": strings.ToLower(providerStatus),
	})
}
