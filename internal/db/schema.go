package db

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Collection names.
const (
	UsersCollection         = "users"
	ListingsCollection      = "listings"
	PhotoRequestsCollection = "photo_requests"
	TransactionsCollection  = "transactions"
	ModerationCollection    = "moderation_tickets"
	SettingsCollection      = "settings"
)

// AllCollections lists every collection the bot owns, for tests and tooling.
var AllCollections = []string{
	UsersCollection, ListingsCollection, PhotoRequestsCollection,
	TransactionsCollection, ModerationCollection, SettingsCollection,
}

type collectionSpec struct {
	name      string
	validator bson.M
	indexes   []mongo.IndexModel
}

func jsonSchema(required []string, properties bson.M) bson.M {
	return bson.M{"$jsonSchema": bson.M{
		"bsonType":   "object",
		"required":   required,
		"properties": properties,
	}}
}

var schema = []collectionSpec{
	{
		name: UsersCollection,
		validator: jsonSchema([]string{"phone", "credits"}, bson.M{
			"phone":   bson.M{"bsonType": "string"},
			"credits": bson.M{"bsonType": []string{"int", "long"}, "minimum": 0},
		}),
		indexes: []mongo.IndexModel{
			{Keys: bson.D{{Key: "phone", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "session.updated_at", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
	},
	{
		name: ListingsCollection,
		validator: jsonSchema([]string{"owner_phone", "published"}, bson.M{
			"owner_phone": bson.M{"bsonType": "string"},
			"published":   bson.M{"bsonType": "bool"},
			"images":      bson.M{"bsonType": "array", "maxItems": 3},
		}),
		indexes: []mongo.IndexModel{
			{Keys: bson.D{{Key: "owner_phone", Value: 1}}},
			{Keys: bson.D{{Key: "published", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "published", Value: 1}, {Key: "suburb", Value: 1}, {Key: "rent", Value: 1}}},
		},
	},
	{
		name: PhotoRequestsCollection,
		validator: jsonSchema([]string{"phone", "listing_id", "status"}, bson.M{
			"status": bson.M{"enum": []string{"pending_confirmation", "completed", "canceled"}},
		}),
		indexes: []mongo.IndexModel{
			{Keys: bson.D{{Key: "phone", Value: 1}, {Key: "status", Value: 1}}},
			// At most one pending request per phone.
			{
				Keys: bson.D{{Key: "phone", Value: 1}},
				Options: options.Index().
					SetName("phone_pending_unique").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": "pending_confirmation"}),
			},
		},
	},
	{
		name: TransactionsCollection,
		validator: jsonSchema([]string{"reference", "phone", "product", "amount", "status"}, bson.M{
			"status": bson.M{"enum": []string{"pending", "success", "failed"}},
			"amount": bson.M{"bsonType": []string{"double", "int", "long", "decimal"}},
		}),
		indexes: []mongo.IndexModel{
			{Keys: bson.D{{Key: "reference", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "phone", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	},
	{
		name: ModerationCollection,
		validator: jsonSchema([]string{"listing_id", "status"}, bson.M{
			"status": bson.M{"enum": []string{"open", "closed"}},
		}),
		indexes: []mongo.IndexModel{
			{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "status", Value: 1}}},
		},
	},
	{
		name: SettingsCollection,
		indexes: []mongo.IndexModel{
			{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	},
}

const namespaceExistsCode = 48

// EnsureSchema creates the collections with their validators and indexes. It is
// safe to run on every start: existing collections get their validator refreshed.
func EnsureSchema(ctx context.Context, database *mongo.Database, logger *zap.Logger) error {
	for _, spec := range schema {
		if err := ensureCollection(ctx, database, spec); err != nil {
			return err
		}
		if len(spec.indexes) > 0 {
			if _, err := database.Collection(spec.name).Indexes().CreateMany(ctx, spec.indexes); err != nil {
				return fmt.Errorf("failed to create indexes on %s: %w", spec.name, err)
			}
		}
		logger.Debug("collection ready", zap.String("collection", spec.name))
	}
	return nil
}

func ensureCollection(ctx context.Context, database *mongo.Database, spec collectionSpec) error {
	opts := options.CreateCollection()
	if spec.validator != nil {
		opts.SetValidator(spec.validator).SetValidationLevel("moderate")
	}
	err := database.CreateCollection(ctx, spec.name, opts)
	if err == nil {
		return nil
	}
	var cmdErr mongo.CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Code != namespaceExistsCode {
		return fmt.Errorf("failed to create collection %s: %w", spec.name, err)
	}
	if spec.validator == nil {
		return nil
	}
	cmd := bson.D{
		{Key: "collMod", Value: spec.name},
		{Key: "validator", Value: spec.validator},
		{Key: "validationLevel", Value: "moderate"},
	}
	if err := database.RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("failed to update validator on %s: %w", spec.name, err)
	}
	return nil
}
