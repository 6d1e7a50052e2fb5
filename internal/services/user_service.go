package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Roland735/rentbot/internal/db"
	"github.com/Roland735/rentbot/internal/models"
)

// IUserService defines the interface for user-related operations.
type IUserService interface {
	EnsureUser(ctx context.Context, phone string) (*models.User, error)
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	SetOptedOut(ctx context.Context, phone string, optedOut bool) error
	SetLastSearchResults(ctx context.Context, phone string, listingIDs []string) error
	ListUsers(ctx context.Context, limit int64) ([]models.User, error)
}

type userService struct {
	db             *mongo.Database
	starterCredits int
}

// NewUserService creates a new UserService. New users start with starterCredits.
func NewUserService(db *mongo.Database, starterCredits int) IUserService {
	return &userService{db: db, starterCredits: starterCredits}
}

// EnsureUser returns the user for phone, creating it on first contact.
func (s *userService) EnsureUser(ctx context.Context, phone string) (*models.User, error) {
	collection := s.db.Collection(db.UsersCollection)
	var user models.User

	operation := func() error {
		now := time.Now().UTC()
		update := bson.M{"$setOnInsert": bson.M{
			"phone":                   phone,
			"credits":                 s.starterCredits,
			"verified":                false,
			"role":                    models.RoleUser,
			"opted_out":               false,
			"search_count_day":        0,
			"photo_request_count_day": 0,
			"session_rev":             int64(0),
			"created_at":              now,
			"updated_at":              now,
		}}
		opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
		return collection.FindOneAndUpdate(ctx, bson.M{"phone": phone}, update, opts).Decode(&user)
	}

	// Two first messages racing on the upsert collide on the unique phone index;
	// the retry then finds the winner's document.
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to ensure user %s: %w", phone, err)
	}
	return &user, nil
}

// FindByPhone returns mongo.ErrNoDocuments when the user does not exist.
func (s *userService) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	err := s.db.Collection(db.UsersCollection).FindOne(ctx, bson.M{"phone": phone}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by phone %s: %w", phone, err)
	}
	return &user, nil
}

// SetOptedOut flips the opt-out flag. Opting out also closes any open session.
func (s *userService) SetOptedOut(ctx context.Context, phone string, optedOut bool) error {
	update := bson.M{"$set": bson.M{"opted_out": optedOut, "updated_at": time.Now().UTC()}}
	if optedOut {
		update["$unset"] = bson.M{"session": ""}
		update["$inc"] = bson.M{"session_rev": 1}
	}
	res, err := s.db.Collection(db.UsersCollection).UpdateOne(ctx, bson.M{"phone": phone}, update)
	if err != nil {
		return fmt.Errorf("failed to set opt-out for %s: %w", phone, err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *userService) SetLastSearchResults(ctx context.Context, phone string, listingIDs []string) error {
	if listingIDs == nil {
		listingIDs = []string{}
	}
	update := bson.M{"$set": bson.M{"last_search_results": listingIDs, "updated_at": time.Now().UTC()}}
	if _, err := s.db.Collection(db.UsersCollection).UpdateOne(ctx, bson.M{"phone": phone}, update); err != nil {
		return fmt.Errorf("failed to store search results for %s: %w", phone, err)
	}
	return nil
}

// ListUsers returns users newest first. limit <= 0 means no limit.
func (s *userService) ListUsers(ctx context.Context, limit int64) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := s.db.Collection(db.UsersCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}
