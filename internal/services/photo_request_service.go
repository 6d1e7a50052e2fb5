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
	"github.com/Roland735/rentbot/internal/utils"
)

// IPhotoRequestService tracks photo requests awaiting YES/NO.
type IPhotoRequestService interface {
	// Create opens a pending request, or points the phone's existing pending
	// request at listingID. A phone never has two pending requests.
	Create(ctx context.Context, phone, listingID string) (*models.PhotoRequest, error)
	FindPending(ctx context.Context, phone string) (*models.PhotoRequest, error)
	// Complete and Cancel report false if the request was no longer pending.
	Complete(ctx context.Context, id utils.SixID) (bool, error)
	Cancel(ctx context.Context, id utils.SixID) (bool, error)
	// Reopen returns a completed request to pending when its charge failed.
	Reopen(ctx context.Context, id utils.SixID) (bool, error)
}

type photoRequestService struct {
	db *mongo.Database
}

func NewPhotoRequestService(db *mongo.Database) IPhotoRequestService {
	return &photoRequestService{db: db}
}

func (s *photoRequestService) Create(ctx context.Context, phone, listingID string) (*models.PhotoRequest, error) {
	collection := s.db.Collection(db.PhotoRequestsCollection)
	var req models.PhotoRequest

	operation := func() error {
		filter := bson.M{"phone": phone, "status": models.PhotoRequestPending}
		update := bson.M{
			"$set": bson.M{"listing_id": listingID},
			"$setOnInsert": bson.M{
				"_id":        utils.NewSixID(),
				"created_at": time.Now().UTC(),
			},
		}
		opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
		return collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&req)
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to create photo request for %s: %w", phone, err)
	}
	return &req, nil
}

func (s *photoRequestService) FindPending(ctx context.Context, phone string) (*models.PhotoRequest, error) {
	var req models.PhotoRequest
	filter := bson.M{"phone": phone, "status": models.PhotoRequestPending}
	err := s.db.Collection(db.PhotoRequestsCollection).FindOne(ctx, filter).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding pending photo request for %s: %w", phone, err)
	}
	return &req, nil
}

func (s *photoRequestService) settle(ctx context.Context, id utils.SixID, status models.PhotoRequestStatus) (bool, error) {
	set := bson.M{"status": status}
	if status == models.PhotoRequestCompleted {
		set["confirmed_at"] = time.Now().UTC()
	}
	res, err := s.db.Collection(db.PhotoRequestsCollection).UpdateOne(ctx,
		bson.M{"_id": id, "status": models.PhotoRequestPending},
		bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to mark photo request %s %s: %w", id.String(), status, err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *photoRequestService) Complete(ctx context.Context, id utils.SixID) (bool, error) {
	return s.settle(ctx, id, models.PhotoRequestCompleted)
}

func (s *photoRequestService) Cancel(ctx context.Context, id utils.SixID) (bool, error) {
	return s.settle(ctx, id, models.PhotoRequestCanceled)
}

func (s *photoRequestService) Reopen(ctx context.Context, id utils.SixID) (bool, error) {
	res, err := s.db.Collection(db.PhotoRequestsCollection).UpdateOne(ctx,
		bson.M{"_id": id, "status": models.PhotoRequestCompleted},
		bson.M{
			"$set":   bson.M{"status": models.PhotoRequestPending},
			"$unset": bson.M{"confirmed_at": ""},
		})
	if err != nil {
		return false, fmt.Errorf("failed to reopen photo request %s: %w", id.String(), err)
	}
	return res.ModifiedCount == 1, nil
}
