package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Roland735/rentbot/internal/db"
	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/utils"
)

// IModerationService stores user reports against listings.
type IModerationService interface {
	Open(ctx context.Context, phone, listingID, reason string) (*models.ModerationTicket, error)
	List(ctx context.Context, status models.TicketStatus, limit int64) ([]models.ModerationTicket, error)
	Close(ctx context.Context, id utils.SixID) (bool, error)
}

type moderationService struct {
	db *mongo.Database
}

func NewModerationService(db *mongo.Database) IModerationService {
	return &moderationService{db: db}
}

func (s *moderationService) Open(ctx context.Context, phone, listingID, reason string) (*models.ModerationTicket, error) {
	collection := s.db.Collection(db.ModerationCollection)
	var ticket *models.ModerationTicket
	operation := func() error {
		ticket = &models.ModerationTicket{
			ID:        utils.NewSixID(),
			Phone:     phone,
			ListingID: listingID,
			Reason:    utils.SanitizeText(reason),
			Status:    models.TicketOpen,
			CreatedAt: time.Now().UTC(),
		}
		_, err := collection.InsertOne(ctx, ticket)
		return err
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to open moderation ticket on %s: %w", listingID, err)
	}
	return ticket, nil
}

// List returns tickets newest first; an empty status lists all.
func (s *moderationService) List(ctx context.Context, status models.TicketStatus, limit int64) ([]models.ModerationTicket, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := s.db.Collection(db.ModerationCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list moderation tickets: %w", err)
	}
	defer cursor.Close(ctx)
	tickets := []models.ModerationTicket{}
	if err := cursor.All(ctx, &tickets); err != nil {
		return nil, fmt.Errorf("failed to decode moderation tickets: %w", err)
	}
	return tickets, nil
}

func (s *moderationService) Close(ctx context.Context, id utils.SixID) (bool, error) {
	res, err := s.db.Collection(db.ModerationCollection).UpdateOne(ctx,
		bson.M{"_id": id, "status": models.TicketOpen},
		bson.M{"$set": bson.M{"status": models.TicketClosed, "resolved_at": time.Now().UTC()}})
	if err != nil {
		return false, fmt.Errorf("failed to close ticket %s: %w", id.String(), err)
	}
	return res.ModifiedCount == 1, nil
}
