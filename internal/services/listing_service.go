package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Roland735/rentbot/internal/db"
	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/session"
	"github.com/Roland735/rentbot/internal/utils"
)

// SearchLimit caps the number of listings one search returns.
const SearchLimit = 10

// IListingService defines the interface for listing-related operations.
type IListingService interface {
	// CreateDraft inserts an unpublished listing. fields are stored field names.
	CreateDraft(ctx context.Context, owner string, fields map[string]interface{}) (*models.Listing, error)
	FindByID(ctx context.Context, id utils.SixID) (*models.Listing, error)
	// SetFields writes draft answers collected by a listing session.
	SetFields(ctx context.Context, id utils.SixID, fields map[string]interface{}) error
	// Edit changes one field of a listing owned by owner.
	Edit(ctx context.Context, id utils.SixID, owner, field, raw string) (*models.Listing, error)
	Search(ctx context.Context, query string) ([]models.Listing, error)
	SearchFiltered(ctx context.Context, suburb *string, maxRent *float64) ([]models.Listing, error)
	// Publish marks a draft live. It reports false if the listing was already published.
	Publish(ctx context.Context, id utils.SixID) (bool, error)
	AddImage(ctx context.Context, id utils.SixID, url string) error
	ListByOwner(ctx context.Context, owner string) ([]models.Listing, error)
}

type listingService struct {
	db *mongo.Database
}

// NewListingService creates a new ListingService.
func NewListingService(db *mongo.Database) IListingService {
	return &listingService{db: db}
}

func (s *listingService) CreateDraft(ctx context.Context, owner string, fields map[string]interface{}) (*models.Listing, error) {
	collection := s.db.Collection(db.ListingsCollection)
	now := time.Now().UTC()

	var listing *models.Listing
	operation := func() error {
		listing = &models.Listing{
			OwnerPhone: owner,
			Amenities:  []string{},
			Images:     []string{},
		}
		listing.GenID()
		listing.Stamp(now)
		if err := applyFields(listing, fields); err != nil {
			return err
		}
		_, err := collection.InsertOne(ctx, listing)
		return err
	}

	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert draft listing for %s: %w", owner, err)
	}
	return listing, nil
}

// applyFields copies known stored-name fields onto l.
func applyFields(l *models.Listing, fields map[string]interface{}) error {
	for k, v := range fields {
		switch k {
		case models.FieldTitle:
			l.Title, _ = v.(string)
		case models.FieldType:
			l.Type, _ = v.(string)
		case models.FieldSuburb:
			l.Suburb, _ = v.(string)
		case models.FieldAddress:
			l.Address, _ = v.(string)
		case models.FieldRent:
			l.Rent, _ = v.(float64)
		case models.FieldDeposit:
			l.Deposit, _ = v.(float64)
		case models.FieldBedrooms:
			l.Bedrooms, _ = v.(string)
		case models.FieldAmenities:
			if a, ok := v.([]string); ok {
				l.Amenities = a
			}
		case models.FieldDescription:
			l.Description, _ = v.(string)
		case models.FieldContactName:
			l.ContactName, _ = v.(string)
		case models.FieldContactPhone:
			l.ContactPhone, _ = v.(string)
		default:
			return fmt.Errorf("%w: %s", ErrInvalidField, k)
		}
	}
	return nil
}

func (s *listingService) FindByID(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	var listing models.Listing
	err := s.db.Collection(db.ListingsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding listing by ID %s: %w", id.String(), err)
	}
	return &listing, nil
}

func (s *listingService) SetFields(ctx context.Context, id utils.SixID, fields map[string]interface{}) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range fields {
		if !isStoredField(k) {
			return fmt.Errorf("%w: %s", ErrInvalidField, k)
		}
		set[k] = v
	}
	res, err := s.db.Collection(db.ListingsCollection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update draft %s: %w", id.String(), err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func isStoredField(name string) bool {
	for _, stored := range models.EditableFields {
		if stored == name {
			return true
		}
	}
	return false
}

// ParseEdit resolves a user-supplied field name and raw value to a stored field and typed value.
func ParseEdit(field, raw string) (string, interface{}, error) {
	stored, ok := models.EditableFields[strings.ToLower(strings.TrimSpace(field))]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrInvalidField, field)
	}
	raw = utils.SanitizeText(raw)
	switch stored {
	case models.FieldRent, models.FieldDeposit:
		v, ok := session.ParseAmount(raw)
		if !ok {
			return "", nil, fmt.Errorf("%w: %s must be a number", ErrInvalidValue, stored)
		}
		return stored, v, nil
	case models.FieldAmenities:
		out := []string{}
		if !strings.EqualFold(raw, "NONE") {
			for _, part := range strings.Split(raw, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
		return stored, out, nil
	case models.FieldContactPhone:
		p := utils.NormalizePhone(raw)
		if !utils.ValidPhone(p) {
			return "", nil, fmt.Errorf("%w: %s must be a phone number", ErrInvalidValue, stored)
		}
		return stored, p, nil
	default:
		if raw == "" {
			return "", nil, fmt.Errorf("%w: %s must not be empty", ErrInvalidValue, stored)
		}
		return stored, raw, nil
	}
}

func (s *listingService) Edit(ctx context.Context, id utils.SixID, owner, field, raw string) (*models.Listing, error) {
	stored, value, err := ParseEdit(field, raw)
	if err != nil {
		return nil, err
	}
	collection := s.db.Collection(db.ListingsCollection)
	filter := bson.M{"_id": id, "owner_phone": owner}
	update := bson.M{"$set": bson.M{stored: value, "updated_at": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var listing models.Listing
	err = collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&listing)
	if err == nil {
		return &listing, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to edit listing %s: %w", id.String(), err)
	}
	n, cerr := collection.CountDocuments(ctx, bson.M{"_id": id})
	if cerr != nil {
		return nil, fmt.Errorf("failed to check listing %s: %w", id.String(), cerr)
	}
	if n > 0 {
		return nil, ErrNotOwner
	}
	return nil, mongo.ErrNoDocuments
}

func (s *listingService) find(ctx context.Context, filter bson.M) ([]models.Listing, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(SearchLimit)
	cursor, err := s.db.Collection(db.ListingsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	defer cursor.Close(ctx)

	listings := []models.Listing{}
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}
	return listings, nil
}

// Search matches query case-insensitively against suburb, title and description of
// published listings, newest first.
func (s *listingService) Search(ctx context.Context, query string) ([]models.Listing, error) {
	re := primitive.Regex{Pattern: regexp.QuoteMeta(strings.TrimSpace(query)), Options: "i"}
	return s.find(ctx, bson.M{
		"published": true,
		"$or": bson.A{
			bson.M{"suburb": re},
			bson.M{"title": re},
			bson.M{"description": re},
		},
	})
}

// SearchFiltered returns published listings in suburb (any when nil) with rent at most
// maxRent (any when nil), newest first.
func (s *listingService) SearchFiltered(ctx context.Context, suburb *string, maxRent *float64) ([]models.Listing, error) {
	filter := bson.M{"published": true}
	if suburb != nil && *suburb != "" {
		filter["suburb"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(*suburb) + "$", Options: "i"}
	}
	if maxRent != nil {
		filter["rent"] = bson.M{"$lte": *maxRent}
	}
	return s.find(ctx, filter)
}

func (s *listingService) Publish(ctx context.Context, id utils.SixID) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.Collection(db.ListingsCollection).UpdateOne(ctx,
		bson.M{"_id": id, "published": false},
		bson.M{"$set": bson.M{"published": true, "published_at": now, "updated_at": now}})
	if err != nil {
		return false, fmt.Errorf("failed to publish listing %s: %w", id.String(), err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *listingService) AddImage(ctx context.Context, id utils.SixID, url string) error {
	collection := s.db.Collection(db.ListingsCollection)
	full := fmt.Sprintf("images.%d", models.MaxListingImages-1)
	res, err := collection.UpdateOne(ctx,
		bson.M{"_id": id, full: bson.M{"$exists": false}},
		bson.M{
			"$push": bson.M{"images": url},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return fmt.Errorf("failed to add image to listing %s: %w", id.String(), err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to check listing %s: %w", id.String(), err)
	}
	if n > 0 {
		return ErrListingFull
	}
	return mongo.ErrNoDocuments
}

func (s *listingService) ListByOwner(ctx context.Context, owner string) ([]models.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.db.Collection(db.ListingsCollection).Find(ctx, bson.M{"owner_phone": owner}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings for %s: %w", owner, err)
	}
	defer cursor.Close(ctx)
	listings := []models.Listing{}
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}
	return listings, nil
}
