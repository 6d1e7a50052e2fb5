package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/db"
	"github.com/Roland735/rentbot/internal/models"
)

const catalogUpdateChannel = "catalog_updates"

// ICatalogService serves the suburb list and credit bundles. Values are cached in
// memory and reloaded when any instance publishes a change.
type ICatalogService interface {
	Suburbs() []string
	Bundles() []models.CreditBundle
	Bundle(credits int) (models.CreditBundle, bool)
	Load(ctx context.Context) error
	SubscribeToChanges(ctx context.Context) error
	SetSuburbs(ctx context.Context, suburbs []string) error
	SetBundles(ctx context.Context, bundles []models.CreditBundle) error
}

type catalogService struct {
	db     *mongo.Database
	rdb    *redis.Client
	logger *zap.Logger

	defaultSuburbs []string
	defaultBundles []models.CreditBundle

	mutex   sync.RWMutex
	suburbs []string
	bundles []models.CreditBundle
}

// NewCatalogService creates a catalog serving the given defaults until Load finds stored values.
// rdb may be nil, in which case changes are only seen by this instance.
func NewCatalogService(db *mongo.Database, rdb *redis.Client, defaultSuburbs []string, defaultBundles []models.CreditBundle, logger *zap.Logger) ICatalogService {
	return &catalogService{
		db:             db,
		rdb:            rdb,
		logger:         logger,
		defaultSuburbs: defaultSuburbs,
		defaultBundles: defaultBundles,
		suburbs:        defaultSuburbs,
		bundles:        defaultBundles,
	}
}

func (s *catalogService) Suburbs() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]string(nil), s.suburbs...)
}

func (s *catalogService) Bundles() []models.CreditBundle {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]models.CreditBundle(nil), s.bundles...)
}

func (s *catalogService) Bundle(credits int) (models.CreditBundle, bool) {
	for _, b := range s.Bundles() {
		if b.Credits == credits {
			return b, true
		}
	}
	return models.CreditBundle{}, false
}

type suburbsSetting struct {
	Value []string `bson:"value"`
}

type bundlesSetting struct {
	Value []models.CreditBundle `bson:"value"`
}

// Load reads the stored catalog. Keys that are not stored fall back to the defaults.
func (s *catalogService) Load(ctx context.Context) error {
	collection := s.db.Collection(db.SettingsCollection)

	suburbs := s.defaultSuburbs
	var subDoc suburbsSetting
	err := collection.FindOne(ctx, bson.M{"key": models.SettingSuburbs}).Decode(&subDoc)
	switch {
	case err == nil && len(subDoc.Value) > 0:
		suburbs = subDoc.Value
	case err != nil && !errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("failed to load suburbs: %w", err)
	}

	bundles := s.defaultBundles
	var bunDoc bundlesSetting
	err = collection.FindOne(ctx, bson.M{"key": models.SettingCreditBundles}).Decode(&bunDoc)
	switch {
	case err == nil && len(bunDoc.Value) > 0:
		bundles = bunDoc.Value
	case err != nil && !errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("failed to load credit bundles: %w", err)
	}

	s.mutex.Lock()
	s.suburbs = suburbs
	s.bundles = bundles
	s.mutex.Unlock()

	s.logger.Info("Catalog loaded", zap.Int("suburbs", len(suburbs)), zap.Int("bundles", len(bundles)))
	return nil
}

// SubscribeToChanges reloads the catalog on every notification until ctx is done.
func (s *catalogService) SubscribeToChanges(ctx context.Context) error {
	if s.rdb == nil {
		s.logger.Info("Redis client not configured, catalog changes are local only")
		return nil
	}

	pubsub := s.rdb.Subscribe(ctx, catalogUpdateChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to receive confirmation from Redis Pub/Sub subscription: %w", err)
	}

	ch := pubsub.Channel()
	s.logger.Info("Subscribed to catalog updates", zap.String("channel", catalogUpdateChannel))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.logger.Debug("Catalog update notification", zap.String("key", msg.Payload))
			if err := s.Load(ctx); err != nil {
				s.logger.Error("Failed to reload catalog after notification", zap.Error(err))
			}
		}
	}
}

func (s *catalogService) set(ctx context.Context, key string, value interface{}) error {
	_, err := s.db.Collection(db.SettingsCollection).UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$set": bson.M{"key": key, "value": value, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert setting %q: %w", key, err)
	}
	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, catalogUpdateChannel, key).Err(); err != nil {
			s.logger.Warn("Failed to publish catalog update", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

func (s *catalogService) SetSuburbs(ctx context.Context, suburbs []string) error {
	clean := make([]string, 0, len(suburbs))
	seen := make(map[string]bool, len(suburbs))
	for _, sub := range suburbs {
		sub = strings.TrimSpace(sub)
		if sub == "" || seen[strings.ToLower(sub)] {
			continue
		}
		seen[strings.ToLower(sub)] = true
		clean = append(clean, sub)
	}
	if len(clean) == 0 {
		return fmt.Errorf("%w: suburb list is empty", ErrInvalidValue)
	}
	if err := s.set(ctx, models.SettingSuburbs, clean); err != nil {
		return err
	}
	s.mutex.Lock()
	s.suburbs = clean
	s.mutex.Unlock()
	return nil
}

func (s *catalogService) SetBundles(ctx context.Context, bundles []models.CreditBundle) error {
	if len(bundles) == 0 {
		return fmt.Errorf("%w: bundle list is empty", ErrInvalidValue)
	}
	for _, b := range bundles {
		if b.Credits <= 0 || b.Price <= 0 {
			return fmt.Errorf("%w: bundle %d:%.2f", ErrInvalidValue, b.Credits, b.Price)
		}
	}
	if err := s.set(ctx, models.SettingCreditBundles, bundles); err != nil {
		return err
	}
	s.mutex.Lock()
	s.bundles = append([]models.CreditBundle(nil), bundles...)
	s.mutex.Unlock()
	return nil
}
