package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Roland735/rentbot/internal/db"
	"github.com/Roland735/rentbot/internal/models"
)

// Denial reasons.
const (
	ReasonDailyLimit = "daily_limit"
	ReasonThrottled  = "throttled"
)

// Decision is the rate gate's answer.
type Decision struct {
	Allowed bool
	Reason  string
}

var allowed = Decision{Allowed: true}

// RateLimits configures the per-user gate.
type RateLimits struct {
	SearchDaily int
	PhotoDaily  int // doubled for verified users
	Throttle    time.Duration
	Window      time.Duration
}

// DefaultRateLimits mirrors the configuration defaults.
var DefaultRateLimits = RateLimits{
	SearchDaily: 200,
	PhotoDaily:  5,
	Throttle:    60 * time.Second,
	Window:      24 * time.Hour,
}

// IRateLimitService gates searches and photo requests per user. Checking and
// recording are separate calls; callers record only after the action happened.
type IRateLimitService interface {
	CanSearch(ctx context.Context, user *models.User) (Decision, error)
	RecordSearch(ctx context.Context, phone string) error
	CanRequestPhotos(ctx context.Context, user *models.User) (Decision, error)
	RecordPhotoRequest(ctx context.Context, phone string) error
}

type rateLimitService struct {
	db     *mongo.Database
	limits RateLimits
	now    func() time.Time
}

// NewRateLimitService creates a new RateLimitService.
func NewRateLimitService(db *mongo.Database, limits RateLimits) IRateLimitService {
	if limits.Window <= 0 {
		limits.Window = DefaultRateLimits.Window
	}
	return &rateLimitService{db: db, limits: limits, now: time.Now}
}

// resetIfStale zeroes both counters when the window has lapsed. It reports whether it did.
func (s *rateLimitService) resetIfStale(ctx context.Context, user *models.User, now time.Time) (bool, error) {
	if user.RateResetAt != nil && now.Sub(*user.RateResetAt) <= s.limits.Window {
		return false, nil
	}
	_, err := s.db.Collection(db.UsersCollection).UpdateOne(ctx,
		bson.M{"phone": user.Phone},
		bson.M{"$set": bson.M{
			"rate_reset_at":           now,
			"search_count_day":        0,
			"photo_request_count_day": 0,
			"updated_at":              now,
		}})
	if err != nil {
		return false, fmt.Errorf("failed to reset rate window for %s: %w", user.Phone, err)
	}
	user.RateResetAt = &now
	user.SearchCountDay = 0
	user.PhotoRequestCountDay = 0
	return true, nil
}

func (s *rateLimitService) decide(count, limit int, last *time.Time, now time.Time) Decision {
	if count >= limit {
		return Decision{Reason: ReasonDailyLimit}
	}
	if last != nil && now.Sub(*last) < s.limits.Throttle {
		return Decision{Reason: ReasonThrottled}
	}
	return allowed
}

func (s *rateLimitService) CanSearch(ctx context.Context, user *models.User) (Decision, error) {
	now := s.now().UTC()
	reset, err := s.resetIfStale(ctx, user, now)
	if err != nil || reset {
		return allowed, err
	}
	return s.decide(user.SearchCountDay, s.limits.SearchDaily, user.LastSearchAt, now), nil
}

func (s *rateLimitService) CanRequestPhotos(ctx context.Context, user *models.User) (Decision, error) {
	now := s.now().UTC()
	reset, err := s.resetIfStale(ctx, user, now)
	if err != nil || reset {
		return allowed, err
	}
	limit := s.limits.PhotoDaily
	if user.Verified {
		limit *= 2
	}
	return s.decide(user.PhotoRequestCountDay, limit, user.LastPhotoRequestAt, now), nil
}

func (s *rateLimitService) record(ctx context.Context, phone, counter, anchor string) error {
	now := s.now().UTC()
	_, err := s.db.Collection(db.UsersCollection).UpdateOne(ctx,
		bson.M{"phone": phone},
		bson.M{
			"$inc": bson.M{counter: 1},
			"$set": bson.M{anchor: now, "updated_at": now},
		})
	if err != nil {
		return fmt.Errorf("failed to record %s for %s: %w", counter, phone, err)
	}
	return nil
}

func (s *rateLimitService) RecordSearch(ctx context.Context, phone string) error {
	return s.record(ctx, phone, "search_count_day", "last_search_at")
}

func (s *rateLimitService) RecordPhotoRequest(ctx context.Context, phone string) error {
	return s.record(ctx, phone, "photo_request_count_day", "last_photo_request_at")
}
