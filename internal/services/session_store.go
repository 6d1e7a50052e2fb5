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

// ISessionStore persists conversational sessions on the user document.
type ISessionStore interface {
	// Transition replaces the session if the stored revision is still expectedRev.
	// A nil next clears the session. It returns the new revision, or
	// ErrSessionConflict when another message got there first.
	Transition(ctx context.Context, phone string, expectedRev int64, next *models.SessionRecord) (int64, error)
	// SweepExpired clears sessions last touched before cutoff.
	SweepExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type sessionStore struct {
	db *mongo.Database
}

func NewSessionStore(db *mongo.Database) ISessionStore {
	return &sessionStore{db: db}
}

func revFilter(phone string, rev int64) bson.M {
	if rev == 0 {
		// Documents created before revisions existed have no session_rev at all.
		return bson.M{"phone": phone, "$or": bson.A{
			bson.M{"session_rev": int64(0)},
			bson.M{"session_rev": bson.M{"$exists": false}},
		}}
	}
	return bson.M{"phone": phone, "session_rev": rev}
}

func (s *sessionStore) Transition(ctx context.Context, phone string, expectedRev int64, next *models.SessionRecord) (int64, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$inc": bson.M{"session_rev": 1},
	}
	if next == nil {
		update["$set"] = bson.M{"updated_at": now}
		update["$unset"] = bson.M{"session": ""}
	} else {
		update["$set"] = bson.M{"session": next, "updated_at": now}
	}

	res, err := s.db.Collection(db.UsersCollection).UpdateOne(ctx, revFilter(phone, expectedRev), update)
	if err != nil {
		return 0, fmt.Errorf("failed to update session for %s: %w", phone, err)
	}
	if res.MatchedCount == 0 {
		return 0, ErrSessionConflict
	}
	return expectedRev + 1, nil
}

func (s *sessionStore) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{"session.updated_at": bson.M{"$lt": cutoff}}
	update := bson.M{
		"$unset": bson.M{"session": ""},
		"$inc":   bson.M{"session_rev": 1},
		"$set":   bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := s.db.Collection(db.UsersCollection).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired sessions: %w", err)
	}
	return res.ModifiedCount, nil
}
