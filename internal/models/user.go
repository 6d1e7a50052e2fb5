package models

import (
	"time"
)

// Role distinguishes renters from landlords. It has no effect on permissions yet.
type Role string

const (
	RoleUser     Role = "user"
	RoleLandlord Role = "landlord"
)

// User is keyed by phone. Session state lives on the user document so that
// every transition can be a single conditional update.
type User struct {
	Phone                string         `bson:"phone" json:"phone"`
	Credits              int            `bson:"credits" json:"credits"`
	Verified             bool           `bson:"verified" json:"verified"`
	Role                 Role           `bson:"role" json:"role"`
	OptedOut             bool           `bson:"opted_out" json:"opted_out"`
	SearchCountDay       int            `bson:"search_count_day" json:"search_count_day"`
	PhotoRequestCountDay int            `bson:"photo_request_count_day" json:"photo_request_count_day"`
	RateResetAt          *time.Time     `bson:"rate_reset_at,omitempty" json:"rate_reset_at,omitempty"`
	LastSearchAt         *time.Time     `bson:"last_search_at,omitempty" json:"last_search_at,omitempty"`
	LastPhotoRequestAt   *time.Time     `bson:"last_photo_request_at,omitempty" json:"last_photo_request_at,omitempty"`
	LastSearchResults    []string       `bson:"last_search_results,omitempty" json:"last_search_results,omitempty"`
	Session              *SessionRecord `bson:"session,omitempty" json:"session,omitempty"`
	SessionRev           int64          `bson:"session_rev" json:"-"`
	CreatedAt            time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time      `bson:"updated_at" json:"updated_at"`
}

// SessionKind tags which variant a stored session is.
type SessionKind string

const (
	SessionKindListing SessionKind = "listing"
	SessionKindSearch  SessionKind = "search"
)

// SessionRecord is the stored form of a conversational session.
// DraftID is set only for listing sessions; Suburb and MaxRent only for search sessions.
type SessionRecord struct {
	Kind      SessionKind `bson:"kind" json:"kind"`
	Step      string      `bson:"step" json:"step"`
	DraftID   string      `bson:"draft_id,omitempty" json:"draft_id,omitempty"`
	Suburb    *string     `bson:"suburb,omitempty" json:"suburb,omitempty"`
	MaxRent   *float64    `bson:"max_rent,omitempty" json:"max_rent,omitempty"`
	UpdatedAt time.Time   `bson:"updated_at" json:"updated_at"`
}
