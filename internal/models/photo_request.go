package models

import (
	"time"

	"github.com/Roland735/rentbot/internal/utils"
)

type PhotoRequestStatus string

const (
	PhotoRequestPending   PhotoRequestStatus = "pending_confirmation"
	PhotoRequestCompleted PhotoRequestStatus = "completed"
	PhotoRequestCanceled  PhotoRequestStatus = "canceled"
)

// PhotoRequest is a user's request to receive a listing's photos, awaiting YES.
type PhotoRequest struct {
	ID          utils.SixID        `bson:"_id" json:"id"`
	Phone       string             `bson:"phone" json:"phone"`
	ListingID   string             `bson:"listing_id" json:"listing_id"`
	Status      PhotoRequestStatus `bson:"status" json:"status"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	ConfirmedAt *time.Time         `bson:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`
}
