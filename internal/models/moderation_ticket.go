package models

import (
	"time"

	"github.com/Roland735/rentbot/internal/utils"
)

type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

// ModerationTicket is a user report against a listing.
type ModerationTicket struct {
	ID         utils.SixID  `bson:"_id" json:"id"`
	Phone      string       `bson:"phone" json:"phone"`
	ListingID  string       `bson:"listing_id" json:"listing_id"`
	Reason     string       `bson:"reason" json:"reason"`
	Status     TicketStatus `bson:"status" json:"status"`
	CreatedAt  time.Time    `bson:"created_at" json:"created_at"`
	ResolvedAt *time.Time   `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`
}
