package models

import (
	"time"

	"github.com/Roland735/rentbot/internal/utils"
)

// Base carries the ID and timestamps shared by the listing-side documents.
type Base struct {
	ID        utils.SixID `bson:"_id" json:"id"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time   `bson:"updated_at" json:"updated_at"`
}

func (m *Base) GenIDIfEmpty() {
	if m.ID.IsZero() {
		m.GenID()
	}
}

func (m *Base) GenID() {
	m.ID = utils.NewSixID()
}

// Stamp sets CreatedAt (if unset) and UpdatedAt.
func (m *Base) Stamp(now time.Time) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}
