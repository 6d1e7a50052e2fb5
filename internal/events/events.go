package events

import "time"

type ListingPublished struct {
	ListingID  string    `json:"listing_id"`
	OwnerPhone string    `json:"owner_phone"`
	Reference  string    `json:"reference"`
	At         time.Time `json:"at"`
}

type PaymentCompleted struct {
	Reference string    `json:"reference"`
	Product   string    `json:"product"`
	Amount    float64   `json:"amount"`
	Phone     string    `json:"phone"`
	At        time.Time `json:"at"`
}

type ModerationTicketOpened struct {
	TicketID  string    `json:"ticket_id"`
	ListingID string    `json:"listing_id"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}
