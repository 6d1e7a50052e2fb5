package models

import (
	"time"
)

// MaxListingImages caps stored images per listing and media per photo reply.
const MaxListingImages = 3

// Listing is a rental listing. It stays a draft (Published=false) until the publish payment succeeds.
type Listing struct {
	Base         `bson:",inline"`
	OwnerPhone   string     `bson:"owner_phone" json:"owner_phone"`
	Title        string     `bson:"title" json:"title"`
	Type         string     `bson:"type" json:"type"`
	Suburb       string     `bson:"suburb" json:"suburb"`
	Address      string     `bson:"address" json:"address"`
	Rent         float64    `bson:"rent" json:"rent"`
	Deposit      float64    `bson:"deposit" json:"deposit"`
	Bedrooms     string     `bson:"bedrooms" json:"bedrooms"`
	Amenities    []string   `bson:"amenities" json:"amenities"`
	Description  string     `bson:"description" json:"description"`
	ContactName  string     `bson:"contact_name" json:"contact_name"`
	ContactPhone string     `bson:"contact_phone" json:"contact_phone"`
	Images       []string   `bson:"images" json:"images"`
	Published    bool       `bson:"published" json:"published"`
	PublishedAt  *time.Time `bson:"published_at,omitempty" json:"published_at,omitempty"`
}

// Editable listing fields, by their stored name.
const (
	FieldTitle        = "title"
	FieldType         = "type"
	FieldSuburb       = "suburb"
	FieldAddress      = "address"
	FieldRent         = "rent"
	FieldDeposit      = "deposit"
	FieldBedrooms     = "bedrooms"
	FieldAmenities    = "amenities"
	FieldDescription  = "description"
	FieldContactName  = "contact_name"
	FieldContactPhone = "contact_phone"
)

// EditableFields maps accepted field names (including the camelCase spellings
// users copy from old help texts) to stored field names.
var EditableFields = map[string]string{
	"title":         FieldTitle,
	"type":          FieldType,
	"suburb":        FieldSuburb,
	"address":       FieldAddress,
	"rent":          FieldRent,
	"deposit":       FieldDeposit,
	"bedrooms":      FieldBedrooms,
	"amenities":     FieldAmenities,
	"description":   FieldDescription,
	"text":          FieldDescription,
	"contact_name":  FieldContactName,
	"contactname":   FieldContactName,
	"contact_phone": FieldContactPhone,
	"contactphone":  FieldContactPhone,
}
