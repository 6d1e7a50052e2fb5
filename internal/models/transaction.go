package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
)

type TransactionType string

const (
	TransactionCreditPurchase TransactionType = "credit_purchase"
	TransactionListingPublish TransactionType = "listing_publish"
)

// ProductListingPublish is the product tag for publishing a listing.
const ProductListingPublish = "listing_publish"

const creditProductPrefix = "credits_"

// CreditProduct returns the product tag for a bundle of n credits.
func CreditProduct(n int) string {
	return fmt.Sprintf("%s%d", creditProductPrefix, n)
}

// ParseCreditProduct extracts n from "credits_n".
func ParseCreditProduct(product string) (int, bool) {
	if !strings.HasPrefix(product, creditProductPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(product, creditProductPrefix))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Transaction records a push payment from initiation to settlement.
type Transaction struct {
	Reference       string            `bson:"reference" json:"reference"`
	Phone           string            `bson:"phone" json:"phone"`
	Product         string            `bson:"product" json:"product"`
	Type            TransactionType   `bson:"type" json:"type"`
	ListingID       string            `bson:"listing_id,omitempty" json:"listing_id,omitempty"`
	Amount          float64           `bson:"amount" json:"amount"`
	Status          TransactionStatus `bson:"status" json:"status"`
	ProviderRef     string            `bson:"provider_ref,omitempty" json:"provider_ref,omitempty"`
	PaynowReference string            `bson:"paynow_reference,omitempty" json:"paynow_reference,omitempty"`
	ProviderStatus  string            `bson:"provider_status,omitempty" json:"provider_status,omitempty"`
	CreatedAt       time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `bson:"updated_at" json:"updated_at"`
}
