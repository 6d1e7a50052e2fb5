package payments

import (
	"strings"
)

// Paynow transaction statuses.
const (
	StatusPaid             = "Paid"
	StatusAwaitingDelivery = "Awaiting Delivery"
	StatusDelivered        = "Delivered"
	StatusCreated          = "Created"
	StatusSent             = "Sent"
	StatusCancelled        = "Cancelled"
	StatusFailed           = "Failed"
	StatusDisputed         = "Disputed"
	StatusRefunded         = "Refunded"
)

// Result is a status update posted to the result URL.
type Result struct {
	Reference       string
	Status          string
	PollURL         string
	PaynowReference string
	Amount          string
	HasHash         bool

	fields []Field
}

// ParseResult decodes a result callback body.
func ParseResult(body []byte) (*Result, error) {
	fields, err := ParseFields(string(body))
	if err != nil {
		return nil, err
	}
	return &Result{
		Reference:       strings.TrimSpace(lookup(fields, "reference")),
		Status:          strings.TrimSpace(lookup(fields, "status")),
		PollURL:         lookup(fields, "pollurl"),
		PaynowReference: lookup(fields, "paynowreference"),
		Amount:          lookup(fields, "amount"),
		HasHash:         lookup(fields, "hash") != "",
		fields:          fields,
	}, nil
}

// Verify checks the callback hash.
func (r *Result) Verify(integrationKey string) error {
	return VerifyFields(r.fields, integrationKey)
}

// IsPaid reports whether status settles the payment.
func IsPaid(status string) bool {
	switch status {
	case StatusPaid, StatusAwaitingDelivery, StatusDelivered:
		return true
	}
	return false
}

// IsFailed reports whether status ends the payment without settlement.
// Intermediate statuses such as Created and Sent are neither paid nor failed.
func IsFailed(status string) bool {
	switch status {
	case StatusCancelled, StatusFailed, StatusDisputed, StatusRefunded:
		return true
	}
	return false
}
