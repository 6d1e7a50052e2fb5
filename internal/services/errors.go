package services

import "errors"

var (
	// ErrInsufficientCredits is returned when a debit would take the balance below zero.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrNotOwner is returned when a listing is changed by someone other than its owner.
	ErrNotOwner = errors.New("listing is not owned by this user")
	// ErrInvalidField is returned for listing fields that cannot be edited.
	ErrInvalidField = errors.New("field cannot be edited")
	// ErrInvalidValue is returned when an edit value does not parse for its field.
	ErrInvalidValue = errors.New("invalid value for field")
	// ErrSessionConflict is returned when a session transition loses a race.
	ErrSessionConflict = errors.New("session changed concurrently")
	// ErrListingFull is returned when a listing already holds the maximum number of images.
	ErrListingFull = errors.New("listing already has the maximum number of images")
)
