package services

import (
	"context"
	"time"

	"github.com/Roland735/rentbot/internal/utils"
)

// IJobQueue hands work to the background workers.
type IJobQueue interface {
	// EnqueueNotification delivers body to phone from a worker, with retries.
	EnqueueNotification(ctx context.Context, phone, body string) error
	// EnqueuePaymentSimulation feeds a synthetic result callback for reference after delay.
	EnqueuePaymentSimulation(ctx context.Context, reference, status string, delay time.Duration) error
	// EnqueueImageProcess fetches mediaURL, resizes it and attaches it to the listing.
	EnqueueImageProcess(ctx context.Context, listingID utils.SixID, owner, mediaURL string) error
}
