package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/events"
	"github.com/Roland735/rentbot/internal/messaging"
	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/observability"
	"github.com/Roland735/rentbot/internal/payments"
	"github.com/Roland735/rentbot/internal/services"
	"github.com/Roland735/rentbot/internal/session"
	"github.com/Roland735/rentbot/internal/utils"
)

func listingNotFound(id string) string {
	return fmt.Sprintf("Listing %s not found. Check the ID and try again.", id)
}

// findListing resolves a user-typed ID. A malformed ID is reported as not found.
func (b *Bot) findListing(ctx context.Context, raw string) (*models.Listing, error) {
	id, err := utils.ParseSixID(raw)
	if err != nil {
		return nil, mongo.ErrNoDocuments
	}
	return b.Listings.FindByID(ctx, id)
}

func (b *Bot) handleSearch(ctx context.Context, user *models.User, rest string) error {
	query := utils.SanitizeText(rest)
	if query == "" {
		next, prompt := session.StartSearch(b.env(user))
		return b.startSession(ctx, user, next, prompt)
	}
	return b.runSearch(ctx, user, func() ([]models.Listing, error) {
		return b.Listings.Search(ctx, query)
	})
}

// runSearch charges for a search only once the results were delivered.
func (b *Bot) runSearch(ctx context.Context, user *models.User, query func() ([]models.Listing, error)) error {
	cost := b.opts.SearchCost
	if user.Credits < cost {
		b.reply(ctx, user.Phone, FormatInsufficientCredits(cost))
		return nil
	}

	decision, err := b.RateLimits.CanSearch(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to check search limit: %w", err)
	}
	if !decision.Allowed {
		b.Logger.Info("Search rate limited", observability.Phone(user.Phone), zap.String("reason", decision.Reason))
		return nil
	}

	results, err := query()
	if err != nil {
		return fmt.Errorf("failed to search listings: %w", err)
	}

	body := FormatSearchResults(results, cost, user.Credits-cost)
	if err := b.send(ctx, messaging.Message{To: user.Phone, Body: body}); err != nil {
		b.Logger.Warn("Search results not delivered; not charging", observability.Phone(user.Phone), zap.Error(err))
		return nil
	}

	if err := b.Credits.Debit(ctx, user.Phone, cost); err != nil {
		b.Logger.Error("Failed to charge for delivered search", observability.Phone(user.Phone), zap.Error(err))
	} else {
		user.Credits -= cost
	}
	if err := b.RateLimits.RecordSearch(ctx, user.Phone); err != nil {
		b.Logger.Error("Failed to record search", observability.Phone(user.Phone), zap.Error(err))
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID.String())
	}
	if err := b.Users.SetLastSearchResults(ctx, user.Phone, ids); err != nil {
		b.Logger.Error("Failed to store search results", observability.Phone(user.Phone), zap.Error(err))
	}

	b.Logger.Info("Search served", observability.Phone(user.Phone), zap.Int("results", len(results)))
	return nil
}

func (b *Bot) handlePhotoShortcut(ctx context.Context, user *models.User, n int) error {
	ids := user.LastSearchResults
	if len(ids) == 0 {
		b.reply(ctx, user.Phone, "Run SEARCH first, then reply with a result number to request its photos.")
		return nil
	}
	if n < 1 || n > len(ids) {
		b.reply(ctx, user.Phone, fmt.Sprintf("Reply with a number from 1 to %d from your last search, or PHOTOS <ID>.", len(ids)))
		return nil
	}
	return b.handlePhotos(ctx, user, ids[n-1])
}

func (b *Bot) handlePhotos(ctx context.Context, user *models.User, id string) error {
	if id == "" {
		b.reply(ctx, user.Phone, "Reply PHOTOS <ID> to request a listing's images.")
		return nil
	}
	listing, err := b.findListing(ctx, id)
	if err == nil && !listing.Published && listing.OwnerPhone != user.Phone {
		err = mongo.ErrNoDocuments
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			b.reply(ctx, user.Phone, listingNotFound(id))
			return nil
		}
		return fmt.Errorf("failed to load listing: %w", err)
	}

	decision, err := b.RateLimits.CanRequestPhotos(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to check photo limit: %w", err)
	}
	if !decision.Allowed {
		b.Logger.Info("Photo request rate limited", observability.Phone(user.Phone), zap.String("reason", decision.Reason))
		return nil
	}

	listingID := listing.ID.String()
	if _, err := b.Photos.Create(ctx, user.Phone, listingID); err != nil {
		return fmt.Errorf("failed to create photo request: %w", err)
	}
	b.reply(ctx, user.Phone, FormatPhotosRequest(listingID, b.opts.PhotoCost))
	if err := b.RateLimits.RecordPhotoRequest(ctx, user.Phone); err != nil {
		b.Logger.Error("Failed to record photo request", observability.Phone(user.Phone), zap.Error(err))
	}
	return nil
}

// handleYes charges for and delivers the pending photo request. Without one it does nothing.
func (b *Bot) handleYes(ctx context.Context, user *models.User) error {
	pending, err := b.Photos.FindPending(ctx, user.Phone)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		return fmt.Errorf("failed to load photo request: %w", err)
	}

	var media []string
	listing, err := b.findListing(ctx, pending.ListingID)
	switch {
	case err == nil:
		media = listing.Images
	case !errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("failed to load listing: %w", err)
	}
	if len(media) > models.MaxListingImages {
		media = media[:models.MaxListingImages]
	}

	// Claim the request before charging so two YES replies cannot both pay.
	claimed, err := b.Photos.Complete(ctx, pending.ID)
	if err != nil {
		return fmt.Errorf("failed to claim photo request: %w", err)
	}
	if !claimed {
		return nil
	}
	if err := b.Credits.Debit(ctx, user.Phone, b.opts.PhotoCost); err != nil {
		if _, rerr := b.Photos.Reopen(ctx, pending.ID); rerr != nil {
			b.Logger.Error("Failed to reopen photo request", zap.String("request_id", pending.ID.String()), zap.Error(rerr))
		}
		if errors.Is(err, services.ErrInsufficientCredits) {
			b.reply(ctx, user.Phone, FormatInsufficientCredits(b.opts.PhotoCost))
			return nil
		}
		return fmt.Errorf("failed to charge for photos: %w", err)
	}

	body := msgNoImages
	if len(media) > 0 {
		body = msgPhotosAttached
	}
	if err := b.send(ctx, messaging.Message{To: user.Phone, Body: body, MediaURLs: media}); err != nil {
		b.Logger.Warn("Failed to deliver photos", observability.Phone(user.Phone), zap.Error(err))
	}
	b.Logger.Info("Photo request confirmed",
		observability.Phone(user.Phone),
		zap.String("listing_id", pending.ListingID),
		zap.Int("media", len(media)))
	return nil
}

// handleNo reports whether there was a pending photo request to cancel.
func (b *Bot) handleNo(ctx context.Context, user *models.User) (bool, error) {
	pending, err := b.Photos.FindPending(ctx, user.Phone)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load photo request: %w", err)
	}
	canceled, err := b.Photos.Cancel(ctx, pending.ID)
	if err != nil {
		return true, fmt.Errorf("failed to cancel photo request: %w", err)
	}
	if canceled {
		b.reply(ctx, user.Phone, FormatPhotosCanceled(pending.ListingID))
	}
	return true, nil
}

func (b *Bot) handleReport(ctx context.Context, user *models.User, rest string) error {
	id, reason := splitWord(rest)
	if id == "" {
		b.reply(ctx, user.Phone, "Reply REPORT <ID> <reason> to report a listing.")
		return nil
	}
	ticket, err := b.Moderation.Open(ctx, user.Phone, id, utils.SanitizeText(reason))
	if err != nil {
		return fmt.Errorf("failed to open moderation ticket: %w", err)
	}
	b.reply(ctx, user.Phone, FormatReportReceived(id))
	b.publishEvent(ctx, events.SubjectModerationTicketOpened, events.ModerationTicketOpened{
		TicketID:  ticket.ID.String(),
		ListingID: ticket.ListingID,
		Reason:    ticket.Reason,
		At:        ticket.CreatedAt,
	})
	return nil
}

func (b *Bot) handleList(ctx context.Context, user *models.User, rest string) error {
	if b.opts.FlowSID != "" {
		err := b.send(ctx, messaging.Message{
			To:               user.Phone,
			ContentSID:       b.opts.FlowSID,
			ContentVariables: map[string]string{"1": msgFlowBody},
		})
		if err != nil {
			return fmt.Errorf("failed to send listing flow: %w", err)
		}
		return nil
	}

	title := utils.SanitizeText(rest)
	fields := map[string]interface{}{}
	if title != "" {
		fields[models.FieldTitle] = title
	}
	draft, err := b.Listings.CreateDraft(ctx, user.Phone, fields)
	if err != nil {
		return fmt.Errorf("failed to create listing draft: %w", err)
	}
	b.Logger.Info("Listing draft started", observability.Phone(user.Phone), zap.String("listing_id", draft.ID.String()))

	next, prompt := session.StartListing(draft.ID, title != "", b.env(user))
	return b.startSession(ctx, user, next, prompt)
}

func (b *Bot) handleFlow(ctx context.Context, user *models.User, flow map[string]interface{}) error {
	draft, err := b.Listings.CreateDraft(ctx, user.Phone, flowFields(flow, user.Phone))
	if err != nil {
		return fmt.Errorf("failed to create listing draft: %w", err)
	}
	b.Logger.Info("Listing draft created from flow", observability.Phone(user.Phone), zap.String("listing_id", draft.ID.String()))
	b.reply(ctx, user.Phone, FormatListingDraft(draft.ID.String(), b.opts.PublishPrice))
	return nil
}

func (b *Bot) handleBuy(ctx context.Context, user *models.User, rest string) error {
	product, err := b.Payments.ResolveProduct(ctx, user.Phone, rest)
	switch {
	case errors.Is(err, services.ErrUnknownProduct):
		b.reply(ctx, user.Phone, FormatBundles(b.Catalog.Bundles(), b.opts.PublishPrice))
		return nil
	case errors.Is(err, services.ErrNotOwner):
		b.reply(ctx, user.Phone, "You can only publish your own listings.")
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		b.reply(ctx, user.Phone, "Listing not found. Check the ID and try BUY LIST <ID> again.")
		return nil
	case err != nil:
		return fmt.Errorf("failed to resolve product: %w", err)
	}

	purchase, err := b.Payments.StartPurchase(ctx, user.Phone, product)
	if err != nil {
		var perr *payments.ProviderError
		switch {
		case errors.As(err, &perr):
			b.reply(ctx, user.Phone, "Payment could not be started: "+perr.Message)
			return nil
		case errors.Is(err, payments.ErrInvalidPhone):
			b.reply(ctx, user.Phone, "Payments need an EcoCash or OneMoney number. Message us from that number to pay.")
			return nil
		}
		return fmt.Errorf("failed to start payment: %w", err)
	}
	b.reply(ctx, user.Phone, FormatPaymentStarted(purchase.Transaction, purchase.Instructions))
	return nil
}

func (b *Bot) handleStop(ctx context.Context, user *models.User) error {
	if err := b.Users.SetOptedOut(ctx, user.Phone, true); err != nil {
		return fmt.Errorf("failed to opt out: %w", err)
	}
	b.Logger.Info("User opted out", observability.Phone(user.Phone))
	b.reply(ctx, user.Phone, FormatStop())
	return nil
}

func (b *Bot) handleHelp(ctx context.Context, user *models.User) error {
	if user.OptedOut {
		if err := b.Users.SetOptedOut(ctx, user.Phone, false); err != nil {
			return fmt.Errorf("failed to opt back in: %w", err)
		}
		b.Logger.Info("User opted back in", observability.Phone(user.Phone))
	}
	b.reply(ctx, user.Phone, FormatHelp(user.Credits))
	return nil
}

func (b *Bot) handleEdit(ctx context.Context, user *models.User, rest string) error {
	id, remainder := splitWord(rest)
	field, value := splitWord(remainder)
	if id == "" || field == "" || value == "" {
		b.reply(ctx, user.Phone, "Reply EDIT <ID> <field> <value>. Fields: "+editableFieldList())
		return nil
	}

	listingID, err := utils.ParseSixID(id)
	if err != nil {
		b.reply(ctx, user.Phone, listingNotFound(id))
		return nil
	}
	listing, err := b.Listings.Edit(ctx, listingID, user.Phone, field, value)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		b.reply(ctx, user.Phone, listingNotFound(id))
		return nil
	case errors.Is(err, services.ErrNotOwner):
		b.reply(ctx, user.Phone, "You can only edit your own listings.")
		return nil
	case errors.Is(err, services.ErrInvalidField):
		b.reply(ctx, user.Phone, fmt.Sprintf("You can't edit %q. Fields: %s", field, editableFieldList()))
		return nil
	case errors.Is(err, services.ErrInvalidValue):
		b.reply(ctx, user.Phone, fmt.Sprintf("That is not a valid value for %s.", strings.ToLower(field)))
		return nil
	case err != nil:
		return fmt.Errorf("failed to edit listing: %w", err)
	}

	b.reply(ctx, user.Phone, FormatEditConfirmed(listing.ID.String(), models.EditableFields[strings.ToLower(field)]))
	return nil
}

func (b *Bot) handleAddPhoto(ctx context.Context, user *models.User, rest string, media []string) error {
	id, _ := splitWord(rest)
	if id == "" {
		b.reply(ctx, user.Phone, "Reply ADDPHOTO <ID> with up to 3 photos attached.")
		return nil
	}
	listing, err := b.findListing(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			b.reply(ctx, user.Phone, listingNotFound(id))
			return nil
		}
		return fmt.Errorf("failed to load listing: %w", err)
	}
	if listing.OwnerPhone != user.Phone {
		b.reply(ctx, user.Phone, "You can only add photos to your own listings.")
		return nil
	}
	if len(media) == 0 {
		b.reply(ctx, user.Phone, "No photo attached. Send ADDPHOTO <ID> with up to 3 photos attached.")
		return nil
	}

	room := models.MaxListingImages - len(listing.Images)
	if room <= 0 {
		b.reply(ctx, user.Phone, fmt.Sprintf("Listing %s already has %d photos.", listing.ID, models.MaxListingImages))
		return nil
	}
	if len(media) > room {
		media = media[:room]
	}
	for _, u := range media {
		if err := b.Jobs.EnqueueImageProcess(ctx, listing.ID, user.Phone, u); err != nil {
			return fmt.Errorf("failed to queue photo: %w", err)
		}
	}
	b.reply(ctx, user.Phone, FormatPhotosQueued(listing.ID.String(), len(media)))
	return nil
}
