package bot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/observability"
	"github.com/Roland735/rentbot/internal/services"
	"github.com/Roland735/rentbot/internal/session"
)

// advance feeds body to the open session and persists the outcome. The
// session transition is claimed first so that of two concurrent replies only
// one writes to the draft.
func (b *Bot) advance(ctx context.Context, user *models.User, current session.Session, body string) error {
	out := session.Advance(current, body, b.env(user))
	b.Metrics.SessionTransitions.WithLabelValues(string(out.Step), out.Result.String()).Inc()

	if out.Result == session.ResultInvalid {
		b.reply(ctx, user.Phone, out.Reply)
		return nil
	}

	if err := b.transition(ctx, user, out.Next); err != nil {
		if errors.Is(err, services.ErrSessionConflict) {
			b.Logger.Info("Session moved on under a concurrent reply", observability.Phone(user.Phone), zap.String("step", string(out.Step)))
			b.reply(ctx, user.Phone, msgConflict)
			return nil
		}
		return fmt.Errorf("failed to store session: %w", err)
	}

	if draft, ok := current.(session.ListingDraft); ok && len(out.Updates) > 0 {
		if err := b.Listings.SetFields(ctx, draft.DraftID, updateMap(out.Updates)); err != nil {
			b.restore(ctx, user, current)
			return fmt.Errorf("failed to save listing answer: %w", err)
		}
	}

	switch out.Result {
	case session.ResultListingDone:
		draft := current.(session.ListingDraft)
		b.Logger.Info("Listing draft completed", observability.Phone(user.Phone), zap.String("listing_id", draft.DraftID.String()))
		b.reply(ctx, user.Phone, FormatListingDraft(draft.DraftID.String(), b.opts.PublishPrice))
		return nil
	case session.ResultSearchReady:
		c := out.Criteria
		return b.runSearch(ctx, user, func() ([]models.Listing, error) {
			return b.Listings.SearchFiltered(ctx, c.Suburb, c.MaxRent)
		})
	}

	b.reply(ctx, user.Phone, out.Reply)
	return nil
}

// restore puts back the session a failed write advanced past, so the user is
// asked the same question again.
func (b *Bot) restore(ctx context.Context, user *models.User, previous session.Session) {
	if err := b.transition(ctx, user, previous); err != nil {
		b.Logger.Warn("Failed to restore session", observability.Phone(user.Phone), zap.Error(err))
	}
}

func updateMap(updates []session.FieldUpdate) map[string]interface{} {
	fields := make(map[string]interface{}, len(updates))
	for _, u := range updates {
		fields[u.Field] = u.Value
	}
	return fields
}
