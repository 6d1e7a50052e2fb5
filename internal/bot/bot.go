package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/events"
	"github.com/Roland735/rentbot/internal/messaging"
	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/observability"
	"github.com/Roland735/rentbot/internal/services"
	"github.com/Roland735/rentbot/internal/session"
)

// Deps are the collaborators the bot dispatches to.
type Deps struct {
	Users      services.IUserService
	Credits    services.ICreditService
	Sessions   services.ISessionStore
	Listings   services.IListingService
	Photos     services.IPhotoRequestService
	Moderation services.IModerationService
	RateLimits services.IRateLimitService
	Catalog    services.ICatalogService
	Payments   services.IPaymentService
	Jobs       services.IJobQueue
	Sender     messaging.Sender
	Events     events.Publisher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// Options are the tunables read from config.
type Options struct {
	FlowSID      string
	SessionTTL   time.Duration
	SearchCost   int
	PhotoCost    int
	PublishPrice float64
}

// Bot handles inbound messages. It is safe for concurrent use; all state lives in the store.
type Bot struct {
	Deps
	opts Options
	now  func() time.Time
}

func New(deps Deps, opts Options) *Bot {
	if opts.SearchCost <= 0 {
		opts.SearchCost = 1
	}
	if opts.PhotoCost <= 0 {
		opts.PhotoCost = 2
	}
	return &Bot{Deps: deps, opts: opts, now: time.Now}
}

// Handle dispatches one inbound message. Store failures are answered with a
// generic reply and returned so the caller can log them; the provider is
// acknowledged either way.
func (b *Bot) Handle(ctx context.Context, in Inbound) error {
	if in.Phone == "" {
		return nil
	}
	b.Metrics.Commands.WithLabelValues(in.Command.String()).Inc()

	err := b.dispatch(ctx, in)
	if err != nil {
		b.Logger.Error("Failed to handle message",
			observability.Phone(in.Phone),
			zap.Stringer("command", in.Command),
			zap.Error(err))
		b.reply(ctx, in.Phone, msgGenericError)
	}
	return err
}

func (b *Bot) dispatch(ctx context.Context, in Inbound) error {
	user, err := b.Users.EnsureUser(ctx, in.Phone)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	if user.OptedOut && in.Command != CommandHelp {
		return nil
	}

	current, err := session.FromRecord(user.Session, b.now(), b.opts.SessionTTL)
	if err != nil {
		// An unreadable session is dropped rather than wedging the user.
		b.Logger.Warn("Discarding unreadable session", observability.Phone(user.Phone), zap.Error(err))
		current = nil
	}

	switch in.Command {
	case CommandSearch:
		return b.handleSearch(ctx, user, in.Rest)
	case CommandPhotos:
		id, _ := splitWord(in.Rest)
		return b.handlePhotos(ctx, user, id)
	case CommandYes:
		return b.handleYes(ctx, user)
	case CommandReport:
		return b.handleReport(ctx, user, in.Rest)
	case CommandList:
		return b.handleList(ctx, user, in.Rest)
	case CommandBuy:
		return b.handleBuy(ctx, user, in.Rest)
	case CommandStop:
		return b.handleStop(ctx, user)
	case CommandEdit:
		return b.handleEdit(ctx, user, in.Rest)
	case CommandAddPhoto:
		return b.handleAddPhoto(ctx, user, in.Rest, in.MediaURLs)
	case CommandNumeral:
		if current == nil {
			return b.handlePhotoShortcut(ctx, user, in.Number)
		}
	case CommandNo:
		handled, err := b.handleNo(ctx, user)
		if err != nil || handled {
			return err
		}
	}

	if current != nil {
		return b.advance(ctx, user, current, in.Body)
	}

	switch in.Command {
	case CommandFlowResponse:
		return b.handleFlow(ctx, user, in.Flow)
	case CommandHelp:
		return b.handleHelp(ctx, user)
	}
	return nil
}

// send delivers body and reports the provider's verdict.
func (b *Bot) send(ctx context.Context, msg messaging.Message) error {
	_, err := b.Sender.Send(ctx, msg)
	return err
}

// reply sends body and logs a failure. Most replies are best effort.
func (b *Bot) reply(ctx context.Context, phone, body string) {
	if err := b.send(ctx, messaging.Message{To: phone, Body: body}); err != nil {
		b.Logger.Warn("Failed to send reply", observability.Phone(phone), zap.Error(err))
	}
}

func (b *Bot) env(user *models.User) session.Env {
	return session.Env{Phone: user.Phone, Suburbs: b.Catalog.Suburbs()}
}

// transition stores next (nil clears) guarded by the revision the user was loaded with.
func (b *Bot) transition(ctx context.Context, user *models.User, next session.Session) error {
	rev, err := b.Sessions.Transition(ctx, user.Phone, user.SessionRev, session.ToRecord(next, b.now()))
	if err != nil {
		return err
	}
	user.SessionRev = rev
	return nil
}

// startSession opens next and sends its first prompt. A lost race is answered
// with a retry hint rather than an error.
func (b *Bot) startSession(ctx context.Context, user *models.User, next session.Session, prompt string) error {
	if err := b.transition(ctx, user, next); err != nil {
		if errors.Is(err, services.ErrSessionConflict) {
			b.reply(ctx, user.Phone, msgConflict)
			return nil
		}
		return err
	}
	b.reply(ctx, user.Phone, prompt)
	return nil
}

func (b *Bot) publishEvent(ctx context.Context, subject string, data interface{}) {
	if b.Events == nil {
		return
	}
	if err := b.Events.Publish(ctx, subject, data); err != nil {
		b.Logger.Warn("Failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
