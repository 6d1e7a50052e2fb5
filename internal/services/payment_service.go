package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/events"
	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/observability"
	"github.com/Roland735/rentbot/internal/payments"
	"github.com/Roland735/rentbot/internal/utils"
)

// ErrUnknownProduct means the BUY argument names no bundle or listing.
var ErrUnknownProduct = errors.New("unknown product")

// Product is something a user can pay for.
type Product struct {
	Tag       string // credits_N or listing_publish
	Type      models.TransactionType
	Amount    float64
	Credits   int
	ListingID string
}

func (p Product) Description() string {
	if p.Type == models.TransactionListingPublish {
		return "RentBot listing " + p.ListingID
	}
	return fmt.Sprintf("RentBot %d credits", p.Credits)
}

// Purchase is a started payment.
type Purchase struct {
	Transaction  *models.Transaction
	Instructions string
}

// SettleOutcome says what a result callback did.
type SettleOutcome int

const (
	SettleNotFound SettleOutcome = iota
	SettleAlreadyProcessed
	SettleFulfilled
	SettleRaced // another delivery settled it first
	SettleFailed
	SettleIgnored // intermediate status; still pending
)

func (o SettleOutcome) String() string {
	switch o {
	case SettleNotFound:
		return "not_found"
	case SettleAlreadyProcessed:
		return "already_processed"
	case SettleFulfilled:
		return "fulfilled"
	case SettleRaced:
		return "raced"
	case SettleFailed:
		return "failed"
	default:
		return "ignored"
	}
}

// IPaymentService sells credit bundles and listing publication through Paynow.
type IPaymentService interface {
	// ResolveProduct maps a BUY argument ("10", "credits_10", "LIST <id>") to a product.
	ResolveProduct(ctx context.Context, phone, arg string) (Product, error)
	StartPurchase(ctx context.Context, phone string, product Product) (*Purchase, error)
	HandleResult(ctx context.Context, result *payments.Result) (SettleOutcome, error)
}

// PaymentDeps wires the payment service.
type PaymentDeps struct {
	Transactions ITransactionService
	Credits      ICreditService
	Listings     IListingService
	Catalog      ICatalogService
	Gateway      payments.Gateway
	Jobs         IJobQueue
	Events       events.Publisher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	PublishPrice float64
}

type paymentService struct {
	PaymentDeps
}

func NewPaymentService(deps PaymentDeps) IPaymentService {
	return &paymentService{PaymentDeps: deps}
}

func (s *paymentService) ResolveProduct(ctx context.Context, phone, arg string) (Product, error) {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return Product{}, ErrUnknownProduct
	}
	if strings.EqualFold(fields[0], "LIST") {
		if len(fields) < 2 {
			return Product{}, ErrUnknownProduct
		}
		id, err := utils.ParseSixID(fields[1])
		if err != nil {
			return Product{}, mongo.ErrNoDocuments
		}
		listing, err := s.Listings.FindByID(ctx, id)
		if err != nil {
			return Product{}, err
		}
		if listing.OwnerPhone != phone {
			return Product{}, ErrNotOwner
		}
		return Product{
			Tag:       models.ProductListingPublish,
			Type:      models.TransactionListingPublish,
			Amount:    s.PublishPrice,
			ListingID: listing.ID.String(),
		}, nil
	}

	n, ok := models.ParseCreditProduct(strings.ToLower(fields[0]))
	if !ok {
		var err error
		if n, err = strconv.Atoi(fields[0]); err != nil {
			return Product{}, ErrUnknownProduct
		}
	}
	bundle, ok := s.Catalog.Bundle(n)
	if !ok {
		return Product{}, ErrUnknownProduct
	}
	return Product{
		Tag:     models.CreditProduct(bundle.Credits),
		Type:    models.TransactionCreditPurchase,
		Amount:  bundle.Price,
		Credits: bundle.Credits,
	}, nil
}

// StartPurchase records a pending transaction and pushes the payment to the
// user's phone. On a gateway failure the transaction is marked failed and the
// gateway error is returned.
func (s *paymentService) StartPurchase(ctx context.Context, phone string, product Product) (*Purchase, error) {
	tx := &models.Transaction{
		Phone:     phone,
		Product:   product.Tag,
		Type:      product.Type,
		ListingID: product.ListingID,
		Amount:    product.Amount,
	}
	if err := s.Transactions.Create(ctx, tx); err != nil {
		return nil, err
	}

	res, err := s.Gateway.Initiate(ctx, payments.InitiateRequest{
		Reference:   tx.Reference,
		Amount:      product.Amount,
		Phone:       phone,
		Description: product.Description(),
	})
	if err != nil {
		s.Metrics.Payments.WithLabelValues("initiate", "error").Inc()
		if _, merr := s.Transactions.MarkFailed(ctx, tx.Reference, "initiate_error"); merr != nil {
			s.Logger.Error("Failed to mark transaction failed", zap.String("reference", tx.Reference), zap.Error(merr))
		}
		tx.Status = models.TransactionFailed
		return nil, err
	}
	s.Metrics.Payments.WithLabelValues("initiate", "ok").Inc()

	if err := s.Transactions.SetProviderRef(ctx, tx.Reference, res.PollURL, res.PaynowReference); err != nil {
		s.Logger.Error("Failed to store provider reference", zap.String("reference", tx.Reference), zap.Error(err))
	}
	tx.ProviderRef = res.PollURL

	if res.Simulation != nil && s.Jobs != nil {
		if err := s.Jobs.EnqueuePaymentSimulation(ctx, tx.Reference, res.Simulation.Status, res.Simulation.After); err != nil {
			s.Logger.Error("Failed to schedule simulated payment", zap.String("reference", tx.Reference), zap.Error(err))
		}
	}

	s.Logger.Info("Payment initiated",
		zap.String("reference", tx.Reference),
		zap.String("product", tx.Product),
		zap.Float64("amount", tx.Amount),
		observability.Phone(phone))
	return &Purchase{Transaction: tx, Instructions: res.Instructions}, nil
}

// FormatReceipt is the confirmation sent after a credit purchase settles.
func FormatReceipt(amount float64, reference string) string {
	return fmt.Sprintf("✅ Payment received — $%s — Ref: %s", strconv.FormatFloat(amount, 'f', -1, 64), reference)
}

// FormatListingPublished is the confirmation sent after a publish payment settles.
func FormatListingPublished(listingID, reference string) string {
	return fmt.Sprintf("✅ *Listing Published*\n\nYour listing %s is now live!\nRef: %s", listingID, reference)
}

// HandleResult settles a transaction from a result callback. Only the delivery
// that moves the transaction out of pending fulfills it.
func (s *paymentService) HandleResult(ctx context.Context, result *payments.Result) (SettleOutcome, error) {
	tx, err := s.Transactions.FindByReference(ctx, result.Reference)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			s.Logger.Warn("Payment result for unknown transaction", zap.String("reference", result.Reference))
			return SettleNotFound, nil
		}
		return SettleNotFound, err
	}
	if tx.Status == models.TransactionSuccess {
		return SettleAlreadyProcessed, nil
	}

	switch {
	case payments.IsPaid(result.Status):
		won, err := s.Transactions.MarkSuccess(ctx, tx.Reference, result.PaynowReference, result.PollURL)
		if err != nil {
			return SettleNotFound, err
		}
		if !won {
			return SettleRaced, nil
		}
		s.Metrics.Payments.WithLabelValues("settle", "success").Inc()
		return SettleFulfilled, s.fulfill(ctx, tx)
	case payments.IsFailed(result.Status):
		moved, err := s.Transactions.MarkFailed(ctx, tx.Reference, result.Status)
		if err != nil {
			return SettleNotFound, err
		}
		if !moved {
			return SettleRaced, nil
		}
		s.Metrics.Payments.WithLabelValues("settle", "failed").Inc()
		s.Logger.Info("Payment failed", zap.String("reference", tx.Reference), zap.String("status", result.Status))
		return SettleFailed, nil
	default:
		return SettleIgnored, nil
	}
}

func (s *paymentService) fulfill(ctx context.Context, tx *models.Transaction) error {
	var receipt string
	switch {
	case tx.Product == models.ProductListingPublish && tx.ListingID != "":
		id, err := utils.ParseSixID(tx.ListingID)
		if err != nil {
			return fmt.Errorf("transaction %s has bad listing id: %w", tx.Reference, err)
		}
		published, err := s.Listings.Publish(ctx, id)
		if err != nil {
			return err
		}
		if published {
			s.publish(ctx, events.SubjectListingPublished, events.ListingPublished{
				ListingID:  tx.ListingID,
				OwnerPhone: tx.Phone,
				Reference:  tx.Reference,
				At:         time.Now().UTC(),
			})
		}
		receipt = FormatListingPublished(tx.ListingID, tx.Reference)
	default:
		n, ok := models.ParseCreditProduct(tx.Product)
		if !ok {
			return fmt.Errorf("transaction %s has unknown product %q", tx.Reference, tx.Product)
		}
		if err := s.Credits.Grant(ctx, tx.Phone, n); err != nil {
			return err
		}
		receipt = FormatReceipt(tx.Amount, tx.Reference)
	}

	if s.Jobs != nil {
		if err := s.Jobs.EnqueueNotification(ctx, tx.Phone, receipt); err != nil {
			s.Logger.Error("Failed to enqueue receipt", zap.String("reference", tx.Reference), zap.Error(err))
		}
	}
	s.publish(ctx, events.SubjectPaymentCompleted, events.PaymentCompleted{
		Reference: tx.Reference,
		Product:   tx.Product,
		Amount:    tx.Amount,
		Phone:     tx.Phone,
		At:        time.Now().UTC(),
	})
	s.Logger.Info("Payment fulfilled", zap.String("reference", tx.Reference), zap.String("product", tx.Product))
	return nil
}

func (s *paymentService) publish(ctx context.Context, subject string, data interface{}) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, subject, data); err != nil {
		s.Logger.Warn("Failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
