package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Roland735/rentbot/internal/bot"
	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/payments"
	"github.com/Roland735/rentbot/internal/services"
	"github.com/Roland735/rentbot/internal/utils"
)

// --- Mocks ---

type MockBot struct {
	mock.Mock
}

func (m *MockBot) Handle(ctx context.Context, in bot.Inbound) error {
	return m.Called(ctx, in).Error(0)
}

type MockDeduper struct {
	mock.Mock
}

func (m *MockDeduper) FirstSeen(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) ResolveProduct(ctx context.Context, phone, arg string) (services.Product, error) {
	args := m.Called(ctx, phone, arg)
	return args.Get(0).(services.Product), args.Error(1)
}

func (m *MockPaymentService) StartPurchase(ctx context.Context, phone string, product services.Product) (*services.Purchase, error) {
	args := m.Called(ctx, phone, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Purchase), args.Error(1)
}

func (m *MockPaymentService) HandleResult(ctx context.Context, result *payments.Result) (services.SettleOutcome, error) {
	args := m.Called(ctx, result)
	return args.Get(0).(services.SettleOutcome), args.Error(1)
}

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) EnsureUser(ctx context.Context, phone string) (*models.User, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) SetOptedOut(ctx context.Context, phone string, optedOut bool) error {
	return m.Called(ctx, phone, optedOut).Error(0)
}

func (m *MockUserService) SetLastSearchResults(ctx context.Context, phone string, listingIDs []string) error {
	return m.Called(ctx, phone, listingIDs).Error(0)
}

func (m *MockUserService) ListUsers(ctx context.Context, limit int64) ([]models.User, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

type MockCreditService struct {
	mock.Mock
}

func (m *MockCreditService) Adjust(ctx context.Context, phone string, delta int) (bool, error) {
	args := m.Called(ctx, phone, delta)
	return args.Bool(0), args.Error(1)
}

func (m *MockCreditService) Debit(ctx context.Context, phone string, amount int) error {
	return m.Called(ctx, phone, amount).Error(0)
}

func (m *MockCreditService) Grant(ctx context.Context, phone string, amount int) error {
	return m.Called(ctx, phone, amount).Error(0)
}

func (m *MockCreditService) SetBalance(ctx context.Context, phone string, credits int) (int64, error) {
	args := m.Called(ctx, phone, credits)
	return args.Get(0).(int64), args.Error(1)
}

type MockModerationService struct {
	mock.Mock
}

func (m *MockModerationService) Open(ctx context.Context, phone, listingID, reason string) (*models.ModerationTicket, error) {
	args := m.Called(ctx, phone, listingID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ModerationTicket), args.Error(1)
}

func (m *MockModerationService) List(ctx context.Context, status models.TicketStatus, limit int64) ([]models.ModerationTicket, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ModerationTicket), args.Error(1)
}

func (m *MockModerationService) Close(ctx context.Context, id utils.SixID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) CreateDraft(ctx context.Context, owner string, fields map[string]interface{}) (*models.Listing, error) {
	args := m.Called(ctx, owner, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) FindByID(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) SetFields(ctx context.Context, id utils.SixID, fields map[string]interface{}) error {
	return m.Called(ctx, id, fields).Error(0)
}

func (m *MockListingService) Edit(ctx context.Context, id utils.SixID, owner, field, raw string) (*models.Listing, error) {
	args := m.Called(ctx, id, owner, field, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) Search(ctx context.Context, query string) ([]models.Listing, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

func (m *MockListingService) SearchFiltered(ctx context.Context, suburb *string, maxRent *float64) ([]models.Listing, error) {
	args := m.Called(ctx, suburb, maxRent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

func (m *MockListingService) Publish(ctx context.Context, id utils.SixID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockListingService) AddImage(ctx context.Context, id utils.SixID, url string) error {
	return m.Called(ctx, id, url).Error(0)
}

func (m *MockListingService) ListByOwner(ctx context.Context, owner string) ([]models.Listing, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) Suburbs() []string {
	return m.Called().Get(0).([]string)
}

func (m *MockCatalogService) Bundles() []models.CreditBundle {
	return m.Called().Get(0).([]models.CreditBundle)
}

func (m *MockCatalogService) Bundle(credits int) (models.CreditBundle, bool) {
	args := m.Called(credits)
	return args.Get(0).(models.CreditBundle), args.Bool(1)
}

func (m *MockCatalogService) Load(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCatalogService) SubscribeToChanges(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCatalogService) SetSuburbs(ctx context.Context, suburbs []string) error {
	return m.Called(ctx, suburbs).Error(0)
}

func (m *MockCatalogService) SetBundles(ctx context.Context, bundles []models.CreditBundle) error {
	return m.Called(ctx, bundles).Error(0)
}

type MockS3Storage struct {
	mock.Mock
}

func (m *MockS3Storage) PutImage(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockS3Storage) GeneratePresignedPutURL(ctx context.Context, owner, listingID, filename, contentType string) (string, string, error) {
	args := m.Called(ctx, owner, listingID, filename, contentType)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockS3Storage) PublicURL(key string) string {
	return m.Called(key).String(0)
}

// testTime is a fixed timestamp for fixtures.
var testTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
