package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/payments"
	"github.com/Roland735/rentbot/internal/utils"
)

type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) Create(ctx context.Context, tx *models.Transaction) error {
	args := m.Called(ctx, tx)
	if args.Error(0) == nil {
		tx.Reference = "CRD-TEST000001"
		tx.Status = models.TransactionPending
	}
	return args.Error(0)
}

func (m *MockTransactionService) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionService) SetProviderRef(ctx context.Context, reference, pollURL, paynowReference string) error {
	return m.Called(ctx, reference, pollURL, paynowReference).Error(0)
}

func (m *MockTransactionService) MarkSuccess(ctx context.Context, reference, paynowReference, pollURL string) (bool, error) {
	args := m.Called(ctx, reference, paynowReference, pollURL)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionService) MarkFailed(ctx context.Context, reference, providerStatus string) (bool, error) {
	args := m.Called(ctx, reference, providerStatus)
	return args.Bool(0), args.Error(1)
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
	return args.Get(0).([]models.Listing), args.Error(1)
}

func (m *MockListingService) SearchFiltered(ctx context.Context, suburb *string, maxRent *float64) ([]models.Listing, error) {
	args := m.Called(ctx, suburb, maxRent)
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
	return args.Get(0).([]models.Listing), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Initiate(ctx context.Context, req payments.InitiateRequest) (*payments.InitiateResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.InitiateResult), args.Error(1)
}

type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) EnqueueNotification(ctx context.Context, phone, body string) error {
	return m.Called(ctx, phone, body).Error(0)
}

func (m *MockJobQueue) EnqueuePaymentSimulation(ctx context.Context, reference, status string, delay time.Duration) error {
	return m.Called(ctx, reference, status, delay).Error(0)
}

func (m *MockJobQueue) EnqueueImageProcess(ctx context.Context, listingID utils.SixID, owner, mediaURL string) error {
	return m.Called(ctx, listingID, owner, mediaURL).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	return m.Called(ctx, subject, data).Error(0)
}

func (m *MockPublisher) Close() {}
