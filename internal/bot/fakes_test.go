package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/config"
	"github.com/Roland735/rentbot/internal/messaging"
	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/observability"
	"github.com/Roland735/rentbot/internal/payments"
	"github.com/Roland735/rentbot/internal/services"
	"github.com/Roland735/rentbot/internal/utils"
)

// fakeStore is an in-memory stand-in for the Mongo-backed services.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	listings map[utils.SixID]*models.Listing
	order    []utils.SixID
	photos   []*models.PhotoRequest
	tickets  []*models.ModerationTicket

	searches      map[string]int
	photoRequests map[string]int
	denyRate      bool

	// failUsers makes EnsureUser fail.
	failUsers error
	// beforeTransition runs inside Transition, to simulate a concurrent writer.
	beforeTransition func(u *models.User)
	// beforeComplete runs inside Complete, to simulate a concurrent claim.
	beforeComplete func(id utils.SixID)
	setFieldsCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         map[string]*models.User{},
		listings:      map[utils.SixID]*models.Listing{},
		searches:      map[string]int{},
		photoRequests: map[string]int{},
	}
}

func (f *fakeStore) user(phone string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[phone]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (f *fakeStore) addUser(phone string, credits int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[phone] = &models.User{Phone: phone, Credits: credits, Role: models.RoleUser}
}

func (f *fakeStore) addListing(l *models.Listing) *models.Listing {
	f.mu.Lock()
	defer f.mu.Unlock()
	l.GenIDIfEmpty()
	f.listings[l.ID] = l
	f.order = append(f.order, l.ID)
	return l
}

func (f *fakeStore) listing(id utils.SixID) *models.Listing {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok {
		return nil
	}
	cp := *l
	return &cp
}

func (f *fakeStore) pending(phone string) *models.PhotoRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.photos {
		if p.Phone == phone && p.Status == models.PhotoRequestPending {
			return p
		}
	}
	return nil
}

// --- users ---

func (f *fakeStore) EnsureUser(ctx context.Context, phone string) (*models.User, error) {
	if f.failUsers != nil {
		return nil, f.failUsers
	}
	f.mu.Lock()
	if _, ok := f.users[phone]; !ok {
		f.users[phone] = &models.User{Phone: phone, Credits: 3, Role: models.RoleUser}
	}
	f.mu.Unlock()
	return f.user(phone), nil
}

func (f *fakeStore) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	if u := f.user(phone); u != nil {
		return u, nil
	}
	return nil, mongo.ErrNoDocuments
}

func (f *fakeStore) SetOptedOut(ctx context.Context, phone string, optedOut bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[phone]
	u.OptedOut = optedOut
	if optedOut {
		u.Session = nil
		u.SessionRev++
	}
	return nil
}

func (f *fakeStore) SetLastSearchResults(ctx context.Context, phone string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[phone].LastSearchResults = ids
	return nil
}

func (f *fakeStore) ListUsers(ctx context.Context, limit int64) ([]models.User, error) {
	return nil, nil
}

// --- credits ---

func (f *fakeStore) Adjust(ctx context.Context, phone string, delta int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[phone]
	if !ok || u.Credits+delta < 0 {
		return false, nil
	}
	u.Credits += delta
	return true, nil
}

func (f *fakeStore) Debit(ctx context.Context, phone string, amount int) error {
	ok, err := f.Adjust(ctx, phone, -amount)
	if err != nil {
		return err
	}
	if !ok {
		return services.ErrInsufficientCredits
	}
	return nil
}

func (f *fakeStore) Grant(ctx context.Context, phone string, amount int) error {
	_, err := f.Adjust(ctx, phone, amount)
	return err
}

func (f *fakeStore) SetBalance(ctx context.Context, phone string, credits int) (int64, error) {
	return 0, nil
}

// --- sessions ---

func (f *fakeStore) Transition(ctx context.Context, phone string, expectedRev int64, next *models.SessionRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[phone]
	if f.beforeTransition != nil {
		f.beforeTransition(u)
	}
	if u.SessionRev != expectedRev {
		return 0, services.ErrSessionConflict
	}
	u.Session = next
	u.SessionRev++
	return u.SessionRev, nil
}

func (f *fakeStore) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// --- listings ---

func applyFields(l *models.Listing, fields map[string]interface{}) {
	for k, v := range fields {
		switch k {
		case models.FieldTitle:
			l.Title = v.(string)
		case models.FieldType:
			l.Type = v.(string)
		case models.FieldSuburb:
			l.Suburb = v.(string)
		case models.FieldAddress:
			l.Address = v.(string)
		case models.FieldRent:
			l.Rent = v.(float64)
		case models.FieldDeposit:
			l.Deposit = v.(float64)
		case models.FieldBedrooms:
			l.Bedrooms = v.(string)
		case models.FieldAmenities:
			l.Amenities = v.([]string)
		case models.FieldDescription:
			l.Description = v.(string)
		case models.FieldContactName:
			l.ContactName = v.(string)
		case models.FieldContactPhone:
			l.ContactPhone = v.(string)
		}
	}
}

func (f *fakeStore) CreateDraft(ctx context.Context, owner string, fields map[string]interface{}) (*models.Listing, error) {
	l := &models.Listing{OwnerPhone: owner}
	applyFields(l, fields)
	f.addListing(l)
	return f.listing(l.ID), nil
}

func (f *fakeStore) FindByID(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	if l := f.listing(id); l != nil {
		return l, nil
	}
	return nil, mongo.ErrNoDocuments
}

func (f *fakeStore) SetFields(ctx context.Context, id utils.SixID, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setFieldsCalls++
	l, ok := f.listings[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	applyFields(l, fields)
	return nil
}

func (f *fakeStore) Edit(ctx context.Context, id utils.SixID, owner, field, raw string) (*models.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	if l.OwnerPhone != owner {
		return nil, services.ErrNotOwner
	}
	stored, value, err := services.ParseEdit(field, raw)
	if err != nil {
		return nil, err
	}
	applyFields(l, map[string]interface{}{stored: value})
	cp := *l
	return &cp, nil
}

func (f *fakeStore) published() []models.Listing {
	var out []models.Listing
	for _, id := range f.order {
		if l := f.listings[id]; l.Published {
			out = append(out, *l)
		}
	}
	return out
}

func (f *fakeStore) Search(ctx context.Context, query string) ([]models.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := strings.ToLower(query)
	var out []models.Listing
	for _, l := range f.published() {
		if strings.Contains(strings.ToLower(l.Suburb+" "+l.Title+" "+l.Description), q) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) SearchFiltered(ctx context.Context, suburb *string, maxRent *float64) ([]models.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Listing
	for _, l := range f.published() {
		if suburb != nil && !strings.EqualFold(l.Suburb, *suburb) {
			continue
		}
		if maxRent != nil && l.Rent > *maxRent {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeStore) Publish(ctx context.Context, id utils.SixID) (bool, error) {
	return false, nil
}

func (f *fakeStore) AddImage(ctx context.Context, id utils.SixID, url string) error {
	return nil
}

func (f *fakeStore) ListByOwner(ctx context.Context, owner string) ([]models.Listing, error) {
	return nil, nil
}

// --- photo requests ---

func (f *fakeStore) Create(ctx context.Context, phone, listingID string) (*models.PhotoRequest, error) {
	if p := f.pending(phone); p != nil {
		f.mu.Lock()
		p.ListingID = listingID
		f.mu.Unlock()
		return p, nil
	}
	p := &models.PhotoRequest{ID: utils.NewSixID(), Phone: phone, ListingID: listingID, Status: models.PhotoRequestPending}
	f.mu.Lock()
	f.photos = append(f.photos, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeStore) FindPending(ctx context.Context, phone string) (*models.PhotoRequest, error) {
	if p := f.pending(phone); p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, mongo.ErrNoDocuments
}

func (f *fakeStore) setPhotoStatus(id utils.SixID, from, to models.PhotoRequestStatus) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.photos {
		if p.ID == id && p.Status == from {
			p.Status = to
			return true
		}
	}
	return false
}

func (f *fakeStore) Complete(ctx context.Context, id utils.SixID) (bool, error) {
	if f.beforeComplete != nil {
		f.beforeComplete(id)
	}
	return f.setPhotoStatus(id, models.PhotoRequestPending, models.PhotoRequestCompleted), nil
}

func (f *fakeStore) Reopen(ctx context.Context, id utils.SixID) (bool, error) {
	return f.setPhotoStatus(id, models.PhotoRequestCompleted, models.PhotoRequestPending), nil
}

func (f *fakeStore) Cancel(ctx context.Context, id utils.SixID) (bool, error) {
	return f.setPhotoStatus(id, models.PhotoRequestPending, models.PhotoRequestCanceled), nil
}

// --- moderation ---

func (f *fakeStore) Open(ctx context.Context, phone, listingID, reason string) (*models.ModerationTicket, error) {
	t := &models.ModerationTicket{ID: utils.NewSixID(), Phone: phone, ListingID: listingID, Reason: reason, Status: models.TicketOpen, CreatedAt: time.Now()}
	f.mu.Lock()
	f.tickets = append(f.tickets, t)
	f.mu.Unlock()
	return t, nil
}

func (f *fakeStore) List(ctx context.Context, status models.TicketStatus, limit int64) ([]models.ModerationTicket, error) {
	return nil, nil
}

func (f *fakeStore) Close(ctx context.Context, id utils.SixID) (bool, error) {
	return false, nil
}

// --- rate limits ---

func (f *fakeStore) decision() services.Decision {
	if f.denyRate {
		return services.Decision{Reason: services.ReasonThrottled}
	}
	return services.Decision{Allowed: true}
}

func (f *fakeStore) CanSearch(ctx context.Context, user *models.User) (services.Decision, error) {
	return f.decision(), nil
}

func (f *fakeStore) RecordSearch(ctx context.Context, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches[phone]++
	return nil
}

func (f *fakeStore) CanRequestPhotos(ctx context.Context, user *models.User) (services.Decision, error) {
	return f.decision(), nil
}

func (f *fakeStore) RecordPhotoRequest(ctx context.Context, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photoRequests[phone]++
	return nil
}

// --- catalog ---

type fakeCatalog struct {
	suburbs []string
	bundles []models.CreditBundle
}

func (c *fakeCatalog) Suburbs() []string              { return c.suburbs }
func (c *fakeCatalog) Bundles() []models.CreditBundle { return c.bundles }
func (c *fakeCatalog) Bundle(credits int) (models.CreditBundle, bool) {
	for _, b := range c.bundles {
		if b.Credits == credits {
			return b, true
		}
	}
	return models.CreditBundle{}, false
}
func (c *fakeCatalog) Load(ctx context.Context) error                                { return nil }
func (c *fakeCatalog) SubscribeToChanges(ctx context.Context) error                  { return nil }
func (c *fakeCatalog) SetSuburbs(ctx context.Context, suburbs []string) error        { return nil }
func (c *fakeCatalog) SetBundles(ctx context.Context, b []models.CreditBundle) error { return nil }

// --- sender ---

type fakeSender struct {
	mu   sync.Mutex
	sent []messaging.Message
	err  error
}

func (s *fakeSender) Send(ctx context.Context, msg messaging.Message) (*messaging.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if s.err != nil {
		return nil, s.err
	}
	return &messaging.Receipt{Provider: "fake", ID: "SM1"}, nil
}

func (s *fakeSender) last() messaging.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return messaging.Message{}
	}
	return s.sent[len(s.sent)-1]
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// --- testify mocks ---

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

// --- harness ---

const testPhone = "+263771234567"

var errStoreDown = errors.New("store down")

type harness struct {
	bot      *Bot
	store    *fakeStore
	sender   *fakeSender
	payments *MockPaymentService
	jobs     *MockJobQueue
	events   *MockPublisher
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		store:    newFakeStore(),
		sender:   &fakeSender{},
		payments: new(MockPaymentService),
		jobs:     new(MockJobQueue),
		events:   new(MockPublisher),
	}
	catalog := &fakeCatalog{
		suburbs: config.DefaultSuburbs,
		bundles: []models.CreditBundle{{Credits: 5, Price: 1}, {Credits: 12, Price: 2}},
	}
	if opts.PublishPrice == 0 {
		opts.PublishPrice = 3
	}
	h.bot = New(Deps{
		Users:      h.store,
		Credits:    h.store,
		Sessions:   h.store,
		Listings:   h.store,
		Photos:     h.store,
		Moderation: h.store,
		RateLimits: h.store,
		Catalog:    catalog,
		Payments:   h.payments,
		Jobs:       h.jobs,
		Sender:     h.sender,
		Events:     h.events,
		Metrics:    observability.NewMetrics(nil),
		Logger:     zap.NewNop(),
	}, opts)
	return h
}

// say sends text as if it arrived from phone.
func (h *harness) say(t *testing.T, phone, text string) error {
	t.Helper()
	form := map[string][]string{"From": {"whatsapp:" + phone}, "Body": {text}}
	return h.bot.Handle(context.Background(), Parse(form))
}
