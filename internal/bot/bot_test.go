package bot

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Roland735/rentbot/internal/config"
	"github.com/Roland735/rentbot/internal/events"
	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/payments"
	"github.com/Roland735/rentbot/internal/services"
	"github.com/Roland735/rentbot/internal/session"
	"github.com/Roland735/rentbot/internal/utils"
)

var testEnv = session.Env{Phone: testPhone, Suburbs: config.DefaultSuburbs}

func publishedListing(h *harness, title, suburb string, rent float64, images ...string) *models.Listing {
	return h.store.addListing(&models.Listing{
		OwnerPhone: "+263779999999",
		Title:      title,
		Suburb:     suburb,
		Rent:       rent,
		Images:     images,
		Published:  true,
	})
}

func TestListingWizard_CompletesDraft(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)

	require.NoError(t, h.say(t, testPhone, "LIST 2 bed cottage"))
	require.Len(t, h.store.order, 1)
	draftID := h.store.order[0]
	assert.Equal(t, session.Prompt(session.StepType, testEnv), h.sender.last().Body)
	assert.Equal(t, string(session.StepType), h.store.user(testPhone).Session.Step)

	for _, answer := range []string{
		"cottage", "2", "12 Main Rd", "$350", "100", "2", "borehole, solar", "Tariro", "SAME",
	} {
		require.NoError(t, h.say(t, testPhone, answer))
	}

	l := h.store.listing(draftID)
	assert.Equal(t, "2 bed cottage", l.Title)
	assert.Equal(t, "cottage", l.Type)
	assert.Equal(t, "Borrowdale", l.Suburb)
	assert.Equal(t, "12 Main Rd", l.Address)
	assert.Equal(t, 350.0, l.Rent)
	assert.Equal(t, 100.0, l.Deposit)
	assert.Equal(t, "2", l.Bedrooms)
	assert.Equal(t, []string{"borehole", "solar"}, l.Amenities)
	assert.Equal(t, "borehole, solar", l.Description)
	assert.Equal(t, "Tariro", l.ContactName)
	assert.Equal(t, testPhone, l.ContactPhone)
	assert.False(t, l.Published)

	assert.Nil(t, h.store.user(testPhone).Session)
	assert.Equal(t, FormatListingDraft(draftID.String(), 3), h.sender.last().Body)
}

func TestListingWizard_NoTitleAsksTitle(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)

	require.NoError(t, h.say(t, testPhone, "LIST"))
	assert.Equal(t, session.Prompt(session.StepTitle, testEnv), h.sender.last().Body)
	assert.Equal(t, string(session.StepTitle), h.store.user(testPhone).Session.Step)
}

func TestListingWizard_CancelLeavesDraft(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)

	require.NoError(t, h.say(t, testPhone, "LIST flat"))
	require.NoError(t, h.say(t, testPhone, "house"))
	require.NoError(t, h.say(t, testPhone, "cancel"))

	assert.Nil(t, h.store.user(testPhone).Session)
	assert.Equal(t, session.CancelReply, h.sender.last().Body)
	l := h.store.listing(h.store.order[0])
	assert.Equal(t, "house", l.Type)
	assert.Empty(t, l.Suburb)
}

func TestListingWizard_CancelAtEveryStep(t *testing.T) {
	answers := []string{"Garden flat", "flat", "2", "12 Main Rd", "$350", "100", "2", "borehole", "Tariro"}
	for n := 0; n <= len(answers); n++ {
		h := newHarness(t, Options{})
		h.store.addUser(testPhone, 5)
		require.NoError(t, h.say(t, testPhone, "LIST"))
		for _, a := range answers[:n] {
			require.NoError(t, h.say(t, testPhone, a))
		}
		step := h.store.user(testPhone).Session.Step
		before := h.store.listing(h.store.order[0])
		calls := h.store.setFieldsCalls

		require.NoError(t, h.say(t, testPhone, "Cancel"))
		assert.Nil(t, h.store.user(testPhone).Session, step)
		assert.Equal(t, session.CancelReply, h.sender.last().Body, step)
		assert.Equal(t, calls, h.store.setFieldsCalls, step)
		assert.Equal(t, before, h.store.listing(h.store.order[0]), step)
	}
}

func TestListingWizard_BackFromRent(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)

	for _, msg := range []string{"LIST flat", "house", "Avondale", "1 Main Rd"} {
		require.NoError(t, h.say(t, testPhone, msg))
	}
	require.Equal(t, string(session.StepRent), h.store.user(testPhone).Session.Step)

	require.NoError(t, h.say(t, testPhone, "BACK"))
	assert.Equal(t, string(session.StepAddress), h.store.user(testPhone).Session.Step)
	assert.Equal(t, session.Prompt(session.StepAddress, testEnv), h.sender.last().Body)
	assert.Equal(t, "1 Main Rd", h.store.listing(h.store.order[0]).Address)
}

func TestListingWizard_InvalidRentStays(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)

	for _, msg := range []string{"LIST flat", "house", "Avondale", "1 Main Rd", "lots"} {
		require.NoError(t, h.say(t, testPhone, msg))
	}
	assert.Equal(t, string(session.StepRent), h.store.user(testPhone).Session.Step)
	assert.Contains(t, h.sender.last().Body, "Please enter a valid number for rent.")
	assert.Zero(t, h.store.listing(h.store.order[0]).Rent)
}

func TestListingWizard_ConcurrentReplyLoses(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	require.NoError(t, h.say(t, testPhone, "LIST flat"))

	h.store.beforeTransition = func(u *models.User) { u.SessionRev++ }
	require.NoError(t, h.say(t, testPhone, "house"))

	assert.Equal(t, msgConflict, h.sender.last().Body)
	assert.Zero(t, h.store.setFieldsCalls)
	assert.Empty(t, h.store.listing(h.store.order[0]).Type)
}

func TestSearchWizard_AllAny(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	publishedListing(h, "Cottage", "Avondale", 300)
	publishedListing(h, "House", "Borrowdale", 500)

	require.NoError(t, h.say(t, testPhone, "SEARCH"))
	assert.Equal(t, string(session.StepSearchSuburb), h.store.user(testPhone).Session.Step)
	require.NoError(t, h.say(t, testPhone, "ALL"))
	require.NoError(t, h.say(t, testPhone, "ANY"))

	u := h.store.user(testPhone)
	assert.Nil(t, u.Session)
	assert.Equal(t, 4, u.Credits)
	assert.Len(t, u.LastSearchResults, 2)
	assert.Equal(t, 1, h.store.searches[testPhone])
	assert.Contains(t, h.sender.last().Body, "2 matches (1 credit used — balance 4):")
}

func TestSearchWizard_Filtered(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	cheap := publishedListing(h, "Cottage", "Avondale", 300)
	publishedListing(h, "Villa", "Avondale", 900)
	publishedListing(h, "House", "Borrowdale", 200)

	for _, msg := range []string{"SEARCH", "1", "400"} {
		require.NoError(t, h.say(t, testPhone, msg))
	}
	assert.Equal(t, []string{cheap.ID.String()}, h.store.user(testPhone).LastSearchResults)
}

func TestSearchWizard_RejectsUnknownSuburb(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)

	require.NoError(t, h.say(t, testPhone, "SEARCH"))
	require.NoError(t, h.say(t, testPhone, "Atlantis"))
	assert.Equal(t, string(session.StepSearchSuburb), h.store.user(testPhone).Session.Step)
	assert.Contains(t, h.sender.last().Body, "Please choose a suburb number")
}

func TestSearch_ChargesOnDelivery(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	publishedListing(h, "Kitchen garden flat", "Avondale", 300)

	require.NoError(t, h.say(t, testPhone, "SEARCH kitchen"))

	u := h.store.user(testPhone)
	assert.Equal(t, 4, u.Credits)
	assert.Equal(t, 1, h.store.searches[testPhone])
	assert.Len(t, u.LastSearchResults, 1)
}

func TestSearch_FailedSendIsFree(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	publishedListing(h, "Kitchen garden flat", "Avondale", 300)
	h.sender.err = errors.New("provider down")

	require.NoError(t, h.say(t, testPhone, "SEARCH kitchen"))

	assert.Equal(t, 5, h.store.user(testPhone).Credits)
	assert.Zero(t, h.store.searches[testPhone])
}

func TestSearch_InsufficientCredits(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 0)

	require.NoError(t, h.say(t, testPhone, "SEARCH kitchen"))
	assert.Equal(t, FormatInsufficientCredits(1), h.sender.last().Body)
	assert.Zero(t, h.store.searches[testPhone])
}

func TestSearch_RateLimitedIsSilent(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	h.store.denyRate = true

	require.NoError(t, h.say(t, testPhone, "SEARCH kitchen"))
	assert.Zero(t, h.sender.count())
	assert.Equal(t, 5, h.store.user(testPhone).Credits)
}

func TestOptOut(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)

	require.NoError(t, h.say(t, testPhone, "LIST flat"))
	require.NoError(t, h.say(t, testPhone, "STOP"))
	u := h.store.user(testPhone)
	assert.True(t, u.OptedOut)
	assert.Nil(t, u.Session)
	assert.Equal(t, FormatStop(), h.sender.last().Body)

	sent := h.sender.count()
	require.NoError(t, h.say(t, testPhone, "SEARCH kitchen"))
	assert.Equal(t, sent, h.sender.count())

	require.NoError(t, h.say(t, testPhone, "HELP"))
	assert.False(t, h.store.user(testPhone).OptedOut)
	assert.Equal(t, FormatHelp(5), h.sender.last().Body)
}

func TestPhotos_ConfirmCapsMedia(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	l := publishedListing(h, "Cottage", "Avondale", 300, "https://i/1", "https://i/2", "https://i/3", "https://i/4")

	require.NoError(t, h.say(t, testPhone, "PHOTOS "+l.ID.String()))
	assert.Equal(t, FormatPhotosRequest(l.ID.String(), 2), h.sender.last().Body)
	assert.Equal(t, 1, h.store.photoRequests[testPhone])
	require.NotNil(t, h.store.pending(testPhone))

	require.NoError(t, h.say(t, testPhone, "yes"))
	last := h.sender.last()
	assert.Equal(t, msgPhotosAttached, last.Body)
	assert.Len(t, last.MediaURLs, 3)
	assert.Equal(t, 3, h.store.user(testPhone).Credits)
	assert.Nil(t, h.store.pending(testPhone))
}

func TestPhotos_NoImages(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	l := publishedListing(h, "Cottage", "Avondale", 300)

	require.NoError(t, h.say(t, testPhone, "P "+l.ID.String()))
	require.NoError(t, h.say(t, testPhone, "YES"))
	assert.Equal(t, msgNoImages, h.sender.last().Body)
	assert.Empty(t, h.sender.last().MediaURLs)
}

func TestPhotos_InsufficientCreditsKeepsRequest(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 1)
	l := publishedListing(h, "Cottage", "Avondale", 300, "https://i/1")

	require.NoError(t, h.say(t, testPhone, "PHOTOS "+l.ID.String()))
	require.NoError(t, h.say(t, testPhone, "YES"))

	assert.Equal(t, FormatInsufficientCredits(2), h.sender.last().Body)
	assert.Equal(t, 1, h.store.user(testPhone).Credits)
	assert.NotNil(t, h.store.pending(testPhone))
}

func TestPhotos_ConcurrentYesChargesOnce(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	l := publishedListing(h, "Cottage", "Avondale", 300, "https://i/1")

	require.NoError(t, h.say(t, testPhone, "PHOTOS "+l.ID.String()))
	sent := h.sender.count()

	// Another YES claims the request between lookup and claim.
	h.store.beforeComplete = func(id utils.SixID) {
		h.store.setPhotoStatus(id, models.PhotoRequestPending, models.PhotoRequestCompleted)
	}
	require.NoError(t, h.say(t, testPhone, "YES"))

	assert.Equal(t, 5, h.store.user(testPhone).Credits)
	assert.Equal(t, sent, h.sender.count())
}

func TestPhotos_UnknownListing(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)

	require.NoError(t, h.say(t, testPhone, "PHOTOS nope"))
	assert.Equal(t, listingNotFound("nope"), h.sender.last().Body)
	assert.Nil(t, h.store.pending(testPhone))
}

func TestYesWithoutRequestIsSilent(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)

	require.NoError(t, h.say(t, testPhone, "YES"))
	assert.Zero(t, h.sender.count())
}

func TestNo(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	l := publishedListing(h, "Cottage", "Avondale", 300)

	require.NoError(t, h.say(t, testPhone, "NO"))
	assert.Zero(t, h.sender.count())

	require.NoError(t, h.say(t, testPhone, "PHOTOS "+l.ID.String()))
	require.NoError(t, h.say(t, testPhone, "no"))
	assert.Equal(t, FormatPhotosCanceled(l.ID.String()), h.sender.last().Body)
	assert.Nil(t, h.store.pending(testPhone))
	assert.Equal(t, 5, h.store.user(testPhone).Credits)
}

func TestNumeralShortcut(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	l := publishedListing(h, "Kitchen garden flat", "Avondale", 300)

	require.NoError(t, h.say(t, testPhone, "1"))
	assert.Contains(t, h.sender.last().Body, "Run SEARCH first")

	require.NoError(t, h.say(t, testPhone, "SEARCH kitchen"))
	require.NoError(t, h.say(t, testPhone, "4"))
	assert.Contains(t, h.sender.last().Body, "from 1 to 1")

	require.NoError(t, h.say(t, testPhone, "1"))
	pending := h.store.pending(testPhone)
	require.NotNil(t, pending)
	assert.Equal(t, l.ID.String(), pending.ListingID)
}

func TestNumeralIsStepAnswerInSession(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	publishedListing(h, "Kitchen garden flat", "Avondale", 300)

	require.NoError(t, h.say(t, testPhone, "SEARCH kitchen"))
	require.NoError(t, h.say(t, testPhone, "LIST flat"))
	require.NoError(t, h.say(t, testPhone, "house"))
	require.NoError(t, h.say(t, testPhone, "1"))

	assert.Nil(t, h.store.pending(testPhone))
	assert.Equal(t, "Avondale", h.store.listing(h.store.order[1]).Suburb)
}

func TestExpiredSessionIsIgnored(t *testing.T) {
	h := newHarness(t, Options{SessionTTL: 24 * time.Hour})
	h.store.addUser(testPhone, 5)
	h.store.users[testPhone].Session = &models.SessionRecord{
		Kind:      models.SessionKindSearch,
		Step:      string(session.StepSearchSuburb),
		UpdatedAt: time.Now().Add(-48 * time.Hour),
	}

	require.NoError(t, h.say(t, testPhone, "2"))
	assert.Contains(t, h.sender.last().Body, "Run SEARCH first")
}

func TestUnknownTextIsSilent(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)

	require.NoError(t, h.say(t, testPhone, "what is this"))
	assert.Zero(t, h.sender.count())
}

func TestReport(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	h.events.On("Publish", mock.Anything, events.SubjectModerationTicketOpened, mock.AnythingOfType("events.ModerationTicketOpened")).Return(nil)

	require.NoError(t, h.say(t, testPhone, "REPORT AB12CD34EF scam listing"))

	require.Len(t, h.store.tickets, 1)
	assert.Equal(t, "AB12CD34EF", h.store.tickets[0].ListingID)
	assert.Equal(t, "scam listing", h.store.tickets[0].Reason)
	assert.Equal(t, FormatReportReceived("AB12CD34EF"), h.sender.last().Body)
	h.events.AssertExpectations(t)
}

func TestList_FlowTemplate(t *testing.T) {
	h := newHarness(t, Options{FlowSID: "HX123"})
	h.store.addUser(testPhone, 5)

	require.NoError(t, h.say(t, testPhone, "LIST"))

	last := h.sender.last()
	assert.Equal(t, "HX123", last.ContentSID)
	assert.Equal(t, msgFlowBody, last.ContentVariables["1"])
	assert.Empty(t, h.store.order)
	assert.Nil(t, h.store.user(testPhone).Session)
}

func TestFlowResponseCreatesDraft(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)

	form := url.Values{
		"From":                {"whatsapp:" + testPhone},
		"InteractionType":     {"nfm_reply"},
		"InteractionResponse": {`{"title":"Garden flat","rent":"$350","contactName":"Tariro","amenities":["wifi","parking"]}`},
	}
	require.NoError(t, h.bot.Handle(context.Background(), Parse(form)))

	require.Len(t, h.store.order, 1)
	l := h.store.listing(h.store.order[0])
	assert.Equal(t, "Garden flat", l.Title)
	assert.Equal(t, 350.0, l.Rent)
	assert.Equal(t, "Tariro", l.ContactName)
	assert.Equal(t, testPhone, l.ContactPhone)
	assert.Equal(t, []string{"wifi", "parking"}, l.Amenities)
	assert.Equal(t, FormatListingDraft(l.ID.String(), 3), h.sender.last().Body)
}

func TestFlowResponseKeepsContactPhoneAsSubmitted(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)

	form := url.Values{
		"From":                {"whatsapp:" + testPhone},
		"InteractionType":     {"nfm_reply"},
		"InteractionResponse": {`{"title":"Garden flat","contactPhone":"+263 (0)77 123 4567 after 5pm"}`},
	}
	require.NoError(t, h.bot.Handle(context.Background(), Parse(form)))

	require.Len(t, h.store.order, 1)
	assert.Equal(t, "+263 (0)77 123 4567 after 5pm", h.store.listing(h.store.order[0]).ContactPhone)
}

func TestEdit(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	mine := h.store.addListing(&models.Listing{OwnerPhone: testPhone, Rent: 300})
	theirs := publishedListing(h, "Cottage", "Avondale", 300)
	id := mine.ID.String()

	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"usage", "EDIT " + id, "Reply EDIT <ID> <field> <value>. Fields: " + editableFieldList()},
		{"not owner", "EDIT " + theirs.ID.String() + " rent 100", "You can only edit your own listings."},
		{"unknown listing", "EDIT nope rent 100", listingNotFound("nope")},
		{"bad field", "EDIT " + id + " colour red", `You can't edit "colour". Fields: ` + editableFieldList()},
		{"bad value", "EDIT " + id + " rent lots", "That is not a valid value for rent."},
		{"ok", "EDIT " + id + " Rent $450", FormatEditConfirmed(id, "rent")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, h.say(t, testPhone, tt.msg))
			assert.Equal(t, tt.want, h.sender.last().Body)
		})
	}
	assert.Equal(t, 450.0, h.store.listing(mine.ID).Rent)
	assert.Equal(t, 300.0, h.store.listing(theirs.ID).Rent)
}

func TestAddPhoto(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	l := h.store.addListing(&models.Listing{OwnerPhone: testPhone, Images: []string{"https://i/1", "https://i/2"}})
	h.jobs.On("EnqueueImageProcess", mock.Anything, l.ID, testPhone, "https://m/0").Return(nil)

	form := url.Values{
		"From":      {"whatsapp:" + testPhone},
		"Body":      {"ADDPHOTO " + l.ID.String()},
		"NumMedia":  {"2"},
		"MediaUrl0": {"https://m/0"},
		"MediaUrl1": {"https://m/1"},
	}
	require.NoError(t, h.bot.Handle(context.Background(), Parse(form)))

	h.jobs.AssertNumberOfCalls(t, "EnqueueImageProcess", 1)
	h.jobs.AssertExpectations(t)
	assert.Equal(t, FormatPhotosQueued(l.ID.String(), 1), h.sender.last().Body)
}

func TestAddPhoto_Refusals(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 5)
	mine := h.store.addListing(&models.Listing{OwnerPhone: testPhone})
	full := h.store.addListing(&models.Listing{OwnerPhone: testPhone, Images: []string{"a", "b", "c"}})
	theirs := publishedListing(h, "Cottage", "Avondale", 300)

	withMedia := func(id string) url.Values {
		return url.Values{
			"From":      {"whatsapp:" + testPhone},
			"Body":      {"ADDPHOTO " + id},
			"NumMedia":  {"1"},
			"MediaUrl0": {"https://m/0"},
		}
	}

	require.NoError(t, h.bot.Handle(context.Background(), Parse(withMedia(theirs.ID.String()))))
	assert.Equal(t, "You can only add photos to your own listings.", h.sender.last().Body)

	require.NoError(t, h.say(t, testPhone, "ADDPHOTO "+mine.ID.String()))
	assert.Contains(t, h.sender.last().Body, "No photo attached")

	require.NoError(t, h.bot.Handle(context.Background(), Parse(withMedia(full.ID.String()))))
	assert.Contains(t, h.sender.last().Body, "already has 3 photos")

	h.jobs.AssertNotCalled(t, "EnqueueImageProcess", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBuy(t *testing.T) {
	bundle := services.Product{Tag: "credits_5", Type: models.TransactionCreditPurchase, Amount: 1, Credits: 5}

	t.Run("unknown bundle shows menu", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.store.addUser(testPhone, 5)
		h.payments.On("ResolveProduct", mock.Anything, testPhone, "99").Return(services.Product{}, services.ErrUnknownProduct)

		require.NoError(t, h.say(t, testPhone, "BUY 99"))
		assert.Equal(t, FormatBundles(h.bot.Catalog.Bundles(), 3), h.sender.last().Body)
		h.payments.AssertNotCalled(t, "StartPurchase", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("started", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.store.addUser(testPhone, 5)
		tx := &models.Transaction{Reference: "CRD-AB12CD34EF", Amount: 1}
		h.payments.On("ResolveProduct", mock.Anything, testPhone, "5").Return(bundle, nil)
		h.payments.On("StartPurchase", mock.Anything, testPhone, bundle).
			Return(&services.Purchase{Transaction: tx, Instructions: "Dial *151# to approve."}, nil)

		require.NoError(t, h.say(t, testPhone, "BUY 5"))
		assert.Equal(t, FormatPaymentStarted(tx, "Dial *151# to approve."), h.sender.last().Body)
		h.payments.AssertExpectations(t)
	})

	t.Run("provider refusal is shown", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.store.addUser(testPhone, 5)
		h.payments.On("ResolveProduct", mock.Anything, testPhone, "5").Return(bundle, nil)
		h.payments.On("StartPurchase", mock.Anything, testPhone, bundle).
			Return(nil, &payments.ProviderError{Message: "Insufficient balance"})

		require.NoError(t, h.say(t, testPhone, "BUY 5"))
		assert.Equal(t, "Payment could not be started: Insufficient balance", h.sender.last().Body)
	})

	t.Run("not owner", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.store.addUser(testPhone, 5)
		h.payments.On("ResolveProduct", mock.Anything, testPhone, "LIST AB12CD34EF").Return(services.Product{}, services.ErrNotOwner)

		require.NoError(t, h.say(t, testPhone, "BUY LIST AB12CD34EF"))
		assert.Equal(t, "You can only publish your own listings.", h.sender.last().Body)
	})
}

func TestStoreFailureGetsGenericReply(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.failUsers = errStoreDown

	err := h.say(t, testPhone, "HELP")
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, msgGenericError, h.sender.last().Body)
}

func TestHelp(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.addUser(testPhone, 7)

	require.NoError(t, h.say(t, testPhone, "hi"))
	assert.Equal(t, FormatHelp(7), h.sender.last().Body)
}
