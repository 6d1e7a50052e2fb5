package handlers_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/api/handlers"
	"github.com/Roland735/rentbot/internal/bot"
	"github.com/Roland735/rentbot/internal/payments"
	"github.com/Roland735/rentbot/internal/services"
)

const integrationKey = "paynow-key"

func setupWebhookRouter(b handlers.IBot, paymentSvc services.IPaymentService, deduper handlers.IDeduper, key string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handlers.NewWebhookHandler(b, paymentSvc, deduper, key, zap.NewNop())
	r := gin.New()
	r.POST("/v1/twilio/webhook", h.TwilioInbound)
	r.POST("/v1/paynow/result", h.PaynowResult)
	return r
}

func postForm(r *gin.Engine, path string, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookHandler_TwilioInbound(t *testing.T) {
	mockBot := new(MockBot)
	mockDeduper := new(MockDeduper)
	router := setupWebhookRouter(mockBot, new(MockPaymentService), mockDeduper, "")

	mockDeduper.On("FirstSeen", mock.Anything, "SM123").Return(true, nil).Once()
	mockBot.On("Handle", mock.Anything, mock.MatchedBy(func(in bot.Inbound) bool {
		return in.Phone == "+263771234567" && in.Command == bot.CommandSearch && in.Rest == "Avondale"
	})).Return(nil).Once()

	form := url.Values{"From": {"whatsapp:+263771234567"}, "Body": {"SEARCH Avondale"}, "MessageSid": {"SM123"}}
	w := postForm(router, "/v1/twilio/webhook", form.Encode())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	mockBot.AssertExpectations(t)
	mockDeduper.AssertExpectations(t)
}

func TestWebhookHandler_TwilioInbound_Duplicate(t *testing.T) {
	mockBot := new(MockBot)
	mockDeduper := new(MockDeduper)
	router := setupWebhookRouter(mockBot, new(MockPaymentService), mockDeduper, "")

	mockDeduper.On("FirstSeen", mock.Anything, "SM123").Return(false, nil).Once()

	form := url.Values{"From": {"whatsapp:+263771234567"}, "Body": {"HELP"}, "MessageSid": {"SM123"}}
	w := postForm(router, "/v1/twilio/webhook", form.Encode())

	assert.Equal(t, http.StatusOK, w.Code)
	mockBot.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
}

func TestWebhookHandler_TwilioInbound_HandlerErrorStill200(t *testing.T) {
	mockBot := new(MockBot)
	mockDeduper := new(MockDeduper)
	router := setupWebhookRouter(mockBot, new(MockPaymentService), mockDeduper, "")

	mockDeduper.On("FirstSeen", mock.Anything, "").Return(true, nil)
	mockBot.On("Handle", mock.Anything, mock.Anything).Return(errors.New("db down"))

	form := url.Values{"From": {"whatsapp:+263771234567"}, "Body": {"HELP"}}
	w := postForm(router, "/v1/twilio/webhook", form.Encode())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookHandler_TwilioInbound_MissingSender(t *testing.T) {
	mockBot := new(MockBot)
	mockDeduper := new(MockDeduper)
	router := setupWebhookRouter(mockBot, new(MockPaymentService), mockDeduper, "")

	for _, form := range []url.Values{{"Body": {"HELP"}}, {"From": {"whatsapp:"}, "Body": {"HELP"}}} {
		w := postForm(router, "/v1/twilio/webhook", form.Encode())
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	}
	mockBot.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
	mockDeduper.AssertNotCalled(t, "FirstSeen", mock.Anything, mock.Anything)
}

func signedResultBody(reference, status string) string {
	values := []string{reference, "123", status}
	hash := payments.Hash(values, integrationKey)
	return "reference=" + url.QueryEscape(reference) + "&paynowreference=123&status=" + url.QueryEscape(status) + "&hash=" + hash
}

func TestWebhookHandler_PaynowResult(t *testing.T) {
	tests := []struct {
		name     string
		outcome  services.SettleOutcome
		wantBody string
	}{
		{"fulfilled", services.SettleFulfilled, "OK"},
		{"unknown reference", services.SettleNotFound, "Transaction not found"},
		{"duplicate delivery", services.SettleAlreadyProcessed, "Already processed"},
		{"failed payment", services.SettleFailed, "OK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPayments := new(MockPaymentService)
			router := setupWebhookRouter(new(MockBot), mockPayments, new(MockDeduper), integrationKey)

			mockPayments.On("HandleResult", mock.Anything, mock.MatchedBy(func(r *payments.Result) bool {
				return r.Reference == "TX1" && r.Status == "Paid"
			})).Return(tt.outcome, nil).Once()

			w := postForm(router, "/v1/paynow/result", signedResultBody("TX1", "Paid"))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
			mockPayments.AssertExpectations(t)
		})
	}
}

func TestWebhookHandler_PaynowResult_BadHash(t *testing.T) {
	mockPayments := new(MockPaymentService)
	router := setupWebhookRouter(new(MockBot), mockPayments, new(MockDeduper), integrationKey)

	w := postForm(router, "/v1/paynow/result", "reference=TX1&status=Paid&hash=DEADBEEF")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockPayments.AssertNotCalled(t, "HandleResult", mock.Anything, mock.Anything)
}

func TestWebhookHandler_PaynowResult_MissingReference(t *testing.T) {
	mockPayments := new(MockPaymentService)
	router := setupWebhookRouter(new(MockBot), mockPayments, new(MockDeduper), "")

	w := postForm(router, "/v1/paynow/result", "status=Paid")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookHandler_PaynowResult_ServiceError(t *testing.T) {
	mockPayments := new(MockPaymentService)
	router := setupWebhookRouter(new(MockBot), mockPayments, new(MockDeduper), "")

	mockPayments.On("HandleResult", mock.Anything, mock.Anything).Return(services.SettleIgnored, errors.New("mongo down"))

	w := postForm(router, "/v1/paynow/result", "reference=TX1&status=Paid")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
