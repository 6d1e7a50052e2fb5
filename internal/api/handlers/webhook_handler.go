package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/bot"
	"github.com/Roland735/rentbot/internal/observability"
	"github.com/Roland735/rentbot/internal/payments"
	"github.com/Roland735/rentbot/internal/services"
)

// IDeduper remembers provider message ids.
type IDeduper interface {
	FirstSeen(ctx context.Context, id string) (bool, error)
}

// WebhookHandler receives provider callbacks: inbound WhatsApp messages and
// Paynow status updates.
type WebhookHandler struct {
	bot            IBot
	payments       services.IPaymentService
	deduper        IDeduper
	integrationKey string
	logger         *zap.Logger
}

func NewWebhookHandler(b IBot, paymentService services.IPaymentService, deduper IDeduper, integrationKey string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		bot:            b,
		payments:       paymentService,
		deduper:        deduper,
		integrationKey: integrationKey,
		logger:         logger,
	}
}

// TwilioInbound handles POST /v1/twilio/webhook. It always answers 200 so the
// provider does not retry a message the bot already replied to; failures are
// reported to the user by the bot itself.
func (h *WebhookHandler) TwilioInbound(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid form body"})
		return
	}
	in := bot.Parse(c.Request.PostForm)
	if in.Phone == "" {
		h.logger.Warn("Inbound message without sender", zap.String("message_sid", in.MessageSID))
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	ctx := c.Request.Context()
	first, err := h.deduper.FirstSeen(ctx, in.MessageSID)
	if err != nil {
		h.logger.Warn("Inbound dedupe unavailable", zap.Error(err))
	}
	if !first {
		h.logger.Debug("Duplicate inbound message", zap.String("message_sid", in.MessageSID), observability.Phone(in.Phone))
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	// Errors are already logged and answered inside Handle.
	_ = h.bot.Handle(ctx, in)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PaynowResult handles POST /v1/paynow/result.
func (h *WebhookHandler) PaynowResult(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid body")
		return
	}
	result, err := payments.ParseResult(body)
	if err != nil || result.Reference == "" {
		c.String(http.StatusBadRequest, "Invalid body")
		return
	}
	if h.integrationKey != "" && result.HasHash {
		if err := result.Verify(h.integrationKey); err != nil {
			h.logger.Warn("Rejected payment result with bad hash", zap.String("reference", result.Reference))
			c.String(http.StatusBadRequest, "Invalid hash")
			return
		}
	}

	outcome, err := h.payments.HandleResult(c.Request.Context(), result)
	if err != nil {
		h.logger.Error("Failed to process payment result", zap.String("reference", result.Reference), zap.Error(err))
		c.String(http.StatusInternalServerError, "Error")
		return
	}
	h.logger.Info("Payment result processed",
		zap.String("reference", result.Reference),
		zap.String("status", result.Status),
		zap.String("outcome", outcome.String()))

	switch outcome {
	case services.SettleNotFound:
		c.String(http.StatusOK, "Transaction not found")
	case services.SettleAlreadyProcessed:
		c.String(http.StatusOK, "Already processed")
	default:
		c.String(http.StatusOK, "OK")
	}
}
