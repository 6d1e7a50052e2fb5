package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/messaging"
)

const twilioSignatureHeader = "X-Twilio-Signature"

// TwilioSignature rejects webhook deliveries whose signature does not match.
// webhookURL is the public URL Twilio posts to; when empty the URL is rebuilt
// from the request. skip disables the check for local development.
func TwilioSignature(authToken, webhookURL string, skip bool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid form body"})
			return
		}
		if skip {
			c.Next()
			return
		}

		fullURL := webhookURL
		if fullURL == "" {
			fullURL = requestURL(c.Request)
		}
		if !messaging.ValidSignature(authToken, fullURL, c.Request.PostForm, c.GetHeader(twilioSignatureHeader)) {
			logger.Warn("Rejected webhook with invalid signature", zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
