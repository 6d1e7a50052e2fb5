package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 10 * time.Minute
	limiterIdleTimeout   = 30 * time.Minute
)

// clientLimiter stores the token bucket for a specific client.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterMiddleware limits requests per client with a token bucket.
type RateLimiterMiddleware struct {
	clients    map[string]*clientLimiter
	mu         sync.Mutex
	refillRate rate.Limit
	bucketSize int
	keyFunc    func(c *gin.Context) string
	logger     *zap.Logger
}

// NewRateLimiterMiddleware creates a limiter allowing bucketSize requests in a
// burst, refilled at refillRate per second.
func NewRateLimiterMiddleware(refillRate, bucketSize int, logger *zap.Logger) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		clients:    make(map[string]*clientLimiter),
		refillRate: rate.Limit(refillRate),
		bucketSize: bucketSize,
		keyFunc:    ClientKey,
		logger:     logger,
	}
}

// ClientKey identifies a client by IP, and by sender when the request is a webhook
// delivery, so one busy chat cannot starve the rest.
func ClientKey(c *gin.Context) string {
	if from := c.PostForm("From"); from != "" {
		return c.ClientIP() + "|" + from
	}
	return c.ClientIP()
}

// getClientLimiter retrieves or creates the limiter for a given client identifier.
func (rm *RateLimiterMiddleware) getClientLimiter(identifier string) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	limiter, exists := rm.clients[identifier]
	if !exists {
		limiter = &clientLimiter{limiter: rate.NewLimiter(rm.refillRate, rm.bucketSize)}
		rm.clients[identifier] = limiter
	}
	limiter.lastSeen = time.Now()
	return limiter
}

// Cleanup removes idle clients until ctx is done.
func (rm *RateLimiterMiddleware) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rm.sweep(time.Now().Add(-limiterIdleTimeout)); n > 0 {
				rm.logger.Debug("Rate limiter cleanup removed idle clients", zap.Int("count", n))
			}
		}
	}
}

func (rm *RateLimiterMiddleware) sweep(cutoff time.Time) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	count := 0
	for id, client := range rm.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rm.clients, id)
			count++
		}
	}
	return count
}

// Limit creates the Gin middleware handler.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := rm.keyFunc(c)
		limiter := rm.getClientLimiter(clientKey)

		if !limiter.limiter.Allow() {
			rm.logger.Warn("Rate limit exceeded", zap.String("client", clientKey), zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}
