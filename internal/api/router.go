package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/api/handlers"
	"github.com/Roland735/rentbot/internal/api/middleware"
	"github.com/Roland735/rentbot/internal/auth"
	"github.com/Roland735/rentbot/internal/config"
	"github.com/Roland735/rentbot/internal/messaging"
	"github.com/Roland735/rentbot/internal/services"
	"github.com/Roland735/rentbot/internal/storage"
	"github.com/Roland735/rentbot/internal/utils"
)

// RouterDeps is everything the public router serves from.
type RouterDeps struct {
	Bot         handlers.IBot
	Deduper     handlers.IDeduper
	Payments    services.IPaymentService
	Users       services.IUserService
	Credits     services.ICreditService
	Moderation  services.IModerationService
	Listings    services.IListingService
	Catalog     services.ICatalogService
	Storage     storage.IS3Storage
	RateLimiter *middleware.RateLimiterMiddleware
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, deps RouterDeps, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ZapLogger(logger), gin.Recovery())

	webhookHandler := handlers.NewWebhookHandler(deps.Bot, deps.Payments, deps.Deduper, cfg.PaynowIntegrationKey, logger)
	jsonApiHandler := handlers.NewJsonApiHandler(cfg, deps.Bot, deps.Catalog, logger)
	restAdminHandler := handlers.NewRestAdminHandler(handlers.AdminDeps{
		Users:      deps.Users,
		Credits:    deps.Credits,
		Moderation: deps.Moderation,
		Listings:   deps.Listings,
		Catalog:    deps.Catalog,
		Storage:    deps.Storage,
		Logger:     logger,
	})

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// The limiter keys on the form sender, so it runs before the signature
		// check has a chance to reject a flood.
		v1.POST("/twilio/webhook",
			deps.RateLimiter.Limit(),
			middleware.TwilioSignature(cfg.TwilioAuthToken, cfg.TwilioWebhookURL, cfg.TwilioSkipSignature, logger),
			webhookHandler.TwilioInbound)

		// Paynow needs the raw body for the hash, so nothing here may parse the form.
		v1.POST("/paynow/result", webhookHandler.PaynowResult)

		apiGroup := v1.Group("/api")
		apiGroup.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins), deps.RateLimiter.Limit())
		{
			apiGroup.POST("", jsonApiHandler.HandleRequest)
			apiGroup.OPTIONS("", func(c *gin.Context) {})
		}

		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			adminRequired.GET("/users", restAdminHandler.ListUsers)
			adminRequired.POST("/users/credits", restAdminHandler.SetCredits)
			adminRequired.GET("/tickets", restAdminHandler.ListTickets)
			adminRequired.POST("/tickets/:id/close", restAdminHandler.CloseTicket)
			adminRequired.POST("/listings/:id/upload-url", restAdminHandler.GetUploadURL)
			adminRequired.PUT("/catalog/suburbs", restAdminHandler.SetSuburbs)
		}
	}

	return r
}

// SetupServiceRouter configures the internal service engine. It is bound to a
// separate port and must not be exposed publicly.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, shutdownChan chan<- struct{}, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ZapLogger(logger), gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			logger.Info("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				logger.Warn("Shutdown channel already signaled")
			}

		case "getTestMessage":
			var args []string // ["phone"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 1 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [phone]"})
				return
			}
			phone := utils.NormalizePhone(args[0])

			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			// Poll briefly; the bot may still be replying.
			for i := 0; i < 10; i++ {
				msgs, err := messaging.RecentMessages(ctx, rdb, phone, 1)
				if err != nil {
					logger.Error("Service API: failed to read test messages", zap.Error(err))
					c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
					return
				}
				if len(msgs) > 0 {
					c.JSON(http.StatusOK, gin.H{"success": true, "data": msgs[0]})
					return
				}
				time.Sleep(200 * time.Millisecond)
			}
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("No test message found for %s", phone)})

		case "issueToken":
			var args []string // ["subject"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 1 || args[0] == "" {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [subject]"})
				return
			}
			token, err := auth.GenerateJWT(args[0], false, cfg.JwtSecret, cfg.JwtTTL)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to issue token"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": token})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
