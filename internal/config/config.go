package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode      string // Set via flag, not env
	LogLevel     string
	MockServices bool

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NATS (optional; events are logged only when empty)
	NatsURL string

	// JWT / admin
	JwtSecret         string
	JwtTTL            time.Duration
	AdminUsername     string
	AdminPasswordHash string

	// Server
	ApiPort            string
	ServiceApiPort     string
	HTTPClientTimeout  time.Duration
	CORSAllowedOrigins []string

	// Twilio (WhatsApp)
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioWhatsAppFrom  string
	TwilioAPIBase       string
	TwilioFlowSID       string
	TwilioWebhookURL    string
	TwilioSkipSignature bool

	// WhatChimp (alternative WhatsApp transport)
	WhatChimpAPIURL      string
	WhatChimpAccessToken string

	// Paynow
	PaynowIntegrationID  string
	PaynowIntegrationKey string
	PaynowEmail          string
	PaynowInitiateURL    string
	PaynowTestMode       bool
	PublicBaseURL        string

	// Credits and pricing
	StarterCredits      int
	SearchCost          int
	PhotoCost           int
	ListingPublishPrice float64
	CreditBundles       string // "credits:price,..."

	// Rate limits (per user)
	SearchDailyLimit int
	PhotoDailyLimit  int
	RateThrottle     time.Duration

	// Sessions
	SessionTTL       time.Duration
	SessionSweepSpec string

	// Suburbs, ordered; overridable at runtime through the catalog
	Suburbs []string

	// AWS S3
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	ImageBaseS3URL     string
	ImageMaxDimension  int
	ImageMaxSizeMB     int

	// Webhook rate limiting (per client)
	RateLimitBucketSize int
	RateLimitRefillRate int // tokens per second
}

// DefaultSuburbs is the suburb list used until one is stored in the catalog.
var DefaultSuburbs = []string{
	"Avondale", "Borrowdale", "Mount Pleasant", "Belvedere", "Greendale",
	"Highlands", "Marlborough", "Waterfalls", "Hatfield", "Mabelreign",
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getBool := func(key string) bool {
		return strings.EqualFold(strings.TrimSpace(getEnv(key, "")), "true")
	}

	getSeconds := func(key, defaultValue string) (time.Duration, error) {
		n, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return time.Duration(n) * time.Second, nil
	}

	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.MockServices = getBool("MOCK_SERVICES")
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "rentbot")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.NatsURL = getEnv("NATS_URL", "")
	cfg.AdminUsername = getEnv("ADMIN_USERNAME", "admin")
	cfg.AdminPasswordHash = getEnv("ADMIN_PASSWORD_HASH", "")
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")

	cfg.TwilioAccountSID = getEnv("TWILIO_ACCOUNT_SID", "")
	cfg.TwilioAuthToken = getEnv("TWILIO_AUTH_TOKEN", "")
	cfg.TwilioWhatsAppFrom = getEnv("TWILIO_WHATSAPP_FROM", "")
	cfg.TwilioAPIBase = strings.TrimRight(getEnv("TWILIO_API_BASE", "https://api.twilio.com"), "/")
	cfg.TwilioFlowSID = getEnv("TWILIO_FLOW_SID", "")
	cfg.TwilioWebhookURL = getEnv("TWILIO_WEBHOOK_URL", "")
	cfg.TwilioSkipSignature = getBool("TWILIO_SKIP_SIGNATURE")

	cfg.WhatChimpAPIURL = strings.TrimSpace(getEnv("WHATCHIMP_API_URL", ""))
	cfg.WhatChimpAccessToken = strings.TrimSpace(getEnv("WHATCHIMP_ACCESS_TOKEN", ""))

	cfg.PaynowIntegrationID = strings.TrimSpace(getEnv("PAYNOW_INTEGRATION_ID", ""))
	cfg.PaynowIntegrationKey = strings.TrimSpace(getEnv("PAYNOW_INTEGRATION_KEY", ""))
	cfg.PaynowEmail = strings.TrimSpace(getEnv("PAYNOW_EMAIL", "customer@rentbot.co.zw"))
	cfg.PaynowInitiateURL = getEnv("PAYNOW_INITIATE_URL", "https://www.paynow.co.zw/interface/remotetransaction")
	cfg.PaynowTestMode = getBool("PAYNOW_TEST_MODE")
	cfg.PublicBaseURL = strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/")
	cfg.CreditBundles = getEnv("CREDIT_BUNDLES", "5:1.00,12:2.00,30:5.00")

	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.ImageBaseS3URL = strings.TrimRight(getEnv("IMAGE_BASE_S3_URL", ""), "/")
	cfg.SessionSweepSpec = getEnv("SESSION_SWEEP_SPEC", "@every 15m")

	for _, o := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	if raw := getEnv("SUBURBS", ""); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Suburbs = append(cfg.Suburbs, s)
			}
		}
	}
	if len(cfg.Suburbs) == 0 {
		cfg.Suburbs = append([]string(nil), DefaultSuburbs...)
	}

	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	if cfg.JwtTTL, err = getSeconds("JWT_TTL_SECONDS", "3600"); err != nil {
		return nil, err
	}
	if cfg.HTTPClientTimeout, err = getSeconds("HTTP_CLIENT_TIMEOUT_SECONDS", "15"); err != nil {
		return nil, err
	}
	if cfg.RateThrottle, err = getSeconds("RATE_THROTTLE_SECONDS", "60"); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getSeconds("SESSION_TTL_SECONDS", "86400"); err != nil {
		return nil, err
	}

	ints := []struct {
		key string
		def string
		dst *int
	}{
		{"STARTER_CREDITS", "3", &cfg.StarterCredits},
		{"SEARCH_COST", "1", &cfg.SearchCost},
		{"PHOTO_COST", "2", &cfg.PhotoCost},
		{"SEARCH_DAILY_LIMIT", "200", &cfg.SearchDailyLimit},
		{"PHOTO_DAILY_LIMIT", "5", &cfg.PhotoDailyLimit},
		{"IMAGE_MAX_DIMENSION", "1280", &cfg.ImageMaxDimension},
		{"IMAGE_MAX_SIZE_MB", "10", &cfg.ImageMaxSizeMB},
		{"RATE_LIMIT_BUCKET_SIZE", "20", &cfg.RateLimitBucketSize},
		{"RATE_LIMIT_REFILL_RATE", "5", &cfg.RateLimitRefillRate},
	}
	for _, i := range ints {
		if *i.dst, err = strconv.Atoi(getEnv(i.key, i.def)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", i.key, err)
		}
	}

	cfg.ListingPublishPrice, err = strconv.ParseFloat(getEnv("LISTING_PUBLISH_PRICE", "3.00"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTING_PUBLISH_PRICE: %w", err)
	}

	return cfg, nil
}
