package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	CORSAllowedOrigins []string
	RateLimitPerSecond float64
	RateLimitBurst     int

	AdminJWTSecret string

	// Checkout provider (hosted payment pages)
	CheckoutAPIKey        string
	CheckoutBaseURL       string
	CheckoutWebhookSecret string
	CheckoutSuccessURL    string
	CheckoutCancelURL     string
	AllowFakePayments     bool

	// Twilio SMS alerts
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	SMSAlertNumber   string

	// Email alerts
	EmailProvider     string // "sendgrid", "ses" or "" (disabled)
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	AlertEmail        string
	AWSRegion         string
	SESFromEmail      string

	// DrChrono EMR
	DrChronoBaseURL      string
	DrChronoClientID     string
	DrChronoClientSecret string
	DrChronoRedirectURI  string

	// Voice intake extraction
	OpenAIAPIKey      string
	ExtractionModel   string
	ExtractionTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		CheckoutAPIKey:        getEnv("CHECKOUT_API_KEY", ""),
		CheckoutBaseURL:       getEnv("CHECKOUT_BASE_URL", ""),
		CheckoutWebhookSecret: getEnv("CHECKOUT_WEBHOOK_SECRET", ""),
		CheckoutSuccessURL:    getEnv("CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:     getEnv("CHECKOUT_CANCEL_URL", ""),
		AllowFakePayments:     getEnvAsBool("ALLOW_FAKE_PAYMENTS", false),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		SMSAlertNumber:   getEnv("SMS_ALERT_NUMBER", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", ""))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "MedRx"),
		AlertEmail:        getEnv("ALERT_EMAIL", ""),
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),

		DrChronoBaseURL:      getEnv("DRCHRONO_BASE_URL", "https://drchrono.com"),
		DrChronoClientID:     getEnv("DRCHRONO_CLIENT_ID", ""),
		DrChronoClientSecret: getEnv("DRCHRONO_CLIENT_SECRET", ""),
		DrChronoRedirectURI:  getEnv("DRCHRONO_REDIRECT_URI", ""),

		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		ExtractionModel:   getEnv("EXTRACTION_MODEL", "gpt-4o-mini"),
		ExtractionTimeout: getEnvAsDuration("EXTRACTION_TIMEOUT", 30*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
