package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port               string
	DatabasePath       string
	LogLevel           string
	JWTSecret          string
	InternalServiceKey string
	CSRFAuthKey        []byte
	MaxUploadSizeBytes int64

	// CredentialSealKey encrypts exchange API credentials at rest.
	// Must be exactly 32 bytes.
	CredentialSealKey []byte

	AnalyticsCacheTTL time.Duration
	RateCacheTTL      time.Duration

	CurrencyAPIURL     string
	CurrencyAPITimeout time.Duration

	SnapTradeBaseURL     string
	SnapTradeClientID    string
	SnapTradeConsumerKey string
	SnapTradeHTTPTimeout time.Duration

	BrokerOAuthClientID string
	BrokerOAuthSecret   string
	BrokerOAuthAuthURL  string
	BrokerOAuthTokenURL string
	BrokerOAuthRedirect string
	FrontendBaseURL     string

	EmailServiceProvider string
	MailgunDomain        string
	MailgunPrivateAPIKey string
	SenderEmail          string
	SenderName           string
}

var Cfg *AppConfig

func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: no .env file found, relying on OS environment variables and defaults:", err)
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Println("WARNING: JWT_SECRET is not set. Authenticated endpoints will reject every request.")
	}

	internalKey := getEnv("INTERNAL_SERVICE_KEY", "")
	if internalKey == "" {
		log.Println("WARNING: INTERNAL_SERVICE_KEY is not set. Service-to-service analytics triggers are disabled.")
	}

	csrfAuthKeyStr := getEnv("CSRF_AUTH_KEY", "an-insecure-development-csrf-key-32b!")
	if len(csrfAuthKeyStr) < 32 {
		log.Fatalf("FATAL: CSRF_AUTH_KEY must be at least 32 bytes long, got %d", len(csrfAuthKeyStr))
	}

	sealKeyStr := getEnv("CREDENTIAL_SEAL_KEY", "an-insecure-development-seal-key32b!!")
	if len(sealKeyStr) != 32 {
		// Pad or truncate would silently weaken the key, so refuse to start.
		log.Fatalf("FATAL: CREDENTIAL_SEAL_KEY must be exactly 32 bytes long, got %d", len(sealKeyStr))
	}

	maxUploadMB := getEnvInt64("MAX_UPLOAD_SIZE_MB", 10)

	Cfg = &AppConfig{
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./tradeclarity.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		JWTSecret:          jwtSecret,
		InternalServiceKey: internalKey,
		CSRFAuthKey:        []byte(csrfAuthKeyStr),
		MaxUploadSizeBytes: maxUploadMB * 1024 * 1024,
		CredentialSealKey:  []byte(sealKeyStr),

		AnalyticsCacheTTL: getEnvDuration("ANALYTICS_CACHE_TTL", time.Hour),
		RateCacheTTL:      getEnvDuration("RATE_CACHE_TTL", 15*time.Minute),

		CurrencyAPIURL:     getEnv("CURRENCY_API_URL", "https://open.er-api.com/v6/latest/USD"),
		CurrencyAPITimeout: getEnvDuration("CURRENCY_API_TIMEOUT", 10*time.Second),

		SnapTradeBaseURL:     getEnv("SNAPTRADE_BASE_URL", "https://api.snaptrade.com/api/v1"),
		SnapTradeClientID:    getEnv("SNAPTRADE_CLIENT_ID", ""),
		SnapTradeConsumerKey: getEnv("SNAPTRADE_CONSUMER_KEY", ""),
		SnapTradeHTTPTimeout: getEnvDuration("SNAPTRADE_HTTP_TIMEOUT", 30*time.Second),

		BrokerOAuthClientID: getEnv("BROKER_OAUTH_CLIENT_ID", ""),
		BrokerOAuthSecret:   getEnv("BROKER_OAUTH_CLIENT_SECRET", ""),
		BrokerOAuthAuthURL:  getEnv("BROKER_OAUTH_AUTH_URL", ""),
		BrokerOAuthTokenURL: getEnv("BROKER_OAUTH_TOKEN_URL", ""),
		BrokerOAuthRedirect: getEnv("BROKER_OAUTH_REDIRECT_URL", "http://localhost:8080/api/connections/oauth/callback"),
		FrontendBaseURL:     getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),

		EmailServiceProvider: getEnv("EMAIL_SERVICE_PROVIDER", "mock"),
		MailgunDomain:        getEnv("MAILGUN_DOMAIN", ""),
		MailgunPrivateAPIKey: getEnv("MAILGUN_PRIVATE_API_KEY", ""),
		SenderEmail:          getEnv("SENDER_EMAIL", ""),
		SenderName:           getEnv("SENDER_NAME", "TradeClarity"),
	}

	log.Printf("Configuration loaded. Port: %s, DBPath: %s, LogLevel: %s", Cfg.Port, Cfg.DatabasePath, Cfg.LogLevel)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: invalid value for %s: %q, using default %d", key, valueStr, fallback)
		return fallback
	}
	return value
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("WARNING: invalid duration for %s: %q, using default %s", key, valueStr, fallback)
		return fallback
	}
	return value
}
