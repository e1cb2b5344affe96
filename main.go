package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/tradeclarity/backend/src/config"
	"github.com/username/tradeclarity/backend/src/database"
	"github.com/username/tradeclarity/backend/src/handlers"
	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/parsers"
	"github.com/username/tradeclarity/backend/src/processors"
	"github.com/username/tradeclarity/backend/src/security"
	"github.com/username/tradeclarity/backend/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			config.Cfg.FrontendBaseURL: true,
			"http://localhost:3000":    true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, X-Internal-Key, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("TradeClarity backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}
	if len(config.Cfg.CSRFAuthKey) < 32 {
		logger.L.Error("CSRF_AUTH_KEY must be at least 32 bytes long.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing in-memory caches...")
	importMemo := cache.New(15*time.Minute, 30*time.Minute)
	rateMemo := cache.New(config.Cfg.RateCacheTTL, 2*config.Cfg.RateCacheTTL)

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret, config.Cfg.InternalServiceKey)
	sealer, err := security.NewCredentialSealer(config.Cfg.CredentialSealKey)
	if err != nil {
		logger.L.Error("Invalid CREDENTIAL_SEAL_KEY", "error", err)
		os.Exit(1)
	}

	tradeStore := services.NewTradeStore()
	csvParser := parsers.NewCSVTradeParser()
	analyzer := processors.NewAnalyticsProcessor()
	aggregator := processors.NewPortfolioAggregator()

	importService := services.NewImportService(csvParser, tradeStore, importMemo)
	portfolioService := services.NewPortfolioService(tradeStore, aggregator)
	analyticsService := services.NewAnalyticsService(tradeStore, analyzer, portfolioService, config.Cfg.AnalyticsCacheTTL)

	dbRateProvider := &services.DBRateProvider{DB: database.DB}
	rateService := services.NewRateService(
		[]services.RateProvider{
			&services.LiveRateProvider{URL: config.Cfg.CurrencyAPIURL, Client: http.DefaultClient, Timeout: config.Cfg.CurrencyAPITimeout},
			dbRateProvider,
			&services.StaticRateProvider{},
		},
		rateMemo,
		config.Cfg.RateCacheTTL,
		dbRateProvider.Save,
	)

	snapTradeService := services.NewSnapTradeService(
		config.Cfg.SnapTradeBaseURL,
		config.Cfg.SnapTradeClientID,
		config.Cfg.SnapTradeConsumerKey,
		config.Cfg.SnapTradeHTTPTimeout,
		tradeStore,
	)
	emailService := services.NewEmailService()

	authMiddleware := handlers.NewAuthMiddleware(authService)
	uploadHandler := handlers.NewUploadHandler(importService)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService, emailService)
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService)
	currencyHandler := handlers.NewCurrencyHandler(rateService)
	connectionHandler := handlers.NewConnectionHandler(tradeStore, sealer, snapTradeService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	// Public GET routes (no CSRF needed for these GETs)
	apiRouter.HandleFunc("GET /api/auth/csrf", handlers.GetCSRFToken)
	apiRouter.HandleFunc("GET /api/currency-rate", currencyHandler.HandleGetRates)

	// OAuth callback arrives from the brokerage, not our frontend, so it
	// cannot carry a CSRF token. The sealed state parameter authenticates it.
	apiRouter.HandleFunc("GET /api/connections/oauth/callback", connectionHandler.HandleOAuthCallback)

	csrfProtection := handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey)
	applyCsrfAndAuth := func(handler http.HandlerFunc) http.Handler {
		return csrfProtection(authMiddleware.Require(handler))
	}

	apiRouter.Handle("POST /api/upload", applyCsrfAndAuth(uploadHandler.HandleUpload))
	apiRouter.Handle("GET /api/upload/latest", applyCsrfAndAuth(uploadHandler.HandleGetLatestImport))

	// Compute accepts an internal service key so backend jobs can warm the
	// cache for a user without a session token. Those callers hold no CSRF
	// cookie, so key-bearing requests skip the CSRF check and are verified
	// by RequireOrInternal instead.
	apiRouter.Handle("POST /api/analytics/compute", handlers.CSRFExemptInternal(csrfProtection, authMiddleware.RequireOrInternal(analyticsHandler.HandleCompute)))
	apiRouter.Handle("GET /api/analytics/cache", applyCsrfAndAuth(analyticsHandler.HandleGetCache))
	apiRouter.Handle("POST /api/reports/email", applyCsrfAndAuth(analyticsHandler.HandleEmailReport))

	apiRouter.Handle("GET /api/portfolio", applyCsrfAndAuth(portfolioHandler.HandleGetPortfolio))

	apiRouter.Handle("GET /api/connections", applyCsrfAndAuth(connectionHandler.HandleListConnections))
	apiRouter.Handle("POST /api/connections", applyCsrfAndAuth(connectionHandler.HandleCreateConnection))
	apiRouter.Handle("DELETE /api/connections/{id}", applyCsrfAndAuth(connectionHandler.HandleDeleteConnection))
	apiRouter.Handle("POST /api/connections/{id}/sync", applyCsrfAndAuth(connectionHandler.HandleSnapTradeSync))
	apiRouter.Handle("POST /api/connections/snaptrade/register", applyCsrfAndAuth(connectionHandler.HandleSnapTradeRegister))
	apiRouter.Handle("GET /api/connections/oauth/authorize", applyCsrfAndAuth(connectionHandler.HandleOAuthAuthorize))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "TradeClarity Backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
