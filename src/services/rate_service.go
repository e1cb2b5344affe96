package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/models"
)

const ckCurrencyRates = "currency_rates"

// RateProvider is one source of USD-based currency rates. Providers are
// tried in order until one succeeds.
type RateProvider interface {
	Name() string
	Fetch(ctx context.Context) (*models.RateTable, error)
}

// rateServiceImpl iterates its provider chain (live API, database cache,
// static constants) and memoizes the winning table in an injected in-memory
// cache. The clock is injected so TTL behavior is testable.
type rateServiceImpl struct {
	providers []RateProvider
	memo      *cache.Cache
	memoTTL   time.Duration
	persist   func(*models.RateTable)
	now       func() time.Time
}

func NewRateService(providers []RateProvider, memo *cache.Cache, memoTTL time.Duration, persist func(*models.RateTable)) RateService {
	return &rateServiceImpl{
		providers: providers,
		memo:      memo,
		memoTTL:   memoTTL,
		persist:   persist,
		now:       time.Now,
	}
}

func (s *rateServiceImpl) GetRates(ctx context.Context) (*RateResult, error) {
	if v, found := s.memo.Get(ckCurrencyRates); found {
		if result, ok := v.(*RateResult); ok {
			return result, nil
		}
	}

	var lastErr error
	for _, provider := range s.providers {
		table, err := provider.Fetch(ctx)
		if err != nil {
			logger.L.Warn("Rate provider failed, trying next", "provider", provider.Name(), "error", err)
			lastErr = err
			continue
		}

		// Only a live fetch is worth writing back to the database tier.
		if provider.Name() == "free-api" && s.persist != nil {
			s.persist(table)
		}

		result := &RateResult{
			Rates:   table.Rates,
			Source:  provider.Name(),
			AgeDays: table.AgeDays(s.now()),
		}
		s.memo.Set(ckCurrencyRates, result, s.memoTTL)
		return result, nil
	}
	return nil, fmt.Errorf("all rate providers failed: %w", lastErr)
}

// --- Providers ---

// LiveRateProvider pulls rates from a free currency API with a hard timeout.
type LiveRateProvider struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

func (p *LiveRateProvider) Name() string { return "free-api" }

func (p *LiveRateProvider) Fetch(ctx context.Context) (*models.RateTable, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("currency API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("currency API returned status %d", resp.StatusCode)
	}

	var payload struct {
		BaseCode string             `json:"base_code"`
		Rates    map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding currency API response: %w", err)
	}
	if len(payload.Rates) == 0 {
		return nil, fmt.Errorf("currency API returned no rates")
	}

	base := payload.BaseCode
	if base == "" {
		base = "USD"
	}
	return &models.RateTable{Base: base, Rates: payload.Rates, FetchedAt: time.Now().UTC()}, nil
}

// DBRateProvider reads the last persisted rate table.
type DBRateProvider struct {
	DB *sql.DB
}

func (p *DBRateProvider) Name() string { return "database" }

func (p *DBRateProvider) Fetch(ctx context.Context) (*models.RateTable, error) {
	var ratesJSON, base string
	var fetchedAt int64
	err := p.DB.QueryRowContext(ctx, `SELECT base, rates, fetched_at FROM exchange_rates WHERE id = 1`).
		Scan(&base, &ratesJSON, &fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("no cached rates in database: %w", err)
	}

	var rates map[string]float64
	if err := json.Unmarshal([]byte(ratesJSON), &rates); err != nil {
		return nil, fmt.Errorf("decoding cached rates: %w", err)
	}
	return &models.RateTable{Base: base, Rates: rates, FetchedAt: time.UnixMilli(fetchedAt).UTC()}, nil
}

// Save upserts the single database rate row.
func (p *DBRateProvider) Save(table *models.RateTable) {
	ratesJSON, err := json.Marshal(table.Rates)
	if err != nil {
		logger.L.Warn("Failed to encode rates for persistence", "error", err)
		return
	}
	_, err = p.DB.Exec(`INSERT INTO exchange_rates (id, base, rates, fetched_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET base = excluded.base, rates = excluded.rates, fetched_at = excluded.fetched_at`,
		table.Base, string(ratesJSON), table.FetchedAt.UnixMilli())
	if err != nil {
		logger.L.Warn("Failed to persist currency rates", "error", err)
	}
}

// StaticRateProvider is the terminal fallback: fixed approximate constants.
type StaticRateProvider struct{}

func (p *StaticRateProvider) Name() string { return "static" }

func (p *StaticRateProvider) Fetch(ctx context.Context) (*models.RateTable, error) {
	return &models.RateTable{
		Base: "USD",
		Rates: map[string]float64{
			"USD": 1,
			"INR": 87.0,
			"EUR": 0.92,
			"GBP": 0.79,
			"JPY": 147.0,
			"AUD": 1.52,
		},
		FetchedAt: time.Now().UTC(),
	}, nil
}
