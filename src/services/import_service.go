package services

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/models"
	"github.com/username/tradeclarity/backend/src/parsers"
	"github.com/username/tradeclarity/backend/src/security/validation"
	"github.com/username/tradeclarity/backend/src/transformers"
)

const ckLatestImportResult = "agg_latest_import_result_user_%s"

// importServiceImpl wires the CSV parser, the trade store and cache
// invalidation together for one upload.
type importServiceImpl struct {
	parser       *parsers.CSVTradeParser
	store        TradeStore
	resultMemo   *cache.Cache
	memoLifetime time.Duration
}

func NewImportService(parser *parsers.CSVTradeParser, store TradeStore, resultMemo *cache.Cache) ImportService {
	return &importServiceImpl{
		parser:       parser,
		store:        store,
		resultMemo:   resultMemo,
		memoLifetime: 15 * time.Minute,
	}
}

func (s *importServiceImpl) ProcessCSVUpload(raw string, userID, exchange, accountType string, mapping *parsers.ColumnMapping) (*ImportResult, error) {
	start := time.Now()
	logger.L.Info("ProcessCSVUpload START", "userID", userID, "exchange", exchange, "accountType", accountType)

	// Strips BOMs and control characters some exchange exports carry.
	raw = validation.StripUnprintable(raw)

	header := parsers.SplitHeader(firstLine(raw))
	resolved, err := parsers.ResolveMapping(mapping, exchange, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	parsed, err := s.parser.Parse(raw, resolved, exchange, accountType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	// Empty streams marshal as [] rather than null; a futures-only upload
	// still returns an array-valued spotTrades.
	result := &ImportResult{
		SpotTrades:    []models.SpotTradePayload{},
		FuturesIncome: []models.FuturesIncomePayload{},
		AccountType:   parsed.AccountType,
		TotalRows:     parsed.TotalRows,
		SkippedRows:   parsed.SkippedRows,
	}

	insertedTrades, dupTrades, err := s.store.InsertTrades(userID, parsed.SpotTrades)
	if err != nil {
		return nil, fmt.Errorf("persisting spot trades: %w", err)
	}
	insertedIncome, dupIncome, err := s.store.InsertFuturesIncome(userID, parsed.FuturesIncome)
	if err != nil {
		return nil, fmt.Errorf("persisting futures income: %w", err)
	}
	result.Inserted = insertedTrades + insertedIncome
	result.Duplicates = dupTrades + dupIncome

	for _, t := range parsed.SpotTrades {
		result.SpotTrades = append(result.SpotTrades, transformers.SpotPayloadFromTrade(t))
	}
	for _, r := range parsed.FuturesIncome {
		result.FuturesIncome = append(result.FuturesIncome, transformers.FuturesPayloadFromRecord(r))
	}

	// Any successful ingest invalidates the analytics cache row outright; the
	// next compute request rebuilds it against the new trade set.
	if result.Inserted > 0 {
		if err := s.store.DeleteAnalyticsCache(userID); err != nil {
			logger.L.Warn("Failed to invalidate analytics cache after import", "userID", userID, "error", err)
		}
	}

	s.resultMemo.Set(fmt.Sprintf(ckLatestImportResult, userID), result, s.memoLifetime)

	logger.L.Info("ProcessCSVUpload END", "userID", userID,
		"totalRows", result.TotalRows, "inserted", result.Inserted,
		"duplicates", result.Duplicates, "skipped", result.SkippedRows,
		"duration", time.Since(start))
	return result, nil
}

func (s *importServiceImpl) GetLatestImportResult(userID string) (*ImportResult, bool) {
	if v, found := s.resultMemo.Get(fmt.Sprintf(ckLatestImportResult, userID)); found {
		if result, ok := v.(*ImportResult); ok {
			return result, true
		}
	}
	return nil, false
}

func firstLine(raw string) string {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\n' || raw[i] == '\r' {
			return raw[:i]
		}
	}
	return raw
}
