package services

import (
	"fmt"

	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/models"
	"github.com/username/tradeclarity/backend/src/processors"
)

// portfolioServiceImpl gathers the latest snapshot of every connection and
// hands them to the aggregator. A failed lookup for one connection is logged
// and skipped; the aggregate is built from whatever remains.
type portfolioServiceImpl struct {
	store      TradeStore
	aggregator *processors.PortfolioAggregator
}

func NewPortfolioService(store TradeStore, aggregator *processors.PortfolioAggregator) PortfolioService {
	return &portfolioServiceImpl{store: store, aggregator: aggregator}
}

func (s *portfolioServiceImpl) GetAggregatedPortfolio(userID string) (*models.AggregatedPortfolio, error) {
	connections, err := s.store.ListConnections(userID)
	if err != nil {
		return nil, fmt.Errorf("listing connections for portfolio: %w", err)
	}

	var snapshots []models.HoldingSnapshot
	for _, conn := range connections {
		snap, err := s.store.LatestSnapshotForConnection(userID, conn.ID)
		if err != nil {
			logger.L.Warn("Skipping connection in portfolio aggregation",
				"userID", userID, "connectionID", conn.ID, "error", err)
			continue
		}
		if snap != nil {
			snapshots = append(snapshots, *snap)
		}
	}

	return s.aggregator.Aggregate(snapshots), nil
}
