package repository

import (
	"gorm.io/gorm"

	"alpatrade/config"
	"alpatrade/pkg/cache"
	"alpatrade/pkg/logger"
)

type Repository struct {
	MarketDataRepo MarketDataRepository
	BrokerRepo     BrokerRepository
	RunRepo        RunRepository
	TradeRepo      TradeRepository
	VariationRepo  VariationRepository
	ValidationRepo ValidationRepository
	AdvisorRepo    AdvisorRepository
	UnitOfWork     UnitOfWork
}

func NewRepository(cfg *config.Config, db *gorm.DB, log *logger.Logger, inmemoryCache cache.Cache) (*Repository, error) {
	advisorRepo, err := NewAdvisorRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	return &Repository{
		MarketDataRepo: NewMarketDataRepository(cfg, log, inmemoryCache),
		BrokerRepo:     NewBrokerRepository(cfg, log, inmemoryCache),
		RunRepo:        NewRunRepository(db),
		TradeRepo:      NewTradeRepository(db),
		VariationRepo:  NewVariationRepository(db),
		ValidationRepo: NewValidationRepository(db),
		AdvisorRepo:    advisorRepo,
		UnitOfWork:     NewUnitOfWork(db),
	}, nil
}
