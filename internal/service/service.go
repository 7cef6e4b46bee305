package service

import (
	"alpatrade/config"
	"alpatrade/internal/bus"
	"alpatrade/internal/repository"
	"alpatrade/internal/strategy"
	"alpatrade/pkg/logger"
)

type Service struct {
	BacktestRunner BacktestRunner
	Validator      Validator
	PaperTrader    PaperTrader
	Reconciler     Reconciler
	Reporter       Reporter
	Orchestrator   Orchestrator
}

func NewService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	msgBus bus.Bus,
) *Service {
	engine := strategy.NewEngine(log)

	backtestRunner := NewBacktestRunner(cfg, log, engine,
		repo.MarketDataRepo, repo.RunRepo, repo.VariationRepo, repo.TradeRepo, repo.UnitOfWork)
	validator := NewValidator(cfg, log,
		repo.MarketDataRepo, repo.TradeRepo, repo.ValidationRepo)
	paperTrader := NewPaperTrader(cfg, log,
		repo.MarketDataRepo, repo.BrokerRepo, repo.RunRepo, repo.TradeRepo, msgBus)
	reconciler := NewReconciler(cfg, log, repo.BrokerRepo, repo.TradeRepo)
	reporter := NewReporter(cfg, log,
		repo.RunRepo, repo.VariationRepo, repo.TradeRepo, repo.ValidationRepo, repo.AdvisorRepo)
	orchestrator := NewOrchestrator(cfg, log,
		backtestRunner, validator, paperTrader, reconciler, reporter, repo.RunRepo, msgBus)

	return &Service{
		BacktestRunner: backtestRunner,
		Validator:      validator,
		PaperTrader:    paperTrader,
		Reconciler:     reconciler,
		Reporter:       reporter,
		Orchestrator:   orchestrator,
	}
}
