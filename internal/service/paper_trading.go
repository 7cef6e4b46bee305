package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"alpatrade/config"
	"alpatrade/internal/bus"
	"alpatrade/internal/dto"
	"alpatrade/internal/model"
	"alpatrade/internal/repository"
	"alpatrade/internal/strategy"
	"alpatrade/pkg/common"
	"alpatrade/pkg/logger"
	"alpatrade/pkg/utils"
)

// PaperTrader polls near-real-time data and turns strategy decisions into
// immediate-execution broker orders. Start blocks until the session duration
// elapses or the context is cancelled.
type PaperTrader interface {
	Start(ctx context.Context, req dto.PaperTradeStart) (*dto.PaperTradeResult, error)
}

type paperTrader struct {
	cfg            *config.Config
	log            *logger.Logger
	marketDataRepo repository.MarketDataRepository
	brokerRepo     repository.BrokerRepository
	runRepo        repository.RunRepository
	tradeRepo      repository.TradeRepository
	msgBus         bus.Bus

	now func() time.Time
}

func NewPaperTrader(
	cfg *config.Config,
	log *logger.Logger,
	marketDataRepo repository.MarketDataRepository,
	brokerRepo repository.BrokerRepository,
	runRepo repository.RunRepository,
	tradeRepo repository.TradeRepository,
	msgBus bus.Bus,
) PaperTrader {
	return &paperTrader{
		cfg:            cfg,
		log:            log,
		marketDataRepo: marketDataRepo,
		brokerRepo:     brokerRepo,
		runRepo:        runRepo,
		tradeRepo:      tradeRepo,
		msgBus:         msgBus,
		now:            time.Now,
	}
}

type paperPosition struct {
	trade   dto.Trade
	maxExit time.Time
}

type paperSession struct {
	req         dto.PaperTradeStart
	sessionID   string
	pdt         *strategy.PDTTracker
	positions   map[string]*paperPosition
	trades      []dto.Trade
	daily       map[string]*dto.DailyPnL
	startedAt   time.Time
	exitedToday map[string]bool
	lastDay     string
}

func (s *paperTrader) Start(ctx context.Context, req dto.PaperTradeStart) (*dto.PaperTradeResult, error) {
	s.applyDefaults(&req)
	if err := req.Params.Validate(); err != nil {
		return nil, err
	}

	account, err := s.brokerRepo.GetAccount(ctx)
	if err != nil {
		return nil, err
	}
	status := strategy.CheckAccountPDTStatus(*account)
	if status.Blocked {
		return nil, fmt.Errorf("%w: %s", dto.ErrComplianceViolation, status.Reason)
	}

	pdtEnabled := account.Equity < common.PDTEquityThreshold
	if req.PDTProtection != nil {
		pdtEnabled = *req.PDTProtection
	}

	sess := &paperSession{
		req:         req,
		sessionID:   uuid.NewString(),
		positions:   make(map[string]*paperPosition),
		daily:       make(map[string]*dto.DailyPnL),
		startedAt:   s.now().UTC(),
		exitedToday: make(map[string]bool),
	}
	if pdtEnabled {
		sess.pdt = strategy.NewPDTTracker()
		s.bootstrapPDT(ctx, sess.pdt)
	}

	if err := s.createRun(ctx, req); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "paper trading session started",
		logger.StringField("run_id", req.RunID),
		logger.StringField("session_id", sess.sessionID),
		logger.Field("duration", req.Duration),
		logger.Field("poll_interval", req.PollInterval))

	cancelled := false
	ticker := time.NewTicker(req.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(req.Duration)
	defer deadline.Stop()

	s.poll(ctx, sess)
loop:
	for {
		select {
		case <-ctx.Done():
			cancelled = true
			break loop
		case <-deadline.C:
			break loop
		case <-ticker.C:
			s.poll(ctx, sess)
		}
	}

	return s.finish(ctx, sess, cancelled)
}

// bootstrapPDT preloads the tracker with same-day round trips recorded by
// earlier paper sessions, so the rolling window survives restarts. Seven
// calendar days covers the 5-business-day window.
func (s *paperTrader) bootstrapPDT(ctx context.Context, tracker *strategy.PDTTracker) {
	since := s.now().UTC().AddDate(0, 0, -7)
	tradeType := dto.TradeTypePaper
	stored, err := s.tradeRepo.Get(ctx, repository.GetTradesParam{
		TradeType: &tradeType,
		ExitSince: &since,
	})
	if err != nil {
		s.log.WarnContext(ctx, "pdt bootstrap query failed", logger.ErrorField(err))
		return
	}

	var history []strategy.DayTrade
	for _, t := range stored {
		if t.ExitTime == nil || !utils.SameCalendarDay(t.EntryTime, *t.ExitTime) {
			continue
		}
		history = append(history, strategy.DayTrade{Date: *t.ExitTime, Symbol: t.Symbol})
	}
	if len(history) == 0 {
		return
	}
	tracker.Bootstrap(history)
	s.log.InfoContext(ctx, "pdt tracker bootstrapped from trade history",
		logger.IntField("day_trades", len(history)))
}

func (s *paperTrader) applyDefaults(req *dto.PaperTradeStart) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.Duration <= 0 {
		req.Duration = s.cfg.PaperTrading.Duration
	}
	if req.PollInterval <= 0 {
		req.PollInterval = s.cfg.PaperTrading.PollInterval
	}
	if req.CapitalPerTrade <= 0 {
		req.CapitalPerTrade = s.cfg.PaperTrading.CapitalPerTrade
	}
	if req.Strategy == "" {
		req.Strategy = req.Params.StrategyID()
	}
}

func (s *paperTrader) createRun(ctx context.Context, req dto.PaperTradeStart) error {
	if _, err := s.runRepo.GetByRunID(ctx, req.RunID); err == nil {
		return nil
	}
	symbolsJSON, _ := json.Marshal(req.Symbols)
	configJSON, _ := json.Marshal(req)
	return s.runRepo.Create(ctx, &model.Run{
		RunID:     req.RunID,
		Mode:      dto.ModePaper,
		Strategy:  req.Strategy,
		Status:    dto.RunStatusRunning,
		Symbols:   datatypes.JSON(symbolsJSON),
		Config:    datatypes.JSON(configJSON),
		StartedAt: s.now().UTC(),
	})
}

// poll runs one evaluation cycle: exits first so freed capital and day-trade
// headroom are visible to entries in the same cycle.
func (s *paperTrader) poll(ctx context.Context, sess *paperSession) {
	now := s.now().In(utils.GetEasternLocation())
	if !utils.IsMarketOpen(now, sess.req.ExtendedHours) {
		return
	}

	day := now.Format("2006-01-02")
	if day != sess.lastDay {
		sess.lastDay = day
		sess.exitedToday = make(map[string]bool)
	}

	s.pollExits(ctx, sess, now)
	s.pollEntries(ctx, sess, now)
}

func (s *paperTrader) pollExits(ctx context.Context, sess *paperSession, now time.Time) {
	for _, symbol := range sortedPositionKeys(sess.positions) {
		pos := sess.positions[symbol]
		price, err := s.marketDataRepo.GetLatestPrice(ctx, symbol)
		if err != nil {
			s.log.WarnContext(ctx, "no quote for exit check, retrying next poll",
				logger.StringField("symbol", symbol), logger.ErrorField(err))
			continue
		}

		hitTarget := pos.trade.TargetPrice > 0 && price >= pos.trade.TargetPrice
		hitStop := pos.trade.StopPrice > 0 && price <= pos.trade.StopPrice
		expired := !now.Before(pos.maxExit)
		if !hitTarget && !hitStop && !expired {
			continue
		}

		sameDay := utils.SameCalendarDay(pos.trade.EntryTime, now)
		if sameDay && sess.pdt != nil && !sess.pdt.CanDayTrade(now) {
			s.log.InfoContext(ctx, "same-day exit suppressed by day-trade ceiling",
				logger.StringField("symbol", symbol),
				logger.IntField("window_count", sess.pdt.CountInWindow(now)))
			continue
		}

		order, err := s.brokerRepo.PlaceOrder(ctx, dto.OrderRequest{
			Symbol: symbol,
			Side:   common.SideSell,
			Qty:    pos.trade.Shares,
		}, sess.req.ExtendedHours)
		if err != nil {
			s.log.WarnContext(ctx, "sell order failed, retrying next poll",
				logger.StringField("symbol", symbol), logger.ErrorField(err))
			continue
		}

		exitPrice := price
		if order.FilledPrice > 0 {
			exitPrice = order.FilledPrice
		}
		reason := dto.ExitReasonHoldExpired
		if hitStop {
			reason = dto.ExitReasonStopLoss
		}
		if hitTarget && !hitStop {
			reason = dto.ExitReasonTakeProfit
		}

		fees := strategy.CalculateTAFFee(pos.trade.Shares) + 2*strategy.CalculateCATFee(pos.trade.Shares)
		trade := pos.trade
		trade.ExitTime = utils.ToPointer(now.UTC())
		trade.ExitPrice = utils.ToPointer(exitPrice)
		trade.HitTarget = hitTarget && !hitStop
		trade.HitStop = hitStop
		trade.Fees = fees
		trade.PnL = (exitPrice-trade.EntryPrice)*float64(trade.Shares) - fees
		if cost := trade.EntryPrice * float64(trade.Shares); cost > 0 {
			trade.PnLPct = trade.PnL / cost * 100
		}
		trade.OrderRef = order.ID
		trade.Reason = reason

		delete(sess.positions, symbol)
		sess.exitedToday[symbol] = true
		sess.trades = append(sess.trades, trade)
		sess.recordDaily(now, trade.PnL)
		if sameDay && sess.pdt != nil {
			sess.pdt.RecordDayTrade(now, symbol)
		}

		s.log.InfoContext(ctx, "paper position closed",
			logger.StringField("symbol", symbol),
			logger.StringField("reason", reason),
			logger.Float64Field("pnl", trade.PnL))
		s.publishTradeUpdate(ctx, sess, trade)
	}
}

func (s *paperTrader) pollEntries(ctx context.Context, sess *paperSession, now time.Time) {
	for _, symbol := range sess.req.Symbols {
		if _, open := sess.positions[symbol]; open {
			continue
		}
		if sess.exitedToday[symbol] {
			continue
		}

		signal, ok := s.evaluateEntry(ctx, sess, symbol)
		if !ok {
			continue
		}

		shares, err := s.positionSize(ctx, sess, signal.price)
		if err != nil {
			s.log.WarnContext(ctx, "sizing failed, retrying next poll",
				logger.StringField("symbol", symbol), logger.ErrorField(err))
			continue
		}
		if shares <= 0 {
			continue
		}

		order, err := s.brokerRepo.PlaceOrder(ctx, dto.OrderRequest{
			Symbol: symbol,
			Side:   common.SideBuy,
			Qty:    shares,
		}, sess.req.ExtendedHours)
		if err != nil {
			s.log.WarnContext(ctx, "buy order failed, retrying next poll",
				logger.StringField("symbol", symbol), logger.ErrorField(err))
			continue
		}

		entryPrice := signal.price
		if order.FilledPrice > 0 {
			entryPrice = order.FilledPrice
		}
		trade := dto.Trade{
			RunID:       sess.req.RunID,
			TradeType:   dto.TradeTypePaper,
			Symbol:      symbol,
			Direction:   common.DirectionLong,
			Shares:      shares,
			EntryTime:   now.UTC(),
			EntryPrice:  entryPrice,
			TargetPrice: signal.target,
			StopPrice:   signal.stop,
			OrderRef:    order.ID,
		}
		sess.positions[symbol] = &paperPosition{
			trade:   trade,
			maxExit: now.AddDate(0, 0, signal.holdDays),
		}

		s.log.InfoContext(ctx, "paper position opened",
			logger.StringField("symbol", symbol),
			logger.IntField("shares", shares),
			logger.Float64Field("entry", entryPrice))
		s.publishTradeUpdate(ctx, sess, trade)
	}
}

type entrySignal struct {
	price    float64
	target   float64
	stop     float64
	holdDays int
}

// evaluateEntry checks the configured strategy's entry condition against
// fresh data. Scan-based strategies are not pollable and never signal here.
func (s *paperTrader) evaluateEntry(ctx context.Context, sess *paperSession, symbol string) (entrySignal, bool) {
	price, err := s.marketDataRepo.GetLatestPrice(ctx, symbol)
	if err != nil || price <= 0 {
		return entrySignal{}, false
	}

	switch {
	case sess.req.Params.BuyTheDip != nil:
		p := sess.req.Params.BuyTheDip
		high, ok := s.rollingHigh(ctx, symbol, s.cfg.Backtest.LookbackPeriods)
		if !ok || high <= 0 {
			return entrySignal{}, false
		}
		if (high-price)/high < p.DipThreshold {
			return entrySignal{}, false
		}
		return entrySignal{
			price:    price,
			target:   price * (1 + p.TakeProfitPct),
			stop:     price * (1 - p.StopLossPct),
			holdDays: p.HoldDays,
		}, true

	case sess.req.Params.Momentum != nil:
		p := sess.req.Params.Momentum
		base, ok := s.closeNPeriodsAgo(ctx, symbol, p.LookbackPeriod)
		if !ok || base <= 0 {
			return entrySignal{}, false
		}
		// Threshold is in percent, same units as the backtest evaluator.
		if (price-base)/base*100 < p.MomentumThreshold {
			return entrySignal{}, false
		}
		return entrySignal{
			price:    price,
			target:   price * (1 + p.TakeProfitPct),
			stop:     price * (1 - p.StopLossPct),
			holdDays: p.HoldDays,
		}, true

	case sess.req.Params.VIX != nil:
		p := sess.req.Params.VIX
		vix, err := s.marketDataRepo.GetLatestPrice(ctx, strategy.VIXSymbol)
		if err != nil || vix <= p.VIXThreshold {
			return entrySignal{}, false
		}
		return entrySignal{price: price, holdDays: 1}, true

	default:
		s.log.DebugContext(ctx, "strategy has no poll-driven entry signal",
			logger.StringField("strategy", sess.req.Params.StrategyID()))
		return entrySignal{}, false
	}
}

func (s *paperTrader) rollingHigh(ctx context.Context, symbol string, lookback int) (float64, bool) {
	bars, err := s.dailyBars(ctx, symbol, lookback)
	if err != nil || len(bars) < lookback {
		return 0, false
	}
	high := 0.0
	for _, b := range bars[len(bars)-lookback:] {
		high = math.Max(high, b.High)
	}
	return high, true
}

func (s *paperTrader) closeNPeriodsAgo(ctx context.Context, symbol string, n int) (float64, bool) {
	bars, err := s.dailyBars(ctx, symbol, n)
	if err != nil || len(bars) < n {
		return 0, false
	}
	return bars[len(bars)-n].Close, true
}

func (s *paperTrader) dailyBars(ctx context.Context, symbol string, periods int) ([]dto.Bar, error) {
	end := s.now().UTC()
	return s.marketDataRepo.GetBars(ctx, dto.GetBarsParam{
		Symbol:   symbol,
		Start:    end.AddDate(0, 0, -3*periods),
		End:      end,
		Interval: "1d",
	})
}

// positionSize caps the strategy-requested size at a fixed fraction of the
// account's current buying power, whole shares only.
func (s *paperTrader) positionSize(ctx context.Context, sess *paperSession, price float64) (int, error) {
	account, err := s.brokerRepo.GetAccount(ctx)
	if err != nil {
		return 0, err
	}
	capital := math.Min(sess.req.CapitalPerTrade, account.BuyingPower*s.cfg.PaperTrading.MaxBuyingPowerFrac)
	if price <= 0 {
		return 0, nil
	}
	return int(capital / price), nil
}

func (s *paperTrader) publishTradeUpdate(ctx context.Context, sess *paperSession, trade dto.Trade) {
	msg, err := dto.NewMessage(dto.AgentPaperTrader, dto.AgentOrchestrator, dto.MsgTradeUpdate, dto.TradeUpdate{
		RunID:     sess.req.RunID,
		SessionID: sess.sessionID,
		Trade:     trade,
	})
	if err != nil {
		return
	}
	if err := s.msgBus.Publish(ctx, msg); err != nil {
		s.log.WarnContext(ctx, "trade update publish failed", logger.ErrorField(err))
	}
}

func (sess *paperSession) recordDaily(now time.Time, pnl float64) {
	key := now.Format("2006-01-02")
	entry, ok := sess.daily[key]
	if !ok {
		entry = &dto.DailyPnL{Date: utils.TruncateToDay(now)}
		sess.daily[key] = entry
	}
	entry.PnL += pnl
	entry.Trades++
}

// finish persists everything recorded so far, including still-open positions,
// so cancellation never loses trades.
func (s *paperTrader) finish(ctx context.Context, sess *paperSession, cancelled bool) (*dto.PaperTradeResult, error) {
	all := make([]dto.Trade, 0, len(sess.trades)+len(sess.positions))
	all = append(all, sess.trades...)
	for _, symbol := range sortedPositionKeys(sess.positions) {
		all = append(all, sess.positions[symbol].trade)
	}

	totalPnL := 0.0
	wins := 0
	closed := 0
	for _, t := range sess.trades {
		totalPnL += t.PnL
		closed++
		if t.PnL > 0 {
			wins++
		}
	}
	winRate := 0.0
	if closed > 0 {
		winRate = float64(wins) / float64(closed) * 100
	}

	status := dto.RunStatusCompleted
	if cancelled {
		status = dto.RunStatusCancelled
	}

	if len(all) > 0 {
		if err := s.tradeRepo.CreateBatch(ctx, toTradeModels(all)); err != nil {
			s.log.ErrorContext(ctx, "failed to persist paper trades", logger.ErrorField(err))
		}
	}
	if err := s.runRepo.Update(ctx, model.UpdateRunParam{
		Filter: model.UpdateRunFilterParam{RunID: &sess.req.RunID},
		Value: model.UpdateRunValueParam{
			Status:      utils.ToPointer(status),
			TotalPnL:    utils.ToPointer(totalPnL),
			WinRate:     utils.ToPointer(winRate),
			TotalTrades: utils.ToPointer(len(all)),
			CompletedAt: utils.ToPointer(s.now().UTC()),
		},
	}); err != nil {
		s.log.ErrorContext(ctx, "failed to update paper run", logger.ErrorField(err))
	}

	daily := make([]dto.DailyPnL, 0, len(sess.daily))
	for _, d := range sess.daily {
		daily = append(daily, *d)
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].Date.Before(daily[j].Date) })

	s.log.InfoContext(ctx, "paper trading session finished",
		logger.StringField("run_id", sess.req.RunID),
		logger.StringField("status", status),
		logger.IntField("trades", len(all)),
		logger.Float64Field("total_pnl", totalPnL))

	return &dto.PaperTradeResult{
		RunID:       sess.req.RunID,
		SessionID:   sess.sessionID,
		StartedAt:   sess.startedAt,
		EndedAt:     s.now().UTC(),
		Cancelled:   cancelled,
		TotalTrades: len(all),
		TotalPnL:    totalPnL,
		WinRate:     winRate,
		Trades:      all,
		DailyPnL:    daily,
	}, nil
}

func sortedPositionKeys(positions map[string]*paperPosition) []string {
	keys := make([]string, 0, len(positions))
	for k := range positions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
