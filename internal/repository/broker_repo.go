package repository

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"alpatrade/config"
	"alpatrade/internal/dto"
	"alpatrade/pkg/cache"
	"alpatrade/pkg/common"
	"alpatrade/pkg/httpclient"
	"alpatrade/pkg/logger"
)

type BrokerRepository interface {
	GetAccount(ctx context.Context) (*dto.Account, error)
	GetPositions(ctx context.Context) ([]dto.Position, error)
	PlaceOrder(ctx context.Context, req dto.OrderRequest, extendedHours bool) (*dto.Order, error)
	GetOrder(ctx context.Context, orderID string) (*dto.Order, error)
	ClosePosition(ctx context.Context, symbol string) (*dto.Order, error)
	GetFills(ctx context.Context, after time.Time) ([]dto.Fill, error)
}

type brokerRepository struct {
	httpClient    httpclient.HTTPClient
	cfg           *config.Config
	logger        *logger.Logger
	inmemoryCache cache.Cache
}

func NewBrokerRepository(cfg *config.Config, log *logger.Logger, inmemoryCache cache.Cache) BrokerRepository {
	headers := map[string]string{
		"APCA-API-KEY-ID":     cfg.Broker.APIKey,
		"APCA-API-SECRET-KEY": cfg.Broker.APISecret,
	}

	return &brokerRepository{
		httpClient:    httpclient.New(cfg.Broker.BaseURL, cfg.Broker.Timeout, headers),
		cfg:           cfg,
		logger:        log,
		inmemoryCache: inmemoryCache,
	}
}

func (r *brokerRepository) GetAccount(ctx context.Context) (*dto.Account, error) {
	if acct, found := cache.GetTyped[*dto.Account](r.inmemoryCache, common.KeyAccount); found {
		return acct, nil
	}

	var apiAcct dto.AccountAPIModel
	resp, err := r.httpClient.Get(ctx, "/v2/account", nil, nil, &apiAcct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dto.ErrBrokerUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: account request returned status %d", dto.ErrBrokerUnavailable, resp.StatusCode)
	}

	acct := &dto.Account{
		Equity:           parseAPIFloat(apiAcct.Equity),
		BuyingPower:      parseAPIFloat(apiAcct.BuyingPower),
		PortfolioValue:   parseAPIFloat(apiAcct.PortfolioValue),
		DayTradeCount:    apiAcct.DayTradeCount,
		PatternDayTrader: apiAcct.PatternDayTrader,
		TradingBlocked:   apiAcct.TradingBlocked,
	}

	r.inmemoryCache.Set(common.KeyAccount, acct, 30*time.Second)
	return acct, nil
}

func (r *brokerRepository) GetPositions(ctx context.Context) ([]dto.Position, error) {
	var apiPositions []dto.PositionAPIModel
	resp, err := r.httpClient.Get(ctx, "/v2/positions", nil, nil, &apiPositions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dto.ErrBrokerUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: positions request returned status %d", dto.ErrBrokerUnavailable, resp.StatusCode)
	}

	positions := make([]dto.Position, 0, len(apiPositions))
	for _, p := range apiPositions {
		positions = append(positions, dto.Position{
			Symbol:        p.Symbol,
			Qty:           parseAPIFloat(p.Qty),
			AvgEntryPrice: parseAPIFloat(p.AvgEntryPrice),
			CurrentPrice:  parseAPIFloat(p.CurrentPrice),
			UnrealizedPnL: parseAPIFloat(p.UnrealizedPnL),
		})
	}
	return positions, nil
}

// PlaceOrder submits a market day order. The account cache is dropped so the
// next read reflects the new buying power.
func (r *brokerRepository) PlaceOrder(ctx context.Context, req dto.OrderRequest, extendedHours bool) (*dto.Order, error) {
	payload := dto.PlaceOrderAPIRequest{
		Symbol:        req.Symbol,
		Qty:           strconv.Itoa(req.Qty),
		Side:          req.Side,
		Type:          "market",
		TimeInForce:   "day",
		ExtendedHours: extendedHours,
	}

	var apiOrder dto.OrderAPIModel
	resp, err := r.httpClient.Post(ctx, "/v2/orders", payload, nil, &apiOrder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dto.ErrBrokerUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		r.logger.ErrorContext(ctx, "Broker rejected order",
			logger.StringField("symbol", req.Symbol),
			logger.StringField("side", req.Side),
			logger.IntField("status_code", resp.StatusCode),
			logger.StringField("body", string(resp.Body)),
		)
		return nil, fmt.Errorf("%w: order for %s returned status %d", dto.ErrBrokerUnavailable, req.Symbol, resp.StatusCode)
	}

	r.inmemoryCache.Delete(common.KeyAccount)
	return toOrder(apiOrder), nil
}

func (r *brokerRepository) GetOrder(ctx context.Context, orderID string) (*dto.Order, error) {
	var apiOrder dto.OrderAPIModel
	resp, err := r.httpClient.Get(ctx, "/v2/orders/"+orderID, nil, nil, &apiOrder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dto.ErrBrokerUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: order %s returned status %d", dto.ErrBrokerUnavailable, orderID, resp.StatusCode)
	}
	return toOrder(apiOrder), nil
}

func (r *brokerRepository) ClosePosition(ctx context.Context, symbol string) (*dto.Order, error) {
	var apiOrder dto.OrderAPIModel
	resp, err := r.httpClient.Delete(ctx, "/v2/positions/"+symbol, nil, &apiOrder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dto.ErrBrokerUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("%w: close %s returned status %d", dto.ErrBrokerUnavailable, symbol, resp.StatusCode)
	}

	r.inmemoryCache.Delete(common.KeyAccount)
	return toOrder(apiOrder), nil
}

func (r *brokerRepository) GetFills(ctx context.Context, after time.Time) ([]dto.Fill, error) {
	queryParams := map[string]string{
		"activity_types": "FILL",
		"after":          after.Format(time.RFC3339),
		"page_size":      "100",
	}

	var activities []dto.ActivityAPIModel
	resp, err := r.httpClient.Get(ctx, "/v2/account/activities", queryParams, nil, &activities)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dto.ErrBrokerUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: activities request returned status %d", dto.ErrBrokerUnavailable, resp.StatusCode)
	}

	fills := make([]dto.Fill, 0, len(activities))
	for _, a := range activities {
		fills = append(fills, dto.Fill{
			Symbol: a.Symbol,
			Side:   a.Side,
			Qty:    parseAPIFloat(a.Qty),
			Price:  parseAPIFloat(a.Price),
			At:     a.TransactionTime,
		})
	}
	return fills, nil
}

func toOrder(m dto.OrderAPIModel) *dto.Order {
	order := &dto.Order{
		ID:          m.ID,
		Symbol:      m.Symbol,
		Side:        m.Side,
		Qty:         parseAPIFloat(m.Qty),
		Status:      m.Status,
		SubmittedAt: m.SubmittedAt,
	}
	if m.FilledAvgPrice != nil {
		order.FilledPrice = parseAPIFloat(*m.FilledAvgPrice)
	}
	return order
}

func parseAPIFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
