package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"alpatrade/config"
	"alpatrade/internal/dto"
	"alpatrade/pkg/cache"
	"alpatrade/pkg/common"
	"alpatrade/pkg/httpclient"
	"alpatrade/pkg/logger"
)

type MarketDataRepository interface {
	GetBars(ctx context.Context, param dto.GetBarsParam) ([]dto.Bar, error)
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

type marketDataRepository struct {
	httpClient     httpclient.HTTPClient
	cfg            *config.Config
	logger         *logger.Logger
	inmemoryCache  cache.Cache
	requestLimiter *rate.Limiter
}

func NewMarketDataRepository(cfg *config.Config, log *logger.Logger, inmemoryCache cache.Cache) MarketDataRepository {
	secondsPerRequest := time.Minute / time.Duration(cfg.MarketData.MaxRequestPerMin)
	headers := map[string]string{
		"APCA-API-KEY-ID": cfg.MarketData.APIKey,
	}

	return &marketDataRepository{
		httpClient:     httpclient.New(cfg.MarketData.BaseURL, cfg.MarketData.Timeout, headers),
		cfg:            cfg,
		logger:         log,
		inmemoryCache:  inmemoryCache,
		requestLimiter: rate.NewLimiter(rate.Every(secondsPerRequest), 1),
	}
}

// interval identifiers map to the provider's timeframe names.
var timeframeByInterval = map[string]string{
	"1d":  "1Day",
	"60m": "1Hour",
	"30m": "30Min",
	"15m": "15Min",
	"5m":  "5Min",
	"1m":  "1Min",
}

func (r *marketDataRepository) GetBars(ctx context.Context, param dto.GetBarsParam) ([]dto.Bar, error) {
	cacheKey := fmt.Sprintf(common.KeyBars, param.Symbol, param.Interval, param.Start.Unix())
	if bars, found := cache.GetTyped[[]dto.Bar](r.inmemoryCache, cacheKey); found {
		return bars, nil
	}

	timeframe, ok := timeframeByInterval[param.Interval]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported interval %q", dto.ErrInvalidParameter, param.Interval)
	}

	if err := r.requestLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/v2/stocks/%s/bars", param.Symbol)
	queryParams := map[string]string{
		"timeframe":  timeframe,
		"start":      param.Start.Format(time.RFC3339),
		"end":        param.End.Format(time.RFC3339),
		"adjustment": "split",
		"limit":      "10000",
	}

	var barsResp dto.BarsAPIResponse
	resp, err := r.httpClient.Get(ctx, endpoint, queryParams, nil, &barsResp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", param.Symbol, err)
	}
	if resp.StatusCode != http.StatusOK {
		r.logger.ErrorContext(ctx, "Market data API returned non-OK status",
			logger.StringField("symbol", param.Symbol),
			logger.IntField("status_code", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: bars request for %s returned status %d",
			dto.ErrDataUnavailable, param.Symbol, resp.StatusCode)
	}

	bars := make([]dto.Bar, 0, len(barsResp.Bars))
	for _, b := range barsResp.Bars {
		bars = append(bars, dto.Bar{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	r.inmemoryCache.Set(cacheKey, bars, r.cfg.MarketData.CacheTTL)
	return bars, nil
}

func (r *marketDataRepository) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	cacheKey := fmt.Sprintf(common.KeyPrice, symbol, time.Now().Unix()/60)
	if price, found := cache.GetTyped[float64](r.inmemoryCache, cacheKey); found {
		return price, nil
	}

	if err := r.requestLimiter.Wait(ctx); err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("/v2/stocks/%s/trades/latest", symbol)
	var tradeResp dto.LatestTradeAPIResponse
	resp, err := r.httpClient.Get(ctx, endpoint, nil, nil, &tradeResp)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch latest price for %s: %w", symbol, err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: latest trade for %s returned status %d",
			dto.ErrDataUnavailable, symbol, resp.StatusCode)
	}
	if tradeResp.Trade.Price <= 0 {
		return 0, fmt.Errorf("%w: no trade price for %s", dto.ErrDataUnavailable, symbol)
	}

	r.inmemoryCache.Set(cacheKey, tradeResp.Trade.Price, time.Minute)
	return tradeResp.Trade.Price, nil
}
