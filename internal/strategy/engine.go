package strategy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"alpatrade/internal/dto"
	"alpatrade/pkg/logger"
)

// SimulationInput carries everything a strategy needs to replay a series.
// Data is keyed by symbol; PDT is nil when day-trade protection is off.
type SimulationInput struct {
	Symbols        []string
	Series         dto.PriceSeries
	Start          time.Time
	End            time.Time
	InitialCapital float64
	Params         dto.StrategyParams
	PDT            *PDTTracker
	IncludeTAF     bool
	IncludeCAT     bool
	ExtendedHours  bool
	ExitPolicy     dto.ExitPolicy
	Lookback       int
}

// SimulationResult is the outcome of one strategy replay over one parameter
// combination.
type SimulationResult struct {
	Trades         []dto.Trade
	Metrics        dto.Metrics
	Equity         []EquityPoint
	SymbolsSkipped []string
}

// Strategy simulates one trading style over historical bars. Implementations
// must be deterministic: the same input always yields the same trades.
type Strategy interface {
	Name() string
	Simulate(ctx context.Context, in SimulationInput) (*SimulationResult, error)
}

// Engine resolves strategy identifiers to implementations.
type Engine struct {
	log        *logger.Logger
	strategies map[string]Strategy
}

func NewEngine(log *logger.Logger) *Engine {
	e := &Engine{
		log:        log,
		strategies: make(map[string]Strategy),
	}
	e.Register(NewBuyTheDipStrategy(log))
	e.Register(NewMomentumStrategy(log))
	e.Register(NewVIXStrategy(log))
	e.Register(NewBoxWedgeStrategy(log))
	return e
}

func (e *Engine) Register(s Strategy) {
	e.strategies[s.Name()] = s
}

// Get returns the strategy registered under id.
func (e *Engine) Get(id string) (Strategy, error) {
	s, ok := e.strategies[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q", dto.ErrInvalidParameter, id)
	}
	return s, nil
}

// Simulate validates the params union and dispatches to the matching
// strategy.
func (e *Engine) Simulate(ctx context.Context, in SimulationInput) (*SimulationResult, error) {
	if err := in.Params.Validate(); err != nil {
		return nil, err
	}
	s, err := e.Get(in.Params.StrategyID())
	if err != nil {
		return nil, err
	}
	return s.Simulate(ctx, in)
}

// unionTimestamps merges the bar timestamps of all given symbols into one
// sorted slice clipped to [start, end].
func unionTimestamps(bars map[string][]dto.Bar, symbols []string, start, end time.Time) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, sym := range symbols {
		for _, b := range bars[sym] {
			if b.Timestamp.Before(start) || b.Timestamp.After(end) {
				continue
			}
			seen[b.Timestamp] = struct{}{}
		}
	}
	out := make([]time.Time, 0, len(seen))
	for ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// barAt returns the bar with the exact timestamp, or false.
func barAt(bars []dto.Bar, ts time.Time) (dto.Bar, bool) {
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Timestamp.Before(ts) })
	if i < len(bars) && bars[i].Timestamp.Equal(ts) {
		return bars[i], true
	}
	return dto.Bar{}, false
}

// lastBarAtOrBefore returns the most recent bar at or before ts, or false
// when the series has no bar that early.
func lastBarAtOrBefore(bars []dto.Bar, ts time.Time) (dto.Bar, bool) {
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp.After(ts) })
	if i == 0 {
		return dto.Bar{}, false
	}
	return bars[i-1], true
}

// barsUpTo returns the prefix of bars with timestamps at or before ts.
func barsUpTo(bars []dto.Bar, ts time.Time) []dto.Bar {
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp.After(ts) })
	return bars[:i]
}

// highestHigh returns the maximum high of the last n bars of the slice.
func highestHigh(bars []dto.Bar, n int) float64 {
	if len(bars) == 0 {
		return 0
	}
	start := len(bars) - n
	if start < 0 {
		start = 0
	}
	high := bars[start].High
	for _, b := range bars[start+1:] {
		if b.High > high {
			high = b.High
		}
	}
	return high
}

// lowestLow returns the minimum low of the last n bars of the slice.
func lowestLow(bars []dto.Bar, n int) float64 {
	if len(bars) == 0 {
		return 0
	}
	start := len(bars) - n
	if start < 0 {
		start = 0
	}
	low := bars[start].Low
	for _, b := range bars[start+1:] {
		if b.Low < low {
			low = b.Low
		}
	}
	return low
}
