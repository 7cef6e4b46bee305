package service

import (
	"encoding/json"

	"gorm.io/datatypes"

	"alpatrade/internal/dto"
	"alpatrade/internal/model"
	"alpatrade/pkg/utils"
)

func toTradeModel(t dto.Trade) model.Trade {
	m := model.Trade{
		RunID:        t.RunID,
		TradeType:    t.TradeType,
		Symbol:       t.Symbol,
		Direction:    t.Direction,
		Shares:       t.Shares,
		EntryTime:    t.EntryTime,
		EntryPrice:   t.EntryPrice,
		ExitTime:     t.ExitTime,
		ExitPrice:    t.ExitPrice,
		HitTarget:    t.HitTarget,
		HitStop:      t.HitStop,
		PnL:          t.PnL,
		PnLPct:       t.PnLPct,
		CapitalAfter: t.CapitalAfter,
		Fees:         t.Fees,
		Reason:       t.Reason,
	}
	if t.TargetPrice > 0 {
		m.TargetPrice = utils.ToPointer(t.TargetPrice)
	}
	if t.StopPrice > 0 {
		m.StopPrice = utils.ToPointer(t.StopPrice)
	}
	if t.OrderRef != "" {
		m.OrderRef = utils.ToPointer(t.OrderRef)
	}
	return m
}

func toTradeDTO(m model.Trade) dto.Trade {
	t := dto.Trade{
		RunID:        m.RunID,
		TradeType:    m.TradeType,
		Symbol:       m.Symbol,
		Direction:    m.Direction,
		Shares:       m.Shares,
		EntryTime:    m.EntryTime,
		EntryPrice:   m.EntryPrice,
		ExitTime:     m.ExitTime,
		ExitPrice:    m.ExitPrice,
		HitTarget:    m.HitTarget,
		HitStop:      m.HitStop,
		PnL:          m.PnL,
		PnLPct:       m.PnLPct,
		CapitalAfter: m.CapitalAfter,
		Fees:         m.Fees,
		Reason:       m.Reason,
	}
	if m.TargetPrice != nil {
		t.TargetPrice = *m.TargetPrice
	}
	if m.StopPrice != nil {
		t.StopPrice = *m.StopPrice
	}
	if m.OrderRef != nil {
		t.OrderRef = *m.OrderRef
	}
	return t
}

func toTradeModels(trades []dto.Trade) []model.Trade {
	out := make([]model.Trade, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeModel(t))
	}
	return out
}

func toTradeDTOs(trades []model.Trade) []dto.Trade {
	out := make([]dto.Trade, 0, len(trades))
	for _, m := range trades {
		out = append(out, toTradeDTO(m))
	}
	return out
}

func toVariationModel(v dto.VariationResult) model.ParameterVariation {
	paramsJSON, _ := json.Marshal(v.Params)
	m := model.ParameterVariation{
		RunID:          v.RunID,
		VariationIndex: v.VariationIndex,
		Slug:           v.Slug,
		Params:         datatypes.JSON(paramsJSON),
		TotalReturn:    v.Metrics.TotalReturn,
		TotalPnL:       v.Metrics.TotalPnL,
		SharpeRatio:    v.Metrics.SharpeRatio,
		MaxDrawdown:    v.Metrics.MaxDrawdown,
		WinRate:        v.Metrics.WinRate,
		TotalTrades:    v.Metrics.TotalTrades,
		IsBest:         v.IsBest,
	}
	if v.Err != "" {
		m.ErrorMessage = utils.ToPointer(v.Err)
	}
	return m
}

func toVariationDTO(m model.ParameterVariation) dto.VariationResult {
	v := dto.VariationResult{
		RunID:          m.RunID,
		VariationIndex: m.VariationIndex,
		Slug:           m.Slug,
		IsBest:         m.IsBest,
		Metrics: dto.Metrics{
			TotalReturn: m.TotalReturn,
			TotalPnL:    m.TotalPnL,
			SharpeRatio: m.SharpeRatio,
			MaxDrawdown: m.MaxDrawdown,
			WinRate:     m.WinRate,
			TotalTrades: m.TotalTrades,
		},
	}
	if len(m.Params) > 0 {
		_ = json.Unmarshal(m.Params, &v.Params)
	}
	if m.ErrorMessage != nil {
		v.Err = *m.ErrorMessage
	}
	return v
}

func toVerdictModel(v dto.ValidationVerdict) model.ValidationVerdict {
	anomalies, _ := json.Marshal(v.Anomalies)
	corrections, _ := json.Marshal(v.Corrections)
	suggestions, _ := json.Marshal(v.Suggestions)
	return model.ValidationVerdict{
		RunID:              v.RunID,
		Source:             v.Source,
		Status:             v.Status,
		TotalTradesChecked: v.TotalTradesChecked,
		AnomaliesFound:     v.AnomaliesFound,
		AnomaliesCorrected: v.AnomaliesCorrected,
		IterationsUsed:     v.IterationsUsed,
		Anomalies:          datatypes.JSON(anomalies),
		Corrections:        datatypes.JSON(corrections),
		Suggestions:        datatypes.JSON(suggestions),
	}
}

func toVerdictDTO(m model.ValidationVerdict) dto.ValidationVerdict {
	v := dto.ValidationVerdict{
		RunID:              m.RunID,
		Source:             m.Source,
		Status:             m.Status,
		TotalTradesChecked: m.TotalTradesChecked,
		AnomaliesFound:     m.AnomaliesFound,
		AnomaliesCorrected: m.AnomaliesCorrected,
		IterationsUsed:     m.IterationsUsed,
	}
	if len(m.Anomalies) > 0 {
		_ = json.Unmarshal(m.Anomalies, &v.Anomalies)
	}
	if len(m.Corrections) > 0 {
		_ = json.Unmarshal(m.Corrections, &v.Corrections)
	}
	if len(m.Suggestions) > 0 {
		_ = json.Unmarshal(m.Suggestions, &v.Suggestions)
	}
	return v
}

func toRunSummaryRow(m model.Run) dto.RunSummaryRow {
	return dto.RunSummaryRow{
		RunID:        m.RunID,
		Mode:         m.Mode,
		Strategy:     m.Strategy,
		StrategySlug: m.StrategySlug,
		Status:       m.Status,
		TotalPnL:     m.TotalPnL,
		TotalReturn:  m.TotalReturn,
		SharpeRatio:  m.SharpeRatio,
		WinRate:      m.WinRate,
		TotalTrades:  m.TotalTrades,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
	}
}
