package model

import (
	"time"

	"gorm.io/datatypes"
)

type ParameterVariation struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	RunID          string         `gorm:"not null;index" json:"run_id"`
	VariationIndex int            `gorm:"not null" json:"variation_index"`
	Slug           string         `gorm:"not null" json:"slug"`
	Params         datatypes.JSON `gorm:"type:jsonb" json:"params"`
	TotalReturn    float64        `gorm:"not null;default:0" json:"total_return"`
	TotalPnL       float64        `gorm:"not null;default:0" json:"total_pnl"`
	SharpeRatio    float64        `gorm:"not null;default:0" json:"sharpe_ratio"`
	MaxDrawdown    float64        `gorm:"not null;default:0" json:"max_drawdown"`
	WinRate        float64        `gorm:"not null;default:0" json:"win_rate"`
	TotalTrades    int            `gorm:"not null;default:0" json:"total_trades"`
	IsBest         bool           `gorm:"not null;default:false" json:"is_best"`
	ErrorMessage   *string        `json:"error_message"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ParameterVariation) TableName() string {
	return "parameter_variations"
}
