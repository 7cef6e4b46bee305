package model

import (
	"time"

	"gorm.io/datatypes"
)

type Run struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	RunID        string         `gorm:"not null;uniqueIndex" json:"run_id"`
	Mode         string         `gorm:"not null" json:"mode"`
	Strategy     string         `gorm:"not null" json:"strategy"`
	StrategySlug string         `gorm:"null" json:"strategy_slug"`
	Status       string         `gorm:"not null" json:"status"`
	Symbols      datatypes.JSON `gorm:"type:jsonb" json:"symbols"`
	Config       datatypes.JSON `gorm:"type:jsonb" json:"config"`
	Result       datatypes.JSON `gorm:"type:jsonb" json:"result"`
	TotalPnL     float64        `gorm:"not null;default:0" json:"total_pnl"`
	TotalReturn  float64        `gorm:"not null;default:0" json:"total_return"`
	SharpeRatio  float64        `gorm:"not null;default:0" json:"sharpe_ratio"`
	WinRate      float64        `gorm:"not null;default:0" json:"win_rate"`
	TotalTrades  int            `gorm:"not null;default:0" json:"total_trades"`
	ErrorMessage *string        `json:"error_message"`
	StartedAt    time.Time      `gorm:"not null" json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Run) TableName() string {
	return "runs"
}

type UpdateRunFilterParam struct {
	RunID *string
}

type UpdateRunValueParam struct {
	Status       *string
	StrategySlug *string
	Result       datatypes.JSON
	TotalPnL     *float64
	TotalReturn  *float64
	SharpeRatio  *float64
	WinRate      *float64
	TotalTrades  *int
	ErrorMessage *string
	CompletedAt  *time.Time
}

type UpdateRunParam struct {
	Filter UpdateRunFilterParam
	Value  UpdateRunValueParam
}
