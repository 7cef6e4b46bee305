package model

import "time"

type Trade struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	RunID        string     `gorm:"not null;index" json:"run_id"`
	TradeType    string     `gorm:"not null" json:"trade_type"`
	Symbol       string     `gorm:"not null" json:"symbol"`
	Direction    string     `gorm:"not null" json:"direction"`
	Shares       int        `gorm:"not null" json:"shares"`
	EntryTime    time.Time  `gorm:"not null" json:"entry_time"`
	EntryPrice   float64    `gorm:"not null" json:"entry_price"`
	ExitTime     *time.Time `json:"exit_time"`
	ExitPrice    *float64   `json:"exit_price"`
	TargetPrice  *float64   `json:"target_price"`
	StopPrice    *float64   `json:"stop_price"`
	HitTarget    bool       `gorm:"not null;default:false" json:"hit_target"`
	HitStop      bool       `gorm:"not null;default:false" json:"hit_stop"`
	PnL          float64    `gorm:"not null;default:0" json:"pnl"`
	PnLPct       float64    `gorm:"not null;default:0" json:"pnl_pct"`
	CapitalAfter float64    `gorm:"not null;default:0" json:"capital_after"`
	Fees         float64    `gorm:"not null;default:0" json:"fees"`
	OrderRef     *string    `json:"order_ref"`
	Reason       string     `gorm:"null" json:"reason"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Trade) TableName() string {
	return "trades"
}
