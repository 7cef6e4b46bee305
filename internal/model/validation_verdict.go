package model

import (
	"time"

	"gorm.io/datatypes"
)

type ValidationVerdict struct {
	ID                 uint           `gorm:"primarykey" json:"id"`
	RunID              string         `gorm:"not null;index" json:"run_id"`
	Source             string         `gorm:"not null" json:"source"`
	Status             string         `gorm:"not null" json:"status"`
	TotalTradesChecked int            `gorm:"not null;default:0" json:"total_trades_checked"`
	AnomaliesFound     int            `gorm:"not null;default:0" json:"anomalies_found"`
	AnomaliesCorrected int            `gorm:"not null;default:0" json:"anomalies_corrected"`
	IterationsUsed     int            `gorm:"not null;default:0" json:"iterations_used"`
	Anomalies          datatypes.JSON `gorm:"type:jsonb" json:"anomalies"`
	Corrections        datatypes.JSON `gorm:"type:jsonb" json:"corrections"`
	Suggestions        datatypes.JSON `gorm:"type:jsonb" json:"suggestions"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ValidationVerdict) TableName() string {
	return "validation_verdicts"
}
