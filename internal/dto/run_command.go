package dto

// RunCommand is the presentation-layer entry point for a run. Mode selects
// which stages execute; stage requests are optional and defaulted from config
// when nil.
type RunCommand struct {
	Mode           string                 `json:"mode" validate:"required,oneof=full backtest validate paper reconcile"`
	Backtest       *BacktestRequest       `json:"backtest,omitempty"`
	Paper          *PaperTradeStart       `json:"paper,omitempty"`
	Validation     *ValidationRequest     `json:"validation,omitempty"`
	Reconciliation *ReconciliationRequest `json:"reconciliation,omitempty"`
}
