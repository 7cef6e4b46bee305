package dto

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType tags an inter-worker message. The set is closed; anything else
// is rejected at publish time.
type MessageType string

const (
	MsgBacktestRequest       MessageType = "backtest_request"
	MsgBacktestResult        MessageType = "backtest_result"
	MsgValidationRequest     MessageType = "validation_request"
	MsgValidationResult      MessageType = "validation_result"
	MsgPaperTradeStart       MessageType = "paper_trade_start"
	MsgPaperTradeResult      MessageType = "paper_trade_result"
	MsgTradeUpdate           MessageType = "trade_update"
	MsgReconciliationRequest MessageType = "reconciliation_request"
	MsgReconciliationResult  MessageType = "reconciliation_result"
	MsgReportRequest         MessageType = "report_request"
	MsgError                 MessageType = "error"
	MsgCorrection            MessageType = "correction"
)

// Worker names used in message routing.
const (
	AgentOrchestrator = "orchestrator"
	AgentBacktester   = "backtester"
	AgentValidator    = "validator"
	AgentPaperTrader  = "paper_trader"
	AgentReconciler   = "reconciler"
	AgentReporter     = "reporter"
)

var validMessageTypes = map[MessageType]struct{}{
	MsgBacktestRequest:       {},
	MsgBacktestResult:        {},
	MsgValidationRequest:     {},
	MsgValidationResult:      {},
	MsgPaperTradeStart:       {},
	MsgPaperTradeResult:      {},
	MsgTradeUpdate:           {},
	MsgReconciliationRequest: {},
	MsgReconciliationResult:  {},
	MsgReportRequest:         {},
	MsgError:                 {},
	MsgCorrection:            {},
}

// Message is a transient, audit-only document between workers. It is never
// authoritative state.
type Message struct {
	ID        string      `json:"message_id"`
	From      string      `json:"from_agent"`
	To        string      `json:"to_agent"`
	Type      MessageType `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Validate rejects messages whose type is outside the closed set or whose
// routing is incomplete.
func (m Message) Validate() error {
	if _, ok := validMessageTypes[m.Type]; !ok {
		return fmt.Errorf("invalid message type: %s", m.Type)
	}
	if m.From == "" || m.To == "" {
		return fmt.Errorf("message requires from and to agents")
	}
	return nil
}

// NewMessage builds a message with a fresh ID and timestamp.
func NewMessage(from, to string, msgType MessageType, payload interface{}) (Message, error) {
	if _, ok := validMessageTypes[msgType]; !ok {
		return Message{}, fmt.Errorf("invalid message type: %s", msgType)
	}
	return Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ErrorPayload is the payload of an error message from a worker.
type ErrorPayload struct {
	RunID string `json:"run_id"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}
