// Package events publishes loan lifecycle notifications to external consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const EventTypeLoanLiquidated = "loan.liquidated"

// LoanLiquidated is emitted after a liquidation commits. Amount is the reserve returned
// to the treasury in base units.
type LoanLiquidated struct {
	Pool       string `json:"pool"`
	Borrower   string `json:"borrower"`
	Liquidator string `json:"liquidator"`
	Amount     uint64 `json:"amount"`
	Timestamp  int64  `json:"timestamp"`
}

// Envelope wraps an event payload for the wire.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func newEnvelope(eventType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return Envelope{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}

// Publisher delivers notifications. Delivery is best effort; callers log failures.
type Publisher interface {
	PublishLiquidation(ctx context.Context, evt LoanLiquidated) error
	Name() string
}

// LogPublisher writes notifications to the application log only.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.L()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishLiquidation(ctx context.Context, evt LoanLiquidated) error {
	p.logger.Info("loan liquidated",
		zap.String("event", EventTypeLoanLiquidated),
		zap.String("pool", evt.Pool),
		zap.String("borrower", evt.Borrower),
		zap.String("liquidator", evt.Liquidator),
		zap.Uint64("amount", evt.Amount),
		zap.Int64("timestamp", evt.Timestamp),
	)
	return nil
}

func (p *LogPublisher) Name() string { return "log" }
