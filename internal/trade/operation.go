package trade

import (
	"context"
	"encoding/json"
	"fmt"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
)

// Operation is a conditional action attached to a trade, evaluated by its manager on
// every update until it reports completion.
type Operation interface {
	ID() int
	SetID(id int)
	// Name identifies the operation type in persisted trades.
	Name() string
	// Check validates the parameters against the trade.
	Check(t *Trade) bool
	// Test reports whether the condition holds at the current market price.
	Test(t *Trade, m *domain.Market, timestamp float64) bool
	// Execute applies the operation. It is only called after Test returned true.
	Execute(ctx context.Context, t *Trade, trader ports.Trader, m *domain.Market) domain.ReturnCode
	CanDelete() bool
}

// OperationRecord is the persisted form of an operation.
type OperationRecord struct {
	ID   int             `json:"id"`
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

const opStepStopLoss = "step-stop-loss"

// NewOperation creates an empty operation of a known type.
func NewOperation(name string) (Operation, error) {
	switch name {
	case opStepStopLoss:
		return &StepStopLoss{}, nil
	}
	return nil, fmt.Errorf("%w: unknown trade operation %q", ports.ErrInvalidRequest, name)
}

func dumpOperation(op Operation) (OperationRecord, error) {
	data, err := json.Marshal(op)
	if err != nil {
		return OperationRecord{}, fmt.Errorf("failed to encode operation %s: %w", op.Name(), err)
	}
	return OperationRecord{ID: op.ID(), Name: op.Name(), Data: data}, nil
}

func loadOperation(rec OperationRecord) (Operation, error) {
	op, err := NewOperation(rec.Name)
	if err != nil {
		return nil, err
	}
	if len(rec.Data) > 0 {
		if err := json.Unmarshal(rec.Data, op); err != nil {
			return nil, fmt.Errorf("%w: operation %s: %v", ports.ErrDecodeFailed, rec.Name, err)
		}
	}
	op.SetID(rec.ID)
	return op, nil
}

// StepStopLoss moves the stop-loss to StopLoss once the close price crosses Trigger.
type StepStopLoss struct {
	id       int
	Trigger  float64 `json:"trigger"`
	StopLoss float64 `json:"stop-loss"`
	Done     bool    `json:"done"`
}

// NewStepStopLoss creates a step-stop-loss operation.
func NewStepStopLoss(trigger, stopLoss float64) *StepStopLoss {
	return &StepStopLoss{Trigger: trigger, StopLoss: stopLoss}
}

func (o *StepStopLoss) ID() int         { return o.id }
func (o *StepStopLoss) SetID(id int)    { o.id = id }
func (o *StepStopLoss) Name() string    { return opStepStopLoss }
func (o *StepStopLoss) CanDelete() bool { return o.Done }

func (o *StepStopLoss) Check(t *Trade) bool {
	if o.Trigger <= 0 || o.StopLoss <= 0 {
		return false
	}
	switch t.Direction() {
	case domain.DirectionLong:
		return o.StopLoss < o.Trigger
	case domain.DirectionShort:
		return o.StopLoss > o.Trigger
	}
	return false
}

func (o *StepStopLoss) Test(t *Trade, m *domain.Market, timestamp float64) bool {
	if o.Done || !t.IsActive() {
		return false
	}
	price := t.kind.Pricing.ExitPrice(m, t.dir)
	if price <= 0 {
		return false
	}
	switch t.dir {
	case domain.DirectionLong:
		return price >= o.Trigger && (t.stopLoss <= 0 || o.StopLoss > t.stopLoss)
	case domain.DirectionShort:
		return price <= o.Trigger && (t.stopLoss <= 0 || o.StopLoss < t.stopLoss)
	}
	return false
}

func (o *StepStopLoss) Execute(ctx context.Context, t *Trade, trader ports.Trader, m *domain.Market) domain.ReturnCode {
	// keep the current order mode, a soft stop stays soft
	hard := t.HasStopOrder() || (t.kind.PositionProtection && t.positionID != "")
	code := t.ModifyStopLoss(ctx, trader, m, o.StopLoss, hard)
	if code == domain.CodeAccepted || code == domain.CodeNothingToDo {
		o.Done = true
	}
	return code
}
