package trade

import (
	"encoding/json"
	"fmt"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
)

type tradeDump struct {
	Version      string  `json:"version"`
	ID           int     `json:"id"`
	TradeType    string  `json:"trade"`
	EntryState   int     `json:"entry-state"`
	ExitState    int     `json:"exit-state"`
	Closing      bool    `json:"closing"`
	UserTrade    bool    `json:"user-trade"`
	Dirty        bool    `json:"dirty"`
	HardExits    bool    `json:"hard-exits"`
	Timeframe    float64 `json:"timeframe"`
	EntryTimeout float64 `json:"entry-timeout"`
	Expiry       float64 `json:"expiry"`
	Label        string  `json:"label"`
	Context      string  `json:"context"`

	Direction     int     `json:"direction"`
	OrderPrice    float64 `json:"order-price"`
	OrderQuantity float64 `json:"order-qty"`
	TakeProfit    float64 `json:"take-profit-price"`
	StopLoss      float64 `json:"stop-loss-price"`
	Leverage      float64 `json:"leverage"`

	EntryPrice     float64 `json:"avg-entry-price"`
	ExitPrice      float64 `json:"avg-exit-price"`
	EntryQuantity  float64 `json:"filled-entry-qty"`
	ExitQuantity   float64 `json:"filled-exit-qty"`
	ProfitLossRate float64 `json:"profit-loss-rate"`
	EntryOpenTime  float64 `json:"entry-open-time"`
	ExitOpenTime   float64 `json:"exit-open-time"`

	LastTakeProfitOrder [2]float64 `json:"last-take-profit-order"`
	LastStopLossOrder   [2]float64 `json:"last-stop-loss-order"`

	ExitTrades      []ExitTrade            `json:"exit-trades"`
	Stats           Stats                  `json:"statistics"`
	Operations      []OperationRecord      `json:"operations"`
	NextOperationID int                    `json:"next-operation-id"`
	Comment         string                 `json:"comment"`
	Extra           map[string]interface{} `json:"extra"`

	CreateRefOID  string  `json:"create-ref-oid"`
	CreateOID     string  `json:"create-oid"`
	StopRefOID    string  `json:"stop-ref-oid"`
	StopOID       string  `json:"stop-oid"`
	LimitRefOID   string  `json:"limit-ref-oid"`
	LimitOID      string  `json:"limit-oid"`
	PositionID    string  `json:"position-id"`
	StopOrderQty  float64 `json:"stop-order-qty"`
	LimitOrderQty float64 `json:"limit-order-qty"`
}

// Dumps serializes the complete trade, operations included.
func (t *Trade) Dumps() ([]byte, error) {
	d := tradeDump{
		Version:      Version,
		ID:           t.id,
		TradeType:    t.kind.Type.String(),
		EntryState:   int(t.entryState),
		ExitState:    int(t.exitState),
		Closing:      t.closing,
		UserTrade:    t.userTrade,
		Dirty:        t.dirty,
		HardExits:    t.hardExits,
		Timeframe:    t.timeframe,
		EntryTimeout: t.entryTimeout,
		Expiry:       t.expiry,
		Label:        t.label,
		Context:      t.context,

		Direction:     int(t.dir),
		OrderPrice:    t.orderPrice,
		OrderQuantity: t.orderQty,
		TakeProfit:    t.takeProfit,
		StopLoss:      t.stopLoss,
		Leverage:      t.leverage,

		EntryPrice:     t.entryPrice,
		ExitPrice:      t.exitPrice,
		EntryQuantity:  t.entryQty,
		ExitQuantity:   t.exitQty,
		ProfitLossRate: t.plRate,
		EntryOpenTime:  t.entryOpenTime,
		ExitOpenTime:   t.exitOpenTime,

		LastTakeProfitOrder: t.lastTakeProfitOrder,
		LastStopLossOrder:   t.lastStopLossOrder,

		ExitTrades:      t.exitTrades,
		Stats:           t.stats,
		NextOperationID: t.nextOperationID,
		Comment:         t.comment,
		Extra:           t.extra,

		CreateRefOID:  t.createRefOID,
		CreateOID:     t.createOID,
		StopRefOID:    t.stopRefOID,
		StopOID:       t.stopOID,
		LimitRefOID:   t.limitRefOID,
		LimitOID:      t.limitOID,
		PositionID:    t.positionID,
		StopOrderQty:  t.stopOrderQty,
		LimitOrderQty: t.limitOrderQty,
	}

	for _, op := range t.operations {
		rec, err := dumpOperation(op)
		if err != nil {
			return nil, err
		}
		d.Operations = append(d.Operations, rec)
	}

	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trade %d: %w", t.id, err)
	}
	return data, nil
}

// Loads restores a trade from Dumps output. The kind is derived from the persisted trade type.
func Loads(data []byte) (*Trade, error) {
	var d tradeDump
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: trade: %v", ports.ErrDecodeFailed, err)
	}

	tradeType, ok := domain.ParseTradeType(d.TradeType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown trade type %q", ports.ErrDecodeFailed, d.TradeType)
	}

	t := New(d.ID, KindFor(tradeType), d.Timeframe)

	t.entryState = domain.TradeState(d.EntryState)
	t.exitState = domain.TradeState(d.ExitState)
	t.closing = d.Closing
	t.userTrade = d.UserTrade
	t.dirty = d.Dirty
	t.hardExits = d.HardExits
	t.entryTimeout = d.EntryTimeout
	t.expiry = d.Expiry
	t.label = d.Label
	t.context = d.Context

	t.dir = domain.Direction(d.Direction)
	t.orderPrice = d.OrderPrice
	t.orderQty = d.OrderQuantity
	t.takeProfit = d.TakeProfit
	t.stopLoss = d.StopLoss
	if d.Leverage > 0 {
		t.leverage = d.Leverage
	}

	t.entryPrice = d.EntryPrice
	t.exitPrice = d.ExitPrice
	t.entryQty = d.EntryQuantity
	t.exitQty = d.ExitQuantity
	t.plRate = d.ProfitLossRate
	t.entryOpenTime = d.EntryOpenTime
	t.exitOpenTime = d.ExitOpenTime

	t.lastTakeProfitOrder = d.LastTakeProfitOrder
	t.lastStopLossOrder = d.LastStopLossOrder

	t.exitTrades = d.ExitTrades
	t.stats = d.Stats
	if t.stats.Conditions == nil {
		t.stats.Conditions = map[string]interface{}{}
	}
	t.nextOperationID = d.NextOperationID
	t.comment = d.Comment
	if d.Extra != nil {
		t.extra = d.Extra
	}

	t.createRefOID = d.CreateRefOID
	t.createOID = d.CreateOID
	t.stopRefOID = d.StopRefOID
	t.stopOID = d.StopOID
	t.limitRefOID = d.LimitRefOID
	t.limitOID = d.LimitOID
	t.positionID = d.PositionID
	t.stopOrderQty = d.StopOrderQty
	t.limitOrderQty = d.LimitOrderQty

	for _, rec := range d.Operations {
		op, err := loadOperation(rec)
		if err != nil {
			return nil, err
		}
		t.operations = append(t.operations, op)
		if rec.ID > t.nextOperationID {
			t.nextOperationID = rec.ID
		}
	}

	return t, nil
}
