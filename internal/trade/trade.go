// Package trade models the lifecycle of a strategy trade: one entry and its eventual
// full exit, whatever number of orders it takes.
package trade

import (
	"fmt"

	"cryptoPaperTrader/internal/domain"
)

// Version of the persisted trade layout.
const Version = "1.0.0"

// MaxCommentLength is the longest comment a trade keeps.
const MaxCommentLength = 100

// DefaultModifyTimeout is the minimum delay in seconds between two amendments of a protective order.
const DefaultModifyTimeout = 10.0

// CommentPolicy decides what happens to comments longer than MaxCommentLength.
type CommentPolicy int

const (
	CommentReject CommentPolicy = iota
	CommentTruncate
)

// Stats are the running statistics of a trade.
type Stats struct {
	BestPrice                   float64                `json:"best-price"`
	BestTimestamp               float64                `json:"best-timestamp"`
	WorstPrice                  float64                `json:"worst-price"`
	WorstTimestamp              float64                `json:"worst-timestamp"`
	EntryOrderType              domain.OrderType       `json:"entry-order-type"`
	TakeProfitOrderType         domain.OrderType       `json:"take-profit-order-type"`
	StopOrderType               domain.OrderType       `json:"stop-order-type"`
	FirstRealizedEntryTimestamp float64                `json:"first-realized-entry-timestamp"`
	FirstRealizedExitTimestamp  float64                `json:"first-realized-exit-timestamp"`
	LastRealizedEntryTimestamp  float64                `json:"last-realized-entry-timestamp"`
	LastRealizedExitTimestamp   float64                `json:"last-realized-exit-timestamp"`
	UnrealizedProfitLoss        float64                `json:"unrealized-profit-loss"`
	ProfitLossCurrency          string                 `json:"profit-loss-currency"`
	EntryFees                   float64                `json:"entry-fees"`
	ExitFees                    float64                `json:"exit-fees"`
	ExitReason                  domain.ExitReason      `json:"exit-reason"`
	Conditions                  map[string]interface{} `json:"conditions"`
}

func newStats() Stats {
	return Stats{
		EntryOrderType:      domain.OrderLimit,
		TakeProfitOrderType: domain.OrderLimit,
		StopOrderType:       domain.OrderMarket,
		Conditions:          map[string]interface{}{},
	}
}

// ExitTrade is one realized exit fill.
type ExitTrade struct {
	OrderID   string  `json:"id"`
	Timestamp float64 `json:"timestamp"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	Fees      float64 `json:"fees"`
}

// Trade is a strategy trade. It is not safe for concurrent use; a Manager owns it.
//
// Timestamps are Unix seconds. The filled exit quantity never exceeds the filled entry quantity.
type Trade struct {
	id   int
	kind Kind

	entryState domain.TradeState
	exitState  domain.TradeState
	closing    bool
	userTrade  bool
	dirty      bool
	hardExits  bool

	timeframe    float64
	entryTimeout float64
	expiry       float64
	label        string
	context      string

	dir        domain.Direction
	orderPrice float64
	orderQty   float64
	takeProfit float64
	stopLoss   float64
	leverage   float64

	entryPrice float64 // average entry price
	exitPrice  float64 // average exit price
	entryQty   float64 // cumulative filled entry quantity
	exitQty    float64 // cumulative filled exit quantity
	plRate     float64 // realized profit-loss rate

	entryOpenTime float64
	exitOpenTime  float64

	// [0] last amendment timestamp, [1] number of amendments
	lastTakeProfitOrder [2]float64
	lastStopLossOrder   [2]float64

	exitTrades []ExitTrade
	stats      Stats

	operations      []Operation
	nextOperationID int

	comment       string
	commentPolicy CommentPolicy
	extra         map[string]interface{}

	createRefOID string
	createOID    string
	stopRefOID   string
	stopOID      string
	limitRefOID  string
	limitOID     string
	positionID   string

	stopOrderQty  float64
	limitOrderQty float64
}

// New creates a trade in the new/new state.
func New(id int, kind Kind, timeframe float64) *Trade {
	return &Trade{
		id:        id,
		kind:      kind,
		timeframe: timeframe,
		leverage:  1.0,
		stats:     newStats(),
		extra:     map[string]interface{}{},
	}
}

func (t *Trade) ID() int                       { return t.id }
func (t *Trade) Kind() Kind                    { return t.kind }
func (t *Trade) Type() domain.TradeType        { return t.kind.Type }
func (t *Trade) EntryState() domain.TradeState { return t.entryState }
func (t *Trade) ExitState() domain.TradeState  { return t.exitState }
func (t *Trade) Direction() domain.Direction   { return t.dir }
func (t *Trade) OrderPrice() float64           { return t.orderPrice }
func (t *Trade) OrderQuantity() float64        { return t.orderQty }
func (t *Trade) TakeProfit() float64           { return t.takeProfit }
func (t *Trade) StopLoss() float64             { return t.stopLoss }
func (t *Trade) EntryPrice() float64           { return t.entryPrice }
func (t *Trade) ExitPrice() float64            { return t.exitPrice }
func (t *Trade) FilledEntryQuantity() float64  { return t.entryQty }
func (t *Trade) FilledExitQuantity() float64   { return t.exitQty }
func (t *Trade) ProfitLossRate() float64       { return t.plRate }
func (t *Trade) EntryOpenTime() float64        { return t.entryOpenTime }
func (t *Trade) ExitOpenTime() float64         { return t.exitOpenTime }
func (t *Trade) Timeframe() float64            { return t.timeframe }
func (t *Trade) EntryTimeout() float64         { return t.entryTimeout }
func (t *Trade) Expiry() float64               { return t.expiry }
func (t *Trade) Label() string                 { return t.label }
func (t *Trade) Context() string               { return t.context }
func (t *Trade) Comment() string               { return t.comment }
func (t *Trade) Stats() Stats                  { return t.stats }
func (t *Trade) ExitReason() domain.ExitReason { return t.stats.ExitReason }
func (t *Trade) IsUserTrade() bool             { return t.userTrade }
func (t *Trade) IsDirty() bool                 { return t.dirty }
func (t *Trade) HardExits() bool               { return t.hardExits }
func (t *Trade) PositionID() string            { return t.positionID }
func (t *Trade) EntryOrderID() string          { return t.createOID }
func (t *Trade) StopOrderID() string           { return t.stopOID }
func (t *Trade) LimitOrderID() string          { return t.limitOID }
func (t *Trade) ExitTrades() []ExitTrade       { return append([]ExitTrade(nil), t.exitTrades...) }

// CloseDirection is the direction of the exit orders.
func (t *Trade) CloseDirection() domain.Direction { return t.dir.Opposite() }

// Quantity is the filled entry quantity not yet exited.
func (t *Trade) Quantity() float64 {
	if t.entryQty > t.exitQty {
		return t.entryQty - t.exitQty
	}
	return 0
}

// InvestedQuantity is the quantity engaged: the ordered quantity while the entry is open,
// the remaining filled quantity after.
func (t *Trade) InvestedQuantity() float64 {
	switch t.entryState {
	case domain.StateOpened, domain.StateNew:
		return t.orderQty
	case domain.StatePartiallyFilled, domain.StateFilled:
		return t.Quantity()
	default:
		return 0
	}
}

func (t *Trade) SetTimeframe(tf float64)           { t.timeframe = tf }
func (t *Trade) SetEntryTimeout(v float64)         { t.entryTimeout = v }
func (t *Trade) SetExpiry(v float64)               { t.expiry = v }
func (t *Trade) SetLabel(label string)             { t.label = label }
func (t *Trade) SetContext(name string)            { t.context = name }
func (t *Trade) SetUserTrade(user bool)            { t.userTrade = user }
func (t *Trade) SetExitReason(r domain.ExitReason) { t.stats.ExitReason = r }
func (t *Trade) SetCommentPolicy(p CommentPolicy)  { t.commentPolicy = p }
func (t *Trade) SetHardExits(hard bool)            { t.hardExits = hard }
func (t *Trade) ClearDirty()                       { t.dirty = false }

// SetComment sets the free-text comment. Comments longer than MaxCommentLength are
// refused or truncated according to the comment policy; the result tells whether it was kept.
func (t *Trade) SetComment(comment string) bool {
	runes := []rune(comment)
	if len(runes) > MaxCommentLength {
		if t.commentPolicy != CommentTruncate {
			return false
		}
		comment = string(runes[:MaxCommentLength])
	}
	t.comment = comment
	return true
}

// LastTakeProfitOrder returns the time and count of take-profit amendments.
func (t *Trade) LastTakeProfitOrder() (float64, int) {
	return t.lastTakeProfitOrder[0], int(t.lastTakeProfitOrder[1])
}

// LastStopLossOrder returns the time and count of stop-loss amendments.
func (t *Trade) LastStopLossOrder() (float64, int) {
	return t.lastStopLossOrder[0], int(t.lastStopLossOrder[1])
}

//
// predicates
//

// CanDelete reports whether the trade has nothing left to manage.
func (t *Trade) CanDelete() bool {
	if t.entryState == domain.StateFilled && t.exitState == domain.StateFilled {
		return true
	}
	if t.entryState == domain.StateRejected {
		return true
	}
	if (t.entryState == domain.StateCanceled || t.entryState == domain.StateDeleted) && t.entryQty <= 0 {
		return true
	}
	return false
}

// IsError reports whether the entry or the exit is in error.
func (t *Trade) IsError() bool {
	return t.entryState == domain.StateError || t.exitState == domain.StateError
}

// IsActive reports whether some entry quantity is filled and not fully exited.
func (t *Trade) IsActive() bool {
	if t.exitState == domain.StateFilled {
		return false
	}
	return t.entryState == domain.StatePartiallyFilled || t.entryState == domain.StateFilled
}

// IsOpened reports whether the entry order is live with nothing filled.
func (t *Trade) IsOpened() bool {
	return t.entryState == domain.StateOpened
}

// IsCanceled reports whether the entry was rejected or canceled empty.
func (t *Trade) IsCanceled() bool {
	if t.entryState == domain.StateRejected {
		return true
	}
	return t.entryState == domain.StateCanceled && t.entryQty <= 0
}

// IsOpening reports whether the entry order is still working.
func (t *Trade) IsOpening() bool {
	return t.entryState == domain.StateOpened || t.entryState == domain.StatePartiallyFilled
}

// IsClosing reports whether a close order is working.
func (t *Trade) IsClosing() bool {
	return t.closing && t.exitState != domain.StateFilled
}

// IsClosed reports whether the exit is fully filled.
func (t *Trade) IsClosed() bool {
	return t.exitState == domain.StateFilled
}

// IsEntryTimeout reports whether an unfilled entry order has been open for timeout seconds.
func (t *Trade) IsEntryTimeout(timestamp, timeout float64) bool {
	return t.entryState == domain.StateOpened && t.entryQty == 0 && t.entryOpenTime > 0 &&
		timeout > 0 && timestamp-t.entryOpenTime >= timeout
}

// IsTradeTimeout reports whether a filled trade outlived its expiry. An expiry of 0 never expires.
func (t *Trade) IsTradeTimeout(timestamp float64) bool {
	return t.IsDurationTimeout(timestamp, t.expiry)
}

// IsDurationTimeout reports whether a filled trade has been open for duration seconds.
func (t *Trade) IsDurationTimeout(timestamp, duration float64) bool {
	return (t.entryState == domain.StatePartiallyFilled || t.entryState == domain.StateFilled) &&
		duration > 0 && t.entryQty > 0 && t.entryOpenTime > 0 && timestamp > 0 &&
		timestamp-t.entryOpenTime >= duration
}

// IsValid reports whether an entry still working is within validity seconds of its opening.
func (t *Trade) IsValid(timestamp, validity float64) bool {
	return (t.entryState == domain.StateOpened || t.entryState == domain.StatePartiallyFilled) &&
		validity > 0 && timestamp > 0 && timestamp-t.entryOpenTime <= validity
}

// HasStopOrder reports whether a stop order is live.
func (t *Trade) HasStopOrder() bool { return t.stopOID != "" || t.stopRefOID != "" }

// HasLimitOrder reports whether a limit order is live.
func (t *Trade) HasLimitOrder() bool { return t.limitOID != "" || t.limitRefOID != "" }

// CanModifyLimitOrder throttles take-profit amendments. timeout <= 0 uses DefaultModifyTimeout.
func (t *Trade) CanModifyLimitOrder(timestamp, timeout float64) bool {
	return canModify(t.lastTakeProfitOrder, timestamp, timeout, t.HasLimitOrder())
}

// CanModifyStopOrder throttles stop-loss amendments. timeout <= 0 uses DefaultModifyTimeout.
func (t *Trade) CanModifyStopOrder(timestamp, timeout float64) bool {
	return canModify(t.lastStopLossOrder, timestamp, timeout, t.HasStopOrder())
}

func canModify(last [2]float64, timestamp, timeout float64, live bool) bool {
	if timeout <= 0 {
		timeout = DefaultModifyTimeout
	}
	if last[0] <= 0 || last[1] <= 0 {
		return true
	}
	if timestamp-last[0] >= timeout {
		return true
	}
	return !live
}

// StateString is the display status of the trade.
func (t *Trade) StateString() string {
	switch {
	case t.entryState == domain.StateNew:
		return "new"
	case t.entryState == domain.StateOpened:
		return "opened"
	case t.entryState == domain.StateRejected:
		return "rejected"
	case t.exitState == domain.StateRejected && t.exitQty < t.entryQty:
		return "problem"
	case t.entryState == domain.StatePartiallyFilled:
		return "filling"
	case t.exitState == domain.StatePartiallyFilled:
		return "closing"
	case t.entryState == domain.StateFilled && t.exitState == domain.StateFilled:
		return "closed"
	case t.entryState == domain.StateCanceled && t.entryQty <= 0:
		return "canceled"
	case t.entryState == domain.StateFilled:
		return "filled"
	case t.entryState == domain.StateError || t.exitState == domain.StateError:
		return "error"
	default:
		return "waiting"
	}
}

//
// stats and estimations
//

// UpdateStats tracks the best and worst close price while the trade is active, and the
// unrealized profit and loss net of fees.
func (t *Trade) UpdateStats(m *domain.Market, timestamp float64) {
	if !t.IsActive() {
		return
	}
	last := t.kind.Pricing.ExitPrice(m, t.dir)
	if last <= 0 {
		return
	}

	if t.dir == domain.DirectionLong {
		if last > t.stats.BestPrice {
			t.stats.BestPrice, t.stats.BestTimestamp = last, timestamp
		}
		if last < t.stats.WorstPrice || t.stats.WorstPrice == 0 {
			t.stats.WorstPrice, t.stats.WorstTimestamp = last, timestamp
		}
	} else if t.dir == domain.DirectionShort {
		if last < t.stats.BestPrice || t.stats.BestPrice == 0 {
			t.stats.BestPrice, t.stats.BestTimestamp = last, timestamp
		}
		if last > t.stats.WorstPrice {
			t.stats.WorstPrice, t.stats.WorstTimestamp = last, timestamp
		}
	}

	contract := m.ContractSize
	if contract <= 0 {
		contract = 1
	}
	remaining := t.entryQty - t.exitQty
	var upnl, rpnl float64
	if t.dir == domain.DirectionLong {
		upnl = (last - t.entryPrice) * remaining * contract
		rpnl = (t.exitPrice - t.entryPrice) * t.exitQty * contract
	} else {
		upnl = (t.entryPrice - last) * remaining * contract
		rpnl = (t.entryPrice - t.exitPrice) * t.exitQty * contract
	}
	t.stats.UnrealizedProfitLoss = m.AdjustQuote(upnl + rpnl - t.stats.EntryFees - t.stats.ExitFees)
}

// AddCondition records a named strategy condition in the stats.
func (t *Trade) AddCondition(name string, data interface{}) {
	if t.stats.Conditions == nil {
		t.stats.Conditions = map[string]interface{}{}
	}
	t.stats.Conditions[name] = data
}

// EntryFeesRate is the realized entry fees relative to the entry notional.
func (t *Trade) EntryFeesRate() float64 {
	if t.entryQty > 0 && t.entryPrice > 0 {
		return t.stats.EntryFees / (t.entryPrice * t.entryQty)
	}
	return 0
}

// ExitFeesRate is the realized exit fees relative to the exit notional.
func (t *Trade) ExitFeesRate() float64 {
	if t.exitQty > 0 && t.exitPrice > 0 {
		return t.stats.ExitFees / (t.exitPrice * t.exitQty)
	}
	return 0
}

// EstimateExitFeesRate is the maker fee for a resting take-profit order, the taker fee otherwise.
func (t *Trade) EstimateExitFeesRate(m *domain.Market) float64 {
	switch t.stats.TakeProfitOrderType {
	case domain.OrderLimit, domain.OrderStopLimit, domain.OrderTakeProfitLimit:
		return m.MakerFee
	case domain.OrderMarket, domain.OrderStop, domain.OrderTakeProfit:
		return m.TakerFee
	}
	return 0
}

func (t *Trade) rateTo(price float64) float64 {
	if t.entryPrice <= 0 {
		return 0
	}
	switch t.dir {
	case domain.DirectionLong:
		return (price - t.entryPrice) / t.entryPrice
	case domain.DirectionShort:
		return (t.entryPrice - price) / t.entryPrice
	}
	return 0
}

// ProfitLossDelta is the unrealized price move at the current close price.
func (t *Trade) ProfitLossDelta(m *domain.Market) float64 {
	if t.entryQty <= 0 || t.entryPrice <= 0 {
		return 0
	}
	price := t.kind.Pricing.ExitPrice(m, t.dir)
	if price <= 0 {
		return 0
	}
	if t.dir == domain.DirectionLong {
		return price - t.entryPrice
	}
	return t.entryPrice - price
}

// EstimateProfitLoss is the profit-loss rate at the current close price, net of fees.
func (t *Trade) EstimateProfitLoss(m *domain.Market) float64 {
	if t.entryQty <= 0 {
		return 0
	}
	price := t.kind.Pricing.ExitPrice(m, t.dir)
	if price <= 0 {
		return 0
	}
	return t.rateTo(price) - t.EntryFeesRate() - t.EstimateExitFeesRate(m)
}

// EstimateTakeProfit is the profit-loss rate if the take-profit is hit, net of fees.
func (t *Trade) EstimateTakeProfit(m *domain.Market) float64 {
	if t.entryQty <= 0 {
		return 0
	}
	return t.rateTo(t.takeProfit) - t.EntryFeesRate() - t.EstimateExitFeesRate(m)
}

// EstimateStopLoss is the loss rate if the stop-loss is hit, net of fees. A loss is positive.
func (t *Trade) EstimateStopLoss(m *domain.Market) float64 {
	if t.entryQty <= 0 {
		return 0
	}
	return -t.rateTo(t.stopLoss) - t.EntryFeesRate() - t.EstimateExitFeesRate(m)
}

//
// extra
//

// Set stores an annotation.
func (t *Trade) Set(key string, value interface{}) {
	if t.extra == nil {
		t.extra = map[string]interface{}{}
	}
	t.extra[key] = value
}

// Unset removes an annotation.
func (t *Trade) Unset(key string) {
	delete(t.extra, key)
}

// Get returns an annotation or def.
func (t *Trade) Get(key string, def interface{}) interface{} {
	if v, ok := t.extra[key]; ok {
		return v
	}
	return def
}

//
// operations
//

// Operations returns the operations in insertion order.
func (t *Trade) Operations() []Operation {
	return append([]Operation(nil), t.operations...)
}

// HasOperations reports whether any operation is attached.
func (t *Trade) HasOperations() bool { return len(t.operations) > 0 }

// AddOperation assigns the next id to op and appends it.
func (t *Trade) AddOperation(op Operation) {
	t.nextOperationID++
	op.SetID(t.nextOperationID)
	t.operations = append(t.operations, op)
}

// RemoveOperation removes an operation by id.
func (t *Trade) RemoveOperation(id int) bool {
	for i, op := range t.operations {
		if op.ID() == id {
			t.operations = append(t.operations[:i], t.operations[i+1:]...)
			return true
		}
	}
	return false
}

// CleanupOperations drops the operations that report completion.
func (t *Trade) CleanupOperations() {
	kept := t.operations[:0]
	for _, op := range t.operations {
		if !op.CanDelete() {
			kept = append(kept, op)
		}
	}
	t.operations = kept
}

// InfoReport returns human readable lines describing the trade.
func (t *Trade) InfoReport(m *domain.Market) []string {
	lines := []string{
		fmt.Sprintf("Trade %d %s %s %s", t.id, t.kind.Type, t.dir, t.StateString()),
		fmt.Sprintf("Order price %s qty %s", m.FormatPrice(t.orderPrice), m.FormatQuantity(t.orderQty)),
		fmt.Sprintf("Entry avg %s filled %s / Exit avg %s filled %s",
			m.FormatPrice(t.entryPrice), m.FormatQuantity(t.entryQty),
			m.FormatPrice(t.exitPrice), m.FormatQuantity(t.exitQty)),
		fmt.Sprintf("Stop-loss %s take-profit %s", m.FormatPrice(t.stopLoss), m.FormatPrice(t.takeProfit)),
	}
	if t.label != "" {
		lines = append(lines, "Label: "+t.label)
	}
	if t.createOID != "" || t.createRefOID != "" {
		lines = append(lines, fmt.Sprintf("Entry order id / ref : %s / %s", t.createOID, t.createRefOID))
	}
	if t.stopOID != "" || t.stopRefOID != "" {
		lines = append(lines, fmt.Sprintf("Stop order id / ref : %s / %s", t.stopOID, t.stopRefOID))
	}
	if t.limitOID != "" || t.limitRefOID != "" {
		lines = append(lines, fmt.Sprintf("Limit order id / ref : %s / %s", t.limitOID, t.limitRefOID))
	}
	if t.positionID != "" {
		lines = append(lines, "Position id : "+t.positionID)
	}
	if t.stats.ExitReason != domain.ReasonNone {
		lines = append(lines, "Exit reason: "+t.stats.ExitReason.String())
	}
	if t.comment != "" {
		lines = append(lines, "Comment: "+t.comment)
	}
	return lines
}
