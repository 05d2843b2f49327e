package paper

import (
	"encoding/json"
	"fmt"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
)

// Snapshot is the persisted state of an engine. Markets are not part of it; they are
// fetched again on start.
type Snapshot struct {
	Name      string             `json:"name"`
	Activity  bool               `json:"activity"`
	Account   domain.Account     `json:"account"`
	Orders    []*domain.Order    `json:"orders"`
	Positions []*domain.Position `json:"positions"`
	Assets    []*domain.Asset    `json:"assets"`
}

// Export serializes the engine state. Pending orders keep their submission order.
func (e *Engine) Export() ([]byte, error) {
	e.mu.Lock()
	snap := Snapshot{
		Name:      e.name,
		Activity:  e.activity,
		Account:   *e.account.Clone(),
		Orders:    make([]*domain.Order, 0, len(e.sequence)),
		Positions: make([]*domain.Position, 0, len(e.positions)),
		Assets:    make([]*domain.Asset, 0, len(e.assets)),
	}
	for _, id := range e.sequence {
		snap.Orders = append(snap.Orders, e.orders[id].Clone())
	}
	for _, id := range e.positionIDs() {
		snap.Positions = append(snap.Positions, e.positions[id].Clone())
	}
	for _, a := range e.assets {
		c := *a
		snap.Assets = append(snap.Assets, &c)
	}
	e.mu.Unlock()

	data, err := json.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trader %s: %w", e.name, err)
	}
	return data, nil
}

// Import replaces the engine state with a snapshot produced by Export.
func (e *Engine) Import(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: trader %s: %v", ports.ErrDecodeFailed, e.name, err)
	}
	if snap.Name != "" && snap.Name != e.name {
		return fmt.Errorf("%w: snapshot of trader %s loaded into %s", ports.ErrInvalidRequest, snap.Name, e.name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.activity = snap.Activity
	account := snap.Account
	e.account = &account

	e.orders = make(map[string]*domain.Order, len(snap.Orders))
	e.sequence = e.sequence[:0]
	for _, o := range snap.Orders {
		if o == nil || o.OrderID == "" {
			continue
		}
		e.addPending(o)
	}

	e.positions = make(map[string]*domain.Position, len(snap.Positions))
	for _, p := range snap.Positions {
		if p != nil && p.PositionID != "" {
			e.positions[p.PositionID] = p
		}
	}

	e.assets = make(map[string]*domain.Asset, len(snap.Assets))
	for _, a := range snap.Assets {
		if a != nil && a.Symbol != "" {
			e.assets[a.Symbol] = a
		}
	}
	return nil
}
