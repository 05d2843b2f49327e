package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingVisitor struct {
	NopVisitor
	traded  int
	deleted int
}

func (v *countingVisitor) VisitOrderTraded(*OrderTraded)         { v.traded++ }
func (v *countingVisitor) VisitPositionDeleted(*PositionDeleted) { v.deleted++ }

func TestVisitorDispatch(t *testing.T) {
	v := &countingVisitor{}

	signals := []Signal{
		&OrderOpened{Header: Header{MarketID: "BTCUSDT"}},
		&OrderTraded{Header: Header{MarketID: "BTCUSDT"}},
		&OrderTraded{Header: Header{MarketID: "BTCUSDT"}},
		&PositionDeleted{Header: Header{MarketID: "BTCUSDT"}},
		&PositionAmended{Header: Header{MarketID: "BTCUSDT"}},
	}
	for _, s := range signals {
		s.Accept(v)
	}

	assert.Equal(t, 2, v.traded)
	assert.Equal(t, 1, v.deleted)
}

func TestIdentifiers(t *testing.T) {
	tests := []struct {
		name       string
		sig        Signal
		isOrder    bool
		orderID    string
		positionID string
	}{
		{"opened", &OrderOpened{OrderID: "o1"}, true, "o1", ""},
		{"traded", &OrderTraded{OrderID: "o2"}, true, "o2", ""},
		{"rejected", &OrderRejected{Header: Header{RefOrderID: "r"}}, true, "", ""},
		{"canceled", &OrderCanceled{OrderID: "o3"}, true, "o3", ""},
		{"position updated", &PositionUpdated{PositionData: PositionData{PositionID: "p1"}}, false, "", "p1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isOrder, IsOrder(tt.sig))
			assert.Equal(t, tt.orderID, OrderID(tt.sig))
			assert.Equal(t, tt.positionID, PositionID(tt.sig))
		})
	}
}

func TestDispatcherOrderAndReentrancy(t *testing.T) {
	d := NewDispatcher()
	rec := &Recorder{}
	var seen []string

	d.Subscribe(HandlerFunc(func(s Signal) {
		seen = append(seen, "first:"+s.Kind())
		if _, ok := s.(*OrderTraded); ok {
			// a handler may notify again without deadlocking
			d.Notify(&OrderDeleted{Header: Header{MarketID: s.Market()}})
		}
	}))
	d.Subscribe(rec)

	d.Notify(&OrderTraded{Header: Header{MarketID: "ETHUSDT", RefOrderID: "ref"}})

	require.Len(t, rec.Signals(), 2)
	assert.Equal(t, []string{"order-deleted", "order-traded"}, rec.Kinds())
	assert.Equal(t, []string{"first:order-traded", "first:order-deleted"}, seen)
	assert.Equal(t, "ref", rec.Signals()[1].Ref())

	rec.Reset()
	assert.Empty(t, rec.Signals())
}
