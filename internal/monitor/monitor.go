package monitor

import (
	"context"

	"go.uber.org/zap"

	"github.com/jiajunxiong/fix/internal/events"
)

// Monitor counts entity updates seen on the bus.
type Monitor struct {
	Bus     *events.Bus
	Metrics *SystemMetrics
	Log     *zap.Logger
}

// Start subscribes to order and trade updates until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Metrics == nil {
		if m.Log != nil {
			m.Log.Warn("monitor not fully configured; skipping")
		}
		return
	}
	orders, unsubOrders := m.Bus.Subscribe(events.EventOrder, 256)
	trades, unsubTrades := m.Bus.Subscribe(events.EventTrade, 256)
	go func() {
		defer unsubOrders()
		defer unsubTrades()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-orders:
				if !ok {
					return
				}
				m.Metrics.IncrementOrders()
			case _, ok := <-trades:
				if !ok {
					return
				}
				m.Metrics.IncrementTrades()
			}
		}
	}()
}
