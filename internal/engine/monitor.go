package engine

import (
	"fmt"
	"time"

	"github.com/agentfi/agentd/internal/domain"
)

// Exit decisions are heuristic constants, not computed scores.
const (
	stopLossRiskScore     = 0.8
	takeProfitRiskScore   = 0.2
	takeProfitExpectedRet = 0.1
)

// PriceLookup resolves the current price for an asset. ok is false when the
// price is unavailable this cycle.
type PriceLookup func(asset string) (price float64, ok bool)

// SnapshotLookup adapts a market snapshot into a PriceLookup.
func SnapshotLookup(market domain.MarketSnapshot) PriceLookup {
	return market.Price
}

// Monitor scans open positions for exit triggers. It runs before any other
// decision logic on every cycle: a triggered stop-loss always wins over an
// opportunity to open a new position.
type Monitor struct{}

// NewMonitor builds a monitor.
func NewMonitor() *Monitor { return &Monitor{} }

// Check walks positions in list order and returns the first triggered exit,
// or nil when nothing triggers. First match wins; later positions are not
// inspected once one triggers. Positions with an unavailable or zero price
// are skipped for this cycle.
func (m *Monitor) Check(agentID, engineName string, positions []domain.Position, lookup PriceLookup, now time.Time) *domain.Decision {
	for i, pos := range positions {
		price, ok := lookup(pos.Asset)
		if !ok || price <= 0 {
			continue
		}

		if pos.StopLoss > 0 && price <= pos.StopLoss {
			d := newDecision(agentID, engineName, domain.ActionStopLoss,
				exitParams(i, pos, price, pos.StopLoss),
				stopLossRiskScore, 0,
				fmt.Sprintf("stop loss triggered for %s: price %.2f <= %.2f", pos.Asset, price, pos.StopLoss),
				now)
			return &d
		}

		if pos.TakeProfit > 0 && price >= pos.TakeProfit {
			d := newDecision(agentID, engineName, domain.ActionTakeProfit,
				exitParams(i, pos, price, pos.TakeProfit),
				takeProfitRiskScore, takeProfitExpectedRet,
				fmt.Sprintf("take profit triggered for %s: price %.2f >= %.2f", pos.Asset, price, pos.TakeProfit),
				now)
			return &d
		}
	}
	return nil
}

func exitParams(index int, pos domain.Position, price, trigger float64) map[string]any {
	return map[string]any{
		"position_index": index,
		"asset":          pos.Asset,
		"amount":         pos.Amount,
		"entry_price":    pos.EntryPrice,
		"current_price":  price,
		"trigger_price":  trigger,
	}
}
