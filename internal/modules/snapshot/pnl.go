// Package snapshot computes realized PnL over fill history and writes
// the daily portfolio rollup per client.
package snapshot

import (
	"github.com/shopspring/decimal"

	"github.com/teamscryps/backend/internal/domain"
	"github.com/teamscryps/backend/internal/modules/orders"
)

// lot is one open buy parcel in the FIFO queue.
type lot struct {
	qty   int64
	price decimal.Decimal
}

// RealizedPnL walks a user's fills in (created_at, id) order keeping a
// per-symbol FIFO queue of open buy lots. Each sell fill consumes lots
// front-first, realizing (sell_price - lot_price) * matched_qty. A sell
// that outruns the queue is matched at zero basis: shorting is not
// supported, so the excess proceeds count as pure gain.
func RealizedPnL(fills []orders.UserFill) decimal.Decimal {
	queues := make(map[string][]lot)
	total := decimal.Zero

	for _, uf := range fills {
		switch uf.Side {
		case domain.SideBuy:
			queues[uf.Symbol] = append(queues[uf.Symbol], lot{qty: uf.Fill.Quantity, price: uf.Fill.Price})

		case domain.SideSell:
			remaining := uf.Fill.Quantity
			queue := queues[uf.Symbol]
			for remaining > 0 && len(queue) > 0 {
				head := &queue[0]
				matched := remaining
				if matched > head.qty {
					matched = head.qty
				}
				total = total.Add(uf.Fill.Price.Sub(head.price).Mul(decimal.NewFromInt(matched)))
				head.qty -= matched
				remaining -= matched
				if head.qty == 0 {
					queue = queue[1:]
				}
			}
			if remaining > 0 {
				total = total.Add(uf.Fill.Price.Mul(decimal.NewFromInt(remaining)))
			}
			queues[uf.Symbol] = queue
		}
	}

	return domain.RoundCash(total)
}
