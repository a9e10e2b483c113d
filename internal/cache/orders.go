// orders.go implements the order lifecycle reconciler.
//
// Orders reach the cache from four sources: local create/cancel calls,
// create/cancel responses (REST or stream), stream pushes, and corrective
// fetches. Sources race freely, so an update is applied only when it carries
// strictly newer information under the monotone merge key
// (exchange update time point, status, cumulative filled quantity).
package cache

import (
	"github.com/the-crypto-trade/crypto-trade/pkg/types"
)

// GetOrder finds an order by (symbol, client order id | order id). When a
// client order id is given it wins; otherwise the venue order id is used.
// Returns a copy.
func (c *Cache) GetOrder(symbol, orderID, clientOrderID string) (types.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.findOrderLocked(symbol, orderID, clientOrderID); idx >= 0 {
		return c.orders[symbol][idx], true
	}
	return types.Order{}, false
}

func (c *Cache) findOrderLocked(symbol, orderID, clientOrderID string) int {
	for i, o := range c.orders[symbol] {
		if clientOrderID != "" {
			if o.ClientOrderID == clientOrderID {
				return i
			}
		} else if o.OrderID == orderID {
			return i
		}
	}
	return -1
}

// AppendOrder records a new order at the end of the symbol's sequence;
// insertion order records creation order.
func (c *Cache) AppendOrder(order types.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[order.Symbol] = append(c.orders[order.Symbol], order)
}

// ReplaceOrder mutates an existing order in place, bypassing the merge
// predicate. Used for local stamps (CANCEL_IN_FLIGHT) and for marking
// rejections from the error hook.
func (c *Cache) ReplaceOrder(symbol, orderID, clientOrderID string, mutate func(*types.Order)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.findOrderLocked(symbol, orderID, clientOrderID)
	if idx < 0 {
		return false
	}
	mutate(&c.orders[symbol][idx])
	return true
}

// RemoveOrder deletes one order from the sequence.
func (c *Cache) RemoveOrder(symbol, orderID, clientOrderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.findOrderLocked(symbol, orderID, clientOrderID)
	if idx < 0 {
		return
	}
	c.orders[symbol] = append(c.orders[symbol][:idx], c.orders[symbol][idx+1:]...)
}

// UpdateOrder merges an incoming order into the cache.
//
// If no existing order matches, the incoming one is appended as-is (stamped
// with a local update time). Otherwise the update applies only when any of:
//
//	(a) the incoming exchange update time point is strictly newer;
//	(b) the incoming status is strictly greater;
//	(c) the incoming cumulative filled quantity is strictly larger.
//
// On merge, identity fields (side, flags, client id, extras) stay from the
// existing order; venue id, price and quantity take the incoming value when
// present and different; fill progress moves only under (c); the status and
// exchange update time point are taken from the incoming order.
func (c *Cache) UpdateOrder(incoming types.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.findOrderLocked(incoming.Symbol, incoming.OrderID, incoming.ClientOrderID)
	if idx < 0 {
		now := types.TimePointNow()
		incoming.LocalUpdateTimePoint = &now
		c.orders[incoming.Symbol] = append(c.orders[incoming.Symbol], incoming)
		return
	}

	existing := c.orders[incoming.Symbol][idx]

	hasFill := false
	if incomingFilled, ok := types.Dec(incoming.CumulativeFilledQuantity); ok {
		existingFilled, okExisting := types.Dec(existing.CumulativeFilledQuantity)
		hasFill = !okExisting || incomingFilled.GreaterThan(existingFilled)
	}

	newerTimePoint := incoming.ExchangeUpdateTimePoint != nil &&
		(existing.ExchangeUpdateTimePoint == nil ||
			incoming.ExchangeUpdateTimePoint.After(*existing.ExchangeUpdateTimePoint))

	newerStatus := incoming.Status != types.OrderStatusUnknown &&
		(existing.Status == types.OrderStatusUnknown || incoming.Status > existing.Status)

	if !newerTimePoint && !newerStatus && !hasFill {
		return
	}

	merged := existing

	if incoming.OrderID != "" && incoming.OrderID != existing.OrderID {
		merged.OrderID = incoming.OrderID
	}
	if incoming.Price != "" && incoming.Price != existing.Price {
		merged.Price = incoming.Price
	}
	if incoming.Quantity != "" && incoming.Quantity != existing.Quantity {
		merged.Quantity = incoming.Quantity
	}
	if hasFill {
		merged.CumulativeFilledQuantity = incoming.CumulativeFilledQuantity
		merged.CumulativeFilledQuoteQuantity = incoming.CumulativeFilledQuoteQuantity
	}

	merged.ExchangeUpdateTimePoint = incoming.ExchangeUpdateTimePoint
	if existing.ExchangeCreateTimePoint == nil && incoming.ExchangeCreateTimePoint != nil {
		merged.ExchangeCreateTimePoint = incoming.ExchangeCreateTimePoint
	}

	if merged.MarginAsset == "" {
		merged.MarginAsset = c.defaultMarginAsset
	}
	if merged.MarginAsset == "" {
		merged.MarginAsset = c.instruments[existing.Symbol].MarginAsset
	}

	if incoming.LocalUpdateTimePoint != nil {
		merged.LocalUpdateTimePoint = incoming.LocalUpdateTimePoint
	} else {
		now := types.TimePointNow()
		merged.LocalUpdateTimePoint = &now
	}
	merged.Status = incoming.Status

	c.orders[incoming.Symbol][idx] = merged
}

// Orders returns a copy of one symbol's order sequence, in creation order.
func (c *Cache) Orders(symbol string) []types.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Order, len(c.orders[symbol]))
	copy(out, c.orders[symbol])
	return out
}

// AllOrders returns a copy of every symbol's order sequence.
func (c *Cache) AllOrders() map[string][]types.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]types.Order, len(c.orders))
	for symbol, orders := range c.orders {
		cp := make([]types.Order, len(orders))
		copy(cp, orders)
		out[symbol] = cp
	}
	return out
}

// OpenOrders returns every order that is acknowledged and still working.
func (c *Cache) OpenOrders() map[string][]types.Order {
	return c.filterOrders(types.Order.IsOpen)
}

// InFlightOrders returns every order that has no venue acknowledgement yet.
func (c *Cache) InFlightOrders() map[string][]types.Order {
	return c.filterOrders(types.Order.IsInFlight)
}

func (c *Cache) filterOrders(keep func(types.Order) bool) map[string][]types.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]types.Order)
	for symbol, orders := range c.orders {
		var matched []types.Order
		for _, o := range orders {
			if keep(o) {
				matched = append(matched, o)
			}
		}
		if len(matched) > 0 {
			out[symbol] = matched
		}
	}
	return out
}

// RemoveExpiredOrders drops closed orders whose local update time is older
// than keepSeconds, measured against the latest closed order per symbol.
// Open and in-flight orders are never dropped.
func (c *Cache) RemoveExpiredOrders(keepSeconds int64) {
	if keepSeconds <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for symbol, orders := range c.orders {
		var latest *types.TimePoint
		for _, o := range orders {
			if o.IsClosed() && o.LocalUpdateTimePoint != nil &&
				(latest == nil || o.LocalUpdateTimePoint.After(*latest)) {
				latest = o.LocalUpdateTimePoint
			}
		}
		if latest == nil {
			continue
		}
		earliest := latest.Seconds - keepSeconds
		kept := orders[:0:0]
		for _, o := range orders {
			if !o.IsClosed() || (o.LocalUpdateTimePoint != nil && o.LocalUpdateTimePoint.Seconds >= earliest) {
				kept = append(kept, o)
			}
		}
		c.orders[symbol] = kept
	}
}
