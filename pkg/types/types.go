// Package types defines the shared data model of the trading client.
//
// This package is the common vocabulary for every layer: instruments,
// top-of-book quotes, trades, candles, orders, fills, positions and
// balances. It has no dependencies on internal packages, so it can be
// imported by any layer, including user strategies.
//
// All prices and sizes are carried as the canonical decimal strings the
// exchanges put on the wire. Numeric projections (shopspring decimal,
// float64) are derived at the call site and never stored back; equality
// and merge decisions always go through the decimal form.
package types

import (
	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// ApiMethod identifies which API channel produced or should carry a value.
type ApiMethod string

const (
	ApiMethodRest      ApiMethod = "rest"
	ApiMethodWebsocket ApiMethod = "websocket"
)

// MarginType is the margin mode of an order or position.
type MarginType string

const (
	MarginIsolated MarginType = "isolated"
	MarginCross    MarginType = "cross"
)

// OrderStatus is a totally ordered lifecycle progression. The numeric order
// matters: the order reconciler uses it as one part of its monotone merge
// key, so an update carrying a larger status always merges. A merge takes
// the incoming status, so an update that merges on a newer exchange time
// point replaces a larger status with a smaller one.
type OrderStatus int

const (
	OrderStatusUnknown            OrderStatus = 0
	OrderStatusCreateInFlight     OrderStatus = 1
	OrderStatusCancelInFlight     OrderStatus = 2
	OrderStatusCreateAcknowledged OrderStatus = 3
	OrderStatusCancelAcknowledged OrderStatus = 4
	OrderStatusUntriggered        OrderStatus = 5
	OrderStatusNew                OrderStatus = 6
	OrderStatusPartiallyFilled    OrderStatus = 7
	OrderStatusFilled             OrderStatus = 8
	OrderStatusCanceled           OrderStatus = 9
	OrderStatusExpired            OrderStatus = 10
	OrderStatusRejected           OrderStatus = 11
)

var orderStatusNames = map[OrderStatus]string{
	OrderStatusCreateInFlight:     "CREATE_IN_FLIGHT",
	OrderStatusCancelInFlight:     "CANCEL_IN_FLIGHT",
	OrderStatusCreateAcknowledged: "CREATE_ACKNOWLEDGED",
	OrderStatusCancelAcknowledged: "CANCEL_ACKNOWLEDGED",
	OrderStatusUntriggered:        "UNTRIGGERED",
	OrderStatusNew:                "NEW",
	OrderStatusPartiallyFilled:    "PARTIALLY_FILLED",
	OrderStatusFilled:             "FILLED",
	OrderStatusCanceled:           "CANCELED",
	OrderStatusExpired:            "EXPIRED",
	OrderStatusRejected:           "REJECTED",
}

func (s OrderStatus) String() string {
	if name, ok := orderStatusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// ————————————————————————————————————————————————————————————————————————
// Decimal projections
// ————————————————————————————————————————————————————————————————————————

// Dec parses a canonical decimal string. The second return is false when the
// string is empty or malformed; callers treat that as "absent".
func Dec(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// Float is the float64 shadow of Dec, for call sites (rounding selector,
// display) that demand a float. Never use it for equality or storage.
func Float(s string) (float64, bool) {
	d, ok := Dec(s)
	if !ok {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// ————————————————————————————————————————————————————————————————————————
// Market data entities
// ————————————————————————————————————————————————————————————————————————

// Instrument describes one tradable instrument. Refreshed periodically and
// immutable between refreshes; never deleted during a session.
type Instrument struct {
	ApiMethod               ApiMethod
	Symbol                  string
	ExchangeUpdateTimePoint *TimePoint

	BaseAsset              string
	QuoteAsset             string
	OrderPriceIncrement    string
	OrderQuantityIncrement string
	OrderQuantityMin       string
	OrderQuantityMax       string
	OrderQuoteQuantityMin  string
	OrderQuoteQuantityMax  string
	MarginAsset            string
	UnderlyingSymbol       string
	ContractSize           string
	ContractMultiplier     string
	ExpiryTime             int64
	IsOpenForTrade         bool
}

// Bbo is the best bid and ask for one symbol. Last-write-wins by source
// timestamp.
type Bbo struct {
	ApiMethod               ApiMethod
	Symbol                  string
	ExchangeUpdateTimePoint *TimePoint

	BestBidPrice string
	BestBidSize  string
	BestAskPrice string
	BestAskSize  string
}

// MidPrice returns (bid+ask)/2 as a decimal. ok is false when either side
// is missing.
func (b Bbo) MidPrice() (decimal.Decimal, bool) {
	bid, okBid := Dec(b.BestBidPrice)
	ask, okAsk := Dec(b.BestAskPrice)
	if !okBid || !okAsk {
		return decimal.Decimal{}, false
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), true
}

// Trade is one public trade print.
type Trade struct {
	ApiMethod               ApiMethod
	Symbol                  string
	ExchangeUpdateTimePoint *TimePoint

	TradeID                    string
	IsTradeIDMonotonicIncrease bool
	Price                      string
	Size                       string
	IsBuyerMaker               bool
}

// TradeIDInt is the numeric trade id used as the secondary sort key, or 0
// when the venue's ids are not monotone.
func (t Trade) TradeIDInt() int64 { return monotonicID(t.TradeID, t.IsTradeIDMonotonicIncrease) }

// Ohlcv is one candle. StartUnixTimestampSeconds is the bucket start in
// whole seconds.
type Ohlcv struct {
	ApiMethod               ApiMethod
	Symbol                  string
	ExchangeUpdateTimePoint *TimePoint

	StartUnixTimestampSeconds int64
	OpenPrice                 string
	HighPrice                 string
	LowPrice                  string
	ClosePrice                string
	Volume                    string
	QuoteVolume               string
}

// ————————————————————————————————————————————————————————————————————————
// Account entities
// ————————————————————————————————————————————————————————————————————————

// Order is the reconciler's unit of state. Orders are created locally in
// CREATE_IN_FLIGHT and then merged against acknowledgements, pushes and
// corrective fetches under the monotone merge rules in internal/cache.
type Order struct {
	ApiMethod               ApiMethod
	Symbol                  string
	ExchangeUpdateTimePoint *TimePoint

	OrderID       string
	ClientOrderID string
	IsBuy         bool
	Price         string
	Quantity      string

	IsMarket     bool
	IsPostOnly   bool
	IsFok        bool
	IsIoc        bool
	IsReduceOnly bool

	MarginType  MarginType
	MarginAsset string

	ExtraParams map[string]any

	CumulativeFilledQuantity      string
	CumulativeFilledQuoteQuantity string

	ExchangeCreateTimePoint *TimePoint
	LocalUpdateTimePoint    *TimePoint
	Status                  OrderStatus

	ExtraData any
}

// IsInFlight reports whether the order is local-only: no venue
// acknowledgement has been received yet.
func (o Order) IsInFlight() bool {
	return o.Status != OrderStatusUnknown && o.Status <= OrderStatusCancelInFlight
}

// IsOpen reports whether the order is acknowledged and still working.
func (o Order) IsOpen() bool {
	return o.Status >= OrderStatusCreateAcknowledged && o.Status <= OrderStatusPartiallyFilled
}

// IsCanceled reports whether the order ended as canceled.
func (o Order) IsCanceled() bool { return o.Status == OrderStatusCanceled }

// IsClosed reports whether the order reached a terminal status.
func (o Order) IsClosed() bool { return o.Status >= OrderStatusFilled }

// IsEligibleToCancel reports whether a cancel may still be dispatched:
// the order is open and no cancel has been acknowledged.
func (o Order) IsEligibleToCancel() bool {
	return o.IsOpen() && o.Status != OrderStatusCancelAcknowledged
}

// IsPartiallyOrFullyFilled reports whether any quantity has executed.
func (o Order) IsPartiallyOrFullyFilled() bool {
	return o.Status == OrderStatusPartiallyFilled || o.Status == OrderStatusFilled
}

// QuantityDecimalWithSign returns the order quantity signed by side.
func (o Order) QuantityDecimalWithSign() (decimal.Decimal, bool) {
	d, ok := Dec(o.Quantity)
	if !ok {
		return decimal.Decimal{}, false
	}
	if !o.IsBuy {
		d = d.Neg()
	}
	return d, true
}

// Fill is a single execution against one of our orders.
type Fill struct {
	ApiMethod               ApiMethod
	Symbol                  string
	ExchangeUpdateTimePoint *TimePoint

	OrderID                    string
	ClientOrderID              string
	TradeID                    string
	IsTradeIDMonotonicIncrease bool
	IsBuy                      bool
	Price                      string
	Quantity                   string
	IsMaker                    bool

	FeeAsset    string
	FeeQuantity string
	IsFeeRebate bool
}

// TradeIDInt is the numeric trade id used as the secondary sort key, or 0
// when the venue's ids are not monotone.
func (f Fill) TradeIDInt() int64 { return monotonicID(f.TradeID, f.IsTradeIDMonotonicIncrease) }

// Position is the net exposure for one symbol. Zero-quantity positions are
// absent from the cache.
type Position struct {
	ApiMethod               ApiMethod
	Symbol                  string
	ExchangeUpdateTimePoint *TimePoint

	MarginType        MarginType
	Quantity          string
	IsLong            bool
	EntryPrice        string
	MarkPrice         string
	Leverage          string
	InitialMargin     string
	MaintenanceMargin string
	UnrealizedPnl     string
	LiquidationPrice  string
}

// QuantityDecimalWithSign returns the position quantity signed by direction.
func (p Position) QuantityDecimalWithSign() (decimal.Decimal, bool) {
	d, ok := Dec(p.Quantity)
	if !ok {
		return decimal.Decimal{}, false
	}
	if !p.IsLong {
		d = d.Neg()
	}
	return d, true
}

// Balance is the wallet quantity for one asset. The Symbol field carries the
// asset label. Zero-quantity balances are absent from the cache.
type Balance struct {
	ApiMethod               ApiMethod
	Symbol                  string
	ExchangeUpdateTimePoint *TimePoint

	Quantity string
}

func monotonicID(id string, monotonic bool) int64 {
	if id == "" || !monotonic {
		return 0
	}
	var n int64
	for _, c := range id {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int64(c-'0')
	}
	return n
}
