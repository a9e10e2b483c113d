// Package cache holds the session's synchronized view of exchange state:
// instruments, top-of-book quotes, trades, candles, orders, fills,
// positions and balances, keyed by symbol (asset for balances).
//
// Two asynchronous sources feed the cache, stream pushes and periodic REST
// pulls, with no cross-source ordering guarantee. Each domain therefore has
// its own merge discipline:
//
//   - Bbo / Position / Balance: last-write-wins by source timestamp; a nil
//     incoming timestamp always applies.
//   - Trade / Fill: kept sorted ascending by (timestamp, monotone id);
//     historical pages prepend strictly before the head, live pushes append
//     strictly after the tail, so replayed overlap is dropped.
//   - Ohlcv: as Trade, except an incoming candle whose bucket equals the
//     tail's replaces the tail (bucket-in-progress update).
//   - Order: the monotone merge rules in orders.go.
//
// All maps are guarded by one mutex; mutation is never distributed across
// goroutines mid-update.
package cache

import (
	"sort"
	"sync"

	"github.com/the-crypto-trade/crypto-trade/pkg/types"
)

// Cache is the concurrency-safe state store. The zero value is not usable;
// call New.
type Cache struct {
	mu sync.Mutex

	instruments map[string]types.Instrument
	bbos        map[string]types.Bbo
	trades      map[string][]types.Trade
	ohlcvs      map[string][]types.Ohlcv
	orders      map[string][]types.Order
	fills       map[string][]types.Fill
	positions   map[string]types.Position
	balances    map[string]types.Balance

	// defaultMarginAsset is the session-level fallback used by the order
	// reconciler when neither the order nor the incoming update carries one.
	defaultMarginAsset string
}

// New creates an empty cache. defaultMarginAsset may be empty.
func New(defaultMarginAsset string) *Cache {
	return &Cache{
		instruments:        make(map[string]types.Instrument),
		bbos:               make(map[string]types.Bbo),
		trades:             make(map[string][]types.Trade),
		ohlcvs:             make(map[string][]types.Ohlcv),
		orders:             make(map[string][]types.Order),
		fills:              make(map[string][]types.Fill),
		positions:          make(map[string]types.Position),
		balances:           make(map[string]types.Balance),
		defaultMarginAsset: defaultMarginAsset,
	}
}

// ————————————————————————————————————————————————————————————————————————
// Instruments
// ————————————————————————————————————————————————————————————————————————

// UpdateInstruments upserts refreshed instrument definitions. Instruments
// are never deleted during a session.
func (c *Cache) UpdateInstruments(instruments []types.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ins := range instruments {
		c.instruments[ins.Symbol] = ins
	}
}

// Instrument returns the definition for one symbol.
func (c *Cache) Instrument(symbol string) (types.Instrument, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ins, ok := c.instruments[symbol]
	return ins, ok
}

// Instruments returns a copy of the instrument map.
func (c *Cache) Instruments() map[string]types.Instrument {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]types.Instrument, len(c.instruments))
	for k, v := range c.instruments {
		out[k] = v
	}
	return out
}

// TradableSymbols returns every symbol whose instrument is open for trade.
func (c *Cache) TradableSymbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for symbol, ins := range c.instruments {
		if ins.IsOpenForTrade {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out
}

// ————————————————————————————————————————————————————————————————————————
// Bbo
// ————————————————————————————————————————————————————————————————————————

// UpdateBbos applies quotes last-write-wins by source timestamp. An entry
// with a nil timestamp on either side always applies.
func (c *Cache) UpdateBbos(bbos []types.Bbo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, bbo := range bbos {
		existing, ok := c.bbos[bbo.Symbol]
		if !ok || existing.ExchangeUpdateTimePoint == nil || bbo.ExchangeUpdateTimePoint == nil ||
			existing.ExchangeUpdateTimePoint.Before(*bbo.ExchangeUpdateTimePoint) {
			c.bbos[bbo.Symbol] = bbo
		}
	}
}

// Bbo returns the current quote for one symbol.
func (c *Cache) Bbo(symbol string) (types.Bbo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bbo, ok := c.bbos[symbol]
	return bbo, ok
}

// ————————————————————————————————————————————————————————————————————————
// Trades
// ————————————————————————————————————————————————————————————————————————

type tradeKey struct {
	tp types.TimePoint
	id int64
}

func tradeKeyOf(t types.Trade) tradeKey {
	k := tradeKey{id: t.TradeIDInt()}
	if t.ExchangeUpdateTimePoint != nil {
		k.tp = *t.ExchangeUpdateTimePoint
	}
	return k
}

func (a tradeKey) less(b tradeKey) bool {
	if cmp := a.tp.Compare(b.tp); cmp != 0 {
		return cmp < 0
	}
	return a.id < b.id
}

// PrependHistoricalTrades inserts a historical page: only items strictly
// earlier than the current head are added.
func (c *Cache) PrependHistoricalTrades(trades []types.Trade) {
	if len(trades) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	symbol := trades[0].Symbol
	incoming := sortedTrades(trades)
	existing := c.trades[symbol]
	if len(existing) == 0 {
		c.trades[symbol] = incoming
		return
	}
	head := tradeKeyOf(existing[0])
	var earlier []types.Trade
	for _, t := range incoming {
		if tradeKeyOf(t).less(head) {
			earlier = append(earlier, t)
		}
	}
	c.trades[symbol] = append(earlier, existing...)
}

// AppendStreamTrades appends live pushes: only items strictly later than the
// current tail are added.
func (c *Cache) AppendStreamTrades(trades []types.Trade) {
	if len(trades) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	symbol := trades[0].Symbol
	incoming := sortedTrades(trades)
	existing := c.trades[symbol]
	if len(existing) == 0 {
		c.trades[symbol] = incoming
		return
	}
	tail := tradeKeyOf(existing[len(existing)-1])
	for _, t := range incoming {
		if tail.less(tradeKeyOf(t)) {
			existing = append(existing, t)
		}
	}
	c.trades[symbol] = existing
}

func sortedTrades(trades []types.Trade) []types.Trade {
	out := make([]types.Trade, len(trades))
	copy(out, trades)
	sort.SliceStable(out, func(i, j int) bool { return tradeKeyOf(out[i]).less(tradeKeyOf(out[j])) })
	return out
}

// Trades returns a copy of the trade sequence for one symbol.
func (c *Cache) Trades(symbol string) []types.Trade {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Trade, len(c.trades[symbol]))
	copy(out, c.trades[symbol])
	return out
}

// RemoveExpiredTrades keeps only trades within keepSeconds of the latest
// trade per symbol.
func (c *Cache) RemoveExpiredTrades(keepSeconds int64) {
	if keepSeconds <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for symbol, trades := range c.trades {
		if len(trades) == 0 {
			continue
		}
		earliest := seconds(trades[len(trades)-1].ExchangeUpdateTimePoint) - keepSeconds
		if seconds(trades[0].ExchangeUpdateTimePoint) >= earliest {
			continue
		}
		kept := trades[:0:0]
		for _, t := range trades {
			if seconds(t.ExchangeUpdateTimePoint) >= earliest {
				kept = append(kept, t)
			}
		}
		c.trades[symbol] = kept
	}
}

// ————————————————————————————————————————————————————————————————————————
// Ohlcv
// ————————————————————————————————————————————————————————————————————————

// PrependHistoricalOhlcvs inserts a historical candle page before the head.
func (c *Cache) PrependHistoricalOhlcvs(ohlcvs []types.Ohlcv) {
	if len(ohlcvs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	symbol := ohlcvs[0].Symbol
	incoming := sortedOhlcvs(ohlcvs)
	existing := c.ohlcvs[symbol]
	if len(existing) == 0 {
		c.ohlcvs[symbol] = incoming
		return
	}
	head := existing[0].StartUnixTimestampSeconds
	var earlier []types.Ohlcv
	for _, o := range incoming {
		if o.StartUnixTimestampSeconds < head {
			earlier = append(earlier, o)
		}
	}
	c.ohlcvs[symbol] = append(earlier, existing...)
}

// AppendStreamOhlcvs appends live candles. An incoming candle whose bucket
// start equals the tail's replaces the tail: the in-progress bucket keeps
// updating until the next one opens.
func (c *Cache) AppendStreamOhlcvs(ohlcvs []types.Ohlcv) {
	if len(ohlcvs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	symbol := ohlcvs[0].Symbol
	incoming := sortedOhlcvs(ohlcvs)
	existing := c.ohlcvs[symbol]
	if len(existing) == 0 {
		c.ohlcvs[symbol] = incoming
		return
	}
	tail := existing[len(existing)-1].StartUnixTimestampSeconds
	if incoming[0].StartUnixTimestampSeconds == tail {
		existing[len(existing)-1] = incoming[0]
	}
	for _, o := range incoming {
		if o.StartUnixTimestampSeconds > tail {
			existing = append(existing, o)
		}
	}
	c.ohlcvs[symbol] = existing
}

func sortedOhlcvs(ohlcvs []types.Ohlcv) []types.Ohlcv {
	out := make([]types.Ohlcv, len(ohlcvs))
	copy(out, ohlcvs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartUnixTimestampSeconds < out[j].StartUnixTimestampSeconds
	})
	return out
}

// Ohlcvs returns a copy of the candle sequence for one symbol.
func (c *Cache) Ohlcvs(symbol string) []types.Ohlcv {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Ohlcv, len(c.ohlcvs[symbol]))
	copy(out, c.ohlcvs[symbol])
	return out
}

// RemoveExpiredOhlcvs keeps only candles within keepSeconds of the latest
// bucket per symbol.
func (c *Cache) RemoveExpiredOhlcvs(keepSeconds int64) {
	if keepSeconds <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for symbol, ohlcvs := range c.ohlcvs {
		if len(ohlcvs) == 0 {
			continue
		}
		earliest := ohlcvs[len(ohlcvs)-1].StartUnixTimestampSeconds - keepSeconds
		if ohlcvs[0].StartUnixTimestampSeconds >= earliest {
			continue
		}
		kept := ohlcvs[:0:0]
		for _, o := range ohlcvs {
			if o.StartUnixTimestampSeconds >= earliest {
				kept = append(kept, o)
			}
		}
		c.ohlcvs[symbol] = kept
	}
}

// ————————————————————————————————————————————————————————————————————————
// Fills
// ————————————————————————————————————————————————————————————————————————

func fillKeyOf(f types.Fill) tradeKey {
	k := tradeKey{id: f.TradeIDInt()}
	if f.ExchangeUpdateTimePoint != nil {
		k.tp = *f.ExchangeUpdateTimePoint
	}
	return k
}

// PrependHistoricalFills inserts a historical page before the head.
func (c *Cache) PrependHistoricalFills(fills []types.Fill) {
	if len(fills) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	symbol := fills[0].Symbol
	incoming := sortedFills(fills)
	existing := c.fills[symbol]
	if len(existing) == 0 {
		c.fills[symbol] = incoming
		return
	}
	head := fillKeyOf(existing[0])
	var earlier []types.Fill
	for _, f := range incoming {
		if fillKeyOf(f).less(head) {
			earlier = append(earlier, f)
		}
	}
	c.fills[symbol] = append(earlier, existing...)
}

// AppendStreamFills appends live fills strictly after the tail.
func (c *Cache) AppendStreamFills(fills []types.Fill) {
	if len(fills) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	symbol := fills[0].Symbol
	incoming := sortedFills(fills)
	existing := c.fills[symbol]
	if len(existing) == 0 {
		c.fills[symbol] = incoming
		return
	}
	tail := fillKeyOf(existing[len(existing)-1])
	for _, f := range incoming {
		if tail.less(fillKeyOf(f)) {
			existing = append(existing, f)
		}
	}
	c.fills[symbol] = existing
}

func sortedFills(fills []types.Fill) []types.Fill {
	out := make([]types.Fill, len(fills))
	copy(out, fills)
	sort.SliceStable(out, func(i, j int) bool { return fillKeyOf(out[i]).less(fillKeyOf(out[j])) })
	return out
}

// Fills returns a copy of the fill sequence for one symbol.
func (c *Cache) Fills(symbol string) []types.Fill {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Fill, len(c.fills[symbol]))
	copy(out, c.fills[symbol])
	return out
}

// RemoveExpiredFills keeps only fills within keepSeconds of the latest fill
// per symbol.
func (c *Cache) RemoveExpiredFills(keepSeconds int64) {
	if keepSeconds <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for symbol, fills := range c.fills {
		if len(fills) == 0 {
			continue
		}
		earliest := seconds(fills[len(fills)-1].ExchangeUpdateTimePoint) - keepSeconds
		if seconds(fills[0].ExchangeUpdateTimePoint) >= earliest {
			continue
		}
		kept := fills[:0:0]
		for _, f := range fills {
			if seconds(f.ExchangeUpdateTimePoint) >= earliest {
				kept = append(kept, f)
			}
		}
		c.fills[symbol] = kept
	}
}

// ————————————————————————————————————————————————————————————————————————
// Positions and balances
// ————————————————————————————————————————————————————————————————————————

// UpdatePositions applies positions last-write-wins by timestamp. A zero
// quantity removes the entry.
func (c *Cache) UpdatePositions(positions []types.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pos := range positions {
		c.updatePositionLocked(pos)
	}
}

// ReplacePositions applies a full position snapshot: every symbol not
// present (with non-zero quantity) in the snapshot is dropped.
func (c *Cache) ReplacePositions(positions []types.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keep := make(map[string]bool, len(positions))
	for _, pos := range positions {
		if d, ok := pos.QuantityDecimalWithSign(); ok && !d.IsZero() {
			keep[pos.Symbol] = true
			c.updatePositionLocked(pos)
		}
	}
	for symbol := range c.positions {
		if !keep[symbol] {
			delete(c.positions, symbol)
		}
	}
}

func (c *Cache) updatePositionLocked(pos types.Position) {
	existing, ok := c.positions[pos.Symbol]
	if ok && existing.ExchangeUpdateTimePoint != nil && pos.ExchangeUpdateTimePoint != nil &&
		!existing.ExchangeUpdateTimePoint.Before(*pos.ExchangeUpdateTimePoint) {
		return
	}
	if d, ok := pos.QuantityDecimalWithSign(); ok && d.IsZero() {
		delete(c.positions, pos.Symbol)
		return
	}
	c.positions[pos.Symbol] = pos
}

// Positions returns a copy of the position map.
func (c *Cache) Positions() map[string]types.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]types.Position, len(c.positions))
	for k, v := range c.positions {
		out[k] = v
	}
	return out
}

// UpdateBalances applies balances last-write-wins by timestamp. A zero
// quantity removes the entry.
func (c *Cache) UpdateBalances(balances []types.Balance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, bal := range balances {
		c.updateBalanceLocked(bal)
	}
}

// ReplaceBalances applies a full balance snapshot, dropping assets that are
// absent (or zero) in the snapshot.
func (c *Cache) ReplaceBalances(balances []types.Balance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keep := make(map[string]bool, len(balances))
	for _, bal := range balances {
		if d, ok := types.Dec(bal.Quantity); ok && !d.IsZero() {
			keep[bal.Symbol] = true
			c.updateBalanceLocked(bal)
		}
	}
	for asset := range c.balances {
		if !keep[asset] {
			delete(c.balances, asset)
		}
	}
}

func (c *Cache) updateBalanceLocked(bal types.Balance) {
	existing, ok := c.balances[bal.Symbol]
	if ok && existing.ExchangeUpdateTimePoint != nil && bal.ExchangeUpdateTimePoint != nil &&
		!existing.ExchangeUpdateTimePoint.Before(*bal.ExchangeUpdateTimePoint) {
		return
	}
	if d, ok := types.Dec(bal.Quantity); ok && d.IsZero() {
		delete(c.balances, bal.Symbol)
		return
	}
	c.balances[bal.Symbol] = bal
}

// Balances returns a copy of the balance map, keyed by asset.
func (c *Cache) Balances() map[string]types.Balance {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]types.Balance, len(c.balances))
	for k, v := range c.balances {
		out[k] = v
	}
	return out
}

func seconds(tp *types.TimePoint) int64 {
	if tp == nil {
		return 0
	}
	return tp.Seconds
}
