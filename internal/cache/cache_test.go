package cache

import (
	"fmt"
	"testing"

	"github.com/the-crypto-trade/crypto-trade/pkg/types"
)

const testSymbol = "BTC-USDT"

func tp(seconds, nanos int64) *types.TimePoint {
	return &types.TimePoint{Seconds: seconds, Nanos: nanos}
}

func trade(id string, seconds int64) types.Trade {
	return types.Trade{
		Symbol:                     testSymbol,
		ExchangeUpdateTimePoint:    tp(seconds, 0),
		TradeID:                    id,
		IsTradeIDMonotonicIncrease: true,
		Price:                      "50000",
		Size:                       "0.01",
	}
}

func TestUpdateBboLastWriteWins(t *testing.T) {
	t.Parallel()
	c := New("")

	c.UpdateBbos([]types.Bbo{{Symbol: testSymbol, ExchangeUpdateTimePoint: tp(100, 0), BestBidPrice: "1"}})
	c.UpdateBbos([]types.Bbo{{Symbol: testSymbol, ExchangeUpdateTimePoint: tp(99, 0), BestBidPrice: "2"}})

	bbo, ok := c.Bbo(testSymbol)
	if !ok || bbo.BestBidPrice != "1" {
		t.Errorf("older bbo must not replace newer one, got bid %q", bbo.BestBidPrice)
	}

	// Nil incoming timestamp always applies.
	c.UpdateBbos([]types.Bbo{{Symbol: testSymbol, BestBidPrice: "3"}})
	bbo, _ = c.Bbo(testSymbol)
	if bbo.BestBidPrice != "3" {
		t.Errorf("nil-timestamp bbo should overwrite, got bid %q", bbo.BestBidPrice)
	}

	// And a nil stored timestamp is always overwritten.
	c.UpdateBbos([]types.Bbo{{Symbol: testSymbol, ExchangeUpdateTimePoint: tp(1, 0), BestBidPrice: "4"}})
	bbo, _ = c.Bbo(testSymbol)
	if bbo.BestBidPrice != "4" {
		t.Errorf("bbo over nil-timestamp entry should apply, got bid %q", bbo.BestBidPrice)
	}
}

func TestHistoricalTradePrependGapSafety(t *testing.T) {
	t.Parallel()
	c := New("")

	// Live trades arrive first.
	c.AppendStreamTrades([]types.Trade{trade("50", 150), trade("51", 151), trade("52", 152)})

	// Historical page overlaps the live window.
	var page []types.Trade
	for i := int64(30); i <= 60; i++ {
		page = append(page, trade(fmt.Sprintf("%d", i), 100+i))
	}
	c.PrependHistoricalTrades(page)

	got := c.Trades(testSymbol)
	if len(got) != 23 {
		t.Fatalf("len = %d, want 23 (30..49 prepended + 50,51,52)", len(got))
	}
	if got[0].TradeID != "30" || got[19].TradeID != "49" || got[20].TradeID != "50" || got[22].TradeID != "52" {
		t.Errorf("unexpected sequence boundaries: %s .. %s | %s .. %s",
			got[0].TradeID, got[19].TradeID, got[20].TradeID, got[22].TradeID)
	}
	for i := 1; i < len(got); i++ {
		if !tradeKeyOf(got[i-1]).less(tradeKeyOf(got[i])) {
			t.Errorf("sequence not strictly ascending at %d: %s then %s", i, got[i-1].TradeID, got[i].TradeID)
		}
	}
}

func TestStreamTradeAppendDropsReplays(t *testing.T) {
	t.Parallel()
	c := New("")

	c.AppendStreamTrades([]types.Trade{trade("10", 100), trade("11", 101)})
	c.AppendStreamTrades([]types.Trade{trade("11", 101), trade("12", 102)})

	got := c.Trades(testSymbol)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[2].TradeID != "12" {
		t.Errorf("tail = %s, want 12", got[2].TradeID)
	}
}

func TestOhlcvBucketReplacement(t *testing.T) {
	t.Parallel()
	c := New("")

	c.AppendStreamOhlcvs([]types.Ohlcv{{Symbol: testSymbol, StartUnixTimestampSeconds: 60, ClosePrice: "100"}})
	// Same bucket updates in place.
	c.AppendStreamOhlcvs([]types.Ohlcv{{Symbol: testSymbol, StartUnixTimestampSeconds: 60, ClosePrice: "101"}})
	// Next bucket appends.
	c.AppendStreamOhlcvs([]types.Ohlcv{{Symbol: testSymbol, StartUnixTimestampSeconds: 120, ClosePrice: "102"}})

	got := c.Ohlcvs(testSymbol)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ClosePrice != "101" {
		t.Errorf("in-progress bucket close = %s, want 101", got[0].ClosePrice)
	}
	if got[1].StartUnixTimestampSeconds != 120 {
		t.Errorf("tail bucket = %d", got[1].StartUnixTimestampSeconds)
	}
}

func TestOhlcvHistoricalPrepend(t *testing.T) {
	t.Parallel()
	c := New("")

	c.AppendStreamOhlcvs([]types.Ohlcv{{Symbol: testSymbol, StartUnixTimestampSeconds: 180}})
	c.PrependHistoricalOhlcvs([]types.Ohlcv{
		{Symbol: testSymbol, StartUnixTimestampSeconds: 60},
		{Symbol: testSymbol, StartUnixTimestampSeconds: 120},
		{Symbol: testSymbol, StartUnixTimestampSeconds: 180},
	})

	got := c.Ohlcvs(testSymbol)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].StartUnixTimestampSeconds != 60 || got[2].StartUnixTimestampSeconds != 180 {
		t.Errorf("buckets = %d..%d", got[0].StartUnixTimestampSeconds, got[2].StartUnixTimestampSeconds)
	}
}

func TestPositionZeroQuantityRemoves(t *testing.T) {
	t.Parallel()
	c := New("")

	c.UpdatePositions([]types.Position{{Symbol: testSymbol, ExchangeUpdateTimePoint: tp(1, 0), Quantity: "2", IsLong: true}})
	if len(c.Positions()) != 1 {
		t.Fatal("position not stored")
	}
	c.UpdatePositions([]types.Position{{Symbol: testSymbol, ExchangeUpdateTimePoint: tp(2, 0), Quantity: "0", IsLong: true}})
	if len(c.Positions()) != 0 {
		t.Error("zero-quantity position should be removed")
	}
}

func TestPositionLastWriteWins(t *testing.T) {
	t.Parallel()
	c := New("")

	c.UpdatePositions([]types.Position{{Symbol: testSymbol, ExchangeUpdateTimePoint: tp(5, 0), Quantity: "2", IsLong: true}})
	c.UpdatePositions([]types.Position{{Symbol: testSymbol, ExchangeUpdateTimePoint: tp(4, 0), Quantity: "9", IsLong: true}})

	pos := c.Positions()[testSymbol]
	if pos.Quantity != "2" {
		t.Errorf("stale position applied, quantity = %s", pos.Quantity)
	}
}

func TestReplaceBalancesDropsAbsentAssets(t *testing.T) {
	t.Parallel()
	c := New("")

	c.UpdateBalances([]types.Balance{
		{Symbol: "USDT", ExchangeUpdateTimePoint: tp(1, 0), Quantity: "1000"},
		{Symbol: "BTC", ExchangeUpdateTimePoint: tp(1, 0), Quantity: "0.5"},
	})
	c.ReplaceBalances([]types.Balance{
		{Symbol: "USDT", ExchangeUpdateTimePoint: tp(2, 0), Quantity: "900"},
	})

	balances := c.Balances()
	if len(balances) != 1 {
		t.Fatalf("len = %d, want 1", len(balances))
	}
	if balances["USDT"].Quantity != "900" {
		t.Errorf("USDT = %s", balances["USDT"].Quantity)
	}
}

func TestRemoveExpiredTrades(t *testing.T) {
	t.Parallel()
	c := New("")

	c.AppendStreamTrades([]types.Trade{trade("1", 100), trade("2", 200), trade("3", 500)})
	c.RemoveExpiredTrades(300)

	got := c.Trades(testSymbol)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].TradeID != "2" {
		t.Errorf("head = %s, want 2", got[0].TradeID)
	}
}

func TestRemoveExpiredOrdersKeepsOpenOnes(t *testing.T) {
	t.Parallel()
	c := New("")

	c.AppendOrder(types.Order{Symbol: testSymbol, ClientOrderID: "old-closed", Status: types.OrderStatusFilled, LocalUpdateTimePoint: tp(100, 0)})
	c.AppendOrder(types.Order{Symbol: testSymbol, ClientOrderID: "old-open", Status: types.OrderStatusNew, LocalUpdateTimePoint: tp(100, 0)})
	c.AppendOrder(types.Order{Symbol: testSymbol, ClientOrderID: "new-closed", Status: types.OrderStatusCanceled, LocalUpdateTimePoint: tp(1000, 0)})

	c.RemoveExpiredOrders(300)

	orders := c.Orders(testSymbol)
	if len(orders) != 2 {
		t.Fatalf("len = %d, want 2", len(orders))
	}
	if orders[0].ClientOrderID != "old-open" || orders[1].ClientOrderID != "new-closed" {
		t.Errorf("kept %s, %s", orders[0].ClientOrderID, orders[1].ClientOrderID)
	}
}
