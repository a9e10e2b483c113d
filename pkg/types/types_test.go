package types

import (
	"testing"
	"time"
)

func TestOrderStatusOrdering(t *testing.T) {
	t.Parallel()

	progression := []OrderStatus{
		OrderStatusCreateInFlight,
		OrderStatusCancelInFlight,
		OrderStatusCreateAcknowledged,
		OrderStatusCancelAcknowledged,
		OrderStatusUntriggered,
		OrderStatusNew,
		OrderStatusPartiallyFilled,
		OrderStatusFilled,
		OrderStatusCanceled,
		OrderStatusExpired,
		OrderStatusRejected,
	}
	for i := 1; i < len(progression); i++ {
		if progression[i-1] >= progression[i] {
			t.Errorf("%v should sort before %v", progression[i-1], progression[i])
		}
	}
}

func TestOrderPredicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status           OrderStatus
		inFlight         bool
		open             bool
		closed           bool
		eligibleToCancel bool
	}{
		{OrderStatusCreateInFlight, true, false, false, false},
		{OrderStatusCancelInFlight, true, false, false, false},
		{OrderStatusCreateAcknowledged, false, true, false, true},
		{OrderStatusCancelAcknowledged, false, true, false, false},
		{OrderStatusUntriggered, false, true, false, true},
		{OrderStatusNew, false, true, false, true},
		{OrderStatusPartiallyFilled, false, true, false, true},
		{OrderStatusFilled, false, false, true, false},
		{OrderStatusCanceled, false, false, true, false},
		{OrderStatusExpired, false, false, true, false},
		{OrderStatusRejected, false, false, true, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.status.String(), func(t *testing.T) {
			t.Parallel()
			o := Order{Status: tt.status}
			if got := o.IsInFlight(); got != tt.inFlight {
				t.Errorf("IsInFlight() = %v, want %v", got, tt.inFlight)
			}
			if got := o.IsOpen(); got != tt.open {
				t.Errorf("IsOpen() = %v, want %v", got, tt.open)
			}
			if got := o.IsClosed(); got != tt.closed {
				t.Errorf("IsClosed() = %v, want %v", got, tt.closed)
			}
			if got := o.IsEligibleToCancel(); got != tt.eligibleToCancel {
				t.Errorf("IsEligibleToCancel() = %v, want %v", got, tt.eligibleToCancel)
			}
		})
	}
}

func TestOrderPredicatesZeroValue(t *testing.T) {
	t.Parallel()

	var o Order
	if o.IsInFlight() {
		t.Error("zero-status order should not be in flight")
	}
	if o.IsOpen() || o.IsClosed() {
		t.Error("zero-status order should be neither open nor closed")
	}
}

func TestTimePointCompare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b TimePoint
		want int
	}{
		{"equal", TimePoint{10, 5}, TimePoint{10, 5}, 0},
		{"earlier seconds", TimePoint{9, 999_999_999}, TimePoint{10, 0}, -1},
		{"later seconds", TimePoint{11, 0}, TimePoint{10, 999_999_999}, 1},
		{"earlier nanos", TimePoint{10, 4}, TimePoint{10, 5}, -1},
		{"later nanos", TimePoint{10, 6}, TimePoint{10, 5}, 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.a.Compare(tt.b); got != tt.want {
				t.Errorf("Compare = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTimePointSub(t *testing.T) {
	t.Parallel()

	a := TimePoint{Seconds: 12, Nanos: 500_000_000}
	b := TimePoint{Seconds: 10, Nanos: 750_000_000}
	if got, want := a.Sub(b), 1750*time.Millisecond; got != want {
		t.Errorf("Sub = %v, want %v", got, want)
	}
}

func TestTimePointFromUnixMilli(t *testing.T) {
	t.Parallel()

	tp := TimePointFromUnixMilli(1700000123456)
	if tp.Seconds != 1700000123 || tp.Nanos != 456_000_000 {
		t.Errorf("TimePointFromUnixMilli = %+v", tp)
	}
}

func TestTradeIDInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		id        string
		monotonic bool
		want      int64
	}{
		{"numeric monotonic", "12345", true, 12345},
		{"not monotonic", "12345", false, 0},
		{"empty", "", true, 0},
		{"non-numeric", "a1b2", true, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := Trade{TradeID: tt.id, IsTradeIDMonotonicIncrease: tt.monotonic}
			if got := tr.TradeIDInt(); got != tt.want {
				t.Errorf("TradeIDInt = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBboMidPrice(t *testing.T) {
	t.Parallel()

	b := Bbo{BestBidPrice: "100.5", BestAskPrice: "101.5"}
	mid, ok := b.MidPrice()
	if !ok {
		t.Fatal("MidPrice returned ok=false")
	}
	if mid.String() != "101" {
		t.Errorf("mid = %s, want 101", mid)
	}

	if _, ok := (Bbo{BestBidPrice: "100.5"}).MidPrice(); ok {
		t.Error("MidPrice should be absent when one side is missing")
	}
}

func TestSignedQuantities(t *testing.T) {
	t.Parallel()

	sell := Order{IsBuy: false, Quantity: "0.25"}
	d, ok := sell.QuantityDecimalWithSign()
	if !ok || d.String() != "-0.25" {
		t.Errorf("sell quantity = %s, ok=%v", d, ok)
	}

	short := Position{IsLong: false, Quantity: "3"}
	d, ok = short.QuantityDecimalWithSign()
	if !ok || d.String() != "-3" {
		t.Errorf("short position = %s, ok=%v", d, ok)
	}
}
