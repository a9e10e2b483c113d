// orders.go implements the session's order operations.
//
// create_order and cancel_order stamp an optimistic local status
// (CREATE_IN_FLIGHT / CANCEL_IN_FLIGHT) before the first network await, so
// the order is observable in the cache immediately; acknowledgements then
// advance it under the reconciler's monotone rules. Operations go over REST
// or the stream trade endpoint depending on the configured preference and
// whether that endpoint has completed login.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/the-crypto-trade/crypto-trade/internal/metrics"
	"github.com/the-crypto-trade/crypto-trade/internal/stream"
	"github.com/the-crypto-trade/crypto-trade/internal/venue"
	"github.com/the-crypto-trade/crypto-trade/pkg/types"
)

// CreateOrder places an order. A missing client order id is generated; the
// returned order reflects the cache state after the REST acknowledgement,
// or the in-flight state when the operation went over the stream.
func (s *Session) CreateOrder(ctx context.Context, order types.Order, preference types.ApiMethod) (types.Order, error) {
	local := order.LocalUpdateTimePoint
	if local == nil {
		now := types.TimePointNow()
		local = &now
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = s.generateNextClientOrderID()
	}
	order.LocalUpdateTimePoint = local
	order.Status = types.OrderStatusCreateInFlight

	s.cache.AppendOrder(order)
	metrics.Orders.WithLabelValues(s.adapter.Name(), "create").Inc()

	if s.useRestForTrade(preference) {
		if err := s.rest.Send(ctx, s.adapter.CreateOrderRequest(order), s.handleResponse); err != nil {
			return order, err
		}
		if updated, ok := s.cache.GetOrder(order.Symbol, "", order.ClientOrderID); ok {
			return updated, nil
		}
		return order, nil
	}

	id := s.nextWsRequestIDString()
	req, err := s.adapter.CreateOrderStreamRequest(id, order)
	if err != nil {
		return order, fmt.Errorf("build create order frame: %w", err)
	}
	conn, ok := s.tradeConn()
	if !ok {
		return order, fmt.Errorf("trade stream endpoint is not connected")
	}
	if err := s.streams.SendRequest(conn, req); err != nil {
		return order, fmt.Errorf("send create order frame: %w", err)
	}
	return order, nil
}

// CancelOrder requests cancellation of one order, identified by venue id or
// client id.
func (s *Session) CancelOrder(ctx context.Context, ref venue.OrderRef, preference types.ApiMethod, localUpdateTimePoint *types.TimePoint) error {
	local := localUpdateTimePoint
	if local == nil {
		now := types.TimePointNow()
		local = &now
	}
	s.cache.ReplaceOrder(ref.Symbol, ref.OrderID, ref.ClientOrderID, func(o *types.Order) {
		o.Status = types.OrderStatusCancelInFlight
		o.LocalUpdateTimePoint = local
	})
	metrics.Orders.WithLabelValues(s.adapter.Name(), "cancel").Inc()

	if s.useRestForTrade(preference) {
		return s.rest.Send(ctx, s.adapter.CancelOrderRequest(ref), s.handleResponse)
	}

	id := s.nextWsRequestIDString()
	req, err := s.adapter.CancelOrderStreamRequest(id, ref)
	if err != nil {
		return fmt.Errorf("build cancel order frame: %w", err)
	}
	conn, ok := s.tradeConn()
	if !ok {
		return fmt.Errorf("trade stream endpoint is not connected")
	}
	return s.streams.SendRequest(conn, req)
}

// CancelOrdersOptions filters a cancel-many sweep. The zero value cancels
// every eligible order across all symbols.
type CancelOrdersOptions struct {
	Symbol               string
	OrderIDs             []string
	ClientOrderIDs       []string
	MarginAsset          string
	Preference           types.ApiMethod
	LocalUpdateTimePoint *types.TimePoint
}

// CancelOrders dispatches a cancel for every cancel-eligible order matching
// the filters.
func (s *Session) CancelOrders(ctx context.Context, opts CancelOrdersOptions) error {
	var orders map[string][]types.Order
	if opts.Symbol != "" {
		orders = map[string][]types.Order{opts.Symbol: s.cache.Orders(opts.Symbol)}
	} else {
		orders = s.cache.AllOrders()
	}

	for symbol, ordersForSymbol := range orders {
		for _, order := range ordersForSymbol {
			if !order.IsEligibleToCancel() || !matchesCancelFilters(order, opts) {
				continue
			}
			ref := venue.OrderRef{Symbol: symbol, OrderID: order.OrderID, ClientOrderID: order.ClientOrderID}
			if err := s.CancelOrder(ctx, ref, opts.Preference, opts.LocalUpdateTimePoint); err != nil {
				return err
			}
		}
	}
	return nil
}

func matchesCancelFilters(order types.Order, opts CancelOrdersOptions) bool {
	if len(opts.OrderIDs) > 0 && !containsString(opts.OrderIDs, order.OrderID) {
		return false
	}
	if len(opts.ClientOrderIDs) > 0 && !containsString(opts.ClientOrderIDs, order.ClientOrderID) {
		return false
	}
	if opts.MarginAsset != "" && order.MarginAsset != opts.MarginAsset {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// useRestForTrade decides the channel for one order operation: REST unless
// the stream is preferred and its trade endpoint has completed login.
func (s *Session) useRestForTrade(preference types.ApiMethod) bool {
	effective := preference
	if effective == "" {
		effective = s.opts.TradeApiMethodPreference
	}
	if effective != types.ApiMethodWebsocket {
		return true
	}
	trade := s.adapter.AccountTradeEndpoint()
	return trade == nil || !s.streams.IsLoggedIn(trade.URL())
}

func (s *Session) tradeConn() (*stream.Conn, bool) {
	trade := s.adapter.AccountTradeEndpoint()
	if trade == nil {
		return nil, false
	}
	return s.streams.Conn(trade.URL())
}

// checkOpenOrders triggers a corrective fetch for every open order whose
// local update time is older than the configured threshold.
func (s *Session) checkOpenOrders(ctx context.Context) error {
	return s.checkStalled(ctx, s.cache.OpenOrders(), s.opts.RestAccountCheckOpenOrderThresholdSeconds)
}

// checkInFlightOrders triggers a corrective fetch for every in-flight order
// older than the configured threshold.
func (s *Session) checkInFlightOrders(ctx context.Context) error {
	return s.checkStalled(ctx, s.cache.InFlightOrders(), s.opts.RestAccountCheckInFlightOrderThresholdSeconds)
}

func (s *Session) checkStalled(ctx context.Context, orders map[string][]types.Order, thresholdSeconds int64) error {
	for symbol, ordersForSymbol := range orders {
		for _, order := range ordersForSymbol {
			if order.LocalUpdateTimePoint == nil {
				continue
			}
			age := types.TimePointNow().Sub(*order.LocalUpdateTimePoint)
			if age <= secondsDuration(thresholdSeconds) {
				continue
			}
			ref := venue.OrderRef{Symbol: symbol, OrderID: order.OrderID, ClientOrderID: order.ClientOrderID}
			if err := s.rest.Send(ctx, s.adapter.FetchOrderRequest(ref), s.handleResponse); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.opts.AccountRequestDelay()):
			}
		}
	}
	return nil
}

// generateNextClientOrderID produces unix seconds concatenated with a
// zero-padded per-second counter. The counter resets whenever the second
// advances.
func (s *Session) generateNextClientOrderID() string {
	s.clientOrderIDMu.Lock()
	defer s.clientOrderIDMu.Unlock()

	now := types.TimePointNow().Seconds
	if s.clientOrderIDSecond != now {
		s.clientOrderIDSecond = now
		s.clientOrderIDCounter = 0
	} else {
		s.clientOrderIDCounter++
	}
	return fmt.Sprintf("%d%0*d", s.clientOrderIDSecond, s.opts.ClientOrderIDSequencePaddingLength, s.clientOrderIDCounter)
}
