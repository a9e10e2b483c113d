// handlers.go applies classified REST responses and stream frames to the
// cache. Conversion failures are logged and the payload dropped; the
// connection or chain is never torn down over a malformed message.
package session

import (
	"context"
	"time"

	"github.com/the-crypto-trade/crypto-trade/internal/stream"
	"github.com/the-crypto-trade/crypto-trade/internal/venue"
	"github.com/the-crypto-trade/crypto-trade/internal/wire"
	"github.com/the-crypto-trade/crypto-trade/pkg/types"
)

// handleResponse is the rest.Handler for every request the session issues.
func (s *Session) handleResponse(resp *wire.Response) error {
	if !s.adapter.IsResponseSuccess(resp) {
		s.applyErrorAction(s.adapter.HandleResponseError(resp))
		return nil
	}

	switch s.adapter.ClassifyResponse(resp) {
	case venue.ResponseInstruments:
		instruments, err := s.adapter.ConvertInstruments(resp)
		if err != nil {
			s.logger.Error("convert instruments", "error", err)
			return nil
		}
		s.cache.UpdateInstruments(instruments)

	case venue.ResponseBbo:
		bbos, err := s.adapter.ConvertBbos(resp)
		if err != nil {
			s.logger.Error("convert bbos", "error", err)
			return nil
		}
		s.cache.UpdateBbos(bbos)

	case venue.ResponseHistoricalTrade:
		trades, err := s.adapter.ConvertHistoricalTrades(resp)
		if err != nil {
			s.logger.Error("convert historical trades", "error", err)
			return nil
		}
		s.cache.PrependHistoricalTrades(s.filterTradesWindow(trades))
		resp.NextRequest = s.adapter.NextHistoricalTradeRequest(resp)
		resp.NextRequestDelay = s.opts.MarketDataRequestDelay()

	case venue.ResponseHistoricalOhlcv:
		ohlcvs, err := s.adapter.ConvertHistoricalOhlcvs(resp)
		if err != nil {
			s.logger.Error("convert historical ohlcvs", "error", err)
			return nil
		}
		s.cache.PrependHistoricalOhlcvs(s.filterOhlcvsWindow(ohlcvs))
		resp.NextRequest = s.adapter.NextHistoricalOhlcvRequest(resp)
		resp.NextRequestDelay = s.opts.MarketDataRequestDelay()

	case venue.ResponseCreateOrder:
		order, err := s.adapter.ConvertCreateOrderResponse(resp)
		if err != nil {
			s.logger.Error("convert create order response", "error", err)
			return nil
		}
		s.cache.UpdateOrder(order)

	case venue.ResponseCancelOrder:
		order, err := s.adapter.ConvertCancelOrderResponse(resp)
		if err != nil {
			s.logger.Error("convert cancel order response", "error", err)
			return nil
		}
		s.cache.UpdateOrder(order)

	case venue.ResponseFetchOrder:
		order, err := s.adapter.ConvertFetchOrderResponse(resp)
		if err != nil {
			s.logger.Error("convert fetch order response", "error", err)
			return nil
		}
		s.cache.UpdateOrder(order)

	case venue.ResponseFetchOpenOrder:
		orders, err := s.adapter.ConvertOpenOrders(resp)
		if err != nil {
			s.logger.Error("convert open orders", "error", err)
			return nil
		}
		for _, order := range orders {
			s.cache.UpdateOrder(order)
		}
		resp.NextRequest = s.adapter.NextOpenOrderRequest(resp)
		resp.NextRequestDelay = s.opts.AccountRequestDelay()

	case venue.ResponseFetchPosition:
		positions, err := s.adapter.ConvertPositions(resp)
		if err != nil {
			s.logger.Error("convert positions", "error", err)
			return nil
		}
		s.cache.ReplacePositions(positions)

	case venue.ResponseFetchBalance:
		balances, err := s.adapter.ConvertBalances(resp)
		if err != nil {
			s.logger.Error("convert balances", "error", err)
			return nil
		}
		s.cache.ReplaceBalances(balances)

	case venue.ResponseHistoricalOrder:
		orders, err := s.adapter.ConvertHistoricalOrders(resp)
		if err != nil {
			s.logger.Error("convert historical orders", "error", err)
			return nil
		}
		for _, order := range orders {
			s.cache.UpdateOrder(order)
		}
		resp.NextRequest = s.adapter.NextHistoricalOrderRequest(resp)
		resp.NextRequestDelay = s.opts.AccountRequestDelay()

	case venue.ResponseHistoricalFill:
		fills, err := s.adapter.ConvertHistoricalFills(resp)
		if err != nil {
			s.logger.Error("convert historical fills", "error", err)
			return nil
		}
		s.cache.PrependHistoricalFills(s.filterFillsWindow(fills))
		resp.NextRequest = s.adapter.NextHistoricalFillRequest(resp)
		resp.NextRequestDelay = s.opts.AccountRequestDelay()

	default:
		s.logger.Debug("unclassified response", "path", resp.Request.Path, "status", resp.StatusCode)
	}
	return nil
}

// filterTradesWindow keeps trades inside [start, end) of the configured
// backfill window.
func (s *Session) filterTradesWindow(trades []types.Trade) []types.Trade {
	start := s.opts.FetchHistoricalTradeStartUnixTimestampSeconds
	kept := trades[:0:0]
	for _, t := range trades {
		sec := timePointSeconds(t.ExchangeUpdateTimePoint)
		if (start == 0 || sec >= start) && sec < s.historicalTradeEnd {
			kept = append(kept, t)
		}
	}
	return kept
}

func (s *Session) filterOhlcvsWindow(ohlcvs []types.Ohlcv) []types.Ohlcv {
	start := s.opts.FetchHistoricalOhlcvStartUnixTimestampSeconds
	kept := ohlcvs[:0:0]
	for _, o := range ohlcvs {
		if (start == 0 || o.StartUnixTimestampSeconds >= start) && o.StartUnixTimestampSeconds < s.historicalOhlcvEnd {
			kept = append(kept, o)
		}
	}
	return kept
}

func (s *Session) filterFillsWindow(fills []types.Fill) []types.Fill {
	start := s.opts.FetchHistoricalFillStartUnixTimestampSeconds
	kept := fills[:0:0]
	for _, f := range fills {
		sec := timePointSeconds(f.ExchangeUpdateTimePoint)
		if (start == 0 || sec >= start) && sec < s.historicalFillEnd {
			kept = append(kept, f)
		}
	}
	return kept
}

func timePointSeconds(tp *types.TimePoint) int64 {
	if tp == nil {
		return 0
	}
	return tp.Seconds
}

// applyErrorAction executes the adapter error hook's verdict.
func (s *Session) applyErrorAction(action venue.ErrorAction) {
	if ref := action.RejectOrder; ref != nil {
		now := types.TimePointNow()
		s.cache.ReplaceOrder(ref.Symbol, ref.OrderID, ref.ClientOrderID, func(o *types.Order) {
			o.ExchangeUpdateTimePoint = &now
			o.LocalUpdateTimePoint = &now
			o.Status = types.OrderStatusRejected
		})
	}
	if ref := action.FetchOrder; ref != nil {
		fetch := *ref
		s.spawnTask("corrective-fetch-order", func(ctx context.Context) {
			if err := s.rest.Send(ctx, s.adapter.FetchOrderRequest(fetch), s.handleResponse); err != nil && ctx.Err() == nil {
				s.logger.Error("corrective order fetch", "symbol", fetch.Symbol, "error", err)
			}
		})
	}
}

// ————————————————————————————————————————————————————————————————————————
// Stream dispatch
// ————————————————————————————————————————————————————————————————————————

// onStreamConnected subscribes market data endpoints and logs account
// endpoints in.
func (s *Session) onStreamConnected(ctx context.Context, conn *stream.Conn) {
	if s.isMarketDataEndpoint(conn.Endpoint()) {
		s.subscribeMarketData(ctx, conn)
		return
	}

	login, err := s.adapter.LoginRequest(s.nextWsRequestIDString(), types.TimePointNow())
	if err != nil {
		s.logger.Error("build login request", "error", err)
		return
	}
	if err := s.streams.SendRequest(conn, login); err != nil {
		s.logger.Error("send login request", "url", conn.URL(), "error", err)
	}
}

func (s *Session) isMarketDataEndpoint(ep venue.Endpoint) bool {
	for _, candidate := range s.adapter.MarketDataEndpoints() {
		if candidate.URL() == ep.URL() {
			return true
		}
	}
	return false
}

func (s *Session) subscribeMarketData(ctx context.Context, conn *stream.Conn) {
	requests, err := s.adapter.MarketDataSubscribeRequests(s.nextWsRequestIDString, conn.Endpoint(), s.Symbols(), true)
	if err != nil {
		s.logger.Error("build subscribe requests", "error", err)
		return
	}
	delay := s.opts.SubscribeRequestDelay()
	for i, req := range requests {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
		if err := s.streams.SendRequest(conn, req); err != nil {
			s.logger.Error("send subscribe request", "url", conn.URL(), "error", err)
			return
		}
	}
}

// onStreamMessage classifies one inbound frame and applies it.
func (s *Session) onStreamMessage(conn *stream.Conn, payload string) {
	msg := wire.NewStreamMessage(conn.URL(), conn.Endpoint().Path, payload)
	s.adapter.ExtractStreamSummary(msg)
	if msg.RequestID != "" {
		msg.Request = s.streams.TakePending(msg.RequestID)
	}

	switch s.adapter.ClassifyStreamMessage(msg) {
	case venue.StreamPushBbo:
		if bbos, err := s.adapter.ConvertStreamBbos(msg); err != nil {
			s.logger.Error("convert stream bbos", "error", err)
		} else {
			s.cache.UpdateBbos(bbos)
		}

	case venue.StreamPushTrade:
		if trades, err := s.adapter.ConvertStreamTrades(msg); err != nil {
			s.logger.Error("convert stream trades", "error", err)
		} else {
			s.cache.AppendStreamTrades(trades)
		}

	case venue.StreamPushOhlcv:
		if ohlcvs, err := s.adapter.ConvertStreamOhlcvs(msg); err != nil {
			s.logger.Error("convert stream ohlcvs", "error", err)
		} else {
			s.cache.AppendStreamOhlcvs(ohlcvs)
		}

	case venue.StreamPushOrder:
		// Venues without a dedicated fill channel surface executions on
		// the order channel; serve both caches from one frame.
		if s.opts.SubscribeOrder {
			if orders, err := s.adapter.ConvertStreamOrders(msg); err != nil {
				s.logger.Error("convert stream orders", "error", err)
			} else {
				for _, order := range orders {
					s.cache.UpdateOrder(order)
				}
			}
		}
		if s.opts.SubscribeFill {
			if fills, err := s.adapter.ConvertStreamFills(msg); err != nil {
				s.logger.Error("convert stream fills", "error", err)
			} else {
				s.cache.AppendStreamFills(fills)
			}
		}

	case venue.StreamPushFill:
		if fills, err := s.adapter.ConvertStreamFills(msg); err != nil {
			s.logger.Error("convert stream fills", "error", err)
		} else {
			s.cache.AppendStreamFills(fills)
		}

	case venue.StreamPushPosition:
		if positions, err := s.adapter.ConvertStreamPositions(msg); err != nil {
			s.logger.Error("convert stream positions", "error", err)
		} else {
			s.cache.UpdatePositions(positions)
		}

	case venue.StreamPushBalance:
		if balances, err := s.adapter.ConvertStreamBalances(msg); err != nil {
			s.logger.Error("convert stream balances", "error", err)
		} else {
			s.cache.UpdateBalances(balances)
		}

	case venue.StreamRespCreateOrder:
		if order, err := s.adapter.ConvertStreamCreateOrderResponse(msg); err != nil {
			s.logger.Error("convert stream create order response", "error", err)
		} else {
			s.cache.UpdateOrder(order)
		}

	case venue.StreamRespCancelOrder:
		if order, err := s.adapter.ConvertStreamCancelOrderResponse(msg); err != nil {
			s.logger.Error("convert stream cancel order response", "error", err)
		} else {
			s.cache.UpdateOrder(order)
		}

	case venue.StreamRespSubscribe:
		s.streams.NoteHealthy(s.ctx, conn.URL())

	case venue.StreamRespLogin:
		s.streams.MarkLoggedIn(conn.URL())
		s.streams.NoteHealthy(s.ctx, conn.URL())
		if account := s.adapter.AccountEndpoint(); account != nil && account.URL() == conn.URL() {
			subscribe, err := s.adapter.AccountSubscribeRequest(s.nextWsRequestIDString(), true)
			if err != nil {
				s.logger.Error("build account subscribe request", "error", err)
				return
			}
			if err := s.streams.SendRequest(conn, subscribe); err != nil {
				s.logger.Error("send account subscribe request", "error", err)
			}
		}

	case venue.StreamRespPong:
		s.logger.Debug("received application level pong", "url", conn.URL())

	case venue.StreamRespError:
		s.logger.Warn("stream error response", "url", conn.URL(), "payload", msg.Payload)
		s.applyErrorAction(s.adapter.HandleStreamError(msg))

	default:
		s.logger.Debug("ignored stream frame", "url", conn.URL())
	}
}
