// Package session is the exchange session orchestrator.
//
// A Session owns one venue adapter, one HTTP pipeline, one stream manager
// and one state cache, and wires them together: initial sync, periodic REST
// pulls, historical bootstrap, stream dispatch, order lifecycle operations,
// retention sweeps and graceful shutdown. Every background goroutine is
// registered with the session's task registry and joined on Stop. A session
// is one-shot; after Stop it is unusable.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/the-crypto-trade/crypto-trade/internal/cache"
	"github.com/the-crypto-trade/crypto-trade/internal/config"
	"github.com/the-crypto-trade/crypto-trade/internal/rest"
	"github.com/the-crypto-trade/crypto-trade/internal/stream"
	"github.com/the-crypto-trade/crypto-trade/internal/venue"
	"github.com/the-crypto-trade/crypto-trade/pkg/types"
)

// Session is one live connection to an exchange account.
type Session struct {
	opts    config.Options
	adapter venue.Adapter
	cache   *cache.Cache
	rest    *rest.Pipeline
	streams *stream.Manager
	logger  *slog.Logger

	// symbols is the resolved instrument set; the "*" wildcard expands to
	// all tradable symbols during Start.
	symbolsMu sync.Mutex
	symbols   map[string]bool

	// Historical window ends default to the session construction time.
	historicalTradeEnd int64
	historicalOhlcvEnd int64
	historicalOrderEnd int64
	historicalFillEnd  int64

	nextRestRequestID atomic.Int64
	nextWsRequestID   atomic.Int64

	clientOrderIDMu      sync.Mutex
	clientOrderIDSecond  int64
	clientOrderIDCounter int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped atomic.Bool
}

// New wires a session. Configuration failures (unknown instrument type,
// invalid options) are fatal here, before any network activity.
func New(opts config.Options, adapter venue.Adapter, logger *slog.Logger) (*Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if err := adapter.ValidateInstrumentType(opts.InstrumentType); err != nil {
		return nil, err
	}

	now := types.TimePointNow().Seconds
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		opts:    opts,
		adapter: adapter,
		cache:   cache.New(opts.MarginAsset),
		logger:  logger.With("exchange", adapter.Name(), "exchange_id", opts.ExchangeID, "instrument_type", opts.InstrumentType),
		symbols: make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, symbol := range opts.Symbols {
		if symbol != "" {
			s.symbols[symbol] = true
		}
	}

	s.historicalTradeEnd = defaultEnd(opts.FetchHistoricalTradeEndUnixTimestampSeconds, now)
	s.historicalOhlcvEnd = defaultEnd(opts.FetchHistoricalOhlcvEndUnixTimestampSeconds, now)
	s.historicalOrderEnd = defaultEnd(opts.FetchHistoricalOrderEndUnixTimestampSeconds, now)
	s.historicalFillEnd = defaultEnd(opts.FetchHistoricalFillEndUnixTimestampSeconds, now)

	s.rest = rest.New(adapter.Name(), s.logger)
	s.streams = stream.New(adapter.Name(), stream.Config{
		ProtocolHeartbeatPeriod: opts.ProtocolHeartbeatPeriod(),
		AppHeartbeatPeriod:      opts.AppHeartbeatPeriod(),
		AppHeartbeatTimeout:     opts.AppHeartbeatTimeout(),
		AutoReconnect:           opts.WebsocketConnectionAutoReconnect,
		AppPing:                 adapter.AppPingRequest,
	}, stream.Callbacks{
		OnConnected: s.onStreamConnected,
		OnMessage:   s.onStreamMessage,
	}, s.logger)

	if aware, ok := adapter.(venue.SessionAware); ok {
		aware.BindSession(s.SymbolSet, s.cache.Instrument)
	}
	return s, nil
}

func defaultEnd(configured, now int64) int64 {
	if configured != 0 {
		return configured
	}
	return now
}

// Cache exposes the synchronized state for strategies to observe.
func (s *Session) Cache() *cache.Cache { return s.cache }

// Options returns the session configuration.
func (s *Session) Options() config.Options { return s.opts }

// SymbolSet returns the resolved symbol set.
func (s *Session) SymbolSet() map[string]bool {
	s.symbolsMu.Lock()
	defer s.symbolsMu.Unlock()
	out := make(map[string]bool, len(s.symbols))
	for k, v := range s.symbols {
		out[k] = v
	}
	return out
}

// Symbols returns the resolved symbols, sorted.
func (s *Session) Symbols() []string {
	s.symbolsMu.Lock()
	defer s.symbolsMu.Unlock()
	out := make([]string, 0, len(s.symbols))
	for symbol := range s.symbols {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Start brings the session up: instrument resolution, bootstrap fetches,
// periodic pulls, retention sweeps, stream connections and historical
// backfill. Returns after the configured start-wait settle delay.
func (s *Session) Start(ctx context.Context) error {
	s.logger.Info("starting...")
	opts := s.opts

	// Instruments come first so the wildcard can expand against a fresh
	// instrument map.
	if opts.RestMarketDataFetchAllInstrumentInformationAtStart || opts.InstrumentRefreshPeriod() > 0 {
		if err := s.rest.Send(ctx, s.adapter.FetchInstrumentsRequest(), s.handleResponse); err != nil {
			return fmt.Errorf("fetch instruments: %w", err)
		}
		s.expandWildcardSymbols()
	}
	s.spawnPeriodic("instrument-refresh", opts.InstrumentRefreshPeriod(), func(ctx context.Context) error {
		return s.rest.Send(ctx, s.adapter.FetchInstrumentsRequest(), s.handleResponse)
	})

	if opts.SubscribeBbo || opts.BboFetchPeriod() > 0 {
		if err := s.rest.Send(ctx, s.adapter.FetchBboRequest(), s.handleResponse); err != nil {
			return fmt.Errorf("fetch bbo: %w", err)
		}
	}
	s.spawnPeriodic("bbo-fetch", opts.BboFetchPeriod(), func(ctx context.Context) error {
		return s.rest.Send(ctx, s.adapter.FetchBboRequest(), s.handleResponse)
	})

	// Open orders bootstrap, optionally cancelling everything found.
	if opts.SubscribeOrder || opts.RestAccountFetchOpenOrderAtStart || opts.RestAccountCancelOpenOrderAtStart {
		if err := s.rest.Send(ctx, s.adapter.FetchOpenOrderRequest(), s.handleResponse); err != nil {
			return fmt.Errorf("fetch open orders: %w", err)
		}
		if opts.RestAccountCancelOpenOrderAtStart {
			if err := s.CancelOrders(ctx, CancelOrdersOptions{Preference: types.ApiMethodRest}); err != nil {
				s.logger.Error("cancel open orders at start", "error", err)
			}
		}
	}

	s.spawnPeriodic("open-order-check", opts.OpenOrderCheckPeriod(), s.checkOpenOrders)
	s.spawnPeriodic("in-flight-order-check", opts.InFlightOrderCheckPeriod(), s.checkInFlightOrders)

	if opts.SubscribePosition || opts.PositionFetchPeriod() > 0 {
		if err := s.rest.Send(ctx, s.adapter.FetchPositionRequest(), s.handleResponse); err != nil {
			return fmt.Errorf("fetch positions: %w", err)
		}
	}
	if s.adapter.FetchPositionRequest() != nil {
		s.spawnPeriodic("position-fetch", opts.PositionFetchPeriod(), func(ctx context.Context) error {
			return s.rest.Send(ctx, s.adapter.FetchPositionRequest(), s.handleResponse)
		})
	}

	if opts.SubscribeBalance || opts.BalanceFetchPeriod() > 0 {
		if err := s.rest.Send(ctx, s.adapter.FetchBalanceRequest(), s.handleResponse); err != nil {
			return fmt.Errorf("fetch balance: %w", err)
		}
	}
	s.spawnPeriodic("balance-fetch", opts.BalanceFetchPeriod(), func(ctx context.Context) error {
		return s.rest.Send(ctx, s.adapter.FetchBalanceRequest(), s.handleResponse)
	})

	// Retention sweeps.
	if opts.SubscribeTrade || opts.FetchHistoricalTradeAtStart {
		s.spawnPeriodic("trade-retention", secondsDuration(opts.RemoveHistoricalTradeIntervalSeconds), func(context.Context) error {
			s.cache.RemoveExpiredTrades(opts.KeepHistoricalTradeSeconds)
			return nil
		})
	}
	if opts.SubscribeOhlcv || opts.FetchHistoricalOhlcvAtStart {
		s.spawnPeriodic("ohlcv-retention", secondsDuration(opts.RemoveHistoricalOhlcvIntervalSeconds), func(context.Context) error {
			s.cache.RemoveExpiredOhlcvs(opts.KeepHistoricalOhlcvSeconds)
			return nil
		})
	}
	if opts.SubscribeOrder || opts.FetchHistoricalOrderAtStart {
		s.spawnPeriodic("order-retention", secondsDuration(opts.RemoveHistoricalOrderIntervalSeconds), func(context.Context) error {
			s.cache.RemoveExpiredOrders(opts.KeepHistoricalOrderSeconds)
			return nil
		})
	}
	if opts.SubscribeFill || opts.FetchHistoricalFillAtStart {
		s.spawnPeriodic("fill-retention", secondsDuration(opts.RemoveHistoricalFillIntervalSeconds), func(context.Context) error {
			s.cache.RemoveExpiredFills(opts.KeepHistoricalFillSeconds)
			return nil
		})
	}

	s.connectStreams()

	// Historical bootstrap: market data and account chains run in
	// parallel, each sequential within itself.
	var bootstrap sync.WaitGroup
	bootstrap.Add(2)
	go func() {
		defer bootstrap.Done()
		s.fetchHistoricalMarketData(ctx)
	}()
	go func() {
		defer bootstrap.Done()
		s.fetchHistoricalAccountData(ctx)
	}()
	bootstrap.Wait()

	if wait := s.opts.StartWait(); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	s.logger.Info("started", "symbols", len(s.Symbols()))
	return nil
}

// Stop flips the terminal flag, closes every stream, cancels and joins all
// tasks, and closes the HTTP session. The session is unusable afterwards.
func (s *Session) Stop() {
	s.logger.Info("stopping...")

	s.stopped.Store(true)
	s.streams.Stop()
	s.cancel()
	s.wg.Wait()
	s.rest.Close()

	if wait := s.opts.StopWait(); wait > 0 {
		time.Sleep(wait)
	}
	s.logger.Info("stopped")
}

func (s *Session) expandWildcardSymbols() {
	if !s.opts.WantsAllSymbols() {
		return
	}
	tradable := s.cache.TradableSymbols()
	s.symbolsMu.Lock()
	s.symbols = make(map[string]bool, len(tradable))
	for _, symbol := range tradable {
		s.symbols[symbol] = true
	}
	s.symbolsMu.Unlock()
}

func (s *Session) connectStreams() {
	hasMarketData := s.opts.SubscribeBbo || s.opts.SubscribeTrade || s.opts.SubscribeOhlcv
	if hasMarketData && len(s.Symbols()) > 0 {
		for _, ep := range s.adapter.MarketDataEndpoints() {
			endpoint := ep
			s.spawnTask("stream-"+endpoint.Path, func(ctx context.Context) {
				if err := s.streams.Run(ctx, endpoint); err != nil && ctx.Err() == nil {
					s.logger.Error("market data stream ended", "url", endpoint.URL(), "error", err)
				}
			})
		}
	}

	hasAccount := s.opts.SubscribeOrder || s.opts.SubscribeFill || s.opts.SubscribePosition || s.opts.SubscribeBalance
	account := s.adapter.AccountEndpoint()
	if hasAccount && account != nil {
		endpoint := *account
		s.spawnTask("stream-account", func(ctx context.Context) {
			if err := s.streams.Run(ctx, endpoint); err != nil && ctx.Err() == nil {
				s.logger.Error("account stream ended", "url", endpoint.URL(), "error", err)
			}
		})
	}

	// A separate trade endpoint is only dialed when stream-side order
	// operations are preferred and the venue splits it off the account
	// endpoint.
	trade := s.adapter.AccountTradeEndpoint()
	if s.opts.TradeApiMethodPreference == types.ApiMethodWebsocket && trade != nil &&
		(account == nil || !hasAccount || trade.URL() != account.URL()) {
		endpoint := *trade
		s.spawnTask("stream-trade", func(ctx context.Context) {
			if err := s.streams.Run(ctx, endpoint); err != nil && ctx.Err() == nil {
				s.logger.Error("trade stream ended", "url", endpoint.URL(), "error", err)
			}
		})
	}
}

func (s *Session) fetchHistoricalMarketData(ctx context.Context) {
	for _, symbol := range s.Symbols() {
		if s.opts.FetchHistoricalTradeAtStart {
			if err := s.rest.Send(ctx, s.adapter.FetchHistoricalTradeRequest(symbol), s.handleResponse); err != nil {
				s.logger.Error("historical trade backfill", "symbol", symbol, "error", err)
			}
		}
		if s.opts.FetchHistoricalOhlcvAtStart {
			if err := s.rest.Send(ctx, s.adapter.FetchHistoricalOhlcvRequest(symbol), s.handleResponse); err != nil {
				s.logger.Error("historical ohlcv backfill", "symbol", symbol, "error", err)
			}
		}
	}
}

func (s *Session) fetchHistoricalAccountData(ctx context.Context) {
	for _, symbol := range s.Symbols() {
		if s.opts.FetchHistoricalOrderAtStart {
			if err := s.rest.Send(ctx, s.adapter.FetchHistoricalOrderRequest(symbol), s.handleResponse); err != nil {
				s.logger.Error("historical order backfill", "symbol", symbol, "error", err)
			}
		}
		if s.opts.FetchHistoricalFillAtStart {
			if err := s.rest.Send(ctx, s.adapter.FetchHistoricalFillRequest(symbol), s.handleResponse); err != nil {
				s.logger.Error("historical fill backfill", "symbol", symbol, "error", err)
			}
		}
	}
}

// spawnTask registers one background goroutine with the task registry.
func (s *Session) spawnTask(name string, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// spawnPeriodic runs fn on a fixed period until the session stops. Errors
// are logged, never propagated: no failure may escape a background task.
func (s *Session) spawnPeriodic(name string, period time.Duration, fn func(ctx context.Context) error) {
	if period <= 0 {
		return
	}
	s.spawnTask(name, func(ctx context.Context) {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil && ctx.Err() == nil {
					s.logger.Error("periodic task failed", "task", name, "error", err)
				}
			}
		}
	})
}

func (s *Session) nextRestRequestIDString() string {
	return fmt.Sprint(s.nextRestRequestID.Add(1))
}

func (s *Session) nextWsRequestIDString() string {
	return fmt.Sprint(s.nextWsRequestID.Add(1))
}

func secondsDuration(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}
