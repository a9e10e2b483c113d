// Command marketmaker is a minimal spread-quoting strategy on top of the
// session core: it mirrors the cached top of book and keeps one bid and one
// ask resting half of a fixed spread (spreadBps basis points wide) either
// side of mid, pulling and re-placing quotes whenever the book moves.
//
// The strategy is deliberately thin; it only exercises the consumer
// surface: the cache for observation, create/cancel for action. Session
// options load from a YAML file (MM_CONFIG, default configs/marketmaker.yaml)
// with secrets from the environment; Prometheus metrics serve on
// METRICS_ADDR when set.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/the-crypto-trade/crypto-trade/internal/config"
	"github.com/the-crypto-trade/crypto-trade/internal/numeric"
	"github.com/the-crypto-trade/crypto-trade/internal/session"
	"github.com/the-crypto-trade/crypto-trade/internal/venue/okx"
	"github.com/the-crypto-trade/crypto-trade/pkg/types"
)

const (
	spreadBps       = 10
	quoteSize       = "0.001"
	refreshInterval = 2 * time.Second
)

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfgPath := "configs/marketmaker.yaml"
	if p := os.Getenv("MM_CONFIG"); p != "" {
		cfgPath = p
	}
	opts, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	opts.SubscribeBbo = true
	opts.SubscribeOrder = true
	opts.RestAccountCancelOpenOrderAtStart = true

	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	sess, err := session.New(opts, okx.New(opts), logger)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := sess.Start(ctx); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}

	go quoteLoop(ctx, sess, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cancel()
	if err := sess.CancelOrders(context.Background(), session.CancelOrdersOptions{Preference: types.ApiMethodRest}); err != nil {
		logger.Error("cancel all on shutdown", "error", err)
	}
	sess.Stop()
}

// quoteLoop re-quotes every symbol on a fixed cadence. Quotes are pulled
// and replaced only when the book has moved since the last pass.
func quoteLoop(ctx context.Context, sess *session.Session, logger *slog.Logger) {
	lastMid := make(map[string]decimal.Decimal)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, symbol := range sess.Symbols() {
			bbo, ok := sess.Cache().Bbo(symbol)
			if !ok {
				continue
			}
			mid, ok := bbo.MidPrice()
			if !ok {
				continue
			}
			if prev, ok := lastMid[symbol]; ok && prev.Equal(mid) {
				continue
			}
			lastMid[symbol] = mid

			if err := requote(ctx, sess, symbol, mid); err != nil && ctx.Err() == nil {
				logger.Error("requote failed", "symbol", symbol, "error", err)
			}
		}
	}
}

func requote(ctx context.Context, sess *session.Session, symbol string, mid decimal.Decimal) error {
	if err := sess.CancelOrders(ctx, session.CancelOrdersOptions{Symbol: symbol}); err != nil {
		return err
	}

	instrument, ok := sess.Cache().Instrument(symbol)
	if !ok {
		return nil
	}
	priceIncrement, ok := types.Dec(instrument.OrderPriceIncrement)
	if !ok {
		return nil
	}

	halfSpread := mid.Mul(decimal.NewFromInt(spreadBps)).Div(decimal.NewFromInt(20000))
	bid := numeric.RoundDown(mid.Sub(halfSpread), priceIncrement)
	ask := numeric.RoundUp(mid.Add(halfSpread), priceIncrement)

	for _, quote := range []struct {
		isBuy bool
		price decimal.Decimal
	}{
		{true, bid},
		{false, ask},
	} {
		_, err := sess.CreateOrder(ctx, types.Order{
			Symbol:     symbol,
			IsBuy:      quote.isBuy,
			Price:      numeric.ConvertDecimalToString(quote.price, true),
			Quantity:   quoteSize,
			IsPostOnly: true,
		}, "")
		if err != nil {
			return err
		}
	}
	return nil
}
