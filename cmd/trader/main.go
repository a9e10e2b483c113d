// Command trader is the quick-start client: it opens an OKX session with
// top-of-book and order subscriptions, places a far-from-market limit order,
// cancels it, and prints the cache along the way.
//
// Credentials come from the environment (API_KEY, API_SECRET,
// API_PASSPHRASE); set IS_PAPER_TRADING=true to run against the demo
// environment. A .env file in the working directory is loaded first.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/the-crypto-trade/crypto-trade/internal/config"
	"github.com/the-crypto-trade/crypto-trade/internal/session"
	"github.com/the-crypto-trade/crypto-trade/internal/venue/okx"
	"github.com/the-crypto-trade/crypto-trade/pkg/types"
)

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(os.Getenv("LOG_LEVEL"))}))

	const symbol = "BTC-USDT"

	opts := config.Default()
	opts.Symbols = []string{symbol}
	opts.InstrumentType = okx.InstrumentTypeSpot
	opts.SubscribeBbo = true
	opts.SubscribeOrder = true
	config.ApplyEnv(&opts)

	sess, err := session.New(opts, okx.New(opts), logger)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := sess.Start(ctx); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}

	if bbo, ok := sess.Cache().Bbo(symbol); ok {
		fmt.Printf("bbo: bid %s x %s / ask %s x %s\n", bbo.BestBidPrice, bbo.BestBidSize, bbo.BestAskPrice, bbo.BestAskSize)
	}

	if opts.ApiKey != "" {
		quantity := "0.00001"
		if instrument, ok := sess.Cache().Instrument(symbol); ok && instrument.OrderQuantityMin != "" {
			quantity = instrument.OrderQuantityMin
		}

		order, err := sess.CreateOrder(ctx, types.Order{
			Symbol:   symbol,
			IsBuy:    true,
			Price:    "10000",
			Quantity: quantity,
		}, "")
		if err != nil {
			logger.Error("create order failed", "error", err)
		} else {
			fmt.Printf("created: %s status %s\n", order.ClientOrderID, order.Status)

			time.Sleep(time.Second)
			if cached, ok := sess.Cache().GetOrder(symbol, "", order.ClientOrderID); ok {
				fmt.Printf("after 1s: status %s\n", cached.Status)
			}

			if err := sess.CancelOrders(ctx, session.CancelOrdersOptions{
				Symbol:         symbol,
				ClientOrderIDs: []string{order.ClientOrderID},
			}); err != nil {
				logger.Error("cancel order failed", "error", err)
			}
		}
	}

	logger.Info("running, press ctrl-c to stop")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	sess.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARNING":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
