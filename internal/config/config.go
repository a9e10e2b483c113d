// Package config defines the session configuration record.
//
// Options is loaded from a YAML file (viper) with sensitive fields
// overridable via environment variables: API_KEY, API_SECRET,
// API_PASSPHRASE, IS_PAPER_TRADING. Logging settings (LOG_LEVEL, LOG_DIR)
// are not part of Options. Field names in the YAML file match the
// mapstructure tags below. Durations are expressed in
// seconds, the way the consumer surface spells them; a zero period disables
// the matching periodic task.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/the-crypto-trade/crypto-trade/pkg/types"
)

// Options configures one exchange session.
type Options struct {
	// ExchangeID is arbitrary user-defined data echoed in logs.
	ExchangeID string `mapstructure:"exchange_id"`

	// Symbols is the instrument set; "*" expands to all tradable symbols.
	Symbols []string `mapstructure:"symbols"`

	// InstrumentType is the venue-specific market segment. Validated by the
	// adapter when the session is created; unknown values are fatal.
	InstrumentType string `mapstructure:"instrument_type"`

	// MarginAsset is the session-level default margin asset.
	MarginAsset string `mapstructure:"margin_asset"`

	// Account credentials.
	IsPaperTrading bool   `mapstructure:"is_paper_trading"`
	ApiKey         string `mapstructure:"api_key"`
	ApiSecret      string `mapstructure:"api_secret"`
	ApiPassphrase  string `mapstructure:"api_passphrase"`

	// Subscriptions: each turns on the corresponding cache and stream.
	SubscribeBbo      bool `mapstructure:"subscribe_bbo"`
	SubscribeTrade    bool `mapstructure:"subscribe_trade"`
	SubscribeOhlcv    bool `mapstructure:"subscribe_ohlcv"`
	SubscribeOrder    bool `mapstructure:"subscribe_order"`
	SubscribeFill     bool `mapstructure:"subscribe_fill"`
	SubscribePosition bool `mapstructure:"subscribe_position"`
	SubscribeBalance  bool `mapstructure:"subscribe_balance"`

	// Candle interval.
	OhlcvIntervalSeconds        int  `mapstructure:"ohlcv_interval_seconds"`
	IsOhlcvIntervalAlignedToUTC bool `mapstructure:"is_ohlcv_interval_aligned_to_utc"`

	// Historical backfill bounds, one block per domain. End defaults to the
	// time the session is created when zero.
	FetchHistoricalTradeAtStart                   bool  `mapstructure:"fetch_historical_trade_at_start"`
	FetchHistoricalTradeStartUnixTimestampSeconds int64 `mapstructure:"fetch_historical_trade_start_unix_timestamp_seconds"`
	FetchHistoricalTradeEndUnixTimestampSeconds   int64 `mapstructure:"fetch_historical_trade_end_unix_timestamp_seconds"`
	KeepHistoricalTradeSeconds                    int64 `mapstructure:"keep_historical_trade_seconds"`
	RemoveHistoricalTradeIntervalSeconds          int64 `mapstructure:"remove_historical_trade_interval_seconds"`

	FetchHistoricalOhlcvAtStart                   bool  `mapstructure:"fetch_historical_ohlcv_at_start"`
	FetchHistoricalOhlcvStartUnixTimestampSeconds int64 `mapstructure:"fetch_historical_ohlcv_start_unix_timestamp_seconds"`
	FetchHistoricalOhlcvEndUnixTimestampSeconds   int64 `mapstructure:"fetch_historical_ohlcv_end_unix_timestamp_seconds"`
	KeepHistoricalOhlcvSeconds                    int64 `mapstructure:"keep_historical_ohlcv_seconds"`
	RemoveHistoricalOhlcvIntervalSeconds          int64 `mapstructure:"remove_historical_ohlcv_interval_seconds"`

	FetchHistoricalOrderAtStart                   bool  `mapstructure:"fetch_historical_order_at_start"`
	FetchHistoricalOrderStartUnixTimestampSeconds int64 `mapstructure:"fetch_historical_order_start_unix_timestamp_seconds"`
	FetchHistoricalOrderEndUnixTimestampSeconds   int64 `mapstructure:"fetch_historical_order_end_unix_timestamp_seconds"`
	KeepHistoricalOrderSeconds                    int64 `mapstructure:"keep_historical_order_seconds"`
	RemoveHistoricalOrderIntervalSeconds          int64 `mapstructure:"remove_historical_order_interval_seconds"`

	FetchHistoricalFillAtStart                   bool  `mapstructure:"fetch_historical_fill_at_start"`
	FetchHistoricalFillStartUnixTimestampSeconds int64 `mapstructure:"fetch_historical_fill_start_unix_timestamp_seconds"`
	FetchHistoricalFillEndUnixTimestampSeconds   int64 `mapstructure:"fetch_historical_fill_end_unix_timestamp_seconds"`
	KeepHistoricalFillSeconds                    int64 `mapstructure:"keep_historical_fill_seconds"`
	RemoveHistoricalFillIntervalSeconds          int64 `mapstructure:"remove_historical_fill_interval_seconds"`

	// Periodic REST synchronization.
	RestMarketDataFetchAllInstrumentInformationAtStart       bool  `mapstructure:"rest_market_data_fetch_all_instrument_information_at_start"`
	RestMarketDataFetchAllInstrumentInformationPeriodSeconds int64 `mapstructure:"rest_market_data_fetch_all_instrument_information_period_seconds"`
	RestMarketDataFetchBboPeriodSeconds                      int64 `mapstructure:"rest_market_data_fetch_bbo_period_seconds"`
	RestAccountFetchOpenOrderAtStart                         bool  `mapstructure:"rest_account_fetch_open_order_at_start"`
	RestAccountCancelOpenOrderAtStart                        bool  `mapstructure:"rest_account_cancel_open_order_at_start"`
	RestAccountCheckOpenOrderPeriodSeconds                   int64 `mapstructure:"rest_account_check_open_order_period_seconds"`
	RestAccountCheckOpenOrderThresholdSeconds                int64 `mapstructure:"rest_account_check_open_order_threshold_seconds"`
	RestAccountCheckInFlightOrderPeriodSeconds               int64 `mapstructure:"rest_account_check_in_flight_order_period_seconds"`
	RestAccountCheckInFlightOrderThresholdSeconds            int64 `mapstructure:"rest_account_check_in_flight_order_threshold_seconds"`
	RestAccountFetchPositionPeriodSeconds                    int64 `mapstructure:"rest_account_fetch_position_period_seconds"`
	RestAccountFetchBalancePeriodSeconds                     int64 `mapstructure:"rest_account_fetch_balance_period_seconds"`

	// Inter-request pacing for paginated chains.
	RestMarketDataSendConsecutiveRequestDelaySeconds float64 `mapstructure:"rest_market_data_send_consecutive_request_delay_seconds"`
	RestAccountSendConsecutiveRequestDelaySeconds    float64 `mapstructure:"rest_account_send_consecutive_request_delay_seconds"`

	// Streaming connection tuning.
	WebsocketConnectionProtocolLevelHeartbeatPeriodSeconds       int64   `mapstructure:"websocket_connection_protocol_level_heartbeat_period_seconds"`
	WebsocketConnectionApplicationLevelHeartbeatPeriodSeconds    int64   `mapstructure:"websocket_connection_application_level_heartbeat_period_seconds"`
	WebsocketConnectionApplicationLevelHeartbeatTimeoutSeconds   int64   `mapstructure:"websocket_connection_application_level_heartbeat_timeout_seconds"`
	WebsocketConnectionAutoReconnect                             bool    `mapstructure:"websocket_connection_auto_reconnect"`
	WebsocketMarketDataChannelSymbolsLimit                       int     `mapstructure:"websocket_market_data_channel_symbols_limit"`
	WebsocketMarketDataChannelSendConsecutiveRequestDelaySeconds float64 `mapstructure:"websocket_market_data_channel_send_consecutive_request_delay_seconds"`

	// TradeApiMethodPreference chooses REST or stream for order operations
	// when the stream trade endpoint is logged in.
	TradeApiMethodPreference types.ApiMethod `mapstructure:"trade_api_method_preference"`

	// Settle delays.
	StartWaitSeconds float64 `mapstructure:"start_wait_seconds"`
	StopWaitSeconds  float64 `mapstructure:"stop_wait_seconds"`

	// ClientOrderIDSequencePaddingLength is the zero-padding width of the
	// per-second counter suffix in generated client order ids.
	ClientOrderIDSequencePaddingLength int `mapstructure:"client_order_id_sequence_padding_length"`

	// ExtraData is arbitrary user-defined data.
	ExtraData any `mapstructure:"-"`
}

// Default returns the option defaults shared by every venue.
func Default() Options {
	return Options{
		Symbols: []string{"*"},

		OhlcvIntervalSeconds:        60,
		IsOhlcvIntervalAlignedToUTC: true,

		KeepHistoricalTradeSeconds:           300,
		RemoveHistoricalTradeIntervalSeconds: 60,
		KeepHistoricalOhlcvSeconds:           300,
		RemoveHistoricalOhlcvIntervalSeconds: 60,
		KeepHistoricalOrderSeconds:           300,
		RemoveHistoricalOrderIntervalSeconds: 60,
		KeepHistoricalFillSeconds:            300,
		RemoveHistoricalFillIntervalSeconds:  60,

		RestMarketDataFetchAllInstrumentInformationAtStart:       true,
		RestMarketDataFetchAllInstrumentInformationPeriodSeconds: 300,
		RestMarketDataFetchBboPeriodSeconds:                      300,
		RestAccountFetchOpenOrderAtStart:                         true,
		RestAccountCheckOpenOrderPeriodSeconds:                   60,
		RestAccountCheckOpenOrderThresholdSeconds:                60,
		RestAccountCheckInFlightOrderPeriodSeconds:               10,
		RestAccountCheckInFlightOrderThresholdSeconds:            10,
		RestAccountFetchPositionPeriodSeconds:                    60,
		RestAccountFetchBalancePeriodSeconds:                     60,

		RestMarketDataSendConsecutiveRequestDelaySeconds: 0.05,
		RestAccountSendConsecutiveRequestDelaySeconds:    0.05,

		WebsocketConnectionProtocolLevelHeartbeatPeriodSeconds:       10,
		WebsocketConnectionApplicationLevelHeartbeatPeriodSeconds:    10,
		WebsocketConnectionApplicationLevelHeartbeatTimeoutSeconds:   20,
		WebsocketConnectionAutoReconnect:                             true,
		WebsocketMarketDataChannelSymbolsLimit:                       50,
		WebsocketMarketDataChannelSendConsecutiveRequestDelaySeconds: 0.05,

		TradeApiMethodPreference: types.ApiMethodRest,

		StartWaitSeconds: 1,
		StopWaitSeconds:  1,

		ClientOrderIDSequencePaddingLength: 3,
	}
}

// Load reads options from a YAML file over the defaults, then applies env
// overrides for secrets.
func Load(path string) (Options, error) {
	opts := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return opts, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(&opts); err != nil {
		return opts, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyEnv(&opts)
	return opts, nil
}

// ApplyEnv overrides sensitive fields from the environment.
func ApplyEnv(opts *Options) {
	if key := os.Getenv("API_KEY"); key != "" {
		opts.ApiKey = key
	}
	if secret := os.Getenv("API_SECRET"); secret != "" {
		opts.ApiSecret = secret
	}
	if pass := os.Getenv("API_PASSPHRASE"); pass != "" {
		opts.ApiPassphrase = pass
	}
	switch strings.ToLower(os.Getenv("IS_PAPER_TRADING")) {
	case "true", "1":
		opts.IsPaperTrading = true
	}
}

// Validate checks value ranges that do not depend on the venue.
func (o Options) Validate() error {
	if len(o.Symbols) == 0 {
		return fmt.Errorf("symbols is required ('*' for all tradable)")
	}
	if o.OhlcvIntervalSeconds <= 0 {
		return fmt.Errorf("ohlcv_interval_seconds must be > 0")
	}
	if o.ClientOrderIDSequencePaddingLength <= 0 {
		return fmt.Errorf("client_order_id_sequence_padding_length must be > 0")
	}
	switch o.TradeApiMethodPreference {
	case types.ApiMethodRest, types.ApiMethodWebsocket, "":
	default:
		return fmt.Errorf("trade_api_method_preference must be rest or websocket")
	}
	return nil
}

// WantsAllSymbols reports whether the wildcard was requested.
func (o Options) WantsAllSymbols() bool {
	for _, s := range o.Symbols {
		if s == "*" {
			return true
		}
	}
	return false
}

// Duration helpers: zero-or-negative periods disable the matching task.

func secondsToDuration(s int64) time.Duration { return time.Duration(s) * time.Second }

func (o Options) InstrumentRefreshPeriod() time.Duration {
	return secondsToDuration(o.RestMarketDataFetchAllInstrumentInformationPeriodSeconds)
}
func (o Options) BboFetchPeriod() time.Duration {
	return secondsToDuration(o.RestMarketDataFetchBboPeriodSeconds)
}
func (o Options) OpenOrderCheckPeriod() time.Duration {
	return secondsToDuration(o.RestAccountCheckOpenOrderPeriodSeconds)
}
func (o Options) InFlightOrderCheckPeriod() time.Duration {
	return secondsToDuration(o.RestAccountCheckInFlightOrderPeriodSeconds)
}
func (o Options) PositionFetchPeriod() time.Duration {
	return secondsToDuration(o.RestAccountFetchPositionPeriodSeconds)
}
func (o Options) BalanceFetchPeriod() time.Duration {
	return secondsToDuration(o.RestAccountFetchBalancePeriodSeconds)
}
func (o Options) MarketDataRequestDelay() time.Duration {
	return time.Duration(o.RestMarketDataSendConsecutiveRequestDelaySeconds * float64(time.Second))
}
func (o Options) AccountRequestDelay() time.Duration {
	return time.Duration(o.RestAccountSendConsecutiveRequestDelaySeconds * float64(time.Second))
}
func (o Options) SubscribeRequestDelay() time.Duration {
	return time.Duration(o.WebsocketMarketDataChannelSendConsecutiveRequestDelaySeconds * float64(time.Second))
}
func (o Options) ProtocolHeartbeatPeriod() time.Duration {
	return secondsToDuration(o.WebsocketConnectionProtocolLevelHeartbeatPeriodSeconds)
}
func (o Options) AppHeartbeatPeriod() time.Duration {
	return secondsToDuration(o.WebsocketConnectionApplicationLevelHeartbeatPeriodSeconds)
}
func (o Options) AppHeartbeatTimeout() time.Duration {
	return secondsToDuration(o.WebsocketConnectionApplicationLevelHeartbeatTimeoutSeconds)
}
func (o Options) StartWait() time.Duration {
	return time.Duration(o.StartWaitSeconds * float64(time.Second))
}
func (o Options) StopWait() time.Duration {
	return time.Duration(o.StopWaitSeconds * float64(time.Second))
}
