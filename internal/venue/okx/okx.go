// Package okx implements the OKX v5 adapter.
//
// REST and streaming endpoints follow the public API layout: market data
// under /api/v5/market and /api/v5/public, account operations under
// /api/v5/trade and /api/v5/account, streams under /ws/v5/public (bbo,
// trades), /ws/v5/business (candles) and /ws/v5/private (orders, positions,
// balances). Failures are tunnelled inside 200 OK bodies with a non-zero
// "code"; historical orders and fills each span two sequential endpoints
// (recent + archive). Paper trading uses the demo stream hosts plus the
// x-simulated-trading header.
package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/the-crypto-trade/crypto-trade/internal/config"
	"github.com/the-crypto-trade/crypto-trade/internal/numeric"
	"github.com/the-crypto-trade/crypto-trade/internal/venue"
	"github.com/the-crypto-trade/crypto-trade/internal/wire"
	"github.com/the-crypto-trade/crypto-trade/pkg/types"
)

// Instrument types accepted by OKX.
const (
	InstrumentTypeSpot    = "SPOT"
	InstrumentTypeMargin  = "MARGIN"
	InstrumentTypeSwap    = "SWAP"
	InstrumentTypeFutures = "FUTURES"
	InstrumentTypeOption  = "OPTION"
)

const (
	restBaseURL     = "https://www.okx.com"
	wsBaseURL       = "wss://ws.okx.com:8443"
	wsDemoBaseURL   = "wss://wspap.okx.com:8443"
	wsPublicPath    = "/ws/v5/public"
	wsBusinessPath  = "/ws/v5/business"
	wsPrivatePath   = "/ws/v5/private"
	channelBbo      = "bbo-tbt"
	channelTrade    = "trades"
	channelOhlcv    = "candle"
	channelOrder    = "orders"
	channelPosition = "positions"
	channelBalance  = "balance_and_position"
	brokerTag       = "9cbc6a17a1fcBCDE"
)

const (
	pathInstruments          = "/api/v5/public/instruments"
	pathTickers              = "/api/v5/market/tickers"
	pathHistoryTrades        = "/api/v5/market/history-trades"
	pathHistoryCandles       = "/api/v5/market/history-candles"
	pathOrder                = "/api/v5/trade/order"
	pathCancelOrder          = "/api/v5/trade/cancel-order"
	pathOrdersPending        = "/api/v5/trade/orders-pending"
	pathPositions            = "/api/v5/account/positions"
	pathBalance              = "/api/v5/account/balance"
	pathOrdersHistory        = "/api/v5/trade/orders-history"
	pathOrdersHistoryArchive = "/api/v5/trade/orders-history-archive"
	pathFills                = "/api/v5/trade/fills"
	pathFillsHistory         = "/api/v5/trade/fills-history"
)

// Codes OKX returns for an order it does not know about.
var unknownOrderCodes = map[string]bool{"51001": true, "51603": true}

var orderStatusMapping = map[string]types.OrderStatus{
	"canceled":         types.OrderStatusCanceled,
	"live":             types.OrderStatusNew,
	"partially_filled": types.OrderStatusPartiallyFilled,
	"filled":           types.OrderStatusFilled,
	"mmp_canceled":     types.OrderStatusCanceled,
}

// Okx is the OKX adapter. Construct with New; the session binds its symbol
// set and instrument lookup before Start.
type Okx struct {
	opts           config.Options
	instrumentType string

	symbols    func() map[string]bool
	instrument func(symbol string) (types.Instrument, bool)
}

var (
	_ venue.Adapter      = (*Okx)(nil)
	_ venue.SessionAware = (*Okx)(nil)
)

// New creates an OKX adapter for the given session options.
func New(opts config.Options) *Okx {
	instrumentType := opts.InstrumentType
	if instrumentType == "" {
		instrumentType = InstrumentTypeSpot
	}
	return &Okx{
		opts:           opts,
		instrumentType: instrumentType,
		symbols:        func() map[string]bool { return nil },
		instrument:     func(string) (types.Instrument, bool) { return types.Instrument{}, false },
	}
}

func (o *Okx) Name() string { return "okx" }

// BindSession is called by the session before Start.
func (o *Okx) BindSession(symbols func() map[string]bool, instrument func(string) (types.Instrument, bool)) {
	o.symbols = symbols
	o.instrument = instrument
}

func (o *Okx) ValidateInstrumentType(instrumentType string) error {
	switch instrumentType {
	case "", InstrumentTypeSpot, InstrumentTypeMargin, InstrumentTypeSwap, InstrumentTypeFutures, InstrumentTypeOption:
		return nil
	}
	return fmt.Errorf("invalid instrument_type %q for exchange okx", instrumentType)
}

func (o *Okx) ConvertBaseQuoteToSymbol(baseAsset, quoteAsset string) string {
	return baseAsset + "-" + quoteAsset
}

// FormatOhlcvInterval renders the bar parameter: seconds below a minute,
// then minutes, hours and days.
func (o *Okx) FormatOhlcvInterval(intervalSeconds int) string {
	switch {
	case intervalSeconds < 60:
		return fmt.Sprintf("%ds", intervalSeconds)
	case intervalSeconds < 3600:
		return fmt.Sprintf("%dm", intervalSeconds/60)
	case intervalSeconds < 86400:
		return fmt.Sprintf("%dH", intervalSeconds/3600)
	default:
		return fmt.Sprintf("%dD", intervalSeconds/86400)
	}
}

func (o *Okx) OrderStatus(venueStatus string) types.OrderStatus {
	return orderStatusMapping[venueStatus]
}

// ————————————————————————————————————————————————————————————————————————
// Signing
// ————————————————————————————————————————————————————————————————————————

// SignRequest attaches the OK-ACCESS header set. The signature is
// HMAC-SHA256 over timestamp + method + path?query + body.
func (o *Okx) SignRequest(req *wire.Request, timePoint types.TimePoint) error {
	timestamp := fmt.Sprintf("%s.%03dZ",
		time.Unix(timePoint.Seconds, 0).UTC().Format("2006-01-02T15:04:05"),
		timePoint.Nanos/1_000_000)

	mac := hmac.New(sha256.New, []byte(o.opts.ApiSecret))
	mac.Write([]byte(timestamp + req.Method + req.PathWithQueryString() + req.Payload))

	req.SetHeader("Content-Type", "application/json")
	req.SetHeader("OK-ACCESS-KEY", o.opts.ApiKey)
	req.SetHeader("OK-ACCESS-TIMESTAMP", timestamp)
	req.SetHeader("OK-ACCESS-PASSPHRASE", o.opts.ApiPassphrase)
	req.SetHeader("OK-ACCESS-SIGN", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	if o.opts.IsPaperTrading {
		req.SetHeader("x-simulated-trading", "1")
	}
	return nil
}

// ————————————————————————————————————————————————————————————————————————
// Request builders
// ————————————————————————————————————————————————————————————————————————

func (o *Okx) marketDataGet(path string, queryParams map[string]string) wire.RequestFunc {
	return func(types.TimePoint) (*wire.Request, error) {
		return wire.NewRequest(&wire.Request{
			BaseURL:     restBaseURL,
			Method:      wire.MethodGet,
			Path:        path,
			QueryParams: queryParams,
		})
	}
}

func (o *Okx) accountSigned(method, path string, queryParams map[string]string, jsonPayload map[string]any) wire.RequestFunc {
	return func(timePoint types.TimePoint) (*wire.Request, error) {
		req, err := wire.NewRequest(&wire.Request{
			BaseURL:     restBaseURL,
			Method:      method,
			Path:        path,
			QueryParams: queryParams,
			JSONPayload: jsonPayload,
		})
		if err != nil {
			return nil, err
		}
		if err := o.SignRequest(req, timePoint); err != nil {
			return nil, err
		}
		return req, nil
	}
}

func (o *Okx) FetchInstrumentsRequest() wire.RequestFunc {
	return o.marketDataGet(pathInstruments, map[string]string{"instType": o.instrumentType})
}

func (o *Okx) FetchBboRequest() wire.RequestFunc {
	// The tickers endpoint has no MARGIN segment; margin symbols quote
	// under SPOT.
	instType := o.instrumentType
	if instType == InstrumentTypeMargin {
		instType = InstrumentTypeSpot
	}
	return o.marketDataGet(pathTickers, map[string]string{"instType": instType})
}

func (o *Okx) FetchHistoricalTradeRequest(symbol string) wire.RequestFunc {
	return o.marketDataGet(pathHistoryTrades, map[string]string{"instId": symbol, "type": "1"})
}

func (o *Okx) FetchHistoricalOhlcvRequest(symbol string) wire.RequestFunc {
	interval := int64(o.opts.OhlcvIntervalSeconds)
	end := o.opts.FetchHistoricalOhlcvEndUnixTimestampSeconds
	if end == 0 {
		end = types.TimePointNow().Seconds
	}
	after := (end/interval*interval + interval) * 1000
	return o.marketDataGet(pathHistoryCandles, map[string]string{
		"instId": symbol,
		"after":  strconv.FormatInt(after, 10),
		"bar":    o.FormatOhlcvInterval(o.opts.OhlcvIntervalSeconds),
	})
}

func (o *Okx) CreateOrderRequest(order types.Order) wire.RequestFunc {
	return o.accountSigned(wire.MethodPost, pathOrder, nil, o.createOrderPayload(order))
}

func (o *Okx) CancelOrderRequest(ref venue.OrderRef) wire.RequestFunc {
	return o.accountSigned(wire.MethodPost, pathCancelOrder, nil, o.cancelOrderPayload(ref))
}

func (o *Okx) FetchOrderRequest(ref venue.OrderRef) wire.RequestFunc {
	queryParams := map[string]string{"instId": ref.Symbol}
	if ref.OrderID != "" {
		queryParams["ordId"] = ref.OrderID
	} else {
		queryParams["clOrdId"] = ref.ClientOrderID
	}
	return o.accountSigned(wire.MethodGet, pathOrder, queryParams, nil)
}

func (o *Okx) FetchOpenOrderRequest() wire.RequestFunc {
	return o.accountSigned(wire.MethodGet, pathOrdersPending, map[string]string{"instType": o.instrumentType}, nil)
}

func (o *Okx) FetchPositionRequest() wire.RequestFunc {
	if o.instrumentType == InstrumentTypeSpot {
		return nil
	}
	return o.accountSigned(wire.MethodGet, pathPositions, map[string]string{"instType": o.instrumentType}, nil)
}

func (o *Okx) FetchBalanceRequest() wire.RequestFunc {
	return o.accountSigned(wire.MethodGet, pathBalance, nil, nil)
}

func (o *Okx) FetchHistoricalOrderRequest(symbol string) wire.RequestFunc {
	return o.accountSigned(wire.MethodGet, pathOrdersHistory,
		map[string]string{"instType": o.instrumentType, "instId": symbol}, nil)
}

func (o *Okx) FetchHistoricalFillRequest(symbol string) wire.RequestFunc {
	return o.accountSigned(wire.MethodGet, pathFills,
		map[string]string{"instType": o.instrumentType, "instId": symbol}, nil)
}

func (o *Okx) createOrderPayload(order types.Order) map[string]any {
	ordType := "limit"
	switch {
	case order.IsMarket:
		ordType = "market"
	case order.IsPostOnly:
		ordType = "post_only"
	case order.IsFok:
		ordType = "fok"
	case order.IsIoc:
		ordType = "ioc"
	}

	tdMode := "cash"
	if order.MarginType != "" {
		tdMode = string(order.MarginType)
	}

	side := "sell"
	if order.IsBuy {
		side = "buy"
	}

	payload := map[string]any{
		"instId":  order.Symbol,
		"tdMode":  tdMode,
		"clOrdId": order.ClientOrderID,
		"side":    side,
		"ordType": ordType,
		"sz":      order.Quantity,
		"tag":     brokerTag,
	}
	if order.Price != "" {
		payload["px"] = order.Price
	}
	if order.IsReduceOnly {
		payload["reduceOnly"] = true
	}
	for k, v := range order.ExtraParams {
		payload[k] = v
	}
	return payload
}

func (o *Okx) cancelOrderPayload(ref venue.OrderRef) map[string]any {
	payload := map[string]any{"instId": ref.Symbol}
	if ref.OrderID != "" {
		payload["ordId"] = ref.OrderID
	} else {
		payload["clOrdId"] = ref.ClientOrderID
	}
	return payload
}

// ————————————————————————————————————————————————————————————————————————
// Response classification
// ————————————————————————————————————————————————————————————————————————

// IsResponseSuccess: OKX tunnels failures inside 200 OK with a non-zero
// body code.
func (o *Okx) IsResponseSuccess(resp *wire.Response) bool {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	body, ok := resp.JSON.(map[string]any)
	return ok && jsonStr(body, "code") == "0"
}

func (o *Okx) ClassifyResponse(resp *wire.Response) venue.ResponseKind {
	path := resp.Request.Path
	switch {
	case path == pathInstruments:
		return venue.ResponseInstruments
	case path == pathTickers:
		return venue.ResponseBbo
	case path == pathHistoryTrades:
		return venue.ResponseHistoricalTrade
	case path == pathHistoryCandles:
		return venue.ResponseHistoricalOhlcv
	case path == pathOrder && resp.Request.Method == wire.MethodPost:
		return venue.ResponseCreateOrder
	case path == pathCancelOrder:
		return venue.ResponseCancelOrder
	case path == pathOrder && resp.Request.Method == wire.MethodGet:
		return venue.ResponseFetchOrder
	case path == pathOrdersPending:
		return venue.ResponseFetchOpenOrder
	case path == pathPositions:
		return venue.ResponseFetchPosition
	case path == pathBalance:
		return venue.ResponseFetchBalance
	case path == pathOrdersHistory || path == pathOrdersHistoryArchive:
		return venue.ResponseHistoricalOrder
	case path == pathFills || path == pathFillsHistory:
		return venue.ResponseHistoricalFill
	}
	return venue.ResponseUnknown
}

// ————————————————————————————————————————————————————————————————————————
// Response converters
// ————————————————————————————————————————————————————————————————————————

func (o *Okx) ConvertInstruments(resp *wire.Response) ([]types.Instrument, error) {
	data, err := dataEntries(resp.JSON)
	if err != nil {
		return nil, err
	}
	instruments := make([]types.Instrument, 0, len(data))
	for _, entry := range data {
		x, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		var expiry int64
		if expTime := jsonStr(x, "expTime"); expTime != "" {
			ms, err := strconv.ParseInt(expTime, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse expTime %q: %w", expTime, err)
			}
			expiry = ms / 1000
		}
		state := jsonStr(x, "state")
		instruments = append(instruments, types.Instrument{
			ApiMethod:              types.ApiMethodRest,
			Symbol:                 jsonStr(x, "instId"),
			BaseAsset:              jsonStr(x, "baseCcy"),
			QuoteAsset:             jsonStr(x, "quoteCcy"),
			OrderPriceIncrement:    numeric.NormalizeDecimalString(jsonStr(x, "tickSz")),
			OrderQuantityIncrement: numeric.NormalizeDecimalString(jsonStr(x, "lotSz")),
			OrderQuantityMin:       numeric.NormalizeDecimalString(jsonStr(x, "minSz")),
			OrderQuantityMax:       numeric.NormalizeDecimalString(jsonStr(x, "maxLmtSz")),
			OrderQuoteQuantityMax:  numeric.NormalizeDecimalString(jsonStr(x, "maxLmtAmt")),
			MarginAsset:            jsonStr(x, "settleCcy"),
			UnderlyingSymbol:       jsonStr(x, "uly"),
			ContractSize:           numeric.NormalizeDecimalString(jsonStr(x, "ctVal")),
			ContractMultiplier:     numeric.NormalizeDecimalString(jsonStr(x, "ctMult")),
			ExpiryTime:             expiry,
			IsOpenForTrade:         state == "live" || state == "preopen",
		})
	}
	return instruments, nil
}

func (o *Okx) ConvertBbos(resp *wire.Response) ([]types.Bbo, error) {
	data, err := dataEntries(resp.JSON)
	if err != nil {
		return nil, err
	}
	symbols := o.symbols()
	var bbos []types.Bbo
	for _, entry := range data {
		x, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		symbol := jsonStr(x, "instId")
		if !symbols[symbol] {
			continue
		}
		bbos = append(bbos, types.Bbo{
			ApiMethod:               types.ApiMethodRest,
			Symbol:                  symbol,
			ExchangeUpdateTimePoint: tpFromMilliString(jsonStr(x, "ts")),
			BestBidPrice:            jsonStr(x, "bidPx"),
			BestBidSize:             jsonStr(x, "bidSz"),
			BestAskPrice:            jsonStr(x, "askPx"),
			BestAskSize:             jsonStr(x, "askSz"),
		})
	}
	return bbos, nil
}

func (o *Okx) ConvertHistoricalTrades(resp *wire.Response) ([]types.Trade, error) {
	data, err := dataEntries(resp.JSON)
	if err != nil {
		return nil, err
	}
	trades := make([]types.Trade, 0, len(data))
	for _, entry := range data {
		x, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		trades = append(trades, o.convertTrade(x, types.ApiMethodRest, jsonStr(x, "instId")))
	}
	return trades, nil
}

func (o *Okx) ConvertHistoricalOhlcvs(resp *wire.Response) ([]types.Ohlcv, error) {
	data, err := dataEntries(resp.JSON)
	if err != nil {
		return nil, err
	}
	symbol := resp.Request.QueryParams["instId"]
	ohlcvs := make([]types.Ohlcv, 0, len(data))
	for _, entry := range data {
		candle, ok := entry.([]any)
		if !ok {
			continue
		}
		ohlcv, err := o.convertCandle(candle, types.ApiMethodRest, symbol)
		if err != nil {
			return nil, err
		}
		ohlcvs = append(ohlcvs, ohlcv)
	}
	return ohlcvs, nil
}

func (o *Okx) ConvertCreateOrderResponse(resp *wire.Response) (types.Order, error) {
	x, err := firstDataEntry(resp.JSON)
	if err != nil {
		return types.Order{}, err
	}
	ts := tpFromMilliString(jsonStr(x, "ts"))
	return types.Order{
		ApiMethod:               types.ApiMethodRest,
		Symbol:                  payloadStr(resp.Request.JSONPayload, "instId"),
		ExchangeUpdateTimePoint: ts,
		OrderID:                 jsonStr(x, "ordId"),
		ClientOrderID:           payloadStr(resp.Request.JSONPayload, "clOrdId"),
		ExchangeCreateTimePoint: ts,
		Status:                  types.OrderStatusCreateAcknowledged,
	}, nil
}

func (o *Okx) ConvertCancelOrderResponse(resp *wire.Response) (types.Order, error) {
	x, err := firstDataEntry(resp.JSON)
	if err != nil {
		return types.Order{}, err
	}
	return types.Order{
		ApiMethod:               types.ApiMethodRest,
		Symbol:                  payloadStr(resp.Request.JSONPayload, "instId"),
		ExchangeUpdateTimePoint: tpFromMilliString(jsonStr(x, "ts")),
		OrderID:                 payloadStr(resp.Request.JSONPayload, "ordId"),
		ClientOrderID:           payloadStr(resp.Request.JSONPayload, "clOrdId"),
		Status:                  types.OrderStatusCancelAcknowledged,
	}, nil
}

func (o *Okx) ConvertFetchOrderResponse(resp *wire.Response) (types.Order, error) {
	x, err := firstDataEntry(resp.JSON)
	if err != nil {
		return types.Order{}, err
	}
	return o.convertOrder(x, types.ApiMethodRest, jsonStr(x, "instId")), nil
}

func (o *Okx) ConvertOpenOrders(resp *wire.Response) ([]types.Order, error) {
	return o.convertOrderList(resp.JSON, types.ApiMethodRest)
}

func (o *Okx) ConvertHistoricalOrders(resp *wire.Response) ([]types.Order, error) {
	return o.convertOrderList(resp.JSON, types.ApiMethodRest)
}

func (o *Okx) convertOrderList(payload any, apiMethod types.ApiMethod) ([]types.Order, error) {
	data, err := dataEntries(payload)
	if err != nil {
		return nil, err
	}
	orders := make([]types.Order, 0, len(data))
	for _, entry := range data {
		x, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		orders = append(orders, o.convertOrder(x, apiMethod, jsonStr(x, "instId")))
	}
	return orders, nil
}

func (o *Okx) ConvertPositions(resp *wire.Response) ([]types.Position, error) {
	data, err := dataEntries(resp.JSON)
	if err != nil {
		return nil, err
	}
	positions := make([]types.Position, 0, len(data))
	for _, entry := range data {
		x, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		positions = append(positions, o.convertPosition(x, types.ApiMethodRest))
	}
	return positions, nil
}

func (o *Okx) ConvertBalances(resp *wire.Response) ([]types.Balance, error) {
	x, err := firstDataEntry(resp.JSON)
	if err != nil {
		return nil, err
	}
	details, _ := x["details"].([]any)
	balances := make([]types.Balance, 0, len(details))
	for _, entry := range details {
		d, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		balances = append(balances, types.Balance{
			ApiMethod:               types.ApiMethodRest,
			Symbol:                  jsonStr(d, "ccy"),
			ExchangeUpdateTimePoint: tpFromMilliString(jsonStr(d, "uTime")),
			Quantity:                jsonStr(d, "cashBal"),
		})
	}
	return balances, nil
}

func (o *Okx) ConvertHistoricalFills(resp *wire.Response) ([]types.Fill, error) {
	data, err := dataEntries(resp.JSON)
	if err != nil {
		return nil, err
	}
	symbol := resp.Request.QueryParams["instId"]
	fills := make([]types.Fill, 0, len(data))
	for _, entry := range data {
		x, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		fills = append(fills, o.convertFill(x, types.ApiMethodRest, symbol))
	}
	return fills, nil
}

// ————————————————————————————————————————————————————————————————————————
// Pagination producers
// ————————————————————————————————————————————————————————————————————————

// NextHistoricalTradeRequest walks the trade history backwards by trade id
// until the configured window start is passed.
func (o *Okx) NextHistoricalTradeRequest(resp *wire.Response) wire.RequestFunc {
	data, err := dataEntries(resp.JSON)
	if err != nil || len(data) == 0 {
		return nil
	}
	head, headOK := data[0].(map[string]any)
	tail, tailOK := data[len(data)-1].(map[string]any)
	if !headOK || !tailOK {
		return nil
	}

	after, earliest := jsonStr(head, "tradeId"), tpFromMilliString(jsonStr(head, "ts"))
	if milliOf(tail, "ts") < milliOf(head, "ts") ||
		(milliOf(tail, "ts") == milliOf(head, "ts") && intOf(tail, "tradeId") < intOf(head, "tradeId")) {
		after, earliest = jsonStr(tail, "tradeId"), tpFromMilliString(jsonStr(tail, "ts"))
	}

	if start := o.opts.FetchHistoricalTradeStartUnixTimestampSeconds; start != 0 && earliest != nil && earliest.Seconds < start {
		return nil
	}
	return o.marketDataGet(pathHistoryTrades, map[string]string{
		"instId": jsonStr(head, "instId"),
		"type":   "1",
		"after":  after,
	})
}

// NextHistoricalOhlcvRequest walks candles backwards by bucket timestamp.
func (o *Okx) NextHistoricalOhlcvRequest(resp *wire.Response) wire.RequestFunc {
	data, err := dataEntries(resp.JSON)
	if err != nil || len(data) == 0 {
		return nil
	}
	head, headOK := data[0].([]any)
	tail, tailOK := data[len(data)-1].([]any)
	if !headOK || !tailOK || len(head) == 0 || len(tail) == 0 {
		return nil
	}
	headTs, _ := strconv.ParseInt(asString(head[0]), 10, 64)
	tailTs, _ := strconv.ParseInt(asString(tail[0]), 10, 64)
	after := headTs
	if tailTs < headTs {
		after = tailTs
	}
	if start := o.opts.FetchHistoricalOhlcvStartUnixTimestampSeconds; start != 0 && after/1000 < start {
		return nil
	}
	return o.marketDataGet(pathHistoryCandles, map[string]string{
		"instId": resp.Request.QueryParams["instId"],
		"after":  strconv.FormatInt(after, 10),
		"bar":    o.FormatOhlcvInterval(o.opts.OhlcvIntervalSeconds),
	})
}

// NextOpenOrderRequest pages the pending-orders listing by order id.
func (o *Okx) NextOpenOrderRequest(resp *wire.Response) wire.RequestFunc {
	data, err := dataEntries(resp.JSON)
	if err != nil || len(data) == 0 {
		return nil
	}
	head, headOK := data[0].(map[string]any)
	tail, tailOK := data[len(data)-1].(map[string]any)
	if !headOK || !tailOK {
		return nil
	}
	after := jsonStr(head, "ordId")
	if intOf(tail, "ordId") < intOf(head, "ordId") {
		after = jsonStr(tail, "ordId")
	}
	return o.accountSigned(wire.MethodGet, pathOrdersPending,
		map[string]string{"instType": o.instrumentType, "after": after}, nil)
}

// NextHistoricalOrderRequest pages backwards by (create time, order id) and
// falls through to the archive endpoint when the recent endpoint runs dry.
func (o *Okx) NextHistoricalOrderRequest(resp *wire.Response) wire.RequestFunc {
	return o.nextTwoStageRequest(resp, pathOrdersHistory, pathOrdersHistoryArchive,
		"cTime", "ordId", o.opts.FetchHistoricalOrderStartUnixTimestampSeconds)
}

// NextHistoricalFillRequest pages backwards by (fill time, bill id) and
// falls through to the archive endpoint when the recent endpoint runs dry.
func (o *Okx) NextHistoricalFillRequest(resp *wire.Response) wire.RequestFunc {
	return o.nextTwoStageRequest(resp, pathFills, pathFillsHistory,
		"fillTime", "billId", o.opts.FetchHistoricalFillStartUnixTimestampSeconds)
}

func (o *Okx) nextTwoStageRequest(resp *wire.Response, recentPath, archivePath, tsKey, idKey string, startUnix int64) wire.RequestFunc {
	data, err := dataEntries(resp.JSON)
	if err != nil {
		return nil
	}

	if len(data) == 0 {
		// Recent endpoint exhausted: continue on the archive endpoint,
		// carrying the cursor over.
		if resp.Request.Path != recentPath {
			return nil
		}
		queryParams := map[string]string{
			"instType": o.instrumentType,
			"instId":   resp.Request.QueryParams["instId"],
		}
		if after, ok := resp.Request.QueryParams["after"]; ok {
			queryParams["after"] = after
		}
		return o.accountSigned(wire.MethodGet, archivePath, queryParams, nil)
	}

	head, headOK := data[0].(map[string]any)
	tail, tailOK := data[len(data)-1].(map[string]any)
	if !headOK || !tailOK {
		return nil
	}
	after, earliest := jsonStr(head, idKey), tpFromMilliString(jsonStr(head, tsKey))
	if milliOf(tail, tsKey) < milliOf(head, tsKey) ||
		(milliOf(tail, tsKey) == milliOf(head, tsKey) && intOf(tail, idKey) < intOf(head, idKey)) {
		after, earliest = jsonStr(tail, idKey), tpFromMilliString(jsonStr(tail, tsKey))
	}
	if startUnix != 0 && earliest != nil && earliest.Seconds < startUnix {
		return nil
	}
	return o.accountSigned(wire.MethodGet, resp.Request.Path, map[string]string{
		"instType": o.instrumentType,
		"instId":   resp.Request.QueryParams["instId"],
		"after":    after,
	}, nil)
}

// ————————————————————————————————————————————————————————————————————————
// Error hook
// ————————————————————————————————————————————————————————————————————————

// HandleResponseError schedules a corrective order fetch after a failed
// create/cancel, and marks the local order rejected when a fetch reported
// an unknown order.
func (o *Okx) HandleResponseError(resp *wire.Response) venue.ErrorAction {
	switch o.ClassifyResponse(resp) {
	case venue.ResponseCreateOrder, venue.ResponseCancelOrder:
		return venue.ErrorAction{FetchOrder: &venue.OrderRef{
			Symbol:        payloadStr(resp.Request.JSONPayload, "instId"),
			OrderID:       payloadStr(resp.Request.JSONPayload, "ordId"),
			ClientOrderID: payloadStr(resp.Request.JSONPayload, "clOrdId"),
		}}
	case venue.ResponseFetchOrder:
		body, ok := resp.JSON.(map[string]any)
		if resp.StatusCode == 200 && ok && unknownOrderCodes[jsonStr(body, "code")] {
			return venue.ErrorAction{RejectOrder: &venue.OrderRef{
				Symbol:        resp.Request.QueryParams["instId"],
				OrderID:       resp.Request.QueryParams["ordId"],
				ClientOrderID: resp.Request.QueryParams["clOrdId"],
			}}
		}
	}
	return venue.ErrorAction{}
}

// ————————————————————————————————————————————————————————————————————————
// Streaming endpoints and frames
// ————————————————————————————————————————————————————————————————————————

func (o *Okx) wsBase() string {
	if o.opts.IsPaperTrading {
		return wsDemoBaseURL
	}
	return wsBaseURL
}

// MarketDataEndpoints: bbo and trades stream on the public path, candles on
// the business path.
func (o *Okx) MarketDataEndpoints() []venue.Endpoint {
	var endpoints []venue.Endpoint
	if o.opts.SubscribeBbo || o.opts.SubscribeTrade {
		endpoints = append(endpoints, venue.Endpoint{BaseURL: o.wsBase(), Path: wsPublicPath})
	}
	if o.opts.SubscribeOhlcv {
		endpoints = append(endpoints, venue.Endpoint{BaseURL: o.wsBase(), Path: wsBusinessPath})
	}
	return endpoints
}

func (o *Okx) AccountEndpoint() *venue.Endpoint {
	return &venue.Endpoint{BaseURL: o.wsBase(), Path: wsPrivatePath}
}

// AccountTradeEndpoint: OKX serves order operations on the same private
// endpoint as account pushes.
func (o *Okx) AccountTradeEndpoint() *venue.Endpoint {
	return o.AccountEndpoint()
}

// ExtractStreamSummary pulls the {event, op, channel, code} discriminator
// and the echoed request id.
func (o *Okx) ExtractStreamSummary(msg *wire.StreamMessage) {
	body, ok := msg.JSON.(map[string]any)
	if !ok {
		return
	}
	msg.Summary = wire.Summary{
		Event: jsonStr(body, "event"),
		Op:    jsonStr(body, "op"),
		Code:  jsonStr(body, "code"),
	}
	if arg, ok := body["arg"].(map[string]any); ok {
		msg.Summary.Channel = jsonStr(arg, "channel")
	}
	msg.RequestID = jsonStr(body, "id")
}

func (o *Okx) ClassifyStreamMessage(msg *wire.StreamMessage) venue.StreamKind {
	// "pong" isn't valid JSON; only "\"pong\"" would be.
	if msg.Payload == "pong" {
		return venue.StreamRespPong
	}
	if msg.JSON == nil {
		return venue.StreamIgnore
	}

	s := msg.Summary
	if s.Event == "" && s.Op == "" {
		switch {
		case s.Channel == channelBbo:
			return venue.StreamPushBbo
		case s.Channel == channelTrade:
			return venue.StreamPushTrade
		case strings.HasPrefix(s.Channel, channelOhlcv):
			return venue.StreamPushOhlcv
		case s.Channel == channelOrder:
			return venue.StreamPushOrder
		case s.Channel == channelPosition:
			return venue.StreamPushPosition
		case s.Channel == channelBalance:
			return venue.StreamPushBalance
		}
		return venue.StreamIgnore
	}

	if (s.Event != "" && s.Event != "error") || s.Code == "0" {
		switch {
		case s.Op == "order":
			return venue.StreamRespCreateOrder
		case s.Op == "cancel-order":
			return venue.StreamRespCancelOrder
		case s.Event == "subscribe":
			return venue.StreamRespSubscribe
		case s.Event == "login":
			return venue.StreamRespLogin
		}
		return venue.StreamIgnore
	}
	return venue.StreamRespError
}

// LoginRequest signs the stream login frame: HMAC-SHA256 over
// timestamp + "GET/users/self/verify".
func (o *Okx) LoginRequest(id string, timePoint types.TimePoint) (*wire.StreamRequest, error) {
	timestamp := strconv.FormatInt(timePoint.Seconds, 10)
	mac := hmac.New(sha256.New, []byte(o.opts.ApiSecret))
	mac.Write([]byte(timestamp + "GET" + "/users/self/verify"))

	return wire.NewStreamRequest(id, map[string]any{
		"op": "login",
		"args": []any{map[string]any{
			"apiKey":     o.opts.ApiKey,
			"passphrase": o.opts.ApiPassphrase,
			"timestamp":  timestamp,
			"sign":       base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		}},
	})
}

// AppPingRequest is the bare "ping" string; the venue answers with a bare
// "pong".
func (o *Okx) AppPingRequest() (*wire.StreamRequest, error) {
	return &wire.StreamRequest{Payload: "ping"}, nil
}

// MarketDataSubscribeRequests builds one subscribe frame per chunk of
// symbols, capped by the configured channel symbols limit. The public
// endpoint carries bbo and trade channels, the business endpoint carries
// candles.
func (o *Okx) MarketDataSubscribeRequests(id func() string, endpoint venue.Endpoint, symbols []string, subscribe bool) ([]*wire.StreamRequest, error) {
	op := "unsubscribe"
	if subscribe {
		op = "subscribe"
	}

	var requests []*wire.StreamRequest
	for _, chunk := range chunkSymbols(symbols, o.opts.WebsocketMarketDataChannelSymbolsLimit) {
		var args []any
		for _, symbol := range chunk {
			switch endpoint.Path {
			case wsPublicPath:
				if o.opts.SubscribeBbo {
					args = append(args, map[string]any{"channel": channelBbo, "instId": symbol})
				}
				if o.opts.SubscribeTrade {
					args = append(args, map[string]any{"channel": channelTrade, "instId": symbol})
				}
			case wsBusinessPath:
				args = append(args, map[string]any{
					"channel": channelOhlcv + o.FormatOhlcvInterval(o.opts.OhlcvIntervalSeconds),
					"instId":  symbol,
				})
			}
		}
		if len(args) == 0 {
			continue
		}
		req, err := wire.NewStreamRequest("", map[string]any{"op": op, "args": args})
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func (o *Okx) AccountSubscribeRequest(id string, subscribe bool) (*wire.StreamRequest, error) {
	op := "unsubscribe"
	if subscribe {
		op = "subscribe"
	}

	var args []any
	if o.opts.SubscribeOrder || o.opts.SubscribeFill {
		args = append(args, map[string]any{"channel": channelOrder, "instType": o.instrumentType})
	}
	if o.opts.SubscribePosition && o.instrumentType != InstrumentTypeSpot {
		args = append(args, map[string]any{"channel": channelPosition, "instType": o.instrumentType})
	}
	if o.opts.SubscribeBalance {
		args = append(args, map[string]any{"channel": channelBalance, "instType": o.instrumentType})
	}
	if len(args) == 0 {
		return nil, nil
	}
	return wire.NewStreamRequest("", map[string]any{"op": op, "args": args})
}

func (o *Okx) CreateOrderStreamRequest(id string, order types.Order) (*wire.StreamRequest, error) {
	return wire.NewStreamRequest(id, map[string]any{
		"id":   id,
		"op":   "order",
		"args": []any{o.createOrderPayload(order)},
	})
}

func (o *Okx) CancelOrderStreamRequest(id string, ref venue.OrderRef) (*wire.StreamRequest, error) {
	return wire.NewStreamRequest(id, map[string]any{
		"id":   id,
		"op":   "cancel-order",
		"args": []any{o.cancelOrderPayload(ref)},
	})
}

// ————————————————————————————————————————————————————————————————————————
// Stream converters
// ————————————————————————————————————————————————————————————————————————

func (o *Okx) ConvertStreamBbos(msg *wire.StreamMessage) ([]types.Bbo, error) {
	body, data, err := streamData(msg)
	if err != nil {
		return nil, err
	}
	symbol := argInstID(body)
	var bbos []types.Bbo
	for _, entry := range data {
		x, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		bbo := types.Bbo{
			ApiMethod:               types.ApiMethodWebsocket,
			Symbol:                  symbol,
			ExchangeUpdateTimePoint: tpFromMilliString(jsonStr(x, "ts")),
		}
		if bids, ok := x["bids"].([]any); ok && len(bids) > 0 {
			if level, ok := bids[0].([]any); ok && len(level) >= 2 {
				bbo.BestBidPrice = asString(level[0])
				bbo.BestBidSize = asString(level[1])
			}
		}
		if asks, ok := x["asks"].([]any); ok && len(asks) > 0 {
			if level, ok := asks[0].([]any); ok && len(level) >= 2 {
				bbo.BestAskPrice = asString(level[0])
				bbo.BestAskSize = asString(level[1])
			}
		}
		bbos = append(bbos, bbo)
	}
	return bbos, nil
}

func (o *Okx) ConvertStreamTrades(msg *wire.StreamMessage) ([]types.Trade, error) {
	body, data, err := streamData(msg)
	if err != nil {
		return nil, err
	}
	symbol := argInstID(body)
	trades := make([]types.Trade, 0, len(data))
	for _, entry := range data {
		x, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		trades = append(trades, o.convertTrade(x, types.ApiMethodWebsocket, symbol))
	}
	return trades, nil
}

func (o *Okx) ConvertStreamOhlcvs(msg *wire.StreamMessage) ([]types.Ohlcv, error) {
	body, data, err := streamData(msg)
	if err != nil {
		return nil, err
	}
	symbol := argInstID(body)
	ohlcvs := make([]types.Ohlcv, 0, len(data))
	for _, entry := range data {
		candle, ok := entry.([]any)
		if !ok {
			continue
		}
		ohlcv, err := o.convertCandle(candle, types.ApiMethodWebsocket, symbol)
		if err != nil {
			return nil, err
		}
		ohlcvs = append(ohlcvs, ohlcv)
	}
	return ohlcvs, nil
}

func (o *Okx) ConvertStreamOrders(msg *wire.StreamMessage) ([]types.Order, error) {
	_, data, err := streamData(msg)
	if err != nil {
		return nil, err
	}
	orders := make([]types.Order, 0, len(data))
	for _, entry := range data {
		x, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		orders = append(orders, o.convertOrder(x, types.ApiMethodWebsocket, jsonStr(x, "instId")))
	}
	return orders, nil
}

// ConvertStreamFills derives fills from the orders channel: entries that
// carry a trade id are executions.
func (o *Okx) ConvertStreamFills(msg *wire.StreamMessage) ([]types.Fill, error) {
	_, data, err := streamData(msg)
	if err != nil {
		return nil, err
	}
	var fills []types.Fill
	for _, entry := range data {
		x, ok := entry.(map[string]any)
		if !ok || jsonStr(x, "tradeId") == "" {
			continue
		}
		fills = append(fills, o.convertFill(x, types.ApiMethodWebsocket, jsonStr(x, "instId")))
	}
	return fills, nil
}

func (o *Okx) ConvertStreamPositions(msg *wire.StreamMessage) ([]types.Position, error) {
	_, data, err := streamData(msg)
	if err != nil {
		return nil, err
	}
	positions := make([]types.Position, 0, len(data))
	for _, entry := range data {
		x, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		positions = append(positions, o.convertPosition(x, types.ApiMethodWebsocket))
	}
	return positions, nil
}

func (o *Okx) ConvertStreamBalances(msg *wire.StreamMessage) ([]types.Balance, error) {
	_, data, err := streamData(msg)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	x, ok := data[0].(map[string]any)
	if !ok {
		return nil, nil
	}
	balData, _ := x["balData"].([]any)
	balances := make([]types.Balance, 0, len(balData))
	for _, entry := range balData {
		d, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		balances = append(balances, types.Balance{
			ApiMethod:               types.ApiMethodWebsocket,
			Symbol:                  jsonStr(d, "ccy"),
			ExchangeUpdateTimePoint: tpFromMilliString(jsonStr(d, "uTime")),
			Quantity:                jsonStr(d, "cashBal"),
		})
	}
	return balances, nil
}

func (o *Okx) ConvertStreamCreateOrderResponse(msg *wire.StreamMessage) (types.Order, error) {
	x, err := firstDataEntry(msg.JSON)
	if err != nil {
		return types.Order{}, err
	}
	arg := requestArg(msg.Request)
	ts := tpFromMilliString(jsonStr(x, "ts"))
	return types.Order{
		ApiMethod:               types.ApiMethodWebsocket,
		Symbol:                  jsonStr(arg, "instId"),
		ExchangeUpdateTimePoint: ts,
		OrderID:                 jsonStr(x, "ordId"),
		ClientOrderID:           jsonStr(arg, "clOrdId"),
		ExchangeCreateTimePoint: ts,
		Status:                  types.OrderStatusCreateAcknowledged,
	}, nil
}

func (o *Okx) ConvertStreamCancelOrderResponse(msg *wire.StreamMessage) (types.Order, error) {
	x, err := firstDataEntry(msg.JSON)
	if err != nil {
		return types.Order{}, err
	}
	arg := requestArg(msg.Request)
	return types.Order{
		ApiMethod:               types.ApiMethodWebsocket,
		Symbol:                  jsonStr(arg, "instId"),
		ExchangeUpdateTimePoint: tpFromMilliString(jsonStr(x, "ts")),
		OrderID:                 jsonStr(arg, "ordId"),
		ClientOrderID:           jsonStr(arg, "clOrdId"),
		Status:                  types.OrderStatusCancelAcknowledged,
	}, nil
}

// HandleStreamError schedules a corrective fetch when a stream-side order
// operation fails.
func (o *Okx) HandleStreamError(msg *wire.StreamMessage) venue.ErrorAction {
	if msg.Request == nil {
		return venue.ErrorAction{}
	}
	if msg.Summary.Op == "order" || msg.Summary.Op == "cancel-order" {
		arg := requestArg(msg.Request)
		return venue.ErrorAction{FetchOrder: &venue.OrderRef{
			Symbol:        jsonStr(arg, "instId"),
			OrderID:       jsonStr(arg, "ordId"),
			ClientOrderID: jsonStr(arg, "clOrdId"),
		}}
	}
	return venue.ErrorAction{}
}

// ————————————————————————————————————————————————————————————————————————
// Entity converters
// ————————————————————————————————————————————————————————————————————————

func (o *Okx) convertTrade(x map[string]any, apiMethod types.ApiMethod, symbol string) types.Trade {
	return types.Trade{
		ApiMethod:                  apiMethod,
		Symbol:                     symbol,
		ExchangeUpdateTimePoint:    tpFromMilliString(jsonStr(x, "ts")),
		TradeID:                    jsonStr(x, "tradeId"),
		IsTradeIDMonotonicIncrease: true,
		Price:                      jsonStr(x, "px"),
		Size:                       jsonStr(x, "sz"),
		IsBuyerMaker:               jsonStr(x, "side") == "sell",
	}
}

// Candle layout: [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
func (o *Okx) convertCandle(candle []any, apiMethod types.ApiMethod, symbol string) (types.Ohlcv, error) {
	if len(candle) < 8 {
		return types.Ohlcv{}, fmt.Errorf("candle entry has %d fields, want 8+", len(candle))
	}
	ms, err := strconv.ParseInt(asString(candle[0]), 10, 64)
	if err != nil {
		return types.Ohlcv{}, fmt.Errorf("parse candle timestamp: %w", err)
	}
	return types.Ohlcv{
		ApiMethod:                 apiMethod,
		Symbol:                    symbol,
		StartUnixTimestampSeconds: ms / 1000,
		OpenPrice:                 asString(candle[1]),
		HighPrice:                 asString(candle[2]),
		LowPrice:                  asString(candle[3]),
		ClosePrice:                asString(candle[4]),
		Volume:                    asString(candle[5]),
		QuoteVolume:               asString(candle[7]),
	}, nil
}

func (o *Okx) convertOrder(x map[string]any, apiMethod types.ApiMethod, symbol string) types.Order {
	contractSize := decimal.NewFromInt(1)
	if ins, ok := o.instrument(symbol); ok {
		if cs, ok := types.Dec(ins.ContractSize); ok {
			contractSize = cs
		}
	}

	ordType := jsonStr(x, "ordType")
	var marginType types.MarginType
	if tdMode := jsonStr(x, "tdMode"); tdMode != "" && tdMode != "cash" {
		marginType = types.MarginType(tdMode)
	}

	var filledQuote string
	if avgPx, ok := types.Dec(jsonStr(x, "avgPx")); ok {
		if accFillSz, ok := types.Dec(jsonStr(x, "accFillSz")); ok {
			filledQuote = avgPx.Mul(accFillSz).Mul(contractSize).String()
		}
	}

	return types.Order{
		ApiMethod:                     apiMethod,
		Symbol:                        symbol,
		ExchangeUpdateTimePoint:       tpFromMilliString(jsonStr(x, "uTime")),
		OrderID:                       jsonStr(x, "ordId"),
		ClientOrderID:                 jsonStr(x, "clOrdId"),
		IsBuy:                         jsonStr(x, "side") == "buy",
		Price:                         jsonStr(x, "px"),
		Quantity:                      jsonStr(x, "sz"),
		IsMarket:                      ordType == "market",
		IsPostOnly:                    ordType == "post_only",
		IsFok:                         ordType == "fok",
		IsIoc:                         ordType == "ioc",
		IsReduceOnly:                  jsonStr(x, "reduceOnly") == "true",
		MarginType:                    marginType,
		CumulativeFilledQuantity:      jsonStr(x, "accFillSz"),
		CumulativeFilledQuoteQuantity: filledQuote,
		ExchangeCreateTimePoint:       tpFromMilliString(jsonStr(x, "cTime")),
		Status:                        o.OrderStatus(jsonStr(x, "state")),
	}
}

func (o *Okx) convertFill(x map[string]any, apiMethod types.ApiMethod, symbol string) types.Fill {
	fee := jsonStr(x, "fillFee")
	feeAsset := jsonStr(x, "fillFeeCcy")
	if fee == "" {
		fee = jsonStr(x, "fee")
		feeAsset = jsonStr(x, "feeCcy")
	}

	return types.Fill{
		ApiMethod:                  apiMethod,
		Symbol:                     symbol,
		ExchangeUpdateTimePoint:    tpFromMilliString(jsonStr(x, "fillTime")),
		OrderID:                    jsonStr(x, "ordId"),
		ClientOrderID:              jsonStr(x, "clOrdId"),
		TradeID:                    jsonStr(x, "tradeId"),
		IsTradeIDMonotonicIncrease: true,
		IsBuy:                      jsonStr(x, "side") == "buy",
		Price:                      jsonStr(x, "fillPx"),
		Quantity:                   jsonStr(x, "fillSz"),
		FeeAsset:                   feeAsset,
		FeeQuantity:                numeric.RemoveLeadingNegativeSign(fee),
		IsFeeRebate:                !strings.HasPrefix(fee, "-"),
	}
}

func (o *Okx) convertPosition(x map[string]any, apiMethod types.ApiMethod) types.Position {
	symbol := jsonStr(x, "instId")
	pos := jsonStr(x, "pos")

	var isLong bool
	switch jsonStr(x, "posSide") {
	case "long":
		isLong = true
	case "short":
		isLong = false
	default:
		// Net mode: derivatives read the sign off the quantity; margin
		// compares the position currency against the pair legs.
		switch o.instrumentType {
		case InstrumentTypeFutures, InstrumentTypeSwap, InstrumentTypeOption:
			isLong = !strings.HasPrefix(pos, "-")
		case InstrumentTypeMargin:
			if ins, ok := o.instrument(symbol); ok {
				posCcy := jsonStr(x, "posCcy")
				if posCcy == ins.BaseAsset {
					isLong = true
				} else if posCcy == ins.QuoteAsset {
					isLong = false
				}
			}
		}
	}

	return types.Position{
		ApiMethod:               apiMethod,
		Symbol:                  symbol,
		ExchangeUpdateTimePoint: tpFromMilliString(jsonStr(x, "uTime")),
		MarginType:              types.MarginType(jsonStr(x, "mgnMode")),
		Quantity:                numeric.RemoveLeadingNegativeSign(pos),
		IsLong:                  isLong,
		EntryPrice:              jsonStr(x, "avgPx"),
		MarkPrice:               jsonStr(x, "markPx"),
		Leverage:                jsonStr(x, "lever"),
		InitialMargin:           jsonStr(x, "imr"),
		MaintenanceMargin:       jsonStr(x, "mmr"),
		UnrealizedPnl:           jsonStr(x, "upl"),
		LiquidationPrice:        jsonStr(x, "liqPx"),
	}
}

// ————————————————————————————————————————————————————————————————————————
// JSON traversal helpers
// ————————————————————————————————————————————————————————————————————————

func jsonStr(m map[string]any, key string) string {
	return asString(m[key])
}

func payloadStr(payload any, key string) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	return jsonStr(m, key)
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func dataEntries(payload any) ([]any, error) {
	body, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload is %T, want object", payload)
	}
	data, ok := body["data"].([]any)
	if !ok {
		return nil, fmt.Errorf("payload has no data array")
	}
	return data, nil
}

func firstDataEntry(payload any) (map[string]any, error) {
	data, err := dataEntries(payload)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("data array is empty")
	}
	x, ok := data[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("data entry is %T, want object", data[0])
	}
	return x, nil
}

func streamData(msg *wire.StreamMessage) (map[string]any, []any, error) {
	body, ok := msg.JSON.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("stream payload is %T, want object", msg.JSON)
	}
	data, _ := body["data"].([]any)
	return body, data, nil
}

func argInstID(body map[string]any) string {
	arg, _ := body["arg"].(map[string]any)
	return jsonStr(arg, "instId")
}

func requestArg(req *wire.StreamRequest) map[string]any {
	if req == nil {
		return nil
	}
	payload, ok := req.JSONPayload.(map[string]any)
	if !ok {
		return nil
	}
	args, ok := payload["args"].([]any)
	if !ok || len(args) == 0 {
		return nil
	}
	arg, _ := args[0].(map[string]any)
	return arg
}

func milliOf(m map[string]any, key string) int64 {
	ms, _ := strconv.ParseInt(jsonStr(m, key), 10, 64)
	return ms
}

func intOf(m map[string]any, key string) int64 {
	n, _ := strconv.ParseInt(jsonStr(m, key), 10, 64)
	return n
}

func tpFromMilliString(s string) *types.TimePoint {
	if s == "" {
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	tp := types.TimePointFromUnixMilli(ms)
	return &tp
}

func chunkSymbols(symbols []string, limit int) [][]string {
	if limit <= 0 || len(symbols) <= limit {
		return [][]string{symbols}
	}
	var chunks [][]string
	for start := 0; start < len(symbols); start += limit {
		end := start + limit
		if end > len(symbols) {
			end = len(symbols)
		}
		chunks = append(chunks, symbols[start:end])
	}
	return chunks
}
