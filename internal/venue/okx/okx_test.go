package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/the-crypto-trade/crypto-trade/internal/config"
	"github.com/the-crypto-trade/crypto-trade/internal/venue"
	"github.com/the-crypto-trade/crypto-trade/internal/wire"
	"github.com/the-crypto-trade/crypto-trade/pkg/types"
)

func testAdapter(mutate func(*config.Options)) *Okx {
	opts := config.Default()
	opts.Symbols = []string{"BTC-USDT"}
	opts.InstrumentType = InstrumentTypeSpot
	opts.ApiKey = "key"
	opts.ApiSecret = "secret"
	opts.ApiPassphrase = "passphrase"
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

func TestValidateInstrumentType(t *testing.T) {
	t.Parallel()
	o := testAdapter(nil)

	for _, valid := range []string{"", "SPOT", "MARGIN", "SWAP", "FUTURES", "OPTION"} {
		if err := o.ValidateInstrumentType(valid); err != nil {
			t.Errorf("ValidateInstrumentType(%q) = %v", valid, err)
		}
	}
	if err := o.ValidateInstrumentType("PERP"); err == nil {
		t.Error("unknown instrument type must be rejected")
	}
}

func TestFormatOhlcvInterval(t *testing.T) {
	t.Parallel()
	o := testAdapter(nil)

	tests := []struct {
		seconds int
		want    string
	}{
		{1, "1s"}, {30, "30s"}, {60, "1m"}, {300, "5m"}, {3600, "1H"}, {14400, "4H"}, {86400, "1D"},
	}
	for _, tt := range tests {
		tt := tt
		if got := o.FormatOhlcvInterval(tt.seconds); got != tt.want {
			t.Errorf("FormatOhlcvInterval(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestSignRequestHeaders(t *testing.T) {
	t.Parallel()
	o := testAdapter(nil)

	req, err := wire.NewRequest(&wire.Request{
		BaseURL:     "https://www.okx.com",
		Method:      wire.MethodGet,
		Path:        "/api/v5/trade/orders-pending",
		QueryParams: map[string]string{"instType": "SPOT"},
	})
	if err != nil {
		t.Fatal(err)
	}

	tp := types.TimePoint{Seconds: 1700000000, Nanos: 123_000_000}
	if err := o.SignRequest(req, tp); err != nil {
		t.Fatal(err)
	}

	if req.Headers["OK-ACCESS-KEY"] != "key" || req.Headers["OK-ACCESS-PASSPHRASE"] != "passphrase" {
		t.Error("credential headers missing")
	}

	timestamp := req.Headers["OK-ACCESS-TIMESTAMP"]
	if !regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`).MatchString(timestamp) {
		t.Errorf("timestamp format = %q", timestamp)
	}
	if timestamp != "2023-11-14T22:13:20.123Z" {
		t.Errorf("timestamp = %q", timestamp)
	}

	// The signature covers timestamp + method + canonical path?query + body.
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(timestamp + "GET" + "/api/v5/trade/orders-pending?instType=SPOT"))
	if want := base64.StdEncoding.EncodeToString(mac.Sum(nil)); req.Headers["OK-ACCESS-SIGN"] != want {
		t.Errorf("signature = %q, want %q", req.Headers["OK-ACCESS-SIGN"], want)
	}

	if _, ok := req.Headers["x-simulated-trading"]; ok {
		t.Error("live trading must not set the demo header")
	}
}

func TestSignRequestPaperTrading(t *testing.T) {
	t.Parallel()
	o := testAdapter(func(opts *config.Options) { opts.IsPaperTrading = true })

	req, _ := wire.NewRequest(&wire.Request{Method: wire.MethodGet, Path: "/api/v5/account/balance"})
	if err := o.SignRequest(req, types.TimePointNow()); err != nil {
		t.Fatal(err)
	}
	if req.Headers["x-simulated-trading"] != "1" {
		t.Error("paper trading must set x-simulated-trading")
	}
	if ep := o.AccountEndpoint(); ep.BaseURL != wsDemoBaseURL {
		t.Errorf("paper trading stream base = %q", ep.BaseURL)
	}
}

func TestClassifyResponse(t *testing.T) {
	t.Parallel()
	o := testAdapter(nil)

	tests := []struct {
		method string
		path   string
		want   venue.ResponseKind
	}{
		{wire.MethodGet, pathInstruments, venue.ResponseInstruments},
		{wire.MethodGet, pathTickers, venue.ResponseBbo},
		{wire.MethodGet, pathHistoryTrades, venue.ResponseHistoricalTrade},
		{wire.MethodGet, pathHistoryCandles, venue.ResponseHistoricalOhlcv},
		{wire.MethodPost, pathOrder, venue.ResponseCreateOrder},
		{wire.MethodPost, pathCancelOrder, venue.ResponseCancelOrder},
		{wire.MethodGet, pathOrder, venue.ResponseFetchOrder},
		{wire.MethodGet, pathOrdersPending, venue.ResponseFetchOpenOrder},
		{wire.MethodGet, pathPositions, venue.ResponseFetchPosition},
		{wire.MethodGet, pathBalance, venue.ResponseFetchBalance},
		{wire.MethodGet, pathOrdersHistory, venue.ResponseHistoricalOrder},
		{wire.MethodGet, pathOrdersHistoryArchive, venue.ResponseHistoricalOrder},
		{wire.MethodGet, pathFills, venue.ResponseHistoricalFill},
		{wire.MethodGet, pathFillsHistory, venue.ResponseHistoricalFill},
	}
	for _, tt := range tests {
		tt := tt
		resp := &wire.Response{Request: &wire.Request{Method: tt.method, Path: tt.path}}
		if got := o.ClassifyResponse(resp); got != tt.want {
			t.Errorf("ClassifyResponse(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestIsResponseSuccessTunnelledFailure(t *testing.T) {
	t.Parallel()
	o := testAdapter(nil)

	ok := responseWithBody(t, 200, `{"code":"0","data":[]}`)
	if !o.IsResponseSuccess(ok) {
		t.Error("code 0 inside 200 is a success")
	}
	tunnelled := responseWithBody(t, 200, `{"code":"51001","msg":"order does not exist","data":[]}`)
	if o.IsResponseSuccess(tunnelled) {
		t.Error("non-zero code inside 200 is a failure")
	}
	httpError := responseWithBody(t, 500, `{"code":"0"}`)
	if o.IsResponseSuccess(httpError) {
		t.Error("5xx is a failure regardless of body")
	}
}

func TestHandleResponseErrorUnknownOrderRejects(t *testing.T) {
	t.Parallel()
	o := testAdapter(nil)

	resp := responseWithBody(t, 200, `{"code":"51001"}`)
	resp.Request.Method = wire.MethodGet
	resp.Request.Path = pathOrder
	resp.Request.QueryParams = map[string]string{"instId": "BTC-USDT", "clOrdId": "c1"}

	action := o.HandleResponseError(resp)
	if action.RejectOrder == nil {
		t.Fatal("unknown order code must mark the order rejected")
	}
	if action.RejectOrder.Symbol != "BTC-USDT" || action.RejectOrder.ClientOrderID != "c1" {
		t.Errorf("reject ref = %+v", action.RejectOrder)
	}
}

func TestHandleResponseErrorCreateOrderFetches(t *testing.T) {
	t.Parallel()
	o := testAdapter(nil)

	resp := responseWithBody(t, 200, `{"code":"51008"}`)
	resp.Request.Method = wire.MethodPost
	resp.Request.Path = pathOrder
	resp.Request.JSONPayload = map[string]any{"instId": "BTC-USDT", "clOrdId": "c2"}

	action := o.HandleResponseError(resp)
	if action.FetchOrder == nil {
		t.Fatal("failed create must schedule a corrective fetch")
	}
	if action.FetchOrder.ClientOrderID != "c2" {
		t.Errorf("fetch ref = %+v", action.FetchOrder)
	}
}

func TestClassifyStreamMessage(t *testing.T) {
	t.Parallel()
	o := testAdapter(nil)

	tests := []struct {
		name    string
		payload string
		want    venue.StreamKind
	}{
		{"bare pong", "pong", venue.StreamRespPong},
		{"bbo push", `{"arg":{"channel":"bbo-tbt","instId":"BTC-USDT"},"data":[]}`, venue.StreamPushBbo},
		{"trade push", `{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[]}`, venue.StreamPushTrade},
		{"candle push", `{"arg":{"channel":"candle1m","instId":"BTC-USDT"},"data":[]}`, venue.StreamPushOhlcv},
		{"order push", `{"arg":{"channel":"orders","instType":"SPOT"},"data":[]}`, venue.StreamPushOrder},
		{"position push", `{"arg":{"channel":"positions"},"data":[]}`, venue.StreamPushPosition},
		{"balance push", `{"arg":{"channel":"balance_and_position"},"data":[]}`, venue.StreamPushBalance},
		{"login ok", `{"event":"login","code":"0"}`, venue.StreamRespLogin},
		{"subscribe ok", `{"event":"subscribe","arg":{"channel":"trades"}}`, venue.StreamRespSubscribe},
		{"create order ok", `{"id":"7","op":"order","code":"0","data":[{"ordId":"1"}]}`, venue.StreamRespCreateOrder},
		{"cancel order ok", `{"id":"8","op":"cancel-order","code":"0","data":[{"ordId":"1"}]}`, venue.StreamRespCancelOrder},
		{"error event", `{"event":"error","code":"60009","msg":"login failed"}`, venue.StreamRespError},
		{"op error", `{"id":"9","op":"order","code":"60013","data":[]}`, venue.StreamRespError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := wire.NewStreamMessage("wss://x/ws", "/ws", tt.payload)
			o.ExtractStreamSummary(msg)
			if got := o.ClassifyStreamMessage(msg); got != tt.want {
				t.Errorf("ClassifyStreamMessage = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConvertInstruments(t *testing.T) {
	t.Parallel()
	o := testAdapter(nil)

	resp := responseWithBody(t, 200, `{"code":"0","data":[{
		"instId":"BTC-USDT","baseCcy":"BTC","quoteCcy":"USDT",
		"tickSz":"0.1000","lotSz":"0.00000100","minSz":"0.00001","maxLmtSz":"9999","maxLmtAmt":"1000000",
		"settleCcy":"","uly":"","ctVal":"","ctMult":"","expTime":"","state":"live"}]}`)

	instruments, err := o.ConvertInstruments(resp)
	if err != nil {
		t.Fatal(err)
	}
	if len(instruments) != 1 {
		t.Fatalf("len = %d", len(instruments))
	}
	ins := instruments[0]
	if ins.Symbol != "BTC-USDT" || !ins.IsOpenForTrade {
		t.Errorf("instrument = %+v", ins)
	}
	if ins.OrderPriceIncrement != "0.1" {
		t.Errorf("price increment = %q, want normalized 0.1", ins.OrderPriceIncrement)
	}
	if ins.OrderQuantityIncrement != "0.000001" {
		t.Errorf("quantity increment = %q", ins.OrderQuantityIncrement)
	}
}

func TestConvertBbosFiltersSymbols(t *testing.T) {
	t.Parallel()
	o := testAdapter(nil)
	o.BindSession(
		func() map[string]bool { return map[string]bool{"BTC-USDT": true} },
		func(string) (types.Instrument, bool) { return types.Instrument{}, false },
	)

	resp := responseWithBody(t, 200, `{"code":"0","data":[
		{"instId":"BTC-USDT","ts":"1700000000123","bidPx":"50000","bidSz":"1","askPx":"50001","askSz":"2"},
		{"instId":"ETH-USDT","ts":"1700000000123","bidPx":"3000","bidSz":"1","askPx":"3001","askSz":"2"}]}`)

	bbos, err := o.ConvertBbos(resp)
	if err != nil {
		t.Fatal(err)
	}
	if len(bbos) != 1 || bbos[0].Symbol != "BTC-USDT" {
		t.Fatalf("bbos = %+v", bbos)
	}
	if bbos[0].ExchangeUpdateTimePoint.Seconds != 1700000000 || bbos[0].ExchangeUpdateTimePoint.Nanos != 123_000_000 {
		t.Errorf("time point = %+v", bbos[0].ExchangeUpdateTimePoint)
	}
}

func TestConvertStreamOrderDerivesFill(t *testing.T) {
	t.Parallel()
	o := testAdapter(nil)

	payload := `{"arg":{"channel":"orders","instType":"SPOT"},"data":[{
		"instId":"BTC-USDT","ordId":"99","clOrdId":"c9","side":"buy","px":"50000","sz":"0.002",
		"ordType":"limit","tdMode":"cash","reduceOnly":"false","state":"partially_filled",
		"accFillSz":"0.001","avgPx":"50000","fillSz":"0.001","fillPx":"50000","fillTime":"1700000001000",
		"tradeId":"777","fee":"-0.05","feeCcy":"USDT","uTime":"1700000001000","cTime":"1700000000000"}]}`
	msg := wire.NewStreamMessage("wss://x/ws/v5/private", wsPrivatePath, payload)
	o.ExtractStreamSummary(msg)

	orders, err := o.ConvertStreamOrders(msg)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders = %+v", orders)
	}
	order := orders[0]
	if order.Status != types.OrderStatusPartiallyFilled {
		t.Errorf("status = %v", order.Status)
	}
	if order.CumulativeFilledQuantity != "0.001" || order.CumulativeFilledQuoteQuantity != "50" {
		t.Errorf("fill progress = %q / %q", order.CumulativeFilledQuantity, order.CumulativeFilledQuoteQuantity)
	}

	fills, err := o.ConvertStreamFills(msg)
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %+v", fills)
	}
	fill := fills[0]
	if fill.TradeID != "777" || fill.Quantity != "0.001" {
		t.Errorf("fill = %+v", fill)
	}
	if fill.FeeQuantity != "0.05" || fill.IsFeeRebate {
		t.Errorf("fee = %q rebate=%v", fill.FeeQuantity, fill.IsFeeRebate)
	}
}

func TestOrderStatusMapping(t *testing.T) {
	t.Parallel()
	o := testAdapter(nil)

	tests := map[string]types.OrderStatus{
		"live":             types.OrderStatusNew,
		"partially_filled": types.OrderStatusPartiallyFilled,
		"filled":           types.OrderStatusFilled,
		"canceled":         types.OrderStatusCanceled,
		"mmp_canceled":     types.OrderStatusCanceled,
		"unheard_of":       types.OrderStatusUnknown,
	}
	for venueStatus, want := range tests {
		if got := o.OrderStatus(venueStatus); got != want {
			t.Errorf("OrderStatus(%q) = %v, want %v", venueStatus, got, want)
		}
	}
}

func TestNextHistoricalOrderRequestArchiveFallthrough(t *testing.T) {
	t.Parallel()
	o := testAdapter(nil)

	// Recent endpoint exhausted: the producer must switch to the archive
	// endpoint, carrying the cursor.
	resp := responseWithBody(t, 200, `{"code":"0","data":[]}`)
	resp.Request.Path = pathOrdersHistory
	resp.Request.QueryParams = map[string]string{"instType": "SPOT", "instId": "BTC-USDT", "after": "42"}

	fn := o.NextHistoricalOrderRequest(resp)
	if fn == nil {
		t.Fatal("expected archive continuation")
	}
	req, err := fn(types.TimePointNow())
	if err != nil {
		t.Fatal(err)
	}
	if req.Path != pathOrdersHistoryArchive {
		t.Errorf("path = %q", req.Path)
	}
	if req.QueryParams["after"] != "42" || req.QueryParams["instId"] != "BTC-USDT" {
		t.Errorf("query = %v", req.QueryParams)
	}

	// Archive exhausted too: chain terminates.
	done := responseWithBody(t, 200, `{"code":"0","data":[]}`)
	done.Request.Path = pathOrdersHistoryArchive
	done.Request.QueryParams = map[string]string{"instId": "BTC-USDT"}
	if o.NextHistoricalOrderRequest(done) != nil {
		t.Error("exhausted archive must terminate the chain")
	}
}

func TestNextHistoricalTradeRequestStopsAtWindowStart(t *testing.T) {
	t.Parallel()
	o := testAdapter(func(opts *config.Options) {
		opts.FetchHistoricalTradeStartUnixTimestampSeconds = 1700000000
	})

	// Earliest entry is before the window start: terminate.
	resp := responseWithBody(t, 200, `{"code":"0","data":[
		{"instId":"BTC-USDT","ts":"1699999000000","tradeId":"10","px":"1","sz":"1","side":"buy"},
		{"instId":"BTC-USDT","ts":"1699999999000","tradeId":"20","px":"1","sz":"1","side":"buy"}]}`)
	resp.Request.Path = pathHistoryTrades
	if o.NextHistoricalTradeRequest(resp) != nil {
		t.Error("chain must stop once the window start is passed")
	}

	// Still inside the window: continue with the earliest trade id.
	resp2 := responseWithBody(t, 200, `{"code":"0","data":[
		{"instId":"BTC-USDT","ts":"1700000100000","tradeId":"30","px":"1","sz":"1","side":"buy"},
		{"instId":"BTC-USDT","ts":"1700000200000","tradeId":"40","px":"1","sz":"1","side":"buy"}]}`)
	resp2.Request.Path = pathHistoryTrades
	fn := o.NextHistoricalTradeRequest(resp2)
	if fn == nil {
		t.Fatal("expected continuation")
	}
	req, err := fn(types.TimePointNow())
	if err != nil {
		t.Fatal(err)
	}
	if req.QueryParams["after"] != "30" {
		t.Errorf("after = %q, want 30", req.QueryParams["after"])
	}
}

func TestMarketDataSubscribeRequestsChunks(t *testing.T) {
	t.Parallel()
	o := testAdapter(func(opts *config.Options) {
		opts.SubscribeBbo = true
		opts.SubscribeTrade = true
		opts.WebsocketMarketDataChannelSymbolsLimit = 2
	})

	symbols := []string{"A-USDT", "B-USDT", "C-USDT"}
	requests, err := o.MarketDataSubscribeRequests(func() string { return "1" },
		venue.Endpoint{BaseURL: wsBaseURL, Path: wsPublicPath}, symbols, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(requests) != 2 {
		t.Fatalf("requests = %d, want 2 chunks", len(requests))
	}

	var frame struct {
		Op   string           `json:"op"`
		Args []map[string]any `json:"args"`
	}
	if err := json.Unmarshal([]byte(requests[0].Payload), &frame); err != nil {
		t.Fatal(err)
	}
	if frame.Op != "subscribe" {
		t.Errorf("op = %q", frame.Op)
	}
	// Two channels per symbol, two symbols in the first chunk.
	if len(frame.Args) != 4 {
		t.Errorf("args = %d, want 4", len(frame.Args))
	}
}

func TestLoginRequestShape(t *testing.T) {
	t.Parallel()
	o := testAdapter(nil)

	req, err := o.LoginRequest("", types.TimePoint{Seconds: 1700000000})
	if err != nil {
		t.Fatal(err)
	}
	var frame struct {
		Op   string `json:"op"`
		Args []struct {
			ApiKey     string `json:"apiKey"`
			Passphrase string `json:"passphrase"`
			Timestamp  string `json:"timestamp"`
			Sign       string `json:"sign"`
		} `json:"args"`
	}
	if err := json.Unmarshal([]byte(req.Payload), &frame); err != nil {
		t.Fatal(err)
	}
	if frame.Op != "login" || len(frame.Args) != 1 {
		t.Fatalf("frame = %+v", frame)
	}
	arg := frame.Args[0]
	if arg.ApiKey != "key" || arg.Timestamp != "1700000000" {
		t.Errorf("arg = %+v", arg)
	}

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("1700000000GET/users/self/verify"))
	if want := base64.StdEncoding.EncodeToString(mac.Sum(nil)); arg.Sign != want {
		t.Errorf("sign = %q, want %q", arg.Sign, want)
	}
}

func responseWithBody(t *testing.T, status int, body string) *wire.Response {
	t.Helper()
	resp := &wire.Response{
		StatusCode: status,
		Payload:    body,
		Headers:    map[string][]string{"Content-Type": {"application/json"}},
		Request:    &wire.Request{Method: wire.MethodGet},
	}
	resp.DeserializeJSON()
	return resp
}
