// Package venue defines the narrow per-exchange seam the session core is
// written against. A concrete venue (see the okx subpackage) supplies URLs,
// request signing, payload conversion, response classification and enum
// mapping; everything else (caching, reconciliation, pagination driving,
// connection management) lives in the core and is venue-agnostic.
package venue

import (
	"github.com/the-crypto-trade/crypto-trade/internal/wire"
	"github.com/the-crypto-trade/crypto-trade/pkg/types"
)

// Endpoint identifies one logical streaming endpoint: the (base URL, path,
// query) triple the connection manager keys connections by.
type Endpoint struct {
	BaseURL     string
	Path        string
	QueryParams map[string]string
}

// URL returns the full endpoint URL including the canonical query string.
func (e Endpoint) URL() string {
	if len(e.QueryParams) == 0 {
		return e.BaseURL + e.Path
	}
	return e.BaseURL + e.Path + "?" + wire.CanonicalQueryString(e.QueryParams)
}

// ResponseKind classifies an HTTP response by the domain it answers.
type ResponseKind int

const (
	ResponseUnknown ResponseKind = iota
	ResponseInstruments
	ResponseBbo
	ResponseHistoricalTrade
	ResponseHistoricalOhlcv
	ResponseCreateOrder
	ResponseCancelOrder
	ResponseFetchOrder
	ResponseFetchOpenOrder
	ResponseFetchPosition
	ResponseFetchBalance
	ResponseHistoricalOrder
	ResponseHistoricalFill
)

// StreamKind classifies an inbound stream frame after summary extraction.
type StreamKind int

const (
	StreamIgnore StreamKind = iota
	StreamPushBbo
	StreamPushTrade
	StreamPushOhlcv
	StreamPushOrder
	StreamPushFill
	StreamPushPosition
	StreamPushBalance
	StreamRespCreateOrder
	StreamRespCancelOrder
	StreamRespSubscribe
	StreamRespLogin
	StreamRespPong
	StreamRespError
)

// OrderRef identifies one order for a corrective action.
type OrderRef struct {
	Symbol        string
	OrderID       string
	ClientOrderID string
}

// ErrorAction is the adapter error hook's verdict on a failed response:
// optionally schedule a corrective order fetch, optionally mark the local
// order rejected (e.g. the venue reported "unknown order").
type ErrorAction struct {
	FetchOrder  *OrderRef
	RejectOrder *OrderRef
}

// SessionAware is implemented by adapters whose conversions need
// session-resolved state: the expanded symbol set and the refreshed
// instrument definitions. The session binds itself before Start.
type SessionAware interface {
	BindSession(symbols func() map[string]bool, instrument func(symbol string) (types.Instrument, bool))
}

// Adapter is the per-venue plug-in surface. All methods are pure of side
// effects beyond mutating the request they are handed.
type Adapter interface {
	Name() string

	// ValidateInstrumentType rejects unknown market segments. Fatal when the
	// session is created, before Start.
	ValidateInstrumentType(instrumentType string) error

	// ConvertBaseQuoteToSymbol renders the venue's symbol for an asset pair.
	ConvertBaseQuoteToSymbol(baseAsset, quoteAsset string) string

	// FormatOhlcvInterval renders a candle interval the way the venue spells it.
	FormatOhlcvInterval(intervalSeconds int) string

	// OrderStatus maps the venue's status string onto the shared progression.
	OrderStatus(venueStatus string) types.OrderStatus

	// SignRequest attaches the venue's credential headers to req, using the
	// supplied time point for the signature timestamp.
	SignRequest(req *wire.Request, timePoint types.TimePoint) error

	// Request builders, one per domain. A nil RequestFunc means the venue
	// has no endpoint for that domain.
	FetchInstrumentsRequest() wire.RequestFunc
	FetchBboRequest() wire.RequestFunc
	FetchHistoricalTradeRequest(symbol string) wire.RequestFunc
	FetchHistoricalOhlcvRequest(symbol string) wire.RequestFunc
	CreateOrderRequest(order types.Order) wire.RequestFunc
	CancelOrderRequest(ref OrderRef) wire.RequestFunc
	FetchOrderRequest(ref OrderRef) wire.RequestFunc
	FetchOpenOrderRequest() wire.RequestFunc
	FetchPositionRequest() wire.RequestFunc
	FetchBalanceRequest() wire.RequestFunc
	FetchHistoricalOrderRequest(symbol string) wire.RequestFunc
	FetchHistoricalFillRequest(symbol string) wire.RequestFunc

	// IsResponseSuccess decides whether a response succeeded. Venues that
	// tunnel failures inside 200 OK inspect the deserialized body here.
	IsResponseSuccess(resp *wire.Response) bool

	// ClassifyResponse names the domain a response answers, by path/method.
	ClassifyResponse(resp *wire.Response) ResponseKind

	// Converters, deserialized body -> entities.
	ConvertInstruments(resp *wire.Response) ([]types.Instrument, error)
	ConvertBbos(resp *wire.Response) ([]types.Bbo, error)
	ConvertHistoricalTrades(resp *wire.Response) ([]types.Trade, error)
	ConvertHistoricalOhlcvs(resp *wire.Response) ([]types.Ohlcv, error)
	ConvertCreateOrderResponse(resp *wire.Response) (types.Order, error)
	ConvertCancelOrderResponse(resp *wire.Response) (types.Order, error)
	ConvertFetchOrderResponse(resp *wire.Response) (types.Order, error)
	ConvertOpenOrders(resp *wire.Response) ([]types.Order, error)
	ConvertPositions(resp *wire.Response) ([]types.Position, error)
	ConvertBalances(resp *wire.Response) ([]types.Balance, error)
	ConvertHistoricalOrders(resp *wire.Response) ([]types.Order, error)
	ConvertHistoricalFills(resp *wire.Response) ([]types.Fill, error)

	// Pagination producers: the next request walking backwards in time, or
	// nil when the window start is reached or the venue returned no cursor.
	NextHistoricalTradeRequest(resp *wire.Response) wire.RequestFunc
	NextHistoricalOhlcvRequest(resp *wire.Response) wire.RequestFunc
	NextOpenOrderRequest(resp *wire.Response) wire.RequestFunc
	NextHistoricalOrderRequest(resp *wire.Response) wire.RequestFunc
	NextHistoricalFillRequest(resp *wire.Response) wire.RequestFunc

	// HandleResponseError is the error hook for classified failures.
	HandleResponseError(resp *wire.Response) ErrorAction

	// Streaming endpoints. A venue may spread market data channels over
	// several endpoints; account endpoints are nil when the venue (or
	// configuration) has none.
	MarketDataEndpoints() []Endpoint
	AccountEndpoint() *Endpoint
	AccountTradeEndpoint() *Endpoint

	// ExtractStreamSummary fills msg.Summary and msg.RequestID from the
	// deserialized payload.
	ExtractStreamSummary(msg *wire.StreamMessage)

	// ClassifyStreamMessage dispatches a summarized frame.
	ClassifyStreamMessage(msg *wire.StreamMessage) StreamKind

	// Stream frame builders.
	LoginRequest(id string, timePoint types.TimePoint) (*wire.StreamRequest, error)
	AppPingRequest() (*wire.StreamRequest, error)
	MarketDataSubscribeRequests(id func() string, endpoint Endpoint, symbols []string, subscribe bool) ([]*wire.StreamRequest, error)
	AccountSubscribeRequest(id string, subscribe bool) (*wire.StreamRequest, error)
	CreateOrderStreamRequest(id string, order types.Order) (*wire.StreamRequest, error)
	CancelOrderStreamRequest(id string, ref OrderRef) (*wire.StreamRequest, error)

	// Stream converters.
	ConvertStreamBbos(msg *wire.StreamMessage) ([]types.Bbo, error)
	ConvertStreamTrades(msg *wire.StreamMessage) ([]types.Trade, error)
	ConvertStreamOhlcvs(msg *wire.StreamMessage) ([]types.Ohlcv, error)
	ConvertStreamOrders(msg *wire.StreamMessage) ([]types.Order, error)
	ConvertStreamFills(msg *wire.StreamMessage) ([]types.Fill, error)
	ConvertStreamPositions(msg *wire.StreamMessage) ([]types.Position, error)
	ConvertStreamBalances(msg *wire.StreamMessage) ([]types.Balance, error)
	ConvertStreamCreateOrderResponse(msg *wire.StreamMessage) (types.Order, error)
	ConvertStreamCancelOrderResponse(msg *wire.StreamMessage) (types.Order, error)

	// HandleStreamError is the error hook for stream-side failures.
	HandleStreamError(msg *wire.StreamMessage) ErrorAction
}
