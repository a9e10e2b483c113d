// Package rest implements the request/response pipeline.
//
// The pipeline issues one request, reads the body, and hands the response to
// a handler. The handler may attach a continuation (a function producing
// the next request, plus a delay) and the pipeline keeps going until the
// continuation is nil. Every paginated historical fetch is one such chain;
// the inter-request delay keeps the client under the venue's rate limits.
package rest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/the-crypto-trade/crypto-trade/internal/metrics"
	"github.com/the-crypto-trade/crypto-trade/internal/wire"
	"github.com/the-crypto-trade/crypto-trade/pkg/types"
)

// DefaultTimeout is the socket read timeout applied to every request.
const DefaultTimeout = 10 * time.Second

// Handler processes one classified response. Setting resp.NextRequest
// continues the chain after resp.NextRequestDelay.
type Handler func(resp *wire.Response) error

// Pipeline drives requests over one shared HTTP client session.
type Pipeline struct {
	http     *resty.Client
	exchange string
	logger   *slog.Logger
}

// New creates a pipeline with the default read timeout.
func New(exchange string, logger *slog.Logger) *Pipeline {
	httpClient := resty.New().
		SetTimeout(DefaultTimeout).
		SetHeader("Content-Type", "application/json")

	return &Pipeline{
		http:     httpClient,
		exchange: exchange,
		logger:   logger.With("component", "rest"),
	}
}

// Close releases the underlying connection pool.
func (p *Pipeline) Close() {
	p.http.GetClient().CloseIdleConnections()
}

// Send issues the request chain started by fn, threading continuations until
// the handler stops returning one. fn may be nil (venue has no endpoint for
// the domain); that is a no-op.
func (p *Pipeline) Send(ctx context.Context, fn wire.RequestFunc, handle Handler) error {
	var delay time.Duration

	for fn != nil {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := fn(types.TimePointNow())
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		p.logger.Debug("rest request", "method", req.Method, "path", req.Path, "query", req.QueryString)

		resp, err := p.execute(ctx, req)
		if err != nil {
			return err
		}

		if err := handle(resp); err != nil {
			return err
		}

		fn = resp.NextRequest
		delay = resp.NextRequestDelay
	}
	return nil
}

func (p *Pipeline) execute(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	metrics.RestRequests.WithLabelValues(p.exchange, req.Method).Inc()

	r := p.http.R().SetContext(ctx)
	if req.QueryString != "" {
		r.SetQueryString(req.QueryString)
	}
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if req.Payload != "" {
		r.SetBody(req.Payload)
	}

	raw, err := r.Execute(req.Method, req.URL())
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}

	resp := &wire.Response{
		StatusCode: raw.StatusCode(),
		Payload:    string(raw.Body()),
		Headers:    raw.Header(),
		Request:    req,
	}
	resp.DeserializeJSON()
	p.logger.Debug("rest response", "path", req.Path, "status", resp.StatusCode)
	return resp, nil
}
