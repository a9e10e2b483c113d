// Package wire defines the request/response envelopes exchanged with a
// venue over both API channels, plus URL and query-string composition.
//
// Query strings built from a parameter map are produced in the canonical
// form several venues require for signatures: keys stable-sorted, values
// URL-encoded, pairs joined with '&'.
package wire

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/the-crypto-trade/crypto-trade/pkg/types"
)

// HTTP methods accepted by Request.Method.
const (
	MethodGet    = "GET"
	MethodPost   = "POST"
	MethodPut    = "PUT"
	MethodDelete = "DELETE"
)

// Request is one outgoing HTTP request. QueryString is derived from
// QueryParams at construction when params are given; otherwise the raw
// string passed in is used verbatim.
type Request struct {
	ID          string
	BaseURL     string
	Method      string
	Path        string
	QueryParams map[string]string
	QueryString string
	Headers     map[string]string
	Payload     string
	JSONPayload map[string]any
	ExtraData   any
}

// RequestFunc builds a request at send time. The pipeline supplies the time
// point so signatures are stamped at the moment of transmission, not at the
// moment the chain was planned.
type RequestFunc func(timePoint types.TimePoint) (*Request, error)

// NewRequest assembles a request, canonicalizing the query string and
// serializing the JSON payload if one is given.
func NewRequest(req *Request) (*Request, error) {
	if len(req.QueryParams) > 0 {
		req.QueryString = CanonicalQueryString(req.QueryParams)
	}
	if req.JSONPayload != nil && req.Payload == "" {
		payload, err := json.Marshal(req.JSONPayload)
		if err != nil {
			return nil, err
		}
		req.Payload = string(payload)
	}
	return req, nil
}

// URL returns base URL + path, without the query string.
func (r *Request) URL() string {
	return r.BaseURL + r.Path
}

// PathWithQueryString returns the path joined with the canonical query
// string, the exact form that participates in request signatures.
func (r *Request) PathWithQueryString() string {
	if r.QueryString == "" {
		return r.Path
	}
	return r.Path + "?" + r.QueryString
}

// SetHeader sets one header, allocating the map on first use.
func (r *Request) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
}

// CanonicalQueryString renders params as stable-sorted, URL-encoded k=v
// pairs joined by '&'. Byte-identical to the server-side canonical form.
func CanonicalQueryString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// Response is one HTTP response, paired with the request that produced it.
// NextRequest, when non-nil, continues a pagination chain after
// NextRequestDelay.
type Response struct {
	StatusCode int
	Payload    string
	Headers    map[string][]string
	JSON       any
	Request    *Request

	NextRequest      RequestFunc
	NextRequestDelay time.Duration
}

// DeserializeJSON parses the payload into Response.JSON when the content
// type says it is JSON. A payload that fails to parse is left raw.
func (r *Response) DeserializeJSON() {
	if r.Payload == "" || !contentTypeIsJSON(r.Headers) {
		return
	}
	var v any
	if err := json.Unmarshal([]byte(r.Payload), &v); err == nil {
		r.JSON = v
	}
}

func contentTypeIsJSON(headers map[string][]string) bool {
	for k, vs := range headers {
		if strings.EqualFold(k, "Content-Type") {
			for _, v := range vs {
				if strings.HasPrefix(v, "application/json") {
					return true
				}
			}
		}
	}
	return false
}

// StreamRequest is one outgoing frame on the streaming channel. Frames that
// expect a correlated reply carry an ID the venue echoes back; the
// structured payload is kept so reply handlers can read back what was sent.
type StreamRequest struct {
	ID          string
	Payload     string
	JSONPayload any
	ExtraData   any
}

// NewStreamRequest serializes a structured payload into a frame.
func NewStreamRequest(id string, jsonPayload any) (*StreamRequest, error) {
	payload, err := json.Marshal(jsonPayload)
	if err != nil {
		return nil, err
	}
	return &StreamRequest{ID: id, Payload: string(payload), JSONPayload: jsonPayload}, nil
}

// Summary is the small discriminator the adapter extracts from an inbound
// frame; the core dispatches on it without knowing venue payload shapes.
type Summary struct {
	Event   string
	Op      string
	Channel string
	Code    string
}

// StreamMessage is one inbound frame, deserialized and summarized.
// RequestID is non-empty when the frame answers an outgoing StreamRequest,
// which is then attached as Request.
type StreamMessage struct {
	ConnectionURL  string
	ConnectionPath string
	Payload        string
	JSON           any
	Summary        Summary
	RequestID      string
	Request        *StreamRequest
}

// NewStreamMessage deserializes a raw frame. Frames that are not valid JSON
// (some venues send a bare "pong") keep a nil JSON field.
func NewStreamMessage(connectionURL, connectionPath, payload string) *StreamMessage {
	m := &StreamMessage{ConnectionURL: connectionURL, ConnectionPath: connectionPath, Payload: payload}
	var v any
	if err := json.Unmarshal([]byte(payload), &v); err == nil {
		m.JSON = v
	}
	return m
}
