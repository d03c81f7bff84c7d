package capabilities

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPRequest describes an outbound HTTP call made by an http-request node.
type HTTPRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// HTTPResponse is the observed result of an outbound HTTP call. Body is
// decoded JSON when the response carries JSON, otherwise the raw string.
type HTTPResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       any               `json:"body"`
}

// HTTPCallFunc performs an outbound call or fails with an HttpError.
type HTTPCallFunc func(ctx context.Context, req HTTPRequest) (HTTPResponse, error)

// HTTPCaller performs outbound HTTP calls for http-request nodes. Non-2xx
// responses are returned, not treated as errors: branching on status codes
// is workflow logic.
type HTTPCaller struct {
	httpClient *http.Client
}

// NewHTTPCaller creates a caller. A nil httpClient falls back to
// http.DefaultClient.
func NewHTTPCaller(httpClient *http.Client) *HTTPCaller {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &HTTPCaller{httpClient: httpClient}
}

// Do performs the call.
func (c *HTTPCaller) Do(ctx context.Context, req HTTPRequest) (HTTPResponse, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	target, err := url.Parse(req.URL)
	if err != nil {
		return HTTPResponse{}, Errorf(ErrorKindHTTP, "invalid url %s: %v", req.URL, err)
	}

	if len(req.Query) > 0 {
		values := target.Query()
		for key, value := range req.Query {
			values.Set(key, value)
		}

		target.RawQuery = values.Encode()
	}

	var body io.Reader

	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return HTTPResponse{}, Errorf(ErrorKindHTTP, "failed to encode request body: %v", err)
		}

		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return HTTPResponse{}, Errorf(ErrorKindHTTP, "failed to build request: %v", err)
	}

	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return HTTPResponse{}, Errorf(ErrorKindTimeout, "call to %s timed out", req.URL)
		}

		return HTTPResponse{}, Errorf(ErrorKindHTTP, "call to %s failed: %v", req.URL, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return HTTPResponse{}, Errorf(ErrorKindHTTP, "failed to read response from %s: %v", req.URL, err)
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	response := HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		response.Body = decoded
	} else {
		response.Body = string(raw)
	}

	return response, nil
}
