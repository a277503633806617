package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"railwatch/internal/support"
)

const defaultMaxBodyBytes = 8 << 20

// HTTPTransport sends each request over a fresh proxied connection.
type HTTPTransport struct {
	options      support.TransportOptions
	maxBodyBytes int64
}

func NewHTTPTransport(options support.TransportOptions) *HTTPTransport {
	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}
	return &HTTPTransport{options: options, maxBodyBytes: defaultMaxBodyBytes}
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, req *Request, proxy string) (*Response, error) {
	transport, err := support.CreateTransport(proxy, t.options)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamConnection, err)
	}
	defer transport.CloseIdleConnections()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	httpReq.Header = req.Header.Clone()

	client := &http.Client{Transport: transport, Timeout: t.options.Timeout}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// one byte past the limit tells a truncated body from one that fits exactly
	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > t.maxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, t.maxBodyBytes)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Elapsed:    time.Since(start),
	}, nil
}
