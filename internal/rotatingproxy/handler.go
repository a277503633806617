package rotatingproxy

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"railwatch/internal/dispatch"
	"railwatch/internal/proxypool"
	"railwatch/internal/support"
)

const connectEstablishedResponse = "HTTP/1.1 200 Connection Established\r\nProxy-Agent: railwatch\r\n\r\n"

// Fetcher forwards a buffered HTTP request through the pool.
type Fetcher interface {
	Fetch(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error)
}

// DialFunc opens a tunnel to target through the upstream proxy.
type DialFunc func(ctx context.Context, proxy, target string) (net.Conn, error)

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) required() bool {
	return c.Username != "" || c.Password != ""
}

type handler struct {
	fetcher      Fetcher
	rotator      *proxypool.Rotator
	store        *proxypool.HealthStore
	dial         DialFunc
	clock        proxypool.Clock
	credentials  Credentials
	attempts     int
	maxBodyBytes int64
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authenticateClient(w, r) {
		return
	}

	if r.Method == http.MethodConnect {
		h.handleConnect(w, r)
		return
	}
	h.handleHTTP(w, r)
}

func (h *handler) authenticateClient(w http.ResponseWriter, r *http.Request) bool {
	if !h.credentials.required() {
		return true
	}

	scheme, encoded, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Proxy-Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Basic") {
		writeProxyAuthRequired(w)
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		writeProxyAuthRequired(w)
		return false
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok ||
		subtle.ConstantTimeCompare([]byte(username), []byte(h.credentials.Username)) != 1 ||
		subtle.ConstantTimeCompare([]byte(password), []byte(h.credentials.Password)) != 1 {
		writeProxyAuthRequired(w)
		return false
	}
	return true
}

func writeProxyAuthRequired(w http.ResponseWriter) {
	w.Header().Set("Proxy-Authenticate", `Basic realm="railwatch"`)
	w.WriteHeader(http.StatusProxyAuthRequired)
	_, _ = w.Write([]byte("Proxy authentication required"))
}

// handleHTTP forwards absolute-form requests through the dispatcher, so they
// get the same retry and health bookkeeping as scraper traffic.
func (h *handler) handleHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	_ = r.Body.Close()

	header := r.Header.Clone()
	removeHopHeaders(header)

	resp, err := h.fetcher.Fetch(r.Context(), &dispatch.Request{
		Method: r.Method,
		URL:    targetURL(r).String(),
		Header: header,
		Body:   body,
	})
	if err != nil {
		writeFetchError(w, err)
		return
	}

	copyHeaders(w.Header(), resp.Header)
	removeHopHeaders(w.Header())
	w.Header().Del("Content-Length")
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		log.Debug("Gateway: client went away", "error", err)
	}
}

func writeFetchError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, dispatch.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, dispatch.ErrNoProxyAvailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, dispatch.ErrUpstreamTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, dispatch.ErrResponseTooLarge):
		status = http.StatusBadGateway
	}
	if failure, ok := dispatch.AsFailure(err); ok {
		w.Header().Set("X-Railwatch-Failure", string(failure.Reason))
		if failure.LastStatus != 0 {
			w.Header().Set("X-Railwatch-Upstream-Status", strconv.Itoa(failure.LastStatus))
		}
	}
	http.Error(w, http.StatusText(status), status)
}

// handleConnect opens a tunnel through the first upstream that accepts the
// CONNECT, trying at most h.attempts proxies.
func (h *handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}

	upstream, err := h.openTunnel(r.Context(), r.Host)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, dispatch.ErrNoProxyAvailable) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	clientConn, buf, err := hijacker.Hijack()
	if err != nil {
		_ = upstream.Close()
		log.Error("Gateway: hijack failed", "error", err)
		return
	}

	if _, err := clientConn.Write([]byte(connectEstablishedResponse)); err != nil {
		_ = upstream.Close()
		_ = clientConn.Close()
		return
	}
	if buffered := buf.Reader.Buffered(); buffered > 0 {
		pending, _ := buf.Reader.Peek(buffered)
		if _, err := upstream.Write(pending); err != nil {
			_ = upstream.Close()
			_ = clientConn.Close()
			return
		}
	}

	pipeConnections(clientConn, upstream)
}

func (h *handler) openTunnel(ctx context.Context, target string) (net.Conn, error) {
	if _, _, err := net.SplitHostPort(target); err != nil {
		return nil, fmt.Errorf("%w: CONNECT target %q: %v", dispatch.ErrInvalidRequest, target, err)
	}

	var lastErr error
	for attempt := 1; attempt <= h.attempts; attempt++ {
		proxy, ok := h.rotator.Select(h.clock.Now())
		if !ok {
			return nil, dispatch.ErrNoProxyAvailable
		}

		start := h.clock.Now()
		conn, err := h.dial(ctx, proxy, target)
		if err == nil {
			h.store.RecordOutcome(proxy, true, h.clock.Now().Sub(start))
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		h.store.RecordOutcome(proxy, false, 0)
		log.Warn("Gateway: tunnel failed", "proxy", proxy, "target", target, "attempt", attempt, "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("upstream CONNECT failed: %w", lastErr)
}

func targetURL(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		return r.URL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return &url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}
}

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(header http.Header) {
	for _, key := range hopHeaders {
		header.Del(key)
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func pipeConnections(left, right net.Conn) {
	errCh := make(chan error, 2)

	go func() {
		_, err := io.Copy(left, right)
		errCh <- err
	}()
	go func() {
		_, err := io.Copy(right, left)
		errCh <- err
	}()

	<-errCh
	_ = left.Close()
	_ = right.Close()
}

func defaultDial(opts support.TransportOptions) DialFunc {
	return func(ctx context.Context, proxy, target string) (net.Conn, error) {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout(opts))
		defer cancel()
		return support.DialThrough(dialCtx, proxy, target, opts)
	}
}

func dialTimeout(opts support.TransportOptions) time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}
	return support.DefaultUpstreamTimeout
}
