package support

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

const DefaultUpstreamTimeout = 10 * time.Second

type TransportOptions struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// CreateTransport builds a single-use transport that sends every request
// through proxyAddress. There is no direct-connection fallback: a transport
// without a usable proxy is an error.
func CreateTransport(proxyAddress string, opts TransportOptions) (*http.Transport, error) {
	proxyURL, err := ParseProxyAddress(proxyAddress)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 0,
		}).DialContext,
		DisableKeepAlives:     true,
		MaxIdleConns:          0,
		MaxIdleConnsPerHost:   0,
		IdleConnTimeout:       0,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify,
		},
	}

	switch proxyURL.Scheme {
	case ProxySchemeHTTP, ProxySchemeHTTPS:
		transport.Proxy = http.ProxyURL(proxyURL)

	case ProxySchemeSOCKS5:
		var auth *proxy.Auth
		if proxyURL.User != nil {
			password, _ := proxyURL.User.Password()
			auth = &proxy.Auth{User: proxyURL.User.Username(), Password: password}
		}
		socksDialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, &net.Dialer{Timeout: timeout})
		if err != nil {
			return nil, err
		}
		if contextDialer, ok := socksDialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return socksDialer.Dial(network, addr)
			}
		}

	case ProxySchemeSOCKS4:
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialSOCKS4(ctx, proxyURL, addr, timeout)
		}

	default:
		return nil, fmt.Errorf("unsupported proxy protocol %q", proxyURL.Scheme)
	}

	return transport, nil
}

func dialSOCKS4(ctx context.Context, proxyURL *url.URL, target string, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", proxyURL.Host)
	if err != nil {
		return nil, err
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		_ = conn.Close()
		return nil, fmt.Errorf("invalid target port %q", portStr)
	}

	ipBytes := net.ParseIP(host).To4()
	var domainName string
	if ipBytes == nil {
		ipBytes = []byte{0x00, 0x00, 0x00, 0x01} // SOCKS4a
		domainName = host
	}

	userField := ""
	if proxyURL.User != nil {
		userField = proxyURL.User.Username()
	}

	req := []byte{0x04, 0x01, byte(port >> 8), byte(port)}
	req = append(req, ipBytes...)
	req = append(req, []byte(userField)...)
	req = append(req, 0x00)
	if domainName != "" {
		req = append(req, []byte(domainName)...)
		req = append(req, 0x00)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	if _, err := conn.Write(req); err != nil {
		_ = conn.Close()
		return nil, err
	}

	resp := make([]byte, 8)
	if _, err := io.ReadFull(conn, resp); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if resp[1] != 0x5A {
		_ = conn.Close()
		return nil, fmt.Errorf("socks4 connect failed with code %d", resp[1])
	}

	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}
