package support

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

const tlsHandshakeTimeout = 5 * time.Second

// DialThrough opens a raw TCP tunnel to target via proxyAddress: CONNECT for
// http and https proxies, the SOCKS handshake otherwise.
func DialThrough(ctx context.Context, proxyAddress, target string, opts TransportOptions) (net.Conn, error) {
	proxyURL, err := ParseProxyAddress(proxyAddress)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}

	switch proxyURL.Scheme {
	case ProxySchemeHTTP, ProxySchemeHTTPS:
		conn, err := dialProxy(ctx, proxyURL, timeout, opts.InsecureSkipVerify)
		if err != nil {
			return nil, err
		}
		if err := connectTunnel(conn, proxyURL, target, timeout); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil

	case ProxySchemeSOCKS5:
		var auth *proxy.Auth
		if proxyURL.User != nil {
			password, _ := proxyURL.User.Password()
			auth = &proxy.Auth{User: proxyURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, &net.Dialer{Timeout: timeout})
		if err != nil {
			return nil, err
		}
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			return contextDialer.DialContext(ctx, "tcp", target)
		}
		return dialer.Dial("tcp", target)

	case ProxySchemeSOCKS4:
		return dialSOCKS4(ctx, proxyURL, target, timeout)

	default:
		return nil, fmt.Errorf("unsupported proxy protocol %q", proxyURL.Scheme)
	}
}

// dialProxy tries TLS first for https proxies and falls back to plain TCP
// when the handshake fails.
func dialProxy(ctx context.Context, proxyURL *url.URL, timeout time.Duration, insecure bool) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", proxyURL.Host)
	if err != nil {
		return nil, err
	}
	if proxyURL.Scheme != ProxySchemeHTTPS {
		return conn, nil
	}

	tlsConn := tls.Client(conn, &tls.Config{
		ServerName:         proxyURL.Hostname(),
		InsecureSkipVerify: insecure,
	})
	_ = conn.SetDeadline(time.Now().Add(tlsHandshakeTimeout))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return dialer.DialContext(ctx, "tcp", proxyURL.Host)
	}
	_ = tlsConn.SetDeadline(time.Time{})
	return tlsConn, nil
}

func connectTunnel(conn net.Conn, proxyURL *url.URL, target string, timeout time.Duration) error {
	request := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\nProxy-Connection: Keep-Alive\r\n", target, target)
	if proxyURL.User != nil {
		password, _ := proxyURL.User.Password()
		credentials := base64.StdEncoding.EncodeToString([]byte(proxyURL.User.Username() + ":" + password))
		request += "Proxy-Authorization: Basic " + credentials + "\r\n"
	}
	request += "\r\n"

	_ = conn.SetDeadline(time.Now().Add(timeout))
	defer conn.SetDeadline(time.Time{})

	if _, err := io.WriteString(conn, request); err != nil {
		return err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), &http.Request{Method: http.MethodConnect})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("upstream CONNECT returned %d", resp.StatusCode)
	}
	return nil
}
