package support

import (
	"bufio"
	"context"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

func listenLocal(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() })
	return listener
}

func startEcho(t *testing.T) string {
	t.Helper()
	listener := listenLocal(t)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _ = io.Copy(conn, conn)
			}()
		}
	}()
	return listener.Addr().String()
}

// startConnectProxy answers CONNECT requests carrying wantAuth and pipes the
// tunnel to the requested target.
func startConnectProxy(t *testing.T, wantAuth string) string {
	t.Helper()
	listener := listenLocal(t)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				req, err := http.ReadRequest(bufio.NewReader(conn))
				if err != nil || req.Method != http.MethodConnect {
					return
				}
				if req.Header.Get("Proxy-Authorization") != wantAuth {
					_, _ = io.WriteString(conn, "HTTP/1.1 407 Proxy Authentication Required\r\nContent-Length: 0\r\n\r\n")
					return
				}
				upstream, err := net.Dial("tcp", req.Host)
				if err != nil {
					_, _ = io.WriteString(conn, "HTTP/1.1 502 Bad Gateway\r\nContent-Length: 0\r\n\r\n")
					return
				}
				defer upstream.Close()
				_, _ = io.WriteString(conn, "HTTP/1.1 200 Connection Established\r\n\r\n")
				go func() { _, _ = io.Copy(upstream, conn) }()
				_, _ = io.Copy(conn, upstream)
			}()
		}
	}()
	return listener.Addr().String()
}

func TestDialThrough_HTTPConnectWithAuth(t *testing.T) {
	target := startEcho(t)
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte("user:pass"))
	proxyAddr := startConnectProxy(t, auth)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, err := DialThrough(ctx, "user:pass@"+proxyAddr, target, TransportOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("DialThrough: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := io.WriteString(conn, "hello"); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(conn, buf); err != nil || string(buf) != "hello" {
		t.Fatalf("echo = %q, err = %v", buf, err)
	}
}

func TestDialThrough_RejectedConnect(t *testing.T) {
	proxyAddr := startConnectProxy(t, "Basic expected")

	_, err := DialThrough(context.Background(), proxyAddr, "127.0.0.1:1", TransportOptions{Timeout: 2 * time.Second})
	if err == nil || !strings.Contains(err.Error(), "407") {
		t.Fatalf("err = %v, want a 407 error", err)
	}
}

func TestDialThrough_InvalidProxy(t *testing.T) {
	if _, err := DialThrough(context.Background(), "ftp://host:21", "example.com:443", TransportOptions{}); err == nil {
		t.Fatal("expected an error for an unsupported proxy scheme")
	}
}
