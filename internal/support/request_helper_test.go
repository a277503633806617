package support

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateTransport_RoutesThroughHTTPProxy(t *testing.T) {
	var seenHost string
	proxyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenHost = r.URL.Host
		_, _ = io.WriteString(w, "via proxy")
	}))
	defer proxyServer.Close()

	transport, err := CreateTransport(proxyServer.Listener.Addr().String(), TransportOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("CreateTransport returned error: %v", err)
	}
	if !transport.DisableKeepAlives {
		t.Fatal("transport should not keep connections alive")
	}

	client := &http.Client{Transport: transport, Timeout: 2 * time.Second}
	resp, err := client.Get("http://upstream.invalid/train")
	if err != nil {
		t.Fatalf("request through proxy failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if string(body) != "via proxy" {
		t.Fatalf("body = %q, want response from the proxy", body)
	}
	if seenHost != "upstream.invalid" {
		t.Fatalf("proxy saw host %q, want upstream.invalid", seenHost)
	}
}

func TestCreateTransport_SOCKS4Handshake(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	handshake := make(chan []byte, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		header := make([]byte, 8)
		if _, err := io.ReadFull(reader, header); err != nil {
			return
		}
		if _, err := reader.ReadBytes(0x00); err != nil {
			return
		}
		handshake <- header
		_, _ = conn.Write([]byte{0x00, 0x5A, 0, 0, 0, 0, 0, 0})

		if _, err := http.ReadRequest(reader); err != nil {
			return
		}
		_, _ = io.WriteString(conn, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\nConnection: close\r\n\r\nok")
	}()

	transport, err := CreateTransport("socks4://"+listener.Addr().String(), TransportOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("CreateTransport returned error: %v", err)
	}
	client := &http.Client{Transport: transport, Timeout: 2 * time.Second}

	resp, err := client.Get("http://127.0.0.1:9/")
	if err != nil {
		t.Fatalf("request through socks4 failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Fatalf("body = %q, want ok", body)
	}

	header := <-handshake
	if header[0] != 0x04 || header[1] != 0x01 {
		t.Fatalf("unexpected socks4 command bytes %v", header[:2])
	}
	if port := int(header[2])<<8 | int(header[3]); port != 9 {
		t.Fatalf("socks4 target port = %d, want 9", port)
	}
	if net.IP(header[4:8]).String() != "127.0.0.1" {
		t.Fatalf("socks4 target ip = %v", net.IP(header[4:8]))
	}
}

func TestCreateTransport_RejectsMissingProxy(t *testing.T) {
	if _, err := CreateTransport("", TransportOptions{}); err == nil {
		t.Fatal("CreateTransport accepted an empty proxy address")
	}
}
