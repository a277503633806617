package rotatingproxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"railwatch/internal/proxypool"
	"railwatch/internal/support"
)

const DefaultMaxBodyBytes = 8 << 20

type Config struct {
	Addr        string
	Credentials Credentials
	// Attempts bounds how many upstreams a CONNECT may try.
	Attempts int
	// MaxBodyBytes caps buffered request bodies; larger ones get 413.
	MaxBodyBytes int64
	Transport    support.TransportOptions
}

type Option func(*Server)

func WithDialer(dial DialFunc) Option {
	return func(s *Server) {
		if dial != nil {
			s.handler.dial = dial
		}
	}
}

func WithClock(clock proxypool.Clock) Option {
	return func(s *Server) {
		if clock != nil {
			s.handler.clock = clock
		}
	}
}

// Server is a forward proxy whose every request leaves through the pool.
// Plain HTTP goes through fetcher; CONNECT tunnels are dialed directly via
// a rotator over store.
type Server struct {
	addr       string
	handler    *handler
	listener   net.Listener
	httpServer *http.Server
	closeOnce  sync.Once
}

func NewServer(cfg Config, store *proxypool.HealthStore, fetcher Fetcher, opts ...Option) *Server {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 2
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	s := &Server{
		addr: cfg.Addr,
		handler: &handler{
			fetcher:      fetcher,
			rotator:      proxypool.NewRotator(store),
			store:        store,
			dial:         defaultDial(cfg.Transport),
			clock:        proxypool.SystemClock,
			credentials:  cfg.Credentials,
			attempts:     attempts,
			maxBodyBytes: maxBody,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr reports the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.listener = listener
	s.httpServer = server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Gateway: serve error", "addr", s.addr, "error", err)
		}
	}()

	log.Info("Gateway started", "addr", s.Addr(), "auth", s.handler.credentials.required())
	return nil
}

// Stop closes the listener and waits up to five seconds for forwarded
// requests. Hijacked tunnels are not tracked and run until either side closes.
func (s *Server) Stop() {
	s.closeOnce.Do(func() {
		if s.httpServer == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error("Gateway shutdown", "error", err)
		}
	})
}

// Run starts the gateway and stops it when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}
