package conductor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/agentd/internal/logger"
	"github.com/marmos91/agentd/pkg/config"
)

// InboundTransport is a listener that feeds messages to the conductor.
type InboundTransport interface {
	// Kind returns the transport type (http, ws).
	Kind() string

	// Listen binds the socket. Bind errors are reported here.
	Listen() error

	// Addr returns the bound address, or "" before Listen.
	Addr() string

	// Serve serves until Shutdown is called or ctx is cancelled.
	Serve(ctx context.Context) error

	// Shutdown stops accepting and waits for in-flight work.
	Shutdown(ctx context.Context) error
}

// deliverFunc hands a received message to the dispatcher.
type deliverFunc func(ctx context.Context, msg Message) error

// defaultMaxMessageBytes bounds a single inbound message when the
// configuration leaves it unset.
const defaultMaxMessageBytes = 1 << 20

// listener is the socket and server lifecycle shared by the HTTP and
// WebSocket transports.
type listener struct {
	kind     string
	addr     string
	server   *http.Server
	ln       net.Listener
	metrics  Metrics
	maxBytes int64

	// base is the parent of every request context. It is cancelled after
	// the HTTP server has shut down so hijacked connections end too.
	base       context.Context
	cancelBase context.CancelFunc

	conns        sync.WaitGroup
	shutdownOnce sync.Once
}

func newListener(cfg config.TransportConfig, handler http.Handler, maxBytes int64, m Metrics) *listener {
	if maxBytes <= 0 {
		maxBytes = defaultMaxMessageBytes
	}
	base, cancel := context.WithCancel(context.Background())
	l := &listener{
		kind:       cfg.Type,
		addr:       net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		metrics:    m,
		maxBytes:   maxBytes,
		base:       base,
		cancelBase: cancel,
	}
	l.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	return l
}

func (l *listener) Kind() string { return l.kind }

func (l *listener) Listen() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("%s transport listen on %s: %w", l.kind, l.addr, err)
	}
	l.ln = ln
	return nil
}

func (l *listener) Addr() string {
	if l.ln == nil {
		return ""
	}
	return l.ln.Addr().String()
}

func (l *listener) Serve(ctx context.Context) error {
	if l.ln == nil {
		return fmt.Errorf("%s transport: Serve called before Listen", l.kind)
	}

	errChan := make(chan error, 1)
	go func() {
		logger.InfoCtx(ctx, "Inbound transport listening", logger.KeyTransport, l.kind, logger.KeyAddress, l.Addr())
		errChan <- l.server.Serve(l.ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Shutdown(shutdownCtx)
		<-errChan
		return ctx.Err()
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s transport failed: %w", l.kind, err)
	}
}

func (l *listener) Shutdown(ctx context.Context) error {
	var shutdownErr error
	l.shutdownOnce.Do(func() {
		if l.ln == nil {
			l.cancelBase()
			return
		}

		if err := l.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("%s transport shutdown: %w", l.kind, err)
		}
		// Serve may never have run; the listener is then not owned by server.
		_ = l.ln.Close()
		l.cancelBase()

		done := make(chan struct{})
		go func() {
			l.conns.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			if shutdownErr == nil {
				shutdownErr = fmt.Errorf("%s transport shutdown: %w", l.kind, ctx.Err())
			}
		}

		logger.Debug("Inbound transport stopped", logger.KeyTransport, l.kind, logger.KeyAddress, l.Addr())
	})
	return shutdownErr
}

// newInbound builds the transport for cfg. Messages larger than maxBytes
// are rejected.
func newInbound(cfg config.TransportConfig, deliver deliverFunc, info healthInfo, maxBytes int64, m Metrics) (InboundTransport, error) {
	switch cfg.Type {
	case config.TransportHTTP:
		return newHTTPTransport(cfg, deliver, info, maxBytes, m), nil
	case config.TransportWS:
		return newWSTransport(cfg, deliver, info, maxBytes, m), nil
	default:
		return nil, fmt.Errorf("unsupported inbound transport type %q", cfg.Type)
	}
}
