package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
	ws "nhooyr.io/websocket"

	appws "github.com/mrbanana/devproxy/internal/websocket"
)

const (
	// Retry budget for dialing the backend. A refused dial during
	// development usually means the backend is mid-restart and seconds
	// away from listening again.
	dialRetryBase = 200 * time.Millisecond
	dialRetryMax  = 4

	closeTimeout = 2 * time.Second
)

// WSProxy relays WebSocket connections to a backend target. Each incoming
// request is upgraded, the same path is dialed on the backend, and frames
// are pumped in both directions until either side closes. Relay failures
// pass through the benign-disconnect filter so backend restarts and
// live-reload churn stay out of the log.
type WSProxy struct {
	target   *url.URL
	filter   *Filter
	registry *appws.ConnectionRegistry
	logger   *slog.Logger
}

// NewWSProxy creates a relay toward target, given in http or https form;
// the scheme is mapped to ws or wss when dialing.
func NewWSProxy(target string, filter *Filter, registry *appws.ConnectionRegistry, logger *slog.Logger) (*WSProxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket target %q: %w", target, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("websocket target %q has no host", target)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if filter == nil {
		filter = NewFilter(nil)
	}
	return &WSProxy{
		target:   u,
		filter:   filter,
		registry: registry,
		logger:   logger,
	}, nil
}

// ServeHTTP implements http.Handler.
func (p *WSProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientConn, err := appws.Accept(w, r, nil)
	if err != nil {
		p.logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	ctx := r.Context()

	backendConn, err := p.dialBackend(ctx, p.backendURL(r))
	if err != nil {
		p.filter.HandleErr(fmt.Errorf("dial backend %s: %w", p.target.Host, err))
		_ = clientConn.Close(ws.StatusBadGateway, "backend unavailable")
		return
	}

	wrapped := appws.WrapConn(ctx, clientConn, appws.WithLogger(p.logger))
	if p.registry != nil {
		p.registry.Register(wrapped)
		defer p.registry.Unregister(wrapped)
	}

	relayCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	go func() { errc <- pump(relayCtx, clientConn, backendConn) }()
	go func() { errc <- pump(relayCtx, backendConn, clientConn) }()

	relayErr := <-errc
	cancel()

	status := ws.CloseStatus(relayErr)
	if status == -1 || status == ws.StatusNoStatusRcvd {
		// No mirrorable status; 1005 is reserved and cannot be sent.
		status = ws.StatusNormalClosure
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	_ = wrapped.CloseWithContext(closeCtx, status, "")
	closeCancel()
	_ = backendConn.Close(status, "")

	// Drain the second pump; closing both conns unblocks it.
	<-errc

	p.report(relayErr)
}

// backendURL rewrites the incoming request URL onto the backend target,
// preserving path and query.
func (p *WSProxy) backendURL(r *http.Request) string {
	u := *p.target
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = r.URL.Path
	u.RawQuery = r.URL.RawQuery
	return u.String()
}

// dialBackend dials the backend WebSocket endpoint, retrying refused
// connections with exponential backoff within the dial retry budget.
func (p *WSProxy) dialBackend(ctx context.Context, wsURL string) (*ws.Conn, error) {
	var conn *ws.Conn
	backoff := retry.WithMaxRetries(dialRetryMax, retry.NewExponential(dialRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, _, err := ws.Dial(ctx, wsURL, nil)
		if err != nil {
			if errors.Is(err, syscall.ECONNREFUSED) {
				return retry.RetryableError(err)
			}
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// report routes a relay outcome through the error filter. A close frame
// from either side is the normal end of a relay, not an error.
func (p *WSProxy) report(err error) {
	if err == nil {
		return
	}
	switch ws.CloseStatus(err) {
	case ws.StatusNormalClosure, ws.StatusGoingAway, ws.StatusNoStatusRcvd:
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	p.filter.HandleErr(err)
}

// pump copies frames from src to dst until either side fails or the
// context ends.
func pump(ctx context.Context, src, dst *ws.Conn) error {
	for {
		typ, data, err := src.Read(ctx)
		if err != nil {
			return err
		}
		if err := dst.Write(ctx, typ, data); err != nil {
			return err
		}
	}
}
