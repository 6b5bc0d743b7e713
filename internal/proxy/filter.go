package proxy

import (
	"errors"
	"io"
	"log/slog"
	"syscall"
)

// Codes in the benign-disconnect set. During development the backend is
// restarted constantly and the front end's live reload churns the WebSocket;
// both produce bursts of exactly these two conditions.
const (
	CodeBrokenPipe      = "EPIPE"
	CodeConnectionReset = "ECONNRESET"
)

// ProxyError is a single failure notification from a proxy connection.
// Code classifies the failure when the source knows it; Err carries the
// diagnostic payload. Either field may be unset.
type ProxyError struct {
	Code string
	Err  error
}

// Filter decides whether a proxy error is surfaced as a warning or dropped
// as expected disconnect noise. It is stateless: each error is classified
// independently and the only side effect is an optional log write.
type Filter struct {
	logger *slog.Logger
}

// NewFilter creates an error filter writing to logger.
// If logger is nil, a no-op logger is used.
func NewFilter(logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Filter{logger: logger.With(slog.String("component", "dev-proxy"))}
}

// Handle classifies perr and either drops it or writes exactly one warning.
// It never fails, whatever the input: a ProxyError with no code and no
// payload is valid and is surfaced.
func (f *Filter) Handle(perr ProxyError) {
	code := perr.Code
	if code == "" {
		code = DisconnectCode(perr.Err)
	}
	if code == CodeBrokenPipe || code == CodeConnectionReset {
		return
	}

	attrs := make([]any, 0, 2)
	if code != "" {
		attrs = append(attrs, slog.String("code", code))
	}
	if perr.Err != nil {
		attrs = append(attrs, slog.String("error", perr.Err.Error()))
	}
	f.logger.Warn("ws proxy error", attrs...)
}

// HandleErr reports err through the filter. A nil error is ignored.
func (f *Filter) HandleErr(err error) {
	if err == nil {
		return
	}
	f.Handle(ProxyError{Err: err})
}

// DisconnectCode maps Go's native forms of the two benign disconnect
// conditions onto their conventional code strings. The platform reports
// them as errno values wrapped in *net.OpError, so errors.Is is the
// reliable match. Any other error maps to "".
func DisconnectCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, syscall.EPIPE):
		return CodeBrokenPipe
	case errors.Is(err, syscall.ECONNRESET):
		return CodeConnectionReset
	}
	return ""
}

// BenignDisconnect reports whether err is expected connection-teardown
// noise: the remote end closed a broken pipe or forcibly reset the
// connection.
func BenignDisconnect(err error) bool {
	return DisconnectCode(err) != ""
}
