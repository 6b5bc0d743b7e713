package proxy

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// NewReverseProxy creates a reverse proxy handler that forwards all requests
// to the given target, e.g. the backend API process or the front-end dev
// server during development. Transport failures answer 502 Bad Gateway;
// benign disconnects (the peer tore down the connection mid-transfer) are
// not logged, everything else is surfaced as a warning.
func NewReverseProxy(target string, logger *slog.Logger) (http.Handler, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	rp := httputil.NewSingleHostReverseProxy(u)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if !BenignDisconnect(err) {
			logger.Warn("proxy error",
				slog.String("path", r.URL.Path),
				slog.String("target", target),
				slog.String("error", err.Error()))
		}
		w.WriteHeader(http.StatusBadGateway)
	}
	return rp, nil
}
