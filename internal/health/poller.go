// Package health keeps backend restart windows visible. The proxy's error
// filter deliberately silences per-connection disconnect noise, so the
// poller is what tells the developer the backend actually went away.
package health

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// HTTPProber abstracts *http.Client for testability.
type HTTPProber interface {
	Do(req *http.Request) (*http.Response, error)
}

type targetState struct {
	known     bool
	up        bool
	downSince time.Time
}

// Poller probes each backend target periodically and logs reachability
// transitions: one line when a target goes down, one when it comes back.
// Reachability means the process answered at all; a 500 still counts as up.
type Poller struct {
	targets  []string
	client   HTTPProber
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	state map[string]*targetState
}

// NewPoller creates a poller for the given probe URLs.
// If logger is nil, a no-op logger is used.
func NewPoller(targets []string, client HTTPProber, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	state := make(map[string]*targetState, len(targets))
	for _, t := range targets {
		state[t] = &targetState{}
	}
	return &Poller{
		targets:  targets,
		client:   client,
		interval: interval,
		logger:   logger,
		state:    state,
	}
}

// Run starts the probe loop. It performs an immediate check on start, then
// checks at the configured interval. It returns when ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if len(p.targets) == 0 {
		return
	}

	p.checkAll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkAll(ctx)
		}
	}
}

// checkAll probes every target in parallel.
func (p *Poller) checkAll(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(len(p.targets))
	for _, target := range p.targets {
		go func(target string) {
			defer wg.Done()
			up, probeErr := p.probe(ctx, target)
			p.record(target, up, probeErr)
		}(target)
	}
	wg.Wait()
}

// probe performs a single HTTP GET against target.
func (p *Poller) probe(ctx context.Context, target string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return true, nil
}

// record applies a probe outcome and logs the transition, if any.
func (p *Poller) record(target string, up bool, probeErr error) {
	p.mu.Lock()
	st, ok := p.state[target]
	if !ok {
		st = &targetState{}
		p.state[target] = st
	}
	transition := !st.known || st.up != up
	var downtime time.Duration
	if transition {
		if up && st.known {
			downtime = time.Since(st.downSince)
		}
		if !up {
			st.downSince = time.Now()
		}
	}
	st.known = true
	st.up = up
	p.mu.Unlock()

	if !transition {
		return
	}

	if up {
		if downtime > 0 {
			p.logger.Info("backend up", slog.String("target", target), slog.Duration("downtime", downtime.Round(time.Millisecond)))
		} else {
			p.logger.Info("backend reachable", slog.String("target", target))
		}
		return
	}

	attrs := []any{slog.String("target", target)}
	if probeErr != nil {
		attrs = append(attrs, slog.String("error", probeErr.Error()))
	}
	p.logger.Warn("backend down", attrs...)
}

// Up reports the last known reachability of target. The second return is
// false until the first probe completes.
func (p *Poller) Up(target string) (bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.state[target]
	if !ok || !st.known {
		return false, false
	}
	return st.up, true
}
