package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	appconfig "github.com/mrbanana/devproxy/internal/config"
)

func TestConfigPrecedence(t *testing.T) {
	cases := []struct {
		name     string
		args     []string
		envs     map[string]string
		expected string
	}{
		{
			name:     "default value",
			args:     []string{},
			envs:     map[string]string{},
			expected: ":8080",
		},
		{
			name:     "env var precedence",
			args:     []string{},
			envs:     map[string]string{"LISTEN_ADDR": ":9090"},
			expected: ":9090",
		},
		{
			name:     "flag precedence over env",
			args:     []string{"--listen-addr", ":9999"},
			envs:     map[string]string{"LISTEN_ADDR": ":9090"},
			expected: ":9999",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.envs {
				t.Setenv(k, v)
			}
			cfg, err := loadConfig(tc.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.ListenAddr != tc.expected {
				t.Errorf("expected listen addr %q, got %q", tc.expected, cfg.ListenAddr)
			}
		})
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"bad health interval", []string{"--health-interval", "soon"}},
		{"sub-second health interval", []string{"--health-interval", "100ms"}},
		{"bad log format", []string{"--log-format", "xml"}},
		{"bad backend URL", []string{"--backend", "not a url"}},
		{"bad frontend URL", []string{"--frontend", "://"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadConfig(tc.args); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoadConfigHealthDisabled(t *testing.T) {
	cfg, err := loadConfig([]string{"--health-interval", "0s"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HealthInterval != 0 {
		t.Errorf("expected probing disabled, got %v", cfg.HealthInterval)
	}
}

func TestSetupLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLoggerWithWriter("json", "info", &buf)
	logger.Info("hello")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("expected JSON output, got %q", buf.String())
	}

	buf.Reset()
	logger = setupLoggerWithWriter("text", "info", &buf)
	logger.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestSetupLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLoggerWithWriter("text", "warn", &buf)
	logger.Info("quiet")
	logger.Warn("loud")
	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("expected info suppressed at warn level, got %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Errorf("expected warning to pass, got %q", out)
	}
}

func TestEffectiveRoutes(t *testing.T) {
	// Config file routes win when present.
	appCfg := &appconfig.Config{Routes: []appconfig.Route{
		{Prefix: "/v2", Target: "http://localhost:9000"},
	}}
	routes := effectiveRoutes(appCfg, "http://localhost:8000")
	if len(routes) != 1 || routes[0].Prefix != "/v2" {
		t.Errorf("expected config routes, got %+v", routes)
	}

	// Otherwise the default API + WebSocket pair on the backend.
	routes = effectiveRoutes(nil, "http://localhost:8000")
	if len(routes) != 2 {
		t.Fatalf("expected 2 default routes, got %d", len(routes))
	}
	if routes[0].Target != "http://localhost:8000" {
		t.Errorf("expected backend target, got %q", routes[0].Target)
	}
}

func TestProbeTargetsDedupes(t *testing.T) {
	routes := []appconfig.Route{
		{Prefix: "/api", Target: "http://localhost:8000"},
		{Prefix: "/ws", Target: "http://localhost:8000", WebSocket: true},
		{Prefix: "/media", Target: "http://localhost:9000/"},
	}
	targets := probeTargets(routes, "/api/version")
	if len(targets) != 2 {
		t.Fatalf("expected 2 distinct probe targets, got %v", targets)
	}
	if targets[0] != "http://localhost:8000/api/version" {
		t.Errorf("unexpected first probe target %q", targets[0])
	}
	if targets[1] != "http://localhost:9000/api/version" {
		t.Errorf("unexpected second probe target %q", targets[1])
	}
}

func TestProbeTargetsDefaultPath(t *testing.T) {
	targets := probeTargets([]appconfig.Route{{Prefix: "/api", Target: "http://localhost:8000"}}, "")
	if len(targets) != 1 || targets[0] != "http://localhost:8000/" {
		t.Errorf("expected root probe path, got %v", targets)
	}
}

func TestHealthIntervalParsing(t *testing.T) {
	cfg, err := loadConfig([]string{"--health-interval", "30s"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HealthInterval != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.HealthInterval)
	}
}
