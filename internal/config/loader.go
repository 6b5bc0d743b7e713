package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML configuration file at path.
// If path does not exist or is empty, it returns an empty Config with no errors.
// If the YAML is malformed, it returns nil config with a parse error.
// For validation errors, it returns a valid config with invalid entries stripped
// plus errors describing what was removed.
func Load(path string) (*Config, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, []error{fmt.Errorf("failed to read config file: %w", err)}
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return &Config{}, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, []error{fmt.Errorf("failed to parse config YAML: %w", err)}
	}

	var validationErrors []error

	// Validate routes: prefix and target are required, prefixes must be
	// absolute and unique, targets must be absolute http(s) URLs.
	validRoutes := make([]Route, 0, len(cfg.Routes))
	seenPrefixes := make(map[string]struct{}, len(cfg.Routes))
	for i, rt := range cfg.Routes {
		valid := true
		prefix := strings.TrimSpace(rt.Prefix)
		if prefix == "" {
			validationErrors = append(validationErrors, fmt.Errorf("routes[%d].prefix: required field missing", i))
			valid = false
		} else if !strings.HasPrefix(prefix, "/") {
			validationErrors = append(validationErrors, fmt.Errorf("routes[%d].prefix: must start with '/', got %q", i, rt.Prefix))
			valid = false
		}
		if _, dup := seenPrefixes[prefix]; prefix != "" && dup {
			validationErrors = append(validationErrors, fmt.Errorf("routes[%d].prefix: duplicate prefix %q", i, prefix))
			valid = false
		}
		if err := validTarget(rt.Target); err != nil {
			validationErrors = append(validationErrors, fmt.Errorf("routes[%d].target: %w", i, err))
			valid = false
		}
		if valid {
			seenPrefixes[prefix] = struct{}{}
			rt.Prefix = prefix
			validRoutes = append(validRoutes, rt)
		}
	}
	cfg.Routes = validRoutes

	// Validate frontend: mode is an enum, proxy mode needs a target.
	switch cfg.Frontend.Mode {
	case "", FrontendProxy, FrontendStatic:
	default:
		validationErrors = append(validationErrors,
			fmt.Errorf("frontend.mode: must be %q or %q, got %q", FrontendProxy, FrontendStatic, cfg.Frontend.Mode))
		cfg.Frontend.Mode = ""
	}
	if cfg.Frontend.Mode == FrontendProxy && cfg.Frontend.Target != "" {
		if err := validTarget(cfg.Frontend.Target); err != nil {
			validationErrors = append(validationErrors, fmt.Errorf("frontend.target: %w", err))
			cfg.Frontend.Target = ""
		}
	}

	// Validate health interval if set.
	if cfg.Health.Interval != "" {
		if d, err := time.ParseDuration(cfg.Health.Interval); err != nil {
			validationErrors = append(validationErrors, fmt.Errorf("health.interval: invalid duration %q", cfg.Health.Interval))
			cfg.Health.Interval = ""
		} else if d < time.Second {
			validationErrors = append(validationErrors, fmt.Errorf("health.interval: must be at least 1s, got %q", cfg.Health.Interval))
			cfg.Health.Interval = ""
		}
	}

	return &cfg, validationErrors
}

func validTarget(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("required field missing")
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid URL %q", target)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http or https URL, got %q", target)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", target)
	}
	return nil
}
