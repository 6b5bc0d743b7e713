package config

// Config is the top-level configuration parsed from the YAML config file.
type Config struct {
	Listen   string         `yaml:"listen"   json:"listen"`
	Frontend FrontendConfig `yaml:"frontend" json:"frontend"`
	Routes   []Route        `yaml:"routes"   json:"routes"`
	Health   HealthConfig   `yaml:"health"   json:"health"`
}

// Frontend modes.
const (
	FrontendProxy  = "proxy"
	FrontendStatic = "static"
)

// FrontendConfig selects how traffic not matching any route is answered:
// forwarded to the front-end dev server, or served from a built bundle.
type FrontendConfig struct {
	Mode   string `yaml:"mode"   json:"mode"`
	Target string `yaml:"target" json:"target"`
	Dir    string `yaml:"dir"    json:"dir"`
}

// Route forwards requests under Prefix to Target. WebSocket routes are
// upgraded and relayed frame by frame instead of reverse-proxied.
type Route struct {
	Prefix    string `yaml:"prefix"    json:"prefix"`
	Target    string `yaml:"target"    json:"target"`
	WebSocket bool   `yaml:"websocket" json:"websocket"`
}

// HealthConfig controls backend reachability probing.
type HealthConfig struct {
	Path     string `yaml:"path"     json:"path"`
	Interval string `yaml:"interval" json:"interval"`
}

// DefaultRoutes is the route table used when the config file declares none:
// the original stack's API prefix and task-update WebSocket, both on the
// local backend process.
func DefaultRoutes(backend string) []Route {
	return []Route{
		{Prefix: "/api", Target: backend},
		{Prefix: "/ws", Target: backend, WebSocket: true},
	}
}
