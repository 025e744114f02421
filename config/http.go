package config

import "strings"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":3000"`

	// CORSAllowOrigin is returned in Access-Control-Allow-Origin for the dashboard.
	CORSAllowOrigin string `env:"HTTP_CORS_ALLOW_ORIGIN" envDefault:"*"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.Addr = strings.TrimSpace(h.Addr)
	if h.Addr == "" {
		h.Addr = ":3000"
	}
	h.CORSAllowOrigin = strings.TrimSpace(h.CORSAllowOrigin)
}
