package webex

import (
	"strings"

	"github.com/fdg312/cdr-hub/internal/config"
)

// NewTransport picks the transport for WEBEX_MODE.
func NewTransport(cfg config.WebexConfig) Transport {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))

	switch mode {
	case config.WebexModeMock:
		return NewMockTransport()
	default:
		return NewHTTPTransport(cfg)
	}
}
