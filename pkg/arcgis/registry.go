package arcgis

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/jonboulle/clockwork"
)

// Registry holds one Gateway per configured provider and the TokenManager
// they share.
type Registry struct {
	tokens   *TokenManager
	gateways map[string]Gateway
}

// NewRegistry builds gateways for every provider in cfg.
func NewRegistry(cfg *Config, client *http.Client, clock clockwork.Clock, logger *slog.Logger) *Registry {
	tokens := NewTokenManager(cfg, client, clock, logger)
	gateways := make(map[string]Gateway, len(cfg.Providers))
	for key, p := range cfg.Providers {
		gateways[key] = New(p, cfg.Retry, tokens, client, logger)
	}
	return &Registry{tokens: tokens, gateways: gateways}
}

// Get returns the gateway for provider key.
func (r *Registry) Get(key string) (Gateway, error) {
	g, ok := r.gateways[key]
	if !ok {
		return nil, Validation("registry", ErrUnknownProvider, "%s", key)
	}
	return g, nil
}

// Keys lists the configured provider keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.gateways))
	for k := range r.gateways {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Tokens returns the shared TokenManager.
func (r *Registry) Tokens() *TokenManager {
	return r.tokens
}
