package arcgis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// DefaultTokenLifetime applies when a provider returns no expiry.
const DefaultTokenLifetime = time.Hour

type credential struct {
	accessToken string
	expiresAt   time.Time
	providerKey string
}

// TokenManager caches one bearer token per provider key and refreshes it
// when it falls inside the safety margin. Concurrent refreshes for the same
// provider share a single token request.
type TokenManager struct {
	providers map[string]*ProviderConfig
	client    *http.Client
	clock     clockwork.Clock
	margin    time.Duration
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]credential
	group singleflight.Group
}

// NewTokenManager creates a TokenManager for the providers in cfg. Token
// requests are sent with client.
func NewTokenManager(cfg *Config, client *http.Client, clock clockwork.Clock, logger *slog.Logger) *TokenManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &TokenManager{
		providers: cfg.Providers,
		client:    client,
		clock:     clock,
		margin:    cfg.TokenSafetyMarginDuration(),
		logger:    logger.With("system", "tokens"),
		cache:     make(map[string]credential),
	}
}

// Token returns a valid bearer token for the provider, fetching one when
// the cache is empty or the cached token is about to expire.
func (m *TokenManager) Token(ctx context.Context, providerKey string) (string, error) {
	if c, ok := m.cached(providerKey); ok {
		return c.accessToken, nil
	}

	ch := m.group.DoChan(providerKey, func() (any, error) {
		if c, ok := m.cached(providerKey); ok {
			return c, nil
		}
		c, err := m.fetch(context.WithoutCancel(ctx), providerKey)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.cache[providerKey] = c
		m.mu.Unlock()

		m.logger.Info("token acquired", "provider", providerKey, "expires_at", c.expiresAt)
		return c, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(credential).accessToken, nil
	}
}

// Invalidate drops the cached token for the provider so the next call to
// Token fetches a fresh one.
func (m *TokenManager) Invalidate(providerKey string) {
	m.mu.Lock()
	delete(m.cache, providerKey)
	m.mu.Unlock()
	m.logger.Info("token invalidated", "provider", providerKey)
}

func (m *TokenManager) cached(providerKey string) (credential, bool) {
	m.mu.RLock()
	c, ok := m.cache[providerKey]
	m.mu.RUnlock()
	if !ok {
		return credential{}, false
	}
	return c, m.clock.Now().Before(c.expiresAt.Add(-m.margin))
}

func (m *TokenManager) fetch(ctx context.Context, providerKey string) (credential, error) {
	p, ok := m.providers[providerKey]
	if !ok {
		return credential{}, Validation("token", ErrUnknownProvider, "%s", providerKey)
	}

	ctx, cancel := context.WithTimeout(ctx, p.TimeoutDuration())
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)

	var (
		tok *oauth2.Token
		err error
	)
	switch p.Grant {
	case GrantClientCredentials:
		cc := clientcredentials.Config{
			ClientID:       p.ClientID,
			ClientSecret:   p.ClientSecret,
			TokenURL:       p.TokenURL,
			EndpointParams: url.Values{"f": {"json"}},
			AuthStyle:      oauth2.AuthStyleInParams,
		}
		tok, err = cc.Token(ctx)
	case GrantResourceOwner:
		oc := oauth2.Config{
			ClientID: p.ClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  withFormat(p.TokenURL),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
		tok, err = oc.PasswordCredentialsToken(ctx, p.Username, p.Password)
	default:
		return credential{}, Auth("token", fmt.Errorf("provider %s has no token grant", providerKey))
	}
	if err != nil {
		return credential{}, classifyTokenError(err)
	}

	lifetime := DefaultTokenLifetime
	if !tok.Expiry.IsZero() {
		lifetime = time.Until(tok.Expiry)
	}

	return credential{
		accessToken: tok.AccessToken,
		expiresAt:   m.clock.Now().Add(lifetime),
		providerKey: providerKey,
	}, nil
}

func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode >= 500 {
		return &Error{Kind: ErrTransient, Op: "token", Status: re.Response.StatusCode}
	}
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) {
		return Transient("token", err)
	}
	if re != nil {
		// never include the response body
		e := &Error{Kind: ErrAuth, Op: "token", Message: re.ErrorCode}
		if re.Response != nil {
			e.Status = re.Response.StatusCode
		}
		return e
	}
	return Auth("token", err)
}

func withFormat(tokenURL string) string {
	u, err := url.Parse(tokenURL)
	if err != nil {
		return tokenURL
	}
	q := u.Query()
	q.Set("f", "json")
	u.RawQuery = q.Encode()
	return u.String()
}
