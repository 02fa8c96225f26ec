// Package auth derives the Authorization header for the flights provider.
// OAuth client credentials are exchanged for a bearer token once per run;
// username/password become a static basic-auth value. The token is held by
// the Manager instance only, never in package state.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/aero-ingest/pkg/retry"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultTokenURL is the OpenSky OAuth2 token endpoint.
const DefaultTokenURL = "https://auth.opensky-network.org/auth/realms/opensky-network/protocol/openid-connect/token"

var (
	// ErrCredentialsMissing is returned when neither OAuth nor basic credentials are configured.
	ErrCredentialsMissing = errors.New("credentials missing")

	// ErrAuthExchangeFailed is returned when the token exchange failed for good.
	ErrAuthExchangeFailed = errors.New("auth token exchange failed")

	// ErrNotAuthenticated is returned when a token is requested before Authenticate succeeded.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Scheme is the Authorization scheme of a Token.
type Scheme string

const (
	// SchemeBearer is an OAuth access token.
	SchemeBearer Scheme = "Bearer"

	// SchemeBasic is a base64 encoded username:password pair.
	SchemeBasic Scheme = "Basic"
)

// Credentials are the raw secrets from configuration.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// HasOAuth reports whether both client id and secret are set.
func (c Credentials) HasOAuth() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// HasBasic reports whether both username and password are set.
func (c Credentials) HasBasic() bool {
	return c.Username != "" && c.Password != ""
}

// Token is an opaque credential plus its scheme.
type Token struct {
	Value  string
	Scheme Scheme
}

// Header returns the Authorization header value.
func (t Token) Header() string {
	return string(t.Scheme) + " " + t.Value
}

// Config configures a Manager.
type Config struct {
	// TokenURL is the OAuth token endpoint (default DefaultTokenURL).
	TokenURL string

	// HTTPClient performs the exchange (default: 30s timeout client).
	HTTPClient *http.Client

	// Policy bounds the exchange retries (default retry.TokenExchangePolicy).
	Policy retry.Policy

	Clock  clockwork.Clock
	Logger zerolog.Logger
}

// Manager authenticates once per run and caches the resulting token.
type Manager struct {
	tokenURL   string
	httpClient *http.Client
	policy     retry.Policy
	clock      clockwork.Clock
	logger     zerolog.Logger

	mu    sync.RWMutex
	token *Token
}

// NewManager creates a Manager, filling unset Config fields with defaults.
func NewManager(cfg Config) *Manager {
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.TokenExchangePolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &Manager{
		tokenURL:   cfg.TokenURL,
		httpClient: cfg.HTTPClient,
		policy:     cfg.Policy,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
}

// Authenticate derives the run's token from creds. OAuth credentials win over
// basic ones. Without either it fails with ErrCredentialsMissing before any
// network call.
func (m *Manager) Authenticate(ctx context.Context, creds Credentials) (Token, error) {
	var (
		token Token
		err   error
	)

	switch {
	case creds.HasOAuth():
		token, err = m.exchange(ctx, creds.ClientID, creds.ClientSecret)
		if err != nil {
			return Token{}, err
		}
	case creds.HasBasic():
		token = basicToken(creds.Username, creds.Password)
	default:
		return Token{}, fmt.Errorf("%w: set opensky.oauth.client_id/client_secret or opensky.username/password", ErrCredentialsMissing)
	}

	m.mu.Lock()
	m.token = &token
	m.mu.Unlock()

	m.logger.Info().Str("scheme", string(token.Scheme)).Msg("Authenticated with flights provider")
	return token, nil
}

// Token returns the token derived by Authenticate.
func (m *Manager) Token() (Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == nil {
		return Token{}, ErrNotAuthenticated
	}
	return *m.token, nil
}

func basicToken(username, password string) Token {
	return Token{
		Value:  base64.StdEncoding.EncodeToString([]byte(username + ":" + password)),
		Scheme: SchemeBasic,
	}
}

// tokenResponse mirrors the JSON from the token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// exchange performs the client-credentials grant. Network errors and 5xx
// are retried under the policy; any other failure is final.
func (m *Manager) exchange(ctx context.Context, clientID, clientSecret string) (Token, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}

	var token Token
	err := retry.Do(ctx, m.clock, m.policy, func(ctx context.Context, attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("create token request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		m.logger.Debug().Int("attempt", attempt).Msg("Requesting access token")

		resp, err := m.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.Retryable(fmt.Errorf("request token: %w", err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.Retryable(fmt.Errorf("read token response: %w", err))
		}

		switch {
		case resp.StatusCode >= 500:
			return retry.Retryable(fmt.Errorf("token endpoint returned status %d", resp.StatusCode))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, truncate(body, 200))
		}

		var tok tokenResponse
		if err := json.Unmarshal(body, &tok); err != nil {
			return fmt.Errorf("decode token response: %w", err)
		}
		if tok.AccessToken == "" {
			return errors.New("token response has no access_token")
		}

		token = Token{Value: tok.AccessToken, Scheme: SchemeBearer}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Token{}, fmt.Errorf("token exchange: %w", ctx.Err())
		}
		return Token{}, fmt.Errorf("%w: %w", ErrAuthExchangeFailed, err)
	}
	return token, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
