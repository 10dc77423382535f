package zoom

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

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/brightclass/backend/config"
)

const (
	// tokenSafetyMargin forces a refresh slightly before the provider
	// expiry so in-flight requests never carry an expired token.
	tokenSafetyMargin = 60 * time.Second
	// tokenExchangeTimeout bounds the OAuth round trip.
	tokenExchangeTimeout = 10 * time.Second
)

// ErrNoCredentials is returned when the OAuth exchange is attempted
// without account credentials configured.
var ErrNoCredentials = errors.New("zoom: oauth credentials not configured")

// TokenManager acquires and caches a short-lived server-to-server OAuth
// bearer token. Concurrent callers during a refresh share a single
// in-flight exchange; the cached token is never persisted.
type TokenManager struct {
	cfg    config.ZoomConfig
	http   *http.Client
	logger *zap.Logger

	group singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time

	now func() time.Time // injected in tests
}

// NewTokenManager creates a token manager for the given Zoom app credentials.
func NewTokenManager(cfg config.ZoomConfig, logger *zap.Logger) *TokenManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenManager{
		cfg:    cfg,
		http:   &http.Client{Timeout: tokenExchangeTimeout},
		logger: logger,
		now:    time.Now,
	}
}

// GetToken returns a valid bearer token, refreshing if the cached one is
// missing or inside the safety margin of its expiry. All concurrent
// callers needing a refresh block on the same exchange.
func (m *TokenManager) GetToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.token != "" && m.now().Before(m.expiry.Add(-tokenSafetyMargin)) {
		token := m.token
		m.mu.Unlock()
		return token, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do("token", func() (interface{}, error) {
		// Another waiter may have completed the refresh between the
		// cache check and joining the group.
		m.mu.Lock()
		if m.token != "" && m.now().Before(m.expiry.Add(-tokenSafetyMargin)) {
			token := m.token
			m.mu.Unlock()
			return token, nil
		}
		m.mu.Unlock()

		token, expiry, err := m.exchange(ctx)
		if err != nil {
			return "", err
		}
		m.mu.Lock()
		m.token = token
		m.expiry = expiry
		m.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next GetToken forces a
// refresh. Called when any API request observes a 401/403.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.expiry = time.Time{}
	m.mu.Unlock()
	m.logger.Debug("zoom token invalidated")
}

// exchange performs the account_credentials grant.
func (m *TokenManager) exchange(ctx context.Context) (string, time.Time, error) {
	if !m.cfg.Configured() {
		return "", time.Time{}, ErrNoCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, tokenExchangeTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("grant_type", "account_credentials")
	form.Set("account_id", m.cfg.AccountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.OAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("create token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(m.cfg.ClientID + ":" + m.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", time.Time{}, fmt.Errorf("token exchange status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, errors.New("token exchange: empty access_token")
	}

	expiry := m.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	m.logger.Debug("zoom token refreshed", zap.Time("expiry", expiry))
	return tr.AccessToken, expiry, nil
}
