package gateway

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"paybridge/internal/domain/model"
	"paybridge/internal/infra/metrics"
)

// Token is an opaque provider credential with its absolute expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenFetcher obtains a fresh credential from the provider auth endpoint.
type TokenFetcher func(ctx context.Context) (Token, error)

// TokenManager caches one provider credential per (provider, environment).
// A valid token outside the refresh window is returned without any network
// call; inside the window callers still get the current token while a single
// background refresh runs. Expired or absent tokens block on a refresh, and
// concurrent refreshes collapse into one flight.
type TokenManager struct {
	provider model.Provider
	env      model.Environment
	fetch    TokenFetcher
	window   time.Duration

	group      singleflight.Group
	mu         sync.RWMutex
	tok        Token
	refreshing atomic.Bool
	log        *zerolog.Logger
}

func NewTokenManager(provider model.Provider, env model.Environment, fetch TokenFetcher, window time.Duration, logger *zerolog.Logger) *TokenManager {
	if window <= 0 {
		window = 4 * time.Minute
	}
	return &TokenManager{provider: provider, env: env, fetch: fetch, window: window, log: logger}
}

// Token returns a credential valid at call time, refreshing when needed.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	tok := m.tok
	m.mu.RUnlock()

	now := time.Now()
	switch {
	case tok.Value == "" || !now.Before(tok.ExpiresAt):
		t, err := m.refresh(ctx, "expiry")
		if err != nil {
			return "", err
		}
		return t.Value, nil
	case now.After(tok.ExpiresAt.Add(-m.window)):
		// Still valid: hand it out and refresh behind the caller's back.
		m.backgroundRefresh()
		return tok.Value, nil
	default:
		return tok.Value, nil
	}
}

// ForceRefresh drops the cached token and blocks on a fresh fetch.
func (m *TokenManager) ForceRefresh(ctx context.Context) (string, error) {
	m.Invalidate()
	t, err := m.refresh(ctx, "forced")
	if err != nil {
		return "", err
	}
	return t.Value, nil
}

// Invalidate drops the cached token and detaches from any in-flight refresh
// so the next call fetches anew.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.tok = Token{}
	m.mu.Unlock()
	m.group.Forget("token")
}

func (m *TokenManager) refresh(ctx context.Context, trigger string) (Token, error) {
	v, err, _ := m.group.Do("token", func() (interface{}, error) {
		t, err := m.fetch(ctx)
		if err != nil {
			metrics.IncTokenRefresh(string(m.provider), trigger, "error")
			m.log.Warn().Err(err).
				Str("provider", string(m.provider)).
				Str("env", string(m.env)).
				Str("trigger", trigger).
				Msg("token refresh failed")
			return Token{}, err
		}
		m.mu.Lock()
		m.tok = t
		m.mu.Unlock()
		metrics.IncTokenRefresh(string(m.provider), trigger, "ok")
		m.log.Debug().
			Str("provider", string(m.provider)).
			Str("env", string(m.env)).
			Str("trigger", trigger).
			Time("expires_at", t.ExpiresAt).
			Msg("token refreshed")
		return t, nil
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

func (m *TokenManager) backgroundRefresh() {
	if !m.refreshing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer m.refreshing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_, _ = m.refresh(ctx, "window")
	}()
}

// tokenExpiry resolves a provider's expiry report to an absolute instant:
// absolute epoch millis win, else a relative seconds field, else one hour.
func tokenExpiry(expiresAtMillis, expiresInSeconds int64) time.Time {
	switch {
	case expiresAtMillis > 0:
		return time.UnixMilli(expiresAtMillis)
	case expiresInSeconds > 0:
		return time.Now().Add(time.Duration(expiresInSeconds) * time.Second)
	default:
		return time.Now().Add(time.Hour)
	}
}

// AuthRetry runs call with a managed token, forcing one refresh and a single
// retry when the provider rejects the credential. expired may be nil; the
// default treats HTTP 401 and 403 as a rejected credential.
func AuthRetry(ctx context.Context, tokens *TokenManager, expired func(*resty.Response) bool, call func(token string) (*resty.Response, error)) (*resty.Response, error) {
	if expired == nil {
		expired = func(resp *resty.Response) bool {
			return resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden
		}
	}

	tok, err := tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := call(tok)
	if err != nil || !expired(resp) {
		return resp, err
	}

	tok, err = tokens.ForceRefresh(ctx)
	if err != nil {
		return nil, err
	}
	return call(tok)
}
