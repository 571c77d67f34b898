package github

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AuthMode selects how the exporter authenticates to GitHub.
type AuthMode string

const (
	AuthModePAT AuthMode = "pat"
	AuthModeApp AuthMode = "app"
)

func ParseAuthMode(s string) (AuthMode, error) {
	switch mode := AuthMode(strings.ToLower(s)); mode {
	case AuthModePAT, AuthModeApp:
		return mode, nil
	default:
		return "", &ValidationError{Field: "github authentication type", Reason: fmt.Sprintf("%q is not one of pat, app", s)}
	}
}

// Personal access tokens carry no expiry; treat them as valid for 999 weeks.
const patLifetime = 999 * 7 * 24 * time.Hour

// Requester fetches rate limits with a credential that it keeps fresh in App mode.
type Requester struct {
	mode    AuthMode
	app     *App
	factory ClientFactory
	now     func() time.Time
	margin  time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	token  AccessToken
	client RateLimitsClient
}

type RequesterOption func(*Requester)

func WithClientFactory(f ClientFactory) RequesterOption {
	return func(r *Requester) { r.factory = f }
}

// WithBaseURL points the default client factory at a GitHub Enterprise API root.
func WithBaseURL(baseURL string) RequesterOption {
	return func(r *Requester) { r.factory = RESTClientFactory(baseURL) }
}

func WithClock(now func() time.Time) RequesterOption {
	return func(r *Requester) { r.now = now }
}

func WithExpiryMargin(margin time.Duration) RequesterOption {
	return func(r *Requester) { r.margin = margin }
}

func WithLogger(logger *zap.Logger) RequesterOption {
	return func(r *Requester) { r.logger = logger }
}

func newRequester(mode AuthMode, opts []RequesterOption) *Requester {
	r := &Requester{
		mode:    mode,
		factory: RESTClientFactory(DefaultBaseURL),
		now:     time.Now,
		margin:  DefaultExpiryMargin,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewPATRequester authenticates with a personal access token.
func NewPATRequester(token string, opts ...RequesterOption) (*Requester, error) {
	r := newRequester(AuthModePAT, opts)

	cred, err := NewAccessToken(token, r.now().Add(patLifetime))
	if err != nil {
		return nil, err
	}
	client, err := r.factory(cred.Token())
	if err != nil {
		return nil, fmt.Errorf("failed to create github client: %w", err)
	}

	r.token = cred
	r.client = client
	return r, nil
}

// NewAppRequester authenticates as a GitHub App installation. The first token is
// minted before it returns.
func NewAppRequester(ctx context.Context, app *App, opts ...RequesterOption) (*Requester, error) {
	if app == nil {
		return nil, &ValidationError{Field: "github app", Reason: "must not be nil"}
	}
	r := newRequester(AuthModeApp, opts)
	r.app = app

	if err := r.refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Requester) Mode() AuthMode {
	return r.mode
}

// AccessToken returns the credential currently in use.
func (r *Requester) AccessToken() AccessToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

// GetRateLimits returns the current rate-limit snapshot. Errors are returned unchanged.
func (r *Requester) GetRateLimits(ctx context.Context) (RateLimits, error) {
	client, err := r.currentClient(ctx)
	if err != nil {
		return RateLimits{}, err
	}
	return client.GetRateLimits(ctx)
}

func (r *Requester) currentClient(ctx context.Context) (RateLimitsClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode == AuthModeApp && r.token.HasExpiredAt(r.now(), r.margin) {
		r.logger.Info("token_expired",
			zap.Time("expires_at", r.token.ExpiresAt()),
			zap.Int64("installation_id", r.app.InstallationID()))
		if err := r.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	return r.client, nil
}

func (r *Requester) refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshLocked(ctx)
}

// refreshLocked replaces the credential and client together. r.mu must be held.
func (r *Requester) refreshLocked(ctx context.Context) error {
	cred, err := r.app.Mint(ctx)
	if err != nil {
		return err
	}
	client, err := r.factory(cred.Token())
	if err != nil {
		return fmt.Errorf("failed to create github client: %w", err)
	}

	r.token = cred
	r.client = client
	r.logger.Info("token_refreshed",
		zap.Int64("installation_id", r.app.InstallationID()),
		zap.Time("expires_at", cred.ExpiresAt()))
	return nil
}
