package github

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	jwtClockSkew = 60 * time.Second
	jwtLifetime  = 10 * time.Minute
)

// App is a GitHub App installation identity able to mint installation tokens.
type App struct {
	integrationID  int64
	installationID int64
	key            *rsa.PrivateKey
	exchanger      TokenExchanger
	now            func() time.Time
}

type AppOption func(*App)

// WithTokenExchanger replaces the go-github token exchange.
func WithTokenExchanger(ex TokenExchanger) AppOption {
	return func(a *App) { a.exchanger = ex }
}

// WithAppBaseURL points the default token exchange at a GitHub Enterprise API root.
func WithAppBaseURL(baseURL string) AppOption {
	return func(a *App) { a.exchanger = NewInstallationTokenExchanger(baseURL) }
}

func WithAppClock(now func() time.Time) AppOption {
	return func(a *App) { a.now = now }
}

// NewApp builds an App from a PEM private key, raw or base64 encoded.
func NewApp(integrationID int64, privateKey string, installationID int64, opts ...AppOption) (*App, error) {
	if integrationID <= 0 {
		return nil, &ValidationError{Field: "github app id", Reason: fmt.Sprintf("must be a positive integer, got %d", integrationID)}
	}
	if installationID <= 0 {
		return nil, &ValidationError{Field: "github app installation id", Reason: fmt.Sprintf("must be a positive integer, got %d", installationID)}
	}
	if privateKey == "" {
		return nil, &ValidationError{Field: "github app private key", Reason: "must not be empty"}
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(DecodeBase64(privateKey)))
	if err != nil {
		return nil, &ValidationError{Field: "github app private key", Reason: err.Error()}
	}

	a := &App{
		integrationID:  integrationID,
		installationID: installationID,
		key:            key,
		exchanger:      NewInstallationTokenExchanger(DefaultBaseURL),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// NewAppFromReader reads the private key from r and closes it.
func NewAppFromReader(integrationID int64, r io.ReadCloser, installationID int64, opts ...AppOption) (*App, error) {
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read github app private key: %w", err)
	}
	return NewApp(integrationID, string(data), installationID, opts...)
}

func (a *App) IntegrationID() int64 {
	return a.integrationID
}

func (a *App) InstallationID() int64 {
	return a.installationID
}

// Mint exchanges a freshly signed App JWT for an installation token.
func (a *App) Mint(ctx context.Context) (AccessToken, error) {
	signed, err := a.signJWT()
	if err != nil {
		return AccessToken{}, err
	}

	token, expiresAt, err := a.exchanger.CreateInstallationToken(ctx, signed, a.installationID)
	if err != nil {
		return AccessToken{}, err
	}
	return NewAccessToken(token, expiresAt)
}

func (a *App) signJWT() (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(a.integrationID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-jwtClockSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(jwtLifetime)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign github app jwt: %w", err)
	}
	return signed, nil
}
