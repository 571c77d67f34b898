package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func generateKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return key, string(pem.EncodeToMemory(block))
}

type fakeExchanger struct {
	token     string
	expiresAt time.Time
	err       error
	calls     int
	lastJWT   string
	lastID    int64
}

func (f *fakeExchanger) CreateInstallationToken(ctx context.Context, appJWT string, installationID int64) (string, time.Time, error) {
	f.calls++
	f.lastJWT = appJWT
	f.lastID = installationID
	return f.token, f.expiresAt, f.err
}

type trackingReader struct {
	io.Reader
	closed bool
}

func (r *trackingReader) Close() error {
	r.closed = true
	return nil
}

func TestNewApp_Validation(t *testing.T) {
	_, keyPEM := generateKey(t)

	tests := []struct {
		name           string
		integrationID  int64
		installationID int64
		key            string
		wantField      string
	}{
		{name: "zero app id", integrationID: 0, installationID: 1, key: keyPEM, wantField: "github app id"},
		{name: "negative installation id", integrationID: 1, installationID: -5, key: keyPEM, wantField: "github app installation id"},
		{name: "empty key", integrationID: 1, installationID: 1, key: "", wantField: "github app private key"},
		{name: "garbage key", integrationID: 1, installationID: 1, key: "not a key", wantField: "github app private key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewApp(tt.integrationID, tt.key, tt.installationID)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", vErr.Field, tt.wantField)
			}
		})
	}
}

func TestNewApp_Base64Key(t *testing.T) {
	_, keyPEM := generateKey(t)
	encoded := base64.StdEncoding.EncodeToString([]byte(keyPEM))

	app, err := NewApp(123, encoded, 456)
	if err != nil {
		t.Fatalf("NewApp with base64 key: %v", err)
	}
	if app.IntegrationID() != 123 || app.InstallationID() != 456 {
		t.Errorf("ids = (%d, %d), want (123, 456)", app.IntegrationID(), app.InstallationID())
	}
}

func TestNewAppFromReader_ClosesReader(t *testing.T) {
	_, keyPEM := generateKey(t)

	r := &trackingReader{Reader: strings.NewReader(keyPEM)}
	if _, err := NewAppFromReader(1, r, 2); err != nil {
		t.Fatalf("NewAppFromReader: %v", err)
	}
	if !r.closed {
		t.Error("reader was not closed")
	}

	bad := &trackingReader{Reader: strings.NewReader("garbage")}
	if _, err := NewAppFromReader(1, bad, 2); err == nil {
		t.Error("expected error for garbage key")
	}
	if !bad.closed {
		t.Error("reader was not closed on failure")
	}
}

func TestApp_Mint(t *testing.T) {
	key, keyPEM := generateKey(t)
	now := time.Date(2022, 12, 24, 12, 45, 0, 0, time.UTC)
	expiry := time.Date(2024, 12, 24, 12, 45, 0, 0, time.UTC)

	ex := &fakeExchanger{token: "ghs_minted", expiresAt: expiry}
	app, err := NewApp(123, keyPEM, 456,
		WithTokenExchanger(ex),
		WithAppClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}

	tok, err := app.Mint(context.Background())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	want, _ := NewAccessToken("ghs_minted", expiry)
	if !tok.Equal(want) {
		t.Errorf("Mint() = %v/%v, want %v/%v", tok.Token(), tok.ExpiresAt(), want.Token(), want.ExpiresAt())
	}
	if ex.lastID != 456 {
		t.Errorf("installation id = %d, want 456", ex.lastID)
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(ex.lastJWT, claims, func(tk *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }), jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		t.Fatalf("JWT did not verify: %v", err)
	}
	if claims.Issuer != "123" {
		t.Errorf("iss = %q, want 123", claims.Issuer)
	}
	if got := claims.IssuedAt.Time; !got.Equal(now.Add(-60 * time.Second)) {
		t.Errorf("iat = %v, want %v", got, now.Add(-60*time.Second))
	}
	if got := claims.ExpiresAt.Time; !got.Equal(now.Add(10 * time.Minute)) {
		t.Errorf("exp = %v, want %v", got, now.Add(10*time.Minute))
	}
}

func TestApp_MintPropagatesExchangeError(t *testing.T) {
	_, keyPEM := generateKey(t)
	boom := &UpstreamError{Op: "create installation token", Err: errors.New("401 Bad credentials")}
	ex := &fakeExchanger{err: boom}

	app, err := NewApp(1, keyPEM, 2, WithTokenExchanger(ex))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if _, err := app.Mint(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Mint error = %v, want %v", err, boom)
	}
	if ex.calls != 1 {
		t.Errorf("exchanger called %d times, want 1", ex.calls)
	}
}

func TestApp_MintAgainstServer(t *testing.T) {
	_, keyPEM := generateKey(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ey") {
			t.Errorf("expected JWT bearer, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"token": "ghs_server", "expires_at": "2026-12-24T12:45:00Z"}`))
	}))
	defer server.Close()

	app, err := NewApp(1, keyPEM, 2, WithAppBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	tok, err := app.Mint(context.Background())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if tok.Token() != "ghs_server" {
		t.Errorf("token = %q, want ghs_server", tok.Token())
	}
}
