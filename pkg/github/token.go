package github

import (
	"time"
)

// DefaultExpiryMargin is how long before the real expiry a token is treated as expired.
const DefaultExpiryMargin = 300 * time.Second

// AccessToken is an immutable bearer token paired with the instant it stops being valid.
type AccessToken struct {
	token     string
	expiresAt time.Time
}

// NewAccessToken validates its inputs and normalises the expiry to UTC.
func NewAccessToken(token string, expiresAt time.Time) (AccessToken, error) {
	if token == "" {
		return AccessToken{}, &ValidationError{Field: "access token", Reason: "must not be empty"}
	}
	if expiresAt.IsZero() {
		return AccessToken{}, &ValidationError{Field: "access token expiry", Reason: "must be set"}
	}
	return AccessToken{token: token, expiresAt: expiresAt.UTC()}, nil
}

func (t AccessToken) Token() string {
	return t.token
}

func (t AccessToken) ExpiresAt() time.Time {
	return t.expiresAt
}

// HasExpired reports whether the token expires within margin of the current time.
func (t AccessToken) HasExpired(margin time.Duration) bool {
	return t.HasExpiredAt(time.Now(), margin)
}

// HasExpiredAt is HasExpired evaluated at now.
func (t AccessToken) HasExpiredAt(now time.Time, margin time.Duration) bool {
	return t.expiresAt.Before(now.Add(margin))
}

func (t AccessToken) Equal(other AccessToken) bool {
	return t.token == other.token && t.expiresAt.Equal(other.expiresAt)
}
