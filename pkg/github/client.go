package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the public GitHub REST API root.
const DefaultBaseURL = "https://api.github.com/"

const requestTimeout = 10 * time.Second

// RateLimitsClient fetches the rate-limit snapshot for the credential it was built with.
type RateLimitsClient interface {
	GetRateLimits(ctx context.Context) (RateLimits, error)
}

// ClientFactory builds a RateLimitsClient bound to a bearer token.
type ClientFactory func(token string) (RateLimitsClient, error)

// RESTClient is a RateLimitsClient backed by go-github.
type RESTClient struct {
	client *gh.Client
}

// NewRESTClient returns a client that authenticates every request with token.
// An empty baseURL selects DefaultBaseURL.
func NewRESTClient(token, baseURL string) (*RESTClient, error) {
	client, err := newGitHubClient(token, baseURL)
	if err != nil {
		return nil, err
	}
	return &RESTClient{client: client}, nil
}

// RESTClientFactory returns a ClientFactory producing RESTClients against baseURL.
func RESTClientFactory(baseURL string) ClientFactory {
	return func(token string) (RateLimitsClient, error) {
		return NewRESTClient(token, baseURL)
	}
}

// GetRateLimits calls GET /rate_limit. The call goes through go-github's RateLimit
// service, which is exempt from the client-side check that would otherwise refuse
// requests once the core limit is exhausted.
func (c *RESTClient) GetRateLimits(ctx context.Context) (RateLimits, error) {
	limits, _, err := c.client.RateLimit.Get(ctx)
	if err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return RateLimits{}, &ValidationError{
				Field:  typeErr.Field,
				Reason: fmt.Sprintf("expected %s, got a JSON %s", typeErr.Type, typeErr.Value),
			}
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return RateLimits{}, &ValidationError{Field: "rate limit response", Reason: syntaxErr.Error()}
		}
		return RateLimits{}, &UpstreamError{Op: "get rate limits", Err: err}
	}
	return newRateLimits(limits), nil
}

// TokenExchanger trades a signed App JWT for an installation access token.
type TokenExchanger interface {
	CreateInstallationToken(ctx context.Context, appJWT string, installationID int64) (string, time.Time, error)
}

// InstallationTokenExchanger is the go-github TokenExchanger.
type InstallationTokenExchanger struct {
	baseURL string
}

func NewInstallationTokenExchanger(baseURL string) *InstallationTokenExchanger {
	return &InstallationTokenExchanger{baseURL: baseURL}
}

func (e *InstallationTokenExchanger) CreateInstallationToken(ctx context.Context, appJWT string, installationID int64) (string, time.Time, error) {
	client, err := newGitHubClient(appJWT, e.baseURL)
	if err != nil {
		return "", time.Time{}, err
	}

	tok, _, err := client.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", time.Time{}, &UpstreamError{Op: "create installation token", Err: err}
	}
	return tok.GetToken(), tok.GetExpiresAt().Time, nil
}

func newGitHubClient(token, baseURL string) (*gh.Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = requestTimeout

	client := gh.NewClient(tc)
	if baseURL == "" || baseURL == DefaultBaseURL {
		return client, nil
	}

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ValidationError{Field: "github api url", Reason: err.Error()}
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &ValidationError{Field: "github api url", Reason: fmt.Sprintf("%q is not an absolute URL", baseURL)}
	}
	client.BaseURL = u
	return client, nil
}
