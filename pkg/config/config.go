// Package config resolves the exporter's command line flags and environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/theodore86/github-rate-limits-exporter/pkg/github"
)

const (
	DefaultBindAddress = "0.0.0.0"
	DefaultListenPort  = 10050

	minListenPort = 1024
	maxListenPort = 65535
)

const (
	keyAuthType       = "github-auth-type"
	keyAccount        = "github-account"
	keyToken          = "github-token"
	keyAppID          = "github-app-id"
	keyInstallationID = "github-app-installation-id"
	keyPrivateKeyPath = "github-app-private-key-path"
	keyBindAddress    = "bind-address"
	keyListenPort     = "listen-port"
	keyVerbosity      = "verbose"
	keyAPIURL         = "github-api-url"
	keyMaxRetries     = "github-max-retries"
	keyVersion        = "version"
)

var envBindings = []struct {
	key string
	env string
}{
	{keyAuthType, "GITHUB_AUTH_TYPE"},
	{keyAccount, "GITHUB_ACCOUNT"},
	{keyToken, "GITHUB_TOKEN"},
	{keyAppID, "GITHUB_APP_ID"},
	{keyInstallationID, "GITHUB_APP_INSTALLATION_ID"},
	{keyPrivateKeyPath, "GITHUB_APP_PRIVATE_KEY_PATH"},
	{keyBindAddress, "EXPORTER_BIND_ADDRESS"},
	{keyListenPort, "EXPORTER_LISTEN_PORT"},
	{keyVerbosity, "EXPORTER_LOG_LEVEL"},
	{keyAPIURL, "GITHUB_API_URL"},
	{keyMaxRetries, "GITHUB_MAX_RETRIES"},
}

type Config struct {
	AuthType       github.AuthMode
	Account        string
	Token          string
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	BindAddress    string
	ListenPort     int
	Verbosity      int
	APIURL         string
	MaxRetries     int
	ShowVersion    bool
}

// ArgumentError is a command line usage error.
type ArgumentError struct {
	Program string
	Message string
	Usage   string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Program, e.Message)
}

// HelpError is returned when --help is given. It matches pflag.ErrHelp.
type HelpError struct {
	Usage string
}

func (e *HelpError) Error() string { return pflag.ErrHelp.Error() }

func (e *HelpError) Unwrap() error { return pflag.ErrHelp }

// Load parses args on top of the environment. Flags win over environment variables,
// which win over defaults. --help yields a *HelpError carrying the usage text.
func Load(program string, args []string) (Config, error) {
	fs := newFlagSet(program)
	usage := fmt.Sprintf("usage: %s [flags]\n\n%s", program, fs.FlagUsages())

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return Config{}, &HelpError{Usage: usage}
		}
		return Config{}, &ArgumentError{Program: program, Message: err.Error(), Usage: usage}
	}

	if showVersion, _ := fs.GetBool(keyVersion); showVersion {
		return Config{ShowVersion: true}, nil
	}

	v := viper.New()
	for _, b := range envBindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", b.env, err)
		}
	}
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("failed to bind flags: %w", err)
	}
	v.SetDefault(keyBindAddress, DefaultBindAddress)
	v.SetDefault(keyListenPort, strconv.Itoa(DefaultListenPort))
	v.SetDefault(keyVerbosity, "0")
	v.SetDefault(keyAPIURL, github.DefaultBaseURL)
	v.SetDefault(keyMaxRetries, "0")

	cfg, err := resolve(v)
	if err != nil {
		return Config{}, &ArgumentError{Program: program, Message: err.Error(), Usage: usage}
	}
	return cfg, nil
}

func newFlagSet(program string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(program, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	fs.String(keyAuthType, "", "Github authentication type: pat or app [env: GITHUB_AUTH_TYPE]")
	fs.String(keyAccount, "", "Github account (user or organization) [env: GITHUB_ACCOUNT]")
	fs.String(keyToken, "", "Github personal access token [env: GITHUB_TOKEN]")
	fs.String(keyAppID, "", "Github App id [env: GITHUB_APP_ID]")
	fs.String(keyInstallationID, "", "Github App installation id [env: GITHUB_APP_INSTALLATION_ID]")
	fs.String(keyPrivateKeyPath, "", "Github App private key path, raw or base64 PEM [env: GITHUB_APP_PRIVATE_KEY_PATH]")
	fs.String(keyBindAddress, DefaultBindAddress, "exporter bind address [env: EXPORTER_BIND_ADDRESS]")
	fs.String(keyListenPort, strconv.Itoa(DefaultListenPort), "exporter listen port, above 1024 [env: EXPORTER_LISTEN_PORT]")
	fs.CountP(keyVerbosity, "v", "increase log verbosity, up to -vvvv [env: EXPORTER_LOG_LEVEL]")
	fs.String(keyAPIURL, github.DefaultBaseURL, "Github REST API URL [env: GITHUB_API_URL]")
	fs.String(keyMaxRetries, "0", "retries of transient Github errors per scrape [env: GITHUB_MAX_RETRIES]")
	fs.BoolP(keyVersion, "V", false, "show program's version number and exit")
	return fs
}

func resolve(v *viper.Viper) (Config, error) {
	cfg := Config{
		Account:        strings.TrimSpace(v.GetString(keyAccount)),
		Token:          v.GetString(keyToken),
		PrivateKeyPath: strings.TrimSpace(v.GetString(keyPrivateKeyPath)),
		BindAddress:    strings.TrimSpace(v.GetString(keyBindAddress)),
		APIURL:         strings.TrimSpace(v.GetString(keyAPIURL)),
	}

	var missing []string
	for _, key := range []string{keyAuthType, keyAccount} {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, "--"+key)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("the following arguments are required: %s", strings.Join(missing, ", "))
	}

	authType := strings.TrimSpace(v.GetString(keyAuthType))
	mode, err := github.ParseAuthMode(authType)
	if err != nil {
		return Config{}, fmt.Errorf("invalid Github authentication type: %q", authType)
	}
	cfg.AuthType = mode

	switch mode {
	case github.AuthModePAT:
		if cfg.Token == "" {
			return Config{}, errors.New("Github PAT authentication type requires: --github-token")
		}
	case github.AuthModeApp:
		if v.GetString(keyAppID) == "" || v.GetString(keyInstallationID) == "" || cfg.PrivateKeyPath == "" {
			return Config{}, errors.New("Github App authentication type requires: --github-app-id, --github-app-installation-id, --github-app-private-key-path")
		}
		if cfg.AppID, err = parseInt64(v, keyAppID); err != nil {
			return Config{}, err
		}
		if cfg.InstallationID, err = parseInt64(v, keyInstallationID); err != nil {
			return Config{}, err
		}
		if err := checkReadable(cfg.PrivateKeyPath); err != nil {
			return Config{}, err
		}
	}

	if net.ParseIP(cfg.BindAddress) == nil {
		return Config{}, fmt.Errorf("argument --%s: invalid IP address: %q", keyBindAddress, cfg.BindAddress)
	}

	port, err := parseInt64(v, keyListenPort)
	if err != nil {
		return Config{}, err
	}
	if port <= minListenPort || port > maxListenPort {
		return Config{}, fmt.Errorf("argument --%s: port must be between %d and %d, got %d", keyListenPort, minListenPort+1, maxListenPort, port)
	}
	cfg.ListenPort = int(port)

	verbosity, err := parseInt64(v, keyVerbosity)
	if err != nil {
		return Config{}, err
	}
	if verbosity < 0 {
		return Config{}, fmt.Errorf("argument -v: verbosity must not be negative, got %d", verbosity)
	}
	cfg.Verbosity = int(verbosity)

	retries, err := parseInt64(v, keyMaxRetries)
	if err != nil {
		return Config{}, err
	}
	if retries < 0 {
		return Config{}, fmt.Errorf("argument --%s: must not be negative, got %d", keyMaxRetries, retries)
	}
	cfg.MaxRetries = int(retries)

	return cfg, nil
}

func parseInt64(v *viper.Viper, key string) (int64, error) {
	raw := strings.TrimSpace(v.GetString(key))
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("argument --%s: invalid int value: %q", key, raw)
	}
	return n, nil
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("argument --%s: can't open %q: %v", keyPrivateKeyPath, path, err)
	}
	f.Close()
	return nil
}

// NewRequester builds the rate-limits requester for the configured authentication type.
// In App mode the first installation token is minted before it returns.
func (c Config) NewRequester(ctx context.Context, logger *zap.Logger) (*github.Requester, error) {
	opts := []github.RequesterOption{
		github.WithBaseURL(c.APIURL),
		github.WithLogger(logger),
	}

	switch c.AuthType {
	case github.AuthModePAT:
		return github.NewPATRequester(c.Token, opts...)
	case github.AuthModeApp:
		f, err := os.Open(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open github app private key: %w", err)
		}
		app, err := github.NewAppFromReader(c.AppID, f, c.InstallationID, github.WithAppBaseURL(c.APIURL))
		if err != nil {
			return nil, err
		}
		return github.NewAppRequester(ctx, app, opts...)
	default:
		return nil, &github.ValidationError{Field: "github authentication type", Reason: fmt.Sprintf("%q is not one of pat, app", c.AuthType)}
	}
}
