package github

import (
	"strings"

	gh "github.com/google/go-github/v66/github"
)

// Resource names exported as metric families, in exposition order.
const (
	ResourceCore                = "core"
	ResourceSearch              = "search"
	ResourceGraphQL             = "graphql"
	ResourceIntegrationManifest = "integration_manifest"
	ResourceCodeScanningUpload  = "code_scanning_upload"
)

// Resources lists the exported resources in the order their families are emitted.
var Resources = []string{
	ResourceCore,
	ResourceSearch,
	ResourceGraphQL,
	ResourceIntegrationManifest,
	ResourceCodeScanningUpload,
}

// RateLimit is one resource entry of the GET /rate_limit response. Reset is in epoch
// seconds.
type RateLimit struct {
	Limit     int64
	Used      int64
	Remaining int64
	Reset     int64
}

// RateLimits is a snapshot of the exported resources reported by GitHub.
type RateLimits struct {
	Resources map[string]RateLimit
}

// Get returns the named resource, or the zero record when GitHub did not report it.
func (r RateLimits) Get(name string) RateLimit {
	if r.Resources == nil {
		return RateLimit{}
	}
	return r.Resources[strings.ToLower(name)]
}

// newRateLimits converts go-github's snapshot. Resources GitHub left out are absent
// from the map and so read as the zero record.
func newRateLimits(limits *gh.RateLimits) RateLimits {
	out := RateLimits{Resources: map[string]RateLimit{}}
	if limits == nil {
		return out
	}

	for name, rate := range map[string]*gh.Rate{
		ResourceCore:                limits.Core,
		ResourceSearch:              limits.Search,
		ResourceGraphQL:             limits.GraphQL,
		ResourceIntegrationManifest: limits.IntegrationManifest,
		ResourceCodeScanningUpload:  limits.CodeScanningUpload,
	} {
		if rate != nil {
			out.Resources[name] = fromRate(rate)
		}
	}
	return out
}

// fromRate derives Used as Limit - Remaining; go-github's Rate does not carry it.
func fromRate(rate *gh.Rate) RateLimit {
	rl := RateLimit{
		Limit:     int64(rate.Limit),
		Used:      int64(rate.Limit - rate.Remaining),
		Remaining: int64(rate.Remaining),
	}
	if !rate.Reset.Time.IsZero() {
		rl.Reset = rate.Reset.Unix()
	}
	return rl
}
