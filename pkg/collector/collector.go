// Package collector exposes GitHub rate limits as Prometheus gauges.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/theodore86/github-rate-limits-exporter/pkg/errqueue"
	"github.com/theodore86/github-rate-limits-exporter/pkg/github"
	"github.com/theodore86/github-rate-limits-exporter/pkg/retry"
)

const (
	namespace      = "github_rate_limits"
	source         = "collector"
	defaultTimeout = 30 * time.Second
)

// Sample types, in emission order.
const (
	TypeLimit     = "limit"
	TypeUsed      = "used"
	TypeRemaining = "remaining"
	TypeReset     = "reset"
)

var labels = []string{"account", "type"}

// RateLimitsGetter is satisfied by *github.Requester.
type RateLimitsGetter interface {
	GetRateLimits(ctx context.Context) (github.RateLimits, error)
}

// Sample is one gauge value of a family.
type Sample struct {
	Type      string
	Value     float64
	Timestamp time.Time
}

// Family is the four samples exported for one rate-limit resource.
type Family struct {
	API     string
	Name    string
	Help    string
	Samples []Sample
}

// Collector implements prometheus.Collector. Every scrape makes one rate-limit call.
type Collector struct {
	account   string
	requester RateLimitsGetter
	queue     *errqueue.Queue
	policy    retry.Policy
	timeout   time.Duration
	now       func() time.Time
	logger    *zap.Logger
	descs     map[string]*prometheus.Desc
}

type Option func(*Collector)

func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Collector) { c.logger = logger }
}

// WithRetry retries transient upstream failures within a single scrape.
func WithRetry(p retry.Policy) Option {
	return func(c *Collector) { c.policy = p }
}

// WithTimeout bounds the upstream work done by one scrape.
func WithTimeout(d time.Duration) Option {
	return func(c *Collector) { c.timeout = d }
}

func New(account string, requester RateLimitsGetter, queue *errqueue.Queue, opts ...Option) (*Collector, error) {
	if account == "" {
		return nil, &github.ValidationError{Field: "github account", Reason: "must not be empty"}
	}
	if requester == nil {
		return nil, &github.ValidationError{Field: "rate limits requester", Reason: "must not be nil"}
	}
	if queue == nil {
		return nil, &github.ValidationError{Field: "error queue", Reason: "must not be nil"}
	}

	c := &Collector{
		account:   account,
		requester: requester,
		queue:     queue,
		timeout:   defaultTimeout,
		now:       time.Now,
		logger:    zap.NewNop(),
		descs:     make(map[string]*prometheus.Desc, len(github.Resources)),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, api := range github.Resources {
		c.descs[api] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", api),
			help(api),
			labels,
			nil,
		)
	}
	return c, nil
}

func help(api string) string {
	return fmt.Sprintf("API requests in %s per hour", api)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, api := range github.Resources {
		ch <- c.descs[api]
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	for _, fam := range c.Families(ctx) {
		desc := c.descs[fam.API]
		for _, s := range fam.Samples {
			ch <- prometheus.NewMetricWithTimestamp(s.Timestamp,
				prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, s.Value, c.account, s.Type))
		}
	}
}

// Families fetches the rate limits once and shapes them into the exported families.
// A failed fetch is published on the error queue and yields zero values.
func (c *Collector) Families(ctx context.Context) []Family {
	fetch := errqueue.Guard(c.queue, source, c.fetch)
	limits, _ := fetch(ctx)

	families := make([]Family, 0, len(github.Resources))
	for _, api := range github.Resources {
		families = append(families, c.addMetric(api, limits))
	}
	return families
}

func (c *Collector) fetch(ctx context.Context) (github.RateLimits, error) {
	limits, err := retry.Do(ctx, c.policy, c.requester.GetRateLimits)
	if err != nil {
		c.logger.Error("collect_failed", zap.String("account", c.account), zap.Error(err))
		return github.RateLimits{}, err
	}
	c.logger.Debug("collect_succeeded", zap.String("account", c.account))
	return limits, nil
}

func (c *Collector) addMetric(api string, limits github.RateLimits) Family {
	rl := limits.Get(api)
	return Family{
		API:  api,
		Name: prometheus.BuildFQName(namespace, "", api),
		Help: help(api),
		Samples: []Sample{
			{Type: TypeLimit, Value: float64(rl.Limit), Timestamp: c.now()},
			{Type: TypeUsed, Value: float64(rl.Used), Timestamp: c.now()},
			{Type: TypeRemaining, Value: float64(rl.Remaining), Timestamp: c.now()},
			{Type: TypeReset, Value: float64(rl.Reset), Timestamp: c.now()},
		},
	}
}
