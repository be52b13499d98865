// Package flows implements the authorization flow coordinator: the device
// and browser flow engines, the per-flow poll supervisors, and the facade
// consumed by the control API and CLI.
package flows

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/config"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/provider"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/registry"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/secrets"
)

// ErrFlowNotFound is returned by Poll for targets with no flow, either
// because none was started or because it was cancelled or swept.
var ErrFlowNotFound = errors.New("no authorization flow for this target")

// ErrAlreadyActive mirrors the registry sentinel for callers that only
// import this package.
var ErrAlreadyActive = registry.ErrAlreadyActive

// ErrUnknownTarget is returned when the provider or server id is not
// configured.
var ErrUnknownTarget = errors.New("unknown authorization target")

// ErrFlowNotSupported is returned when the target exists but its auth
// method does not involve an authorization flow.
var ErrFlowNotSupported = errors.New("authorization flow not supported for this target")

const (
	// Budget for a single network call made from a tick. Keeps a stuck
	// token endpoint from wedging the supervisor past the flow ceiling.
	tickRequestTimeout = 15 * time.Second
)

// ProviderFlowStart is the display data handed to the caller after a device
// flow starts.
type ProviderFlowStart struct {
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	Instructions    string `json:"instructions"`
	IntervalSeconds int64  `json:"interval_seconds"`
}

// ServerFlowStart is the display data handed to the caller after a browser
// flow starts.
type ServerFlowStart struct {
	AuthURL     string `json:"auth_url"`
	RedirectURI string `json:"redirect_uri"`
	State       string `json:"state"`
}

// Coordinator drives OAuth authorization flows for providers and MCP
// servers. It is the only entrypoint for starting, polling, and cancelling
// flows; at most one flow is live per target at any time.
type Coordinator struct {
	conf    *config.Config
	catalog *provider.Catalog
	secrets secrets.Store
	reg     *registry.Registry

	httpClient  *http.Client
	nowFunc     func() time.Time
	browserFunc func(url string) error

	flowsStarted  *prometheus.CounterVec
	flowsFinished *prometheus.CounterVec

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a production Coordinator and starts its housekeeping loop.
func New(conf *config.Config, st secrets.Store) (*Coordinator, error) {
	return newCoordinator(conf, st, http.DefaultClient, time.Now, openBrowser, prometheus.DefaultRegisterer)
}

func newCoordinator(conf *config.Config, st secrets.Store, httpClient *http.Client,
	nowFunc func() time.Time, browserFunc func(string) error,
	promRegisterer prometheus.Registerer) (*Coordinator, error) {

	catalog, err := provider.NewCatalog(conf.Providers)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		conf:        conf,
		catalog:     catalog,
		secrets:     st,
		reg:         registry.New(),
		httpClient:  httpClient,
		nowFunc:     nowFunc,
		browserFunc: browserFunc,
		flowsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_flows_started_total",
			Help: "Number of authorization flows started",
		}, []string{"kind"}),
		flowsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_flows_finished_total",
			Help: "Number of authorization flows finished",
		}, []string{"kind", "outcome"}),
		stop: make(chan struct{}),
	}
	promRegisterer.MustRegister(c.flowsStarted, c.flowsFinished)

	c.wg.Add(1)
	go c.housekeeping()

	return c, nil
}

// Close stops the housekeeping loop and all flow supervisors and waits for
// them to exit. In-flight flows are left in the registry untouched.
func (c *Coordinator) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

func (c *Coordinator) housekeeping() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.conf.Flows.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.reg.Sweep(c.nowFunc(), c.conf.Flows.MaxRecordAge)
		case <-c.stop:
			return
		}
	}
}

// Poll returns the current flow status for the target. It never blocks on
// network work; a terminal status stays identical across repeated polls
// until the flow is cancelled or swept.
func (c *Coordinator) Poll(target registry.Target) (registry.Status, error) {
	rec, ok := c.reg.Get(target)
	if !ok || rec.Cancelled() {
		return registry.Status{}, ErrFlowNotFound
	}
	s := rec.Snapshot()
	if s.Phase == registry.PhasePending && rec.Age(c.nowFunc()) > c.conf.Flows.Timeout {
		// The ceiling is enforced here too so a poll landing between ticks
		// reports the timeout promptly.
		rec.Expire()
		rec.Kick()
		s = rec.Snapshot()
	}
	return s, nil
}

// Cancel removes the target's flow and releases any held resources. It is
// idempotent: cancelling an unknown or already finished flow is a no-op.
func (c *Coordinator) Cancel(target registry.Target) {
	if rec, ok := c.reg.Remove(target); ok {
		rec.Cancel()
		rec.Kick()
	}
}

func (c *Coordinator) liveFlowExists(target registry.Target) bool {
	rec, ok := c.reg.Get(target)
	return ok && !rec.Snapshot().Phase.Terminal() && !rec.Cancelled()
}

// withHTTPClient makes the oauth2 package use the coordinator's HTTP client.
func (c *Coordinator) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func outcomeOf(phase registry.Phase) string {
	switch phase {
	case registry.PhaseSucceeded:
		return "success"
	case registry.PhaseFailed:
		return "error"
	case registry.PhaseTimedOut:
		return "timeout"
	default:
		return "unknown"
	}
}
