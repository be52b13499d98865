// Package registry owns the in-memory map from authorization targets to
// their single active flow record.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrAlreadyActive is returned by Insert when a non-terminal flow already
// exists for the target. Callers cancel the existing flow first.
var ErrAlreadyActive = errors.New("an authorization flow is already active for this target")

type Registry struct {
	flows map[Target]*Record
	mu    sync.Mutex
}

func New() *Registry {
	return &Registry{
		flows: make(map[Target]*Record),
	}
}

// Insert registers the record for its target. A live record for the same
// target rejects the insert; a terminal one is implicitly replaced.
func (g *Registry) Insert(rec *Record) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.flows[rec.Target()]; ok {
		if !existing.Snapshot().Phase.Terminal() && !existing.Cancelled() {
			return ErrAlreadyActive
		}
		existing.Cancel()
	}
	g.flows[rec.Target()] = rec
	return nil
}

func (g *Registry) Get(target Target) (*Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.flows[target]
	return rec, ok
}

func (g *Registry) Remove(target Target) (*Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.flows[target]
	if ok {
		delete(g.flows, target)
	}
	return rec, ok
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.flows)
}

// Sweep removes records older than maxAge regardless of phase, cancelling
// them so held resources are released. This is defensive cleanup for flows
// the caller never acknowledged, independent of the per-flow timeout.
func (g *Registry) Sweep(now time.Time, maxAge time.Duration) int {
	g.mu.Lock()
	var stale []*Record
	for target, rec := range g.flows {
		if rec.Age(now) > maxAge {
			stale = append(stale, rec)
			delete(g.flows, target)
		}
	}
	g.mu.Unlock()

	for _, rec := range stale {
		rec.Cancel()
	}
	if len(stale) > 0 {
		logrus.WithField("count", len(stale)).Debug("swept stale flow records")
	}
	return len(stale)
}
