// Package lifecycle ports original_source's dependencies.py HelperCollection
// / CollectionNameGetter machinery: a registry of {name, counter, lock}
// entries that decides which collections stay resident in the vector
// store. Every access to a collection resets its counter to CounterMax and
// loads it if it was at zero; every other entry's counter decays by one,
// releasing the collection once its counter reaches zero.
//
// Grounded on the teacher's internal/service/bus.go for the "single
// registry, one lock per entry, notify on state change" shape, adapted
// from a geo layer/tile event bus to a load/release counter.
package lifecycle

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/aeyemap/aeye/internal/apperr"
	"github.com/aeyemap/aeye/internal/vectorstore"
)

// CounterMax is the number of accesses a collection's counter survives
// before decaying to zero and releasing. original_source leaves this
// implementation-defined at "at least 8"; 8 is the value this repo ships.
const CounterMax = 8

var (
	loadedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aeye_collection_loaded",
		Help: "1 if a collection is currently loaded in the vector store, 0 otherwise.",
	}, []string{"collection"})

	loadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aeye_collection_loads_total",
		Help: "Number of times a collection transitioned from released to loaded.",
	}, []string{"collection"})

	releasesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aeye_collection_releases_total",
		Help: "Number of times a collection transitioned from loaded to released.",
	}, []string{"collection"})
)

// Metrics registers the lifecycle gauges/counters with reg. Call once at
// startup; reg is typically prometheus.DefaultRegisterer.
func Metrics(reg prometheus.Registerer) {
	reg.MustRegister(loadedGauge, loadsTotal, releasesTotal)
}

// entry is one collection's residency state.
type entry struct {
	mu      sync.Mutex
	name    string
	counter int
	loaded  bool
}

// Registry tracks every known collection's residency, accessed through a
// single registry lock the way original_source's HelperCollection guards
// its counters dict.
type Registry struct {
	store vectorstore.Store

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry returns an empty Registry backed by store.
func NewRegistry(store vectorstore.Store) *Registry {
	return &Registry{store: store, entries: make(map[string]*entry)}
}

// entryFor returns name's entry, creating it if absent. Only Seed (and
// the test-only Counter/Loaded accessors) may grow the registry this
// way; Access must never auto-create an entry for an unknown name.
func (r *Registry) entryFor(name string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		e = &entry{name: name}
		r.entries[name] = e
		loadedGauge.WithLabelValues(name).Set(0)
	}
	return e
}

// lookup returns name's entry without creating one, per
// original_source's CollectionNameGetter._call returning None for an
// unrecognized name.
func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	return e, ok
}

// Access implements the counter-reset/decay protocol: the target
// collection's counter resets to CounterMax (loading it first if its
// counter was zero), and every other known collection's counter decays by
// one, releasing at zero. Access returns once the target is loaded and
// ready to query.
//
// name must already be known to the registry (via Seed or a prior
// Updater tick) — Access returns apperr.NotFound for anything else
// rather than silently registering it, per spec.md §4.4 step 2.
func (r *Registry) Access(ctx context.Context, name string) error {
	target, ok := r.lookup(name)
	if !ok {
		return apperr.NewNotFound("lifecycle: unknown collection %q", name)
	}

	target.mu.Lock()
	wasUnloaded := target.counter == 0
	target.counter = CounterMax
	if wasUnloaded {
		if err := r.store.Load(ctx, name); err != nil {
			target.mu.Unlock()
			return err
		}
		target.loaded = true
		loadedGauge.WithLabelValues(name).Set(1)
		loadsTotal.WithLabelValues(name).Inc()
		logrus.WithField("collection", name).Debug("lifecycle: loaded")
	}
	target.mu.Unlock()

	r.decayOthers(ctx, name)
	return nil
}

// decayOthers decrements every entry except name, releasing any that hit
// zero. Each entry is locked individually — the registry lock is only
// held long enough to snapshot the entry list, never across a store call.
func (r *Registry) decayOthers(ctx context.Context, except string) {
	r.mu.Lock()
	others := make([]*entry, 0, len(r.entries))
	for n, e := range r.entries {
		if n != except {
			others = append(others, e)
		}
	}
	r.mu.Unlock()

	for _, e := range others {
		e.mu.Lock()
		if e.counter > 0 {
			e.counter--
			if e.counter == 0 && e.loaded {
				if err := r.store.Release(ctx, e.name); err != nil {
					logrus.WithError(err).WithField("collection", e.name).Warn("lifecycle: release failed")
				} else {
					e.loaded = false
					loadedGauge.WithLabelValues(e.name).Set(0)
					releasesTotal.WithLabelValues(e.name).Inc()
					logrus.WithField("collection", e.name).Debug("lifecycle: released")
				}
			}
		}
		e.mu.Unlock()
	}
}

// Counter returns the current counter value for name, for tests.
func (r *Registry) Counter(name string) int {
	e := r.entryFor(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counter
}

// Loaded reports whether name is currently loaded, for tests.
func (r *Registry) Loaded(name string) bool {
	e := r.entryFor(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Known reports the names currently tracked by the registry.
func (r *Registry) Known() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for n := range r.entries {
		out = append(out, n)
	}
	return out
}

// Seed registers name with the registry without accessing it, so the
// Updater can track collections the store reports that have never been
// queried yet.
func (r *Registry) Seed(name string) {
	r.entryFor(name)
}
