package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aeyemap/aeye/internal/model"
	"github.com/aeyemap/aeye/internal/vectorstore"
)

// suffixes are the three collection-family suffixes a dataset can grow;
// ported from original_source's Updater, which re-derives dataset names
// by stripping these same suffixes off the store's collection list.
var suffixes = []model.CollectionFamily{
	model.FamilyImageToTile,
	model.FamilyClusters,
	model.FamilyEmbeddings,
}

// Updater periodically re-enumerates the vector store's collections and
// seeds the registry with any new ones, so datasets built by another
// process (or a previous run of the builder CLI) are discoverable without
// a server restart.
type Updater struct {
	store    vectorstore.Store
	registry *Registry
	interval time.Duration
}

// NewUpdater returns an Updater that polls store every interval.
func NewUpdater(store vectorstore.Store, registry *Registry, interval time.Duration) *Updater {
	return &Updater{store: store, registry: registry, interval: interval}
}

// Run blocks, polling until ctx is canceled.
func (u *Updater) Run(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.tick(ctx)
		}
	}
}

func (u *Updater) tick(ctx context.Context) {
	names, err := u.store.ListCollections(ctx)
	if err != nil {
		logrus.WithError(err).Warn("lifecycle: updater list collections failed")
		return
	}
	for _, name := range names {
		if datasetName(name) == "" {
			continue
		}
		u.registry.Seed(name)
	}
}

// DatasetNames returns the deduplicated dataset names backing every
// collection the registry currently knows about (via Seed/the Updater),
// stripping each of its family suffix. This is the facade's
// list_collections() source per spec.md §4.5 — live Updater output, not
// the static dataset registry — so a dataset built while the server is
// already running appears here as soon as the next tick seeds it.
func (r *Registry) DatasetNames() []string {
	known := r.Known()
	seen := make(map[string]bool, len(known))
	var names []string
	for _, collection := range known {
		name := datasetName(collection)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// datasetName strips a known family suffix off a collection name,
// returning "" if name doesn't look like one of ours.
func datasetName(name string) string {
	for _, suf := range suffixes {
		if suf == "" {
			continue
		}
		if strings.HasSuffix(name, string(suf)) {
			return strings.TrimSuffix(name, string(suf))
		}
	}
	// Bare embeddings collections have no suffix; any remaining name is
	// assumed to be one unless it's empty.
	if name != "" {
		return name
	}
	return ""
}
