// Package dataset replaces original_source's DatasetOptions enum with a
// small YAML-backed registry, in the same spirit as the teacher's
// layer/source configs under internal/service: declarative data loaded
// once at startup, looked up by name at request time.
package dataset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aeyemap/aeye/internal/apperr"
)

// Dataset is one registered corpus: a name usable as a collection-family
// prefix, plus the attributes a deployment wants recorded alongside it.
type Dataset struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Attributes  map[string]string `yaml:"attributes,omitempty"`
}

// Registry is the set of datasets a server instance knows about.
type Registry struct {
	byName map[string]Dataset
	names  []string
}

// file is the on-disk shape of the registry YAML.
type file struct {
	Datasets []Dataset `yaml:"datasets"`
}

// Load reads a dataset registry from a YAML file.
func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("dataset: parse %s: %w", path, err)
	}
	return New(f.Datasets), nil
}

// New builds a Registry directly from a dataset list, useful in tests
// and for the builder CLI which doesn't require a YAML file up front.
func New(datasets []Dataset) *Registry {
	r := &Registry{byName: make(map[string]Dataset, len(datasets))}
	for _, d := range datasets {
		r.byName[d.Name] = d
		r.names = append(r.names, d.Name)
	}
	return r
}

// Get returns the dataset registered under name, or apperr.NotFound if
// the name is unrecognized — spec.md §6.1's HTTP table has no 400 for an
// unknown collection, only 404, matching original_source's main.py
// (get_image_from_text, get_tile_data) raising HTTPException(404) when
// the collection getter can't resolve the name.
func (r *Registry) Get(name string) (Dataset, error) {
	d, ok := r.byName[name]
	if !ok {
		return Dataset{}, apperr.NewNotFound("dataset: unknown dataset %q", name)
	}
	return d, nil
}

// Names returns every registered dataset name.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Register adds or replaces a dataset entry, used by the builder CLI
// after a successful build so a freshly built dataset becomes queryable
// without a server restart.
func (r *Registry) Register(d Dataset) {
	if _, exists := r.byName[d.Name]; !exists {
		r.names = append(r.names, d.Name)
	}
	r.byName[d.Name] = d
}

// Save writes the registry back out as YAML.
func (r *Registry) Save(path string) error {
	f := file{}
	for _, name := range r.names {
		f.Datasets = append(f.Datasets, r.byName[name])
	}
	b, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("dataset: marshal: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}
