package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/coreitems/model"
)

// Snapshot is an immutable view of every loaded catalog. Catalogs are kept
// in sorted key order so iteration is deterministic across reloads.
type Snapshot struct {
	version     uint64
	catalogs    map[string]*Catalog
	order       []string
	checksum    string
	definitions int
}

// Version increases by one on every Replace.
func (s *Snapshot) Version() uint64 { return s.version }

// Checksum returns the combined checksum of all catalog documents.
func (s *Snapshot) Checksum() string { return s.checksum }

// DefinitionCount returns the number of definitions across all catalogs.
func (s *Snapshot) DefinitionCount() int { return s.definitions }

// CatalogCount returns the number of catalogs.
func (s *Snapshot) CatalogCount() int { return len(s.order) }

// Catalog returns the catalog with the given name, ignoring case.
func (s *Snapshot) Catalog(name string) (*Catalog, bool) {
	c, ok := s.catalogs[strings.ToLower(name)]
	return c, ok
}

// Catalogs returns every catalog sorted by key.
func (s *Snapshot) Catalogs() []*Catalog {
	out := make([]*Catalog, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.catalogs[k])
	}
	return out
}

// ResolveItem looks up namespace, then id. A missing namespace and a missing
// item produce the same result.
func (s *Snapshot) ResolveItem(namespace, id string) (*model.ItemDefinition, bool) {
	c, ok := s.Catalog(namespace)
	if !ok {
		return nil, false
	}
	return c.Definition(id)
}

// Registry is a read-optimized, thread-safe store of all loaded catalogs.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap    atomic.Pointer[Snapshot]
	version atomic.Uint64
}

// NewRegistry creates a Registry from the given catalogs.
func NewRegistry(catalogs []*Catalog) *Registry {
	r := &Registry{}
	r.Replace(catalogs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given catalogs and returns its version. When two catalogs share a
// key the first one wins.
func (r *Registry) Replace(catalogs []*Catalog) uint64 {
	s := &Snapshot{
		version:  r.version.Add(1),
		catalogs: make(map[string]*Catalog, len(catalogs)),
	}

	var checksumParts []string

	for _, c := range catalogs {
		if c == nil {
			continue
		}
		if _, exists := s.catalogs[c.Key()]; exists {
			continue
		}
		s.catalogs[c.Key()] = c
		s.order = append(s.order, c.Key())
		s.definitions += c.Len()
		checksumParts = append(checksumParts, c.Key()+"="+c.Checksum())
	}
	sort.Strings(s.order)

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
	return s.version
}

// Snapshot returns the current immutable snapshot.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Version returns the current snapshot version.
func (r *Registry) Version() uint64 {
	return r.Snapshot().Version()
}

// Catalog returns the catalog with the given name, ignoring case.
func (r *Registry) Catalog(name string) (*Catalog, bool) {
	return r.Snapshot().Catalog(name)
}

// Catalogs returns every catalog sorted by key.
func (r *Registry) Catalogs() []*Catalog {
	return r.Snapshot().Catalogs()
}

// ResolveItem resolves a "namespace:id" pair.
func (r *Registry) ResolveItem(namespace, id string) (*model.ItemDefinition, bool) {
	return r.Snapshot().ResolveItem(namespace, id)
}

// ResolveQualified resolves "namespace:id". Input without a colon misses.
func (r *Registry) ResolveQualified(qualified string) (*model.ItemDefinition, bool) {
	ns, id, ok := strings.Cut(qualified, ":")
	if !ok {
		return nil, false
	}
	return r.ResolveItem(ns, id)
}

// Checksum returns the combined checksum of all loaded catalogs.
func (r *Registry) Checksum() string {
	return r.Snapshot().Checksum()
}

// Counts returns the number of loaded catalogs and definitions.
func (r *Registry) Counts() (catalogs, items int) {
	snap := r.Snapshot()
	return snap.CatalogCount(), snap.DefinitionCount()
}

// Loaded reports whether at least one catalog is registered.
func (r *Registry) Loaded() bool {
	return r.Snapshot().CatalogCount() > 0
}
