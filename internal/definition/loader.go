// Package definition loads custom item catalogs from a directory tree,
// validates and parses their entries, and provides a lookup registry with
// atomic snapshot swap.
package definition

import (
	"crypto/sha256"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pitabwire/coreitems/model"
)

// DefaultDocument is the catalog document name looked up in each directory.
const DefaultDocument = "customs.yml"

// DefaultCatalog is the catalog created when the root holds no directories.
const DefaultCatalog = "default"

//go:embed defaults/customs.yml
var defaultDocument []byte

// Loader discovers one catalog per subdirectory of a root directory, parses
// each catalog document and computes SHA-256 checksums.
type Loader struct {
	root        string
	document    string
	templateDir string
	parser      *Parser
	logger      *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithTemplateDir makes the default catalog copy its document from dir
// instead of the embedded example.
func WithTemplateDir(dir string) LoaderOption {
	return func(l *Loader) { l.templateDir = dir }
}

// NewLoader creates a Loader for root. An empty document name falls back to
// DefaultDocument.
func NewLoader(root, document string, parser *Parser, logger *zap.Logger, opts ...LoaderOption) *Loader {
	if document == "" {
		document = DefaultDocument
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if parser == nil {
		parser = NewParser(nil, logger)
	}
	l := &Loader{root: root, document: document, parser: parser, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Root returns the catalog root directory.
func (l *Loader) Root() string { return l.root }

// Load scans the root and returns every catalog that loaded. Directories
// without a document are warned and skipped; unreadable documents are
// logged and skipped. When the root holds no directories the default
// catalog is written first. Only a root that cannot be created or listed
// returns an error.
func (l *Loader) Load() ([]*Catalog, error) {
	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog root %s: %w", l.root, err)
	}

	dirs, err := l.catalogDirs()
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		dir := filepath.Join(l.root, DefaultCatalog)
		if err := l.WriteTemplate(dir); err != nil {
			return nil, err
		}
		dirs = []string{DefaultCatalog}
	}

	seen := make(map[string]bool, len(dirs))
	catalogs := make([]*Catalog, 0, len(dirs))
	for _, name := range dirs {
		path := filepath.Join(l.root, name, l.document)
		if _, err := os.Stat(path); err != nil {
			l.logger.Warn("catalog directory has no document",
				zap.String("namespace", name),
				zap.String("document", l.document),
			)
			continue
		}

		if seen[strings.ToLower(name)] {
			l.logger.Warn("duplicate catalog name, keeping the first", zap.String("namespace", name))
			continue
		}

		c, err := l.LoadFile(name, path)
		if err != nil {
			l.logger.Error("failed to load catalog", zap.String("namespace", name), zap.Error(err))
			continue
		}
		seen[c.Key()] = true
		catalogs = append(catalogs, c)
		l.logger.Info("loaded catalog", zap.String("namespace", name), zap.Int("items", c.Len()))
	}

	for _, col := range IdentityCollisions(catalogs) {
		l.logger.Warn("custom items share a cosmetic identity, interactions bind to the first",
			zap.String("material", string(col.Identity.Material)),
			zap.String("name", col.Identity.DisplayName),
			zap.Strings("items", col.Items),
		)
	}

	l.logger.Info("loaded item catalogs", zap.Int("catalogs", len(catalogs)))
	return catalogs, nil
}

// LoadFile loads and parses a single catalog document. It computes the
// SHA-256 checksum and records the source file path.
func (l *Loader) LoadFile(namespace, path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	c, err := l.parser.ParseDocument(namespace, data)
	if err != nil {
		return nil, err
	}
	c.checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	c.sourceFile = path
	return c, nil
}

// WriteTemplate creates dir and writes the example catalog document into it.
func (l *Loader) WriteTemplate(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	data := defaultDocument
	if l.templateDir != "" {
		custom, err := os.ReadFile(filepath.Join(l.templateDir, l.document))
		switch {
		case err == nil:
			data = custom
		case errors.Is(err, fs.ErrNotExist):
			l.logger.Warn("template document not found, using built-in example",
				zap.String("template_dir", l.templateDir))
		default:
			return fmt.Errorf("reading template: %w", err)
		}
	}

	path := filepath.Join(dir, l.document)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	l.logger.Info("created default catalog", zap.String("path", path))
	return nil
}

func (l *Loader) catalogDirs() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("scanning catalog root %s: %w", l.root, err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Collision lists definitions that share one cosmetic identity.
type Collision struct {
	Identity model.CosmeticIdentity
	Items    []string
}

// IdentityCollisions reports groups of definitions the resolver cannot tell
// apart. Items are listed in resolver order.
func IdentityCollisions(catalogs []*Catalog) []Collision {
	sorted := append([]*Catalog(nil), catalogs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key() < sorted[j].Key() })

	groups := make(map[model.CosmeticIdentity][]string)
	var order []model.CosmeticIdentity
	for _, c := range sorted {
		for _, d := range c.Definitions() {
			id := d.Identity()
			if _, ok := groups[id]; !ok {
				order = append(order, id)
			}
			groups[id] = append(groups[id], d.QualifiedID())
		}
	}

	var out []Collision
	for _, id := range order {
		if items := groups[id]; len(items) > 1 {
			out = append(out, Collision{Identity: id, Items: items})
		}
	}
	return out
}
