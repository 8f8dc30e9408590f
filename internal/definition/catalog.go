package definition

import (
	"sort"
	"strings"

	"github.com/pitabwire/coreitems/model"
)

// Catalog is one namespace of item definitions loaded from a single
// document. A Catalog is never mutated after it has been built.
type Catalog struct {
	name       string
	sourceFile string
	checksum   string

	definitions map[string]*model.ItemDefinition
	order       []string
}

func newCatalog(name string) *Catalog {
	return &Catalog{name: name, definitions: make(map[string]*model.ItemDefinition)}
}

// NewCatalog builds a catalog from already parsed definitions. Identifiers
// are compared case-insensitively and the first occurrence wins.
func NewCatalog(name string, defs ...*model.ItemDefinition) *Catalog {
	c := newCatalog(name)
	for _, d := range defs {
		c.add(d)
	}
	c.seal()
	return c
}

func (c *Catalog) add(d *model.ItemDefinition) bool {
	key := strings.ToLower(d.ID)
	if _, exists := c.definitions[key]; exists {
		return false
	}
	c.definitions[key] = d
	return true
}

// seal fixes the enumeration order once all definitions are in.
func (c *Catalog) seal() {
	c.order = make([]string, 0, len(c.definitions))
	for k := range c.definitions {
		c.order = append(c.order, k)
	}
	sort.Strings(c.order)
}

// Name returns the catalog name with its original spelling.
func (c *Catalog) Name() string { return c.name }

// Key returns the lower-cased lookup key.
func (c *Catalog) Key() string { return strings.ToLower(c.name) }

// SourceFile returns the document the catalog was loaded from.
func (c *Catalog) SourceFile() string { return c.sourceFile }

// Checksum returns the sha256 of the source document.
func (c *Catalog) Checksum() string { return c.checksum }

// Len returns the number of definitions.
func (c *Catalog) Len() int { return len(c.definitions) }

// Definition looks up an item by identifier, ignoring case.
func (c *Catalog) Definition(id string) (*model.ItemDefinition, bool) {
	d, ok := c.definitions[strings.ToLower(id)]
	return d, ok
}

// Definitions returns every definition sorted by identifier.
func (c *Catalog) Definitions() []*model.ItemDefinition {
	out := make([]*model.ItemDefinition, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.definitions[k])
	}
	return out
}
