package definition

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return data
}

func newTestLoader(t *testing.T, root string) (*Loader, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	return NewLoader(root, "", NewParser(MustValidator(), logger), logger), logs
}

func TestLoader_Load(t *testing.T) {
	l, logs := newTestLoader(t, "testdata/catalogs")
	catalogs, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(catalogs) != 2 {
		t.Fatalf("catalogs = %d, want 2 (arena, Tools)", len(catalogs))
	}
	names := map[string]bool{}
	for _, c := range catalogs {
		names[c.Name()] = true
		if c.Checksum() == "" {
			t.Errorf("catalog %s has no checksum", c.Name())
		}
	}
	if !names["arena"] || !names["Tools"] {
		t.Errorf("names = %v, want arena and Tools", names)
	}
	if logs.FilterMessage("catalog directory has no document").Len() != 1 {
		t.Error("expected a warning for the directory without a document")
	}
}

func TestLoader_LoadFile(t *testing.T) {
	l, _ := newTestLoader(t, "testdata/catalogs")
	c, err := l.LoadFile("Tools", "testdata/catalogs/Tools/customs.yml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if c.Name() != "Tools" || c.Key() != "tools" {
		t.Errorf("Name/Key = %q/%q", c.Name(), c.Key())
	}
	if c.SourceFile() != "testdata/catalogs/Tools/customs.yml" {
		t.Errorf("SourceFile = %q", c.SourceFile())
	}
	d, ok := c.Definition("pickaxe")
	if !ok || !d.Glowing {
		t.Errorf("pickaxe = %+v, %v", d, ok)
	}
}

func TestLoader_LoadFile_not_found(t *testing.T) {
	l, _ := newTestLoader(t, "testdata/catalogs")
	if _, err := l.LoadFile("x", "testdata/nonexistent.yml"); err == nil {
		t.Fatal("LoadFile() with missing file should return error")
	}
}

func TestLoader_Load_skipsUnparseableCatalog(t *testing.T) {
	l, logs := newTestLoader(t, "testdata/broken")
	catalogs, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(catalogs) != 0 {
		t.Errorf("catalogs = %d, want 0", len(catalogs))
	}
	if logs.FilterMessage("failed to load catalog").Len() != 1 {
		t.Error("expected an error log for the broken catalog")
	}
}

func TestLoader_Load_createsDefaultCatalog(t *testing.T) {
	root := filepath.Join(t.TempDir(), "customs")
	l, _ := newTestLoader(t, root)

	catalogs, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(catalogs) != 1 || catalogs[0].Name() != DefaultCatalog {
		t.Fatalf("catalogs = %v, want the default catalog", catalogs)
	}
	if catalogs[0].Len() != 3 {
		t.Errorf("default catalog items = %d, want 3", catalogs[0].Len())
	}
	if _, err := os.Stat(filepath.Join(root, DefaultCatalog, DefaultDocument)); err != nil {
		t.Errorf("default document not written: %v", err)
	}

	// A second load finds the directory written the first time.
	again, err := l.Load()
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if len(again) != 1 || again[0].Checksum() != catalogs[0].Checksum() {
		t.Error("second load should read the same default catalog")
	}
}

func TestLoader_WriteTemplate_fromTemplateDir(t *testing.T) {
	tmpl := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpl, DefaultDocument), []byte("gem:\n  material: EMERALD\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	root := t.TempDir()
	l := NewLoader(root, "", nil, nil, WithTemplateDir(tmpl))

	catalogs, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(catalogs) != 1 || catalogs[0].Len() != 1 {
		t.Fatalf("catalogs = %v, want one catalog with the template item", catalogs)
	}
	if _, ok := catalogs[0].Definition("gem"); !ok {
		t.Error("template item gem should load")
	}
}

func TestLoader_customDocumentName(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "shop")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "items.yaml"), []byte("coin:\n  material: GOLD_NUGGET\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLoader(root, "items.yaml", nil, nil)
	catalogs, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(catalogs) != 1 || catalogs[0].Len() != 1 {
		t.Errorf("catalogs = %v", catalogs)
	}
}

func TestIdentityCollisions(t *testing.T) {
	p := NewParser(nil, nil)
	a, _ := p.ParseDocument("a", []byte("x:\n  material: STONE\n  name: Rock\ny:\n  material: STONE\n"))
	b, _ := p.ParseDocument("b", []byte("z:\n  material: STONE\n  name: Rock\n"))

	cols := IdentityCollisions([]*Catalog{b, a})
	if len(cols) != 1 {
		t.Fatalf("collisions = %v, want 1", cols)
	}
	if got := cols[0].Items; len(got) != 2 || got[0] != "a:x" || got[1] != "b:z" {
		t.Errorf("Items = %v, want [a:x b:z]", got)
	}
}
