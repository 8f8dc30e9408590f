package inventory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the document name used by the file store.
const DefaultFile = "player_items.yml"

// FileStore keeps counts in a single YAML document mapping user ids to
// item counts.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if path == "" {
		path = DefaultFile
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the document path.
func (s *FileStore) Path() string { return s.path }

// Load reads the document. A missing document loads as empty. Keys that are
// not user UUIDs are warned and skipped.
func (s *FileStore) Load(_ context.Context) (map[string]map[string]int, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]map[string]int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: reading %s: %w", s.path, err)
	}

	var raw map[string]map[string]int
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("inventory: parsing %s: %w", s.path, err)
	}

	out := make(map[string]map[string]int, len(raw))
	for user, items := range raw {
		id, err := uuid.Parse(user)
		if err != nil {
			s.logger.Warn("invalid user id in inventory document", zap.String("user_id", user))
			continue
		}
		if p := positive(items); len(p) > 0 {
			out[id.String()] = p
		}
	}
	s.logger.Info("loaded inventory data", zap.Int("users", len(out)))
	return out, nil
}

// Save writes all to a temporary file and renames it over the document.
func (s *FileStore) Save(_ context.Context, all map[string]map[string]int) error {
	doc := make(map[string]map[string]int, len(all))
	for user, items := range all {
		if p := positive(items); len(p) > 0 {
			doc[user] = p
		}
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("inventory: encoding: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("inventory: creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("inventory: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("inventory: writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("inventory: closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("inventory: replacing %s: %w", s.path, err)
	}
	return nil
}

// HealthCheck verifies the document directory is reachable.
func (s *FileStore) HealthCheck(_ context.Context) error {
	dir := filepath.Dir(s.path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("inventory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("inventory: %s is not a directory", dir)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
