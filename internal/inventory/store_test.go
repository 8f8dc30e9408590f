package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	userA = "0b7c6a52-6d3f-4d7e-9f2f-8b6f0b1c2d3e"
	userB = "5f1d4c2a-1e2b-4c3d-8e9f-0a1b2c3d4e5f"
)

func sampleCounts() map[string]map[string]int {
	return map[string]map[string]int{
		userA: {"arena:sword": 1, "shop:gem": 20, "shop:dust": 0},
		userB: {"shop:gem": 2},
		"c0ffee00-0000-4000-8000-000000000000": {"shop:gem": 0},
	}
}

func wantCounts() map[string]map[string]int {
	return map[string]map[string]int{
		userA: {"arena:sword": 1, "shop:gem": 20},
		userB: {"shop:gem": 2},
	}
}

// exerciseStore runs the round trip every Store must support.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Save(ctx, sampleCounts()))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, wantCounts(), got)

	// A save replaces rather than merges.
	require.NoError(t, s.Save(ctx, map[string]map[string]int{userB: {"arena:sword": 3}}))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]int{userB: {"arena:sword": 3}}, got)

	require.NoError(t, s.Save(ctx, nil))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	assert.Equal(t, 3, s.Saves())
	assert.NoError(t, s.Close())
}

func TestFileStore(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "data", DefaultFile), nil)
	exerciseStore(t, s)
	assert.NoError(t, s.HealthCheck(context.Background()))
}

func TestFileStore_documentFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	s := NewFileStore(path, nil)
	require.NoError(t, s.Save(context.Background(), map[string]map[string]int{userB: {"shop:gem": 2}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), userB+":")
	assert.Contains(t, string(data), "shop:gem: 2")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files should not be left behind")
}

func TestFileStore_Load_skipsInvalidUserIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	doc := userA + ":\n  arena:sword: 2\nnot-a-uuid:\n  arena:sword: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	core, logs := observer.New(zap.WarnLevel)
	s := NewFileStore(path, zap.New(core))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]int{userA: {"arena:sword": 2}}, got)
	assert.Equal(t, 1, logs.FilterMessage("invalid user id in inventory document").Len())
}

func TestFileStore_Load_malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("[not, a, mapping"), 0o644))

	_, err := NewFileStore(path, nil).Load(context.Background())
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "inventory.db"))
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
	assert.NoError(t, s.HealthCheck(context.Background()))
}

func TestSQLiteStore_reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.db")
	s, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), sampleCounts()))
	require.NoError(t, s.Close())

	s, err = OpenSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wantCounts(), got)
}

func TestOpenSQLiteStore_emptyPath(t *testing.T) {
	_, err := OpenSQLiteStore("")
	assert.Error(t, err)
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, "test"), mr
}

func TestRedisStore(t *testing.T) {
	s, _ := newRedisStore(t)
	defer s.Close()

	exerciseStore(t, s)
	assert.NoError(t, s.HealthCheck(context.Background()))
}

func TestRedisStore_keyLayout(t *testing.T) {
	s, mr := newRedisStore(t)
	defer s.Close()

	require.NoError(t, s.Save(context.Background(), map[string]map[string]int{userB: {"shop:gem": 2}}))

	members, err := mr.Members("test:users")
	require.NoError(t, err)
	assert.Equal(t, []string{userB}, members)
	assert.Equal(t, "2", mr.HGet("test:user:"+userB, "shop:gem"))
}

func TestRedisStore_Load_skipsBadValues(t *testing.T) {
	s, mr := newRedisStore(t)
	defer s.Close()

	_, err := mr.SAdd("test:users", userA)
	require.NoError(t, err)
	mr.HSet("test:user:"+userA, "arena:sword", "3", "shop:gem", "lots")

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]int{userA: {"arena:sword": 3}}, got)
}

func TestRedisStore_unavailable(t *testing.T) {
	s, mr := newRedisStore(t)
	defer s.Close()
	mr.Close()

	assert.Error(t, s.HealthCheck(context.Background()))
	assert.Error(t, s.Save(context.Background(), sampleCounts()))
}

func TestNewRedisStore_defaultPrefix(t *testing.T) {
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	assert.Equal(t, "coreitems:users", s.usersKey())
	assert.Equal(t, "coreitems:user:u1", s.userKey("u1"))
	_ = s.Close()
}
