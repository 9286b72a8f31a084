// Package testutil provides shared test fixtures: a scratch BadgerDB
// store and config wired for isolation between test runs. Grounded on
// the teacher's testutil/testenv.go.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/coldchain/ledger/internal/storage"
	"github.com/coldchain/ledger/pkg/config"
)

// TestEnvironment bundles a temp-dir-backed store and config for a single
// test.
type TestEnvironment struct {
	T       *testing.T
	TempDir string
	Config  *config.Config
	Store   storage.Store
}

// NewTestEnvironment opens a fresh BadgerDB store under a new temp
// directory.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "ledger-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Node.DataDir = tempDir
	cfg.Storage.Path = filepath.Join(tempDir, "data")

	db, err := storage.NewBadgerStore(cfg.Storage.Path)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("create BadgerDB store: %v", err)
	}

	return &TestEnvironment{T: t, TempDir: tempDir, Config: cfg, Store: db}
}

// Close releases the store and removes the temp directory.
func (env *TestEnvironment) Close() {
	env.T.Helper()
	if env.Store != nil {
		if err := env.Store.Close(); err != nil {
			env.T.Logf("error closing store: %v", err)
		}
	}
	if env.TempDir != "" {
		if err := os.RemoveAll(env.TempDir); err != nil {
			env.T.Logf("error removing temp dir: %v", err)
		}
	}
}

// MustSet sets a key-value pair, failing the test on error.
func (env *TestEnvironment) MustSet(ctx context.Context, key, value []byte) {
	env.T.Helper()
	if err := env.Store.Set(ctx, key, value); err != nil {
		env.T.Fatalf("set key %q: %v", key, err)
	}
}

// MustGet gets a value, failing the test on error.
func (env *TestEnvironment) MustGet(ctx context.Context, key []byte) []byte {
	env.T.Helper()
	value, err := env.Store.Get(ctx, key)
	if err != nil {
		env.T.Fatalf("get key %q: %v", key, err)
	}
	return value
}

// MustNotExist verifies that a key does not exist.
func (env *TestEnvironment) MustNotExist(ctx context.Context, key []byte) {
	env.T.Helper()
	has, err := env.Store.Has(ctx, key)
	if err != nil {
		env.T.Fatalf("check key %q: %v", key, err)
	}
	if has {
		env.T.Fatalf("key %q exists but should not", key)
	}
}
