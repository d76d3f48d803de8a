package backend

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xtxerr/strata/internal/storage/types"
)

// Local is the persistent local tier: one JSON envelope file per key in
// a flat directory. Writes go through a temp file and rename so a crash
// never leaves a half-written envelope behind.
type Local struct {
	mu  sync.RWMutex
	dir string
}

// NewLocal creates a local backend rooted at dir.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

// Tier returns TierLocal.
func (l *Local) Tier() types.Tier { return types.TierLocal }

// path maps a key to its envelope file. Keys are hashed so arbitrary
// key strings never escape the directory or exceed filename limits.
func (l *Local) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(l.dir, fmt.Sprintf("%x.json", sum))
}

// Get reads the envelope file for key.
func (l *Local) Get(_ context.Context, key string) (types.Envelope, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	data, err := os.ReadFile(l.path(key))
	if os.IsNotExist(err) {
		return types.Envelope{}, false, nil
	}
	if err != nil {
		return types.Envelope{}, false, fmt.Errorf("read %s: %w", key, err)
	}

	env, err := types.UnmarshalEnvelope(data)
	if err != nil {
		return types.Envelope{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return env, true, nil
}

// Set writes the envelope file for key atomically.
func (l *Local) Set(_ context.Context, key string, env types.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

// Delete removes the envelope file for key.
func (l *Local) Delete(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := os.Remove(l.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return true, nil
}

// Exists reports whether an envelope file exists for key.
func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, err := os.Stat(l.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close releases nothing; files are closed per operation.
func (l *Local) Close() error { return nil }
