package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/strata/internal/storage/types"
)

// entryRow is one archive record in parquet format. Deletes are written
// as tombstone rows so a segment file is never rewritten in place.
type entryRow struct {
	Key         string `parquet:"key,zstd"`
	Envelope    []byte `parquet:"envelope,zstd"`
	Deleted     bool   `parquet:"deleted"`
	WrittenAtMs int64  `parquet:"written_at_ms"`
}

// Archive is the slowest tier: append-only parquet segment files with an
// in-memory key index rebuilt from the segments at open. Suited to bulk,
// rarely-read data that outgrew the structured tier.
type Archive struct {
	mu  sync.RWMutex
	dir string

	// index maps key -> location of its newest row.
	index map[string]indexEntry
	seq   atomic.Int64
}

type indexEntry struct {
	path    string
	deleted bool
}

// NewArchive opens an archive rooted at dir, scanning existing segments
// to rebuild the key index.
func NewArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	a := &Archive{
		dir:   dir,
		index: make(map[string]indexEntry),
	}
	if err := a.loadIndex(); err != nil {
		return nil, err
	}
	return a, nil
}

// Tier returns TierArchive.
func (a *Archive) Tier() types.Tier { return types.TierArchive }

// loadIndex scans segments oldest-first so newer rows win.
func (a *Archive) loadIndex() error {
	paths, err := filepath.Glob(filepath.Join(a.dir, "seg-*.parquet"))
	if err != nil {
		return fmt.Errorf("list segments: %w", err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		rows, err := readSegment(path)
		if err != nil {
			return fmt.Errorf("read segment %s: %w", path, err)
		}
		for i := range rows {
			a.index[rows[i].Key] = indexEntry{path: path, deleted: rows[i].Deleted}
		}
	}
	return nil
}

// writeSegment appends one row as a new segment file.
func (a *Archive) writeSegment(row entryRow) (string, error) {
	name := fmt.Sprintf("seg-%d-%d.parquet", time.Now().UnixNano(), a.seq.Add(1))
	path := filepath.Join(a.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create segment: %w", err)
	}

	writer := parquet.NewGenericWriter[entryRow](f, parquet.Compression(&parquet.Zstd))
	if _, err := writer.Write([]entryRow{row}); err != nil {
		writer.Close()
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write segment: %w", err)
	}
	if err := writer.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("close segment: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close segment file: %w", err)
	}
	return path, nil
}

// readSegment reads every row of a segment file.
func readSegment(path string) ([]entryRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := parquet.NewGenericReader[entryRow](f)
	defer reader.Close()

	rows := make([]entryRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && n == 0 {
		return nil, err
	}
	return rows[:n], nil
}

// Get returns the newest non-tombstone envelope for key.
func (a *Archive) Get(_ context.Context, key string) (types.Envelope, bool, error) {
	a.mu.RLock()
	loc, ok := a.index[key]
	a.mu.RUnlock()

	if !ok || loc.deleted {
		return types.Envelope{}, false, nil
	}

	rows, err := readSegment(loc.path)
	if err != nil {
		return types.Envelope{}, false, fmt.Errorf("read %s: %w", key, err)
	}

	// Newest occurrence within the segment wins.
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Key != key {
			continue
		}
		if rows[i].Deleted {
			return types.Envelope{}, false, nil
		}
		env, err := types.UnmarshalEnvelope(rows[i].Envelope)
		if err != nil {
			return types.Envelope{}, false, fmt.Errorf("decode %s: %w", key, err)
		}
		return env, true, nil
	}

	return types.Envelope{}, false, nil
}

// Set appends the envelope as a new segment and updates the index.
func (a *Archive) Set(_ context.Context, key string, env types.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	path, err := a.writeSegment(entryRow{
		Key:         key,
		Envelope:    data,
		WrittenAtMs: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	a.index[key] = indexEntry{path: path}
	return nil
}

// Delete appends a tombstone row for key.
func (a *Archive) Delete(_ context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	loc, ok := a.index[key]
	if !ok || loc.deleted {
		return false, nil
	}

	path, err := a.writeSegment(entryRow{
		Key:         key,
		Deleted:     true,
		WrittenAtMs: time.Now().UnixMilli(),
	})
	if err != nil {
		return false, err
	}

	a.index[key] = indexEntry{path: path, deleted: true}
	return true, nil
}

// Exists reports whether key has a live (non-tombstone) row.
func (a *Archive) Exists(_ context.Context, key string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	loc, ok := a.index[key]
	return ok && !loc.deleted, nil
}

// Close releases nothing; segments are closed per operation.
func (a *Archive) Close() error { return nil }
