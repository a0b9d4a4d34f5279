package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// snapshotVersion is bumped when the on-disk layout changes.
const snapshotVersion = 1

// snapshotFile is the on-disk form of a full-state snapshot.
type snapshotFile struct {
	Version int                `json:"version"`
	States  map[string]Payload `json:"states"`
}

// Snapshotter persists full-state snapshots as JSON files. The state
// store itself does not survive a restart; a host that wants its
// state back opts in by saving a snapshot on shutdown and restoring
// it on start.
type Snapshotter struct {
	dir string
	mu  sync.Mutex
}

// NewSnapshotter ensures dir exists and returns a handler writing
// into it.
func NewSnapshotter(dir string) (*Snapshotter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Snapshotter{dir: dir}, nil
}

// Save writes the store's current state to <dir>/<name>.json. The
// write goes to a temporary file first and is swapped in with an
// atomic rename, so a crash leaves either the old snapshot or the new
// one, never a torn file.
func (p *Snapshotter) Save(name string, s *Store) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := filepath.Join(p.dir, name+".json")
	tmp := path + ".tmp"

	bytes, err := json.MarshalIndent(snapshotFile{
		Version: snapshotVersion,
		States:  s.GetAllState(),
	}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmp, bytes, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads the snapshot <dir>/<name>.json back into a state map.
func (p *Snapshotter) Load(name string) (map[string]Payload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	content, err := os.ReadFile(filepath.Join(p.dir, name+".json"))
	if err != nil {
		return nil, err
	}

	var file snapshotFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("corrupt snapshot %s: %w", name, err)
	}
	if file.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", file.Version)
	}
	return file.States, nil
}

// Restore loads a snapshot and commits every state it holds into s.
// Each state is applied through the normal write path, so listeners
// attached before Restore observe the restored values.
func (p *Snapshotter) Restore(name string, s *Store) error {
	states, err := p.Load(name)
	if err != nil {
		return err
	}
	for typ, payload := range states {
		s.SetState(typ, payload)
	}
	return nil
}
