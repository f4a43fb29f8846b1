package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/curvewatch/solana-sniper/internal/position"
)

// Snapshot is a full copy of recoverable state at one point in time.
// WALOffset is the highest WAL sequence the snapshot already includes.
type Snapshot struct {
	TakenAt        time.Time           `json:"taken_at"`
	WALOffset      uint64              `json:"wal_offset"`
	SeenSignatures []string            `json:"seen_signatures"`
	Positions      []position.Position `json:"positions"`
	Daily          position.DailyStats `json:"daily"`
}

const snapshotPrefix = "snapshot-"

// writeSnapshot persists s atomically: write to a temp file in the same
// directory, sync, then rename over the final name.
func writeSnapshot(dir string, s Snapshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	final := filepath.Join(dir, fmt.Sprintf("%s%d.json", snapshotPrefix, s.TakenAt.UnixNano()))

	tmp, err := os.CreateTemp(dir, "snapshot-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(s); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return final, nil
}

// snapshotFiles lists snapshot files newest first.
func snapshotFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), snapshotPrefix) && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, filepath.Join(dir, e.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// loadNewestSnapshot returns the newest parseable snapshot, or nil when none
// exists. A corrupt newest file falls back to the next one.
func loadNewestSnapshot(dir string) (*Snapshot, error) {
	files, err := snapshotFiles(dir)
	if err != nil {
		return nil, err
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var s Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		return &s, nil
	}
	return nil, nil
}

// pruneSnapshots keeps the newest keep files and removes the rest.
func pruneSnapshots(dir string, keep int) {
	files, err := snapshotFiles(dir)
	if err != nil || len(files) <= keep {
		return
	}
	for _, path := range files[keep:] {
		os.Remove(path)
	}
}
