package state

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/curvewatch/solana-sniper/internal/position"
)

// EntryType tags one write-ahead log record.
type EntryType string

const (
	EntrySeenSignature   EntryType = "seen_signature"
	EntryPositionOpened  EntryType = "position_opened"
	EntryPositionUpdated EntryType = "position_updated"
	EntryPositionClosed  EntryType = "position_closed"
	EntryTrade           EntryType = "trade"
)

// Entry is one WAL record. Seq is monotonically increasing across segments;
// recovery replays entries with Seq above the snapshot's offset.
type Entry struct {
	Seq  uint64    `json:"seq"`
	Type EntryType `json:"type"`
	Time time.Time `json:"time"`

	Signature string             `json:"signature,omitempty"`
	Position  *position.Position `json:"position,omitempty"`
	Trade     *position.Trade    `json:"trade,omitempty"`
}

const walPrefix = "wal-"

// walWriter appends JSON-lines entries to the current segment. Entries buffer
// in memory until Flush writes and syncs them.
type walWriter struct {
	dir    string
	file   *os.File
	buffer []Entry
}

func newWALWriter(dir string) (*walWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create WAL dir: %w", err)
	}
	w := &walWriter{dir: dir}
	if err := w.rotate(); err != nil {
		return nil, err
	}
	return w, nil
}

// rotate closes the current segment and starts a fresh one.
func (w *walWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close WAL segment: %w", err)
		}
	}
	name := fmt.Sprintf("%s%d.jsonl", walPrefix, time.Now().UnixNano())
	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open WAL segment: %w", err)
	}
	w.file = f
	return nil
}

// append buffers one entry and reports the buffered count.
func (w *walWriter) append(e Entry) int {
	w.buffer = append(w.buffer, e)
	return len(w.buffer)
}

// flush writes all buffered entries to the segment and syncs. The buffer is
// kept on error so the entries get another chance on the next flush.
func (w *walWriter) flush() error {
	if len(w.buffer) == 0 {
		return nil
	}
	bw := bufio.NewWriter(w.file)
	enc := json.NewEncoder(bw)
	for _, e := range w.buffer {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("failed to encode WAL entry: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write WAL: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL: %w", err)
	}
	w.buffer = w.buffer[:0]
	return nil
}

func (w *walWriter) close() error {
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

// walSegments lists segment files oldest first.
func walSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), walPrefix) && strings.HasSuffix(e.Name(), ".jsonl") {
			names = append(names, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(names)
	return names, nil
}

// readWALAfter reads every entry with Seq > after across all segments, in
// order. Malformed lines are skipped; a torn tail write must not block
// recovery of everything before it.
func readWALAfter(dir string, after uint64) ([]Entry, error) {
	segments, err := walSegments(dir)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, seg := range segments {
		f, err := os.Open(seg)
		if err != nil {
			return nil, err
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var e Entry
			if err := json.Unmarshal(line, &e); err != nil {
				continue
			}
			if e.Seq > after {
				out = append(out, e)
			}
		}
		f.Close()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// pruneWALBefore removes segments whose entries are all covered by the given
// snapshot offset. The current segment is never passed in here.
func pruneWALBefore(dir string, offset uint64, keep string) {
	segments, _ := walSegments(dir)
	for _, seg := range segments {
		if seg == keep {
			continue
		}
		if maxSeqIn(seg) <= offset {
			os.Remove(seg)
		}
	}
}

func maxSeqIn(path string) uint64 {
	f, err := os.Open(path)
	if err != nil {
		return ^uint64(0)
	}
	defer f.Close()
	var max uint64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if e.Seq > max {
			max = e.Seq
		}
	}
	return max
}
