// Package journal records opportunities and trade results: daily JSON-lines
// files on disk, mirrored to a Redis stream and Postgres when configured, and
// archived to object storage once a day is closed.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/sugawarayuuta/sonnet"
)

// Journal kinds, used as file name prefixes.
const (
	KindOpportunities = "opportunities"
	KindTrades        = "trades"
)

const dayLayout = "20060102"

var fileNameRE = regexp.MustCompile(`^([a-z]+)_(\d{8})\.jsonl$`)

// FileName returns the journal file name for kind on the UTC day of t.
func FileName(kind string, t time.Time) string {
	return fmt.Sprintf("%s_%s.jsonl", kind, t.UTC().Format(dayLayout))
}

type dayFile struct {
	day string
	f   *os.File
}

// FileJournal appends JSON lines to one file per kind and UTC day. It is safe
// for concurrent use.
type FileJournal struct {
	dir   string
	mu    sync.Mutex
	files map[string]*dayFile
}

// NewFileJournal creates dir if needed and returns a journal writing into it.
func NewFileJournal(dir string) (*FileJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir %s: %w", dir, err)
	}
	return &FileJournal{dir: dir, files: make(map[string]*dayFile)}, nil
}

// Dir returns the journal directory.
func (j *FileJournal) Dir() string { return j.dir }

// Append writes v as one JSON line to the kind's file for the day of at.
func (j *FileJournal) Append(kind string, at time.Time, v any) error {
	line, err := sonnet.Marshal(v)
	if err != nil {
		return fmt.Errorf("journal: encode %s entry: %w", kind, err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := j.fileFor(kind, at.UTC().Format(dayLayout))
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("journal: write %s: %w", f.Name(), err)
	}
	return nil
}

// fileFor returns the open file for kind and day, rotating when the day
// changed. Callers hold j.mu.
func (j *FileJournal) fileFor(kind, day string) (*os.File, error) {
	if cur, ok := j.files[kind]; ok {
		if cur.day == day {
			return cur.f, nil
		}
		_ = cur.f.Close()
		delete(j.files, kind)
	}
	path := filepath.Join(j.dir, fmt.Sprintf("%s_%s.jsonl", kind, day))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	j.files[kind] = &dayFile{day: day, f: f}
	return f, nil
}

// ClosedFiles lists journal files whose UTC day is before the day of now,
// oldest first.
func (j *FileJournal) ClosedFiles(now time.Time) ([]string, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("journal: read dir %s: %w", j.dir, err)
	}
	today := now.UTC().Format(dayLayout)
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileNameRE.FindStringSubmatch(e.Name())
		if m == nil || m[2] >= today {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Slice(out, func(a, b int) bool {
		da, db := fileNameRE.FindStringSubmatch(out[a])[2], fileNameRE.FindStringSubmatch(out[b])[2]
		if da != db {
			return da < db
		}
		return out[a] < out[b]
	})
	return out, nil
}

// Close closes every open file.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var firstErr error
	for kind, df := range j.files {
		if err := df.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("journal: close %s: %w", kind, err)
		}
		delete(j.files, kind)
	}
	return firstErr
}
