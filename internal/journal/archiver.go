package journal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alanyoungcy/triarbot/internal/domain"
)

// multipartThreshold is the file size above which uploads go through the
// multipart manager.
const multipartThreshold int64 = 16 * 1024 * 1024

// archivedDir is the journal subdirectory closed files move to after upload.
const archivedDir = "archived"

// BlobStore is the object storage the archiver uploads to.
type BlobStore interface {
	domain.BlobWriter
	Exists(ctx context.Context, name string) (bool, error)
}

// Archiver uploads closed daily journal files and moves them aside locally.
type Archiver struct {
	files  *FileJournal
	blobs  BlobStore
	now    func() time.Time
	logger *slog.Logger
}

// NewArchiver creates an Archiver for the given journal and store.
func NewArchiver(files *FileJournal, blobs BlobStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		files:  files,
		blobs:  blobs,
		now:    time.Now,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ObjectName maps a journal file name to its object key, partitioned by
// year and month: "trades_20260102.jsonl" becomes "2026/01/trades_20260102.jsonl".
func ObjectName(file string) (string, error) {
	m := fileNameRE.FindStringSubmatch(file)
	if m == nil {
		return "", fmt.Errorf("journal: unexpected file name %q", file)
	}
	day := m[2]
	return fmt.Sprintf("%s/%s/%s", day[:4], day[4:6], file), nil
}

// ArchiveClosed uploads every closed file and returns how many were
// archived. A file already present remotely is only moved aside.
func (a *Archiver) ArchiveClosed(ctx context.Context) (int, error) {
	names, err := a.files.ClosedFiles(a.now())
	if err != nil {
		return 0, err
	}
	done := 0
	for _, name := range names {
		if err := a.archiveOne(ctx, name); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

func (a *Archiver) archiveOne(ctx context.Context, name string) error {
	key, err := ObjectName(name)
	if err != nil {
		return err
	}
	local := filepath.Join(a.files.Dir(), name)

	exists, err := a.blobs.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("journal: archive %s: %w", name, err)
	}
	if !exists {
		if err := a.upload(ctx, local, key); err != nil {
			return err
		}
	}

	dst := filepath.Join(a.files.Dir(), archivedDir)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("journal: create %s: %w", dst, err)
	}
	if err := os.Rename(local, filepath.Join(dst, name)); err != nil {
		return fmt.Errorf("journal: move %s: %w", name, err)
	}

	a.logger.InfoContext(ctx, "journal file archived",
		slog.String("file", name),
		slog.String("key", key),
		slog.Bool("already_remote", exists),
	)
	return nil
}

func (a *Archiver) upload(ctx context.Context, local, key string) error {
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", local, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("journal: stat %s: %w", local, err)
	}
	if info.Size() > multipartThreshold {
		err = a.blobs.PutMultipart(ctx, key, f, multipartThreshold/2)
	} else {
		err = a.blobs.Put(ctx, key, f, "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("journal: upload %s: %w", key, err)
	}
	return nil
}

// Run archives once at start and then every interval until ctx is done.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	a.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Archiver) tick(ctx context.Context) {
	n, err := a.ArchiveClosed(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "journal archive failed",
			slog.Int("archived", n),
			slog.String("error", err.Error()),
		)
	}
}
