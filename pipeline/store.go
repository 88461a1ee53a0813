package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aluiziolira/go-scrape-estates/models"
)

// Destination names a tabular output: a file and, for workbooks, a sheet.
type Destination struct {
	File  string
	Sheet string
}

func (d Destination) String() string {
	if d.Sheet == "" {
		return d.File
	}
	return d.File + "#" + d.Sheet
}

// StoreOptions configures a FileStore.
type StoreOptions struct {
	UserAgent       string
	DownloadTimeout time.Duration
	DownloadRetries int
	Logger          *slog.Logger
}

// FileStore persists records to local files and downloads binary artifacts.
// Calls for the same destination append.
type FileStore struct {
	client *resty.Client
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileStore builds a store with an HTTP client for downloads.
func NewFileStore(opts StoreOptions) *FileStore {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.DownloadTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(opts.DownloadRetries).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5 * time.Second)
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	return &FileStore{client: client, logger: logger}
}

// Client exposes the HTTP client, mainly so tests can mock its transport.
func (s *FileStore) Client() *resty.Client {
	return s.client
}

// AppendRecords appends records to dest. A failure is returned, never swallowed.
func (s *FileStore) AppendRecords(ctx context.Context, records []models.Record, dest Destination) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := NewWriter(dest.File, dest.Sheet)
	if err != nil {
		return fmt.Errorf("open %s: %w", dest, err)
	}
	if err := w.Write(records); err != nil {
		w.Close()
		return fmt.Errorf("append %d records to %s: %w", len(records), dest, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}
	s.logger.Debug("records appended", slog.String("destination", dest.String()), slog.Int("count", len(records)))
	return nil
}

// EnsureFolder creates path (and parents) and returns it.
func (s *FileStore) EnsureFolder(path string) (string, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create folder %q: %w", path, err)
	}
	return path, nil
}

// DownloadBinary fetches url into dest. A partial file is removed on failure.
func (s *FileStore) DownloadBinary(ctx context.Context, url, dest string) error {
	if err := ensureDir(dest); err != nil {
		return err
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetOutput(dest).
		Get(url)
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("download %s: %w", url, err)
	}
	if resp.IsError() {
		os.Remove(dest)
		return fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode())
	}
	return nil
}

// SafeName turns a record key into a single path segment.
func SafeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", "\n", " ", "\r", " ",
	).Replace(name)
	name = strings.Trim(name, ". ")
	if name == "" {
		return "_"
	}
	if r := []rune(name); len(r) > 120 {
		name = string(r[:120])
	}
	return filepath.Clean(name)
}
