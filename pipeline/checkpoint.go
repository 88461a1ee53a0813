package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/go-scrape-estates/models"
	"github.com/aluiziolira/go-scrape-estates/parser"
)

// CheckpointVersion is the current checkpoint schema version.
const CheckpointVersion = 1

var (
	// ErrNoCheckpoint is returned when there is nothing to resume from.
	ErrNoCheckpoint = errors.New("pipeline: no checkpoint")
)

// Checkpoint is the durable crawl cursor, written after every page.
type Checkpoint struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Province  string    `json:"province"`
	City      string    `json:"city"`
	Page      int       `json:"page"`
	ItemIndex int       `json:"item_index"`
	LastKey   string    `json:"last_key"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cursor returns the crawl position the checkpoint records.
func (c Checkpoint) Cursor() models.Cursor {
	return models.Cursor{Page: c.Page, Item: c.ItemIndex, LastKey: c.LastKey}
}

// CheckpointStore reads and atomically replaces one checkpoint file.
type CheckpointStore struct {
	path string
}

// NewCheckpointStore binds a store to path.
func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

// Path returns the checkpoint file path.
func (s *CheckpointStore) Path() string {
	return s.path
}

// Load reads the checkpoint. It returns ErrNoCheckpoint when the file is
// missing or records no key.
func (s *CheckpointStore) Load() (Checkpoint, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Checkpoint{}, ErrNoCheckpoint
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint %s: %w", s.path, err)
	}
	if cp.Version != CheckpointVersion {
		return Checkpoint{}, fmt.Errorf("checkpoint %s has version %d, want %d", s.path, cp.Version, CheckpointVersion)
	}
	if cp.LastKey == "" {
		return Checkpoint{}, ErrNoCheckpoint
	}
	return cp, nil
}

// Save writes cp through a temp file and rename so a crash never leaves a
// torn checkpoint.
func (s *CheckpointStore) Save(cp Checkpoint) error {
	cp.Version = CheckpointVersion
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := ensureDir(s.path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Clear removes the checkpoint; a missing file is not an error.
func (s *CheckpointStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// ImportLegacy reads the key of the last row of an error-save workbook (the
// text after "】" in keyColumn). It is the one-time migration from resuming
// off output files to explicit checkpoints.
func ImportLegacy(path, sheet, keyColumn string) (string, error) {
	f, err := excelize.OpenFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoCheckpoint
	}
	if err != nil {
		return "", fmt.Errorf("open legacy file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return "", fmt.Errorf("read legacy sheet %s: %w", sheet, err)
	}
	if len(rows) < 2 {
		return "", ErrNoCheckpoint
	}

	col := -1
	for i, name := range rows[0] {
		if strings.TrimSpace(name) == keyColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return "", fmt.Errorf("legacy file %s has no %q column", path, keyColumn)
	}

	last := rows[len(rows)-1]
	if col >= len(last) {
		return "", ErrNoCheckpoint
	}
	key := parser.AssetKey(last[col])
	if key == "" {
		return "", ErrNoCheckpoint
	}
	return key, nil
}
