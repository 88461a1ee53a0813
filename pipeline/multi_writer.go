package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-estates/models"
)

// MultiWriter fans records out to several writers, e.g. a workbook and a
// JSONL file of the same rows.
type MultiWriter struct {
	writers []OutputWriter
	mu      sync.Mutex
}

// NewMultiWriter opens one appending writer per path. Writers opened before a
// failure are closed.
func NewMultiWriter(sheet string, paths ...string) (*MultiWriter, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("multi writer needs at least one path")
	}
	mw := &MultiWriter{}
	for _, path := range paths {
		w, err := NewWriter(path, sheet)
		if err != nil {
			mw.Close()
			return nil, fmt.Errorf("open writer for %s: %w", path, err)
		}
		mw.writers = append(mw.writers, w)
	}
	return mw, nil
}

// Write writes records to every writer, stopping at the first failure.
func (mw *MultiWriter) Write(records []models.Record) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for i, w := range mw.writers {
		if err := w.Write(records); err != nil {
			return fmt.Errorf("writer %d: %w", i, err)
		}
	}
	return nil
}

// Close closes every writer.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for i, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every writer.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for i, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("validate writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
