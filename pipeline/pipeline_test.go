package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-estates/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]models.Record
	closed      bool
	validateErr error
}

func (mw *mockWriter) Write(records []models.Record) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	copyBatch := make([]models.Record, len(records))
	copy(copyBatch, records)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

type blockingWriter struct {
	blockCh chan struct{}
}

func (bw *blockingWriter) Write(records []models.Record) error {
	<-bw.blockCh
	return nil
}

func (bw *blockingWriter) Close() error {
	return nil
}

func (bw *blockingWriter) Validate() error {
	return nil
}

type failingWriter struct{}

func (failingWriter) Write([]models.Record) error { return errors.New("disk full") }
func (failingWriter) Close() error                { return nil }
func (failingWriter) Validate() error             { return nil }

func listing(name string) models.Record {
	return models.NewBuilder(2).
		SetString("房源名称", name).
		SetString("成交时间", "2024.01.02").
		Build()
}

func newTestPipeline(t *testing.T, w OutputWriter, batch int) *Pipeline {
	t.Helper()
	p, err := NewPipeline(context.Background(), w, Options{BatchSize: batch, KeyField: "房源名称"})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestPipelineProcessValidationAndDedup(t *testing.T) {
	writer := &mockWriter{}
	p := newTestPipeline(t, writer, 64)
	p.Start(1)

	if err := p.Process(listing("景田花园"), listing(""), listing("景田花园")); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written records = %d, want 1", got)
	}

	metrics := p.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] == 0 {
		t.Fatalf("expected invalid_record validation error")
	}
	if validation["duplicate_record"] == 0 {
		t.Fatalf("expected duplicate_record validation error")
	}
	if metrics["written_records"].(int64) != 1 {
		t.Fatalf("expected one written record, got %v", metrics["written_records"])
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	writer := &mockWriter{}
	p := newTestPipeline(t, writer, 64)
	p.Start(1)

	for i := 0; i < 65; i++ {
		if err := p.Process(listing("room-" + strconv.Itoa(i))); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("batch writes = %d, want 2", len(sizes))
	}
	if sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	writer := &mockWriter{}
	p := newTestPipeline(t, writer, 16)
	p.Start(2)

	for i := 0; i < 100; i++ {
		if err := p.Process(listing("room-" + strconv.Itoa(i+200))); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 100 {
		t.Fatalf("written records = %d, want 100", got)
	}
	if err := p.Process(listing("late")); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed after close, got %v", err)
	}
}

func TestPipelineCloseTimeout(t *testing.T) {
	writer := &blockingWriter{blockCh: make(chan struct{})}
	p := newTestPipeline(t, writer, 1)
	p.Start(1)

	if err := p.Process(listing("blocked")); err != nil {
		t.Fatalf("process: %v", err)
	}

	previousTimeout := drainTimeout
	drainTimeout = 25 * time.Millisecond
	t.Cleanup(func() {
		drainTimeout = previousTimeout
		close(writer.blockCh)
	})

	if err := p.Close(); err == nil || !errors.Is(err, ErrPipelineCloseTimeout) {
		t.Fatalf("expected close timeout error, got %v", err)
	}
}

func TestPipelineSurfacesWriteError(t *testing.T) {
	p := newTestPipeline(t, failingWriter{}, 1)
	p.Start(1)

	if err := p.Process(listing("a")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err == nil {
		t.Fatalf("expected write error from close")
	}
}

func TestPipelineContextCancelStopsIntake(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, err := NewPipeline(ctx, &mockWriter{}, Options{BufferSize: 1, KeyField: "房源名称"})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		// the buffer holds one record; with no workers the next send can only
		// be released by shutdown
		if err := p.Process(listing("x"), listing("y")); errors.Is(err, ErrPipelineClosed) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected ErrPipelineClosed after context cancel")
}
