package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/aluiziolira/go-scrape-estates/browser"
)

func TestClassifyHTTP(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: errors.New("Not Found"), statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: errors.New("Service Unavailable"), statusCode: http.StatusServiceUnavailable, expected: "other"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorType(ClassifyHTTP(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("ClassifyHTTP(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestClassifyBrowser(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "deadline", err: fmt.Errorf("wait for list: %w", context.DeadlineExceeded), expected: "timeout"},
		{name: "missing element", err: fmt.Errorf("find title: %w", browser.ErrNotFound), expected: "not_found"},
		{name: "other", err: errors.New("target closed"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorType(classifyBrowser(tt.err)); got != tt.expected {
				t.Fatalf("classifyBrowser(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
	if classifyBrowser(nil) != nil {
		t.Fatal("nil error should stay nil")
	}
}

func TestErrorTypeLabels(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{err: &ErrLocationSelect{Level: "province", Code: "gd", Attempts: 3, Err: errors.New("no option")}, expected: "location"},
		{err: &ErrPersistence{Dest: "out.xlsx", Err: errors.New("disk full")}, expected: "persistence"},
		{err: fmt.Errorf("item 3: %w", ErrUnexpected), expected: "unexpected"},
		{err: &ErrDetailUnavailable{URL: "https://paimai.example/1", Phase: PhaseExtractCore, Err: errors.New("blank")}, expected: "detail"},
		{err: &ErrDetailUnavailable{URL: "https://paimai.example/1", Phase: PhaseWait, Err: ErrTimeout{Err: context.DeadlineExceeded}}, expected: "timeout"},
	}
	for _, tt := range tests {
		if got := ErrorType(tt.err); got != tt.expected {
			t.Fatalf("ErrorType(%v) = %q, want %q", tt.err, got, tt.expected)
		}
	}
}
