package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aluiziolira/go-scrape-estates/browser"
)

var (
	// ErrUnexpected marks a recovered panic.
	ErrUnexpected = errors.New("scraper: unexpected failure")
	// ErrLoginRequired is returned when the login wall is not passed in time.
	ErrLoginRequired = errors.New("scraper: login not completed")
)

// ErrTimeout indicates a bounded wait or request ran out of time.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates a forbidden response (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing resource: an HTTP 404 or an element that
// never rendered.
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrLocationSelect is fatal: the province or city picker could not be set.
type ErrLocationSelect struct {
	Level    string
	Code     string
	Attempts int
	Err      error
}

func (e *ErrLocationSelect) Error() string {
	return fmt.Sprintf("select %s %q after %d attempts: %v", e.Level, e.Code, e.Attempts, e.Err)
}

func (e *ErrLocationSelect) Unwrap() error {
	return e.Err
}

// ErrDetailUnavailable means one detail page yielded no record.
type ErrDetailUnavailable struct {
	URL   string
	Phase Phase
	Err   error
}

func (e *ErrDetailUnavailable) Error() string {
	return fmt.Sprintf("detail %s unavailable at %s: %v", e.URL, e.Phase, e.Err)
}

func (e *ErrDetailUnavailable) Unwrap() error {
	return e.Err
}

// ErrPersistence wraps a failed write to a destination.
type ErrPersistence struct {
	Dest string
	Err  error
}

func (e *ErrPersistence) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Dest, e.Err)
}

func (e *ErrPersistence) Unwrap() error {
	return e.Err
}

// ErrorType maps an error to a metric label.
func ErrorType(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var location *ErrLocationSelect
	if errors.As(err, &location) {
		return "location"
	}
	var persist *ErrPersistence
	if errors.As(err, &persist) {
		return "persistence"
	}
	if errors.Is(err, ErrUnexpected) {
		return "unexpected"
	}
	var detail *ErrDetailUnavailable
	if errors.As(err, &detail) {
		return "detail"
	}
	return "other"
}

// ClassifyHTTP wraps a transport error or error status in its typed error.
func ClassifyHTTP(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}
	return err
}

// classifyBrowser wraps driver errors so they carry a metric label.
func classifyBrowser(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout{Err: err}
	case errors.Is(err, browser.ErrNotFound):
		return ErrNotFound{Err: err}
	}
	return err
}
