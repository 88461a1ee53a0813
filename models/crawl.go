package models

import "time"

// StopReason names why a page loop terminated.
type StopReason uint8

const (
	StopNone StopReason = iota
	StopMaxPages
	StopNoItems
	StopCutoff
	StopPaginationStall
	StopUserAbort
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopMaxPages:
		return "max_pages_reached"
	case StopNoItems:
		return "no_items_found"
	case StopCutoff:
		return "cutoff_time_reached"
	case StopPaginationStall:
		return "consecutive_failure_limit_reached"
	case StopUserAbort:
		return "user_abort"
	default:
		return "unknown"
	}
}

// StopCondition records which condition ended a crawl and where.
type StopCondition struct {
	Reason StopReason
	Page   int
	Item   int
	Detail string
}

// Stopped reports whether a condition fired.
func (s StopCondition) Stopped() bool {
	return s.Reason != StopNone
}

// Cursor is the position of a crawl: page, item index within the page and the
// primary key of the last record processed.
type Cursor struct {
	Page    int
	Item    int
	LastKey string
}

// CrawlResult holds the overall result of a crawl run.
type CrawlResult struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Records   []Record
	// Saved counts the leading Records already written to Output.
	Saved        int
	PagesVisited []int
	Extracted    int
	Skipped      int
	Failed       int
	Stop         StopCondition
	Output       string
	ErrorOutput  string
	ErrorsByType map[string]int
}
