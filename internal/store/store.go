// Package store defines storage interfaces for persisting normalized hourly
// frames and the bookkeeping of the NSRDB fetcher and batch tools.
package store

import (
	"context"
	"errors"
	"time"

	"gridetl/internal/domain"
	"gridetl/internal/frame"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// FrameStore persists and retrieves hourly frames.
type FrameStore interface {
	// WriteFrame merges a frame into the dataset. Cells already stored for
	// the same (column, timestamp) are replaced.
	WriteFrame(ctx context.Context, ds domain.Dataset, f *frame.Frame) error

	// ReadFrame returns the dataset's rows within [start, end].
	ReadFrame(ctx context.Context, ds domain.Dataset, start, end time.Time) (*frame.Frame, error)

	// ListYears returns the years that hold data for the dataset.
	ListYears(ctx context.Context, ds domain.Dataset) ([]int, error)
}

// RequestLedger tracks NSRDB requests across the queue and download steps.
type RequestLedger interface {
	// SaveRequest inserts or replaces the row for (year, region, city).
	SaveRequest(ctx context.Context, r *domain.NSRDBRequest) error

	// GetRequest retrieves a single request.
	GetRequest(ctx context.Context, year int, region, city string) (*domain.NSRDBRequest, error)

	// ListRequests returns requests with the given status, or all when
	// status is empty.
	ListRequests(ctx context.Context, status domain.RequestStatus) ([]domain.NSRDBRequest, error)
}

// RunStore records batch tool invocations.
type RunStore interface {
	// StartRun inserts a run and returns its ID.
	StartRun(ctx context.Context, tool string) (int64, error)

	// FinishRun stamps the end of a run with its counts and error, if any.
	FinishRun(ctx context.Context, id int64, items, failures int, runErr error) error

	// ListRuns returns the most recent runs of a tool, up to limit.
	ListRuns(ctx context.Context, tool string, limit int) ([]domain.Run, error)
}
