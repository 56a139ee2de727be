package gather

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one batch pass. It returns when the pass is complete or
	// ctx is cancelled.
	Run(ctx context.Context) error
}

// Tally counts processed and failed items across goroutines.
type Tally struct {
	items    atomic.Int64
	failures atomic.Int64
}

// Ok records one processed item.
func (t *Tally) Ok() { t.items.Add(1) }

// Fail records one failed item.
func (t *Tally) Fail() { t.failures.Add(1) }

// Items returns the number of processed items.
func (t *Tally) Items() int { return int(t.items.Load()) }

// Failures returns the number of failed items.
func (t *Tally) Failures() int { return int(t.failures.Load()) }

// ParseYears parses a year list such as "2021,2023" or "2021-2023" (or a
// mix of both). The result is sorted and free of duplicates.
func ParseYears(s string) ([]int, error) {
	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("year %q: %w", part, err)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("year %q: %w", part, err)
			}
		}
		if last < first {
			return nil, fmt.Errorf("year range %q is reversed", part)
		}
		for y := first; y <= last; y++ {
			seen[y] = true
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("no years in %q", s)
	}

	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}
