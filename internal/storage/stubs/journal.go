package stubs

import (
	"context"
	"sort"
	"sync"
	"time"

	"bookshelf/internal/models"
)

// MockJournal keeps rental events in memory
type MockJournal struct {
	mu     sync.RWMutex
	events []models.RentalEvent
}

// NewMockJournal creates an empty in-memory journal
func NewMockJournal() *MockJournal {
	return &MockJournal{}
}

func (j *MockJournal) Initialize(ctx context.Context) error { return nil }

// RecordRentalEvent appends the event
func (j *MockJournal) RecordRentalEvent(ctx context.Context, event models.RentalEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.events = append(j.events, event)
	return nil
}

// Events returns a copy of the recorded events
func (j *MockJournal) Events() []models.RentalEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return append([]models.RentalEvent(nil), j.events...)
}

// TopRentedBooks counts rented events per book since the given time
func (j *MockJournal) TopRentedBooks(ctx context.Context, limit int, since time.Time) ([]models.BookStat, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	counts := make(map[int64]*models.BookStat)
	for _, e := range j.events {
		if e.Kind != models.EventRented || e.At.Before(since) {
			continue
		}
		stat, ok := counts[e.BookID]
		if !ok {
			stat = &models.BookStat{BookID: e.BookID, BookTitle: e.BookTitle}
			counts[e.BookID] = stat
		}
		stat.RentalCount++
	}

	stats := make([]models.BookStat, 0, len(counts))
	for _, s := range counts {
		stats = append(stats, *s)
	}

	// Sort by count descending, then by title
	sort.Slice(stats, func(i, k int) bool {
		if stats[i].RentalCount != stats[k].RentalCount {
			return stats[i].RentalCount > stats[k].RentalCount
		}
		return stats[i].BookTitle < stats[k].BookTitle
	})

	if limit > 0 && limit < len(stats) {
		stats = stats[:limit]
	}
	return stats, nil
}

// Close does nothing for mock journal
func (j *MockJournal) Close() error {
	return nil
}
