package ch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clickhouseTC "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"bookshelf/internal/models"
)

// setupTestJournal creates a test ClickHouse instance using testcontainers
func setupTestJournal(t *testing.T) (*ClickHouseJournal, func()) {
	if testing.Short() {
		t.Skip("skipping ClickHouse container test in short mode")
	}
	ctx := context.Background()

	// Start ClickHouse container
	clickhouseContainer, err := clickhouseTC.Run(ctx,
		"clickhouse/clickhouse-server:24.3.3.102-alpine",
		clickhouseTC.WithUsername("default"),
		clickhouseTC.WithPassword(""),
		clickhouseTC.WithDatabase("default"),
	)
	require.NoError(t, err, "Failed to start ClickHouse container")

	// Get connection details
	host, err := clickhouseContainer.Host(ctx)
	require.NoError(t, err)

	port, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	j, err := NewClickHouseJournal(host, port.Int(), "default", "default", "", false)
	require.NoError(t, err, "Failed to connect to ClickHouse")

	require.NoError(t, j.Initialize(ctx), "Failed to create tables")
	// Initialize is idempotent
	require.NoError(t, j.Initialize(ctx))

	cleanup := func() {
		j.Close()
		clickhouseContainer.Terminate(ctx)
	}

	return j, cleanup
}

func TestClickHouseJournal_TopRentedBooks(t *testing.T) {
	j, cleanup := setupTestJournal(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	events := []models.RentalEvent{
		{At: now, Kind: models.EventRented, RentalID: 1, BookID: 10, BookTitle: "Dune", UserID: 1},
		{At: now, Kind: models.EventReturned, RentalID: 1, BookID: 10, BookTitle: "Dune", UserID: 1},
		{At: now, Kind: models.EventRented, RentalID: 2, BookID: 10, BookTitle: "Dune", UserID: 2},
		{At: now, Kind: models.EventRented, RentalID: 3, BookID: 20, BookTitle: "Emma", UserID: 1},
		{At: now.AddDate(0, -3, 0), Kind: models.EventRented, RentalID: 4, BookID: 20, BookTitle: "Emma", UserID: 2},
		{At: now.AddDate(0, -3, 0), Kind: models.EventRented, RentalID: 5, BookID: 20, BookTitle: "Emma", UserID: 2},
	}
	for _, e := range events {
		require.NoError(t, j.RecordRentalEvent(ctx, e))
	}

	stats, err := j.TopRentedBooks(ctx, 10, now.AddDate(0, -1, 0))
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, int64(10), stats[0].BookID)
	assert.Equal(t, "Dune", stats[0].BookTitle)
	assert.Equal(t, 2, stats[0].RentalCount)
	assert.Equal(t, "Emma", stats[1].BookTitle)
	assert.Equal(t, 1, stats[1].RentalCount)

	// Older window counts the earlier Emma rentals
	stats, err = j.TopRentedBooks(ctx, 1, now.AddDate(-1, 0, 0))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "Emma", stats[0].BookTitle)
	assert.Equal(t, 3, stats[0].RentalCount)
}

func TestClickHouseJournal_Empty(t *testing.T) {
	j, cleanup := setupTestJournal(t)
	defer cleanup()

	stats, err := j.TopRentedBooks(context.Background(), 5, time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Empty(t, stats)
}
