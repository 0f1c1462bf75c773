package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"bookshelf/internal/models"
)

// ClickHouseJournal stores rental events in ClickHouse
type ClickHouseJournal struct {
	conn clickhouse.Conn
}

// NewClickHouseJournal creates a new ClickHouse connection
func NewClickHouseJournal(host string, port int, database, user, password string, useTLS bool) (*ClickHouseJournal, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
		DialTimeout: 10 * time.Second,
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseJournal{conn: conn}, nil
}

// Initialize creates the events table if it does not exist
func (j *ClickHouseJournal) Initialize(ctx context.Context) error {
	err := j.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rental_events (
			at DateTime64(3, 'UTC'),
			kind LowCardinality(String),
			rental_id Int64,
			book_id Int64,
			book_title String,
			user_id Int64
		) ENGINE = MergeTree()
		ORDER BY (at, book_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create rental_events table: %w", err)
	}
	return nil
}

// RecordRentalEvent appends one event
func (j *ClickHouseJournal) RecordRentalEvent(ctx context.Context, event models.RentalEvent) error {
	err := j.conn.Exec(ctx, `INSERT INTO rental_events (at, kind, rental_id, book_id, book_title, user_id) VALUES (?, ?, ?, ?, ?, ?)`,
		event.At.UTC(), string(event.Kind), event.RentalID, event.BookID, event.BookTitle, event.UserID)
	if err != nil {
		return fmt.Errorf("failed to record rental event: %w", err)
	}
	return nil
}

// TopRentedBooks returns the most rented books since the given time
func (j *ClickHouseJournal) TopRentedBooks(ctx context.Context, limit int, since time.Time) ([]models.BookStat, error) {
	rows, err := j.conn.Query(ctx, `
		SELECT book_id, any(book_title) AS title, count() AS rentals
		FROM rental_events
		WHERE kind = ? AND at >= ?
		GROUP BY book_id
		ORDER BY rentals DESC, title ASC
		LIMIT ?`,
		string(models.EventRented), since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top rented books: %w", err)
	}
	defer rows.Close()

	var stats []models.BookStat
	for rows.Next() {
		var (
			stat  models.BookStat
			count uint64
		)
		if err := rows.Scan(&stat.BookID, &stat.BookTitle, &count); err != nil {
			return nil, fmt.Errorf("failed to scan book stat: %w", err)
		}
		stat.RentalCount = int(count)
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

// Close closes the database connection
func (j *ClickHouseJournal) Close() error {
	if j.conn != nil {
		return j.conn.Close()
	}
	return nil
}
