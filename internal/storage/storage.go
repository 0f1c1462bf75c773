package storage

import (
	"context"
	"errors"
	"time"

	"bookshelf/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate is returned when a write violates a unique constraint
	ErrDuplicate = errors.New("storage: duplicate key")
)

// BookFilter narrows ListBooks
type BookFilter struct {
	CategoryID int64 // zero means any category
}

// RentalFilter narrows ListRentals
type RentalFilter struct {
	BookID int64 // zero means any book
	UserID int64 // zero means any user
}

// Storage defines the interface for data storage operations
type Storage interface {
	// Category operations
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*models.Category, error)
	CreateCategory(ctx context.Context, name string) (*models.Category, error)

	// Book operations

	// ListBooks returns books ordered by id, each with its rentals loaded
	ListBooks(ctx context.Context, filter BookFilter) ([]models.Book, error)
	// GetBook returns the book with its rentals loaded
	GetBook(ctx context.Context, id int64) (*models.Book, error)
	GetBookByUPC(ctx context.Context, upc string) (*models.Book, error)
	// CreateBook inserts the book and sets its ID
	CreateBook(ctx context.Context, book *models.Book) error
	// LockBook holds a write lock on the book row until the surrounding
	// transaction ends. Outside WithTx it only checks existence.
	LockBook(ctx context.Context, id int64) error

	// User operations
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByName(ctx context.Context, name string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error

	// Rental operations

	// ListRentals returns rentals ordered by id with the book title joined in
	ListRentals(ctx context.Context, filter RentalFilter) ([]models.BookRental, error)
	// CreateRental inserts the rental and sets its ID
	CreateRental(ctx context.Context, rental *models.BookRental) error
	// CloseRental sets the returned time of an open rental.
	// ErrNotFound is returned if no open rental has that id.
	CloseRental(ctx context.Context, id int64, returned time.Time) error

	// WithTx runs fn against a transaction-scoped Storage. The transaction
	// is committed if fn returns nil and rolled back otherwise.
	WithTx(ctx context.Context, fn func(tx Storage) error) error

	// Lifecycle
	Initialize(ctx context.Context) error
	// Reset drops every table and recreates the schema
	Reset(ctx context.Context) error
	Close() error
}

// Journal records rental events for reporting
type Journal interface {
	RecordRentalEvent(ctx context.Context, event models.RentalEvent) error

	// TopRentedBooks returns up to limit books ordered by the number of
	// rentals started at or after since
	TopRentedBooks(ctx context.Context, limit int, since time.Time) ([]models.BookStat, error)

	Initialize(ctx context.Context) error
	Close() error
}

// NopJournal discards events. It is used when no journal backend is configured.
type NopJournal struct{}

func (NopJournal) RecordRentalEvent(context.Context, models.RentalEvent) error { return nil }

func (NopJournal) TopRentedBooks(context.Context, int, time.Time) ([]models.BookStat, error) {
	return nil, nil
}

func (NopJournal) Initialize(context.Context) error { return nil }
func (NopJournal) Close() error                     { return nil }
