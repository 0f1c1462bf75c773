package models

import "time"

// Category groups books by name
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Book represents a catalog entry
type Book struct {
	ID           int64   `db:"id"`
	Title        string  `db:"title"`
	Price        float64 `db:"price"`
	Available    float64 `db:"available"`
	Rating       int64   `db:"rating"`
	UPC          string  `db:"upc"`
	URL          string  `db:"url"`
	CategoryID   int64   `db:"category_id"`
	CategoryName string  `db:"category"`

	// Rentals is populated by the store when the book is loaded
	Rentals []BookRental `db:"-"`
}

// User represents a person who can rent books
type User struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// BookRental records one rental of a book by a user.
// Returned is nil while the rental is open.
type BookRental struct {
	ID       int64      `db:"id"`
	BookID   int64      `db:"book_id"`
	UserID   int64      `db:"user_id"`
	Rented   time.Time  `db:"rented"`
	Returned *time.Time `db:"returned"`

	// BookTitle is joined in by rental listings
	BookTitle string `db:"book_title"`
}

// IsOpen reports whether the rental has not been returned yet
func (r BookRental) IsOpen() bool {
	return r.Returned == nil
}

// IsAvailable reports whether the book has no open rental
func (b Book) IsAvailable() bool {
	return IsAvailable(b.Rentals)
}

// RentalEventKind distinguishes journal entries
type RentalEventKind string

const (
	EventRented   RentalEventKind = "rented"
	EventReturned RentalEventKind = "returned"
)

// RentalEvent is one entry of the rental journal
type RentalEvent struct {
	At        time.Time
	Kind      RentalEventKind
	RentalID  int64
	BookID    int64
	BookTitle string
	UserID    int64
}

// BookStat represents rental statistics for a book
type BookStat struct {
	BookID      int64  `json:"book_id"`
	BookTitle   string `json:"book_title"`
	RentalCount int    `json:"rental_count"`
}
