package models

import "time"

// IsAvailable reports whether none of the given rentals is open.
// A book without rentals is available.
func IsAvailable(rentals []BookRental) bool {
	for _, r := range rentals {
		if r.IsOpen() {
			return false
		}
	}
	return true
}

// FirstOpenRental returns the first open rental in the given order
func FirstOpenRental(rentals []BookRental) (BookRental, bool) {
	for _, r := range rentals {
		if r.IsOpen() {
			return r, true
		}
	}
	return BookRental{}, false
}

// BookView is the JSON shape of a book
type BookView struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Available   float64 `json:"available"`
	Rating      int64   `json:"rating"`
	UPC         string  `json:"upc"`
	URL         string  `json:"url"`
	CategoryID  int64   `json:"category_id"`
	Category    *string `json:"category"`
	IsAvailable bool    `json:"is_available"`
}

// View converts the book into its JSON shape
func (b Book) View() BookView {
	v := BookView{
		ID:          b.ID,
		Title:       b.Title,
		Price:       b.Price,
		Available:   b.Available,
		Rating:      b.Rating,
		UPC:         b.UPC,
		URL:         b.URL,
		CategoryID:  b.CategoryID,
		IsAvailable: b.IsAvailable(),
	}
	if b.CategoryName != "" {
		name := b.CategoryName
		v.Category = &name
	}
	return v
}

// RentalView is the JSON shape of a rental
type RentalView struct {
	ID       int64   `json:"id"`
	BookID   int64   `json:"book_id"`
	UserID   int64   `json:"user_id"`
	Rented   string  `json:"rented"`
	Returned *string `json:"returned"`
}

// View converts the rental into its JSON shape with UTC RFC 3339 timestamps
func (r BookRental) View() RentalView {
	v := RentalView{
		ID:     r.ID,
		BookID: r.BookID,
		UserID: r.UserID,
		Rented: r.Rented.UTC().Format(time.RFC3339),
	}
	if r.Returned != nil {
		returned := r.Returned.UTC().Format(time.RFC3339)
		v.Returned = &returned
	}
	return v
}
