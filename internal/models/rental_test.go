package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAvailable(t *testing.T) {
	returned := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		rentals  []BookRental
		expected bool
	}{
		{
			name:     "no rentals",
			rentals:  nil,
			expected: true,
		},
		{
			name:     "single closed rental",
			rentals:  []BookRental{{ID: 1, Returned: &returned}},
			expected: true,
		},
		{
			name:     "all rentals closed",
			rentals:  []BookRental{{ID: 1, Returned: &returned}, {ID: 2, Returned: &returned}},
			expected: true,
		},
		{
			name:     "single open rental",
			rentals:  []BookRental{{ID: 1}},
			expected: false,
		},
		{
			name:     "open rental after closed ones",
			rentals:  []BookRental{{ID: 1, Returned: &returned}, {ID: 2}},
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsAvailable(tc.rentals))
			assert.Equal(t, tc.expected, Book{Rentals: tc.rentals}.IsAvailable())
		})
	}
}

func TestFirstOpenRental(t *testing.T) {
	returned := time.Now()
	rentals := []BookRental{{ID: 1, Returned: &returned}, {ID: 2}, {ID: 3}}

	r, ok := FirstOpenRental(rentals)
	require.True(t, ok)
	assert.Equal(t, int64(2), r.ID)

	_, ok = FirstOpenRental(rentals[:1])
	assert.False(t, ok)
}

func TestBookView(t *testing.T) {
	book := Book{
		ID:           7,
		Title:        "A Light in the Attic",
		Price:        51.77,
		Available:    22,
		Rating:       3,
		UPC:          "a897fe39b1053632",
		URL:          "http://books.toscrape.com/a-light-in-the-attic_1000/index.html",
		CategoryID:   2,
		CategoryName: "Poetry",
		Rentals:      []BookRental{{ID: 1}},
	}

	data, err := json.Marshal(book.View())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Len(t, got, 10)
	assert.Equal(t, "Poetry", got["category"])
	assert.Equal(t, false, got["is_available"])
	assert.Equal(t, "a897fe39b1053632", got["upc"])

	book.CategoryName = ""
	assert.Nil(t, book.View().Category)
}

func TestRentalView(t *testing.T) {
	rented := time.Date(2024, 1, 15, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	r := BookRental{ID: 3, BookID: 4, UserID: 5, Rented: rented}

	v := r.View()
	assert.Equal(t, "2024-01-15T08:30:00Z", v.Rented)
	assert.Nil(t, v.Returned)

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"book_id":4,"user_id":5,"rented":"2024-01-15T08:30:00Z","returned":null}`, string(data))

	returned := rented.Add(48 * time.Hour)
	r.Returned = &returned
	require.NotNil(t, r.View().Returned)
	assert.Equal(t, "2024-01-17T08:30:00Z", *r.View().Returned)
}
