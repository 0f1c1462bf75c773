package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"bookshelf/internal/models"
	"bookshelf/internal/service"
	"bookshelf/internal/storage"
	"bookshelf/internal/storage/sqldb"
	"bookshelf/internal/storage/stubs"
)

var fixedNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *service.Service
	db      *stubs.MockDB
	journal *stubs.MockJournal
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		db:      stubs.NewMockDB(),
		journal: stubs.NewMockJournal(),
		now:     fixedNow,
	}
	require.NoError(t, f.db.Initialize(context.Background()))

	f.svc = service.New(f.db, zap.NewNop(),
		service.WithJournal(f.journal),
		service.WithClock(func() time.Time { return f.now }),
	)
	return f
}

func bookPayload(upc string) map[string]interface{} {
	return map[string]interface{}{
		"title":     "Sharp Objects",
		"price":     json.Number("47.82"),
		"available": json.Number("20"),
		"rating":    json.Number("4"),
		"upc":       upc,
		"url":       "http://books.toscrape.com/sharp-objects_997/index.html",
		"category":  "Mystery",
	}
}

func (f *fixture) createBook(t *testing.T, upc string) *models.Book {
	t.Helper()
	book, err := f.svc.CreateBook(context.Background(), bookPayload(upc))
	require.NoError(t, err)
	return book
}

func (f *fixture) user(t *testing.T, name string) int64 {
	t.Helper()
	u, err := f.db.GetUserByName(context.Background(), name)
	require.NoError(t, err)
	return u.ID
}

func ptr(v int64) *int64 { return &v }

func TestCreateBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	book := f.createBook(t, "e00eb4fd7b871a48")
	assert.NotZero(t, book.ID)
	assert.Equal(t, "Mystery", book.CategoryName)
	assert.Equal(t, 47.82, book.Price)
	assert.Equal(t, 20.0, book.Available)
	assert.Equal(t, int64(4), book.Rating)
	assert.True(t, book.IsAvailable())

	// Second book in the same category reuses it
	f.createBook(t, "other-upc")
	categories, err := f.svc.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 1)
}

func TestCreateBook_DuplicateUPC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createBook(t, "dup")

	payload := bookPayload("dup")
	payload["category"] = "Brand New Category"
	_, err := f.svc.CreateBook(ctx, payload)
	require.Error(t, err)
	assert.Equal(t, service.KindConflict, service.KindOf(err))
	assert.Equal(t, "That UPC already exists", service.MessageOf(err))

	// Store unchanged
	books, err := f.svc.ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1)
	categories, err := f.svc.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 1)
}

func TestValidateBook(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(p map[string]interface{})
		message string
	}{
		{"missing title", func(p map[string]interface{}) { delete(p, "title") }, "Missing field: title"},
		{"missing rating", func(p map[string]interface{}) { delete(p, "rating") }, "Missing field: rating"},
		{"missing category", func(p map[string]interface{}) { delete(p, "category") }, "Missing field: category"},
		{"empty title", func(p map[string]interface{}) { p["title"] = "" }, "Invalid value for field title: "},
		{"title not a string", func(p map[string]interface{}) { p["title"] = json.Number("5") }, "Invalid value for field title: 5"},
		{"negative price", func(p map[string]interface{}) { p["price"] = json.Number("-1") }, "Invalid value for field price: -1"},
		{"price as string", func(p map[string]interface{}) { p["price"] = "10" }, "Invalid value for field price: 10"},
		{"price as bool", func(p map[string]interface{}) { p["price"] = true }, "Invalid value for field price: true"},
		{"null available", func(p map[string]interface{}) { p["available"] = nil }, "Invalid value for field available: null"},
		{"negative available", func(p map[string]interface{}) { p["available"] = json.Number("-3") }, "Invalid value for field available: -3"},
		{"available as string", func(p map[string]interface{}) { p["available"] = "2" }, "Invalid value for field available: 2"},
		{"rating too low", func(p map[string]interface{}) { p["rating"] = json.Number("0") }, "Invalid value for field rating: 0"},
		{"rating too high", func(p map[string]interface{}) { p["rating"] = json.Number("6") }, "Invalid value for field rating: 6"},
		{"rating not integer", func(p map[string]interface{}) { p["rating"] = json.Number("4.0") }, "Invalid value for field rating: 4.0"},
		{"empty upc", func(p map[string]interface{}) { p["upc"] = "" }, "Invalid value for field upc: "},
		{"url list", func(p map[string]interface{}) { p["url"] = []interface{}{"a"} }, `Invalid value for field url: ["a"]`},
		{"empty category", func(p map[string]interface{}) { p["category"] = "" }, "Invalid value for field category: "},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			payload := bookPayload("x")
			tc.mutate(payload)

			_, err := service.ValidateBook(payload)
			require.Error(t, err)
			assert.Equal(t, service.KindBadRequest, service.KindOf(err))
			assert.Equal(t, tc.message, service.MessageOf(err))
		})
	}
}

func TestValidateBook_FieldOrder(t *testing.T) {
	// Every field is missing: title comes first
	_, err := service.ValidateBook(map[string]interface{}{})
	assert.Equal(t, "Missing field: title", service.MessageOf(err))

	// upc is checked before url
	payload := bookPayload("x")
	payload["upc"] = ""
	payload["url"] = ""
	_, err = service.ValidateBook(payload)
	assert.Equal(t, "Invalid value for field upc: ", service.MessageOf(err))
}

func TestValidateBook_Accepts(t *testing.T) {
	payload := bookPayload("x")
	payload["price"] = json.Number("0")
	payload["available"] = json.Number("2.5")
	payload["rating"] = json.Number("5")

	in, err := service.ValidateBook(payload)
	require.NoError(t, err)
	assert.Equal(t, 0.0, in.Price)
	assert.Equal(t, 2.5, in.Available)
	assert.Equal(t, int64(5), in.Rating)
	assert.Equal(t, "Mystery", in.Category)
}

func TestRentBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.createBook(t, "r1")
	alice := f.user(t, "Alice")

	rental, err := f.svc.RentBook(ctx, book.ID, ptr(alice))
	require.NoError(t, err)
	assert.Equal(t, book.ID, rental.BookID)
	assert.Equal(t, alice, rental.UserID)
	assert.True(t, rental.Rented.Equal(fixedNow))
	assert.Nil(t, rental.Returned)

	got, err := f.svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, got.IsAvailable())
	require.Len(t, got.Rentals, 1)
	assert.True(t, got.Rentals[0].IsOpen())

	events := f.journal.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventRented, events[0].Kind)
	assert.Equal(t, book.Title, events[0].BookTitle)
}

func TestRentBook_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.createBook(t, "r1")
	alice := f.user(t, "Alice")
	bob := f.user(t, "Bob")

	_, err := f.svc.RentBook(ctx, 999, ptr(alice))
	assert.Equal(t, service.KindNotFound, service.KindOf(err))
	assert.Equal(t, "Book not found", service.MessageOf(err))

	_, err = f.svc.RentBook(ctx, book.ID, nil)
	assert.Equal(t, service.KindBadRequest, service.KindOf(err))
	assert.Equal(t, "Invalid or missing user_id", service.MessageOf(err))

	_, err = f.svc.RentBook(ctx, book.ID, ptr(12345))
	assert.Equal(t, service.KindNotFound, service.KindOf(err))
	assert.Equal(t, "User does not exist", service.MessageOf(err))

	_, err = f.svc.RentBook(ctx, book.ID, ptr(alice))
	require.NoError(t, err)

	// Unavailable wins over a bad user id
	_, err = f.svc.RentBook(ctx, book.ID, nil)
	assert.Equal(t, service.KindForbidden, service.KindOf(err))

	_, err = f.svc.RentBook(ctx, book.ID, ptr(bob))
	assert.Equal(t, service.KindForbidden, service.KindOf(err))
	assert.Equal(t, "That book is not available", service.MessageOf(err))

	rentals, err := f.db.ListRentals(ctx, storage.RentalFilter{BookID: book.ID})
	require.NoError(t, err)
	assert.Len(t, rentals, 1, "forbidden rents must not create rows")
	assert.Len(t, f.journal.Events(), 1)
}

func TestReturnBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.createBook(t, "r1")
	alice := f.user(t, "Alice")

	rented, err := f.svc.RentBook(ctx, book.ID, ptr(alice))
	require.NoError(t, err)

	f.now = fixedNow.Add(36 * time.Hour)
	returned, err := f.svc.ReturnBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, rented.ID, returned.ID)
	require.NotNil(t, returned.Returned)
	assert.True(t, returned.Returned.Equal(f.now))
	assert.True(t, returned.Rented.Equal(fixedNow))

	got, err := f.svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAvailable())

	events := f.journal.Events()
	require.Len(t, events, 2)
	assert.Equal(t, models.EventReturned, events[1].Kind)
	assert.True(t, events[1].At.Equal(f.now))
}

func TestReturnBook_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.createBook(t, "r1")
	alice := f.user(t, "Alice")

	_, err := f.svc.ReturnBook(ctx, 999)
	assert.Equal(t, service.KindNotFound, service.KindOf(err))

	_, err = f.svc.ReturnBook(ctx, book.ID)
	assert.Equal(t, service.KindForbidden, service.KindOf(err))
	assert.Equal(t, "Book is not rented", service.MessageOf(err))

	_, err = f.svc.RentBook(ctx, book.ID, ptr(alice))
	require.NoError(t, err)
	_, err = f.svc.ReturnBook(ctx, book.ID)
	require.NoError(t, err)

	// A closed rental is never reopened or changed
	before, err := f.db.ListRentals(ctx, storage.RentalFilter{BookID: book.ID})
	require.NoError(t, err)
	f.now = f.now.Add(time.Hour)
	_, err = f.svc.ReturnBook(ctx, book.ID)
	assert.Equal(t, service.KindForbidden, service.KindOf(err))
	after, err := f.db.ListRentals(ctx, storage.RentalFilter{BookID: book.ID})
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAvailableAndRentedBooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createBook(t, "a")
	b := f.createBook(t, "b")
	alice := f.user(t, "Alice")

	ids := func(books []models.Book, err error) []int64 {
		require.NoError(t, err)
		out := []int64{}
		for _, bk := range books {
			out = append(out, bk.ID)
		}
		return out
	}

	assert.Equal(t, []int64{a.ID, b.ID}, ids(f.svc.AvailableBooks(ctx)))
	assert.Empty(t, ids(f.svc.RentedBooks(ctx)))

	_, err := f.svc.RentBook(ctx, a.ID, ptr(alice))
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, ids(f.svc.AvailableBooks(ctx)))
	assert.Equal(t, []int64{a.ID}, ids(f.svc.RentedBooks(ctx)))

	_, err = f.svc.ReturnBook(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, ids(f.svc.AvailableBooks(ctx)))
	assert.Empty(t, ids(f.svc.RentedBooks(ctx)))
}

func TestCategoryBooksAndUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.createBook(t, "a")
	alice := f.user(t, "Alice")

	category, books, err := f.svc.CategoryBooks(ctx, "Mystery")
	require.NoError(t, err)
	assert.Equal(t, "Mystery", category.Name)
	require.Len(t, books, 1)
	assert.Equal(t, book.ID, books[0].ID)

	_, _, err = f.svc.CategoryBooks(ctx, "Unknown")
	assert.Equal(t, service.KindNotFound, service.KindOf(err))

	_, err = f.svc.RentBook(ctx, book.ID, ptr(alice))
	require.NoError(t, err)

	user, rentals, err := f.svc.UserRentals(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
	require.Len(t, rentals, 1)
	assert.Equal(t, book.Title, rentals[0].BookTitle)

	_, _, err = f.svc.UserRentals(ctx, 999)
	assert.Equal(t, service.KindNotFound, service.KindOf(err))
}

func TestTopRentedBooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.createBook(t, "a")
	alice := f.user(t, "Alice")

	for i := 0; i < 2; i++ {
		_, err := f.svc.RentBook(ctx, book.ID, ptr(alice))
		require.NoError(t, err)
		_, err = f.svc.ReturnBook(ctx, book.ID)
		require.NoError(t, err)
	}

	stats, err := f.svc.TopRentedBooks(ctx, 5, 30)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].RentalCount)

	_, err = f.svc.TopRentedBooks(ctx, 0, 30)
	assert.Equal(t, service.KindBadRequest, service.KindOf(err))
	_, err = f.svc.TopRentedBooks(ctx, 5, -1)
	assert.Equal(t, service.KindBadRequest, service.KindOf(err))
}

type failingJournal struct {
	storage.NopJournal
}

func (failingJournal) RecordRentalEvent(context.Context, models.RentalEvent) error {
	return errors.New("journal down")
}

func TestRentBook_JournalFailureIgnored(t *testing.T) {
	db := stubs.NewMockDB()
	ctx := context.Background()
	require.NoError(t, db.Initialize(ctx))
	svc := service.New(db, zap.NewNop(), service.WithJournal(failingJournal{}))

	book, err := svc.CreateBook(ctx, bookPayload("j"))
	require.NoError(t, err)
	alice, err := db.GetUserByName(ctx, "Alice")
	require.NoError(t, err)

	_, err = svc.RentBook(ctx, book.ID, ptr(alice.ID))
	assert.NoError(t, err)
}

func TestRentBook_ConcurrentRequests(t *testing.T) {
	ctx := context.Background()
	db, err := sqldb.Open(ctx, sqldb.DriverSQLite, ":memory:", zap.NewNop())
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Initialize(ctx))

	svc := service.New(db, zap.NewNop())
	book, err := svc.CreateBook(ctx, bookPayload("race"))
	require.NoError(t, err)

	var userIDs []int64
	for i := 0; i < 8; i++ {
		u := &models.User{Name: strings.Repeat("u", i+1)}
		require.NoError(t, db.CreateUser(ctx, u))
		userIDs = append(userIDs, u.ID)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		forbidden int
	)
	for _, id := range userIDs {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := svc.RentBook(ctx, book.ID, &id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case service.KindOf(err) == service.KindForbidden:
				forbidden++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, len(userIDs)-1, forbidden)

	rentals, err := db.ListRentals(ctx, storage.RentalFilter{BookID: book.ID})
	require.NoError(t, err)
	assert.Len(t, rentals, 1)
}

// lockedStore fails every transaction
type lockedStore struct {
	*stubs.MockDB
}

func (lockedStore) WithTx(context.Context, func(storage.Storage) error) error {
	return errors.New("database is locked")
}

func TestRentBook_Spans(t *testing.T) {
	ctx := context.Background()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	tracer := tp.Tracer(service.TracerName)

	f := newFixture(t)
	svc := service.New(f.db, zap.NewNop(), service.WithTracer(tracer))
	book := f.createBook(t, "e00eb4fd7b871a48")

	_, err := svc.RentBook(ctx, book.ID, ptr(f.user(t, "Alice")))
	require.NoError(t, err)
	_, err = svc.RentBook(ctx, book.ID, ptr(f.user(t, "Bob")))
	require.Error(t, err)
	_, err = svc.RentBook(ctx, 999, ptr(1))
	require.Error(t, err)

	broken := service.New(lockedStore{f.db}, zap.NewNop(), service.WithTracer(tracer))
	_, err = broken.RentBook(ctx, book.ID, ptr(1))
	require.Error(t, err)

	ended := spans.Ended()
	require.Len(t, ended, 4)
	for _, span := range ended {
		assert.Equal(t, "service.RentBook", span.Name())
	}

	for _, kv := range ended[0].Attributes() {
		assert.NotEqual(t, attribute.Key("error.kind"), kv.Key)
	}
	assert.Equal(t, codes.Unset, ended[0].Status().Code)

	assert.Contains(t, ended[1].Attributes(), attribute.String("error.kind", "forbidden"))
	assert.Equal(t, codes.Unset, ended[1].Status().Code)

	assert.Contains(t, ended[2].Attributes(), attribute.String("error.kind", "not_found"))
	assert.Contains(t, ended[2].Attributes(), attribute.Int64("book.id", 999))

	assert.Contains(t, ended[3].Attributes(), attribute.String("error.kind", "internal"))
	assert.Equal(t, codes.Error, ended[3].Status().Code)
	assert.Len(t, ended[3].Events(), 1)
}
