package stubs

import (
	"context"
	"sort"
	"sync"
	"time"

	"bookshelf/internal/models"
	"bookshelf/internal/storage"
)

// MockDB is an in-memory implementation of the Storage interface for testing
type MockDB struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	categories []models.Category
	books      []models.Book
	users      []models.User
	rentals    []models.BookRental
	lastID     int64
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{}
}

// Initialize sets up default users for testing
func (m *MockDB) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.users) > 0 {
		return nil
	}
	for _, name := range []string{"Alice", "Bob"} {
		m.lastID++
		m.users = append(m.users, models.User{ID: m.lastID, Name: name})
	}
	return nil
}

// Reset drops all data
func (m *MockDB) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.categories = nil
	m.books = nil
	m.users = nil
	m.rentals = nil
	return nil
}

// ListCategories returns all categories ordered by id
func (m *MockDB) ListCategories(ctx context.Context) ([]models.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]models.Category(nil), m.categories...), nil
}

// GetCategoryByName returns the first category with the given name
func (m *MockDB) GetCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.categories {
		if c.Name == name {
			c := c
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

// CreateCategory creates a new category
func (m *MockDB) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastID++
	c := models.Category{ID: m.lastID, Name: name}
	m.categories = append(m.categories, c)
	return &c, nil
}

// ListBooks returns books ordered by id with rentals loaded
func (m *MockDB) ListBooks(ctx context.Context, filter storage.BookFilter) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var books []models.Book
	for _, b := range m.books {
		if filter.CategoryID != 0 && b.CategoryID != filter.CategoryID {
			continue
		}
		books = append(books, m.hydrate(b))
	}
	return books, nil
}

// GetBook returns a book by id with rentals loaded
func (m *MockDB) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.books {
		if b.ID == id {
			b = m.hydrate(b)
			return &b, nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetBookByUPC returns a book by its catalog code
func (m *MockDB) GetBookByUPC(ctx context.Context, upc string) (*models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.books {
		if b.UPC == upc {
			b = m.hydrate(b)
			return &b, nil
		}
	}
	return nil, storage.ErrNotFound
}

// CreateBook creates a new book
func (m *MockDB) CreateBook(ctx context.Context, book *models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.books {
		if b.UPC == book.UPC {
			return storage.ErrDuplicate
		}
	}
	if m.category(book.CategoryID) == nil {
		return storage.ErrNotFound
	}

	m.lastID++
	book.ID = m.lastID
	stored := *book
	stored.CategoryName = ""
	stored.Rentals = nil
	m.books = append(m.books, stored)
	return nil
}

// LockBook only checks the book exists; WithTx already serializes writers
func (m *MockDB) LockBook(ctx context.Context, id int64) error {
	_, err := m.GetBook(ctx, id)
	return err
}

// ListUsers returns all users ordered by id
func (m *MockDB) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]models.User(nil), m.users...), nil
}

// GetUser returns a user by id
func (m *MockDB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.ID == id {
			u := u
			return &u, nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetUserByName returns the first user with the given name
func (m *MockDB) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Name == name {
			u := u
			return &u, nil
		}
	}
	return nil, storage.ErrNotFound
}

// CreateUser creates a new user
func (m *MockDB) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastID++
	user.ID = m.lastID
	m.users = append(m.users, *user)
	return nil
}

// ListRentals returns rentals ordered by id with book titles filled in
func (m *MockDB) ListRentals(ctx context.Context, filter storage.RentalFilter) ([]models.BookRental, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.rentalsWhere(filter), nil
}

// CreateRental creates a new rental. Like the SQL store it refuses a second
// open rental for the same book.
func (m *MockDB) CreateRental(ctx context.Context, rental *models.BookRental) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.book(rental.BookID) == nil || m.user(rental.UserID) == nil {
		return storage.ErrNotFound
	}
	if rental.Returned == nil {
		for _, r := range m.rentals {
			if r.BookID == rental.BookID && r.IsOpen() {
				return storage.ErrDuplicate
			}
		}
	}

	m.lastID++
	rental.ID = m.lastID
	stored := *rental
	stored.BookTitle = ""
	m.rentals = append(m.rentals, stored)
	return nil
}

// CloseRental marks an open rental as returned
func (m *MockDB) CloseRental(ctx context.Context, id int64, returned time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.rentals {
		if m.rentals[i].ID == id && m.rentals[i].IsOpen() {
			m.rentals[i].Returned = &returned
			return nil
		}
	}
	return storage.ErrNotFound
}

// WithTx serializes fn against other transactions and restores the previous
// state if fn fails
func (m *MockDB) WithTx(ctx context.Context, fn func(tx storage.Storage) error) (err error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snapshot := m.snapshot()
	defer func() {
		if p := recover(); p != nil {
			m.restore(snapshot)
			panic(p)
		}
		if err != nil {
			m.restore(snapshot)
		}
	}()

	return fn(mockTx{m})
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}

// mockTx is the Storage handed to WithTx callbacks; nested WithTx calls
// join the running transaction
type mockTx struct {
	*MockDB
}

func (t mockTx) WithTx(ctx context.Context, fn func(tx storage.Storage) error) error {
	return fn(t)
}

type mockState struct {
	categories []models.Category
	books      []models.Book
	users      []models.User
	rentals    []models.BookRental
	lastID     int64
}

func (m *MockDB) snapshot() mockState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := mockState{
		categories: append([]models.Category(nil), m.categories...),
		books:      append([]models.Book(nil), m.books...),
		users:      append([]models.User(nil), m.users...),
		rentals:    make([]models.BookRental, len(m.rentals)),
		lastID:     m.lastID,
	}
	for i, r := range m.rentals {
		if r.Returned != nil {
			returned := *r.Returned
			r.Returned = &returned
		}
		s.rentals[i] = r
	}
	return s
}

func (m *MockDB) restore(s mockState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.categories = s.categories
	m.books = s.books
	m.users = s.users
	m.rentals = s.rentals
	m.lastID = s.lastID
}

// hydrate fills in the category name and rentals; the caller holds mu
func (m *MockDB) hydrate(b models.Book) models.Book {
	if c := m.category(b.CategoryID); c != nil {
		b.CategoryName = c.Name
	}
	b.Rentals = m.rentalsWhere(storage.RentalFilter{BookID: b.ID})
	return b
}

func (m *MockDB) rentalsWhere(filter storage.RentalFilter) []models.BookRental {
	var rentals []models.BookRental
	for _, r := range m.rentals {
		if filter.BookID != 0 && r.BookID != filter.BookID {
			continue
		}
		if filter.UserID != 0 && r.UserID != filter.UserID {
			continue
		}
		if b := m.book(r.BookID); b != nil {
			r.BookTitle = b.Title
		}
		rentals = append(rentals, r)
	}

	sort.SliceStable(rentals, func(i, j int) bool {
		return rentals[i].ID < rentals[j].ID
	})
	return rentals
}

func (m *MockDB) category(id int64) *models.Category {
	for i := range m.categories {
		if m.categories[i].ID == id {
			return &m.categories[i]
		}
	}
	return nil
}

func (m *MockDB) book(id int64) *models.Book {
	for i := range m.books {
		if m.books[i].ID == id {
			return &m.books[i]
		}
	}
	return nil
}

func (m *MockDB) user(id int64) *models.User {
	for i := range m.users {
		if m.users[i].ID == id {
			return &m.users[i]
		}
	}
	return nil
}
