package sqldb

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"bookshelf/internal/models"
	"bookshelf/internal/storage"
)

var (
	bookColumns = []string{
		"b.id", "b.title", "b.price", "b.available", "b.rating",
		"b.upc", "b.url", "b.category_id", "c.name AS category",
	}
	rentalColumns = []string{
		"r.id", "r.book_id", "r.user_id", "r.rented", "r.returned", "b.title AS book_title",
	}
)

// get runs a single-row query built by squirrel
func (s *Store) get(ctx context.Context, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return mapError(sqlx.GetContext(ctx, s.exec, dest, query, args...))
}

// list runs a multi-row query built by squirrel
func (s *Store) list(ctx context.Context, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return mapError(sqlx.SelectContext(ctx, s.exec, dest, query, args...))
}

// insert runs an INSERT ... RETURNING id and returns the new id
func (s *Store) insert(ctx context.Context, b sq.InsertBuilder) (int64, error) {
	query, args, err := b.Suffix("RETURNING id").ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}
	var id int64
	if err := s.exec.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, mapError(err)
	}
	return id, nil
}

// ListCategories returns all categories
func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	q := s.sb.Select("id", "name").From("categories").OrderBy("id")
	if err := s.list(ctx, &categories, q); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// GetCategoryByName returns the first category with that name
func (s *Store) GetCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	var c models.Category
	q := s.sb.Select("id", "name").From("categories").Where(sq.Eq{"name": name}).OrderBy("id").Limit(1)
	if err := s.get(ctx, &c, q); err != nil {
		return nil, fmt.Errorf("failed to get category %q: %w", name, err)
	}
	return &c, nil
}

// CreateCategory creates a new category
func (s *Store) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	id, err := s.insert(ctx, s.sb.Insert("categories").Columns("name").Values(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return &models.Category{ID: id, Name: name}, nil
}

func (s *Store) selectBooks() sq.SelectBuilder {
	return s.sb.Select(bookColumns...).
		From("books b").
		Join("categories c ON c.id = b.category_id").
		OrderBy("b.id")
}

func (s *Store) selectRentals() sq.SelectBuilder {
	return s.sb.Select(rentalColumns...).
		From("book_rentals r").
		Join("books b ON b.id = r.book_id").
		OrderBy("r.id")
}

// ListBooks returns books with their rentals loaded
func (s *Store) ListBooks(ctx context.Context, filter storage.BookFilter) ([]models.Book, error) {
	booksQ := s.selectBooks()
	rentalsQ := s.selectRentals()
	if filter.CategoryID != 0 {
		booksQ = booksQ.Where(sq.Eq{"b.category_id": filter.CategoryID})
		rentalsQ = rentalsQ.Where(sq.Eq{"b.category_id": filter.CategoryID})
	}

	var books []models.Book
	if err := s.list(ctx, &books, booksQ); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	if len(books) == 0 {
		return books, nil
	}

	var rentals []models.BookRental
	if err := s.list(ctx, &rentals, rentalsQ); err != nil {
		return nil, fmt.Errorf("failed to list rentals: %w", err)
	}

	byBook := make(map[int64][]models.BookRental)
	for _, r := range rentals {
		byBook[r.BookID] = append(byBook[r.BookID], r)
	}
	for i := range books {
		books[i].Rentals = byBook[books[i].ID]
	}
	return books, nil
}

// GetBook returns a book with its rentals loaded
func (s *Store) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	return s.getBookWhere(ctx, sq.Eq{"b.id": id})
}

// GetBookByUPC returns a book by its catalog code
func (s *Store) GetBookByUPC(ctx context.Context, upc string) (*models.Book, error) {
	return s.getBookWhere(ctx, sq.Eq{"b.upc": upc})
}

func (s *Store) getBookWhere(ctx context.Context, where sq.Eq) (*models.Book, error) {
	var b models.Book
	if err := s.get(ctx, &b, s.selectBooks().Where(where)); err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}

	rentals, err := s.ListRentals(ctx, storage.RentalFilter{BookID: b.ID})
	if err != nil {
		return nil, err
	}
	b.Rentals = rentals
	return &b, nil
}

// CreateBook creates a new book
func (s *Store) CreateBook(ctx context.Context, book *models.Book) error {
	q := s.sb.Insert("books").
		Columns("title", "price", "available", "rating", "upc", "url", "category_id").
		Values(book.Title, book.Price, book.Available, book.Rating, book.UPC, book.URL, book.CategoryID)

	id, err := s.insert(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}
	book.ID = id
	return nil
}

// LockBook takes a row lock on postgres. Sqlite transactions already hold
// the database write lock from BEGIN IMMEDIATE.
func (s *Store) LockBook(ctx context.Context, id int64) error {
	q := s.sb.Select("id").From("books").Where(sq.Eq{"id": id})
	if s.inTx && s.driver == DriverPostgres {
		q = q.Suffix("FOR UPDATE")
	}

	var locked int64
	if err := s.get(ctx, &locked, q); err != nil {
		return fmt.Errorf("failed to lock book %d: %w", id, err)
	}
	return nil
}

// ListUsers returns all users
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.list(ctx, &users, s.sb.Select("id", "name").From("users").OrderBy("id")); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// GetUser returns a user by id
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	if err := s.get(ctx, &u, s.sb.Select("id", "name").From("users").Where(sq.Eq{"id": id})); err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &u, nil
}

// GetUserByName returns the first user with that name
func (s *Store) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	var u models.User
	q := s.sb.Select("id", "name").From("users").Where(sq.Eq{"name": name}).OrderBy("id").Limit(1)
	if err := s.get(ctx, &u, q); err != nil {
		return nil, fmt.Errorf("failed to get user %q: %w", name, err)
	}
	return &u, nil
}

// CreateUser creates a new user
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	id, err := s.insert(ctx, s.sb.Insert("users").Columns("name").Values(user.Name))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.ID = id
	return nil
}

// ListRentals returns rentals with book titles
func (s *Store) ListRentals(ctx context.Context, filter storage.RentalFilter) ([]models.BookRental, error) {
	q := s.selectRentals()
	if filter.BookID != 0 {
		q = q.Where(sq.Eq{"r.book_id": filter.BookID})
	}
	if filter.UserID != 0 {
		q = q.Where(sq.Eq{"r.user_id": filter.UserID})
	}

	var rentals []models.BookRental
	if err := s.list(ctx, &rentals, q); err != nil {
		return nil, fmt.Errorf("failed to list rentals: %w", err)
	}
	return rentals, nil
}

// CreateRental creates a new rental
func (s *Store) CreateRental(ctx context.Context, rental *models.BookRental) error {
	q := s.sb.Insert("book_rentals").
		Columns("book_id", "user_id", "rented", "returned").
		Values(rental.BookID, rental.UserID, rental.Rented, rental.Returned)

	id, err := s.insert(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to create rental: %w", err)
	}
	rental.ID = id
	return nil
}

// CloseRental sets returned on an open rental
func (s *Store) CloseRental(ctx context.Context, id int64, returned time.Time) error {
	query, args, err := s.sb.Update("book_rentals").
		Set("returned", returned).
		Where(sq.Eq{"id": id, "returned": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	res, err := s.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to close rental %d: %w", id, mapError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to close rental %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to close rental %d: %w", id, storage.ErrNotFound)
	}
	return nil
}
