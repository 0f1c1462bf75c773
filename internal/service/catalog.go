package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"bookshelf/internal/models"
	"bookshelf/internal/storage"
)

// ListBooks returns every book
func (s *Service) ListBooks(ctx context.Context) ([]models.Book, error) {
	return s.db.ListBooks(ctx, storage.BookFilter{})
}

// AvailableBooks returns books without an open rental
func (s *Service) AvailableBooks(ctx context.Context) ([]models.Book, error) {
	return s.filterBooks(ctx, true)
}

// RentedBooks returns books with an open rental
func (s *Service) RentedBooks(ctx context.Context) ([]models.Book, error) {
	return s.filterBooks(ctx, false)
}

func (s *Service) filterBooks(ctx context.Context, available bool) ([]models.Book, error) {
	books, err := s.db.ListBooks(ctx, storage.BookFilter{})
	if err != nil {
		return nil, err
	}

	out := books[:0]
	for _, b := range books {
		if b.IsAvailable() == available {
			out = append(out, b)
		}
	}
	return out, nil
}

// GetBook returns a book by id
func (s *Service) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	book, err := s.db.GetBook(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound("Book not found", err)
	}
	return book, err
}

// CreateBook validates the payload and stores a new book, creating its
// category on first use
func (s *Service) CreateBook(ctx context.Context, payload map[string]interface{}) (_ *models.Book, err error) {
	ctx, span := s.startSpan(ctx, "service.CreateBook")
	defer func() { endSpan(span, err) }()

	in, err := ValidateBook(payload)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("book.upc", in.UPC))

	_, err = s.db.GetBookByUPC(ctx, in.UPC)
	switch {
	case err == nil:
		return nil, conflict("That UPC already exists", nil)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	var book *models.Book
	err = s.db.WithTx(ctx, func(tx storage.Storage) error {
		category, err := resolveCategory(ctx, tx, in.Category)
		if err != nil {
			return err
		}

		book = &models.Book{
			Title:        in.Title,
			Price:        in.Price,
			Available:    in.Available,
			Rating:       in.Rating,
			UPC:          in.UPC,
			URL:          in.URL,
			CategoryID:   category.ID,
			CategoryName: category.Name,
		}
		return tx.CreateBook(ctx, book)
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return nil, conflict("That UPC already exists", err)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Book created",
		zap.Int64("book_id", book.ID),
		zap.String("upc", book.UPC),
		zap.String("category", book.CategoryName),
	)
	return book, nil
}

// resolveCategory returns the category with that name, creating it if needed
func resolveCategory(ctx context.Context, db storage.Storage, name string) (*models.Category, error) {
	category, err := db.GetCategoryByName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return db.CreateCategory(ctx, name)
	}
	return category, err
}

// ListCategories returns every category
func (s *Service) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.db.ListCategories(ctx)
}

// CategoryBooks returns a category by name together with its books
func (s *Service) CategoryBooks(ctx context.Context, name string) (*models.Category, []models.Book, error) {
	category, err := s.db.GetCategoryByName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, notFound("Category not found", err)
	}
	if err != nil {
		return nil, nil, err
	}

	books, err := s.db.ListBooks(ctx, storage.BookFilter{CategoryID: category.ID})
	if err != nil {
		return nil, nil, err
	}
	return category, books, nil
}

// ListUsers returns every user
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.db.ListUsers(ctx)
}

// GetUser returns a user by id
func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.db.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound("User does not exist", err)
	}
	return user, err
}

// UserRentals returns a user and their rental history
func (s *Service) UserRentals(ctx context.Context, id int64) (*models.User, []models.BookRental, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rentals, err := s.db.ListRentals(ctx, storage.RentalFilter{UserID: id})
	if err != nil {
		return nil, nil, err
	}
	return user, rentals, nil
}

// TopRentedBooks returns the most rented books over the last days
func (s *Service) TopRentedBooks(ctx context.Context, limit, days int) ([]models.BookStat, error) {
	if limit <= 0 {
		return nil, badRequest("limit must be positive")
	}
	if days <= 0 {
		return nil, badRequest("days must be positive")
	}

	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	stats, err := s.journal.TopRentedBooks(ctx, limit, since)
	if err != nil {
		return nil, fmt.Errorf("failed to read rental journal: %w", err)
	}
	return stats, nil
}
