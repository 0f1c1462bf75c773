package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"bookshelf/internal/models"
	"bookshelf/internal/storage"
)

const (
	msgBookNotFound    = "Book not found"
	msgBookUnavailable = "That book is not available"
	msgInvalidUserID   = "Invalid or missing user_id"
	msgUserNotFound    = "User does not exist"
	msgBookNotRented   = "Book is not rented"
)

// RentBook opens a rental of the book for the user. userID is nil when the
// caller supplied no integer user id; that is reported only once the book is
// known to exist and be available.
func (s *Service) RentBook(ctx context.Context, bookID int64, userID *int64) (_ *models.BookRental, err error) {
	ctx, span := s.startSpan(ctx, "service.RentBook", attribute.Int64("book.id", bookID))
	defer func() { endSpan(span, err) }()

	var (
		rental *models.BookRental
		title  string
	)
	err = s.db.WithTx(ctx, func(tx storage.Storage) error {
		book, err := lockedBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if !book.IsAvailable() {
			return forbidden(msgBookUnavailable, nil)
		}

		if userID == nil {
			return badRequest(msgInvalidUserID)
		}
		if _, err := tx.GetUser(ctx, *userID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return notFound(msgUserNotFound, err)
			}
			return err
		}

		rental = &models.BookRental{
			BookID: book.ID,
			UserID: *userID,
			Rented: s.now(),
		}
		if err := tx.CreateRental(ctx, rental); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return forbidden(msgBookUnavailable, err)
			}
			return err
		}
		title = book.Title
		return nil
	})
	if err != nil {
		return nil, err
	}
	rental.BookTitle = title

	s.logger.Info("Book rented",
		zap.Int64("rental_id", rental.ID),
		zap.Int64("book_id", rental.BookID),
		zap.Int64("user_id", rental.UserID),
	)
	s.record(ctx, models.EventRented, *rental, rental.Rented)
	return rental, nil
}

// ReturnBook closes the first open rental of the book
func (s *Service) ReturnBook(ctx context.Context, bookID int64) (_ *models.BookRental, err error) {
	ctx, span := s.startSpan(ctx, "service.ReturnBook", attribute.Int64("book.id", bookID))
	defer func() { endSpan(span, err) }()

	var rental models.BookRental
	err = s.db.WithTx(ctx, func(tx storage.Storage) error {
		book, err := lockedBook(ctx, tx, bookID)
		if err != nil {
			return err
		}

		open, ok := models.FirstOpenRental(book.Rentals)
		if !ok {
			return forbidden(msgBookNotRented, nil)
		}

		returned := s.now()
		if err := tx.CloseRental(ctx, open.ID, returned); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return forbidden(msgBookNotRented, err)
			}
			return err
		}

		open.Returned = &returned
		rental = open
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Book returned",
		zap.Int64("rental_id", rental.ID),
		zap.Int64("book_id", rental.BookID),
		zap.Int64("user_id", rental.UserID),
	)
	s.record(ctx, models.EventReturned, rental, *rental.Returned)
	return &rental, nil
}

// lockedBook locks the book row for the rest of the transaction and loads it
func lockedBook(ctx context.Context, tx storage.Storage, bookID int64) (*models.Book, error) {
	if err := tx.LockBook(ctx, bookID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFound(msgBookNotFound, err)
		}
		return nil, err
	}

	book, err := tx.GetBook(ctx, bookID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound(msgBookNotFound, err)
	}
	return book, err
}

// record writes a journal entry. Journal failures do not undo the rental.
func (s *Service) record(ctx context.Context, kind models.RentalEventKind, rental models.BookRental, at time.Time) {
	event := models.RentalEvent{
		At:        at,
		Kind:      kind,
		RentalID:  rental.ID,
		BookID:    rental.BookID,
		BookTitle: rental.BookTitle,
		UserID:    rental.UserID,
	}
	if err := s.journal.RecordRentalEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to record rental event",
			zap.Error(err),
			zap.String("kind", string(kind)),
			zap.Int64("rental_id", rental.ID),
		)
	}
}
