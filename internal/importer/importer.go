// Package importer loads catalog data from CSV exports into a store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"go.uber.org/zap"

	"bookshelf/internal/models"
	"bookshelf/internal/storage"
)

// File names expected in a data directory
const (
	BooksFile   = "books.csv"
	UsersFile   = "users.csv"
	RentalsFile = "bookrentals.csv"
)

// TimeLayout is the format of rental timestamps; values are read as UTC
const TimeLayout = "2006-01-02 15:04"

type bookRow struct {
	Title     string `csv:"title"`
	Price     string `csv:"price"`
	Available string `csv:"available"`
	Rating    string `csv:"rating"`
	UPC       string `csv:"upc"`
	URL       string `csv:"url"`
	Category  string `csv:"category"`
}

type userRow struct {
	Name string `csv:"name"`
}

type rentalRow struct {
	BookUPC  string `csv:"book_upc"`
	UserName string `csv:"user_name"`
	Rented   string `csv:"rented"`
	Returned string `csv:"returned"`
}

// Result counts processed rows
type Result struct {
	Imported int
	Skipped  int
}

func (r Result) String() string {
	return fmt.Sprintf("%d imported, %d skipped", r.Imported, r.Skipped)
}

// Importer writes CSV rows through a storage.Storage
type Importer struct {
	db     storage.Storage
	logger *zap.Logger
}

// New creates an Importer
func New(db storage.Storage, logger *zap.Logger) *Importer {
	return &Importer{db: db, logger: logger}
}

// ImportBooks reads books.csv rows. Categories are created on first use.
func (im *Importer) ImportBooks(ctx context.Context, r io.Reader) (Result, error) {
	var rows []*bookRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return Result{}, fmt.Errorf("failed to parse books: %w", err)
	}

	categories := map[string]int64{}
	var res Result
	for i, row := range rows {
		book, err := row.book()
		if err != nil {
			im.logger.Warn("Skipping book row", zap.Int("row", i+1), zap.Error(err))
			res.Skipped++
			continue
		}

		categoryID, ok := categories[row.Category]
		if !ok {
			category, err := im.category(ctx, row.Category)
			if err != nil {
				return res, err
			}
			categoryID = category.ID
			categories[row.Category] = categoryID
		}
		book.CategoryID = categoryID

		if err := im.db.CreateBook(ctx, book); err != nil {
			if errors.Is(err, storage.ErrDuplicate) || errors.Is(err, storage.ErrNotFound) {
				im.logger.Warn("Skipping book row", zap.Int("row", i+1), zap.String("upc", row.UPC), zap.Error(err))
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("failed to create book %q: %w", row.UPC, err)
		}
		res.Imported++
	}

	im.logger.Info("Imported books", zap.Int("imported", res.Imported), zap.Int("skipped", res.Skipped))
	return res, nil
}

func (im *Importer) category(ctx context.Context, name string) (*models.Category, error) {
	category, err := im.db.GetCategoryByName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		category, err = im.db.CreateCategory(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve category %q: %w", name, err)
	}
	return category, nil
}

func (row *bookRow) book() (*models.Book, error) {
	if row.Title == "" || row.UPC == "" || row.URL == "" || row.Category == "" {
		return nil, errors.New("empty required column")
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(row.Price), 64)
	if err != nil || price < 0 {
		return nil, fmt.Errorf("invalid price %q", row.Price)
	}
	available, err := strconv.ParseFloat(strings.TrimSpace(row.Available), 64)
	if err != nil || math.IsNaN(available) || math.IsInf(available, 0) || available < 0 {
		return nil, fmt.Errorf("invalid available %q", row.Available)
	}
	rating, err := strconv.ParseInt(strings.TrimSpace(row.Rating), 10, 64)
	if err != nil || rating < 1 || rating > 5 {
		return nil, fmt.Errorf("invalid rating %q", row.Rating)
	}

	return &models.Book{
		Title:     row.Title,
		Price:     price,
		Available: available,
		Rating:    rating,
		UPC:       row.UPC,
		URL:       row.URL,
	}, nil
}

// ImportUsers reads users.csv rows
func (im *Importer) ImportUsers(ctx context.Context, r io.Reader) (Result, error) {
	var rows []*userRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return Result{}, fmt.Errorf("failed to parse users: %w", err)
	}

	var res Result
	for i, row := range rows {
		if row.Name == "" {
			im.logger.Warn("Skipping user row", zap.Int("row", i+1))
			res.Skipped++
			continue
		}
		if err := im.db.CreateUser(ctx, &models.User{Name: row.Name}); err != nil {
			return res, fmt.Errorf("failed to create user %q: %w", row.Name, err)
		}
		res.Imported++
	}

	im.logger.Info("Imported users", zap.Int("imported", res.Imported), zap.Int("skipped", res.Skipped))
	return res, nil
}

// ImportRentals reads bookrentals.csv rows. Rows whose book or user cannot
// be found are skipped, as are rows that would give a book a second open rental.
func (im *Importer) ImportRentals(ctx context.Context, r io.Reader) (Result, error) {
	var rows []*rentalRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return Result{}, fmt.Errorf("failed to parse rentals: %w", err)
	}

	var res Result
	for i, row := range rows {
		rental, err := im.rental(ctx, row)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				im.logger.Warn("Skipping rental row", zap.Int("row", i+1), zap.Error(err))
			}
			res.Skipped++
			continue
		}

		if err := im.db.CreateRental(ctx, rental); err != nil {
			if errors.Is(err, storage.ErrDuplicate) || errors.Is(err, storage.ErrNotFound) {
				im.logger.Warn("Skipping rental row", zap.Int("row", i+1), zap.String("book_upc", row.BookUPC), zap.Error(err))
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("failed to create rental: %w", err)
		}
		res.Imported++
	}

	im.logger.Info("Imported rentals", zap.Int("imported", res.Imported), zap.Int("skipped", res.Skipped))
	return res, nil
}

func (im *Importer) rental(ctx context.Context, row *rentalRow) (*models.BookRental, error) {
	book, err := im.db.GetBookByUPC(ctx, row.BookUPC)
	if err != nil {
		return nil, err
	}
	user, err := im.db.GetUserByName(ctx, row.UserName)
	if err != nil {
		return nil, err
	}

	rented, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(row.Rented), time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid rented time %q", row.Rented)
	}
	rental := &models.BookRental{BookID: book.ID, UserID: user.ID, Rented: rented}

	if s := strings.TrimSpace(row.Returned); s != "" {
		returned, err := time.ParseInLocation(TimeLayout, s, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid returned time %q", row.Returned)
		}
		rental.Returned = &returned
	}
	return rental, nil
}

// Summary holds the results of ImportDir
type Summary struct {
	Books   Result
	Users   Result
	Rentals Result
}

// ImportDir imports books, users and rentals from the standard file names
// in dir, in that order
func (im *Importer) ImportDir(ctx context.Context, dir string) (Summary, error) {
	var (
		sum Summary
		err error
	)
	steps := []struct {
		file string
		run  func(context.Context, io.Reader) (Result, error)
		out  *Result
	}{
		{BooksFile, im.ImportBooks, &sum.Books},
		{UsersFile, im.ImportUsers, &sum.Users},
		{RentalsFile, im.ImportRentals, &sum.Rentals},
	}
	for _, step := range steps {
		*step.out, err = im.ImportFile(ctx, filepath.Join(dir, step.file), step.run)
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// ImportFile opens path and feeds it to run
func (im *Importer) ImportFile(ctx context.Context, path string, run func(context.Context, io.Reader) (Result, error)) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	res, err := run(ctx, f)
	if err != nil {
		return res, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return res, nil
}
