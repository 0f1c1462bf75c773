package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"bookshelf/internal/models"
)

const (
	defaultTopLimit = 10
	defaultTopDays  = 30
)

var errMalformedJSON = echo.NewHTTPError(http.StatusBadRequest, "Malformed JSON body")

// GET /api/books
func (s *Server) apiListBooks(c echo.Context) error {
	books, err := s.svc.ListBooks(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bookViews(books))
}

// GET /api/books/:id
func (s *Server) apiGetBook(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	book, err := s.svc.GetBook(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, book.View())
}

// POST /api/books
func (s *Server) apiCreateBook(c echo.Context) error {
	payload, err := decodeObject(c)
	if err != nil {
		return err
	}
	book, err := s.svc.CreateBook(c.Request().Context(), payload)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, book.View())
}

// POST /api/books/:id/rent
func (s *Server) apiRentBook(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	payload, err := decodeObject(c)
	if err != nil {
		return err
	}

	rental, err := s.svc.RentBook(c.Request().Context(), id, userID(payload))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rental.View())
}

// PUT /api/books/:id/return
func (s *Server) apiReturnBook(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	rental, err := s.svc.ReturnBook(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rental.View())
}

// GET /api/categories
func (s *Server) apiListCategories(c echo.Context) error {
	categories, err := s.svc.ListCategories(c.Request().Context())
	if err != nil {
		return err
	}
	if categories == nil {
		categories = []models.Category{}
	}
	return c.JSON(http.StatusOK, categories)
}

// GET /api/users
func (s *Server) apiListUsers(c echo.Context) error {
	users, err := s.svc.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	if users == nil {
		users = []models.User{}
	}
	return c.JSON(http.StatusOK, users)
}

// GET /api/users/:id/rentals
func (s *Server) apiUserRentals(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	_, rentals, err := s.svc.UserRentals(c.Request().Context(), id)
	if err != nil {
		return err
	}

	views := make([]models.RentalView, 0, len(rentals))
	for _, r := range rentals {
		views = append(views, r.View())
	}
	return c.JSON(http.StatusOK, views)
}

// GET /api/stats/top-books?limit=N&days=D
func (s *Server) apiTopBooks(c echo.Context) error {
	limit, err := queryInt(c, "limit", defaultTopLimit)
	if err != nil {
		return err
	}
	days, err := queryInt(c, "days", defaultTopDays)
	if err != nil {
		return err
	}

	stats, err := s.svc.TopRentedBooks(c.Request().Context(), limit, days)
	if err != nil {
		return err
	}
	if stats == nil {
		stats = []models.BookStat{}
	}
	return c.JSON(http.StatusOK, stats)
}

func bookViews(books []models.Book) []models.BookView {
	views := make([]models.BookView, 0, len(books))
	for _, b := range books {
		views = append(views, b.View())
	}
	return views
}

// pathID parses a non-negative integer path parameter. Anything else does not
// name a resource, so it is a 404 like an unmatched route.
func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 63)
	if err != nil {
		return 0, echo.ErrNotFound
	}
	return int64(id), nil
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid value for "+name)
	}
	return n, nil
}

// decodeObject reads the request body as a JSON object, keeping numbers as json.Number
func decodeObject(c echo.Context) (map[string]interface{}, error) {
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, errMalformedJSON
	}
	if dec.More() {
		return nil, errMalformedJSON
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return payload, nil
}

// userID extracts an integer user_id; floats, strings and booleans yield nil
func userID(payload map[string]interface{}) *int64 {
	n, ok := payload["user_id"].(json.Number)
	if !ok {
		return nil
	}
	id, err := n.Int64()
	if err != nil {
		return nil
	}
	return &id
}
