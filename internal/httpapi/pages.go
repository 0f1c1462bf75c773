package httpapi

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"bookshelf/internal/models"
)

type bookListPage struct {
	Books []models.Book
}

func (s *Server) pageHome(c echo.Context) error {
	return c.Render(http.StatusOK, "home", nil)
}

func (s *Server) pageBooks(c echo.Context) error {
	books, err := s.svc.ListBooks(c.Request().Context())
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "books", bookListPage{Books: books})
}

func (s *Server) pageAvailable(c echo.Context) error {
	books, err := s.svc.AvailableBooks(c.Request().Context())
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "available_books", bookListPage{Books: books})
}

func (s *Server) pageRented(c echo.Context) error {
	books, err := s.svc.RentedBooks(c.Request().Context())
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "rented_books", bookListPage{Books: books})
}

func (s *Server) pageCategories(c echo.Context) error {
	categories, err := s.svc.ListCategories(c.Request().Context())
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "categories", map[string]interface{}{
		"Categories": categories,
	})
}

func (s *Server) pageCategory(c echo.Context) error {
	// Routing uses the raw path only when it carries escapes the decoded path cannot
	name := c.Param("name")
	if c.Request().URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
	}

	category, books, err := s.svc.CategoryBooks(c.Request().Context(), name)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "category_detail", map[string]interface{}{
		"Category": category,
		"Books":    books,
	})
}

func (s *Server) pageBook(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	book, err := s.svc.GetBook(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "book_detail", map[string]interface{}{
		"Book": book,
	})
}

func (s *Server) pageUsers(c echo.Context) error {
	users, err := s.svc.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "users", map[string]interface{}{
		"Users": users,
	})
}

func (s *Server) pageUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	user, rentals, err := s.svc.UserRentals(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "user_detail", map[string]interface{}{
		"User":    user,
		"Rentals": rentals,
	})
}
