package service

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

// BookInput is a validated book creation request
type BookInput struct {
	Title     string
	Price     float64
	Available float64
	Rating    int64
	UPC       string
	URL       string
	Category  string
}

type fieldRule struct {
	field string
	valid func(v *validator.Validate, value interface{}) bool
}

// bookRules are checked in order; the first failure is reported
var bookRules = []fieldRule{
	{"title", nonEmptyString},
	{"price", nonNegativeNumber},
	{"available", nonNegativeNumber},
	{"rating", ratingValue},
	{"upc", nonEmptyString},
	{"url", nonEmptyString},
	{"category", nonEmptyString},
}

var validate = validator.New()

// ValidateBook checks a decoded JSON object against the book rules.
// Numbers are expected as json.Number (decoder.UseNumber) or float64.
func ValidateBook(payload map[string]interface{}) (BookInput, error) {
	for _, rule := range bookRules {
		value, ok := payload[rule.field]
		if !ok {
			return BookInput{}, badRequest("Missing field: " + rule.field)
		}
		if !rule.valid(validate, value) {
			return BookInput{}, badRequest(fmt.Sprintf("Invalid value for field %s: %s", rule.field, formatValue(value)))
		}
	}

	price, _ := asFloat(payload["price"])
	available, _ := asFloat(payload["available"])
	rating, _ := asInt(payload["rating"])

	return BookInput{
		Title:     payload["title"].(string),
		Price:     price,
		Available: available,
		Rating:    rating,
		UPC:       payload["upc"].(string),
		URL:       payload["url"].(string),
		Category:  payload["category"].(string),
	}, nil
}

func nonEmptyString(v *validator.Validate, value interface{}) bool {
	s, ok := value.(string)
	return ok && v.Var(s, "required") == nil
}

func nonNegativeNumber(v *validator.Validate, value interface{}) bool {
	f, ok := asFloat(value)
	return ok && v.Var(f, "gte=0") == nil
}

func ratingValue(v *validator.Validate, value interface{}) bool {
	n, ok := asInt(value)
	return ok && v.Var(n, "min=1,max=5") == nil
}

// asFloat accepts JSON numbers; booleans and strings are not numbers
func asFloat(value interface{}) (float64, bool) {
	switch n := value.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
	case float64:
		return n, !math.IsInf(n, 0) && !math.IsNaN(n)
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// asInt accepts integer literals only, so 4.0 is not a valid integer
func asInt(value interface{}) (int64, bool) {
	switch n := value.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case json.Number:
		return v.String()
	}
	if data, err := json.Marshal(value); err == nil {
		return string(data)
	}
	return fmt.Sprint(value)
}
