// Package http provides HTTP server and handler implementations.
//
// This file turns form and query values into pipeline criteria and maps
// criteria errors to the messages shown next to the form.

package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"schememap/internal/core"
)

// Form and query parameter names.
const (
	ParamCategory = "category"
	ParamGender   = "gender"
	ParamIncome   = "income"
)

// ParseCriteria reads category, gender and income from values. Only the
// income format is checked here; bounds are checked by Criteria.Validate.
func ParseCriteria(values url.Values) (core.Criteria, error) {
	c := core.Criteria{
		Category: sanitizeInput(values.Get(ParamCategory)),
		Gender:   sanitizeInput(values.Get(ParamGender)),
	}

	raw := strings.TrimSpace(values.Get(ParamIncome))
	if raw == "" {
		return c, fmt.Errorf("%w: income is required", core.ErrInvalidIncome)
	}
	income, err := core.ParseAmount(raw)
	if err != nil {
		return c, fmt.Errorf("%w: %w", core.ErrInvalidIncome, err)
	}
	c.Income = income
	return c, nil
}

// CriteriaQuery encodes c so the map endpoints can be linked from a result.
func CriteriaQuery(c core.Criteria) url.Values {
	return url.Values{
		ParamCategory: {c.Category},
		ParamGender:   {c.Gender},
		ParamIncome:   {c.Income.String()},
	}
}

// criteriaMessage is the user-facing text for a criteria error.
func criteriaMessage(err error, incomeMax int64) string {
	switch {
	case errors.Is(err, core.ErrEmptyCategory):
		return "Please select a category."
	case errors.Is(err, core.ErrInvalidGender):
		return "Please select a gender: Male, Female or Other."
	case errors.Is(err, core.ErrInvalidIncome):
		return "Annual income must be a number between 0 and " + core.FormatRupees(decimal.NewFromInt(incomeMax)) + "."
	default:
		return "Invalid selection."
	}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		return r
	}, s)
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format")
	}
	return nil
}
