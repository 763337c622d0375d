package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Genders accepted by the eligibility form. GenderAny only appears on
// scheme records and matches every applicant.
const (
	GenderMale   = "Male"
	GenderFemale = "Female"
	GenderOther  = "Other"
	GenderAny    = "Any"
)

// DefaultIncomeMax is the upper bound of the income selector.
const DefaultIncomeMax = 500000

// NoSchemesAvailable is the SchemeDetails placeholder for regions without matches.
const NoSchemesAvailable = "No Schemes Available"

type (
	// SchemeRecord is one row of the scheme table. Loaded once, never mutated.
	SchemeRecord struct {
		Category        string
		Gender          string
		MaxAnnualIncome decimal.Decimal
		SchemeName      string
		State           string
		Benefit         decimal.Decimal
	}

	// Criteria is the applicant's selection from the form.
	Criteria struct {
		Category string
		Gender   string
		Income   decimal.Decimal
	}
)

var (
	ErrEmptyCategory  = errors.New("empty category")
	ErrInvalidGender  = errors.New("invalid gender")
	ErrInvalidIncome  = errors.New("invalid income")
	ErrNegativeAmount = errors.New("negative amount")
)

// Genders lists the selectable genders in display order.
func Genders() []string {
	return []string{GenderMale, GenderFemale, GenderOther}
}

// Validate checks the criteria against the form's bounds. incomeMax <= 0
// disables the upper bound.
func (c Criteria) Validate(incomeMax int64) error {
	if strings.TrimSpace(c.Category) == "" {
		return ErrEmptyCategory
	}
	switch c.Gender {
	case GenderMale, GenderFemale, GenderOther:
	default:
		return ErrInvalidGender
	}
	if c.Income.IsNegative() {
		return ErrInvalidIncome
	}
	if incomeMax > 0 && c.Income.GreaterThan(decimal.NewFromInt(incomeMax)) {
		return ErrInvalidIncome
	}
	return nil
}

// Validate rejects records the pipeline cannot reason about.
func (r SchemeRecord) Validate() error {
	if r.MaxAnnualIncome.IsNegative() || r.Benefit.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// Eligible reports whether the record satisfies all three predicates.
func (r SchemeRecord) Eligible(c Criteria) bool {
	if r.Category != c.Category {
		return false
	}
	if r.Gender != c.Gender && r.Gender != GenderAny {
		return false
	}
	return r.MaxAnnualIncome.GreaterThanOrEqual(c.Income)
}
