package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DetailsSeparator joins scheme detail lines for hover labels.
const DetailsSeparator = "<br>"

// StateSummary aggregates the eligible schemes of a single state.
type StateSummary struct {
	State        string
	TotalBenefit decimal.Decimal
	Details      []string // "SchemeName: ₹Benefit", in input order
	Schemes      []SchemeRecord
}

// SchemeDetails joins the detail lines with the line break marker.
func (s StateSummary) SchemeDetails() string {
	return strings.Join(s.Details, DetailsSeparator)
}

// EnrichedRegion is a region with its state summary attached, or defaults.
type EnrichedRegion struct {
	Region
	TotalBenefit  decimal.Decimal
	SchemeDetails string
	Matched       bool
}

// SchemeLine formats one detail line of a summary.
func SchemeLine(r SchemeRecord) string {
	return r.SchemeName + ": " + FormatRupeesSymbol(r.Benefit)
}

// Aggregate groups records by state. States keep first-seen order and
// records keep their order within each state.
func Aggregate(records []SchemeRecord) []StateSummary {
	index := make(map[string]int)
	out := make([]StateSummary, 0)
	for _, r := range records {
		i, ok := index[r.State]
		if !ok {
			i = len(out)
			index[r.State] = i
			out = append(out, StateSummary{State: r.State, TotalBenefit: decimal.Zero})
		}
		s := &out[i]
		s.TotalBenefit = s.TotalBenefit.Add(r.Benefit)
		s.Details = append(s.Details, SchemeLine(r))
		s.Schemes = append(s.Schemes, r)
	}
	return out
}

// Join left-joins summaries onto regions by exact state name. Every region
// appears once, in input order; summaries without a region are dropped.
func Join(regions []Region, summaries []StateSummary) []EnrichedRegion {
	byState := make(map[string]StateSummary, len(summaries))
	for _, s := range summaries {
		if _, dup := byState[s.State]; dup {
			continue
		}
		byState[s.State] = s
	}

	out := make([]EnrichedRegion, 0, len(regions))
	for _, reg := range regions {
		er := EnrichedRegion{
			Region:        reg,
			TotalBenefit:  decimal.Zero,
			SchemeDetails: NoSchemesAvailable,
		}
		if s, ok := byState[reg.State]; ok {
			er.TotalBenefit = s.TotalBenefit
			er.SchemeDetails = s.SchemeDetails()
			er.Matched = true
		}
		out = append(out, er)
	}
	return out
}

// MaxBenefit returns the largest TotalBenefit, or zero for no regions.
func MaxBenefit(regions []EnrichedRegion) decimal.Decimal {
	max := decimal.Zero
	for _, r := range regions {
		if r.TotalBenefit.GreaterThan(max) {
			max = r.TotalBenefit
		}
	}
	return max
}
