package core

// Filter returns the records eligible under c, preserving their relative
// order. An empty result is a valid outcome.
func Filter(records []SchemeRecord, c Criteria) []SchemeRecord {
	out := make([]SchemeRecord, 0)
	for _, r := range records {
		if r.Eligible(c) {
			out = append(out, r)
		}
	}
	return out
}

// DistinctCategories lists the categories present in records in first-seen order.
func DistinctCategories(records []SchemeRecord) []string {
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0)
	for _, r := range records {
		if _, ok := seen[r.Category]; ok {
			continue
		}
		seen[r.Category] = struct{}{}
		out = append(out, r.Category)
	}
	return out
}
