package types

const (
	FILTER_DEFAULT_LIMIT = 50
	FILTER_MAX_LIMIT     = 500
)

// PageFilter is the limit/offset pair shared by the list endpoints.
// A zero limit means the default page size.
type PageFilter struct {
	Limit  int `form:"limit" json:"limit,omitempty" validate:"omitempty,min=0,max=500"`
	Offset int `form:"offset" json:"offset,omitempty" validate:"omitempty,min=0"`
}

func (f PageFilter) GetLimit() int {
	if f.Limit <= 0 {
		return FILTER_DEFAULT_LIMIT
	}
	if f.Limit > FILTER_MAX_LIMIT {
		return FILTER_MAX_LIMIT
	}
	return f.Limit
}

func (f PageFilter) GetOffset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}

// Page applies the filter to an already ordered slice
func Page[T any](items []T, f PageFilter) []T {
	start := f.GetOffset()
	if start >= len(items) {
		return []T{}
	}
	end := start + f.GetLimit()
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
