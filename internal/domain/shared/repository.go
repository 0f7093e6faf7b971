package shared

const (
	// DefaultPageSize is used when a filter leaves PageSize unset
	DefaultPageSize = 20
	// MaxPageSize caps list queries coming from the admin API
	MaxPageSize = 200
)

// Filter represents query filter options for admin list endpoints
type Filter struct {
	Page     int
	PageSize int
	Search   string
	Status   string
	OrderBy  string
	OrderDir string
}

// Normalize clamps paging values into their valid range.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// Offset returns the row offset for the current page
func (f Filter) Offset() int {
	n := f.Normalize()
	return (n.Page - 1) * n.PageSize
}
