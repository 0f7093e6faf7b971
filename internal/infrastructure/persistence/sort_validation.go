package persistence

import (
	"slices"
	"strings"

	"gorm.io/gorm/clause"
)

// SortColumns whitelists the columns a list query may be ordered by.
type SortColumns struct {
	Default string
	Allowed []string
}

// OrderBy builds the order clause for a client supplied field and direction.
// Unknown fields fall back to Default. Only "asc" sorts ascending.
func (s SortColumns) OrderBy(field, dir string) clause.OrderByColumn {
	column := s.Default
	if f := strings.TrimSpace(field); slices.Contains(s.Allowed, f) {
		column = f
	}
	return clause.OrderByColumn{
		Column: clause.Column{Name: column},
		Desc:   !strings.EqualFold(strings.TrimSpace(dir), "asc"),
	}
}

// InquirySortColumns are the orderings of the admin inquiry table
var InquirySortColumns = SortColumns{
	Default: "created_at",
	Allowed: []string{
		"created_at", "updated_at", "name", "email", "status",
		"total_price", "request_type", "paid_at",
	},
}
