package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortColumns_OrderBy(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		dir    string
		column string
		desc   bool
	}{
		{"defaults", "", "", "created_at", true},
		{"allowed ascending", "name", "asc", "name", false},
		{"direction is case insensitive", "status", "  ASC ", "status", false},
		{"explicit descending", "paid_at", "desc", "paid_at", true},
		{"unknown direction sorts descending", "email", "sideways", "email", true},
		{"trimmed field", "  total_price ", "asc", "total_price", false},
		{"unknown field falls back", "password", "asc", "created_at", false},
		{"injection falls back", "id; DROP TABLE customer_inquiries;--", "asc", "created_at", false},
		{"order by ordinal falls back", "name ORDER BY 1", "", "created_at", true},
		{"id is not sortable", "id", "asc", "created_at", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InquirySortColumns.OrderBy(tt.field, tt.dir)
			assert.Equal(t, tt.column, got.Column.Name)
			assert.Equal(t, tt.desc, got.Desc)
		})
	}
}
