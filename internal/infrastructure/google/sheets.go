package google

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/nest-haus/backend/internal/domain/pricing"
)

var _ pricing.Source = (*SheetsSource)(nil)

// SheetsSource reads the sales price table from a spreadsheet.
type SheetsSource struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	readRange     string
}

// NewSheetsSource creates a SheetsSource. An empty readRange uses pricing.SheetRange.
func NewSheetsSource(ctx context.Context, spreadsheetID, readRange string, opts ...option.ClientOption) (*SheetsSource, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("google: pricing spreadsheet id is required")
	}
	if readRange == "" {
		readRange = pricing.SheetRange
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return &SheetsSource{
		values:        svc.Spreadsheets.Values,
		spreadsheetID: spreadsheetID,
		readRange:     readRange,
	}, nil
}

// Fetch reads the range and parses it into a price table.
func (s *SheetsSource) Fetch(ctx context.Context) (*pricing.PriceTable, error) {
	resp, err := s.values.Get(s.spreadsheetID, s.readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing sheet: %w", err)
	}
	table, err := pricing.ParseSheet(resp.Values)
	if err != nil {
		return nil, err
	}
	return table, nil
}
