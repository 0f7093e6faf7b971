package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SheetRange is the A1 range read from the pricing spreadsheet.
const SheetRange = "Preistabelle_Verkauf!A1:N100"

// Column indexes of the per-size price columns F, H, J, L, N.
var nestColumns = map[NestSize]int{Nest80: 5, Nest100: 7, Nest120: 9, Nest140: 11, Nest160: 13}

const (
	nameColumn = 4 // E
	baseColumn = 3 // D

	rowGeschossdecke = 7
	rowNestPrice     = 11
	rowNestArea      = 12
	rowKaminschacht  = 82
	rowFundament     = 83
	rowPlanungPlus   = 88
	rowPlanungPro    = 89
	rowPVFirst       = 29
	rowFensterFirst  = 70
)

var (
	defaultKaminschacht = decimal.NewFromInt(2000)
	defaultPlanungPlus  = decimal.NewFromInt(9600)
	defaultPlanungPro   = decimal.NewFromInt(12700)
	thousand            = decimal.NewFromInt(1000)
	thousandsThreshold  = decimal.NewFromInt(500)
)

// ErrSheetEmpty is returned when the sheet carries no nest prices.
var ErrSheetEmpty = errors.New("pricing: sheet contains no nest prices")

type optionSection struct {
	first, last int
	aliases     map[string]string
}

var (
	gebaeudehuelleSection = optionSection{17, 20, map[string]string{
		"trapezblech":              "trapezblech",
		"holzlattung lärche natur": "holzlattung",
		"lärche":                   "holzlattung",
		"platte black":             "fassadenplatten_schwarz",
		"platte white":             "fassadenplatten_weiss",
	}}
	innenverkleidungSection = optionSection{23, 26, map[string]string{
		"ohne innenverkleidung": "ohne_innenverkleidung",
		"fichte":                "fichte",
		"lärche":                "laerche",
		"laerche":               "laerche",
		"eiche":                 "steirische_eiche",
	}}
	bodenbelagSection = optionSection{50, 53, map[string]string{
		"bauherr":       "ohne_belag",
		"eiche":         "parkett",
		"kalkstein":     "kalkstein_kanafar",
		"dunkler stein": "schiefer_massiv",
	}}
	bodenaufbauSection = optionSection{57, 59, map[string]string{
		"ohne heizung":                   "ohne_heizung",
		"elektrische fußbodenheizung":    "elektrische_fussbodenheizung",
		"elektrische fbh":                "elektrische_fussbodenheizung",
		"wassergeführte fußbodenheizung": "wassergefuehrte_fussbodenheizung",
		"wassergeführte fbh":             "wassergefuehrte_fussbodenheizung",
		"wassergef. fbh":                 "wassergefuehrte_fussbodenheizung",
	}}
	belichtungSection = optionSection{64, 66, map[string]string{
		"light":  BelichtungLight,
		"medium": BelichtungMedium,
		"bright": BelichtungBright,
	}}
)

// ParseNumber converts a sheet cell to a number. "-" yields the on-request
// marker. Prices written in thousands (0 < v < 500) are scaled up.
func ParseNumber(cell any, isPrice bool) decimal.Decimal {
	var d decimal.Decimal
	switch v := cell.(type) {
	case nil:
		return decimal.Zero
	case string:
		s := strings.TrimSpace(v)
		if s == "-" {
			return PriceOnRequest
		}
		s = strings.NewReplacer("€", "", "$", "", ",", "", " ", "", " ", "").Replace(s)
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	case float64:
		d = decimal.NewFromFloat(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	default:
		return decimal.Zero
	}
	if isPrice && d.IsPositive() && d.LessThan(thousandsThreshold) {
		d = d.Mul(thousand)
	}
	return d
}

type sheet [][]any

// cell returns the value at a 1-based row and 0-based column.
func (s sheet) cell(row, col int) any {
	if row-1 < 0 || row-1 >= len(s) {
		return nil
	}
	r := s[row-1]
	if col >= len(r) {
		return nil
	}
	return r[col]
}

func (s sheet) name(row int) string {
	v, _ := s.cell(row, nameColumn).(string)
	return strings.ToLower(strings.TrimSpace(v))
}

func (s sheet) nestPrices(row int, isPrice bool) NestPrices {
	out := make(NestPrices, len(NestSizes))
	for _, n := range NestSizes {
		out[n] = ParseNumber(s.cell(row, nestColumns[n]), isPrice)
	}
	return out
}

func (s sheet) section(sec optionSection) map[string]NestPrices {
	out := map[string]NestPrices{}
	for row := sec.first; row <= sec.last; row++ {
		name := s.name(row)
		if name == "" {
			continue
		}
		key, ok := sec.aliases[name]
		if !ok {
			key = name
		}
		out[key] = s.nestPrices(row, true)
	}
	return out
}

// ParseSheet builds a PriceTable from the rows of SheetRange.
func ParseSheet(rows [][]any) (*PriceTable, error) {
	s := sheet(rows)
	t := NewPriceTable()

	anyPrice := false
	for _, n := range NestSizes {
		col := nestColumns[n]
		price := ParseNumber(s.cell(rowNestPrice, col), true)
		area := ParseNumber(s.cell(rowNestArea, col), false)
		perSqm := decimal.Zero
		if area.IsPositive() && price.IsPositive() {
			perSqm = price.Div(area).Round(0)
		}
		if price.IsPositive() {
			anyPrice = true
		}
		t.Nest[n] = NestInfo{Price: price, PricePerSqm: perSqm, SquareMeters: area}

		t.Geschossdecke.MaxAmounts[n] = int(ParseNumber(s.cell(rowGeschossdecke, col), false).IntPart())
	}
	if !anyPrice {
		return nil, ErrSheetEmpty
	}
	t.Geschossdecke.BasePrice = ParseNumber(s.cell(rowGeschossdecke, baseColumn), true)

	t.Gebaeudehuelle = s.section(gebaeudehuelleSection)
	t.Innenverkleidung = s.section(innenverkleidungSection)
	t.Bodenbelag = s.section(bodenbelagSection)
	t.Bodenaufbau = s.section(bodenaufbauSection)
	t.Belichtungspaket = s.section(belichtungSection)

	for i := 0; i < 16; i++ {
		row := rowPVFirst + i
		if row > len(rows) {
			break
		}
		for _, n := range NestSizes {
			if t.PVAnlage.PricesByQuantity[n] == nil {
				t.PVAnlage.PricesByQuantity[n] = map[int]decimal.Decimal{}
			}
			t.PVAnlage.PricesByQuantity[n][i+1] = ParseNumber(s.cell(row, nestColumns[n]), true)
		}
	}

	row := rowFensterFirst
	for _, material := range []string{FensterHolz, FensterAluminium, FensterPVC} {
		byNest := map[NestSize]map[string]decimal.Decimal{}
		for _, level := range []string{BelichtungLight, BelichtungMedium, BelichtungBright} {
			for _, n := range NestSizes {
				if byNest[n] == nil {
					byNest[n] = map[string]decimal.Decimal{}
				}
				byNest[n][level] = ParseNumber(s.cell(row, nestColumns[n]), true)
			}
			row++
		}
		t.Fenster[material] = byNest
	}

	t.Kaminschacht = ParseNumber(s.cell(rowKaminschacht, nestColumns[Nest80]), false)
	if t.Kaminschacht.IsZero() {
		t.Kaminschacht = defaultKaminschacht
	}
	t.Fundament = s.nestPrices(rowFundament, true)

	plus := ParseNumber(s.cell(rowPlanungPlus, nestColumns[Nest80]), true)
	if plus.IsZero() {
		plus = defaultPlanungPlus
	}
	pro := ParseNumber(s.cell(rowPlanungPro, nestColumns[Nest80]), true)
	if pro.IsZero() {
		pro = defaultPlanungPro
	}
	t.Planungspaket[PlanungPlus] = Uniform(plus)
	t.Planungspaket[PlanungPro] = Uniform(pro)

	return t, nil
}

// Validate checks that every size has a base price.
func (t *PriceTable) Validate() error {
	for _, n := range NestSizes {
		info, ok := t.Nest[n]
		if !ok || !info.Price.IsPositive() {
			return fmt.Errorf("pricing: missing base price for %s", n)
		}
	}
	return nil
}
