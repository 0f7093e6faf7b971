package pricing

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/nest-haus/backend/internal/domain/shared"
)

// Selections is the priced state of a configurator session.
type Selections struct {
	Nest              NestSize `json:"nest,omitempty"`
	Gebaeudehuelle    string   `json:"gebaeudehuelle,omitempty"`
	Innenverkleidung  string   `json:"innenverkleidung,omitempty"`
	Fussboden         string   `json:"fussboden,omitempty"`
	Bodenaufbau       string   `json:"bodenaufbau,omitempty"`
	Belichtungspaket  string   `json:"belichtungspaket,omitempty"`
	Fenster           string   `json:"fenster,omitempty"`
	Planungspaket     string   `json:"planungspaket,omitempty"`
	Geschossdecke     int      `json:"geschossdecke,omitempty"`
	PVModules         int      `json:"pvanlage,omitempty"`
	Kamindurchzug     bool     `json:"kamindurchzug,omitempty"`
	Fundament         bool     `json:"fundament,omitempty"`
	Grundstueckscheck bool     `json:"grundstueckscheck,omitempty"`
}

// Complete reports whether the four mandatory categories are chosen.
func (s Selections) Complete() bool {
	return s.Nest != "" && s.Gebaeudehuelle != "" && s.Innenverkleidung != "" && s.Fussboden != ""
}

// With returns a copy of s with category set to option.
// Quantity categories take a number, flag categories take "true"/"false";
// an empty option clears the category.
func (s Selections) With(category, option string) (Selections, error) {
	out := s
	switch category {
	case CategoryNest:
		out.Nest = NestSize(option)
	case CategoryGebaeudehuelle:
		out.Gebaeudehuelle = option
	case CategoryInnenverkleidung:
		out.Innenverkleidung = option
	case CategoryFussboden:
		out.Fussboden = option
	case CategoryBodenaufbau:
		out.Bodenaufbau = option
	case CategoryBelichtungspaket:
		out.Belichtungspaket = option
	case CategoryFenster:
		out.Fenster = option
	case CategoryPlanungspaket:
		out.Planungspaket = option
	case CategoryGeschossdecke, CategoryPVAnlage:
		n := 0
		if option != "" {
			v, err := strconv.Atoi(option)
			if err != nil || v < 0 {
				return s, invalidOption(category, option)
			}
			n = v
		}
		if category == CategoryGeschossdecke {
			out.Geschossdecke = n
		} else {
			out.PVModules = n
		}
	case CategoryKamindurchzug, CategoryFundament, CategoryGrundstueckscheck:
		on := false
		if option != "" {
			v, err := strconv.ParseBool(option)
			if err != nil {
				return s, invalidOption(category, option)
			}
			on = v
		}
		switch category {
		case CategoryKamindurchzug:
			out.Kamindurchzug = on
		case CategoryFundament:
			out.Fundament = on
		default:
			out.Grundstueckscheck = on
		}
	default:
		return s, shared.ErrInvalidInput.WithMessage(fmt.Sprintf("unknown category %q", category))
	}
	return out, nil
}

func invalidOption(category, option string) error {
	return shared.ErrInvalidInput.WithMessage(fmt.Sprintf("unknown %s option %q", category, option))
}

// OptionPrice is one line of a price breakdown.
type OptionPrice struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Breakdown itemizes a total.
type Breakdown struct {
	BasePrice  decimal.Decimal        `json:"basePrice"`
	Options    map[string]OptionPrice `json:"options"`
	TotalPrice decimal.Decimal        `json:"totalPrice"`
}

// Calculator prices selections against a table.
type Calculator struct {
	table             *PriceTable
	grundstueckscheck decimal.Decimal
}

// NewCalculator creates a calculator. grundstueckscheck is the flat price of the plot check.
func NewCalculator(table *PriceTable, grundstueckscheck decimal.Decimal) *Calculator {
	return &Calculator{table: table, grundstueckscheck: grundstueckscheck}
}

// Table returns the underlying price table.
func (c *Calculator) Table() *PriceTable {
	return c.table
}

// Total returns the configuration price, or zero while a mandatory category is missing.
func (c *Calculator) Total(sel Selections) (decimal.Decimal, error) {
	b, err := c.Breakdown(sel)
	if err != nil {
		return decimal.Zero, err
	}
	return b.TotalPrice, nil
}

// Breakdown returns the base price and each priced option. TotalPrice is their sum.
func (c *Calculator) Breakdown(sel Selections) (Breakdown, error) {
	b := Breakdown{BasePrice: decimal.Zero, Options: map[string]OptionPrice{}, TotalPrice: decimal.Zero}
	if !sel.Complete() {
		return b, nil
	}

	nest, ok := c.table.Nest[sel.Nest]
	if !ok {
		return b, invalidOption(CategoryNest, string(sel.Nest))
	}
	b.BasePrice = Normalize(nest.Price)

	matrices := []struct {
		category string
		option   string
		prices   map[string]NestPrices
	}{
		{CategoryGebaeudehuelle, sel.Gebaeudehuelle, c.table.Gebaeudehuelle},
		{CategoryInnenverkleidung, sel.Innenverkleidung, c.table.Innenverkleidung},
		{CategoryFussboden, sel.Fussboden, c.table.Bodenbelag},
		{CategoryBodenaufbau, sel.Bodenaufbau, c.table.Bodenaufbau},
	}
	for _, m := range matrices {
		if m.option == "" {
			continue
		}
		row, ok := m.prices[m.option]
		if !ok {
			return b, invalidOption(m.category, m.option)
		}
		b.Options[m.category] = OptionPrice{Name: m.option, Price: Normalize(row[sel.Nest])}
	}

	if sel.Geschossdecke > 0 {
		qty := sel.Geschossdecke
		if limit, ok := c.table.Geschossdecke.MaxAmounts[sel.Nest]; ok && limit > 0 && qty > limit {
			qty = limit
		}
		b.Options[CategoryGeschossdecke] = OptionPrice{
			Name:  fmt.Sprintf("%dx Geschossdecke", qty),
			Price: Normalize(c.table.Geschossdecke.BasePrice).Mul(decimal.NewFromInt(int64(qty))),
		}
	}

	if sel.Fenster != "" || sel.Belichtungspaket != "" {
		price, name, err := c.fensterPrice(sel)
		if err != nil {
			return b, err
		}
		b.Options[CategoryFenster] = OptionPrice{Name: name, Price: price}
	}

	if sel.PVModules > 0 {
		qty := sel.PVModules
		if limit := c.table.PVAnlage.MaxModules[sel.Nest]; limit > 0 && qty > limit {
			qty = limit
		}
		b.Options[CategoryPVAnlage] = OptionPrice{
			Name:  fmt.Sprintf("%d Module", qty),
			Price: Normalize(c.table.PVAnlage.PricesByQuantity[sel.Nest][qty]),
		}
	}

	if sel.Planungspaket != "" {
		row, ok := c.table.Planungspaket[sel.Planungspaket]
		if !ok {
			return b, invalidOption(CategoryPlanungspaket, sel.Planungspaket)
		}
		b.Options[CategoryPlanungspaket] = OptionPrice{Name: sel.Planungspaket, Price: Normalize(row[sel.Nest])}
	}

	if sel.Kamindurchzug {
		b.Options[CategoryKamindurchzug] = OptionPrice{Name: "Kaminschacht", Price: Normalize(c.table.Kaminschacht)}
	}
	if sel.Fundament {
		b.Options[CategoryFundament] = OptionPrice{Name: "Fundament", Price: Normalize(c.table.Fundament[sel.Nest])}
	}
	if sel.Grundstueckscheck {
		b.Options[CategoryGrundstueckscheck] = OptionPrice{Name: "Grundstückscheck", Price: c.grundstueckscheck}
	}

	total := b.BasePrice
	for _, opt := range b.Options {
		total = total.Add(opt.Price)
	}
	b.TotalPrice = total
	return b, nil
}

// fensterPrice looks up the combined window and lighting price. A lighting
// package without a window material is priced with PVC windows, a material
// without a lighting package with the light package.
func (c *Calculator) fensterPrice(sel Selections) (decimal.Decimal, string, error) {
	material := sel.Fenster
	if material == "" {
		material = FensterPVC
	}
	level := sel.Belichtungspaket
	if level == "" {
		level = BelichtungLight
	}
	byNest, ok := c.table.Fenster[material]
	if !ok {
		return decimal.Zero, "", invalidOption(CategoryFenster, material)
	}
	price, ok := byNest[sel.Nest][level]
	if !ok {
		return decimal.Zero, "", invalidOption(CategoryBelichtungspaket, level)
	}
	return Normalize(price), material + " / " + level, nil
}

// RelativePrice is the price change of switching category to option from the current selection.
func (c *Calculator) RelativePrice(sel Selections, category, option string) (decimal.Decimal, error) {
	next, err := sel.With(category, option)
	if err != nil {
		return decimal.Zero, err
	}
	before, err := c.Total(sel)
	if err != nil {
		return decimal.Zero, err
	}
	after, err := c.Total(next)
	if err != nil {
		return decimal.Zero, err
	}
	return after.Sub(before), nil
}

var baseNutzflaeche = map[NestSize]decimal.Decimal{
	Nest80:  decimal.NewFromInt(75),
	Nest100: decimal.NewFromInt(95),
	Nest120: decimal.NewFromInt(115),
	Nest140: decimal.NewFromInt(135),
	Nest160: decimal.NewFromInt(155),
}

var geschossdeckeArea = decimal.RequireFromString("6.5")

// Nutzflaeche returns the usable floor area including intermediate ceilings.
func Nutzflaeche(nest NestSize, geschossdecken int) decimal.Decimal {
	base, ok := baseNutzflaeche[nest]
	if !ok {
		return decimal.Zero
	}
	if geschossdecken < 0 {
		geschossdecken = 0
	}
	return base.Add(geschossdeckeArea.Mul(decimal.NewFromInt(int64(geschossdecken))))
}

// PricePerSqm divides price by the usable area, rounded to whole euros.
func PricePerSqm(price decimal.Decimal, nest NestSize, geschossdecken int) decimal.Decimal {
	area := Nutzflaeche(nest, geschossdecken)
	if area.IsZero() || IsOnRequest(price) {
		return decimal.Zero
	}
	return price.Div(area).Round(0)
}

var belichtungShare = map[string]decimal.Decimal{
	BelichtungLight:  decimal.RequireFromString("0.15"),
	BelichtungMedium: decimal.RequireFromString("0.22"),
	BelichtungBright: decimal.RequireFromString("0.28"),
}

// FensterPricePerSqm returns the window price per m² of glazing. Intermediate
// ceilings do not change the glazing area.
func (c *Calculator) FensterPricePerSqm(material string, nest NestSize, belichtung string) decimal.Decimal {
	share, ok := belichtungShare[belichtung]
	if !ok {
		return decimal.Zero
	}
	price, ok := c.table.Fenster[material][nest][belichtung]
	if !ok || IsOnRequest(price) {
		return decimal.Zero
	}
	area := Nutzflaeche(nest, 0).Mul(share)
	if area.IsZero() {
		return decimal.Zero
	}
	return price.Div(area).Round(0)
}

// MonthlyPayment is the annuity for total over months at 3.5% p.a., in whole euros.
func MonthlyPayment(total decimal.Decimal, months int) decimal.Decimal {
	if months <= 0 {
		months = 240
	}
	rate := 0.035 / 12
	factor := math.Pow(1+rate, float64(months))
	payment := total.InexactFloat64() * (rate * factor) / (factor - 1)
	return decimal.NewFromFloat(payment).Round(0)
}

// Discount returns the rounded percentage saved going from original to discounted.
func Discount(original, discounted decimal.Decimal) int64 {
	if !original.IsPositive() {
		return 0
	}
	return original.Sub(discounted).Div(original).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
