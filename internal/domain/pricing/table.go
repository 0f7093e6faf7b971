// Package pricing models the configurator price table and the arithmetic on top of it.
package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// NestSize identifies a house module size.
type NestSize string

const (
	Nest80  NestSize = "nest80"
	Nest100 NestSize = "nest100"
	Nest120 NestSize = "nest120"
	Nest140 NestSize = "nest140"
	Nest160 NestSize = "nest160"
)

// NestSizes lists all sizes in ascending order.
var NestSizes = []NestSize{Nest80, Nest100, Nest120, Nest140, Nest160}

// Valid reports whether n is a known size.
func (n NestSize) Valid() bool {
	for _, s := range NestSizes {
		if s == n {
			return true
		}
	}
	return false
}

// Selection categories.
const (
	CategoryNest              = "nest"
	CategoryGebaeudehuelle    = "gebaeudehuelle"
	CategoryInnenverkleidung  = "innenverkleidung"
	CategoryFussboden         = "fussboden"
	CategoryBodenaufbau       = "bodenaufbau"
	CategoryBelichtungspaket  = "belichtungspaket"
	CategoryFenster           = "fenster"
	CategoryPVAnlage          = "pvanlage"
	CategoryGeschossdecke     = "geschossdecke"
	CategoryPlanungspaket     = "planungspaket"
	CategoryKamindurchzug     = "kamindurchzug"
	CategoryFundament         = "fundament"
	CategoryGrundstueckscheck = "grundstueckscheck"
)

// Belichtung levels.
const (
	BelichtungLight  = "light"
	BelichtungMedium = "medium"
	BelichtungBright = "bright"
)

// Fenster materials in sheet order.
const (
	FensterHolz      = "holz"
	FensterAluminium = "aluminium_schwarz"
	FensterPVC       = "pvc_fenster"
)

// Planungspaket options.
const (
	PlanungBasis = "basis"
	PlanungPlus  = "plus"
	PlanungPro   = "pro"
)

// PriceOnRequest marks a cell shown as "-" in the sheet.
var PriceOnRequest = decimal.NewFromInt(-1)

// IsOnRequest reports whether d is the on-request marker.
func IsOnRequest(d decimal.Decimal) bool {
	return d.Equal(PriceOnRequest)
}

// Normalize maps the on-request marker to zero for arithmetic.
func Normalize(d decimal.Decimal) decimal.Decimal {
	if IsOnRequest(d) {
		return decimal.Zero
	}
	return d
}

// NestPrices holds one price per nest size.
type NestPrices map[NestSize]decimal.Decimal

// Uniform returns NestPrices with the same value for every size.
func Uniform(d decimal.Decimal) NestPrices {
	out := make(NestPrices, len(NestSizes))
	for _, n := range NestSizes {
		out[n] = d
	}
	return out
}

// NestInfo is the base module price and its size.
type NestInfo struct {
	Price        decimal.Decimal `json:"price"`
	PricePerSqm  decimal.Decimal `json:"pricePerSqm"`
	SquareMeters decimal.Decimal `json:"squareMeters"`
}

// Geschossdecke is the per-unit intermediate ceiling price and the max units per size.
type Geschossdecke struct {
	BasePrice  decimal.Decimal  `json:"basePrice"`
	MaxAmounts map[NestSize]int `json:"maxAmounts"`
}

// PVAnlage holds PV module prices by quantity per size.
type PVAnlage struct {
	PricesByQuantity map[NestSize]map[int]decimal.Decimal `json:"pricesByQuantity"`
	MaxModules       map[NestSize]int                     `json:"maxModules"`
}

// PriceTable is the full configurator price list.
type PriceTable struct {
	Nest             map[NestSize]NestInfo                              `json:"nest"`
	Geschossdecke    Geschossdecke                                      `json:"geschossdecke"`
	Gebaeudehuelle   map[string]NestPrices                              `json:"gebaeudehuelle"`
	Innenverkleidung map[string]NestPrices                              `json:"innenverkleidung"`
	Bodenbelag       map[string]NestPrices                              `json:"bodenbelag"`
	Bodenaufbau      map[string]NestPrices                              `json:"bodenaufbau"`
	Belichtungspaket map[string]NestPrices                              `json:"belichtungspaket"`
	Fenster          map[string]map[NestSize]map[string]decimal.Decimal `json:"fenster"`
	PVAnlage         PVAnlage                                           `json:"pvanlage"`
	Kaminschacht     decimal.Decimal                                    `json:"kaminschacht"`
	Fundament        NestPrices                                         `json:"fundament"`
	Planungspaket    map[string]NestPrices                              `json:"planungspaket"`
}

// DefaultMaxModules is the PV module limit per size.
var DefaultMaxModules = map[NestSize]int{Nest80: 8, Nest100: 10, Nest120: 12, Nest140: 14, Nest160: 16}

// NewPriceTable returns an empty table with all maps allocated.
func NewPriceTable() *PriceTable {
	maxModules := make(map[NestSize]int, len(DefaultMaxModules))
	for k, v := range DefaultMaxModules {
		maxModules[k] = v
	}
	return &PriceTable{
		Nest:             map[NestSize]NestInfo{},
		Geschossdecke:    Geschossdecke{MaxAmounts: map[NestSize]int{}},
		Gebaeudehuelle:   map[string]NestPrices{},
		Innenverkleidung: map[string]NestPrices{},
		Bodenbelag:       map[string]NestPrices{},
		Bodenaufbau:      map[string]NestPrices{},
		Belichtungspaket: map[string]NestPrices{},
		Fenster:          map[string]map[NestSize]map[string]decimal.Decimal{},
		PVAnlage: PVAnlage{
			PricesByQuantity: map[NestSize]map[int]decimal.Decimal{},
			MaxModules:       maxModules,
		},
		Fundament:     NestPrices{},
		Planungspaket: map[string]NestPrices{PlanungBasis: Uniform(decimal.Zero)},
	}
}

// Item is one priced cell of the table, used for change tracking.
type Item struct {
	Category string
	ItemKey  string
	Name     string
	NestSize NestSize
	Price    decimal.Decimal
}

// UniqueKey returns "<category>_<itemKey>".
func (i Item) UniqueKey() string {
	return i.Category + "_" + i.ItemKey
}

// Items flattens the table into priced cells in a stable order.
func (t *PriceTable) Items() []Item {
	var items []Item
	add := func(category, option string, n NestSize, price decimal.Decimal) {
		key := option
		if n != "" {
			key = fmt.Sprintf("%s_%s", option, n)
		}
		items = append(items, Item{Category: category, ItemKey: key, Name: option, NestSize: n, Price: price})
	}
	matrix := func(category string, m map[string]NestPrices) {
		for _, option := range sortedKeys(m) {
			for _, n := range NestSizes {
				if p, ok := m[option][n]; ok {
					add(category, option, n, p)
				}
			}
		}
	}

	for _, n := range NestSizes {
		if info, ok := t.Nest[n]; ok {
			add(CategoryNest, string(n), "", info.Price)
		}
	}
	add(CategoryGeschossdecke, "base", "", t.Geschossdecke.BasePrice)
	matrix(CategoryGebaeudehuelle, t.Gebaeudehuelle)
	matrix(CategoryInnenverkleidung, t.Innenverkleidung)
	matrix(CategoryFussboden, t.Bodenbelag)
	matrix(CategoryBodenaufbau, t.Bodenaufbau)
	matrix(CategoryBelichtungspaket, t.Belichtungspaket)
	for _, material := range sortedKeys(t.Fenster) {
		for _, n := range NestSizes {
			levels := t.Fenster[material][n]
			for _, level := range []string{BelichtungLight, BelichtungMedium, BelichtungBright} {
				if p, ok := levels[level]; ok {
					add(CategoryFenster, material+"_"+level, n, p)
				}
			}
		}
	}
	for _, n := range NestSizes {
		prices := t.PVAnlage.PricesByQuantity[n]
		qs := make([]int, 0, len(prices))
		for q := range prices {
			qs = append(qs, q)
		}
		sort.Ints(qs)
		for _, q := range qs {
			add(CategoryPVAnlage, fmt.Sprintf("%d_module", q), n, prices[q])
		}
	}
	add(CategoryKamindurchzug, "kaminschacht", "", t.Kaminschacht)
	for _, n := range NestSizes {
		if p, ok := t.Fundament[n]; ok {
			add(CategoryFundament, "fundament", n, p)
		}
	}
	matrix(CategoryPlanungspaket, t.Planungspaket)
	return items
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
