package pricing

import "github.com/shopspring/decimal"

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func np(p80, p100, p120, p140, p160 int64) NestPrices {
	return NestPrices{Nest80: d(p80), Nest100: d(p100), Nest120: d(p120), Nest140: d(p140), Nest160: d(p160)}
}

// testTable mirrors the December price list.
func testTable() *PriceTable {
	t := NewPriceTable()
	t.Nest = map[NestSize]NestInfo{
		Nest80:  {Price: d(213032), PricePerSqm: d(2840), SquareMeters: d(75)},
		Nest100: {Price: d(254731), PricePerSqm: d(2681), SquareMeters: d(95)},
		Nest120: {Price: d(296430), PricePerSqm: d(2578), SquareMeters: d(115)},
		Nest140: {Price: d(338129), PricePerSqm: d(2505), SquareMeters: d(135)},
		Nest160: {Price: d(379828), PricePerSqm: d(2451), SquareMeters: d(155)},
	}
	t.Geschossdecke = Geschossdecke{
		BasePrice:  d(4115),
		MaxAmounts: map[NestSize]int{Nest80: 3, Nest100: 4, Nest120: 5, Nest140: 6, Nest160: 7},
	}
	t.Gebaeudehuelle = map[string]NestPrices{
		"trapezblech": np(0, 0, 0, 0, 0),
		"holzlattung": np(24413, 30516, 36620, 42723, 48826),
	}
	t.Innenverkleidung = map[string]NestPrices{
		"ohne_innenverkleidung": np(0, 0, 0, 0, 0),
		"fichte":                np(23020, 28775, 34530, 40285, 46040),
	}
	t.Bodenbelag = map[string]NestPrices{
		"ohne_belag": np(0, 0, 0, 0, 0),
		"parkett":    np(9000, 11000, 13000, 15000, 17000),
	}
	t.Bodenaufbau = map[string]NestPrices{
		"ohne_heizung":                     np(0, 0, 0, 0, 0),
		"elektrische_fussbodenheizung":     np(-1, -1, -1, -1, -1),
		"wassergefuehrte_fussbodenheizung": np(-1, -1, -1, -1, -1),
	}
	t.Fenster = map[string]map[NestSize]map[string]decimal.Decimal{
		FensterPVC: {
			Nest80:  {BelichtungLight: d(15107), BelichtungMedium: d(19357), BelichtungBright: d(22235)},
			Nest100: {BelichtungLight: d(18884), BelichtungMedium: d(24196), BelichtungBright: d(27794)},
		},
		FensterHolz: {
			Nest80:  {BelichtungLight: d(21378), BelichtungMedium: d(26723), BelichtungBright: d(32068)},
			Nest100: {BelichtungLight: d(26723), BelichtungMedium: d(33404), BelichtungBright: d(40085)},
		},
		FensterAluminium: {
			Nest80:  {BelichtungLight: d(28322), BelichtungMedium: d(35403), BelichtungBright: d(42483)},
			Nest100: {BelichtungLight: d(35403), BelichtungMedium: d(44254), BelichtungBright: d(53104)},
		},
	}
	t.PVAnlage.PricesByQuantity = map[NestSize]map[int]decimal.Decimal{
		Nest80: {1: d(3934), 2: d(5298), 8: d(13485)},
	}
	t.Kaminschacht = d(887)
	t.Fundament = np(15000, 18000, 21000, 24000, 27000)
	t.Planungspaket = map[string]NestPrices{
		PlanungBasis: Uniform(decimal.Zero),
		PlanungPlus:  Uniform(d(4900)),
		PlanungPro:   Uniform(d(9600)),
	}
	return t
}

func baseSelection() Selections {
	return Selections{
		Nest:             Nest80,
		Gebaeudehuelle:   "trapezblech",
		Innenverkleidung: "ohne_innenverkleidung",
		Fussboden:        "ohne_belag",
	}
}
