package pricing

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var dePrinter = message.NewPrinter(language.German)

// FormatEUR renders a whole-euro amount the way the configurator shows it,
// e.g. "213.032 €". The on-request marker renders as "-".
func FormatEUR(d decimal.Decimal) string {
	if IsOnRequest(d) {
		return "-"
	}
	return dePrinter.Sprintf("%d €", d.Round(0).IntPart())
}
