package processors

import (
	"regexp"
	"strings"

	"github.com/athapong/fingraph/pkg/graph"
	mapset "github.com/deckarep/golang-set/v2"
)

const (
	tickerConfidence          = 0.70
	qualifiedTickerConfidence = 0.90
	tickerContextBonus        = 0.05
)

var (
	bareTicker      = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
	cashTag         = regexp.MustCompile(`\$([A-Z]{1,5})\b`)
	exchangeTicker  = regexp.MustCompile(`\b(NASDAQ|NYSE|NYSEARCA|AMEX|LSE|TSX|ASX|HKEX|OTC)\s*:\s*([A-Z]{1,5})\b`)
	tickerContextRe = regexp.MustCompile(`(?i)\b(upgrade[sd]?|downgrade[sd]?|rating|rated|price target|target price|strong buy|buy|sell|hold|outperform|underperform|overweight|underweight|shares|stock)\b`)
)

// financialAcronyms are upper-case tokens that look like tickers but never
// are: financial acronyms, plus the short English words that show up in
// all-caps headlines.
var financialAcronyms = mapset.NewSet[string](
	// metrics and ratios
	"EPS", "EBIT", "EBITDA", "EBITA", "FCF", "ROE", "ROA", "ROI", "ROIC", "ROCE",
	"NAV", "AUM", "CAGR", "GAAP", "IFRS", "ARPU", "BPS", "PEG", "CAPEX", "OPEX",
	"NII", "NIM", "DCF", "WACC", "TTM", "LTM", "YOY", "QOQ", "MOM", "YTD", "MTD",
	// currencies
	"USD", "EUR", "GBP", "JPY", "CNY", "RMB", "HKD", "CAD", "AUD", "CHF", "INR",
	"KRW", "SGD", "TWD", "BRL", "MXN", "NZD", "SEK", "NOK", "THB",
	// periods and time
	"FY", "QTR", "EST", "EDT", "GMT", "UTC", "AM", "PM",
	// corporate titles
	"CEO", "CFO", "COO", "CTO", "CIO", "CMO", "EVP", "SVP", "VP", "MD", "IR",
	// corporate forms
	"INC", "CORP", "LTD", "LLC", "PLC", "AG", "SA", "NV", "SE", "CO",
	// market terms and ratings
	"IPO", "ETF", "ETFS", "ADR", "OTC", "NYSE", "AMEX", "ATH", "PT", "BUY", "SELL",
	"HOLD", "ESG", "SPAC", "REIT", "OK",
	// macro and regulators
	"GDP", "CPI", "PPI", "PMI", "FOMC", "FED", "ECB", "BOJ", "SEC", "FTC", "DOJ",
	"FDA", "IRS", "FINRA", "CFTC", "EU", "US", "USA", "UK",
	// technology
	"AI", "GPU", "GPUS", "CPU", "API", "AR", "VR", "IT", "EV", "EVS",
	// headline words
	"THE", "AND", "FOR", "WITH", "NEW", "NEWS", "NOTE", "LIVE",
	"RISE", "RISES", "FALL", "FALLS", "DROP", "DROPS", "JUMP", "JUMPS", "SOAR",
	"SOARS", "SINK", "SINKS", "BEAT", "BEATS", "MISS", "CUT", "CUTS", "SAYS",
	"SAID", "AFTER", "OVER", "FROM", "INTO", "AMID",
	// stopwords
	"A", "AN", "OR", "BUT", "IN", "ON", "AT", "TO", "OF", "BY", "AS", "IS",
	"UP", "IF", "BE", "NO", "SO", "DO", "WE", "HE", "ITS", "ARE", "WAS", "HAS",
	"NOT", "ALL",
)

// IsFinancialAcronym reports whether tok is on the ticker exclusion list.
func IsFinancialAcronym(tok string) bool {
	return financialAcronyms.Contains(strings.ToUpper(tok))
}

// ExtractTickers finds ticker symbols. Cash tags and exchange-qualified
// symbols are trusted more than bare upper-case tokens, and acronyms on the
// exclusion list are never emitted, not even in qualified form.
func ExtractTickers(text string) (graph.EntitySet, error) {
	sentences := splitSentences(text)
	out := make(graph.EntitySet, 0)
	taken := make([]span, 0)

	emit := func(symbol string, start, end int, confidence float64, attrs map[string]string) {
		if financialAcronyms.Contains(symbol) {
			return
		}
		ctx := contextAt(text, sentences, start)
		if tickerContextRe.MatchString(ctx) {
			confidence += tickerContextBonus
		}
		e := graph.NewEntity(symbol, graph.TypeTicker, confidence)
		e.Context = ctx
		e.Attributes = attrs
		out = append(out, e)
		taken = append(taken, span{start, end})
	}

	for _, m := range exchangeTicker.FindAllStringSubmatchIndex(text, -1) {
		exchange, symbol := text[m[2]:m[3]], text[m[4]:m[5]]
		emit(symbol, m[0], m[1], qualifiedTickerConfidence, map[string]string{"exchange": exchange})
	}
	for _, m := range cashTag.FindAllStringSubmatchIndex(text, -1) {
		emit(text[m[2]:m[3]], m[0], m[1], qualifiedTickerConfidence, map[string]string{"form": "cashtag"})
	}

	for _, m := range bareTicker.FindAllStringIndex(text, -1) {
		s := span{m[0], m[1]}
		if overlapsAny(s, taken) {
			continue
		}
		emit(text[m[0]:m[1]], m[0], m[1], tickerConfidence, nil)
	}
	return out, nil
}

func overlapsAny(s span, spans []span) bool {
	for _, o := range spans {
		if s.overlaps(o) {
			return true
		}
	}
	return false
}
