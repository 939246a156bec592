package processors

import (
	"regexp"
	"strings"

	"github.com/athapong/fingraph/pkg/graph"
)

const (
	priceTargetConfidence = 0.90
	metricConfidence      = 0.80
	percentageConfidence  = 0.85
)

// An amount needs a currency sign or a unit so bare years and quarters are skipped.
const amount = `\$\s?\d[\d,]*(?:\.\d+)?(?:\s*(?:trillion|billion|million|bn|mm|[bmk])\b)?|\d[\d,]*(?:\.\d+)?\s*(?:%|percent\b|trillion\b|billion\b|million\b|bn\b|mm\b)`

var (
	// "$500 price target", "$500 PT"
	targetAfterRe = regexp.MustCompile(`(?i)\$\s?(\d[\d,]*(?:\.\d+)?)\s*(?:price target|target price|target|pt)\b`)
	// "price target of $500", "price target to $500 from $450", "PT $500"
	targetBeforeRe = regexp.MustCompile(`(?i)\b(?:price target|target price|pt)\s+(?:(?:of|to|at|raised to|lowered to|cut to|from\s+\$?\s?[\d,.]+\s+to)\s+)?\$\s?(\d[\d,]*(?:\.\d+)?)`)

	metricRe = regexp.MustCompile(`(?i)\b(revenues?|sales|eps|earnings per share|ebitda|ebit|net income|operating income|free cash flow|gross margin|operating margin|margin|guidance|dividend|buybacks?|capex|market cap)\b[^.\n$\d]{0,40}?(` + amount + `)`)

	leadingNumber = regexp.MustCompile(`\$?\s?\d[\d,]*(?:\.\d+)?`)

	percentRe   = regexp.MustCompile(`(?i)([+-]?\d+(?:\.\d+)?)\s?(%|percent\b|pct\b)`)
	directionRe = regexp.MustCompile(`(?i)\b(rose|rise[sn]?|gain\w*|jump\w*|surg\w*|climb\w*|up|increas\w*|grew|growth|fell|fall\w*|drop\w*|declin\w*|slump\w*|plung\w*|down|decreas\w*|lost)\b`)
	downwardRe  = regexp.MustCompile(`(?i)\b(fell|fall\w*|drop\w*|declin\w*|slump\w*|plung\w*|down|decreas\w*|lost)\b`)
)

// ExtractPriceTargets finds dollar price targets. The entity is named by the
// bare amount ("500") and marked kind=price_target.
func ExtractPriceTargets(text string) (graph.EntitySet, error) {
	sentences := splitSentences(text)
	out := make(graph.EntitySet, 0)
	taken := make([]span, 0)

	for _, re := range []*regexp.Regexp{targetAfterRe, targetBeforeRe} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			s := span{m[2], m[3]}
			if overlapsAny(s, taken) {
				continue
			}
			value := normalizeNumber(text[m[2]:m[3]])
			e := graph.NewEntity(value, graph.TypePriceTarget, priceTargetConfidence)
			e.Context = contextAt(text, sentences, m[0])
			e.Attributes = map[string]string{
				"kind":     "price_target",
				"currency": "USD",
				"value":    value,
			}
			out = append(out, e)
			taken = append(taken, s)
		}
	}
	return out, nil
}

// ExtractMetrics binds amounts to the financial keyword that precedes them,
// for example "revenue of $35.1 billion".
func ExtractMetrics(text string) (graph.EntitySet, error) {
	sentences := splitSentences(text)
	out := make(graph.EntitySet, 0)

	for _, m := range metricRe.FindAllStringSubmatchIndex(text, -1) {
		metric := strings.ToLower(text[m[2]:m[3]])
		value := strings.TrimSpace(text[m[4]:m[5]])
		e := graph.NewEntity(value, graph.TypeFinancialMetric, metricConfidence)
		e.Context = contextAt(text, sentences, m[0])
		e.Attributes = map[string]string{
			"metric": metric,
			"value":  normalizeNumber(leadingNumber.FindString(value)),
		}
		if strings.HasPrefix(value, "$") {
			e.Attributes["currency"] = "USD"
		}
		out = append(out, e)
	}
	return out, nil
}

// ExtractPercentages finds percentages ("12.5%", "12 percent") and records
// the direction of a nearby move when there is one.
func ExtractPercentages(text string) (graph.EntitySet, error) {
	sentences := splitSentences(text)
	out := make(graph.EntitySet, 0)

	for _, m := range percentRe.FindAllStringSubmatchIndex(text, -1) {
		value := text[m[2]:m[3]]
		ctx := contextAt(text, sentences, m[0])
		e := graph.NewEntity(value+"%", graph.TypePercentage, percentageConfidence)
		e.Context = ctx
		e.Attributes = map[string]string{"value": value}
		if directionRe.MatchString(ctx) {
			if downwardRe.MatchString(ctx) || strings.HasPrefix(value, "-") {
				e.Attributes["direction"] = "down"
			} else {
				e.Attributes["direction"] = "up"
			}
		}
		out = append(out, e)
	}
	return out, nil
}
