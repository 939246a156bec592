package processors

import (
	"regexp"
	"strings"

	"github.com/athapong/fingraph/pkg/graph"
	mapset "github.com/deckarep/golang-set/v2"
)

// Normalized rating signals carried in the "signal" attribute.
const (
	SignalBuy  = "BUY"
	SignalHold = "HOLD"
	SignalSell = "SELL"
)

type ratingClass struct {
	signal   string
	strength float64
}

var ratingClasses = map[string]ratingClass{
	"strong buy":     {SignalBuy, 0.90},
	"conviction buy": {SignalBuy, 0.90},
	"buy":            {SignalBuy, 0.80},
	"outperform":     {SignalBuy, 0.80},
	"overweight":     {SignalBuy, 0.75},
	"accumulate":     {SignalBuy, 0.70},
	"market perform": {SignalHold, 0.70},
	"equal weight":   {SignalHold, 0.70},
	"hold":           {SignalHold, 0.75},
	"neutral":        {SignalHold, 0.70},
	"strong sell":    {SignalSell, 0.90},
	"sell":           {SignalSell, 0.80},
	"underperform":   {SignalSell, 0.80},
	"underweight":    {SignalSell, 0.75},
	"reduce":         {SignalSell, 0.65},
}

var (
	ratingRe = regexp.MustCompile(`(?i)\b(strong buy|conviction buy|strong sell|market perform|equal[ -]weight|outperform|underperform|overweight|underweight|accumulate|neutral|reduce|buy|hold|sell)\b`)

	// Generic verbs only count as ratings in upper case or next to rating vocabulary.
	genericRatings = mapset.NewSet[string]("buy", "sell", "hold", "reduce", "neutral", "accumulate")
	ratingCueRe    = regexp.MustCompile(`(?i)\b(rating|rated|rates|upgrade[sd]?|downgrade[sd]?|recommend\w*|reiterat\w*|initiat\w*|maintain\w*|analysts?|price target|coverage)\b`)

	ratingQualifierRe = regexp.MustCompile(`(?i)\b(upgrade[sd]?|raised|raises|reiterat\w*|initiat\w*|maintain\w*|affirm\w*|top pick)\b`)
	ratingHedgeRe     = regexp.MustCompile(`(?i)\b(may|might|could|considering|consider|possible|possibly|potential|rumou?r\w*|reportedly|weighing)\b`)
)

const (
	qualifierBoost = 0.10
	hedgePenalty   = 0.15
)

// ExtractRatings finds analyst rating signals. Confidence starts at the
// strength of the rating class, rises with qualifiers such as "upgraded" and
// falls with hedges such as "could".
func ExtractRatings(text string) (graph.EntitySet, error) {
	sentences := splitSentences(text)
	out := make(graph.EntitySet, 0)

	for _, m := range ratingRe.FindAllStringIndex(text, -1) {
		surface := text[m[0]:m[1]]
		phrase := strings.ToLower(strings.ReplaceAll(surface, "-", " "))
		class := ratingClasses[phrase]
		ctx := contextAt(text, sentences, m[0])

		if genericRatings.Contains(phrase) && surface != strings.ToUpper(surface) && !ratingCueRe.MatchString(ctx) {
			continue
		}

		confidence := class.strength
		if ratingQualifierRe.MatchString(ctx) {
			confidence += qualifierBoost
		}
		if ratingHedgeRe.MatchString(ctx) {
			confidence -= hedgePenalty
		}

		e := graph.NewEntity(strings.ToUpper(phrase), graph.TypeRating, confidence)
		e.Context = ctx
		e.Attributes = map[string]string{"signal": class.signal}
		out = append(out, e)
	}
	return out, nil
}
