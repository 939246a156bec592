package processors

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/athapong/fingraph/pkg/graph"
	mapset "github.com/deckarep/golang-set/v2"
)

// Sentiment labels.
const (
	SentimentBullish = "bullish"
	SentimentBearish = "bearish"
	SentimentNeutral = "neutral"
)

const (
	noSignalConfidence = 0.30
	labelCutoff        = 0.2
)

var (
	bullishWords = mapset.NewSet[string](
		"bullish", "upgrade", "upgraded", "upgrades", "raised", "raises", "beat", "beats",
		"outperform", "overweight", "buy", "surge", "surged", "rally", "rallied", "gain",
		"gains", "gained", "record", "strong", "stronger", "positive", "optimistic",
		"upside", "exceeded", "exceeds", "accelerating", "momentum", "boost", "boosted",
	)
	bearishWords = mapset.NewSet[string](
		"bearish", "downgrade", "downgraded", "downgrades", "cut", "cuts", "lowered",
		"miss", "missed", "misses", "underperform", "underweight", "sell", "plunge",
		"plunged", "decline", "declined", "drop", "dropped", "weak", "weaker",
		"negative", "pessimistic", "downside", "warning", "warned", "loss", "losses",
		"slump", "slumped",
	)
	wordRe = regexp.MustCompile(`[a-z]+`)
)

// Sentiment is the aggregate signal of a document.
type Sentiment struct {
	Score      float64
	Label      string
	Confidence float64
	Bullish    int
	Bearish    int
}

// ScoreSentiment counts bullish and bearish words. The score is
// (b-s)/(b+s) in [-1,1]; with no signal at all it is 0 with low confidence.
func ScoreSentiment(text string) Sentiment {
	var b, s int
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		switch {
		case bullishWords.Contains(w):
			b++
		case bearishWords.Contains(w):
			s++
		}
	}

	total := b + s
	if total == 0 {
		return Sentiment{Label: SentimentNeutral, Confidence: noSignalConfidence}
	}

	score := float64(b-s) / float64(total)
	label := SentimentNeutral
	switch {
	case score > labelCutoff:
		label = SentimentBullish
	case score < -labelCutoff:
		label = SentimentBearish
	}
	return Sentiment{
		Score:      score,
		Label:      label,
		Confidence: math.Min(0.95, 0.5+0.1*float64(total)),
		Bullish:    b,
		Bearish:    s,
	}
}

// ExtractSentiment emits the document sentiment as a single entity.
func ExtractSentiment(text string) (graph.EntitySet, error) {
	s := ScoreSentiment(text)
	e := graph.NewEntity(s.Label, graph.TypeSentiment, s.Confidence)
	e.Attributes = map[string]string{
		"score":   fmt.Sprintf("%.2f", s.Score),
		"bullish": fmt.Sprint(s.Bullish),
		"bearish": fmt.Sprint(s.Bearish),
	}
	return graph.EntitySet{e}, nil
}
