package processors

import (
	"testing"
	"time"

	"github.com/athapong/fingraph/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTickers(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		want       []string
		confidence []float64
	}{
		{"bare ticker with rating context", "Goldman Sachs raised NVDA to BUY with a $500 price target.", []string{"NVDA"}, []float64{0.75}},
		{"acronyms excluded", "EBIT rose while the RMB weakened against the USD.", nil, nil},
		{"cash tag", "Shares of $NVDA rallied.", []string{"NVDA"}, []float64{0.95}},
		{"exchange qualified", "Watching NASDAQ:AAPL today.", []string{"AAPL"}, []float64{0.90}},
		{"lower case is not a ticker", "nvda moved higher", nil, nil},
		{"all caps headline", "NVIDIA SHARES RISE ON AI DEMAND AS CEO SPEAKS", nil, nil},
		{"headline stopwords around a ticker", "NVDA UP AS CEO SPEAKS", []string{"NVDA"}, []float64{0.70}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractTickers(tt.text)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i, e := range got {
				assert.Equal(t, graph.TypeTicker, e.Type)
				assert.Equal(t, tt.want[i], e.Name)
				assert.InDelta(t, tt.confidence[i], e.Confidence, 1e-9)
				assert.NotEmpty(t, e.Context)
			}
		})
	}
}

func TestExchangeTickerAttribute(t *testing.T) {
	got, err := ExtractTickers("Watching NASDAQ:AAPL today.")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NASDAQ", got[0].Attributes["exchange"])
}

func TestIsFinancialAcronym(t *testing.T) {
	assert.True(t, IsFinancialAcronym("ebitda"))
	assert.True(t, IsFinancialAcronym("CEO"))
	assert.False(t, IsFinancialAcronym("NVDA"))
}

func TestExtractRatings(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		want       string
		signal     string
		confidence float64
	}{
		{"qualified upgrade", "Goldman Sachs raised NVDA to BUY.", "BUY", SignalBuy, 0.90},
		{"hedged upgrade", "Analysts could upgrade the stock to Outperform.", "OUTPERFORM", SignalBuy, 0.75},
		{"reiterated", "Morgan Stanley reiterated its Overweight rating.", "OVERWEIGHT", SignalBuy, 0.85},
		{"hyphenated", "Barclays moved the shares to equal-weight rating.", "EQUAL WEIGHT", SignalHold, 0.70},
		{"sell", "UBS downgraded Intel to Sell.", "SELL", SignalSell, 0.80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractRatings(tt.text)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Name)
			assert.Equal(t, tt.signal, got[0].Attributes["signal"])
			assert.InDelta(t, tt.confidence, got[0].Confidence, 1e-9)
		})
	}
}

func TestGenericVerbIsNotARating(t *testing.T) {
	got, err := ExtractRatings("Investors rushed to buy shares after the keynote.")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExtractCompanies(t *testing.T) {
	got, err := ExtractCompanies("Goldman raised its view on Nvidia Corporation. Acme Widgets Inc. posted results.")
	require.NoError(t, err)

	goldman, ok := got.Find(graph.TypeCompany, "Goldman Sachs")
	require.True(t, ok)
	assert.InDelta(t, 0.95, goldman.Confidence, 1e-9)
	assert.Equal(t, "Goldman", goldman.Attributes["alias"])

	nvidia, ok := got.Find(graph.TypeCompany, "NVIDIA")
	require.True(t, ok)
	assert.Equal(t, "alias", nvidia.Attributes["match"])

	acme, ok := got.Find(graph.TypeCompany, "Acme Widgets Inc")
	require.True(t, ok)
	assert.InDelta(t, 0.85, acme.Confidence, 1e-9)
	assert.Equal(t, "Acme Widgets Inc. posted results.", acme.Context)

	assert.Len(t, got, 3)
}

func TestLowerCaseAliasIsIgnored(t *testing.T) {
	got, err := ExtractCompanies("she baked an apple pie")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCanonicalCompany(t *testing.T) {
	name, ok := CanonicalCompany("JP Morgan")
	assert.True(t, ok)
	assert.Equal(t, "JPMorgan Chase", name)

	_, ok = CanonicalCompany("Unknown Widgets")
	assert.False(t, ok)
}

func TestPlausibleName(t *testing.T) {
	assert.True(t, plausibleName("Jensen Huang"))
	assert.False(t, plausibleName("Goldman Sachs"))
	assert.False(t, plausibleName("NVDA"))
	assert.False(t, plausibleName("Q3 2025"))
	assert.False(t, plausibleName("shares"))
}

func TestExtractPriceTargets(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"amount before phrase", "Goldman Sachs raised NVDA to BUY with a $500 price target.", "500"},
		{"phrase before amount", "Wedbush raised its price target to $1,200 from $1,000.", "1200"},
		{"abbreviation", "UBS sees upside with a $42.50 PT.", "42.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractPriceTargets(tt.text)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, graph.TypePriceTarget, got[0].Type)
			assert.Equal(t, tt.want, got[0].Name)
			assert.Equal(t, "USD", got[0].Attributes["currency"])
			assert.Equal(t, "price_target", got[0].Attributes["kind"])
			assert.InDelta(t, 0.90, got[0].Confidence, 1e-9)
		})
	}
}

func TestExtractMetrics(t *testing.T) {
	got, err := ExtractMetrics("Revenue of $35.1 billion beat estimates in 2025.")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "$35.1 billion", got[0].Name)
	assert.Equal(t, "revenue", got[0].Attributes["metric"])
	assert.Equal(t, "35.1", got[0].Attributes["value"])
	assert.Equal(t, "USD", got[0].Attributes["currency"])
}

func TestBareYearIsNotAMetric(t *testing.T) {
	got, err := ExtractMetrics("Revenue guidance for 2025 was reiterated.")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExtractPercentages(t *testing.T) {
	got, err := ExtractPercentages("Shares fell 3.5% after the report. Revenue grew 12 percent.")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "3.5%", got[0].Name)
	assert.Equal(t, "down", got[0].Attributes["direction"])
	assert.Equal(t, "12%", got[1].Name)
	assert.Equal(t, "up", got[1].Attributes["direction"])
}

func TestExtractDates(t *testing.T) {
	base := time.Date(2025, time.October, 1, 9, 0, 0, 0, time.UTC)
	d := NewDateExtractor(base)

	tests := []struct {
		name        string
		text        string
		surface     string
		normalized  string
		granularity string
	}{
		{"long form", "Results are due October 2, 2025.", "October 2, 2025", "2025-10-02", "day"},
		{"iso", "Filed on 2025-09-30.", "2025-09-30", "2025-09-30", "day"},
		{"month and year", "Shipments begin in Jan 2026.", "Jan 2026", "2026-01", "month"},
		{"quarter", "Margins expand in Q3 2025.", "Q3 2025", "2025-Q3", "quarter"},
		{"fiscal year", "Guidance for FY2026 was raised.", "FY2026", "FY2026", "fiscal_year"},
		{"relative", "The company reports tomorrow.", "tomorrow", "2025-10-02", "relative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Extract(tt.text)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, graph.TypeDate, got[0].Type)
			assert.Equal(t, tt.surface, got[0].Name)
			assert.Equal(t, tt.normalized, got[0].Attributes["normalized"])
			assert.Equal(t, tt.granularity, got[0].Attributes["granularity"])
		})
	}
}

func TestScoreSentiment(t *testing.T) {
	neutral := ScoreSentiment("The meeting starts at noon.")
	assert.Equal(t, 0.0, neutral.Score)
	assert.Equal(t, SentimentNeutral, neutral.Label)
	assert.InDelta(t, 0.30, neutral.Confidence, 1e-9)

	bullish := ScoreSentiment("NVDA surged after a strong beat.")
	assert.Equal(t, 1.0, bullish.Score)
	assert.Equal(t, SentimentBullish, bullish.Label)
	assert.InDelta(t, 0.80, bullish.Confidence, 1e-9)

	bearish := ScoreSentiment("Intel was downgraded after a weak quarter and shares plunged.")
	assert.Equal(t, SentimentBearish, bearish.Label)
	assert.Less(t, bearish.Score, 0.0)

	mixed := ScoreSentiment("Revenue beat but margins missed.")
	assert.Equal(t, SentimentNeutral, mixed.Label)
}

func TestExtractSentimentEmitsOneEntity(t *testing.T) {
	got, err := ExtractSentiment("Nothing to see here.")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, graph.TypeSentiment, got[0].Type)
	assert.Equal(t, SentimentNeutral, got[0].Name)
	assert.Equal(t, "0.00", got[0].Attributes["score"])
}

func TestSplitSentences(t *testing.T) {
	text := "Apple Inc. reported results. Shares rose 3%.\n\nNext paragraph"
	spans := splitSentences(text)
	require.Len(t, spans, 3)
	assert.Equal(t, "Apple Inc. reported results.", text[spans[0].start:spans[0].end])
	assert.Equal(t, "Shares rose 3%.", text[spans[1].start:spans[1].end])
	assert.Equal(t, "Next paragraph", text[spans[2].start:spans[2].end])
}
