package processors

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/athapong/fingraph/pkg/graph"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

const (
	dayDateConfidence      = 0.90
	periodDateConfidence   = 0.85
	relativeDateConfidence = 0.70
)

const monthNames = `Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?`

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	longDateRe  = regexp.MustCompile(`\b(` + monthNames + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	monthYearRe = regexp.MustCompile(`\b(` + monthNames + `)\.?\s+(\d{4})\b`)
	quarterRe   = regexp.MustCompile(`\b([1-4])Q\s?'?(\d{4}|\d{2})\b|\bQ([1-4])\s?(?:FY)?\s?'?(\d{4}|\d{2})\b`)
	fiscalRe    = regexp.MustCompile(`\bFY\s?'?(\d{4}|\d{2})\b`)
	relativeRe  = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|yesterday|(?:next|last|this)\s+(?:week|month|year|monday|tuesday|wednesday|thursday|friday|saturday|sunday)|in\s+\d+\s+(?:days?|weeks?|months?))\b`)
)

// DateExtractor finds calendar dates. Relative phrases are resolved against
// Base, normally the document timestamp.
type DateExtractor struct {
	Base time.Time
	w    *when.Parser
}

// NewDateExtractor returns an extractor resolving relative dates against base.
func NewDateExtractor(base time.Time) *DateExtractor {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &DateExtractor{Base: base, w: w}
}

// Extract finds ISO dates, "October 2, 2025", "Oct 2025", "Q3 2025",
// "FY2026" and relative phrases such as "next Tuesday". The entity name is
// the text as written; the "normalized" attribute holds the canonical form.
func (d *DateExtractor) Extract(text string) (graph.EntitySet, error) {
	sentences := splitSentences(text)
	out := make(graph.EntitySet, 0)
	taken := make([]span, 0)

	add := func(m []int, normalized, granularity string, confidence float64) {
		s := span{m[0], m[1]}
		if overlapsAny(s, taken) {
			return
		}
		e := graph.NewEntity(text[m[0]:m[1]], graph.TypeDate, confidence)
		e.Context = contextAt(text, sentences, m[0])
		e.Attributes = map[string]string{"normalized": normalized, "granularity": granularity}
		out = append(out, e)
		taken = append(taken, s)
	}

	for _, m := range isoDateRe.FindAllStringSubmatchIndex(text, -1) {
		if t, err := time.Parse("2006-01-02", text[m[0]:m[1]]); err == nil {
			add(m, t.Format("2006-01-02"), "day", dayDateConfidence)
		}
	}
	for _, m := range longDateRe.FindAllStringSubmatchIndex(text, -1) {
		month, ok := parseMonth(text[m[2]:m[3]])
		if !ok {
			continue
		}
		raw := fmt.Sprintf("%s %s %s", month, text[m[4]:m[5]], text[m[6]:m[7]])
		if t, err := time.Parse("January 2 2006", raw); err == nil {
			add(m, t.Format("2006-01-02"), "day", dayDateConfidence)
		}
	}
	for _, m := range monthYearRe.FindAllStringSubmatchIndex(text, -1) {
		month, ok := parseMonth(text[m[2]:m[3]])
		if !ok {
			continue
		}
		if t, err := time.Parse("January 2006", month+" "+text[m[4]:m[5]]); err == nil {
			add(m, t.Format("2006-01"), "month", periodDateConfidence)
		}
	}
	for _, m := range quarterRe.FindAllStringSubmatchIndex(text, -1) {
		quarter, year := submatch(text, m, 1), submatch(text, m, 2)
		if quarter == "" {
			quarter, year = submatch(text, m, 3), submatch(text, m, 4)
		}
		add(m, fullYear(year)+"-Q"+quarter, "quarter", periodDateConfidence)
	}
	for _, m := range fiscalRe.FindAllStringSubmatchIndex(text, -1) {
		add(m, "FY"+fullYear(text[m[2]:m[3]]), "fiscal_year", periodDateConfidence)
	}

	base := d.Base
	if base.IsZero() {
		base = time.Now()
	}
	for _, m := range relativeRe.FindAllStringIndex(text, -1) {
		r, err := d.w.Parse(text[m[0]:m[1]], base)
		if err != nil || r == nil {
			continue
		}
		add(m, r.Time.Format("2006-01-02"), "relative", relativeDateConfidence)
	}
	return out, nil
}

func parseMonth(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSuffix(s, "."))
	if len(s) < 3 {
		return "", false
	}
	for m := time.January; m <= time.December; m++ {
		if strings.HasPrefix(strings.ToLower(m.String()), s[:3]) {
			return m.String(), true
		}
	}
	return "", false
}

func submatch(text string, m []int, group int) string {
	if m[2*group] < 0 {
		return ""
	}
	return text[m[2*group]:m[2*group+1]]
}

func fullYear(y string) string {
	if len(y) == 2 {
		return "20" + y
	}
	return y
}
