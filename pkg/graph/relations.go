package graph

import (
	"strings"

	"github.com/athapong/fingraph/pkg/graph/catalog"
)

// TierScale discounts an edge by the priority of the relationship category
// that produced it.
func TierScale(priority int) float64 {
	switch {
	case priority <= 2:
		return 1.0
	case priority <= 4:
		return 0.9
	case priority <= 7:
		return 0.8
	default:
		return 0.7
	}
}

type relation struct {
	source, target int
	category       catalog.Category
	rule           catalog.Rule
	window         string
}

// relations applies the relationship catalog to every co-occurring pair of
// entities. Each pair yields at most one edge: the first rule, in category
// priority order, that accepts the pair in either direction.
func (b *Builder) relations(doc RawDocument, entities EntitySet) []relation {
	var out []relation
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			window, ok := sharedWindow(doc.Text, entities[i], entities[j])
			if !ok {
				continue
			}
			if r, ok := b.match(entities, i, j, window); ok {
				out = append(out, r)
			}
		}
	}
	return out
}

func (b *Builder) match(entities EntitySet, i, j int, window string) (relation, bool) {
	for _, cat := range b.catalog.Relationships() {
		if !cat.Fallback && !cat.Match(window) {
			continue
		}
		for _, dir := range [2][2]int{{i, j}, {j, i}} {
			src, tgt := entities[dir[0]], entities[dir[1]]
			for _, rule := range cat.Rules {
				if rule.Accepts(string(src.Type), string(tgt.Type)) && rule.MatchWindow(window) {
					return relation{source: dir[0], target: dir[1], category: cat, rule: rule, window: window}, true
				}
			}
		}
	}
	return relation{}, false
}

// sharedWindow returns the text two entities co-occur in: the sentence both
// were found in, a sentence of one that also names the other, or the whole
// document when either entity has no sentence context.
func sharedWindow(text string, a, b ExtractedEntity) (string, bool) {
	switch {
	case a.Context == "" || b.Context == "":
		return text, strings.TrimSpace(text) != ""
	case a.Context == b.Context:
		return a.Context, true
	case mentions(a.Context, b.Name):
		return a.Context, true
	case mentions(b.Context, a.Name):
		return b.Context, true
	}
	return "", false
}

func mentions(window, name string) bool {
	return name != "" && strings.Contains(strings.ToLower(window), strings.ToLower(name))
}
