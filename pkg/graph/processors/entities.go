package processors

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/athapong/fingraph/pkg/graph"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jdkato/prose/v2"
)

const (
	aliasConfidence  = 0.95
	suffixConfidence = 0.85
	nerConfidence    = 0.65
)

// companyAliases maps lower-case aliases to canonical company names.
var companyAliases = map[string]string{
	"goldman sachs":          "Goldman Sachs",
	"goldman":                "Goldman Sachs",
	"morgan stanley":         "Morgan Stanley",
	"jpmorgan":               "JPMorgan Chase",
	"jp morgan":              "JPMorgan Chase",
	"j.p. morgan":            "JPMorgan Chase",
	"jpmorgan chase":         "JPMorgan Chase",
	"bank of america":        "Bank of America",
	"bofa":                   "Bank of America",
	"citigroup":              "Citigroup",
	"citi":                   "Citigroup",
	"wells fargo":            "Wells Fargo",
	"barclays":               "Barclays",
	"ubs":                    "UBS",
	"deutsche bank":          "Deutsche Bank",
	"hsbc":                   "HSBC",
	"blackrock":              "BlackRock",
	"bernstein":              "Bernstein",
	"jefferies":              "Jefferies",
	"evercore":               "Evercore",
	"piper sandler":          "Piper Sandler",
	"wedbush":                "Wedbush",
	"mizuho":                 "Mizuho",
	"nomura":                 "Nomura",
	"berkshire hathaway":     "Berkshire Hathaway",
	"nvidia":                 "NVIDIA",
	"nvidia corporation":     "NVIDIA",
	"nvidia corp":            "NVIDIA",
	"apple":                  "Apple",
	"apple inc":              "Apple",
	"microsoft":              "Microsoft",
	"alphabet":               "Alphabet",
	"google":                 "Alphabet",
	"amazon":                 "Amazon",
	"meta platforms":         "Meta Platforms",
	"tesla":                  "Tesla",
	"intel":                  "Intel",
	"amd":                    "AMD",
	"advanced micro devices": "AMD",
	"broadcom":               "Broadcom",
	"qualcomm":               "Qualcomm",
	"tsmc":                   "TSMC",
	"taiwan semiconductor":   "TSMC",
	"samsung":                "Samsung",
	"oracle":                 "Oracle",
	"salesforce":             "Salesforce",
	"netflix":                "Netflix",
}

var (
	aliasRe  = buildAliasRegexp(companyAliases)
	suffixRe = regexp.MustCompile(`\b(?:[A-Z][\w'\-]*\s+){1,4}(?:Inc|Incorporated|Corp|Corporation|Ltd|Limited|LLC|PLC|Plc|Group|Holdings|Bancorp)\b\.?|\b(?:[A-Z][\w'\-]*\s+){1,3}&\s*Co\b\.?`)

	// nerStopwords are NER hits that are vocabulary rather than names.
	nerStopwords = mapset.NewSet[string]("shares", "stock", "analysts", "revenue", "earnings", "guidance", "the")
)

func buildAliasRegexp(aliases map[string]string) *regexp.Regexp {
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	// longest first so "goldman sachs" wins over "goldman"
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(keys, "|") + `)\b`)
}

// CanonicalCompany resolves an alias to its canonical name.
func CanonicalCompany(name string) (string, bool) {
	c, ok := companyAliases[graph.NormalizeName(strings.TrimSuffix(name, "."))]
	return c, ok
}

// ExtractCompanies finds companies through the alias table and the
// corporate-suffix pattern. Alias hits win over overlapping suffix hits.
func ExtractCompanies(text string) (graph.EntitySet, error) {
	sentences := splitSentences(text)
	out := make(graph.EntitySet, 0)
	taken := make([]span, 0)

	for _, m := range aliasRe.FindAllStringIndex(text, -1) {
		surface := text[m[0]:m[1]]
		if !startsUpper(surface) {
			continue
		}
		canonical, ok := CanonicalCompany(surface)
		if !ok {
			continue
		}
		e := graph.NewEntity(canonical, graph.TypeCompany, aliasConfidence)
		e.Context = contextAt(text, sentences, m[0])
		e.Attributes = map[string]string{"match": "alias"}
		if !strings.EqualFold(surface, canonical) {
			e.Attributes["alias"] = surface
		}
		out = append(out, e)
		taken = append(taken, span{m[0], m[1]})
	}

	for _, m := range suffixRe.FindAllStringIndex(text, -1) {
		s := span{m[0], m[1]}
		if overlapsAny(s, taken) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimSpace(text[m[0]:m[1]]), ".")
		e := graph.NewEntity(name, graph.TypeCompany, suffixConfidence)
		e.Context = contextAt(text, sentences, m[0])
		e.Attributes = map[string]string{"match": "suffix"}
		out = append(out, e)
		taken = append(taken, s)
	}
	return out, nil
}

// ExtractPersons runs prose named-entity recognition. PERSON hits become
// persons and ORG hits companies; anything the alias table or suffix
// pattern already covers, ticker-like tokens and rating words are dropped.
func ExtractPersons(text string) (graph.EntitySet, error) {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil, err
	}

	sentences := splitSentences(text)
	out := make(graph.EntitySet, 0)
	for _, ent := range doc.Entities() {
		name := strings.TrimSpace(ent.Text)
		var typ graph.EntityType
		switch ent.Label {
		case "PERSON":
			typ = graph.TypePerson
		case "ORG", "ORGANIZATION":
			typ = graph.TypeCompany
		default:
			continue
		}
		if !plausibleName(name) {
			continue
		}

		e := graph.NewEntity(name, typ, nerConfidence)
		if pos := strings.Index(text, name); pos >= 0 {
			e.Context = contextAt(text, sentences, pos)
		}
		e.Attributes = map[string]string{"match": "ner"}
		out = append(out, e)
	}
	return out, nil
}

func plausibleName(name string) bool {
	if len(name) < 2 || !startsUpper(name) {
		return false
	}
	if aliasRe.MatchString(name) || suffixRe.MatchString(name) {
		return false
	}
	if ratingRe.MatchString(name) || nerStopwords.Contains(strings.ToLower(name)) {
		return false
	}
	for _, f := range strings.Fields(name) {
		if bareTicker.MatchString(f) && len(f) <= 5 && f == strings.ToUpper(f) {
			return false
		}
	}
	return !strings.ContainsAny(name, "0123456789$%")
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
