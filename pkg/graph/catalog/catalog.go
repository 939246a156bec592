// Package catalog holds the versioned pattern tables that drive entity
// categorization and relationship discovery. A Catalog is built once, validated,
// and shared read-only by every component that needs it.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EntityCategory is one label of the closed entity taxonomy.
type EntityCategory string

const (
	Company              EntityCategory = "Company"
	FinancialMetric      EntityCategory = "Financial Metric"
	TechnologyProduct    EntityCategory = "Technology/Product"
	Geographic           EntityCategory = "Geographic"
	IndustrySector       EntityCategory = "Industry/Sector"
	MarketInfrastructure EntityCategory = "Market Infrastructure"
	RegulationEvent      EntityCategory = "Regulation/Event"
	MediaSource          EntityCategory = "Media/Source"
	Other                EntityCategory = "Other"
)

// RelationshipCategory is one label of the closed relationship taxonomy.
type RelationshipCategory string

const (
	RelFinancial   RelationshipCategory = "Financial"
	RelProductTech RelationshipCategory = "Product/Tech"
	RelCorporate   RelationshipCategory = "Corporate"
	RelIndustry    RelationshipCategory = "Industry"
	RelSupplyChain RelationshipCategory = "Supply Chain"
	RelMarket      RelationshipCategory = "Market"
	RelImpact      RelationshipCategory = "Impact/Correlation"
	RelRegulatory  RelationshipCategory = "Regulatory"
	RelMedia       RelationshipCategory = "Media/Analysis"
	RelOther       RelationshipCategory = "Other"
)

// EntityCategories lists the closed entity taxonomy.
var EntityCategories = []EntityCategory{
	Company, FinancialMetric, TechnologyProduct, Geographic, IndustrySector,
	MarketInfrastructure, RegulationEvent, MediaSource, Other,
}

// RelationshipCategories lists the closed relationship taxonomy.
var RelationshipCategories = []RelationshipCategory{
	RelFinancial, RelProductTech, RelCorporate, RelIndustry, RelSupplyChain,
	RelMarket, RelImpact, RelRegulatory, RelMedia, RelOther,
}

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Rule turns a co-occurring entity pair into a typed edge. Source and Target
// hold extractor entity types (COMPANY, TICKER, ...). When Patterns is set the
// rule additionally requires one of them to match the shared text window.
type Rule struct {
	Type     string   `yaml:"type"`
	Source   []string `yaml:"source"`
	Target   []string `yaml:"target"`
	Patterns []string `yaml:"patterns,omitempty"`

	compiled []*regexp.Regexp
}

// Category is a single row of a pattern table.
type Category struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Priority    int      `yaml:"priority"`
	Patterns    []string `yaml:"patterns,omitempty"`
	Examples    []string `yaml:"examples,omitempty"`
	Fallback    bool     `yaml:"fallback,omitempty"`
	Rules       []Rule   `yaml:"rules,omitempty"`

	compiled []*regexp.Regexp
}

// Match reports whether any of the category patterns matches text.
func (c Category) Match(text string) bool {
	return matchAny(c.compiled, text)
}

// Accepts reports whether the rule applies to a source/target type pair.
func (r Rule) Accepts(sourceType, targetType string) bool {
	return contains(r.Source, sourceType) && contains(r.Target, targetType)
}

// MatchWindow reports whether the rule's own patterns (if any) match text.
func (r Rule) MatchWindow(text string) bool {
	if len(r.compiled) == 0 {
		return true
	}
	return matchAny(r.compiled, text)
}

// Catalog is the immutable, validated set of entity and relationship tables.
type Catalog struct {
	Version       string
	entities      []Category
	relationships []Category
	entityIndex   map[string]EntityCategory
}

type catalogFile struct {
	Version       string     `yaml:"version"`
	Entities      []Category `yaml:"entity_categories"`
	Relationships []Category `yaml:"relationship_categories"`
}

// Default returns the built-in catalog. It panics if the embedded tables are
// invalid, which can only happen through a broken build.
var Default = sync.OnceValue(func() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
})

// Load reads and validates a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read catalog %s", path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog %s", path)
	}
	return c, nil
}

// Parse builds a catalog from YAML bytes.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return New(f.Version, f.Entities, f.Relationships)
}

// New compiles and validates the given tables. The slices are copied.
func New(version string, entities, relationships []Category) (*Catalog, error) {
	c := &Catalog{
		Version:       version,
		entities:      append([]Category(nil), entities...),
		relationships: append([]Category(nil), relationships...),
		entityIndex:   make(map[string]EntityCategory),
	}
	sort.SliceStable(c.entities, func(i, j int) bool { return c.entities[i].Priority < c.entities[j].Priority })
	sort.SliceStable(c.relationships, func(i, j int) bool { return c.relationships[i].Priority < c.relationships[j].Priority })

	if err := c.compile(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	for _, cat := range c.entities {
		c.entityIndex[normalizeLabel(cat.Name)] = EntityCategory(cat.Name)
	}
	return c, nil
}

func (c *Catalog) compile() error {
	for i := range c.entities {
		compiled, err := compileAll(c.entities[i].Patterns)
		if err != nil {
			return errors.Wrapf(err, "entity category %q", c.entities[i].Name)
		}
		c.entities[i].compiled = compiled
	}
	for i := range c.relationships {
		cat := &c.relationships[i]
		compiled, err := compileAll(cat.Patterns)
		if err != nil {
			return errors.Wrapf(err, "relationship category %q", cat.Name)
		}
		cat.compiled = compiled
		cat.Rules = append([]Rule(nil), cat.Rules...)
		for j := range cat.Rules {
			ruleCompiled, err := compileAll(cat.Rules[j].Patterns)
			if err != nil {
				return errors.Wrapf(err, "relationship %q rule %s", cat.Name, cat.Rules[j].Type)
			}
			cat.Rules[j].compiled = ruleCompiled
		}
	}
	return nil
}

// Validate checks the closed-set, priority and fallback invariants of both tables.
func (c *Catalog) Validate() error {
	entityNames := make([]string, len(EntityCategories))
	for i, n := range EntityCategories {
		entityNames[i] = string(n)
	}
	if err := validateTable("entity", c.entities, entityNames); err != nil {
		return err
	}
	relNames := make([]string, len(RelationshipCategories))
	for i, n := range RelationshipCategories {
		relNames[i] = string(n)
	}
	if err := validateTable("relationship", c.relationships, relNames); err != nil {
		return err
	}
	for _, cat := range c.relationships {
		for _, r := range cat.Rules {
			if r.Type == "" || len(r.Source) == 0 || len(r.Target) == 0 {
				return fmt.Errorf("relationship %q has an incomplete rule %+v", cat.Name, r)
			}
		}
	}
	return nil
}

func validateTable(kind string, cats []Category, closed []string) error {
	if len(cats) != len(closed) {
		return fmt.Errorf("%s table has %d categories, want %d", kind, len(cats), len(closed))
	}
	seen := make(map[string]bool)
	priorities := make(map[int]string)
	fallbacks := 0
	for i, cat := range cats {
		if !contains(closed, cat.Name) {
			return fmt.Errorf("%s category %q is not part of the taxonomy", kind, cat.Name)
		}
		if seen[cat.Name] {
			return fmt.Errorf("%s category %q is defined twice", kind, cat.Name)
		}
		seen[cat.Name] = true
		if prev, ok := priorities[cat.Priority]; ok {
			return fmt.Errorf("%s categories %q and %q share priority %d", kind, prev, cat.Name, cat.Priority)
		}
		priorities[cat.Priority] = cat.Name
		if cat.Priority < 1 {
			return fmt.Errorf("%s category %q has priority %d, want >= 1", kind, cat.Name, cat.Priority)
		}
		if cat.Fallback {
			fallbacks++
			if len(cat.Patterns) > 0 {
				return fmt.Errorf("%s fallback category %q must not carry patterns", kind, cat.Name)
			}
			if i != len(cats)-1 {
				return fmt.Errorf("%s fallback category %q must have the lowest priority", kind, cat.Name)
			}
		} else if len(cat.Patterns) == 0 {
			return fmt.Errorf("%s category %q has no patterns and is not the fallback", kind, cat.Name)
		}
	}
	if fallbacks != 1 {
		return fmt.Errorf("%s table needs exactly one fallback category, found %d", kind, fallbacks)
	}
	return nil
}

// Entities returns the entity categories in ascending priority order. The
// returned slice is shared and must not be modified.
func (c *Catalog) Entities() []Category {
	return c.entities
}

// Relationships returns the relationship categories in ascending priority order.
func (c *Catalog) Relationships() []Category {
	return c.relationships
}

// Fallback returns the catch-all entity category.
func (c *Catalog) Fallback() Category {
	return c.entities[len(c.entities)-1]
}

// Names returns every entity category name in priority order, catch-all included.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.entities))
	for i, cat := range c.entities {
		names[i] = cat.Name
	}
	return names
}

// Lookup maps a free-form label (as returned by a model) onto the closed
// entity taxonomy. Case, spacing and punctuation are ignored.
func (c *Catalog) Lookup(label string) (EntityCategory, bool) {
	cat, ok := c.entityIndex[normalizeLabel(label)]
	return cat, ok
}

// Describe renders the entity table as a bulleted list for prompts.
func (c *Catalog) Describe() string {
	var b strings.Builder
	for _, cat := range c.entities {
		fmt.Fprintf(&b, "- %s: %s", cat.Name, cat.Description)
		if len(cat.Examples) > 0 {
			fmt.Fprintf(&b, " (e.g. %s)", strings.Join(cat.Examples, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func normalizeLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, errors.Wrapf(err, "pattern %q", p)
		}
		out = append(out, re)
	}
	return out, nil
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
