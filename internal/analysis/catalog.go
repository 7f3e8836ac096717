package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// PatternRule is one declarative catalog entry: a case-insensitive,
// word-boundary anchored pattern tagged with the category it scores under.
type PatternRule struct {
	Category BiasCategory `json:"category"`
	Pattern  string       `json:"pattern"`
	Severity Severity     `json:"severity"`
	Label    string       `json:"label"`
}

type compiledRule struct {
	PatternRule
	re *regexp.Regexp
}

// Catalog is the versioned set of pattern rules the scanner evaluates.
// It is built once at startup and never mutated afterwards, so concurrent
// scans share it without locking.
type Catalog struct {
	version string
	rules   []compiledRule
	byCat   map[BiasCategory][]compiledRule
}

// catalogFile is the JSON shape of an external catalog override
type catalogFile struct {
	Version string        `json:"version"`
	Rules   []PatternRule `json:"rules"`
}

const builtinCatalogVersion = "pattern-catalog-v1.0.0"

// builtinRules covers the four shipped bias dimensions. Patterns are plain
// alternations over curated term lists; severities are fixed per rule and
// feed directly into category scores via Severity.Weight.
func builtinRules() []PatternRule {
	return []PatternRule{
		// gender
		{CategoryGender, `he|him|his|himself|man|men|male|boy|boys|guy|guys`, SeverityLow, "male-coded term"},
		{CategoryGender, `she|her|hers|herself|woman|women|female|girl|girls|gal|gals`, SeverityLow, "female-coded term"},
		{CategoryGender, `chairman|spokesman|businessman|salesman|fireman|manpower|man up`, SeverityMedium, "gendered role term"},

		// stereotype
		{CategoryStereotype, `rockstar|ninja|guru|wizard`, SeverityMedium, "role mythologizing"},
		{CategoryStereotype, `aggressive|emotional|bossy|pushy|shrill|hysterical|dramatic|sensitive`, SeverityMedium, "trait stereotype"},
		{CategoryStereotype, `ambitious|assertive|dominant|submissive`, SeverityLow, "loaded trait term"},

		// exclusionary
		{CategoryExclusionary, `top-tier|elite`, SeverityHigh, "elitist credential"},
		{CategoryExclusionary, `prestigious|ivy league`, SeverityMedium, "institution tier reference"},
		{CategoryExclusionary, `culture fit`, SeverityMedium, "vague cultural gatekeeping"},
		{CategoryExclusionary, `native speaker|perfect english|must have (?:a )?degree`, SeverityMedium, "credential gatekeeping"},

		// age
		{CategoryAge, `young|fresh|energetic`, SeverityLow, "youth-coded language"},
		{CategoryAge, `old|older|elderly|outdated`, SeverityMedium, "age-disparaging language"},
		{CategoryAge, `senior|junior|veteran|experienced|traditional`, SeverityLow, "seniority framing"},
		{CategoryAge, `millennial|boomer|gen z`, SeverityMedium, "generational labeling"},
	}
}

// NewCatalog compiles the built-in rule set
func NewCatalog() (*Catalog, error) {
	return buildCatalog(builtinCatalogVersion, builtinRules())
}

// LoadCatalog reads a JSON rule file that replaces the built-ins entirely.
// Any malformed rule is a configuration error: the caller is expected to
// refuse to serve rather than scan with a partial catalog.
func LoadCatalog(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer file.Close()

	var cf catalogFile
	if err := json.NewDecoder(file).Decode(&cf); err != nil {
		return nil, fmt.Errorf("failed to decode catalog file: %w", err)
	}
	if cf.Version == "" {
		return nil, fmt.Errorf("catalog file %s has no version", path)
	}
	if len(cf.Rules) == 0 {
		return nil, fmt.Errorf("catalog file %s contains no rules", path)
	}

	return buildCatalog(cf.Version, cf.Rules)
}

func buildCatalog(version string, rules []PatternRule) (*Catalog, error) {
	c := &Catalog{
		version: version,
		byCat:   make(map[BiasCategory][]compiledRule),
	}

	for i, rule := range rules {
		if !rule.Category.Valid() {
			return nil, fmt.Errorf("rule %d (%q) references unknown category %q", i, rule.Label, rule.Category)
		}
		if !rule.Severity.Valid() {
			return nil, fmt.Errorf("rule %d (%q) has unknown severity %q", i, rule.Label, rule.Severity)
		}
		if rule.Pattern == "" {
			return nil, fmt.Errorf("rule %d (%q) has an empty pattern", i, rule.Label)
		}

		re, err := regexp.Compile(`(?i)\b(?:` + rule.Pattern + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q) does not compile: %w", i, rule.Label, err)
		}

		cr := compiledRule{PatternRule: rule, re: re}
		c.rules = append(c.rules, cr)
		c.byCat[rule.Category] = append(c.byCat[rule.Category], cr)
	}

	return c, nil
}

// Version returns the catalog version string
func (c *Catalog) Version() string { return c.version }

// RuleCount returns the number of rules in the given category
func (c *Catalog) RuleCount(category BiasCategory) int {
	return len(c.byCat[category])
}

// TotalRules returns the total number of rules across all categories
func (c *Catalog) TotalRules() int { return len(c.rules) }

// Info describes the catalog for the introspection endpoint. Patterns
// themselves are not exposed.
type CatalogInfo struct {
	Version         string               `json:"version"`
	TotalRules      int                  `json:"total_rules"`
	RulesByCategory map[BiasCategory]int `json:"rules_by_category"`
	SeverityWeights map[Severity]float64 `json:"severity_weights"`
}

// Info returns a description of the loaded catalog
func (c *Catalog) Info() CatalogInfo {
	counts := make(map[BiasCategory]int, len(c.byCat))
	for _, cat := range AllCategories() {
		counts[cat] = len(c.byCat[cat])
	}
	return CatalogInfo{
		Version:         c.version,
		TotalRules:      len(c.rules),
		RulesByCategory: counts,
		SeverityWeights: map[Severity]float64{
			SeverityLow:    SeverityLow.Weight(),
			SeverityMedium: SeverityMedium.Weight(),
			SeverityHigh:   SeverityHigh.Weight(),
		},
	}
}
