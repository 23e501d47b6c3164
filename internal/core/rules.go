package core

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCategorySuffixLen is the length of the generation-timestamp suffix
// that upstream file names carry after their category, e.g.
// "customer_master_" + "20240726129048.csv".
const DefaultCategorySuffixLen = 18

// Rule config column headers.
const (
	RuleFilePrefixColumn = "file_prefix"
	RuleTestColumn       = "test"
	RuleAttributeColumn  = "attribute"
)

// TestKind names a rule stage.
type TestKind string

const (
	TestNull        TestKind = "null_check"
	TestDuplicate   TestKind = "duplicate_check"
	TestPhoneNumber TestKind = "phonenumber_check"
)

// Category derives a file category by stripping the trailing suffixLen
// characters. Identifiers no longer than the suffix have an empty category.
func Category(fileID string, suffixLen int) string {
	if suffixLen <= 0 {
		return fileID
	}
	runes := []rune(fileID)
	if len(runes) <= suffixLen {
		return ""
	}
	return string(runes[:len(runes)-suffixLen])
}

// RuleSet maps a test kind to the ordered attributes it applies to,
// for one file category.
type RuleSet map[TestKind][]string

// Attributes returns the attributes for kind; empty when none are declared.
func (rs RuleSet) Attributes(kind TestKind) []string {
	return slices.Clone(rs[kind])
}

// RuleCatalog groups rule sets by file category.
type RuleCatalog struct {
	suffixLen int
	sets      map[string]RuleSet
}

// NewRuleCatalog returns an empty catalog using suffixLen for category derivation.
func NewRuleCatalog(suffixLen int) RuleCatalog {
	return RuleCatalog{suffixLen: suffixLen, sets: make(map[string]RuleSet)}
}

// Add appends attribute to the (category of filePrefix, kind) list.
// Duplicate attributes are kept in order.
func (c *RuleCatalog) Add(filePrefix string, kind TestKind, attribute string) {
	if c.sets == nil {
		c.sets = make(map[string]RuleSet)
	}
	cat := Category(filePrefix, c.suffixLen)
	rs, ok := c.sets[cat]
	if !ok {
		rs = make(RuleSet)
		c.sets[cat] = rs
	}
	rs[kind] = append(rs[kind], attribute)
}

// CategoryOf derives the category of a file identifier using the catalog's suffix length.
func (c RuleCatalog) CategoryOf(fileID string) string {
	return Category(fileID, c.suffixLen)
}

// RulesFor returns the attributes declared for (category, kind).
// Absence of a rule is not an error: it means skip the test.
func (c RuleCatalog) RulesFor(category string, kind TestKind) []string {
	return c.sets[category].Attributes(kind)
}

// RuleSet returns a copy of the rule set for category (empty when unknown).
func (c RuleCatalog) RuleSet(category string) RuleSet {
	out := make(RuleSet)
	for k, attrs := range c.sets[category] {
		out[k] = slices.Clone(attrs)
	}
	return out
}

// Categories returns the known categories, sorted.
func (c RuleCatalog) Categories() []string {
	cats := make([]string, 0, len(c.sets))
	for k := range c.sets {
		cats = append(cats, k)
	}
	slices.Sort(cats)
	return cats
}

// Len returns the number of categories.
func (c RuleCatalog) Len() int {
	return len(c.sets)
}

// LoadRules parses (file_prefix, test, attribute) rows. On a malformed source
// it returns an empty catalog and a *LoadError.
func LoadRules(r io.Reader, suffixLen int) (RuleCatalog, error) {
	rows, err := readTable(r, RuleFilePrefixColumn, RuleTestColumn, RuleAttributeColumn)
	if err != nil {
		return NewRuleCatalog(suffixLen), &LoadError{Source: "rules", Err: err}
	}

	c := NewRuleCatalog(suffixLen)
	for _, row := range rows {
		prefix := strings.TrimSpace(row[0])
		test := strings.TrimSpace(row[1])
		attr := strings.TrimSpace(row[2])
		if prefix == "" && test == "" && attr == "" {
			continue
		}
		c.Add(prefix, TestKind(test), attr)
	}
	return c, nil
}

// yamlRules is the YAML form of the rule config:
//
//	rules:
//	  - file_prefix: customer_master_20240726129048.csv
//	    test: null_check
//	    attributes: [email, name]
type yamlRules struct {
	Rules []struct {
		FilePrefix string   `yaml:"file_prefix"`
		Test       string   `yaml:"test"`
		Attribute  string   `yaml:"attribute"`
		Attributes []string `yaml:"attributes"`
	} `yaml:"rules"`
}

// LoadRulesYAML parses the YAML form of the rule config into the same catalog
// LoadRules produces.
func LoadRulesYAML(r io.Reader, suffixLen int) (RuleCatalog, error) {
	var doc yamlRules
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty source")
		}
		return NewRuleCatalog(suffixLen), &LoadError{Source: "rules", Err: err}
	}

	c := NewRuleCatalog(suffixLen)
	for i, rule := range doc.Rules {
		if rule.FilePrefix == "" || rule.Test == "" {
			return NewRuleCatalog(suffixLen), &LoadError{
				Source: "rules",
				Err:    fmt.Errorf("rule %d: file_prefix and test are required", i),
			}
		}
		attrs := rule.Attributes
		if rule.Attribute != "" {
			attrs = append([]string{rule.Attribute}, attrs...)
		}
		for _, a := range attrs {
			c.Add(strings.TrimSpace(rule.FilePrefix), TestKind(strings.TrimSpace(rule.Test)), strings.TrimSpace(a))
		}
	}
	return c, nil
}
