// Package classify routes records to exactly one destination category.
package classify

import (
	"strings"

	"NoteSalesTracker/internal/domain"
)

type rule struct {
	category string
	needles  []string
}

// Classifier evaluates a ranked rule table: author rules first, then keyword
// rules against tags, then against titles, then the catch-all.
type Classifier struct {
	authorRules  []rule
	keywordRules []rule
	order        []string
	fallback     string
}

// New compiles the table. Empty needles are dropped since they would match everything.
func New(table domain.RuleTable) (*Classifier, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	c := &Classifier{
		order:    table.Names(),
		fallback: table.FallbackName(),
	}
	for _, ar := range table.AuthorRules {
		c.authorRules = append(c.authorRules, rule{category: ar.Category, needles: compact(ar.Authors)})
	}
	for _, cat := range table.Categories {
		if cat.Name == c.fallback {
			continue
		}
		c.keywordRules = append(c.keywordRules, rule{category: cat.Name, needles: compact(cat.Keywords)})
	}
	return c, nil
}

// Classify returns the category for r. Matching is case-sensitive substring containment.
func (c *Classifier) Classify(r domain.Record) string {
	return c.Match(r.Author, r.Tags, r.Title)
}

// Match is Classify over raw field values.
func (c *Classifier) Match(author, tags, title string) string {
	if author != "" {
		if cat, ok := firstMatch(c.authorRules, author); ok {
			return cat
		}
	}
	if cat, ok := firstMatch(c.keywordRules, tags); ok {
		return cat
	}
	if cat, ok := firstMatch(c.keywordRules, title); ok {
		return cat
	}
	return c.fallback
}

// Order lists the categories in priority order, catch-all last.
func (c *Classifier) Order() []string {
	return append([]string(nil), c.order...)
}

// Partition groups records by category, keeping input order inside each group.
func (c *Classifier) Partition(records []domain.Record) map[string][]domain.Record {
	out := make(map[string][]domain.Record, len(c.order))
	for _, r := range records {
		cat := c.Classify(r)
		out[cat] = append(out[cat], r)
	}
	return out
}

func firstMatch(rules []rule, text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, r := range rules {
		for _, needle := range r.needles {
			if strings.Contains(text, needle) {
				return r.category, true
			}
		}
	}
	return "", false
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
