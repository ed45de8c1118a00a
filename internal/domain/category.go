package domain

import (
	"errors"
	"fmt"
)

// DefaultFallbackCategory is the catch-all used when no rule matches.
const DefaultFallbackCategory = "Other"

// CategoryRule binds a category to the keywords that select it.
type CategoryRule struct {
	Name     string
	Keywords []string
}

// AuthorRule routes every record whose author contains one of Authors to Category.
type AuthorRule struct {
	Category string
	Authors  []string
}

// RuleTable is the ranked classification configuration. Categories are in
// priority order; the first match wins.
type RuleTable struct {
	Categories  []CategoryRule
	AuthorRules []AuthorRule
	Fallback    string
}

// Names lists every category in priority order, the catch-all last.
func (t RuleTable) Names() []string {
	names := make([]string, 0, len(t.Categories)+1)
	hasFallback := false
	for _, c := range t.Categories {
		names = append(names, c.Name)
		if c.Name == t.FallbackName() {
			hasFallback = true
		}
	}
	if !hasFallback {
		names = append(names, t.FallbackName())
	}
	return names
}

// FallbackName returns the configured catch-all or the default one.
func (t RuleTable) FallbackName() string {
	if t.Fallback == "" {
		return DefaultFallbackCategory
	}
	return t.Fallback
}

// Validate rejects tables whose classification would not be total or unambiguous.
func (t RuleTable) Validate() error {
	seen := make(map[string]struct{}, len(t.Categories))
	for _, c := range t.Categories {
		if c.Name == "" {
			return errors.New("category with empty name")
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("category %q declared twice", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	seen[t.FallbackName()] = struct{}{}

	for _, rule := range t.AuthorRules {
		if _, ok := seen[rule.Category]; !ok {
			return fmt.Errorf("author rule targets unknown category %q", rule.Category)
		}
	}
	return nil
}
