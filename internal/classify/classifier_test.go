package classify

import (
	"testing"

	"NoteSalesTracker/internal/domain"
)

func testTable() domain.RuleTable {
	return domain.RuleTable{
		Categories: []domain.CategoryRule{
			{Name: "Romance", Keywords: []string{"恋愛", "デート"}},
			{Name: "Side-Income", Keywords: []string{"副業", "稼ぐ"}},
			{Name: "Investing", Keywords: []string{"投資", "FX"}},
			{Name: "Other"},
		},
		AuthorRules: []domain.AuthorRule{
			{Category: "Investing", Authors: []string{"TraderBob"}},
		},
		Fallback: "Other",
	}
}

func TestClassifyTitleMatchWhenTagsEmpty(t *testing.T) {
	t.Parallel()

	c, err := New(testTable())
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}

	got := c.Classify(domain.Record{Author: "Alice", Tags: "", Title: "How to do 副業"})
	if got != "Side-Income" {
		t.Fatalf("expected Side-Income, got %s", got)
	}
}

func TestClassifyPrecedence(t *testing.T) {
	t.Parallel()

	c, err := New(testTable())
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}

	cases := []struct {
		name   string
		record domain.Record
		want   string
	}{
		{"author beats tags", domain.Record{Author: "TraderBob official", Tags: "恋愛", Title: "副業"}, "Investing"},
		{"tags beat title", domain.Record{Tags: "投資", Title: "恋愛の話"}, "Investing"},
		{"priority order inside tags", domain.Record{Tags: "副業,恋愛"}, "Romance"},
		{"priority order inside title", domain.Record{Title: "FXで稼ぐ"}, "Side-Income"},
		{"tag miss falls to title", domain.Record{Tags: "日記", Title: "デートの極意"}, "Romance"},
		{"case sensitive", domain.Record{Tags: "fx"}, "Other"},
		{"substring not whole word", domain.Record{Title: "超副業術"}, "Side-Income"},
		{"nothing matches", domain.Record{Author: "Carol", Tags: "料理", Title: "レシピ"}, "Other"},
		{"all empty", domain.Record{}, "Other"},
	}

	for _, tc := range cases {
		if got := c.Classify(tc.record); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestClassifyIsTotal(t *testing.T) {
	t.Parallel()

	c, err := New(testTable())
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	valid := map[string]bool{}
	for _, name := range c.Order() {
		valid[name] = true
	}

	inputs := []string{"", "恋愛", "副業", "FX", "TraderBob", "random", "投資と恋愛"}
	for _, a := range inputs {
		for _, tg := range inputs {
			for _, ti := range inputs {
				got := c.Match(a, tg, ti)
				if !valid[got] {
					t.Fatalf("match(%q,%q,%q) = %q, not a known category", a, tg, ti, got)
				}
				if got != c.Match(a, tg, ti) {
					t.Fatalf("match is not deterministic for %q,%q,%q", a, tg, ti)
				}
			}
		}
	}
}

func TestEmptyKeywordNeverMatches(t *testing.T) {
	t.Parallel()

	table := testTable()
	table.Categories[0].Keywords = append(table.Categories[0].Keywords, "")
	c, err := New(table)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	if got := c.Match("", "anything", "anything"); got != "Other" {
		t.Fatalf("empty keyword matched: %s", got)
	}
}

func TestNewRejectsUnknownAuthorCategory(t *testing.T) {
	t.Parallel()

	table := testTable()
	table.AuthorRules = append(table.AuthorRules, domain.AuthorRule{Category: "Nope", Authors: []string{"x"}})
	if _, err := New(table); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestPartitionKeepsOrder(t *testing.T) {
	t.Parallel()

	c, err := New(testTable())
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	parts := c.Partition([]domain.Record{
		{URL: "1", Tags: "副業"},
		{URL: "2", Tags: "料理"},
		{URL: "3", Title: "稼ぐ"},
	})
	if len(parts["Side-Income"]) != 2 || parts["Side-Income"][0].URL != "1" || parts["Side-Income"][1].URL != "3" {
		t.Fatalf("unexpected side-income partition: %+v", parts["Side-Income"])
	}
	if len(parts["Other"]) != 1 {
		t.Fatalf("unexpected other partition: %+v", parts["Other"])
	}

	order := c.Order()
	if order[len(order)-1] != "Other" {
		t.Fatalf("fallback must be last: %v", order)
	}
}
