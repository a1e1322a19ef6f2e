package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/tokenizer"
)

// QueryPlan is the tokenized form of a query. Tokens keeps the tokenizer's
// order including repeats; Distinct keeps first-occurrence order.
type QueryPlan struct {
	RawQuery   string
	Tokens     []string
	TermCounts map[string]int
	Distinct   []string
}

func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		RawQuery:   query,
		Tokens:     make([]string, 0),
		TermCounts: make(map[string]int),
		Distinct:   make([]string, 0),
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	plan.Tokens = tokenizer.Tokenize(query)
	for _, term := range plan.Tokens {
		if plan.TermCounts[term] == 0 {
			plan.Distinct = append(plan.Distinct, term)
		}
		plan.TermCounts[term]++
	}
	return plan
}

// Empty reports whether no term survived tokenization.
func (p *QueryPlan) Empty() bool {
	return len(p.Tokens) == 0
}
