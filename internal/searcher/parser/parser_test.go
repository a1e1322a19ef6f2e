package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		tokens   []string
		counts   map[string]int
		distinct []string
	}{
		{"blank", "   ", []string{}, map[string]int{}, []string{}},
		{"stopwords only", "the and of", []string{}, map[string]int{}, []string{}},
		{"single", "Python", []string{"python"}, map[string]int{"python": 1}, []string{"python"}},
		{
			"repeats counted",
			"cat cat dog",
			[]string{"cat", "cat", "dog"},
			map[string]int{"cat": 2, "dog": 1},
			[]string{"cat", "dog"},
		},
		{
			"first occurrence order",
			"dog cat dog",
			[]string{"dog", "cat", "dog"},
			map[string]int{"dog": 2, "cat": 1},
			[]string{"dog", "cat"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Parse(tt.query)
			assert.Equal(t, tt.query, plan.RawQuery)
			assert.Equal(t, tt.tokens, plan.Tokens)
			assert.Equal(t, tt.counts, plan.TermCounts)
			assert.Equal(t, tt.distinct, plan.Distinct)
			assert.Equal(t, len(tt.tokens) == 0, plan.Empty())
		})
	}
}
