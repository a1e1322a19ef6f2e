package corpus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer"
)

const (
	maxTitleLength = 1024
	maxBodyLength  = 8 << 20
	maxAnchors     = 100_000
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Line   int
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%s", k, e.Fields[k])
	}
	return fmt.Sprintf("line %d: %s", e.Line, strings.Join(parts, "; "))
}

// Validate checks that a document has an id, a title, and sizes the builder
// accepts. A document with an empty body is valid: it is reachable through
// its title and anchors.
func Validate(doc *indexer.Document) error {
	errs := make(map[string]string)
	if doc.ID == 0 {
		errs["id"] = "id is required and must be positive"
	}
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		errs["title"] = "title is required"
	} else if len(title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d bytes", maxTitleLength)
	}
	if len(doc.Body) > maxBodyLength {
		errs["body"] = fmt.Sprintf("body must be at most %d bytes", maxBodyLength)
	}
	if len(doc.Anchors) > maxAnchors {
		errs["anchors"] = fmt.Sprintf("at most %d anchors", maxAnchors)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
