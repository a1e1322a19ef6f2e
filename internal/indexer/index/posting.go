// Package index defines the posting-list data model shared by the segment
// format, the field engines and the query path.
package index

import (
	"context"
	"fmt"
)

// Field names one of the three indexed document fields.
type Field string

const (
	FieldBody   Field = "body"
	FieldTitle  Field = "title"
	FieldAnchor Field = "anchor"
)

// Fields lists every indexed field in load order.
var Fields = []Field{FieldBody, FieldTitle, FieldAnchor}

// ParseField converts a field name into a Field.
func ParseField(s string) (Field, error) {
	switch Field(s) {
	case FieldBody, FieldTitle, FieldAnchor:
		return Field(s), nil
	}
	return "", fmt.Errorf("unknown field %q", s)
}

// DocID is a corpus document identifier.
type DocID = uint32

// Posting is one (document, in-field term frequency) pair. TF is at least 1
// for every posting produced by a valid segment.
type Posting struct {
	DocID DocID  `json:"doc_id"`
	TF    uint32 `json:"tf"`
}

// PostingList is a term's postings in one field. Order is unspecified.
type PostingList []Posting

// TermEntry pairs a term with its postings, the unit written to segments.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// PostingStore is the read-only view of a multi-field inverted index.
// Implementations must be safe for unlimited concurrent readers.
type PostingStore interface {
	// DocumentFrequency returns the number of documents containing term in
	// field, and false when the term is not in the field's vocabulary.
	DocumentFrequency(field Field, term string) (int, bool)
	// PostingList returns term's postings in field. An out-of-vocabulary
	// term yields an empty list and no error.
	PostingList(ctx context.Context, field Field, term string) (PostingList, error)
}

// ReadErrorFunc is told about a posting read that failed and was treated
// as a vocabulary miss.
type ReadErrorFunc func(field Field, term string, err error)
