package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

// ContextSnippet is one piece of history injected into a prompt
type ContextSnippet struct {
	Text       string           `json:"text"`
	SourceType types.SourceType `json:"source_type"`
	OwnerID    string           `json:"owner_id"`
	Similarity float64          `json:"similarity"`
	CreatedAt  time.Time        `json:"created_at"`
}

// ContextBundle is the formatted result of a retrieval. It is what the
// context cache stores.
type ContextBundle struct {
	CustomerID  CustomerID       `json:"customer_id"`
	Query       string           `json:"query"`
	Profile     string           `json:"profile,omitempty"`
	Snippets    []ContextSnippet `json:"snippets"`
	Reranked    bool             `json:"reranked"`
	Truncated   bool             `json:"truncated"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// NewEmptyContextBundle is returned when retrieval degrades gracefully
func NewEmptyContextBundle(customerID CustomerID, query string) *ContextBundle {
	return &ContextBundle{
		CustomerID:  customerID,
		Query:       query,
		Snippets:    []ContextSnippet{},
		GeneratedAt: time.Now().UTC(),
	}
}

// SnippetFromResult converts a search hit into a snippet
func SnippetFromResult(r *SearchResult) ContextSnippet {
	return ContextSnippet{
		Text:       r.Record.Content,
		SourceType: r.Record.SourceType,
		OwnerID:    r.Record.OwnerID,
		Similarity: r.Similarity,
		CreatedAt:  r.Record.CreatedAt,
	}
}

// ApplyCharBudget drops the lowest-ranked snippets until the total character
// count fits maxChars. When the best snippet alone is too long it is cut.
// maxChars <= 0 disables the budget.
func (b *ContextBundle) ApplyCharBudget(maxChars int) {
	if maxChars <= 0 {
		return
	}

	total := 0
	for i, s := range b.Snippets {
		n := utf8.RuneCountInString(s.Text)
		if total+n <= maxChars {
			total += n
			continue
		}

		b.Truncated = true
		if i == 0 {
			b.Snippets[0].Text = string([]rune(s.Text)[:maxChars])
			b.Snippets = b.Snippets[:1]
		} else {
			b.Snippets = b.Snippets[:i]
		}
		return
	}
}

// Format renders the bundle as a prompt block
func (b *ContextBundle) Format() string {
	if len(b.Snippets) == 0 && b.Profile == "" {
		return ""
	}

	var sb strings.Builder
	if b.Profile != "" {
		fmt.Fprintf(&sb, "CUSTOMER PROFILE: %s\n\n", b.Profile)
	}
	if len(b.Snippets) == 0 {
		return sb.String()
	}

	sb.WriteString("PAST CONVERSATIONS AND NOTES:\n")
	for i, s := range b.Snippets {
		fmt.Fprintf(&sb, "[%d] (%s, %s, similarity %.2f) %s\n",
			i+1,
			s.SourceType,
			s.CreatedAt.Format("2006-01-02"),
			s.Similarity,
			s.Text,
		)
	}
	return sb.String()
}

// NormalizeQuery lowercases and collapses whitespace. It only feeds the cache
// key; the original text is what gets embedded.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// ContextCacheKey covers every input that can change a retrieval result
func ContextCacheKey(customerID CustomerID, query string, topK int, threshold float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%.6f", customerID, NormalizeQuery(query), topK, threshold)
	return "ctx:" + hex.EncodeToString(h.Sum(nil))
}
