package types

import "fmt"

// SourceType identifies what kind of text an embedding was generated from
type SourceType string

const (
	SourceTypeConversationFull    SourceType = "conversation_full"
	SourceTypeConversationSummary SourceType = "conversation_summary"
	SourceTypeMemoryEntry         SourceType = "memory_entry"
	SourceTypeEmailChunk          SourceType = "email_chunk"
)

// AllSourceTypes returns all valid source types
func AllSourceTypes() []SourceType {
	return []SourceType{
		SourceTypeConversationFull,
		SourceTypeConversationSummary,
		SourceTypeMemoryEntry,
		SourceTypeEmailChunk,
	}
}

// IsValid checks if the source type is valid
func (s SourceType) IsValid() bool {
	switch s {
	case SourceTypeConversationFull,
		SourceTypeConversationSummary,
		SourceTypeMemoryEntry,
		SourceTypeEmailChunk:
		return true
	default:
		return false
	}
}

func (s SourceType) String() string {
	return string(s)
}

// ParseSourceType parses a string into a SourceType
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(s)
	if !st.IsValid() {
		return "", fmt.Errorf("invalid source type: %s", s)
	}
	return st, nil
}
