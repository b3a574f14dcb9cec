package types

import "fmt"

// ConversationStatus tracks a conversation through analysis and indexing
type ConversationStatus string

const (
	ConversationStatusReceived         ConversationStatus = "received"
	ConversationStatusAnalyzed         ConversationStatus = "analyzed"
	ConversationStatusUnanalyzed       ConversationStatus = "unanalyzed"
	ConversationStatusNeedsReembedding ConversationStatus = "needs_reembedding"
	ConversationStatusIndexed          ConversationStatus = "indexed"
)

// AllConversationStatuses returns all valid conversation statuses
func AllConversationStatuses() []ConversationStatus {
	return []ConversationStatus{
		ConversationStatusReceived,
		ConversationStatusAnalyzed,
		ConversationStatusUnanalyzed,
		ConversationStatusNeedsReembedding,
		ConversationStatusIndexed,
	}
}

// IsValid checks if the conversation status is valid
func (s ConversationStatus) IsValid() bool {
	switch s {
	case ConversationStatusReceived,
		ConversationStatusAnalyzed,
		ConversationStatusUnanalyzed,
		ConversationStatusNeedsReembedding,
		ConversationStatusIndexed:
		return true
	default:
		return false
	}
}

// HasAnalysis reports whether a current analysis result exists in this state
func (s ConversationStatus) HasAnalysis() bool {
	switch s {
	case ConversationStatusAnalyzed,
		ConversationStatusNeedsReembedding,
		ConversationStatusIndexed:
		return true
	default:
		return false
	}
}

func (s ConversationStatus) String() string {
	return string(s)
}

// ParseConversationStatus parses a string into a ConversationStatus
func ParseConversationStatus(s string) (ConversationStatus, error) {
	v := ConversationStatus(s)
	if !v.IsValid() {
		return "", fmt.Errorf("invalid conversation status: %s", s)
	}
	return v, nil
}
