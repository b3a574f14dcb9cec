package types

import "fmt"

// MemoryType classifies a durable fact about a customer
type MemoryType string

const (
	MemoryTypeAnalysisInsight   MemoryType = "analysis_insight"
	MemoryTypeObjection         MemoryType = "objection"
	MemoryTypeCommitment        MemoryType = "commitment"
	MemoryTypePreference        MemoryType = "preference"
	MemoryTypeProfile           MemoryType = "profile"
	MemoryTypeEmailSent         MemoryType = "email_sent"
	MemoryTypeMeetingRequested  MemoryType = "meeting_requested"
	MemoryTypeCallbackScheduled MemoryType = "callback_scheduled"
	MemoryTypeFollowupRequired  MemoryType = "followup_required"
	MemoryTypeDoNotContact      MemoryType = "dnc_flag"
	MemoryTypeProposalRequested MemoryType = "proposal_requested"
	MemoryTypePaymentRequested  MemoryType = "payment_requested"
	MemoryTypeNote              MemoryType = "note"
)

// AllMemoryTypes returns all valid memory types
func AllMemoryTypes() []MemoryType {
	return []MemoryType{
		MemoryTypeAnalysisInsight,
		MemoryTypeObjection,
		MemoryTypeCommitment,
		MemoryTypePreference,
		MemoryTypeProfile,
		MemoryTypeEmailSent,
		MemoryTypeMeetingRequested,
		MemoryTypeCallbackScheduled,
		MemoryTypeFollowupRequired,
		MemoryTypeDoNotContact,
		MemoryTypeProposalRequested,
		MemoryTypePaymentRequested,
		MemoryTypeNote,
	}
}

// IsValid checks if the memory type is valid
func (m MemoryType) IsValid() bool {
	for _, v := range AllMemoryTypes() {
		if m == v {
			return true
		}
	}
	return false
}

func (m MemoryType) String() string {
	return string(m)
}

// ParseMemoryType parses a string into a MemoryType
func ParseMemoryType(s string) (MemoryType, error) {
	v := MemoryType(s)
	if !v.IsValid() {
		return "", fmt.Errorf("invalid memory type: %s", s)
	}
	return v, nil
}

// MemoryTypeForAction returns the fact recorded after an action executes
func MemoryTypeForAction(a ActionType) MemoryType {
	switch a {
	case ActionTypeSendEmail:
		return MemoryTypeEmailSent
	case ActionTypeScheduleMeeting:
		return MemoryTypeMeetingRequested
	case ActionTypeScheduleCallback:
		return MemoryTypeCallbackScheduled
	case ActionTypeAddToFollowup:
		return MemoryTypeFollowupRequired
	case ActionTypeAddToDoNotContact:
		return MemoryTypeDoNotContact
	case ActionTypeSendProposal:
		return MemoryTypeProposalRequested
	case ActionTypeRequestPayment:
		return MemoryTypePaymentRequested
	default:
		return MemoryTypeNote
	}
}
