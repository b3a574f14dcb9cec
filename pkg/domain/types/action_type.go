package types

import (
	"fmt"
	"strings"
)

// ActionType is the closed set of follow-up actions an analysis may request
type ActionType string

const (
	ActionTypeSendEmail          ActionType = "send_email"
	ActionTypeScheduleMeeting    ActionType = "schedule_meeting"
	ActionTypeScheduleCallback   ActionType = "schedule_callback"
	ActionTypeAddToFollowup      ActionType = "add_to_followup"
	ActionTypeAddToDoNotContact  ActionType = "add_to_do_not_contact"
	ActionTypeSendProposal       ActionType = "send_proposal"
	ActionTypeRequestPayment     ActionType = "request_payment"
	ActionTypeNone               ActionType = "no_action"
	actionTypeDoNotContactLegacy            = "add_to_dnc"
)

// AllActionTypes returns every dispatchable action type. ActionTypeNone is
// recognised by the parser but never dispatched.
func AllActionTypes() []ActionType {
	return []ActionType{
		ActionTypeSendEmail,
		ActionTypeScheduleMeeting,
		ActionTypeScheduleCallback,
		ActionTypeAddToFollowup,
		ActionTypeAddToDoNotContact,
		ActionTypeSendProposal,
		ActionTypeRequestPayment,
	}
}

// IsValid checks if the action type is dispatchable
func (a ActionType) IsValid() bool {
	switch a {
	case ActionTypeSendEmail,
		ActionTypeScheduleMeeting,
		ActionTypeScheduleCallback,
		ActionTypeAddToFollowup,
		ActionTypeAddToDoNotContact,
		ActionTypeSendProposal,
		ActionTypeRequestPayment:
		return true
	default:
		return false
	}
}

// IsOutbound reports whether the action contacts the customer. Outbound
// actions are suppressed for do-not-contact customers.
func (a ActionType) IsOutbound() bool {
	switch a {
	case ActionTypeSendEmail,
		ActionTypeScheduleMeeting,
		ActionTypeScheduleCallback,
		ActionTypeSendProposal,
		ActionTypeRequestPayment:
		return true
	default:
		return false
	}
}

func (a ActionType) String() string {
	return string(a)
}

// ParseActionType parses a string into an ActionType. Case and surrounding
// whitespace are ignored and the legacy "add_to_dnc" spelling is accepted.
// "no_action" parses to ActionTypeNone without error.
func ParseActionType(s string) (ActionType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == actionTypeDoNotContactLegacy {
		return ActionTypeAddToDoNotContact, nil
	}
	a := ActionType(v)
	if a == ActionTypeNone || a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid action type: %s", s)
}
