package model

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

// ConversationID is the provider-assigned identifier of a call or email thread.
// Completion events may be delivered more than once with the same ID.
type ConversationID string

func (id ConversationID) String() string {
	return string(id)
}

// Conversation is a finished call transcript or email thread. Content is
// immutable once stored; only Status and ReembedAttempts change.
type Conversation struct {
	ID         ConversationID
	CustomerID CustomerID
	Channel    types.Channel
	Subject    string
	Body       string
	Status     types.ConversationStatus
	StartedAt  time.Time
	EndedAt    time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	// ReembedAttempts counts failed indexing passes
	ReembedAttempts int
}

// Validate checks the fields required before a conversation is stored
func (c *Conversation) Validate() error {
	if strings.TrimSpace(string(c.ID)) == "" {
		return goerr.Wrap(ErrValidation, "conversation id is required")
	}
	if strings.TrimSpace(string(c.CustomerID)) == "" {
		return goerr.Wrap(ErrValidation, "customer id is required", goerr.V("conversation_id", c.ID))
	}
	if !c.Channel.IsValid() {
		return goerr.Wrap(ErrValidation, "invalid channel",
			goerr.V("conversation_id", c.ID),
			goerr.V("channel", c.Channel))
	}
	if strings.TrimSpace(c.Body) == "" {
		return goerr.Wrap(ErrValidation, "conversation body is empty", goerr.V("conversation_id", c.ID))
	}
	return nil
}

// Text returns the content that gets analyzed and embedded
func (c *Conversation) Text() string {
	if c.Subject == "" {
		return c.Body
	}
	return "Subject: " + c.Subject + "\n\n" + c.Body
}
