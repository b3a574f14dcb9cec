package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

// MemoryID is a UUID-based identifier for MemoryEntry
type MemoryID string

// NewMemoryID generates a new UUID v4 MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// MemoryIDFor derives a stable MemoryID from name, so that recording the
// same fact twice collides on the ID
func MemoryIDFor(name string) MemoryID {
	return MemoryID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String())
}

// MemoryEntry is a durable, append-only fact about a customer such as an
// objection, a commitment or an executed follow-up.
type MemoryEntry struct {
	ID             MemoryID
	CustomerID     CustomerID
	ConversationID ConversationID // empty for manually added facts
	Type           types.MemoryType
	Content        string
	CreatedAt      time.Time
}

// Validate checks required fields
func (m *MemoryEntry) Validate() error {
	if strings.TrimSpace(string(m.CustomerID)) == "" {
		return goerr.Wrap(ErrValidation, "customer id is required")
	}
	if !m.Type.IsValid() {
		return goerr.Wrap(ErrValidation, "invalid memory type", goerr.V("type", m.Type))
	}
	if strings.TrimSpace(m.Content) == "" {
		return goerr.Wrap(ErrValidation, "memory content is empty", goerr.V("customer_id", m.CustomerID))
	}
	return nil
}
