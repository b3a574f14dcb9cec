package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

// IdempotencyKey identifies one logical side effect. Epoch is folded in only
// when positive so that the default policy keeps one row per
// (conversation, action type) forever.
func IdempotencyKey(conversationID ConversationID, actionType types.ActionType, epoch int) string {
	h := sha256.New()
	h.Write([]byte(conversationID))
	h.Write([]byte{0})
	h.Write([]byte(actionType))
	if epoch > 0 {
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(epoch)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DispatchRecord is one row of the dispatch ledger. A row is created pending
// by whoever wins the insert-if-absent race and then finished exactly once.
type DispatchRecord struct {
	IdempotencyKey string
	ConversationID ConversationID
	CustomerID     CustomerID
	ActionType     types.ActionType
	Epoch          int
	Status         types.DispatchStatus
	Reason         string
	Attempts       int
	ExecutedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewDispatchRecord builds a pending row for action
func NewDispatchRecord(conversationID ConversationID, customerID CustomerID, actionType types.ActionType, epoch int) *DispatchRecord {
	now := time.Now().UTC()
	return &DispatchRecord{
		IdempotencyKey: IdempotencyKey(conversationID, actionType, epoch),
		ConversationID: conversationID,
		CustomerID:     customerID,
		ActionType:     actionType,
		Epoch:          epoch,
		Status:         types.DispatchStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Copy returns a deep copy
func (d *DispatchRecord) Copy() *DispatchRecord {
	c := *d
	if d.ExecutedAt != nil {
		t := *d.ExecutedAt
		c.ExecutedAt = &t
	}
	return &c
}
