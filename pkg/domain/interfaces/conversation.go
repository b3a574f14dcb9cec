package interfaces

import (
	"context"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

// ConversationRepository defines the interface for Conversation data persistence
type ConversationRepository interface {
	// CreateIfAbsent stores conv unless a conversation with the same ID exists.
	// It returns the stored conversation and whether this call created it.
	CreateIfAbsent(ctx context.Context, conv *model.Conversation) (*model.Conversation, bool, error)

	Get(ctx context.Context, id model.ConversationID) (*model.Conversation, error)

	// ListByCustomer returns conversations newest first
	ListByCustomer(ctx context.Context, customerID model.CustomerID) ([]*model.Conversation, error)

	// ListByStatus returns conversations in the given status, oldest first
	ListByStatus(ctx context.Context, status types.ConversationStatus) ([]*model.Conversation, error)

	UpdateStatus(ctx context.Context, id model.ConversationID, status types.ConversationStatus) error

	// IncrementReembedAttempts adds one to ReembedAttempts and returns the new count
	IncrementReembedAttempts(ctx context.Context, id model.ConversationID) (int, error)
}

// AnalysisRepository holds the single current analysis per conversation
type AnalysisRepository interface {
	// Put replaces the current analysis of result.ConversationID
	Put(ctx context.Context, result *model.AnalysisResult) error

	Get(ctx context.Context, conversationID model.ConversationID) (*model.AnalysisResult, error)
}
