package interfaces

import (
	"context"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
)

// ActionRequest carries everything a handler needs to perform one side effect
type ActionRequest struct {
	Action         model.Action
	ConversationID model.ConversationID
	Customer       *model.Customer
	Summary        string
	IdempotencyKey string
}

// ActionHandler performs the side effect for one action type
type ActionHandler interface {
	Handle(ctx context.Context, req ActionRequest) error
}

// ActionHandlerFunc adapts a function to ActionHandler
type ActionHandlerFunc func(ctx context.Context, req ActionRequest) error

func (f ActionHandlerFunc) Handle(ctx context.Context, req ActionRequest) error {
	return f(ctx, req)
}
