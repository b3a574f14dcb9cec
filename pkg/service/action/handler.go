package action

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/slack"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

// MemoryRecorder persists a durable customer fact
type MemoryRecorder interface {
	Record(ctx context.Context, entry *model.MemoryEntry) (*model.MemoryEntry, error)
}

// Chain runs handlers in order and stops at the first error. A retry re-runs
// the whole chain, so every step except the last must be safe to repeat.
func Chain(handlers ...interfaces.ActionHandler) interfaces.ActionHandler {
	return interfaces.ActionHandlerFunc(func(ctx context.Context, req interfaces.ActionRequest) error {
		for _, h := range handlers {
			if err := h.Handle(ctx, req); err != nil {
				return err
			}
		}
		return nil
	})
}

// Log only writes the action to the log. It is the handler for action types
// that have no integration configured yet still need a ledger entry.
func Log() interfaces.ActionHandler {
	return interfaces.ActionHandlerFunc(func(ctx context.Context, req interfaces.ActionRequest) error {
		logging.From(ctx).Info("action recorded",
			"action_type", req.Action.Type,
			"conversation_id", req.ConversationID,
			"customer_id", customerID(req),
			"reason", req.Action.Reason,
		)
		return nil
	})
}

// MemoryFact records what was done as a memory entry of the matching type.
// The entry ID is derived from the idempotency key, so running it again for
// the same dispatch records nothing new.
func MemoryFact(recorder MemoryRecorder) interfaces.ActionHandler {
	return interfaces.ActionHandlerFunc(func(ctx context.Context, req interfaces.ActionRequest) error {
		if req.Customer == nil {
			return goerr.Wrap(model.ErrValidation, "action request has no customer",
				goerr.V("conversation_id", req.ConversationID))
		}

		memoryType := types.MemoryTypeForAction(req.Action.Type)
		entry := &model.MemoryEntry{
			CustomerID:     req.Customer.ID,
			ConversationID: req.ConversationID,
			Type:           memoryType,
			Content:        FactContent(req.Action),
			CreatedAt:      time.Now().UTC(),
		}
		if req.IdempotencyKey != "" {
			entry.ID = model.MemoryIDFor(req.IdempotencyKey + "/" + memoryType.String())
		}

		_, err := recorder.Record(ctx, entry)
		if errors.Is(err, model.ErrAlreadyExists) {
			logging.From(ctx).Debug("action fact already recorded", "memory_id", entry.ID)
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to record action fact",
				goerr.V("conversation_id", req.ConversationID),
				goerr.V("action_type", req.Action.Type))
		}
		return nil
	})
}

// FactContent renders an action as a sentence stored in the memory store
func FactContent(a model.Action) string {
	var sb strings.Builder
	sb.WriteString(strings.ReplaceAll(a.Type.String(), "_", " "))
	if a.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(a.Reason)
	}
	if len(a.Metadata) > 0 {
		keys := make([]string, 0, len(a.Metadata))
		for k := range a.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, a.Metadata[k]))
		}
		sb.WriteString(" (")
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString(")")
	}
	return sb.String()
}

// DoNotContact flags the customer so later outbound actions are suppressed
func DoNotContact(customers interfaces.CustomerRepository) interfaces.ActionHandler {
	return interfaces.ActionHandlerFunc(func(ctx context.Context, req interfaces.ActionRequest) error {
		if req.Customer == nil {
			return goerr.Wrap(model.ErrValidation, "action request has no customer",
				goerr.V("conversation_id", req.ConversationID))
		}
		if err := customers.SetDoNotContact(ctx, req.Customer.ID, true); err != nil {
			return goerr.Wrap(err, "failed to set do-not-contact",
				goerr.V("customer_id", req.Customer.ID))
		}
		return nil
	})
}

var notificationTitles = map[types.ActionType]string{
	types.ActionTypeSendEmail:         "Email requested",
	types.ActionTypeScheduleMeeting:   "Meeting requested",
	types.ActionTypeScheduleCallback:  "Callback requested",
	types.ActionTypeAddToFollowup:     "Follow-up needed",
	types.ActionTypeAddToDoNotContact: "Customer opted out",
	types.ActionTypeSendProposal:      "Proposal requested",
	types.ActionTypeRequestPayment:    "Ready to pay",
}

// SlackNotify posts the action to the team channel
func SlackNotify(svc slack.Service) interfaces.ActionHandler {
	return interfaces.ActionHandlerFunc(func(ctx context.Context, req interfaces.ActionRequest) error {
		title, ok := notificationTitles[req.Action.Type]
		if !ok {
			title = req.Action.Type.String()
		}

		n := slack.Notification{
			Title:          title,
			CustomerID:     customerID(req),
			ConversationID: req.ConversationID.String(),
			ActionType:     req.Action.Type.String(),
			Reason:         req.Action.Reason,
			Summary:        req.Summary,
			Details:        req.Action.Metadata,
			CreatedAt:      time.Now(),
		}
		if req.Customer != nil {
			n.CustomerName = req.Customer.Profile()
		}

		if _, err := svc.Notify(ctx, n); err != nil {
			return goerr.Wrap(model.ErrServiceUnavailable, "failed to notify Slack",
				goerr.V("conversation_id", req.ConversationID),
				goerr.V("action_type", req.Action.Type),
				goerr.V("cause", err.Error()))
		}
		return nil
	})
}

func customerID(req interfaces.ActionRequest) string {
	if req.Customer == nil {
		return ""
	}
	return req.Customer.ID.String()
}
