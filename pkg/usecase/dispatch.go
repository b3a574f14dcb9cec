package usecase

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/action"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/errutil"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/retry"
)

// DispatchConfig tunes action dispatch
type DispatchConfig struct {
	// RetryPolicy applies to handlers registered as retryable
	RetryPolicy retry.Policy
	// RedispatchOnReanalysis folds the analysis epoch into the idempotency
	// key so a forced re-analysis may run its actions again. When false an
	// executed action is never repeated for a conversation.
	RedispatchOnReanalysis bool
}

func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		RetryPolicy: retry.DefaultPolicy,
	}
}

const (
	reasonDuplicate    = "already dispatched"
	reasonNoHandler    = "no handler registered"
	reasonDoNotContact = "customer is on the do-not-contact list"
)

// DispatchUseCase executes the actions of an analysis at most once each
type DispatchUseCase struct {
	repo     interfaces.Repository
	registry HandlerRegistry
	cfg      DispatchConfig
}

func NewDispatchUseCase(repo interfaces.Repository, registry HandlerRegistry, cfg DispatchConfig) *DispatchUseCase {
	return &DispatchUseCase{
		repo:     repo,
		registry: registry,
		cfg:      cfg,
	}
}

func (uc *DispatchUseCase) epoch(result *model.AnalysisResult) int {
	if uc.cfg.RedispatchOnReanalysis {
		return result.Epoch
	}
	return 0
}

// Dispatch runs every action of result in priority order. Each action is
// claimed in the ledger before its handler runs, so redelivered or
// concurrent calls for the same conversation execute a handler at most once.
// Handler failures are recorded on the ledger row and do not stop later
// actions. Ledger storage errors are returned joined after all actions ran.
func (uc *DispatchUseCase) Dispatch(ctx context.Context, result *model.AnalysisResult, customer *model.Customer) ([]*model.DispatchRecord, error) {
	if customer == nil {
		return nil, goerr.Wrap(model.ErrValidation, "customer is required for dispatch",
			goerr.V("conversation_id", result.ConversationID))
	}

	// Local copy so a do-not-contact action suppresses later outbound
	// actions of the same result.
	cust := *customer

	var records []*model.DispatchRecord
	var ledgerErrs []error

	for _, act := range model.NormalizeActions(result.Actions) {
		rec, err := uc.dispatchOne(ctx, result, &cust, act)
		if err != nil {
			ledgerErrs = append(ledgerErrs, err)
		}
		if rec == nil {
			continue
		}
		records = append(records, rec)

		if rec.Status == types.DispatchStatusExecuted && act.Type == types.ActionTypeAddToDoNotContact {
			cust.DoNotContact = true
		}
	}

	if len(ledgerErrs) > 0 {
		return records, goerr.Wrap(errors.Join(ledgerErrs...), "dispatch ledger errors",
			goerr.V("conversation_id", result.ConversationID))
	}
	return records, nil
}

func (uc *DispatchUseCase) dispatchOne(ctx context.Context, result *model.AnalysisResult, customer *model.Customer, act model.Action) (*model.DispatchRecord, error) {
	logger := logging.From(ctx).With("conversation_id", result.ConversationID, "action_type", act.Type)

	reg, ok := uc.lookup(act.Type)
	if !ok {
		logger.Warn("no handler registered for action, skipping")
		rec := model.NewDispatchRecord(result.ConversationID, customer.ID, act.Type, uc.epoch(result))
		rec.Status = types.DispatchStatusSkipped
		rec.Reason = reasonNoHandler
		return rec, nil
	}

	pending := model.NewDispatchRecord(result.ConversationID, customer.ID, act.Type, uc.epoch(result))
	stored, acquired, err := uc.repo.Dispatch().Acquire(ctx, pending)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to acquire dispatch row",
			goerr.V("conversation_id", result.ConversationID),
			goerr.V("action_type", act.Type))
	}
	if !acquired {
		logger.Info("action already dispatched, skipping", "status", stored.Status)
		dup := stored.Copy()
		dup.Status = types.DispatchStatusSkipped
		dup.Reason = reasonDuplicate + " (" + stored.Status.String() + ")"
		return dup, nil
	}

	if customer.DoNotContact && act.Type.IsOutbound() {
		logger.Info("outbound action suppressed for do-not-contact customer")
		return uc.finish(ctx, stored.IdempotencyKey, types.DispatchStatusSkipped, reasonDoNotContact, 0)
	}

	return uc.run(ctx, reg, stored, interfaces.ActionRequest{
		Action:         act,
		ConversationID: result.ConversationID,
		Customer:       customer,
		Summary:        result.Summary,
		IdempotencyKey: stored.IdempotencyKey,
	})
}

// run executes the handler of an acquired row and finishes the row
func (uc *DispatchUseCase) run(ctx context.Context, reg action.Registration, row *model.DispatchRecord, req interfaces.ActionRequest) (*model.DispatchRecord, error) {
	policy := retry.NoRetry
	if reg.Retryable {
		policy = uc.cfg.RetryPolicy
	}

	attempts := row.Attempts
	err := policy.Do(ctx, func(ctx context.Context) error {
		attempts++
		return reg.Handler.Handle(ctx, req)
	})
	if err != nil {
		_ = errutil.Handle(ctx, goerr.Wrap(model.ErrDispatchFailure, "action handler failed",
			goerr.V("conversation_id", req.ConversationID),
			goerr.V("action_type", req.Action.Type),
			goerr.V("attempts", attempts),
			goerr.V("cause", err.Error())), "action dispatch failed")
		return uc.finish(ctx, row.IdempotencyKey, types.DispatchStatusFailed, err.Error(), attempts)
	}

	return uc.finish(ctx, row.IdempotencyKey, types.DispatchStatusExecuted, "", attempts)
}

func (uc *DispatchUseCase) finish(ctx context.Context, key string, status types.DispatchStatus, reason string, attempts int) (*model.DispatchRecord, error) {
	rec, err := uc.repo.Dispatch().Finish(ctx, key, status, reason, attempts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to finish dispatch row",
			goerr.V("key", key),
			goerr.V("status", status))
	}
	return rec, nil
}

func (uc *DispatchUseCase) lookup(t types.ActionType) (action.Registration, bool) {
	if uc.registry == nil {
		return action.Registration{}, false
	}
	return uc.registry.Lookup(t)
}

// Retry re-runs a failed action of a conversation. Only rows in failed state
// can be retried; the row is moved back to pending with a compare-and-set
// so two operators cannot retry the same row concurrently.
func (uc *DispatchUseCase) Retry(ctx context.Context, conversationID model.ConversationID, actionType types.ActionType) (*model.DispatchRecord, error) {
	if !actionType.IsValid() {
		return nil, goerr.Wrap(model.ErrValidation, "invalid action type", goerr.V("action_type", actionType))
	}

	result, err := uc.repo.Analysis().Get(ctx, conversationID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get analysis", goerr.V("conversation_id", conversationID))
	}
	customer, err := uc.repo.Customer().Get(ctx, result.CustomerID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get customer", goerr.V("customer_id", result.CustomerID))
	}

	reg, ok := uc.lookup(actionType)
	if !ok {
		return nil, goerr.Wrap(model.ErrValidation, reasonNoHandler, goerr.V("action_type", actionType))
	}

	key := model.IdempotencyKey(conversationID, actionType, uc.epoch(result))
	row, reclaimed, err := uc.repo.Dispatch().Reclaim(ctx, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to reclaim dispatch row",
			goerr.V("conversation_id", conversationID),
			goerr.V("action_type", actionType))
	}
	if !reclaimed {
		return nil, goerr.Wrap(model.ErrValidation, "only failed actions can be retried",
			goerr.V("conversation_id", conversationID),
			goerr.V("action_type", actionType),
			goerr.V("status", row.Status))
	}

	if customer.DoNotContact && actionType.IsOutbound() {
		return uc.finish(ctx, key, types.DispatchStatusSkipped, reasonDoNotContact, row.Attempts)
	}

	act := model.Action{Type: actionType}
	for _, a := range result.Actions {
		if a.Type == actionType {
			act = a
			break
		}
	}

	logging.From(ctx).Info("retrying failed action",
		"conversation_id", conversationID,
		"action_type", actionType,
		"previous_attempts", row.Attempts,
	)

	return uc.run(ctx, reg, row, interfaces.ActionRequest{
		Action:         act,
		ConversationID: conversationID,
		Customer:       customer,
		Summary:        result.Summary,
		IdempotencyKey: key,
	})
}

// List returns the ledger rows of a conversation in creation order
func (uc *DispatchUseCase) List(ctx context.Context, conversationID model.ConversationID) ([]*model.DispatchRecord, error) {
	records, err := uc.repo.Dispatch().ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list dispatch rows", goerr.V("conversation_id", conversationID))
	}
	return records, nil
}

// ListByStatus returns ledger rows across conversations
func (uc *DispatchUseCase) ListByStatus(ctx context.Context, status types.DispatchStatus) ([]*model.DispatchRecord, error) {
	if !status.IsValid() {
		return nil, goerr.Wrap(model.ErrValidation, "invalid dispatch status", goerr.V("status", status))
	}
	records, err := uc.repo.Dispatch().ListByStatus(ctx, status)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list dispatch rows", goerr.V("status", status))
	}
	return records, nil
}
