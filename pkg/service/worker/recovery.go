package worker

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/usecase"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

// Conversations is the part of the conversation use case the worker drives
type Conversations interface {
	ListByStatus(ctx context.Context, status types.ConversationStatus) ([]*model.Conversation, error)
	Process(ctx context.Context, id model.ConversationID) (*usecase.ProcessResult, error)
	Reembed(ctx context.Context, id model.ConversationID) (*model.Conversation, error)
}

// RecoveryWorker periodically finishes conversations that stopped short of
// the indexed state. Conversations left received or analyzed are processed
// again, and conversations whose embedding failed are re-embedded until
// they reach the attempt limit. Unanalyzed conversations are left for an
// operator to reanalyze.
//
// Architecture assumptions:
// - Single server instance (no distributed locking)
// - Passes over one conversation are serialized by the use case itself
type RecoveryWorker struct {
	convs    Conversations
	interval time.Duration
	// grace skips conversations updated recently, which the ingestion path
	// is most likely still processing
	grace             time.Duration
	maxReembedAttempt int
	stopCh            chan struct{}
	doneCh            chan struct{}
}

// DefaultMaxReembedAttempts bounds automatic re-embedding of one conversation
const DefaultMaxReembedAttempts = 3

type RecoveryOption func(*RecoveryWorker)

// WithMaxReembedAttempts sets how many failed indexing passes a conversation
// may have before the worker stops re-embedding it
func WithMaxReembedAttempts(n int) RecoveryOption {
	return func(w *RecoveryWorker) {
		w.maxReembedAttempt = n
	}
}

// NewRecoveryWorker creates a worker sweeping every interval
func NewRecoveryWorker(convs Conversations, interval, grace time.Duration, opts ...RecoveryOption) *RecoveryWorker {
	w := &RecoveryWorker{
		convs:             convs,
		interval:          interval,
		grace:             grace,
		maxReembedAttempt: DefaultMaxReembedAttempts,
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the background loop without blocking
func (w *RecoveryWorker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return goerr.New("recovery interval must be positive", goerr.V("interval", w.interval))
	}
	logging.Default().Info("Recovery worker starting",
		"interval", w.interval.String(),
		"grace", w.grace.String())

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for the current sweep
func (w *RecoveryWorker) Stop() {
	logging.Default().Info("Recovery worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("Recovery worker stopped")
}

func (w *RecoveryWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				logging.Default().Error("Recovery sweep failed (will retry next interval)",
					"error", err.Error())
			}

		case <-w.stopCh:
			return

		case <-ctx.Done():
			logging.Default().Info("Recovery worker context cancelled")
			return
		}
	}
}

// Sweep performs a single recovery pass. Failures of individual
// conversations are logged and do not stop the pass.
func (w *RecoveryWorker) Sweep(ctx context.Context) error {
	startTime := time.Now()
	cutoff := startTime.Add(-w.grace)
	logger := logging.From(ctx)

	resumed := 0
	for _, st := range []types.ConversationStatus{
		types.ConversationStatusReceived,
		types.ConversationStatusAnalyzed,
	} {
		convs, err := w.convs.ListByStatus(ctx, st)
		if err != nil {
			return goerr.Wrap(err, "failed to list conversations", goerr.V("status", st))
		}
		for _, conv := range convs {
			if conv.UpdatedAt.After(cutoff) {
				continue
			}
			if _, err := w.convs.Process(ctx, conv.ID); err != nil {
				logger.Warn("failed to resume conversation",
					"conversation_id", conv.ID,
					"status", st,
					logging.ErrAttr(err))
				continue
			}
			resumed++
		}
	}

	convs, err := w.convs.ListByStatus(ctx, types.ConversationStatusNeedsReembedding)
	if err != nil {
		return goerr.Wrap(err, "failed to list conversations", goerr.V("status", types.ConversationStatusNeedsReembedding))
	}
	reembedded := 0
	for _, conv := range convs {
		if conv.UpdatedAt.After(cutoff) {
			continue
		}
		if conv.ReembedAttempts >= w.maxReembedAttempt {
			logger.Debug("re-embed attempts exhausted, waiting for operator",
				"conversation_id", conv.ID,
				"attempts", conv.ReembedAttempts)
			continue
		}
		if _, err := w.convs.Reembed(ctx, conv.ID); err != nil {
			logger.Warn("failed to re-embed conversation",
				"conversation_id", conv.ID,
				logging.ErrAttr(err))
			continue
		}
		reembedded++
	}

	if resumed > 0 || reembedded > 0 {
		logger.Info("Recovery sweep completed",
			"resumed", resumed,
			"reembedded", reembedded,
			"duration", time.Since(startTime).String())
	}
	return nil
}
