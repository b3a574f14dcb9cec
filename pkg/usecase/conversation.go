package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/analyzer"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/embedding"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/errutil"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/keylock"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

// IndexConfig controls how conversation text is split before embedding
type IndexConfig struct {
	// ChunkWords is the window size in words; text longer than one window is
	// embedded as several chunks
	ChunkWords   int
	ChunkOverlap int
}

func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		ChunkWords:   500,
		ChunkOverlap: 100,
	}
}

// IngestInput is a finished conversation reported by a telephony or email
// provider. Customer carries the contact fields known at that time.
type IngestInput struct {
	Conversation *model.Conversation
	Customer     *model.Customer
}

// ProcessResult is what one processing pass produced
type ProcessResult struct {
	Conversation *model.Conversation
	Analysis     *model.AnalysisResult
	Dispatches   []*model.DispatchRecord
}

// ConversationUseCase drives a conversation from ingestion through analysis,
// dispatch and indexing
type ConversationUseCase struct {
	repo     interfaces.Repository
	analyzer ConversationAnalyzer
	embedder Embedder
	dispatch *DispatchUseCase
	memory   *MemoryUseCase
	cfg      IndexConfig
	locks    *keylock.KeyLock
}

func NewConversationUseCase(repo interfaces.Repository, analyzer ConversationAnalyzer, embedder Embedder, dispatch *DispatchUseCase, memory *MemoryUseCase, cfg IndexConfig) *ConversationUseCase {
	return &ConversationUseCase{
		repo:     repo,
		analyzer: analyzer,
		embedder: embedder,
		dispatch: dispatch,
		memory:   memory,
		cfg:      cfg,
		locks:    keylock.New(),
	}
}

// Ingest stores a conversation unless one with the same ID already exists.
// It returns the stored conversation and whether this call created it;
// redelivered completion events are reported with created=false.
func (uc *ConversationUseCase) Ingest(ctx context.Context, in IngestInput) (*model.Conversation, bool, error) {
	conv := in.Conversation
	if conv == nil {
		return nil, false, goerr.Wrap(model.ErrValidation, "conversation is required")
	}
	if err := conv.Validate(); err != nil {
		return nil, false, err
	}

	customer := in.Customer
	if customer == nil {
		customer = &model.Customer{}
	}
	customer.ID = conv.CustomerID
	if _, err := uc.repo.Customer().Upsert(ctx, customer); err != nil {
		return nil, false, goerr.Wrap(err, "failed to upsert customer", goerr.V("customer_id", conv.CustomerID))
	}

	conv.Status = types.ConversationStatusReceived
	stored, created, err := uc.repo.Conversation().CreateIfAbsent(ctx, conv)
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to store conversation", goerr.V("conversation_id", conv.ID))
	}

	logging.From(ctx).Info("conversation ingested",
		"conversation_id", stored.ID,
		"customer_id", stored.CustomerID,
		"channel", stored.Channel,
		"created", created,
		"status", stored.Status,
	)
	return stored, created, nil
}

// Process analyzes, dispatches and indexes a conversation. Passes over the
// same conversation are serialized. A conversation that already has an
// analysis is not analyzed again: its stored result is dispatched through
// the ledger, which suppresses actions that already ran, and indexing
// resumes if it had not finished.
func (uc *ConversationUseCase) Process(ctx context.Context, id model.ConversationID) (*ProcessResult, error) {
	unlock := uc.locks.Lock(id.String())
	defer unlock()

	ctx = logging.With(ctx, logging.From(ctx).With("conversation_id", id))

	conv, err := uc.repo.Conversation().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("conversation_id", id))
	}

	var result *model.AnalysisResult
	if conv.Status.HasAnalysis() {
		result, err = uc.repo.Analysis().Get(ctx, id)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get analysis", goerr.V("conversation_id", id))
		}
		logging.From(ctx).Info("conversation already analyzed, reusing result", "status", conv.Status)
	} else {
		result, err = uc.analyze(ctx, conv, 0)
		if err != nil {
			if statusErr := uc.setStatus(ctx, conv, types.ConversationStatusUnanalyzed); statusErr != nil {
				return nil, errors.Join(err, statusErr)
			}
			return nil, err
		}
	}

	return uc.complete(ctx, conv, result, true)
}

// Reanalyze discards the current analysis of a conversation and analyzes it
// again with a bumped epoch. Actions are dispatched again only when the
// dispatcher folds the epoch into idempotency keys; otherwise the ledger
// keeps them suppressed.
func (uc *ConversationUseCase) Reanalyze(ctx context.Context, id model.ConversationID) (*ProcessResult, error) {
	unlock := uc.locks.Lock(id.String())
	defer unlock()

	ctx = logging.With(ctx, logging.From(ctx).With("conversation_id", id))

	conv, err := uc.repo.Conversation().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("conversation_id", id))
	}

	epoch := 0
	prev, err := uc.repo.Analysis().Get(ctx, id)
	switch {
	case err == nil:
		epoch = prev.Epoch + 1
	case errors.Is(err, model.ErrNotFound):
	default:
		return nil, goerr.Wrap(err, "failed to get analysis", goerr.V("conversation_id", id))
	}

	// A failed re-analysis keeps the previous result and status.
	result, err := uc.analyze(ctx, conv, epoch)
	if err != nil {
		return nil, err
	}

	return uc.complete(ctx, conv, result, uc.dispatch != nil && uc.dispatch.cfg.RedispatchOnReanalysis)
}

// Reembed indexes a conversation again from its stored analysis. It is the
// recovery path for conversations left in needs_reembedding.
func (uc *ConversationUseCase) Reembed(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	unlock := uc.locks.Lock(id.String())
	defer unlock()

	conv, err := uc.repo.Conversation().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("conversation_id", id))
	}
	if !conv.Status.HasAnalysis() {
		return nil, goerr.Wrap(model.ErrValidation, "conversation has no analysis to index",
			goerr.V("conversation_id", id),
			goerr.V("status", conv.Status))
	}

	result, err := uc.repo.Analysis().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get analysis", goerr.V("conversation_id", id))
	}

	if err := uc.index(ctx, conv, result); err != nil {
		return conv, err
	}
	return conv, nil
}

// Get returns a conversation with its current analysis, which is nil when
// the conversation has not been analyzed
func (uc *ConversationUseCase) Get(ctx context.Context, id model.ConversationID) (*model.Conversation, *model.AnalysisResult, error) {
	conv, err := uc.repo.Conversation().Get(ctx, id)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to get conversation", goerr.V("conversation_id", id))
	}
	if !conv.Status.HasAnalysis() {
		return conv, nil, nil
	}

	result, err := uc.repo.Analysis().Get(ctx, id)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to get analysis", goerr.V("conversation_id", id))
	}
	return conv, result, nil
}

// ListByStatus returns conversations in status, oldest first
func (uc *ConversationUseCase) ListByStatus(ctx context.Context, status types.ConversationStatus) ([]*model.Conversation, error) {
	if !status.IsValid() {
		return nil, goerr.Wrap(model.ErrValidation, "invalid conversation status", goerr.V("status", status))
	}
	convs, err := uc.repo.Conversation().ListByStatus(ctx, status)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list conversations", goerr.V("status", status))
	}
	return convs, nil
}

// analyze runs the analyzer and stores the result as the current analysis
func (uc *ConversationUseCase) analyze(ctx context.Context, conv *model.Conversation, epoch int) (*model.AnalysisResult, error) {
	if uc.analyzer == nil {
		return nil, goerr.Wrap(model.ErrServiceUnavailable, "no analyzer configured", goerr.V("conversation_id", conv.ID))
	}

	result, err := uc.analyzer.Analyze(ctx, analyzer.Input{
		ConversationID: conv.ID,
		CustomerID:     conv.CustomerID,
		Channel:        conv.Channel,
		Text:           conv.Text(),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to analyze conversation", goerr.V("conversation_id", conv.ID))
	}

	result.ID = model.NewAnalysisID()
	result.ConversationID = conv.ID
	result.CustomerID = conv.CustomerID
	result.Epoch = epoch
	result.CreatedAt = time.Now().UTC()

	if err := uc.repo.Analysis().Put(ctx, result); err != nil {
		return nil, goerr.Wrap(err, "failed to store analysis", goerr.V("conversation_id", conv.ID))
	}
	if err := uc.setStatus(ctx, conv, types.ConversationStatusAnalyzed); err != nil {
		return nil, err
	}

	logging.From(ctx).Info("conversation analyzed",
		"sentiment", result.Sentiment,
		"interest_level", result.InterestLevel,
		"actions", len(result.Actions),
		"epoch", epoch,
	)
	return result, nil
}

// complete dispatches the actions of result, records the analysis insight
// and then indexes the conversation. Dispatch rows are written before
// anything derived from the analysis becomes retrievable.
func (uc *ConversationUseCase) complete(ctx context.Context, conv *model.Conversation, result *model.AnalysisResult, dispatch bool) (*ProcessResult, error) {
	out := &ProcessResult{Conversation: conv, Analysis: result}

	if dispatch && uc.dispatch != nil {
		customer, err := uc.repo.Customer().Get(ctx, conv.CustomerID)
		if err != nil {
			return out, goerr.Wrap(err, "failed to get customer", goerr.V("customer_id", conv.CustomerID))
		}

		records, err := uc.dispatch.Dispatch(ctx, result, customer)
		out.Dispatches = records
		if err != nil {
			return out, err
		}
	}

	uc.recordInsight(ctx, conv, result)

	if conv.Status == types.ConversationStatusIndexed {
		return out, nil
	}

	if err := uc.index(ctx, conv, result); err != nil {
		return out, err
	}
	return out, nil
}

// recordInsight stores the analysis as a memory fact. It runs after the
// dispatch ledger is written, and at most once per analysis.
func (uc *ConversationUseCase) recordInsight(ctx context.Context, conv *model.Conversation, result *model.AnalysisResult) {
	if uc.memory == nil {
		return
	}
	_, err := uc.memory.Record(ctx, &model.MemoryEntry{
		ID:             model.MemoryIDFor(string(result.ID) + "/" + types.MemoryTypeAnalysisInsight.String()),
		CustomerID:     conv.CustomerID,
		ConversationID: conv.ID,
		Type:           types.MemoryTypeAnalysisInsight,
		Content:        result.Insight(),
	})
	if err != nil && !errors.Is(err, model.ErrAlreadyExists) {
		_ = errutil.Handle(ctx, err, "failed to record analysis insight")
	}
}

// index embeds the conversation text and the summary and inserts all
// records in one call. On any failure nothing is retrievable and the
// conversation is marked needs_reembedding.
func (uc *ConversationUseCase) index(ctx context.Context, conv *model.Conversation, result *model.AnalysisResult) error {
	records, err := uc.buildRecords(ctx, conv, result)
	if err == nil {
		err = uc.repo.Embedding().Insert(ctx, records...)
		if err != nil {
			err = goerr.Wrap(err, "failed to insert embeddings", goerr.V("conversation_id", conv.ID))
		}
	}

	if err != nil {
		if statusErr := uc.setStatus(ctx, conv, types.ConversationStatusNeedsReembedding); statusErr != nil {
			return errors.Join(err, statusErr)
		}
		n, countErr := uc.repo.Conversation().IncrementReembedAttempts(ctx, conv.ID)
		if countErr != nil {
			return errors.Join(err, countErr)
		}
		conv.ReembedAttempts = n
		return err
	}

	if err := uc.setStatus(ctx, conv, types.ConversationStatusIndexed); err != nil {
		return err
	}
	logging.From(ctx).Info("conversation indexed", "records", len(records))
	return nil
}

func (uc *ConversationUseCase) buildRecords(ctx context.Context, conv *model.Conversation, result *model.AnalysisResult) ([]*model.EmbeddingRecord, error) {
	if uc.embedder == nil {
		return nil, goerr.Wrap(model.ErrServiceUnavailable, "no embedder configured", goerr.V("conversation_id", conv.ID))
	}

	chunks := embedding.ChunkText(conv.Text(), uc.cfg.ChunkWords, uc.cfg.ChunkOverlap)
	sourceType := types.SourceTypeConversationFull
	if conv.Channel == types.ChannelEmail && len(chunks) > 1 {
		sourceType = types.SourceTypeEmailChunk
	}

	texts := append([]string{}, chunks...)
	summary := strings.TrimSpace(result.Summary)
	if summary != "" {
		texts = append(texts, summary)
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed conversation", goerr.V("conversation_id", conv.ID))
	}
	if len(vectors) != len(texts) {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "embedder returned wrong number of vectors",
			goerr.V("conversation_id", conv.ID),
			goerr.V("expected", len(texts)),
			goerr.V("actual", len(vectors)))
	}

	now := time.Now().UTC()
	meta := func() map[string]string {
		return map[string]string{
			"conversation_id": conv.ID.String(),
			"channel":         conv.Channel.String(),
			"sentiment":       result.Sentiment.String(),
			"interest_level":  result.InterestLevel.String(),
		}
	}

	records := make([]*model.EmbeddingRecord, 0, len(texts))
	for i, chunk := range chunks {
		records = append(records, &model.EmbeddingRecord{
			ID:         model.NewEmbeddingID(),
			CustomerID: conv.CustomerID,
			OwnerID:    conv.ID.String(),
			SourceType: sourceType,
			ChunkIndex: i,
			Content:    chunk,
			Vector:     vectors[i],
			Metadata:   meta(),
			CreatedAt:  now,
		})
	}
	if summary != "" {
		records = append(records, &model.EmbeddingRecord{
			ID:         model.NewEmbeddingID(),
			CustomerID: conv.CustomerID,
			OwnerID:    conv.ID.String(),
			SourceType: types.SourceTypeConversationSummary,
			Content:    summary,
			Vector:     vectors[len(chunks)],
			Metadata:   meta(),
			CreatedAt:  now,
		})
	}
	return records, nil
}

func (uc *ConversationUseCase) setStatus(ctx context.Context, conv *model.Conversation, status types.ConversationStatus) error {
	if err := uc.repo.Conversation().UpdateStatus(ctx, conv.ID, status); err != nil {
		return goerr.Wrap(err, "failed to update conversation status",
			goerr.V("conversation_id", conv.ID),
			goerr.V("status", status))
	}
	conv.Status = status
	return nil
}
