package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

type conversationRepository struct {
	mu            sync.RWMutex
	conversations map[model.ConversationID]*model.Conversation
}

func newConversationRepository() *conversationRepository {
	return &conversationRepository{
		conversations: make(map[model.ConversationID]*model.Conversation),
	}
}

func copyConversation(c *model.Conversation) *model.Conversation {
	copied := *c
	return &copied
}

func (r *conversationRepository) CreateIfAbsent(ctx context.Context, conv *model.Conversation) (*model.Conversation, bool, error) {
	if err := conv.Validate(); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conversations[conv.ID]; ok {
		return copyConversation(existing), false, nil
	}

	now := time.Now().UTC()
	created := copyConversation(conv)
	if created.Status == "" {
		created.Status = types.ConversationStatusReceived
	}
	created.CreatedAt = now
	created.UpdatedAt = now
	r.conversations[created.ID] = created
	return copyConversation(created), true, nil
}

func (r *conversationRepository) Get(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conversations[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "conversation not found", goerr.V("conversation_id", id))
	}
	return copyConversation(c), nil
}

func (r *conversationRepository) ListByCustomer(ctx context.Context, customerID model.CustomerID) ([]*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Conversation, 0)
	for _, c := range r.conversations {
		if c.CustomerID == customerID {
			result = append(result, copyConversation(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *conversationRepository) ListByStatus(ctx context.Context, status types.ConversationStatus) ([]*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Conversation, 0)
	for _, c := range r.conversations {
		if c.Status == status {
			result = append(result, copyConversation(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *conversationRepository) UpdateStatus(ctx context.Context, id model.ConversationID, status types.ConversationStatus) error {
	if !status.IsValid() {
		return goerr.Wrap(model.ErrValidation, "invalid conversation status", goerr.V("status", status))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[id]
	if !ok {
		return goerr.Wrap(model.ErrNotFound, "conversation not found", goerr.V("conversation_id", id))
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *conversationRepository) IncrementReembedAttempts(ctx context.Context, id model.ConversationID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[id]
	if !ok {
		return 0, goerr.Wrap(model.ErrNotFound, "conversation not found", goerr.V("conversation_id", id))
	}
	c.ReembedAttempts++
	return c.ReembedAttempts, nil
}

type analysisRepository struct {
	mu      sync.RWMutex
	results map[model.ConversationID]*model.AnalysisResult
}

func newAnalysisRepository() *analysisRepository {
	return &analysisRepository{
		results: make(map[model.ConversationID]*model.AnalysisResult),
	}
}

func (r *analysisRepository) Put(ctx context.Context, result *model.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := result.Copy()
	if stored.ID == "" {
		stored.ID = model.NewAnalysisID()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.results[stored.ConversationID] = stored
	return nil
}

func (r *analysisRepository) Get(ctx context.Context, conversationID model.ConversationID) (*model.AnalysisResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.results[conversationID]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "analysis not found", goerr.V("conversation_id", conversationID))
	}
	return res.Copy(), nil
}
