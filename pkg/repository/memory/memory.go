package memory

import (
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
)

// Memory is an in-process repository used for development and tests
type Memory struct {
	customer     *customerRepository
	conversation *conversationRepository
	analysis     *analysisRepository
	dispatch     *dispatchRepository
	memory       *memoryRepository
	embedding    *embeddingRepository
}

var _ interfaces.Repository = &Memory{}

// Option configures the in-memory repository
type Option func(*Memory)

// WithDimension makes the embedding store reject vectors of any other length
func WithDimension(dim int) Option {
	return func(m *Memory) {
		m.embedding.dimension = dim
	}
}

func New(opts ...Option) *Memory {
	m := &Memory{
		customer:     newCustomerRepository(),
		conversation: newConversationRepository(),
		analysis:     newAnalysisRepository(),
		dispatch:     newDispatchRepository(),
		memory:       newMemoryRepository(),
		embedding:    newEmbeddingRepository(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Customer() interfaces.CustomerRepository {
	return m.customer
}

func (m *Memory) Conversation() interfaces.ConversationRepository {
	return m.conversation
}

func (m *Memory) Analysis() interfaces.AnalysisRepository {
	return m.analysis
}

func (m *Memory) Dispatch() interfaces.DispatchRepository {
	return m.dispatch
}

func (m *Memory) Memory() interfaces.MemoryRepository {
	return m.memory
}

func (m *Memory) Embedding() interfaces.EmbeddingRepository {
	return m.embedding
}

func (m *Memory) Close() error {
	return nil
}
