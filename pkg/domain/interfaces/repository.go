package interfaces

// Repository groups the persistence contracts of the engine
type Repository interface {
	Customer() CustomerRepository
	Conversation() ConversationRepository
	Analysis() AnalysisRepository
	Dispatch() DispatchRepository
	Memory() MemoryRepository
	Embedding() EmbeddingRepository

	Close() error
}
