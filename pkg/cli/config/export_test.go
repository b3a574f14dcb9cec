package config

// NewLLMForTest creates an LLM config for testing purposes
func NewLLMForTest(provider, embeddingProvider string, dimension int) *LLM {
	return &LLM{
		provider:          provider,
		embeddingProvider: embeddingProvider,
		dimension:         dimension,
	}
}

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, sqlitePath, vectorBackend string) *Repository {
	return &Repository{
		backend:       backend,
		sqlitePath:    sqlitePath,
		vectorBackend: vectorBackend,
	}
}

// NewCacheForTest creates a Cache config for testing purposes
func NewCacheForTest(backend string) *Cache {
	return &Cache{backend: backend}
}
