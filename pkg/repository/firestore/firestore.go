package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
)

// Collection names before prefixing
const (
	CollectionCustomers     = "customers"
	CollectionConversations = "conversations"
	CollectionAnalyses      = "analyses"
	CollectionDispatches    = "dispatches"
	CollectionMemories      = "memories"
	CollectionEmbeddings    = "embeddings"
)

type Firestore struct {
	client     *firestore.Client
	databaseID string
	prefix     string
	dimension  int

	customer     *customerRepository
	conversation *conversationRepository
	analysis     *analysisRepository
	dispatch     *dispatchRepository
	memory       *memoryRepository
	embedding    *embeddingRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

// WithDatabaseID selects a named Firestore database instead of "(default)"
func WithDatabaseID(databaseID string) Option {
	return func(f *Firestore) {
		f.databaseID = databaseID
	}
}

// WithCollectionPrefix namespaces every collection, e.g. for tests
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.prefix = prefix
	}
}

// WithDimension makes the embedding store reject vectors of any other length
func WithDimension(dim int) Option {
	return func(f *Firestore) {
		f.dimension = dim
	}
}

func New(ctx context.Context, projectID string, opts ...Option) (*Firestore, error) {
	f := &Firestore{}
	for _, opt := range opts {
		opt(f)
	}

	var (
		client *firestore.Client
		err    error
	)
	if f.databaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, f.databaseID)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", f.databaseID))
	}
	f.client = client

	f.customer = &customerRepository{client: client, collection: f.collection(CollectionCustomers)}
	f.conversation = &conversationRepository{client: client, collection: f.collection(CollectionConversations)}
	f.analysis = &analysisRepository{client: client, collection: f.collection(CollectionAnalyses)}
	f.dispatch = &dispatchRepository{client: client, collection: f.collection(CollectionDispatches)}
	f.memory = &memoryRepository{client: client, collection: f.collection(CollectionMemories)}
	f.embedding = &embeddingRepository{client: client, collection: f.collection(CollectionEmbeddings), dimension: f.dimension}

	return f, nil
}

func (f *Firestore) collection(name string) string {
	return CollectionName(f.prefix, name)
}

// CollectionName applies prefix the same way the repository does
func CollectionName(prefix, name string) string {
	if prefix != "" {
		return prefix + "_" + name
	}
	return name
}

func (f *Firestore) Customer() interfaces.CustomerRepository {
	return f.customer
}

func (f *Firestore) Conversation() interfaces.ConversationRepository {
	return f.conversation
}

func (f *Firestore) Analysis() interfaces.AnalysisRepository {
	return f.analysis
}

func (f *Firestore) Dispatch() interfaces.DispatchRepository {
	return f.dispatch
}

func (f *Firestore) Memory() interfaces.MemoryRepository {
	return f.memory
}

func (f *Firestore) Embedding() interfaces.EmbeddingRepository {
	return f.embedding
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
