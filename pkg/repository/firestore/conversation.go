package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

type conversationDoc struct {
	ID         string    `firestore:"ID"`
	CustomerID string    `firestore:"CustomerID"`
	Channel    string    `firestore:"Channel"`
	Subject    string    `firestore:"Subject"`
	Body       string    `firestore:"Body"`
	Status     string    `firestore:"Status"`
	StartedAt  time.Time `firestore:"StartedAt"`
	EndedAt    time.Time `firestore:"EndedAt"`
	CreatedAt  time.Time `firestore:"CreatedAt"`
	UpdatedAt  time.Time `firestore:"UpdatedAt"`

	ReembedAttempts int `firestore:"ReembedAttempts"`
}

func toConversationDoc(c *model.Conversation) *conversationDoc {
	return &conversationDoc{
		ID:         string(c.ID),
		CustomerID: string(c.CustomerID),
		Channel:    string(c.Channel),
		Subject:    c.Subject,
		Body:       c.Body,
		Status:     string(c.Status),
		StartedAt:  c.StartedAt,
		EndedAt:    c.EndedAt,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,

		ReembedAttempts: c.ReembedAttempts,
	}
}

func fromConversationDoc(d *conversationDoc) *model.Conversation {
	return &model.Conversation{
		ID:         model.ConversationID(d.ID),
		CustomerID: model.CustomerID(d.CustomerID),
		Channel:    types.Channel(d.Channel),
		Subject:    d.Subject,
		Body:       d.Body,
		Status:     types.ConversationStatus(d.Status),
		StartedAt:  d.StartedAt,
		EndedAt:    d.EndedAt,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,

		ReembedAttempts: d.ReembedAttempts,
	}
}

func docToConversation(snap *firestore.DocumentSnapshot) (*model.Conversation, error) {
	var d conversationDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return fromConversationDoc(&d), nil
}

type conversationRepository struct {
	client     *firestore.Client
	collection string
}

func (r *conversationRepository) doc(id model.ConversationID) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(string(id))
}

// CreateIfAbsent uses DocumentRef.Create, which fails with AlreadyExists when
// another delivery of the same conversation won the race.
func (r *conversationRepository) CreateIfAbsent(ctx context.Context, conv *model.Conversation) (*model.Conversation, bool, error) {
	if err := conv.Validate(); err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	created := *conv
	if created.Status == "" {
		created.Status = types.ConversationStatusReceived
	}
	created.CreatedAt = now
	created.UpdatedAt = now

	if _, err := r.doc(conv.ID).Create(ctx, toConversationDoc(&created)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			existing, err := r.Get(ctx, conv.ID)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return nil, false, goerr.Wrap(err, "failed to create conversation", goerr.V("conversation_id", conv.ID))
	}
	return &created, true, nil
}

func (r *conversationRepository) Get(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	snap, err := r.doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "conversation not found", goerr.V("conversation_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("conversation_id", id))
	}

	c, err := docToConversation(snap)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("conversation_id", id))
	}
	return c, nil
}

func (r *conversationRepository) ListByCustomer(ctx context.Context, customerID model.CustomerID) ([]*model.Conversation, error) {
	iter := r.client.Collection(r.collection).
		Where("CustomerID", "==", string(customerID)).
		OrderBy("CreatedAt", firestore.Desc).
		Documents(ctx)
	return collectConversations(iter)
}

func (r *conversationRepository) ListByStatus(ctx context.Context, st types.ConversationStatus) ([]*model.Conversation, error) {
	iter := r.client.Collection(r.collection).
		Where("Status", "==", string(st)).
		OrderBy("CreatedAt", firestore.Asc).
		Documents(ctx)
	return collectConversations(iter)
}

func collectConversations(iter *firestore.DocumentIterator) ([]*model.Conversation, error) {
	defer iter.Stop()

	result := make([]*model.Conversation, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate conversations")
		}
		c, err := docToConversation(snap)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to decode conversation")
		}
		result = append(result, c)
	}
	return result, nil
}

func (r *conversationRepository) UpdateStatus(ctx context.Context, id model.ConversationID, st types.ConversationStatus) error {
	if !st.IsValid() {
		return goerr.Wrap(model.ErrValidation, "invalid conversation status", goerr.V("status", st))
	}

	_, err := r.doc(id).Update(ctx, []firestore.Update{
		{Path: "Status", Value: string(st)},
		{Path: "UpdatedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrNotFound, "conversation not found", goerr.V("conversation_id", id))
		}
		return goerr.Wrap(err, "failed to update conversation status", goerr.V("conversation_id", id))
	}
	return nil
}

func (r *conversationRepository) IncrementReembedAttempts(ctx context.Context, id model.ConversationID) (int, error) {
	var n int
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(r.doc(id))
		if err != nil {
			return err
		}
		c, err := docToConversation(snap)
		if err != nil {
			return err
		}
		n = c.ReembedAttempts + 1
		return tx.Update(r.doc(id), []firestore.Update{
			{Path: "ReembedAttempts", Value: n},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, goerr.Wrap(model.ErrNotFound, "conversation not found", goerr.V("conversation_id", id))
		}
		return 0, goerr.Wrap(err, "failed to count re-embed attempt", goerr.V("conversation_id", id))
	}
	return n, nil
}

type actionDoc struct {
	Type     string            `firestore:"Type"`
	Reason   string            `firestore:"Reason"`
	Priority int               `firestore:"Priority"`
	Metadata map[string]string `firestore:"Metadata,omitempty"`
}

type analysisDoc struct {
	ID             string      `firestore:"ID"`
	ConversationID string      `firestore:"ConversationID"`
	CustomerID     string      `firestore:"CustomerID"`
	Summary        string      `firestore:"Summary"`
	Sentiment      string      `firestore:"Sentiment"`
	InterestLevel  string      `firestore:"InterestLevel"`
	Topics         []string    `firestore:"Topics"`
	NextSteps      []string    `firestore:"NextSteps"`
	Actions        []actionDoc `firestore:"Actions"`
	Epoch          int         `firestore:"Epoch"`
	CreatedAt      time.Time   `firestore:"CreatedAt"`
}

type analysisRepository struct {
	client     *firestore.Client
	collection string
}

func (r *analysisRepository) Put(ctx context.Context, result *model.AnalysisResult) error {
	d := &analysisDoc{
		ID:             string(result.ID),
		ConversationID: string(result.ConversationID),
		CustomerID:     string(result.CustomerID),
		Summary:        result.Summary,
		Sentiment:      string(result.Sentiment),
		InterestLevel:  string(result.InterestLevel),
		Topics:         result.Topics,
		NextSteps:      result.NextSteps,
		Epoch:          result.Epoch,
		CreatedAt:      result.CreatedAt,
	}
	if d.ID == "" {
		d.ID = string(model.NewAnalysisID())
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	for _, a := range result.Actions {
		d.Actions = append(d.Actions, actionDoc{
			Type:     string(a.Type),
			Reason:   a.Reason,
			Priority: a.Priority,
			Metadata: a.Metadata,
		})
	}

	if _, err := r.client.Collection(r.collection).Doc(string(result.ConversationID)).Set(ctx, d); err != nil {
		return goerr.Wrap(err, "failed to put analysis", goerr.V("conversation_id", result.ConversationID))
	}
	return nil
}

func (r *analysisRepository) Get(ctx context.Context, conversationID model.ConversationID) (*model.AnalysisResult, error) {
	snap, err := r.client.Collection(r.collection).Doc(string(conversationID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "analysis not found", goerr.V("conversation_id", conversationID))
		}
		return nil, goerr.Wrap(err, "failed to get analysis", goerr.V("conversation_id", conversationID))
	}

	var d analysisDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to decode analysis", goerr.V("conversation_id", conversationID))
	}

	a := &model.AnalysisResult{
		ID:             model.AnalysisID(d.ID),
		ConversationID: model.ConversationID(d.ConversationID),
		CustomerID:     model.CustomerID(d.CustomerID),
		Summary:        d.Summary,
		Sentiment:      types.Sentiment(d.Sentiment),
		InterestLevel:  types.InterestLevel(d.InterestLevel),
		Topics:         d.Topics,
		NextSteps:      d.NextSteps,
		Epoch:          d.Epoch,
		CreatedAt:      d.CreatedAt,
		Actions:        make([]model.Action, 0, len(d.Actions)),
	}
	for _, ad := range d.Actions {
		a.Actions = append(a.Actions, model.Action{
			Type:     types.ActionType(ad.Type),
			Reason:   ad.Reason,
			Priority: ad.Priority,
			Metadata: ad.Metadata,
		})
	}
	return a, nil
}
