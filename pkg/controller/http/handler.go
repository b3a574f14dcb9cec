package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/usecase"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/errutil"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

type customerPayload struct {
	Name        string `json:"name"`
	CompanyName string `json:"company_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

type ingestRequest struct {
	ConversationID string           `json:"conversation_id"`
	CustomerID     string           `json:"customer_id"`
	Channel        string           `json:"channel"`
	Subject        string           `json:"subject"`
	Body           string           `json:"body"`
	StartedAt      time.Time        `json:"started_at"`
	EndedAt        time.Time        `json:"ended_at"`
	Customer       *customerPayload `json:"customer,omitempty"`
}

type ingestResponse struct {
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	Created        bool   `json:"created"`
}

type actionView struct {
	Type     string            `json:"type"`
	Reason   string            `json:"reason,omitempty"`
	Priority int               `json:"priority"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type analysisView struct {
	Summary       string       `json:"summary"`
	Sentiment     string       `json:"sentiment"`
	InterestLevel string       `json:"interest_level"`
	Topics        []string     `json:"topics"`
	NextSteps     []string     `json:"next_steps"`
	Actions       []actionView `json:"actions"`
	Epoch         int          `json:"epoch"`
	CreatedAt     time.Time    `json:"created_at"`
}

type conversationView struct {
	ID         string        `json:"id"`
	CustomerID string        `json:"customer_id"`
	Channel    string        `json:"channel"`
	Subject    string        `json:"subject,omitempty"`
	Status     string        `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Analysis   *analysisView `json:"analysis,omitempty"`
}

type dispatchView struct {
	ActionType string     `json:"action_type"`
	Status     string     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Attempts   int        `json:"attempts"`
	Epoch      int        `json:"epoch"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type contextResponse struct {
	*model.ContextBundle
	Formatted string `json:"formatted"`
}

type memoryRequest struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type memoryView struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Server) ingestConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ingestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(model.ErrValidation, "invalid request body", goerr.V("cause", err.Error())), http.StatusBadRequest)
		return
	}

	in := usecase.IngestInput{
		Conversation: &model.Conversation{
			ID:         model.ConversationID(req.ConversationID),
			CustomerID: model.CustomerID(req.CustomerID),
			Channel:    types.Channel(req.Channel),
			Subject:    req.Subject,
			Body:       req.Body,
			StartedAt:  req.StartedAt,
			EndedAt:    req.EndedAt,
		},
	}
	if req.Customer != nil {
		in.Customer = &model.Customer{
			Name:        req.Customer.Name,
			CompanyName: req.Customer.CompanyName,
			Email:       req.Customer.Email,
			Phone:       req.Customer.Phone,
			Active:      true,
		}
	}

	conv, created, err := s.uc.Conversation.Ingest(ctx, in)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, errutil.StatusCode(err))
		return
	}

	// Redelivered events still trigger a pass so that a conversation stuck
	// in an earlier state gets finished; the pass itself is idempotent.
	if conv.Status != types.ConversationStatusIndexed {
		s.process(ctx, conv.ID)
	}

	writeJSON(w, r, http.StatusAccepted, ingestResponse{
		ConversationID: conv.ID.String(),
		Status:         conv.Status.String(),
		Created:        created,
	})
}

func (s *Server) process(ctx context.Context, id model.ConversationID) {
	ctx = logging.With(ctx, logging.From(ctx).With("conversation_id", id))
	s.pool.Dispatch(ctx, func(ctx context.Context) error {
		result, err := s.uc.Conversation.Process(ctx, id)
		if err != nil {
			return err
		}
		logging.From(ctx).Info("conversation processed",
			"status", result.Conversation.Status,
			"dispatches", len(result.Dispatches),
		)
		return nil
	})
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := model.ConversationID(chi.URLParam(r, "conversationID"))

	conv, analysis, err := s.uc.Conversation.Get(ctx, id)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, errutil.StatusCode(err))
		return
	}

	writeJSON(w, r, http.StatusOK, toConversationView(conv, analysis))
}

func (s *Server) listDispatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := model.ConversationID(chi.URLParam(r, "conversationID"))

	records, err := s.uc.Dispatch.List(ctx, id)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, errutil.StatusCode(err))
		return
	}

	views := make([]dispatchView, 0, len(records))
	for _, rec := range records {
		views = append(views, dispatchView{
			ActionType: rec.ActionType.String(),
			Status:     rec.Status.String(),
			Reason:     rec.Reason,
			Attempts:   rec.Attempts,
			Epoch:      rec.Epoch,
			ExecutedAt: rec.ExecutedAt,
			UpdatedAt:  rec.UpdatedAt,
		})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"dispatches": views})
}

// getContext never fails on retrieval errors; callers building a prompt get
// an empty bundle instead.
func (s *Server) getContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	in := usecase.RetrieveInput{
		CustomerID: model.CustomerID(chi.URLParam(r, "customerID")),
		Query:      q.Get("q"),
	}
	if in.Query == "" {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(model.ErrValidation, "query parameter q is required"), http.StatusBadRequest)
		return
	}
	if v := q.Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(model.ErrValidation, "top_k must be a positive integer", goerr.V("top_k", v)), http.StatusBadRequest)
			return
		}
		in.TopK = n
	}
	if v := q.Get("min_similarity"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(model.ErrValidation, "min_similarity must be between 0 and 1", goerr.V("min_similarity", v)), http.StatusBadRequest)
			return
		}
		in.MinSimilarity = &f
	}

	bundle := s.uc.Retrieval.RetrieveContextOrEmpty(ctx, in)
	writeJSON(w, r, http.StatusOK, contextResponse{
		ContextBundle: bundle,
		Formatted:     bundle.Format(),
	})
}

func (s *Server) listMemories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := model.CustomerID(chi.URLParam(r, "customerID"))

	entries, err := s.uc.Memory.List(ctx, customerID, types.MemoryType(r.URL.Query().Get("type")))
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, errutil.StatusCode(err))
		return
	}

	views := make([]memoryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toMemoryView(e))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"memories": views})
}

func (s *Server) addMemory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := model.CustomerID(chi.URLParam(r, "customerID"))

	var req memoryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(model.ErrValidation, "invalid request body", goerr.V("cause", err.Error())), http.StatusBadRequest)
		return
	}

	entry, err := s.uc.Memory.Record(ctx, &model.MemoryEntry{
		CustomerID: customerID,
		Type:       types.MemoryType(req.Type),
		Content:    req.Content,
	})
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, errutil.StatusCode(err))
		return
	}

	writeJSON(w, r, http.StatusCreated, toMemoryView(entry))
}

func toConversationView(conv *model.Conversation, analysis *model.AnalysisResult) conversationView {
	v := conversationView{
		ID:         conv.ID.String(),
		CustomerID: conv.CustomerID.String(),
		Channel:    conv.Channel.String(),
		Subject:    conv.Subject,
		Status:     conv.Status.String(),
		CreatedAt:  conv.CreatedAt,
		UpdatedAt:  conv.UpdatedAt,
	}
	if analysis == nil {
		return v
	}

	actions := make([]actionView, 0, len(analysis.Actions))
	for _, a := range analysis.Actions {
		actions = append(actions, actionView{
			Type:     a.Type.String(),
			Reason:   a.Reason,
			Priority: a.Priority,
			Metadata: a.Metadata,
		})
	}
	v.Analysis = &analysisView{
		Summary:       analysis.Summary,
		Sentiment:     analysis.Sentiment.String(),
		InterestLevel: analysis.InterestLevel.String(),
		Topics:        analysis.Topics,
		NextSteps:     analysis.NextSteps,
		Actions:       actions,
		Epoch:         analysis.Epoch,
		CreatedAt:     analysis.CreatedAt,
	}
	return v
}

func toMemoryView(e *model.MemoryEntry) memoryView {
	return memoryView{
		ID:             string(e.ID),
		Type:           e.Type.String(),
		Content:        e.Content,
		ConversationID: e.ConversationID.String(),
		CreatedAt:      e.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = errutil.Handle(r.Context(), goerr.Wrap(err, "failed to write response"), "failed to write response")
	}
}
