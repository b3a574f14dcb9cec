// Package rerank reorders retrieval candidates with an LLM. The reranker can
// only reorder and drop candidates; it never produces new ones.
package rerank

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

//go:embed prompt/system.md
var systemPrompt string

// Reranker is safe for concurrent use
type Reranker struct {
	llmClient gollem.LLMClient
}

func New(llmClient gollem.LLMClient) (*Reranker, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}
	return &Reranker{llmClient: llmClient}, nil
}

type llmResponse struct {
	Ranking []int `json:"ranking"`
}

// Rerank returns a subset of candidates in the order chosen by the LLM.
// Indices out of range or repeated are ignored. An empty ranking is treated
// as a failure so that callers fall back to similarity order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []*model.SearchResult) ([]*model.SearchResult, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	session, err := r.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(responseSchema()),
		gollem.WithSessionSystemPrompt(systemPrompt),
	)
	if err != nil {
		return nil, goerr.Wrap(model.ErrServiceUnavailable, "failed to create LLM session", goerr.V("cause", err.Error()))
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(buildUserPrompt(query, candidates)))
	if err != nil {
		return nil, goerr.Wrap(model.ErrServiceUnavailable, "failed to generate ranking", goerr.V("cause", err.Error()))
	}
	if resp == nil || len(resp.Texts) == 0 {
		return nil, goerr.Wrap(model.ErrValidation, "LLM returned no ranking")
	}

	var parsed llmResponse
	if err := json.Unmarshal([]byte(strings.Join(resp.Texts, "")), &parsed); err != nil {
		return nil, goerr.Wrap(model.ErrValidation, "failed to parse ranking", goerr.V("cause", err.Error()))
	}

	seen := make(map[int]struct{}, len(parsed.Ranking))
	result := make([]*model.SearchResult, 0, len(parsed.Ranking))
	for _, idx := range parsed.Ranking {
		if idx < 0 || idx >= len(candidates) {
			logging.From(ctx).Warn("ignoring out of range rerank index", "index", idx, "candidates", len(candidates))
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		result = append(result, candidates[idx])
	}

	if len(result) == 0 {
		return nil, goerr.Wrap(model.ErrValidation, "ranking kept no candidates",
			goerr.V("ranking", parsed.Ranking))
	}
	return result, nil
}

func buildUserPrompt(query string, candidates []*model.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("## Query\n\n")
	sb.WriteString(query)
	sb.WriteString("\n\n## Snippets\n\n")
	for i, c := range candidates {
		fmt.Fprintf(&sb, "[%d] (%s, %s) %s\n",
			i,
			c.Record.SourceType,
			c.Record.CreatedAt.Format("2006-01-02"),
			c.Record.Content,
		)
	}
	return sb.String()
}

func responseSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "SnippetRanking",
		Description: "Indices of useful snippets, most useful first",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"ranking": {
				Type:        gollem.TypeArray,
				Description: "Snippet indices from the input, most useful first",
				Items:       &gollem.Parameter{Type: gollem.TypeInteger},
				Required:    true,
			},
		},
	}
}
