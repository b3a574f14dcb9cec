package model

import (
	"sort"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

// Action is one follow-up requested by an analysis. Lower Priority runs first.
type Action struct {
	Type     types.ActionType
	Reason   string
	Priority int
	Metadata map[string]string
}

// NormalizeActions returns the actions in dispatch order: stable by
// ascending priority, with later duplicates of a type dropped.
func NormalizeActions(actions []Action) []Action {
	sorted := make([]Action, len(actions))
	copy(sorted, actions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	seen := make(map[types.ActionType]struct{}, len(sorted))
	result := make([]Action, 0, len(sorted))
	for _, a := range sorted {
		if _, ok := seen[a.Type]; ok {
			continue
		}
		seen[a.Type] = struct{}{}
		result = append(result, a)
	}
	return result
}
