package action

import (
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/slack"
)

// Route configures how one action type is handled
type Route struct {
	Enabled bool
	// Notify posts the action to Slack when a Slack service is configured
	Notify    bool
	Retryable bool
}

// DefaultRoutes enables every action type with Slack notification
func DefaultRoutes() map[types.ActionType]Route {
	routes := make(map[types.ActionType]Route)
	for _, t := range types.AllActionTypes() {
		routes[t] = Route{Enabled: true, Notify: true, Retryable: true}
	}
	return routes
}

// Deps are the collaborators the built-in handlers need. Slack is optional.
type Deps struct {
	Customers interfaces.CustomerRepository
	Memory    MemoryRecorder
	Slack     slack.Service
}

// NewDefaultRegistry builds the handler for each enabled route. Every handler
// records a memory fact and then notifies; do-not-contact first flags the
// customer.
func NewDefaultRegistry(deps Deps, routes map[types.ActionType]Route) (*Registry, error) {
	reg := NewRegistry()

	for _, t := range types.AllActionTypes() {
		route, ok := routes[t]
		if !ok || !route.Enabled {
			continue
		}

		// The Slack post is the only step that cannot be repeated safely, so
		// it goes last: once it succeeds nothing after it can fail.
		var chain []interfaces.ActionHandler
		if t == types.ActionTypeAddToDoNotContact {
			chain = append(chain, DoNotContact(deps.Customers))
		}
		chain = append(chain, MemoryFact(deps.Memory))
		if route.Notify && deps.Slack != nil {
			chain = append(chain, SlackNotify(deps.Slack))
		} else {
			chain = append(chain, Log())
		}

		var opts []RegisterOption
		if route.Retryable {
			opts = append(opts, Retryable())
		}
		if err := reg.Register(t, Chain(chain...), opts...); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
