package interfaces

import (
	"context"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
)

// CustomerRepository defines the interface for Customer data persistence
type CustomerRepository interface {
	// Upsert creates the customer on first contact or updates its contact
	// fields. Active and DoNotContact are preserved for existing customers.
	Upsert(ctx context.Context, customer *model.Customer) (*model.Customer, error)

	Get(ctx context.Context, id model.CustomerID) (*model.Customer, error)

	// SetDoNotContact flags the customer so outbound actions are suppressed
	SetDoNotContact(ctx context.Context, id model.CustomerID, dnc bool) error

	// Deactivate marks the customer inactive. Customers are never deleted.
	Deactivate(ctx context.Context, id model.CustomerID) error
}
