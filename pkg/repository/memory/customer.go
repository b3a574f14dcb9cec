package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
)

type customerRepository struct {
	mu        sync.RWMutex
	customers map[model.CustomerID]*model.Customer
}

func newCustomerRepository() *customerRepository {
	return &customerRepository{
		customers: make(map[model.CustomerID]*model.Customer),
	}
}

func copyCustomer(c *model.Customer) *model.Customer {
	copied := *c
	return &copied
}

func (r *customerRepository) Upsert(ctx context.Context, customer *model.Customer) (*model.Customer, error) {
	if err := customer.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := r.customers[customer.ID]
	if !ok {
		created := copyCustomer(customer)
		created.Active = true
		created.CreatedAt = now
		created.UpdatedAt = now
		r.customers[created.ID] = created
		return copyCustomer(created), nil
	}

	updated := copyCustomer(existing)
	if customer.Name != "" {
		updated.Name = customer.Name
	}
	if customer.CompanyName != "" {
		updated.CompanyName = customer.CompanyName
	}
	if customer.Email != "" {
		updated.Email = customer.Email
	}
	if customer.Phone != "" {
		updated.Phone = customer.Phone
	}
	updated.UpdatedAt = now
	r.customers[updated.ID] = updated
	return copyCustomer(updated), nil
}

func (r *customerRepository) Get(ctx context.Context, id model.CustomerID) (*model.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.customers[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "customer not found", goerr.V("customer_id", id))
	}
	return copyCustomer(c), nil
}

func (r *customerRepository) SetDoNotContact(ctx context.Context, id model.CustomerID, dnc bool) error {
	return r.update(id, func(c *model.Customer) {
		c.DoNotContact = dnc
	})
}

func (r *customerRepository) Deactivate(ctx context.Context, id model.CustomerID) error {
	return r.update(id, func(c *model.Customer) {
		c.Active = false
	})
}

func (r *customerRepository) update(id model.CustomerID, fn func(c *model.Customer)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.customers[id]
	if !ok {
		return goerr.Wrap(model.ErrNotFound, "customer not found", goerr.V("customer_id", id))
	}
	fn(c)
	c.UpdatedAt = time.Now().UTC()
	return nil
}
