package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
)

type customerDoc struct {
	ID           string    `firestore:"ID"`
	Name         string    `firestore:"Name"`
	CompanyName  string    `firestore:"CompanyName"`
	Email        string    `firestore:"Email"`
	Phone        string    `firestore:"Phone"`
	Active       bool      `firestore:"Active"`
	DoNotContact bool      `firestore:"DoNotContact"`
	CreatedAt    time.Time `firestore:"CreatedAt"`
	UpdatedAt    time.Time `firestore:"UpdatedAt"`
}

func toCustomerDoc(c *model.Customer) *customerDoc {
	return &customerDoc{
		ID:           string(c.ID),
		Name:         c.Name,
		CompanyName:  c.CompanyName,
		Email:        c.Email,
		Phone:        c.Phone,
		Active:       c.Active,
		DoNotContact: c.DoNotContact,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func fromCustomerDoc(d *customerDoc) *model.Customer {
	return &model.Customer{
		ID:           model.CustomerID(d.ID),
		Name:         d.Name,
		CompanyName:  d.CompanyName,
		Email:        d.Email,
		Phone:        d.Phone,
		Active:       d.Active,
		DoNotContact: d.DoNotContact,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type customerRepository struct {
	client     *firestore.Client
	collection string
}

func (r *customerRepository) doc(id model.CustomerID) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(string(id))
}

func (r *customerRepository) Upsert(ctx context.Context, customer *model.Customer) (*model.Customer, error) {
	if err := customer.Validate(); err != nil {
		return nil, err
	}

	ref := r.doc(customer.ID)
	var result *model.Customer
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return goerr.Wrap(err, "failed to get customer")
			}
			created := *customer
			created.Active = true
			created.CreatedAt = now
			created.UpdatedAt = now
			result = &created
			return tx.Set(ref, toCustomerDoc(&created))
		}

		var d customerDoc
		if err := snap.DataTo(&d); err != nil {
			return goerr.Wrap(err, "failed to decode customer")
		}
		updated := fromCustomerDoc(&d)
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
		result = updated
		return tx.Set(ref, toCustomerDoc(updated))
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upsert customer", goerr.V("customer_id", customer.ID))
	}
	return result, nil
}

func (r *customerRepository) Get(ctx context.Context, id model.CustomerID) (*model.Customer, error) {
	snap, err := r.doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "customer not found", goerr.V("customer_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get customer", goerr.V("customer_id", id))
	}

	var d customerDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to decode customer", goerr.V("customer_id", id))
	}
	return fromCustomerDoc(&d), nil
}

func (r *customerRepository) SetDoNotContact(ctx context.Context, id model.CustomerID, dnc bool) error {
	return r.update(ctx, id, []firestore.Update{
		{Path: "DoNotContact", Value: dnc},
		{Path: "UpdatedAt", Value: time.Now().UTC()},
	})
}

func (r *customerRepository) Deactivate(ctx context.Context, id model.CustomerID) error {
	return r.update(ctx, id, []firestore.Update{
		{Path: "Active", Value: false},
		{Path: "UpdatedAt", Value: time.Now().UTC()},
	})
}

func (r *customerRepository) update(ctx context.Context, id model.CustomerID, updates []firestore.Update) error {
	if _, err := r.doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrNotFound, "customer not found", goerr.V("customer_id", id))
		}
		return goerr.Wrap(err, "failed to update customer", goerr.V("customer_id", id))
	}
	return nil
}
