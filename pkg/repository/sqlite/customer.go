package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
)

type customerRepository struct {
	db *sql.DB
}

const customerColumns = "id, name, company_name, email, phone, active, do_not_contact, created_at, updated_at"

func scanCustomer(row interface{ Scan(...any) error }) (*model.Customer, error) {
	var (
		c                    model.Customer
		active, dnc          int
		createdAt, updatedAt int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.CompanyName, &c.Email, &c.Phone, &active, &dnc, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Active = active == 1
	c.DoNotContact = dnc == 1
	c.CreatedAt = fromUnix(createdAt)
	c.UpdatedAt = fromUnix(updatedAt)
	return &c, nil
}

func (r *customerRepository) Upsert(ctx context.Context, customer *model.Customer) (*model.Customer, error) {
	if err := customer.Validate(); err != nil {
		return nil, err
	}

	now := toUnix(time.Now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES (?, ?, ?, ?, ?, 1, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name         = CASE WHEN excluded.name != '' THEN excluded.name ELSE customers.name END,
			company_name = CASE WHEN excluded.company_name != '' THEN excluded.company_name ELSE customers.company_name END,
			email        = CASE WHEN excluded.email != '' THEN excluded.email ELSE customers.email END,
			phone        = CASE WHEN excluded.phone != '' THEN excluded.phone ELSE customers.phone END,
			updated_at   = excluded.updated_at`,
		customer.ID, customer.Name, customer.CompanyName, customer.Email, customer.Phone, now, now)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upsert customer", goerr.V("customer_id", customer.ID))
	}

	return r.Get(ctx, customer.ID)
}

func (r *customerRepository) Get(ctx context.Context, id model.CustomerID) (*model.Customer, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+customerColumns+" FROM customers WHERE id = ?", id)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "customer not found", goerr.V("customer_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get customer", goerr.V("customer_id", id))
	}
	return c, nil
}

func (r *customerRepository) SetDoNotContact(ctx context.Context, id model.CustomerID, dnc bool) error {
	return r.update(ctx, id, "UPDATE customers SET do_not_contact = ?, updated_at = ? WHERE id = ?", boolToInt(dnc))
}

func (r *customerRepository) Deactivate(ctx context.Context, id model.CustomerID) error {
	return r.update(ctx, id, "UPDATE customers SET active = ?, updated_at = ? WHERE id = ?", 0)
}

func (r *customerRepository) update(ctx context.Context, id model.CustomerID, query string, value int) error {
	res, err := r.db.ExecContext(ctx, query, value, toUnix(time.Now()), id)
	if err != nil {
		return goerr.Wrap(err, "failed to update customer", goerr.V("customer_id", id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return goerr.Wrap(model.ErrNotFound, "customer not found", goerr.V("customer_id", id))
	}
	return nil
}
