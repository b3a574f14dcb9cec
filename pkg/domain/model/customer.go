package model

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// CustomerID is the identifier assigned by the upstream CRM or telephony provider
type CustomerID string

func (id CustomerID) String() string {
	return string(id)
}

// Customer is a prospect or client. Customers are never deleted, only deactivated.
type Customer struct {
	ID           CustomerID
	Name         string
	CompanyName  string
	Email        string
	Phone        string
	Active       bool
	DoNotContact bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks required fields
func (c *Customer) Validate() error {
	if strings.TrimSpace(string(c.ID)) == "" {
		return goerr.Wrap(ErrValidation, "customer id is required")
	}
	return nil
}

// Profile renders a short description used as a header in context blocks
func (c *Customer) Profile() string {
	if c == nil {
		return ""
	}
	var parts []string
	if c.Name != "" {
		parts = append(parts, c.Name)
	}
	if c.CompanyName != "" {
		parts = append(parts, "at "+c.CompanyName)
	}
	if c.DoNotContact {
		parts = append(parts, "(do not contact)")
	}
	return strings.Join(parts, " ")
}
