package slack

import (
	"context"
	"time"
)

// Service posts engine notifications to Slack
type Service interface {
	// Notify posts n to the configured channel and returns the message timestamp
	Notify(ctx context.Context, n Notification) (string, error)
}

// Notification describes a follow-up the team has to act on
type Notification struct {
	Title          string
	CustomerName   string
	CustomerID     string
	ConversationID string
	ActionType     string
	Reason         string
	Summary        string
	Details        map[string]string
	CreatedAt      time.Time
}
