// Package audit models the trail of mutating lifecycle transitions.
// Entries are written through an outbox in the same transaction as the
// transition and published to a stream by the worker.
package audit

import (
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionCreated           Action = "integration.created"
	ActionAuthorized        Action = "integration.authorized"
	ActionActivated         Action = "integration.activated"
	ActionPaused            Action = "integration.paused"
	ActionEdited            Action = "integration.edited"
	ActionDeletionRequested Action = "integration.deletion_requested"
	ActionDeletionAborted   Action = "integration.deletion_aborted"
	ActionDeleted           Action = "integration.deleted"
	ActionSecretGenerated   Action = "integration.secret_generated"
	ActionTokenRefreshed    Action = "integration.token_refreshed"
)

// Actor identifies who performed a transition. System jobs use SystemActor.
type Actor struct {
	ID   string
	Name string
}

var SystemActor = Actor{ID: "system", Name: "reconciler"}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

type Entry struct {
	ID              uuid.UUID
	IntegrationID   uuid.UUID
	IntegrationName string
	ActorID         string
	ActorName       string
	Action          Action
	Message         string
	Status          Status
	Attempts        int
	MaxAttempts     int
	CreatedAt       time.Time
	PublishedAt     *time.Time
}

func NewEntry(integrationID uuid.UUID, integrationName string, actor Actor, action Action, message string) *Entry {
	return &Entry{
		ID:              uuid.New(),
		IntegrationID:   integrationID,
		IntegrationName: integrationName,
		ActorID:         actor.ID,
		ActorName:       actor.Name,
		Action:          action,
		Message:         message,
		Status:          StatusPending,
		MaxAttempts:     5,
		CreatedAt:       time.Now(),
	}
}

// Fields is the flat representation published to the audit stream.
func (e *Entry) Fields() map[string]any {
	return map[string]any{
		"id":              e.ID.String(),
		"integrationId":   e.IntegrationID.String(),
		"integrationName": e.IntegrationName,
		"actorId":         e.ActorID,
		"actorName":       e.ActorName,
		"action":          string(e.Action),
		"message":         e.Message,
		"createdAt":       e.CreatedAt.UTC().Format(time.RFC3339),
	}
}
