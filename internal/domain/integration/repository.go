package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for integration persistence.
// Every method joins the transaction carried by ctx when there is one.
type Repository interface {
	// Create inserts a new integration
	Create(ctx context.Context, i *Integration) error

	// GetByID retrieves an integration by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Integration, error)

	// Lock retrieves an integration and locks its row (SELECT FOR UPDATE)
	Lock(ctx context.Context, id uuid.UUID) (*Integration, error)

	// FindByState resolves the opaque state value of a partner callback and locks the row
	FindByState(ctx context.Context, state string) (*Integration, error)

	// List returns all integrations ordered for display
	List(ctx context.Context) ([]*Integration, error)

	// ListPendingDeletion returns records parked in pending_deletion since before the cutoff
	ListPendingDeletion(ctx context.Context, requestedBefore time.Time, limit int) ([]*Integration, error)

	ExistsByName(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error)
	ExistsByShortName(ctx context.Context, shortName string, excludeID *uuid.UUID) (bool, error)
	ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error)

	// NextOrder returns the display order for a new record
	NextOrder(ctx context.Context) (int, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Integration, error)
	UpdateFields(ctx context.Context, id uuid.UUID, patch Patch) (*Integration, error)

	// Update writes the full record
	Update(ctx context.Context, i *Integration) error

	Delete(ctx context.Context, id uuid.UUID) error
}
