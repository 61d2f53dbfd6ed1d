package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneauth/permission"
)

var (
	// ErrConflict is returned when the (resource, user) pair already has an assignment.
	ErrConflict = errors.New("assignment already exists")
	// ErrNotFound is returned when removing an assignment that does not exist.
	ErrNotFound = errors.New("assignment not found")
	// ErrStoreUnavailable wraps store failures and timeouts.
	ErrStoreUnavailable = errors.New("rbac store unavailable")
	// ErrInvalidAssignment is returned for missing identifiers or an unknown role.
	ErrInvalidAssignment = errors.New("invalid assignment")
)

// Assignment grants a role, plus optional extra permissions, on one resource.
type Assignment struct {
	ResourceID string
	UserID     string
	Role       permission.Role
	Custom     permission.Set
	CreatedAt  time.Time
}

// Effective returns the role set united with the custom permissions.
func (a Assignment) Effective() permission.Set {
	return a.Role.Permissions().Union(a.Custom)
}

// Validate checks the identifiers and role.
func (a Assignment) Validate() error {
	if a.ResourceID == "" || a.UserID == "" {
		return fmt.Errorf("%w: resource and user are required", ErrInvalidAssignment)
	}
	if !a.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidAssignment, a.Role)
	}
	return nil
}

// Store reads ownership and assignments.
type Store interface {
	// IsOwner reports whether userID owns resourceID.
	IsOwner(ctx context.Context, userID, resourceID string) (bool, error)
	// GetAssignment returns the assignment for the pair; ok is false when none exists.
	GetAssignment(ctx context.Context, resourceID, userID string) (a Assignment, ok bool, err error)
	// CreateAssignment inserts a; it returns ErrConflict when the pair exists.
	CreateAssignment(ctx context.Context, a Assignment) error
	// DeleteAssignment removes the pair; it returns ErrNotFound when absent.
	DeleteAssignment(ctx context.Context, resourceID, userID string) error
}

// Resolution is a caller's effective access on one resource. Role is empty
// when the caller has no relation to the resource.
type Resolution struct {
	Role        string
	Permissions permission.Set
}

// Has reports whether any of required is held.
func (r Resolution) Has(required ...permission.Permission) bool {
	return r.Permissions.HasAny(required...)
}

// Resolver computes [Resolution] values from a [Store].
type Resolver struct {
	store   Store
	timeout time.Duration
}

// NewResolver returns a resolver that bounds every store call by timeout.
func NewResolver(store Store, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Resolver{store: store, timeout: timeout}
}

// Resolve returns the caller's role and permissions on resourceID.
// Store failures are returned wrapped in ErrStoreUnavailable; callers deny.
func (r *Resolver) Resolve(ctx context.Context, userID, resourceID string) (Resolution, error) {
	if r == nil || r.store == nil {
		return Resolution{}, ErrStoreUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	owner, err := r.store.IsOwner(ctx, userID, resourceID)
	if err != nil {
		return Resolution{}, unavailable(err)
	}
	if owner {
		return Resolution{
			Role:        string(permission.RoleOwner),
			Permissions: permission.RoleOwner.Permissions(),
		}, nil
	}

	a, ok, err := r.store.GetAssignment(ctx, resourceID, userID)
	if err != nil {
		return Resolution{}, unavailable(err)
	}
	if !ok {
		return Resolution{}, nil
	}

	return Resolution{
		Role:        string(a.Role),
		Permissions: a.Effective(),
	}, nil
}

// Assign stores a new assignment.
func (r *Resolver) Assign(ctx context.Context, a Assignment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if r == nil || r.store == nil {
		return ErrStoreUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.store.CreateAssignment(ctx, a); err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrConflict
		}
		return unavailable(err)
	}
	return nil
}

// Unassign removes an assignment.
func (r *Resolver) Unassign(ctx context.Context, resourceID, userID string) error {
	if resourceID == "" || userID == "" {
		return fmt.Errorf("%w: resource and user are required", ErrInvalidAssignment)
	}
	if r == nil || r.store == nil {
		return ErrStoreUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.store.DeleteAssignment(ctx, resourceID, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
