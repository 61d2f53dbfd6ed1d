package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/phoneauth/permission"
)

type failingStore struct {
	err   error
	delay time.Duration
}

func (f failingStore) IsOwner(ctx context.Context, _, _ string) (bool, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return false, f.err
}

func (f failingStore) GetAssignment(context.Context, string, string) (Assignment, bool, error) {
	return Assignment{}, false, f.err
}

func (f failingStore) CreateAssignment(context.Context, Assignment) error { return f.err }

func (f failingStore) DeleteAssignment(context.Context, string, string) error { return f.err }

func TestResolveOwnerGetsFullSet(t *testing.T) {
	store := NewMemoryStore()
	store.SetOwner("evt-1", "alice")
	r := NewResolver(store, time.Second)

	res, err := r.Resolve(context.Background(), "alice", "evt-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Role != "owner" {
		t.Fatalf("expected owner, got %q", res.Role)
	}
	if res.Permissions != permission.FullSet() {
		t.Fatalf("expected full set, got %v", res.Permissions.Names())
	}
}

func TestResolveOwnerWinsOverAssignment(t *testing.T) {
	store := NewMemoryStore()
	store.SetOwner("evt-1", "alice")
	r := NewResolver(store, time.Second)
	if err := r.Assign(context.Background(), Assignment{ResourceID: "evt-1", UserID: "alice", Role: permission.RoleViewer}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	res, err := r.Resolve(context.Background(), "alice", "evt-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Has(permission.ManageOrganizers) {
		t.Fatal("owner must keep manage_organizers")
	}
}

func TestResolveAssignmentUnionsCustom(t *testing.T) {
	store := NewMemoryStore()
	r := NewResolver(store, time.Second)
	err := r.Assign(context.Background(), Assignment{
		ResourceID: "evt-1",
		UserID:     "bob",
		Role:       permission.RoleViewer,
		Custom:     permission.NewSet(permission.ExportData),
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	res, err := r.Resolve(context.Background(), "bob", "evt-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Role != "viewer" {
		t.Fatalf("expected viewer, got %q", res.Role)
	}
	for _, p := range []permission.Permission{permission.ViewAnalytics, permission.ViewAttendees, permission.ExportData} {
		if !res.Permissions.Has(p) {
			t.Fatalf("expected %s", p)
		}
	}
	if res.Permissions.Has(permission.EditEvent) {
		t.Fatal("viewer with custom export must not edit")
	}
}

func TestResolveUnrelatedUserHasNothing(t *testing.T) {
	r := NewResolver(NewMemoryStore(), time.Second)

	res, err := r.Resolve(context.Background(), "mallory", "evt-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Role != "" || !res.Permissions.IsEmpty() {
		t.Fatalf("expected empty resolution, got %+v", res)
	}
}

func TestAssignTwiceConflicts(t *testing.T) {
	r := NewResolver(NewMemoryStore(), time.Second)
	a := Assignment{ResourceID: "evt-1", UserID: "bob", Role: permission.RoleEditor}

	if err := r.Assign(context.Background(), a); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	a.Role = permission.RoleFinancial
	if err := r.Assign(context.Background(), a); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	res, _ := r.Resolve(context.Background(), "bob", "evt-1")
	if res.Role != "editor" {
		t.Fatalf("second assign must not overwrite, got %q", res.Role)
	}
}

func TestAssignRejectsUnknownRole(t *testing.T) {
	r := NewResolver(NewMemoryStore(), time.Second)
	err := r.Assign(context.Background(), Assignment{ResourceID: "evt-1", UserID: "bob", Role: "admin"})
	if !errors.Is(err, ErrInvalidAssignment) {
		t.Fatalf("expected ErrInvalidAssignment, got %v", err)
	}
}

func TestUnassign(t *testing.T) {
	r := NewResolver(NewMemoryStore(), time.Second)
	ctx := context.Background()
	if err := r.Assign(ctx, Assignment{ResourceID: "evt-1", UserID: "bob", Role: permission.RoleEditor}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := r.Unassign(ctx, "evt-1", "bob"); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if err := r.Unassign(ctx, "evt-1", "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	res, _ := r.Resolve(ctx, "bob", "evt-1")
	if !res.Permissions.IsEmpty() {
		t.Fatal("expected no permissions after unassign")
	}
}

func TestResolveStoreFailureFailsClosed(t *testing.T) {
	r := NewResolver(failingStore{err: errors.New("connection refused")}, time.Second)

	_, err := r.Resolve(context.Background(), "bob", "evt-1")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestResolveTimeoutFailsClosed(t *testing.T) {
	r := NewResolver(failingStore{delay: time.Second}, 20*time.Millisecond)

	_, err := r.Resolve(context.Background(), "bob", "evt-1")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
