package phoneauth

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/phoneauth/permission"
	"github.com/MrEthical07/phoneauth/pipeline"
	"github.com/MrEthical07/phoneauth/rbac"
)

func newRBACEngine(t *testing.T) (*testEngine, *rbac.MemoryStore) {
	t.Helper()
	store := rbac.NewMemoryStore()
	store.SetOwner("ev1", "owner1")
	e := newTestEngine(t, engineTestConfig(), func(b *Builder) {
		b.WithAssignmentStore(store)
	})
	return e, store
}

func TestAuthorizeOwnerHoldsEverything(t *testing.T) {
	e, _ := newRBACEngine(t)
	ctx := context.Background()

	if err := e.Authorize(ctx, "owner1", "ev1", permission.ManageOrganizers); err != nil {
		t.Fatalf("owner denied: %v", err)
	}
	res, err := e.Resolve(ctx, "owner1", "ev1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Role != "owner" || res.Permissions != permission.FullSet() {
		t.Fatalf("unexpected resolution %+v", res)
	}
}

func TestAuthorizeAssignmentWithCustomPermissions(t *testing.T) {
	e, _ := newRBACEngine(t)
	ctx := context.Background()

	err := e.Assign(ctx, Assignment{
		ResourceID: "ev1",
		UserID:     "u2",
		Role:       permission.RoleViewer,
		Custom:     permission.NewSet(permission.ExportData),
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	if err := e.Authorize(ctx, "u2", "ev1", permission.ExportData); err != nil {
		t.Fatalf("custom permission denied: %v", err)
	}
	if err := e.Authorize(ctx, "u2", "ev1", permission.EditEvent, permission.ViewAttendees); err != nil {
		t.Fatalf("any-of check should pass on view_attendees: %v", err)
	}

	err = e.Authorize(ctx, "u2", "ev1", permission.ManagePayments)
	var fe *ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	if len(fe.Required) != 1 || fe.Required[0] != permission.ManagePayments {
		t.Fatalf("unexpected required %v", fe.Required)
	}
	if len(fe.Actual) != 3 {
		t.Fatalf("expected viewer set plus export_data, got %v", fe.Actual)
	}
	if ErrorCode(err) != CodeForbidden {
		t.Fatalf("unexpected code %s", ErrorCode(err))
	}
}

func TestAuthorizeUnrelatedUserIsForbidden(t *testing.T) {
	e, _ := newRBACEngine(t)

	err := e.Authorize(context.Background(), "stranger", "ev1", permission.ViewAnalytics)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAuthorizeRequiresCallerAndResource(t *testing.T) {
	e, _ := newRBACEngine(t)
	ctx := context.Background()

	if err := e.Authorize(ctx, "", "ev1", permission.ViewAnalytics); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if err := e.Authorize(ctx, "u1", "", permission.ViewAnalytics); !errors.Is(err, ErrMissingResourceID) {
		t.Fatalf("expected ErrMissingResourceID, got %v", err)
	}
}

func TestAssignTwiceConflicts(t *testing.T) {
	e, _ := newRBACEngine(t)
	ctx := context.Background()
	a := Assignment{ResourceID: "ev1", UserID: "u2", Role: permission.RoleEditor}

	if err := e.Assign(ctx, a); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	a.Role = permission.RoleFinancial
	if err := e.Assign(ctx, a); !errors.Is(err, ErrAssignmentConflict) {
		t.Fatalf("expected ErrAssignmentConflict, got %v", err)
	}

	res, err := e.Resolve(ctx, "u2", "ev1")
	if err != nil || res.Role != "editor" {
		t.Fatalf("first assignment must be kept, got %+v %v", res, err)
	}

	if err := e.Unassign(ctx, "ev1", "u2"); err != nil {
		t.Fatalf("Unassign: %v", err)
	}
	if err := e.Unassign(ctx, "ev1", "u2"); !errors.Is(err, ErrAssignmentNotFound) {
		t.Fatalf("expected ErrAssignmentNotFound, got %v", err)
	}
}

func TestAuthorizeWithoutStoreFailsClosed(t *testing.T) {
	e := newTestEngine(t, engineTestConfig())

	err := e.Authorize(context.Background(), "u1", "ev1", permission.ViewAnalytics)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestCheckPipeline(t *testing.T) {
	e, _ := newRBACEngine(t)
	ctx := context.Background()

	token, _, err := e.IssueAccessToken("owner1", "", "")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	checks := []pipeline.Check[*Request]{
		e.RateLimitCheck(),
		e.AuthenticateCheck(),
		e.PermissionCheck(permission.EditEvent),
	}

	req := &Request{Identifier: "user:owner1", Policy: PolicyAPI, BearerToken: token, ResourceID: "ev1"}
	if d := pipeline.Run(ctx, req, checks...); !d.Allowed {
		t.Fatalf("owner denied: %v", d.Err)
	}
	if req.Auth == nil || req.Auth.UserID != "owner1" {
		t.Fatalf("auth result not recorded: %+v", req.Auth)
	}

	d := pipeline.Run(ctx, &Request{ResourceID: "ev1"}, checks...)
	if d.Allowed || !errors.Is(d.Err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated denial, got %+v", d)
	}

	other, _, _ := e.IssueAccessToken("stranger", "", "")
	d = pipeline.Run(ctx, &Request{BearerToken: other, ResourceID: "ev1"}, checks...)
	if !errors.Is(d.Error(), ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", d.Err)
	}
}
