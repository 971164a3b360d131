package access

import (
	"context"
	"errors"
	"testing"

	"github.com/tunnelgate/tunnelgate/internal/domain"
)

// memDirectory is an in-memory Directory with one owner, three
// principals, and mutable grants.
type memDirectory struct {
	endpoints  map[string]domain.Endpoint
	principals map[string]domain.Principal
	grants     map[string]domain.ShareGrant // endpointID + "/" + granteeID
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		endpoints: map[string]domain.Endpoint{
			"ep1": {ID: "ep1", PrincipalID: "owner", Name: "box", RelayPort: 20001},
		},
		principals: map[string]domain.Principal{
			"owner": {ID: "owner", Username: "owner"},
			"bob":   {ID: "bob", Username: "bob"},
			"carol": {ID: "carol", Username: "carol"},
		},
		grants: map[string]domain.ShareGrant{},
	}
}

func (d *memDirectory) GetEndpoint(_ context.Context, id string) (domain.Endpoint, error) {
	ep, ok := d.endpoints[id]
	if !ok {
		return domain.Endpoint{}, domain.ErrEndpointNotFound
	}
	return ep, nil
}

func (d *memDirectory) GetPrincipal(_ context.Context, id string) (domain.Principal, error) {
	p, ok := d.principals[id]
	if !ok {
		return domain.Principal{}, domain.ErrPrincipalNotFound
	}
	return p, nil
}

func (d *memDirectory) GetShare(_ context.Context, endpointID, granteeID string) (domain.ShareGrant, error) {
	g, ok := d.grants[endpointID+"/"+granteeID]
	if !ok {
		return domain.ShareGrant{}, domain.ErrShareNotFound
	}
	return g, nil
}

func (d *memDirectory) CreateShare(_ context.Context, endpointID, grantedBy, granteeID string, level domain.PermissionLevel) (domain.ShareGrant, error) {
	key := endpointID + "/" + granteeID
	if _, ok := d.grants[key]; ok {
		return domain.ShareGrant{}, domain.ErrAlreadyShared
	}
	g := domain.ShareGrant{EndpointID: endpointID, GrantedBy: grantedBy, GranteeID: granteeID, Level: level}
	d.grants[key] = g
	return g, nil
}

func (d *memDirectory) UpdateShareLevel(_ context.Context, endpointID, granteeID string, level domain.PermissionLevel) error {
	key := endpointID + "/" + granteeID
	g, ok := d.grants[key]
	if !ok {
		return domain.ErrShareNotFound
	}
	g.Level = level
	d.grants[key] = g
	return nil
}

func (d *memDirectory) DeleteShare(_ context.Context, endpointID, granteeID string) error {
	key := endpointID + "/" + granteeID
	if _, ok := d.grants[key]; !ok {
		return domain.ErrShareNotFound
	}
	delete(d.grants, key)
	return nil
}

func TestResolveOwnerIsAdmin(t *testing.T) {
	t.Parallel()
	e := New(newMemDirectory())

	level, found, err := e.Resolve(context.Background(), "owner", "ep1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !found || level != domain.PermissionAdmin {
		t.Fatalf("owner resolves to (%q, %v)", level, found)
	}
}

func TestResolveGrantAndAbsence(t *testing.T) {
	t.Parallel()
	dir := newMemDirectory()
	dir.grants["ep1/bob"] = domain.ShareGrant{EndpointID: "ep1", GranteeID: "bob", Level: domain.PermissionEdit}
	e := New(dir)
	ctx := context.Background()

	level, found, err := e.Resolve(ctx, "bob", "ep1")
	if err != nil || !found || level != domain.PermissionEdit {
		t.Fatalf("bob resolves to (%q, %v, %v)", level, found, err)
	}

	_, found, err = e.Resolve(ctx, "carol", "ep1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if found {
		t.Fatalf("carol has no grant yet resolves")
	}

	if _, _, err := e.Resolve(ctx, "bob", "ep_missing"); !errors.Is(err, domain.ErrEndpointNotFound) {
		t.Fatalf("missing endpoint err = %v", err)
	}
}

func TestCanAccessLevels(t *testing.T) {
	t.Parallel()
	dir := newMemDirectory()
	dir.grants["ep1/bob"] = domain.ShareGrant{EndpointID: "ep1", GranteeID: "bob", Level: domain.PermissionView}
	e := New(dir)
	ctx := context.Background()

	cases := []struct {
		principal string
		required  domain.PermissionLevel
		want      bool
	}{
		{"owner", domain.PermissionAdmin, true},
		{"bob", domain.PermissionView, true},
		{"bob", domain.PermissionEdit, false},
		{"bob", domain.PermissionAdmin, false},
		{"carol", domain.PermissionView, false},
	}
	for _, tc := range cases {
		got, err := e.CanAccess(ctx, tc.principal, "ep1", tc.required)
		if err != nil {
			t.Fatalf("CanAccess(%s, %s): %v", tc.principal, tc.required, err)
		}
		if got != tc.want {
			t.Errorf("CanAccess(%s, %s) = %v, want %v", tc.principal, tc.required, got, tc.want)
		}
	}
}

func TestCanShareRequiresAdmin(t *testing.T) {
	t.Parallel()
	dir := newMemDirectory()
	dir.grants["ep1/bob"] = domain.ShareGrant{EndpointID: "ep1", GranteeID: "bob", Level: domain.PermissionEdit}
	dir.grants["ep1/carol"] = domain.ShareGrant{EndpointID: "ep1", GranteeID: "carol", Level: domain.PermissionAdmin}
	e := New(dir)
	ctx := context.Background()

	for principal, want := range map[string]bool{"owner": true, "bob": false, "carol": true} {
		got, err := e.CanShare(ctx, principal, "ep1")
		if err != nil {
			t.Fatalf("CanShare(%s): %v", principal, err)
		}
		if got != want {
			t.Errorf("CanShare(%s) = %v, want %v", principal, got, want)
		}
		del, err := e.CanDelete(ctx, principal, "ep1")
		if err != nil || del != want {
			t.Errorf("CanDelete(%s) = (%v, %v), want %v", principal, del, err, want)
		}
	}
}

func TestShareRules(t *testing.T) {
	t.Parallel()
	dir := newMemDirectory()
	e := New(dir)
	ctx := context.Background()

	if _, err := e.Share(ctx, "owner", "ep1", "bob", "superuser"); !errors.Is(err, domain.ErrInvalidLevel) {
		t.Fatalf("invalid level err = %v", err)
	}
	if _, err := e.Share(ctx, "owner", "ep1", "owner", domain.PermissionView); !errors.Is(err, domain.ErrNotPermitted) {
		t.Fatalf("share with owner err = %v", err)
	}
	if _, err := e.Share(ctx, "bob", "ep1", "carol", domain.PermissionView); !errors.Is(err, domain.ErrNotPermitted) {
		t.Fatalf("non-admin actor err = %v", err)
	}
	if _, err := e.Share(ctx, "owner", "ep1", "ghost", domain.PermissionView); !errors.Is(err, domain.ErrPrincipalNotFound) {
		t.Fatalf("unknown grantee err = %v", err)
	}

	grant, err := e.Share(ctx, "owner", "ep1", "bob", domain.PermissionEdit)
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if grant.Level != domain.PermissionEdit || grant.GrantedBy != "owner" {
		t.Fatalf("grant = %+v", grant)
	}

	if _, err := e.Share(ctx, "owner", "ep1", "bob", domain.PermissionView); !errors.Is(err, domain.ErrAlreadyShared) {
		t.Fatalf("duplicate share err = %v", err)
	}
}

func TestAdminGranteeCannotShareWithSelfOrOwner(t *testing.T) {
	t.Parallel()
	dir := newMemDirectory()
	dir.grants["ep1/carol"] = domain.ShareGrant{EndpointID: "ep1", GranteeID: "carol", Level: domain.PermissionAdmin}
	e := New(dir)
	ctx := context.Background()

	if _, err := e.Share(ctx, "carol", "ep1", "carol", domain.PermissionView); !errors.Is(err, domain.ErrNotPermitted) {
		t.Fatalf("self-share err = %v", err)
	}
	if _, err := e.Share(ctx, "carol", "ep1", "owner", domain.PermissionView); !errors.Is(err, domain.ErrNotPermitted) {
		t.Fatalf("share with owner err = %v", err)
	}
	if _, err := e.Share(ctx, "carol", "ep1", "bob", domain.PermissionView); err != nil {
		t.Fatalf("admin grantee sharing with third party: %v", err)
	}
}

func TestUnshareAndUpdate(t *testing.T) {
	t.Parallel()
	dir := newMemDirectory()
	dir.grants["ep1/bob"] = domain.ShareGrant{EndpointID: "ep1", GranteeID: "bob", Level: domain.PermissionView}
	e := New(dir)
	ctx := context.Background()

	if err := e.UpdateShare(ctx, "bob", "ep1", "bob", domain.PermissionAdmin); !errors.Is(err, domain.ErrNotPermitted) {
		t.Fatalf("grantee escalating own level err = %v", err)
	}
	if err := e.UpdateShare(ctx, "owner", "ep1", "bob", "root"); !errors.Is(err, domain.ErrInvalidLevel) {
		t.Fatalf("invalid level err = %v", err)
	}
	if err := e.UpdateShare(ctx, "owner", "ep1", "bob", domain.PermissionEdit); err != nil {
		t.Fatalf("UpdateShare: %v", err)
	}
	if dir.grants["ep1/bob"].Level != domain.PermissionEdit {
		t.Fatalf("level not updated: %+v", dir.grants["ep1/bob"])
	}

	if err := e.Unshare(ctx, "bob", "ep1", "bob"); !errors.Is(err, domain.ErrNotPermitted) {
		t.Fatalf("grantee removing own grant err = %v", err)
	}
	if err := e.Unshare(ctx, "owner", "ep1", "bob"); err != nil {
		t.Fatalf("Unshare: %v", err)
	}
	if err := e.Unshare(ctx, "owner", "ep1", "bob"); !errors.Is(err, domain.ErrShareNotFound) {
		t.Fatalf("double unshare err = %v", err)
	}
}
