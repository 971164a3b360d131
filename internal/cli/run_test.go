package cli

import (
	"path/filepath"
	"testing"
)

func TestRunDispatch(t *testing.T) {
	if code := Run(nil); code != 2 {
		t.Fatalf("no args exit = %d", code)
	}
	if code := Run([]string{"help"}); code != 0 {
		t.Fatalf("help exit = %d", code)
	}
	if code := Run([]string{"frobnicate"}); code != 2 {
		t.Fatalf("unknown command exit = %d", code)
	}
	if code := Run([]string{"token"}); code != 2 {
		t.Fatalf("bare token exit = %d", code)
	}
	if code := Run([]string{"endpoint", "nope"}); code != 2 {
		t.Fatalf("unknown endpoint subcommand exit = %d", code)
	}
}

func TestTokenAndEndpointAdminFlow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "admin.db")

	if code := Run([]string{"token", "create", "--db", db, "--username", "alice"}); code != 0 {
		t.Fatalf("token create exit = %d", code)
	}
	// Same username reuses the principal instead of failing.
	if code := Run([]string{"token", "create", "--db", db, "--username", "alice"}); code != 0 {
		t.Fatalf("second token create exit = %d", code)
	}
	if code := Run([]string{"token", "list", "--db", db, "--username", "alice"}); code != 0 {
		t.Fatalf("token list exit = %d", code)
	}
	if code := Run([]string{"token", "list", "--db", db, "--username", "ghost"}); code != 1 {
		t.Fatalf("unknown principal list exit = %d", code)
	}

	if code := Run([]string{"endpoint", "create", "--db", db, "--owner", "alice", "--name", "box"}); code != 0 {
		t.Fatalf("endpoint create exit = %d", code)
	}
	if code := Run([]string{"endpoint", "create", "--db", db, "--owner", "alice", "--name", "box"}); code != 1 {
		t.Fatalf("duplicate endpoint create exit = %d", code)
	}
	if code := Run([]string{"endpoint", "list", "--db", db}); code != 0 {
		t.Fatalf("endpoint list exit = %d", code)
	}
	if code := Run([]string{"endpoint", "create", "--db", db, "--owner", "ghost", "--name", "other"}); code != 1 {
		t.Fatalf("unknown owner exit = %d", code)
	}
}

func TestShareAdminFlow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "share.db")

	mustRun := func(args ...string) {
		t.Helper()
		if code := Run(args); code != 0 {
			t.Fatalf("Run(%v) exit = %d", args, code)
		}
	}
	mustRun("token", "create", "--db", db, "--username", "alice")
	mustRun("token", "create", "--db", db, "--username", "bob")
	mustRun("endpoint", "create", "--db", db, "--owner", "alice", "--name", "box")

	// Need the endpoint id; list is cheap but parsing stdout is not,
	// so grant through the engine path with a looked-up id instead.
	store, code := openStore(db)
	if code != 0 {
		t.Fatalf("openStore exit = %d", code)
	}
	defer func() { _ = store.Close() }()
	endpoints, err := store.ListEndpoints(t.Context())
	if err != nil || len(endpoints) != 1 {
		t.Fatalf("ListEndpoints = %v, %v", endpoints, err)
	}
	epID := endpoints[0].ID

	mustRun("share", "grant", "--db", db, "--actor", "alice", "--endpoint", epID, "--grantee", "bob", "--level", "view")
	mustRun("share", "update", "--db", db, "--actor", "alice", "--endpoint", epID, "--grantee", "bob", "--level", "edit")
	mustRun("share", "list", "--db", db, "--endpoint", epID)

	// Non-admin actors are refused.
	if code := Run([]string{"share", "grant", "--db", db, "--actor", "bob", "--endpoint", epID, "--grantee", "alice", "--level", "view"}); code != 1 {
		t.Fatalf("non-admin grant exit = %d", code)
	}

	mustRun("share", "revoke", "--db", db, "--actor", "alice", "--endpoint", epID, "--grantee", "bob")
	if code := Run([]string{"share", "revoke", "--db", db, "--actor", "alice", "--endpoint", epID, "--grantee", "bob"}); code != 1 {
		t.Fatalf("double revoke exit = %d", code)
	}
}
