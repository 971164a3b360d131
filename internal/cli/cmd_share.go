package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/tunnelgate/tunnelgate/internal/access"
	"github.com/tunnelgate/tunnelgate/internal/domain"
	"github.com/tunnelgate/tunnelgate/internal/store/sqlite"
)

func runShareAdmin(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: tunnelgate share <grant|update|revoke|list> [flags]")
		return 2
	}
	switch args[0] {
	case "grant":
		return runShareGrant(ctx, args[1:])
	case "update":
		return runShareUpdate(ctx, args[1:])
	case "revoke":
		return runShareRevoke(ctx, args[1:])
	case "list":
		return runShareList(ctx, args[1:])
	default:
		fmt.Fprintln(os.Stderr, "unknown share command:", args[0])
		return 2
	}
}

// shareArgs are the flags common to every share mutation: the acting
// principal, the endpoint, and the grantee. All checks go through the
// access engine, so the CLI obeys the same rules as the HTTP API.
type shareArgs struct {
	dbPath     string
	actor      string
	endpointID string
	grantee    string
	level      string
}

func parseShareArgs(name string, args []string, withLevel bool) (shareArgs, int) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var sa shareArgs
	fs.StringVar(&sa.dbPath, "db", defaultDBPath(), "sqlite db path")
	fs.StringVar(&sa.actor, "actor", "", "acting principal username")
	fs.StringVar(&sa.endpointID, "endpoint", "", "endpoint id")
	fs.StringVar(&sa.grantee, "grantee", "", "grantee principal username")
	if withLevel {
		fs.StringVar(&sa.level, "level", "", "permission level (view|edit|admin)")
	}
	if err := fs.Parse(args); err != nil {
		return sa, 2
	}
	if sa.actor == "" || sa.endpointID == "" || sa.grantee == "" {
		fmt.Fprintln(os.Stderr, "missing --actor, --endpoint, or --grantee")
		return sa, 2
	}
	if withLevel && sa.level == "" {
		fmt.Fprintln(os.Stderr, "missing --level")
		return sa, 2
	}
	return sa, 0
}

func resolveSharePrincipals(ctx context.Context, store *sqlite.Store, sa shareArgs) (actorID, granteeID string, err error) {
	actor, err := store.GetPrincipalByUsername(ctx, sa.actor)
	if err != nil {
		return "", "", fmt.Errorf("actor %q: %w", sa.actor, err)
	}
	grantee, err := store.GetPrincipalByUsername(ctx, sa.grantee)
	if err != nil {
		return "", "", fmt.Errorf("grantee %q: %w", sa.grantee, err)
	}
	return actor.ID, grantee.ID, nil
}

func runShareGrant(ctx context.Context, args []string) int {
	sa, code := parseShareArgs("share-grant", args, true)
	if code != 0 {
		return code
	}
	store, code := openStore(sa.dbPath)
	if code != 0 {
		return code
	}
	defer func() { _ = store.Close() }()

	actorID, granteeID, err := resolveSharePrincipals(ctx, store, sa)
	if err != nil {
		fmt.Fprintln(os.Stderr, "share grant error:", err)
		return 1
	}
	grant, err := access.New(store).Share(ctx, actorID, sa.endpointID, granteeID, domain.PermissionLevel(sa.level))
	if err != nil {
		fmt.Fprintln(os.Stderr, "share grant error:", err)
		return 1
	}
	fmt.Printf("granted %s on %s to %s\n", grant.Level, grant.EndpointID, sa.grantee)
	return 0
}

func runShareUpdate(ctx context.Context, args []string) int {
	sa, code := parseShareArgs("share-update", args, true)
	if code != 0 {
		return code
	}
	store, code := openStore(sa.dbPath)
	if code != 0 {
		return code
	}
	defer func() { _ = store.Close() }()

	actorID, granteeID, err := resolveSharePrincipals(ctx, store, sa)
	if err != nil {
		fmt.Fprintln(os.Stderr, "share update error:", err)
		return 1
	}
	if err := access.New(store).UpdateShare(ctx, actorID, sa.endpointID, granteeID, domain.PermissionLevel(sa.level)); err != nil {
		fmt.Fprintln(os.Stderr, "share update error:", err)
		return 1
	}
	fmt.Printf("updated %s on %s to %s\n", sa.grantee, sa.endpointID, sa.level)
	return 0
}

func runShareRevoke(ctx context.Context, args []string) int {
	sa, code := parseShareArgs("share-revoke", args, false)
	if code != 0 {
		return code
	}
	store, code := openStore(sa.dbPath)
	if code != 0 {
		return code
	}
	defer func() { _ = store.Close() }()

	actorID, granteeID, err := resolveSharePrincipals(ctx, store, sa)
	if err != nil {
		fmt.Fprintln(os.Stderr, "share revoke error:", err)
		return 1
	}
	if err := access.New(store).Unshare(ctx, actorID, sa.endpointID, granteeID); err != nil {
		fmt.Fprintln(os.Stderr, "share revoke error:", err)
		return 1
	}
	fmt.Printf("revoked %s on %s\n", sa.grantee, sa.endpointID)
	return 0
}

func runShareList(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("share-list", flag.ContinueOnError)
	var dbPath, endpointID string
	fs.StringVar(&dbPath, "db", defaultDBPath(), "sqlite db path")
	fs.StringVar(&endpointID, "endpoint", "", "endpoint id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if endpointID == "" {
		fmt.Fprintln(os.Stderr, "missing --endpoint")
		return 2
	}

	store, code := openStore(dbPath)
	if code != 0 {
		return code
	}
	defer func() { _ = store.Close() }()

	grants, err := store.ListShares(ctx, endpointID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "share list error:", err)
		return 1
	}
	for _, g := range grants {
		fmt.Printf("%s\t%s\tgranted_by=%s\n", g.GranteeID, g.Level, g.GrantedBy)
	}
	return 0
}
