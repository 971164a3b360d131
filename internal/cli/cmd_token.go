package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tunnelgate/tunnelgate/internal/auth"
	"github.com/tunnelgate/tunnelgate/internal/domain"
)

func runTokenAdmin(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: tunnelgate token <create|list|revoke> [flags]")
		return 2
	}
	switch args[0] {
	case "create":
		return runTokenCreate(ctx, args[1:])
	case "list":
		return runTokenList(ctx, args[1:])
	case "revoke":
		return runTokenRevoke(ctx, args[1:])
	default:
		fmt.Fprintln(os.Stderr, "unknown token command:", args[0])
		return 2
	}
}

func runTokenCreate(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("token-create", flag.ContinueOnError)
	var dbPath, username, pepper string
	var ttl time.Duration
	fs.StringVar(&dbPath, "db", defaultDBPath(), "sqlite db path")
	fs.StringVar(&username, "username", "", "principal username")
	fs.StringVar(&pepper, "token-pepper", envOr("TUNNELGATE_TOKEN_PEPPER", ""), "hash pepper override")
	fs.DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if username == "" {
		fmt.Fprintln(os.Stderr, "missing --username")
		return 2
	}

	store, code := openStore(dbPath)
	if code != 0 {
		return code
	}
	defer func() { _ = store.Close() }()

	principal, err := store.GetPrincipalByUsername(ctx, username)
	if errors.Is(err, domain.ErrPrincipalNotFound) {
		// First token for a username registers the principal.
		principal, err = store.CreatePrincipal(ctx, username)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "token create error:", err)
		return 1
	}

	plain, err := auth.GenerateToken()
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate token:", err)
		return 1
	}
	rec, err := store.CreateSessionToken(ctx, principal.ID, auth.HashToken(plain, pepper), ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create token:", err)
		return 1
	}
	fmt.Println("principal:", principal.ID)
	fmt.Println("username:", principal.Username)
	fmt.Println("token:", plain)
	fmt.Println("expires:", rec.ExpiresAt.Format(time.RFC3339))
	return 0
}

func runTokenList(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("token-list", flag.ContinueOnError)
	var dbPath, username string
	fs.StringVar(&dbPath, "db", defaultDBPath(), "sqlite db path")
	fs.StringVar(&username, "username", "", "principal username")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if username == "" {
		fmt.Fprintln(os.Stderr, "missing --username")
		return 2
	}

	store, code := openStore(dbPath)
	if code != 0 {
		return code
	}
	defer func() { _ = store.Close() }()

	principal, err := store.GetPrincipalByUsername(ctx, username)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token list error:", err)
		return 1
	}
	tokens, err := store.ListSessionTokens(ctx, principal.ID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token list error:", err)
		return 1
	}
	for _, t := range tokens {
		revoked := "false"
		if t.RevokedAt != nil {
			revoked = "true"
		}
		fmt.Printf("%s\trevoked=%s\texpires=%s\n",
			t.TokenHash[:12], revoked, t.ExpiresAt.Format(time.RFC3339))
	}
	return 0
}

func runTokenRevoke(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("token-revoke", flag.ContinueOnError)
	var dbPath, token, pepper string
	fs.StringVar(&dbPath, "db", defaultDBPath(), "sqlite db path")
	fs.StringVar(&token, "token", "", "plain token value")
	fs.StringVar(&pepper, "token-pepper", envOr("TUNNELGATE_TOKEN_PEPPER", ""), "hash pepper override")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "missing --token")
		return 2
	}

	store, code := openStore(dbPath)
	if code != 0 {
		return code
	}
	defer func() { _ = store.Close() }()

	if err := store.RevokeSessionToken(ctx, auth.HashToken(token, pepper)); err != nil {
		fmt.Fprintln(os.Stderr, "revoke token:", err)
		return 1
	}
	fmt.Println("revoked")
	return 0
}
