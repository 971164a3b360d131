// Package cli is the command-line entry point: the gateway server
// process plus local admin commands for principals, tokens, endpoints,
// and shares.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tunnelgate/tunnelgate/internal/store/sqlite"
)

// Run dispatches the command line and returns the process exit code.
func Run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch args[0] {
	case "server":
		return runServer(ctx, args[1:])
	case "token":
		return runTokenAdmin(ctx, args[1:])
	case "endpoint":
		return runEndpointAdmin(ctx, args[1:])
	case "share":
		return runShareAdmin(ctx, args[1:])
	case "-h", "--help", "help":
		printUsage()
		return 0
	default:
		fmt.Fprintln(os.Stderr, "unknown command:", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: tunnelgate <command> [flags]

commands:
  server                        run the session gateway
  token <create|list|revoke>    manage principal session tokens
  endpoint <create|list|add-username|usernames>
                                manage registered endpoints
  share <grant|update|revoke|list>
                                manage endpoint access grants`)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDBPath() string {
	return envOr("TUNNELGATE_DB_PATH", "./tunnelgate.db")
}

func openStore(dbPath string) (*sqlite.Store, int) {
	store, err := sqlite.Open(dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db error:", err)
		return nil, 1
	}
	return store, 0
}
