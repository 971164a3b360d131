package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"
)

func runEndpointAdmin(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: tunnelgate endpoint <create|list|add-username|usernames> [flags]")
		return 2
	}
	switch args[0] {
	case "create":
		return runEndpointCreate(ctx, args[1:])
	case "list":
		return runEndpointList(ctx, args[1:])
	case "add-username":
		return runEndpointAddUsername(ctx, args[1:])
	case "usernames":
		return runEndpointUsernames(ctx, args[1:])
	default:
		fmt.Fprintln(os.Stderr, "unknown endpoint command:", args[0])
		return 2
	}
}

func runEndpointCreate(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("endpoint-create", flag.ContinueOnError)
	var dbPath, owner, name, keyFile, description string
	var portLow, portHigh int
	fs.StringVar(&dbPath, "db", defaultDBPath(), "sqlite db path")
	fs.StringVar(&owner, "owner", "", "owner principal username")
	fs.StringVar(&name, "name", "", "endpoint name (globally unique)")
	fs.StringVar(&keyFile, "public-key", "", "path to the endpoint's SSH public key")
	fs.StringVar(&description, "description", "", "free-form description")
	fs.IntVar(&portLow, "port-low", 20000, "relay port range lower bound (inclusive)")
	fs.IntVar(&portHigh, "port-high", 30000, "relay port range upper bound (exclusive)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if owner == "" || name == "" {
		fmt.Fprintln(os.Stderr, "missing --owner or --name")
		return 2
	}
	var publicKey string
	if keyFile != "" {
		data, err := os.ReadFile(keyFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read public key:", err)
			return 1
		}
		publicKey = string(data)
	}

	store, code := openStore(dbPath)
	if code != 0 {
		return code
	}
	defer func() { _ = store.Close() }()

	principal, err := store.GetPrincipalByUsername(ctx, owner)
	if err != nil {
		fmt.Fprintln(os.Stderr, "endpoint create error:", err)
		return 1
	}
	endpoint, err := store.CreateEndpoint(ctx, principal.ID, name, publicKey, description, portLow, portHigh, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "endpoint create error:", err)
		return 1
	}
	fmt.Println("id:", endpoint.ID)
	fmt.Println("name:", endpoint.Name)
	fmt.Println("relay_port:", endpoint.RelayPort)
	return 0
}

func runEndpointList(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("endpoint-list", flag.ContinueOnError)
	var dbPath string
	fs.StringVar(&dbPath, "db", defaultDBPath(), "sqlite db path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store, code := openStore(dbPath)
	if code != 0 {
		return code
	}
	defer func() { _ = store.Close() }()

	endpoints, err := store.ListEndpoints(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "endpoint list error:", err)
		return 1
	}
	for _, ep := range endpoints {
		fmt.Printf("%s\t%s\tport=%d\towner=%s\tcreated=%s\n",
			ep.ID, ep.Name, ep.RelayPort, ep.PrincipalID, ep.CreatedAt.Format(time.RFC3339))
	}
	return 0
}

func runEndpointAddUsername(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("endpoint-add-username", flag.ContinueOnError)
	var dbPath, endpointID, username string
	fs.StringVar(&dbPath, "db", defaultDBPath(), "sqlite db path")
	fs.StringVar(&endpointID, "endpoint", "", "endpoint id")
	fs.StringVar(&username, "username", "", "remote login name")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if endpointID == "" || username == "" {
		fmt.Fprintln(os.Stderr, "missing --endpoint or --username")
		return 2
	}

	store, code := openStore(dbPath)
	if code != 0 {
		return code
	}
	defer func() { _ = store.Close() }()

	rec, err := store.AddEndpointUsername(ctx, endpointID, username)
	if err != nil {
		fmt.Fprintln(os.Stderr, "add username error:", err)
		return 1
	}
	fmt.Println("id:", rec.ID)
	fmt.Println("endpoint:", rec.EndpointID)
	fmt.Println("username:", rec.Username)
	return 0
}

func runEndpointUsernames(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("endpoint-usernames", flag.ContinueOnError)
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

	names, err := store.ListEndpointUsernames(ctx, endpointID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "usernames error:", err)
		return 1
	}
	for _, n := range names {
		fmt.Printf("%s\t%s\n", n.Username, n.CreatedAt.Format(time.RFC3339))
	}
	return 0
}
