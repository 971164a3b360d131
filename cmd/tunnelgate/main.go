package main

import (
	"os"

	"github.com/tunnelgate/tunnelgate/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
