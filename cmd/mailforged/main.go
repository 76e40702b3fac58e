package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	// Pick off the subcommand before flag.Parse runs so each subcommand
	// owns its own flag set. os.Args is rewritten without the subcommand.
	var subcommand string
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		subcommand = os.Args[1]
		os.Args = append(os.Args[:1], os.Args[2:]...)
	}

	switch subcommand {
	case "", "serve":
		runServe()
	case "check":
		runCheck()
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\nusage: mailforged [serve|check] [flags]\n", subcommand)
		os.Exit(1)
	}
}
