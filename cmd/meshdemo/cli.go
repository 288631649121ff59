package main

import (
	"fmt"
	"os"
)

// Version is the demo binary's version. Set at build time via -ldflags.
var Version = "0.1.0-dev"

// RunCLI handles subcommands that short-circuit the normal connect-and-serve
// flow. Returns true if a subcommand was handled.
func RunCLI(args []string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("meshdemo %s\n", Version)
		return true
	case "check":
		return cliCheck(args[1:])
	default:
		return false
	}
}

// cliCheck parses the same flag set the serve path would use and reports
// whether the resulting Config is valid, without ever dialing the gateway.
func cliCheck(args []string) bool {
	cfg, _, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if verr := cfg.Validate(); verr != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", verr)
		os.Exit(1)
	}
	fmt.Printf("config OK: mud_name=%q gateway=%s:%d\n", cfg.MUDName, cfg.GatewayHost, cfg.GatewayPort)
	return true
}
