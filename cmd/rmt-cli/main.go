package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var rpcEndpoint = defaultRPCEndpoint() // overridden via RMT_RPC_URL or --rpc
var rpcAuthToken = os.Getenv("RMT_RPC_TOKEN")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	switch args[0] {
	case "keys":
		return runKeysCommand(args[1:], stdout, stderr)
	case "transfer":
		return runTransferCommand(args[1:], stdout, stderr)
	case "approve", "reject", "cancel":
		return runResolveCommand(args[0], args[1:], stdout, stderr)
	case "grant":
		return runGrantCommand(args[1:], stdout, stderr)
	case "get":
		return runGetCommand(args[1:], stdout, stderr)
	case "list":
		return runListCommand(args[1:], stdout, stderr)
	case "info":
		return runSimpleQuery("rmt_contractInfo", args[1:], stdout, stderr)
	case "version":
		return runSimpleQuery("rmt_versionInfo", args[1:], stdout, stderr)
	case "escrow":
		return runSimpleQuery("rmt_escrowAddress", args[1:], stdout, stderr)
	case "balance":
		return runBalanceCommand(args[1:], stdout, stderr)
	case "allowance":
		return runAllowanceCommand(args[1:], stdout, stderr)
	case "marker":
		return runMarkerCommand(args[1:], stdout, stderr)
	case "export":
		return runExportCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RMT_RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func usage() string {
	return strings.TrimSpace(`Usage:
  rmt-cli [--rpc URL] <command> [flags]

Commands:
  keys generate|show        Manage encrypted signing keys
  transfer                  Propose a restricted marker transfer
  approve|reject|cancel     Resolve a pending transfer
  grant                     Set the allowance the escrow may pull
  get                       Fetch a transfer by id
  list                      List transfers with optional filters
  info                      Show the contract configuration
  version                   Show the stored contract version
  escrow                    Show the escrow account address
  balance                   Show a marker balance
  allowance                 Show the escrow allowance of a granter
  marker                    Show a marker and its grants
  export csv|jsonl|parquet  Export transfers to a file

Environment:
  RMT_RPC_URL               RPC endpoint (default http://localhost:8080)
  RMT_RPC_TOKEN             Bearer token sent with transactions
  RMT_KEYSTORE_PASSPHRASE   Keystore passphrase, prompted when unset
`)
}
