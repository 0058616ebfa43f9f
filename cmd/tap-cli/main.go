package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	rpcEndpoint  = defaultRPCEndpoint()
	rpcAuthToken = os.Getenv("TAP_RPC_TOKEN")
)

func defaultRPCEndpoint() string {
	if url := strings.TrimSpace(os.Getenv("RPC_URL")); url != "" {
		return url
	}
	return "http://127.0.0.1:8546"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := args[:0]
	for i := 0; i < len(args); i++ {
		if args[i] == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--rpc requires a URL")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		out = append(out, args[i])
	}
	return out, nil
}

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	switch command := args[0]; command {
	case "generate-key":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a keystore file path.")
			printUsage()
			return
		}
		generateKey(args[1])
	case "initialize":
		if len(args) < 5 {
			fmt.Println("Error: initialize needs <admin> <token> <reward> <cooldown-seconds>.")
			printUsage()
			return
		}
		cooldown, err := strconv.ParseUint(args[4], 10, 64)
		if err != nil {
			fmt.Println("Error: Invalid cooldown.")
			return
		}
		initialize(args[1], args[2], args[3], cooldown)
	case "fund":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an amount.")
			printUsage()
			return
		}
		fund(args[1])
	case "tap":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a keystore file.")
			printUsage()
			return
		}
		tap(args[1])
	case "balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		getBalance(args[1])
	case "status":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		status(args[1])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func printUsage() {
	fmt.Println(`Usage: tap-cli [--rpc <url>] <command> [args]

Commands:
  generate-key <file>                          Create a key and save it as an encrypted keystore
  initialize <admin> <token> <reward> <cooldown-seconds>
                                               One-time dispenser setup (requires TAP_RPC_TOKEN)
  fund <amount>                                Mint tokens into the dispenser pool (requires TAP_RPC_TOKEN)
  tap <keyfile>                                Claim the reward with the given key
  balance <address>                            Show an address's token balance
  status <address>                             Show last claim and next eligibility

Environment:
  RPC_URL        RPC endpoint (default http://127.0.0.1:8546)
  TAP_RPC_TOKEN  Bearer token for admin methods
  TAP_KEY_PASS   Keystore passphrase (prompted when unset)`)
}
