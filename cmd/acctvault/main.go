// Command acctvault manages the local account vault: accounts, backups,
// exports, TOTP codes, the HTTP API for the web frontend and the MCP server.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
