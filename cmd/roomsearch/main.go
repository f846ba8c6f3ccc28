// Package main provides the entry point for the roomsearch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/roomsearch/cmd/roomsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
