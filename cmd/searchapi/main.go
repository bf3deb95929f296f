// Package main provides the entry point for the searchapi CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/searchapi/cmd/searchapi/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
