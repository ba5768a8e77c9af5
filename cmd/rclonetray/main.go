// Package main is the entry point for the rclonetray CLI.
package main

import (
	"os"

	"github.com/rclonetray/rclonetray/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
