// Package main is the entry point for the specarchive CLI.
package main

import "github.com/mesh-intelligence/specarchive/internal/cli"

func main() {
	cli.Execute()
}
