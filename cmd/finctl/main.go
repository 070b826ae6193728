// Package main provides the entry point for the finctl CLI.
package main

import (
	"github.com/weiawesome/fin-dashboard/internal/cli"
)

func main() {
	cli.Execute()
}
