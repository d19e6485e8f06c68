// Package main is the entry point for the tenantctl binary.
package main

import (
	"os"

	"github.com/utafrali/tenantgate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
