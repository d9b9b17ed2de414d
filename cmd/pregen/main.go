// Package main provides the entry point for the pregen thumbnail
// pre-generation CLI.
package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(exitCode(Execute(context.Background())))
}
