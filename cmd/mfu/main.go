package main

import (
	"os"

	"github.com/lazypower/mfu/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
