package main

import (
	"os"

	"github.com/halcyard/winch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
