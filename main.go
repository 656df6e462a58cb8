package main

import (
	"os"

	"github.com/lachlan2k/gatekeep/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
