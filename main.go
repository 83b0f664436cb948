package main

import (
	"os"

	"github.com/syncrules/cloudsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
