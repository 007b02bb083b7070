package main

import (
	"os"

	"github.com/AlfredBerg/sps-crawler/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
