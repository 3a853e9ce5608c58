package main

import (
	"os"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
