package main

import (
	"os"

	"github.com/mlefebvre/hydronet/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
