package main

import (
	"os"

	"github.com/jpequegn/testflow/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
