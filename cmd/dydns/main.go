package main

import (
	"fmt"
	"os"

	"github.com/open4/dydns/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dydns: %v\n", err)
		os.Exit(1)
	}
}
