package main

import (
	"fmt"
	"os"

	"photo-library/cmd/photo-library/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
