package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/agenthands/graphmerge/internal/cli"
)

func main() {
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
