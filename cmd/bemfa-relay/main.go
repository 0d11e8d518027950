package main

import (
	"bemfarelay/internal/client/cli"

	"github.com/joho/godotenv"
)

// Version is set via ldflags during build. e.g. -X main.Version=1.2.0
var Version = "dev"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cli.Init(Version)
	cli.Execute()
}
