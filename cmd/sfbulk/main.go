package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/rudderlabs/salesforce-bulk-go-sdk/cmd/sfbulk/commands"
)

var version = "develop"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "INFO: No .env file found.")
	}

	app := &cli.App{
		Name:     "sfbulk",
		Usage:    "drive Salesforce Bulk API v1 jobs from the command line",
		Version:  version,
		Commands: commands.DefaultList,
	}
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
