// Package main runs the pollstream terminal client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/livepoll/pollstream/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env", "", "path to an env file to load before the default .env")
	noUI := flag.Bool("no-ui", false, "headless mode: reconcile and log instead of rendering")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "pollstream: load %s: %v\n", *envFile, err)
			return 1
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, app.Options{NoUI: *noUI}); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "pollstream: %v\n", err)
		return 1
	}
	return 0
}
