// Package main is the entry point for the ICT decision engine daemon.
package main

import (
	"flag"
	"fmt"
	"os"

	"go-ict/internal/app"
	"go-ict/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default $ICT_CONFIG or "+config.DefaultPath+")")
	flag.Parse()

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := app.New(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "ictd: %v\n", err)
		os.Exit(1)
	}
}
