// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

// serverURL is where every subcommand sends its requests. Overridable
// via --server or VIMARSH_SERVER.
var serverURL string

var rootCmd = &cobra.Command{
	Use:   "vimarsh",
	Short: "Command line client for the Vimarsh guidance service",
	Long: `vimarsh talks to a running guidance service.

Examples:
  vimarsh personalities                 # List available personas
  vimarsh ask krishna "What is duty?"   # Ask a question
  vimarsh health                        # Service and dependency health`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	defaultServer := os.Getenv("VIMARSH_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer,
		"Base URL of the guidance service")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(personalitiesCmd)
	rootCmd.AddCommand(healthCmd)
}
