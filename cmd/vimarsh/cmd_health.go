// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vimarsh-ai/vimarsh/pkg/resilience"
)

var healthJSONOutput bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show service and dependency health",
	Long: `Queries the readiness endpoint and prints per-service health,
circuit breaker states, and the current degradation level.

Exits with code 1 when the service reports critical health.`,
	Run: runHealthCommand,
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSONOutput, "json", false,
		"Output as JSON for scripting")
}

func runHealthCommand(cmd *cobra.Command, args []string) {
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Get(serverURL + "/ready")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reaching the guidance service at %s: %v\n", serverURL, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var status resilience.SystemStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding the response: %v\n", err)
		os.Exit(1)
	}

	if healthJSONOutput {
		out, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(out))
	} else {
		fmt.Printf("Overall: %s (degradation: %s)\n", status.Overall, status.Degradation)
		for _, svc := range status.Services {
			fmt.Printf("  %-16s %-10s breaker=%s fails=%d\n",
				svc.Name, svc.State, svc.Breaker, svc.ConsecFails)
		}
	}

	if status.Overall == resilience.HealthCritical {
		os.Exit(1)
	}
}
