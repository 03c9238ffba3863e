// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vimarsh-ai/vimarsh/services/guidance/datatypes"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	askSessionID  string // Reuse a session across questions
	askJSONOutput bool   // Print the raw response as JSON
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var askCmd = &cobra.Command{
	Use:   "ask <personality> <question>",
	Short: "Ask a persona for guidance",
	Long: `Sends a question to the guidance service and prints the answer.

Examples:
  vimarsh ask krishna "How should I act when the outcome is uncertain?"
  vimarsh ask buddha "Why do I suffer?" --session my-session
  vimarsh ask rumi "What is love?" --json`,
	Args: cobra.ExactArgs(2),
	Run:  runAskCommand,
}

func init() {
	askCmd.Flags().StringVarP(&askSessionID, "session", "s", "",
		"Session id to continue an earlier conversation")
	askCmd.Flags().BoolVar(&askJSONOutput, "json", false,
		"Output the full response as JSON")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runAskCommand(cmd *cobra.Command, args []string) {
	req := datatypes.GuidanceRequest{
		Personality: args[0],
		Query:       args[1],
		SessionID:   askSessionID,
	}
	body, err := json.Marshal(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding the request: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Post(serverURL+"/v1/guidance", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reaching the guidance service at %s: %v\n", serverURL, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading the response: %v\n", err)
		os.Exit(1)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr datatypes.ErrorResponse
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			fmt.Fprintf(os.Stderr, "Error (%s): %s\n", apiErr.Code, apiErr.Error)
		} else {
			fmt.Fprintf(os.Stderr, "Error: HTTP %d\n", resp.StatusCode)
		}
		os.Exit(1)
	}

	if askJSONOutput {
		fmt.Println(string(payload))
		return
	}

	var answer datatypes.GuidanceResponse
	if err := json.Unmarshal(payload, &answer); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding the response: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(answer.Content)
	if len(answer.Citations) > 0 {
		fmt.Println()
		for _, c := range answer.Citations {
			ref := c.Source
			if c.Chapter != "" {
				ref += " " + c.Chapter
				if c.Verse != "" {
					ref += "." + c.Verse
				}
			}
			fmt.Printf("  [%s]\n", ref)
		}
	}
	if answer.Degraded {
		fmt.Fprintf(os.Stderr, "\n(degraded response via %s)\n", answer.FallbackStrategy)
	}
	if answer.SessionID != "" && askSessionID == "" {
		fmt.Fprintf(os.Stderr, "\nSession: %s\n", answer.SessionID)
	}
}
