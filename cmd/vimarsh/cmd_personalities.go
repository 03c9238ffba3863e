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
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vimarsh-ai/vimarsh/services/guidance/datatypes"
)

var personalitiesJSONOutput bool

var personalitiesCmd = &cobra.Command{
	Use:   "personalities",
	Short: "List the available personas",
	Run:   runPersonalitiesCommand,
}

func init() {
	personalitiesCmd.Flags().BoolVar(&personalitiesJSONOutput, "json", false,
		"Output as JSON")
}

func runPersonalitiesCommand(cmd *cobra.Command, args []string) {
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Get(serverURL + "/v1/personalities")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reaching the guidance service at %s: %v\n", serverURL, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var body struct {
		Personalities []datatypes.PersonalityInfo `json:"personalities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding the response: %v\n", err)
		os.Exit(1)
	}

	if personalitiesJSONOutput {
		out, _ := json.MarshalIndent(body.Personalities, "", "  ")
		fmt.Println(string(out))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTRADITION\tDESCRIPTION")
	for _, p := range body.Personalities {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Tradition, p.Description)
	}
	w.Flush()
}
