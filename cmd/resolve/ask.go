// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianResolve/services/resolver"
	"github.com/AleutianAI/AleutianResolve/services/resolver/pipeline"
)

func newAskCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Resolve one question against a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runAsk(serverURL, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Resolve server base URL")
	return cmd
}

func runAsk(serverURL, question string) error {
	body, err := json.Marshal(resolver.ResolveRequest{Question: question})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(serverURL+"/v1/resolve", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp resolver.ErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(raw))
	}

	var result pipeline.SelectionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	printResult(question, &result)
	return nil
}

func printResult(question string, result *pipeline.SelectionResult) {
	fmt.Printf("Question: %s\n", question)
	fmt.Println("---")

	if result.TemplateID == "" {
		fmt.Println("No matching template found.")
		return
	}

	fmt.Printf("Template:   %s\n", result.TemplateID)
	if result.Description != "" {
		fmt.Printf("About:      %s\n", result.Description)
	}
	fmt.Printf("Confidence: %.2f\n", result.Confidence)
	if len(result.Parameters) > 0 {
		fmt.Println("Parameters:")
		for name, value := range result.Parameters {
			fmt.Printf("  %s = %s\n", name, value)
		}
	}
	fmt.Printf("\nSQL:\n%s\n", result.ResolvedQuery)

	if len(result.Alternatives) > 0 {
		fmt.Println("\nAlternatives:")
		for i, alt := range result.Alternatives {
			fmt.Printf("%d. %s (%s)\n", i+1, alt.TemplateID, alt.Description)
		}
	}
}
