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
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	serviceKey string
)

var rootCmd = &cobra.Command{
	Use:   "tutorctl",
	Short: "Command line client for the Aleutian tutor service",
	Long: `tutorctl talks to a running tutor service.

Examples:
  tutorctl ask "what is photosynthesis?"
  tutorctl chat
  tutorctl chat --server http://tutor.local:12240`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	defaultServer := os.Getenv("TUTOR_SERVICE_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:12240"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer,
		"Base URL of the tutor service")
	rootCmd.PersistentFlags().StringVar(&serviceKey, "key", os.Getenv("TUTOR_API_KEY"),
		"Bearer token for the tutor service")
}
