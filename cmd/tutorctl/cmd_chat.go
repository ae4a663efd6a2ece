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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jinterlante1206/AleutianTutor/pkg/ux"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/datatypes"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	chatStudentID string // Student identity for long-term memory
	chatArabic    bool   // Deliver replies in Arabic mode
	chatWebSearch bool   // Force web research on every turn
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the tutor a single question",
	Long: `Sends one turn to the tutor service and prints the reply.

Examples:
  tutorctl ask "what is photosynthesis?"
  tutorctl ask --arabic "ما هو الكسر؟"
  tutorctl ask --web-search "newest space telescope"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAskCommand,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive tutoring session",
	Long: `Opens an interactive session with the tutor service. Conversation
state is carried across turns, so practice questions, hints, and topic
memory all work the way they do in the app.

Type "exit" or press Ctrl-D to leave.`,
	RunE: runChatCommand,
}

func init() {
	for _, cmd := range []*cobra.Command{askCmd, chatCmd} {
		cmd.Flags().StringVar(&chatStudentID, "student", "", "Student ID for long-term memory")
		cmd.Flags().BoolVar(&chatArabic, "arabic", false, "Reply in Arabic mode")
		cmd.Flags().BoolVar(&chatWebSearch, "web-search", false, "Force web research")
	}
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runAskCommand(cmd *cobra.Command, args []string) error {
	sessionID := uuid.NewString()
	state := datatypes.NewConversationState()

	result, err := postTurn(sessionID, strings.Join(args, " "), state)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func runChatCommand(cmd *cobra.Command, args []string) error {
	sessionID := uuid.NewString()
	state := datatypes.NewConversationState()

	ux.Title("Aleutian Tutor")
	ux.Muted("Connected to " + serverURL + " (session " + sessionID + ")")
	ux.Muted("Type 'exit' to leave.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(ux.StudentPrompt())
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" || line == "quit" {
			return nil
		}

		var result datatypes.TurnResult
		err := ux.WithSpinner("thinking...", func() error {
			var turnErr error
			result, turnErr = postTurn(sessionID, line, state)
			return turnErr
		})
		if err != nil {
			continue
		}
		printResult(result)
		// Carry the successor state into the next turn.
		state = result.State
	}
}

func postTurn(sessionID, utterance string, state datatypes.ConversationState) (datatypes.TurnResult, error) {
	lang := datatypes.LanguageDefault
	if chatArabic {
		lang = datatypes.LanguageArabic
	}
	reqBody := datatypes.TurnRequest{
		SessionID: sessionID,
		Utterance: utterance,
		State:     state,
		Preferences: datatypes.Preferences{
			StudentID:      chatStudentID,
			Language:       lang,
			ForceWebSearch: chatWebSearch,
		},
	}

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return datatypes.TurnResult{}, err
	}

	req, err := http.NewRequest(http.MethodPost, serverURL+"/v1/turn", bytes.NewReader(raw))
	if err != nil {
		return datatypes.TurnResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+serviceKey)
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return datatypes.TurnResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return datatypes.TurnResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return datatypes.TurnResult{}, fmt.Errorf("tutor service returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var result datatypes.TurnResult
	if err := json.Unmarshal(body, &result); err != nil {
		return datatypes.TurnResult{}, err
	}
	return result, nil
}

func printResult(result datatypes.TurnResult) {
	ux.TutorLine(result.Text)
	if result.Video != nil {
		ux.MetaLine("video", fmt.Sprintf("%s [%s]", result.Video.Title, result.Video.ID))
	}
	for _, src := range result.Sources {
		ux.MetaLine("source", fmt.Sprintf("%s (%s)", src.Title, src.URL))
	}
	if result.SuggestedTitle != "" {
		ux.MetaLine("title", result.SuggestedTitle)
	}
}
