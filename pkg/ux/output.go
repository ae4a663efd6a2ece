// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the tutorctl CLI.
package ux

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Tutor color palette - warm classroom tones over the Aleutian teal base
var (
	ColorTeal   = lipgloss.Color("#20B9B4") // Primary brand teal
	ColorChalk  = lipgloss.Color("#F5F1E8") // Chalk white - tutor replies
	ColorAmber  = lipgloss.Color("#F4D03F") // Amber - warnings, hints
	ColorCoral  = lipgloss.Color("#E74C3C") // Coral red - errors
	ColorSlate  = lipgloss.Color("#2C4A54") // Slate - muted metadata
	ColorSprout = lipgloss.Color("#7DCE82") // Sprout green - praise, success
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Tutor   lipgloss.Style
	Student lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Title   lipgloss.Style
}{
	Tutor:   lipgloss.NewStyle().Foreground(ColorChalk),
	Student: lipgloss.NewStyle().Bold(true).Foreground(ColorTeal),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSprout),
	Warning: lipgloss.NewStyle().Foreground(ColorAmber),
	Error:   lipgloss.NewStyle().Foreground(ColorCoral),
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTeal),
}

// TutorLine prints one tutor reply.
func TutorLine(text string) {
	fmt.Printf("%s %s\n", Styles.Student.Render("tutor>"), Styles.Tutor.Render(text))
}

// StudentPrompt renders the input prompt prefix.
func StudentPrompt() string {
	return Styles.Student.Render("you> ")
}

// MetaLine prints secondary information attached to a reply, such as a video
// suggestion or a cited source.
func MetaLine(kind, text string) {
	fmt.Printf("       %s %s\n", Styles.Muted.Render(kind+":"), text)
}

// Title prints a styled session banner line.
func Title(text string) {
	fmt.Println(Styles.Title.Render(text))
}

// Muted prints muted/secondary text.
func Muted(text string) {
	fmt.Println(Styles.Muted.Render(text))
}

// Success prints a success message with a checkmark.
func Success(text string) {
	fmt.Printf("%s %s\n", Styles.Success.Render("✓"), Styles.Success.Render(text))
}

// Warning prints a warning message.
func Warning(text string) {
	fmt.Printf("%s %s\n", Styles.Warning.Render("⚠"), Styles.Warning.Render(text))
}

// Error prints an error message to stderr.
func Error(text string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", Styles.Error.Render("✗"), Styles.Error.Render(text))
}
