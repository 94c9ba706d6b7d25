// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders dcopsim output for terminals and scripts.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Aleutian palette.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	Header     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Label:   lipgloss.NewStyle().Foreground(ColorTealPrimary).Width(14),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	Header: lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary).PaddingRight(2),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
)

// Render returns the icon in its status color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return Styles.Muted.Render(string(i))
	}
}

// Success writes a success line.
func Success(w io.Writer, text string) {
	switch GetPersonality() {
	case PersonalityMachine:
		fmt.Fprintf(w, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(w, "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(w, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning writes a warning line.
func Warning(w io.Writer, text string) {
	switch GetPersonality() {
	case PersonalityMachine:
		fmt.Fprintf(w, "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(w, "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(w, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error writes an error line.
func Error(w io.Writer, text string) {
	switch GetPersonality() {
	case PersonalityMachine:
		fmt.Fprintf(w, "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(w, "%s %s\n", IconError, text)
	default:
		fmt.Fprintf(w, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Table writes rows under headers. Machine output is tab separated.
func Table(w io.Writer, headers []string, rows [][]string) {
	if GetPersonality() == PersonalityMachine {
		fmt.Fprintln(w, strings.Join(headers, "\t"))
		for _, r := range rows {
			fmt.Fprintln(w, strings.Join(r, "\t"))
		}
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i := 0; i < len(r) && i < len(widths); i++ {
			if n := lipgloss.Width(r[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		out := make([]string, len(widths))
		for i := range widths {
			var c string
			if i < len(cells) {
				c = cells[i]
			}
			out[i] = style.Width(widths[i] + 2).Render(c)
		}
		return strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, out...), " ")
	}

	header := Styles.Header
	if GetPersonality() == PersonalityMinimal {
		header = lipgloss.NewStyle()
	}
	fmt.Fprintln(w, line(headers, header))
	for _, r := range rows {
		fmt.Fprintln(w, line(r, lipgloss.NewStyle()))
	}
}

// ProgressBar renders current/total as a bar of the given width.
func ProgressBar(current, total, width int) string {
	if GetPersonality() == PersonalityMachine || total <= 0 {
		return fmt.Sprintf("%d/%d", current, total)
	}
	pct := float64(current) / float64(total)
	if pct > 1 {
		pct = 1
	}
	filled := int(pct * float64(width))
	bar := Styles.Success.Render(strings.Repeat("█", filled)) +
		Styles.Muted.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %d/%d", bar, current, total)
}
