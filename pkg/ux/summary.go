// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"
)

// RunSummary is what the summary view shows about a finished run.
type RunSummary struct {
	RunID       string
	Problem     string
	Protocol    string
	Agents      int
	Finished    int
	Rounds      int
	Cost        float64 // +Inf when unknown
	BestCost    float64
	Converged   bool
	Stalled     bool
	StallReason string
	Messages    int64
	ByType      map[string]int64
	Dropped     int64
	Lost        int64
	Duration    time.Duration

	// CostTrace is the per-round cost, oldest first. Unknown costs are +Inf.
	CostTrace []float64
}

// RenderSummary writes s in the current personality.
func RenderSummary(w io.Writer, s RunSummary) {
	if GetPersonality() == PersonalityMachine {
		renderMachine(w, s)
		return
	}

	rows := [][2]string{
		{"run", s.RunID},
		{"problem", fmt.Sprintf("%s (%d agents)", s.Problem, s.Agents)},
		{"protocol", s.Protocol},
		{"rounds", fmt.Sprintf("%d", s.Rounds)},
		{"finished", ProgressBar(s.Finished, s.Agents, 20)},
		{"cost", FormatCost(s.Cost)},
		{"best cost", FormatCost(s.BestCost)},
		{"messages", fmt.Sprintf("%d (dropped %d, lost %d)", s.Messages, s.Dropped, s.Lost)},
		{"duration", s.Duration.Round(time.Microsecond).String()},
	}
	if len(s.CostTrace) > 1 {
		rows = append(rows, [2]string{"trajectory", Sparkline(s.CostTrace)})
	}

	minimal := GetPersonality() == PersonalityMinimal
	var b strings.Builder
	for _, r := range rows {
		if minimal {
			fmt.Fprintf(&b, "%-14s%s\n", r[0], r[1])
		} else {
			fmt.Fprintf(&b, "%s%s\n", Styles.Label.Render(r[0]), r[1])
		}
	}
	for _, t := range sortedTypes(s.ByType) {
		fmt.Fprintf(&b, "  %-24s %d\n", t, s.ByType[t])
	}
	body := strings.TrimRight(b.String(), "\n")

	status, icon := outcome(s)
	if minimal {
		fmt.Fprintf(w, "%s %s\n%s\n", icon, status, body)
		return
	}
	box := Styles.Box
	if s.Stalled {
		box = Styles.WarningBox
	}
	fmt.Fprintln(w, box.Render(Styles.Title.Render(icon.Render()+" "+status)+"\n"+body))
}

func renderMachine(w io.Writer, s RunSummary) {
	fmt.Fprintf(w, "run_id=%s problem=%s protocol=%s agents=%d finished=%d rounds=%d cost=%s best_cost=%s converged=%t stalled=%t",
		s.RunID, s.Problem, s.Protocol, s.Agents, s.Finished, s.Rounds,
		FormatCost(s.Cost), FormatCost(s.BestCost), s.Converged, s.Stalled)
	if s.StallReason != "" {
		fmt.Fprintf(w, " stall_reason=%s", s.StallReason)
	}
	fmt.Fprintf(w, " messages=%d dropped=%d lost=%d duration_ms=%d\n",
		s.Messages, s.Dropped, s.Lost, s.Duration.Milliseconds())
	for _, t := range sortedTypes(s.ByType) {
		fmt.Fprintf(w, "messages_by_type %s=%d\n", t, s.ByType[t])
	}
}

func outcome(s RunSummary) (string, Icon) {
	switch {
	case s.Stalled:
		return "stalled (" + s.StallReason + ")", IconWarning
	case s.Converged:
		return "converged", IconSuccess
	default:
		return "round limit reached", IconPending
	}
}

// FormatCost prints a cost, or "unknown" for +Inf.
func FormatCost(c float64) string {
	if math.IsInf(c, 0) || math.IsNaN(c) {
		return "unknown"
	}
	return fmt.Sprintf("%g", c)
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws one block per value scaled between the finite minimum and
// maximum. Unknown values are drawn as spaces.
func Sparkline(values []float64) string {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	out := make([]rune, len(values))
	for i, v := range values {
		switch {
		case math.IsInf(v, 0) || math.IsNaN(v):
			out[i] = ' '
		case hi == lo:
			out[i] = sparkBlocks[0]
		default:
			idx := int((v - lo) / (hi - lo) * float64(len(sparkBlocks)-1))
			out[i] = sparkBlocks[idx]
		}
	}
	return string(out)
}

func sortedTypes(m map[string]int64) []string {
	types := make([]string, 0, len(m))
	for t := range m {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
