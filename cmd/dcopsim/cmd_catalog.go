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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDCOP/pkg/ux"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/protocol"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/results"
)

func listProtocols(w io.Writer) {
	var rows [][]string
	for _, d := range protocol.Default().Descriptors() {
		mode := "clocked"
		if d.Reactive {
			mode = "reactive"
		}
		rows = append(rows, []string{d.Kind.String(), mode, d.Description})
	}
	ux.Table(w, []string{"KIND", "MODE", "DESCRIPTION"}, rows)
}

func newRunsCmd() *cobra.Command {
	var (
		dir     string
		showID  string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs recorded in the Badger archive",
		Long: `Lists archived runs, oldest first, or prints one run in full.

The archive directory defaults to DCOP_BADGER_DIR.

Examples:
  dcopsim runs --badger-dir ./runs
  dcopsim runs --badger-dir ./runs --show 6f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = os.Getenv("DCOP_BADGER_DIR")
			}
			if dir == "" {
				return fmt.Errorf("no archive: set --badger-dir or DCOP_BADGER_DIR")
			}
			store, err := results.OpenBadgerStore(dir, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if showID != "" {
				run, err := store.Get(cmd.Context(), showID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}

			runs, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(out).Encode(runs)
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID,
					r.Started.Format(time.RFC3339),
					r.Protocol,
					r.Problem,
					strconv.Itoa(r.Rounds),
					costString(r.Cost),
					outcomeString(r),
				})
			}
			ux.Table(out, []string{"ID", "STARTED", "PROTOCOL", "PROBLEM", "ROUNDS", "COST", "OUTCOME"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "badger-dir", "", "Archive directory")
	cmd.Flags().StringVar(&showID, "show", "", "Print the run with this ID as JSON")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print every run as JSON")
	return cmd
}

func costString(c *float64) string {
	if c == nil {
		return "unknown"
	}
	return strconv.FormatFloat(*c, 'g', -1, 64)
}

func outcomeString(r results.Run) string {
	switch {
	case r.Stalled:
		return "stalled:" + r.StallReason
	case r.Converged:
		return "converged"
	default:
		return "round_limit"
	}
}
