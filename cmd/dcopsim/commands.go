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
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDCOP/pkg/ux"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

// runFlags holds the overrides accepted by "dcopsim run". Only flags the
// user actually set are applied on top of the loaded config.
type runFlags struct {
	configPath          string
	protocol            string
	topology            string
	agents              int
	rounds              int
	seed                int64
	runner              bool
	deliveryProbability float64
	metricsAddr         string
	progress            bool
	jsonOut             bool
}

// newRootCmd builds the full command tree.
func newRootCmd() *cobra.Command {
	var output string

	root := &cobra.Command{
		Use:           "dcopsim",
		Short:         "Run distributed constraint optimization experiments",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if output != "" {
				ux.SetPersonality(ux.ParsePersonalityLevel(output))
			} else {
				ux.InitPersonality()
			}
		},
	}
	root.PersistentFlags().StringVar(&output, "output", "",
		"Output style: full, minimal, or machine (default: machine when stdout is not a terminal)")

	root.AddCommand(newRunCmd(), newProtocolsCmd(), newRunsCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one experiment",
		Long: `Loads an experiment config, generates the problem, runs the selected
protocol to convergence, stall, or the round limit, records the result, and
prints a summary.

Priority: flags > DCOP_* environment > config file > defaults.

Examples:
  dcopsim run
  dcopsim run --config exp.yaml --protocol coop
  dcopsim run --agents 50 --rounds 200 --metrics-addr :9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "Experiment config file (YAML or JSON)")
	fl.StringVarP(&f.protocol, "protocol", "p", "", "Protocol kind (see 'dcopsim protocols')")
	fl.StringVar(&f.topology, "topology", "", "Problem topology: line, ring, or random")
	fl.IntVarP(&f.agents, "agents", "n", 0, "Number of agents")
	fl.IntVarP(&f.rounds, "rounds", "r", 0, "Maximum rounds")
	fl.Int64Var(&f.seed, "seed", 0, "Run seed")
	fl.BoolVar(&f.runner, "runner", true, "Give every agent its own runner goroutine")
	fl.Float64Var(&f.deliveryProbability, "delivery-probability", 1, "Probability each message is delivered")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	fl.BoolVar(&f.progress, "progress", false, "Print one line per round")
	fl.BoolVar(&f.jsonOut, "json", false, "Print the recorded run as JSON instead of a summary")
	return cmd
}

func newProtocolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "protocols",
		Short: "List available protocols",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			listProtocols(cmd.OutOrStdout())
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dcopsim %s (commit %s, %s)\n", version, commit, runtime.Version())
		},
	}
}
