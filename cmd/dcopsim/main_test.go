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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDCOP/services/dcop/results"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--output", "machine"}, args...))
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, archive string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exp.yaml")
	content := `
problem:
  topology: line
  agents: 4
  domain_size: 3
protocol:
  kind: mgm
run:
  max_rounds: 50
  stall_timeout: 5s
telemetry:
  trace_exporter: none
  metric_exporter: none
logging:
  level: error
results:
  badger_dir: ` + archive + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_MachineSummaryAndArchive(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "runs")
	cfg := writeConfig(t, archive)

	out, err := execute(t, "run", "--config", cfg, "--protocol", "coop", "--agents", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "problem=line-5 protocol=coop agents=5 finished=5")
	assert.Contains(t, out, "cost=0")
	assert.Contains(t, out, "converged=true")

	out, err = execute(t, "runs", "--badger-dir", archive)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID\tSTARTED\tPROTOCOL"))
	assert.Contains(t, lines[1], "\tcoop\tline-5\t")
	assert.True(t, strings.HasSuffix(lines[1], "\tconverged"))

	id := strings.SplitN(lines[1], "\t", 2)[0]
	out, err = execute(t, "runs", "--badger-dir", archive, "--show", id)
	require.NoError(t, err)
	var run results.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, id, run.ID)
	assert.Len(t, run.Assignment, 5)
}

func TestRun_JSONOutput(t *testing.T) {
	cfg := writeConfig(t, "")
	out, err := execute(t, "run", "--config", cfg, "--json", "--runner=false")
	require.NoError(t, err)

	var run results.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, "mgm", run.Protocol)
	assert.True(t, run.Converged)
	require.NotNil(t, run.Cost)
	assert.Equal(t, 0.0, *run.Cost)
	assert.NotEmpty(t, run.Rows)
}

func TestRun_InvalidOverride(t *testing.T) {
	cfg := writeConfig(t, "")
	_, err := execute(t, "run", "--config", cfg, "--protocol", "dsa")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown protocol kind")

	_, err = execute(t, "run", "--config", cfg, "--delivery-probability", "1.5")
	require.Error(t, err)
}

func TestProtocols(t *testing.T) {
	out, err := execute(t, "protocols")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "KIND\tMODE\tDESCRIPTION", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "coop\treactive\t"))
	assert.True(t, strings.HasPrefix(lines[3], "mgm\tclocked\t"))
}

func TestRuns_NoArchive(t *testing.T) {
	t.Setenv("DCOP_BADGER_DIR", "")
	_, err := execute(t, "runs")
	assert.ErrorContains(t, err, "no archive")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "dcopsim dev (commit none"))
}
