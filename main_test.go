package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shareclass_hedging/api"
	"shareclass_hedging/approval"
	"shareclass_hedging/config"
	"shareclass_hedging/state"
	"shareclass_hedging/store"
	"shareclass_hedging/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCounterpartyCSV = "ShareClassId,ShareClassName,Exposure\nSC01,Fund A,1200000\n"

func writeTestConfig(t *testing.T, collaborator string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`collaborator: %s
mock:
  latency_ms: 0
normal_config:
  log_directory: %s
  state_directory: %s
`, collaborator, filepath.Join(dir, "logs"), filepath.Join(dir, "state"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path, dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := newRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func approveArgs() []string {
	var args []string
	for _, name := range approval.Roster {
		args = append(args, "--approve", name)
	}
	return args
}

func TestStagesCommand(t *testing.T) {
	out, err := execute(t, "stages")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, "0\tBNY Data", lines[0])
	assert.Contains(t, lines[5], "Approvals")
	assert.Contains(t, lines[5], "requires all approvals")
	assert.Equal(t, "8\tComplete", lines[8])
}

func TestApproversCommand(t *testing.T) {
	out, err := execute(t, "approvers")
	require.NoError(t, err)
	assert.Equal(t, strings.Join(approval.Roster, "\n")+"\n", out)
}

func TestRunCompletesWithAllApprovals(t *testing.T) {
	cfgPath, dir := writeTestConfig(t, config.CollaboratorMock)
	cp := writeFile(t, dir, "cp.csv", testCounterpartyCSV)

	args := append([]string{"run", "--config", cfgPath, "--sample", "--counterparty", cp}, approveArgs()...)
	out, err := execute(t, args...)
	require.NoError(t, err)

	assert.Contains(t, out, "Stage: 8 (Complete)")
	assert.Contains(t, out, "Fund A (EURUSD)\t1,000,000.00")
	assert.Contains(t, out, "Fund A (Exposure)\t1,200,000.00")
	assert.Contains(t, out, "Execution: Executed Forward EURUSD 1,000,000 maturing ")
	assert.Contains(t, out, "report=Mock reporting data")
	assert.Contains(t, out, "report=Booked movements")
	assert.NotContains(t, out, "Waiting for approvals.")
	assert.FileExists(t, filepath.Join(dir, "logs", logFileName))
}

func TestRunStopsAtApprovalGate(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, config.CollaboratorMock)

	out, err := execute(t, "run", "--config", cfgPath, "--sample",
		"--approve", "PM Approver", "--reject", "PAMSA Approver")
	require.NoError(t, err)

	assert.Contains(t, out, "Stage: 5 (Approvals)")
	assert.Contains(t, out, "PM Approver: Approved")
	assert.Contains(t, out, "PAMSA Approver: Rejected")
	assert.Contains(t, out, "Waiting for approvals.")
	assert.NotContains(t, out, "Execution:")
}

func TestRunRejectsUnknownApprover(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, config.CollaboratorMock)

	out, err := execute(t, "run", "--config", cfgPath, "--approve", "Nobody")
	require.Error(t, err)
	assert.ErrorIs(t, err, approval.ErrUnknownApprover)
	assert.Contains(t, out, "Stage: 5 (Approvals)")
}

func TestRunReportsMalformedCSV(t *testing.T) {
	cfgPath, dir := writeTestConfig(t, config.CollaboratorMock)
	fx := writeFile(t, dir, "fx.csv", "h\nSC01,Fund A,EURUSD,abc\n")

	_, err := execute(t, "run", "--config", cfgPath, "--fx", fx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fx.csv")
}

func TestRunMissingConfig(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestCollaboratorOverrideIsValidated(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, config.CollaboratorMock)
	_, err := execute(t, "run", "--config", cfgPath, "--collaborator", "carrier-pigeon")
	require.Error(t, err)
}

func testConfig(t *testing.T, collaborator string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Collaborator = collaborator
	cfg.Mock.LatencyMS = 0
	cfg.Normal.StateDirectory = filepath.Join(dir, "state")
	cfg.Normal.LogDirectory = filepath.Join(dir, "logs")
	return cfg
}

func TestOrchestratorFileCollaboratorPersists(t *testing.T) {
	cfg := testConfig(t, config.CollaboratorFile)
	ctx := context.Background()

	o, err := NewOrchestrator(ctx, cfg, &config.EnvConfig{Operator: "tester"})
	require.NoError(t, err)
	defer o.Close()

	require.NoError(t, o.Load("", "", true))
	report, err := o.Run(ctx, approval.Roster, nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageComplete, report.Snapshot.CurrentStage)
	assert.False(t, report.Blocked)

	sm, err := state.NewStateManager(filepath.Join(cfg.Normal.StateDirectory, stateFileName))
	require.NoError(t, err)
	full := sm.GetFullState()
	assert.Len(t, full.FxData, 1)
	assert.Len(t, full.Audit, len(approval.Roster))
	assert.Len(t, full.Bookings, 1)
	require.NotNil(t, full.Validation)
	assert.False(t, full.Validation.IsValid, "no counterparty data was loaded")
}

func TestOrchestratorSQLiteCollaboratorPersists(t *testing.T) {
	cfg := testConfig(t, config.CollaboratorSQLite)
	ctx := context.Background()

	o, err := NewOrchestrator(ctx, cfg, &config.EnvConfig{Operator: "tester"})
	require.NoError(t, err)

	require.NoError(t, o.Load("", "", true))
	report, err := o.Run(ctx, approval.Roster, nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageComplete, report.Snapshot.CurrentStage)
	require.Len(t, report.Snapshot.ReportingSnapshot, 1)
	assert.Equal(t, "EURUSD", report.Snapshot.ReportingSnapshot[0]["currency_pair"])
	require.NoError(t, o.Close())

	s, err := store.Open(filepath.Join(cfg.Normal.StateDirectory, dbFileName))
	require.NoError(t, err)
	defer s.Close()

	audit, err := s.Audit(ctx)
	require.NoError(t, err)
	assert.Len(t, audit, len(approval.Roster))
	trade, err := s.TradeInstructions(ctx)
	require.NoError(t, err)
	assert.Len(t, trade, 1)
}

func TestHTTPCollaboratorNeedsBaseURL(t *testing.T) {
	cfg := testConfig(t, config.CollaboratorHTTP)
	_, err := NewOrchestrator(context.Background(), cfg, &config.EnvConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HEDGING_API_BASE_URL")
}

func TestWriteReportListsReportingKeysSorted(t *testing.T) {
	report := &RunReport{
		Snapshot: workflow.State{
			SessionID:    "s1",
			CurrentStage: workflow.StageReporting,
			ReportingSnapshot: []api.ReportRecord{
				{"z": 1, "a": "x"},
			},
		},
	}
	buf := &bytes.Buffer{}
	WriteReport(buf, report)
	assert.Contains(t, buf.String(), "Stage: 7 (Reporting)")
	assert.Contains(t, buf.String(), "  a=x z=1\n")
}

func TestVerboseFlagEnablesDebugLogging(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, config.CollaboratorMock)

	run := func(verbose bool) string {
		stderr := &bytes.Buffer{}
		cmd := newRootCommand()
		cmd.SetOut(io.Discard)
		cmd.SetErr(stderr)
		args := []string{"run", "--config", cfgPath}
		if verbose {
			args = append(args, "--verbose")
		}
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute())
		return stderr.String()
	}

	assert.NotContains(t, run(false), "no collaborator call")
	assert.Contains(t, run(true), "no collaborator call")
}
