// orchestrator.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"shareclass_hedging/api"
	"shareclass_hedging/approval"
	"shareclass_hedging/config"
	"shareclass_hedging/exposure"
	"shareclass_hedging/hedging"
	"shareclass_hedging/logs"
	"shareclass_hedging/state"
	"shareclass_hedging/store"
	"shareclass_hedging/workflow"
)

const (
	stateFileName = "hedging_state.json"
	dbFileName    = "hedging.db"
)

// Orchestrator owns the collaborator and drives one workflow session.
type Orchestrator struct {
	cfg      *config.Config
	envCfg   *config.EnvConfig
	client   api.Client
	closeFn  func() error
	workflow *workflow.Workflow
}

// RunReport is what a run leaves behind for the operator.
type RunReport struct {
	Snapshot          workflow.State
	PivotFx           exposure.PivotRow
	PivotCounterparty exposure.PivotRow
	Blocked           bool
}

// NewOrchestrator builds the configured collaborator and starts a workflow on it.
// Construction runs the first stage's action, so the collaborator must be
// reachable by the time this returns.
func NewOrchestrator(ctx context.Context, cfg *config.Config, envCfg *config.EnvConfig) (*Orchestrator, error) {
	// 1. Pick the collaborator backend; closeFn releases whatever it holds open.
	client, closeFn, err := newCollaborator(cfg, envCfg)
	if err != nil {
		return nil, err
	}

	// 2. Start the workflow. Every collaborator call it makes is bounded by
	// collaborator_timeout_seconds.
	o := &Orchestrator{cfg: cfg, envCfg: envCfg, client: client, closeFn: closeFn}
	timeout := time.Duration(cfg.CollaboratorTimeoutSeconds) * time.Second
	wf, err := workflow.New(ctx, client, workflow.WithCallTimeout(timeout))
	if err != nil {
		o.Close()
		return nil, fmt.Errorf("failed to start workflow: %w", err)
	}
	o.workflow = wf

	logs.Infof("[Orchestrator] Operator %s opened session %s on the %s collaborator",
		envCfg.Operator, wf.Snapshot().SessionID, cfg.Collaborator)
	return o, nil
}

// newCollaborator maps the configured backend name to an api.Client:
//   - mock:   in-memory, simulated latency, nothing survives the process
//   - file:   one JSON document under normal_config.state_directory
//   - sqlite: hedging.db under normal_config.state_directory
//   - http:   the remote hedging API at HEDGING_API_BASE_URL
func newCollaborator(cfg *config.Config, envCfg *config.EnvConfig) (api.Client, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Collaborator {
	case config.CollaboratorMock:
		latency := time.Duration(cfg.Mock.LatencyMS) * time.Millisecond
		logs.Warnf("<<<<<<<<<< WARNING: Running against the mock collaborator >>>>>>>>>>")
		return api.NewMockClient(latency), noop, nil

	case config.CollaboratorFile:
		path := filepath.Join(cfg.Normal.StateDirectory, stateFileName)
		sm, err := state.NewStateManager(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize state manager: %w", err)
		}
		logs.Infof("State manager initialized successfully, state will be persisted to: %s", path)
		return sm, noop, nil

	case config.CollaboratorSQLite:
		if err := os.MkdirAll(cfg.Normal.StateDirectory, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		path := filepath.Join(cfg.Normal.StateDirectory, dbFileName)
		s, err := store.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open store: %w", err)
		}
		logs.Infof("SQLite store opened at %s", path)
		return s, s.Close, nil

	case config.CollaboratorHTTP:
		if envCfg.APIBaseURL == "" {
			return nil, nil, fmt.Errorf("HEDGING_API_BASE_URL must be set for the http collaborator")
		}
		return api.NewHTTPClient(envCfg.APIBaseURL, envCfg.APIToken, cfg.Normal.HTTPTimeoutSeconds), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown collaborator %q", cfg.Collaborator)
}

// Workflow exposes the running workflow.
func (o *Orchestrator) Workflow() *workflow.Workflow { return o.workflow }

// Load ingests the given CSV files. With sample set and no FX file, the
// built-in sample exposures are used instead.
func (o *Orchestrator) Load(fxPath, counterpartyPath string, sample bool) error {
	if counterpartyPath != "" {
		if err := loadFile(counterpartyPath, o.workflow.LoadCounterpartyCSV); err != nil {
			return err
		}
	}
	switch {
	case fxPath != "":
		return loadFile(fxPath, o.workflow.LoadFxCSV)
	case sample:
		o.workflow.SetFxData(hedging.SampleExposures())
	}
	return nil
}

func loadFile(path string, load func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if err := load(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Run advances the workflow until it completes or the approval gate holds it.
// The decisions are applied once the approvals stage is reached.
func (o *Orchestrator) Run(ctx context.Context, approve, reject []string) (*RunReport, error) {
	wf := o.workflow
	decided := false

	for !wf.IsLast() {
		// 1. Stop early on SIGINT/SIGTERM; the current stage is left as is.
		if err := ctx.Err(); err != nil {
			return o.report(false), err
		}

		// 2. Decisions from the command line are recorded once, on reaching the gate.
		if wf.Stage() == workflow.StageApprovals && !decided {
			decided = true
			if err := o.decide(ctx, approve, reject); err != nil {
				return o.report(false), err
			}
		}

		// 3. A closed gate is not an error: report who is outstanding and return.
		if !wf.CanAdvance() {
			pending := pendingApprovers(wf.Approvals())
			logs.Warnf("[Orchestrator] Workflow held at %s; outstanding: %s", wf.Stage(), strings.Join(pending, ", "))
			return o.report(true), nil
		}
		// 4. Enter the next stage. A collaborator failure ends the run with the
		// stage already moved.
		if err := wf.Advance(ctx); err != nil {
			return o.report(false), err
		}
	}

	logs.Infof("[Orchestrator] Workflow complete")
	return o.report(false), nil
}

func (o *Orchestrator) decide(ctx context.Context, approve, reject []string) error {
	for _, name := range approve {
		if err := o.workflow.Approve(ctx, name); err != nil {
			return fmt.Errorf("approve %q: %w", name, err)
		}
	}
	for _, name := range reject {
		if err := o.workflow.Reject(ctx, name); err != nil {
			return fmt.Errorf("reject %q: %w", name, err)
		}
	}
	return nil
}

func pendingApprovers(statuses []approval.ApproverStatus) []string {
	var out []string
	for _, s := range statuses {
		if s.Status != approval.Approved {
			out = append(out, fmt.Sprintf("%s (%s)", s.ApproverName, s.Status))
		}
	}
	return out
}

func (o *Orchestrator) report(blocked bool) *RunReport {
	return &RunReport{
		Snapshot:          o.workflow.Snapshot(),
		PivotFx:           o.workflow.PivotedFx(),
		PivotCounterparty: o.workflow.PivotedCounterparty(),
		Blocked:           blocked,
	}
}

// Close releases the collaborator.
func (o *Orchestrator) Close() error {
	if o.closeFn == nil {
		return nil
	}
	return o.closeFn()
}

// WriteReport renders r for the terminal: session and stage, both pivots,
// approver statuses, the execution confirmation and one line per reporting
// record with its keys sorted.
func WriteReport(w io.Writer, r *RunReport) {
	s := r.Snapshot
	fmt.Fprintf(w, "Session: %s\n", s.SessionID)
	fmt.Fprintf(w, "Stage: %d (%s)\n", int(s.CurrentStage), s.CurrentStage)

	fmt.Fprintln(w, "\nCounterparty exposure:")
	fmt.Fprint(w, exposure.FormatPivot(r.PivotCounterparty))
	fmt.Fprintln(w, "\nFX exposure:")
	fmt.Fprint(w, exposure.FormatPivot(r.PivotFx))

	fmt.Fprintln(w, "\nApprovals:")
	for _, a := range s.Approvals {
		fmt.Fprintf(w, "  %s: %s\n", a.ApproverName, a.Status)
	}
	if r.Blocked {
		fmt.Fprintln(w, "Waiting for approvals.")
	}

	if s.ExecutionResult != "" {
		fmt.Fprintf(w, "\nExecution: %s\n", s.ExecutionResult)
	}

	if len(s.ReportingSnapshot) > 0 {
		fmt.Fprintln(w, "\nReporting:")
		for _, rec := range s.ReportingSnapshot {
			keys := make([]string, 0, len(rec))
			for k := range rec {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s=%v", k, rec[k]))
			}
			fmt.Fprintf(w, "  %s\n", strings.Join(parts, " "))
		}
	}
}
