// Package workflow sequences the share class hedging run: nine fixed stages,
// each with a one-shot side effect on entry, and an approval gate that keeps
// the run from reaching execution until every approver has signed off.
//
// A Workflow is a single-operator instance. Mutating calls are serialised;
// read accessors never wait for an in-flight collaborator call.
package workflow

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"shareclass_hedging/api"
	"shareclass_hedging/approval"
	"shareclass_hedging/exposure"
	"shareclass_hedging/hedging"
	"shareclass_hedging/logs"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultCallTimeout bounds each collaborator call.
const DefaultCallTimeout = 30 * time.Second

// Workflow is the step sequencer and stage action executor.
type Workflow struct {
	// opMu serialises Advance, Retreat, Approve, Reject and the loaders.
	opMu sync.Mutex
	// mu guards state and the pivots; never held across a collaborator call.
	mu sync.RWMutex

	state             State
	pivotFx           exposure.PivotRow
	pivotCounterparty exposure.PivotRow

	client      api.Client
	calc        Calculator
	gate        *approval.Gate
	callTimeout time.Duration
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithCalculator replaces the default hedge engine.
func WithCalculator(calc Calculator) Option {
	return func(w *Workflow) { w.calc = calc }
}

// WithGate replaces the default approval gate.
func WithGate(gate *approval.Gate) Option {
	return func(w *Workflow) { w.gate = gate }
}

// WithCallTimeout sets the per-call collaborator timeout. Zero disables it.
func WithCallTimeout(d time.Duration) Option {
	return func(w *Workflow) { w.callTimeout = d }
}

// WithSessionID fixes the session identifier.
func WithSessionID(id string) Option {
	return func(w *Workflow) { w.state.SessionID = id }
}

// New creates a workflow at the first stage and runs that stage's action once.
// The returned workflow is usable even when the initial action fails.
func New(ctx context.Context, client api.Client, opts ...Option) (*Workflow, error) {
	w := &Workflow{
		state: State{
			CurrentStage:     FirstStage,
			FxData:           make([]exposure.Record, 0),
			CounterpartyData: make([]exposure.CounterpartyRecord, 0),
		},
		pivotFx:           exposure.PivotFx(nil),
		pivotCounterparty: exposure.PivotCounterparty(nil),
		client:            client,
		callTimeout:       DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.calc == nil {
		w.calc = hedging.NewEngine()
	}
	if w.gate == nil {
		w.gate = approval.NewGate()
	}
	if w.state.SessionID == "" {
		w.state.SessionID = uuid.NewString()
	}

	logs.WithFields(logrus.Fields{
		"session": w.state.SessionID,
		"stage":   int(FirstStage),
	}).Infof("[Workflow] Session started at %s", FirstStage)

	w.opMu.Lock()
	defer w.opMu.Unlock()
	return w, w.enter(ctx, FirstStage)
}

// Advance moves one stage forward and runs the new stage's action. It does
// nothing at the last stage, or at the approvals stage while the gate is
// closed. A collaborator failure is returned as *StageError; the stage has
// moved regardless.
func (w *Workflow) Advance(ctx context.Context) error {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	current := w.Stage()
	if current == LastStage {
		logs.Debugf("[Workflow] Advance ignored: already at final stage")
		return nil
	}
	if current.Gated() && !w.gate.AllApproved() {
		logs.Infof("[Workflow] Advance blocked at %s: waiting for all approvers", current)
		return nil
	}
	return w.enter(ctx, current+1)
}

// Retreat moves one stage back and re-runs that stage's action against the
// current data. It does nothing at the first stage.
func (w *Workflow) Retreat(ctx context.Context) error {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	current := w.Stage()
	if current == FirstStage {
		logs.Debugf("[Workflow] Retreat ignored: already at first stage")
		return nil
	}
	return w.enter(ctx, current-1)
}

// enter runs the action of stage. Callers hold opMu.
func (w *Workflow) enter(ctx context.Context, stage Stage) error {
	// 1. Plan against the current state and commit the result at once, so
	// readers see the new stage and any computed instructions before the
	// collaborator has answered.
	w.mu.Lock()
	next, calls := PlanStage(stage, w.state, w.calc)
	w.state = next
	w.mu.Unlock()

	logs.Infof("[Workflow] Entered stage %d (%s)", int(stage), stage)
	if len(calls) == 0 {
		logs.Debugf("[Workflow] Stage %s: no collaborator call", stage)
		return nil
	}
	// 2. Send the calls in order. The first failure stops the stage; calls
	// after it are not sent.
	for _, call := range calls {
		if err := w.invoke(ctx, stage, call); err != nil {
			return err
		}
	}
	return nil
}

// invoke sends one call under the per-call timeout and folds its effect back
// into the state. Failures come back as *StageError.
func (w *Workflow) invoke(ctx context.Context, stage Stage, call Call) error {
	callCtx := ctx
	if w.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, w.callTimeout)
		defer cancel()
	}

	logs.Infof("[Workflow] %s", call.Description())
	effect, err := call.Invoke(callCtx, w.client)
	if err != nil {
		logs.Errorf("[Workflow] %s failed at stage %s: %v", call.Op(), stage, err)
		return &StageError{Stage: stage, Op: call.Op(), Err: err}
	}
	if effect != nil {
		w.mu.Lock()
		effect(&w.state)
		w.mu.Unlock()
	}
	return nil
}

// LoadFxCSV replaces the FX dataset with the records parsed from r and
// rebuilds its pivot. The previous dataset is dropped before parsing, so a
// *exposure.FormatError leaves the dataset empty.
func (w *Workflow) LoadFxCSV(r io.Reader) error {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	w.mu.Lock()
	w.state.FxData = make([]exposure.Record, 0)
	w.pivotFx = exposure.PivotFx(nil)
	w.mu.Unlock()

	records, err := exposure.ParseFx(r)
	if err != nil {
		logs.Errorf("[Ingest] FX data rejected: %v", err)
		return fmt.Errorf("load fx data: %w", err)
	}

	pivot := exposure.PivotFx(records)
	w.mu.Lock()
	w.state.FxData = records
	w.pivotFx = pivot
	w.mu.Unlock()

	logs.Infof("[Ingest] Loaded %d FX exposure records into %d pivot columns", len(records), pivot.Len())
	return nil
}

// LoadCounterpartyCSV replaces the counterparty dataset; see LoadFxCSV.
func (w *Workflow) LoadCounterpartyCSV(r io.Reader) error {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	w.mu.Lock()
	w.state.CounterpartyData = make([]exposure.CounterpartyRecord, 0)
	w.pivotCounterparty = exposure.PivotCounterparty(nil)
	w.mu.Unlock()

	records, err := exposure.ParseCounterparty(r)
	if err != nil {
		logs.Errorf("[Ingest] Counterparty data rejected: %v", err)
		return fmt.Errorf("load counterparty data: %w", err)
	}

	pivot := exposure.PivotCounterparty(records)
	w.mu.Lock()
	w.state.CounterpartyData = records
	w.pivotCounterparty = pivot
	w.mu.Unlock()

	logs.Infof("[Ingest] Loaded %d counterparty exposure records into %d pivot columns", len(records), pivot.Len())
	return nil
}

// SetFxData replaces the FX dataset with records already in memory.
func (w *Workflow) SetFxData(records []exposure.Record) {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	records = exposure.CloneRecords(records)
	if records == nil {
		records = make([]exposure.Record, 0)
	}
	pivot := exposure.PivotFx(records)
	w.mu.Lock()
	w.state.FxData = records
	w.pivotFx = pivot
	w.mu.Unlock()
	logs.Infof("[Ingest] Set %d FX exposure records", len(records))
}

// Approve records consent of name and writes the audit record. The status
// change is visible immediately and stays even if the audit write fails.
func (w *Workflow) Approve(ctx context.Context, name string) error {
	return w.decide(ctx, name, w.gate.Approve)
}

// Reject withholds consent of name and writes the audit record.
func (w *Workflow) Reject(ctx context.Context, name string) error {
	return w.decide(ctx, name, w.gate.Reject)
}

func (w *Workflow) decide(ctx context.Context, name string, apply func(string) (approval.Decision, error)) error {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	// 1. The gate changes first; Approvals() reflects it from here on.
	decision, err := apply(name)
	if err != nil {
		logs.Warnf("[Approval] %v", err)
		return err
	}
	logs.Infof("[Approval] %s -> %s", decision.ApproverName, decision.Status)

	// 2. Then the audit trail. Its failure does not undo the decision.
	return w.invoke(ctx, w.Stage(), &RecordAuditCall{
		ApproverName: decision.ApproverName,
		Status:       decision.Status,
		Timestamp:    decision.Timestamp,
	})
}

// Stage returns the current stage.
func (w *Workflow) Stage() Stage {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.CurrentStage
}

// IsFirst reports whether the workflow is at the first stage.
func (w *Workflow) IsFirst() bool { return w.Stage() == FirstStage }

// IsLast reports whether the workflow is at the final stage.
func (w *Workflow) IsLast() bool { return w.Stage() == LastStage }

// AllApproved reports whether the approval gate is open.
func (w *Workflow) AllApproved() bool { return w.gate.AllApproved() }

// CanAdvance reports whether Advance would move the stage.
func (w *Workflow) CanAdvance() bool {
	s := w.Stage()
	if s == LastStage {
		return false
	}
	return !s.Gated() || w.gate.AllApproved()
}

// Approvals returns the approver statuses in roster order.
func (w *Workflow) Approvals() []approval.ApproverStatus { return w.gate.Statuses() }

// PivotedFx returns the FX summary row.
func (w *Workflow) PivotedFx() exposure.PivotRow {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pivotFx
}

// PivotedCounterparty returns the counterparty summary row.
func (w *Workflow) PivotedCounterparty() exposure.PivotRow {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pivotCounterparty
}

// Snapshot returns a deep copy of the workflow state.
func (w *Workflow) Snapshot() State {
	w.mu.RLock()
	st := w.state.Clone()
	w.mu.RUnlock()
	st.Approvals = w.gate.Statuses()
	return st
}
