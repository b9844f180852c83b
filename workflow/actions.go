package workflow

import (
	"context"
	"fmt"
	"time"

	"shareclass_hedging/api"
	"shareclass_hedging/approval"
	"shareclass_hedging/exposure"
	"shareclass_hedging/hedging"
)

// Calculator is the hedge engine as seen by the stage planner.
type Calculator interface {
	Calculate(exposures []exposure.Record) []hedging.Instruction
	Execute(instruction hedging.Instruction) string
}

// Effect folds the result of a collaborator call back into the state.
type Effect func(*State)

// Call is one collaborator request emitted by a stage action.
type Call interface {
	Op() string
	Description() string
	Invoke(ctx context.Context, client api.Client) (Effect, error)
}

// PersistCounterpartyCall stores the counterparty dataset.
type PersistCounterpartyCall struct {
	Records []exposure.CounterpartyRecord
}

func (c *PersistCounterpartyCall) Op() string { return api.OpPersistCounterpartyData }

func (c *PersistCounterpartyCall) Description() string {
	return fmt.Sprintf("Persist %d counterparty exposure records", len(c.Records))
}

func (c *PersistCounterpartyCall) Invoke(ctx context.Context, client api.Client) (Effect, error) {
	return nil, client.PersistCounterpartyData(ctx, c.Records)
}

// PersistFxCall stores the FX dataset.
type PersistFxCall struct {
	Records []exposure.Record
}

func (c *PersistFxCall) Op() string { return api.OpPersistFxData }

func (c *PersistFxCall) Description() string {
	return fmt.Sprintf("Persist %d FX exposure records", len(c.Records))
}

func (c *PersistFxCall) Invoke(ctx context.Context, client api.Client) (Effect, error) {
	return nil, client.PersistFxData(ctx, c.Records)
}

// PersistValidationCall stores the validation flag.
type PersistValidationCall struct {
	IsValid bool
}

func (c *PersistValidationCall) Op() string { return api.OpPersistValidation }

func (c *PersistValidationCall) Description() string {
	return fmt.Sprintf("Persist validation result: valid=%t", c.IsValid)
}

func (c *PersistValidationCall) Invoke(ctx context.Context, client api.Client) (Effect, error) {
	return nil, client.PersistValidation(ctx, c.IsValid)
}

// PersistCalculationCall stores freshly calculated instructions.
type PersistCalculationCall struct {
	Instructions []hedging.Instruction
}

func (c *PersistCalculationCall) Op() string { return api.OpPersistCalculatedInstructions }

func (c *PersistCalculationCall) Description() string {
	return fmt.Sprintf("Persist %d calculated hedge instructions", len(c.Instructions))
}

func (c *PersistCalculationCall) Invoke(ctx context.Context, client api.Client) (Effect, error) {
	return nil, client.PersistCalculatedInstructions(ctx, c.Instructions)
}

// PersistTradeInstructionsCall marks the instructions ready to trade.
type PersistTradeInstructionsCall struct {
	Instructions []hedging.Instruction
}

func (c *PersistTradeInstructionsCall) Op() string { return api.OpPersistTradeInstructions }

func (c *PersistTradeInstructionsCall) Description() string {
	return fmt.Sprintf("Persist %d trade instructions as ready", len(c.Instructions))
}

func (c *PersistTradeInstructionsCall) Invoke(ctx context.Context, client api.Client) (Effect, error) {
	return nil, client.PersistTradeInstructions(ctx, c.Instructions)
}

// BookMovementsCall books every executed instruction.
type BookMovementsCall struct {
	Instructions []hedging.Instruction
}

func (c *BookMovementsCall) Op() string { return api.OpBookMovements }

func (c *BookMovementsCall) Description() string {
	return fmt.Sprintf("Book %d movements", len(c.Instructions))
}

func (c *BookMovementsCall) Invoke(ctx context.Context, client api.Client) (Effect, error) {
	return nil, client.BookMovements(ctx, c.Instructions)
}

// FetchReportingCall loads the reporting snapshot into the state.
type FetchReportingCall struct{}

func (c *FetchReportingCall) Op() string { return api.OpFetchReportingSnapshot }

func (c *FetchReportingCall) Description() string { return "Fetch reporting snapshot" }

func (c *FetchReportingCall) Invoke(ctx context.Context, client api.Client) (Effect, error) {
	records, err := client.FetchReportingSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []api.ReportRecord{}
	}
	return func(s *State) { s.ReportingSnapshot = records }, nil
}

// RecordAuditCall appends an approval decision to the audit trail.
type RecordAuditCall struct {
	ApproverName string
	Status       approval.Status
	Timestamp    time.Time
}

func (c *RecordAuditCall) Op() string { return api.OpRecordApprovalAudit }

func (c *RecordAuditCall) Description() string {
	return fmt.Sprintf("Audit %s by %s at %s", c.Status, c.ApproverName, c.Timestamp.Format(time.RFC3339))
}

func (c *RecordAuditCall) Invoke(ctx context.Context, client api.Client) (Effect, error) {
	return nil, client.RecordApprovalAudit(ctx, c.ApproverName, c.Status, c.Timestamp)
}

// PlanStage is the action of entering stage with state st. It is pure: the
// returned state carries every in-memory change and the calls list what must
// be sent to the collaborator, in order. Forward and backward entry use the
// same plan. Unmet preconditions produce no call.
func PlanStage(stage Stage, st State, calc Calculator) (State, []Call) {
	next := st.Clone()
	next.CurrentStage = stage
	var calls []Call

	switch stage {
	case StageCounterpartyData:
		if len(next.CounterpartyData) > 0 {
			calls = append(calls, &PersistCounterpartyCall{Records: next.CounterpartyData})
		}
	case StageFxData:
		if len(next.FxData) > 0 {
			calls = append(calls, &PersistFxCall{Records: next.FxData})
		}
	case StageValidate:
		isValid := len(next.FxData) > 0 && len(next.CounterpartyData) > 0
		calls = append(calls, &PersistValidationCall{IsValid: isValid})
	case StageCalculate:
		next.Instructions = calc.Calculate(next.FxData)
		if next.Instructions != nil {
			calls = append(calls, &PersistCalculationCall{Instructions: next.Instructions})
		}
	case StageTradeInstructions:
		if next.Instructions != nil {
			calls = append(calls, &PersistTradeInstructionsCall{Instructions: next.Instructions})
		}
	case StageExecute:
		if len(next.Instructions) > 0 {
			next.ExecutionResult = calc.Execute(next.Instructions[0])
			calls = append(calls, &BookMovementsCall{Instructions: next.Instructions})
		}
	case StageReporting:
		calls = append(calls, &FetchReportingCall{})
	case StageApprovals, StageComplete:
	}

	return next, calls
}
