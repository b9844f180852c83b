// Package api defines the persistence/execution collaborator the hedging
// workflow talks to, with an in-memory mock and an HTTP implementation.
package api

import (
	"context"
	"errors"
	"time"

	"shareclass_hedging/approval"
	"shareclass_hedging/exposure"
	"shareclass_hedging/hedging"
)

// ErrCollaborator marks a failure reported by the collaborator itself.
var ErrCollaborator = errors.New("collaborator call failed")

// ReportRecord is an opaque reporting row.
type ReportRecord map[string]interface{}

// Operation names, used for logging and the mock call journal.
const (
	OpPersistCounterpartyData       = "PersistCounterpartyData"
	OpPersistFxData                 = "PersistFxData"
	OpPersistValidation             = "PersistValidation"
	OpPersistCalculatedInstructions = "PersistCalculatedInstructions"
	OpPersistTradeInstructions      = "PersistTradeInstructions"
	OpRecordApprovalAudit           = "RecordApprovalAudit"
	OpFetchReportingSnapshot        = "FetchReportingSnapshot"
	OpBookMovements                 = "BookMovements"
)

// Client is everything the workflow needs from the outside world.
type Client interface {
	// PersistCounterpartyData stores the custodian exposure dataset.
	PersistCounterpartyData(ctx context.Context, records []exposure.CounterpartyRecord) error

	// PersistFxData stores the FX exposure dataset.
	PersistFxData(ctx context.Context, records []exposure.Record) error

	// PersistValidation stores the outcome of the validation stage.
	PersistValidation(ctx context.Context, isValid bool) error

	// PersistCalculatedInstructions stores freshly calculated hedge instructions.
	PersistCalculatedInstructions(ctx context.Context, instructions []hedging.Instruction) error

	// PersistTradeInstructions marks the instructions as ready to trade.
	PersistTradeInstructions(ctx context.Context, instructions []hedging.Instruction) error

	// RecordApprovalAudit appends one approve/reject decision to the audit trail.
	RecordApprovalAudit(ctx context.Context, approverName string, status approval.Status, timestamp time.Time) error

	// FetchReportingSnapshot returns the current reporting data.
	FetchReportingSnapshot(ctx context.Context) ([]ReportRecord, error)

	// BookMovements books the executed instructions.
	BookMovements(ctx context.Context, instructions []hedging.Instruction) error
}

// ToReportRecords converts plain maps into ReportRecords.
func ToReportRecords(rows []map[string]interface{}) []ReportRecord {
	out := make([]ReportRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, ReportRecord(r))
	}
	return out
}
