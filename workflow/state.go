package workflow

import (
	"shareclass_hedging/api"
	"shareclass_hedging/approval"
	"shareclass_hedging/exposure"
	"shareclass_hedging/hedging"
)

// State is the data of one workflow instance.
//
// Instructions and ReportingSnapshot are nil until the stage producing them
// has run; moving backward never clears them. ExecutionResult is empty until
// the execute stage has confirmed an instruction.
type State struct {
	SessionID         string
	CurrentStage      Stage
	FxData            []exposure.Record
	CounterpartyData  []exposure.CounterpartyRecord
	Instructions      []hedging.Instruction
	ExecutionResult   string
	ReportingSnapshot []api.ReportRecord
	Approvals         []approval.ApproverStatus
}

// Clone returns a deep copy. Report records are copied one level deep.
func (s State) Clone() State {
	out := s
	out.FxData = exposure.CloneRecords(s.FxData)
	out.CounterpartyData = exposure.CloneCounterpartyRecords(s.CounterpartyData)
	if s.Instructions != nil {
		out.Instructions = make([]hedging.Instruction, len(s.Instructions))
		copy(out.Instructions, s.Instructions)
	}
	if s.ReportingSnapshot != nil {
		out.ReportingSnapshot = make([]api.ReportRecord, len(s.ReportingSnapshot))
		for i, r := range s.ReportingSnapshot {
			cp := make(api.ReportRecord, len(r))
			for k, v := range r {
				cp[k] = v
			}
			out.ReportingSnapshot[i] = cp
		}
	}
	if s.Approvals != nil {
		out.Approvals = make([]approval.ApproverStatus, len(s.Approvals))
		copy(out.Approvals, s.Approvals)
	}
	return out
}
