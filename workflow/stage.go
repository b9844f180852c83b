package workflow

import "fmt"

// Stage is the index of a workflow step.
type Stage int

const (
	StageCounterpartyData Stage = iota
	StageFxData
	StageValidate
	StageCalculate
	StageTradeInstructions
	StageApprovals
	StageExecute
	StageReporting
	StageComplete
)

// FirstStage and LastStage bound CurrentStage.
const (
	FirstStage = StageCounterpartyData
	LastStage  = StageComplete
)

var stageTitles = [...]string{
	StageCounterpartyData:  "BNY Data",
	StageFxData:            "Record FX Data",
	StageValidate:          "Validate Data",
	StageCalculate:         "Calculate Hedge Requirements",
	StageTradeInstructions: "Generate Trade Instructions",
	StageApprovals:         "Approvals",
	StageExecute:           "Execute Trades",
	StageReporting:         "Reporting",
	StageComplete:          "Complete",
}

// String returns the stage title.
func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageTitles[s]
}

// Valid reports whether s is within [FirstStage, LastStage].
func (s Stage) Valid() bool {
	return s >= FirstStage && s <= LastStage
}

// Gated reports whether leaving s forward needs unanimous approval.
func (s Stage) Gated() bool {
	return s == StageApprovals
}

// Stages lists every stage in order.
func Stages() []Stage {
	out := make([]Stage, 0, len(stageTitles))
	for s := FirstStage; s <= LastStage; s++ {
		out = append(out, s)
	}
	return out
}
