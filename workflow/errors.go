package workflow

import "fmt"

// StageError wraps a collaborator failure raised while running a stage
// action or an approval audit write.
type StageError struct {
	Stage Stage
	Op    string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %s: %v", int(e.Stage), e.Stage, e.Op, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
