// state/state.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"shareclass_hedging/api"
	"shareclass_hedging/approval"
	"shareclass_hedging/booking"
	"shareclass_hedging/exposure"
	"shareclass_hedging/hedging"
	"shareclass_hedging/logs"
)

var _ api.Client = (*StateManager)(nil)

// ValidationRecord is the last persisted validation outcome.
type ValidationRecord struct {
	IsValid    bool      `json:"is_valid"`
	RecordedAt time.Time `json:"recorded_at"`
}

// AuditRecord is one persisted approval decision.
type AuditRecord struct {
	ApproverName string          `json:"approver_name"`
	Status       approval.Status `json:"status"`
	Timestamp    time.Time       `json:"timestamp"`
}

// AppState is the top-level structure persisted to the state file.
type AppState struct {
	CounterpartyData       []exposure.CounterpartyRecord `json:"counterparty_data"`
	FxData                 []exposure.Record             `json:"fx_data"`
	Validation             *ValidationRecord             `json:"validation,omitempty"`
	CalculatedInstructions []hedging.Instruction         `json:"calculated_instructions"`
	TradeInstructions      []hedging.Instruction         `json:"trade_instructions"`
	Audit                  []AuditRecord                 `json:"audit"`
	Bookings               []booking.Booking             `json:"bookings"`
}

// StateManager is a collaborator that keeps everything in one JSON file.
// Every write rewrites the file atomically.
type StateManager struct {
	mu       sync.RWMutex
	filePath string
	state    *AppState
	ledger   *booking.Ledger
	now      func() time.Time
}

func emptyState() *AppState {
	return &AppState{
		CounterpartyData: make([]exposure.CounterpartyRecord, 0),
		FxData:           make([]exposure.Record, 0),
		Audit:            make([]AuditRecord, 0),
		Bookings:         make([]booking.Booking, 0),
	}
}

// NewStateManager loads filePath, or creates it with an empty state.
func NewStateManager(filePath string) (*StateManager, error) {
	sm := &StateManager{
		filePath: filePath,
		state:    emptyState(),
		ledger:   booking.NewLedger(),
		now:      time.Now,
	}

	if err := sm.load(); err != nil {
		if os.IsNotExist(err) {
			logs.Infof("[State] State file not found at %s. Starting with a fresh state.", filePath)
			if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
			if err := sm.save(sm.state); err != nil {
				return nil, fmt.Errorf("failed to create initial empty state file: %w", err)
			}
			return sm, nil
		}
		return nil, fmt.Errorf("failed to load initial state: %w", err)
	}

	sm.ledger.Restore(sm.state.Bookings)
	logs.Infof("[State] Loaded state from %s (%d bookings, %d audit records)", filePath, len(sm.state.Bookings), len(sm.state.Audit))
	return sm, nil
}

// save writes st atomically: a temporary file is written first and then
// renamed over the state file, so a crash never leaves a half-written document.
// Callers hold the lock.
func (sm *StateManager) save(st *AppState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state for saving: %w", err)
	}

	tmpFilePath := sm.filePath + ".tmp"
	if err := os.WriteFile(tmpFilePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write to temporary state file: %w", err)
	}
	return os.Rename(tmpFilePath, sm.filePath)
}

func (sm *StateManager) load() error {
	data, err := os.ReadFile(sm.filePath)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, sm.state)
}

// update applies fn to a copy of the document and saves it. The copy only
// replaces the in-memory document once it is on disk, so a failed save is
// reported as a collaborator error and leaves nothing behind.
func (sm *StateManager) update(ctx context.Context, op string, fn func(s *AppState)) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	next := cloneState(sm.state)
	fn(next)
	if err := sm.save(next); err != nil {
		return fmt.Errorf("%w: %s: %v", api.ErrCollaborator, op, err)
	}
	sm.state = next
	logs.Debugf("[State] %s saved", op)
	return nil
}

func cloneState(st *AppState) *AppState {
	out := *st
	out.CounterpartyData = exposure.CloneCounterpartyRecords(st.CounterpartyData)
	out.FxData = exposure.CloneRecords(st.FxData)
	if st.Validation != nil {
		v := *st.Validation
		out.Validation = &v
	}
	out.CalculatedInstructions = cloneInstructions(st.CalculatedInstructions)
	out.TradeInstructions = cloneInstructions(st.TradeInstructions)
	out.Audit = append(make([]AuditRecord, 0, len(st.Audit)), st.Audit...)
	out.Bookings = append(make([]booking.Booking, 0, len(st.Bookings)), st.Bookings...)
	return &out
}

func cloneInstructions(in []hedging.Instruction) []hedging.Instruction {
	if in == nil {
		return nil
	}
	return append(make([]hedging.Instruction, 0, len(in)), in...)
}

// GetFullState returns a copy of the persisted document.
func (sm *StateManager) GetFullState() AppState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return *cloneState(sm.state)
}

// Ledger exposes the restored and newly booked movements.
func (sm *StateManager) Ledger() *booking.Ledger { return sm.ledger }

func (sm *StateManager) PersistCounterpartyData(ctx context.Context, records []exposure.CounterpartyRecord) error {
	return sm.update(ctx, api.OpPersistCounterpartyData, func(s *AppState) {
		s.CounterpartyData = exposure.CloneCounterpartyRecords(records)
	})
}

func (sm *StateManager) PersistFxData(ctx context.Context, records []exposure.Record) error {
	return sm.update(ctx, api.OpPersistFxData, func(s *AppState) {
		s.FxData = exposure.CloneRecords(records)
	})
}

func (sm *StateManager) PersistValidation(ctx context.Context, isValid bool) error {
	return sm.update(ctx, api.OpPersistValidation, func(s *AppState) {
		s.Validation = &ValidationRecord{IsValid: isValid, RecordedAt: sm.now().UTC()}
	})
}

func (sm *StateManager) PersistCalculatedInstructions(ctx context.Context, instructions []hedging.Instruction) error {
	return sm.update(ctx, api.OpPersistCalculatedInstructions, func(s *AppState) {
		s.CalculatedInstructions = append(make([]hedging.Instruction, 0, len(instructions)), instructions...)
	})
}

func (sm *StateManager) PersistTradeInstructions(ctx context.Context, instructions []hedging.Instruction) error {
	return sm.update(ctx, api.OpPersistTradeInstructions, func(s *AppState) {
		s.TradeInstructions = append(make([]hedging.Instruction, 0, len(instructions)), instructions...)
	})
}

func (sm *StateManager) RecordApprovalAudit(ctx context.Context, approverName string, status approval.Status, timestamp time.Time) error {
	return sm.update(ctx, api.OpRecordApprovalAudit, func(s *AppState) {
		s.Audit = append(s.Audit, AuditRecord{ApproverName: approverName, Status: status, Timestamp: timestamp})
	})
}

// FetchReportingSnapshot reports the booked movements per currency pair.
func (sm *StateManager) FetchReportingSnapshot(ctx context.Context) ([]api.ReportRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", api.OpFetchReportingSnapshot, err)
	}
	return api.ToReportRecords(sm.ledger.Snapshot()), nil
}

// BookMovements books into a scratch ledger first. The new bookings reach the
// reporting ledger only after the document holding them has been saved, so a
// retry after a failed save does not book twice.
func (sm *StateManager) BookMovements(ctx context.Context, instructions []hedging.Instruction) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", api.OpBookMovements, err)
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	scratch := booking.NewLedger()
	scratch.SetClock(sm.now)
	booked := scratch.Book(instructions)

	next := cloneState(sm.state)
	next.Bookings = append(next.Bookings, booked...)
	if err := sm.save(next); err != nil {
		return fmt.Errorf("%w: %s: %v", api.ErrCollaborator, api.OpBookMovements, err)
	}
	sm.state = next
	sm.ledger.Restore(booked)
	logs.Infof("[State] Booked %d movements", len(booked))
	return nil
}
