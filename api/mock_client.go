package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shareclass_hedging/approval"
	"shareclass_hedging/booking"
	"shareclass_hedging/exposure"
	"shareclass_hedging/hedging"
	"shareclass_hedging/logs"
)

var _ Client = (*MockClient)(nil)

// Call is one journal entry of the mock.
type Call struct {
	Op      string
	Payload interface{}
}

// AuditEntry is a recorded approval decision.
type AuditEntry struct {
	ApproverName string
	Status       approval.Status
	Timestamp    time.Time
}

// MockClient simulates the hedging API in memory. Every call waits for the
// configured latency, is journalled and can be made to fail.
type MockClient struct {
	mu       sync.Mutex
	latency  time.Duration
	calls    []Call
	failures map[string]error
	audit    []AuditEntry
	ledger   *booking.Ledger
	now      func() time.Time
}

// NewMockClient creates a mock with the given simulated latency.
func NewMockClient(latency time.Duration) *MockClient {
	return &MockClient{
		latency:  latency,
		calls:    make([]Call, 0),
		failures: make(map[string]error),
		audit:    make([]AuditEntry, 0),
		ledger:   booking.NewLedger(),
		now:      time.Now,
	}
}

// FailOn makes every subsequent call of op return err. A nil err clears it.
func (c *MockClient) FailOn(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, op)
		return
	}
	c.failures[op] = err
}

// Calls returns a copy of the call journal.
func (c *MockClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Ops returns the journalled operation names in call order.
func (c *MockClient) Ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.calls))
	for _, call := range c.calls {
		out = append(out, call.Op)
	}
	return out
}

// Audit returns the recorded approval decisions.
func (c *MockClient) Audit() []AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AuditEntry, len(c.audit))
	copy(out, c.audit)
	return out
}

// Ledger exposes the bookings made through the mock.
func (c *MockClient) Ledger() *booking.Ledger { return c.ledger }

// Reset clears the journal and the audit trail.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = c.calls[:0]
	c.audit = c.audit[:0]
}

// call simulates the round trip and journals it. Failed calls are journalled too.
func (c *MockClient) call(ctx context.Context, op string, payload interface{}) error {
	if c.latency > 0 {
		timer := time.NewTimer(c.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-timer.C:
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Op: op, Payload: payload})
	if err, ok := c.failures[op]; ok {
		logs.Warnf("[MockClient] %s failing on request: %v", op, err)
		return fmt.Errorf("%w: %s: %v", ErrCollaborator, op, err)
	}
	logs.Debugf("[MockClient] %s ok", op)
	return nil
}

func (c *MockClient) PersistCounterpartyData(ctx context.Context, records []exposure.CounterpartyRecord) error {
	return c.call(ctx, OpPersistCounterpartyData, exposure.CloneCounterpartyRecords(records))
}

func (c *MockClient) PersistFxData(ctx context.Context, records []exposure.Record) error {
	return c.call(ctx, OpPersistFxData, exposure.CloneRecords(records))
}

func (c *MockClient) PersistValidation(ctx context.Context, isValid bool) error {
	return c.call(ctx, OpPersistValidation, isValid)
}

func (c *MockClient) PersistCalculatedInstructions(ctx context.Context, instructions []hedging.Instruction) error {
	return c.call(ctx, OpPersistCalculatedInstructions, cloneInstructions(instructions))
}

func (c *MockClient) PersistTradeInstructions(ctx context.Context, instructions []hedging.Instruction) error {
	return c.call(ctx, OpPersistTradeInstructions, cloneInstructions(instructions))
}

func (c *MockClient) RecordApprovalAudit(ctx context.Context, approverName string, status approval.Status, timestamp time.Time) error {
	entry := AuditEntry{ApproverName: approverName, Status: status, Timestamp: timestamp}
	if err := c.call(ctx, OpRecordApprovalAudit, entry); err != nil {
		return err
	}
	c.mu.Lock()
	c.audit = append(c.audit, entry)
	c.mu.Unlock()
	return nil
}

// FetchReportingSnapshot returns the canned mock report followed by the
// ledger summary.
func (c *MockClient) FetchReportingSnapshot(ctx context.Context) ([]ReportRecord, error) {
	if err := c.call(ctx, OpFetchReportingSnapshot, nil); err != nil {
		return nil, err
	}
	records := []ReportRecord{{
		"report":  "Mock reporting data",
		"created": c.now().UTC(),
	}}
	return append(records, ToReportRecords(c.ledger.Snapshot())...), nil
}

func (c *MockClient) BookMovements(ctx context.Context, instructions []hedging.Instruction) error {
	if err := c.call(ctx, OpBookMovements, cloneInstructions(instructions)); err != nil {
		return err
	}
	booked := c.ledger.Book(instructions)
	logs.Infof("[MockClient] Booked %d movements", len(booked))
	return nil
}

func cloneInstructions(in []hedging.Instruction) []hedging.Instruction {
	if in == nil {
		return nil
	}
	out := make([]hedging.Instruction, len(in))
	copy(out, in)
	return out
}
