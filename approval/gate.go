// Package approval implements the unanimous sign-off gate guarding trade
// execution.
package approval

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is one approver's decision.
type Status string

const (
	Pending  Status = "Pending"
	Approved Status = "Approved"
	Rejected Status = "Rejected"
)

// Roster is the fixed set of approvers, in display order.
var Roster = []string{
	"Fund Finance Approver Originator",
	"Fund Finance Approver",
	"PM Approver",
	"PAMSA Approver",
}

// ErrUnknownApprover is matched by every UnknownApproverError.
var ErrUnknownApprover = errors.New("unknown approver")

// UnknownApproverError is returned for names outside the roster.
type UnknownApproverError struct {
	Name string
}

func (e *UnknownApproverError) Error() string {
	return fmt.Sprintf("unknown approver %q", e.Name)
}

func (e *UnknownApproverError) Is(target error) bool { return target == ErrUnknownApprover }

// ApproverStatus pairs an approver with their current decision.
type ApproverStatus struct {
	ApproverName string `json:"approver_name"`
	Status       Status `json:"status"`
}

// Decision is the audit record of one approve/reject action.
type Decision struct {
	ApproverName string
	Status       Status
	Timestamp    time.Time
}

// Gate tracks the decisions of the roster.
type Gate struct {
	mu        sync.RWMutex
	approvals []ApproverStatus
	now       func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock sets the timestamp source of decisions.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate creates a gate with every approver Pending.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		approvals: make([]ApproverStatus, len(Roster)),
		now:       time.Now,
	}
	for i, name := range Roster {
		g.approvals[i] = ApproverStatus{ApproverName: name, Status: Pending}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Approve records consent. Re-approving is allowed, as is flipping a rejection.
func (g *Gate) Approve(name string) (Decision, error) {
	return g.set(name, Approved)
}

// Reject withholds consent. It blocks the gate exactly like Pending does.
func (g *Gate) Reject(name string) (Decision, error) {
	return g.set(name, Rejected)
}

func (g *Gate) set(name string, status Status) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.approvals {
		if g.approvals[i].ApproverName == name {
			g.approvals[i].Status = status
			return Decision{ApproverName: name, Status: status, Timestamp: g.now().UTC()}, nil
		}
	}
	return Decision{}, &UnknownApproverError{Name: name}
}

// AllApproved reports whether every approver is Approved.
func (g *Gate) AllApproved() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, a := range g.approvals {
		if a.Status != Approved {
			return false
		}
	}
	return true
}

// Statuses returns a copy of the approvals in roster order.
func (g *Gate) Statuses() []ApproverStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]ApproverStatus, len(g.approvals))
	copy(out, g.approvals)
	return out
}

// StatusOf returns the decision of one approver.
func (g *Gate) StatusOf(name string) (Status, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, a := range g.approvals {
		if a.ApproverName == name {
			return a.Status, nil
		}
	}
	return "", &UnknownApproverError{Name: name}
}
