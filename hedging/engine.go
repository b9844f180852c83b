// Package hedging turns exposures into forward hedge instructions.
package hedging

import (
	"fmt"
	"time"

	"shareclass_hedging/exposure"
	"shareclass_hedging/utils"

	"github.com/shopspring/decimal"
)

// InstructionType is the kind of hedge trade.
type InstructionType string

const Forward InstructionType = "Forward"

// MaturityMonths is the tenor of every generated forward.
const MaturityMonths = 3

// Instruction is a forward order neutralising one exposure.
type Instruction struct {
	Type         InstructionType `json:"type"`
	CurrencyPair string          `json:"currency_pair"`
	Amount       decimal.Decimal `json:"amount"`
	Maturity     time.Time       `json:"maturity"`
}

// Engine computes and confirms hedge instructions.
type Engine struct {
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock fixes the run date source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine using the wall clock unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calculate returns one Forward instruction per exposure, in input order,
// maturing MaturityMonths calendar months after today.
func (e *Engine) Calculate(exposures []exposure.Record) []Instruction {
	maturity := AddMonthsClamped(truncateToDay(e.now()), MaturityMonths)
	out := make([]Instruction, 0, len(exposures))
	for _, x := range exposures {
		out = append(out, Instruction{
			Type:         Forward,
			CurrencyPair: x.CurrencyPair,
			Amount:       x.Amount,
			Maturity:     maturity,
		})
	}
	return out
}

// Execute renders the execution confirmation for one instruction.
func (e *Engine) Execute(in Instruction) string {
	return fmt.Sprintf("Executed %s %s %s maturing %s",
		in.Type, in.CurrencyPair, utils.FormatThousands(in.Amount, 0), in.Maturity.Format("2006-01-02"))
}

// SampleExposures is the built-in demonstration dataset.
func SampleExposures() []exposure.Record {
	return []exposure.Record{
		{
			ShareClassID:   "SC01",
			ShareClassName: "Fund A",
			CurrencyPair:   "EURUSD",
			Amount:         decimal.NewFromInt(1_000_000),
		},
	}
}

// AddMonthsClamped adds n calendar months keeping the day of month, or the
// last day of the target month when that day does not exist there.
// time.AddDate would roll Nov 30 + 3 months over into March instead.
func AddMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
