package hedging

import (
	"testing"
	"time"

	"shareclass_hedging/exposure"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 14, 30, 0, 0, time.UTC) }
}

func TestCalculatePreservesOrderAndFields(t *testing.T) {
	engine := NewEngine(WithClock(fixedClock(2026, time.October, 18)))
	in := []exposure.Record{
		{ShareClassID: "SC01", ShareClassName: "Fund A", CurrencyPair: "EURUSD", Amount: decimal.NewFromInt(1_000_000)},
		{ShareClassID: "SC02", ShareClassName: "Fund B", CurrencyPair: "GBPUSD", Amount: decimal.RequireFromString("-2500.50")},
		{ShareClassID: "SC01", ShareClassName: "Fund A", CurrencyPair: "EURUSD", Amount: decimal.NewFromInt(7)},
	}

	out := engine.Calculate(in)
	require.Len(t, out, len(in))

	want := time.Date(2027, time.January, 18, 0, 0, 0, 0, time.UTC)
	for i, instr := range out {
		assert.Equal(t, Forward, instr.Type)
		assert.Equal(t, in[i].CurrencyPair, instr.CurrencyPair)
		assert.True(t, in[i].Amount.Equal(instr.Amount))
		assert.True(t, want.Equal(instr.Maturity), "maturity %s", instr.Maturity)
	}
}

func TestCalculateEmpty(t *testing.T) {
	out := NewEngine().Calculate(nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestCalculateClampsEndOfMonth(t *testing.T) {
	engine := NewEngine(WithClock(fixedClock(2026, time.November, 30)))
	out := engine.Calculate(SampleExposures())
	require.Len(t, out, 1)
	assert.Equal(t, "2027-02-28", out[0].Maturity.Format("2006-01-02"))
}

func TestAddMonthsClamped(t *testing.T) {
	tests := []struct {
		from string
		n    int
		want string
	}{
		{"2026-01-15", 3, "2026-04-15"},
		{"2026-11-30", 3, "2027-02-28"},
		{"2027-11-30", 3, "2028-02-29"},
		{"2026-05-31", 3, "2026-08-31"},
		{"2026-03-31", 3, "2026-06-30"},
		{"2026-12-31", 3, "2027-03-31"},
		{"2026-10-31", 1, "2026-11-30"},
	}
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			from, err := time.Parse("2006-01-02", tt.from)
			require.NoError(t, err)
			assert.Equal(t, tt.want, AddMonthsClamped(from, tt.n).Format("2006-01-02"))
		})
	}
}

func TestExecuteConfirmation(t *testing.T) {
	engine := NewEngine(WithClock(fixedClock(2026, time.October, 18)))
	instr := engine.Calculate(SampleExposures())[0]

	msg := engine.Execute(instr)
	assert.Equal(t, "Executed Forward EURUSD 1,000,000 maturing 2027-01-18", msg)
	assert.Equal(t, msg, engine.Execute(instr), "Execute is idempotent")
}

func TestExecuteRoundsToWholeUnits(t *testing.T) {
	engine := NewEngine()
	instr := Instruction{
		Type:         Forward,
		CurrencyPair: "USDJPY",
		Amount:       decimal.RequireFromString("1234567.5"),
		Maturity:     time.Date(2027, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "Executed Forward USDJPY 1,234,568 maturing 2027-03-01", engine.Execute(instr))
}
