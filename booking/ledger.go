// Package booking keeps the ledger of booked hedge movements.
package booking

import (
	"sync"
	"time"

	"shareclass_hedging/hedging"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Booking is one booked forward movement.
type Booking struct {
	ID           string          `json:"id"`
	BatchID      string          `json:"batch_id"`
	CurrencyPair string          `json:"currency_pair"`
	Amount       decimal.Decimal `json:"amount"`
	Maturity     time.Time       `json:"maturity"`
	BookedAt     time.Time       `json:"booked_at"`
}

// PairTotal is the booked notional of one currency pair.
type PairTotal struct {
	CurrencyPair string
	Bookings     int
	Notional     decimal.Decimal
}

// Ledger accumulates bookings. Safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	bookings []Booking
	pairs    []string
	totals   map[string]*PairTotal
	now      func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		bookings: make([]Booking, 0),
		totals:   make(map[string]*PairTotal),
		now:      time.Now,
	}
}

// SetClock overrides the booking timestamp source.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Book records one movement per instruction under a shared batch ID and
// returns the new bookings.
func (l *Ledger) Book(instructions []hedging.Instruction) []Booking {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch := uuid.NewString()
	at := l.now().UTC()
	out := make([]Booking, 0, len(instructions))
	for _, in := range instructions {
		b := Booking{
			ID:           uuid.NewString(),
			BatchID:      batch,
			CurrencyPair: in.CurrencyPair,
			Amount:       in.Amount,
			Maturity:     in.Maturity,
			BookedAt:     at,
		}
		l.bookings = append(l.bookings, b)
		l.accumulate(b)
		out = append(out, b)
	}
	return out
}

// Restore replays previously persisted bookings into an empty ledger.
func (l *Ledger) Restore(bookings []Booking) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range bookings {
		l.bookings = append(l.bookings, b)
		l.accumulate(b)
	}
}

func (l *Ledger) accumulate(b Booking) {
	t, ok := l.totals[b.CurrencyPair]
	if !ok {
		t = &PairTotal{CurrencyPair: b.CurrencyPair, Notional: decimal.Zero}
		l.totals[b.CurrencyPair] = t
		l.pairs = append(l.pairs, b.CurrencyPair)
	}
	t.Bookings++
	t.Notional = t.Notional.Add(b.Amount)
}

// Bookings returns a copy of every booking in booking order.
func (l *Ledger) Bookings() []Booking {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Booking, len(l.bookings))
	copy(out, l.bookings)
	return out
}

// Totals returns booked notional per currency pair in first-booked order.
func (l *Ledger) Totals() []PairTotal {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]PairTotal, 0, len(l.pairs))
	for _, p := range l.pairs {
		out = append(out, *l.totals[p])
	}
	return out
}

// Snapshot summarises the ledger as reporting records, one per currency pair.
func (l *Ledger) Snapshot() []map[string]interface{} {
	totals := l.Totals()
	out := make([]map[string]interface{}, 0, len(totals))
	for _, t := range totals {
		out = append(out, map[string]interface{}{
			"report":        "Booked movements",
			"currency_pair": t.CurrencyPair,
			"bookings":      t.Bookings,
			"notional":      t.Notional.String(),
		})
	}
	return out
}
