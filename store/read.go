package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shareclass_hedging/api"
	"shareclass_hedging/approval"
	"shareclass_hedging/booking"
	"shareclass_hedging/exposure"
	"shareclass_hedging/hedging"

	"github.com/shopspring/decimal"
)

// AuditRecord is one stored approval decision.
type AuditRecord struct {
	ApproverName string
	Status       approval.Status
	DecidedAt    time.Time
}

// latestBatch returns the newest batch ID of kind, or "" when none exists.
func (s *Store) latestBatch(ctx context.Context, kind string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT batch_id FROM batches WHERE kind = ? ORDER BY id DESC LIMIT 1`, kind).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query latest %s batch: %w", kind, err)
	}
	return id, nil
}

// CounterpartyData returns the most recently persisted counterparty dataset.
func (s *Store) CounterpartyData(ctx context.Context) ([]exposure.CounterpartyRecord, error) {
	out := make([]exposure.CounterpartyRecord, 0)
	batch, err := s.latestBatch(ctx, kindCounterparty)
	if err != nil || batch == "" {
		return out, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT share_class_id, share_class_name, exposure
		FROM counterparty_records
		WHERE batch_id = ?
		ORDER BY seq ASC
	`, batch)
	if err != nil {
		return nil, fmt.Errorf("query counterparty records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r exposure.CounterpartyRecord
		var amount string
		if err := rows.Scan(&r.ShareClassID, &r.ShareClassName, &amount); err != nil {
			return nil, fmt.Errorf("scan counterparty record: %w", err)
		}
		if r.Exposure, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("decode exposure %q: %w", amount, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counterparty records: %w", err)
	}
	return out, nil
}

// FxData returns the most recently persisted FX dataset.
func (s *Store) FxData(ctx context.Context) ([]exposure.Record, error) {
	out := make([]exposure.Record, 0)
	batch, err := s.latestBatch(ctx, kindFx)
	if err != nil || batch == "" {
		return out, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT share_class_id, share_class_name, currency_pair, amount
		FROM fx_records
		WHERE batch_id = ?
		ORDER BY seq ASC
	`, batch)
	if err != nil {
		return nil, fmt.Errorf("query fx records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r exposure.Record
		var amount string
		if err := rows.Scan(&r.ShareClassID, &r.ShareClassName, &r.CurrencyPair, &amount); err != nil {
			return nil, fmt.Errorf("scan fx record: %w", err)
		}
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("decode amount %q: %w", amount, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fx records: %w", err)
	}
	return out, nil
}

// LatestValidation returns the last validation flag and whether one exists.
func (s *Store) LatestValidation(ctx context.Context) (bool, bool, error) {
	var valid bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_valid FROM validations ORDER BY id DESC LIMIT 1`).Scan(&valid)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("query validation: %w", err)
	}
	return valid, true, nil
}

// CalculatedInstructions returns the latest calculated instruction batch.
func (s *Store) CalculatedInstructions(ctx context.Context) ([]hedging.Instruction, error) {
	return s.readInstructions(ctx, kindCalculated)
}

// TradeInstructions returns the latest batch marked ready to trade.
func (s *Store) TradeInstructions(ctx context.Context) ([]hedging.Instruction, error) {
	return s.readInstructions(ctx, kindTrade)
}

func (s *Store) readInstructions(ctx context.Context, kind string) ([]hedging.Instruction, error) {
	out := make([]hedging.Instruction, 0)
	batch, err := s.latestBatch(ctx, kind)
	if err != nil || batch == "" {
		return out, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, currency_pair, amount, maturity
		FROM instructions
		WHERE batch_id = ?
		ORDER BY seq ASC
	`, batch)
	if err != nil {
		return nil, fmt.Errorf("query %s instructions: %w", kind, err)
	}
	defer rows.Close()

	for rows.Next() {
		var in hedging.Instruction
		var typ, amount, maturity string
		if err := rows.Scan(&typ, &in.CurrencyPair, &amount, &maturity); err != nil {
			return nil, fmt.Errorf("scan instruction: %w", err)
		}
		in.Type = hedging.InstructionType(typ)
		if in.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("decode amount %q: %w", amount, err)
		}
		if in.Maturity, err = time.Parse(timeLayout, maturity); err != nil {
			return nil, fmt.Errorf("decode maturity %q: %w", maturity, err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instructions: %w", err)
	}
	return out, nil
}

// Audit returns every approval decision in the order recorded.
func (s *Store) Audit(ctx context.Context) ([]AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT approver_name, status, decided_at FROM approval_audit ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	out := make([]AuditRecord, 0)
	for rows.Next() {
		var r AuditRecord
		var status, decided string
		if err := rows.Scan(&r.ApproverName, &status, &decided); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		r.Status = approval.Status(status)
		if r.DecidedAt, err = time.Parse(timeLayout, decided); err != nil {
			return nil, fmt.Errorf("decode decided_at %q: %w", decided, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit: %w", err)
	}
	return out, nil
}

// Bookings returns every booked movement in booking order.
func (s *Store) Bookings(ctx context.Context) ([]booking.Booking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, currency_pair, amount, maturity, booked_at
		FROM bookings
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	out := make([]booking.Booking, 0)
	for rows.Next() {
		var b booking.Booking
		var amount, maturity, bookedAt string
		if err := rows.Scan(&b.ID, &b.BatchID, &b.CurrencyPair, &amount, &maturity, &bookedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("decode amount %q: %w", amount, err)
		}
		if b.Maturity, err = time.Parse(timeLayout, maturity); err != nil {
			return nil, fmt.Errorf("decode maturity %q: %w", maturity, err)
		}
		if b.BookedAt, err = time.Parse(timeLayout, bookedAt); err != nil {
			return nil, fmt.Errorf("decode booked_at %q: %w", bookedAt, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	return out, nil
}

// FetchReportingSnapshot aggregates the stored bookings per currency pair.
func (s *Store) FetchReportingSnapshot(ctx context.Context) ([]api.ReportRecord, error) {
	bookings, err := s.Bookings(ctx)
	if err != nil {
		return nil, collaboratorError(api.OpFetchReportingSnapshot, err)
	}
	ledger := booking.NewLedger()
	ledger.Restore(bookings)
	return api.ToReportRecords(ledger.Snapshot()), nil
}
