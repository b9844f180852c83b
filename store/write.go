package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shareclass_hedging/api"
	"shareclass_hedging/approval"
	"shareclass_hedging/booking"
	"shareclass_hedging/exposure"
	"shareclass_hedging/hedging"
	"shareclass_hedging/logs"

	"github.com/google/uuid"
)

var _ api.Client = (*Store)(nil)

func collaboratorError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", api.ErrCollaborator, op, err)
}

// withTx runs fn in a transaction and commits when it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// newBatch registers a batch of kind and returns its ID.
func newBatch(ctx context.Context, tx *sql.Tx, kind, recordedAt string) (string, error) {
	id := uuid.NewString()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO batches (batch_id, kind, recorded_at) VALUES (?, ?, ?)`,
		id, kind, recordedAt)
	if err != nil {
		return "", fmt.Errorf("insert batch: %w", err)
	}
	return id, nil
}

func (s *Store) PersistCounterpartyData(ctx context.Context, records []exposure.CounterpartyRecord) error {
	at := s.now().UTC().Format(timeLayout)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		batch, err := newBatch(ctx, tx, kindCounterparty, at)
		if err != nil {
			return err
		}
		for i, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO counterparty_records
				(batch_id, seq, share_class_id, share_class_name, exposure, recorded_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, batch, i, r.ShareClassID, r.ShareClassName, r.Exposure.String(), at)
			if err != nil {
				return fmt.Errorf("insert counterparty record %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return collaboratorError(api.OpPersistCounterpartyData, err)
	}
	logs.Debugf("[Store] Stored %d counterparty records", len(records))
	return nil
}

func (s *Store) PersistFxData(ctx context.Context, records []exposure.Record) error {
	at := s.now().UTC().Format(timeLayout)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		batch, err := newBatch(ctx, tx, kindFx, at)
		if err != nil {
			return err
		}
		for i, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO fx_records
				(batch_id, seq, share_class_id, share_class_name, currency_pair, amount, recorded_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, batch, i, r.ShareClassID, r.ShareClassName, r.CurrencyPair, r.Amount.String(), at)
			if err != nil {
				return fmt.Errorf("insert fx record %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return collaboratorError(api.OpPersistFxData, err)
	}
	logs.Debugf("[Store] Stored %d FX records", len(records))
	return nil
}

func (s *Store) PersistValidation(ctx context.Context, isValid bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO validations (is_valid, recorded_at) VALUES (?, ?)`,
		isValid, s.now().UTC().Format(timeLayout))
	if err != nil {
		return collaboratorError(api.OpPersistValidation, err)
	}
	return nil
}

func (s *Store) writeInstructions(ctx context.Context, op, kind string, instructions []hedging.Instruction) error {
	at := s.now().UTC().Format(timeLayout)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		batch, err := newBatch(ctx, tx, kind, at)
		if err != nil {
			return err
		}
		for i, in := range instructions {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO instructions (batch_id, seq, type, currency_pair, amount, maturity)
				VALUES (?, ?, ?, ?, ?, ?)
			`, batch, i, string(in.Type), in.CurrencyPair, in.Amount.String(), in.Maturity.Format(timeLayout))
			if err != nil {
				return fmt.Errorf("insert instruction %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return collaboratorError(op, err)
	}
	logs.Debugf("[Store] Stored %d %s instructions", len(instructions), kind)
	return nil
}

func (s *Store) PersistCalculatedInstructions(ctx context.Context, instructions []hedging.Instruction) error {
	return s.writeInstructions(ctx, api.OpPersistCalculatedInstructions, kindCalculated, instructions)
}

func (s *Store) PersistTradeInstructions(ctx context.Context, instructions []hedging.Instruction) error {
	return s.writeInstructions(ctx, api.OpPersistTradeInstructions, kindTrade, instructions)
}

func (s *Store) RecordApprovalAudit(ctx context.Context, approverName string, status approval.Status, timestamp time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approval_audit (approver_name, status, decided_at) VALUES (?, ?, ?)`,
		approverName, string(status), timestamp.UTC().Format(timeLayout))
	if err != nil {
		return collaboratorError(api.OpRecordApprovalAudit, err)
	}
	return nil
}

func (s *Store) BookMovements(ctx context.Context, instructions []hedging.Instruction) error {
	ledger := booking.NewLedger()
	ledger.SetClock(s.now)
	booked := ledger.Book(instructions)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, b := range booked {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO bookings (id, batch_id, currency_pair, amount, maturity, booked_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, b.ID, b.BatchID, b.CurrencyPair, b.Amount.String(),
				b.Maturity.Format(timeLayout), b.BookedAt.Format(timeLayout))
			if err != nil {
				return fmt.Errorf("insert booking %s: %w", b.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return collaboratorError(api.OpBookMovements, err)
	}
	logs.Infof("[Store] Booked %d movements", len(booked))
	return nil
}
