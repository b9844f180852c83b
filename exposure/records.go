// Package exposure holds the exposure datasets of a hedging run: the typed
// records, the CSV ingestion parser and the pivot aggregation feeding the
// summary views.
package exposure

import "github.com/shopspring/decimal"

// Record is one FX exposure of a share class in a currency pair.
type Record struct {
	ShareClassID   string          `json:"share_class_id"`
	ShareClassName string          `json:"share_class_name"`
	CurrencyPair   string          `json:"currency_pair"`
	Amount         decimal.Decimal `json:"amount"`
}

// CounterpartyRecord is one exposure line reported by the custodian (BNY).
type CounterpartyRecord struct {
	ShareClassID   string          `json:"share_class_id"`
	ShareClassName string          `json:"share_class_name"`
	Exposure       decimal.Decimal `json:"exposure"`
}

// Kind names a dataset slot.
type Kind string

const (
	KindFx           Kind = "fx"
	KindCounterparty Kind = "counterparty"
)

// Minimum number of fields a data line needs to produce a record.
const (
	fxFieldCount           = 4
	counterpartyFieldCount = 3
)

// CloneRecords returns an independent copy of records.
func CloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out
}

// CloneCounterpartyRecords returns an independent copy of records.
func CloneCounterpartyRecords(records []CounterpartyRecord) []CounterpartyRecord {
	if records == nil {
		return nil
	}
	out := make([]CounterpartyRecord, len(records))
	copy(out, records)
	return out
}
