package exposure

import (
	"fmt"
	"strings"

	"shareclass_hedging/utils"

	"github.com/shopspring/decimal"
)

// PivotRow is the single summary row of a dataset: column label to summed
// amount, with columns kept in first-seen order.
type PivotRow struct {
	columns []string
	sums    map[string]decimal.Decimal
}

func newPivotRow() PivotRow {
	return PivotRow{sums: make(map[string]decimal.Decimal)}
}

func (p *PivotRow) add(label string, amount decimal.Decimal) {
	if p.sums == nil {
		p.sums = make(map[string]decimal.Decimal)
	}
	current, ok := p.sums[label]
	if !ok {
		p.columns = append(p.columns, label)
		current = decimal.Zero
	}
	p.sums[label] = current.Add(amount)
}

// Columns returns the column labels in encounter order.
func (p PivotRow) Columns() []string {
	out := make([]string, len(p.columns))
	copy(out, p.columns)
	return out
}

// Get returns the sum for label and whether the column exists.
func (p PivotRow) Get(label string) (decimal.Decimal, bool) {
	d, ok := p.sums[label]
	return d, ok
}

// Len is the number of columns.
func (p PivotRow) Len() int { return len(p.columns) }

// Map copies the row into a plain map, dropping column order.
func (p PivotRow) Map() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(p.sums))
	for k, v := range p.sums {
		out[k] = v
	}
	return out
}

// FxLabel is the pivot column of an FX record: "<shareClassName> (<currencyPair>)".
func FxLabel(r Record) string {
	return fmt.Sprintf("%s (%s)", r.ShareClassName, r.CurrencyPair)
}

// CounterpartyLabel is the pivot column of a counterparty record: "<shareClassName> (Exposure)".
func CounterpartyLabel(r CounterpartyRecord) string {
	return fmt.Sprintf("%s (Exposure)", r.ShareClassName)
}

// PivotFx rebuilds the FX summary row from scratch.
func PivotFx(records []Record) PivotRow {
	row := newPivotRow()
	for _, r := range records {
		row.add(FxLabel(r), r.Amount)
	}
	return row
}

// PivotCounterparty rebuilds the counterparty summary row from scratch.
func PivotCounterparty(records []CounterpartyRecord) PivotRow {
	row := newPivotRow()
	for _, r := range records {
		row.add(CounterpartyLabel(r), r.Exposure)
	}
	return row
}

// FormatPivot renders the row as one "label<TAB>amount" line per column.
func FormatPivot(row PivotRow) string {
	var sb strings.Builder
	for _, label := range row.columns {
		sb.WriteString(label)
		sb.WriteByte('\t')
		sb.WriteString(utils.FormatThousands(row.sums[label], 2))
		sb.WriteByte('\n')
	}
	return sb.String()
}
