package exposure

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrFormat is matched by every FormatError.
var ErrFormat = errors.New("malformed numeric field")

// plainDecimal is an optionally signed number with an optional fractional
// part. Exponents, separators and special values are rejected.
var plainDecimal = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

var errNotPlainDecimal = errors.New("only plain decimal notation is accepted")

// FormatError reports a numeric field that could not be parsed. It aborts the
// whole ingestion.
type FormatError struct {
	Kind  Kind
	Line  int // 1-based, header included
	Field string
	Value string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s data line %d: %s %q is not a decimal number: %v", e.Kind, e.Line, e.Field, e.Value, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrFormat) hold for every FormatError.
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// ParseFx reads FX exposures: a header line followed by
// shareClassId,shareClassName,currencyPair,amount lines.
func ParseFx(r io.Reader) ([]Record, error) {
	records := make([]Record, 0)
	err := scanLines(r, fxFieldCount, func(line int, parts []string) error {
		amount, err := parseDecimal(KindFx, line, "amount", parts[3])
		if err != nil {
			return err
		}
		records = append(records, Record{
			ShareClassID:   parts[0],
			ShareClassName: parts[1],
			CurrencyPair:   parts[2],
			Amount:         amount,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ParseCounterparty reads counterparty exposures: a header line followed by
// shareClassId,shareClassName,exposure lines.
func ParseCounterparty(r io.Reader) ([]CounterpartyRecord, error) {
	records := make([]CounterpartyRecord, 0)
	err := scanLines(r, counterpartyFieldCount, func(line int, parts []string) error {
		exposure, err := parseDecimal(KindCounterparty, line, "exposure", parts[2])
		if err != nil {
			return err
		}
		records = append(records, CounterpartyRecord{
			ShareClassID:   parts[0],
			ShareClassName: parts[1],
			Exposure:       exposure,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// scanLines skips the header, splits every following line on commas, trims
// each field and hands lines with at least minFields fields to emit. Shorter
// lines are ignored.
func scanLines(r io.Reader, minFields int, emit func(line int, parts []string) error) error {
	reader := bufio.NewReader(r)
	lineNo := 0
	for {
		raw, readErr := reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("read line %d: %w", lineNo+1, readErr)
		}
		if readErr == io.EOF && raw == "" {
			return nil
		}
		lineNo++

		if lineNo > 1 {
			raw = strings.TrimRight(raw, "\r\n")
			parts := strings.Split(raw, ",")
			if len(parts) >= minFields {
				for i := range parts {
					parts[i] = strings.TrimSpace(parts[i])
				}
				if err := emit(lineNo, parts); err != nil {
					return err
				}
			}
		}

		if readErr == io.EOF {
			return nil
		}
	}
}

func parseDecimal(kind Kind, line int, field, value string) (decimal.Decimal, error) {
	if !plainDecimal.MatchString(value) {
		return decimal.Zero, &FormatError{Kind: kind, Line: line, Field: field, Value: value, Err: errNotPlainDecimal}
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &FormatError{Kind: kind, Line: line, Field: field, Value: value, Err: err}
	}
	return d, nil
}
