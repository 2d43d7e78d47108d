package cooldown

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Source column names.
const (
	ColSpellID  = "spellid"
	ColAbility  = "ability"
	ColCooldown = "cooldown"
	ColImage    = "image"
	ColLink     = "wowhead link"
	ColClass    = "class name"
	ColCategory = "category"
)

// Columns lists the header names every input must carry.
var Columns = []string{ColSpellID, ColAbility, ColCooldown, ColImage, ColLink, ColClass, ColCategory}

var (
	// ErrMissingColumn is returned when the header lacks a required column.
	ErrMissingColumn = errors.New("missing column")
	// ErrMalformedCooldown marks a cooldown cell that is not MM:SS:mmm.
	ErrMalformedCooldown = errors.New("malformed cooldown")
	// ErrInvalidSpellID marks a spellid cell that is not an integer.
	ErrInvalidSpellID = errors.New("invalid spellid")
	// ErrShortRow marks a data row with fewer fields than the header.
	ErrShortRow = errors.New("row has fewer fields than header")
)

// RowError describes why one data row could not be converted.
type RowError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: column %q value %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Report is the outcome of a parse. Records preserve input order.
type Report struct {
	Records []Record
	Rows    int
	Errors  []*RowError
}

// ParseOptions controls conversion.
type ParseOptions struct {
	Color string
	// Lenient skips bad rows and records them in the report instead of
	// failing on the first one.
	Lenient bool
}

// ParseDuration converts "MM:SS:mmm" to seconds.
func ParseDuration(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q: want MM:SS:mmm", ErrMalformedCooldown, s)
	}
	var n [3]float64
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: part %d is not a non-negative integer", ErrMalformedCooldown, s, i+1)
		}
		n[i] = float64(v)
	}
	return n[0]*60 + n[1] + n[2]/1000, nil
}

// Parse reads the cooldown CSV from r.
func Parse(ctx context.Context, r io.Reader, opts ParseOptions) (*Report, error) {
	if opts.Color == "" {
		opts.Color = DefaultColor
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: input is empty", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, col)
		}
	}

	report := &Report{Records: []Record{}}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		report.Rows++
		line, _ := cr.FieldPos(0)

		rec, rowErr := convert(row, index, line, opts.Color)
		if rowErr != nil {
			if !opts.Lenient {
				return nil, rowErr
			}
			report.Errors = append(report.Errors, rowErr)
			continue
		}
		report.Records = append(report.Records, rec)
	}
	return report, nil
}

func convert(row []string, index map[string]int, line int, color string) (Record, *RowError) {
	field := func(col string) (string, bool) {
		i := index[col]
		if i >= len(row) {
			return "", false
		}
		return row[i], true
	}
	for _, col := range Columns {
		if _, ok := field(col); !ok {
			return Record{}, &RowError{Line: line, Column: col, Err: ErrShortRow}
		}
	}

	rawID, _ := field(ColSpellID)
	id, err := strconv.Atoi(strings.TrimSpace(rawID))
	if err != nil {
		return Record{}, &RowError{Line: line, Column: ColSpellID, Value: rawID, Err: ErrInvalidSpellID}
	}
	rawCD, _ := field(ColCooldown)
	dur, err := ParseDuration(rawCD)
	if err != nil {
		return Record{}, &RowError{Line: line, Column: ColCooldown, Value: rawCD, Err: err}
	}

	name, _ := field(ColAbility)
	icon, _ := field(ColImage)
	link, _ := field(ColLink)
	class, _ := field(ColClass)
	category, _ := field(ColCategory)
	return Record{
		ID:            id,
		Name:          name,
		Duration:      Seconds(dur),
		Color:         color,
		Icon:          icon,
		ReferenceLink: link,
		ClassName:     class,
		Category:      category,
	}, nil
}
