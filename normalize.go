package fiscal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/opencouncil/fiscal/fy"
)

// Field is a canonical column of the normalized record shape. Extract
// mappings bind raw column names onto these.
type Field int

const (
	FieldUnknown Field = iota
	FieldFundCode
	FieldFundName
	FieldDeptCode
	FieldDeptName
	FieldProgramCode
	FieldProgramName
	FieldLineItemCode
	FieldLineItemName
	FieldAccountCode
	FieldAccountType
	FieldCategory
	FieldAmount
	FieldAmountType
	FieldFiscalYear
	FieldCycle
)

func (f Field) String() string {
	switch f {
	case FieldFundCode:
		return "fund_code"
	case FieldFundName:
		return "fund_name"
	case FieldDeptCode:
		return "department_code"
	case FieldDeptName:
		return "department_name"
	case FieldProgramCode:
		return "program_code"
	case FieldProgramName:
		return "program_name"
	case FieldLineItemCode:
		return "line_item_code"
	case FieldLineItemName:
		return "line_item_name"
	case FieldAccountCode:
		return "account_code"
	case FieldAccountType:
		return "account_type"
	case FieldCategory:
		return "category"
	case FieldAmount:
		return "amount"
	case FieldAmountType:
		return "amount_type"
	case FieldFiscalYear:
		return "fiscal_year"
	case FieldCycle:
		return "cycle"
	default:
		return "unknown"
	}
}

// ParseField parses a canonical field name as written in mapping
// configuration.
func ParseField(s string) (Field, error) {
	for f := FieldFundCode; f <= FieldCycle; f++ {
		if f.String() == strings.ToLower(strings.TrimSpace(s)) {
			return f, nil
		}
	}
	return FieldUnknown, fmt.Errorf("unknown canonical field: %q", s)
}

// ExtractDecl declares one raw extract: where it lives and what the file
// itself does not say. A zero Year or Type means the extract carries that
// information as a mapped column instead.
type ExtractDecl struct {
	File   string
	Source string
	Year   fy.Year
	Type   AmountType
	Cycle  Cycle
}

// ExtractStat summarizes one normalized extract for the audit report.
type ExtractStat struct {
	File    string
	Source  string
	Year    fy.Year
	Rows    int // data rows read
	Records int // records emitted
}

// Normalize maps one raw extract onto FiscalRecords using the supplied
// column mapping (raw header name → canonical field). It has no side
// effects and no global state. Unmapped required fields fail the whole
// extract with a SchemaError; unparseable cells fail it with a FormatError
// naming the row and column.
func Normalize(r io.Reader, decl ExtractDecl, columns map[string]Field) ([]FiscalRecord, ExtractStat, error) {
	stat := ExtractStat{File: decl.File, Source: decl.Source, Year: decl.Year}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, stat, &SchemaError{File: decl.File, Column: "", Reason: fmt.Sprintf("cannot read header: %v", err)}
	}

	// bind canonical fields to header positions
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	mapped := make(map[string]Field, len(columns))
	rawName := make(map[Field]string, len(columns))
	for raw, f := range columns {
		mapped[norm(raw)] = f
		rawName[f] = raw
	}
	pos := make(map[Field]int)
	for i, h := range header {
		f, ok := mapped[norm(h)]
		if !ok {
			continue
		}
		if prev, dup := pos[f]; dup {
			return nil, stat, &SchemaError{
				File:   decl.File,
				Column: f.String(),
				Reason: fmt.Sprintf("columns %q and %q both map to it", header[prev], h),
			}
		}
		pos[f] = i
	}

	required := []Field{FieldAmount}
	if decl.Type == AmountTypeUnknown {
		required = append(required, FieldAmountType)
	}
	if !decl.Year.Valid() {
		required = append(required, FieldFiscalYear)
	}
	for _, f := range required {
		if _, ok := pos[f]; !ok {
			reason := "no column mapping provides it"
			if raw, ok := rawName[f]; ok {
				reason = fmt.Sprintf("mapped column %q not found in header", raw)
			}
			return nil, stat, &SchemaError{File: decl.File, Column: f.String(), Reason: reason}
		}
	}
	if _, ok := pos[FieldDeptCode]; !ok {
		if _, ok := pos[FieldDeptName]; !ok {
			return nil, stat, &SchemaError{File: decl.File, Column: FieldDeptCode.String(), Reason: "no column mapping provides a department code or name"}
		}
	}
	if _, cat := pos[FieldCategory]; !cat {
		if _, at := pos[FieldAccountType]; !at {
			if _, ac := pos[FieldAccountCode]; !ac {
				return nil, stat, &SchemaError{File: decl.File, Column: FieldCategory.String(), Reason: "no column mapping provides a category, account type or account code"}
			}
		}
	}

	cell := func(row []string, f Field) string {
		i, ok := pos[f]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []FiscalRecord
	line := 1 // header
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, stat, &FormatError{File: decl.File, Row: line, Column: "", Value: "", Err: err}
		}
		stat.Rows++

		rec := FiscalRecord{
			Source:       decl.Source,
			File:         decl.File,
			Row:          line,
			Fund:         cell(row, FieldFundCode),
			FundName:     cell(row, FieldFundName),
			Dept:         cell(row, FieldDeptCode),
			DeptName:     cell(row, FieldDeptName),
			Program:      cell(row, FieldProgramCode),
			ProgramName:  cell(row, FieldProgramName),
			LineItem:     cell(row, FieldLineItemCode),
			LineItemName: cell(row, FieldLineItemName),
			Account:      cell(row, FieldAccountCode),
		}

		// fiscal year: the declaration is authoritative; a mapped column
		// must agree with it.
		rec.Year = decl.Year
		if yearCell := cell(row, FieldFiscalYear); yearCell != "" {
			y, err := fy.Parse(yearCell)
			if err != nil {
				return nil, stat, &FormatError{File: decl.File, Row: line, Column: FieldFiscalYear.String(), Value: yearCell, Err: err}
			}
			if decl.Year.Valid() && y != decl.Year {
				return nil, stat, &FormatError{File: decl.File, Row: line, Column: FieldFiscalYear.String(), Value: yearCell,
					Err: fmt.Errorf("extract is declared as %s", decl.Year)}
			}
			rec.Year = y
		}
		if !rec.Year.Valid() {
			return nil, stat, &FormatError{File: decl.File, Row: line, Column: FieldFiscalYear.String(), Value: "", Err: fmt.Errorf("empty fiscal year")}
		}

		rec.Type = decl.Type
		if typeCell := cell(row, FieldAmountType); typeCell != "" {
			at, err := ParseAmountType(typeCell)
			if err != nil {
				return nil, stat, &FormatError{File: decl.File, Row: line, Column: FieldAmountType.String(), Value: typeCell, Err: err}
			}
			rec.Type = at
		}
		if rec.Type == AmountTypeUnknown {
			return nil, stat, &FormatError{File: decl.File, Row: line, Column: FieldAmountType.String(), Value: "", Err: fmt.Errorf("empty amount type")}
		}

		// cycle: actuals always carry the actual cycle; budget rows take
		// the mapped column, the declaration, then the adopted default.
		switch rec.Type {
		case Actual:
			rec.Cycle = CycleActual
		case Budgeted:
			rec.Cycle = decl.Cycle
			if cycleCell := cell(row, FieldCycle); cycleCell != "" {
				c, err := ParseCycle(cycleCell)
				if err != nil {
					return nil, stat, &FormatError{File: decl.File, Row: line, Column: FieldCycle.String(), Value: cycleCell, Err: err}
				}
				rec.Cycle = c
			}
			if rec.Cycle == CycleActual {
				return nil, stat, &FormatError{File: decl.File, Row: line, Column: FieldCycle.String(), Value: CycleActual.String(),
					Err: fmt.Errorf("budget row cannot carry the actual cycle")}
			}
			if rec.Cycle == CycleUnknown {
				rec.Cycle = Adopted
			}
		}

		if catCell := cell(row, FieldCategory); catCell != "" {
			c, err := ParseCategory(catCell)
			if err != nil {
				return nil, stat, &FormatError{File: decl.File, Row: line, Column: FieldCategory.String(), Value: catCell, Err: err}
			}
			rec.Category = c
		} else if at := cell(row, FieldAccountType); at != "" {
			rec.Category = CategoryOfAccountType(at)
		}
		// records still uncategorized here are resolved by reference
		// enrichment from the account code, or rejected after it.

		amountCell := cell(row, FieldAmount)
		a, err := ParseAmount(amountCell)
		if err != nil {
			return nil, stat, &FormatError{File: decl.File, Row: line, Column: FieldAmount.String(), Value: amountCell, Err: err}
		}
		if a.IsNegative() {
			return nil, stat, &FormatError{File: decl.File, Row: line, Column: FieldAmount.String(), Value: amountCell,
				Err: fmt.Errorf("negative amount")}
		}
		rec.Amount = a

		records = append(records, rec)
	}
	stat.Records = len(records)
	return records, stat, nil
}

// MergeRecords flattens per-extract record slices into the canonical
// processing order: fiscal year ascending, then extract declaration order,
// then source row order. Parallel normalization feeds its per-extract
// results through here so concurrency never changes output ordering.
func MergeRecords(perExtract [][]FiscalRecord) []FiscalRecord {
	var total int
	for _, recs := range perExtract {
		total += len(recs)
	}
	merged := make([]FiscalRecord, 0, total)
	for _, recs := range perExtract {
		merged = append(merged, recs...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Year.Before(merged[j].Year) })
	return merged
}
