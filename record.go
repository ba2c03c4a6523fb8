package fiscal

import (
	"fmt"
	"strings"

	"github.com/opencouncil/fiscal/fy"
)

// Category classifies a fiscal record as money going out or coming in.
type Category int

const (
	CategoryUnknown Category = iota
	Expense
	Revenue
)

func (c Category) String() string {
	switch c {
	case Expense:
		return "expense"
	case Revenue:
		return "revenue"
	default:
		return "unknown"
	}
}

// ParseCategory parses the category tokens found in extracts.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expense", "expenses", "expenditure", "expenditures":
		return Expense, nil
	case "revenue", "revenues":
		return Revenue, nil
	default:
		return CategoryUnknown, fmt.Errorf("unknown account category: %q", s)
	}
}

// CategoryOfAccountType derives the category from an account-type token, the
// convention used by extracts that carry account types instead of explicit
// categories: personnel and non-personnel account types are expenses, any
// other non-empty account type is revenue.
func CategoryOfAccountType(accountType string) Category {
	switch strings.ToLower(strings.TrimSpace(accountType)) {
	case "":
		return CategoryUnknown
	case "personnel", "personnel expense", "non-personnel", "non-personnel expense", "nonpersonnel":
		return Expense
	default:
		return Revenue
	}
}

// AmountType tells which side of the reconciliation a record belongs to.
type AmountType int

const (
	AmountTypeUnknown AmountType = iota
	Budgeted
	Actual
)

func (t AmountType) String() string {
	switch t {
	case Budgeted:
		return "budget"
	case Actual:
		return "actual"
	default:
		return "unknown"
	}
}

// ParseAmountType parses the amount-type tokens found in extracts.
func ParseAmountType(s string) (AmountType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "budget", "budgeted", "adopted", "proposed":
		return Budgeted, nil
	case "actual", "actuals":
		return Actual, nil
	default:
		return AmountTypeUnknown, fmt.Errorf("unknown amount type: %q", s)
	}
}

// Cycle is the budget cycle a budgeted figure belongs to. Actual-side
// records always carry CycleActual.
type Cycle int

const (
	CycleUnknown Cycle = iota
	Adopted
	Proposed
	CycleActual
)

func (c Cycle) String() string {
	switch c {
	case Adopted:
		return "adopted"
	case Proposed:
		return "proposed"
	case CycleActual:
		return "actual"
	default:
		return "unknown"
	}
}

// ParseCycle parses a budget-cycle token.
func ParseCycle(s string) (Cycle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "adopted":
		return Adopted, nil
	case "proposed":
		return Proposed, nil
	case "actual", "actuals":
		return CycleActual, nil
	default:
		return CycleUnknown, fmt.Errorf("unknown budget cycle: %q", s)
	}
}

// FiscalRecord is one normalized row of input: a single amount observed for
// an entity chain in one fiscal year. Records are immutable once parsed;
// enrichment produces updated copies.
type FiscalRecord struct {
	Year   fy.Year
	Source string // extract source label
	File   string // extract file path, for error attribution
	Row    int    // 1-based line number in the source file

	// Entity chain codes. Fund and Dept are required; Program and LineItem
	// narrow the grain when present.
	Fund     string
	Dept     string
	Program  string
	LineItem string

	// Display names as observed, used by the resolver's name fallback.
	FundName     string
	DeptName     string
	ProgramName  string
	LineItemName string

	Account  string // account code, for reference enrichment
	Category Category
	Type     AmountType
	Cycle    Cycle
	Amount   Amount
}

// Finest returns the kind of the finest entity in the record's chain.
func (r FiscalRecord) Finest() Kind {
	switch {
	case r.LineItem != "" || r.LineItemName != "":
		return KindLineItem
	case r.Program != "" || r.ProgramName != "":
		return KindProgram
	default:
		return KindDepartment
	}
}
