package fiscal

import (
	"fmt"

	"github.com/opencouncil/fiscal/fy"
)

// The pipeline distinguishes fatal input errors, which abort the run before
// any artifact is replaced, from non-fatal conditions, which are recorded in
// the run's audit report. Every fatal error names the input it came from.

// SchemaError reports an extract whose columns cannot be mapped onto the
// canonical record shape. It aborts the run.
type SchemaError struct {
	File   string // extract file path
	Column string // canonical field or raw column that is missing
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: schema error on column %q: %s", e.File, e.Column, e.Reason)
}

// FormatError reports a value that cannot be parsed. It aborts the run and
// pinpoints the offending cell.
type FormatError struct {
	File   string
	Row    int // 1-based line number in the file, header included
	Column string
	Value  string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s:%d: bad value %q in column %q: %v", e.File, e.Row, e.Value, e.Column, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// UnresolvedEntityError reports a record whose entity key is not present in
// the resolved hierarchy. It aborts reconciliation: a partial hierarchy must
// not silently produce misleading aggregates.
type UnresolvedEntityError struct {
	Year fy.Year
	Kind Kind
	Code string
}

func (e *UnresolvedEntityError) Error() string {
	return fmt.Sprintf("%s: unresolved %s entity %q", e.Year, e.Kind, e.Code)
}

// GrainError reports an entity that received direct amounts while also having
// children in the resolved tree. Mixed grains would break the roll-up
// equality between a parent and the sum of its children, so the run aborts.
type GrainError struct {
	Year     fy.Year
	Path     string
	Category Category
}

func (e *GrainError) Error() string {
	return fmt.Sprintf("%s: mixed grain at %q (%s): entity has both direct amounts and children", e.Year, e.Path, e.Category)
}

// ConfigurationError reports an invalid run configuration: an unusable
// mapping, reference or view definition, including a view whose natural
// cardinality exceeds its declared bound.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// HierarchyConflict records a child entity observed under two different
// parents across fiscal years. It is not fatal: the later fiscal year's
// parentage wins and the conflict is surfaced in the audit report.
type HierarchyConflict struct {
	Kind          Kind
	Code          string
	Name          string
	LosingParent  string // code path of the parent that lost
	LosingYear    fy.Year
	WinningParent string // code path of the parent that won
	WinningYear   fy.Year
}

func (c HierarchyConflict) String() string {
	return fmt.Sprintf("%s %q seen under %q (%s) and %q (%s): %s wins",
		c.Kind, c.Code, c.LosingParent, c.LosingYear, c.WinningParent, c.WinningYear, c.WinningYear)
}
