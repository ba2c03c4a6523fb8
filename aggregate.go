package fiscal

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/opencouncil/fiscal/fy"
)

// Dimension is a grouping axis an AggregateView breaks facts down by.
type Dimension int

const (
	DimUnknown Dimension = iota
	DimYear
	DimCategory
	DimFundType
	DimDeptGroup
	DimDistrict
	DimClass
)

func (d Dimension) String() string {
	switch d {
	case DimYear:
		return "fiscal_year"
	case DimCategory:
		return "category"
	case DimFundType:
		return "fund_type"
	case DimDeptGroup:
		return "department_group"
	case DimDistrict:
		return "district"
	case DimClass:
		return "classification"
	default:
		return "unknown"
	}
}

// ParseDimension parses a dimension column name.
func ParseDimension(s string) (Dimension, error) {
	for d := DimYear; d <= DimClass; d++ {
		if d.String() == strings.ToLower(strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return DimUnknown, fmt.Errorf("unknown view dimension: %q", s)
}

// Measure column names, accepted as sort keys alongside dimension names.
const (
	measureBudgeted = "budgeted"
	measureActual   = "actual"
	measureVariance = "variance"
	measureFacts    = "facts"
)

// Declared view row bounds must stay within this window.
const (
	minViewRows = 10
	maxViewRows = 50
)

// dimUnassigned stands in for a dimension value the reference data does not
// cover, so that uncovered facts still land in exactly one row.
const dimUnassigned = "unassigned"

// SortKey orders view rows by one column, descending when Desc is set.
type SortKey struct {
	Column string
	Desc   bool
}

// ParseSortKey parses a sort key token. A leading "-" flips the order to
// descending, e.g. "-variance".
func ParseSortKey(s string) (SortKey, error) {
	s = strings.TrimSpace(s)
	desc := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return SortKey{}, fmt.Errorf("empty sort key")
	}
	return SortKey{Column: s, Desc: desc}, nil
}

func (k SortKey) String() string {
	if k.Desc {
		return "-" + k.Column
	}
	return k.Column
}

// ViewFilter restricts which leaf facts feed a view. Zero fields keep
// everything.
type ViewFilter struct {
	Category Category // CategoryUnknown keeps both categories
	Fund     string   // keeps only facts under the fund with this code
	Years    fy.Range // invalid bounds leave that side open
}

func (fl ViewFilter) match(f Fact, tree *Tree) bool {
	if fl.Category != CategoryUnknown && f.Category != fl.Category {
		return false
	}
	if !fl.Years.Contains(f.Year) {
		return false
	}
	if fl.Fund != "" {
		fund := tree.AncestorOfKind(f.Entity, KindFund)
		if fund == nil || !entityHasCode(fund, fl.Fund) {
			return false
		}
	}
	return true
}

// entityHasCode matches the canonical code or any recorded alias code, so
// filters keep working when a code changed across fiscal years.
func entityHasCode(e *Entity, code string) bool {
	if e.Code == code {
		return true
	}
	for _, a := range e.Aliases {
		if a.Code == code {
			return true
		}
	}
	return false
}

// ViewSpec declares one AggregateView.
type ViewSpec struct {
	Name       string
	Dimensions []Dimension
	Filter     ViewFilter
	Sort       []SortKey
	MinRows    int // default 10
	MaxRows    int // default 50
}

func (s ViewSpec) withDefaults() ViewSpec {
	if s.MinRows == 0 {
		s.MinRows = minViewRows
	}
	if s.MaxRows == 0 {
		s.MaxRows = maxViewRows
	}
	return s
}

// DimensionNames returns the dimension column names in declaration order.
func (s ViewSpec) DimensionNames() []string {
	names := make([]string, len(s.Dimensions))
	for i, d := range s.Dimensions {
		names[i] = d.String()
	}
	return names
}

// HasColumn reports whether name is a dimension of the view or a measure.
func (s ViewSpec) HasColumn(name string) bool {
	switch name {
	case measureBudgeted, measureActual, measureVariance, measureFacts:
		return true
	}
	for _, d := range s.Dimensions {
		if d.String() == name {
			return true
		}
	}
	return false
}

// Validate checks the declaration, not the data: dimensions, row bounds and
// sort keys.
func (s ViewSpec) Validate() error {
	if s.Name == "" {
		return &ConfigurationError{Field: "views", Reason: "view name is empty"}
	}
	field := "views." + s.Name
	if len(s.Dimensions) == 0 {
		return &ConfigurationError{Field: field, Reason: "at least one dimension is required"}
	}
	seen := make(map[Dimension]bool, len(s.Dimensions))
	for _, d := range s.Dimensions {
		if d == DimUnknown {
			return &ConfigurationError{Field: field, Reason: "unknown dimension"}
		}
		if seen[d] {
			return &ConfigurationError{Field: field, Reason: fmt.Sprintf("dimension %s declared twice", d)}
		}
		seen[d] = true
	}
	if s.MinRows < minViewRows || s.MaxRows > maxViewRows || s.MinRows > s.MaxRows {
		return &ConfigurationError{
			Field:  field,
			Reason: fmt.Sprintf("row bounds [%d, %d] outside the allowed [%d, %d]", s.MinRows, s.MaxRows, minViewRows, maxViewRows),
		}
	}
	for _, k := range s.Sort {
		if !s.HasColumn(k.Column) {
			return &ConfigurationError{Field: field, Reason: fmt.Sprintf("sort key %q is not a dimension or measure of the view", k.Column)}
		}
	}
	return nil
}

// ViewRow is one pre-aggregated row. Sums cover only the facts that carried
// the side; the per-side fact counts tell consumers the coverage.
type ViewRow struct {
	Dims []string

	Budgeted Amount
	Actual   Amount

	Facts         int
	BudgetedFacts int
	ActualFacts   int
}

// HasBudgeted reports whether any contributing fact carried a budgeted side.
func (r ViewRow) HasBudgeted() bool { return r.BudgetedFacts > 0 }

// HasActual reports whether any contributing fact carried an actual side.
func (r ViewRow) HasActual() bool { return r.ActualFacts > 0 }

// Variance returns actual minus budgeted for the row, valid only when both
// sides had at least one contributing fact.
func (r ViewRow) Variance() (Amount, bool) {
	if !r.HasBudgeted() || !r.HasActual() {
		return Amount{}, false
	}
	return r.Actual.Sub(r.Budgeted), true
}

// View is a built AggregateView: the declaration plus its ordered rows.
type View struct {
	Spec ViewSpec
	Rows []ViewRow
}

// BuildView groups the leaf facts of one run into the declared view. Row
// ordering is total, so the same facts always produce the same view. Natural
// cardinality over the row bound is a ConfigurationError, never truncation.
func BuildView(spec ViewSpec, facts []Fact, tree *Tree) (View, error) {
	spec = spec.withDefaults()
	if err := spec.Validate(); err != nil {
		return View{}, err
	}

	rows := make(map[string]*ViewRow)
	for _, f := range facts {
		if !f.Leaf {
			continue
		}
		if !spec.Filter.match(f, tree) {
			continue
		}
		dims := make([]string, len(spec.Dimensions))
		for i, d := range spec.Dimensions {
			dims[i] = dimValue(d, f, tree)
		}
		k := strings.Join(dims, "\x1f")
		row, ok := rows[k]
		if !ok {
			row = &ViewRow{Dims: dims}
			rows[k] = row
		}
		row.Facts++
		if f.HasBudgeted {
			row.Budgeted = row.Budgeted.Add(f.Budgeted)
			row.BudgetedFacts++
		}
		if f.HasActual {
			row.Actual = row.Actual.Add(f.Actual)
			row.ActualFacts++
		}
	}
	if len(rows) > spec.MaxRows {
		return View{}, &ConfigurationError{
			Field:  "views." + spec.Name,
			Reason: fmt.Sprintf("natural cardinality %d exceeds the %d row bound", len(rows), spec.MaxRows),
		}
	}

	v := View{Spec: spec, Rows: make([]ViewRow, 0, len(rows))}
	for _, r := range rows {
		v.Rows = append(v.Rows, *r)
	}
	v.sortRows()
	return v, nil
}

// BuildViews builds every configured view in declaration order.
func BuildViews(specs []ViewSpec, facts []Fact, tree *Tree) ([]View, error) {
	seen := make(map[string]bool, len(specs))
	views := make([]View, 0, len(specs))
	for _, spec := range specs {
		if seen[spec.Name] {
			return nil, &ConfigurationError{Field: "views", Reason: fmt.Sprintf("view %q declared twice", spec.Name)}
		}
		seen[spec.Name] = true
		v, err := BuildView(spec, facts, tree)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func dimValue(d Dimension, f Fact, tree *Tree) string {
	switch d {
	case DimYear:
		return strconv.Itoa(int(f.Year))
	case DimCategory:
		return f.Category.String()
	case DimClass:
		return f.Class.String()
	case DimFundType:
		if fund := tree.AncestorOfKind(f.Entity, KindFund); fund != nil && fund.FundType != "" {
			return fund.FundType
		}
	case DimDeptGroup:
		if dept := tree.AncestorOfKind(f.Entity, KindDepartment); dept != nil && dept.DeptGroup != "" {
			return dept.DeptGroup
		}
	case DimDistrict:
		if dept := tree.AncestorOfKind(f.Entity, KindDepartment); dept != nil && dept.District != "" {
			return dept.District
		}
	}
	return dimUnassigned
}

// sortRows orders by the declared sort keys, then by every dimension as the
// tie break.
func (v *View) sortRows() {
	sort.SliceStable(v.Rows, func(i, j int) bool {
		a, b := v.Rows[i], v.Rows[j]
		for _, k := range v.Spec.Sort {
			if c := v.Spec.compare(k, a, b); c != 0 {
				return c < 0
			}
		}
		for d := range a.Dims {
			if c := compareDim(v.Spec.Dimensions[d], a.Dims[d], b.Dims[d]); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func (s ViewSpec) compare(k SortKey, a, b ViewRow) int {
	var c int
	switch k.Column {
	case measureBudgeted:
		c = compareAmount(a.Budgeted, a.HasBudgeted(), b.Budgeted, b.HasBudgeted())
	case measureActual:
		c = compareAmount(a.Actual, a.HasActual(), b.Actual, b.HasActual())
	case measureVariance:
		av, aok := a.Variance()
		bv, bok := b.Variance()
		c = compareAmount(av, aok, bv, bok)
	case measureFacts:
		switch {
		case a.Facts < b.Facts:
			c = -1
		case a.Facts > b.Facts:
			c = 1
		}
	default:
		for i, d := range s.Dimensions {
			if d.String() == k.Column {
				c = compareDim(d, a.Dims[i], b.Dims[i])
				break
			}
		}
	}
	if k.Desc {
		c = -c
	}
	return c
}

// compareAmount orders absent before present, then by value.
func compareAmount(a Amount, aok bool, b Amount, bok bool) int {
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	default:
		return a.Decimal().Cmp(b.Decimal())
	}
}

// compareDim orders fiscal years numerically and everything else as strings.
func compareDim(d Dimension, a, b string) int {
	if d == DimYear {
		ai, aerr := strconv.Atoi(a)
		bi, berr := strconv.Atoi(b)
		if aerr == nil && berr == nil {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(a, b)
}

// DefaultViews is the stock view catalog. When generalFund names a fund code
// the catalog also carries a general fund summary restricted to that fund.
func DefaultViews(generalFund string) []ViewSpec {
	views := []ViewSpec{
		{
			Name:       "dept_group_by_year",
			Dimensions: []Dimension{DimDeptGroup, DimYear},
			Filter:     ViewFilter{Category: Expense},
			Sort:       []SortKey{{Column: "department_group"}, {Column: "fiscal_year"}},
		},
		{
			Name:       "fund_type_by_year",
			Dimensions: []Dimension{DimFundType, DimYear},
			Sort:       []SortKey{{Column: "fund_type"}, {Column: "fiscal_year"}},
		},
		{
			Name:       "category_by_year",
			Dimensions: []Dimension{DimCategory, DimYear},
			Sort:       []SortKey{{Column: "category"}, {Column: "fiscal_year"}},
		},
		{
			Name:       "district_by_year",
			Dimensions: []Dimension{DimDistrict, DimYear},
			Filter:     ViewFilter{Category: Expense},
			Sort:       []SortKey{{Column: "district"}, {Column: "fiscal_year"}},
		},
		{
			Name:       "classification_by_year",
			Dimensions: []Dimension{DimClass, DimYear},
			Sort:       []SortKey{{Column: "classification"}, {Column: "fiscal_year"}},
		},
	}
	if generalFund != "" {
		views = append(views, ViewSpec{
			Name:       "general_fund_summary",
			Dimensions: []Dimension{DimCategory, DimYear},
			Filter:     ViewFilter{Fund: generalFund},
			Sort:       []SortKey{{Column: "category"}, {Column: "fiscal_year"}},
		})
	}
	return views
}
