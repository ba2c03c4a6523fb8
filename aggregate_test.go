package fiscal

import (
	"errors"
	"testing"

	"github.com/opencouncil/fiscal/fy"
)

func factsFor(t *testing.T, records []FiscalRecord) ([]Fact, *Resolution) {
	t.Helper()
	res := resolveAll(t, records)
	facts, _, err := Reconcile(records, res, ReconcileConfig{Threshold: 2})
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	return facts, res
}

func TestBuildView(t *testing.T) {
	records := []FiscalRecord{
		{Year: 2021, Fund: "100", Dept: "FIRE", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(1000)},
		{Year: 2021, Fund: "100", Dept: "FIRE", Category: Expense, Type: Actual, Cycle: CycleActual, Amount: A(1100)},
		{Year: 2021, Fund: "100", Dept: "PKR", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(500)},
		{Year: 2021, Fund: "200", Dept: "WTR", Category: Revenue, Type: Actual, Cycle: CycleActual, Amount: A(250)},
		{Year: 2022, Fund: "100", Dept: "FIRE", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(2000)},
		{Year: 2022, Fund: "100", Dept: "FIRE", Category: Expense, Type: Actual, Cycle: CycleActual, Amount: A(1900)},
	}
	facts, res := factsFor(t, records)

	spec := ViewSpec{
		Name:       "category_by_year",
		Dimensions: []Dimension{DimCategory, DimYear},
		Sort:       []SortKey{{Column: "category"}, {Column: "fiscal_year"}},
	}
	v, err := BuildView(spec, facts, res.Tree)
	if err != nil {
		t.Fatalf("BuildView returned error: %v", err)
	}
	if len(v.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(v.Rows))
	}

	// expense FY2021: two leaf facts, one with no actual side
	r := v.Rows[0]
	if r.Dims[0] != "expense" || r.Dims[1] != "2021" {
		t.Fatalf("row 0 dims = %v, want expense 2021", r.Dims)
	}
	if r.Facts != 2 || r.BudgetedFacts != 2 || r.ActualFacts != 1 {
		t.Errorf("row 0 coverage = %d/%d/%d, want 2 facts, 2 budgeted, 1 actual", r.Facts, r.BudgetedFacts, r.ActualFacts)
	}
	if !r.Budgeted.Equal(A(1500)) || !r.Actual.Equal(A(1100)) {
		t.Errorf("row 0 sums = %s / %s, want leaf sums only", r.Budgeted, r.Actual)
	}

	r = v.Rows[1]
	if r.Dims[0] != "expense" || r.Dims[1] != "2022" {
		t.Fatalf("row 1 dims = %v, want expense 2022", r.Dims)
	}
	if vr, ok := r.Variance(); !ok || !vr.Equal(A(-100)) {
		t.Errorf("row 1 variance = %s, want -$100.00", vr)
	}

	// revenue FY2021: actuals only, variance undefined
	r = v.Rows[2]
	if r.Dims[0] != "revenue" {
		t.Fatalf("row 2 dims = %v, want revenue", r.Dims)
	}
	if r.HasBudgeted() {
		t.Errorf("row 2 claims a budgeted side that no fact carried")
	}
	if _, ok := r.Variance(); ok {
		t.Errorf("row 2 variance should be undefined without a budgeted side")
	}
}

func TestBuildViewFundFilter(t *testing.T) {
	// the general fund was recoded between years; the filter must follow
	records := []FiscalRecord{
		{Year: 2021, Fund: "100", FundName: "General Fund", Dept: "FIRE", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(1000)},
		{Year: 2022, Fund: "GF", FundName: "General Fund", Dept: "FIRE", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(1200)},
		{Year: 2021, Fund: "200", FundName: "Water Utility", Dept: "WTR", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(400)},
	}
	facts, res := factsFor(t, records)

	spec := ViewSpec{
		Name:       "general_fund_summary",
		Dimensions: []Dimension{DimCategory, DimYear},
		Filter:     ViewFilter{Fund: "100"},
	}
	v, err := BuildView(spec, facts, res.Tree)
	if err != nil {
		t.Fatalf("BuildView returned error: %v", err)
	}
	if len(v.Rows) != 2 {
		t.Fatalf("got %d rows, want both general fund years", len(v.Rows))
	}
	var total Amount
	for _, r := range v.Rows {
		total = total.Add(r.Budgeted)
	}
	if !total.Equal(A(2200)) {
		t.Errorf("filtered total = %s, want $2,200.00 and no water utility", total)
	}
}

func TestBuildViewYearFilter(t *testing.T) {
	records := []FiscalRecord{
		{Year: 2020, Fund: "100", Dept: "FIRE", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(900)},
		{Year: 2021, Fund: "100", Dept: "FIRE", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(1000)},
		{Year: 2022, Fund: "100", Dept: "FIRE", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(1100)},
	}
	facts, res := factsFor(t, records)

	spec := ViewSpec{
		Name:       "recent",
		Dimensions: []Dimension{DimYear},
		Filter:     ViewFilter{Years: fy.Range{From: fy.New(2021)}},
	}
	v, err := BuildView(spec, facts, res.Tree)
	if err != nil {
		t.Fatalf("BuildView returned error: %v", err)
	}
	if len(v.Rows) != 2 || v.Rows[0].Dims[0] != "2021" || v.Rows[1].Dims[0] != "2022" {
		t.Errorf("rows = %v, want FY2021 and FY2022 only", v.Rows)
	}
}

func TestBuildViewCardinalityBound(t *testing.T) {
	var records []FiscalRecord
	for y := fy.Year(2010); y <= 2020; y++ {
		records = append(records, FiscalRecord{Year: y, Fund: "100", Dept: "D", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(100)})
	}
	facts, res := factsFor(t, records)

	spec := ViewSpec{Name: "by_year", Dimensions: []Dimension{DimYear}, MinRows: 10, MaxRows: 10}
	_, err := BuildView(spec, facts, res.Tree)
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v, want a ConfigurationError for 11 natural rows over a 10 row bound", err)
	}
	if ce.Field != "views.by_year" {
		t.Errorf("error names %q, want views.by_year", ce.Field)
	}
}

func TestBuildViewSortDescending(t *testing.T) {
	records := []FiscalRecord{
		{Year: 2021, Fund: "100", Dept: "D", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(1000)},
		{Year: 2021, Fund: "100", Dept: "D", Category: Expense, Type: Actual, Cycle: CycleActual, Amount: A(950)},
		{Year: 2022, Fund: "100", Dept: "D", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(1000)},
		{Year: 2022, Fund: "100", Dept: "D", Category: Expense, Type: Actual, Cycle: CycleActual, Amount: A(1100)},
		{Year: 2023, Fund: "100", Dept: "D", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(1000)},
	}
	facts, res := factsFor(t, records)

	spec := ViewSpec{
		Name:       "by_variance",
		Dimensions: []Dimension{DimYear},
		Sort:       []SortKey{{Column: "variance", Desc: true}},
	}
	v, err := BuildView(spec, facts, res.Tree)
	if err != nil {
		t.Fatalf("BuildView returned error: %v", err)
	}
	if len(v.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(v.Rows))
	}
	// largest variance first, rows with no variance last
	got := []string{v.Rows[0].Dims[0], v.Rows[1].Dims[0], v.Rows[2].Dims[0]}
	if got[0] != "2022" || got[1] != "2021" || got[2] != "2023" {
		t.Errorf("order = %v, want [2022 2021 2023]", got)
	}
}

func TestBuildViewUnassignedDimension(t *testing.T) {
	records := []FiscalRecord{
		{Year: 2021, Fund: "100", Dept: "FIRE", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(1000)},
		{Year: 2021, Fund: "100", Dept: "PKR", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(500)},
	}
	facts, res := factsFor(t, records)

	// only FIRE gets a department group; PKR stays uncovered
	for e := range res.Tree.All() {
		if e.Kind == KindDepartment && e.Code == "FIRE" {
			e.DeptGroup = "Public Safety"
		}
	}

	spec := ViewSpec{Name: "groups", Dimensions: []Dimension{DimDeptGroup, DimYear}}
	v, err := BuildView(spec, facts, res.Tree)
	if err != nil {
		t.Fatalf("BuildView returned error: %v", err)
	}
	if len(v.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(v.Rows))
	}
	if v.Rows[0].Dims[0] != "Public Safety" {
		t.Errorf("row 0 = %v, want the covered group", v.Rows[0].Dims)
	}
	if v.Rows[1].Dims[0] != "unassigned" {
		t.Errorf("row 1 = %v, want uncovered facts in the unassigned row", v.Rows[1].Dims)
	}
}

func TestViewSpecValidate(t *testing.T) {
	year := []Dimension{DimYear}
	cases := []struct {
		name string
		spec ViewSpec
	}{
		{"empty name", ViewSpec{Dimensions: year}},
		{"no dimensions", ViewSpec{Name: "v"}},
		{"unknown dimension", ViewSpec{Name: "v", Dimensions: []Dimension{DimUnknown}}},
		{"duplicate dimension", ViewSpec{Name: "v", Dimensions: []Dimension{DimYear, DimYear}}},
		{"min below the window", ViewSpec{Name: "v", Dimensions: year, MinRows: 5, MaxRows: 50}},
		{"max above the window", ViewSpec{Name: "v", Dimensions: year, MinRows: 10, MaxRows: 60}},
		{"inverted bounds", ViewSpec{Name: "v", Dimensions: year, MinRows: 40, MaxRows: 20}},
		{"sort key not a column", ViewSpec{Name: "v", Dimensions: year, MinRows: 10, MaxRows: 50, Sort: []SortKey{{Column: "department_group"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ce *ConfigurationError
			if err := tc.spec.Validate(); !errors.As(err, &ce) {
				t.Errorf("Validate() = %v, want a ConfigurationError", err)
			}
		})
	}

	ok := ViewSpec{Name: "v", Dimensions: year, Sort: []SortKey{{Column: "variance", Desc: true}}}.withDefaults()
	if err := ok.Validate(); err != nil {
		t.Errorf("valid spec rejected: %v", err)
	}
}

func TestBuildViewsRejectsDuplicates(t *testing.T) {
	specs := []ViewSpec{
		{Name: "twice", Dimensions: []Dimension{DimYear}},
		{Name: "twice", Dimensions: []Dimension{DimCategory}},
	}
	_, err := BuildViews(specs, nil, nil)
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v, want a ConfigurationError for the duplicate view name", err)
	}
}

func TestDefaultViews(t *testing.T) {
	views := DefaultViews("")
	if len(views) != 5 {
		t.Fatalf("got %d stock views, want 5", len(views))
	}
	withGF := DefaultViews("100")
	if len(withGF) != 6 || withGF[5].Name != "general_fund_summary" {
		t.Fatalf("general fund catalog = %d views, want a general_fund_summary sixth", len(withGF))
	}
	if withGF[5].Filter.Fund != "100" {
		t.Errorf("general fund filter = %q, want 100", withGF[5].Filter.Fund)
	}
	for _, spec := range withGF {
		if err := spec.withDefaults().Validate(); err != nil {
			t.Errorf("stock view %q does not validate: %v", spec.Name, err)
		}
	}
}

func TestParseSortKey(t *testing.T) {
	k, err := ParseSortKey("-variance")
	if err != nil {
		t.Fatalf("ParseSortKey returned error: %v", err)
	}
	if k.Column != "variance" || !k.Desc {
		t.Errorf("ParseSortKey(-variance) = %+v", k)
	}
	k, err = ParseSortKey("fiscal_year")
	if err != nil || k.Column != "fiscal_year" || k.Desc {
		t.Errorf("ParseSortKey(fiscal_year) = %+v, %v", k, err)
	}
	if _, err := ParseSortKey("-"); err == nil {
		t.Errorf("ParseSortKey(\"-\") should have failed")
	}
}
