package fiscal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencouncil/fiscal/fy"
)

const minimalConfig = `
extracts:
  - file: budget.csv
    source: budget_book
    year: 2021
    type: budgeted
mappings:
  - source: budget_book
    columns:
      Dept: department_code
      Amount: amount
      Type: category
`

func compileText(t *testing.T, text string) (*Plan, error) {
	t.Helper()
	cfg, err := ParseConfig(text)
	if err != nil {
		t.Fatalf("ParseConfig returned error: %v", err)
	}
	return cfg.Compile()
}

func TestCompile(t *testing.T) {
	plan, err := compileText(t, `
output: artifacts
csv: true
cycle: proposed
threshold_pct: 1.5
general_fund: "100"
reference:
  funds: funds.csv
extracts:
  - file: budget_fy2021.csv
    source: budget_book
    year: 2021
    type: budgeted
    cycle: proposed
  - file: ledger.csv
    source: ledger
mappings:
  - source: budget_book
    years: 2019-2021
    columns:
      Dept: department_code
      FY21 Amount: amount
      Type: category
  - source: budget_book
    columns:
      Dept: department_code
      Amount: amount
      Type: category
  - source: ledger
    columns:
      dept: department_code
      amount: amount
      amount_type: amount_type
      year: fiscal_year
      category: category
`)
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}

	if plan.Output != "artifacts" || !plan.CSV {
		t.Errorf("output = %q csv %t", plan.Output, plan.CSV)
	}
	if plan.Reconcile.Cycle != Proposed || !plan.Reconcile.Threshold.Equal(1.5) {
		t.Errorf("reconcile knobs = %v / %s", plan.Reconcile.Cycle, plan.Reconcile.Threshold)
	}
	if plan.Reference.Funds != "funds.csv" {
		t.Errorf("reference funds = %q", plan.Reference.Funds)
	}

	if len(plan.Extracts) != 2 {
		t.Fatalf("got %d extracts, want 2", len(plan.Extracts))
	}
	first := plan.Extracts[0]
	if first.Decl.Year != 2021 || first.Decl.Type != Budgeted || first.Decl.Cycle != Proposed {
		t.Errorf("extract decl = %+v", first.Decl)
	}
	// FY2021 falls inside the first budget_book mapping's span
	if _, ok := first.Columns["FY21 Amount"]; !ok {
		t.Errorf("extract bound to %v, want the year-spanned mapping", first.Columns)
	}
	second := plan.Extracts[1]
	if second.Decl.Type != AmountTypeUnknown || second.Decl.Year.Valid() {
		t.Errorf("undeclared extract decl = %+v", second.Decl)
	}
	if second.Columns["amount_type"] != FieldAmountType {
		t.Errorf("ledger mapping = %v", second.Columns)
	}

	// default catalog with the general fund summary, bounds materialized
	if len(plan.Views) != 6 {
		t.Fatalf("got %d views, want the stock catalog of 6", len(plan.Views))
	}
	for _, v := range plan.Views {
		if v.MinRows != 10 || v.MaxRows != 50 {
			t.Errorf("view %q bounds = [%d, %d], want [10, 50]", v.Name, v.MinRows, v.MaxRows)
		}
	}
	if plan.Views[5].Name != "general_fund_summary" || plan.Views[5].Filter.Fund != "100" {
		t.Errorf("view 5 = %+v, want the general fund summary", plan.Views[5])
	}
}

func TestCompileDefaults(t *testing.T) {
	plan, err := compileText(t, minimalConfig)
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if plan.Output != "out" {
		t.Errorf("output = %q, want out", plan.Output)
	}
	if !plan.Reconcile.Threshold.Equal(2) || plan.Reconcile.Cycle != CycleUnknown {
		t.Errorf("reconcile defaults = %s / %v", plan.Reconcile.Threshold, plan.Reconcile.Cycle)
	}
	if len(plan.Views) != 5 {
		t.Errorf("got %d views, want the stock catalog without a general fund", len(plan.Views))
	}
}

func TestCompileExplicitZeroThreshold(t *testing.T) {
	plan, err := compileText(t, "threshold_pct: 0\n"+minimalConfig)
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if plan.Reconcile.Threshold != 0 {
		t.Errorf("threshold = %s, want the explicit zero preserved", plan.Reconcile.Threshold)
	}
}

func TestCompileExplicitViews(t *testing.T) {
	plan, err := compileText(t, minimalConfig+`
views:
  - name: spending
    dimensions: [department_group, fiscal_year]
    category: expense
    fund: "100"
    years: 2019-2023
    sort: [-variance, fiscal_year]
    max_rows: 40
`)
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if len(plan.Views) != 1 {
		t.Fatalf("explicit views should replace the catalog, got %d", len(plan.Views))
	}
	v := plan.Views[0]
	if v.Name != "spending" || len(v.Dimensions) != 2 || v.Dimensions[0] != DimDeptGroup {
		t.Errorf("view = %+v", v)
	}
	if v.Filter.Category != Expense || v.Filter.Fund != "100" {
		t.Errorf("filter = %+v", v.Filter)
	}
	if v.Filter.Years.From != 2019 || v.Filter.Years.To != 2023 {
		t.Errorf("year span = %v", v.Filter.Years)
	}
	if len(v.Sort) != 2 || v.Sort[0] != (SortKey{Column: "variance", Desc: true}) {
		t.Errorf("sort = %+v", v.Sort)
	}
	if v.MinRows != 10 || v.MaxRows != 40 {
		t.Errorf("bounds = [%d, %d], want [10, 40]", v.MinRows, v.MaxRows)
	}
}

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		field string
	}{
		{"actual cycle preference", "cycle: actual\n" + minimalConfig, "cycle"},
		{"unknown cycle", "cycle: quarterly\n" + minimalConfig, "cycle"},
		{"negative threshold", "threshold_pct: -1\n" + minimalConfig, "threshold_pct"},
		{"no extracts", "mappings:\n  - source: s\n    columns: {A: amount}\n", "extracts"},
		{"no mappings", "extracts:\n  - file: a.csv\n    source: s\n", "mappings"},
		{"extract without file", `
extracts:
  - source: s
mappings:
  - source: s
    columns: {A: amount}
`, "extracts[0].file"},
		{"extract without source", `
extracts:
  - file: a.csv
mappings:
  - source: s
    columns: {A: amount}
`, "extracts[0].source"},
		{"bad extract type", `
extracts:
  - file: a.csv
    source: s
    type: estimate
mappings:
  - source: s
    columns: {A: amount}
`, "extracts[0].type"},
		{"no mapping covers the extract", `
extracts:
  - file: a.csv
    source: s
    year: 2024
mappings:
  - source: s
    years: 2019-2021
    columns: {A: amount}
`, "extracts[0]"},
		{"mapping without source", `
extracts:
  - file: a.csv
    source: s
mappings:
  - columns: {A: amount}
`, "mappings[0].source"},
		{"bad mapping years", `
extracts:
  - file: a.csv
    source: s
mappings:
  - source: s
    years: then-now
    columns: {A: amount}
`, "mappings[0].years"},
		{"mapping without columns", `
extracts:
  - file: a.csv
    source: s
mappings:
  - source: s
`, "mappings[0].columns"},
		{"unknown canonical field", `
extracts:
  - file: a.csv
    source: s
mappings:
  - source: s
    columns: {Amt: dollars}
`, `mappings[0].columns["Amt"]`},
		{"unknown view dimension", minimalConfig + `
views:
  - name: v
    dimensions: [region]
`, "views.v.dimensions"},
		{"bad view category", minimalConfig + `
views:
  - name: v
    dimensions: [fiscal_year]
    category: transfers
`, "views.v.category"},
		{"view bounds outside the window", minimalConfig + `
views:
  - name: v
    dimensions: [fiscal_year]
    max_rows: 90
`, "views.v"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := compileText(t, tc.text)
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("got %v, want a ConfigurationError", err)
			}
			if ce.Field != tc.field {
				t.Errorf("error names %q, want %q", ce.Field, tc.field)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CITY_YEAR", "2021")
	text := `
output: out
reference:
  departments: refs/departments.csv
extracts:
  - file: budget_fy${CITY_YEAR}.csv
    source: budget_book
    year: ${CITY_YEAR}
    type: budgeted
mappings:
  - source: budget_book
    columns:
      Dept: department_code
      Amount: amount
      Type: category
`
	path := filepath.Join(dir, "fiscal.yaml")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("could not write config: %v", err)
	}

	plan, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if want := filepath.Join(dir, "budget_fy2021.csv"); plan.Extracts[0].Decl.File != want {
		t.Errorf("extract file = %q, want %q anchored at the config directory", plan.Extracts[0].Decl.File, want)
	}
	if plan.Extracts[0].Decl.Year != fy.New(2021) {
		t.Errorf("expanded year = %s, want FY2021", plan.Extracts[0].Decl.Year)
	}
	if want := filepath.Join(dir, "refs/departments.csv"); plan.Reference.Departments != want {
		t.Errorf("reference path = %q, want %q", plan.Reference.Departments, want)
	}
	if want := filepath.Join(dir, "out"); plan.Output != want {
		t.Errorf("output = %q, want %q", plan.Output, want)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Errorf("LoadConfig should fail for a missing file")
	}
}
