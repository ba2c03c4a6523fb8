package fiscal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("could not write %s: %v", name, err)
	}
	return path
}

func TestLoadReferences(t *testing.T) {
	dir := t.TempDir()
	paths := RefPaths{
		Accounts: writeFile(t, dir, "accounts.csv",
			"Account_Code,Account_Name,Account_Type,Notes\n5111,Salaries,Personnel,base pay\n4010,Service Charges,Revenue,\n,,ignored,\n"),
		Departments: writeFile(t, dir, "departments.csv",
			"department_code,department_name,department_group,district\nFIRE,Fire-Rescue,Public Safety,Citywide\nPKR,Parks and Recreation,Culture,District 3\n"),
		Funds: writeFile(t, dir, "funds.csv",
			"fund_code,fund_name,fund_type\n100,General Fund,General\n200,Water Utility,Enterprise\n"),
	}

	refs, err := LoadReferences(paths)
	if err != nil {
		t.Fatalf("LoadReferences returned error: %v", err)
	}
	if len(refs.Accounts) != 2 || len(refs.Departments) != 2 || len(refs.Funds) != 2 {
		t.Fatalf("table sizes = %d/%d/%d, want 2 each", len(refs.Accounts), len(refs.Departments), len(refs.Funds))
	}
	if a := refs.Accounts["5111"]; a.Name != "Salaries" || a.Type != "Personnel" {
		t.Errorf("account 5111 = %+v", a)
	}
	if d := refs.Departments["PKR"]; d.Group != "Culture" || d.District != "District 3" {
		t.Errorf("department PKR = %+v", d)
	}
	if f := refs.Funds["200"]; f.Type != "Enterprise" {
		t.Errorf("fund 200 = %+v", f)
	}
}

func TestLoadReferencesErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing column", func(t *testing.T) {
		path := writeFile(t, dir, "funds.csv", "fund_code,fund_name\n100,General Fund\n")
		_, err := LoadReferences(RefPaths{Funds: path})
		var ce *ConfigurationError
		if !errors.As(err, &ce) {
			t.Fatalf("got %v, want a ConfigurationError", err)
		}
		if ce.Field != "reference.funds" {
			t.Errorf("error names %q, want reference.funds", ce.Field)
		}
	})

	t.Run("unreadable file", func(t *testing.T) {
		_, err := LoadReferences(RefPaths{Departments: filepath.Join(dir, "absent.csv")})
		var ce *ConfigurationError
		if !errors.As(err, &ce) || ce.Field != "reference.departments" {
			t.Fatalf("got %v, want a ConfigurationError on reference.departments", err)
		}
	})
}

func TestEnrich(t *testing.T) {
	refs := &References{
		Funds: map[string]RefFund{
			"100": {Code: "100", Name: "General Fund", Type: "General"},
		},
		Departments: map[string]RefDepartment{
			"FIRE": {Code: "FIRE", Name: "Fire-Rescue", Group: "Public Safety"},
		},
		Accounts: map[string]RefAccount{
			"5111": {Code: "5111", Name: "Salaries", Type: "Personnel"},
		},
	}
	records := []FiscalRecord{
		{Year: 2021, Fund: "100", Dept: "FIRE", LineItem: "5111", Account: "5111", Amount: A(100)},
		{Year: 2021, Fund: "100", FundName: "THE General Fund", Dept: "X1", Amount: A(50)},
		{Year: 2021, Fund: "999", Dept: "X1", Account: "7000", Category: Expense, Amount: A(25)},
	}

	out, misses := refs.Enrich(records)

	if records[0].FundName != "" {
		t.Fatalf("Enrich modified its input")
	}
	r := out[0]
	if r.FundName != "General Fund" || r.DeptName != "Fire-Rescue" {
		t.Errorf("names = %q / %q, want reference names filled in", r.FundName, r.DeptName)
	}
	if r.Category != Expense {
		t.Errorf("category = %v, want expense derived from the personnel account", r.Category)
	}
	if r.LineItemName != "Salaries" {
		t.Errorf("line item name = %q, want the account name", r.LineItemName)
	}
	if out[1].FundName != "THE General Fund" {
		t.Errorf("Enrich overwrote a name the extract carried")
	}

	want := []RefMiss{
		{Table: "accounts", Code: "7000", Count: 1},
		{Table: "departments", Code: "X1", Count: 2},
		{Table: "funds", Code: "999", Count: 1},
	}
	if len(misses) != len(want) {
		t.Fatalf("misses = %+v, want %+v", misses, want)
	}
	for i := range want {
		if misses[i] != want[i] {
			t.Errorf("miss %d = %+v, want %+v", i, misses[i], want[i])
		}
	}
}

func TestDecorate(t *testing.T) {
	records := []FiscalRecord{
		{Year: 2021, Fund: "100", FundName: "General Fund", Dept: "PR", DeptName: "Parks & Recreation", Amount: A(1)},
		{Year: 2022, Fund: "GF", FundName: "General Fund", Dept: "PKR", DeptName: "Parks and Recreation", Amount: A(1)},
	}
	res := resolveAll(t, records)

	refs := &References{
		// keyed by the retired fund code and the current department code
		Funds:       map[string]RefFund{"100": {Code: "100", Type: "General"}},
		Departments: map[string]RefDepartment{"PKR": {Code: "PKR", Group: "Culture", District: "District 3"}},
	}
	refs.Decorate(res.Tree)

	for e := range res.Tree.All() {
		switch e.Kind {
		case KindFund:
			if e.FundType != "General" {
				t.Errorf("fund type = %q, want lookup through the alias code", e.FundType)
			}
		case KindDepartment:
			if e.DeptGroup != "Culture" || e.District != "District 3" {
				t.Errorf("department decoration = %q / %q", e.DeptGroup, e.District)
			}
		}
	}
}

func TestValidateCategories(t *testing.T) {
	good := []FiscalRecord{{File: "a.csv", Row: 2, Category: Expense}}
	if err := ValidateCategories(good); err != nil {
		t.Fatalf("ValidateCategories returned error: %v", err)
	}

	bad := []FiscalRecord{
		{File: "a.csv", Row: 2, Category: Revenue},
		{File: "a.csv", Row: 3},
	}
	err := ValidateCategories(bad)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("got %v, want a FormatError", err)
	}
	if fe.File != "a.csv" || fe.Row != 3 || fe.Column != "category" {
		t.Errorf("error pinpoints %s:%d %q, want a.csv:3 category", fe.File, fe.Row, fe.Column)
	}
}
