package fiscal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read %s: %v", path, err)
	}
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func TestWriteFactsCSV(t *testing.T) {
	records := []FiscalRecord{
		{Year: 2021, Source: "budget", Fund: "100", Dept: "FIRE", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(1000)},
		{Year: 2021, Source: "actuals", Fund: "100", Dept: "FIRE", Category: Expense, Type: Actual, Cycle: CycleActual, Amount: A(1010)},
		{Year: 2021, Source: "actuals", Fund: "100", Dept: "LIB", Category: Expense, Type: Actual, Cycle: CycleActual, Amount: A(50)},
	}
	facts, res := factsFor(t, records)

	path := filepath.Join(t.TempDir(), "facts.csv")
	if err := WriteFactsCSV(path, facts); err != nil {
		t.Fatalf("WriteFactsCSV returned error: %v", err)
	}

	lines := readLines(t, path)
	if lines[0] != "fiscal_year,entity_key,kind,category,budgeted,actual,variance,classification,leaf" {
		t.Errorf("header = %s", lines[0])
	}
	if len(lines) != 1+len(facts) {
		t.Fatalf("got %d data rows, want %d", len(lines)-1, len(facts))
	}

	fire := findFact(t, facts, res, "100/FIRE", 2021, Expense)
	wantFire := fmt.Sprintf("2021,%s,department,expense,1000.00,1010.00,10.00,on_target,true", fire.Entity)
	lib := findFact(t, facts, res, "100/LIB", 2021, Expense)
	wantLib := fmt.Sprintf("2021,%s,department,expense,,50.00,,missing_budget,true", lib.Entity)
	for _, want := range []string{wantFire, wantLib} {
		found := false
		for _, line := range lines[1:] {
			if line == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing row %q in:\n%s", want, strings.Join(lines, "\n"))
		}
	}
}

func TestWriteEntitiesCSV(t *testing.T) {
	records := []FiscalRecord{
		{Year: 2021, Source: "budget", Fund: "100", FundName: "General Fund", Dept: "FIRE", DeptName: "Fire-Rescue", Category: Expense, Type: Budgeted, Cycle: Adopted, Amount: A(1000)},
	}
	res := resolveAll(t, records)

	path := filepath.Join(t.TempDir(), "entities.csv")
	if err := WriteEntitiesCSV(path, res.Tree); err != nil {
		t.Fatalf("WriteEntitiesCSV returned error: %v", err)
	}

	lines := readLines(t, path)
	if lines[0] != "key,kind,code,name,parent_key,depth,fund_type,department_group,district,alias_count" {
		t.Errorf("header = %s", lines[0])
	}
	if len(lines) != 1+res.Tree.Len() {
		t.Fatalf("got %d data rows, want %d", len(lines)-1, res.Tree.Len())
	}

	// pre-order: the fund root comes first, its department after
	fund := strings.Split(lines[1], ",")
	if fund[1] != "fund" || fund[2] != "100" || fund[3] != "General Fund" || fund[4] != "" || fund[5] != "0" {
		t.Errorf("fund row = %s", lines[1])
	}
	dept := strings.Split(lines[2], ",")
	if dept[1] != "department" || dept[2] != "FIRE" || dept[4] != fund[0] || dept[5] != "1" {
		t.Errorf("department row = %s", lines[2])
	}
}

func TestWriteViewCSV(t *testing.T) {
	v := View{
		Spec: ViewSpec{
			Name:       "category_by_year",
			Dimensions: []Dimension{DimCategory, DimYear},
		},
		Rows: []ViewRow{
			{Dims: []string{"expense", "2021"}, Budgeted: A(1600000), Actual: A(1615000), Facts: 3, BudgetedFacts: 3, ActualFacts: 3},
			{Dims: []string{"revenue", "2021"}, Actual: A(2050000), Facts: 1, ActualFacts: 1},
		},
	}

	path := filepath.Join(t.TempDir(), "category_by_year.csv")
	if err := WriteViewCSV(path, v); err != nil {
		t.Fatalf("WriteViewCSV returned error: %v", err)
	}

	lines := readLines(t, path)
	want := []string{
		"category,fiscal_year,budgeted,actual,variance,facts,budgeted_facts,actual_facts",
		"expense,2021,1600000.00,1615000.00,15000.00,3,3,3",
		"revenue,2021,,2050000.00,,1,0,1",
	}
	for i, line := range want {
		if i >= len(lines) || lines[i] != line {
			t.Errorf("line %d = %q, want %q", i, lines[i], line)
		}
	}
}
