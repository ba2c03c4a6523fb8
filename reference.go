package fiscal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Reference tables enrich normalized records with the display attributes
// the aggregation dimensions are built from: fund types, department groups
// and council districts. They are plain CSVs with fixed canonical headers.
// Enrichment degrades gracefully: unmatched codes keep their raw values and
// the misses are surfaced in the audit report.

// RefAccount maps an account code to its display name and account type.
type RefAccount struct {
	Code string
	Name string
	Type string // e.g. "Personnel", "Non-Personnel", "Revenue"
}

// RefDepartment maps a department code to its display attributes.
type RefDepartment struct {
	Code     string
	Name     string
	Group    string // service-area grouping, a view dimension
	District string // council district, a view dimension
}

// RefFund maps a fund code to its display name and fund type.
type RefFund struct {
	Code string
	Name string
	Type string // e.g. "General Fund", "Enterprise", "Capital"
}

// References holds the loaded reference tables. Nil maps are legal and act
// as empty tables.
type References struct {
	Accounts    map[string]RefAccount
	Departments map[string]RefDepartment
	Funds       map[string]RefFund
}

// RefPaths locates the reference CSVs. Empty paths skip that table.
type RefPaths struct {
	Accounts    string `yaml:"accounts"`
	Departments string `yaml:"departments"`
	Funds       string `yaml:"funds"`
}

// LoadReferences reads the configured reference tables. A configured path
// that cannot be read is a ConfigurationError.
func LoadReferences(paths RefPaths) (*References, error) {
	refs := &References{}
	if paths.Accounts != "" {
		rows, err := readRefCSV(paths.Accounts, "accounts", []string{"account_code", "account_name", "account_type"})
		if err != nil {
			return nil, err
		}
		refs.Accounts = make(map[string]RefAccount, len(rows))
		for _, r := range rows {
			refs.Accounts[r[0]] = RefAccount{Code: r[0], Name: r[1], Type: r[2]}
		}
	}
	if paths.Departments != "" {
		rows, err := readRefCSV(paths.Departments, "departments", []string{"department_code", "department_name", "department_group", "district"})
		if err != nil {
			return nil, err
		}
		refs.Departments = make(map[string]RefDepartment, len(rows))
		for _, r := range rows {
			refs.Departments[r[0]] = RefDepartment{Code: r[0], Name: r[1], Group: r[2], District: r[3]}
		}
	}
	if paths.Funds != "" {
		rows, err := readRefCSV(paths.Funds, "funds", []string{"fund_code", "fund_name", "fund_type"})
		if err != nil {
			return nil, err
		}
		refs.Funds = make(map[string]RefFund, len(rows))
		for _, r := range rows {
			refs.Funds[r[0]] = RefFund{Code: r[0], Name: r[1], Type: r[2]}
		}
	}
	return refs, nil
}

// readRefCSV loads a reference table and projects the wanted columns, in
// order. The first wanted column is the key and must be non-empty.
func readRefCSV(path, table string, want []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigurationError{Field: "reference." + table, Reason: err.Error()}
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, &ConfigurationError{Field: "reference." + table, Reason: fmt.Sprintf("%s: cannot read header: %v", path, err)}
	}
	pos := make([]int, len(want))
	for i := range pos {
		pos[i] = -1
	}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for j, w := range want {
			if h == w {
				pos[j] = i
			}
		}
	}
	for j, w := range want {
		if pos[j] == -1 {
			return nil, &ConfigurationError{Field: "reference." + table, Reason: fmt.Sprintf("%s: missing column %q", path, w)}
		}
	}

	var rows [][]string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ConfigurationError{Field: "reference." + table, Reason: fmt.Sprintf("%s: %v", path, err)}
		}
		projected := make([]string, len(want))
		for j, i := range pos {
			if i < len(row) {
				projected[j] = strings.TrimSpace(row[i])
			}
		}
		if projected[0] == "" {
			continue
		}
		rows = append(rows, projected)
	}
	return rows, nil
}

// RefMiss counts lookups against a reference table that found no row.
type RefMiss struct {
	Table string
	Code  string
	Count int
}

// Enrich returns enriched copies of the records: reference display names
// for codes that carried none, and categories derived from account types.
// The input is not modified.
func (refs *References) Enrich(records []FiscalRecord) ([]FiscalRecord, []RefMiss) {
	misses := make(map[[2]string]int)
	miss := func(table, code string) {
		if code != "" {
			misses[[2]string{table, code}]++
		}
	}

	out := make([]FiscalRecord, len(records))
	for i, r := range records {
		if r.Fund != "" && refs.Funds != nil {
			if f, ok := refs.Funds[r.Fund]; ok {
				if r.FundName == "" {
					r.FundName = f.Name
				}
			} else {
				miss("funds", r.Fund)
			}
		}
		if r.Dept != "" && refs.Departments != nil {
			if d, ok := refs.Departments[r.Dept]; ok {
				if r.DeptName == "" {
					r.DeptName = d.Name
				}
			} else {
				miss("departments", r.Dept)
			}
		}
		if r.Account != "" && refs.Accounts != nil {
			if a, ok := refs.Accounts[r.Account]; ok {
				if r.Category == CategoryUnknown {
					r.Category = CategoryOfAccountType(a.Type)
				}
				if r.LineItemName == "" && r.LineItem == r.Account {
					r.LineItemName = a.Name
				}
			} else {
				miss("accounts", r.Account)
			}
		}
		out[i] = r
	}

	missList := make([]RefMiss, 0, len(misses))
	for k, n := range misses {
		missList = append(missList, RefMiss{Table: k[0], Code: k[1], Count: n})
	}
	sort.Slice(missList, func(i, j int) bool {
		a, b := missList[i], missList[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		return a.Code < b.Code
	})
	return out, missList
}

// Decorate fills the dimension attributes on resolved entities: fund types
// on funds, department groups and districts on departments. Alias codes are
// tried from the latest year backwards when the canonical code has no
// reference row.
func (refs *References) Decorate(tree *Tree) {
	for e := range tree.All() {
		switch e.Kind {
		case KindFund:
			if refs.Funds == nil {
				continue
			}
			for _, code := range candidateCodes(e) {
				if f, ok := refs.Funds[code]; ok {
					e.FundType = f.Type
					break
				}
			}
		case KindDepartment:
			if refs.Departments == nil {
				continue
			}
			for _, code := range candidateCodes(e) {
				if d, ok := refs.Departments[code]; ok {
					e.DeptGroup = d.Group
					e.District = d.District
					break
				}
			}
		}
	}
}

// candidateCodes lists the entity's codes for reference lookup: canonical
// first, then aliases from the latest year backwards.
func candidateCodes(e *Entity) []string {
	codes := make([]string, 0, 1+len(e.Aliases))
	if e.Code != "" {
		codes = append(codes, e.Code)
	}
	for i := len(e.Aliases) - 1; i >= 0; i-- {
		if c := e.Aliases[i].Code; c != "" && c != e.Code {
			codes = append(codes, c)
		}
	}
	return codes
}


// ValidateCategories rejects records that remain uncategorized after
// mapping and enrichment, pinpointing the first offending row.
func ValidateCategories(records []FiscalRecord) error {
	for _, r := range records {
		if r.Category == CategoryUnknown {
			return &FormatError{File: r.File, Row: r.Row, Column: FieldCategory.String(), Value: "",
				Err: fmt.Errorf("no category, account type or account reference resolves this row")}
		}
	}
	return nil
}
