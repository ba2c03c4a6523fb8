package fiscal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/opencouncil/fiscal/fy"
)

// CheckStatus is the outcome of one verification check.
type CheckStatus int

const (
	Pass CheckStatus = iota
	Warn
	Fail
)

func (s CheckStatus) String() string {
	switch s {
	case Warn:
		return "warn"
	case Fail:
		return "fail"
	default:
		return "pass"
	}
}

// CheckResult is one verification check with its outcome and a detail line.
type CheckResult struct {
	Name   string
	Status CheckStatus
	Detail string
}

// Failed reports whether any check failed. Warnings do not count.
func Failed(results []CheckResult) bool {
	for _, r := range results {
		if r.Status == Fail {
			return true
		}
	}
	return false
}

// VerifyConfig carries the sanity bounds of the soft checks.
type VerifyConfig struct {
	MinYear  fy.Year // default 2010
	MaxYear  fy.Year // default 2035
	MinTotal float64 // yearly expense floor, default $1M
	MaxTotal float64 // yearly expense ceiling, default $50B
}

func (c VerifyConfig) withDefaults() VerifyConfig {
	if !c.MinYear.Valid() {
		c.MinYear = fy.Year(2010)
	}
	if !c.MaxYear.Valid() {
		c.MaxYear = fy.Year(2035)
	}
	if c.MinTotal == 0 {
		c.MinTotal = 1e6
	}
	if c.MaxTotal == 0 {
		c.MaxTotal = 5e10
	}
	return c
}

// Verify opens a completed output directory and runs read-only integrity
// checks over the written artifacts with an embedded DuckDB. It returns one
// result per check; only opening the directory itself can error.
func Verify(ctx context.Context, dir string, cfg VerifyConfig) ([]CheckResult, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("no completed run in %q: %w", dir, err)
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("could not open duckdb: %w", err)
	}
	defer db.Close()

	v := &verifier{ctx: ctx, db: db, dir: dir, m: &manifest, cfg: cfg.withDefaults()}
	v.checkArtifacts()
	v.checkFactKeys()
	v.checkRollups()
	v.checkViewBounds()
	v.checkYearWindow()
	v.checkMissingSides()
	v.checkNegativeLeaves()
	v.checkExpenseBand()
	return v.results, nil
}

type verifier struct {
	ctx     context.Context
	db      *sql.DB
	dir     string
	m       *Manifest
	cfg     VerifyConfig
	results []CheckResult
}

func (v *verifier) add(name string, status CheckStatus, format string, args ...any) {
	v.results = append(v.results, CheckResult{Name: name, Status: status, Detail: fmt.Sprintf(format, args...)})
}

func (v *verifier) queryInt(q string) (int64, error) {
	var n int64
	err := v.db.QueryRowContext(v.ctx, q).Scan(&n)
	return n, err
}

// parquetRef quotes a path into a read_parquet table literal.
func parquetRef(path string) string {
	return fmt.Sprintf("read_parquet('%s')", strings.ReplaceAll(path, "'", "''"))
}

func (v *verifier) facts() string    { return parquetRef(filepath.Join(v.dir, factsName)) }
func (v *verifier) entities() string { return parquetRef(filepath.Join(v.dir, entitiesName)) }

// checkArtifacts confirms every artifact the manifest inventories exists and
// is non-empty.
func (v *verifier) checkArtifacts() {
	var missing []string
	for _, art := range v.m.Artifacts {
		info, err := os.Stat(filepath.Join(v.dir, filepath.FromSlash(art.Name)))
		switch {
		case err != nil:
			missing = append(missing, art.Name)
		case info.Size() == 0:
			missing = append(missing, art.Name+" (empty)")
		}
	}
	if len(missing) > 0 {
		v.add("artifacts", Fail, "missing or empty: %s", strings.Join(missing, ", "))
		return
	}
	v.add("artifacts", Pass, "%d artifacts present", len(v.m.Artifacts))
}

// checkFactKeys confirms at most one fact per (fiscal year, entity,
// category).
func (v *verifier) checkFactKeys() {
	q := fmt.Sprintf(`SELECT count(*) FROM (
		SELECT fiscal_year, entity_key, category
		FROM %s GROUP BY 1, 2, 3 HAVING count(*) > 1
	)`, v.facts())
	n, err := v.queryInt(q)
	if err != nil {
		v.add("fact-keys", Fail, "query failed: %v", err)
		return
	}
	if n > 0 {
		v.add("fact-keys", Fail, "%d duplicate (year, entity, category) keys", n)
		return
	}
	v.add("fact-keys", Pass, "no duplicate keys in %d facts", v.m.Facts)
}

// checkRollups confirms every non-leaf fact equals the sum of its children,
// to within half a cent of DOUBLE rounding, on both sides, absence included.
func (v *verifier) checkRollups() {
	q := fmt.Sprintf(`SELECT count(*) FROM (
		SELECT f.fiscal_year, f.entity_key, f.category
		FROM %[1]s f
		JOIN %[2]s e ON e.parent_key = f.entity_key
		JOIN %[1]s c ON c.entity_key = e.key
			AND c.fiscal_year = f.fiscal_year AND c.category = f.category
		WHERE NOT f.leaf
		GROUP BY 1, 2, 3, f.budgeted, f.actual
		HAVING abs(coalesce(f.budgeted, 0) - coalesce(sum(c.budgeted), 0)) > 0.005
			OR abs(coalesce(f.actual, 0) - coalesce(sum(c.actual), 0)) > 0.005
			OR (f.budgeted IS NULL) <> (sum(c.budgeted) IS NULL)
			OR (f.actual IS NULL) <> (sum(c.actual) IS NULL)
	)`, v.facts(), v.entities())
	n, err := v.queryInt(q)
	if err != nil {
		v.add("roll-ups", Fail, "query failed: %v", err)
		return
	}
	if n > 0 {
		v.add("roll-ups", Fail, "%d non-leaf facts disagree with their children", n)
		return
	}
	v.add("roll-ups", Pass, "every roll-up equals the sum of its children")
}

// checkViewBounds recounts each view and holds it to the [10, 50] window:
// warning under, failure over, failure on manifest disagreement.
func (v *verifier) checkViewBounds() {
	checked := 0
	for _, art := range v.m.Artifacts {
		if !strings.HasPrefix(art.Name, viewsDirName+"/") || !strings.HasSuffix(art.Name, ".parquet") {
			continue
		}
		checked++
		name := strings.TrimSuffix(strings.TrimPrefix(art.Name, viewsDirName+"/"), ".parquet")
		n, err := v.queryInt("SELECT count(*) FROM " + parquetRef(filepath.Join(v.dir, filepath.FromSlash(art.Name))))
		switch {
		case err != nil:
			v.add("view-bounds", Fail, "%s: query failed: %v", name, err)
		case int(n) != art.Rows:
			v.add("view-bounds", Fail, "%s: %d rows on disk, %d in manifest", name, n, art.Rows)
		case n > maxViewRows:
			v.add("view-bounds", Fail, "%s: %d rows exceed the %d bound", name, n, maxViewRows)
		case n < minViewRows:
			v.add("view-bounds", Warn, "%s: only %d rows, bound floor is %d", name, n, minViewRows)
		default:
			v.add("view-bounds", Pass, "%s: %d rows", name, n)
		}
	}
	if checked == 0 {
		v.add("view-bounds", Warn, "no view artifacts in manifest")
	}
}

// checkYearWindow warns about fiscal years outside the configured window.
func (v *verifier) checkYearWindow() {
	q := fmt.Sprintf("SELECT count(*) FROM %s WHERE fiscal_year < %d OR fiscal_year > %d",
		v.facts(), int(v.cfg.MinYear), int(v.cfg.MaxYear))
	n, err := v.queryInt(q)
	if err != nil {
		v.add("year-window", Fail, "query failed: %v", err)
		return
	}
	if n > 0 {
		v.add("year-window", Warn, "%d facts outside %s-%s", n, v.cfg.MinYear, v.cfg.MaxYear)
		return
	}
	v.add("year-window", Pass, "all facts within %s-%s", v.cfg.MinYear, v.cfg.MaxYear)
}

// checkMissingSides confirms the missing classifications carry NULL on the
// missing side; absent is never folded into zero.
func (v *verifier) checkMissingSides() {
	q := fmt.Sprintf(`SELECT count(*) FROM %s
		WHERE (classification = 'missing_actual' AND actual IS NOT NULL)
		   OR (classification = 'missing_budget' AND budgeted IS NOT NULL)`, v.facts())
	n, err := v.queryInt(q)
	if err != nil {
		v.add("missing-sides", Fail, "query failed: %v", err)
		return
	}
	if n > 0 {
		v.add("missing-sides", Fail, "%d facts carry an amount on their missing side", n)
		return
	}
	v.add("missing-sides", Pass, "missing sides are NULL throughout")
}

// checkNegativeLeaves confirms no leaf fact carries a negative amount.
func (v *verifier) checkNegativeLeaves() {
	q := fmt.Sprintf("SELECT count(*) FROM %s WHERE leaf AND (budgeted < 0 OR actual < 0)", v.facts())
	n, err := v.queryInt(q)
	if err != nil {
		v.add("negative-amounts", Fail, "query failed: %v", err)
		return
	}
	if n > 0 {
		v.add("negative-amounts", Fail, "%d leaf facts with negative amounts", n)
		return
	}
	v.add("negative-amounts", Pass, "no negative leaf amounts")
}

// checkExpenseBand warns when a year's total budgeted expense falls outside
// the configured magnitude band.
func (v *verifier) checkExpenseBand() {
	q := fmt.Sprintf(`SELECT count(*) FROM (
		SELECT fiscal_year, sum(budgeted) AS total
		FROM %s WHERE leaf AND category = 'expense'
		GROUP BY 1
		HAVING total < %f OR total > %f
	)`, v.facts(), v.cfg.MinTotal, v.cfg.MaxTotal)
	n, err := v.queryInt(q)
	if err != nil {
		v.add("expense-band", Fail, "query failed: %v", err)
		return
	}
	if n > 0 {
		v.add("expense-band", Warn, "%d fiscal years with total expense outside $%.0f-$%.0f", n, v.cfg.MinTotal, v.cfg.MaxTotal)
		return
	}
	v.add("expense-band", Pass, "yearly expense totals within $%.0f-$%.0f", v.cfg.MinTotal, v.cfg.MaxTotal)
}
