package fiscal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// publishFixture runs the standard two-year fixture and returns the
// published output directory with its manifest.
func publishFixture(t *testing.T) (string, Manifest) {
	t.Helper()
	plan := planFixture(t)
	runner := NewRunner(plan)
	runner.Now = fixedClock
	rep, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	return plan.Output, rep.Manifest
}

func TestVerify(t *testing.T) {
	dir, _ := publishFixture(t)

	results, err := Verify(context.Background(), dir, VerifyConfig{})
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if Failed(results) {
		t.Fatalf("a clean run failed verification: %+v", results)
	}

	byName := make(map[string][]CheckResult)
	for _, r := range results {
		byName[r.Name] = append(byName[r.Name], r)
	}
	for _, name := range []string{
		"artifacts", "fact-keys", "roll-ups", "year-window",
		"missing-sides", "negative-amounts", "expense-band",
	} {
		rs := byName[name]
		if len(rs) != 1 || rs[0].Status != Pass {
			t.Errorf("%s = %+v, want a single pass", name, rs)
		}
	}

	// six views, all below the row floor on this small fixture
	bounds := byName["view-bounds"]
	if len(bounds) != 6 {
		t.Fatalf("got %d view-bounds results, want one per view", len(bounds))
	}
	for _, r := range bounds {
		if r.Status != Warn {
			t.Errorf("view-bounds %q = %s, want a floor warning", r.Detail, r.Status)
		}
	}
}

func TestVerifyDetectsMissingArtifact(t *testing.T) {
	dir, _ := publishFixture(t)
	if err := os.WriteFile(filepath.Join(dir, "audit.md"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	results, err := Verify(context.Background(), dir, VerifyConfig{})
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !Failed(results) {
		t.Fatalf("truncated artifact passed verification")
	}
	for _, r := range results {
		if r.Name == "artifacts" && r.Status != Fail {
			t.Errorf("artifacts = %s, want fail", r.Status)
		}
	}
}

func TestVerifySoftBounds(t *testing.T) {
	dir, _ := publishFixture(t)

	// FY2021 falls before the window and both years miss a $5M floor
	cfg := VerifyConfig{MinYear: 2022, MinTotal: 5e6}
	results, err := Verify(context.Background(), dir, cfg)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if Failed(results) {
		t.Fatalf("soft bounds should warn, not fail: %+v", results)
	}
	status := make(map[string]CheckStatus)
	for _, r := range results {
		status[r.Name] = r.Status
	}
	if status["year-window"] != Warn {
		t.Errorf("year-window = %s, want warn", status["year-window"])
	}
	if status["expense-band"] != Warn {
		t.Errorf("expense-band = %s, want warn", status["expense-band"])
	}
}

func TestVerifyWithoutRun(t *testing.T) {
	if _, err := Verify(context.Background(), t.TempDir(), VerifyConfig{}); err == nil {
		t.Errorf("Verify accepted a directory with no completed run")
	}
}

func TestFailed(t *testing.T) {
	ok := []CheckResult{{Status: Pass}, {Status: Warn}}
	if Failed(ok) {
		t.Errorf("warnings should not count as failure")
	}
	if !Failed(append(ok, CheckResult{Status: Fail})) {
		t.Errorf("a failing check should fail the set")
	}
}

func TestCheckStatusString(t *testing.T) {
	for _, tc := range []struct {
		in   CheckStatus
		want string
	}{
		{Pass, "pass"},
		{Warn, "warn"},
		{Fail, "fail"},
	} {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("String(%d) = %q, want %q", int(tc.in), got, tc.want)
		}
	}
}
