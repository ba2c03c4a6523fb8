package fiscal

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestJSONObjectWriter(t *testing.T) {
	w := &jsonObjectWriter{}
	w.Append("a", 1).Optional("b", "").Optional("c", "x").Optional("d", 0)
	b, err := w.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON returned error: %v", err)
	}
	if got := string(b); got != `{"a":1,"c":"x"}` {
		t.Errorf("object = %s, want zero values omitted and order preserved", got)
	}
}

func TestManifestFieldOrder(t *testing.T) {
	m := Manifest{
		Run:      uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Version:  "0.9.0",
		Started:  time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC),
		Finished: time.Date(2024, 3, 1, 4, 0, 9, 0, time.UTC),
		Inputs:   []InputDigest{{File: "budget.csv", Source: "budget_book", SHA256: "abc"}},
		Artifacts: []Artifact{
			{Name: "entities.parquet", Rows: 12, Bytes: 1024},
			{Name: "views/category_by_year.parquet", Rows: 4, Bytes: 512, Dims: []string{"category", "fiscal_year"}},
		},
		Entities: 12,
		Facts:    30,
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal returned error: %v", err)
	}
	s := string(b)

	keys := []string{`"run"`, `"version"`, `"started"`, `"finished"`, `"inputs"`, `"artifacts"`, `"entities"`, `"facts"`}
	last := -1
	for _, k := range keys {
		i := strings.Index(s, k)
		if i < 0 {
			t.Fatalf("manifest is missing %s: %s", k, s)
		}
		if i < last {
			t.Fatalf("%s out of order in %s", k, s)
		}
		last = i
	}
	// zero-valued optional counters stay out of the document
	if strings.Contains(s, `"conflicts"`) || strings.Contains(s, `"aliases"`) {
		t.Errorf("zero conflict and alias counts should be omitted: %s", s)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	m := Manifest{
		Run:       uuid.New(),
		Version:   "0.9.0",
		Started:   time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC),
		Finished:  time.Date(2024, 3, 1, 4, 0, 9, 0, time.UTC),
		Inputs:    []InputDigest{{File: "a.csv", Source: "s", SHA256: "00ff"}},
		Artifacts: []Artifact{{Name: "facts.parquet", Rows: 7, Bytes: 77}},
		Entities:  3,
		Facts:     7,
		Conflicts: 1,
		Aliases:   2,
	}

	var buf bytes.Buffer
	if err := EncodeManifest(&buf, m); err != nil {
		t.Fatalf("EncodeManifest returned error: %v", err)
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Errorf("encoded manifest should end with a newline")
	}

	back, err := DecodeManifest(&buf)
	if err != nil {
		t.Fatalf("DecodeManifest returned error: %v", err)
	}
	if back.Run != m.Run || back.Version != m.Version {
		t.Errorf("identity fields = %s %q", back.Run, back.Version)
	}
	if !back.Started.Equal(m.Started) || !back.Finished.Equal(m.Finished) {
		t.Errorf("timestamps = %s / %s", back.Started, back.Finished)
	}
	if len(back.Inputs) != 1 || back.Inputs[0] != m.Inputs[0] {
		t.Errorf("inputs = %+v", back.Inputs)
	}
	if back.Entities != 3 || back.Facts != 7 || back.Conflicts != 1 || back.Aliases != 2 {
		t.Errorf("counters = %d/%d/%d/%d", back.Entities, back.Facts, back.Conflicts, back.Aliases)
	}
}

func TestManifestView(t *testing.T) {
	m := Manifest{Artifacts: []Artifact{
		{Name: "facts.parquet", Rows: 10},
		{Name: "views/category_by_year.parquet", Rows: 4, Dims: []string{"category", "fiscal_year"}},
		{Name: "views/category_by_year.csv", Rows: 4},
	}}
	art := m.View("category_by_year")
	if art == nil || art.Rows != 4 || len(art.Dims) != 2 {
		t.Fatalf("View() = %+v, want the parquet artifact", art)
	}
	if m.View("absent") != nil {
		t.Errorf("View() found an artifact that was never written")
	}
}

func TestDigestFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "input.csv", "hello")
	got, err := DigestFile(path)
	if err != nil {
		t.Fatalf("DigestFile returned error: %v", err)
	}
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("digest = %s, want %s", got, want)
	}
}
