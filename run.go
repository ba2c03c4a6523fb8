package fiscal

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Runner executes one full pipeline run from a compiled Plan: normalize,
// resolve, reconcile, aggregate, publish. The zero values of Logger and Now
// are usable; tests inject a fixed clock.
type Runner struct {
	Plan   *Plan
	Logger zerolog.Logger
	Now    func() time.Time
}

// NewRunner returns a Runner with a silent logger and the wall clock.
func NewRunner(plan *Plan) *Runner {
	return &Runner{Plan: plan, Logger: zerolog.Nop(), Now: time.Now}
}

// RunReport is what a completed run hands back to the caller: the manifest,
// the audit trail and the built views.
type RunReport struct {
	Manifest Manifest
	Audit    *AuditReport
	Views    []View
}

type extractResult struct {
	records []FiscalRecord
	stat    ExtractStat
	digest  string
	err     error
}

// Run executes the plan. Any error is fatal for the whole run: nothing is
// published and the previous output set stays as it was.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	plan := r.Plan
	now := r.Now
	if now == nil {
		now = time.Now
	}
	started := now().UTC().Truncate(time.Second)

	// Extracts parse independently, bounded by the CPU count. Errors
	// surface in declaration order so reruns fail the same way.
	results := make([]extractResult, len(plan.Extracts))
	sem := make(chan struct{}, max(1, runtime.GOMAXPROCS(0)))
	var wg sync.WaitGroup
	for i, ex := range plan.Extracts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				results[i].err = err
				return
			}
			results[i] = loadExtract(ex)
		}()
	}
	wg.Wait()

	perExtract := make([][]FiscalRecord, len(results))
	stats := make([]ExtractStat, len(results))
	inputs := make([]InputDigest, len(results))
	for i, er := range results {
		if er.err != nil {
			return nil, er.err
		}
		perExtract[i] = er.records
		stats[i] = er.stat
		inputs[i] = InputDigest{File: plan.Extracts[i].Decl.File, Source: plan.Extracts[i].Decl.Source, SHA256: er.digest}
		r.Logger.Info().
			Str("file", er.stat.File).
			Int("rows", er.stat.Rows).
			Int("records", er.stat.Records).
			Msg("normalized extract")
	}
	records := MergeRecords(perExtract)

	refs, err := LoadReferences(plan.Reference)
	if err != nil {
		return nil, err
	}
	records, misses := refs.Enrich(records)
	if err := ValidateCategories(records); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := ResolveHierarchy(records)
	if err != nil {
		return nil, err
	}
	refs.Decorate(res.Tree)
	r.Logger.Info().
		Int("entities", res.Tree.Len()).
		Int("conflicts", len(res.Conflicts)).
		Msg("resolved hierarchy")

	facts, drops, err := Reconcile(records, res, plan.Reconcile)
	if err != nil {
		return nil, err
	}
	r.Logger.Info().Int("facts", len(facts)).Msg("reconciled")

	views, err := BuildViews(plan.Views, facts, res.Tree)
	if err != nil {
		return nil, err
	}
	for _, v := range views {
		r.Logger.Info().Str("view", v.Spec.Name).Int("rows", len(v.Rows)).Msg("built view")
	}
	rep := NewAuditReport(stats, res, misses, drops, facts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	manifest, err := r.publish(plan, res.Tree, facts, views, rep, inputs, started, now)
	if err != nil {
		return nil, err
	}
	r.Logger.Info().Str("dir", plan.Output).Int("artifacts", len(manifest.Artifacts)).Msg("published artifacts")
	return &RunReport{Manifest: manifest, Audit: rep, Views: views}, nil
}

// publish stages every artifact and commits them atomically, manifest last.
func (r *Runner) publish(plan *Plan, tree *Tree, facts []Fact, views []View, rep *AuditReport, inputs []InputDigest, started time.Time, now func() time.Time) (Manifest, error) {
	store, err := NewStore(plan.Output)
	if err != nil {
		return Manifest{}, err
	}
	defer store.Discard()

	var artifacts []Artifact
	add := func(name string, rows int, dims []string) error {
		art, err := store.Add(name, rows, dims)
		if err != nil {
			return err
		}
		artifacts = append(artifacts, art)
		return nil
	}

	rows, err := WriteEntitiesParquet(store.Path(entitiesName), tree)
	if err != nil {
		return Manifest{}, err
	}
	if err := add(entitiesName, rows, nil); err != nil {
		return Manifest{}, err
	}
	if plan.CSV {
		if err := WriteEntitiesCSV(store.Path("entities.csv"), tree); err != nil {
			return Manifest{}, err
		}
		if err := add("entities.csv", rows, nil); err != nil {
			return Manifest{}, err
		}
	}

	rows, err = WriteFactsParquet(store.Path(factsName), facts)
	if err != nil {
		return Manifest{}, err
	}
	if err := add(factsName, rows, nil); err != nil {
		return Manifest{}, err
	}
	if plan.CSV {
		if err := WriteFactsCSV(store.Path("facts.csv"), facts); err != nil {
			return Manifest{}, err
		}
		if err := add("facts.csv", rows, nil); err != nil {
			return Manifest{}, err
		}
	}

	for _, v := range views {
		name := viewArtifactName(v.Spec.Name)
		rows, err := WriteViewParquet(store.Path(name), v)
		if err != nil {
			return Manifest{}, err
		}
		if err := add(name, rows, v.Spec.DimensionNames()); err != nil {
			return Manifest{}, err
		}
		if plan.CSV {
			csvName := viewsDirName + "/" + v.Spec.Name + ".csv"
			if err := WriteViewCSV(store.Path(csvName), v); err != nil {
				return Manifest{}, err
			}
			if err := add(csvName, rows, v.Spec.DimensionNames()); err != nil {
				return Manifest{}, err
			}
		}
	}

	if err := writeFileSync(store.Path(auditName), []byte(rep.Markdown())); err != nil {
		return Manifest{}, err
	}
	if err := add(auditName, 0, nil); err != nil {
		return Manifest{}, err
	}

	manifest := Manifest{
		Run:       uuid.New(),
		Version:   Version,
		Started:   started,
		Finished:  now().UTC().Truncate(time.Second),
		Inputs:    inputs,
		Artifacts: artifacts,
		Entities:  tree.Len(),
		Facts:     len(facts),
		Conflicts: len(rep.Conflicts),
		Aliases:   len(rep.Aliases),
	}
	var buf bytes.Buffer
	if err := EncodeManifest(&buf, manifest); err != nil {
		return Manifest{}, err
	}
	if err := writeFileSync(store.Path(manifestName), buf.Bytes()); err != nil {
		return Manifest{}, err
	}
	if err := store.Commit(); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

// loadExtract reads one input file fully, digests it and normalizes it. The
// digest covers exactly the bytes that were parsed.
func loadExtract(ex Extract) extractResult {
	data, err := os.ReadFile(ex.Decl.File)
	if err != nil {
		return extractResult{err: fmt.Errorf("could not read extract %q: %w", ex.Decl.File, err)}
	}
	sum := sha256.Sum256(data)
	records, stat, err := Normalize(bytes.NewReader(data), ex.Decl, ex.Columns)
	return extractResult{records: records, stat: stat, digest: hex.EncodeToString(sum[:]), err: err}
}

func writeFileSync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("could not write %q: %w", path, err)
	}
	return syncClose(f)
}
