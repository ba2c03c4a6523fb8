package fiscal

import (
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names under the output directory.
const (
	entitiesName = "entities.parquet"
	factsName    = "facts.parquet"
	manifestName = "manifest.json"
	auditName    = "audit.md"
	viewsDirName = "views"
)

func manifestPath(dir string) string { return filepath.Join(dir, manifestName) }

// ReadAudit returns the audit report published by the last completed run.
func ReadAudit(dir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, auditName))
	if err != nil {
		return "", fmt.Errorf("could not read audit report: %w", err)
	}
	return string(b), nil
}

// viewArtifactName returns a view's path relative to the output directory.
func viewArtifactName(view string) string { return viewsDirName + "/" + view + ".parquet" }

// Store stages one run's artifacts in a temporary directory next to the
// output directory, then publishes them one rename at a time with the
// manifest strictly last. Until Commit starts, the previous output set is
// untouched; a failed run leaves only a staging directory to discard.
type Store struct {
	dir     string // final output directory
	staging string // temporary sibling, same filesystem
	names   []string
}

// NewStore creates the staging area next to the output directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create output dir %q: %w", dir, err)
	}
	staging, err := os.MkdirTemp(filepath.Dir(dir), filepath.Base(dir)+".staging-*")
	if err != nil {
		return nil, fmt.Errorf("could not create staging dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(staging, viewsDirName), 0o755); err != nil {
		os.RemoveAll(staging)
		return nil, fmt.Errorf("could not create staging views dir: %w", err)
	}
	return &Store{dir: dir, staging: staging}, nil
}

// Path returns the staging path for an artifact name such as
// "facts.parquet" or "views/category_by_year.parquet".
func (s *Store) Path(name string) string {
	return filepath.Join(s.staging, filepath.FromSlash(name))
}

// Add registers a staged artifact for commit, in call order, and returns its
// manifest entry.
func (s *Store) Add(name string, rows int, dims []string) (Artifact, error) {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return Artifact{}, fmt.Errorf("staged artifact %q: %w", name, err)
	}
	s.names = append(s.names, name)
	return Artifact{Name: name, Rows: rows, Bytes: info.Size(), Dims: dims}, nil
}

// Commit publishes the staged artifacts into the output directory: every
// added artifact in order, then cleanup of leftovers from earlier runs, then
// the manifest. Readers treat the manifest as the completion marker.
func (s *Store) Commit() error {
	if err := os.MkdirAll(filepath.Join(s.dir, viewsDirName), 0o755); err != nil {
		return fmt.Errorf("could not create views dir: %w", err)
	}
	for _, name := range s.names {
		rel := filepath.FromSlash(name)
		if err := os.Rename(filepath.Join(s.staging, rel), filepath.Join(s.dir, rel)); err != nil {
			return fmt.Errorf("could not publish %q: %w", name, err)
		}
	}
	if err := s.removeExtraneous(); err != nil {
		return err
	}
	if err := os.Rename(manifestPath(s.staging), manifestPath(s.dir)); err != nil {
		return fmt.Errorf("could not publish manifest: %w", err)
	}
	if err := syncDir(filepath.Join(s.dir, viewsDirName)); err != nil {
		return err
	}
	return syncDir(s.dir)
}

// removeExtraneous deletes output files an earlier run created that this run
// did not: views dropped from the catalog and CSV siblings after the option
// was switched off.
func (s *Store) removeExtraneous() error {
	committed := make(map[string]bool, len(s.names))
	for _, name := range s.names {
		committed[name] = true
	}
	globs := []string{
		filepath.Join(s.dir, viewsDirName, "*.parquet"),
		filepath.Join(s.dir, viewsDirName, "*.csv"),
		filepath.Join(s.dir, "*.csv"),
	}
	for _, g := range globs {
		matches, err := filepath.Glob(g)
		if err != nil {
			return fmt.Errorf("could not scan output dir: %w", err)
		}
		for _, m := range matches {
			rel, err := filepath.Rel(s.dir, m)
			if err != nil {
				return err
			}
			if committed[filepath.ToSlash(rel)] {
				continue
			}
			if err := os.Remove(m); err != nil {
				return fmt.Errorf("could not delete leftover %q: %w", m, err)
			}
		}
	}
	return nil
}

// Discard removes the staging directory. Safe to call after Commit.
func (s *Store) Discard() {
	os.RemoveAll(s.staging)
}

func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
