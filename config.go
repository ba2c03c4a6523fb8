package fiscal

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/opencouncil/fiscal/fy"
)

// Config is the YAML-facing declaration of one reconciliation run: the
// extracts, their column mappings, reference tables, reconciliation knobs
// and the view catalog. Compile turns it into a Plan of domain types.
type Config struct {
	Output      string   `yaml:"output"`        // artifact directory, default "out"
	CSV         bool     `yaml:"csv"`           // also write CSV siblings of each Parquet artifact
	Cycle       string   `yaml:"cycle"`         // preferred budget cycle, adopted (default) or proposed
	Threshold   *float64 `yaml:"threshold_pct"` // on-target band as a percentage of budgeted, default 2
	GeneralFund string   `yaml:"general_fund"`  // fund code that gets a summary view in the default catalog

	Reference RefPaths        `yaml:"reference"`
	Extracts  []ExtractConfig `yaml:"extracts"`
	Mappings  []MappingConfig `yaml:"mappings"`
	Views     []ViewConfig    `yaml:"views"` // replaces the default catalog when non-empty
}

// ExtractConfig declares one input CSV. Year, type and cycle are needed only
// when the file itself carries no column for them.
type ExtractConfig struct {
	File   string  `yaml:"file"`
	Source string  `yaml:"source"`
	Year   fy.Year `yaml:"year"`
	Type   string  `yaml:"type"`  // budgeted | actual
	Cycle  string  `yaml:"cycle"` // adopted | proposed | actual
}

// MappingConfig maps the raw column headers of a source (optionally limited
// to a span of fiscal years) onto canonical fields. Extracts bind to the
// first mapping, in declaration order, whose source matches and whose years
// cover the extract.
type MappingConfig struct {
	Source  string            `yaml:"source"`
	Years   string            `yaml:"years"`   // e.g. "2019-2022", empty covers all years
	Columns map[string]string `yaml:"columns"` // raw header -> canonical field name
}

// ViewConfig declares one AggregateView.
type ViewConfig struct {
	Name       string   `yaml:"name"`
	Dimensions []string `yaml:"dimensions"`
	Category   string   `yaml:"category"` // expense | revenue, empty keeps both
	Fund       string   `yaml:"fund"`     // fund code filter
	Years      string   `yaml:"years"`    // fiscal year span filter
	Sort       []string `yaml:"sort"`     // column names, "-" prefix for descending
	MinRows    int      `yaml:"min_rows"`
	MaxRows    int      `yaml:"max_rows"`
}

// Extract couples one declared input file with its resolved column mapping.
type Extract struct {
	Decl    ExtractDecl
	Columns map[string]Field
}

// Plan is the compiled form of a Config: extracts bound to mappings, domain
// typed knobs and the view catalog. A Plan is what a run executes.
type Plan struct {
	Output    string
	CSV       bool
	Reconcile ReconcileConfig
	Reference RefPaths
	Extracts  []Extract
	Views     []ViewSpec
}

// LoadConfig reads, parses and compiles a run configuration file.
// Environment variables in the file are expanded; relative paths are
// resolved against the file's directory.
func LoadConfig(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config %q: %w", path, err)
	}
	cfg, err := ParseConfig(os.ExpandEnv(string(data)))
	if err != nil {
		return nil, fmt.Errorf("could not parse config %q: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg.Compile()
}

// ParseConfig parses a configuration document without compiling it.
func ParseConfig(text string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePaths anchors every relative path at dir.
func (c *Config) resolvePaths(dir string) {
	anchor := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Output = anchor(c.Output)
	c.Reference.Accounts = anchor(c.Reference.Accounts)
	c.Reference.Departments = anchor(c.Reference.Departments)
	c.Reference.Funds = anchor(c.Reference.Funds)
	for i := range c.Extracts {
		c.Extracts[i].File = anchor(c.Extracts[i].File)
	}
}

// Compile validates the configuration and binds every extract to a column
// mapping. Every problem is a ConfigurationError naming the field.
func (c *Config) Compile() (*Plan, error) {
	plan := &Plan{Output: c.Output, CSV: c.CSV, Reference: c.Reference}
	if plan.Output == "" {
		plan.Output = "out"
	}

	if c.Cycle != "" {
		cycle, err := ParseCycle(c.Cycle)
		if err != nil {
			return nil, &ConfigurationError{Field: "cycle", Reason: err.Error()}
		}
		if cycle == CycleActual {
			return nil, &ConfigurationError{Field: "cycle", Reason: "preferred budget cycle must be adopted or proposed"}
		}
		plan.Reconcile.Cycle = cycle
	}
	if c.Threshold != nil {
		if *c.Threshold < 0 {
			return nil, &ConfigurationError{Field: "threshold_pct", Reason: "must not be negative"}
		}
		plan.Reconcile.Threshold = Percent(*c.Threshold)
	} else {
		plan.Reconcile.Threshold = Percent(2)
	}

	if len(c.Extracts) == 0 {
		return nil, &ConfigurationError{Field: "extracts", Reason: "at least one extract is required"}
	}
	mappings, err := c.compileMappings()
	if err != nil {
		return nil, err
	}
	for i, e := range c.Extracts {
		field := fmt.Sprintf("extracts[%d]", i)
		if e.File == "" {
			return nil, &ConfigurationError{Field: field + ".file", Reason: "is required"}
		}
		if e.Source == "" {
			return nil, &ConfigurationError{Field: field + ".source", Reason: "is required"}
		}
		decl := ExtractDecl{File: e.File, Source: e.Source, Year: e.Year}
		if e.Type != "" {
			t, err := ParseAmountType(e.Type)
			if err != nil {
				return nil, &ConfigurationError{Field: field + ".type", Reason: err.Error()}
			}
			decl.Type = t
		}
		if e.Cycle != "" {
			cy, err := ParseCycle(e.Cycle)
			if err != nil {
				return nil, &ConfigurationError{Field: field + ".cycle", Reason: err.Error()}
			}
			decl.Cycle = cy
		}
		columns := bindMapping(mappings, e.Source, e.Year)
		if columns == nil {
			return nil, &ConfigurationError{Field: field, Reason: fmt.Sprintf("no mapping covers source %q year %s", e.Source, e.Year)}
		}
		plan.Extracts = append(plan.Extracts, Extract{Decl: decl, Columns: columns})
	}

	views, err := c.compileViews()
	if err != nil {
		return nil, err
	}
	plan.Views = views
	return plan, nil
}

// mapping is one compiled MappingConfig.
type mapping struct {
	source  string
	years   fy.Range
	columns map[string]Field
}

func (c *Config) compileMappings() ([]mapping, error) {
	if len(c.Mappings) == 0 {
		return nil, &ConfigurationError{Field: "mappings", Reason: "at least one mapping is required"}
	}
	out := make([]mapping, 0, len(c.Mappings))
	for i, m := range c.Mappings {
		field := fmt.Sprintf("mappings[%d]", i)
		if m.Source == "" {
			return nil, &ConfigurationError{Field: field + ".source", Reason: "is required"}
		}
		years, err := fy.ParseRange(m.Years)
		if err != nil {
			return nil, &ConfigurationError{Field: field + ".years", Reason: err.Error()}
		}
		if len(m.Columns) == 0 {
			return nil, &ConfigurationError{Field: field + ".columns", Reason: "at least one column is required"}
		}
		columns := make(map[string]Field, len(m.Columns))
		for raw, name := range m.Columns {
			f, err := ParseField(name)
			if err != nil {
				return nil, &ConfigurationError{Field: fmt.Sprintf("%s.columns[%q]", field, raw), Reason: err.Error()}
			}
			columns[raw] = f
		}
		out = append(out, mapping{source: m.Source, years: years, columns: columns})
	}
	return out, nil
}

// bindMapping picks the first mapping whose source matches and whose year
// span covers the extract. An extract without a declared year binds to the
// source's first mapping.
func bindMapping(mappings []mapping, source string, year fy.Year) map[string]Field {
	for _, m := range mappings {
		if m.source != source {
			continue
		}
		if year.Valid() && !m.years.Contains(year) {
			continue
		}
		return m.columns
	}
	return nil
}

func (c *Config) compileViews() ([]ViewSpec, error) {
	if len(c.Views) == 0 {
		specs := DefaultViews(c.GeneralFund)
		for i := range specs {
			specs[i] = specs[i].withDefaults()
		}
		return specs, nil
	}
	specs := make([]ViewSpec, 0, len(c.Views))
	for i, v := range c.Views {
		field := fmt.Sprintf("views[%d]", i)
		if v.Name != "" {
			field = "views." + v.Name
		}
		spec := ViewSpec{Name: v.Name, MinRows: v.MinRows, MaxRows: v.MaxRows}
		for _, d := range v.Dimensions {
			dim, err := ParseDimension(d)
			if err != nil {
				return nil, &ConfigurationError{Field: field + ".dimensions", Reason: err.Error()}
			}
			spec.Dimensions = append(spec.Dimensions, dim)
		}
		if v.Category != "" {
			cat, err := ParseCategory(v.Category)
			if err != nil {
				return nil, &ConfigurationError{Field: field + ".category", Reason: err.Error()}
			}
			spec.Filter.Category = cat
		}
		spec.Filter.Fund = v.Fund
		years, err := fy.ParseRange(v.Years)
		if err != nil {
			return nil, &ConfigurationError{Field: field + ".years", Reason: err.Error()}
		}
		spec.Filter.Years = years
		for _, s := range v.Sort {
			k, err := ParseSortKey(s)
			if err != nil {
				return nil, &ConfigurationError{Field: field + ".sort", Reason: err.Error()}
			}
			spec.Sort = append(spec.Sort, k)
		}
		spec = spec.withDefaults()
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
