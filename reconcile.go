package fiscal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/opencouncil/fiscal/fy"
	"github.com/shopspring/decimal"
)

// Classification is the variance verdict of a reconciled fact. The missing
// classifications take precedence over the numeric ones: no-data and
// zero-variance are different analytical states.
type Classification int

const (
	Unclassified Classification = iota
	OnTarget
	Overspend
	Underspend
	MissingActual
	MissingBudget
)

func (c Classification) String() string {
	switch c {
	case OnTarget:
		return "on_target"
	case Overspend:
		return "overspend"
	case Underspend:
		return "underspend"
	case MissingActual:
		return "missing_actual"
	case MissingBudget:
		return "missing_budget"
	default:
		return "unclassified"
	}
}

// ParseClassification parses a classification token.
func ParseClassification(s string) (Classification, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on_target":
		return OnTarget, nil
	case "overspend":
		return Overspend, nil
	case "underspend":
		return Underspend, nil
	case "missing_actual":
		return MissingActual, nil
	case "missing_budget":
		return MissingBudget, nil
	default:
		return Unclassified, fmt.Errorf("unknown classification: %q", s)
	}
}

// Fact is one reconciled budget-vs-actual observation, keyed by
// (fiscal year, entity, category). Exactly one fact exists per key per run.
// An absent side is not zero: HasBudgeted/HasActual make the distinction.
type Fact struct {
	Year     fy.Year
	Entity   uuid.UUID
	Kind     Kind
	Category Category

	Budgeted    Amount
	Actual      Amount
	HasBudgeted bool
	HasActual   bool

	// Leaf marks a direct attachment from input records. Non-leaf facts are
	// derived sums over children, never independently reconciled.
	Leaf bool

	Class Classification
}

// Variance returns actual − budgeted. It is defined only when both sides
// are present.
func (f Fact) Variance() (Amount, bool) {
	if !f.HasBudgeted || !f.HasActual {
		return Amount{}, false
	}
	return f.Actual.Sub(f.Budgeted), true
}

// VariancePercent returns the variance as a percentage of the budgeted
// amount, defined when both sides are present and the budget is nonzero.
func (f Fact) VariancePercent() (Percent, bool) {
	v, ok := f.Variance()
	if !ok || f.Budgeted.IsZero() {
		return 0, false
	}
	return v.PercentOf(f.Budgeted), true
}

// CycleDrop counts budget records set aside because their cycle did not
// match the run's cycle preference.
type CycleDrop struct {
	Source string
	Year   fy.Year
	Cycle  Cycle
	Count  int
}

// ReconcileConfig carries the reconciliation policy. Threshold is the
// on-target band as a percentage of the budgeted amount; a zero threshold
// accepts exact matches only, and LoadConfig supplies the 2% default when the
// configuration leaves it out. The zero Cycle selects the adopted budget.
type ReconcileConfig struct {
	Threshold Percent
	Cycle     Cycle
}

func (c ReconcileConfig) withDefaults() ReconcileConfig {
	if c.Cycle == CycleUnknown {
		c.Cycle = Adopted
	}
	return c
}

// Reconcile joins budgeted and actual records at the finest grain present,
// classifies each fact, and derives roll-up facts for every ancestor as
// exact sums of child facts. Facts come back in canonical order: fiscal
// year, entity path, category.
func Reconcile(records []FiscalRecord, res *Resolution, cfg ReconcileConfig) ([]Fact, []CycleDrop, error) {
	cfg = cfg.withDefaults()
	tree := res.Tree

	type key struct {
		year     fy.Year
		entity   uuid.UUID
		category Category
	}
	type accum struct {
		budgeted, actual Amount
		hasB, hasA       bool
	}
	direct := make(map[key]*accum)
	drops := make(map[CycleDrop]int)

	type yearCat struct {
		year fy.Year
		cat  Category
	}
	combos := make(map[yearCat]bool)

	for _, r := range records {
		entity, err := res.Resolve(r)
		if err != nil {
			return nil, nil, err
		}
		switch r.Type {
		case Budgeted:
			if r.Cycle != cfg.Cycle {
				drops[CycleDrop{Source: r.Source, Year: r.Year, Cycle: r.Cycle}]++
				continue
			}
		case Actual:
			// always kept
		default:
			return nil, nil, &FormatError{File: r.File, Row: r.Row, Column: "amount_type", Value: r.Type.String(), Err: fmt.Errorf("record carries no amount type")}
		}

		k := key{r.Year, entity, r.Category}
		a, ok := direct[k]
		if !ok {
			a = &accum{}
			direct[k] = a
		}
		if r.Type == Budgeted {
			a.budgeted = a.budgeted.Add(r.Amount)
			a.hasB = true
		} else {
			a.actual = a.actual.Add(r.Amount)
			a.hasA = true
		}
		combos[yearCat{r.Year, r.Category}] = true
	}

	ordered := make([]yearCat, 0, len(combos))
	for yc := range combos {
		ordered = append(ordered, yc)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].year != ordered[j].year {
			return ordered[i].year.Before(ordered[j].year)
		}
		return ordered[i].cat < ordered[j].cat
	})

	threshold := decimal.NewFromFloat(float64(cfg.Threshold)).Div(decimal.NewFromInt(100))

	var facts []Fact
	for _, yc := range ordered {
		var walk func(e *Entity) (Fact, bool, error)
		walk = func(e *Entity) (Fact, bool, error) {
			var children []Fact
			var walkErr error
			for c := range tree.Children(e.Key) {
				f, ok, err := walk(c)
				if err != nil {
					walkErr = err
					break
				}
				if ok {
					children = append(children, f)
				}
			}
			if walkErr != nil {
				return Fact{}, false, walkErr
			}

			d := direct[key{yc.year, e.Key, yc.cat}]
			if d != nil && len(children) > 0 {
				return Fact{}, false, &GrainError{Year: yc.year, Path: tree.Path(e.Key), Category: yc.cat}
			}
			if d == nil && len(children) == 0 {
				return Fact{}, false, nil
			}

			f := Fact{Year: yc.year, Entity: e.Key, Kind: e.Kind, Category: yc.cat}
			if d != nil {
				f.Budgeted, f.Actual = d.budgeted, d.actual
				f.HasBudgeted, f.HasActual = d.hasB, d.hasA
				f.Leaf = true
			} else {
				for _, c := range children {
					if c.HasBudgeted {
						f.Budgeted = f.Budgeted.Add(c.Budgeted)
						f.HasBudgeted = true
					}
					if c.HasActual {
						f.Actual = f.Actual.Add(c.Actual)
						f.HasActual = true
					}
				}
			}
			f.Class = classify(f, threshold)
			facts = append(facts, f)
			return f, true, nil
		}
		for root := range tree.Roots() {
			if _, _, err := walk(root); err != nil {
				return nil, nil, err
			}
		}
	}

	sort.Slice(facts, func(i, j int) bool {
		a, b := facts[i], facts[j]
		if a.Year != b.Year {
			return a.Year.Before(b.Year)
		}
		if pa, pb := tree.Path(a.Entity), tree.Path(b.Entity); pa != pb {
			return pa < pb
		}
		return a.Category < b.Category
	})

	dropList := make([]CycleDrop, 0, len(drops))
	for d, n := range drops {
		d.Count = n
		dropList = append(dropList, d)
	}
	sort.Slice(dropList, func(i, j int) bool {
		a, b := dropList[i], dropList[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Year != b.Year {
			return a.Year.Before(b.Year)
		}
		return a.Cycle < b.Cycle
	})

	return facts, dropList, nil
}

// classify applies the variance policy: missing sides first, then the
// on-target band as a fraction of the budgeted amount, then sign.
func classify(f Fact, threshold decimal.Decimal) Classification {
	switch {
	case !f.HasActual:
		return MissingActual
	case !f.HasBudgeted:
		return MissingBudget
	}
	variance := f.Actual.Sub(f.Budgeted).Decimal()
	if f.Budgeted.IsZero() {
		switch variance.Sign() {
		case 1:
			return Overspend
		case -1:
			return Underspend
		default:
			return OnTarget
		}
	}
	band := f.Budgeted.Decimal().Abs().Mul(threshold)
	if variance.Abs().LessThanOrEqual(band) {
		return OnTarget
	}
	if variance.Sign() > 0 {
		return Overspend
	}
	return Underspend
}
