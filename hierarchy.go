package fiscal

import (
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/opencouncil/fiscal/fy"
)

// Kind is the level of an entity in the spending hierarchy.
type Kind int

const (
	KindUnknown Kind = iota
	KindFund
	KindDepartment
	KindProgram
	KindLineItem
)

func (k Kind) String() string {
	switch k {
	case KindFund:
		return "fund"
	case KindDepartment:
		return "department"
	case KindProgram:
		return "program"
	case KindLineItem:
		return "line_item"
	default:
		return "unknown"
	}
}

// ParseKind parses an entity kind token.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fund":
		return KindFund, nil
	case "department":
		return KindDepartment, nil
	case "program":
		return KindProgram, nil
	case "line_item", "line item":
		return KindLineItem, nil
	default:
		return KindUnknown, fmt.Errorf("unknown entity kind: %q", s)
	}
}

// Alias is an alternative (code, name) an entity was observed under in a
// given fiscal year, recorded by the resolver's cross-year matching.
type Alias struct {
	Year fy.Year
	Code string
	Name string
}

// Entity is a canonical node of the spending hierarchy. The surrogate key is
// deterministic: identical input produces identical keys run to run.
type Entity struct {
	Key    uuid.UUID
	Kind   Kind
	Code   string    // canonical code, from the latest fiscal year observed
	Name   string    // canonical display name, from the latest fiscal year observed
	Parent uuid.UUID // uuid.Nil for roots

	// Reference enrichment. FundType is set on funds; DeptGroup and
	// District on departments.
	FundType  string
	DeptGroup string
	District  string

	Aliases []Alias
}

// keyNamespace seeds the deterministic surrogate keys.
var keyNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("opencouncil.fiscal"))

// entityKey derives the surrogate key from the entity's kind and code path.
func entityKey(kind Kind, path string) uuid.UUID {
	return uuid.NewSHA1(keyNamespace, []byte(kind.String()+"|"+path))
}

// Tree is the canonical entity hierarchy of one run. All iteration orders
// are total and stable so downstream artifacts are byte-identical across
// runs on the same input.
type Tree struct {
	nodes    map[uuid.UUID]*Entity
	children map[uuid.UUID][]uuid.UUID
	roots    []uuid.UUID
	paths    map[uuid.UUID]string
}

// newTree indexes entities into a tree. Paths must already be assigned by
// the resolver; ordering is derived here.
func newTree(entities []*Entity, paths map[uuid.UUID]string) *Tree {
	t := &Tree{
		nodes:    make(map[uuid.UUID]*Entity, len(entities)),
		children: make(map[uuid.UUID][]uuid.UUID),
		paths:    paths,
	}
	for _, e := range entities {
		t.nodes[e.Key] = e
		if e.Parent == uuid.Nil {
			t.roots = append(t.roots, e.Key)
		} else {
			t.children[e.Parent] = append(t.children[e.Parent], e.Key)
		}
	}
	byPath := func(keys []uuid.UUID) {
		sort.Slice(keys, func(i, j int) bool { return t.paths[keys[i]] < t.paths[keys[j]] })
	}
	byPath(t.roots)
	for _, keys := range t.children {
		byPath(keys)
	}
	return t
}

// Entity returns the entity for a key, or nil.
func (t *Tree) Entity(key uuid.UUID) *Entity { return t.nodes[key] }

// Path returns the canonical code path of an entity, e.g. "GF/PKR/OPS".
func (t *Tree) Path(key uuid.UUID) string { return t.paths[key] }

// Len returns the total entity count.
func (t *Tree) Len() int { return len(t.nodes) }

// Depth returns the number of ancestors above the entity.
func (t *Tree) Depth(key uuid.UUID) int {
	depth := 0
	for e := t.nodes[key]; e != nil && e.Parent != uuid.Nil; e = t.nodes[e.Parent] {
		depth++
	}
	return depth
}

// Roots iterates the root entities in path order.
func (t *Tree) Roots() iter.Seq[*Entity] {
	return func(yield func(*Entity) bool) {
		for _, key := range t.roots {
			if !yield(t.nodes[key]) {
				return
			}
		}
	}
}

// Children iterates the direct children of an entity in path order.
func (t *Tree) Children(key uuid.UUID) iter.Seq[*Entity] {
	return func(yield func(*Entity) bool) {
		for _, k := range t.children[key] {
			if !yield(t.nodes[k]) {
				return
			}
		}
	}
}

// HasChildren reports whether the entity has at least one child.
func (t *Tree) HasChildren(key uuid.UUID) bool { return len(t.children[key]) > 0 }

// All iterates every entity in depth-first pre-order from the roots, the
// canonical on-disk ordering.
func (t *Tree) All() iter.Seq[*Entity] {
	return func(yield func(*Entity) bool) {
		var walk func(key uuid.UUID) bool
		walk = func(key uuid.UUID) bool {
			if !yield(t.nodes[key]) {
				return false
			}
			for _, c := range t.children[key] {
				if !walk(c) {
					return false
				}
			}
			return true
		}
		for _, r := range t.roots {
			if !walk(r) {
				return
			}
		}
	}
}

// AncestorOfKind walks up from the entity to the nearest ancestor of the
// given kind, the entity itself included. Returns nil when there is none.
func (t *Tree) AncestorOfKind(key uuid.UUID, kind Kind) *Entity {
	for e := t.nodes[key]; e != nil; e = t.nodes[e.Parent] {
		if e.Kind == kind {
			return e
		}
		if e.Parent == uuid.Nil {
			return nil
		}
	}
	return nil
}
