package fiscal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/opencouncil/fiscal/fy"
)

// Cross-year identity resolution. Entities are identified primarily by
// stable codes within their parent scope. A code that disappears from one
// parent and reappears under another in a later year is treated as a moved
// entity: the observations are merged, the later year's parentage wins, and
// a HierarchyConflict is recorded. A code present under two parents in the
// same year is ordinary code reuse and stays two entities. When codes are
// absent or have changed, resolution falls back to normalized-name matching
// within the same parent scope and records an alias link.

// NormalizeName canonicalizes a display name for matching: lower-case,
// "&" read as "and", punctuation and runs of whitespace collapsed.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "&", " and ")
	var b strings.Builder
	space := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// slugify turns a name into a path segment for entities that have no code.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	dash := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}

// unionFind is a classic disjoint-set forest. Ties resolve to the smaller
// id so that merge results do not depend on union order.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind() *unionFind { return &unionFind{} }

func (u *unionFind) add() int {
	id := len(u.parent)
	u.parent = append(u.parent, id)
	u.size = append(u.size, 1)
	return id
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) int {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return ra
	}
	if u.size[ra] < u.size[rb] || (u.size[ra] == u.size[rb] && rb < ra) {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
	return ra
}

// chainLevel is one element of a record's entity chain.
type chainLevel struct {
	kind Kind
	code func(FiscalRecord) string
	name func(FiscalRecord) string
}

// levels lists the hierarchy levels leaf-last. A record's parent at each
// level is the nearest present element above it.
var levels = []chainLevel{
	{KindFund, func(r FiscalRecord) string { return r.Fund }, func(r FiscalRecord) string { return r.FundName }},
	{KindDepartment, func(r FiscalRecord) string { return r.Dept }, func(r FiscalRecord) string { return r.DeptName }},
	{KindProgram, func(r FiscalRecord) string { return r.Program }, func(r FiscalRecord) string { return r.ProgramName }},
	{KindLineItem, func(r FiscalRecord) string { return r.LineItem }, func(r FiscalRecord) string { return r.LineItemName }},
}

// node is one (parent scope, code) observation cluster within a level.
type node struct {
	id     int
	parent int    // parent group id at the previous level, -1 for roots
	code   string // "" for name-identified nodes
	years  map[fy.Year]*yearObs
}

// yearObs collects what a node looked like in one fiscal year.
type yearObs struct {
	code  string
	names []string // sorted, unique
}

func (o *yearObs) addName(name string) {
	if name == "" {
		return
	}
	i := sort.SearchStrings(o.names, name)
	if i < len(o.names) && o.names[i] == name {
		return
	}
	o.names = append(o.names, "")
	copy(o.names[i+1:], o.names[i:])
	o.names[i] = name
}

// name returns the deterministic display name for the year, raw code as a
// fallback when the extract carried no name column.
func (o *yearObs) name() string {
	if len(o.names) > 0 {
		return o.names[0]
	}
	return o.code
}

// scopedKey identifies an entity observation for record resolution.
type scopedKey struct {
	kind   Kind
	parent uuid.UUID
	year   fy.Year
	eff    string
}

// codeKey is the public (kind, year, code) lookup key.
type codeKey struct {
	kind Kind
	year fy.Year
	code string
}

// Resolution is the resolver output: the canonical tree, recorded
// conflicts, and the mappings from raw observations to canonical keys.
type Resolution struct {
	Tree      *Tree
	Conflicts []HierarchyConflict

	scoped map[scopedKey]uuid.UUID
	byCode map[codeKey]uuid.UUID
	// ambiguous marks (kind, year, code) triples claimed by several
	// entities through code reuse; Lookup refuses to guess for those.
	ambiguous map[codeKey]bool
}

// Lookup maps a (kind, fiscal year, raw code) observation to its canonical
// entity key. It reports false for unknown codes and for codes that were
// reused by several entities in that year.
func (res *Resolution) Lookup(kind Kind, year fy.Year, code string) (uuid.UUID, bool) {
	k := codeKey{kind, year, code}
	if res.ambiguous[k] {
		return uuid.Nil, false
	}
	key, ok := res.byCode[k]
	return key, ok
}

// Resolve maps a record to the canonical key of its finest entity. A record
// whose chain was not part of the resolver input is an
// UnresolvedEntityError.
func (res *Resolution) Resolve(r FiscalRecord) (uuid.UUID, error) {
	parent := uuid.Nil
	key := uuid.Nil
	found := false
	for _, lv := range levels {
		code, name := lv.code(r), lv.name(r)
		if code == "" && name == "" {
			continue
		}
		eff := code
		if eff == "" {
			eff = "~" + NormalizeName(name)
		}
		k, ok := res.scoped[scopedKey{lv.kind, parent, r.Year, eff}]
		if !ok {
			return uuid.Nil, &UnresolvedEntityError{Year: r.Year, Kind: lv.kind, Code: eff}
		}
		parent, key, found = k, k, true
	}
	if !found {
		return uuid.Nil, &UnresolvedEntityError{Year: r.Year, Kind: KindFund, Code: "(empty chain)"}
	}
	return key, nil
}

// ResolveHierarchy builds the canonical entity tree from all records of a
// run. The result is deterministic: identical records produce an identical
// tree, identical keys and identical conflict lists.
func ResolveHierarchy(records []FiscalRecord) (*Resolution, error) {
	res := &Resolution{
		scoped:    make(map[scopedKey]uuid.UUID),
		byCode:    make(map[codeKey]uuid.UUID),
		ambiguous: make(map[codeKey]bool),
	}

	var entities []*Entity
	paths := make(map[uuid.UUID]string)
	pathTaken := make(map[string]bool)

	// group id → canonical entity, per level, rebuilt as levels descend.
	prevEntity := map[int]*Entity{}

	// recParent tracks each record's group at the nearest present level
	// above the current one, -1 before any level matched.
	recParent := make([]int, len(records))
	for i := range recParent {
		recParent[i] = -1
	}

	for _, lv := range levels {
		uf := newUnionFind()
		var nodes []*node
		byScope := make(map[string]*node)

		// Pass 1: cluster observations by (parent scope, code).
		for i, r := range records {
			code, name := lv.code(r), lv.name(r)
			if code == "" && name == "" {
				continue
			}
			eff := code
			if eff == "" {
				eff = "~" + NormalizeName(name)
			}
			scope := fmt.Sprintf("%d|%s", recParent[i], eff)
			n, ok := byScope[scope]
			if !ok {
				n = &node{id: uf.add(), parent: recParent[i], code: code, years: make(map[fy.Year]*yearObs)}
				byScope[scope] = n
				nodes = append(nodes, n)
			}
			o, ok := n.years[r.Year]
			if !ok {
				o = &yearObs{code: code}
				n.years[r.Year] = o
			}
			o.addName(name)
		}

		// Pass 2: merge moved entities. Same code under different parents
		// with disjoint year sets reads as a move; any overlapping year
		// means plain code reuse and nothing merges.
		byCode := make(map[string][]*node)
		for _, n := range nodes {
			if n.code != "" {
				byCode[n.code] = append(byCode[n.code], n)
			}
		}
		codes := make([]string, 0, len(byCode))
		for c, ns := range byCode {
			if len(ns) > 1 {
				codes = append(codes, c)
			}
		}
		sort.Strings(codes)
		type move struct {
			winner, loser *node
		}
		var moves []move
		for _, c := range codes {
			ns := byCode[c]
			if nodesOverlap(ns) {
				continue
			}
			winner := ns[0]
			for _, n := range ns[1:] {
				if maxYear(n) > maxYear(winner) {
					winner = n
				}
			}
			for _, n := range ns {
				if n == winner {
					continue
				}
				uf.union(winner.id, n.id)
				moves = append(moves, move{winner: winner, loser: n})
			}
		}

		// Pass 3: name fallback within the same parent scope.
		groupParent := func(gid int) int {
			// parentage of the node holding the group's latest year
			best, bestYear := -1, fy.Year(0)
			for _, n := range nodes {
				if uf.find(n.id) != gid {
					continue
				}
				if y := maxYear(n); best == -1 || y.After(bestYear) {
					best, bestYear = n.parent, y
				}
			}
			return best
		}
		latestName := func(gid int) string {
			year, name := fy.Year(0), ""
			for _, n := range nodes {
				if uf.find(n.id) != gid {
					continue
				}
				for y, o := range n.years {
					if y.After(year) || (y == year && (name == "" || o.name() < name)) {
						year, name = y, o.name()
					}
				}
			}
			return name
		}
		byName := make(map[string]int)
		for _, n := range nodes {
			gid := uf.find(n.id)
			if gid != n.id {
				continue // visit each group once, by its representative
			}
			norm := NormalizeName(latestName(gid))
			if norm == "" {
				continue
			}
			scope := fmt.Sprintf("%d|%s", groupParent(gid), norm)
			if prev, ok := byName[scope]; ok {
				merged := uf.union(prev, gid)
				byName[scope] = merged
				continue
			}
			byName[scope] = gid
		}

		// Pass 4: one canonical entity per group.
		groups := make(map[int][]*node)
		var groupIDs []int
		for _, n := range nodes {
			gid := uf.find(n.id)
			if _, ok := groups[gid]; !ok {
				groupIDs = append(groupIDs, gid)
			}
			groups[gid] = append(groups[gid], n)
		}
		sort.Ints(groupIDs)

		entity := map[int]*Entity{}
		for _, gid := range groupIDs {
			members := groups[gid]
			sort.Slice(members, func(i, j int) bool { return members[i].id < members[j].id })

			// canonical (code, name) from the latest fiscal year
			var yrs []fy.Year
			seen := map[fy.Year]bool{}
			for _, n := range members {
				for y := range n.years {
					if !seen[y] {
						seen[y] = true
						yrs = append(yrs, y)
					}
				}
			}
			sort.Slice(yrs, func(i, j int) bool { return yrs[i].Before(yrs[j]) })
			latest := yrs[len(yrs)-1]

			code, name := "", ""
			parentGroup := -1
			for _, n := range members {
				o, ok := n.years[latest]
				if !ok {
					continue
				}
				if code == "" || (o.code != "" && o.code < code) {
					code = o.code
				}
				if name == "" || (o.name() != "" && o.name() < name) {
					name = o.name()
				}
				if parentGroup == -1 {
					parentGroup = n.parent
				}
			}

			var parent *Entity
			if parentGroup >= 0 {
				parent = prevEntity[parentGroup]
			}

			segment := code
			if segment == "" {
				segment = slugify(name)
			}
			path := segment
			if parent != nil {
				path = paths[parent.Key] + "/" + segment
			}
			for base, n := path, 2; pathTaken[path]; n++ {
				path = fmt.Sprintf("%s~%d", base, n)
			}
			pathTaken[path] = true

			e := &Entity{
				Key:  entityKey(lv.kind, path),
				Kind: lv.kind,
				Code: code,
				Name: name,
			}
			if parent != nil {
				e.Parent = parent.Key
			}
			paths[e.Key] = path

			// aliases: every observation that differs from the canonical pair
			for _, n := range members {
				obsYears := make([]fy.Year, 0, len(n.years))
				for y := range n.years {
					obsYears = append(obsYears, y)
				}
				sort.Slice(obsYears, func(i, j int) bool { return obsYears[i].Before(obsYears[j]) })
				for _, y := range obsYears {
					o := n.years[y]
					if o.code != code || o.name() != name {
						e.Aliases = append(e.Aliases, Alias{Year: y, Code: o.code, Name: o.name()})
					}
				}
			}
			sort.Slice(e.Aliases, func(i, j int) bool {
				a, b := e.Aliases[i], e.Aliases[j]
				if a.Year != b.Year {
					return a.Year.Before(b.Year)
				}
				if a.Code != b.Code {
					return a.Code < b.Code
				}
				return a.Name < b.Name
			})

			entities = append(entities, e)
			entity[gid] = e

			// record resolution and public lookup entries
			for _, n := range members {
				var origParent uuid.UUID
				if n.parent >= 0 {
					origParent = prevEntity[n.parent].Key
				}
				for y, o := range n.years {
					eff := o.code
					if eff == "" {
						eff = "~" + NormalizeName(o.name())
					}
					res.scoped[scopedKey{lv.kind, origParent, y, eff}] = e.Key
					if o.code == "" {
						continue
					}
					ck := codeKey{lv.kind, y, o.code}
					if prev, ok := res.byCode[ck]; ok && prev != e.Key {
						res.ambiguous[ck] = true
						continue
					}
					res.byCode[ck] = e.Key
				}
			}
		}

		// conflicts, now that winner paths exist
		for _, mv := range moves {
			e := entity[uf.find(mv.winner.id)]
			var losing, winning string
			if mv.loser.parent >= 0 {
				losing = paths[prevEntity[mv.loser.parent].Key]
			}
			if mv.winner.parent >= 0 {
				winning = paths[prevEntity[mv.winner.parent].Key]
			}
			res.Conflicts = append(res.Conflicts, HierarchyConflict{
				Kind:          lv.kind,
				Code:          mv.loser.code,
				Name:          e.Name,
				LosingParent:  losing,
				LosingYear:    maxYear(mv.loser),
				WinningParent: winning,
				WinningYear:   maxYear(mv.winner),
			})
		}

		// advance: each record's parent group for the next level
		for i, r := range records {
			code, name := lv.code(r), lv.name(r)
			if code == "" && name == "" {
				continue
			}
			eff := code
			if eff == "" {
				eff = "~" + NormalizeName(name)
			}
			scope := fmt.Sprintf("%d|%s", recParent[i], eff)
			recParent[i] = uf.find(byScope[scope].id)
		}
		prevEntity = entity
	}

	sort.Slice(res.Conflicts, func(i, j int) bool {
		a, b := res.Conflicts[i], res.Conflicts[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.LosingYear.Before(b.LosingYear)
	})

	res.Tree = newTree(entities, paths)
	return res, nil
}

func maxYear(n *node) fy.Year {
	var m fy.Year
	for y := range n.years {
		if y.After(m) {
			m = y
		}
	}
	return m
}

// nodesOverlap reports whether any fiscal year sees the code under more
// than one of the given nodes.
func nodesOverlap(ns []*node) bool {
	seen := map[fy.Year]bool{}
	for _, n := range ns {
		for y := range n.years {
			if seen[y] {
				return true
			}
			seen[y] = true
		}
	}
	return false
}
