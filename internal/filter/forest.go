package filter

import (
	"regexp"
	"sort"

	"github.com/libroscan/catalog-cli/internal/model"
)

// Options configures forest construction and evaluation.
type Options struct {
	// FullMatch anchors leaf regexes so the whole property value must match.
	// The default is partial match, which is what the production rule sets
	// were written against.
	FullMatch bool

	// RejectUnfiltered makes sites with no filter rows reject every
	// candidate. By default an unconfigured site is unrestricted.
	RejectUnfiltered bool
}

// Forest is a validated, immutable per-site filter tree set. Construction
// resolves every row into a combinator or leaf and verifies the structure,
// so evaluation is pure and cannot fail.
type Forest struct {
	Site  model.Site
	Nodes int
	roots []node
}

// Decision is the outcome of evaluating one candidate against a forest.
type Decision struct {
	Admitted      bool
	MatchedLeaves []int64 // ids of leaf nodes whose regex matched
}

// Build assembles and validates the filter forest for one site from its
// rows. Any structural defect returns a MalformedError: the caller must fail
// closed rather than evaluate a broken forest.
func Build(site model.Site, rows []model.OriginFilter, opts Options) (*Forest, error) {
	byID := make(map[int64]model.OriginFilter, len(rows))
	for _, r := range rows {
		if r.Site != site {
			return nil, &MalformedError{Site: site, NodeID: r.ID, Reason: "row belongs to site " + r.Site}
		}
		if _, dup := byID[r.ID]; dup {
			return nil, &MalformedError{Site: site, NodeID: r.ID, Reason: "duplicate node id"}
		}
		byID[r.ID] = r
	}

	// Structural checks on the parent graph: roots are parentless, non-roots
	// have a known parent, and every parent chain terminates at a root
	// (covers both orphans and cycles, since a cycle can never contain a
	// parentless node).
	for _, r := range rows {
		if r.IsRoot {
			if r.ParentID != nil {
				return nil, &MalformedError{Site: site, NodeID: r.ID, Reason: "root node has a parent"}
			}
			continue
		}
		if r.ParentID == nil {
			return nil, &MalformedError{Site: site, NodeID: r.ID, Reason: "non-root node has no parent"}
		}
		if _, ok := byID[*r.ParentID]; !ok {
			return nil, &MalformedError{Site: site, NodeID: r.ID, Reason: "parent does not exist"}
		}
	}
	for _, r := range rows {
		steps := 0
		cur := r
		for !cur.IsRoot {
			if steps++; steps > len(rows) {
				return nil, &MalformedError{Site: site, NodeID: r.ID, Reason: "parent chain does not reach a root (cycle)"}
			}
			cur = byID[*cur.ParentID]
		}
	}

	childIDs := make(map[int64][]int64, len(rows))
	var rootIDs []int64
	for _, r := range rows {
		if r.IsRoot {
			rootIDs = append(rootIDs, r.ID)
		} else {
			childIDs[*r.ParentID] = append(childIDs[*r.ParentID], r.ID)
		}
	}
	// Deterministic evaluation and diagnostics order.
	sort.Slice(rootIDs, func(i, j int) bool { return rootIDs[i] < rootIDs[j] })
	for _, ids := range childIDs {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}

	var build func(id int64) (node, error)
	build = func(id int64) (node, error) {
		r := byID[id]

		if r.Operator != "" {
			if r.Regex != "" || r.PropertyName != "" {
				return nil, &MalformedError{Site: site, NodeID: id, Reason: "combinator node carries leaf fields"}
			}
			op, ok := ParseOperator(r.Operator)
			if !ok {
				return nil, &MalformedError{Site: site, NodeID: id, Reason: "unknown operator " + r.Operator}
			}
			ids := childIDs[id]
			if len(ids) == 0 {
				return nil, &MalformedError{Site: site, NodeID: id, Reason: "combinator node has no children"}
			}
			if op == OpNot && len(ids) != 1 {
				return nil, &MalformedError{Site: site, NodeID: id, Reason: "NOT requires exactly one child"}
			}
			c := &combinator{id: id, name: r.Name, op: op, children: make([]node, 0, len(ids))}
			for _, cid := range ids {
				ch, err := build(cid)
				if err != nil {
					return nil, err
				}
				c.children = append(c.children, ch)
			}
			return c, nil
		}

		if r.PropertyName == "" || r.Regex == "" {
			return nil, &MalformedError{Site: site, NodeID: id, Reason: "node is neither combinator nor leaf"}
		}
		if len(childIDs[id]) > 0 {
			return nil, &MalformedError{Site: site, NodeID: id, Reason: "leaf node has children"}
		}
		pattern := r.Regex
		if opts.FullMatch {
			pattern = `\A(?:` + pattern + `)\z`
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, &MalformedError{Site: site, NodeID: id, Reason: "invalid regex: " + err.Error()}
		}
		return &leaf{id: id, name: r.Name, property: r.PropertyName, re: re}, nil
	}

	f := &Forest{Site: site, Nodes: len(rows)}
	for _, id := range rootIDs {
		root, err := build(id)
		if err != nil {
			return nil, err
		}
		f.roots = append(f.roots, root)
	}
	return f, nil
}

// Evaluate runs the candidate through every root. A site admits a candidate
// when any independent root tree accepts it. Children are always evaluated
// exhaustively (no short circuit) so MatchedLeaves reports every leaf that
// matched, which the diagnostics surface relies on.
func (f *Forest) Evaluate(cand map[string]string) Decision {
	var d Decision
	for _, root := range f.roots {
		if root.eval(cand, &d.MatchedLeaves) {
			d.Admitted = true
		}
	}
	return d
}
