package query

import (
	"strings"
)

// Set is a set of result identities.
type Set map[string]struct{}

// NewSet returns a set holding keys.
func NewSet(keys ...string) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s Set) Add(key string) { s[key] = struct{}{} }

func (s Set) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Union returns a new set with the members of s and o.
func (s Set) Union(o Set) Set {
	out := make(Set, len(s)+len(o))
	for k := range s {
		out[k] = struct{}{}
	}
	for k := range o {
		out[k] = struct{}{}
	}
	return out
}

// Intersect returns a new set with the members present in both s and o.
func (s Set) Intersect(o Set) Set {
	small, large := s, o
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(Set)
	for k := range small {
		if large.Has(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// Minus returns a new set with the members of s that are not in o.
func (s Set) Minus(o Set) Set {
	out := make(Set)
	for k := range s {
		if !o.Has(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// Expr is a node of a boolean query expression.
//
// Eval resolves the expression against the per-term result sets. The universe
// is the complement base for NOT and is normally the union of all term sets.
type Expr interface {
	Eval(sets map[string]Set, universe Set) Set
	// Terms lists every term below this node, duplicates included.
	Terms() []string
	String() string
}

// Term matches the results returned for a single search term.
type Term struct {
	Text string
}

func (t *Term) Eval(sets map[string]Set, _ Set) Set {
	if s, ok := sets[t.Text]; ok {
		return s
	}
	return Set{}
}

func (t *Term) Terms() []string { return []string{t.Text} }

func (t *Term) String() string { return "-q " + quote(t.Text) }

// And is the intersection of both operands.
type And struct {
	Left, Right Expr
}

func (a *And) Eval(sets map[string]Set, universe Set) Set {
	return a.Left.Eval(sets, universe).Intersect(a.Right.Eval(sets, universe))
}

func (a *And) Terms() []string { return append(a.Left.Terms(), a.Right.Terms()...) }

func (a *And) String() string { return "(" + a.Left.String() + " -a " + a.Right.String() + ")" }

// Or is the union of both operands.
type Or struct {
	Left, Right Expr
}

func (o *Or) Eval(sets map[string]Set, universe Set) Set {
	return o.Left.Eval(sets, universe).Union(o.Right.Eval(sets, universe))
}

func (o *Or) Terms() []string { return append(o.Left.Terms(), o.Right.Terms()...) }

func (o *Or) String() string { return "(" + o.Left.String() + " -o " + o.Right.String() + ")" }

// Not is the complement of its operand within the universe.
type Not struct {
	Operand Expr
}

func (n *Not) Eval(sets map[string]Set, universe Set) Set {
	return universe.Minus(n.Operand.Eval(sets, universe))
}

func (n *Not) Terms() []string { return n.Operand.Terms() }

func (n *Not) String() string { return "! " + n.Operand.String() }

// UniqueTerms returns the distinct terms of e in order of first appearance.
func UniqueTerms(e Expr) []string {
	if e == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range e.Terms() {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Universe is the union of all term sets.
func Universe(sets map[string]Set) Set {
	u := make(Set)
	for _, s := range sets {
		for k := range s {
			u[k] = struct{}{}
		}
	}
	return u
}

func quote(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}
