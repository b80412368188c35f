package lattice

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cs-au-dk/jstar/analysis/cfg"
	"github.com/cs-au-dk/jstar/analysis/defs"
	"github.com/cs-au-dk/jstar/utils"
)

// ObjKind tags the kind of objects an object label abstracts.
type ObjKind int

const (
	KObject ObjKind = iota
	KFunction
	KArray
	KRegExp
	KActivation
	KError
)

func (k ObjKind) String() string {
	switch k {
	case KObject:
		return "Object"
	case KFunction:
		return "Function"
	case KArray:
		return "Array"
	case KRegExp:
		return "RegExp"
	case KActivation:
		return "Activation"
	case KError:
		return "Error"
	}
	return "?"
}

// An ObjectLabel is the abstract identity of the set of concrete objects
// created at one allocation site (under one heap context, when the
// analysis is object sensitive). Labels are immutable values and the
// only way abstract values reference objects.
type ObjectLabel struct {
	site cfg.Node
	kind ObjKind
	ctx  defs.Context
}

// MakeObjectLabel creates a context-insensitive object label.
func MakeObjectLabel(site cfg.Node, kind ObjKind) ObjectLabel {
	return ObjectLabel{site: site, kind: kind}
}

// MakeObjectLabelCtx creates an object-sensitive label.
func MakeObjectLabelCtx(site cfg.Node, kind ObjKind, ctx defs.Context) ObjectLabel {
	return ObjectLabel{site: site, kind: kind, ctx: ctx}
}

func (l ObjectLabel) Site() cfg.Node        { return l.site }
func (l ObjectLabel) Kind() ObjKind         { return l.kind }
func (l ObjectLabel) Context() defs.Context { return l.ctx }

func (l ObjectLabel) Hash() uint32 {
	hs := []uint32{
		utils.PointerHasher[cfg.Node]{}.Hash(l.site),
		uint32(l.kind),
	}
	if l.ctx != nil {
		hs = append(hs, l.ctx.Hash())
	}
	return utils.HashCombine(hs...)
}

func (l ObjectLabel) Equal(other ObjectLabel) bool {
	return l == other
}

func (l ObjectLabel) String() string {
	str := fmt.Sprintf("%s[%s]", l.kind, l.site)
	if l.ctx != nil {
		str += "@" + l.ctx.String()
	}
	return colorize.Key(str)
}

// A labelSet is a duplicate-free set of object labels. Sets reachable
// from states are interned by the session, so set equality on hot paths
// degenerates to pointer equality.
type labelSet struct {
	labels []ObjectLabel
}

var emptyLabels = &labelSet{}

func (s *labelSet) size() int {
	if s == nil {
		return 0
	}
	return len(s.labels)
}

func (s *labelSet) contains(l ObjectLabel) bool {
	if s == nil {
		return false
	}
	for _, l2 := range s.labels {
		if l2 == l {
			return true
		}
	}
	return false
}

func (s *labelSet) add(l ObjectLabel) *labelSet {
	if s.contains(l) {
		return s
	}
	if s == nil {
		return &labelSet{labels: []ObjectLabel{l}}
	}
	labels := make([]ObjectLabel, len(s.labels), len(s.labels)+1)
	copy(labels, s.labels)
	return &labelSet{labels: append(labels, l)}
}

func (s *labelSet) union(o *labelSet) *labelSet {
	if s.size() == 0 {
		return o
	}
	if o.size() == 0 {
		return s
	}
	res := s
	for _, l := range o.labels {
		res = res.add(l)
	}
	return res
}

func (s *labelSet) eq(o *labelSet) bool {
	if s == o {
		return true
	}
	if s.size() != o.size() {
		return false
	}
	for _, l := range o.labels {
		if !s.contains(l) {
			return false
		}
	}
	return true
}

func (s *labelSet) subsetOf(o *labelSet) bool {
	if s == o {
		return true
	}
	for _, l := range s.labels {
		if !o.contains(l) {
			return false
		}
	}
	return true
}

// hash is order independent.
func (s *labelSet) hash() uint32 {
	if s == nil {
		return 0
	}
	var h uint32
	for _, l := range s.labels {
		h ^= l.Hash()
	}
	return h
}

func (s *labelSet) String() string {
	if s.size() == 0 {
		return "{}"
	}
	strs := make([]string, len(s.labels))
	for i, l := range s.labels {
		strs[i] = l.String()
	}
	sort.Strings(strs)
	return "{" + strings.Join(strs, ", ") + "}"
}

type labelSetHasher struct{}

func (labelSetHasher) Hash(s *labelSet) uint32      { return s.hash() }
func (labelSetHasher) Equal(a, b *labelSet) bool    { return a.eq(b) }
