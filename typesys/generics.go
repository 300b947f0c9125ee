package typesys

import (
	"strings"
	"sync"
)

// InstantiationTable is the shared table keyed by (generic-definition,
// type-argument-tuple) that spec.md section 4.B requires: "returns the
// same TD for equal keys." Grounded on component/canon_registry.go's
// registry-keyed-by-composite-key pattern.
type InstantiationTable struct {
	mu      sync.Mutex
	entries map[string]*TD
}

// NewInstantiationTable creates an empty table.
func NewInstantiationTable() *InstantiationTable {
	return &InstantiationTable{entries: make(map[string]*TD)}
}

// genericKey builds the canonical string key for (def, args). Reference
// type arguments only need their identity-stable Name (spec.md section
// 4.B: "reference-type instantiations may share a single code body keyed
// by 'canonical reference'"), so the key construction is the same
// regardless of whether args are reference or value types — the sharing
// decision is made by the JIT when it compiles the instantiation's method
// bodies, not by this table.
func genericKey(def *TD, args []*TD) string {
	var b strings.Builder
	b.WriteString(def.Name)
	b.WriteByte('<')
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.Name)
	}
	b.WriteByte('>')
	return b.String()
}

// GetOrCreate returns the canonical TD for (def, args), creating it with
// build if absent. build is called at most once per distinct key even
// under concurrent callers.
func (t *InstantiationTable) GetOrCreate(def *TD, args []*TD, build func() *TD) *TD {
	key := genericKey(def, args)

	t.mu.Lock()
	defer t.mu.Unlock()

	if td, ok := t.entries[key]; ok {
		return td
	}
	td := build()
	t.entries[key] = td
	return td
}

// CanShareCodeBody reports whether an instantiation with type arguments
// args can use the shared compiled method body: true only when every
// type argument is a reference type (spec.md section 4.B
// "Reference-type instantiations may share a single code body keyed by
// 'canonical reference'; value-type instantiations compile a distinct
// body per key").
func CanShareCodeBody(args []*TD) bool {
	for _, a := range args {
		if a.Kind != KindReference && a.Kind != KindArray && a.Kind != KindInterface {
			return false
		}
	}
	return true
}
