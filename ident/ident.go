// Package ident implements a process-scoped string interning table.
//
// Every distinct identifier seen by the assembler — instruction mnemonics,
// labels, assignment targets — is mapped to a dense, insertion-ordered
// Symbol. Mnemonic dispatch throughout the toolchain compares Symbols
// rather than strings once the table has been built.
package ident

// Symbol is a dense, insertion-ordered identifier assigned by a Table.
type Symbol uint32

// Table interns strings into Symbols in first-seen order.
type Table struct {
	byName map[string]Symbol
	names  []string
}

// NewTable returns an empty interning table.
func NewTable() *Table {
	return &Table{byName: make(map[string]Symbol)}
}

// Insert returns the Symbol for name, assigning a new one if name has not
// been seen before. The first call with a given name fixes its Symbol for
// the lifetime of the table.
func (t *Table) Insert(name string) Symbol {
	if sym, ok := t.byName[name]; ok {
		return sym
	}
	sym := Symbol(len(t.names))
	t.byName[name] = sym
	t.names = append(t.names, name)
	return sym
}

// Lookup reports the Symbol already assigned to name, if any, without
// inserting it.
func (t *Table) Lookup(name string) (Symbol, bool) {
	sym, ok := t.byName[name]
	return sym, ok
}

// Name returns the string a Symbol was interned from.
func (t *Table) Name(sym Symbol) string {
	return t.names[sym]
}

// Len reports how many distinct identifiers have been interned.
func (t *Table) Len() int {
	return len(t.names)
}
