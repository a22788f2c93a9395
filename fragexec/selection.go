package fragexec

import (
	"sort"
	"strings"

	"github.com/goforj/fragcache"
)

// Selection is one selected field and its sub-selections.
type Selection struct {
	Name     string
	Children []*Selection
}

// Select builds a selection node.
func Select(name string, children ...*Selection) *Selection {
	return &Selection{Name: name, Children: children}
}

func (s *Selection) child(name string) *Selection {
	for _, c := range s.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Operation is the selection tree of one query. It records field names
// only: field arguments never reach SelectionKey, so hosts must pass any
// argument that changes a field's value through Options.KeyAttributes.
type Operation struct {
	root *Selection
}

// NewOperation returns an operation selecting the given top-level fields.
func NewOperation(fields ...*Selection) *Operation {
	return &Operation{root: &Selection{Children: fields}}
}

// SelectionKey renders the selection beneath path with sibling fields
// sorted, so field order in the query does not change the key. List index
// segments are skipped; every element of a list shares one selection.
func (o *Operation) SelectionKey(path fragcache.Path) string {
	node := o.root
	for _, seg := range path {
		if seg.IsIndex {
			continue
		}
		node = node.child(seg.Name)
		if node == nil {
			return ""
		}
	}
	var b strings.Builder
	writeSelection(&b, node.Children)
	return b.String()
}

func writeSelection(b *strings.Builder, fields []*Selection) {
	if len(fields) == 0 {
		return
	}
	sorted := append([]*Selection(nil), fields...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	b.WriteByte('{')
	for i, f := range sorted {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.Name)
		writeSelection(b, f.Children)
	}
	b.WriteByte('}')
}
