package fragcache

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Segment is one step of a result tree path: a field name or a list index.
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
}

// Field returns a field-name segment.
func Field(name string) Segment { return Segment{Name: name} }

// Index returns a list-index segment.
func Index(i int) Segment { return Segment{Index: i, IsIndex: true} }

// MarshalJSON encodes fields as strings and indices as numbers, so field
// "0" and index 0 never encode the same way.
func (s Segment) MarshalJSON() ([]byte, error) {
	if s.IsIndex {
		return json.Marshal(s.Index)
	}
	return json.Marshal(s.Name)
}

func (s Segment) String() string {
	if s.IsIndex {
		return strconv.Itoa(s.Index)
	}
	return s.Name
}

// Path is the ordered position of a node in the result tree.
type Path []Segment

// NewPath builds a path from strings and ints. Any other element type is
// rejected with ok=false.
func NewPath(elems ...any) (Path, bool) {
	p := make(Path, 0, len(elems))
	for _, e := range elems {
		switch v := e.(type) {
		case string:
			p = append(p, Field(v))
		case int:
			p = append(p, Index(v))
		case Segment:
			p = append(p, v)
		default:
			return nil, false
		}
	}
	return p, true
}

// MustPath is NewPath for literals; it panics on an unsupported element.
func MustPath(elems ...any) Path {
	p, ok := NewPath(elems...)
	if !ok {
		panic("fragcache: path elements must be string, int or Segment")
	}
	return p
}

// Append returns a copy of p extended by seg.
func (p Path) Append(seg Segment) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// Equal reports whether two paths have identical segments.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = seg.String()
	}
	return strings.Join(parts, ".")
}

// Lookup navigates a decoded result tree. It returns nil when any step is
// missing or of the wrong shape.
func (p Path) Lookup(tree any) any {
	cur := tree
	for _, seg := range p {
		if seg.IsIndex {
			list, ok := cur.([]any)
			if !ok || seg.Index < 0 || seg.Index >= len(list) {
				return nil
			}
			cur = list[seg.Index]
			continue
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[seg.Name]
	}
	return cur
}
