package interp

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

// hkey is the normalized hash key of a hashable value. Numbers that compare
// equal (True, 1 and 1.0) share a key.
type hkey struct {
	kind byte
	i    int64
	f    float64
	s    string
	p    any
}

func hashKey(v Value) (hkey, error) {
	switch v := v.(type) {
	case NoneType:
		return hkey{kind: 'n'}, nil
	case bool:
		if v {
			return hkey{kind: 'i', i: 1}, nil
		}
		return hkey{kind: 'i'}, nil
	case int64:
		return hkey{kind: 'i', i: v}, nil
	case *big.Int:
		return hkey{kind: 'b', s: v.String()}, nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<62 {
			return hkey{kind: 'i', i: int64(v)}, nil
		}
		return hkey{kind: 'f', f: v}, nil
	case string:
		return hkey{kind: 's', s: v}, nil
	case *Tuple:
		var sb strings.Builder
		for _, item := range v.Items {
			k, err := hashKey(item)
			if err != nil {
				return hkey{}, err
			}
			fmt.Fprintf(&sb, "%c:%d:%g:%q:%p;", k.kind, k.i, k.f, k.s, k.p)
		}
		return hkey{kind: 't', s: sb.String()}, nil
	case *List, *Dict, *Set:
		return hkey{}, NewError(TypeErrorClass, "unhashable type: '%s'", TypeName(v))
	}
	return hkey{kind: 'p', p: v}, nil
}

// table is an insertion-ordered hash table shared by Dict and Set.
type table struct {
	keys  []Value
	vals  []Value
	index map[hkey]int
}

func (t *table) find(k Value) (int, error) {
	h, err := hashKey(k)
	if err != nil {
		return -1, err
	}
	if i, ok := t.index[h]; ok {
		return i, nil
	}
	return -1, nil
}

func (t *table) put(k, v Value) error {
	h, err := hashKey(k)
	if err != nil {
		return err
	}
	if t.index == nil {
		t.index = map[hkey]int{}
	}
	if i, ok := t.index[h]; ok {
		t.vals[i] = v
		return nil
	}
	t.index[h] = len(t.keys)
	t.keys = append(t.keys, k)
	t.vals = append(t.vals, v)
	return nil
}

func (t *table) remove(k Value) (Value, bool, error) {
	i, err := t.find(k)
	if err != nil || i < 0 {
		return nil, false, err
	}
	v := t.vals[i]
	t.keys = append(t.keys[:i], t.keys[i+1:]...)
	t.vals = append(t.vals[:i], t.vals[i+1:]...)
	t.reindex()
	return v, true, nil
}

func (t *table) reindex() {
	t.index = make(map[hkey]int, len(t.keys))
	for i, k := range t.keys {
		h, _ := hashKey(k)
		t.index[h] = i
	}
}

func (t *table) clear() {
	t.keys, t.vals, t.index = nil, nil, nil
}

// Len returns the number of entries.
func (t *table) Len() int { return len(t.keys) }

// Keys returns the keys in insertion order.
func (t *table) Keys() []Value {
	out := make([]Value, len(t.keys))
	copy(out, t.keys)
	return out
}

// Dict is an insertion-ordered mapping.
type Dict struct {
	table
}

// NewDict returns an empty dict.
func NewDict() *Dict { return &Dict{} }

// Get returns the value stored under k.
func (d *Dict) Get(k Value) (Value, bool, error) {
	i, err := d.find(k)
	if err != nil || i < 0 {
		return nil, false, err
	}
	return d.vals[i], true, nil
}

// Set stores v under k.
func (d *Dict) Set(k, v Value) error { return d.put(k, v) }

// Delete removes k and reports whether it was present.
func (d *Dict) Delete(k Value) (bool, error) {
	_, ok, err := d.remove(k)
	return ok, err
}

// Items calls fn for every entry in insertion order.
func (d *Dict) Items(fn func(k, v Value)) {
	for i, k := range d.keys {
		fn(k, d.vals[i])
	}
}

// Set is an insertion-ordered set.
type Set struct {
	table
}

// NewSet returns an empty set.
func NewSet() *Set { return &Set{} }

// Add inserts v.
func (s *Set) Add(v Value) error { return s.put(v, nil) }

// Contains reports whether v is a member.
func (s *Set) Contains(v Value) (bool, error) {
	i, err := s.find(v)
	return i >= 0, err
}

// Discard removes v if present.
func (s *Set) Discard(v Value) (bool, error) {
	_, ok, err := s.remove(v)
	return ok, err
}

func (s *Set) copySet() *Set {
	out := NewSet()
	for _, k := range s.keys {
		_ = out.Add(k)
	}
	return out
}
