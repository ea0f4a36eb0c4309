package interp

import (
	"unicode/utf8"
)

func iterSlice(items []Value) *Iterator {
	i := 0
	return &Iterator{next: func() (Value, bool, error) {
		if i >= len(items) {
			return nil, false, nil
		}
		v := items[i]
		i++
		return v, true, nil
	}}
}

// Next advances it.
func (it *Iterator) Next() (Value, bool, error) { return it.next() }

// Iter implements iter(v).
func (in *Interp) Iter(v Value) (*Iterator, error) {
	switch v := v.(type) {
	case *Iterator:
		return v, nil
	case *List:
		// Lists are iterated live so appends during iteration are seen.
		i := 0
		return &Iterator{next: func() (Value, bool, error) {
			if i >= len(v.Items) {
				return nil, false, nil
			}
			x := v.Items[i]
			i++
			return x, true, nil
		}}, nil
	case *Tuple:
		return iterSlice(v.Items), nil
	case string:
		s := v
		return &Iterator{next: func() (Value, bool, error) {
			if s == "" {
				return nil, false, nil
			}
			r, size := utf8.DecodeRuneInString(s)
			s = s[size:]
			return string(r), true, nil
		}}, nil
	case *Dict:
		return in.tableIter(&v.table, "dictionary"), nil
	case *Set:
		return in.tableIter(&v.table, "set"), nil
	case *Range:
		i, n := int64(0), v.Len()
		return &Iterator{next: func() (Value, bool, error) {
			if i >= n {
				return nil, false, nil
			}
			x := v.At(i)
			i++
			return x, true, nil
		}}, nil
	case *Instance:
		if r, found, err := in.dunder(v, "__iter__"); found || err != nil {
			if err != nil {
				return nil, err
			}
			if it, ok := r.(*Iterator); ok {
				return it, nil
			}
			if _, _, ok := TypeOf(r).Lookup("__next__"); !ok {
				return nil, NewError(TypeErrorClass, "iter() returned non-iterator of type '%s'", TypeName(r))
			}
			return in.protocolIter(r), nil
		}
		if _, _, ok := v.Class.Lookup("__getitem__"); ok {
			i := int64(0)
			return &Iterator{next: func() (Value, bool, error) {
				x, _, err := in.dunder(v, "__getitem__", i)
				if err != nil {
					if exc, ok := err.(*Exception); ok && exc.Value.Class.IsSubclass(IndexErrorClass) {
						return nil, false, nil
					}
					return nil, false, err
				}
				i++
				return x, true, nil
			}}, nil
		}
	}
	return nil, NewError(TypeErrorClass, "'%s' object is not iterable", TypeName(v))
}

// protocolIter drives a user object implementing __next__.
func (in *Interp) protocolIter(obj Value) *Iterator {
	return &Iterator{next: func() (Value, bool, error) {
		v, _, err := in.dunder(obj, "__next__")
		if err != nil {
			if exc, ok := err.(*Exception); ok && exc.Value.Class.IsSubclass(StopIterationClass) {
				return nil, false, nil
			}
			return nil, false, err
		}
		return v, true, nil
	}}
}

func (in *Interp) tableIter(t *table, what string) *Iterator {
	i, n := 0, len(t.keys)
	return &Iterator{next: func() (Value, bool, error) {
		if len(t.keys) != n {
			return nil, false, NewError(RuntimeErrorClass, "%s changed size during iteration", what)
		}
		if i >= n {
			return nil, false, nil
		}
		k := t.keys[i]
		i++
		return k, true, nil
	}}
}

// ToSlice drains an iterable into a Go slice.
func (in *Interp) ToSlice(v Value) ([]Value, error) {
	switch v := v.(type) {
	case *List:
		return append([]Value(nil), v.Items...), nil
	case *Tuple:
		return v.Items, nil
	}
	it, err := in.Iter(v)
	if err != nil {
		return nil, err
	}
	var out []Value
	for {
		x, ok, err := it.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, x)
		if len(out) > maxRepeat {
			return nil, NewError(MemoryErrorClass, "iterable too large")
		}
	}
}

// Len implements len(v).
func (in *Interp) Len(v Value) (int64, error) {
	switch v := v.(type) {
	case string:
		return int64(utf8.RuneCountInString(v)), nil
	case *List:
		return int64(len(v.Items)), nil
	case *Tuple:
		return int64(len(v.Items)), nil
	case *Dict:
		return int64(v.Len()), nil
	case *Set:
		return int64(v.Len()), nil
	case *Range:
		return v.Len(), nil
	case *Instance:
		if r, found, err := in.dunder(v, "__len__"); found || err != nil {
			if err != nil {
				return 0, err
			}
			n, ok := asInt(r)
			if !ok {
				return 0, NewError(TypeErrorClass, "'%s' object cannot be interpreted as an integer", TypeName(r))
			}
			if n < 0 {
				return 0, NewError(ValueErrorClass, "__len__() should return >= 0")
			}
			return n, nil
		}
	}
	return 0, NewError(TypeErrorClass, "object of type '%s' has no len()", TypeName(v))
}

// normIndex resolves a possibly negative index against length n.
func normIndex(idx Value, n int, what string) (int, error) {
	i, ok := asInt(idx)
	if !ok {
		return 0, NewError(TypeErrorClass, "%s indices must be integers or slices, not %s", what, TypeName(idx))
	}
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, NewError(IndexErrorClass, "%s index out of range", what)
	}
	return int(i), nil
}

// sliceIndices computes the positions selected by s over length n.
func sliceIndices(s *SliceValue, n int) ([]int, error) {
	step := int64(1)
	if s.Step != None {
		v, ok := asInt(s.Step)
		if !ok {
			return nil, NewError(TypeErrorClass, "slice indices must be integers or None")
		}
		if v == 0 {
			return nil, NewError(ValueErrorClass, "slice step cannot be zero")
		}
		step = v
	}
	bound := func(v Value, def int64) (int64, error) {
		if v == None {
			return def, nil
		}
		i, ok := asInt(v)
		if !ok {
			return 0, NewError(TypeErrorClass, "slice indices must be integers or None")
		}
		if i < 0 {
			i += int64(n)
			if i < 0 {
				if step < 0 {
					return -1, nil
				}
				return 0, nil
			}
		}
		if i >= int64(n) {
			if step < 0 {
				return int64(n) - 1, nil
			}
			return int64(n), nil
		}
		return i, nil
	}
	var lo, hi int64
	var err error
	if step > 0 {
		if lo, err = bound(s.Lo, 0); err != nil {
			return nil, err
		}
		if hi, err = bound(s.Hi, int64(n)); err != nil {
			return nil, err
		}
	} else {
		if lo, err = bound(s.Lo, int64(n)-1); err != nil {
			return nil, err
		}
		if hi, err = bound(s.Hi, -1); err != nil {
			return nil, err
		}
	}
	var out []int
	for i := lo; (step > 0 && i < hi) || (step < 0 && i > hi); i += step {
		out = append(out, int(i))
	}
	return out, nil
}

// GetItem implements obj[idx].
func (in *Interp) GetItem(obj, idx Value) (Value, error) {
	switch o := obj.(type) {
	case *List:
		if s, ok := idx.(*SliceValue); ok {
			pos, err := sliceIndices(s, len(o.Items))
			if err != nil {
				return nil, err
			}
			out := make([]Value, len(pos))
			for i, p := range pos {
				out[i] = o.Items[p]
			}
			return NewList(out...), nil
		}
		i, err := normIndex(idx, len(o.Items), "list")
		if err != nil {
			return nil, err
		}
		return o.Items[i], nil
	case *Tuple:
		if s, ok := idx.(*SliceValue); ok {
			pos, err := sliceIndices(s, len(o.Items))
			if err != nil {
				return nil, err
			}
			out := make([]Value, len(pos))
			for i, p := range pos {
				out[i] = o.Items[p]
			}
			return NewTuple(out...), nil
		}
		i, err := normIndex(idx, len(o.Items), "tuple")
		if err != nil {
			return nil, err
		}
		return o.Items[i], nil
	case string:
		runes := []rune(o)
		if s, ok := idx.(*SliceValue); ok {
			pos, err := sliceIndices(s, len(runes))
			if err != nil {
				return nil, err
			}
			out := make([]rune, len(pos))
			for i, p := range pos {
				out[i] = runes[p]
			}
			return string(out), nil
		}
		i, err := normIndex(idx, len(runes), "string")
		if err != nil {
			return nil, err
		}
		return string(runes[i]), nil
	case *Range:
		if s, ok := idx.(*SliceValue); ok {
			pos, err := sliceIndices(s, int(o.Len()))
			if err != nil {
				return nil, err
			}
			out := make([]Value, len(pos))
			for i, p := range pos {
				out[i] = o.At(int64(p))
			}
			return NewList(out...), nil
		}
		i, err := normIndex(idx, int(o.Len()), "range object")
		if err != nil {
			return nil, err
		}
		return o.At(int64(i)), nil
	case *Dict:
		v, ok, err := o.Get(idx)
		if err != nil {
			return nil, err
		}
		if !ok {
			exc := NewInstance(KeyErrorClass)
			exc.Args = []Value{idx}
			return nil, &Exception{Value: exc}
		}
		return v, nil
	case *Instance:
		if v, found, err := in.dunder(o, "__getitem__", idx); found || err != nil {
			return v, err
		}
	case *Class:
		// list[int] style annotations evaluate to the class itself.
		if o.builtin {
			return o, nil
		}
	}
	return nil, NewError(TypeErrorClass, "'%s' object is not subscriptable", TypeName(obj))
}

// SetItem implements obj[idx] = v.
func (in *Interp) SetItem(obj, idx, v Value) error {
	switch o := obj.(type) {
	case *List:
		if s, ok := idx.(*SliceValue); ok {
			items, err := in.ToSlice(v)
			if err != nil {
				return NewError(TypeErrorClass, "can only assign an iterable")
			}
			return assignSlice(o, s, items)
		}
		i, err := normIndex(idx, len(o.Items), "list assignment")
		if err != nil {
			return err
		}
		o.Items[i] = v
		return nil
	case *Dict:
		return o.Set(idx, v)
	case *Instance:
		if _, found, err := in.dunder(o, "__setitem__", idx, v); found || err != nil {
			return err
		}
	}
	return NewError(TypeErrorClass, "'%s' object does not support item assignment", TypeName(obj))
}

func assignSlice(l *List, s *SliceValue, items []Value) error {
	if s.Step == None || s.Step == int64(1) {
		pos, err := sliceIndices(&SliceValue{Lo: s.Lo, Hi: s.Hi, Step: None}, len(l.Items))
		if err != nil {
			return err
		}
		lo, hi := 0, 0
		if len(pos) > 0 {
			lo, hi = pos[0], pos[len(pos)-1]+1
		} else {
			start, _ := sliceIndices(&SliceValue{Lo: s.Lo, Hi: None, Step: None}, len(l.Items))
			lo = len(l.Items)
			if len(start) > 0 {
				lo = start[0]
			}
			hi = lo
		}
		out := make([]Value, 0, len(l.Items)-(hi-lo)+len(items))
		out = append(out, l.Items[:lo]...)
		out = append(out, items...)
		out = append(out, l.Items[hi:]...)
		l.Items = out
		return nil
	}
	pos, err := sliceIndices(s, len(l.Items))
	if err != nil {
		return err
	}
	if len(pos) != len(items) {
		return NewError(ValueErrorClass, "attempt to assign sequence of size %d to extended slice of size %d", len(items), len(pos))
	}
	for i, p := range pos {
		l.Items[p] = items[i]
	}
	return nil
}

// DelItem implements del obj[idx].
func (in *Interp) DelItem(obj, idx Value) error {
	switch o := obj.(type) {
	case *List:
		if s, ok := idx.(*SliceValue); ok {
			pos, err := sliceIndices(s, len(o.Items))
			if err != nil {
				return err
			}
			drop := make(map[int]bool, len(pos))
			for _, p := range pos {
				drop[p] = true
			}
			out := o.Items[:0]
			for i, v := range o.Items {
				if !drop[i] {
					out = append(out, v)
				}
			}
			o.Items = out
			return nil
		}
		i, err := normIndex(idx, len(o.Items), "list assignment")
		if err != nil {
			return err
		}
		o.Items = append(o.Items[:i], o.Items[i+1:]...)
		return nil
	case *Dict:
		ok, err := o.Delete(idx)
		if err != nil {
			return err
		}
		if !ok {
			exc := NewInstance(KeyErrorClass)
			exc.Args = []Value{idx}
			return &Exception{Value: exc}
		}
		return nil
	case *Instance:
		if _, found, err := in.dunder(o, "__delitem__", idx); found || err != nil {
			return err
		}
	}
	return NewError(TypeErrorClass, "'%s' object doesn't support item deletion", TypeName(obj))
}
