package interp

// Namespace is an insertion-ordered name → value mapping. It backs module
// globals, function locals, class bodies and instance attributes.
type Namespace struct {
	names []string
	vals  map[string]Value
}

// NewNamespace returns an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{vals: map[string]Value{}}
}

// Get returns the value bound to name.
func (ns *Namespace) Get(name string) (Value, bool) {
	v, ok := ns.vals[name]
	return v, ok
}

// Has reports whether name is bound.
func (ns *Namespace) Has(name string) bool {
	_, ok := ns.vals[name]
	return ok
}

// Set binds name, keeping its original position when rebinding.
func (ns *Namespace) Set(name string, v Value) {
	if _, ok := ns.vals[name]; !ok {
		ns.names = append(ns.names, name)
	}
	ns.vals[name] = v
}

// Delete unbinds name and reports whether it was bound.
func (ns *Namespace) Delete(name string) bool {
	if _, ok := ns.vals[name]; !ok {
		return false
	}
	delete(ns.vals, name)
	for i, n := range ns.names {
		if n == name {
			ns.names = append(ns.names[:i], ns.names[i+1:]...)
			break
		}
	}
	return true
}

// Names returns the bound names in insertion order.
func (ns *Namespace) Names() []string {
	out := make([]string, len(ns.names))
	copy(out, ns.names)
	return out
}

// Len returns the number of bindings.
func (ns *Namespace) Len() int { return len(ns.names) }

// Each calls fn for every binding in insertion order.
func (ns *Namespace) Each(fn func(name string, v Value)) {
	for _, n := range ns.names {
		fn(n, ns.vals[n])
	}
}
