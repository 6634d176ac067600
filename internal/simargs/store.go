package simargs

import (
	"fmt"
	"slices"
	"strings"
)

// DefaultBindingToken is the placeholder used when a machine does not
// configure its own task-index token.
const DefaultBindingToken = "$SLURM_ARRAY_TASK_ID"

// Arg is one named parameter value.
type Arg struct {
	Name  string
	Value Value
}

// Store is the ordered mapping of recognised parameter names to values.
// The key set and its order are fixed by NewStore; only values change.
type Store struct {
	names        []string
	index        map[string]int
	values       []Value
	defaults     []Value
	bindingToken string
	// unbound is the value the bound parameter held before it was bound.
	unbound Value
}

// StoreOption customises a Store at construction.
type StoreOption func(*Store)

// WithBindingToken sets the token written by the ensemble binding rule.
func WithBindingToken(token string) StoreOption {
	return func(s *Store) {
		if strings.TrimSpace(token) != "" {
			s.bindingToken = token
		}
	}
}

// NewStore seeds a store from defaults, keeping their order. Duplicate or
// empty names are rejected.
func NewStore(defaults []Arg, opts ...StoreOption) (*Store, error) {
	s := &Store{
		names:        make([]string, 0, len(defaults)),
		index:        make(map[string]int, len(defaults)),
		values:       make([]Value, 0, len(defaults)),
		defaults:     make([]Value, 0, len(defaults)),
		bindingToken: DefaultBindingToken,
	}
	for _, a := range defaults {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return nil, fmt.Errorf("simulation argument name is empty")
		}
		if _, dup := s.index[name]; dup {
			return nil, fmt.Errorf("simulation argument %q declared twice", name)
		}
		s.index[name] = len(s.names)
		s.names = append(s.names, name)
		s.values = append(s.values, a.Value)
		s.defaults = append(s.defaults, a.Value)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BindingToken returns the placeholder written for the ensemble parameter.
func (s *Store) BindingToken() string { return s.bindingToken }

// Len returns the number of recognised parameters.
func (s *Store) Len() int { return len(s.names) }

// Names returns the recognised parameter names in store order.
func (s *Store) Names() []string { return slices.Clone(s.names) }

// Has reports whether name is a recognised parameter.
func (s *Store) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Get returns the current value for name.
func (s *Store) Get(name string) (Value, bool) {
	i, ok := s.index[name]
	if !ok {
		return Value{}, false
	}
	return s.values[i], true
}

// Args returns the current contents in store order.
func (s *Store) Args() []Arg {
	out := make([]Arg, len(s.names))
	for i, name := range s.names {
		out[i] = Arg{Name: name, Value: s.values[i]}
	}
	return out
}

// Bound returns the parameter currently holding the ensemble binding, if any.
func (s *Store) Bound() (string, bool) {
	for i, v := range s.values {
		if v.IsBinding() {
			return s.names[i], true
		}
	}
	return "", false
}

// Reset restores every value to its seeded default.
func (s *Store) Reset() {
	copy(s.values, s.defaults)
	s.unbound = Value{}
}

// Clone returns an independent copy.
func (s *Store) Clone() *Store {
	c := &Store{
		names:        slices.Clone(s.names),
		index:        make(map[string]int, len(s.index)),
		values:       slices.Clone(s.values),
		defaults:     slices.Clone(s.defaults),
		bindingToken: s.bindingToken,
		unbound:      s.unbound,
	}
	for k, v := range s.index {
		c.index[k] = v
	}
	return c
}

// Equal reports whether both stores hold the same names, order and values.
func (s *Store) Equal(o *Store) bool {
	if s == nil || o == nil {
		return s == o
	}
	if !slices.Equal(s.names, o.names) {
		return false
	}
	for i := range s.values {
		if !s.values[i].Equal(o.values[i]) {
			return false
		}
	}
	return true
}

func (s *Store) set(name string, v Value) bool {
	i, ok := s.index[name]
	if !ok {
		return false
	}
	s.values[i] = v
	return true
}
