package simargs

import "strings"

// positionalSeparator joins list values passed positionally.
const positionalSeparator = "  "

// Entry is one rendered piece of the argument string: a named flag with a
// single value, or a run of positional values.
type Entry struct {
	Flag       string
	Values     []string
	Positional bool
}

// String formats the entry exactly as it appears in the argument string.
func (e Entry) String() string {
	if e.Positional {
		return strings.Join(e.Values, positionalSeparator)
	}
	var v string
	if len(e.Values) > 0 {
		v = e.Values[0]
	}
	return " --" + e.Flag + " " + v
}

// Entries lists the store contents as render entries, in store order.
// Scalars and bindings become flags; lists become positional runs without a
// flag. Empty lists produce no entry.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, len(s.names))
	for i, name := range s.names {
		v := s.values[i]
		if v.IsList() {
			if len(v.items) == 0 {
				continue
			}
			out = append(out, Entry{Flag: name, Values: v.Items(), Positional: true})
			continue
		}
		out = append(out, Entry{Flag: name, Values: []string{v.Text()}})
	}
	return out
}

// Render returns the flat argument string for the store.
func (s *Store) Render() string {
	return Render(s.Entries())
}

// Render concatenates entries into one argument string.
func Render(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.String())
	}
	return b.String()
}
