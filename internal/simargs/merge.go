package simargs

// MergeReport describes what a Merge call did besides updating values.
type MergeReport struct {
	// Ignored lists override keys that are not recognised parameters, in the
	// order they were seen. An unknown ensemble parameter is reported as
	// "ensemble_parameter=<name>".
	Ignored []string
	// Bound is the parameter that received the ensemble binding, if any.
	Bound string
}

// Merge folds override mappings into the store in order.
//
// For each mapping, the ensemble binding is applied first, then the ordinary
// assignments, so an explicit value for the bound parameter in the same or a
// later mapping still wins. Unknown keys are skipped and reported, never an
// error.
func (s *Store) Merge(overrides ...Overrides) MergeReport {
	var report MergeReport
	for _, m := range overrides {
		if p := m.EnsembleParameter; p != "" {
			if s.Has(p) {
				s.bind(p)
				report.Bound = p
			} else {
				report.Ignored = append(report.Ignored, EnsembleParameterKey+"="+p)
			}
		}
		for _, kv := range m.Values {
			if !s.set(kv.Key, kv.Value) {
				report.Ignored = append(report.Ignored, kv.Key)
			}
		}
	}
	return report
}

// bind places the binding on name. At most one parameter holds the binding,
// so a parameter bound by an earlier mapping gets back the value it held
// before that binding.
func (s *Store) bind(name string) {
	if prev, ok := s.Bound(); ok {
		if prev == name {
			return
		}
		s.set(prev, s.unbound)
	}
	s.unbound, _ = s.Get(name)
	s.set(name, NewBinding(s.bindingToken))
}
