package simargs

import "slices"

// EnsembleParameterKey is the override key naming the parameter that receives
// the ensemble binding.
const EnsembleParameterKey = "ensemble_parameter"

// KV is one override assignment.
type KV struct {
	Key   string
	Value Value
}

// Overrides is one override mapping: ordered assignments plus the optional
// ensemble parameter. Keys are not checked against any store here; unknown
// keys fall into the ignored bucket when the mapping is merged.
type Overrides struct {
	EnsembleParameter string
	Values            []KV
}

// Mapping builds an Overrides from assignments. A later duplicate key
// replaces the earlier one in place.
func Mapping(kvs ...KV) Overrides {
	var o Overrides
	for _, kv := range kvs {
		o = o.With(kv.Key, kv.Value)
	}
	return o
}

// With returns a copy of o with key set to v.
func (o Overrides) With(key string, v Value) Overrides {
	out := Overrides{EnsembleParameter: o.EnsembleParameter, Values: slices.Clone(o.Values)}
	for i := range out.Values {
		if out.Values[i].Key == key {
			out.Values[i].Value = v
			return out
		}
	}
	out.Values = append(out.Values, KV{Key: key, Value: v})
	return out
}

// WithEnsembleParameter returns a copy of o binding param.
func (o Overrides) WithEnsembleParameter(param string) Overrides {
	out := Overrides{EnsembleParameter: param, Values: slices.Clone(o.Values)}
	return out
}

// Lookup returns the value assigned to key in this mapping.
func (o Overrides) Lookup(key string) (Value, bool) {
	for _, kv := range o.Values {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return Value{}, false
}

// Keys returns the assigned keys in order.
func (o Overrides) Keys() []string {
	keys := make([]string, len(o.Values))
	for i, kv := range o.Values {
		keys[i] = kv.Key
	}
	return keys
}

// Empty reports whether the mapping assigns nothing.
func (o Overrides) Empty() bool {
	return o.EnsembleParameter == "" && len(o.Values) == 0
}

// LookupLast returns the value for key from the last mapping that assigns it.
func LookupLast(key string, overrides ...Overrides) (Value, bool) {
	for i := len(overrides) - 1; i >= 0; i-- {
		if v, ok := overrides[i].Lookup(key); ok {
			return v, true
		}
	}
	return Value{}, false
}
