package simargs

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/ensemblectl/internal/apperrors"
)

// ParseValue infers a Value from command-line text.
//
//	"[a.yml,b.yml]" -> list
//	"42", "0.5"     -> number (text kept verbatim)
//	"true", "False" -> bool
//	anything else   -> string
func ParseValue(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		inner := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
		if inner == "" {
			return NewList()
		}
		parts := strings.Split(inner, ",")
		items := make([]string, 0, len(parts))
		for _, p := range parts {
			items = append(items, strings.TrimSpace(p))
		}
		return NewList(items...)
	}
	if _, err := strconv.ParseInt(trimmed, 10, 64); err == nil && trimmed != "" {
		return NewNumber(trimmed)
	}
	if _, err := strconv.ParseFloat(trimmed, 64); err == nil && trimmed != "" {
		return NewNumber(trimmed)
	}
	if _, err := strconv.ParseBool(trimmed); err == nil {
		return NewBool(trimmed)
	}
	return NewString(raw)
}

// ParseAssignment splits "key=value" at the first '='.
func ParseAssignment(arg string) (KV, error) {
	key, raw, ok := strings.Cut(arg, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return KV{}, &apperrors.ErrInvalidArgument{
			Name:    "override",
			Value:   arg,
			Message: "expected key=value",
		}
	}
	return KV{Key: key, Value: ParseValue(raw)}, nil
}

// ParseAssignments turns key=value arguments into one override mapping.
// The ensemble_parameter key fills Overrides.EnsembleParameter.
func ParseAssignments(args []string) (Overrides, error) {
	var o Overrides
	for _, arg := range args {
		kv, err := ParseAssignment(arg)
		if err != nil {
			return Overrides{}, err
		}
		if kv.Key == EnsembleParameterKey {
			o.EnsembleParameter = kv.Value.Text()
			continue
		}
		o = o.With(kv.Key, kv.Value)
	}
	return o, nil
}

// LoadOverridesFile reads one YAML mapping of overrides, keeping key order.
func LoadOverridesFile(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, fmt.Errorf("read overrides file: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Overrides{}, fmt.Errorf("parse overrides file %s: %w", path, err)
	}
	if doc.Kind == 0 {
		return Overrides{}, nil
	}
	o, err := DecodeOverrides(&doc)
	if err != nil {
		return Overrides{}, fmt.Errorf("overrides file %s: %w", path, err)
	}
	return o, nil
}

// DecodeOverrides converts a YAML mapping node into an override mapping.
func DecodeOverrides(node *yaml.Node) (Overrides, error) {
	args, err := DecodeArgs(node)
	if err != nil {
		return Overrides{}, err
	}
	var o Overrides
	for _, a := range args {
		if a.Name == EnsembleParameterKey {
			o.EnsembleParameter = a.Value.Text()
			continue
		}
		o = o.With(a.Name, a.Value)
	}
	return o, nil
}

// DecodeArgs converts a YAML mapping node into ordered arguments. It is used
// for both plugin defaults and override files.
func DecodeArgs(node *yaml.Node) ([]Arg, error) {
	if node == nil {
		return nil, nil
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil, nil
		}
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping at line %d", node.Line)
	}

	out := make([]Arg, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		v, err := decodeValue(val)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key.Value, err)
		}
		out = append(out, Arg{Name: key.Value, Value: v})
	}
	return out, nil
}

func decodeValue(n *yaml.Node) (Value, error) {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!int", "!!float":
			return NewNumber(n.Value), nil
		case "!!bool":
			return NewBool(n.Value), nil
		case "!!null":
			return NewString(""), nil
		default:
			return NewString(n.Value), nil
		}
	case yaml.SequenceNode:
		items := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return Value{}, fmt.Errorf("list items must be scalars (line %d)", item.Line)
			}
			items = append(items, item.Value)
		}
		return NewList(items...), nil
	default:
		return Value{}, fmt.Errorf("unsupported value at line %d (nested mappings are not parameters)", n.Line)
	}
}
