// Package apperrors contains generic errors returned by dispatch, bridge and
// configuration code. The CLI looks for these types with errors.As to pick an
// exit code and a user-facing message.
package apperrors

import "fmt"

// ErrInvalidArgument is returned when a caller-supplied value cannot be used.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string // Name of the argument, e.g., "step"
	Value   any    // The invalid value that was provided
	Message string // Optional explanation, e.g., "must be positive"
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for argument %q", fmt.Sprint(err.Value), err.Name)
	}
	return fmt.Sprintf("value %q is invalid for argument %q; %s", fmt.Sprint(err.Value), err.Name, err.Message)
}

// ErrNotFound is returned whenever a named resource (plugin, machine, config
// directory, template) does not exist.
type ErrNotFound struct {
	Type    string // Resource type, e.g., "plugin" or "machine"
	Value   string // Resource name, e.g., "FabGPDR"
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("%s %q not found", err.Type, err.Value)
	} else {
		s = fmt.Sprintf("resource %q not found", err.Value)
	}
	if err.Message != "" {
		s += "; " + err.Message
	}
	return s
}
