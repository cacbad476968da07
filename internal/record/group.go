package record

import (
	"fmt"
	"strings"

	"github.com/example/bulk-record-processor/internal/apperr"
)

// Field is one cell of an optional group.
type Field struct {
	Column   string
	Label    string
	Value    string
	Required bool
}

// Fields is the ordered field list of a group.
type Fields []Field

// Group is an optional, independently validated set of row fields.
type Group interface {
	GroupLabel() string
	Fields() Fields
}

// Empty reports whether no field of the group is populated.
func (f Fields) Empty() bool {
	for _, field := range f {
		if field.Value != "" {
			return false
		}
	}
	return true
}

// Missing returns the required fields that are not populated.
func (f Fields) Missing() Fields {
	var out Fields
	for _, field := range f {
		if field.Required && field.Value == "" {
			out = append(out, field)
		}
	}
	return out
}

// Validate checks a group. An all-empty group is valid; a partially populated
// group must have every required field.
func Validate(g Group) error {
	fields := g.Fields()
	if fields.Empty() {
		return nil
	}
	missing := fields.Missing()
	if len(missing) == 0 {
		return nil
	}

	names := make([]string, 0, len(missing))
	for _, field := range missing {
		names = append(names, fmt.Sprintf("%s (%s)", field.Label, field.Column))
	}
	verb := "is"
	if len(missing) > 1 {
		verb = "are"
	}
	return apperr.Validation("%s: %s %s missing", g.GroupLabel(), strings.Join(names, ", "), verb)
}
