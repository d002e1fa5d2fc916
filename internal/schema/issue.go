package schema

import (
	"fmt"
	"strings"
)

// IssueKind classifies a finding structurally.
type IssueKind int

const (
	// IssueIncompatible means the value is present but violates a constraint.
	IssueIncompatible IssueKind = iota
	// IssueMissing means a required value is absent.
	IssueMissing
	// IssueUnknown means the value is present but declared nowhere in the schema.
	IssueUnknown
)

func (k IssueKind) String() string {
	return []string{"incompatible", "missing", "unknown"}[k]
}

// Issue is a single mismatch between a value and a schema node.
type Issue struct {
	Kind    IssueKind
	Keyword string
	Message string
	// ValueLocation points into the validated value.
	ValueLocation string
	// SchemaLocation points into the specification.
	SchemaLocation string
	// Value is the offending value, when there is one.
	Value any
	// Constraint describes the violated constraint, e.g. "maximum: 10".
	Constraint string
}

// JoinLocation appends a property name to a dotted location.
func JoinLocation(base, name string) string {
	if base == "" {
		return name
	}
	if name == "" {
		return base
	}
	return base + "." + name
}

// IndexLocation appends an array index to a location.
func IndexLocation(base string, i int) string {
	return fmt.Sprintf("%s[%d]", base, i)
}

// summarize renders issues as "<location> <message>" pairs relative to base.
func summarize(base string, issues []Issue) string {
	parts := make([]string, 0, len(issues))
	for _, is := range issues {
		rel := strings.TrimPrefix(is.ValueLocation, base)
		rel = strings.TrimPrefix(rel, ".")
		if rel == "" {
			parts = append(parts, is.Message)
			continue
		}
		parts = append(parts, rel+" "+is.Message)
	}
	return strings.Join(parts, "; ")
}
