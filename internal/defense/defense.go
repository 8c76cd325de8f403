// Package defense bounds inbound field sizes before any business logic
// runs, so adversarial payloads cannot consume resources past the gate.
package defense

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Field locations checked, in order.
const (
	LocationBody   = "body"
	LocationQuery  = "query"
	LocationParams = "params"
)

// Field is one named value to check.
type Field struct {
	Name  string
	Value string
}

// Group is an ordered set of fields from one location.
type Group struct {
	Location string
	Fields   []Field
}

// Violation reports the first oversized field found.
type Violation struct {
	Field    string
	Location string
	Limit    int
	Actual   int
}

func (v *Violation) Error() string {
	return fmt.Sprintf("field %s in %s exceeds limit of %d characters (received %d)", v.Field, v.Location, v.Limit, v.Actual)
}

// Limits holds per-location defaults and per-field overrides. Overrides
// take precedence over the location default.
type Limits struct {
	BodyDefault   int
	QueryDefault  int
	ParamsDefault int
	FieldLimits   map[string]int
}

// limitFor resolves the effective limit for a field.
func (l Limits) limitFor(location, field string) int {
	if override, ok := l.FieldLimits[Normalize(field)]; ok {
		return override
	}
	switch location {
	case LocationBody:
		return l.BodyDefault
	case LocationQuery:
		return l.QueryDefault
	case LocationParams:
		return l.ParamsDefault
	default:
		return 0
	}
}

// Check scans groups in order and fails fast on the first violation. Fields
// are checked in declaration order within each group; a nil return means
// every field is within bounds. No side effects either way.
func (l Limits) Check(groups ...Group) *Violation {
	for _, group := range groups {
		for _, field := range group.Fields {
			limit := l.limitFor(group.Location, field.Name)
			if limit <= 0 {
				continue
			}
			// Limits are in characters, as the violation message says,
			// not bytes.
			if actual := utf8.RuneCountInString(field.Value); actual > limit {
				return &Violation{
					Field:    field.Name,
					Location: group.Location,
					Limit:    limit,
					Actual:   actual,
				}
			}
		}
	}
	return nil
}

// BodyGroup builds an ordered body group.
func BodyGroup(fields ...Field) Group {
	return Group{Location: LocationBody, Fields: fields}
}

// QueryGroup builds an ordered query group.
func QueryGroup(fields ...Field) Group {
	return Group{Location: LocationQuery, Fields: fields}
}

// ParamsGroup builds an ordered params group.
func ParamsGroup(fields ...Field) Group {
	return Group{Location: LocationParams, Fields: fields}
}

// Normalize trims a field name for override lookups.
func Normalize(name string) string {
	return strings.TrimSpace(name)
}
