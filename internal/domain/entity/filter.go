package entity

import (
	"strings"
	"time"
)

// Operator is the closed set of comparisons a record store understands.
type Operator string

const (
	OpEqual         Operator = "=="
	OpNotEqual      Operator = "!="
	OpGreater       Operator = ">"
	OpGreaterEqual  Operator = ">="
	OpLess          Operator = "<"
	OpLessEqual     Operator = "<="
	OpIn            Operator = "in"
	OpArrayContains Operator = "array-contains"
	OpContains      Operator = "contains"
)

// Valid reports whether o is one of the known operators.
func (o Operator) Valid() bool {
	switch o {
	case OpEqual, OpNotEqual, OpGreater, OpGreaterEqual, OpLess, OpLessEqual,
		OpIn, OpArrayContains, OpContains:
		return true
	}
	return false
}

// QueryFilter is one predicate sent to the record store.
type QueryFilter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Sort orders store results. An empty Field keeps the store's order.
type Sort struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending"`
}

// MatchesAll reports whether f satisfies every filter.
func MatchesAll(f Finding, filters []QueryFilter) bool {
	for _, qf := range filters {
		if !Matches(f, qf) {
			return false
		}
	}
	return true
}

// Matches evaluates one predicate. String comparisons ignore case.
func Matches(f Finding, qf QueryFilter) bool {
	field := f.Field(qf.Field)
	if field == nil {
		return false
	}
	switch qf.Operator {
	case OpEqual:
		return compare(field, qf.Value) == 0
	case OpNotEqual:
		return compare(field, qf.Value) != 0
	case OpGreater:
		c := compare(field, qf.Value)
		return c != incomparable && c > 0
	case OpGreaterEqual:
		c := compare(field, qf.Value)
		return c != incomparable && c >= 0
	case OpLess:
		c := compare(field, qf.Value)
		return c != incomparable && c < 0
	case OpLessEqual:
		c := compare(field, qf.Value)
		return c != incomparable && c <= 0
	case OpIn:
		for _, v := range toSlice(qf.Value) {
			if compare(field, v) == 0 {
				return true
			}
		}
		return false
	case OpArrayContains:
		for _, v := range toSlice(field) {
			if compare(v, qf.Value) == 0 {
				return true
			}
		}
		return false
	case OpContains:
		s, ok := field.(string)
		v, vok := qf.Value.(string)
		return ok && vok && strings.Contains(strings.ToLower(s), strings.ToLower(v))
	}
	return false
}

const incomparable = 2

func compare(a, b any) int {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return incomparable
		}
		return strings.Compare(strings.ToLower(x), strings.ToLower(y))
	case float64:
		y, ok := toFloat(b)
		if !ok {
			return incomparable
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return incomparable
		}
		return x.Compare(y)
	}
	return incomparable
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	}
	return nil
}

// Less orders a before b under s. Incomparable values keep their order.
func (s Sort) Less(a, b Finding) bool {
	if s.Field == "" {
		return false
	}
	c := compare(a.Field(s.Field), b.Field(s.Field))
	if c == incomparable {
		return false
	}
	if s.Descending {
		return c > 0
	}
	return c < 0
}
