// Package conditions evaluates filter groups against task field values.
//
// Evaluation never fails: values that cannot be coerced make the predicate false,
// and unknown fields resolve to nil.
package conditions

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
)

// FieldSource resolves a field name to its current value (nil when unknown).
type FieldSource interface {
	Field(name string) any
}

// Evaluate reports whether group passes against src. An empty filter list passes
// regardless of logic.
func Evaluate(group models.FilterGroup, src FieldSource) bool {
	if len(group.Filters) == 0 {
		return true
	}

	if group.Logic == models.LogicOr {
		for _, f := range group.Filters {
			if Predicate(f, src) {
				return true
			}
		}

		return false
	}

	for _, f := range group.Filters {
		if !Predicate(f, src) {
			return false
		}
	}

	return true
}

// EvaluateAll is the rule-level match: every group must pass. No groups passes.
func EvaluateAll(groups []models.FilterGroup, src FieldSource) bool {
	for _, g := range groups {
		if !Evaluate(g, src) {
			return false
		}
	}

	return true
}

// Predicate evaluates a single filter.
func Predicate(f models.Filter, src FieldSource) bool {
	actual := src.Field(f.Field)

	switch f.Operator {
	case models.OperatorIsEmpty:
		return IsEmpty(actual)
	case models.OperatorIsNotEmpty:
		return !IsEmpty(actual)
	case models.OperatorEquals:
		return equals(actual, f.Value)
	case models.OperatorNotEquals:
		return !equals(actual, f.Value)
	case models.OperatorContains:
		return contains(actual, f.Value)
	case models.OperatorGreaterThan:
		a, b, ok := numericPair(actual, f.Value)
		return ok && a > b
	case models.OperatorLessThan:
		a, b, ok := numericPair(actual, f.Value)
		return ok && a < b
	default:
		return false
	}
}

// IsEmpty treats nil, nil pointers, "" and empty collections as empty.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}

	if s, ok := v.(string); ok {
		return s == ""
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return true
		}

		return IsEmpty(rv.Elem().Interface())
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	default:
		return false
	}
}

func equals(actual, expected any) bool {
	a, ok := ToString(actual)
	if !ok {
		return false
	}

	b, ok := ToString(expected)
	if !ok {
		return false
	}

	return a == b
}

func contains(actual, expected any) bool {
	if actual == nil {
		return false
	}

	needle, ok := ToString(expected)
	if !ok {
		return false
	}

	rv := reflect.ValueOf(actual)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := range rv.Len() {
			if s, ok := ToString(rv.Index(i).Interface()); ok && s == needle {
				return true
			}
		}

		return false
	}

	haystack, ok := ToString(actual)
	if !ok {
		return false
	}

	return strings.Contains(haystack, needle)
}

// ToString coerces scalar values to their canonical string form.
func ToString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint:
		return strconv.FormatUint(uint64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case time.Time:
		return val.UTC().Format(time.RFC3339), true
	case *time.Time:
		if val == nil {
			return "", false
		}

		return val.UTC().Format(time.RFC3339), true
	case models.TaskStatus:
		return string(val), true
	case interface{ String() string }:
		return val.String(), true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}

		return ToString(rv.Elem().Interface())
	}

	if rv.Kind() == reflect.String {
		return rv.String(), true
	}

	return "", false
}

// ToFloat coerces numbers and numeric strings. NaN is rejected.
func ToFloat(v any) (float64, bool) {
	var f float64

	switch val := v.(type) {
	case int:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	case uint:
		f = float64(val)
	case uint64:
		f = float64(val)
	case float32:
		f = float64(val)
	case float64:
		f = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}

		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) {
		return 0, false
	}

	return f, true
}

func numericPair(actual, expected any) (float64, float64, bool) {
	a, ok := ToFloat(actual)
	if !ok {
		return 0, 0, false
	}

	b, ok := ToFloat(expected)
	if !ok {
		return 0, 0, false
	}

	return a, b, true
}
