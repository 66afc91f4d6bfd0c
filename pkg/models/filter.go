package models

// Operator is a filter predicate.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorIsEmpty     Operator = "is_empty"
	OperatorIsNotEmpty  Operator = "is_not_empty"
)

// Operators lists every supported operator.
var Operators = []Operator{
	OperatorEquals,
	OperatorNotEquals,
	OperatorContains,
	OperatorGreaterThan,
	OperatorLessThan,
	OperatorIsEmpty,
	OperatorIsNotEmpty,
}

// Valid reports whether o is a supported operator.
func (o Operator) Valid() bool {
	for _, op := range Operators {
		if o == op {
			return true
		}
	}

	return false
}

// Unary reports whether the operator ignores the filter value.
func (o Operator) Unary() bool {
	return o == OperatorIsEmpty || o == OperatorIsNotEmpty
}

// Logic combines the filters of a single group.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Filter is one field predicate.
type Filter struct {
	Field    string   `json:"field"    yaml:"field"    validate:"required"`
	Operator Operator `json:"operator" yaml:"operator" validate:"required,oneof=equals not_equals contains greater_than less_than is_empty is_not_empty"`
	Value    any      `json:"value"    yaml:"value"`
}

// FilterGroup is one conjunct of a rule's match condition.
type FilterGroup struct {
	Logic   Logic    `json:"logic"   yaml:"logic"   validate:"required,oneof=AND OR"`
	Filters []Filter `json:"filters" yaml:"filters" validate:"dive"`
}
