package rules

import (
	"strconv"
	"strings"

	"credwatch/internal/model"
)

// evaluateConditions applies every condition to the event; all must hold.
func evaluateConditions(conditions []model.Condition, event *model.SecurityEvent) bool {
	for _, c := range conditions {
		if !evaluateCondition(c, event) {
			return false
		}
	}
	return true
}

func evaluateCondition(c model.Condition, event *model.SecurityEvent) bool {
	actual, ok := event.Field(c.Field)
	if !ok {
		return false
	}

	switch c.Operator {
	case "eq", "==":
		return actual == c.Value
	case "ne", "!=":
		return actual != c.Value
	case "gt", ">":
		return compareNumeric(actual, c.Value, ">")
	case "gte", ">=":
		return compareNumeric(actual, c.Value, ">=")
	case "lt", "<":
		return compareNumeric(actual, c.Value, "<")
	case "lte", "<=":
		return compareNumeric(actual, c.Value, "<=")
	case "contains":
		return strings.Contains(actual, c.Value)
	case "in":
		for _, candidate := range strings.Split(c.Value, ",") {
			if actual == strings.TrimSpace(candidate) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func compareNumeric(actual, expected, operator string) bool {
	a, err1 := strconv.ParseFloat(actual, 64)
	e, err2 := strconv.ParseFloat(expected, 64)
	if err1 != nil || err2 != nil {
		return false
	}
	switch operator {
	case ">":
		return a > e
	case ">=":
		return a >= e
	case "<":
		return a < e
	case "<=":
		return a <= e
	default:
		return false
	}
}
