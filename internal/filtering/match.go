package filtering

import "strings"

// Matches 判断单个条件。未知字段或类型不可比较时不匹配
func Matches(r Record, c Condition) bool {
	raw, ok := r.FieldValue(c.Field)
	if !ok {
		return false
	}
	field := normalize(raw)

	switch c.Operator {
	case OpIsEmpty:
		return isEmpty(field)
	case OpIsNotEmpty:
		return !isEmpty(field)
	case OpNeq:
		return comparableWith(field, c.Value) && !equals(field, c.Value)
	case OpNotContains:
		if _, ok := normalize(c.Value).(string); !ok {
			return false
		}
		switch field.(type) {
		case nil, string, []string:
			return !contains(field, c.Value)
		}
		return false
	case OpNotIn:
		for _, candidate := range listOf(c.Value) {
			if !comparableWith(field, candidate) {
				return false
			}
		}
		return !in(field, c.Value)
	}

	if field == nil {
		return false
	}

	switch c.Operator {
	case OpEq:
		return equals(field, c.Value)
	case OpContains:
		return contains(field, c.Value)
	case OpStartsWith, OpEndsWith:
		s, ok := field.(string)
		v, ok2 := normalize(c.Value).(string)
		if !ok || !ok2 {
			return false
		}
		s, v = strings.ToLower(s), strings.ToLower(v)
		if c.Operator == OpStartsWith {
			return strings.HasPrefix(s, v)
		}
		return strings.HasSuffix(s, v)
	case OpGt, OpGte, OpLt, OpLte:
		cmp, ok := Compare(field, c.Value)
		if !ok {
			return false
		}
		switch c.Operator {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		}
		return cmp <= 0
	case OpBefore, OpAfter:
		if _, isTime := field.(timeValue); !isTime {
			return false
		}
		cmp, ok := Compare(field, c.Value)
		if !ok {
			return false
		}
		if c.Operator == OpBefore {
			return cmp < 0
		}
		return cmp > 0
	case OpBetween:
		bounds := listOf(c.Value)
		if len(bounds) != 2 {
			return false
		}
		lo, ok1 := Compare(field, bounds[0])
		hi, ok2 := Compare(field, bounds[1])
		return ok1 && ok2 && lo >= 0 && hi <= 0
	case OpIn:
		return in(field, c.Value)
	}
	return false
}

// comparableWith 否定类条件只在类型可比较时成立；空字段视为可比较
func comparableWith(field, value any) bool {
	if field == nil {
		return true
	}
	if _, ok := field.([]string); ok {
		_, isStr := normalize(value).(string)
		return isStr
	}
	_, ok := Compare(field, value)
	return ok
}

func equals(field, value any) bool {
	if list, ok := field.([]string); ok {
		for _, e := range list {
			if cmp, ok := Compare(e, value); ok && cmp == 0 {
				return true
			}
		}
		return false
	}
	if field == nil {
		return normalize(value) == nil
	}
	cmp, ok := Compare(field, value)
	return ok && cmp == 0
}

func contains(field, value any) bool {
	v, ok := normalize(value).(string)
	if !ok {
		return false
	}
	v = strings.ToLower(v)
	switch x := field.(type) {
	case string:
		return strings.Contains(strings.ToLower(x), v)
	case []string:
		for _, e := range x {
			if strings.ToLower(e) == v {
				return true
			}
		}
	}
	return false
}

func in(field, value any) bool {
	if field == nil {
		return false
	}
	for _, candidate := range listOf(value) {
		if equals(field, candidate) {
			return true
		}
	}
	return false
}
