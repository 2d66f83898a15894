package filtering

import (
	"reflect"
	"strconv"
	"strings"
	"time"
)

type timeValue struct{ t time.Time }

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// normalize 把值归一到 string / float64 / bool / timeValue / []string / nil
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case bool:
		return x
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	case time.Time:
		return timeValue{x}
	case *time.Time:
		if x == nil {
			return nil
		}
		return timeValue{*x}
	case []string:
		return x
	case interface{ String() string }:
		return x.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	return v
}

// coerce 把条件值（常来自查询字符串）转换为与字段值相同的类型
func coerce(field, value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	switch field.(type) {
	case float64:
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	case bool:
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
	case timeValue:
		if t, ok := parseTime(s); ok {
			return timeValue{t}
		}
	}
	return s
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Compare 比较两个值，返回 -1/0/1；类型不可比较时 ok=false。
// 字符串大小写不敏感，false < true
func Compare(a, b any) (int, bool) {
	na := normalize(a)
	nb := coerce(na, normalize(b))
	return compareNormalized(na, nb)
}

func compareNormalized(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(strings.ToLower(x), strings.ToLower(y)), true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case timeValue:
		y, ok := b.(timeValue)
		if !ok {
			return 0, false
		}
		return x.t.Compare(y.t), true
	}
	return 0, false
}

func isNil(v any) bool {
	return normalize(v) == nil
}

func isEmpty(v any) bool {
	switch x := normalize(v).(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []string:
		return len(x) == 0
	case timeValue:
		return x.t.IsZero()
	}
	return false
}

// listOf 把 in/not_in/between 的值展开为列表；字符串按逗号切分
func listOf(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case string:
		parts := strings.Split(x, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}
