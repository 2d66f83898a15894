package filtering

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Record 可被过滤的实体；未知字段返回 ok=false
type Record interface {
	FieldValue(name string) (any, bool)
}

type Operator string

const (
	OpEq          Operator = "eq"
	OpNeq         Operator = "neq"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpGt          Operator = "gt"
	OpGte         Operator = "gte"
	OpLt          Operator = "lt"
	OpLte         Operator = "lte"
	OpBetween     Operator = "between"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
	OpBefore      Operator = "before"
	OpAfter       Operator = "after"
)

var knownOperators = map[Operator]bool{
	OpEq: true, OpNeq: true, OpContains: true, OpNotContains: true,
	OpStartsWith: true, OpEndsWith: true, OpGt: true, OpGte: true,
	OpLt: true, OpLte: true, OpBetween: true, OpIn: true, OpNotIn: true,
	OpIsEmpty: true, OpIsNotEmpty: true, OpBefore: true, OpAfter: true,
}

var ErrUnknownOperator = errors.New("unknown filter operator")

// Condition 单个字段条件。between 的 Value 为两个元素的切片 [lo, hi]；
// in/not_in 的 Value 为切片
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

type SortKey struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

type Options struct {
	Conditions   []Condition
	Sort         []SortKey
	Search       string
	SearchFields []string
	Page         int
	PageSize     int
}

// DefaultSearchFields 未指定 SearchFields 时搜索的字段
var DefaultSearchFields = []string{"title", "name", "description"}

// Predicate 编译后的条件合取
type Predicate func(Record) bool

// Compile 校验操作符并返回所有条件的合取
func Compile(conds []Condition) (Predicate, error) {
	for _, c := range conds {
		if !knownOperators[c.Operator] {
			return nil, fmt.Errorf("%w: %q on field %q", ErrUnknownOperator, c.Operator, c.Field)
		}
	}
	copied := append([]Condition(nil), conds...)
	return func(r Record) bool {
		for _, c := range copied {
			if !Matches(r, c) {
				return false
			}
		}
		return true
	}, nil
}

// Filter 返回满足全部条件的新切片
func Filter[T Record](items []T, conds []Condition) ([]T, error) {
	pred, err := Compile(conds)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if pred(it) {
			out = append(out, it)
		}
	}
	return out, nil
}

// Search 在 fields 中做大小写不敏感的子串匹配，任一字段命中即保留
func Search[T Record](items []T, query string, fields []string) []T {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return append([]T(nil), items...)
	}
	if len(fields) == 0 {
		fields = DefaultSearchFields
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if searchHit(it, query, fields) {
			out = append(out, it)
		}
	}
	return out
}

func searchHit(r Record, query string, fields []string) bool {
	for _, f := range fields {
		v, ok := r.FieldValue(f)
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			if strings.Contains(strings.ToLower(s), query) {
				return true
			}
		case []string:
			for _, e := range s {
				if strings.Contains(strings.ToLower(e), query) {
					return true
				}
			}
		}
	}
	return false
}

// Sort 按 keys 做稳定的字典序多键排序；缺失值无论升降序都排在最后
func Sort[T Record](items []T, keys []SortKey) []T {
	out := append([]T(nil), items...)
	if len(keys) == 0 {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j], keys)
	})
	return out
}

func less(a, b Record, keys []SortKey) bool {
	for _, k := range keys {
		va, _ := a.FieldValue(k.Field)
		vb, _ := b.FieldValue(k.Field)
		na, nb := isNil(va), isNil(vb)
		switch {
		case na && nb:
			continue
		case na:
			return false
		case nb:
			return true
		}
		c, ok := Compare(va, vb)
		if !ok || c == 0 {
			continue
		}
		if k.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

// FilterAndSort 条件过滤 → 全文搜索 → 排序 → 可选分页
func FilterAndSort[T Record](items []T, opts Options) ([]T, error) {
	out, err := Filter(items, opts.Conditions)
	if err != nil {
		return nil, err
	}
	if opts.Search != "" {
		out = Search(out, opts.Search, opts.SearchFields)
	}
	out = Sort(out, opts.Sort)
	if opts.PageSize > 0 {
		out = Paginate(out, opts.Page, opts.PageSize).Items
	}
	return out, nil
}

// Apply 与 FilterAndSort 相同，但返回带总数的分页结果
func Apply[T Record](items []T, opts Options) (Page[T], error) {
	out, err := Filter(items, opts.Conditions)
	if err != nil {
		return Page[T]{}, err
	}
	if opts.Search != "" {
		out = Search(out, opts.Search, opts.SearchFields)
	}
	return Paginate(Sort(out, opts.Sort), opts.Page, opts.PageSize), nil
}

// Groups GroupBy 的结果，Keys 按首次出现顺序排列
type Groups[T any] struct {
	Keys  []string       `json:"keys"`
	Items map[string][]T `json:"items"`
}

// GroupBy 按字段值分组；缺失值归入 ""，[]string 字段按每个元素分组
func GroupBy[T Record](items []T, field string) Groups[T] {
	g := Groups[T]{Items: make(map[string][]T)}
	add := func(key string, it T) {
		if _, seen := g.Items[key]; !seen {
			g.Keys = append(g.Keys, key)
		}
		g.Items[key] = append(g.Items[key], it)
	}
	for _, it := range items {
		v, _ := it.FieldValue(field)
		if list, ok := v.([]string); ok && len(list) > 0 {
			for _, e := range list {
				add(e, it)
			}
			continue
		}
		add(groupKey(v), it)
	}
	return g
}

func groupKey(v any) string {
	if isEmpty(v) {
		return ""
	}
	switch x := normalize(v).(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case timeValue:
		return x.t.Format("2006-01-02")
	}
	return fmt.Sprint(v)
}

// Page 分页结果
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Paginate page 从 1 开始；size <= 0 返回全部
func Paginate[T any](items []T, page, size int) Page[T] {
	total := len(items)
	if size <= 0 {
		return Page[T]{Items: append([]T(nil), items...), Page: 1, PageSize: total, Total: total, TotalPages: 1}
	}
	if page < 1 {
		page = 1
	}
	pages := (total + size - 1) / size
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return Page[T]{
		Items:      append([]T(nil), items[start:end]...),
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: pages,
	}
}
