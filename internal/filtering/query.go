package filtering

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var ErrInvalidQuery = errors.New("invalid filter query")

// ParseQuery 从查询参数构造 Options：
//
//	filter=status:in:todo,review   (可重复)
//	sort=-due_date,title
//	q=login&page=2&page_size=20
func ParseQuery(q url.Values) (Options, error) {
	var opts Options

	for _, raw := range q["filter"] {
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) < 2 || parts[0] == "" {
			return Options{}, fmt.Errorf("%w: filter %q must be field:operator[:value]", ErrInvalidQuery, raw)
		}
		cond := Condition{Field: parts[0], Operator: Operator(parts[1])}
		if !knownOperators[cond.Operator] {
			return Options{}, fmt.Errorf("%w: %q", ErrUnknownOperator, parts[1])
		}
		if len(parts) == 3 {
			switch cond.Operator {
			case OpIn, OpNotIn, OpBetween:
				cond.Value = listOf(parts[2])
			default:
				cond.Value = parts[2]
			}
		}
		opts.Conditions = append(opts.Conditions, cond)
	}

	for _, raw := range q["sort"] {
		for _, f := range strings.Split(raw, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			key := SortKey{Field: f}
			if strings.HasPrefix(f, "-") {
				key = SortKey{Field: f[1:], Desc: true}
			}
			opts.Sort = append(opts.Sort, key)
		}
	}

	opts.Search = strings.TrimSpace(q.Get("q"))
	if fields := q.Get("search_fields"); fields != "" {
		opts.SearchFields = strings.Split(fields, ",")
	}

	var err error
	if opts.Page, err = intParam(q, "page"); err != nil {
		return Options{}, err
	}
	if opts.PageSize, err = intParam(q, "page_size"); err != nil {
		return Options{}, err
	}
	if opts.PageSize > 500 {
		opts.PageSize = 500
	}
	return opts, nil
}

func intParam(q url.Values, name string) (int, error) {
	s := q.Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidQuery, name)
	}
	return n, nil
}
