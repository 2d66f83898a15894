package filtering

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	name     string
	priority int
	due      *time.Time
	tags     []string
	done     bool
}

func (i item) FieldValue(f string) (any, bool) {
	switch f {
	case "name":
		return i.name, true
	case "priority":
		return i.priority, true
	case "due":
		if i.due == nil {
			return nil, true
		}
		return *i.due, true
	case "tags":
		return i.tags, true
	case "done":
		return i.done, true
	}
	return nil, false
}

func day(d int) *time.Time {
	t := time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func fixture() []item {
	return []item{
		{name: "Write RFC", priority: 3, due: day(10), tags: []string{"docs", "Backend"}},
		{name: "fix login", priority: 5, due: day(2), tags: []string{"bug"}, done: true},
		{name: "Design review", priority: 1, tags: nil},
		{name: "deploy", priority: 3, due: day(5), tags: []string{"ops"}},
	}
}

func names(items []item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.name
	}
	return out
}

func TestOperators(t *testing.T) {
	cases := []struct {
		cond Condition
		want []string
	}{
		{Condition{"name", OpEq, "DEPLOY"}, []string{"deploy"}},
		{Condition{"name", OpNeq, "deploy"}, []string{"Write RFC", "fix login", "Design review"}},
		{Condition{"name", OpContains, "RE"}, []string{"Design review"}},
		{Condition{"name", OpNotContains, "e"}, []string{"fix login"}},
		{Condition{"name", OpStartsWith, "de"}, []string{"Design review", "deploy"}},
		{Condition{"name", OpEndsWith, "LOGIN"}, []string{"fix login"}},
		{Condition{"priority", OpGt, 3}, []string{"fix login"}},
		{Condition{"priority", OpGte, "3"}, []string{"Write RFC", "fix login", "deploy"}},
		{Condition{"priority", OpLt, 3.0}, []string{"Design review"}},
		{Condition{"priority", OpLte, 1}, []string{"Design review"}},
		{Condition{"priority", OpBetween, []any{2, 4}}, []string{"Write RFC", "deploy"}},
		{Condition{"priority", OpIn, []any{1, 5}}, []string{"fix login", "Design review"}},
		{Condition{"priority", OpNotIn, []int{1, 5}}, []string{"Write RFC", "deploy"}},
		{Condition{"due", OpIsEmpty, nil}, []string{"Design review"}},
		{Condition{"tags", OpIsNotEmpty, nil}, []string{"Write RFC", "fix login", "deploy"}},
		{Condition{"due", OpBefore, "2026-03-05"}, []string{"fix login"}},
		{Condition{"due", OpAfter, *day(4)}, []string{"Write RFC", "deploy"}},
		{Condition{"tags", OpContains, "backend"}, []string{"Write RFC"}},
		{Condition{"tags", OpIn, []string{"ops", "bug"}}, []string{"fix login", "deploy"}},
		{Condition{"tags", OpEq, "docs"}, []string{"Write RFC"}},
		{Condition{"done", OpEq, "true"}, []string{"fix login"}},
		{Condition{"missing", OpEq, "x"}, []string{}},
		{Condition{"name", OpGt, 3}, []string{}},
		// 类型不可比较时否定条件同样不匹配
		{Condition{"priority", OpNeq, "not-a-number"}, []string{}},
		{Condition{"priority", OpNotIn, []string{"x", "y"}}, []string{}},
		{Condition{"priority", OpNotContains, "abc"}, []string{}},
		{Condition{"name", OpNotContains, 7}, []string{}},
		{Condition{"tags", OpNotContains, "ops"}, []string{"Write RFC", "fix login", "Design review"}},
		{Condition{"due", OpNeq, "2026-03-05"}, []string{"Write RFC", "fix login", "Design review"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.cond.Operator)+"_"+tc.cond.Field, func(t *testing.T) {
			got, err := Filter(fixture(), []Condition{tc.cond})
			require.NoError(t, err)
			assert.Equal(t, tc.want, names(got))
		})
	}
}

func TestConjunction(t *testing.T) {
	got, err := Filter(fixture(), []Condition{
		{Field: "priority", Operator: OpEq, Value: 3},
		{Field: "tags", Operator: OpContains, Value: "ops"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"deploy"}, names(got))
}

func TestUnknownOperator(t *testing.T) {
	_, err := Compile([]Condition{{Field: "name", Operator: "like"}})
	assert.True(t, errors.Is(err, ErrUnknownOperator))

	_, err = FilterAndSort(fixture(), Options{Conditions: []Condition{{Field: "name", Operator: "regex"}}})
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestSortMultiKeyNilsLast(t *testing.T) {
	asc := Sort(fixture(), []SortKey{{Field: "due"}})
	assert.Equal(t, []string{"fix login", "deploy", "Write RFC", "Design review"}, names(asc))

	desc := Sort(fixture(), []SortKey{{Field: "due", Desc: true}})
	assert.Equal(t, []string{"Write RFC", "deploy", "fix login", "Design review"}, names(desc))

	multi := Sort(fixture(), []SortKey{{Field: "priority", Desc: true}, {Field: "name"}})
	assert.Equal(t, []string{"fix login", "deploy", "Write RFC", "Design review"}, names(multi))
}

func TestSortIsStable(t *testing.T) {
	got := Sort(fixture(), []SortKey{{Field: "priority"}})
	assert.Equal(t, []string{"Design review", "Write RFC", "deploy", "fix login"}, names(got))
}

func TestDoesNotMutateInput(t *testing.T) {
	in := fixture()
	before := names(in)
	_, err := FilterAndSort(in, Options{
		Conditions: []Condition{{Field: "priority", Operator: OpGte, Value: 1}},
		Sort:       []SortKey{{Field: "name", Desc: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, before, names(in))
}

func TestFilterAndSortWithSearchAndPaging(t *testing.T) {
	opts := Options{
		Search:       "de",
		SearchFields: []string{"name"},
		Sort:         []SortKey{{Field: "name"}},
		Page:         1,
		PageSize:     1,
	}
	got, err := FilterAndSort(fixture(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"deploy"}, names(got))

	page, err := Apply(fixture(), Options{Search: "de", SearchFields: []string{"name"}, Page: 2, PageSize: 1, Sort: opts.Sort})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, []string{"Design review"}, names(page.Items))
}

func TestGroupBy(t *testing.T) {
	g := GroupBy(fixture(), "priority")
	assert.Equal(t, []string{"3", "5", "1"}, g.Keys)
	assert.Len(t, g.Items["3"], 2)

	byTag := GroupBy(fixture(), "tags")
	assert.Equal(t, []string{"docs", "Backend", "bug", "", "ops"}, byTag.Keys)
}

func TestPaginateBounds(t *testing.T) {
	p := Paginate([]int{1, 2, 3}, 5, 2)
	assert.Empty(t, p.Items)
	assert.Equal(t, 3, p.Total)

	all := Paginate([]int{1, 2, 3}, 0, 0)
	assert.Equal(t, []int{1, 2, 3}, all.Items)
}

func TestParseQuery(t *testing.T) {
	q := url.Values{}
	q.Add("filter", "status:in:todo,review")
	q.Add("filter", "due_date:after:2026-01-01T10:00:00Z")
	q.Add("filter", "assignee_id:is_empty")
	q.Set("sort", "-priority_rank,title")
	q.Set("q", " login ")
	q.Set("page", "2")
	q.Set("page_size", "25")

	opts, err := ParseQuery(q)
	require.NoError(t, err)
	require.Len(t, opts.Conditions, 3)
	assert.Equal(t, Condition{Field: "status", Operator: OpIn, Value: []any{"todo", "review"}}, opts.Conditions[0])
	assert.Equal(t, "2026-01-01T10:00:00Z", opts.Conditions[1].Value)
	assert.Nil(t, opts.Conditions[2].Value)
	assert.Equal(t, []SortKey{{Field: "priority_rank", Desc: true}, {Field: "title"}}, opts.Sort)
	assert.Equal(t, "login", opts.Search)
	assert.Equal(t, 2, opts.Page)
	assert.Equal(t, 25, opts.PageSize)

	_, err = ParseQuery(url.Values{"filter": {"status:like:x"}})
	assert.ErrorIs(t, err, ErrUnknownOperator)
	_, err = ParseQuery(url.Values{"filter": {"status"}})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = ParseQuery(url.Values{"page": {"-1"}})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}
