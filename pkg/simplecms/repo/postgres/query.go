package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// listQuery translates a simplecms.Query into SQL. Field names are always
// bound as parameters.
type listQuery struct {
	q        simplecms.Query
	args     []interface{}
	argIndex int
}

func newListQuery(q simplecms.Query) *listQuery {
	return &listQuery{q: q, argIndex: 1}
}

func (b *listQuery) bind(v interface{}) string {
	b.args = append(b.args, v)
	p := fmt.Sprintf("$%d", b.argIndex)
	b.argIndex++
	return p
}

func (b *listQuery) where() (string, error) {
	clauses := []string{"resource = " + b.bind(b.q.Resource)}

	if b.q.Search != "" && len(b.q.SearchFields) > 0 {
		pattern := b.bind("%" + simplecms.EscapeLike(b.q.Search) + "%")
		var ors []string
		for _, f := range b.q.SearchFields {
			ors = append(ors, fmt.Sprintf(`fields->>(%s::text) ILIKE %s ESCAPE '\'`, b.bind(f), pattern))
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}

	for _, f := range b.q.Equals {
		value, err := json.Marshal(f.Value)
		if err != nil {
			return "", fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		clauses = append(clauses, fmt.Sprintf("fields->(%s::text) = %s::text::jsonb", b.bind(f.Field), b.bind(string(value))))
	}

	for _, f := range b.q.AtLeast {
		clauses = append(clauses, fmt.Sprintf(`fields->>(%s::text) >= %s::text COLLATE "C"`, b.bind(f.Field), b.bind(fmt.Sprint(f.Value))))
	}

	return " WHERE " + strings.Join(clauses, " AND "), nil
}

func (b *listQuery) orderBy() string {
	dir := "ASC"
	if b.q.Desc {
		dir = "DESC"
	}
	var key string
	switch b.q.SortBy {
	case simplecms.SortCreatedAt, simplecms.SortUpdatedAt:
		key = b.q.SortBy
	default:
		key = fmt.Sprintf(`COALESCE(fields->>(%s::text), '') COLLATE "C"`, b.bind(b.q.SortBy))
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", key, dir, dir)
}

func (b *listQuery) pagination() string {
	return fmt.Sprintf(" LIMIT %s OFFSET %s", b.bind(b.q.PageSize), b.bind(b.q.Offset()))
}

// countSQL returns the COUNT(*) statement and its arguments.
func (b *listQuery) countSQL() (string, []interface{}, error) {
	where, err := b.where()
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM cms_record" + where, b.args, nil
}

// selectSQL returns the page statement and its arguments.
func (b *listQuery) selectSQL() (string, []interface{}, error) {
	where, err := b.where()
	if err != nil {
		return "", nil, err
	}
	sql := "SELECT " + recordColumns + " FROM cms_record" + where + b.orderBy() + b.pagination()
	return sql, b.args, nil
}
