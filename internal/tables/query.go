package tables

import (
	"strconv"
	"strings"

	"github.com/HerbHall/tablestore/internal/dialect"
)

// query is the narrow statement builder the repositories share. It only
// knows how to assemble SELECT/INSERT/UPDATE/DELETE statements from typed
// column-name-and-value pairs; raw SQL fragments are limited to the
// dialect's documented relative-time and current-timestamp expressions.
type query struct {
	d      dialect.Dialect
	args   []any
	wheres []string
}

func newQuery(d dialect.Dialect) *query {
	return &query{d: d}
}

// bind appends an argument and returns its placeholder.
func (q *query) bind(v any) string {
	q.args = append(q.args, v)
	return q.d.Placeholder(len(q.args))
}

// where adds a comparison condition against a bound value.
func (q *query) where(col, op string, v any) *query {
	q.wheres = append(q.wheres, col+" "+op+" "+q.bind(v))
	return q
}

// whereNull adds "col IS NULL" or "col IS NOT NULL".
func (q *query) whereNull(col string, isNull bool) *query {
	if isNull {
		q.wheres = append(q.wheres, col+" IS NULL")
	} else {
		q.wheres = append(q.wheres, col+" IS NOT NULL")
	}
	return q
}

// whereExpr adds a pre-rendered condition. Callers only pass dialect
// expressions (AgeExpr comparisons); nothing user-supplied lands here.
func (q *query) whereExpr(expr string) *query {
	q.wheres = append(q.wheres, expr)
	return q
}

func (q *query) whereClause() string {
	if len(q.wheres) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.wheres, " AND ")
}

// selectSQL renders a SELECT over the accumulated conditions.
func (q *query) selectSQL(table string, cols []string, orderBy string, limit, offset int) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(table)
	sb.WriteString(q.whereClause())
	if orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(orderBy)
	}
	if limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(limit))
	}
	if offset > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(offset))
	}
	return sb.String()
}

// countSQL renders a SELECT COUNT(*) over the accumulated conditions.
func (q *query) countSQL(table string) string {
	return "SELECT COUNT(*) FROM " + table + q.whereClause()
}

// deleteSQL renders a DELETE over the accumulated conditions.
func (q *query) deleteSQL(table string) string {
	return "DELETE FROM " + table + q.whereClause()
}

// insert accumulates column/value pairs for insertSQL.
type insert struct {
	q    *query
	cols []string
	phs  []string
}

func (q *query) insert() *insert {
	return &insert{q: q}
}

func (i *insert) set(col string, v any) *insert {
	i.cols = append(i.cols, col)
	i.phs = append(i.phs, i.q.bind(v))
	return i
}

// sql renders the INSERT, optionally with a RETURNING clause. With no pairs
// set it falls back to DEFAULT VALUES, which both dialects accept.
func (i *insert) sql(table, returning string) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	if len(i.cols) == 0 {
		sb.WriteString(" DEFAULT VALUES")
	} else {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(i.cols, ", "))
		sb.WriteString(") VALUES (")
		sb.WriteString(strings.Join(i.phs, ", "))
		sb.WriteString(")")
	}
	if returning != "" {
		sb.WriteString(" RETURNING ")
		sb.WriteString(returning)
	}
	return sb.String()
}

// update accumulates SET pairs for updateSQL. Conditions live on the parent
// query; set order is preserved so placeholders number correctly on Postgres.
type update struct {
	q    *query
	sets []string
}

func (q *query) update() *update {
	return &update{q: q}
}

func (u *update) set(col string, v any) *update {
	u.sets = append(u.sets, col+" = "+u.q.bind(v))
	return u
}

// setExpr assigns a rendered SQL expression: priority shifts
// ("priority = priority + 1") and dialect timestamp expressions.
func (u *update) setExpr(col, expr string) *update {
	u.sets = append(u.sets, col+" = "+expr)
	return u
}

func (u *update) sql(table string) string {
	return "UPDATE " + table + " SET " + strings.Join(u.sets, ", ") + u.q.whereClause()
}
