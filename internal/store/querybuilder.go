/**
 * @description
 * This file builds the SQL predicate and ordering for the operation listing
 * endpoint from caller-supplied (field, value, op) triples and
 * (sort_by, sort_order) pairs. Every operator in the closed set has a typed
 * renderer that validates its input and emits parameterized SQL; user values
 * never reach the query text, so the dynamic filter cannot inject SQL.
 *
 * Filter fields and sort fields are restricted to the operations-table
 * columns. The owner_balance_id scoping applied by the caller is always the
 * first predicate and cannot be widened by a filter.
 */

package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/serchip/wallet-service/internal/domain"
	"github.com/shopspring/decimal"
)

type columnKind int

const (
	kindBigint columnKind = iota
	kindNumeric
	kindTimestamp
	kindOperationType
)

// operationColumn describes one filterable/sortable column of the
// operations table. ranged marks range-typed columns, the only ones the
// contain/overlap operator family applies to; the current schema has none.
type operationColumn struct {
	kind   columnKind
	ranged bool
}

var operationColumns = map[string]operationColumn{
	"id":               {kind: kindBigint},
	"created":          {kind: kindTimestamp},
	"operation_type":   {kind: kindOperationType},
	"amount":           {kind: kindNumeric},
	"owner_balance_id": {kind: kindBigint},
	"more_balance_id":  {kind: kindBigint},
}

// cast returns the SQL cast appended to a text placeholder so Postgres
// compares the bound value with the column's native type.
func (k columnKind) cast() string {
	switch k {
	case kindNumeric:
		return "::numeric"
	case kindTimestamp:
		return "::timestamptz"
	case kindOperationType:
		return "::operation_type"
	default:
		return ""
	}
}

func (k columnKind) arrayCast() string {
	switch k {
	case kindNumeric:
		return "::numeric[]"
	case kindTimestamp:
		return "::timestamptz[]"
	case kindOperationType:
		return "::operation_type[]"
	default:
		return ""
	}
}

// listQueryBuilder accumulates bound arguments while rendering conditions.
type listQueryBuilder struct {
	args []any
}

func (b *listQueryBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// filterRenderer validates one filter's value and renders its SQL condition.
type filterRenderer func(b *listQueryBuilder, field string, col operationColumn, value string) (string, error)

// filterOperators is the closed operator set of the listing DSL. Keys are
// case-sensitive, matching the query-string contract.
var filterOperators = map[string]filterRenderer{
	"=":           comparisonRenderer("="),
	">":           comparisonRenderer(">"),
	">=":          comparisonRenderer(">="),
	"<":           comparisonRenderer("<"),
	"<=":          comparisonRenderer("<="),
	"<>":          comparisonRenderer("<>"),
	"!=":          comparisonRenderer("!="),
	"in":          membershipRenderer("= ANY"),
	"not in":      membershipRenderer("!= ALL"),
	"between":     renderBetween,
	"contain":     rangeContainRenderer(false),
	"not contain": rangeContainRenderer(true),
	"overlap":     rangeOverlapRenderer(false),
	"not overlap": rangeOverlapRenderer(true),
	"like":        renderLike,
}

// buildFilterCondition turns one (field, value, op) triple into a SQL
// condition with bound arguments. An empty op defaults to equality.
func buildFilterCondition(b *listQueryBuilder, f domain.OperationFilter) (string, error) {
	col, ok := operationColumns[f.Field]
	if !ok {
		return "", &ValidationError{Field: f.Field, Message: fmt.Sprintf("unknown filter field: %s", f.Field)}
	}
	op := f.Op
	if op == "" {
		op = "="
	}
	render, ok := filterOperators[op]
	if !ok {
		return "", &ValidationError{Field: f.Field, Message: fmt.Sprintf("unsupported filter operator %q for field: %s", op, f.Field)}
	}
	return render(b, f.Field, col, f.Value)
}

func comparisonRenderer(op string) filterRenderer {
	return func(b *listQueryBuilder, field string, col operationColumn, value string) (string, error) {
		arg, err := col.scalarArg(field, value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("o.%s %s %s%s", field, op, b.bind(arg), col.kind.cast()), nil
	}
}

func membershipRenderer(op string) filterRenderer {
	return func(b *listQueryBuilder, field string, col operationColumn, value string) (string, error) {
		arg, err := col.arrayArg(field, splitMultiValue(value))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("o.%s %s(%s%s)", field, op, b.bind(arg), col.kind.arrayCast()), nil
	}
}

func renderBetween(b *listQueryBuilder, field string, col operationColumn, value string) (string, error) {
	parts := splitMultiValue(value)
	if len(parts) != 2 {
		return "", &ValidationError{Field: field, Message: fmt.Sprintf("between requires exactly 2 values for field: %s", field)}
	}
	lo, err := col.scalarArg(field, parts[0])
	if err != nil {
		return "", err
	}
	hi, err := col.scalarArg(field, parts[1])
	if err != nil {
		return "", err
	}
	cast := col.kind.cast()
	return fmt.Sprintf("o.%s BETWEEN %s%s AND %s%s", field, b.bind(lo), cast, b.bind(hi), cast), nil
}

func renderLike(b *listQueryBuilder, field string, col operationColumn, value string) (string, error) {
	return fmt.Sprintf("o.%s::text LIKE %s", field, b.bind(value)), nil
}

func rangeContainRenderer(negate bool) filterRenderer {
	return func(b *listQueryBuilder, field string, col operationColumn, value string) (string, error) {
		if !col.ranged {
			return "", &ValidationError{Field: field, Message: fmt.Sprintf("range operator requires a range-typed field: %s", field)}
		}
		expr, err := renderRangeExpr(b, field, value)
		if err != nil {
			return "", err
		}
		cond := fmt.Sprintf("o.%s @> %s", field, expr)
		if negate {
			cond = "NOT (" + cond + ")"
		}
		return cond, nil
	}
}

func rangeOverlapRenderer(negate bool) filterRenderer {
	return func(b *listQueryBuilder, field string, col operationColumn, value string) (string, error) {
		if !col.ranged {
			return "", &ValidationError{Field: field, Message: fmt.Sprintf("range operator requires a range-typed field: %s", field)}
		}
		expr, err := renderRangeExpr(b, field, value)
		if err != nil {
			return "", err
		}
		cond := fmt.Sprintf("o.%s && %s", field, expr)
		if negate {
			cond = "NOT (" + cond + ")"
		}
		return cond, nil
	}
}

var rangeCtorPattern = regexp.MustCompile(`^(int4range|int8range|numrange|tsrange|tstzrange|daterange)\((.+)\)$`)
var rangeBoundsPattern = regexp.MustCompile(`^'?[\[\(][\]\)]'?$`)

// renderRangeExpr re-renders a caller-supplied range-constructor expression,
// e.g. int8range(10,20) or tsrange(a,b,'[)'), with the bounds bound as
// parameters. Only the known range constructors are accepted.
func renderRangeExpr(b *listQueryBuilder, field, value string) (string, error) {
	m := rangeCtorPattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return "", &ValidationError{Field: field, Message: fmt.Sprintf("range function is required in the value compared against the field: %s", field)}
	}
	ctor := m[1]
	parts := strings.Split(m[2], ",")
	if len(parts) < 2 || len(parts) > 3 {
		return "", &ValidationError{Field: field, Message: fmt.Sprintf("range function must take 2 or 3 arguments for field: %s", field)}
	}
	lo := b.bind(strings.TrimSpace(parts[0]))
	hi := b.bind(strings.TrimSpace(parts[1]))
	if len(parts) == 3 {
		bounds := strings.TrimSpace(parts[2])
		if !rangeBoundsPattern.MatchString(bounds) {
			return "", &ValidationError{Field: field, Message: fmt.Sprintf("invalid range bounds specification for field: %s", field)}
		}
		return fmt.Sprintf("%s(%s, %s, %s)", ctor, lo, hi, b.bind(strings.Trim(bounds, "'"))), nil
	}
	return fmt.Sprintf("%s(%s, %s)", ctor, lo, hi), nil
}

// scalarArg validates one scalar value against the column type and returns
// the typed bind argument.
func (c operationColumn) scalarArg(field, value string) (any, error) {
	switch c.kind {
	case kindBigint:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil, &ValidationError{Field: field, Message: fmt.Sprintf("integer value is required for field: %s", field)}
		}
		return n, nil
	case kindNumeric:
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, &ValidationError{Field: field, Message: fmt.Sprintf("numeric value is required for field: %s", field)}
		}
		return d.String(), nil
	case kindOperationType:
		v := strings.ToUpper(strings.TrimSpace(value))
		if v != string(domain.OperationDebit) && v != string(domain.OperationCredit) {
			return nil, &ValidationError{Field: field, Message: fmt.Sprintf("operation_type must be DEBIT or CREDIT for field: %s", field)}
		}
		return v, nil
	default:
		// Timestamps go to Postgres as text; its timestamptz parser accepts
		// far more formats than we could reasonably validate here.
		return strings.TrimSpace(value), nil
	}
}

func (c operationColumn) arrayArg(field string, values []string) (any, error) {
	if c.kind == kindBigint {
		out := make([]int64, 0, len(values))
		for _, v := range values {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, &ValidationError{Field: field, Message: fmt.Sprintf("integer values are required for field: %s", field)}
			}
			out = append(out, n)
		}
		return out, nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		arg, err := c.scalarArg(field, v)
		if err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprint(arg))
	}
	return out, nil
}

// splitMultiValue splits a multi-value filter value on pipes, falling back
// to commas, mirroring the query-string contract for set membership.
func splitMultiValue(value string) []string {
	sep := ","
	if strings.Contains(value, "|") {
		sep = "|"
	}
	parts := strings.Split(value, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// buildOrderBy validates the sort pairs and renders the ORDER BY clause.
// Without sort pairs, operations come back in insertion (id) order.
func buildOrderBy(sorts []domain.OperationSort) (string, error) {
	if len(sorts) == 0 {
		return "ORDER BY o.id", nil
	}
	clauses := make([]string, 0, len(sorts))
	for _, s := range sorts {
		if _, ok := operationColumns[s.Field]; !ok {
			return "", &ValidationError{Field: s.Field, Message: fmt.Sprintf("unknown sort field: %s", s.Field)}
		}
		dir := strings.ToUpper(s.Direction)
		if dir != "ASC" && dir != "DESC" {
			return "", &ValidationError{Field: "sort_order", Message: fmt.Sprintf("sort_order value should consist of ASC or DESC but he %s", s.Direction)}
		}
		clauses = append(clauses, fmt.Sprintf("o.%s %s", s.Field, dir))
	}
	return "ORDER BY " + strings.Join(clauses, ", "), nil
}

// buildListQuery assembles the paginated listing query and its companion
// count query. Both share the WHERE clause and its arguments; the count
// query ignores ordering and pagination.
func buildListQuery(balanceID int64, q domain.OperationQuery) (listSQL, countSQL string, listArgs, countArgs []any, err error) {
	b := &listQueryBuilder{}
	conditions := []string{fmt.Sprintf("o.owner_balance_id = %s", b.bind(balanceID))}
	for _, f := range q.Filters {
		cond, err := buildFilterCondition(b, f)
		if err != nil {
			return "", "", nil, nil, err
		}
		conditions = append(conditions, cond)
	}
	where := strings.Join(conditions, " AND ")

	orderBy, err := buildOrderBy(q.Sorts)
	if err != nil {
		return "", "", nil, nil, err
	}

	countSQL = "SELECT count(o.id) FROM operations o WHERE " + where
	countArgs = append(countArgs, b.args...)

	listSQL = fmt.Sprintf(
		"SELECT o.id, o.created, o.operation_type, o.amount::text, o.owner_balance_id, o.more_balance_id FROM operations o WHERE %s %s LIMIT %s OFFSET %s",
		where, orderBy, b.bind(q.Limit), b.bind(q.Offset),
	)
	listArgs = b.args
	return listSQL, countSQL, listArgs, countArgs, nil
}
