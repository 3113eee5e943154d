package ir

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSimpleTopK(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("customers.name"), Column("customers.total_spent")},
		FromTable: "customers",
		OrderBy:   []OrderBy{{Column: Column("customers.total_spent"), Direction: Desc}},
		Limit:     IntPtr(5),
	}

	out, err := Compile(q, DialectMySQL)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT `customers`.`name`, `customers`.`total_spent` "+
			"FROM `customers` "+
			"ORDER BY `customers`.`total_spent` DESC "+
			"LIMIT 5",
		out.SQL)
	assert.Empty(t, out.Params)
}

func TestCompileLiteralsBecomePlaceholders(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("customers.name")},
		FromTable: "customers",
		Where: []Predicate{
			{Left: Column("customers.country"), Operator: OpEq, Right: &Expression{Type: ExprLiteral, Value: "Iceland"}},
			{Left: Column("customers.total_spent"), Operator: OpGt, Right: &Expression{Type: ExprLiteral, Value: 100}, Conjunction: "AND"},
		},
	}

	out, err := Compile(q, DialectMySQL)
	require.NoError(t, err)

	assert.Contains(t, out.SQL, "WHERE `customers`.`country` = :p_0 AND `customers`.`total_spent` > :p_1")
	assert.Equal(t, "Iceland", out.Params["p_0"])
	assert.Equal(t, 100, out.Params["p_1"])
	assert.Equal(t, []string{"p_0", "p_1"}, out.Names)

	// Parameter safety: the raw values never appear in the SQL text.
	assert.NotContains(t, out.SQL, "Iceland")
	assert.NotContains(t, out.SQL, "100")
}

func TestCompileCountStar(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("orders.status"), CountStar()},
		FromTable: "orders",
		GroupBy:   []string{"orders.status"},
	}

	out, err := Compile(q, DialectMySQL)
	require.NoError(t, err)

	assert.Contains(t, out.SQL, "COUNT(*)")
	assert.Contains(t, out.SQL, "GROUP BY `orders`.`status`")
}

func TestCompileDistinctAggregate(t *testing.T) {
	q := &Query{
		Select:    []Expression{Aggregate("COUNT", true, Column("orders.customer_id"))},
		FromTable: "orders",
	}

	out, err := Compile(q, DialectMySQL)
	require.NoError(t, err)
	assert.Contains(t, out.SQL, "COUNT(DISTINCT `orders`.`customer_id`)")
}

func TestCompileJoins(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("customers.name"), Column("orders.total_amount")},
		FromTable: "customers",
		Joins: []Join{
			{
				Type:  JoinLeft,
				Table: "orders",
				On: []Predicate{{
					Left:     Column("orders.customer_id"),
					Operator: OpEq,
					Right:    &Expression{Type: ExprColumn, Value: "customers.customer_id"},
				}},
			},
			{Type: JoinCross, Table: "categories"},
		},
	}

	out, err := Compile(q, DialectMySQL)
	require.NoError(t, err)

	assert.Contains(t, out.SQL, "LEFT JOIN `orders` ON `orders`.`customer_id` = `customers`.`customer_id`")
	assert.Contains(t, out.SQL, "CROSS JOIN `categories`")
	assert.NotContains(t, out.SQL, "CROSS JOIN `categories` ON")
}

func TestCompileCTEs(t *testing.T) {
	q := &Query{
		CTEs: []CTE{
			{
				Name: "spenders",
				Query: &Query{
					Select:    []Expression{Column("customers.customer_id")},
					FromTable: "customers",
					Where: []Predicate{{
						Left:     Column("customers.total_spent"),
						Operator: OpGt,
						Right:    &Expression{Type: ExprLiteral, Value: 1000},
					}},
				},
			},
		},
		Select:    []Expression{Column("spenders.customer_id")},
		FromTable: "spenders",
	}

	out, err := Compile(q, DialectMySQL)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out.SQL, "WITH `spenders` AS (SELECT"), out.SQL)
	assert.Equal(t, 1000, out.Params["p_0"])
}

func TestCompileBetweenAndIn(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("orders.order_id")},
		FromTable: "orders",
		Where: []Predicate{
			{
				Left:     Column("orders.total_amount"),
				Operator: OpBetween,
				Right:    &Expression{Type: ExprList, Args: []Expression{Literal(10), Literal(100)}},
			},
			{
				Left:        Column("orders.status"),
				Operator:    OpIn,
				Right:       &Expression{Type: ExprList, Args: []Expression{Literal("shipped"), Literal("pending")}},
				Conjunction: "AND",
			},
		},
	}

	out, err := Compile(q, DialectMySQL)
	require.NoError(t, err)

	assert.Contains(t, out.SQL, "BETWEEN :p_0 AND :p_1")
	assert.Contains(t, out.SQL, "IN (:p_2, :p_3)")
	assert.Equal(t, []string{"p_0", "p_1", "p_2", "p_3"}, out.Names)
}

func TestCompileIsNull(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("customers.name")},
		FromTable: "customers",
		Where: []Predicate{{
			Left:     Column("customers.email"),
			Operator: OpIsNull,
		}},
	}

	out, err := Compile(q, DialectMySQL)
	require.NoError(t, err)
	assert.Contains(t, out.SQL, "WHERE `customers`.`email` IS NULL")
}

func TestCompileOrderByAggregate(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("orders.status"), CountStar()},
		FromTable: "orders",
		GroupBy:   []string{"orders.status"},
		OrderBy:   []OrderBy{{Column: CountStar(), Direction: Desc}},
	}

	out, err := Compile(q, DialectMySQL)
	require.NoError(t, err)

	assert.Contains(t, out.SQL, "ORDER BY COUNT(*) DESC")
	assert.NotContains(t, out.SQL, "`COUNT(*)`")
}

func TestCompileWindow(t *testing.T) {
	q := &Query{
		Select: []Expression{
			Column("orders.order_id"),
			{
				Type:     ExprWindow,
				Function: "ROW_NUMBER",
				Alias:    "rn",
				Window: &WindowSpec{
					PartitionBy: []string{"orders.status"},
					OrderBy:     []OrderBy{{Column: Column("orders.order_date"), Direction: Desc}},
				},
			},
		},
		FromTable: "orders",
	}

	out, err := Compile(q, DialectMySQL)
	require.NoError(t, err)

	assert.Contains(t, out.SQL,
		"ROW_NUMBER() OVER (PARTITION BY `orders`.`status` ORDER BY `orders`.`order_date` DESC) AS `rn`")
}

func TestCompileOffsetAndDistinct(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("customers.country")},
		Distinct:  true,
		FromTable: "customers",
		OrderBy:   []OrderBy{{Column: Column("customers.country"), Direction: Asc}},
		Limit:     IntPtr(10),
		Offset:    IntPtr(20),
	}

	out, err := Compile(q, DialectMySQL)
	require.NoError(t, err)

	assert.Contains(t, out.SQL, "SELECT DISTINCT")
	assert.Contains(t, out.SQL, "LIMIT 10 OFFSET 20")
}

func TestCompileDeterministic(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("customers.name")},
		FromTable: "customers",
		Where: []Predicate{
			{Left: Column("customers.country"), Operator: OpEq, Right: &Expression{Type: ExprLiteral, Value: "DE"}},
		},
		Limit: IntPtr(3),
	}

	a, err := Compile(q, DialectMySQL)
	require.NoError(t, err)

	for range 10 {
		b, err := Compile(q, DialectMySQL)
		require.NoError(t, err)
		assert.Equal(t, a.SQL, b.SQL)
		assert.Equal(t, a.Names, b.Names)
		assert.Equal(t, a.Params, b.Params)
	}
}

func TestCompileDialectQuoting(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("customers.name")},
		FromTable: "customers",
	}

	mysql, err := Compile(q, DialectMySQL)
	require.NoError(t, err)
	assert.Contains(t, mysql.SQL, "`customers`.`name`")

	ansi, err := Compile(q, DialectANSI)
	require.NoError(t, err)
	assert.Contains(t, ansi.SQL, `"customers"."name"`)
}

func TestCompileSubqueryInWhere(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("customers.name")},
		FromTable: "customers",
		Where: []Predicate{{
			Left:     Column("customers.customer_id"),
			Operator: OpIn,
			Right: &Expression{
				Type: ExprSubquery,
				Subquery: &Query{
					Select:    []Expression{Column("orders.customer_id")},
					FromTable: "orders",
					Where: []Predicate{{
						Left:     Column("orders.total_amount"),
						Operator: OpGt,
						Right:    &Expression{Type: ExprLiteral, Value: 500},
					}},
				},
			},
		}},
	}

	out, err := Compile(q, DialectMySQL)
	require.NoError(t, err)

	assert.Contains(t, out.SQL, "IN (SELECT `orders`.`customer_id` FROM `orders` WHERE `orders`.`total_amount` > :p_0)")
	assert.Equal(t, 500, out.Params["p_0"])
}

func TestCompileStarProjections(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("*")},
		FromTable: "customers",
	}

	out, err := Compile(q, DialectMySQL)
	require.NoError(t, err)
	assert.Contains(t, out.SQL, "SELECT *")

	q.Select = []Expression{Column("customers.*")}
	out, err = Compile(q, DialectMySQL)
	require.NoError(t, err)
	assert.Contains(t, out.SQL, "SELECT `customers`.*")
}

func TestCompileRejectsUnknownExpressionType(t *testing.T) {
	q := &Query{
		Select:    []Expression{{Type: "mystery"}},
		FromTable: "customers",
	}

	_, err := Compile(q, DialectMySQL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestCompileParamOrderWithCTE(t *testing.T) {
	// CTE literals bind before main-query literals: encounter order is
	// render order.
	q := &Query{
		CTEs: []CTE{{
			Name: "c",
			Query: &Query{
				Select:    []Expression{Column("orders.order_id")},
				FromTable: "orders",
				Where: []Predicate{{
					Left:     Column("orders.status"),
					Operator: OpEq,
					Right:    &Expression{Type: ExprLiteral, Value: "open"},
				}},
			},
		}},
		Select:    []Expression{Column("c.order_id")},
		FromTable: "c",
		Where: []Predicate{{
			Left:     Column("c.order_id"),
			Operator: OpGt,
			Right:    &Expression{Type: ExprLiteral, Value: 7},
		}},
	}

	out, err := Compile(q, DialectMySQL)
	require.NoError(t, err)

	assert.Equal(t, []string{"p_0", "p_1"}, out.Names)
	assert.Equal(t, "open", out.Params["p_0"])
	assert.Equal(t, 7, out.Params["p_1"])

	for i, name := range out.Names {
		assert.Equal(t, fmt.Sprintf("p_%d", i), name)
	}
}
