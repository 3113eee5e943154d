package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashmay29/NL2SQL/internal/testutil"
)

func kinds(diags []Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Kind
	}

	return out
}

func TestValidateCleanQuery(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("customers.name"), Column("customers.total_spent")},
		FromTable: "customers",
		OrderBy:   []OrderBy{{Column: Column("customers.total_spent"), Direction: Desc}},
		Limit:     IntPtr(5),
	}

	assert.Empty(t, Validate(testutil.ECommerceSchema(), q))
}

func TestValidateUnknownTable(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("ghosts.name")},
		FromTable: "ghosts",
	}

	diags := Validate(testutil.ECommerceSchema(), q)
	assert.Contains(t, kinds(diags), KindUnknownTable)
}

func TestValidateUnknownColumn(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("customers.shoe_size")},
		FromTable: "customers",
	}

	diags := Validate(testutil.ECommerceSchema(), q)
	require.Len(t, diags, 1)
	assert.Equal(t, KindUnknownColumn, diags[0].Kind)
	assert.Equal(t, "$.select[0]", diags[0].Path)
}

func TestValidateAliasResolution(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("c.name")},
		FromTable: "customers",
		FromAlias: "c",
	}

	assert.Empty(t, Validate(testutil.ECommerceSchema(), q))
}

func TestValidateAmbiguousUnqualifiedColumn(t *testing.T) {
	// customer_id exists in both customers and orders.
	q := &Query{
		Select:    []Expression{Column("customer_id")},
		FromTable: "customers",
		Joins: []Join{{
			Type:  JoinInner,
			Table: "orders",
			On: []Predicate{{
				Left:     Column("orders.customer_id"),
				Operator: OpEq,
				Right:    &Expression{Type: ExprColumn, Value: "customers.customer_id"},
			}},
		}},
	}

	diags := Validate(testutil.ECommerceSchema(), q)
	assert.Contains(t, kinds(diags), KindAmbiguousColumn)
}

func TestValidateGroupByMissing(t *testing.T) {
	q := &Query{
		Select: []Expression{
			Column("orders.status"),
			CountStar(),
		},
		FromTable: "orders",
	}

	diags := Validate(testutil.ECommerceSchema(), q)
	require.NotEmpty(t, diags)
	assert.Contains(t, kinds(diags), KindGroupByMissing)
}

func TestValidateGroupBySatisfied(t *testing.T) {
	q := &Query{
		Select: []Expression{
			Column("orders.status"),
			CountStar(),
		},
		FromTable: "orders",
		GroupBy:   []string{"orders.status"},
	}

	assert.Empty(t, Validate(testutil.ECommerceSchema(), q))
}

func TestValidateStarWithAggregateRejected(t *testing.T) {
	q := &Query{
		Select: []Expression{
			Column("orders.*"),
			CountStar(),
		},
		FromTable: "orders",
		GroupBy:   []string{"orders.status"},
	}

	diags := Validate(testutil.ECommerceSchema(), q)
	assert.Contains(t, kinds(diags), KindGroupByMissing)
}

func TestValidateOrderByAggregateMustBeSelected(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("orders.status"), CountStar()},
		FromTable: "orders",
		GroupBy:   []string{"orders.status"},
		OrderBy: []OrderBy{{
			Column:    Aggregate("SUM", false, Column("orders.total_amount")),
			Direction: Desc,
		}},
	}

	diags := Validate(testutil.ECommerceSchema(), q)
	assert.Contains(t, kinds(diags), KindOrderByInvalid)
}

func TestValidateOrderByAggregateSelected(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("orders.status"), CountStar()},
		FromTable: "orders",
		GroupBy:   []string{"orders.status"},
		OrderBy:   []OrderBy{{Column: CountStar(), Direction: Desc}},
	}

	assert.Empty(t, Validate(testutil.ECommerceSchema(), q))
}

func TestValidateOrderByAliasAndPositional(t *testing.T) {
	q := &Query{
		Select: []Expression{
			{Type: ExprColumn, Value: "customers.name", Alias: "customer"},
		},
		FromTable: "customers",
		OrderBy: []OrderBy{
			{Column: Column("customer"), Direction: Asc},
			{Column: Column("1"), Direction: Desc},
		},
	}

	assert.Empty(t, Validate(testutil.ECommerceSchema(), q))
}

func TestValidateOrderByUnselectedColumn(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("customers.name")},
		FromTable: "customers",
		OrderBy:   []OrderBy{{Column: Column("customers.total_spent"), Direction: Desc}},
	}

	diags := Validate(testutil.ECommerceSchema(), q)
	assert.Contains(t, kinds(diags), KindOrderByInvalid)
}

func TestValidatePredicateArity(t *testing.T) {
	schema := testutil.ECommerceSchema()

	isNullWithRight := &Query{
		Select:    []Expression{Column("customers.name")},
		FromTable: "customers",
		Where: []Predicate{{
			Left:     Column("customers.email"),
			Operator: OpIsNull,
			Right:    &Expression{Type: ExprLiteral, Value: 1},
		}},
	}
	assert.Contains(t, kinds(Validate(schema, isNullWithRight)), KindPredicateArity)

	betweenOneBound := &Query{
		Select:    []Expression{Column("customers.name")},
		FromTable: "customers",
		Where: []Predicate{{
			Left:     Column("customers.total_spent"),
			Operator: OpBetween,
			Right:    &Expression{Type: ExprList, Args: []Expression{Literal(10)}},
		}},
	}
	assert.Contains(t, kinds(Validate(schema, betweenOneBound)), KindPredicateArity)

	inWithScalar := &Query{
		Select:    []Expression{Column("customers.name")},
		FromTable: "customers",
		Where: []Predicate{{
			Left:     Column("customers.country"),
			Operator: OpIn,
			Right:    &Expression{Type: ExprLiteral, Value: "US"},
		}},
	}
	assert.Contains(t, kinds(Validate(schema, inWithScalar)), KindPredicateArity)

	missingRight := &Query{
		Select:    []Expression{Column("customers.name")},
		FromTable: "customers",
		Where: []Predicate{{
			Left:     Column("customers.country"),
			Operator: OpEq,
		}},
	}
	assert.Contains(t, kinds(Validate(schema, missingRight)), KindPredicateArity)
}

func TestValidateWindowInWhereRejected(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("orders.order_id")},
		FromTable: "orders",
		Where: []Predicate{{
			Left: Expression{
				Type:     ExprWindow,
				Function: "ROW_NUMBER",
				Window:   &WindowSpec{PartitionBy: []string{"orders.status"}},
			},
			Operator: OpLe,
			Right:    &Expression{Type: ExprLiteral, Value: 3},
		}},
	}

	diags := Validate(testutil.ECommerceSchema(), q)
	assert.Contains(t, kinds(diags), KindWindowMisplaced)
}

func TestValidateWindowInSelectAllowed(t *testing.T) {
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

	assert.Empty(t, Validate(testutil.ECommerceSchema(), q))
}

func TestValidateCTE(t *testing.T) {
	schema := testutil.ECommerceSchema()

	valid := &Query{
		CTEs: []CTE{{
			Name: "big_orders",
			Query: &Query{
				Select:    []Expression{Column("orders.order_id"), Column("orders.total_amount")},
				FromTable: "orders",
			},
		}},
		Select:    []Expression{Column("big_orders.order_id")},
		FromTable: "big_orders",
	}
	assert.Empty(t, Validate(schema, valid))

	duplicate := &Query{
		CTEs: []CTE{
			{Name: "x", Query: &Query{Select: []Expression{Column("orders.order_id")}, FromTable: "orders"}},
			{Name: "x", Query: &Query{Select: []Expression{Column("orders.order_id")}, FromTable: "orders"}},
		},
		Select:    []Expression{Column("x.order_id")},
		FromTable: "x",
	}
	assert.Contains(t, kinds(Validate(schema, duplicate)), KindCTEInvalid)

	selfReferential := &Query{
		CTEs: []CTE{{
			Name:  "loop",
			Query: &Query{Select: []Expression{Column("loop.a")}, FromTable: "loop"},
		}},
		Select:    []Expression{Column("loop.a")},
		FromTable: "loop",
	}
	assert.Contains(t, kinds(Validate(schema, selfReferential)), KindUnknownTable)

	forwardReference := &Query{
		CTEs: []CTE{
			{Name: "a", Query: &Query{Select: []Expression{Column("b.x")}, FromTable: "b"}},
			{Name: "b", Query: &Query{Select: []Expression{Column("orders.order_id")}, FromTable: "orders"}},
		},
		Select:    []Expression{Column("a.x")},
		FromTable: "a",
	}
	assert.Contains(t, kinds(Validate(schema, forwardReference)), KindUnknownTable)

	backwardReference := &Query{
		CTEs: []CTE{
			{Name: "a", Query: &Query{Select: []Expression{Column("orders.order_id")}, FromTable: "orders"}},
			{Name: "b", Query: &Query{Select: []Expression{Column("a.order_id")}, FromTable: "a"}},
		},
		Select:    []Expression{Column("b.order_id")},
		FromTable: "b",
	}
	assert.Empty(t, Validate(schema, backwardReference))
}

func TestValidateNegativeBounds(t *testing.T) {
	q := &Query{
		Select:    []Expression{Column("customers.name")},
		FromTable: "customers",
		Limit:     IntPtr(-1),
		Offset:    IntPtr(-2),
	}

	diags := Validate(testutil.ECommerceSchema(), q)
	require.Len(t, diags, 2)
	assert.Equal(t, KindNegativeBound, diags[0].Kind)
	assert.Equal(t, KindNegativeBound, diags[1].Kind)
}

func TestValidateEmptySelect(t *testing.T) {
	q := &Query{FromTable: "customers"}

	diags := Validate(testutil.ECommerceSchema(), q)
	assert.Contains(t, kinds(diags), KindEmptySelect)
}

func TestValidateSoundness(t *testing.T) {
	// Any query that passes validation resolves all of its column refs and
	// keeps ORDER BY aggregates inside SELECT; spot-check with a join query.
	q := &Query{
		Select: []Expression{
			Column("departments.name"),
			{
				Type:     ExprAggregate,
				Function: "AVG",
				Args: []Expression{{
					Type:     ExprFunction,
					Function: "DATEDIFF",
					Args: []Expression{
						Column("admissions.discharge_date"),
						Column("admissions.admission_date"),
					},
				}},
			},
		},
		FromTable: "admissions",
		Joins: []Join{{
			Type:  JoinInner,
			Table: "departments",
			On: []Predicate{{
				Left:     Column("admissions.department_id"),
				Operator: OpEq,
				Right:    &Expression{Type: ExprColumn, Value: "departments.id"},
			}},
		}},
		GroupBy: []string{"departments.name"},
	}

	assert.Empty(t, Validate(testutil.HospitalSchema(), q))
}
