// Package testutil provides shared schema fixtures for tests.
package testutil

import "github.com/ashmay29/NL2SQL/internal/types"

// ECommerceSchema returns the reference e-commerce schema used across
// pipeline tests: customers, categories, products, orders, order_items.
func ECommerceSchema() *types.Schema {
	s := &types.Schema{
		Database: "ecommerce",
		Tables: map[string]types.Table{
			"customers": {
				Columns: []types.Column{
					{Name: "customer_id", Type: "int", PrimaryKey: true},
					{Name: "name", Type: "varchar(255)", Nullable: true},
					{Name: "email", Type: "varchar(255)", Nullable: true},
					{Name: "join_date", Type: "date", Nullable: true},
					{Name: "country", Type: "varchar(64)", Nullable: true},
					{Name: "total_spent", Type: "decimal(10,2)", Nullable: true},
				},
			},
			"categories": {
				Columns: []types.Column{
					{Name: "category_id", Type: "int", PrimaryKey: true},
					{Name: "category_name", Type: "varchar(255)", Nullable: true},
					{Name: "description", Type: "text", Nullable: true},
				},
			},
			"products": {
				Columns: []types.Column{
					{Name: "product_id", Type: "int", PrimaryKey: true},
					{Name: "product_name", Type: "varchar(255)", Nullable: true},
					{Name: "category_id", Type: "int", Nullable: true},
					{Name: "price", Type: "decimal(10,2)", Nullable: true},
					{Name: "stock_quantity", Type: "int", Nullable: true},
				},
				ForeignKeys: []types.ForeignKey{
					{ConstrainedColumns: []string{"category_id"}, ReferredTable: "categories", ReferredColumns: []string{"category_id"}},
				},
			},
			"orders": {
				Columns: []types.Column{
					{Name: "order_id", Type: "int", PrimaryKey: true},
					{Name: "customer_id", Type: "int", Nullable: true},
					{Name: "order_date", Type: "datetime", Nullable: true},
					{Name: "status", Type: "varchar(32)", Nullable: true},
					{Name: "total_amount", Type: "decimal(10,2)", Nullable: true},
				},
				ForeignKeys: []types.ForeignKey{
					{ConstrainedColumns: []string{"customer_id"}, ReferredTable: "customers", ReferredColumns: []string{"customer_id"}},
				},
			},
			"order_items": {
				Columns: []types.Column{
					{Name: "order_item_id", Type: "int", PrimaryKey: true},
					{Name: "order_id", Type: "int", Nullable: true},
					{Name: "product_id", Type: "int", Nullable: true},
					{Name: "quantity", Type: "int", Nullable: true},
					{Name: "unit_price", Type: "decimal(10,2)", Nullable: true},
				},
				ForeignKeys: []types.ForeignKey{
					{ConstrainedColumns: []string{"order_id"}, ReferredTable: "orders", ReferredColumns: []string{"order_id"}},
					{ConstrainedColumns: []string{"product_id"}, ReferredTable: "products", ReferredColumns: []string{"product_id"}},
				},
			},
		},
		TableOrder: []string{"customers", "categories", "products", "orders", "order_items"},
		Relationships: []types.Relationship{
			{FromTable: "products", FromColumns: []string{"category_id"}, ToTable: "categories", ToColumns: []string{"category_id"}},
			{FromTable: "orders", FromColumns: []string{"customer_id"}, ToTable: "customers", ToColumns: []string{"customer_id"}},
			{FromTable: "order_items", FromColumns: []string{"order_id"}, ToTable: "orders", ToColumns: []string{"order_id"}},
			{FromTable: "order_items", FromColumns: []string{"product_id"}, ToTable: "products", ToColumns: []string{"product_id"}},
		},
	}

	return s.Stamp()
}

// HospitalSchema returns the admissions/departments schema used by the
// aggregation-across-a-join scenarios.
func HospitalSchema() *types.Schema {
	s := &types.Schema{
		Database: "hospital",
		Tables: map[string]types.Table{
			"admissions": {
				Columns: []types.Column{
					{Name: "admission_id", Type: "int", PrimaryKey: true},
					{Name: "patient_name", Type: "varchar(255)", Nullable: true},
					{Name: "admission_date", Type: "datetime", Nullable: true},
					{Name: "discharge_date", Type: "datetime", Nullable: true},
					{Name: "department_id", Type: "int", Nullable: true},
				},
				ForeignKeys: []types.ForeignKey{
					{ConstrainedColumns: []string{"department_id"}, ReferredTable: "departments", ReferredColumns: []string{"id"}},
				},
			},
			"departments": {
				Columns: []types.Column{
					{Name: "id", Type: "int", PrimaryKey: true},
					{Name: "name", Type: "varchar(255)", Nullable: true},
				},
			},
		},
		TableOrder: []string{"admissions", "departments"},
		Relationships: []types.Relationship{
			{FromTable: "admissions", FromColumns: []string{"department_id"}, ToTable: "departments", ToColumns: []string{"id"}},
		},
	}

	return s.Stamp()
}
