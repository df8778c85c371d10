// Package fixtures provides a small commerce schema shared by resolver tests.
package fixtures

import (
	"time"

	"nlq-resolver/internal/models"
)

// CommerceMetadata returns a fresh snapshot with customers, orders, products
// and order_items. Each call returns a new value so tests may not leak state.
func CommerceMetadata() *models.SemanticMetadata {
	return &models.SemanticMetadata{
		GeneratedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Tables: []models.TableMetadata{
			{
				Name:         "customers",
				BusinessTags: []string{"crm", "party"},
				Confidence:   0.95,
				Columns: []models.ColumnMetadata{
					{Name: "customer_id", DataType: "integer", IsPrimaryKey: true},
					{Name: "name", DataType: "varchar"},
					{Name: "email", DataType: "varchar", Nullable: true},
					{Name: "city", DataType: "varchar", Nullable: true},
					{Name: "status", DataType: "varchar"},
					{Name: "created_at", DataType: "timestamp"},
				},
			},
			{
				Name:         "orders",
				BusinessTags: []string{"sales", "transaction"},
				Confidence:   0.9,
				Columns: []models.ColumnMetadata{
					{Name: "order_id", DataType: "integer", IsPrimaryKey: true},
					{Name: "customer_id", DataType: "integer", IsForeignKey: true},
					{Name: "order_date", DataType: "date"},
					{Name: "total_amount", DataType: "numeric(10,2)"},
					{Name: "status", DataType: "varchar"},
				},
			},
			{
				Name:       "products",
				Confidence: 0.85,
				Columns: []models.ColumnMetadata{
					{Name: "product_id", DataType: "integer", IsPrimaryKey: true},
					{Name: "name", DataType: "varchar"},
					{Name: "price", DataType: "numeric(10,2)"},
					{Name: "category", DataType: "varchar"},
				},
			},
			{
				Name:       "order_items",
				Confidence: 0.8,
				Columns: []models.ColumnMetadata{
					{Name: "order_item_id", DataType: "integer", IsPrimaryKey: true},
					{Name: "order_id", DataType: "integer"},
					{Name: "product_id", DataType: "integer"},
					{Name: "quantity", DataType: "integer"},
				},
			},
		},
		Relationships: []models.Relationship{
			{FromTable: "orders", FromColumn: "customer_id", ToTable: "customers", ToColumn: "customer_id", Type: "many_to_one"},
			{FromTable: "order_items", FromColumn: "product_id", ToTable: "products", ToColumn: "product_id", Type: "many_to_one"},
		},
		Indexes: []models.IndexMetadata{
			{Name: "idx_orders_customer_id", Table: "orders", Columns: []string{"customer_id"}},
		},
	}
}

// CustomersOnly returns a snapshot with a single customers table.
func CustomersOnly() *models.SemanticMetadata {
	md := CommerceMetadata()
	md.Tables = md.Tables[:1]
	md.Relationships = nil
	md.Indexes = nil
	return md
}
