package catalog

import (
	"context"
	"regexp"
	"testing"
	"time"

	"storefront-service/internal/apperr"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var productCols = []string{"id", "name", "slug", "description", "price", "category_id", "sizes", "colors",
	"stock", "image_url", "created_at", "updated_at"}

func newMockConf(t *testing.T) (*Conf, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	c, err := NewConf(db)
	require.NoError(t, err)
	return c, mock
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "linen-shirt-white", Slugify("  Linen Shirt (White) "))
	assert.Equal(t, "kurta-2024", Slugify("Kurta--2024!"))
}

func TestInsertProduct(t *testing.T) {
	c, mock := newMockConf(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO products")).
		WithArgs(sqlmock.AnyArg(), "Linen Shirt", "linen-shirt", "", sqlmock.AnyArg(), nil,
			`["S","M"]`, `[]`, 10, "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(productCols).
			AddRow("p1", "Linen Shirt", "linen-shirt", "", "1299.00", nil, []byte(`["S","M"]`), []byte(`[]`), 10, "", now, now))

	p, err := c.InsertProduct(context.Background(), NewProduct{
		Name:  "Linen Shirt",
		Price: decimal.RequireFromString("1299.00"),
		Sizes: []string{"S", "M"},
		Stock: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, []string{"S", "M"}, p.Sizes)
	assert.Equal(t, []string{}, p.Colors)
	assert.Nil(t, p.CategoryID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertProductRejectsPrice(t *testing.T) {
	c, _ := newMockConf(t)

	_, err := c.InsertProduct(context.Background(), NewProduct{Name: "Free", Price: decimal.Zero})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = c.InsertProduct(context.Background(), NewProduct{Name: "Odd", Price: decimal.RequireFromString("1.005")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestGetProductNotFound(t *testing.T) {
	c, mock := newMockConf(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(productCols))

	_, err := c.GetProductByID(context.Background(), "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListProductsFilters(t *testing.T) {
	c, mock := newMockConf(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE (category_id = $1 OR category_id IN (SELECT id FROM categories WHERE parent_id = $1)) AND (name ILIKE $2 OR description ILIKE $2) ORDER BY created_at DESC LIMIT $3 OFFSET $4")).
		WithArgs("c1", "%shirt%", 20, 0).
		WillReturnRows(sqlmock.NewRows(productCols))

	list, err := c.ListProducts(context.Background(), ProductFilter{CategoryID: "c1", Search: "shirt"})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCategorySelfParent(t *testing.T) {
	c, _ := newMockConf(t)
	id := "c1"

	_, err := c.UpdateCategory(context.Background(), id, NewCategory{Name: "Shirts", ParentID: &id})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestDeleteCategoryNotFound(t *testing.T) {
	c, mock := newMockConf(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM categories WHERE id = $1")).
		WithArgs("c9").WillReturnResult(sqlmock.NewResult(0, 0))

	err := c.DeleteCategory(context.Background(), "c9")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
