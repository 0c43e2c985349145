package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"storefront-service/internal/apperr"

	"github.com/google/uuid"
)

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

const productColumns = `id, name, slug, description, price, category_id, sizes, colors, stock, image_url, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	var categoryID sql.NullString
	var sizes, colors []byte
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &categoryID, &sizes, &colors,
		&p.Stock, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	if categoryID.Valid {
		p.CategoryID = &categoryID.String
	}
	if err := unmarshalList(sizes, &p.Sizes); err != nil {
		return Product{}, fmt.Errorf("decoding sizes: %w", err)
	}
	if err := unmarshalList(colors, &p.Colors); err != nil {
		return Product{}, fmt.Errorf("decoding colors: %w", err)
	}
	return p, nil
}

func unmarshalList(b []byte, dst *[]string) error {
	*dst = []string{}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

func marshalList(l []string) string {
	if l == nil {
		l = []string{}
	}
	b, _ := json.Marshal(l)
	return string(b)
}

func validateProduct(np NewProduct) error {
	if !np.Price.IsPositive() {
		return apperr.Validation("price must be greater than zero")
	}
	if np.Price.Exponent() < -2 {
		return apperr.Validation("price cannot have more than two decimal places")
	}
	return nil
}

func (c *Conf) InsertProduct(ctx context.Context, np NewProduct) (Product, error) {
	if err := validateProduct(np); err != nil {
		return Product{}, err
	}
	slug := np.Slug
	if slug == "" {
		slug = Slugify(np.Name)
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING ` + productColumns
	p, err := scanProduct(c.db.QueryRowContext(ctx, query, uuid.NewString(), np.Name, slug, np.Description, np.Price,
		np.CategoryID, marshalList(np.Sizes), marshalList(np.Colors), np.Stock, np.ImageURL, now))
	if err != nil {
		return Product{}, fmt.Errorf("failed to insert product: %w", err)
	}
	return p, nil
}

func (c *Conf) GetProductByID(ctx context.Context, id string) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(c.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, apperr.NotFound("product %s not found", id)
		}
		return Product{}, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

func (c *Conf) UpdateProduct(ctx context.Context, id string, np NewProduct) (Product, error) {
	if err := validateProduct(np); err != nil {
		return Product{}, err
	}
	slug := np.Slug
	if slug == "" {
		slug = Slugify(np.Name)
	}
	query := `
		UPDATE products
		SET name = $1, slug = $2, description = $3, price = $4, category_id = $5, sizes = $6, colors = $7,
			stock = $8, image_url = $9, updated_at = NOW()
		WHERE id = $10
		RETURNING ` + productColumns
	p, err := scanProduct(c.db.QueryRowContext(ctx, query, np.Name, slug, np.Description, np.Price, np.CategoryID,
		marshalList(np.Sizes), marshalList(np.Colors), np.Stock, np.ImageURL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, apperr.NotFound("product %s not found", id)
		}
		return Product{}, fmt.Errorf("failed to update product: %w", err)
	}
	return p, nil
}

// DeleteProduct removes a product. Past orders keep their own name and price snapshot.
func (c *Conf) DeleteProduct(ctx context.Context, id string) error {
	return c.deleteByID(ctx, `DELETE FROM products WHERE id = $1`, "product", id)
}

func (c *Conf) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	var where []string
	var args []any
	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		// Selecting a category also lists products of its subcategories.
		where = append(where, fmt.Sprintf(
			"(category_id = $%d OR category_id IN (SELECT id FROM categories WHERE parent_id = $%d))", len(args), len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	args = append(args, limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	list := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return list, nil
}

func (c *Conf) ListCategories(ctx context.Context) ([]Category, error) {
	query := `SELECT id, name, slug, parent_id, created_at FROM categories ORDER BY parent_id NULLS FIRST, name`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	list := []Category{}
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		list = append(list, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return list, nil
}

func scanCategory(row interface{ Scan(...any) error }) (Category, error) {
	var cat Category
	var parentID sql.NullString
	if err := row.Scan(&cat.ID, &cat.Name, &cat.Slug, &parentID, &cat.CreatedAt); err != nil {
		return Category{}, err
	}
	if parentID.Valid {
		cat.ParentID = &parentID.String
	}
	return cat, nil
}

func (c *Conf) InsertCategory(ctx context.Context, nc NewCategory) (Category, error) {
	slug := nc.Slug
	if slug == "" {
		slug = Slugify(nc.Name)
	}
	query := `
		INSERT INTO categories (id, name, slug, parent_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, name, slug, parent_id, created_at
	`
	cat, err := scanCategory(c.db.QueryRowContext(ctx, query, uuid.NewString(), nc.Name, slug, nc.ParentID))
	if err != nil {
		return Category{}, fmt.Errorf("failed to insert category: %w", err)
	}
	return cat, nil
}

func (c *Conf) UpdateCategory(ctx context.Context, id string, nc NewCategory) (Category, error) {
	if nc.ParentID != nil && *nc.ParentID == id {
		return Category{}, apperr.Validation("a category cannot be its own parent")
	}
	slug := nc.Slug
	if slug == "" {
		slug = Slugify(nc.Name)
	}
	query := `
		UPDATE categories SET name = $1, slug = $2, parent_id = $3
		WHERE id = $4
		RETURNING id, name, slug, parent_id, created_at
	`
	cat, err := scanCategory(c.db.QueryRowContext(ctx, query, nc.Name, slug, nc.ParentID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Category{}, apperr.NotFound("category %s not found", id)
		}
		return Category{}, fmt.Errorf("failed to update category: %w", err)
	}
	return cat, nil
}

// DeleteCategory removes a category and its subcategories; products keep existing with no category.
func (c *Conf) DeleteCategory(ctx context.Context, id string) error {
	return c.deleteByID(ctx, `DELETE FROM categories WHERE id = $1`, "category", id)
}

func (c *Conf) deleteByID(ctx context.Context, query, entity, id string) error {
	res, err := c.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("%s %s not found", entity, id)
	}
	return nil
}
