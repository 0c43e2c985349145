package bulkorders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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

const columns = `id, company_name, contact_name, email, phone, product_type, quantity, description,
	status, priority, admin_notes, estimated_price, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (Request, error) {
	var r Request
	var price decimal.NullDecimal
	err := row.Scan(&r.ID, &r.CompanyName, &r.ContactName, &r.Email, &r.Phone, &r.ProductType, &r.Quantity,
		&r.Description, &r.Status, &r.Priority, &r.AdminNotes, &price, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Request{}, err
	}
	if price.Valid {
		r.EstimatedPrice = &price.Decimal
	}
	return r, nil
}

func (c *Conf) Create(ctx context.Context, n NewRequest) (Request, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO bulk_order_requests (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '', NULL, $11, $11)
		RETURNING ` + columns
	r, err := scanRequest(c.db.QueryRowContext(ctx, query, uuid.NewString(), n.CompanyName, n.ContactName,
		strings.ToLower(n.Email), n.Phone, n.ProductType, n.Quantity, n.Description, StatusReceived, PriorityMedium, now))
	if err != nil {
		return Request{}, fmt.Errorf("failed to insert bulk order request: %w", err)
	}
	return r, nil
}

func (c *Conf) Get(ctx context.Context, id string) (Request, error) {
	query := `SELECT ` + columns + ` FROM bulk_order_requests WHERE id = $1`
	r, err := scanRequest(c.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Request{}, apperr.NotFound("bulk order request %s not found", id)
		}
		return Request{}, fmt.Errorf("failed to query bulk order request: %w", err)
	}
	return r, nil
}

func (c *Conf) List(ctx context.Context, f Filter) ([]Request, error) {
	var where []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Priority != "" {
		args = append(args, f.Priority)
		where = append(where, fmt.Sprintf("priority = $%d", len(args)))
	}
	query := `SELECT ` + columns + ` FROM bulk_order_requests`
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
		return nil, fmt.Errorf("failed to query bulk order requests: %w", err)
	}
	defer rows.Close()

	list := []Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bulk order request: %w", err)
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bulk order requests: %w", err)
	}
	return list, nil
}

// Update applies the supplied fields in one statement and returns the stored request.
// A set ExpectedStatus turns a lost race into InvalidTransition.
func (c *Conf) Update(ctx context.Context, id string, p Patch) (Request, error) {
	if p.Empty() {
		return Request{}, apperr.Validation("nothing to update")
	}
	var set []string
	var args []any
	if p.Status != nil {
		args = append(args, *p.Status)
		set = append(set, fmt.Sprintf("status = $%d", len(args)))
	}
	if p.Priority != nil {
		args = append(args, *p.Priority)
		set = append(set, fmt.Sprintf("priority = $%d", len(args)))
	}
	if p.AdminNotes != nil {
		args = append(args, *p.AdminNotes)
		set = append(set, fmt.Sprintf("admin_notes = $%d", len(args)))
	}
	if p.EstimatedPrice != nil {
		args = append(args, *p.EstimatedPrice)
		set = append(set, fmt.Sprintf("estimated_price = $%d", len(args)))
	}
	args = append(args, id)
	where := fmt.Sprintf("id = $%d", len(args))
	if p.ExpectedStatus != "" {
		args = append(args, p.ExpectedStatus)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query := fmt.Sprintf(`UPDATE bulk_order_requests SET %s, updated_at = NOW() WHERE %s RETURNING %s`,
		strings.Join(set, ", "), where, columns)

	r, err := scanRequest(c.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Request{}, fmt.Errorf("failed to update bulk order request: %w", err)
	}
	if p.ExpectedStatus == "" {
		return Request{}, apperr.NotFound("bulk order request %s not found", id)
	}
	var status Status
	err = c.db.QueryRowContext(ctx, `SELECT status FROM bulk_order_requests WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Request{}, apperr.NotFound("bulk order request %s not found", id)
		}
		return Request{}, fmt.Errorf("failed to query bulk order request: %w", err)
	}
	return Request{}, apperr.InvalidTransition("bulk order request %s changed to %s while updating", id, status)
}

func (c *Conf) Delete(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM bulk_order_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete bulk order request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("bulk order request %s not found", id)
	}
	return nil
}
