package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

type Conf struct {
	db      *sql.DB
	pricing Pricing
}

func NewConf(db *sql.DB, pricing Pricing) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db, pricing: pricing}, nil
}

const orderColumns = `id, order_number, user_id,
	ship_name, ship_email, ship_phone, ship_line1, ship_line2, ship_city, ship_state, ship_postal_code, ship_country,
	subtotal, shipping, tax, total, currency, status, payment_status, payment_method,
	gateway_order_id, gateway_payment_id, tracking_number, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	var userID sql.NullString
	a := &o.ShippingAddress
	err := row.Scan(&o.ID, &o.OrderNumber, &userID,
		&a.Name, &a.Email, &a.Phone, &a.Line1, &a.Line2, &a.City, &a.State, &a.PostalCode, &a.Country,
		&o.Subtotal, &o.Shipping, &o.Tax, &o.Total, &o.Currency, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&o.GatewayOrderID, &o.GatewayPaymentID, &o.TrackingNumber, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if userID.Valid {
		o.UserID = &userID.String
	}
	return o, nil
}

// NewOrderNumber returns a human readable order number like ORD-20240131-4F2A9C.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// PlaceOrder snapshots product names and prices, reserves stock, and stores the order with its
// items in one transaction. Totals are computed here once and never recomputed.
func (c *Conf) PlaceOrder(ctx context.Context, n NewOrder) (Order, error) {
	if len(n.Items) == 0 {
		return Order{}, apperr.Validation("order must contain at least one item")
	}
	if !n.PaymentMethod.Valid() {
		return Order{}, apperr.Validation("payment method %q is not supported", n.PaymentMethod)
	}

	now := time.Now().UTC()
	o := Order{
		ID:               uuid.NewString(),
		OrderNumber:      NewOrderNumber(now),
		UserID:           n.UserID,
		ShippingAddress:  n.ShippingAddress,
		Currency:         strings.ToUpper(n.Currency),
		Status:           n.Status,
		PaymentStatus:    n.PaymentStatus,
		PaymentMethod:    n.PaymentMethod,
		GatewayOrderID:   n.GatewayOrderID,
		GatewayPaymentID: n.GatewayPaymentID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := c.withTx(ctx, func(tx *sql.Tx) error {
		subtotal := decimal.Zero
		for _, item := range n.Items {
			if item.Quantity <= 0 {
				return apperr.Validation("quantity for product %s must be positive", item.ProductID)
			}
			// Reserve stock and read the current name and price in the same statement.
			reserveStock := `
				UPDATE products
				SET stock = stock - $1, updated_at = NOW()
				WHERE id = $2 AND stock >= $1
				RETURNING name, price
			`
			var snap OrderItem
			err := tx.QueryRowContext(ctx, reserveStock, item.Quantity, item.ProductID).Scan(&snap.ProductName, &snap.UnitPrice)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return apperr.Validation("product %s is unavailable or out of stock", item.ProductID)
				}
				return fmt.Errorf("failed to reserve stock: %w", err)
			}
			snap.OrderID = o.ID
			snap.ProductID = item.ProductID
			snap.Quantity = item.Quantity
			snap.Size = item.Size
			snap.Color = item.Color
			subtotal = subtotal.Add(snap.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
			o.Items = append(o.Items, snap)
		}

		o.Subtotal = subtotal
		o.Shipping, o.Tax, o.Total = c.pricing.Totals(subtotal)
		if n.PaidAmount != nil && !n.PaidAmount.Equal(o.Total) {
			return apperr.Validation("paid amount %s does not match order total %s",
				n.PaidAmount.StringFixed(2), o.Total.StringFixed(2))
		}

		insertOrder := `
			INSERT INTO orders (` + orderColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
				$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
		`
		a := o.ShippingAddress
		_, err := tx.ExecContext(ctx, insertOrder, o.ID, o.OrderNumber, o.UserID,
			a.Name, a.Email, a.Phone, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country,
			o.Subtotal, o.Shipping, o.Tax, o.Total, o.Currency, o.Status, o.PaymentStatus, o.PaymentMethod,
			o.GatewayOrderID, o.GatewayPaymentID, o.TrackingNumber, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err, "idx_orders_gateway_payment_id") {
				return apperr.Conflict("payment %s is already attached to an order", o.GatewayPaymentID)
			}
			return fmt.Errorf("failed to insert order: %w", err)
		}

		insertItem := `
			INSERT INTO order_items (order_id, product_id, product_name, unit_price, quantity, size, color)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`
		for i := range o.Items {
			it := &o.Items[i]
			err := tx.QueryRowContext(ctx, insertItem, it.OrderID, it.ProductID, it.ProductName, it.UnitPrice,
				it.Quantity, it.Size, it.Color).Scan(&it.ID)
			if err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (c *Conf) GetOrder(ctx context.Context, id string) (Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	o, err := scanOrder(c.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, apperr.NotFound("order %s not found", id)
		}
		return Order{}, fmt.Errorf("failed to query order: %w", err)
	}
	if o.Items, err = c.items(ctx, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

// GetOrderByNumber backs guest order tracking; the email must match the shipping snapshot.
func (c *Conf) GetOrderByNumber(ctx context.Context, orderNumber, email string) (Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1 AND LOWER(ship_email) = LOWER($2)`
	o, err := scanOrder(c.db.QueryRowContext(ctx, query, orderNumber, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, apperr.NotFound("order %s not found", orderNumber)
		}
		return Order{}, fmt.Errorf("failed to query order: %w", err)
	}
	if o.Items, err = c.items(ctx, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (c *Conf) items(ctx context.Context, orderID string) ([]OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, product_name, unit_price, quantity, size, color
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`
	rows, err := c.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.UnitPrice,
			&it.Quantity, &it.Size, &it.Color); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}
	return items, nil
}

func (c *Conf) ListOrders(ctx context.Context, f Filter) ([]Order, error) {
	var where []string
	var args []any
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.PaymentStatus != "" {
		args = append(args, f.PaymentStatus)
		where = append(where, fmt.Sprintf("payment_status = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limitOrDefault(f.Limit), f.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	list := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return list, nil
}

// UpdateStatus writes only the fields present in p plus updated_at, in a single statement.
// With expected values set the row is only touched while it still holds them; otherwise the
// caller gets InvalidTransition and must re-read.
func (c *Conf) UpdateStatus(ctx context.Context, id string, p Patch) (Order, error) {
	if p.Empty() {
		return Order{}, apperr.Validation("nothing to update")
	}

	var set []string
	var args []any
	if p.Status != nil {
		args = append(args, *p.Status)
		set = append(set, fmt.Sprintf("status = $%d", len(args)))
	}
	if p.PaymentStatus != nil {
		args = append(args, *p.PaymentStatus)
		set = append(set, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if p.TrackingNumber != nil {
		args = append(args, *p.TrackingNumber)
		set = append(set, fmt.Sprintf("tracking_number = $%d", len(args)))
	}
	args = append(args, id)
	where := fmt.Sprintf("id = $%d", len(args))
	if p.ExpectedStatus != "" {
		args = append(args, p.ExpectedStatus)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if p.ExpectedPayment != "" {
		args = append(args, p.ExpectedPayment)
		where += fmt.Sprintf(" AND payment_status = $%d", len(args))
	}

	query := fmt.Sprintf(`UPDATE orders SET %s, updated_at = NOW() WHERE %s RETURNING %s`,
		strings.Join(set, ", "), where, orderColumns)

	o, err := scanOrder(c.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Order{}, fmt.Errorf("failed to update order: %w", err)
	}
	if p.ExpectedStatus == "" && p.ExpectedPayment == "" {
		return Order{}, apperr.NotFound("order %s not found", id)
	}

	var status Status
	var payment PaymentStatus
	err = c.db.QueryRowContext(ctx, `SELECT status, payment_status FROM orders WHERE id = $1`, id).Scan(&status, &payment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, apperr.NotFound("order %s not found", id)
		}
		return Order{}, fmt.Errorf("failed to query order: %w", err)
	}
	return Order{}, apperr.InvalidTransition("order %s changed to %s/%s while updating", id, status, payment)
}

// DeleteOrder removes the order; its items go with it through ON DELETE CASCADE.
func (c *Conf) DeleteOrder(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("order %s not found", id)
	}
	return nil
}

func (c *Conf) ListCustomers(ctx context.Context, limit, offset int) ([]Customer, error) {
	query := `
		SELECT ship_email, MAX(ship_name), MAX(user_id), COUNT(*),
			COALESCE(SUM(total) FILTER (WHERE status <> 'cancelled'), 0), MAX(created_at)
		FROM orders
		GROUP BY ship_email
		ORDER BY MAX(created_at) DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := c.db.QueryContext(ctx, query, limitOrDefault(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	list := []Customer{}
	for rows.Next() {
		var cu Customer
		var userID sql.NullString
		if err := rows.Scan(&cu.Email, &cu.Name, &userID, &cu.OrderCount, &cu.TotalSpent, &cu.LastOrderAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		if userID.Valid {
			cu.UserID = &userID.String
		}
		list = append(list, cu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customers: %w", err)
	}
	return list, nil
}

func (c *Conf) ListPayments(ctx context.Context, status PaymentStatus, limit, offset int) ([]Payment, error) {
	query := `
		SELECT id, order_number, ship_name, ship_email, total, currency, payment_method, payment_status,
			gateway_order_id, gateway_payment_id, created_at
		FROM orders
		WHERE ($1 = '' OR payment_status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := c.db.QueryContext(ctx, query, string(status), limitOrDefault(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	list := []Payment{}
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.OrderID, &p.OrderNumber, &p.CustomerName, &p.CustomerEmail, &p.Amount, &p.Currency,
			&p.PaymentMethod, &p.PaymentStatus, &p.GatewayOrderID, &p.GatewayPaymentID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return list, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}

func (c *Conf) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if er := tx.Rollback(); er != nil && !errors.Is(er, sql.ErrTxDone) {
			return fmt.Errorf("failed to rollback withTx: %w", er)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit withTx: %w", err)
	}
	return nil
}
