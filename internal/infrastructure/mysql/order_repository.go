package mysql

import (
	"context"
	"database/sql"
	"time"

	"auction-engine/internal/domain"
)

type MySQLOrderRepository struct {
	db *sql.DB
}

func NewMySQLOrderRepository(db *sql.DB) *MySQLOrderRepository {
	return &MySQLOrderRepository{db: db}
}

// CreateOrder writes the order row and its line items in one
// transaction, so an order is never visible without its items or its
// (possibly placeholder) payment-session slot.
func (r *MySQLOrderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	return WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO orders (id, buyer_id, total_amount, session_id, payment_url,
                session_expires_at, payment_status, gateway_status, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        `, order.ID, order.BuyerID, order.TotalAmount,
			order.Session.SessionID, order.Session.PaymentURL, nullTime(order.Session.ExpiresAt),
			string(order.PaymentStatus), string(order.GatewayStatus), order.CreatedAt)
		if err != nil {
			return err
		}

		for _, item := range order.Items {
			_, err := tx.ExecContext(ctx, `
                INSERT INTO order_items (order_id, auction_id, seller_id, title, quantity, unit_price)
                VALUES (?, ?, ?, ?, ?, ?)
            `, order.ID, item.AuctionID, item.SellerID, item.Title, item.Quantity, item.UnitPrice)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *MySQLOrderRepository) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	query := orderSelect + ` WHERE id = ?`
	return r.queryOrder(ctx, query, orderID)
}

func (r *MySQLOrderRepository) GetOrderByAuction(ctx context.Context, auctionID string) (*domain.Order, error) {
	query := orderSelect + `
        WHERE id IN (SELECT order_id FROM order_items WHERE auction_id = ?)
    `
	return r.queryOrder(ctx, query, auctionID)
}

func (r *MySQLOrderRepository) GetOrderBySession(ctx context.Context, sessionID string) (*domain.Order, error) {
	query := orderSelect + ` WHERE session_id = ?`
	return r.queryOrder(ctx, query, sessionID)
}

func (r *MySQLOrderRepository) UpdateSession(ctx context.Context, orderID string, session domain.PaymentSession, status domain.GatewayStatus) error {
	query := `
        UPDATE orders
        SET session_id = ?, payment_url = ?, session_expires_at = ?, gateway_status = ?
        WHERE id = ?
    `
	_, err := r.db.ExecContext(ctx, query,
		session.SessionID, session.PaymentURL, nullTime(session.ExpiresAt), string(status), orderID)
	return err
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// MarkPaymentOutcome transitions only from pending; the affected-row
// count tells the reconciler whether this delivery was the first.
func (r *MySQLOrderRepository) MarkPaymentOutcome(ctx context.Context, orderID string, status domain.PaymentStatus, paidAt time.Time) (bool, error) {
	var paid sql.NullTime
	if !paidAt.IsZero() {
		paid = sql.NullTime{Time: paidAt, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
        UPDATE orders SET payment_status = ?, paid_at = ?
        WHERE id = ? AND payment_status = ?
    `, string(status), paid, orderID, string(domain.PaymentPending))
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FindGatewayErrors returns pending orders whose checkout session never
// fully landed. Matching on "not created" rather than "error" also
// catches orders stranded in provisional when the flag write itself
// failed.
func (r *MySQLOrderRepository) FindGatewayErrors(ctx context.Context) ([]*domain.Order, error) {
	query := orderSelect + ` WHERE gateway_status <> ? AND payment_status = ?`

	rows, err := r.db.QueryContext(ctx, query,
		string(domain.GatewayCreated), string(domain.PaymentPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := r.scanOrder(ctx, rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

const orderSelect = `
        SELECT id, buyer_id, total_amount, session_id, payment_url,
               session_expires_at, payment_status, gateway_status, created_at, paid_at
        FROM orders`

func (r *MySQLOrderRepository) queryOrder(ctx context.Context, query string, args ...interface{}) (*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, domain.ErrOrderNotFound
	}

	return r.scanOrder(ctx, rows)
}

func (r *MySQLOrderRepository) scanOrder(ctx context.Context, row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var paymentStatus, gatewayStatus string
	var expiresAt, paidAt sql.NullTime

	err := row.Scan(&order.ID, &order.BuyerID, &order.TotalAmount,
		&order.Session.SessionID, &order.Session.PaymentURL, &expiresAt,
		&paymentStatus, &gatewayStatus, &order.CreatedAt, &paidAt)
	if err != nil {
		return nil, err
	}

	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	order.GatewayStatus = domain.GatewayStatus(gatewayStatus)
	if expiresAt.Valid {
		order.Session.ExpiresAt = expiresAt.Time
	}
	if paidAt.Valid {
		order.PaidAt = paidAt.Time
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return &order, nil
}

func (r *MySQLOrderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT auction_id, seller_id, title, quantity, unit_price
        FROM order_items WHERE order_id = ?
    `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		err := rows.Scan(&item.AuctionID, &item.SellerID, &item.Title, &item.Quantity, &item.UnitPrice)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}
