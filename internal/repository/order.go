package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sogshop/storefront/internal/models"
	"github.com/sogshop/storefront/internal/repository/postgres"
)

const pgErrUniqueViolationCode = "23505"

const (
	insertAddressQuery = `
						INSERT INTO addresses (id, user_id, full_name, line1, line2, city, region, country, postal_code, phone)
						VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
						RETURNING created_at
`
	insertOrderQuery = `
						INSERT INTO orders (id, number, user_id, email, phone, status, payment_status, payment_method,
						                    subtotal, shipping_cost, discount_amount, total_amount,
						                    stripe_session_id, paystack_reference, mobile_money_txn_id,
						                    idempotency_key, promo_code, shipping_address_id)
						VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
						RETURNING created_at, updated_at
`
	insertOrderItemQuery = `
						INSERT INTO order_items (id, order_id, position, product_id, name, image, unit_price, quantity, size, color)
						VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	selectOrderColumns = `
						SELECT id, number, user_id, email, phone, status, payment_status, payment_method,
						       subtotal, shipping_cost, discount_amount, total_amount,
						       stripe_session_id, paystack_reference, mobile_money_txn_id, provider_txn_id,
						       idempotency_key, webhook_processed, promo_code, shipping_address_id,
						       created_at, updated_at, paid_at
						FROM orders
`
	selectOrderItemsQuery = `
						SELECT id, order_id, product_id, name, image, unit_price, quantity, size, color
						FROM order_items
						WHERE order_id = $1
						ORDER BY position
`
	selectAddressQuery = `
						SELECT id, user_id, full_name, line1, line2, city, region, country, postal_code, phone, created_at
						FROM addresses
						WHERE id = $1
`
	updateOrderStatusQuery = `
						UPDATE orders
						SET status = $1, updated_at = now()
						WHERE id = $2
`
	setStripeSessionQuery = `
						UPDATE orders
						SET stripe_session_id = $1, updated_at = now()
						WHERE id = $2 AND stripe_session_id IS NULL
`
	markPaymentCompletedQuery = `
						UPDATE orders
						SET payment_status = 'COMPLETED', status = 'PROCESSING', webhook_processed = true,
						    provider_txn_id = COALESCE($1, provider_txn_id), paid_at = now(), updated_at = now()
						WHERE id = $2 AND payment_status <> 'COMPLETED'
`
	markPaymentFailedQuery = `
						UPDATE orders
						SET payment_status = 'FAILED', status = 'CANCELLED', webhook_processed = true, updated_at = now()
						WHERE id = $1 AND payment_status NOT IN ('COMPLETED', 'REFUNDED')
`
	deleteOrderQuery = `
						DELETE FROM orders WHERE id = $1
`
	selectPendingPaymentQuery = selectOrderColumns + `
						WHERE payment_status IN ('PENDING', 'PROCESSING') AND created_at < $1
						ORDER BY created_at
`
)

// OrderRepository implements order persistence over postgres
type OrderRepository struct {
	db *postgres.DB
}

// NewOrderRepository creates new OrderRepository instance
func NewOrderRepository(db *postgres.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateOrder inserts the shipping address, the order and its items in a
// single transaction. An order row never exists without its address.
func (or *OrderRepository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	tx, err := or.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	addr := order.Address
	if addr.ID == uuid.Nil {
		addr.ID = uuid.New()
	}
	err = tx.QueryRow(ctx, insertAddressQuery,
		addr.ID, addr.UserID, addr.FullName, addr.Line1, addr.Line2,
		addr.City, addr.Region, addr.Country, addr.PostalCode, addr.Phone,
	).Scan(&addr.CreatedAt)
	if err != nil {
		return nil, err
	}
	order.ShippingAddressID = addr.ID

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	err = tx.QueryRow(ctx, insertOrderQuery,
		order.ID, order.Number, order.UserID, order.Email, order.Phone,
		order.Status, order.PaymentStatus, order.PaymentMethod,
		order.Subtotal, order.ShippingCost, order.DiscountAmount, order.TotalAmount,
		order.StripeSessionID, order.PaystackReference, order.MobileMoneyTxnID,
		order.IdempotencyKey, order.PromoCode, order.ShippingAddressID,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errCode := or.db.ErrorCode(err); errCode == pgErrUniqueViolationCode {
			return nil, models.ErrConflictData
		}
		return nil, err
	}

	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrderID = order.ID
		_, err = tx.Exec(ctx, insertOrderItemQuery,
			item.ID, item.OrderID, i, item.ProductID, item.Name, item.Image,
			item.UnitPrice, item.Quantity, item.Size, item.Color)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrderByID returns an order with its items and shipping address
func (or *OrderRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := or.getOrder(ctx, selectOrderColumns+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}

	if err := or.loadItems(ctx, order); err != nil {
		return nil, err
	}
	if err := or.loadAddress(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrderByIdempotencyKey returns the order created by a previous submission
// of the same checkout attempt, if any
func (or *OrderRepository) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	return or.getOrder(ctx, selectOrderColumns+" WHERE idempotency_key = $1", key)
}

// GetOrderByStripeSession returns the order correlated to a Stripe checkout session
func (or *OrderRepository) GetOrderByStripeSession(ctx context.Context, sessionID string) (*models.Order, error) {
	return or.getOrder(ctx, selectOrderColumns+" WHERE stripe_session_id = $1", sessionID)
}

// GetOrderByPaystackReference returns the order correlated to a Paystack reference
func (or *OrderRepository) GetOrderByPaystackReference(ctx context.Context, reference string) (*models.Order, error) {
	return or.getOrder(ctx, selectOrderColumns+" WHERE paystack_reference = $1", reference)
}

// GetOrderByMobileMoneyTxn returns the order correlated to a mobile money transaction
func (or *OrderRepository) GetOrderByMobileMoneyTxn(ctx context.Context, txnID string) (*models.Order, error) {
	return or.getOrder(ctx, selectOrderColumns+" WHERE mobile_money_txn_id = $1", txnID)
}

// GetOrdersByUserID returns order headers belonging to a user, newest first
func (or *OrderRepository) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	return or.getOrders(ctx, selectOrderColumns+" WHERE user_id = $1 ORDER BY created_at DESC", userID)
}

// GetPendingPaymentOrders returns orders awaiting payment settlement created
// before the given cutoff
func (or *OrderRepository) GetPendingPaymentOrders(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	return or.getOrders(ctx, selectPendingPaymentQuery, cutoff)
}

// UpdateOrderStatus updates the fulfillment status
func (or *OrderRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) error {
	cmd, err := or.db.Exec(ctx, updateOrderStatusQuery, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrDataNotFound
	}
	return nil
}

// SetStripeSession attaches the provider session id once. A second attempt is
// rejected so correlation ids stay immutable.
func (or *OrderRepository) SetStripeSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	cmd, err := or.db.Exec(ctx, setStripeSessionQuery, sessionID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrConflictData
	}
	return nil
}

// MarkPaymentCompleted performs the PENDING -> COMPLETED transition. The
// conditional update makes webhook replays a no-op: a second call returns
// ErrAlreadyProcessed and changes nothing.
func (or *OrderRepository) MarkPaymentCompleted(ctx context.Context, id uuid.UUID, providerTxnID *string) error {
	cmd, err := or.db.Exec(ctx, markPaymentCompletedQuery, providerTxnID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrAlreadyProcessed
	}
	return nil
}

// MarkPaymentFailed records a terminal payment failure. A COMPLETED order is
// never regressed, even if a late "failed" notification arrives.
func (or *OrderRepository) MarkPaymentFailed(ctx context.Context, id uuid.UUID) error {
	cmd, err := or.db.Exec(ctx, markPaymentFailedQuery, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrAlreadyProcessed
	}
	return nil
}

// DeleteOrder removes an order and its items. Compensating action for a failed
// payment initialization, not part of the normal lifecycle.
func (or *OrderRepository) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	cmd, err := or.db.Exec(ctx, deleteOrderQuery, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrDataNotFound
	}
	return nil
}

func (or *OrderRepository) getOrder(ctx context.Context, query string, arg any) (*models.Order, error) {
	order := models.Order{}
	err := or.db.QueryRow(ctx, query, arg).Scan(
		&order.ID, &order.Number, &order.UserID, &order.Email, &order.Phone,
		&order.Status, &order.PaymentStatus, &order.PaymentMethod,
		&order.Subtotal, &order.ShippingCost, &order.DiscountAmount, &order.TotalAmount,
		&order.StripeSessionID, &order.PaystackReference, &order.MobileMoneyTxnID, &order.ProviderTxnID,
		&order.IdempotencyKey, &order.WebhookProcessed, &order.PromoCode, &order.ShippingAddressID,
		&order.CreatedAt, &order.UpdatedAt, &order.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDataNotFound
		}
		return nil, err
	}

	return &order, nil
}

func (or *OrderRepository) getOrders(ctx context.Context, query string, arg any) ([]models.Order, error) {
	rows, err := or.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []models.Order{}

	for rows.Next() {
		order := models.Order{}
		err = rows.Scan(
			&order.ID, &order.Number, &order.UserID, &order.Email, &order.Phone,
			&order.Status, &order.PaymentStatus, &order.PaymentMethod,
			&order.Subtotal, &order.ShippingCost, &order.DiscountAmount, &order.TotalAmount,
			&order.StripeSessionID, &order.PaystackReference, &order.MobileMoneyTxnID, &order.ProviderTxnID,
			&order.IdempotencyKey, &order.WebhookProcessed, &order.PromoCode, &order.ShippingAddressID,
			&order.CreatedAt, &order.UpdatedAt, &order.PaidAt,
		)
		if err != nil {
			continue
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

func (or *OrderRepository) loadItems(ctx context.Context, order *models.Order) error {
	rows, err := or.db.Query(ctx, selectOrderItemsQuery, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		item := models.OrderItem{}
		err = rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.Image,
			&item.UnitPrice, &item.Quantity, &item.Size, &item.Color)
		if err != nil {
			continue
		}
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}

func (or *OrderRepository) loadAddress(ctx context.Context, order *models.Order) error {
	addr := models.Address{}
	err := or.db.QueryRow(ctx, selectAddressQuery, order.ShippingAddressID).Scan(
		&addr.ID, &addr.UserID, &addr.FullName, &addr.Line1, &addr.Line2,
		&addr.City, &addr.Region, &addr.Country, &addr.PostalCode, &addr.Phone, &addr.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrDataNotFound
		}
		return err
	}

	order.Address = &addr
	return nil
}
