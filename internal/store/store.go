package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store is the read-only persistence contract the automation engine
// consumes. The schema is owned by the commerce platform; this layer only
// queries it.
type Store struct {
	db *sql.DB
}

// New creates a store over an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// UserOrders is one active user together with their order history,
// newest order first.
type UserOrders struct {
	UserID      string
	Email       string
	LastLoginAt sql.NullTime
	Orders      []Order
}

// Order is a single completed order.
type Order struct {
	Total    float64
	PlacedAt time.Time
}

// CartItem is one line item sitting in a user's current cart.
type CartItem struct {
	UserID      string
	ProductID   string
	ProductName string
	Price       float64
	Quantity    int
	UpdatedAt   time.Time
}

// Product is a catalog entry used by seasonal and stock scans.
type Product struct {
	ID     string
	Name   string
	Season string
	Stock  int
	Price  float64
}

// ActiveUsersWithOrders returns all active, verified users with their full
// order history. Users without orders are still returned (empty Orders) so
// the inactivity scan can see them.
func (s *Store) ActiveUsersWithOrders(ctx context.Context) ([]UserOrders, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.last_login_at, o.total, o.placed_at
		FROM users u
		LEFT JOIN orders o ON o.user_id = u.id AND o.status = 'completed'
		WHERE u.status = 'active' AND u.email_verified = true
		ORDER BY u.id, o.placed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query users with orders: %w", err)
	}
	defer rows.Close()

	var users []UserOrders
	var cur *UserOrders
	for rows.Next() {
		var (
			id, email string
			lastLogin sql.NullTime
			total     sql.NullFloat64
			placedAt  sql.NullTime
		)
		if err := rows.Scan(&id, &email, &lastLogin, &total, &placedAt); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		if cur == nil || cur.UserID != id {
			users = append(users, UserOrders{UserID: id, Email: email, LastLoginAt: lastLogin})
			cur = &users[len(users)-1]
		}
		if total.Valid && placedAt.Valid {
			cur.Orders = append(cur.Orders, Order{Total: total.Float64, PlacedAt: placedAt.Time})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return users, nil
}

// CartItemsUpdatedBefore returns cart line items last touched before the
// cutoff, the raw input for abandoned-cart detection.
func (s *Store) CartItemsUpdatedBefore(ctx context.Context, cutoff time.Time) ([]CartItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.user_id, c.product_id, COALESCE(p.name, ''), c.price, c.quantity, c.updated_at
		FROM cart_items c
		LEFT JOIN products p ON p.id = c.product_id
		WHERE c.updated_at < $1
		ORDER BY c.user_id, c.updated_at
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	var items []CartItem
	for rows.Next() {
		var it CartItem
		if err := rows.Scan(&it.UserID, &it.ProductID, &it.ProductName, &it.Price, &it.Quantity, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return items, nil
}

// ProductsBySeason returns in-stock products tagged for the given season.
func (s *Store) ProductsBySeason(ctx context.Context, season string) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, season, stock, price
		FROM products
		WHERE season = $1 AND stock > 0 AND active = true
		ORDER BY name
	`, season)
	if err != nil {
		return nil, fmt.Errorf("query seasonal products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// LowStockProducts returns active products at or below the stock threshold.
func (s *Store) LowStockProducts(ctx context.Context, threshold int) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(season, ''), stock, price
		FROM products
		WHERE stock <= $1 AND active = true
		ORDER BY stock
	`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query low stock products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

func scanProducts(rows *sql.Rows) ([]Product, error) {
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Season, &p.Stock, &p.Price); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}
