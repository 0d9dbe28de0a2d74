package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/cart-processor/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const selectCoupon = `SELECT id, code, discount, type, level, product_id, is_active, cart_id, created_at FROM coupons`

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, errors.Wrap(e2, "failed to ping database")
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "cart_processor_schema_migrations",
	})
	if err != nil {
		return errors.Wrap(err, "could not create migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return errors.Wrap(err, "could not create migrate instance")
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return errors.Wrap(e2, "could not run migrations")
	}

	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	return loadCart(ctx, r.db, cartID)
}

func (r *Repository) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, price, created_at FROM products WHERE id = $1`, productID).
		Scan(&p.ID, &p.Name, &p.Price, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query product")
	}
	return &p, nil
}

func (r *Repository) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return scanCoupon(r.db.QueryRowContext(ctx, selectCoupon+` WHERE code = $1`, code))
}

func (r *Repository) CreateCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	_, err := r.db.ExecContext(ctx, `INSERT INTO carts (id) VALUES ($1)`, cartID)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return nil, ErrCartExists
		}
		return nil, errors.Wrap(err, "insert cart")
	}
	return loadCart(ctx, r.db, cartID)
}

func (r *Repository) DeleteCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	var deleted *domain.Cart
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		cart, err := loadCart(ctx, tx, cartID)
		if err != nil {
			return err
		}
		// line items cascade, the coupon link is set to NULL
		if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID); err != nil {
			return errors.Wrap(err, "delete cart")
		}
		deleted = cart
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *Repository) ClearCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	return r.mutate(ctx, cartID, func(tx *sql.Tx) error {
		if err := touchCart(ctx, tx, `UPDATE carts SET sub_total = 0, total = 0 WHERE id = $1`, cartID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE coupons SET cart_id = NULL WHERE cart_id = $1`, cartID); err != nil {
			return errors.Wrap(err, "detach coupon")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_products WHERE cart_id = $1`, cartID); err != nil {
			return errors.Wrap(err, "delete cart items")
		}
		return nil
	})
}

func (r *Repository) AddItem(ctx context.Context, cartID, productID string, quantity int, amount decimal.Decimal) (*domain.Cart, error) {
	return r.mutate(ctx, cartID, func(tx *sql.Tx) error {
		if err := touchCart(ctx, tx, `UPDATE carts SET sub_total = sub_total + $2 WHERE id = $1`, cartID, amount); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO cart_products (cart_id, product_id, quantity) VALUES ($1, $2, $3)
			 ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_products.quantity + EXCLUDED.quantity`,
			cartID, productID, quantity)
		if err != nil {
			if pgCode(err) == pgForeignKeyViolation {
				return ErrProductNotFound
			}
			return errors.Wrap(err, "upsert cart item")
		}
		return nil
	})
}

func (r *Repository) RemoveItem(ctx context.Context, cartID, productID string) (*domain.Cart, error) {
	return r.mutate(ctx, cartID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM cart_products WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
		if err != nil {
			return errors.Wrap(err, "delete cart item")
		}
		return itemAffected(ctx, tx, res, cartID)
	})
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, cartID, productID string, quantity int) (*domain.Cart, error) {
	return r.mutate(ctx, cartID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE cart_products SET quantity = $3 WHERE cart_id = $1 AND product_id = $2`,
			cartID, productID, quantity)
		if err != nil {
			return errors.Wrap(err, "update item quantity")
		}
		return itemAffected(ctx, tx, res, cartID)
	})
}

func (r *Repository) AttachCoupon(ctx context.Context, cartID, couponID string) (*domain.Cart, error) {
	return r.mutate(ctx, cartID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE coupons SET cart_id = $1 WHERE id = $2 AND (cart_id IS NULL OR cart_id = $1)`,
			cartID, couponID)
		if err != nil {
			switch pgCode(err) {
			case pgUniqueViolation:
				return ErrCartHasCoupon
			case pgForeignKeyViolation:
				return ErrCartNotFound
			}
			return errors.Wrap(err, "attach coupon")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "attach coupon")
		}
		if n == 0 {
			return couponMissOrInUse(ctx, tx, couponID)
		}
		return nil
	})
}

func couponMissOrInUse(ctx context.Context, tx *sql.Tx, couponID string) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM coupons WHERE id = $1)`, couponID).Scan(&exists); err != nil {
		return errors.Wrap(err, "check coupon")
	}
	if exists {
		return ErrCouponInUse
	}
	return ErrCouponNotFound
}

func (r *Repository) DetachCoupon(ctx context.Context, cartID string) (*domain.Cart, error) {
	return r.mutate(ctx, cartID, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE coupons SET cart_id = NULL WHERE cart_id = $1`, cartID); err != nil {
			return errors.Wrap(err, "detach coupon")
		}
		return nil
	})
}

func (r *Repository) UpdateTotals(ctx context.Context, cartID string, subTotal, total decimal.Decimal) (*domain.Cart, error) {
	return r.mutate(ctx, cartID, func(tx *sql.Tx) error {
		return touchCart(ctx, tx, `UPDATE carts SET sub_total = $2, total = $3 WHERE id = $1`, cartID, subTotal, total)
	})
}

// CreateProduct and CreateCoupon belong to catalog management. The processor
// never calls them; they exist for fixtures.
func (r *Repository) CreateProduct(ctx context.Context, p *domain.Product) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (id, name, price) VALUES ($1, $2, $3)`, p.ID, p.Name, p.Price)
	if err != nil {
		return errors.Wrap(err, "insert product")
	}
	return nil
}

func (r *Repository) CreateCoupon(ctx context.Context, c *domain.Coupon) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO coupons (id, code, discount, type, level, product_id, is_active) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Code, c.Discount, string(c.Type), string(c.Level), nullString(c.ProductID), c.IsActive)
	if err != nil {
		return errors.Wrap(err, "insert coupon")
	}
	return nil
}

// mutate runs fn in a transaction and returns the cart as it is after fn.
func (r *Repository) mutate(ctx context.Context, cartID string, fn func(tx *sql.Tx) error) (*domain.Cart, error) {
	var cart *domain.Cart
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		loaded, err := loadCart(ctx, tx, cartID)
		if err != nil {
			return err
		}
		cart = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

func loadCart(ctx context.Context, q querier, cartID string) (*domain.Cart, error) {
	var cart domain.Cart
	err := q.QueryRowContext(ctx,
		`SELECT id, sub_total, total, created_at FROM carts WHERE id = $1`, cartID).
		Scan(&cart.ID, &cart.SubTotal, &cart.Total, &cart.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query cart")
	}

	rows, err := q.QueryContext(ctx,
		`SELECT cp.product_id, cp.quantity, cp.created_at, p.name, p.price, p.created_at
		 FROM cart_products cp JOIN products p ON p.id = cp.product_id
		 WHERE cp.cart_id = $1 ORDER BY cp.created_at, cp.product_id`, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "query cart items")
	}
	defer rows.Close()

	for rows.Next() {
		item := domain.CartItem{CartID: cartID, Product: &domain.Product{}}
		if err := rows.Scan(
			&item.ProductID,
			&item.Quantity,
			&item.CreatedAt,
			&item.Product.Name,
			&item.Product.Price,
			&item.Product.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan cart item")
		}
		item.Product.ID = item.ProductID
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "cart items iteration")
	}

	coupon, err := scanCoupon(q.QueryRowContext(ctx, selectCoupon+` WHERE cart_id = $1`, cartID))
	switch {
	case errors.Is(err, ErrCouponNotFound):
	case err != nil:
		return nil, err
	default:
		cart.Coupon = coupon
	}

	return &cart, nil
}

func scanCoupon(row *sql.Row) (*domain.Coupon, error) {
	var (
		c         domain.Coupon
		couponTyp string
		level     string
		productID sql.NullString
		cartID    sql.NullString
	)
	err := row.Scan(&c.ID, &c.Code, &c.Discount, &couponTyp, &level, &productID, &c.IsActive, &cartID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query coupon")
	}
	c.Type = domain.CouponType(couponTyp)
	c.Level = domain.CouponLevel(level)
	if productID.Valid {
		c.ProductID = &productID.String
	}
	if cartID.Valid {
		c.CartID = &cartID.String
	}
	return &c, nil
}

func touchCart(ctx context.Context, q querier, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "update cart")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update cart")
	}
	if n == 0 {
		return ErrCartNotFound
	}
	return nil
}

// itemAffected turns a zero-row item statement into the right miss.
func itemAffected(ctx context.Context, q querier, res sql.Result, cartID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM carts WHERE id = $1)`, cartID).Scan(&exists); err != nil {
		return errors.Wrap(err, "query cart existence")
	}
	if !exists {
		return ErrCartNotFound
	}
	return ErrItemNotFound
}

func pgCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
