// Package postgres implements the store against PostgreSQL via pgx.
// Orders carry their line items and partners their history ledgers as
// JSONB documents: the save pipeline reads and writes these documents
// whole, so a row per document keeps reads and replaces single-roundtrip.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bengkelku/api/internal/domain"
	"github.com/bengkelku/api/internal/store"
)

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store on the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Numeric helpers ---

func toNumeric(d decimal.Decimal) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return pgtype.Numeric{}, err
	}
	return n, nil
}

func fromNumeric(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, nil
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(val.(string))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Orders ---

const orderColumns = `id, number, opened_at, settled_at, client, vehicle, lines,
	parts_total, labor_total, grand_total, created_by`

func (s *Store) scanOrder(row pgx.Row) (domain.WorkOrder, error) {
	var (
		o         domain.WorkOrder
		lines     []byte
		parts     pgtype.Numeric
		labor     pgtype.Numeric
		grand     pgtype.Numeric
		settledAt pgtype.Timestamptz
	)
	err := row.Scan(&o.ID, &o.Number, &o.OpenedAt, &settledAt, &o.Client, &o.Vehicle,
		&lines, &parts, &labor, &grand, &o.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WorkOrder{}, store.ErrNotFound
		}
		return domain.WorkOrder{}, err
	}
	if settledAt.Valid {
		t := settledAt.Time
		o.SettledAt = &t
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return domain.WorkOrder{}, fmt.Errorf("decode lines for %s: %w", o.Number, err)
	}
	if o.PartsTotal, err = fromNumeric(parts); err != nil {
		return domain.WorkOrder{}, err
	}
	if o.LaborTotal, err = fromNumeric(labor); err != nil {
		return domain.WorkOrder{}, err
	}
	if o.GrandTotal, err = fromNumeric(grand); err != nil {
		return domain.WorkOrder{}, err
	}
	return o, nil
}

func orderArgs(o domain.WorkOrder) ([]interface{}, error) {
	lines := o.Lines
	if lines == nil {
		lines = []domain.LineItem{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return nil, err
	}
	parts, err := toNumeric(o.PartsTotal)
	if err != nil {
		return nil, err
	}
	labor, err := toNumeric(o.LaborTotal)
	if err != nil {
		return nil, err
	}
	grand, err := toNumeric(o.GrandTotal)
	if err != nil {
		return nil, err
	}
	settledAt := pgtype.Timestamptz{}
	if o.SettledAt != nil {
		settledAt = pgtype.Timestamptz{Time: *o.SettledAt, Valid: true}
	}
	return []interface{}{o.ID, o.Number, o.OpenedAt, settledAt, o.Client, o.Vehicle,
		raw, parts, labor, grand, o.CreatedBy}, nil
}

func (s *Store) CreateOrder(ctx context.Context, o domain.WorkOrder) error {
	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO work_orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, args...)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (domain.WorkOrder, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM work_orders WHERE id = $1`, id)
	return s.scanOrder(row)
}

func (s *Store) PutOrder(ctx context.Context, o domain.WorkOrder) error {
	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE work_orders SET number = $2, opened_at = $3, settled_at = $4,
			client = $5, vehicle = $6, lines = $7, parts_total = $8,
			labor_total = $9, grand_total = $10, created_by = $11
		WHERE id = $1`, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListOrders(ctx context.Context, limit, offset int) ([]domain.WorkOrder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM work_orders
		ORDER BY opened_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.WorkOrder
	for rows.Next() {
		o, err := s.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) NextOrderNumber(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&n)
	return n, err
}

// --- Inventory ---

const itemColumns = `id, code, name, price, on_hand, consumed, unit, shop_name, linked_order_id`

func scanItem(row pgx.Row) (domain.InventoryItem, error) {
	var (
		it       domain.InventoryItem
		price    pgtype.Numeric
		onHand   pgtype.Numeric
		consumed pgtype.Numeric
		linked   pgtype.UUID
	)
	err := row.Scan(&it.ID, &it.Code, &it.Name, &price, &onHand, &consumed,
		&it.Unit, &it.ShopName, &linked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.InventoryItem{}, store.ErrNotFound
		}
		return domain.InventoryItem{}, err
	}
	if linked.Valid {
		id := uuid.UUID(linked.Bytes)
		it.LinkedOrderID = &id
	}
	if it.Price, err = fromNumeric(price); err != nil {
		return domain.InventoryItem{}, err
	}
	if it.OnHand, err = fromNumeric(onHand); err != nil {
		return domain.InventoryItem{}, err
	}
	if it.Consumed, err = fromNumeric(consumed); err != nil {
		return domain.InventoryItem{}, err
	}
	return it, nil
}

func (s *Store) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.InventoryItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) GetInventoryItem(ctx context.Context, id uuid.UUID) (domain.InventoryItem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id = $1`, id)
	return scanItem(row)
}

func (s *Store) PutInventoryItem(ctx context.Context, it domain.InventoryItem) error {
	price, err := toNumeric(it.Price)
	if err != nil {
		return err
	}
	onHand, err := toNumeric(it.OnHand)
	if err != nil {
		return err
	}
	consumed, err := toNumeric(it.Consumed)
	if err != nil {
		return err
	}
	linked := pgtype.UUID{}
	if it.LinkedOrderID != nil {
		linked = pgtype.UUID{Bytes: *it.LinkedOrderID, Valid: true}
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO inventory_items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code, name = EXCLUDED.name, price = EXCLUDED.price,
			on_hand = EXCLUDED.on_hand, consumed = EXCLUDED.consumed,
			unit = EXCLUDED.unit, shop_name = EXCLUDED.shop_name,
			linked_order_id = EXCLUDED.linked_order_id`,
		it.ID, it.Code, it.Name, price, onHand, consumed, it.Unit, it.ShopName, linked)
	return err
}

func (s *Store) UpdateInventoryUsage(ctx context.Context, id uuid.UUID, consumed decimal.Decimal, linkedOrderID *uuid.UUID) error {
	n, err := toNumeric(consumed)
	if err != nil {
		return err
	}
	linked := pgtype.UUID{}
	if linkedOrderID != nil {
		linked = pgtype.UUID{Bytes: *linkedOrderID, Valid: true}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE inventory_items SET consumed = $2, linked_order_id = $3 WHERE id = $1`,
		id, n, linked)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Partners ---

const partnerColumns = `id, kind, name, payroll_percent, history`

func scanPartner(row pgx.Row) (domain.Partner, error) {
	var (
		p       domain.Partner
		percent pgtype.Numeric
		history []byte
	)
	err := row.Scan(&p.ID, &p.Kind, &p.Name, &percent, &history)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Partner{}, store.ErrNotFound
		}
		return domain.Partner{}, err
	}
	if p.PayrollPercent, err = fromNumeric(percent); err != nil {
		return domain.Partner{}, err
	}
	if err := json.Unmarshal(history, &p.History); err != nil {
		return domain.Partner{}, fmt.Errorf("decode history for %s: %w", p.Name, err)
	}
	if p.History == nil {
		p.History = domain.Ledger{}
	}
	return p, nil
}

func (s *Store) ListPartners(ctx context.Context, kind string) ([]domain.Partner, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+partnerColumns+` FROM partners WHERE kind = $1 ORDER BY name`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var partners []domain.Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		partners = append(partners, p)
	}
	return partners, rows.Err()
}

func (s *Store) GetPartner(ctx context.Context, kind string, id uuid.UUID) (domain.Partner, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+partnerColumns+` FROM partners WHERE kind = $1 AND id = $2`, kind, id)
	return scanPartner(row)
}

func (s *Store) GetPartnerByName(ctx context.Context, kind, name string) (domain.Partner, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+partnerColumns+` FROM partners
		WHERE kind = $1 AND normalized_name = $2`, kind, domain.NormalizeName(name))
	return scanPartner(row)
}

func (s *Store) PutPartner(ctx context.Context, p domain.Partner) error {
	percent, err := toNumeric(p.PayrollPercent)
	if err != nil {
		return err
	}
	history := p.History
	if history == nil {
		history = domain.Ledger{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO partners (id, kind, name, normalized_name, payroll_percent, history)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, normalized_name = EXCLUDED.normalized_name,
			payroll_percent = EXCLUDED.payroll_percent, history = EXCLUDED.history`,
		p.ID, p.Kind, p.Name, domain.NormalizeName(p.Name), percent, raw)
	return err
}

// --- Catalogs ---

func (s *Store) ListCatalogNames(ctx context.Context, kind string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name FROM catalog_names WHERE kind = $1 ORDER BY name`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// AddCatalogName inserts a name into the classification catalog.
func (s *Store) AddCatalogName(ctx context.Context, kind, name string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO catalog_names (kind, name) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, kind, name)
	return err
}

// --- Settings ---

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	var percent pgtype.Numeric
	err := s.pool.QueryRow(ctx, `SELECT markup_percent FROM settings WHERE id = TRUE`).Scan(&percent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Settings{MarkupPercent: decimal.Zero}, nil
		}
		return domain.Settings{}, err
	}
	markup, err := fromNumeric(percent)
	if err != nil {
		return domain.Settings{}, err
	}
	return domain.Settings{MarkupPercent: markup}, nil
}

func (s *Store) PutSettings(ctx context.Context, set domain.Settings) error {
	percent, err := toNumeric(set.MarkupPercent)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO settings (id, markup_percent) VALUES (TRUE, $1)
		ON CONFLICT (id) DO UPDATE SET markup_percent = EXCLUDED.markup_percent`, percent)
	return err
}

// --- Users ---

const userColumns = `id, email, name, role, password_hash`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, store.ErrNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.Name, u.Role, u.PasswordHash)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}
