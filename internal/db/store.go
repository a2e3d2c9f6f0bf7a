package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment/internal/core"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements core.Store on Postgres. Per-order serialization comes from
// SELECT ... FOR UPDATE on the orders row; scan uniqueness from the
// (order_id, barcode) constraint.
type Store struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ── Orders ───────────────────────────────────────────────────────────────────

const orderColumns = `id, order_number, customer_ref, note, status, created_at, shipped_at`

func (s *Store) CreateOrder(ctx context.Context, order core.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	if order.Status == "" {
		order.Status = core.OrderOpen
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	return s.WithTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)
		_, err := q.Exec(ctx, `
			INSERT INTO orders (id, order_number, customer_ref, note, status, created_at, shipped_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			order.ID, order.OrderNumber, order.CustomerRef, order.Note, string(order.Status), order.CreatedAt, order.ShippedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("order %s already exists", order.ID)
			}
			return fmt.Errorf("failed to insert order %s: %w", order.ID, err)
		}

		for _, it := range order.Items {
			_, err := q.Exec(ctx, `
				INSERT INTO order_items (id, order_id, position, type_tag, product_label, quantity, width, length, weight)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				it.ID, order.ID, it.Position, it.TypeTag, it.ProductLabel, it.Quantity, it.Width, it.Length, it.Weight,
			)
			if err != nil {
				return fmt.Errorf("failed to insert order item %s: %w", it.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*core.Order, error) {
	return s.loadOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
}

// LockOrder must run inside WithTx; the row lock is released at commit or rollback.
func (s *Store) LockOrder(ctx context.Context, orderID string) (*core.Order, error) {
	if txFromContext(ctx) == nil {
		return nil, fmt.Errorf("lock order %s: no transaction in context", orderID)
	}
	return s.loadOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
}

func (s *Store) loadOrder(ctx context.Context, query, orderID string) (*core.Order, error) {
	q := s.q(ctx)

	var o core.Order
	var status string
	err := q.QueryRow(ctx, query, orderID).Scan(
		&o.ID, &o.OrderNumber, &o.CustomerRef, &o.Note, &status, &o.CreatedAt, &o.ShippedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderID, core.ErrOrderNotFound)
		}
		return nil, fmt.Errorf("failed to fetch order %s: %w", orderID, err)
	}
	o.Status = core.OrderStatus(status)

	rows, err := q.Query(ctx, `
		SELECT id, order_id, position, type_tag, product_label, quantity, width, length, weight
		FROM order_items
		WHERE order_id = $1
		ORDER BY position, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var it core.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Position, &it.TypeTag, &it.ProductLabel,
			&it.Quantity, &it.Width, &it.Length, &it.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read items for order %s: %w", orderID, err)
	}
	return &o, nil
}

func (s *Store) MarkOrderShipped(ctx context.Context, orderID string, at time.Time) error {
	tag, err := s.q(ctx).Exec(ctx,
		`UPDATE orders SET status = 'shipped', shipped_at = $2 WHERE id = $1 AND status = 'open'`,
		orderID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to ship order %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s is not open: %w", orderID, core.ErrOrderAlreadyShipped)
	}
	return nil
}

// ── Inventory units ──────────────────────────────────────────────────────────

func (s *Store) AddUnit(ctx context.Context, unit core.InventoryUnit) error {
	if unit.Barcode == "" {
		return fmt.Errorf("unit barcode is required")
	}
	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	if unit.Kind == "" {
		unit.Kind = core.UnitSubdivided
	}
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO inventory_units (id, barcode, kind, category, inspected, sold, remaining, order_id, order_item_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		unit.ID, unit.Barcode, string(unit.Kind), unit.Category, unit.Inspected, unit.Sold, unit.Remaining,
		unit.OrderID, unit.OrderItemID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("barcode %s: %w", unit.Barcode, core.ErrDuplicateBarcode)
		}
		return fmt.Errorf("failed to insert unit %s: %w", unit.Barcode, err)
	}
	return nil
}

func (s *Store) LookupByBarcode(ctx context.Context, barcode string) (*core.InventoryUnit, error) {
	var u core.InventoryUnit
	var kind string
	err := s.q(ctx).QueryRow(ctx, `
		SELECT id, barcode, kind, category, inspected, sold, remaining, order_id, order_item_id
		FROM inventory_units
		WHERE barcode = $1`, barcode,
	).Scan(&u.ID, &u.Barcode, &kind, &u.Category, &u.Inspected, &u.Sold, &u.Remaining, &u.OrderID, &u.OrderItemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNoSuchUnit
		}
		return nil, fmt.Errorf("failed to fetch unit %s: %w", barcode, err)
	}
	u.Kind = core.UnitKind(kind)
	return &u, nil
}

// ReserveUnit claims the unit for orderID. The conditional UPDATE takes the row lock,
// so of two transactions racing for the same unit only the first can match.
func (s *Store) ReserveUnit(ctx context.Context, unitID, orderID, orderItemID string) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE inventory_units
		SET order_id = $2, order_item_id = $3
		WHERE id = $1 AND sold = FALSE AND (order_id IS NULL OR order_id = $2)`,
		unitID, orderID, orderItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to reserve unit %s: %w", unitID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("unit %s is sold or reserved to another order: %w", unitID, core.ErrUnitNotEligible)
	}
	return nil
}

func (s *Store) MarkSold(ctx context.Context, unitID, orderID, orderItemID string) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE inventory_units
		SET sold = TRUE, order_id = $2, order_item_id = $3
		WHERE id = $1 AND sold = FALSE`,
		unitID, orderID, orderItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to update unit %s: %w", unitID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("unit %s missing or already sold: %w", unitID, core.ErrUnitNotEligible)
	}
	return nil
}

// ── Scan ledger ──────────────────────────────────────────────────────────────

const scanColumns = `id, order_id, order_item_id, barcode, unit_id, operator_id, match_method, needs_review, scanned_at`

func (s *Store) InsertScan(ctx context.Context, rec core.ScanRecord) (core.ScanRecord, bool, error) {
	row := s.q(ctx).QueryRow(ctx, `
		INSERT INTO scan_records (`+scanColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (order_id, barcode) DO NOTHING
		RETURNING `+scanColumns,
		rec.ID, rec.OrderID, rec.OrderItemID, rec.Barcode, rec.UnitID, rec.OperatorID,
		string(rec.Method), rec.NeedsReview, rec.ScannedAt,
	)
	stored, err := scanRecord(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return core.ScanRecord{}, false, fmt.Errorf("failed to insert scan %s: %w", rec.Barcode, err)
	}

	existing, err := s.FindScan(ctx, rec.OrderID, rec.Barcode)
	if err != nil {
		return core.ScanRecord{}, false, err
	}
	if existing == nil {
		return core.ScanRecord{}, false, fmt.Errorf("scan %s for order %s conflicted but is not visible", rec.Barcode, rec.OrderID)
	}
	return *existing, false, nil
}

func (s *Store) FindScan(ctx context.Context, orderID, barcode string) (*core.ScanRecord, error) {
	row := s.q(ctx).QueryRow(ctx,
		`SELECT `+scanColumns+` FROM scan_records WHERE order_id = $1 AND barcode = $2`,
		orderID, barcode,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch scan %s: %w", barcode, err)
	}
	return &rec, nil
}

func (s *Store) ListScans(ctx context.Context, orderID string) ([]core.ScanRecord, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT `+scanColumns+` FROM scan_records WHERE order_id = $1 ORDER BY seq`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var out []core.ScanRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scans for order %s: %w", orderID, err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (core.ScanRecord, error) {
	var rec core.ScanRecord
	var method string
	err := row.Scan(&rec.ID, &rec.OrderID, &rec.OrderItemID, &rec.Barcode, &rec.UnitID,
		&rec.OperatorID, &method, &rec.NeedsReview, &rec.ScannedAt)
	rec.Method = core.MatchMethod(method)
	return rec, err
}

// ── Shipments ────────────────────────────────────────────────────────────────

func (s *Store) InsertShipment(ctx context.Context, shipment core.Shipment) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)
		_, err := q.Exec(ctx,
			`INSERT INTO shipments (id, order_id, created_at) VALUES ($1, $2, $3)`,
			shipment.ID, shipment.OrderID, shipment.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("shipment for order %s already exists: %w", shipment.OrderID, core.ErrOrderAlreadyShipped)
			}
			return fmt.Errorf("failed to insert shipment: %w", err)
		}
		for _, b := range shipment.Bindings {
			_, err := q.Exec(ctx, `
				INSERT INTO shipment_bindings (shipment_id, order_item_id, unit_id, barcode)
				VALUES ($1, $2, $3, $4)`,
				shipment.ID, b.OrderItemID, b.UnitID, b.Barcode,
			)
			if err != nil {
				return fmt.Errorf("failed to insert shipment binding %s: %w", b.Barcode, err)
			}
		}
		return nil
	})
}

func (s *Store) GetShipmentByOrder(ctx context.Context, orderID string) (*core.Shipment, error) {
	q := s.q(ctx)

	var sh core.Shipment
	err := q.QueryRow(ctx,
		`SELECT id, order_id, created_at FROM shipments WHERE order_id = $1`, orderID,
	).Scan(&sh.ID, &sh.OrderID, &sh.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderID, core.ErrShipmentNotFound)
		}
		return nil, fmt.Errorf("failed to fetch shipment for order %s: %w", orderID, err)
	}

	rows, err := q.Query(ctx, `
		SELECT b.order_item_id, b.unit_id, b.barcode
		FROM shipment_bindings b
		JOIN order_items i ON i.id = b.order_item_id
		WHERE b.shipment_id = $1
		ORDER BY i.position, b.barcode`, sh.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch shipment bindings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b core.ShipmentBinding
		if err := rows.Scan(&b.OrderItemID, &b.UnitID, &b.Barcode); err != nil {
			return nil, fmt.Errorf("failed to scan shipment binding: %w", err)
		}
		sh.Bindings = append(sh.Bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read shipment bindings: %w", err)
	}
	return &sh, nil
}
