package db

import (
	"context"
	"fmt"
)

// Violation is one ledger consistency problem found by Verify.
type Violation struct {
	Check   string
	OrderID string
	Detail  string
}

type auditCheck struct {
	name  string
	query string
}

// Each query returns (order_id, detail) rows for offending data.
var auditChecks = []auditCheck{
	{
		name: "item_over_quantity",
		query: `
			SELECT i.order_id, i.id || ': ' || COUNT(DISTINCT s.barcode) || ' scanned, ' || i.quantity || ' ordered'
			FROM order_items i
			JOIN scan_records s ON s.order_item_id = i.id
			GROUP BY i.order_id, i.id, i.quantity
			HAVING COUNT(DISTINCT s.barcode) > i.quantity`,
	},
	{
		name: "scan_item_outside_order",
		query: `
			SELECT s.order_id, s.barcode || ' bound to item ' || s.order_item_id || ' of order ' || i.order_id
			FROM scan_records s
			JOIN order_items i ON i.id = s.order_item_id
			WHERE i.order_id <> s.order_id`,
	},
	{
		name: "shipped_without_shipment",
		query: `
			SELECT o.id, 'status shipped but no shipment record'
			FROM orders o
			LEFT JOIN shipments sh ON sh.order_id = o.id
			WHERE o.status = 'shipped' AND sh.id IS NULL`,
	},
	{
		name: "shipment_on_open_order",
		query: `
			SELECT sh.order_id, 'shipment ' || sh.id || ' exists but order is ' || o.status
			FROM shipments sh
			JOIN orders o ON o.id = sh.order_id
			WHERE o.status <> 'shipped'`,
	},
	{
		name: "shipped_unit_not_sold",
		query: `
			SELECT sh.order_id, b.barcode || ' shipped but not sold to this order'
			FROM shipment_bindings b
			JOIN shipments sh ON sh.id = b.shipment_id
			JOIN inventory_units u ON u.id = b.unit_id
			WHERE NOT u.sold OR u.order_id IS DISTINCT FROM sh.order_id`,
	},
	{
		name: "open_order_sold_unit",
		query: `
			SELECT s.order_id, s.barcode || ' is in the ledger but the unit is sold' ||
				COALESCE(' to order ' || u.order_id, '')
			FROM scan_records s
			JOIN orders o ON o.id = s.order_id
			JOIN inventory_units u ON u.id = s.unit_id
			WHERE o.status <> 'shipped' AND u.sold`,
	},
	{
		name: "unit_in_several_ledgers",
		query: `
			SELECT s.order_id, s.barcode || ' is also scanned into ' || other.order_id
			FROM scan_records s
			JOIN scan_records other ON other.unit_id = s.unit_id AND other.order_id <> s.order_id
			WHERE s.unit_id IS NOT NULL`,
	},
	{
		name: "shipment_scan_mismatch",
		query: `
			SELECT sh.order_id, 'shipment has ' || COUNT(DISTINCT b.barcode) || ' units, ledger has ' ||
				(SELECT COUNT(*) FROM scan_records s WHERE s.order_id = sh.order_id)
			FROM shipments sh
			JOIN shipment_bindings b ON b.shipment_id = sh.id
			GROUP BY sh.id, sh.order_id
			HAVING COUNT(DISTINCT b.barcode) <> (SELECT COUNT(*) FROM scan_records s WHERE s.order_id = sh.order_id)`,
	},
}

// Verify audits the scan ledger, shipments and unit states for invariant breaches.
func Verify(ctx context.Context, store *Store) ([]Violation, error) {
	var out []Violation
	for _, c := range auditChecks {
		rows, err := store.pool.Query(ctx, c.query)
		if err != nil {
			return nil, fmt.Errorf("audit %s failed: %w", c.name, err)
		}
		for rows.Next() {
			v := Violation{Check: c.name}
			if err := rows.Scan(&v.OrderID, &v.Detail); err != nil {
				rows.Close()
				return nil, fmt.Errorf("audit %s: failed to scan row: %w", c.name, err)
			}
			out = append(out, v)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("audit %s failed: %w", c.name, err)
		}
	}
	return out, nil
}
