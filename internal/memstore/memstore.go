// Package memstore is an in-memory implementation of core.Store.
//
// A transaction clones the whole state under a single writer lock and swaps it in
// only when the callback succeeds, so a failed transaction leaves nothing behind.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fulfillment/internal/core"

	"github.com/google/uuid"
)

type state struct {
	orders    map[string]core.Order
	units     map[string]core.InventoryUnit
	barcodes  map[string]string
	scans     map[string][]core.ScanRecord
	shipments map[string]core.Shipment
}

func newState() state {
	return state{
		orders:    make(map[string]core.Order),
		units:     make(map[string]core.InventoryUnit),
		barcodes:  make(map[string]string),
		scans:     make(map[string][]core.ScanRecord),
		shipments: make(map[string]core.Shipment),
	}
}

func (s state) clone() state {
	out := newState()
	for k, v := range s.orders {
		out.orders[k] = cloneOrder(v)
	}
	for k, v := range s.units {
		out.units[k] = cloneUnit(v)
	}
	for k, v := range s.barcodes {
		out.barcodes[k] = v
	}
	for k, v := range s.scans {
		recs := make([]core.ScanRecord, len(v))
		for i, r := range v {
			recs[i] = cloneScan(r)
		}
		out.scans[k] = recs
	}
	for k, v := range s.shipments {
		out.shipments[k] = cloneShipment(v)
	}
	return out
}

// Store is a transactional in-memory core.Store. The zero value is not usable; call New.
type Store struct {
	mu    sync.RWMutex
	state state
}

var _ core.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: newState()}
}

type txKey struct{}

type transaction struct {
	store *Store
	state state
}

func (s *Store) txFromContext(ctx context.Context) *transaction {
	tx, _ := ctx.Value(txKey{}).(*transaction)
	if tx == nil || tx.store != s {
		return nil
	}
	return tx
}

// WithTx runs fn against a private copy of the state and commits it if fn returns nil
// and ctx is still live. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFromContext(ctx) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{store: s, state: s.state.clone()}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if tx := s.txFromContext(ctx); tx != nil {
		return fn(&tx.state)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.state)
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		return fn(&s.txFromContext(ctx).state)
	})
}

// ── Orders ───────────────────────────────────────────────────────────────────

func (s *Store) CreateOrder(ctx context.Context, order core.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	return s.write(ctx, func(st *state) error {
		if _, ok := st.orders[order.ID]; ok {
			return fmt.Errorf("order %s already exists", order.ID)
		}
		o := cloneOrder(order)
		if o.Status == "" {
			o.Status = core.OrderOpen
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = time.Now().UTC()
		}
		for i := range o.Items {
			o.Items[i].OrderID = o.ID
		}
		sort.SliceStable(o.Items, func(i, j int) bool { return o.Items[i].Position < o.Items[j].Position })
		st.orders[o.ID] = o
		return nil
	})
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*core.Order, error) {
	var out *core.Order
	err := s.read(ctx, func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return fmt.Errorf("order %s: %w", orderID, core.ErrOrderNotFound)
		}
		c := cloneOrder(o)
		out = &c
		return nil
	})
	return out, err
}

// LockOrder is GetOrder: the transaction already holds the store-wide writer lock.
func (s *Store) LockOrder(ctx context.Context, orderID string) (*core.Order, error) {
	return s.GetOrder(ctx, orderID)
}

func (s *Store) MarkOrderShipped(ctx context.Context, orderID string, at time.Time) error {
	return s.write(ctx, func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return fmt.Errorf("order %s: %w", orderID, core.ErrOrderNotFound)
		}
		if o.Status == core.OrderShipped {
			return fmt.Errorf("order %s: %w", orderID, core.ErrOrderAlreadyShipped)
		}
		o.Status = core.OrderShipped
		shippedAt := at
		o.ShippedAt = &shippedAt
		st.orders[orderID] = o
		return nil
	})
}

// ── Inventory units ──────────────────────────────────────────────────────────

func (s *Store) AddUnit(ctx context.Context, unit core.InventoryUnit) error {
	if unit.Barcode == "" {
		return fmt.Errorf("unit barcode is required")
	}
	return s.write(ctx, func(st *state) error {
		if _, ok := st.barcodes[unit.Barcode]; ok {
			return fmt.Errorf("barcode %s: %w", unit.Barcode, core.ErrDuplicateBarcode)
		}
		u := cloneUnit(unit)
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		if u.Kind == "" {
			u.Kind = core.UnitSubdivided
		}
		st.units[u.ID] = u
		st.barcodes[u.Barcode] = u.ID
		return nil
	})
}

func (s *Store) LookupByBarcode(ctx context.Context, barcode string) (*core.InventoryUnit, error) {
	var out *core.InventoryUnit
	err := s.read(ctx, func(st *state) error {
		id, ok := st.barcodes[barcode]
		if !ok {
			return core.ErrNoSuchUnit
		}
		u := cloneUnit(st.units[id])
		out = &u
		return nil
	})
	return out, err
}

func (s *Store) ReserveUnit(ctx context.Context, unitID, orderID, orderItemID string) error {
	return s.write(ctx, func(st *state) error {
		u, ok := st.units[unitID]
		if !ok {
			return fmt.Errorf("unit %s not found", unitID)
		}
		if u.Sold || u.ReservedElsewhere(orderID) {
			return fmt.Errorf("unit %s is sold or reserved to another order: %w", u.Barcode, core.ErrUnitNotEligible)
		}
		u.OrderID = &orderID
		u.OrderItemID = &orderItemID
		st.units[unitID] = u
		return nil
	})
}

func (s *Store) MarkSold(ctx context.Context, unitID, orderID, orderItemID string) error {
	return s.write(ctx, func(st *state) error {
		u, ok := st.units[unitID]
		if !ok {
			return fmt.Errorf("unit %s not found", unitID)
		}
		u.Sold = true
		u.OrderID = &orderID
		u.OrderItemID = &orderItemID
		st.units[unitID] = u
		return nil
	})
}

// ── Scan ledger ──────────────────────────────────────────────────────────────

func (s *Store) InsertScan(ctx context.Context, rec core.ScanRecord) (core.ScanRecord, bool, error) {
	var out core.ScanRecord
	created := false
	err := s.write(ctx, func(st *state) error {
		for _, r := range st.scans[rec.OrderID] {
			if r.Barcode == rec.Barcode {
				out = cloneScan(r)
				return nil
			}
		}
		stored := cloneScan(rec)
		st.scans[rec.OrderID] = append(st.scans[rec.OrderID], stored)
		out = cloneScan(stored)
		created = true
		return nil
	})
	if err != nil {
		return core.ScanRecord{}, false, err
	}
	return out, created, nil
}

func (s *Store) FindScan(ctx context.Context, orderID, barcode string) (*core.ScanRecord, error) {
	var out *core.ScanRecord
	err := s.read(ctx, func(st *state) error {
		for _, r := range st.scans[orderID] {
			if r.Barcode == barcode {
				c := cloneScan(r)
				out = &c
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) ListScans(ctx context.Context, orderID string) ([]core.ScanRecord, error) {
	var out []core.ScanRecord
	err := s.read(ctx, func(st *state) error {
		recs := st.scans[orderID]
		out = make([]core.ScanRecord, len(recs))
		for i, r := range recs {
			out[i] = cloneScan(r)
		}
		return nil
	})
	return out, err
}

// ── Shipments ────────────────────────────────────────────────────────────────

func (s *Store) InsertShipment(ctx context.Context, shipment core.Shipment) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.shipments[shipment.OrderID]; ok {
			return fmt.Errorf("shipment for order %s already exists", shipment.OrderID)
		}
		st.shipments[shipment.OrderID] = cloneShipment(shipment)
		return nil
	})
}

func (s *Store) GetShipmentByOrder(ctx context.Context, orderID string) (*core.Shipment, error) {
	var out *core.Shipment
	err := s.read(ctx, func(st *state) error {
		sh, ok := st.shipments[orderID]
		if !ok {
			return fmt.Errorf("order %s: %w", orderID, core.ErrShipmentNotFound)
		}
		c := cloneShipment(sh)
		out = &c
		return nil
	})
	return out, err
}

func cloneOrder(o core.Order) core.Order {
	o.Items = append([]core.OrderItem(nil), o.Items...)
	if o.ShippedAt != nil {
		t := *o.ShippedAt
		o.ShippedAt = &t
	}
	return o
}

func cloneUnit(u core.InventoryUnit) core.InventoryUnit {
	u.OrderID = cloneString(u.OrderID)
	u.OrderItemID = cloneString(u.OrderItemID)
	return u
}

func cloneScan(r core.ScanRecord) core.ScanRecord {
	r.UnitID = cloneString(r.UnitID)
	return r
}

func cloneShipment(s core.Shipment) core.Shipment {
	s.Bindings = append([]core.ShipmentBinding(nil), s.Bindings...)
	return s
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
