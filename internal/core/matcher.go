package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Match is the outcome of resolving a barcode against an order.
// When AlreadyScanned is set, OrderItemID and UnitID come from the existing ledger record.
type Match struct {
	OrderItemID    string
	UnitID         *string
	Barcode        string
	Method         MatchMethod
	NeedsReview    bool
	AlreadyScanned bool
	Existing       *ScanRecord
}

// BarcodeMatcher resolves a scanned code to an inventory unit and an order item.
// It never writes.
type BarcodeMatcher interface {
	// Resolve returns ErrNoSuchUnit (an ErrNoMatch) when the directory has no unit for
	// the barcode, ErrNoMatch when no item can take it, and ErrUnitNotEligible when the
	// unit exists but cannot ship.
	Resolve(ctx context.Context, orderID, barcode string) (*Match, error)
}

// MatcherOption configures a BarcodeMatcher.
type MatcherOption func(*barcodeMatcher)

// WithFallback controls whether an unmatched unit falls back to the first order item.
// Fallback matches are always flagged for review. Enabled by default.
func WithFallback(allow bool) MatcherOption {
	return func(m *barcodeMatcher) {
		m.allowFallback = allow
	}
}

type barcodeMatcher struct {
	orders        OrderStore
	units         UnitDirectory
	ledger        ScanLedger
	rules         *RuleSet
	allowFallback bool
}

func NewBarcodeMatcher(orders OrderStore, units UnitDirectory, ledger ScanLedger, rules *RuleSet, opts ...MatcherOption) BarcodeMatcher {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	m := &barcodeMatcher{
		orders:        orders,
		units:         units,
		ledger:        ledger,
		rules:         rules,
		allowFallback: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *barcodeMatcher) Resolve(ctx context.Context, orderID, barcode string) (*Match, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, fmt.Errorf("empty barcode: %w", ErrNoMatch)
	}

	existing, err := m.ledger.Find(ctx, orderID, barcode)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Match{
			OrderItemID:    existing.OrderItemID,
			UnitID:         existing.UnitID,
			Barcode:        barcode,
			Method:         existing.Method,
			NeedsReview:    existing.NeedsReview,
			AlreadyScanned: true,
			Existing:       existing,
		}, nil
	}

	order, err := m.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	unit, err := m.units.LookupByBarcode(ctx, barcode)
	if err != nil {
		if errors.Is(err, ErrNoSuchUnit) {
			return nil, fmt.Errorf("barcode %s: %w", barcode, ErrNoSuchUnit)
		}
		return nil, fmt.Errorf("failed to look up barcode %s: %w", barcode, err)
	}
	if reason := unit.eligibility(orderID); reason != "" {
		return nil, fmt.Errorf("unit %s %s: %w", barcode, reason, ErrUnitNotEligible)
	}

	item, method, err := m.bind(ctx, order, unit)
	if err != nil {
		return nil, err
	}

	unitID := unit.ID
	return &Match{
		OrderItemID: item.ID,
		UnitID:      &unitID,
		Barcode:     barcode,
		Method:      method,
		NeedsReview: method == MatchFallback,
	}, nil
}

// bind picks the order item for unit: direct binding, then type match, then fallback.
func (m *barcodeMatcher) bind(ctx context.Context, order *Order, unit *InventoryUnit) (OrderItem, MatchMethod, error) {
	if unit.OrderItemID != nil {
		if item, ok := order.Item(*unit.OrderItemID); ok {
			return item, MatchBinding, nil
		}
	}

	category := normalizeTag(unit.Category)
	var candidates []OrderItem
	if category != "" {
		for _, it := range order.Items {
			if normalizeTag(it.TypeTag) == category {
				candidates = append(candidates, it)
			}
		}
	}

	switch len(candidates) {
	case 0:
	case 1:
		return candidates[0], MatchType, nil
	default:
		records, err := m.ledger.ListForOrder(ctx, order.ID)
		if err != nil {
			return OrderItem{}, "", err
		}
		byItem := groupByItem(records)
		for _, it := range candidates {
			if m.rules.For(it.TypeTag).Admit(it, byItem[it.ID], unit.Barcode) == nil {
				return it, MatchType, nil
			}
		}
		return candidates[0], MatchType, nil
	}

	if !m.allowFallback || len(order.Items) == 0 {
		return OrderItem{}, "", fmt.Errorf("unit %s category %q: %w", unit.Barcode, unit.Category, ErrNoMatch)
	}
	return order.Items[0], MatchFallback, nil
}
