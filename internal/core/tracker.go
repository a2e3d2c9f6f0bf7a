package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Outcome classifies the result of a scan submission.
type Outcome string

const (
	OutcomeAccepted         Outcome = "accepted"
	OutcomeAlreadyScanned   Outcome = "already_scanned"
	OutcomeQuantityExceeded Outcome = "quantity_exceeded"
	OutcomeNoMatch          Outcome = "no_match"
	OutcomeUnitNotEligible  Outcome = "unit_not_eligible"
)

// ScanRequest is one physical or manual scan event.
type ScanRequest struct {
	OrderID    string
	Barcode    string
	OperatorID string
}

// AcceptResult reports what happened to a scan. Count, Quantity and Remaining describe
// the matched item after the scan and are zero for NoMatch and UnitNotEligible.
type AcceptResult struct {
	Outcome     Outcome     `json:"outcome"`
	OrderID     string      `json:"order_id"`
	OrderItemID string      `json:"order_item_id,omitempty"`
	Barcode     string      `json:"barcode"`
	Count       int         `json:"count"`
	Quantity    int         `json:"quantity"`
	Remaining   int         `json:"remaining"`
	Method      MatchMethod `json:"match_method,omitempty"`
	NeedsReview bool        `json:"needs_review"`
	Reason      string      `json:"reason,omitempty"`
	Record      *ScanRecord `json:"record,omitempty"`
}

// ItemProgress is the ledger projection of one order item.
type ItemProgress struct {
	ItemID       string   `json:"item_id"`
	TypeTag      string   `json:"type_tag"`
	ProductLabel string   `json:"product_label,omitempty"`
	Rule         string   `json:"rule"`
	Quantity     int      `json:"quantity"`
	Scanned      int      `json:"scanned"`
	Remaining    int      `json:"remaining"`
	Barcodes     []string `json:"barcodes"`
	ReviewCount  int      `json:"review_count"`
	Complete     bool     `json:"complete"`
}

// OrderProgress is the ledger projection of a whole order.
type OrderProgress struct {
	OrderID     string         `json:"order_id"`
	OrderNumber string         `json:"order_number"`
	Status      OrderStatus    `json:"status"`
	Items       []ItemProgress `json:"items"`
	Scanned     int            `json:"scanned"`
	Required    int            `json:"required"`
	ReviewCount int            `json:"review_count"`
	Complete    bool           `json:"complete"`
}

// FulfillmentTracker validates scans against quantity rules and records them.
type FulfillmentTracker interface {
	// Accept matches, validates, reserves the unit and records a scan as one atomic step
	// under the order lock.
	// NoMatch, UnitNotEligible, AlreadyScanned and QuantityExceeded are outcomes, not errors.
	// Errors are ErrOrderNotFound, ErrOrderAlreadyShipped, *LedgerWriteError or storage errors.
	Accept(ctx context.Context, req ScanRequest) (*AcceptResult, error)
	// Progress rebuilds per-item status purely from the order and the scan ledger.
	Progress(ctx context.Context, orderID string) (*OrderProgress, error)
}

type fulfillmentTracker struct {
	store   Store
	matcher BarcodeMatcher
	ledger  ScanLedger
	rules   *RuleSet
}

func NewFulfillmentTracker(store Store, matcher BarcodeMatcher, ledger ScanLedger, rules *RuleSet) FulfillmentTracker {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	return &fulfillmentTracker{store: store, matcher: matcher, ledger: ledger, rules: rules}
}

func (t *fulfillmentTracker) Accept(ctx context.Context, req ScanRequest) (*AcceptResult, error) {
	req.Barcode = strings.TrimSpace(req.Barcode)

	var result *AcceptResult
	writing := false
	err := t.store.WithTx(ctx, func(ctx context.Context) error {
		order, err := t.store.LockOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if order.IsShipped() {
			return fmt.Errorf("order %s: %w", order.ID, ErrOrderAlreadyShipped)
		}

		match, err := t.matcher.Resolve(ctx, order.ID, req.Barcode)
		switch {
		case errors.Is(err, ErrNoMatch):
			result = &AcceptResult{Outcome: OutcomeNoMatch, OrderID: order.ID, Barcode: req.Barcode, Reason: err.Error()}
			return nil
		case errors.Is(err, ErrUnitNotEligible):
			result = &AcceptResult{Outcome: OutcomeUnitNotEligible, OrderID: order.ID, Barcode: req.Barcode, Reason: err.Error()}
			return nil
		case err != nil:
			return err
		}

		item, ok := order.Item(match.OrderItemID)
		if !ok {
			return fmt.Errorf("scan %s references item %s outside order %s", req.Barcode, match.OrderItemID, order.ID)
		}
		records, err := t.ledger.ListForOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		accepted := groupByItem(records)[item.ID]
		rule := t.rules.For(item.TypeTag)

		if match.AlreadyScanned {
			result = itemResult(OutcomeAlreadyScanned, order.ID, req.Barcode, item, rule, accepted)
			result.Method = match.Method
			result.NeedsReview = match.NeedsReview
			result.Record = match.Existing
			return nil
		}

		if err := rule.Admit(item, accepted, req.Barcode); err != nil {
			if !errors.Is(err, ErrQuantityExceeded) {
				return err
			}
			result = itemResult(OutcomeQuantityExceeded, order.ID, req.Barcode, item, rule, accepted)
			result.Reason = fmt.Sprintf("item %s expects %d", item.ID, item.Quantity)
			return nil
		}

		writing = true
		if match.UnitID != nil {
			if err := t.store.ReserveUnit(ctx, *match.UnitID, order.ID, item.ID); err != nil {
				if !errors.Is(err, ErrUnitNotEligible) {
					return err
				}
				result = &AcceptResult{Outcome: OutcomeUnitNotEligible, OrderID: order.ID, Barcode: req.Barcode, Reason: err.Error()}
				return nil
			}
		}
		rec, created, err := t.ledger.Record(ctx, ScanRecord{
			OrderID:     order.ID,
			OrderItemID: item.ID,
			Barcode:     req.Barcode,
			UnitID:      match.UnitID,
			OperatorID:  req.OperatorID,
			Method:      match.Method,
			NeedsReview: match.NeedsReview,
		})
		if err != nil {
			return err
		}

		outcome := OutcomeAccepted
		if created {
			accepted = append(accepted, rec)
		} else {
			outcome = OutcomeAlreadyScanned
		}
		result = itemResult(outcome, order.ID, req.Barcode, item, rule, accepted)
		result.Method = rec.Method
		result.NeedsReview = rec.NeedsReview
		result.Record = &rec
		return nil
	})
	if err != nil {
		var lw *LedgerWriteError
		if writing && !errors.As(err, &lw) {
			err = &LedgerWriteError{OrderID: req.OrderID, Barcode: req.Barcode, Err: err}
		}
		return nil, err
	}
	return result, nil
}

func itemResult(outcome Outcome, orderID, barcode string, item OrderItem, rule QuantityRule, accepted []ScanRecord) *AcceptResult {
	count := rule.Scanned(accepted)
	return &AcceptResult{
		Outcome:     outcome,
		OrderID:     orderID,
		OrderItemID: item.ID,
		Barcode:     barcode,
		Count:       count,
		Quantity:    item.Quantity,
		Remaining:   remaining(item.Quantity, count),
	}
}

func (t *fulfillmentTracker) Progress(ctx context.Context, orderID string) (*OrderProgress, error) {
	order, err := t.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	records, err := t.ledger.ListForOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return Project(order, records, t.rules), nil
}

// Project derives order progress from the order and its ledger records.
func Project(order *Order, records []ScanRecord, rules *RuleSet) *OrderProgress {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	byItem := groupByItem(records)

	p := &OrderProgress{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Items:       make([]ItemProgress, 0, len(order.Items)),
		Complete:    true,
	}
	for _, it := range order.Items {
		accepted := byItem[it.ID]
		rule := rules.For(it.TypeTag)
		scanned := rule.Scanned(accepted)
		ip := ItemProgress{
			ItemID:       it.ID,
			TypeTag:      it.TypeTag,
			ProductLabel: it.ProductLabel,
			Rule:         rule.Name(),
			Quantity:     it.Quantity,
			Scanned:      scanned,
			Remaining:    remaining(it.Quantity, scanned),
			Barcodes:     DistinctBarcodes(accepted),
			Complete:     len(DistinctBarcodes(accepted)) == it.Quantity,
		}
		for _, r := range accepted {
			if r.NeedsReview {
				ip.ReviewCount++
			}
		}
		p.Items = append(p.Items, ip)
		p.Scanned += scanned
		p.Required += it.Quantity
		p.ReviewCount += ip.ReviewCount
		if !ip.Complete {
			p.Complete = false
		}
	}
	return p
}

func remaining(quantity, scanned int) int {
	if scanned >= quantity {
		return 0
	}
	return quantity - scanned
}
